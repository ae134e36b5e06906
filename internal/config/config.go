package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"photonlag/domain/stats"
	"photonlag/internal/errors"
)

const (
	DefaultPermutations       = 10000
	DefaultBootstraps         = 1000
	DefaultConfidenceLevel    = 0.95
	DefaultDecisionSigma      = 5.0
	DefaultDominance          = 0.6
	DefaultRANSACTrials       = 1000
	DefaultMismatchThreshold  = 1e6
	DefaultWindowMin          = -100.0
	DefaultWindowMax          = 1e5
	DefaultPlanckEnergyGeV    = 1.22e19
	DefaultMinResolvableSlope = 1e-12
	DefaultChunkSize          = 256
)

// Config is the immutable analysis configuration threaded through every
// component call. Components receive their own section by value.
type Config struct {
	LogLevel              string        `yaml:"log_level"`
	Seed                  int64         `yaml:"seed"`
	Workers               int           `yaml:"workers" validate:"min=0"`
	MaxConcurrentDatasets int           `yaml:"max_concurrent_datasets" validate:"min=0"`
	DatasetTimeout        time.Duration `yaml:"dataset_timeout" validate:"min=0"`

	Alignment    AlignmentConfig    `yaml:"alignment"`
	Cuts         []CutConfig        `yaml:"cuts" validate:"dive"`
	Correlation  CorrelationConfig  `yaml:"correlation"`
	Significance SignificanceConfig `yaml:"significance"`
	RANSAC       RANSACConfig       `yaml:"ransac"`
	Cosmology    CosmologyConfig    `yaml:"cosmology"`
	Scale        ScaleConfig        `yaml:"scale"`
	Combiner     CombinerConfig     `yaml:"combiner"`
	Decision     DecisionConfig     `yaml:"decision"`
	Validation   ValidationConfig   `yaml:"validation"`
}

// AlignmentConfig controls the time-base aligner
type AlignmentConfig struct {
	WindowMin         float64            `yaml:"window_min"`
	WindowMax         float64            `yaml:"window_max"`
	MismatchThreshold float64            `yaml:"mismatch_threshold" validate:"gt=0"`
	T0Mode            string             `yaml:"t0_mode" validate:"oneof=trigger earliest"`
	Reference         string             `yaml:"reference"` // reference instrument for median alignment
	Offsets           map[string]float64 `yaml:"offsets"`   // explicit offsets, seconds added to raw times
}

// CutConfig is one declarative selection cut
type CutConfig struct {
	Field      string  `yaml:"field" validate:"required"`
	Op         string  `yaml:"op" validate:"oneof=> >= < <= == !="`
	Threshold  float64 `yaml:"threshold"`
	Instrument string  `yaml:"instrument"` // empty applies to all instruments
}

// WindowConfig defines sliding time windows
type WindowConfig struct {
	Width float64 `yaml:"width" validate:"min=0"`
	Step  float64 `yaml:"step" validate:"min=0"`
}

// CorrelationConfig controls the correlation engine
type CorrelationConfig struct {
	Methods          []stats.Method `yaml:"methods" validate:"min=1"`
	PrimaryMethod    stats.Method   `yaml:"primary_method"`
	LogEnergy        bool           `yaml:"log_energy"`
	EnergyBands      [][2]float64   `yaml:"energy_bands"` // percentile pairs
	EarlyLateSplit   bool           `yaml:"early_late_split"`
	SplitTime        float64        `yaml:"split_time"` // 0 splits at the median time
	Window           WindowConfig   `yaml:"window"`
	EnergyThresholds []float64      `yaml:"energy_thresholds"` // GeV
	MinEvents        int            `yaml:"min_events" validate:"min=3"`
}

// SignificanceConfig controls closed-form and resampling estimates
type SignificanceConfig struct {
	Permutations      int     `yaml:"permutations" validate:"min=0"`
	Bootstraps        int     `yaml:"bootstraps" validate:"min=0"`
	ConfidenceLevel   float64 `yaml:"confidence_level" validate:"gt=0,lt=1"`
	DisagreementSigma float64 `yaml:"disagreement_sigma" validate:"gt=0"`
	ChunkSize         int     `yaml:"chunk_size" validate:"min=1"`
}

// RANSACConfig controls the robust regression
type RANSACConfig struct {
	ResidualThreshold  float64 `yaml:"residual_threshold" validate:"min=0"` // 0 uses the MAD of t
	MaxTrials          int     `yaml:"max_trials" validate:"min=1"`
	StopInlierFraction float64 `yaml:"stop_inlier_fraction" validate:"gt=0,lte=1"`
	OutlierInfluence   float64 `yaml:"outlier_influence" validate:"gt=0"` // sigma drop that flags an outlier-driven signal
}

// CosmologyConfig selects a named preset or explicit parameters
type CosmologyConfig struct {
	Preset string  `yaml:"preset"`
	H0     float64 `yaml:"h0" validate:"min=0"`
	OmegaM float64 `yaml:"omega_m" validate:"min=0"`
	OmegaL float64 `yaml:"omega_lambda" validate:"min=0"`
}

// ScaleConfig controls the physical scale estimator
type ScaleConfig struct {
	MinResolvableSlope float64 `yaml:"min_resolvable_slope" validate:"gt=0"`
	PlanckEnergyGeV    float64 `yaml:"planck_energy_gev" validate:"gt=0"`
}

// CombinerConfig controls multi-source pooling
type CombinerConfig struct {
	DominanceThreshold float64 `yaml:"dominance_threshold" validate:"gt=0,lte=1"`
	HeterogeneityAlpha float64 `yaml:"heterogeneity_alpha" validate:"gt=0,lt=1"`
	MinSources         int     `yaml:"min_sources" validate:"min=1"`
}

// DecisionConfig holds the a-priori detection threshold. Fingerprint is
// set only by locking a calibration onto the configuration.
type DecisionConfig struct {
	ThresholdSigma float64 `yaml:"threshold_sigma" validate:"gt=0"`
	Fingerprint    string  `yaml:"calibration_fingerprint"`
}

// ThresholdGrid is the set of thresholds scanned by the ROC calibration
type ThresholdGrid struct {
	Min  float64 `yaml:"min" validate:"min=0"`
	Max  float64 `yaml:"max" validate:"gtfield=Min"`
	Step float64 `yaml:"step" validate:"gt=0"`
}

// ValidationConfig controls the validation harness
type ValidationConfig struct {
	Trials         int           `yaml:"trials" validate:"min=1"`
	EventsPerTrial int           `yaml:"events_per_trial" validate:"min=3"`
	InjectedSlope  float64       `yaml:"injected_slope"` // s/GeV
	NoiseSigma     float64       `yaml:"noise_sigma" validate:"gt=0"`
	EnergyMin      float64       `yaml:"energy_min" validate:"gt=0"`
	EnergyMax      float64       `yaml:"energy_max" validate:"gtfield=EnergyMin"`
	TargetFPR      float64       `yaml:"target_fpr" validate:"gt=0,lt=1"`
	Permutations   int           `yaml:"permutations" validate:"min=0"`
	Grid           ThresholdGrid `yaml:"grid"`
}

// DefaultConfig returns the configuration used when no file is given
func DefaultConfig() Config {
	return Config{
		LogLevel:              "INFO",
		Seed:                  42,
		Workers:               0,
		MaxConcurrentDatasets: 0,
		DatasetTimeout:        5 * time.Minute,
		Alignment: AlignmentConfig{
			WindowMin:         DefaultWindowMin,
			WindowMax:         DefaultWindowMax,
			MismatchThreshold: DefaultMismatchThreshold,
			T0Mode:            "trigger",
		},
		Correlation: CorrelationConfig{
			Methods:       []stats.Method{stats.MethodPearson, stats.MethodSpearman, stats.MethodKendall},
			PrimaryMethod: stats.MethodPearson,
			MinEvents:     3,
		},
		Significance: SignificanceConfig{
			Permutations:      DefaultPermutations,
			Bootstraps:        DefaultBootstraps,
			ConfidenceLevel:   DefaultConfidenceLevel,
			DisagreementSigma: 1.0,
			ChunkSize:         DefaultChunkSize,
		},
		RANSAC: RANSACConfig{
			MaxTrials:          DefaultRANSACTrials,
			StopInlierFraction: 0.99,
			OutlierInfluence:   2.0,
		},
		Cosmology: CosmologyConfig{Preset: "planck18"},
		Scale: ScaleConfig{
			MinResolvableSlope: DefaultMinResolvableSlope,
			PlanckEnergyGeV:    DefaultPlanckEnergyGeV,
		},
		Combiner: CombinerConfig{
			DominanceThreshold: DefaultDominance,
			HeterogeneityAlpha: 0.05,
			MinSources:         2,
		},
		Decision: DecisionConfig{ThresholdSigma: DefaultDecisionSigma},
		Validation: ValidationConfig{
			Trials:         500,
			EventsPerTrial: 500,
			InjectedSlope:  0.01,
			NoiseSigma:     0.5,
			EnergyMin:      0.1,
			EnergyMax:      100,
			TargetFPR:      0.01,
			Grid:           ThresholdGrid{Min: 0, Max: 8, Step: 0.25},
		},
	}
}

// Load reads a YAML file over the defaults, applies environment overrides
// and validates the result.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.WithCode(errors.CodeConfigInvalid, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, errors.Wrapf(errors.ConfigInvalid(err.Error()), "failed to parse %s", path)
		}
	}

	cfg = cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Wrap(err, "configuration validation failed")
	}
	return cfg, nil
}

// ApplyEnv returns a copy with PHOTONLAG_* environment overrides applied
func (c Config) ApplyEnv() Config {
	c.LogLevel = getEnvOrDefault("LOG_LEVEL", c.LogLevel)
	c.Seed = int64(getEnvIntOrDefault("PHOTONLAG_SEED", int(c.Seed)))
	c.Workers = getEnvIntOrDefault("PHOTONLAG_WORKERS", c.Workers)
	c.MaxConcurrentDatasets = getEnvIntOrDefault("PHOTONLAG_MAX_CONCURRENT_DATASETS", c.MaxConcurrentDatasets)
	c.DatasetTimeout = getEnvDurationOrDefault("PHOTONLAG_DATASET_TIMEOUT", c.DatasetTimeout)
	c.Significance.Permutations = getEnvIntOrDefault("PHOTONLAG_PERMUTATIONS", c.Significance.Permutations)
	c.Significance.Bootstraps = getEnvIntOrDefault("PHOTONLAG_BOOTSTRAPS", c.Significance.Bootstraps)
	c.Cosmology.Preset = getEnvOrDefault("PHOTONLAG_COSMOLOGY", c.Cosmology.Preset)
	return c
}

// Save writes the configuration as YAML
func Save(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
