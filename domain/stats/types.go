package stats

import "photonlag/domain/core"

// Method names a correlation estimator
type Method string

const (
	MethodPearson  Method = "pearson"
	MethodSpearman Method = "spearman"
	MethodKendall  Method = "kendall"
)

// AllMethods lists the supported estimators in report order.
var AllMethods = []Method{MethodPearson, MethodSpearman, MethodKendall}

// Valid reports whether m is a supported estimator.
func (m Method) Valid() bool {
	switch m {
	case MethodPearson, MethodSpearman, MethodKendall:
		return true
	}
	return false
}

// Status of a single computed quantity
type Status string

const (
	StatusOK               Status = "ok"
	StatusInsufficientData Status = "insufficient_data"
	StatusDegenerate       Status = "degenerate"
)

// CorrelationResult is one estimator applied to one sample.
// INVARIANTS:
// - Coefficient in [-1, 1]
// - PValue in (0, 1]
// - SignificanceSigma finite and >= 0
// Degenerate samples carry Status != ok with Coefficient 0, PValue 1, sigma 0.
type CorrelationResult struct {
	Method            Method   `json:"method"`
	Coefficient       float64  `json:"coefficient"`
	N                 int      `json:"n"`
	PValue            float64  `json:"p_value"`
	Log10PValue       float64  `json:"log10_p_value"`
	SignificanceSigma float64  `json:"significance_sigma"`
	Status            Status   `json:"status"`
	Flags             []string `json:"flags,omitempty"`
}

// OK reports whether the coefficient was actually computed.
func (r CorrelationResult) OK() bool { return r.Status == StatusOK }

// InsufficientResult is the sentinel for samples below the minimum size.
func InsufficientResult(method Method, n int) CorrelationResult {
	return CorrelationResult{
		Method: method,
		N:      n,
		PValue: 1,
		Status: StatusInsufficientData,
		Flags:  []string{FlagInsufficientData},
	}
}

// DegenerateResult is the sentinel for zero-variance samples.
func DegenerateResult(method Method, n int) CorrelationResult {
	return CorrelationResult{
		Method: method,
		N:      n,
		PValue: 1,
		Status: StatusDegenerate,
		Flags:  []string{FlagZeroVariance},
	}
}

// SubsetResult holds correlations computed over one configured subset.
type SubsetResult struct {
	Label        string                       `json:"label"`
	Kind         string                       `json:"kind"` // "energy_band", "time_split", "window", "energy_threshold"
	Lower        float64                      `json:"lower"`
	Upper        float64                      `json:"upper"`
	N            int                          `json:"n"`
	Correlations map[Method]CorrelationResult `json:"correlations"`
}

// ConfidenceInterval is a two-sided interval at Level (e.g. 0.95).
type ConfidenceInterval struct {
	Level float64 `json:"level"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Contains reports whether v lies inside the closed interval.
func (ci ConfidenceInterval) Contains(v float64) bool {
	return v >= ci.Lower && v <= ci.Upper
}

// PermutationResult summarizes a shuffle test.
type PermutationResult struct {
	Iterations  int     `json:"iterations"`
	Exceedances int     `json:"exceedances"` // permuted |r| >= observed |r|
	PValue      float64 `json:"p_value"`     // (exceedances+1)/(iterations+1)
	Sigma       float64 `json:"sigma"`
	AtFloor     bool    `json:"at_floor"` // no exceedances, sigma is a lower bound
	NullMean    float64 `json:"null_mean"`
	NullStdDev  float64 `json:"null_std_dev"`
}

// BootstrapResult summarizes pair resampling of the coefficient.
type BootstrapResult struct {
	Iterations int                `json:"iterations"`
	Valid      int                `json:"valid"` // resamples with non-degenerate variance
	Mean       float64            `json:"mean"`
	StdErr     float64            `json:"std_err"`
	CI         ConfidenceInterval `json:"ci"`
}

// SignificanceResult joins the closed-form and resampling paths.
type SignificanceResult struct {
	ClosedForm  CorrelationResult  `json:"closed_form"`
	Permutation *PermutationResult `json:"permutation,omitempty"`
	Bootstrap   *BootstrapResult   `json:"bootstrap,omitempty"`
	Flags       []string           `json:"flags,omitempty"`
}

// RobustFitResult is the outcome of a RANSAC fit of t = a + b*E.
type RobustFitResult struct {
	Slope             float64 `json:"slope"`     // seconds per GeV
	Intercept         float64 `json:"intercept"` // seconds
	InlierMask        []bool  `json:"inlier_mask"`
	Inliers           int     `json:"inliers"`
	InlierFraction    float64 `json:"inlier_fraction"`
	ResidualThreshold float64 `json:"residual_threshold"`
	Trials            int     `json:"trials"`
	FullSigma         float64 `json:"full_sigma"`
	InlierSigma       float64 `json:"inlier_sigma"`
	OutlierInfluence  float64 `json:"outlier_influence"` // FullSigma - InlierSigma
	Status            Status  `json:"status"`
}

// ScaleEstimate is the energy scale implied by a fitted slope.
type ScaleEstimate struct {
	EScaleGeV             float64 `json:"e_scale_gev"`
	EScaleOverPlanck      float64 `json:"e_scale_over_planck"`
	KzSeconds             float64 `json:"kz_seconds"`
	LuminosityDistanceMpc float64 `json:"luminosity_distance_mpc"`
	Unconstrained         bool    `json:"unconstrained"`
}

// AlignmentSummary records how the common time axis was built.
type AlignmentSummary struct {
	T0         float64            `json:"t0_unix"`
	Modes      map[string]string  `json:"modes"`
	Offsets    map[string]float64 `json:"offsets_seconds"`
	Mismatches []string           `json:"mismatches,omitempty"`
	MinRelTime float64            `json:"min_rel_time"`
	MaxRelTime float64            `json:"max_rel_time"`
}

// Dataset result statuses
const (
	ResultOK         = "ok"
	ResultNoData     = "no_data"
	ResultFailed     = "failed"
	ResultIncomplete = "incomplete"
)

// DatasetResult is the per-dataset output record. Every dataset in a run
// produces exactly one, success or failure.
type DatasetResult struct {
	DatasetID core.DatasetID `json:"dataset_id"`
	Name      string         `json:"name"`
	Status    string         `json:"status"`

	N                int     `json:"n"`
	RetainedFraction float64 `json:"retained_fraction"`

	Correlation        map[Method]float64           `json:"correlation"`
	CorrelationDetails map[Method]CorrelationResult `json:"correlation_details,omitempty"`
	PrimaryMethod      Method                       `json:"primary_method"`
	SignificanceSigma  float64                      `json:"significance_sigma"`
	PValue             float64                      `json:"p_value"`
	Log10PValue        float64                      `json:"log10_p_value"`
	Permutation        *PermutationResult           `json:"permutation,omitempty"`
	Bootstrap          *BootstrapResult             `json:"bootstrap,omitempty"`

	Slope          float64          `json:"slope"`
	Intercept      float64          `json:"intercept"`
	InlierFraction float64          `json:"inlier_fraction"`
	Fit            *RobustFitResult `json:"fit,omitempty"`

	EScale           float64        `json:"E_scale"`
	EScaleOverPlanck float64        `json:"E_scale_over_Planck"`
	Scale            *ScaleEstimate `json:"scale,omitempty"`

	Subsets   []SubsetResult    `json:"subsets,omitempty"`
	Alignment *AlignmentSummary `json:"alignment,omitempty"`

	DecisionThresholdSigma float64 `json:"decision_threshold_sigma"`
	Detected               bool    `json:"detected"`

	Flags     []string `json:"flags"`
	ErrorCode string   `json:"error_code,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// Usable reports whether the result can enter a multi-source combination.
func (r DatasetResult) Usable() bool {
	return r.Status == ResultOK
}

// SourceContribution is one dataset's share of a pooled estimate.
type SourceContribution struct {
	DatasetID     core.DatasetID `json:"dataset_id"`
	Name          string         `json:"name"`
	N             int            `json:"n"`
	Correlation   float64        `json:"correlation"`
	Sigma         float64        `json:"significance_sigma"`
	Weight        float64        `json:"weight"`         // inverse null variance of z, n - 3 for Pearson
	WeightShare   float64        `json:"weight_share"`   // weight / total weight
	EvidenceShare float64        `json:"evidence_share"` // weight * z^2 / total
}

// ExcludedSource records a dataset left out of a combination.
type ExcludedSource struct {
	DatasetID core.DatasetID `json:"dataset_id"`
	Name      string         `json:"name"`
	Reason    string         `json:"reason"`
}

// CombinedEvidence is a read-only aggregate over per-source correlations.
type CombinedEvidence struct {
	Method               Method               `json:"method"`
	PooledCorrelation    float64              `json:"pooled_correlation"`
	PooledSignificance   float64              `json:"pooled_significance"`
	PooledPValue         float64              `json:"pooled_p_value"`
	Log10PooledPValue    float64              `json:"log10_pooled_p_value"`
	TotalN               int                  `json:"total_n"`
	LogLikelihoodRatio   float64              `json:"log_likelihood_ratio"`
	HeterogeneityQ       float64              `json:"heterogeneity_q"`
	HeterogeneityPValue  float64              `json:"heterogeneity_p_value"`
	DominanceRatio       float64              `json:"dominance_ratio"`
	DominantSource       core.DatasetID       `json:"dominant_source,omitempty"`
	SampleDominanceRatio float64              `json:"sample_dominance_ratio"`
	Representative       bool                 `json:"representative"`
	PerSourceResults     []SourceContribution `json:"per_source_results"`
	Excluded             []ExcludedSource     `json:"excluded,omitempty"`
	Flags                []string             `json:"flags,omitempty"`
}
