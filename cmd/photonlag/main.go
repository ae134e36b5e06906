package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"photonlag/adapters/rng"
	"photonlag/app"
	"photonlag/internal"
	"photonlag/internal/config"
	"photonlag/internal/errors"
	"photonlag/internal/validation"
)

type rootOptions struct {
	configPath string
	envFile    string
	logLevel   string
	output     string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if errors.IsAppError(err) {
			fmt.Fprintf(os.Stderr, "%s: %v\n", errors.GetCode(err), err)
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "photonlag",
		Short:         "Energy-dependent photon arrival-time correlation analysis",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Analysis configuration (YAML); defaults when empty")
	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Environment file with PHOTONLAG_* overrides")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "ERROR, WARN, INFO, DEBUG or TRACE (overrides LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "", "Write JSON to this file instead of stdout")

	rootCmd.AddCommand(
		newAnalyzeCmd(opts),
		newCalibrateCmd(opts),
		newPresetsCmd(),
	)
	return rootCmd
}

// load reads the environment file, then the configuration, and builds the
// logger at the resulting level.
func (o *rootOptions) load() (config.Config, *internal.Logger, error) {
	if err := godotenv.Load(o.envFile); err != nil && !os.IsNotExist(err) {
		return config.Config{}, nil, errors.Wrapf(errors.ConfigInvalid(err.Error()), "failed to read %s", o.envFile)
	}
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	return cfg, internal.NewLogger(internal.ParseLogLevel(cfg.LogLevel)), nil
}

func (o *rootOptions) writeJSON(stdout io.Writer, v interface{}) error {
	w := stdout
	if o.output != "" {
		f, err := os.Create(o.output)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newAnalyzeCmd(opts *rootOptions) *cobra.Command {
	var manifestPath string

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze every dataset of a manifest and pool the results",
		Long: `Normalize, align and analyze each dataset listed in the manifest, then
combine the usable results. Every dataset yields a result record; only an
invalid configuration aborts the run.

Example: photonlag analyze --config analysis.yaml --manifest datasets.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			manifest, err := app.LoadManifest(manifestPath)
			if err != nil {
				return err
			}
			svc, err := app.NewPipelineService(cfg, rng.NewSeededRNG(cfg.Seed), nil, logger)
			if err != nil {
				return err
			}
			batch, err := svc.RunBatch(cmd.Context(), manifest.Inputs())
			if err != nil {
				return err
			}
			return opts.writeJSON(cmd.OutOrStdout(), batch)
		},
	}

	cmd.Flags().StringVar(&manifestPath, "manifest", "", "Dataset manifest (YAML)")
	_ = cmd.MarkFlagRequired("manifest")
	return cmd
}

type calibrationOutput struct {
	Calibration *validation.Calibration `json:"calibration"`
	Locked      *config.DecisionConfig  `json:"locked_decision,omitempty"`
}

func newCalibrateCmd(opts *rootOptions) *cobra.Command {
	var (
		trials       int
		slope        float64
		events       int
		targetFPR    float64
		manifestPath string
		datasetID    string
		writeConfig  string
	)

	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Calibrate the detection threshold on null and injected-lag trials",
		Long: `Run the analysis over null trials and trials with an injected lag slope,
build the threshold ROC curve and select the smallest threshold whose false
positive rate meets the target. Trials are synthetic unless --dataset names a
manifest entry, whose arrival times are then label-shuffled.

With --write-config the configuration is saved with the locked threshold and
its calibration fingerprint.

Example: photonlag calibrate --config analysis.yaml --trials 1000 --slope 0.01`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("trials") {
				cfg.Validation.Trials = trials
			}
			if cmd.Flags().Changed("slope") {
				cfg.Validation.InjectedSlope = slope
			}
			if cmd.Flags().Changed("events") {
				cfg.Validation.EventsPerTrial = events
			}
			if cmd.Flags().Changed("target-fpr") {
				cfg.Validation.TargetFPR = targetFPR
			}

			seeded := rng.NewSeededRNG(cfg.Seed)
			harness, err := validation.NewHarness(cfg, seeded, logger)
			if err != nil {
				return err
			}

			var cal *validation.Calibration
			if datasetID != "" {
				cal, err = calibrateOnDataset(cmd.Context(), cfg, harness, manifestPath, datasetID)
			} else {
				cal, err = harness.Synthetic(cmd.Context())
			}
			if err != nil {
				return err
			}

			out := calibrationOutput{Calibration: cal}
			if cal.Selected != nil {
				locked, err := cal.Lock(cfg)
				if err != nil {
					return err
				}
				out.Locked = &locked.Decision
				if writeConfig != "" {
					if err := config.Save(writeConfig, locked); err != nil {
						return err
					}
					logger.Info("locked %.2fσ written to %s", locked.Decision.ThresholdSigma, writeConfig)
				}
			}
			return opts.writeJSON(cmd.OutOrStdout(), out)
		},
	}

	cmd.Flags().IntVar(&trials, "trials", 0, "Null and signal trials each (default from config)")
	cmd.Flags().Float64Var(&slope, "slope", 0, "Injected lag slope in s/GeV (default from config)")
	cmd.Flags().IntVar(&events, "events", 0, "Photons per synthetic trial (default from config)")
	cmd.Flags().Float64Var(&targetFPR, "target-fpr", 0, "False positive budget (default from config)")
	cmd.Flags().StringVar(&manifestPath, "manifest", "", "Manifest holding --dataset")
	cmd.Flags().StringVar(&datasetID, "dataset", "", "Shuffle this manifest dataset instead of generating trials")
	cmd.Flags().StringVar(&writeConfig, "write-config", "", "Save the configuration with the locked threshold")
	return cmd
}

func calibrateOnDataset(ctx context.Context, cfg config.Config, harness *validation.Harness, manifestPath, datasetID string) (*validation.Calibration, error) {
	if manifestPath == "" {
		return nil, errors.ConfigInvalid("--dataset needs --manifest")
	}
	manifest, err := app.LoadManifest(manifestPath)
	if err != nil {
		return nil, err
	}
	svc, err := app.NewPipelineService(cfg, rng.NewSeededRNG(cfg.Seed), nil, nil)
	if err != nil {
		return nil, err
	}
	for _, in := range manifest.Inputs() {
		if in.ID.String() != datasetID {
			continue
		}
		aligned, err := svc.AlignDataset(in)
		if err != nil {
			return nil, err
		}
		return harness.Shuffled(ctx, aligned)
	}
	return nil, errors.ConfigInvalid(fmt.Sprintf("dataset %q not in %s", datasetID, manifestPath))
}

func newPresetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List the cosmology presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range config.ListCosmologyPresets() {
				p, _ := config.GetCosmologyPreset(name)
				fmt.Fprintf(cmd.OutOrStdout(), "%-10s H0=%.2f Ωm=%.4f ΩΛ=%.4f\n", p.Name, p.H0, p.OmegaM, p.OmegaL)
			}
			return nil
		},
	}
}
