package config

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"photonlag/domain/core"
	"photonlag/domain/stats"
	"photonlag/internal/errors"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks struct tags first, then the cross-field rules the tags
// cannot express. Every failure is a CONFIG_INVALID error.
func (c Config) Validate() error {
	if err := structValidator().Struct(c); err != nil {
		return errors.ConfigInvalid(describeValidation(err))
	}

	if c.Alignment.WindowMin >= c.Alignment.WindowMax {
		return errors.Newf(errors.CodeConfigInvalid, "alignment window [%g, %g] is empty", c.Alignment.WindowMin, c.Alignment.WindowMax)
	}

	seen := make(map[stats.Method]bool)
	for _, m := range c.Correlation.Methods {
		if !m.Valid() {
			return errors.Newf(errors.CodeConfigInvalid, "unknown correlation method %q", m)
		}
		seen[m] = true
	}
	if !seen[c.Correlation.PrimaryMethod] {
		return errors.Newf(errors.CodeConfigInvalid, "primary method %q is not among the enabled methods", c.Correlation.PrimaryMethod)
	}

	for i, band := range c.Correlation.EnergyBands {
		if band[0] < 0 || band[1] > 100 || band[0] >= band[1] {
			return errors.Newf(errors.CodeConfigInvalid, "energy band %d [%g, %g] must satisfy 0 <= lo < hi <= 100", i, band[0], band[1])
		}
	}
	if (c.Correlation.Window.Width > 0) != (c.Correlation.Window.Step > 0) {
		return errors.ConfigInvalid("sliding window needs both width and step")
	}
	for _, thr := range c.Correlation.EnergyThresholds {
		if thr <= 0 || math.IsInf(thr, 0) {
			return errors.Newf(errors.CodeConfigInvalid, "energy threshold %g must be positive and finite", thr)
		}
	}

	for i, cut := range c.Cuts {
		if strings.TrimSpace(cut.Field) == "" {
			return errors.Newf(errors.CodeConfigInvalid, "cut %d has no field", i)
		}
		if math.IsNaN(cut.Threshold) {
			return errors.Newf(errors.CodeConfigInvalid, "cut %d threshold is NaN", i)
		}
	}

	if _, err := c.Cosmology.Resolve(); err != nil {
		return err
	}
	return nil
}

func describeValidation(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s (got %v)", fe.Namespace(), fe.Tag(), fe.Param(), fe.Value()))
		} else {
			parts = append(parts, fmt.Sprintf("%s failed %s (got %v)", fe.Namespace(), fe.Tag(), fe.Value()))
		}
	}
	return strings.Join(parts, "; ")
}

// Fingerprint hashes the settings that change what a significance value
// means. A calibration is only valid for configurations with the same
// fingerprint.
func (c Config) Fingerprint() core.Hash {
	cuts := make([]string, len(c.Cuts))
	for i, cut := range c.Cuts {
		cuts[i] = fmt.Sprintf("%s%s%g@%s", cut.Field, cut.Op, cut.Threshold, cut.Instrument)
	}
	return core.ComputeFingerprint(map[string]interface{}{
		"cuts":           strings.Join(cuts, ","),
		"primary_method": c.Correlation.PrimaryMethod,
		"log_energy":     c.Correlation.LogEnergy,
		"min_events":     c.Correlation.MinEvents,
		"threshold":      c.Decision.ThresholdSigma,
	})
}

// WithDecision returns a copy carrying a locked threshold
func (c Config) WithDecision(threshold float64, fingerprint string) Config {
	c.Decision = DecisionConfig{ThresholdSigma: threshold, Fingerprint: fingerprint}
	return c
}

// ThresholdCalibrated reports whether the decision threshold was locked
// from a calibration run made under this same configuration.
func (c Config) ThresholdCalibrated() bool {
	return c.Decision.Fingerprint != "" && c.Decision.Fingerprint == c.Fingerprint().String()
}
