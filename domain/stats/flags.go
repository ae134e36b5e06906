package stats

import "sort"

// Flag strings attached to results. They are part of the output contract.
const (
	FlagInsufficientData        = "insufficient_data"
	FlagZeroVariance            = "zero_variance"
	FlagNumericalDegeneracy     = "numerical_degeneracy"
	FlagPBelowPrecision         = "p_below_numerical_precision"
	FlagPermutationAtFloor      = "permutation_p_at_floor"
	FlagResamplingDisagreement  = "closed_form_resampling_disagreement"
	FlagBootstrapDegenerate     = "bootstrap_degenerate_resamples"
	FlagNoData                  = "no_data"
	FlagIncomplete              = "incomplete"
	FlagEpochMismatchCorrected  = "epoch_mismatch_corrected"
	FlagScaleUnconstrained      = "scale_unconstrained"
	FlagRobustFitDegenerate     = "robust_fit_degenerate"
	FlagOutlierDriven           = "outlier_driven_signal"
	FlagThresholdNotCalibrated  = "decision_threshold_not_calibrated"
	FlagNonRepresentative       = "non_representative_pooled_result"
	FlagHeterogeneousSources    = "heterogeneous_sources"
	FlagInsufficientSources     = "insufficient_sources"
	FlagDetectionAboveThreshold = "detection_above_threshold"
)

// AddFlags merges flags into dst keeping the result sorted and unique.
func AddFlags(dst []string, flags ...string) []string {
	seen := make(map[string]bool, len(dst)+len(flags))
	out := make([]string, 0, len(dst)+len(flags))
	for _, f := range append(append([]string{}, dst...), flags...) {
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// HasFlag reports whether flags contains f.
func HasFlag(flags []string, f string) bool {
	for _, x := range flags {
		if x == f {
			return true
		}
	}
	return false
}
