package cosmology

import (
	"math"

	"photonlag/domain/stats"
	"photonlag/internal/config"
)

// ScaleEstimator converts a fitted slope into the implied energy scale.
type ScaleEstimator struct {
	cosmo *Cosmology
	cfg   config.ScaleConfig
}

// NewScaleEstimator creates an estimator for one cosmology
func NewScaleEstimator(cosmo *Cosmology, cfg config.ScaleConfig) *ScaleEstimator {
	return &ScaleEstimator{cosmo: cosmo, cfg: cfg}
}

// Estimate returns E_scale = K(z)/|slope| in GeV. A slope below the
// resolvable minimum, or a source at z <= 0, yields the Unconstrained
// sentinel with zero scale and FlagScaleUnconstrained instead of an
// unbounded value.
func (s *ScaleEstimator) Estimate(slope, redshift float64) (stats.ScaleEstimate, []string) {
	est := stats.ScaleEstimate{
		KzSeconds:             s.cosmo.KSeconds(redshift),
		LuminosityDistanceMpc: s.cosmo.LuminosityDistanceMpc(redshift),
	}
	abs := math.Abs(slope)
	if math.IsNaN(abs) || abs < s.cfg.MinResolvableSlope || redshift <= 0 {
		est.Unconstrained = true
		return est, []string{stats.FlagScaleUnconstrained}
	}
	est.EScaleGeV = est.KzSeconds / abs
	est.EScaleOverPlanck = est.EScaleGeV / s.cfg.PlanckEnergyGeV
	return est, nil
}
