package cosmology

import (
	"math"

	"gonum.org/v1/gonum/integrate/quad"

	"photonlag/internal/config"
)

const (
	// SpeedOfLight in m/s
	SpeedOfLight = 299792458.0
	// MetersPerMpc is one megaparsec in meters
	MetersPerMpc = 3.0856775814913673e22

	quadraturePoints = 64
)

// Cosmology evaluates Lambda-CDM distances. Curvature is 1 - OmegaM - OmegaL;
// radiation is neglected.
type Cosmology struct {
	params config.CosmologyParams
	omegaK float64
}

// New creates a cosmology from resolved parameters
func New(params config.CosmologyParams) *Cosmology {
	return &Cosmology{params: params, omegaK: 1 - params.OmegaM - params.OmegaL}
}

// HubbleDistanceMpc is c/H0 in Mpc.
func (c *Cosmology) HubbleDistanceMpc() float64 {
	return SpeedOfLight / 1000 / c.params.H0
}

// E is the dimensionless Hubble rate H(z)/H0.
func (c *Cosmology) E(z float64) float64 {
	zp := 1 + z
	return math.Sqrt(c.params.OmegaM*zp*zp*zp + c.omegaK*zp*zp + c.params.OmegaL)
}

// ComovingDistanceMpc is the line-of-sight comoving distance to z.
func (c *Cosmology) ComovingDistanceMpc(z float64) float64 {
	if z <= 0 {
		return 0
	}
	integral := quad.Fixed(func(x float64) float64 { return 1 / c.E(x) }, 0, z, quadraturePoints, quad.Legendre{}, 0)
	return c.HubbleDistanceMpc() * integral
}

// TransverseComovingDistanceMpc applies the curvature correction.
func (c *Cosmology) TransverseComovingDistanceMpc(z float64) float64 {
	dc := c.ComovingDistanceMpc(z)
	dh := c.HubbleDistanceMpc()
	switch {
	case c.omegaK > 1e-12:
		sk := math.Sqrt(c.omegaK)
		return dh / sk * math.Sinh(sk*dc/dh)
	case c.omegaK < -1e-12:
		sk := math.Sqrt(-c.omegaK)
		return dh / sk * math.Sin(sk*dc/dh)
	}
	return dc
}

// LuminosityDistanceMpc is (1+z) times the transverse comoving distance.
func (c *Cosmology) LuminosityDistanceMpc(z float64) float64 {
	return (1 + z) * c.TransverseComovingDistanceMpc(z)
}

// KSeconds is the light travel scale D_M/c in seconds that converts a lag
// slope into an energy scale.
func (c *Cosmology) KSeconds(z float64) float64 {
	return c.TransverseComovingDistanceMpc(z) * MetersPerMpc / SpeedOfLight
}
