package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photonlag/domain/photon"
	"photonlag/internal/config"
	"photonlag/internal/errors"
)

func sample() *photon.AlignedDataset {
	return photon.NewAlignedDataset("grb", photon.Metadata{}, 0, []photon.AlignedEvent{
		{RelTime: 1, Energy: 0.5, Instrument: "fermi-lat", Quality: map[string]float64{"zenith_angle": 30, "event_class": 128}},
		{RelTime: 2, Energy: 5, Instrument: "fermi-lat", Quality: map[string]float64{"zenith_angle": 105, "event_class": 128}},
		{RelTime: 3, Energy: 50, Instrument: "fermi-lat", Quality: map[string]float64{"zenith_angle": 60}},
		{RelTime: 4, Energy: 500, Instrument: "lhaaso", Quality: map[string]float64{"zenith_angle": 20}},
		{RelTime: 5, Energy: 5000, Instrument: "lhaaso"},
	})
}

func TestFilter_NoCutsKeepsEverything(t *testing.T) {
	f, err := NewFilter(nil, nil)
	require.NoError(t, err)

	res := f.Apply(sample())
	assert.Equal(t, 5, res.Retained)
	assert.Equal(t, 1.0, res.RetainedFraction)
	assert.False(t, res.NoData)
}

func TestFilter_EnergyAndZenithCuts(t *testing.T) {
	f, err := NewFilter([]config.CutConfig{
		{Field: FieldEnergy, Op: ">=", Threshold: 1},
		{Field: "zenith_angle", Op: "<", Threshold: 100},
	}, nil)
	require.NoError(t, err)

	res := f.Apply(sample())
	require.Equal(t, 2, res.Retained)
	assert.Equal(t, 50.0, res.Events[0].Energy)
	assert.Equal(t, 500.0, res.Events[1].Energy)
	assert.Equal(t, 1, res.MissingField)
	assert.InDelta(t, 0.4, res.RetainedFraction, 1e-12)
	assert.Equal(t, 1, res.RejectedBy["energy >= 1"])
}

func TestFilter_InstrumentScopedCut(t *testing.T) {
	f, err := NewFilter([]config.CutConfig{
		{Field: "event_class", Op: "==", Threshold: 128, Instrument: "fermi-lat"},
	}, nil)
	require.NoError(t, err)

	res := f.Apply(sample())
	// Two LAT photons pass, one lacks the column, both LHAASO photons are untouched.
	assert.Equal(t, 4, res.Retained)
	assert.Equal(t, 1, res.MissingField)
}

func TestFilter_AllRejectedIsNoData(t *testing.T) {
	f, err := NewFilter([]config.CutConfig{{Field: FieldTime, Op: ">", Threshold: 100}}, nil)
	require.NoError(t, err)

	ds := sample()
	res := f.Apply(ds)
	assert.True(t, res.NoData)
	assert.Empty(t, res.Events)
	assert.Equal(t, 0.0, res.RetainedFraction)
	assert.Equal(t, 5, ds.Len(), "input dataset must not be mutated")
}

func TestFilter_EmptyDataset(t *testing.T) {
	f, err := NewFilter(nil, nil)
	require.NoError(t, err)

	res := f.Apply(photon.NewAlignedDataset("empty", photon.Metadata{}, 0, nil))
	assert.True(t, res.NoData)
	assert.Equal(t, 0, res.Total)
}

func TestNewFilter_MalformedCut(t *testing.T) {
	_, err := NewFilter([]config.CutConfig{{Field: "energy", Op: "=~", Threshold: 1}}, nil)
	assert.ErrorIs(t, err, errors.ErrConfigInvalid)

	_, err = NewFilter([]config.CutConfig{{Op: ">", Threshold: 1}}, nil)
	assert.ErrorIs(t, err, errors.ErrConfigInvalid)
}
