package photon

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnergyUnitRoundTrip(t *testing.T) {
	values := []float64{1e-9, 0.1, 0.573, 1.2, 31.4159, 18000, 1.5e7}
	units := []EnergyUnit{UnitEV, UnitKeV, UnitMeV, UnitGeV, UnitTeV, UnitPeV}

	for _, u := range units {
		for _, gev := range values {
			foreign, err := u.FromGeV(gev)
			require.NoError(t, err)
			back, err := u.ToGeV(foreign)
			require.NoError(t, err)
			assert.InEpsilon(t, gev, back, 1e-15, "unit %s value %v", u, gev)
		}
	}
}

func TestEnergyUnitConversions(t *testing.T) {
	gev, err := UnitMeV.ToGeV(1500)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, gev, 1e-12)

	gev, err = UnitTeV.ToGeV(18)
	require.NoError(t, err)
	assert.InDelta(t, 18000, gev, 1e-9)

	_, err = EnergyUnit("erg").ToGeV(1)
	assert.Error(t, err)
}

func TestParseEnergyUnit(t *testing.T) {
	u, err := ParseEnergyUnit("mev")
	require.NoError(t, err)
	assert.Equal(t, UnitMeV, u)

	_, err = ParseEnergyUnit("joule")
	assert.Error(t, err)
}

func TestTimeUnitSeconds(t *testing.T) {
	s, err := TimeDays.Seconds(1.5)
	require.NoError(t, err)
	assert.Equal(t, 129600.0, s)

	s, err = TimeSeconds.Seconds(42)
	require.NoError(t, err)
	assert.Equal(t, 42.0, s)
}

func TestDatasetIsImmutable(t *testing.T) {
	events := []PhotonEvent{{Time: 1, Energy: 2, Instrument: "lat"}}
	ds := NewDataset("d1", Metadata{Redshift: 0.1}, events)

	events[0].Energy = 99
	got := ds.Events()
	assert.Equal(t, 2.0, got[0].Energy)

	got[0].Energy = 77
	assert.Equal(t, 2.0, ds.Events()[0].Energy)
}

func TestMetadataValidate(t *testing.T) {
	assert.NoError(t, Metadata{Redshift: 0}.Validate())
	assert.Error(t, Metadata{Redshift: -0.1}.Validate())
	assert.Error(t, Metadata{Redshift: math.NaN()}.Validate())
}

func TestMetadataTrigger(t *testing.T) {
	_, _, ok := Metadata{}.Trigger()
	assert.False(t, ok)

	tt, epoch, ok := Metadata{TriggerTime: 1.6e9}.Trigger()
	require.True(t, ok)
	assert.Equal(t, 1.6e9, tt)
	assert.Equal(t, EpochUnix, epoch)

	_, epoch, ok = Metadata{TriggerTime: 0, TriggerEpoch: EpochFermiMET}.Trigger()
	assert.True(t, ok)
	assert.Equal(t, EpochFermiMET, epoch)
}
