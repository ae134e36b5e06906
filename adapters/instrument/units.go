package instrument

import "photonlag/domain/photon"

// DefaultUnitTable is the declarative per-instrument unit table. Dataset
// metadata may override individual rows; algorithmic code never inlines
// these factors.
var DefaultUnitTable = photon.UnitTable{
	"fermi-lat": {EnergyUnit: photon.UnitMeV, TimeUnit: photon.TimeSeconds, Epoch: photon.EpochFermiMET},
	"fermi-gbm": {EnergyUnit: photon.UnitKeV, TimeUnit: photon.TimeSeconds, Epoch: photon.EpochFermiMET},
	"lhaaso":    {EnergyUnit: photon.UnitTeV, TimeUnit: photon.TimeSeconds, Epoch: photon.EpochUnix},
	"hess":      {EnergyUnit: photon.UnitTeV, TimeUnit: photon.TimeSeconds, Epoch: photon.EpochUnix},
	"magic":     {EnergyUnit: photon.UnitGeV, TimeUnit: photon.TimeDays, Epoch: photon.EpochMJD},
	"synthetic": {EnergyUnit: photon.UnitGeV, TimeUnit: photon.TimeSeconds, Epoch: photon.EpochRelative},
}

// ResolveUnits returns the unit row for an instrument from the merged
// default and override tables.
func ResolveUnits(instrument string, overrides photon.UnitTable) (photon.UnitSpec, bool) {
	spec, ok := DefaultUnitTable.Merge(overrides)[instrument]
	return spec, ok
}
