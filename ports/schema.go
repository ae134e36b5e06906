package ports

import (
	"photonlag/domain/core"
	"photonlag/domain/photon"
)

// SchemaAdapter turns one instrument's raw table into canonical photons.
// There is one implementation per supported instrument layout, selected by
// name from configuration.
type SchemaAdapter interface {
	// Name is the schema key used in configuration ("fermi-lat", "lhaaso").
	Name() string

	// RequiredColumns lists the columns whose absence is an InvalidSchema error.
	RequiredColumns() []string

	// Normalize converts records using the unit row resolved for the table's
	// instrument.
	Normalize(instrument core.InstrumentID, records []photon.RawRecord, units photon.UnitSpec) ([]photon.PhotonEvent, error)
}
