package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// Domain-specific ID types
type (
	RunID        ID
	DatasetID    ID
	InstrumentID ID
)

func (id RunID) String() string        { return ID(id).String() }
func (id DatasetID) String() string    { return ID(id).String() }
func (id InstrumentID) String() string { return ID(id).String() }

// NewRunID creates a fresh identifier for one analysis run.
func NewRunID() RunID { return RunID(NewID()) }

// ParseDatasetID parses a string into DatasetID
func ParseDatasetID(s string) (DatasetID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("dataset ID cannot be empty")
	}
	return DatasetID(s), nil
}

// ParseInstrumentID normalizes an instrument name ("Fermi-LAT" -> "fermi-lat").
func ParseInstrumentID(s string) (InstrumentID, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", fmt.Errorf("instrument ID cannot be empty")
	}
	return InstrumentID(strings.ReplaceAll(s, "_", "-")), nil
}
