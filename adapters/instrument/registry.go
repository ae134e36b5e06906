package instrument

import (
	"fmt"
	"sort"
	"strings"

	"photonlag/domain/core"
	"photonlag/domain/photon"
	"photonlag/internal"
	"photonlag/internal/errors"
	"photonlag/ports"
)

// Registry resolves schema adapters by configured name. Adapters are
// never picked by inspecting column names at runtime.
type Registry struct {
	adapters map[string]ports.SchemaAdapter
}

// NewRegistry returns a registry holding the built-in adapters
func NewRegistry() *Registry {
	r := &Registry{adapters: make(map[string]ports.SchemaAdapter)}
	r.Register(NewFermiLATAdapter())
	r.Register(NewLHAASOAdapter())
	r.Register(NewGenericAdapter())
	return r
}

// Register adds or replaces an adapter
func (r *Registry) Register(a ports.SchemaAdapter) {
	r.adapters[a.Name()] = a
}

// Lookup returns the adapter for a schema name
func (r *Registry) Lookup(schema string) (ports.SchemaAdapter, error) {
	a, ok := r.adapters[strings.ToLower(strings.TrimSpace(schema))]
	if !ok {
		return nil, errors.ConfigInvalid(fmt.Sprintf("unknown schema %q (known: %s)", schema, strings.Join(r.Names(), ", ")))
	}
	return a, nil
}

// Names lists registered schema names
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for k := range r.adapters {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Normalizer canonicalizes every raw table of one dataset.
type Normalizer struct {
	registry *Registry
	logger   *internal.Logger
}

// NewNormalizer creates a normalizer over a registry
func NewNormalizer(registry *Registry, logger *internal.Logger) *Normalizer {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Normalizer{registry: registry, logger: logger.WithComponent("normalizer")}
}

// Normalize builds an immutable Dataset from raw tables. A table whose
// schema name is empty uses its instrument name as the schema.
func (n *Normalizer) Normalize(id core.DatasetID, meta photon.Metadata, tables []photon.RawTable) (*photon.Dataset, error) {
	if err := meta.Validate(); err != nil {
		return nil, errors.InvalidSchema(err.Error())
	}

	var events []photon.PhotonEvent
	for _, table := range tables {
		schema := table.Schema
		if schema == "" {
			schema = table.Instrument.String()
		}
		adapter, err := n.registry.Lookup(schema)
		if err != nil {
			return nil, err
		}
		units, ok := ResolveUnits(table.Instrument.String(), meta.Units)
		if !ok {
			return nil, errors.InvalidSchema(fmt.Sprintf("no unit table entry for instrument %q", table.Instrument))
		}

		converted, err := adapter.Normalize(table.Instrument, table.Records, units)
		if err != nil {
			return nil, errors.Wrapf(err, "normalizing %s table", table.Instrument)
		}
		n.logger.Debug("%s: %d %s photons normalized (%s, epoch %s)", id, len(converted), table.Instrument, units.EnergyUnit, units.Epoch)
		events = append(events, converted...)
	}

	return photon.NewDataset(id, meta, events), nil
}
