package app

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"photonlag/adapters/excel"
	"photonlag/domain/core"
	"photonlag/domain/photon"
	"photonlag/internal/errors"
)

// Manifest lists the datasets of one run and where their tables live.
type Manifest struct {
	Datasets []ManifestDataset `yaml:"datasets"`
}

// ManifestDataset is one transient: metadata plus its instrument tables.
type ManifestDataset struct {
	ID              string `yaml:"id"`
	photon.Metadata `yaml:",inline"`
	Tables          []ManifestTable `yaml:"tables"`
}

// ManifestTable points at one xlsx or csv event list.
type ManifestTable struct {
	Path       string `yaml:"path"`
	Instrument string `yaml:"instrument"`
	Schema     string `yaml:"schema"` // empty uses the instrument name
	Sheet      string `yaml:"sheet"`
}

// LoadManifest parses a manifest file. Table paths are resolved relative
// to the manifest's directory.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithCode(errors.CodeConfigInvalid, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrapf(errors.ConfigInvalid(err.Error()), "failed to parse manifest %s", path)
	}
	if len(m.Datasets) == 0 {
		return nil, errors.ConfigInvalid(fmt.Sprintf("manifest %s lists no datasets", path))
	}

	base := filepath.Dir(path)
	for i := range m.Datasets {
		for j := range m.Datasets[i].Tables {
			t := &m.Datasets[i].Tables[j]
			if t.Path == "" {
				return nil, errors.ConfigInvalid(fmt.Sprintf("dataset %d table %d has no path", i, j))
			}
			if !filepath.IsAbs(t.Path) {
				t.Path = filepath.Join(base, t.Path)
			}
		}
	}
	return &m, nil
}

// Inputs reads every table. A dataset whose tables cannot be read still
// yields an input carrying the read error, so the batch records it instead
// of aborting.
func (m *Manifest) Inputs() []DatasetInput {
	inputs := make([]DatasetInput, 0, len(m.Datasets))
	for i, d := range m.Datasets {
		id, err := core.ParseDatasetID(d.ID)
		if err != nil {
			id = core.DatasetID(fmt.Sprintf("dataset-%d", i+1))
		}
		in := DatasetInput{ID: id, Meta: d.Metadata}
		for _, t := range d.Tables {
			table, err := readTable(t)
			if err != nil {
				in.LoadError = errors.WithCode(errors.CodeInvalidSchema, errors.Wrapf(err, "table %s", t.Path))
				in.Tables = nil
				break
			}
			in.Tables = append(in.Tables, table)
		}
		inputs = append(inputs, in)
	}
	return inputs
}

func readTable(t ManifestTable) (photon.RawTable, error) {
	instrument, err := core.ParseInstrumentID(t.Instrument)
	if err != nil {
		return photon.RawTable{}, errors.InvalidSchema(err.Error())
	}
	cfg := excel.DefaultReaderConfig()
	cfg.Sheet = t.Sheet
	return excel.ReadRawTable(t.Path, instrument, t.Schema, cfg)
}
