package excel

// ReaderConfig controls how event tables are read from disk
type ReaderConfig struct {
	Sheet     string `yaml:"sheet" json:"sheet"`           // xlsx sheet, empty uses the first sheet
	SkipBlank bool   `yaml:"skip_blank" json:"skip_blank"` // drop rows whose cells are all empty
}

// DefaultReaderConfig returns the defaults used by the CLI manifest loader
func DefaultReaderConfig() ReaderConfig {
	return ReaderConfig{SkipBlank: true}
}
