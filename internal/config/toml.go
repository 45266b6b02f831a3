package config

import (
	"github.com/pelletier/go-toml/v2"
)

// tomlDoc mirrors Config's field set in TOML's naming convention; it
// exists so go-toml/v2 can unmarshal into plain struct tags without
// coupling Config's Go field names to the file format.
type tomlDoc struct {
	Project struct {
		Root string `toml:"root"`
	} `toml:"project"`
	Compat struct {
		DisableNiftiHeaderCheck bool `toml:"disable_nifti_header_check"`
		DisableMetadataCheck    bool `toml:"disable_metadata_check"`
	} `toml:"compat"`
	BIDSVersion     string `toml:"bids_version"`
	WriterExtension string `toml:"writer_extension"`
	Logging         struct {
		Level string `toml:"level"`
		JSON  bool   `toml:"json"`
	} `toml:"logging"`
	Dataset struct {
		Name    string   `toml:"name"`
		Authors []string `toml:"authors"`
	} `toml:"dataset"`
}

// parseTOMLInto parses a .bidscore.toml document into cfg.
func parseTOMLInto(cfg *Config, data []byte) error {
	var doc tomlDoc
	if err := toml.Unmarshal(data, &doc); err != nil {
		return err
	}

	if doc.Project.Root != "" {
		cfg.Project.Root = doc.Project.Root
	}
	cfg.DisableNiftiHeaderCheck = doc.Compat.DisableNiftiHeaderCheck
	cfg.DisableMetadataCheck = doc.Compat.DisableMetadataCheck
	if doc.BIDSVersion != "" {
		cfg.BIDSVersion = doc.BIDSVersion
	}
	if doc.WriterExtension != "" {
		cfg.WriterExtension = doc.WriterExtension
	}
	if doc.Logging.Level != "" {
		cfg.Logging.Level = doc.Logging.Level
	}
	cfg.Logging.JSON = doc.Logging.JSON
	if doc.Dataset.Name != "" {
		cfg.Dataset.Name = doc.Dataset.Name
	}
	if len(doc.Dataset.Authors) > 0 {
		cfg.Dataset.Authors = doc.Dataset.Authors
	}

	return nil
}
