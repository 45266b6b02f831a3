// Package config holds the process-wide configuration recognized once at
// startup (§6.3): the two compatibility-check disable flags, the default
// BIDSVersion, and the ambient logging/dataset settings layered on top of
// the teacher's config shape.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config is the process-wide configuration described in §6.3, extended
// with the ambient logging and dataset-default sections every complete
// Go service in this pack carries regardless of spec.md's Non-goals.
type Config struct {
	// DisableNiftiHeaderCheck, if true, makes images_append_compatible
	// (§4.2) log mismatches at debug and report success unconditionally.
	DisableNiftiHeaderCheck bool

	// DisableMetadataCheck does the same for metadata_append_compatible.
	DisableMetadataCheck bool

	// BIDSVersion overrides the default dataset-description version
	// ("1.4.1" per §6.1).
	BIDSVersion string

	// WriterExtension records the Open Question (iii) policy: cmd/bidscore
	// persists it into the dataset_description.json of archives it
	// creates, under the non-standard writerExtension key. The archive's
	// writers always emit ".nii"; this value does not change that.
	WriterExtension string

	Logging  Logging
	Dataset  DatasetDefaults
	Project  Project
}

// Logging configures internal/applog.
type Logging struct {
	Level string // "debug", "info", "warn", "error"
	JSON  bool
}

// DatasetDefaults seed dataset_description.json when an archive writes
// its first incremental (§6.1, §9 SUPPLEMENTED FEATURES).
type DatasetDefaults struct {
	Name    string
	Authors []string
}

// Project mirrors the teacher's Project section: the archive root this
// config applies to, resolved to an absolute path on load.
type Project struct {
	Root string
}

// Default returns the configuration used when no config file is present.
func Default() *Config {
	return &Config{
		DisableNiftiHeaderCheck: false,
		DisableMetadataCheck:    false,
		BIDSVersion:             "1.4.1",
		WriterExtension:         ".nii",
		Logging:                 Logging{Level: "info", JSON: false},
		Dataset:                 DatasetDefaults{Name: "Untitled"},
	}
}

// Load reads a config file, dispatching on extension: ".kdl" uses
// sblinch/kdl-go (the teacher's own format), ".toml" uses
// pelletier/go-toml/v2 (already present in the teacher's go.mod but
// unused there). A missing file is not an error: Default() is returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".kdl":
		if err := parseKDLInto(cfg, string(data)); err != nil {
			return nil, fmt.Errorf("failed to parse KDL config %s: %w", path, err)
		}
	case ".toml":
		if err := parseTOMLInto(cfg, data); err != nil {
			return nil, fmt.Errorf("failed to parse TOML config %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unrecognized config extension for %s (want .kdl or .toml)", path)
	}

	if cfg.Project.Root != "" && !filepath.IsAbs(cfg.Project.Root) {
		abs, err := filepath.Abs(cfg.Project.Root)
		if err == nil {
			cfg.Project.Root = abs
		}
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent,
// following the teacher's validator.go range-checking style.
func (c *Config) Validate() error {
	if c.WriterExtension != ".nii" && c.WriterExtension != ".nii.gz" {
		return fmt.Errorf("writer_extension must be \".nii\" or \".nii.gz\", got %q", c.WriterExtension)
	}
	if c.BIDSVersion == "" {
		return fmt.Errorf("bids_version must not be empty")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging level must be one of debug/info/warn/error, got %q", c.Logging.Level)
	}
	return nil
}
