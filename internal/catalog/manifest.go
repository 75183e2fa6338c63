package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/duckmesh/duckviz/internal/query/duckdb"
)

type Source string

const (
	SourceFile     Source = "file"
	SourceObject   Source = "s3"
	SourcePostgres Source = "postgres"

	DefaultPostgresRowLimit = 10000
)

var datasetNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// Entry declares one dataset. Path is used by file sources, Key by object
// store sources and Table by postgres sources. Sheet picks the worksheet of
// an xlsx file and defaults to the first.
type Entry struct {
	Name   string `toml:"name" yaml:"name" json:"name"`
	Source Source `toml:"source" yaml:"source" json:"source"`
	Path   string `toml:"path,omitempty" yaml:"path,omitempty" json:"path,omitempty"`
	Key    string `toml:"key,omitempty" yaml:"key,omitempty" json:"key,omitempty"`
	Table  string `toml:"table,omitempty" yaml:"table,omitempty" json:"table,omitempty"`
	Format string `toml:"format,omitempty" yaml:"format,omitempty" json:"format,omitempty"`
	Limit  int    `toml:"limit,omitempty" yaml:"limit,omitempty" json:"limit,omitempty"`
	Sheet  string `toml:"sheet,omitempty" yaml:"sheet,omitempty" json:"sheet,omitempty"`
}

type Manifest struct {
	Datasets []Entry `toml:"datasets" yaml:"datasets" json:"datasets"`
	// Dir is the directory relative file paths resolve against.
	Dir string `toml:"-" yaml:"-" json:"-"`
}

// LoadManifest reads a .toml, .yaml or .yml manifest file.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read dataset manifest: %w", err)
	}
	manifest, err := ParseManifest(data, filepath.Ext(path))
	if err != nil {
		return Manifest{}, fmt.Errorf("dataset manifest %q: %w", path, err)
	}
	manifest.Dir = filepath.Dir(path)
	return manifest, nil
}

func ParseManifest(data []byte, format string) (Manifest, error) {
	var manifest Manifest
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "toml":
		if _, err := toml.Decode(string(data), &manifest); err != nil {
			return Manifest{}, fmt.Errorf("decode toml: %w", err)
		}
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &manifest); err != nil {
			return Manifest{}, fmt.Errorf("decode yaml: %w", err)
		}
	default:
		return Manifest{}, fmt.Errorf("unsupported manifest format %q", format)
	}
	if err := manifest.Validate(); err != nil {
		return Manifest{}, err
	}
	return manifest, nil
}

func (m Manifest) Validate() error {
	seen := make(map[string]struct{}, len(m.Datasets))
	for i, entry := range m.Datasets {
		if err := entry.Validate(); err != nil {
			return fmt.Errorf("dataset %d: %w", i, err)
		}
		if _, exists := seen[entry.Name]; exists {
			return fmt.Errorf("duplicate dataset %q", entry.Name)
		}
		seen[entry.Name] = struct{}{}
	}
	return nil
}

func (e Entry) Validate() error {
	if !datasetNamePattern.MatchString(e.Name) {
		return fmt.Errorf("invalid dataset name %q", e.Name)
	}
	if e.Limit < 0 {
		return fmt.Errorf("dataset %q: limit must be >= 0", e.Name)
	}
	switch e.Source {
	case SourceFile:
		if strings.TrimSpace(e.Path) == "" {
			return fmt.Errorf("dataset %q: path is required for file sources", e.Name)
		}
	case SourceObject:
		if strings.TrimSpace(e.Key) == "" {
			return fmt.Errorf("dataset %q: key is required for s3 sources", e.Name)
		}
	case SourcePostgres:
		if strings.TrimSpace(e.Table) == "" {
			return fmt.Errorf("dataset %q: table is required for postgres sources", e.Name)
		}
		return nil
	default:
		return fmt.Errorf("dataset %q: unknown source %q", e.Name, e.Source)
	}
	_, err := e.format()
	return err
}

func (e Entry) format() (duckdb.Format, error) {
	if e.Format != "" {
		switch format := duckdb.Format(strings.ToLower(e.Format)); format {
		case duckdb.FormatCSV, duckdb.FormatJSON, duckdb.FormatParquet, duckdb.FormatXLSX:
			return format, nil
		default:
			return "", fmt.Errorf("dataset %q: unsupported format %q", e.Name, e.Format)
		}
	}
	location := e.Path
	if e.Source == SourceObject {
		location = e.Key
	}
	return duckdb.FormatFromPath(location)
}
