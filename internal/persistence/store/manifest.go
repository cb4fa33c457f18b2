package store

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// FormatVersion is the save directory layout version written to manifests.
const FormatVersion = 1

const manifestName = "manifest.json"

//go:embed manifest.schema.json
var manifestSchemaJSON string

var (
	manifestSchemaOnce sync.Once
	manifestSchema     *jsonschema.Schema
	manifestSchemaErr  error
)

// Manifest describes one committed save.
type Manifest struct {
	FormatVersion int            `json:"format_version"`
	SaveID        string         `json:"save_id"`
	WorldID       string         `json:"world_id"`
	CreatedAt     string         `json:"created_at"`
	Categories    []CategoryInfo `json:"categories"`
	Files         []string       `json:"files,omitempty"`
}

type CategoryInfo struct {
	Name            string `json:"name"`
	Records         int    `json:"records"`
	Bytes           int64  `json:"bytes"`
	CompressedBytes int64  `json:"compressed_bytes,omitempty"`
}

func (m Manifest) Category(name string) (CategoryInfo, bool) {
	for _, c := range m.Categories {
		if c.Name == name {
			return c, true
		}
	}
	return CategoryInfo{}, false
}

// TotalRecords is the number of records across all categories.
func (m Manifest) TotalRecords() int {
	n := 0
	for _, c := range m.Categories {
		n += c.Records
	}
	return n
}

func (m Manifest) HasFile(name string) bool {
	for _, f := range m.Files {
		if f == name {
			return true
		}
	}
	return false
}

func compiledManifestSchema() (*jsonschema.Schema, error) {
	manifestSchemaOnce.Do(func() {
		manifestSchema, manifestSchemaErr = jsonschema.CompileString("manifest.schema.json", manifestSchemaJSON)
	})
	return manifestSchema, manifestSchemaErr
}

// ValidateManifest checks raw manifest JSON against the embedded schema.
func ValidateManifest(raw []byte) error {
	s, err := compiledManifestSchema()
	if err != nil {
		return fmt.Errorf("compile manifest schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("manifest: %w", err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("manifest: %w", err)
	}
	return nil
}

// ReadManifest reads and validates dir/manifest.json.
func ReadManifest(dir string) (Manifest, error) {
	var m Manifest
	raw, err := os.ReadFile(filepath.Join(dir, manifestName))
	if err != nil {
		return m, err
	}
	if err := ValidateManifest(raw); err != nil {
		return m, err
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return m, fmt.Errorf("manifest: %w", err)
	}
	if m.FormatVersion > FormatVersion {
		return m, fmt.Errorf("manifest: format version %d is newer than %d", m.FormatVersion, FormatVersion)
	}
	return m, nil
}
