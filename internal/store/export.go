// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/census-collector/pkg/types"
)

// Export is the on-disk snapshot of the record store. The YAML form
// carries record definitions without data payloads; the JSON form is
// complete.
type Export struct {
	ExportedAt time.Time            `yaml:"exported_at" json:"exported_at"`
	Records    []types.OutputRecord `yaml:"records" json:"records"`
	Errors     []types.ErrorRecord  `yaml:"errors,omitempty" json:"errors,omitempty"`
}

// ExportFiles writes the full store to storeDir/export/export.yaml and
// export.json and returns the export paths.
func (s *Store) ExportFiles(ctx context.Context) (yamlPath, jsonPath string, err error) {
	records, err := s.Records(ctx, QueryOptions{Limit: 1 << 30})
	if err != nil {
		return "", "", err
	}
	errRecords, err := s.Errors(ctx, 1<<30)
	if err != nil {
		return "", "", err
	}

	exp := Export{
		ExportedAt: time.Now().UTC(),
		Records:    records,
		Errors:     errRecords,
	}

	dir := filepath.Join(s.storeDir, exportDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("creating export directory: %w", err)
	}

	yamlPath = filepath.Join(dir, "export.yaml")
	yamlData, err := yaml.Marshal(exp)
	if err != nil {
		return "", "", fmt.Errorf("marshaling YAML export: %w", err)
	}
	if err := os.WriteFile(yamlPath, yamlData, 0o644); err != nil {
		return "", "", fmt.Errorf("writing %s: %w", yamlPath, err)
	}

	jsonPath = filepath.Join(dir, "export.json")
	jsonData, err := json.MarshalIndent(exp, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("marshaling JSON export: %w", err)
	}
	if err := os.WriteFile(jsonPath, jsonData, 0o644); err != nil {
		return "", "", fmt.Errorf("writing %s: %w", jsonPath, err)
	}

	return yamlPath, jsonPath, nil
}
