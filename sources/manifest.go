// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sources

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/poiesic/eventscout/ingestion"
	"gopkg.in/yaml.v3"
)

// Source file formats.
const (
	FormatCSV = "csv"
	FormatTSV = "tsv"
)

// Default export file names.
const (
	PapersFile = "papercopilot_neurips2025_merged_openreview.csv"
	EventsFile = "neurips_2025_enriched_events.csv"
	ExpoFile   = "neurips_2025_expo_events.csv"
)

// Source is one tabular export file.
type Source struct {
	Path     string `yaml:"path"`
	Format   string `yaml:"format,omitempty"`
	Optional bool   `yaml:"optional,omitempty"`
}

// format returns the declared format or the one implied by the extension.
func (s Source) format() (string, error) {
	f := strings.ToLower(s.Format)
	if f == "" {
		f = strings.TrimPrefix(strings.ToLower(filepath.Ext(s.Path)), ".")
	}
	switch f {
	case FormatCSV, FormatTSV:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, s.Path)
	}
}

// Manifest describes an ingestion's inputs.
type Manifest struct {
	Schema     *ingestion.Schema     `yaml:"schema,omitempty"`
	Exclusions *ingestion.Exclusions `yaml:"exclusions,omitempty"`
	Sources    []Source              `yaml:"sources"`
}

// DefaultManifest returns the NeurIPS layout under dir: the paper export is
// required, the event and expo exports are optional.
func DefaultManifest(dir string) *Manifest {
	return &Manifest{
		Sources: []Source{
			{Path: filepath.Join(dir, PapersFile)},
			{Path: filepath.Join(dir, EventsFile), Optional: true},
			{Path: filepath.Join(dir, ExpoFile), Optional: true},
		},
	}
}

// LoadManifest reads a YAML manifest. Relative source paths are resolved
// against the manifest's directory.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	m, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	base := filepath.Dir(path)
	for i := range m.Sources {
		if !filepath.IsAbs(m.Sources[i].Path) {
			m.Sources[i].Path = filepath.Join(base, m.Sources[i].Path)
		}
	}
	return m, nil
}

// ParseManifest decodes and validates a YAML manifest.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks that every source has a path and a readable format.
func (m *Manifest) Validate() error {
	if len(m.Sources) == 0 {
		return fmt.Errorf("%w: no sources", ErrInvalidManifest)
	}
	for i, src := range m.Sources {
		if strings.TrimSpace(src.Path) == "" {
			return fmt.Errorf("%w: source %d has no path", ErrInvalidManifest, i)
		}
		if _, err := src.format(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidManifest, err)
		}
	}
	return nil
}

// IngestionSchema returns the manifest's schema merged with the default
// NeurIPS columns.
func (m *Manifest) IngestionSchema() ingestion.Schema {
	if m.Schema == nil {
		return ingestion.DefaultSchema()
	}
	return m.Schema.Merge(ingestion.DefaultSchema())
}

// IngestionExclusions returns the manifest's exclusions, or the defaults
// when the manifest names none.
func (m *Manifest) IngestionExclusions() ingestion.Exclusions {
	if m.Exclusions == nil {
		return ingestion.DefaultExclusions()
	}
	return *m.Exclusions
}
