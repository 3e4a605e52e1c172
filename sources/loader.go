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
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/poiesic/eventscout/ingestion"
)

// FileReport describes one source file of a load.
type FileReport struct {
	Path    string
	Rows    int
	Skipped bool
}

// LoadReport describes a completed load.
type LoadReport struct {
	Files []FileReport
	Rows  int
}

// FileStatus reports whether a source file is present.
type FileStatus struct {
	Path     string  `json:"path"`
	Optional bool    `json:"optional"`
	Exists   bool    `json:"exists"`
	SizeMB   float64 `json:"size_mb,omitempty"`
}

// Loader reads the sources of a manifest.
type Loader struct {
	logger *slog.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader) error

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) error {
		if logger == nil {
			logger = slog.Default()
		}
		l.logger = logger.With("component", "sources")
		return nil
	}
}

// NewLoader creates a Loader.
func NewLoader(opts ...LoaderOption) (*Loader, error) {
	l := &Loader{
		logger: slog.Default().With("component", "sources"),
	}
	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Load reads every source in manifest order and concatenates the rows.
// Missing optional sources are skipped.
func (l *Loader) Load(ctx context.Context, m *Manifest) ([]ingestion.Row, LoadReport, error) {
	var report LoadReport
	if err := m.Validate(); err != nil {
		return nil, report, err
	}

	var rows []ingestion.Row
	for _, src := range m.Sources {
		if err := ctx.Err(); err != nil {
			return nil, report, err
		}

		fileRows, err := l.loadSource(src)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				if src.Optional {
					l.logger.Info("skipping missing optional source", "path", src.Path)
					report.Files = append(report.Files, FileReport{Path: src.Path, Skipped: true})
					continue
				}
				return nil, report, fmt.Errorf("%w: %s", ErrMissingSource, src.Path)
			}
			return nil, report, err
		}

		l.logger.Info("loaded source", "path", src.Path, "rows", len(fileRows))
		report.Files = append(report.Files, FileReport{Path: src.Path, Rows: len(fileRows)})
		rows = append(rows, fileRows...)
	}

	report.Rows = len(rows)
	return rows, report, nil
}

func (l *Loader) loadSource(src Source) ([]ingestion.Row, error) {
	format, err := src.format()
	if err != nil {
		return nil, err
	}

	f, err := os.Open(src.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	comma := ','
	if format == FormatTSV {
		comma = '\t'
	}
	rows, err := ReadRows(f, comma)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", src.Path, err)
	}
	return rows, nil
}

// ReadRows parses delimited text whose first record is the header.
// Empty cells are left out of the row so they read as missing values.
// Rows with no non-empty cell are dropped.
func ReadRows(r io.Reader, comma rune) ([]ingestion.Row, error) {
	reader := csv.NewReader(r)
	reader.Comma = comma
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, err
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	var rows []ingestion.Row
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		row := make(ingestion.Row, len(header))
		for j, val := range record {
			if j >= len(header) || header[j] == "" {
				continue
			}
			if strings.TrimSpace(val) == "" {
				continue
			}
			row[header[j]] = val
		}
		if len(row) == 0 {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Stat reports the presence and size of every source in the manifest.
func Stat(m *Manifest) []FileStatus {
	out := make([]FileStatus, 0, len(m.Sources))
	for _, src := range m.Sources {
		st := FileStatus{Path: src.Path, Optional: src.Optional}
		if info, err := os.Stat(src.Path); err == nil && !info.IsDir() {
			st.Exists = true
			st.SizeMB = float64(info.Size()*100/(1024*1024)) / 100
		}
		out = append(out, st)
	}
	return out
}
