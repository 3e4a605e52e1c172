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

package ingestion

import (
	"fmt"
	"math"
	"strings"

	"github.com/poiesic/eventscout/core"
)

// Row is one source row keyed by column name. Values are usually strings;
// anything else is coerced or treated as missing.
type Row map[string]any

// Schema maps RawRecord fields to the column names of a source.
type Schema struct {
	Title             string `yaml:"title"`
	Authors           string `yaml:"authors"`
	Affiliation       string `yaml:"affiliation"`
	Abstract          string `yaml:"abstract"`
	EventType         string `yaml:"event_type"`
	Session           string `yaml:"session"`
	StartTime         string `yaml:"start_time"`
	PaperURL          string `yaml:"paper_url"`
	AltSiteURL        string `yaml:"alt_site_url"`
	ExternalReviewURL string `yaml:"external_review_url"`
}

// DefaultSchema returns the column names used by the NeurIPS exports.
func DefaultSchema() Schema {
	return Schema{
		Title:             "title",
		Authors:           "authors",
		Affiliation:       "affiliation",
		Abstract:          "neurips_abstract",
		EventType:         "neurips_event_type",
		Session:           "neurips_session",
		StartTime:         "neurips_starttime",
		PaperURL:          "neurips_paper_url",
		AltSiteURL:        "neurips_virtualsite_url",
		ExternalReviewURL: "openreview_urls",
	}
}

// Merge returns s with every empty column name taken from defaults.
func (s Schema) Merge(defaults Schema) Schema {
	pick := func(v, d string) string {
		if v == "" {
			return d
		}
		return v
	}
	return Schema{
		Title:             pick(s.Title, defaults.Title),
		Authors:           pick(s.Authors, defaults.Authors),
		Affiliation:       pick(s.Affiliation, defaults.Affiliation),
		Abstract:          pick(s.Abstract, defaults.Abstract),
		EventType:         pick(s.EventType, defaults.EventType),
		Session:           pick(s.Session, defaults.Session),
		StartTime:         pick(s.StartTime, defaults.StartTime),
		PaperURL:          pick(s.PaperURL, defaults.PaperURL),
		AltSiteURL:        pick(s.AltSiteURL, defaults.AltSiteURL),
		ExternalReviewURL: pick(s.ExternalReviewURL, defaults.ExternalReviewURL),
	}
}

// Exclusions drops rows that belong to an excluded sub-event.
// A row is excluded when its session contains any SessionSubstrings entry,
// compared case-insensitively, or its start time begins with any
// StartTimePrefixes entry.
type Exclusions struct {
	SessionSubstrings []string `yaml:"session_substrings"`
	StartTimePrefixes []string `yaml:"start_time_prefixes"`
}

// DefaultExclusions drops the Mexico City satellite venue.
func DefaultExclusions() Exclusions {
	return Exclusions{
		SessionSubstrings: []string{"mexico"},
		StartTimePrefixes: []string{"2025-12-01"},
	}
}

// Excludes reports whether a row with the given raw session and start time
// is excluded.
func (e Exclusions) Excludes(session, startTime string) bool {
	return e.ExcludesSession(session) || e.excludesStartTime(startTime)
}

// ExcludesSession reports whether session matches a session substring.
func (e Exclusions) ExcludesSession(session string) bool {
	lower := strings.ToLower(session)
	for _, sub := range e.SessionSubstrings {
		if sub != "" && strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}

func (e Exclusions) excludesStartTime(startTime string) bool {
	for _, prefix := range e.StartTimePrefixes {
		if prefix != "" && strings.HasPrefix(startTime, prefix) {
			return true
		}
	}
	return false
}

// NormalizeReport counts what Normalize kept and dropped.
type NormalizeReport struct {
	Input    int // rows received
	Excluded int // rows removed by the exclusion filter
	Untitled int // rows dropped for a missing title
	Output   int // records returned
}

// Normalize converts source rows into RawRecords. Excluded rows are removed
// first, then rows without a title. A missing abstract becomes "". Malformed
// values never fail the run; they degrade to empty values.
func Normalize(rows []Row, schema Schema, exclusions Exclusions) ([]*core.RawRecord, NormalizeReport) {
	report := NormalizeReport{Input: len(rows)}
	records := make([]*core.RawRecord, 0, len(rows))

	for _, row := range rows {
		session := stringValue(row[schema.Session])
		startTime := stringValue(row[schema.StartTime])
		if exclusions.Excludes(session, startTime) {
			report.Excluded++
			continue
		}

		title := strings.TrimSpace(stringValue(row[schema.Title]))
		if title == "" {
			report.Untitled++
			continue
		}

		records = append(records, &core.RawRecord{
			Title:             title,
			Authors:           stringValue(row[schema.Authors]),
			Abstract:          stringValue(row[schema.Abstract]),
			EventType:         stringValue(row[schema.EventType]),
			Session:           core.SplitMultiValue(row[schema.Session]),
			Affiliation:       core.SplitMultiValue(row[schema.Affiliation]),
			StartTime:         startTime,
			PaperURL:          stringValue(row[schema.PaperURL]),
			AltSiteURL:        stringValue(row[schema.AltSiteURL]),
			ExternalReviewURL: stringValue(row[schema.ExternalReviewURL]),
		})
	}

	report.Output = len(records)
	return records, report
}

// stringValue coerces a scalar column value to a trimmed string.
// Missing values, NaN and non-scalars become "".
func stringValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		if math.IsNaN(x) {
			return ""
		}
		return fmt.Sprint(x)
	case float32:
		if math.IsNaN(float64(x)) {
			return ""
		}
		return fmt.Sprint(x)
	case int, int32, int64, bool:
		return fmt.Sprint(x)
	case fmt.Stringer:
		return strings.TrimSpace(x.String())
	default:
		return ""
	}
}
