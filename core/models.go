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

package core

import (
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for indexed documents.
// It is derived from the normalized title so it is stable across ingestion runs.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// String renders the ID as fixed-width lowercase hex.
func (id ID) String() string {
	return fmt.Sprintf("%016x", uint64(id))
}

// ParseID parses the output of ID.String.
func ParseID(s string) (ID, error) {
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	return ID(v), nil
}

// RawRecord is one row from one source feed after normalization.
// Session and Affiliation hold the trimmed, non-empty tokens of the
// source's multi-valued field.
type RawRecord struct {
	Title             string
	Authors           string
	Abstract          string
	EventType         string
	Session           []string
	Affiliation       []string
	StartTime         string
	PaperURL          string
	AltSiteURL        string
	ExternalReviewURL string
}

// CanonicalEntity is one deduplicated event, keyed by NormalizedTitle.
// Session and Affiliation are sorted, deduplicated and joined with "; ".
type CanonicalEntity struct {
	NormalizedTitle   string
	Title             string
	Authors           string
	Abstract          string
	EventType         string
	Session           string
	Affiliation       string
	StartTime         string
	PaperURL          string
	AltSiteURL        string
	ExternalReviewURL string
	Day               string // YYYY-MM-DD, empty when StartTime is unparseable
	AMPM              string // "AM", "PM" or empty
}

// Metadata is a flat map of scalar values (string, integer, float, bool).
type Metadata map[string]any

// String returns the value stored under key if it is a string.
func (m Metadata) String(key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

// Has reports whether key is present.
func (m Metadata) Has(key string) bool {
	if m == nil {
		return false
	}
	_, ok := m[key]
	return ok
}

// Metadata keys written for every indexed document.
const (
	MetaTitle             = "title"
	MetaNormalizedTitle   = "normalized_title"
	MetaAuthors           = "authors"
	MetaAffiliation       = "affiliation"
	MetaSession           = "session"
	MetaEventType         = "event_type"
	MetaYear              = "year"
	MetaPaperURL          = "paper_url"
	MetaAltSiteURL        = "alt_site_url"
	MetaExternalReviewURL = "external_review_url"
	MetaStartTime         = "start_time"
	MetaDay               = "day"
	MetaAMPM              = "ampm"
	MetaAbstract          = "abstract"
)

// Document is the unit stored in the vector index.
type Document struct {
	Id       ID
	Text     string
	Metadata Metadata
	Vector   []float32 // Embedding vector (populated before storage)
}

// Candidate is a document returned from the vector index.
// Distance is zero for unranked scans.
type Candidate struct {
	Id       ID
	Text     string
	Metadata Metadata
	Distance float64
}

// SearchResult is returned to search callers.
type SearchResult struct {
	ID                string  `json:"id"`
	Title             string  `json:"title"`
	Abstract          string  `json:"abstract"`
	Authors           string  `json:"authors"`
	Affiliation       string  `json:"affiliation"`
	Session           string  `json:"session"`
	EventType         string  `json:"event_type,omitempty"`
	StartTime         string  `json:"start_time,omitempty"`
	Day               string  `json:"day,omitempty"`
	AMPM              string  `json:"ampm,omitempty"`
	PaperURL          string  `json:"paper_url"`
	AltSiteURL        string  `json:"alt_site_url,omitempty"`
	ExternalReviewURL string  `json:"external_review_url"`
	Distance          float64 `json:"distance"`
}

// FilterOptions lists the distinct values observed in the index for each
// filterable field.
type FilterOptions struct {
	Affiliations []string `json:"affiliations"`
	Authors      []string `json:"authors"`
	Sessions     []string `json:"sessions"`
	Days         []string `json:"days"`
	AMPM         []string `json:"ampm"`
}

// CollectionStatus describes the state of an index collection.
type CollectionStatus struct {
	Name   string `json:"name"`
	Exists bool   `json:"exists"`
	Count  int    `json:"count"`
}
