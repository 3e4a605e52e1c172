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
	"strings"
)

// AbstractMarker precedes the abstract in embedded text.
const AbstractMarker = "Abstract: "

// AbstractOrTitle returns the entity's abstract, or its title when the
// abstract is blank so abstract-less events still embed meaningful text.
func AbstractOrTitle(e *CanonicalEntity) string {
	if strings.TrimSpace(e.Abstract) == "" {
		return e.Title
	}
	return e.Abstract
}

// BuildText renders the text an entity is embedded from.
func BuildText(e *CanonicalEntity) string {
	var b strings.Builder
	b.WriteString("Title: ")
	b.WriteString(e.Title)
	b.WriteString("\nType: ")
	b.WriteString(e.EventType)
	b.WriteString("\n")
	b.WriteString(AbstractMarker)
	b.WriteString(AbstractOrTitle(e))
	return b.String()
}

// DecodeAbstract extracts everything after the first AbstractMarker in text.
// It returns "" when the marker is absent. A title that itself contains the
// marker decodes incorrectly; documents written by NewDocument carry the
// abstract in metadata and do not depend on this.
func DecodeAbstract(text string) string {
	_, abstract, ok := strings.Cut(text, AbstractMarker)
	if !ok {
		return ""
	}
	return abstract
}

// NewDocument builds the indexed document for an entity. defaultYear is
// recorded when the entity has no parseable start time.
func NewDocument(e *CanonicalEntity, defaultYear int) *Document {
	year := defaultYear
	if slot := DeriveTimeslot(e.StartTime); slot.Valid() {
		year = slot.Year()
	}

	return &Document{
		Id:   IDFromContent(e.NormalizedTitle),
		Text: BuildText(e),
		Metadata: Metadata{
			MetaTitle:             e.Title,
			MetaNormalizedTitle:   e.NormalizedTitle,
			MetaAuthors:           e.Authors,
			MetaAffiliation:       e.Affiliation,
			MetaSession:           e.Session,
			MetaEventType:         e.EventType,
			MetaYear:              int64(year),
			MetaPaperURL:          e.PaperURL,
			MetaAltSiteURL:        e.AltSiteURL,
			MetaExternalReviewURL: e.ExternalReviewURL,
			MetaStartTime:         e.StartTime,
			MetaDay:               e.Day,
			MetaAMPM:              e.AMPM,
			MetaAbstract:          AbstractOrTitle(e),
		},
	}
}

// ResultFromCandidate formats an index candidate for callers. The abstract
// is read from metadata and only decoded from the text when metadata lacks it.
func ResultFromCandidate(c *Candidate) SearchResult {
	md := c.Metadata
	abstract := md.String(MetaAbstract)
	if !md.Has(MetaAbstract) {
		abstract = DecodeAbstract(c.Text)
	}

	return SearchResult{
		ID:                c.Id.String(),
		Title:             md.String(MetaTitle),
		Abstract:          abstract,
		Authors:           md.String(MetaAuthors),
		Affiliation:       md.String(MetaAffiliation),
		Session:           md.String(MetaSession),
		EventType:         md.String(MetaEventType),
		StartTime:         md.String(MetaStartTime),
		Day:               md.String(MetaDay),
		AMPM:              md.String(MetaAMPM),
		PaperURL:          md.String(MetaPaperURL),
		AltSiteURL:        md.String(MetaAltSiteURL),
		ExternalReviewURL: md.String(MetaExternalReviewURL),
		Distance:          c.Distance,
	}
}
