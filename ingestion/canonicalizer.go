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
	"github.com/poiesic/eventscout/core"
)

// CanonicalizeReport counts the records grouped by Canonicalize.
type CanonicalizeReport struct {
	Input  int
	Output int
}

// canonicalGroup accumulates the records that share a normalized title.
type canonicalGroup struct {
	entity       *core.CanonicalEntity
	sessions     [][]string
	affiliations [][]string
}

// Canonicalize groups records by normalized title into one entity per
// distinct event. Scalar fields come from the first record of each group in
// input order, empty or not. Session and Affiliation become the sorted,
// deduplicated union of every contributing record's tokens. Entities are returned in order of
// first appearance and Day and AMPM are derived from the chosen start time.
func Canonicalize(records []*core.RawRecord) ([]*core.CanonicalEntity, CanonicalizeReport) {
	report := CanonicalizeReport{Input: len(records)}

	groups := make(map[string]*canonicalGroup)
	order := make([]string, 0)

	for _, rec := range records {
		if rec == nil {
			continue
		}
		key := core.NormalizeTitle(rec.Title)
		if key == "" {
			continue
		}

		g, ok := groups[key]
		if !ok {
			g = &canonicalGroup{entity: &core.CanonicalEntity{
				NormalizedTitle:   key,
				Title:             rec.Title,
				Authors:           rec.Authors,
				Abstract:          rec.Abstract,
				EventType:         rec.EventType,
				StartTime:         rec.StartTime,
				PaperURL:          rec.PaperURL,
				AltSiteURL:        rec.AltSiteURL,
				ExternalReviewURL: rec.ExternalReviewURL,
			}}
			groups[key] = g
			order = append(order, key)
		}

		g.sessions = append(g.sessions, rec.Session)
		g.affiliations = append(g.affiliations, rec.Affiliation)
	}

	entities := make([]*core.CanonicalEntity, 0, len(order))
	for _, key := range order {
		g := groups[key]
		e := g.entity
		e.Session = core.JoinTokenSet(g.sessions...)
		e.Affiliation = core.JoinTokenSet(g.affiliations...)

		slot := core.DeriveTimeslot(e.StartTime)
		e.Day = slot.Day
		e.AMPM = slot.AMPM

		entities = append(entities, e)
	}

	report.Output = len(entities)
	return entities, report
}
