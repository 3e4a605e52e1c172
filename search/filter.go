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

package search

import (
	"fmt"
	"slices"
	"strings"

	"github.com/poiesic/eventscout/core"
)

// Filter keys accepted by ParseFilters.
const (
	FilterAffiliation = "affiliation"
	FilterAuthor      = "author"
	FilterAuthors     = "authors" // alias of FilterAuthor
	FilterSession     = "session"
	FilterDay         = "day"
	FilterAMPM        = "ampm"
)

// FilterValue is a filter given either as one string or as a set of
// strings. Both shapes are read through Values.
type FilterValue struct {
	set    bool
	values []string
}

// Scalar returns a single-valued filter.
func Scalar(value string) FilterValue {
	return FilterValue{values: []string{value}}
}

// Set returns a filter matching any of values.
func Set(values ...string) FilterValue {
	return FilterValue{set: true, values: slices.Clone(values)}
}

// IsSet reports whether the value was given as a list.
func (v FilterValue) IsSet() bool {
	return v.set
}

// Values returns the trimmed, non-empty alternatives.
func (v FilterValue) Values() []string {
	out := make([]string, 0, len(v.values))
	for _, s := range v.values {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Active reports whether the value constrains anything. An absent filter,
// an empty string and an empty list are all inactive.
func (v FilterValue) Active() bool {
	return len(v.Values()) > 0
}

func (v FilterValue) String() string {
	if v.set {
		return fmt.Sprintf("%q", v.values)
	}
	if len(v.values) == 0 {
		return ""
	}
	return v.values[0]
}

// ParseFilterValue accepts a string, a []string or a []any holding only
// strings. Anything else fails with core.ErrInvalidFilter.
func ParseFilterValue(raw any) (FilterValue, error) {
	switch x := raw.(type) {
	case string:
		return Scalar(x), nil
	case []string:
		return Set(x...), nil
	case []any:
		values := make([]string, len(x))
		for i, item := range x {
			s, ok := item.(string)
			if !ok {
				return FilterValue{}, fmt.Errorf("%w: list item %d is %T, want string", core.ErrInvalidFilter, i, item)
			}
			values[i] = s
		}
		return Set(values...), nil
	default:
		return FilterValue{}, fmt.Errorf("%w: value is %T, want string or list of strings", core.ErrInvalidFilter, raw)
	}
}

// Filters are exact constraints applied to retrieved candidates. A zero
// field places no constraint.
type Filters struct {
	Affiliation FilterValue
	Author      FilterValue
	Session     FilterValue
	Day         FilterValue
	AMPM        FilterValue
}

// ParseFilters converts a loosely typed filter map, such as decoded JSON,
// into Filters. Unknown keys and malformed values fail with
// core.ErrInvalidFilter. Values given under both author and authors are
// OR-ed together.
func ParseFilters(raw map[string]any) (Filters, error) {
	var (
		f          Filters
		seenAuthor bool
	)
	for key, value := range raw {
		if value == nil {
			continue
		}
		v, err := ParseFilterValue(value)
		if err != nil {
			return Filters{}, fmt.Errorf("filter %q: %w", key, err)
		}
		switch key {
		case FilterAffiliation:
			f.Affiliation = v
		case FilterAuthor, FilterAuthors:
			if seenAuthor {
				// Both spellings given: either may match
				values := append(f.Author.Values(), v.Values()...)
				slices.Sort(values)
				v = Set(values...)
			}
			f.Author = v
			seenAuthor = true
		case FilterSession:
			f.Session = v
		case FilterDay:
			f.Day = v
		case FilterAMPM:
			f.AMPM = v
		default:
			return Filters{}, fmt.Errorf("%w: unknown filter %q", core.ErrInvalidFilter, key)
		}
	}
	return f, nil
}

// Active reports whether any filter constrains results.
func (f Filters) Active() bool {
	return f.Affiliation.Active() || f.Author.Active() || f.Session.Active() ||
		f.Day.Active() || f.AMPM.Active()
}

// Matcher is a compiled Filters, ready to test many candidates.
type Matcher struct {
	affiliation []string
	author      []string
	session     []string
	days        []dayFilter
	ampm        []string
}

type dayFilter struct {
	day    string
	bucket string // AM, PM or "" for the whole day
}

// Compile lower-cases substring filters and splits day filters into date
// and optional AM/PM bucket.
func (f Filters) Compile() *Matcher {
	lower := func(v FilterValue) []string {
		values := v.Values()
		for i := range values {
			values[i] = strings.ToLower(values[i])
		}
		return values
	}

	m := &Matcher{
		affiliation: lower(f.Affiliation),
		author:      lower(f.Author),
		session:     lower(f.Session),
	}
	for _, value := range f.Day.Values() {
		m.days = append(m.days, parseDayFilter(value))
	}
	for _, value := range f.AMPM.Values() {
		m.ampm = append(m.ampm, strings.ToUpper(value))
	}
	return m
}

// parseDayFilter splits "<date> AM" or "<date> PM" into its parts. Any
// other value is an exact day.
func parseDayFilter(value string) dayFilter {
	if i := strings.LastIndexByte(value, ' '); i >= 0 {
		switch bucket := strings.ToUpper(strings.TrimSpace(value[i+1:])); bucket {
		case core.AM, core.PM:
			return dayFilter{day: strings.TrimSpace(value[:i]), bucket: bucket}
		}
	}
	return dayFilter{day: value}
}

// Match reports whether metadata satisfies every active filter.
func (m *Matcher) Match(md core.Metadata) bool {
	if !containsAny(md.String(core.MetaAffiliation), m.affiliation) {
		return false
	}
	if !containsAny(md.String(core.MetaAuthors), m.author) {
		return false
	}
	if !containsAny(md.String(core.MetaSession), m.session) {
		return false
	}
	if len(m.days) > 0 && !m.matchDay(md.String(core.MetaDay), md.String(core.MetaAMPM)) {
		return false
	}
	if len(m.ampm) > 0 && !slices.Contains(m.ampm, md.String(core.MetaAMPM)) {
		return false
	}
	return true
}

// matchDay requires a parsed start time; events without one never satisfy
// a day filter.
func (m *Matcher) matchDay(day, ampm string) bool {
	if day == "" {
		return false
	}
	for _, f := range m.days {
		if f.day == day && (f.bucket == "" || f.bucket == ampm) {
			return true
		}
	}
	return false
}

// containsAny reports whether any needle is a substring of the lower-cased
// haystack. No needles means no constraint.
func containsAny(haystack string, needles []string) bool {
	if len(needles) == 0 {
		return true
	}
	haystack = strings.ToLower(haystack)
	for _, needle := range needles {
		if strings.Contains(haystack, needle) {
			return true
		}
	}
	return false
}
