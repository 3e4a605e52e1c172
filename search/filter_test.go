package search

import (
	"testing"

	"github.com/poiesic/eventscout/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFilterValue(t *testing.T) {
	t.Run("string is scalar", func(t *testing.T) {
		v, err := ParseFilterValue(" MIT ")
		require.NoError(t, err)
		assert.False(t, v.IsSet())
		assert.Equal(t, []string{"MIT"}, v.Values())
	})

	t.Run("string list is set", func(t *testing.T) {
		v, err := ParseFilterValue([]string{"MIT", "", "Stanford"})
		require.NoError(t, err)
		assert.True(t, v.IsSet())
		assert.Equal(t, []string{"MIT", "Stanford"}, v.Values())
	})

	t.Run("decoded JSON list", func(t *testing.T) {
		v, err := ParseFilterValue([]any{"a", "b"})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, v.Values())
	})

	t.Run("list with non-string item", func(t *testing.T) {
		_, err := ParseFilterValue([]any{"a", 3})
		assert.ErrorIs(t, err, core.ErrInvalidFilter)
	})

	t.Run("number", func(t *testing.T) {
		_, err := ParseFilterValue(42)
		assert.ErrorIs(t, err, core.ErrInvalidFilter)
	})

	t.Run("nested map", func(t *testing.T) {
		_, err := ParseFilterValue(map[string]any{"x": "y"})
		assert.ErrorIs(t, err, core.ErrInvalidFilter)
	})
}

func TestFilterValue_Active(t *testing.T) {
	assert.False(t, FilterValue{}.Active())
	assert.False(t, Scalar("  ").Active())
	assert.False(t, Set().Active())
	assert.True(t, Scalar("x").Active())
	assert.True(t, Set("", "x").Active())
}

func TestParseFilters(t *testing.T) {
	f, err := ParseFilters(map[string]any{
		"affiliation": "MIT",
		"authors":     []any{"Ada"},
		"session":     nil,
		"day":         []string{"2025-12-03 PM"},
		"ampm":        "am",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"MIT"}, f.Affiliation.Values())
	assert.Equal(t, []string{"Ada"}, f.Author.Values())
	assert.False(t, f.Session.Active())
	assert.Equal(t, []string{"2025-12-03 PM"}, f.Day.Values())
	assert.True(t, f.Active())

	_, err = ParseFilters(map[string]any{"venue": "x"})
	assert.ErrorIs(t, err, core.ErrInvalidFilter)

	_, err = ParseFilters(map[string]any{"day": 20251203})
	assert.ErrorIs(t, err, core.ErrInvalidFilter)

	empty, err := ParseFilters(nil)
	require.NoError(t, err)
	assert.False(t, empty.Active())
}

func TestParseFilters_AuthorAndAuthorsMerge(t *testing.T) {
	for i := 0; i < 20; i++ {
		f, err := ParseFilters(map[string]any{
			"author":  "Ada",
			"authors": []any{"Grace", "Alan"},
		})
		require.NoError(t, err)
		assert.True(t, f.Author.IsSet())
		assert.Equal(t, []string{"Ada", "Alan", "Grace"}, f.Author.Values())
	}

	m := Filters{Author: Set("Ada", "Grace")}.Compile()
	assert.True(t, m.Match(eventMeta("", "Grace Hopper", "", "")))
}

func eventMeta(affiliation, authors, session, startTime string) core.Metadata {
	slot := core.DeriveTimeslot(startTime)
	return core.Metadata{
		core.MetaAffiliation: affiliation,
		core.MetaAuthors:     authors,
		core.MetaSession:     session,
		core.MetaStartTime:   startTime,
		core.MetaDay:         slot.Day,
		core.MetaAMPM:        slot.AMPM,
	}
}

func TestMatcher(t *testing.T) {
	afternoon := eventMeta("Harvard; MIT", "Ada Lovelace, Grace Hopper", "Poster Session 3", "2025-12-03T14:00:00")
	undated := eventMeta("Stanford", "Alan Turing", "Oral 1", "")

	tests := []struct {
		name    string
		filters Filters
		md      core.Metadata
		want    bool
	}{
		{"no filters", Filters{}, undated, true},
		{"affiliation substring case-insensitive", Filters{Affiliation: Scalar("mit")}, afternoon, true},
		{"affiliation OR", Filters{Affiliation: Set("Oxford", "harv")}, afternoon, true},
		{"affiliation miss", Filters{Affiliation: Set("Oxford", "ETH")}, afternoon, false},
		{"author substring", Filters{Author: Scalar("hopper")}, afternoon, true},
		{"session substring", Filters{Session: Scalar("poster")}, afternoon, true},
		{"session miss", Filters{Session: Scalar("oral")}, afternoon, false},
		{"day without bucket", Filters{Day: Set("2025-12-03")}, afternoon, true},
		{"day AM excludes afternoon", Filters{Day: Set("2025-12-03 AM")}, afternoon, false},
		{"day PM includes afternoon", Filters{Day: Set("2025-12-03 PM")}, afternoon, true},
		{"day bucket lower case", Filters{Day: Scalar("2025-12-03 pm")}, afternoon, true},
		{"day OR", Filters{Day: Set("2025-12-02", "2025-12-03 PM")}, afternoon, true},
		{"other day", Filters{Day: Scalar("2025-12-04")}, afternoon, false},
		{"undated excluded by day filter", Filters{Day: Scalar("2025-12-03")}, undated, false},
		{"undated kept without day filter", Filters{Affiliation: Scalar("stan")}, undated, true},
		{"ampm normalized", Filters{AMPM: Scalar("pm")}, afternoon, true},
		{"ampm mismatch", Filters{AMPM: Scalar("AM")}, afternoon, false},
		{"all must hold", Filters{Affiliation: Scalar("MIT"), Session: Scalar("oral")}, afternoon, false},
		{"empty filter value is no constraint", Filters{Affiliation: Scalar(""), Day: Set()}, undated, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filters.Compile().Match(tt.md))
		})
	}
}

func TestParseDayFilter(t *testing.T) {
	assert.Equal(t, dayFilter{day: "2025-12-03", bucket: core.AM}, parseDayFilter("2025-12-03 AM"))
	assert.Equal(t, dayFilter{day: "2025-12-03"}, parseDayFilter("2025-12-03"))
	assert.Equal(t, dayFilter{day: "2025-12-03 noon"}, parseDayFilter("2025-12-03 noon"))
}
