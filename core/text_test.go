package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildText(t *testing.T) {
	e := &CanonicalEntity{
		Title:     "Sparse Transformers",
		EventType: "Poster",
		Abstract:  "We study sparsity.",
	}
	assert.Equal(t, "Title: Sparse Transformers\nType: Poster\nAbstract: We study sparsity.", BuildText(e))
}

func TestBuildText_AbstractFallback(t *testing.T) {
	e := &CanonicalEntity{Title: "Foo", EventType: "Talk", Abstract: "  "}
	text := BuildText(e)
	assert.Contains(t, text, "Abstract: Foo")
	assert.Equal(t, "Foo", DecodeAbstract(text))
}

func TestDecodeAbstract(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"marker present", "Title: A\nType: B\nAbstract: hello world", "hello world"},
		{"marker absent", "Title: A\nType: B", ""},
		{"multi-line abstract", "Title: A\nAbstract: line one\nline two", "line one\nline two"},
		{"marker inside title", "Title: Abstract: Tricks\nType: B\nAbstract: real", "Tricks\nType: B\nAbstract: real"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecodeAbstract(tt.text))
		})
	}
}

func TestNewDocument(t *testing.T) {
	e := &CanonicalEntity{
		NormalizedTitle: "foo",
		Title:           "Foo",
		EventType:       "Oral",
		Affiliation:     "Harvard; MIT",
		StartTime:       "2024-12-03T14:00:00",
		Day:             "2024-12-03",
		AMPM:            PM,
	}

	doc := NewDocument(e, 2025)
	require.NoError(t, ValidateDocument(doc))
	assert.Equal(t, IDFromContent("foo"), doc.Id)
	assert.Equal(t, "Foo", doc.Metadata[MetaAbstract], "abstract side channel holds the embedded fallback")
	assert.Equal(t, int64(2024), doc.Metadata[MetaYear], "year follows start time")
	assert.Equal(t, "Harvard; MIT", doc.Metadata[MetaAffiliation])

	e.StartTime, e.Day, e.AMPM = "", "", ""
	doc = NewDocument(e, 2025)
	assert.Equal(t, int64(2025), doc.Metadata[MetaYear], "year falls back to default")
}

func TestResultFromCandidate(t *testing.T) {
	t.Run("abstract from metadata", func(t *testing.T) {
		c := &Candidate{
			Id:   7,
			Text: "Title: Abstract: Tricks\nType: B\nAbstract: real",
			Metadata: Metadata{
				MetaTitle:    "Abstract: Tricks",
				MetaAbstract: "real",
			},
			Distance: 0.25,
		}
		r := ResultFromCandidate(c)
		assert.Equal(t, "real", r.Abstract)
		assert.Equal(t, ID(7).String(), r.ID)
		assert.Equal(t, 0.25, r.Distance)
	})

	t.Run("abstract decoded from text when metadata lacks it", func(t *testing.T) {
		c := &Candidate{
			Text:     "Title: A\nType: B\nAbstract: decoded",
			Metadata: Metadata{MetaTitle: "A"},
		}
		assert.Equal(t, "decoded", ResultFromCandidate(c).Abstract)
	})
}
