package search

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/poiesic/eventscout/core"
)

// stubIndex serves fixed candidates. docs are in rank order for Nearest and
// storage order for Scan.
type stubIndex struct {
	missing bool
	docs    []*core.Candidate
	err     error

	mu         sync.Mutex
	windows    []int
	scanCalls  atomic.Int32
	countCalls atomic.Int32
}

var _ Index = (*stubIndex)(nil)

func (s *stubIndex) Exists(context.Context) (bool, error) {
	return !s.missing, nil
}

func (s *stubIndex) Nearest(_ context.Context, _ string, k int) ([]*core.Candidate, error) {
	s.mu.Lock()
	s.windows = append(s.windows, k)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.take(k, false), nil
}

func (s *stubIndex) Scan(_ context.Context, limit int) ([]*core.Candidate, error) {
	s.scanCalls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.take(limit, true), nil
}

func (s *stubIndex) Count(context.Context) (int, error) {
	s.countCalls.Add(1)
	return len(s.docs), nil
}

func (s *stubIndex) fetchWindows() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.windows...)
}

func (s *stubIndex) take(n int, zeroDistance bool) []*core.Candidate {
	n = min(n, len(s.docs))
	out := make([]*core.Candidate, n)
	for i := range out {
		c := *s.docs[i]
		if zeroDistance {
			c.Distance = 0
		}
		out[i] = &c
	}
	return out
}

// rankedEvents builds n candidates with increasing distance. Every third
// event is at Stanford; the rest are at MIT.
func rankedEvents(n int) []*core.Candidate {
	docs := make([]*core.Candidate, n)
	for i := range docs {
		affiliation := "MIT"
		if i%3 == 2 {
			affiliation = "Stanford"
		}
		title := fmt.Sprintf("Event %02d", i)
		docs[i] = &core.Candidate{
			Id:   core.IDFromContent(title),
			Text: "Title: " + title + "\nType: Poster\nAbstract: " + title,
			Metadata: core.Metadata{
				core.MetaTitle:       title,
				core.MetaAffiliation: affiliation,
				core.MetaDay:         "2025-12-03",
				core.MetaAMPM:        core.AM,
				core.MetaAbstract:    title,
			},
			Distance: float64(i+1) * 0.05,
		}
	}
	return docs
}

func titles(results []core.SearchResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Title
	}
	return out
}
