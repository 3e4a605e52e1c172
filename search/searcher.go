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
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/poiesic/eventscout/core"
	"github.com/poiesic/eventscout/metrics"
)

const (
	// DefaultLimit is the result count used when a request leaves it unset.
	DefaultLimit = 10

	// DefaultOverfetchFactor multiplies the requested count in semantic mode.
	DefaultOverfetchFactor = 5

	// DefaultScanCap bounds the bulk fetch in scan mode.
	DefaultScanCap = 10000

	// Wildcard selects scan mode.
	Wildcard = "*"
)

// Index is the retrieval contract the Searcher consumes.
// *index.Collection satisfies it.
type Index interface {
	Exists(ctx context.Context) (bool, error)
	Nearest(ctx context.Context, text string, k int) ([]*core.Candidate, error)
	Scan(ctx context.Context, limit int) ([]*core.Candidate, error)
	Count(ctx context.Context) (int, error)
}

// Request describes one search.
type Request struct {
	// Query is embedded for semantic mode. Empty or "*" selects scan mode.
	Query string

	// Limit is the maximum number of results. Zero means DefaultLimit.
	Limit int

	// Filters are applied to every candidate after retrieval.
	Filters Filters

	// Threshold, when set, keeps only candidates with Distance <= *Threshold.
	// Smaller distances are closer.
	Threshold *float64
}

// ScanMode reports whether the request browses metadata instead of
// ranking by similarity.
func (r Request) ScanMode() bool {
	q := strings.TrimSpace(r.Query)
	return q == "" || q == Wildcard
}

// Searcher answers Requests against an Index. It holds no per-request
// state and is safe for concurrent use.
type Searcher struct {
	index       Index
	overfetch   int
	scanCap     int
	widenRounds int
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithOverfetchFactor sets the semantic-mode fetch multiplier.
// Default is DefaultOverfetchFactor.
func WithOverfetchFactor(factor int) Option {
	return func(s *Searcher) error {
		if factor < 1 {
			return fmt.Errorf("%w: overfetch factor must be at least 1, got %d", ErrInvalidOption, factor)
		}
		s.overfetch = factor
		return nil
	}
}

// WithScanCap bounds the number of candidates fetched in scan mode.
// Default is DefaultScanCap.
func WithScanCap(limit int) Option {
	return func(s *Searcher) error {
		if limit < 1 {
			return fmt.Errorf("%w: scan cap must be positive, got %d", ErrInvalidOption, limit)
		}
		s.scanCap = limit
		return nil
	}
}

// WithWidening enables adaptive widening in semantic mode. When filtering
// leaves fewer than the requested results and the fetch window was full,
// the window is doubled and the query re-run, up to maxRounds times or
// until the window covers the whole index. Default is 0, disabled.
func WithWidening(maxRounds int) Option {
	return func(s *Searcher) error {
		if maxRounds < 0 {
			return fmt.Errorf("%w: widening rounds must not be negative, got %d", ErrInvalidOption, maxRounds)
		}
		s.widenRounds = maxRounds
		return nil
	}
}

// WithMetrics records search metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Searcher) error {
		s.metrics = m
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(idx Index, opts ...Option) (*Searcher, error) {
	if idx == nil {
		return nil, ErrIndexRequired
	}

	s := &Searcher{
		index:     idx,
		overfetch: DefaultOverfetchFactor,
		scanCap:   DefaultScanCap,
		logger:    slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "searcher")

	return s, nil
}

// Search runs req and returns at most req.Limit results. No matches is an
// empty result, not an error. A collection that has not been built yet
// fails with core.ErrNotInitialized.
func (s *Searcher) Search(ctx context.Context, req Request) ([]core.SearchResult, error) {
	return s.SearchWithMonitor(ctx, req, nil)
}

// SearchWithMonitor runs req, reporting each stage to monitor.
func (s *Searcher) SearchWithMonitor(ctx context.Context, req Request, monitor SearchMonitor) ([]core.SearchResult, error) {
	// Use noop monitor if none provided
	if monitor == nil {
		monitor = &noopMonitor{}
	}

	mode := metrics.ModeSemantic
	if req.ScanMode() {
		mode = metrics.ModeScan
	}

	start := time.Now()
	results, err := s.search(ctx, req, mode, monitor)
	s.metrics.ObserveSearch(mode, err, time.Since(start), len(results))
	if err != nil {
		return nil, err
	}

	monitor.Finish(results)
	return results, nil
}

func (s *Searcher) search(ctx context.Context, req Request, mode string, monitor SearchMonitor) ([]core.SearchResult, error) {
	if req.Limit < 0 {
		return nil, fmt.Errorf("%w: limit must not be negative, got %d", core.ErrInvalidRequest, req.Limit)
	}
	if req.Limit == 0 {
		req.Limit = DefaultLimit
	}
	if req.Threshold != nil && math.IsNaN(*req.Threshold) {
		return nil, fmt.Errorf("%w: threshold is NaN", core.ErrInvalidRequest)
	}

	exists, err := s.index.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, core.ErrNotInitialized
	}

	monitor.Start(req, mode)
	matcher := req.Filters.Compile()

	if mode == metrics.ModeScan {
		return s.scan(ctx, req, matcher, monitor)
	}
	return s.semantic(ctx, req, matcher, monitor)
}

// scan browses metadata in index order. Every result has distance 0, so a
// threshold never removes anything here.
func (s *Searcher) scan(ctx context.Context, req Request, matcher *Matcher, monitor SearchMonitor) ([]core.SearchResult, error) {
	candidates, err := s.index.Scan(ctx, s.scanCap)
	if err != nil {
		s.logger.Error("error scanning index", "err", err)
		return nil, err
	}
	monitor.AfterFetch(s.scanCap, candidates)
	s.metrics.AddFetched(metrics.ModeScan, len(candidates))

	results := make([]core.SearchResult, 0, min(req.Limit, len(candidates)))
	dropped := 0
	for _, c := range candidates {
		if len(results) == req.Limit {
			break
		}
		if !matcher.Match(c.Metadata) {
			monitor.FilterRejected(c)
			dropped++
			continue
		}
		result := core.ResultFromCandidate(c)
		result.Distance = 0
		results = append(results, result)
	}
	s.metrics.AddDropped(metrics.StageFilter, dropped)

	s.logger.Debug("scan complete", "fetched", len(candidates), "results", len(results))
	return results, nil
}

// semantic ranks by distance, then filters in rank order without
// re-ranking. With widening enabled, a window that filtering drained is
// doubled and re-queried.
func (s *Searcher) semantic(ctx context.Context, req Request, matcher *Matcher, monitor SearchMonitor) ([]core.SearchResult, error) {
	window := fetchWindow(req.Limit, s.overfetch)
	total := -1

	for round := 0; ; round++ {
		candidates, err := s.index.Nearest(ctx, req.Query, window)
		if err != nil {
			s.logger.Error("error querying index", "err", err)
			return nil, err
		}
		monitor.AfterFetch(window, candidates)
		s.metrics.AddFetched(metrics.ModeSemantic, len(candidates))

		results := s.overlay(req, matcher, candidates, monitor)

		if len(results) >= req.Limit || len(candidates) < window || round >= s.widenRounds {
			s.logger.Debug("semantic search complete",
				"window", window, "fetched", len(candidates), "results", len(results), "rounds", round+1)
			return results, nil
		}

		if total < 0 {
			if total, err = s.index.Count(ctx); err != nil {
				return nil, err
			}
		}
		if window >= total {
			return results, nil
		}
		window = min(window*2, total)
		monitor.Widened(window)
		s.metrics.IncWidening()
	}
}

// fetchWindow returns limit*factor, saturating at math.MaxInt.
func fetchWindow(limit, factor int) int {
	if limit > math.MaxInt/factor {
		return math.MaxInt
	}
	return limit * factor
}

// overlay applies filters and the threshold to ranked candidates and
// truncates to the requested count.
func (s *Searcher) overlay(req Request, matcher *Matcher, candidates []*core.Candidate, monitor SearchMonitor) []core.SearchResult {
	results := make([]core.SearchResult, 0, min(req.Limit, len(candidates)))
	var filtered, beyond int

	for _, c := range candidates {
		if len(results) == req.Limit {
			break
		}
		if !matcher.Match(c.Metadata) {
			monitor.FilterRejected(c)
			filtered++
			continue
		}
		if req.Threshold != nil && c.Distance > *req.Threshold {
			monitor.ThresholdRejected(c)
			beyond++
			continue
		}
		results = append(results, core.ResultFromCandidate(c))
	}

	s.metrics.AddDropped(metrics.StageFilter, filtered)
	s.metrics.AddDropped(metrics.StageThreshold, beyond)
	return results
}
