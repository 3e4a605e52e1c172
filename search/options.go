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
	"log/slog"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/poiesic/eventscout/core"
	"github.com/poiesic/eventscout/metrics"
)

// optionSeparators split multi-valued metadata into filter options.
const optionSeparators = ";,"

// OptionsIndex is the part of Index the OptionsCache reads.
type OptionsIndex interface {
	Exists(ctx context.Context) (bool, error)
	Scan(ctx context.Context, limit int) ([]*core.Candidate, error)
}

// OptionsCache derives the distinct filter values observed in the index.
// The first Get loads them with one bounded scan and later calls reuse the
// result. Ingestion does not refresh the cache; call Invalidate after the
// index is rebuilt. The cache lives as long as the process holds it.
type OptionsCache struct {
	index            OptionsIndex
	scanCap          int
	excludedSessions []string
	metrics          *metrics.Metrics
	logger           *slog.Logger

	group      singleflight.Group
	mu         sync.RWMutex
	cached     *core.FilterOptions
	generation uint64
}

// CacheOption configures an OptionsCache.
type CacheOption func(*OptionsCache) error

// WithCacheLogger sets a custom logger.
// Default is slog.Default().
func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *OptionsCache) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// WithCacheScanCap bounds the scan used to derive options.
// Default is DefaultScanCap.
func WithCacheScanCap(limit int) CacheOption {
	return func(c *OptionsCache) error {
		if limit < 1 {
			return ErrInvalidOption
		}
		c.scanCap = limit
		return nil
	}
}

// WithExcludedSessions omits sessions containing any of substrings,
// compared case-insensitively.
func WithExcludedSessions(substrings ...string) CacheOption {
	return func(c *OptionsCache) error {
		c.excludedSessions = c.excludedSessions[:0]
		for _, sub := range substrings {
			if sub = strings.ToLower(strings.TrimSpace(sub)); sub != "" {
				c.excludedSessions = append(c.excludedSessions, sub)
			}
		}
		return nil
	}
}

// WithCacheMetrics records option loads.
func WithCacheMetrics(m *metrics.Metrics) CacheOption {
	return func(c *OptionsCache) error {
		c.metrics = m
		return nil
	}
}

// NewOptionsCache creates an empty cache over idx.
func NewOptionsCache(idx OptionsIndex, opts ...CacheOption) (*OptionsCache, error) {
	if idx == nil {
		return nil, ErrIndexRequired
	}

	c := &OptionsCache{
		index:   idx,
		scanCap: DefaultScanCap,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.logger = c.logger.With("component", "filter-options")

	return c, nil
}

// Get returns the filter options, loading them on first use. Concurrent
// first calls share one load. When the collection does not exist yet the
// result has empty lists and is not cached.
func (c *OptionsCache) Get(ctx context.Context) (core.FilterOptions, error) {
	c.mu.RLock()
	cached := c.cached
	c.mu.RUnlock()
	if cached != nil {
		return cloneOptions(cached), nil
	}

	v, err, _ := c.group.Do("options", func() (any, error) {
		return c.load(ctx)
	})
	if err != nil {
		return core.FilterOptions{}, err
	}
	return cloneOptions(v.(*core.FilterOptions)), nil
}

// Invalidate discards the cached options. The next Get reloads them.
// A load in flight when Invalidate is called is returned to its callers
// but not cached.
func (c *OptionsCache) Invalidate() {
	c.mu.Lock()
	c.cached = nil
	c.generation++
	c.mu.Unlock()
	c.logger.Debug("filter options invalidated")
}

// Cached reports whether options are currently held.
func (c *OptionsCache) Cached() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cached != nil
}

func (c *OptionsCache) load(ctx context.Context) (*core.FilterOptions, error) {
	c.mu.RLock()
	generation := c.generation
	c.mu.RUnlock()

	exists, err := c.index.Exists(ctx)
	if err != nil {
		c.metrics.IncFilterOptionLoad(err)
		return nil, err
	}
	if !exists {
		c.logger.Debug("no collection yet; returning empty filter options")
		return emptyOptions(), nil
	}

	candidates, err := c.index.Scan(ctx, c.scanCap)
	if err != nil {
		c.logger.Error("error scanning index for filter options", "err", err)
		c.metrics.IncFilterOptionLoad(err)
		return nil, err
	}
	options := c.derive(candidates)
	c.metrics.IncFilterOptionLoad(nil)

	c.mu.Lock()
	if c.generation == generation {
		c.cached = options
	}
	c.mu.Unlock()

	c.logger.Info("loaded filter options",
		"documents", len(candidates),
		"affiliations", len(options.Affiliations),
		"authors", len(options.Authors),
		"sessions", len(options.Sessions),
		"days", len(options.Days))
	return options, nil
}

func (c *OptionsCache) derive(candidates []*core.Candidate) *core.FilterOptions {
	var affiliations, authors, sessions, days []string
	for _, cand := range candidates {
		md := cand.Metadata
		affiliations = append(affiliations, core.SplitTokens(md.String(core.MetaAffiliation), optionSeparators)...)
		authors = append(authors, core.SplitTokens(md.String(core.MetaAuthors), optionSeparators)...)
		for _, session := range core.SplitTokens(md.String(core.MetaSession), optionSeparators) {
			if !c.sessionExcluded(session) {
				sessions = append(sessions, session)
			}
		}
		if day := md.String(core.MetaDay); day != "" {
			days = append(days, day)
		}
	}

	options := emptyOptions()
	options.Affiliations = distinct(affiliations)
	options.Authors = distinct(authors)
	options.Sessions = distinct(sessions)
	options.Days = distinct(days)
	return options
}

func (c *OptionsCache) sessionExcluded(session string) bool {
	lower := strings.ToLower(session)
	for _, sub := range c.excludedSessions {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}

func emptyOptions() *core.FilterOptions {
	return &core.FilterOptions{
		Affiliations: []string{},
		Authors:      []string{},
		Sessions:     []string{},
		Days:         []string{},
		AMPM:         []string{core.AM, core.PM},
	}
}

func distinct(values []string) []string {
	slices.Sort(values)
	values = slices.Compact(values)
	if values == nil {
		return []string{}
	}
	return values
}

func cloneOptions(o *core.FilterOptions) core.FilterOptions {
	return core.FilterOptions{
		Affiliations: slices.Clone(o.Affiliations),
		Authors:      slices.Clone(o.Authors),
		Sessions:     slices.Clone(o.Sessions),
		Days:         slices.Clone(o.Days),
		AMPM:         slices.Clone(o.AMPM),
	}
}
