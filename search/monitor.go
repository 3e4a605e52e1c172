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
	"github.com/poiesic/eventscout/core"
)

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type SearchMonitor interface {
	Start(req Request, mode string)
	AfterFetch(window int, candidates []*core.Candidate)
	Widened(window int)
	FilterRejected(candidate *core.Candidate)
	ThresholdRejected(candidate *core.Candidate)
	Finish(results []core.SearchResult)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ Request, _ string)             {}
func (n *noopMonitor) AfterFetch(_ int, _ []*core.Candidate) {}
func (n *noopMonitor) Widened(_ int)                         {}
func (n *noopMonitor) FilterRejected(_ *core.Candidate)      {}
func (n *noopMonitor) ThresholdRejected(_ *core.Candidate)   {}
func (n *noopMonitor) Finish(_ []core.SearchResult)          {}
