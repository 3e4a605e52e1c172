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

// Package search answers event queries by combining nearest-neighbour
// retrieval with exact metadata filters the index cannot express.
//
// The Searcher runs in one of two modes:
//   - Scan mode, for an empty or "*" query: a bounded bulk fetch in index
//     order, filtered, every result at distance 0
//   - Semantic mode: an over-fetched nearest-neighbour query, filtered in
//     rank order and cut at the distance threshold
//
// Filters are applied after ranking, so a tight filter can leave fewer than
// the requested results even when qualifying events exist beyond the fetch
// window. The over-fetch factor reduces this; WithWidening removes most of
// it at the cost of extra index queries.
//
// OptionsCache derives the distinct filter values from the index and holds
// them until Invalidate is called.
package search
