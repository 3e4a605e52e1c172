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

// Package index adapts a storage.IndexRepository and an ai.Embedder into
// the text-level contract the retrieval overlay consumes.
//
// A Collection speaks in texts rather than vectors: Add embeds documents
// that arrive without a vector, and Nearest embeds the query before asking
// the repository for the closest documents. Both sides go through the same
// embedder so distances are comparable.
//
// A collection that has not been created yet behaves as empty. Scan, Count
// and Nearest return no candidates instead of failing, so callers that run
// before the first ingestion see an empty index. Callers that must tell
// "empty" from "never built" use Exists or Status.
package index
