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

// Package storage provides the storage abstraction layer for eventscout.
//
// The IndexRepository interface decouples the vector index from the code that
// builds and queries it. Documents live in named collections; a collection is
// created and dropped as a unit because ingestion always rebuilds it wholesale.
//
// # Constructor Return Type Pattern
//
// Public constructors in implementation packages return the interface:
//
//	repo, err := badger.NewIndexRepository(backend)  // returns storage.IndexRepository
//
// Internal constructors may return concrete types since they're only used
// within the implementation package.
//
// # Serialization
//
// Documents and collection info are encoded with mus-go. Metadata values are
// tagged scalars (string, int64, float64, bool) written in key order so the
// encoding of a document is deterministic.
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
package storage
