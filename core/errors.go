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

package core

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	// ErrNotInitialized indicates the index collection has not been built yet.
	ErrNotInitialized = errors.New("index not initialized")

	// ErrInvalidFilter indicates a filter value that is neither a string nor a list of strings.
	ErrInvalidFilter = errors.New("invalid filter")

	// ErrInvalidRequest indicates malformed search parameters.
	ErrInvalidRequest = errors.New("invalid search request")

	// ErrInvalidDocument indicates a Document failed validation.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrEmptyText indicates the Text field is empty.
	ErrEmptyText = errors.New("text cannot be empty")

	// ErrNestedMetadata indicates a metadata value that is not a scalar.
	ErrNestedMetadata = errors.New("metadata values must be scalar")

	// ErrInvalidID indicates an ID string could not be parsed.
	ErrInvalidID = errors.New("invalid id")
)

// ParseError describes a field value that could not be parsed.
// Callers that degrade to a default on error can still log it.
type ParseError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s %q: %s", e.Field, e.Value, e.Reason)
}
