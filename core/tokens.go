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
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// TokenSeparator joins aggregated multi-valued fields.
const TokenSeparator = "; "

// NormalizeTitle produces the grouping key for a title: NFKC folded,
// whitespace collapsed, trimmed and lower-cased.
func NormalizeTitle(title string) string {
	folded := norm.NFKC.String(title)
	return strings.ToLower(strings.Join(strings.Fields(folded), " "))
}

// SplitMultiValue tokenizes a raw multi-valued field. Values are split on
// ';' when present and on ',' otherwise. Anything that is not a string
// yields no tokens.
func SplitMultiValue(v any) []string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	sep := ","
	if strings.Contains(s, ";") {
		sep = ";"
	}
	return splitTrimmed(s, func(r rune) bool { return string(r) == sep })
}

// SplitTokens splits s on every rune in seps, trimming tokens and dropping
// empty ones.
func SplitTokens(s, seps string) []string {
	return splitTrimmed(s, func(r rune) bool { return strings.ContainsRune(seps, r) })
}

func splitTrimmed(s string, isSep func(rune) bool) []string {
	var tokens []string
	for _, part := range strings.FieldsFunc(s, isSep) {
		part = strings.TrimSpace(part)
		if part != "" {
			tokens = append(tokens, part)
		}
	}
	return tokens
}

// JoinTokenSet unions the given token lists, sorts and deduplicates them and
// joins the result with TokenSeparator.
func JoinTokenSet(lists ...[]string) string {
	var all []string
	for _, list := range lists {
		for _, token := range list {
			token = strings.TrimSpace(token)
			if token != "" {
				all = append(all, token)
			}
		}
	}
	slices.Sort(all)
	return strings.Join(slices.Compact(all), TokenSeparator)
}
