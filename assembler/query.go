// Copyright 2025 Kadir Pekel
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

package assembler

import (
	"regexp"
	"strings"
)

// trailingParenPattern matches a trailing "(term, term, ...)" group, the
// way a caller writes "what is justice (shoghi, pilgrim)" to mean "search
// for justice, restricted to sources mentioning shoghi or pilgrim".
var trailingParenPattern = regexp.MustCompile(`\(([^()]*)\)\s*$`)

// ExtractFilterTerms splits a trailing parenthetical term list off raw,
// returning the clean query text and the extracted terms. Returns raw
// unmodified and a nil slice if there's no trailing parenthetical, or if
// it's empty after trimming.
func ExtractFilterTerms(raw string) (string, []string) {
	match := trailingParenPattern.FindStringSubmatchIndex(raw)
	if match == nil {
		return raw, nil
	}
	inner := raw[match[2]:match[3]]
	var terms []string
	for _, part := range strings.Split(inner, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			terms = append(terms, part)
		}
	}
	if len(terms) == 0 {
		return raw, nil
	}
	clean := strings.TrimSpace(raw[:match[0]])
	return clean, terms
}
