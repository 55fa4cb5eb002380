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

package analyzer

import (
	"strings"
	"unicode"
)

// Highlight derives highlighted_text by locating keyPhrase in text via a
// whitespace-insensitive scan (normalize-then-locate, spec.md §9): build a
// parallel array mapping normalized positions back to original rune
// offsets, search the normalized view, then reproject the matched span onto
// the original text. Falls back to matching just the phrase's first five
// words if the full phrase isn't found, and fails open (returns text
// unmodified) if neither matches. This runs entirely on the server, never
// the LLM.
func Highlight(text, keyPhrase string, coreTerms []string) string {
	if strings.TrimSpace(keyPhrase) == "" {
		return text
	}

	normText, offsets := normalizeWithOffsets(text)
	normPhrase, _ := normalizeWithOffsets(keyPhrase)
	if normPhrase == "" {
		return text
	}

	start, end, ok := locate(normText, normPhrase)
	if !ok {
		fallback := firstNWords(normPhrase, 5)
		if fallback == "" {
			return text
		}
		start, end, ok = locate(normText, fallback)
		if !ok {
			return text
		}
	}

	origStart := offsets[start]
	// end is exclusive in normalized space; map the last included rune's
	// offset, then extend one past its length.
	origEnd := offsets[end-1] + 1

	runes := []rune(text)
	if origEnd > len(runes) {
		origEnd = len(runes)
	}
	origEnd = extendForTrailingPunctuation(runes, origEnd)

	before := string(runes[:origStart])
	span := string(runes[origStart:origEnd])
	after := string(runes[origEnd:])

	span = wrapCoreTerms(span, coreTerms)
	return before + "<mark>" + span + "</mark>" + after
}

// normalizeWithOffsets lowercases text and collapses whitespace runs to a
// single space, returning the normalized string and, for each of its
// runes, the corresponding index into the original (rune-indexed) text.
func normalizeWithOffsets(text string) (string, []int) {
	runes := []rune(text)
	var norm []rune
	var offsets []int
	prevSpace := true // treat leading whitespace as already-collapsed
	for i, r := range runes {
		if unicode.IsSpace(r) {
			if prevSpace {
				continue
			}
			norm = append(norm, ' ')
			offsets = append(offsets, i)
			prevSpace = true
			continue
		}
		norm = append(norm, unicode.ToLower(r))
		offsets = append(offsets, i)
		prevSpace = false
	}
	// Trim a trailing collapsed space.
	if len(norm) > 0 && norm[len(norm)-1] == ' ' {
		norm = norm[:len(norm)-1]
		offsets = offsets[:len(offsets)-1]
	}
	return string(norm), offsets
}

// locate finds phrase as a substring of text (both already normalized),
// returning rune start/end (end exclusive) in text's rune indexing.
func locate(text, phrase string) (int, int, bool) {
	textRunes := []rune(text)
	phraseRunes := []rune(phrase)
	idx := strings.Index(text, phrase)
	if idx == -1 {
		return 0, 0, false
	}
	// strings.Index returns a byte offset; text is ASCII-lowercased-ish
	// but may contain multibyte runes, so recompute via rune counting over
	// the byte prefix to stay correct for non-ASCII text.
	start := len([]rune(text[:idx]))
	end := start + len(phraseRunes)
	if end > len(textRunes) {
		end = len(textRunes)
	}
	return start, end, true
}

func firstNWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return ""
	}
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}

// extendForTrailingPunctuation nudges end forward over immediately
// following sentence punctuation so the mark reads as visually complete
// rather than cutting off right before a period or comma (spec.md §9).
func extendForTrailingPunctuation(runes []rune, end int) int {
	for end < len(runes) {
		switch runes[end] {
		case '.', ',', ';', ':', '!', '?', '"', '\'', ')':
			end++
		default:
			return end
		}
	}
	return end
}

// wrapCoreTerms wraps each case-insensitive occurrence of every core term
// within span in <b>...</b>. Runs only within the already-located
// key-phrase span, never across the whole passage.
func wrapCoreTerms(span string, coreTerms []string) string {
	for _, term := range coreTerms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		span = wrapCaseInsensitive(span, term)
	}
	return span
}

func wrapCaseInsensitive(s, term string) string {
	lowerS := strings.ToLower(s)
	lowerTerm := strings.ToLower(term)
	var sb strings.Builder
	i := 0
	for {
		idx := strings.Index(lowerS[i:], lowerTerm)
		if idx == -1 {
			sb.WriteString(s[i:])
			break
		}
		matchStart := i + idx
		matchEnd := matchStart + len(term)
		sb.WriteString(s[i:matchStart])
		sb.WriteString("<b>")
		sb.WriteString(s[matchStart:matchEnd])
		sb.WriteString("</b>")
		i = matchEnd
	}
	return sb.String()
}

// StripHighlightMarkup removes <mark>/<b> tags, used by tests asserting
// "highlighted_text with <mark> and <b> stripped equals the original text"
// (spec.md §8).
func StripHighlightMarkup(s string) string {
	replacer := strings.NewReplacer("<mark>", "", "</mark>", "", "<b>", "", "</b>", "")
	return replacer.Replace(s)
}
