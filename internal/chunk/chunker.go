// Package chunk splits document text into retrievable units.
//
// The splitter is recursive-character style: it prefers structural
// boundaries (paragraphs, lines, sentences, words) over raw character
// positions, so a chunk almost never ends mid-sentence. Split points
// degrade gracefully for text with no structure at all.
package chunk

import "strings"

// separators in decreasing structural priority. Character-level
// splitting is the implicit final fallback.
var separators = []string{"\n\n", "\n", ". ", " "}

// Split divides text into chunks of at most maxChars characters with
// roughly overlap characters of redundancy between adjacent chunks.
// Chunks are trimmed of surrounding whitespace and never empty.
// Empty input yields nil.
//
// The bound has one exception: an atomic token longer than maxChars
// with no separators left in it is emitted verbatim.
func Split(text string, maxChars, overlap int) []string {
	if text == "" || maxChars <= 0 {
		return nil
	}
	if overlap < 0 {
		overlap = 0
	}
	pieces := splitRecursive(text, separators, maxChars)
	return mergePieces(pieces, maxChars, overlap)
}

// splitRecursive breaks text into atomic pieces no longer than
// maxChars where possible. The separator is re-attached to the
// preceding piece so joining the pieces reproduces the input.
// Each recursion drops the used separator, so the call terminates.
func splitRecursive(text string, seps []string, maxChars int) []string {
	if len(text) <= maxChars {
		return []string{text}
	}

	for i, sep := range seps {
		if !strings.Contains(text, sep) {
			continue
		}
		parts := strings.Split(text, sep)
		var pieces []string
		for j, part := range parts {
			if j < len(parts)-1 {
				part += sep
			}
			if part == "" {
				continue
			}
			if len(part) > maxChars {
				pieces = append(pieces, splitRecursive(part, seps[i+1:], maxChars)...)
			} else {
				pieces = append(pieces, part)
			}
		}
		return pieces
	}

	// No separators left: hard character windows.
	var pieces []string
	for len(text) > maxChars {
		pieces = append(pieces, text[:maxChars])
		text = text[maxChars:]
	}
	if text != "" {
		pieces = append(pieces, text)
	}
	return pieces
}

// mergePieces greedily packs atomic pieces into chunks. When a chunk
// fills up, the next chunk is seeded with the trailing pieces of the
// previous one until at least overlap characters are carried over.
func mergePieces(pieces []string, maxChars, overlap int) []string {
	var chunks []string
	var buf []string
	bufLen := 0

	flush := func() {
		if c := strings.TrimSpace(strings.Join(buf, "")); c != "" {
			chunks = append(chunks, c)
		}
	}

	for _, p := range pieces {
		if bufLen > 0 && bufLen+len(p) > maxChars {
			flush()

			// Walk backward through the just-emitted pieces to seed
			// the overlap, keeping their original order and never
			// letting seed plus the new piece exceed maxChars.
			var seed []string
			seedLen := 0
			for j := len(buf) - 1; j >= 0; j-- {
				if seedLen >= overlap || seedLen+len(buf[j])+len(p) > maxChars {
					break
				}
				seed = append([]string{buf[j]}, seed...)
				seedLen += len(buf[j])
			}
			buf = seed
			bufLen = seedLen
		}
		buf = append(buf, p)
		bufLen += len(p)
	}
	flush()
	return chunks
}
