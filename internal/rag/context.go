package rag

import (
	"strings"

	"github.com/askdoc/askdoc/internal/store"
)

// assembleContext packs chunks into a bounded context block. Chunks are
// taken in order until the next one would exceed maxChars; a chunk is
// either fully included or fully excluded. Returned sources correspond
// one to one with the included chunks.
func assembleContext(chunks []store.ScoredChunk, maxChars int) (string, []Source) {
	var parts []string
	sources := make([]Source, 0, len(chunks))
	total := 0

	for _, c := range chunks {
		addition := c.Payload.Text + "\n\n"
		if total+len(addition) > maxChars {
			break
		}
		parts = append(parts, addition)
		total += len(addition)
		sources = append(sources, toSource(c))
	}

	// Parts carry their own trailing separator, so the joined length
	// never exceeds the counted total.
	return strings.TrimSpace(strings.Join(parts, "")), sources
}
