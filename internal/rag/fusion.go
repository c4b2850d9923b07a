package rag

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"github.com/askdoc/askdoc/internal/store"
)

// fusionKey identifies a chunk across retrieval modes. The dense and
// sparse indexes may assign different IDs to the same content, so
// identity is derived from the chunk itself.
func fusionKey(p store.Payload) string {
	h := sha256.New()
	h.Write([]byte(p.SourceFile))
	h.Write([]byte{0})
	h.Write([]byte(p.Text))
	return hex.EncodeToString(h.Sum(nil))
}

type fusedChunk struct {
	chunk store.ScoredChunk
	score float64
	seen  int
}

// fuseRRF merges ranked result lists with reciprocal rank fusion. Each
// list contributes 1/(k+rank) per chunk with 1-based ranks. Retrieval
// scores are not comparable across modes and are discarded; ties keep
// first-seen order.
func fuseRRF(lists [][]store.ScoredChunk, k int) []store.ScoredChunk {
	fused := make(map[string]*fusedChunk)
	order := 0

	for _, list := range lists {
		for rank, c := range list {
			key := fusionKey(c.Payload)
			f, ok := fused[key]
			if !ok {
				f = &fusedChunk{chunk: c, seen: order}
				fused[key] = f
				order++
			}
			f.score += 1.0 / float64(k+rank+1)
		}
	}

	merged := make([]*fusedChunk, 0, len(fused))
	for _, f := range fused {
		merged = append(merged, f)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].score != merged[j].score {
			return merged[i].score > merged[j].score
		}
		return merged[i].seen < merged[j].seen
	})

	out := make([]store.ScoredChunk, len(merged))
	for i, f := range merged {
		c := f.chunk
		c.Score = f.score
		out[i] = c
	}
	return out
}
