// Package retrieval is the thin boundary to the document retrieval
// subsystem. The interview core only ever sees ranked chunks with citation
// metadata; empty results are a normal outcome, never an error condition.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ChunkMetadata identifies where a retrieved chunk came from.
type ChunkMetadata struct {
	DocumentID   uuid.UUID
	DocumentName string
	PageStart    int
	PageEnd      int
	ChunkIndex   int
}

// Chunk is one ranked retrieval result.
type Chunk struct {
	Content    string
	Similarity float64
	Metadata   ChunkMetadata
}

// Citation is the admin-facing audit record, consolidated per document.
// Never rendered to the end user.
type Citation struct {
	DocumentID   uuid.UUID `json:"document_id"`
	DocumentName string    `json:"document_name"`
	Pages        string    `json:"pages,omitempty"`
	Similarity   float64   `json:"similarity"`
}

// Gateway is the retrieval contract the interview core consumes.
type Gateway interface {
	QueryWithMetadata(ctx context.Context, text string, tenantID uuid.UUID, topK int) ([]Chunk, error)
}

// Filter applies the similarity floor and caps the result count. Chunks are
// assumed to arrive ranked best-first.
func Filter(chunks []Chunk, floor float64, topK int) []Chunk {
	var kept []Chunk
	for _, c := range chunks {
		if c.Similarity < floor {
			continue
		}
		kept = append(kept, c)
		if len(kept) == topK {
			break
		}
	}
	return kept
}

// Consolidate merges chunks into one citation per document with a combined
// page list and the document's best similarity.
func Consolidate(chunks []Chunk) []Citation {
	type docAgg struct {
		name       string
		similarity float64
		pages      [][2]int
	}
	order := make([]uuid.UUID, 0, len(chunks))
	docs := make(map[uuid.UUID]*docAgg)

	for _, c := range chunks {
		agg, ok := docs[c.Metadata.DocumentID]
		if !ok {
			agg = &docAgg{name: c.Metadata.DocumentName}
			docs[c.Metadata.DocumentID] = agg
			order = append(order, c.Metadata.DocumentID)
		}
		if c.Similarity > agg.similarity {
			agg.similarity = c.Similarity
		}
		if c.Metadata.PageStart > 0 {
			agg.pages = append(agg.pages, [2]int{c.Metadata.PageStart, c.Metadata.PageEnd})
		}
	}

	citations := make([]Citation, 0, len(order))
	for _, id := range order {
		agg := docs[id]
		citations = append(citations, Citation{
			DocumentID:   id,
			DocumentName: agg.name,
			Pages:        formatPages(agg.pages),
			Similarity:   agg.similarity,
		})
	}
	return citations
}

// MergeCitations collapses citations accumulated over several turns into one
// entry per document, keeping first-seen order. Page lists are unioned and
// the best similarity wins.
func MergeCitations(citations []Citation) []Citation {
	type docAgg struct {
		name       string
		similarity float64
		pages      [][2]int
	}
	order := make([]uuid.UUID, 0, len(citations))
	docs := make(map[uuid.UUID]*docAgg)

	for _, c := range citations {
		agg, ok := docs[c.DocumentID]
		if !ok {
			agg = &docAgg{name: c.DocumentName}
			docs[c.DocumentID] = agg
			order = append(order, c.DocumentID)
		}
		if c.Similarity > agg.similarity {
			agg.similarity = c.Similarity
		}
		agg.pages = append(agg.pages, parsePages(c.Pages)...)
	}

	merged := make([]Citation, 0, len(order))
	for _, id := range order {
		agg := docs[id]
		merged = append(merged, Citation{
			DocumentID:   id,
			DocumentName: agg.name,
			Pages:        formatPages(agg.pages),
			Similarity:   agg.similarity,
		})
	}
	return merged
}

// parsePages is the inverse of formatPages; malformed parts are skipped.
func parsePages(s string) [][2]int {
	var ranges [][2]int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		var start, end int
		if i := strings.IndexByte(part, '-'); i >= 0 {
			start, _ = strconv.Atoi(part[:i])
			end, _ = strconv.Atoi(part[i+1:])
		} else {
			start, _ = strconv.Atoi(part)
			end = start
		}
		if start <= 0 {
			continue
		}
		if end < start {
			end = start
		}
		ranges = append(ranges, [2]int{start, end})
	}
	return ranges
}

// formatPages renders merged page ranges like "3-5, 12".
func formatPages(ranges [][2]int) string {
	if len(ranges) == 0 {
		return ""
	}
	sort.Slice(ranges, func(i, j int) bool { return ranges[i][0] < ranges[j][0] })

	merged := [][2]int{ranges[0]}
	for _, r := range ranges[1:] {
		last := &merged[len(merged)-1]
		if r[0] <= last[1]+1 {
			if r[1] > last[1] {
				last[1] = r[1]
			}
			continue
		}
		merged = append(merged, r)
	}

	parts := make([]string, 0, len(merged))
	for _, r := range merged {
		if r[1] <= r[0] {
			parts = append(parts, fmt.Sprintf("%d", r[0]))
		} else {
			parts = append(parts, fmt.Sprintf("%d-%d", r[0], r[1]))
		}
	}
	return strings.Join(parts, ", ")
}
