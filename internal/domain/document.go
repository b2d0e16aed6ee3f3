package domain

import (
	"crypto/sha256"
	"encoding/hex"
)

// Document is a fetched remote file and its extracted text.
type Document struct {
	URL  string
	Text string
}

// Chunk is one span of a document produced by the splitter.
type Chunk struct {
	Index   int
	Content string
}

// Vector is an embedded chunk ready to be written to an index.
type Vector struct {
	ID      string
	Values  []float32
	Content string
}

// Clause is a chunk returned by similarity search.
type Clause struct {
	ID      string
	Content string
	Score   float32
}

// ClauseContents returns the text of each clause in order.
func ClauseContents(clauses []Clause) []string {
	out := make([]string, len(clauses))
	for i, c := range clauses {
		out[i] = c.Content
	}
	return out
}

// DocumentNamespace derives a stable index namespace for a document URL.
func DocumentNamespace(url string) string {
	sum := sha256.Sum256([]byte(url))
	return "doc-" + hex.EncodeToString(sum[:8])
}
