package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClauseContents(t *testing.T) {
	clauses := []Clause{{Content: "a", Score: 0.9}, {Content: "b", Score: 0.5}}
	assert.Equal(t, []string{"a", "b"}, ClauseContents(clauses))
	assert.Empty(t, ClauseContents(nil))
}

func TestDocumentNamespace(t *testing.T) {
	a := DocumentNamespace("https://example.com/policy.pdf")
	b := DocumentNamespace("https://example.com/other.pdf")

	assert.True(t, strings.HasPrefix(a, "doc-"))
	assert.Len(t, a, len("doc-")+16)
	assert.Equal(t, a, DocumentNamespace("https://example.com/policy.pdf"))
	assert.NotEqual(t, a, b)
}
