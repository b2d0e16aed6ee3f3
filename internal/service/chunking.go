package service

import (
	"strings"
	"unicode/utf8"

	"github.com/cloo-solutions/policyqa/internal/domain"
)

// DefaultSeparators are tried from coarsest to finest.
var DefaultSeparators = []string{"\n\n", "\n", ". ", "; ", " ", ""}

// ChunkConfig controls recursive splitting of document text.
type ChunkConfig struct {
	ChunkSize    int
	ChunkOverlap int
	Separators   []string
}

// DefaultChunkConfig provides the defaults used for policy documents.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		ChunkSize:    1000,
		ChunkOverlap: 200,
		Separators:   DefaultSeparators,
	}
}

// TextSplitter splits text on the coarsest separator that keeps pieces
// under ChunkSize, recursing into finer separators for oversized pieces.
type TextSplitter struct {
	cfg ChunkConfig
}

func NewTextSplitter(cfg ChunkConfig) *TextSplitter {
	def := DefaultChunkConfig()
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = 0
	}
	if len(cfg.Separators) == 0 {
		cfg.Separators = def.Separators
	}
	return &TextSplitter{cfg: cfg}
}

// Split returns the chunks of text in document order.
func (s *TextSplitter) Split(text string) []string {
	return s.split(text, s.cfg.Separators)
}

// Chunks wraps Split results with their positions.
func (s *TextSplitter) Chunks(text string) []domain.Chunk {
	parts := s.Split(text)
	chunks := make([]domain.Chunk, len(parts))
	for i, p := range parts {
		chunks[i] = domain.Chunk{Index: i, Content: p}
	}
	return chunks
}

func (s *TextSplitter) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var finer []string
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			finer = separators[i+1:]
			break
		}
	}

	var (
		out  []string
		good []string
	)
	for _, piece := range splitKeepingSeparator(text, separator) {
		if runeLen(piece) < s.cfg.ChunkSize {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			out = append(out, s.merge(good)...)
			good = nil
		}
		if len(finer) == 0 {
			out = append(out, piece)
		} else {
			out = append(out, s.split(piece, finer)...)
		}
	}
	if len(good) > 0 {
		out = append(out, s.merge(good)...)
	}
	return out
}

// merge packs pieces into chunks, carrying a tail of up to ChunkOverlap
// runes into the next chunk. Pieces already include their separator.
func (s *TextSplitter) merge(pieces []string) []string {
	var (
		out     []string
		current []string
		total   int
	)
	for _, piece := range pieces {
		n := runeLen(piece)
		if total+n > s.cfg.ChunkSize && len(current) > 0 {
			if chunk := joinChunk(current); chunk != "" {
				out = append(out, chunk)
			}
			for total > s.cfg.ChunkOverlap || (total+n > s.cfg.ChunkSize && total > 0) {
				total -= runeLen(current[0])
				current = current[1:]
			}
		}
		current = append(current, piece)
		total += n
	}
	if chunk := joinChunk(current); chunk != "" {
		out = append(out, chunk)
	}
	return out
}

// splitKeepingSeparator attaches each separator to the piece that follows it.
func splitKeepingSeparator(text, separator string) []string {
	if separator == "" {
		out := make([]string, 0, len(text))
		for _, r := range text {
			out = append(out, string(r))
		}
		return out
	}

	parts := strings.Split(text, separator)
	out := make([]string, 0, len(parts))
	if parts[0] != "" {
		out = append(out, parts[0])
	}
	for _, p := range parts[1:] {
		out = append(out, separator+p)
	}
	return out
}

func joinChunk(pieces []string) string {
	return strings.TrimSpace(strings.Join(pieces, ""))
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
