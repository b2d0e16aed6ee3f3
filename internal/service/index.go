package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/cloo-solutions/policyqa/internal/domain"
	"github.com/cloo-solutions/policyqa/internal/telemetry"
)

// DefaultSearchK is the number of clauses retrieved per question.
const DefaultSearchK = 5

// EmbeddingClient defines the interface for generating embeddings
type EmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorIndex is a remote similarity index. An empty namespace is the
// shared default namespace.
type VectorIndex interface {
	EnsureIndex(ctx context.Context) error
	Upsert(ctx context.Context, namespace string, vectors []domain.Vector) error
	Query(ctx context.Context, namespace string, vector []float32, k int) ([]domain.Clause, error)
	Count(ctx context.Context, namespace string) (int, error)
}

// IndexService chunks, embeds and stores documents, and answers similarity queries.
type IndexService struct {
	embedder    EmbeddingClient
	index       VectorIndex
	splitter    *TextSplitter
	perDocument bool
	newID       func() string
}

// IndexOption configures an IndexService.
type IndexOption func(*IndexService)

// WithNamespacePerDocument isolates every document in its own namespace.
func WithNamespacePerDocument(enabled bool) IndexOption {
	return func(s *IndexService) {
		s.perDocument = enabled
	}
}

// WithChunkConfig overrides the splitter configuration.
func WithChunkConfig(cfg ChunkConfig) IndexOption {
	return func(s *IndexService) {
		s.splitter = NewTextSplitter(cfg)
	}
}

func NewIndexService(embedder EmbeddingClient, index VectorIndex, opts ...IndexOption) *IndexService {
	s := &IndexService{
		embedder: embedder,
		index:    index,
		splitter: NewTextSplitter(DefaultChunkConfig()),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Namespace returns the index namespace used for documentURL.
func (s *IndexService) Namespace(documentURL string) string {
	if !s.perDocument {
		return ""
	}
	return domain.DocumentNamespace(documentURL)
}

// Upsert ensures the index exists, then splits, embeds and writes text.
// Every call appends new vectors; nothing is deduplicated.
func (s *IndexService) Upsert(ctx context.Context, namespace, text string) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "index.Upsert", telemetry.SpanAttributes{
		Namespace: namespace,
		Operation: "upsert",
	})
	defer span.End()

	if err := s.index.EnsureIndex(ctx); err != nil {
		span.SetError(err)
		return 0, domain.ErrIndexOperation.WithCause(fmt.Errorf("ensure index: %w", err))
	}

	chunks := s.splitter.Split(text)
	if len(chunks) == 0 {
		return 0, nil
	}

	embeddings, err := s.embedder.GenerateEmbeddings(ctx, chunks)
	if err != nil {
		span.SetError(err)
		return 0, domain.ErrEmbeddingFailed.WithCause(err)
	}

	vectors := make([]domain.Vector, len(chunks))
	for i, chunk := range chunks {
		vectors[i] = domain.Vector{
			ID:      s.newID(),
			Values:  embeddings[i],
			Content: chunk,
		}
	}

	if err := s.index.Upsert(ctx, namespace, vectors); err != nil {
		span.SetError(err)
		return 0, domain.ErrIndexOperation.WithCause(fmt.Errorf("upsert: %w", err))
	}

	telemetry.AddBreadcrumb(ctx, "index", fmt.Sprintf("upserted %d chunks", len(vectors)))
	return len(vectors), nil
}

// Search embeds query and returns the k nearest clauses, best first.
func (s *IndexService) Search(ctx context.Context, namespace, query string, k int) ([]domain.Clause, error) {
	if k <= 0 {
		k = DefaultSearchK
	}

	ctx, span := telemetry.StartSpan(ctx, "index.Search", telemetry.SpanAttributes{
		Namespace: namespace,
		Operation: "search",
	})
	defer span.End()

	vector, err := s.embedder.GenerateEmbedding(ctx, query)
	if err != nil {
		span.SetError(err)
		return nil, domain.ErrEmbeddingFailed.WithCause(err)
	}

	clauses, err := s.index.Query(ctx, namespace, vector, k)
	if err != nil {
		span.SetError(err)
		return nil, domain.ErrIndexOperation.WithCause(fmt.Errorf("query: %w", err))
	}
	return clauses, nil
}

// Count reports how many vectors the namespace holds.
func (s *IndexService) Count(ctx context.Context, namespace string) (int, error) {
	return s.index.Count(ctx, namespace)
}
