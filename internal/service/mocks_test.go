package service

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/cloo-solutions/policyqa/internal/domain"
)

// MockEmbeddingClient mocks the Gemini embedding client
type MockEmbeddingClient struct {
	mock.Mock
}

func (m *MockEmbeddingClient) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

func (m *MockEmbeddingClient) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

type MockVectorIndex struct {
	mock.Mock
}

func (m *MockVectorIndex) EnsureIndex(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockVectorIndex) Upsert(ctx context.Context, namespace string, vectors []domain.Vector) error {
	return m.Called(ctx, namespace, vectors).Error(0)
}

func (m *MockVectorIndex) Query(ctx context.Context, namespace string, vector []float32, k int) ([]domain.Clause, error) {
	args := m.Called(ctx, namespace, vector, k)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Clause), args.Error(1)
}

func (m *MockVectorIndex) Count(ctx context.Context, namespace string) (int, error) {
	args := m.Called(ctx, namespace)
	return args.Int(0), args.Error(1)
}

type MockCompleter struct {
	mock.Mock
}

func (m *MockCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

type MockDocumentParser struct {
	mock.Mock
}

func (m *MockDocumentParser) Parse(ctx context.Context, documentURL string) (string, error) {
	args := m.Called(ctx, documentURL)
	return args.String(0), args.Error(1)
}

type MockDocumentIndex struct {
	mock.Mock
}

func (m *MockDocumentIndex) Namespace(documentURL string) string {
	return m.Called(documentURL).String(0)
}

func (m *MockDocumentIndex) Upsert(ctx context.Context, namespace, text string) (int, error) {
	args := m.Called(ctx, namespace, text)
	return args.Int(0), args.Error(1)
}

func (m *MockDocumentIndex) Search(ctx context.Context, namespace, query string, k int) ([]domain.Clause, error) {
	args := m.Called(ctx, namespace, query, k)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Clause), args.Error(1)
}

type MockAnswerEngine struct {
	mock.Mock
}

func (m *MockAnswerEngine) ExtractStructuredQuery(ctx context.Context, question string) (string, error) {
	args := m.Called(ctx, question)
	return args.String(0), args.Error(1)
}

func (m *MockAnswerEngine) EvaluateAndAnswer(ctx context.Context, structuredQuery string, clauses []domain.Clause, question string) (*domain.Answer, error) {
	args := m.Called(ctx, structuredQuery, clauses, question)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Answer), args.Error(1)
}

type MockRunLogRepository struct {
	mock.Mock
}

func (m *MockRunLogRepository) CreateRunLog(ctx context.Context, entry RunLogEntry) (string, error) {
	args := m.Called(ctx, entry)
	return args.String(0), args.Error(1)
}

func (m *MockRunLogRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}
