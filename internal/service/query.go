package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cloo-solutions/policyqa/internal/domain"
	"github.com/cloo-solutions/policyqa/internal/telemetry"
)

// DocumentParser fetches a document and returns its text.
type DocumentParser interface {
	Parse(ctx context.Context, documentURL string) (string, error)
}

// DocumentIndex stores document text and retrieves clauses for a query.
type DocumentIndex interface {
	Namespace(documentURL string) string
	Upsert(ctx context.Context, namespace, text string) (int, error)
	Search(ctx context.Context, namespace, query string, k int) ([]domain.Clause, error)
}

// AnswerEngine turns a question and retrieved clauses into an answer.
type AnswerEngine interface {
	ExtractStructuredQuery(ctx context.Context, question string) (string, error)
	EvaluateAndAnswer(ctx context.Context, structuredQuery string, clauses []domain.Clause, question string) (*domain.Answer, error)
}

// QueryProcessor runs the ingest-then-answer pipeline for one request.
type QueryProcessor struct {
	parser         DocumentParser
	index          DocumentIndex
	llm            AnswerEngine
	runLogs        RunLogRepository
	maxConcurrency int
	searchK        int
}

// QueryOption configures a QueryProcessor.
type QueryOption func(*QueryProcessor)

// WithRunLogs records each successful run.
func WithRunLogs(repo RunLogRepository) QueryOption {
	return func(p *QueryProcessor) {
		p.runLogs = repo
	}
}

// WithMaxConcurrency bounds the number of questions answered at once.
// Zero means unbounded.
func WithMaxConcurrency(n int) QueryOption {
	return func(p *QueryProcessor) {
		p.maxConcurrency = n
	}
}

func NewQueryProcessor(parser DocumentParser, index DocumentIndex, llm AnswerEngine, opts ...QueryOption) *QueryProcessor {
	p := &QueryProcessor{
		parser:  parser,
		index:   index,
		llm:     llm,
		searchK: DefaultSearchK,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run ingests the document, then answers every question concurrently.
// Answers are returned in question order. The first failing question
// cancels the others and fails the whole run.
func (p *QueryProcessor) Run(ctx context.Context, documentURL string, questions []string) ([]string, error) {
	start := time.Now()

	ctx, span := telemetry.StartSpan(ctx, "query.Run", telemetry.SpanAttributes{
		DocumentURL: documentURL,
		Operation:   "run",
	})
	defer span.End()

	text, err := p.parser.Parse(ctx, documentURL)
	if err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("parse document: %w", err)
	}

	namespace := p.index.Namespace(documentURL)
	chunks, err := p.index.Upsert(ctx, namespace, text)
	if err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("index document: %w", err)
	}

	results := make([]*domain.Answer, len(questions))

	g, gctx := errgroup.WithContext(ctx)
	if p.maxConcurrency > 0 {
		g.SetLimit(p.maxConcurrency)
	}
	for i, question := range questions {
		g.Go(func() error {
			answer, err := p.answer(gctx, namespace, question)
			if err != nil {
				return fmt.Errorf("question %d: %w", i, err)
			}
			results[i] = answer
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.SetError(err)
		return nil, err
	}

	answers := make([]string, len(results))
	for i, r := range results {
		answers[i] = r.Text()
	}

	p.record(ctx, RunLogEntry{
		DocumentURL: documentURL,
		Namespace:   namespace,
		Questions:   questions,
		Answers:     answers,
		ChunkCount:  chunks,
		DurationMs:  int(time.Since(start).Milliseconds()),
	})

	return answers, nil
}

func (p *QueryProcessor) answer(ctx context.Context, namespace, question string) (*domain.Answer, error) {
	structured, err := p.llm.ExtractStructuredQuery(ctx, question)
	if err != nil {
		return nil, err
	}

	// Retrieval is keyed on the rewritten query, or the question when the
	// rewrite came back blank.
	searchQuery := structured
	if strings.TrimSpace(searchQuery) == "" {
		searchQuery = question
	}
	clauses, err := p.index.Search(ctx, namespace, searchQuery, p.searchK)
	if err != nil {
		return nil, err
	}

	return p.llm.EvaluateAndAnswer(ctx, structured, clauses, question)
}

func (p *QueryProcessor) record(ctx context.Context, entry RunLogEntry) {
	if p.runLogs == nil {
		return
	}
	if _, err := p.runLogs.CreateRunLog(context.WithoutCancel(ctx), entry); err != nil {
		log.Printf("query: failed to record run log: %v", err)
		telemetry.CaptureError(ctx, fmt.Errorf("record run log: %w", err))
	}
}
