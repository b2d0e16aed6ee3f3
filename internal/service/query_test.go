package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/policyqa/internal/domain"
)

const policyURL = "https://example.com/policy.pdf"

func TestQueryProcessor_Run_PreservesOrder(t *testing.T) {
	parser := new(MockDocumentParser)
	index := new(MockDocumentIndex)
	llm := new(MockAnswerEngine)
	runLogs := new(MockRunLogRepository)
	p := NewQueryProcessor(parser, index, llm, WithRunLogs(runLogs))

	questions := []string{"q1", "q2", "q3"}
	clauses := []domain.Clause{{Content: "clause"}}

	parser.On("Parse", mock.Anything, policyURL).Return("document text", nil)
	index.On("Namespace", policyURL).Return("")
	index.On("Upsert", mock.Anything, "", "document text").Return(4, nil)
	for i, q := range questions {
		sq := "structured " + q
		llm.On("ExtractStructuredQuery", mock.Anything, q).
			// Later questions finish first.
			After(time.Duration(len(questions)-i)*10*time.Millisecond).
			Return(sq, nil)
		index.On("Search", mock.Anything, "", sq, DefaultSearchK).Return(clauses, nil)
		llm.On("EvaluateAndAnswer", mock.Anything, sq, clauses, q).
			Return(&domain.Answer{Answer: "answer " + q, HasAnswer: true}, nil)
	}
	runLogs.On("CreateRunLog", mock.Anything, mock.MatchedBy(func(e RunLogEntry) bool {
		return e.DocumentURL == policyURL && e.ChunkCount == 4 && len(e.Answers) == 3
	})).Return("run-1", nil)

	answers, err := p.Run(context.Background(), policyURL, questions)

	require.NoError(t, err)
	assert.Equal(t, []string{"answer q1", "answer q2", "answer q3"}, answers)
	parser.AssertExpectations(t)
	index.AssertExpectations(t)
	llm.AssertExpectations(t)
	runLogs.AssertExpectations(t)
}

func TestQueryProcessor_Run_MissingAnswerDefaults(t *testing.T) {
	parser := new(MockDocumentParser)
	index := new(MockDocumentIndex)
	llm := new(MockAnswerEngine)
	p := NewQueryProcessor(parser, index, llm)

	parser.On("Parse", mock.Anything, policyURL).Return("text", nil)
	index.On("Namespace", policyURL).Return("")
	index.On("Upsert", mock.Anything, "", "text").Return(1, nil)
	llm.On("ExtractStructuredQuery", mock.Anything, "q").Return("sq", nil)
	index.On("Search", mock.Anything, "", "sq", DefaultSearchK).Return([]domain.Clause{}, nil)
	llm.On("EvaluateAndAnswer", mock.Anything, "sq", []domain.Clause{}, "q").
		Return(&domain.Answer{Rationale: "no answer key"}, nil)

	answers, err := p.Run(context.Background(), policyURL, []string{"q"})

	require.NoError(t, err)
	assert.Equal(t, []string{domain.NoAnswerFound}, answers)
}

func TestQueryProcessor_Run_BlankRewriteSearchesQuestion(t *testing.T) {
	parser := new(MockDocumentParser)
	index := new(MockDocumentIndex)
	llm := new(MockAnswerEngine)
	p := NewQueryProcessor(parser, index, llm)

	clauses := []domain.Clause{{ID: "c1", Content: "Knee surgery has a 24-month waiting period."}}
	parser.On("Parse", mock.Anything, policyURL).Return("text", nil)
	index.On("Namespace", policyURL).Return("")
	index.On("Upsert", mock.Anything, "", "text").Return(1, nil)
	llm.On("ExtractStructuredQuery", mock.Anything, "knee surgery?").Return("  \n", nil)
	index.On("Search", mock.Anything, "", "knee surgery?", DefaultSearchK).Return(clauses, nil)
	llm.On("EvaluateAndAnswer", mock.Anything, "  \n", clauses, "knee surgery?").
		Return(&domain.Answer{Answer: "24 months", HasAnswer: true}, nil)

	answers, err := p.Run(context.Background(), policyURL, []string{"knee surgery?"})

	require.NoError(t, err)
	assert.Equal(t, []string{"24 months"}, answers)
	index.AssertExpectations(t)
}

func TestQueryProcessor_Run_EmptyQuestions(t *testing.T) {
	parser := new(MockDocumentParser)
	index := new(MockDocumentIndex)
	llm := new(MockAnswerEngine)
	p := NewQueryProcessor(parser, index, llm)

	parser.On("Parse", mock.Anything, policyURL).Return("text", nil)
	index.On("Namespace", policyURL).Return("")
	index.On("Upsert", mock.Anything, "", "text").Return(1, nil)

	answers, err := p.Run(context.Background(), policyURL, nil)

	require.NoError(t, err)
	assert.Empty(t, answers)
	index.AssertExpectations(t)
	llm.AssertNotCalled(t, "ExtractStructuredQuery", mock.Anything, mock.Anything)
}

func TestQueryProcessor_Run_UnsupportedTypeAborts(t *testing.T) {
	parser := new(MockDocumentParser)
	index := new(MockDocumentIndex)
	llm := new(MockAnswerEngine)
	p := NewQueryProcessor(parser, index, llm)

	url := "https://example.com/policy.docx"
	parser.On("Parse", mock.Anything, url).Return("", domain.ErrUnsupportedDocumentType)

	answers, err := p.Run(context.Background(), url, []string{"q"})

	assert.Nil(t, answers)
	assert.ErrorIs(t, err, domain.ErrUnsupportedDocumentType)
	index.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything, mock.Anything)
	llm.AssertNotCalled(t, "ExtractStructuredQuery", mock.Anything, mock.Anything)
}

func TestQueryProcessor_Run_UpsertFailureAborts(t *testing.T) {
	parser := new(MockDocumentParser)
	index := new(MockDocumentIndex)
	llm := new(MockAnswerEngine)
	p := NewQueryProcessor(parser, index, llm)

	parser.On("Parse", mock.Anything, policyURL).Return("text", nil)
	index.On("Namespace", policyURL).Return("")
	index.On("Upsert", mock.Anything, "", "text").Return(0, domain.ErrIndexOperation)

	_, err := p.Run(context.Background(), policyURL, []string{"q"})

	assert.ErrorIs(t, err, domain.ErrIndexOperation)
	llm.AssertNotCalled(t, "ExtractStructuredQuery", mock.Anything, mock.Anything)
}

func TestQueryProcessor_Run_QuestionFailureFailsBatch(t *testing.T) {
	parser := new(MockDocumentParser)
	index := new(MockDocumentIndex)
	llm := new(MockAnswerEngine)
	runLogs := new(MockRunLogRepository)
	p := NewQueryProcessor(parser, index, llm, WithRunLogs(runLogs))

	parser.On("Parse", mock.Anything, policyURL).Return("text", nil)
	index.On("Namespace", policyURL).Return("")
	index.On("Upsert", mock.Anything, "", "text").Return(1, nil)
	llm.On("ExtractStructuredQuery", mock.Anything, "bad").Return("", domain.ErrCompletionFailed)
	llm.On("ExtractStructuredQuery", mock.Anything, "good").Return("sq", nil)
	index.On("Search", mock.Anything, "", "sq", DefaultSearchK).Return([]domain.Clause{}, nil)
	llm.On("EvaluateAndAnswer", mock.Anything, "sq", []domain.Clause{}, "good").
		Return(&domain.Answer{Answer: "ok", HasAnswer: true}, nil)

	answers, err := p.Run(context.Background(), policyURL, []string{"good", "bad"})

	assert.Nil(t, answers)
	assert.ErrorIs(t, err, domain.ErrCompletionFailed)
	runLogs.AssertNotCalled(t, "CreateRunLog", mock.Anything, mock.Anything)
}

func TestQueryProcessor_Run_RunLogFailureIgnored(t *testing.T) {
	parser := new(MockDocumentParser)
	index := new(MockDocumentIndex)
	llm := new(MockAnswerEngine)
	runLogs := new(MockRunLogRepository)
	p := NewQueryProcessor(parser, index, llm, WithRunLogs(runLogs))

	parser.On("Parse", mock.Anything, policyURL).Return("text", nil)
	index.On("Namespace", policyURL).Return("")
	index.On("Upsert", mock.Anything, "", "text").Return(1, nil)
	runLogs.On("CreateRunLog", mock.Anything, mock.Anything).Return("", errors.New("db down"))

	answers, err := p.Run(context.Background(), policyURL, []string{})

	require.NoError(t, err)
	assert.Empty(t, answers)
	runLogs.AssertExpectations(t)
}

// countingEngine tracks how many questions are in flight at once.
type countingEngine struct {
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (c *countingEngine) ExtractStructuredQuery(ctx context.Context, question string) (string, error) {
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		old := c.peak.Load()
		if n <= old || c.peak.CompareAndSwap(old, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return "sq " + question, nil
}

func (c *countingEngine) EvaluateAndAnswer(ctx context.Context, structuredQuery string, clauses []domain.Clause, question string) (*domain.Answer, error) {
	return &domain.Answer{Answer: question, HasAnswer: true}, nil
}

func TestQueryProcessor_Run_MaxConcurrency(t *testing.T) {
	parser := new(MockDocumentParser)
	index := new(MockDocumentIndex)
	engine := &countingEngine{}
	p := NewQueryProcessor(parser, index, engine, WithMaxConcurrency(2))

	parser.On("Parse", mock.Anything, policyURL).Return("text", nil)
	index.On("Namespace", policyURL).Return("")
	index.On("Upsert", mock.Anything, "", "text").Return(1, nil)
	index.On("Search", mock.Anything, "", mock.Anything, DefaultSearchK).Return([]domain.Clause{}, nil)

	questions := []string{"a", "b", "c", "d", "e", "f"}
	answers, err := p.Run(context.Background(), policyURL, questions)

	require.NoError(t, err)
	assert.Equal(t, questions, answers)
	assert.LessOrEqual(t, engine.peak.Load(), int32(2))
}
