package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"text/template"

	"github.com/cloo-solutions/policyqa/internal/domain"
	"github.com/cloo-solutions/policyqa/internal/telemetry"
)

// Completer runs a single-turn chat completion.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

var structuredQueryPrompt = template.Must(template.New("structured_query").Parse(`
You are a powerful query parser. Your task is to extract the core intent, entities, and conditions from a natural language query about a policy document.

Natural Query: {{.Question}}

Please provide a structured, detailed query that can be used to search for relevant information.

Example:
Natural Query: "Does this policy cover knee surgery, and what are the conditions?"
Structured Query: "POLICY COVERAGE: Knee surgery. CONDITIONS: Waiting period, sub-limits, exclusions."

Natural Query: {{.Question}}
Structured Query:
`))

var answerPrompt = template.Must(template.New("answer").Parse(`
You are an expert policy analyst. You have been given a user question, a structured query, and several relevant policy clauses.
Your task is to answer the question based *only* on the provided clauses. If the clauses do not contain the answer, state that you cannot find the information.

**CRITICAL INSTRUCTIONS:**
1.  **Extract Specific Numerical Values:** When the question asks for quantities, durations, percentages, or monetary limits, you MUST find and state the exact numerical value from the clauses. Do not generalize or state that it's "subject to limits" if a specific number is present.
2.  **Prioritize General Rules:** If a question asks for a general policy (e.g., "waiting period for pre-existing diseases"), look for overarching rules before specific examples. Only include specific examples if the general rule is not found, or if the question explicitly asks for examples.
3.  **Maintain Specificity:** Ensure the answer directly addresses all parts of the question.

User Question: {{.Question}}
Structured Query: {{.StructuredQuery}}
Relevant Clauses:
{{.Clauses}}

Your response must be in a JSON format with three keys:
1. "answer": The direct answer to the question.
2. "source_clauses": A list of the specific clauses that were used to formulate the answer.
3. "rationale": A brief explanation of how you arrived at the answer using the clauses.

Answer:
`))

// LLMService rewrites questions into search queries and synthesizes answers.
type LLMService struct {
	llm Completer
}

func NewLLMService(llm Completer) *LLMService {
	return &LLMService{llm: llm}
}

// ExtractStructuredQuery returns the model's rewrite of question, unmodified.
func (s *LLMService) ExtractStructuredQuery(ctx context.Context, question string) (string, error) {
	ctx, span := telemetry.StartSpan(ctx, "llm.ExtractStructuredQuery", telemetry.SpanAttributes{
		Question:  question,
		Operation: "structured_query",
	})
	defer span.End()

	prompt, err := render(structuredQueryPrompt, map[string]string{"Question": question})
	if err != nil {
		return "", err
	}

	out, err := s.llm.Complete(ctx, prompt)
	if err != nil {
		span.SetError(err)
		return "", domain.ErrCompletionFailed.WithCause(err)
	}
	return out, nil
}

// EvaluateAndAnswer asks the model to answer question from clauses only.
// Output that does not contain a decodable JSON object yields
// domain.MalformedAnswer instead of an error.
func (s *LLMService) EvaluateAndAnswer(ctx context.Context, structuredQuery string, clauses []domain.Clause, question string) (*domain.Answer, error) {
	ctx, span := telemetry.StartSpan(ctx, "llm.EvaluateAndAnswer", telemetry.SpanAttributes{
		Question:  question,
		Operation: "answer",
	})
	defer span.End()

	prompt, err := render(answerPrompt, map[string]string{
		"Question":        question,
		"StructuredQuery": structuredQuery,
		"Clauses":         strings.Join(domain.ClauseContents(clauses), "\n\n"),
	})
	if err != nil {
		return nil, err
	}

	raw, err := s.llm.Complete(ctx, prompt)
	if err != nil {
		span.SetError(err)
		return nil, domain.ErrCompletionFailed.WithCause(err)
	}

	answer, err := ParseAnswer(raw)
	if err != nil {
		log.Printf("llm: error parsing JSON from model: %v", err)
		return domain.MalformedAnswer(raw), nil
	}
	return answer, nil
}

// ParseAnswer decodes the greedy brace span of raw into an Answer. Keys
// are matched exactly, so "Answer" is not "answer".
func ParseAnswer(raw string) (*domain.Answer, error) {
	obj, ok := domain.ExtractJSONObject(raw)
	if !ok {
		return nil, fmt.Errorf("no JSON object in model output")
	}

	// Values stay undecoded so non-string answers survive.
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(obj), &fields); err != nil {
		return nil, fmt.Errorf("decode model output: %w", err)
	}

	answer := &domain.Answer{
		Answer:        jsonText(fields["answer"]),
		SourceClauses: jsonTextList(fields["source_clauses"]),
		Rationale:     jsonText(fields["rationale"]),
		HasAnswer:     !isNull(fields["answer"]),
	}
	return answer, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

func jsonText(raw json.RawMessage) string {
	if isNull(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func jsonTextList(raw json.RawMessage) []string {
	if isNull(raw) {
		return []string{}
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return []string{jsonText(raw)}
	}
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = jsonText(item)
	}
	return out
}

func render(t *template.Template, data map[string]string) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", t.Name(), err)
	}
	return buf.String(), nil
}
