package domain

import "regexp"

const (
	// NoAnswerFound is reported when a synthesized answer carries no answer field.
	NoAnswerFound = "No answer found."

	// MalformedAnswerMessage replaces the answer when the model output is not JSON.
	MalformedAnswerMessage = "An error occurred while processing the response. The LLM's output was not in the expected JSON format."

	rawEchoLimit = 200
)

// jsonObjectPattern is greedy: first '{' through last '}'.
var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// Answer is the structured reply synthesized for one question.
type Answer struct {
	Answer        string   `json:"answer"`
	SourceClauses []string `json:"source_clauses"`
	Rationale     string   `json:"rationale"`

	// HasAnswer is false when the model JSON had no "answer" key.
	HasAnswer bool `json:"-"`
}

// Text returns the answer string or NoAnswerFound.
func (a *Answer) Text() string {
	if a == nil || !a.HasAnswer {
		return NoAnswerFound
	}
	return a.Answer
}

// ExtractJSONObject returns the first brace-delimited span of raw.
func ExtractJSONObject(raw string) (string, bool) {
	match := jsonObjectPattern.FindString(raw)
	if match == "" {
		return "", false
	}
	return match, true
}

// MalformedAnswer builds the fallback answer for unparseable model output.
func MalformedAnswer(raw string) *Answer {
	echo := []rune(raw)
	if len(echo) > rawEchoLimit {
		echo = echo[:rawEchoLimit]
	}
	return &Answer{
		Answer:        MalformedAnswerMessage,
		SourceClauses: []string{},
		Rationale:     "Failed to parse LLM response into JSON. Raw response: " + string(echo) + "...",
		HasAnswer:     true,
	}
}
