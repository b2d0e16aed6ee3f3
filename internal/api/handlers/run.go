package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/cloo-solutions/policyqa/internal/api"
	"github.com/cloo-solutions/policyqa/internal/domain"
)

type QueryRunner interface {
	Run(ctx context.Context, documentURL string, questions []string) ([]string, error)
}

type RunHandler struct {
	runner QueryRunner
}

func NewRunHandler(runner QueryRunner) *RunHandler {
	return &RunHandler{runner: runner}
}

type RunRequest struct {
	Documents string   `json:"documents"`
	Questions []string `json:"questions"`
}

type RunResponse struct {
	Answers []string `json:"answers"`
}

// Run ingests the referenced document and answers every question against it.
// The response body is not wrapped in the usual data envelope.
func (h *RunHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Documents == "" {
		api.Error(w, http.StatusBadRequest, "documents is required")
		return
	}
	if !isHTTPURL(req.Documents) {
		api.Error(w, http.StatusBadRequest, domain.ErrInvalidDocumentURL.Message)
		return
	}
	if req.Questions == nil {
		api.Error(w, http.StatusBadRequest, "questions is required")
		return
	}

	answers, err := h.runner.Run(r.Context(), req.Documents, req.Questions)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	if answers == nil {
		answers = []string{}
	}

	api.JSON(w, http.StatusOK, RunResponse{Answers: answers})
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return (scheme == "http" || scheme == "https") && u.Host != ""
}
