//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/cloo-solutions/policyqa/internal/api/handlers"
	"github.com/cloo-solutions/policyqa/internal/gemini"
	"github.com/cloo-solutions/policyqa/internal/parser"
	"github.com/cloo-solutions/policyqa/internal/repository"
	"github.com/cloo-solutions/policyqa/internal/server"
	"github.com/cloo-solutions/policyqa/internal/service"
	"github.com/cloo-solutions/policyqa/internal/storage"
	"github.com/cloo-solutions/policyqa/internal/testutil"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	bearerToken = "e2e-bearer-token"
	indexName   = "e2e-index"
	dimensions  = 768
)

// policyText is served as the body of policy.pdf. The e2e parser treats
// document bytes as text so no PDF fixture is needed.
const policyText = `Section 4. Waiting Periods

Pre-existing diseases are covered after a waiting period of 24 months of continuous coverage.

Section 5. Exclusions

Cosmetic surgery is not covered under any circumstances.`

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T            *testing.T
	Ctx          context.Context
	PostgresC    *testutil.PostgresContainer
	RustFSC      *testutil.RustFSContainer
	Pool         *pgxpool.Pool
	S3Client     *storage.S3Client
	DocsServer   *httptest.Server
	GeminiServer *httptest.Server
	ServerURL    string
	ServerCloser func()
	BinaryDir    string
	HTTPClient   *http.Client
}

// SetupE2EEnv starts Postgres and RustFS, fake document and model hosts and
// the API server wired the way policyqad wires it.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	s3C := testutil.NewRustFSContainer(ctx, t)
	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        s3C.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     "rustfsadmin",
		SecretAccessKey: "rustfsadmin",
		Bucket:          "test-documents",
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("failed to create S3 client: %v", err)
	}
	if err := s3Client.EnsureBucket(ctx); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}

	env := &E2ETestEnv{
		T:            t,
		Ctx:          ctx,
		PostgresC:    pgC,
		RustFSC:      s3C,
		Pool:         pool,
		S3Client:     s3Client,
		DocsServer:   newDocsServer(),
		GeminiServer: newGeminiServer(t),
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
	}

	port, err := getFreePort()
	if err != nil {
		env.Cleanup()
		t.Fatalf("failed to get free port: %v", err)
	}
	env.ServerURL, env.ServerCloser = env.startServer(port)

	return env
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.ServerCloser != nil {
		e.ServerCloser()
	}
	if e.DocsServer != nil {
		e.DocsServer.Close()
	}
	if e.GeminiServer != nil {
		e.GeminiServer.Close()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.RustFSC != nil {
		e.RustFSC.Terminate(e.Ctx)
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
	if e.BinaryDir != "" {
		os.RemoveAll(e.BinaryDir)
	}
}

// DocumentURL returns the fake host URL for a document path.
func (e *E2ETestEnv) DocumentURL(path string) string {
	return e.DocsServer.URL + path
}

// BuildBinaries builds the policyqa CLI
func (e *E2ETestEnv) BuildBinaries() {
	tmpDir, err := os.MkdirTemp("", "policyqa-e2e-*")
	if err != nil {
		e.T.Fatalf("failed to create temp dir: %v", err)
	}
	e.BinaryDir = tmpDir

	cmd := exec.Command("go", "build", "-o", filepath.Join(tmpDir, "policyqa"), "./cmd/policyqa")
	cmd.Dir = "../.."
	if out, err := cmd.CombinedOutput(); err != nil {
		e.T.Fatalf("failed to build policyqa: %v\n%s", err, out)
	}
}

// RunCLI runs the policyqa CLI against the test server
func (e *E2ETestEnv) RunCLI(args ...string) (string, error) {
	cmd := exec.Command(filepath.Join(e.BinaryDir, "policyqa"), args...)
	cmd.Dir = e.BinaryDir
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("POLICYQA_API_KEY=%s", bearerToken),
		fmt.Sprintf("POLICYQA_API_URL=%s", e.ServerURL),
	)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// RunResult is the decoded outcome of a run request.
type RunResult struct {
	Status  int
	Answers []string `json:"answers"`
	Error   string   `json:"error"`
}

// Run posts a run request with the given bearer token; an empty token sends
// no Authorization header.
func (e *E2ETestEnv) Run(documentURL string, questions []string, token string) (*RunResult, error) {
	body, err := json.Marshal(map[string]interface{}{
		"documents": documentURL,
		"questions": questions,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal body: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, e.ServerURL+"/api/v1/hackrx/run", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	result := &RunResult{Status: resp.StatusCode}
	if err := json.Unmarshal(respBody, result); err != nil {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}
	return result, nil
}

// CountRows counts rows in a table.
func (e *E2ETestEnv) CountRows(table string) int {
	var n int
	if err := e.Pool.QueryRow(e.Ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		e.T.Fatalf("failed to count %s: %v", table, err)
	}
	return n
}

func (e *E2ETestEnv) startServer(port int) (string, func()) {
	outbound := &http.Client{Timeout: 30 * time.Second}

	llm := gemini.NewClientWithConfig(gemini.Config{
		APIKey:              "e2e-google-key",
		BaseURL:             e.GeminiServer.URL,
		EmbeddingDimensions: dimensions,
		HTTPClient:          outbound,
	})

	index := repository.NewVectorRepository(e.Pool, indexName, dimensions)
	if err := index.EnsureIndex(e.Ctx); err != nil {
		e.T.Fatalf("failed to ensure index: %v", err)
	}

	docParser := parser.New(
		parser.WithHTTPClient(outbound),
		parser.WithExtractor(func(data []byte) (string, error) { return string(data), nil }),
		parser.WithArchiver(e.S3Client),
	)

	processor := service.NewQueryProcessor(
		docParser,
		service.NewIndexService(llm, index),
		service.NewLLMService(llm),
		service.WithRunLogs(repository.NewRunLogRepository(e.Pool)),
	)

	router := server.NewRouter(server.RouterConfig{
		BearerToken: bearerToken,
		RunHandler:  handlers.NewRunHandler(processor),
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			e.T.Logf("server error: %v", err)
		}
	}()

	serverURL := fmt.Sprintf("http://localhost:%d", port)
	waitForServer(e.T, serverURL, 10*time.Second)

	return serverURL, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

func newDocsServer() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/policy.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte(policyText))
	})
	return httptest.NewServer(mux)
}

var userQuestion = regexp.MustCompile(`User Question: (.*)`)

// newGeminiServer fakes the OpenAI-compatible embeddings and chat endpoints.
// Answers are keyed on the question text found in the answer prompt.
func newGeminiServer(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		switch r.URL.Path {
		case "/embeddings":
			var req struct {
				Input []string `json:"input"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			data := make([]map[string]interface{}, len(req.Input))
			for i, text := range req.Input {
				data[i] = map[string]interface{}{
					"object":    "embedding",
					"index":     i,
					"embedding": hashEmbedding(text),
				}
			}
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"object": "list", "data": data})
		case "/chat/completions":
			var req struct {
				Messages []struct {
					Content string `json:"content"`
				} `json:"messages"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) == 0 {
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"object": "chat.completion",
				"choices": []map[string]interface{}{{
					"index":         0,
					"finish_reason": "stop",
					"message":       map[string]interface{}{"role": "assistant", "content": fakeCompletion(req.Messages[0].Content)},
				}},
			})
		default:
			t.Logf("unexpected model request: %s", r.URL.Path)
			http.NotFound(w, r)
		}
	}))
}

func fakeCompletion(prompt string) string {
	if strings.Contains(prompt, "powerful query parser") {
		return "POLICY COVERAGE: waiting period. CONDITIONS: pre-existing diseases."
	}

	question := ""
	if m := userQuestion.FindStringSubmatch(prompt); m != nil {
		question = strings.ToLower(m[1])
	}

	switch {
	case strings.Contains(question, "waiting period"):
		return "```json\n" + `{"answer": "24 months", "source_clauses": ["Pre-existing diseases are covered after a waiting period of 24 months of continuous coverage."], "rationale": "Section 4 states the waiting period."}` + "\n```"
	case strings.Contains(question, "maternity"):
		return `{"answer": null, "source_clauses": [], "rationale": "No clause mentions maternity."}`
	default:
		return "I am not able to answer that."
	}
}

// hashEmbedding derives a deterministic non-zero vector from the text.
func hashEmbedding(text string) []float32 {
	vec := make([]float32, dimensions)
	seed := sha256.Sum256([]byte(text))
	for i := range vec {
		block := sha256.Sum256(append(seed[:], byte(i), byte(i>>8)))
		v := binary.BigEndian.Uint32(block[:4])
		vec[i] = float32(v)/float32(math.MaxUint32) + 0.01
	}
	return vec
}

func waitForServer(t *testing.T, url string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server did not start within %v", timeout)
}

func getFreePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
