//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloo-solutions/docqa/internal/api/handlers"
	"github.com/cloo-solutions/docqa/internal/embedding"
	"github.com/cloo-solutions/docqa/internal/extract"
	"github.com/cloo-solutions/docqa/internal/repository"
	"github.com/cloo-solutions/docqa/internal/retry"
	"github.com/cloo-solutions/docqa/internal/server"
	"github.com/cloo-solutions/docqa/internal/service"
	"github.com/cloo-solutions/docqa/internal/storage"
	"github.com/cloo-solutions/docqa/internal/testutil"
	"github.com/cloo-solutions/docqa/internal/vectorindex"
)

const (
	testAPIKey     = "e2e-test-key-0123456789"
	testCollection = "e2e_chunks"
	testDimension  = 256
)

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T            *testing.T
	Ctx          context.Context
	PostgresC    *testutil.PostgresContainer
	RustFSC      *testutil.RustFSContainer
	Pool         *pgxpool.Pool
	Index        *vectorindex.PgVectorIndex
	ServerURL    string
	ServerCloser func()
	S3Client     *storage.S3Client
	BinaryDir    string
	HTTPClient   *http.Client
}

// SetupE2EEnv starts Postgres with pgvector and RustFS, then serves the API
// over them with the local embedding tier and no chat model.
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
		Bucket:          "e2e-sources",
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("failed to create S3 client: %v", err)
	}
	if err := s3Client.EnsureBucket(ctx); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}

	index, err := vectorindex.NewPgVectorIndex(pool, vectorindex.PgVectorConfig{
		Collection: testCollection,
		Lists:      4,
		Probes:     4,
	}, nil)
	if err != nil {
		t.Fatalf("failed to create index: %v", err)
	}
	if err := index.EnsureCollection(ctx, testCollection, testDimension); err != nil {
		t.Fatalf("failed to ensure collection: %v", err)
	}

	port, err := getFreePort()
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}

	serverURL, serverCloser := startServer(t, pool, index, s3Client, port)

	return &E2ETestEnv{
		T:            t,
		Ctx:          ctx,
		PostgresC:    pgC,
		RustFSC:      s3C,
		Pool:         pool,
		Index:        index,
		ServerURL:    serverURL,
		ServerCloser: serverCloser,
		S3Client:     s3Client,
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.ServerCloser != nil {
		e.ServerCloser()
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

// BuildBinaries builds the docqa client binary
func (e *E2ETestEnv) BuildBinaries() {
	tmpDir, err := os.MkdirTemp("", "docqa-e2e-*")
	if err != nil {
		e.T.Fatalf("failed to create temp dir: %v", err)
	}
	e.BinaryDir = tmpDir

	cmd := exec.Command("go", "build", "-o", filepath.Join(tmpDir, "docqa"), "./cmd/docqa")
	cmd.Dir = "../.."
	if out, err := cmd.CombinedOutput(); err != nil {
		e.T.Fatalf("failed to build docqa: %v\n%s", err, out)
	}
}

// RunDocqa runs the docqa CLI against the test server
func (e *E2ETestEnv) RunDocqa(workDir string, args ...string) (string, error) {
	cmd := exec.Command(filepath.Join(e.BinaryDir, "docqa"), args...)
	cmd.Dir = workDir
	cmd.Env = append(os.Environ(),
		"DOCQA_API_KEY="+testAPIKey,
		"DOCQA_API_URL="+e.ServerURL,
		// keep a developer's stored credentials out of the run
		"XDG_CONFIG_HOME="+workDir,
		"HOME="+workDir,
	)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// APIResponse represents a standard API response
type APIResponse struct {
	StatusCode int
	Data       json.RawMessage `json:"data"`
	Error      string          `json:"error,omitempty"`
}

// Get performs a GET request
func (e *E2ETestEnv) Get(path string) (*APIResponse, error) {
	return e.doRequest(http.MethodGet, path, nil, "application/json", testAPIKey)
}

// Post performs a POST request with a JSON body
func (e *E2ETestEnv) Post(path string, body any) (*APIResponse, error) {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		reader = bytes.NewReader(jsonData)
	}
	return e.doRequest(http.MethodPost, path, reader, "application/json", testAPIKey)
}

// Delete performs a DELETE request
func (e *E2ETestEnv) Delete(path string) (*APIResponse, error) {
	return e.doRequest(http.MethodDelete, path, nil, "", testAPIKey)
}

// Upload posts raw document bytes to /documents
func (e *E2ETestEnv) Upload(filename, sourceID, contentType string, content []byte) (*APIResponse, error) {
	query := url.Values{}
	query.Set("filename", filename)
	if sourceID != "" {
		query.Set("source_id", sourceID)
	}
	return e.doRequest(http.MethodPost, "/documents?"+query.Encode(), bytes.NewReader(content), contentType, testAPIKey)
}

// Unauthenticated performs a GET without a bearer token
func (e *E2ETestEnv) Unauthenticated(path string) (*APIResponse, error) {
	return e.doRequest(http.MethodGet, path, nil, "", "")
}

func (e *E2ETestEnv) doRequest(method, path string, body io.Reader, contentType, authToken string) (*APIResponse, error) {
	req, err := http.NewRequestWithContext(e.Ctx, method, e.ServerURL+path, body)
	if err != nil {
		return nil, err
	}
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
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

	apiResp := APIResponse{StatusCode: resp.StatusCode}
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &apiResp); err != nil {
			return &apiResp, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
		}
	}
	if resp.StatusCode >= 400 {
		return &apiResp, fmt.Errorf("HTTP %d: %s", resp.StatusCode, apiResp.Error)
	}

	return &apiResp, nil
}

// startServer wires the same services docqad serve does, minus the chat model.
func startServer(t *testing.T, pool *pgxpool.Pool, index *vectorindex.PgVectorIndex, s3Client *storage.S3Client, port int) (string, func()) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	embedder := embedding.New([]embedding.Tier{embedding.NewLocalTier(testDimension)}, embedding.Config{
		Dimension: testDimension,
		BatchSize: 8,
		Retry:     retry.Policy{MaxAttempts: 1, InitialInterval: time.Millisecond},
	}, logger)

	ingestion := service.NewIngestionService(embedder, index, extract.NewRegistry(),
		service.WithSourceStore(s3Client),
		service.WithDocumentRepository(repository.NewDocumentRepository(pool)),
		service.WithChunkConfig(service.ChunkConfig{MaxChars: 120, Overlap: 20}),
		service.WithIngestionLogger(logger),
	)
	retrieval := service.NewRetrievalService(embedder, index, nil, logger)

	router := server.NewRouter(server.RouterConfig{
		APIKey:          testAPIKey,
		Logger:          logger,
		DocumentHandler: handlers.NewDocumentHandler(ingestion),
		QueryHandler:    handlers.NewQueryHandler(retrieval),
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.Logf("server error: %v", err)
		}
	}()

	serverURL := fmt.Sprintf("http://localhost:%d", port)
	waitForServer(t, serverURL, 10*time.Second)

	return serverURL, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
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
