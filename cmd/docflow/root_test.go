package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/dunamismax/docflow/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("DOCFLOW_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("DOCFLOW_API_BASE_URL", "")
	t.Setenv("DOCFLOW_ID_TOKEN", "")
	t.Setenv("OTEL_TRACES_EXPORTER", "none")

	var stdout, stderr bytes.Buffer
	root := newRootCommand(&stdout, &stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func gatewayStub(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /multipage-doc-analysis/jobs/query", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("nextToken") == "p2" {
			_, _ = io.WriteString(w, `{"items":[{"id":"job-3","document_name":"c.pdf","status":"failed"}]}`)
			return
		}
		if r.Header.Get("Authorization") != "Bearer cli-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, `{"items":[{"id":"job-1","document_name":"a.pdf","status":"completed"},{"id":"job-2","document_name":"b.pdf","status":"processing"}],"nextToken":"p2"}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestJobsListPrintsLiveSource(t *testing.T) {
	srv := gatewayStub(t)

	stdout, stderr, err := runCLI(t, "jobs", "list", "--base-url", srv.URL, "--token", "cli-token")
	require.NoError(t, err)
	assert.Contains(t, stderr, "source: live")
	assert.Contains(t, stderr, "next token: p2")
	assert.NotContains(t, stderr, "mock data")
	assert.Contains(t, stdout, "job-1")
	assert.Contains(t, stdout, "in_progress")
}

func TestJobsListAllFollowsTokens(t *testing.T) {
	srv := gatewayStub(t)

	stdout, _, err := runCLI(t, "jobs", "list", "--all", "--json", "--base-url", srv.URL, "--token", "cli-token")
	require.NoError(t, err)
	assert.Contains(t, stdout, `"job-3"`)
	assert.NotContains(t, stdout, "nextToken")
}

func TestJobsListFallsBackWithoutGateway(t *testing.T) {
	_, stderr, err := runCLI(t, "jobs", "list")
	require.NoError(t, err)
	assert.Contains(t, stderr, "source: fallback")
	assert.Contains(t, stderr, "output is local mock data")
}

func TestNoFallbackSurfacesError(t *testing.T) {
	_, _, err := runCLI(t, "jobs", "list", "--no-fallback")
	require.Error(t, err)
}

func TestJobsExportWritesWorkbook(t *testing.T) {
	srv := gatewayStub(t)
	out := filepath.Join(t.TempDir(), "jobs.xlsx")

	_, stderr, err := runCLI(t, "jobs", "export", "--out", out, "--base-url", srv.URL, "--token", "cli-token")
	require.NoError(t, err)
	assert.Contains(t, stderr, "exported 3 jobs")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Jobs")
	require.NoError(t, err)
	assert.Len(t, rows, 4)
}

func TestReadFileInputDetectsContentType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	in, err := readFileInput(path)
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", in.Name)
	assert.Contains(t, in.ContentType, "text/plain")
	assert.NoError(t, domain.CreateJobRequest{Name: "n", Document: in}.Validate())
}

func TestAnalyzeWritesLocalReport(t *testing.T) {
	dir := t.TempDir()
	doc := filepath.Join(dir, "memo.txt")
	require.NoError(t, os.WriteFile(doc, []byte("budget review budget approved"), 0o644))
	outDir := filepath.Join(t.TempDir(), "out")

	stdout, stderr, err := runCLI(t, "analyze", doc, "--out-dir", outDir, "--job-id", "local-1")
	require.NoError(t, err)
	assert.Contains(t, stderr, filepath.Join(outDir, "reports", "local-1.json"))

	var printed map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &printed))
	assert.Equal(t, "local-1", printed["jobId"])
	assert.Equal(t, "memo.txt", printed["jobName"])

	written, err := os.ReadFile(filepath.Join(outDir, "reports", "local-1.json"))
	require.NoError(t, err)
	assert.Contains(t, string(written), `"documentKey": "memo.txt"`)
}
