package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/JaimeStill/attest/internal/documents"
	"github.com/JaimeStill/attest/internal/orchestration"
	"github.com/JaimeStill/attest/internal/workflow"
	"github.com/JaimeStill/attest/pkg/module"
	"github.com/JaimeStill/attest/pkg/pagination"
	"github.com/JaimeStill/attest/pkg/routes"
)

type okServices struct{}

func (okServices) Send(_ context.Context, files []orchestration.UploadFile) ([]documents.Outcome, error) {
	out := make([]documents.Outcome, len(files))
	for i := range out {
		out[i] = documents.OK()
	}
	return out, nil
}

func (okServices) Setup(context.Context, string) error { return nil }

func (okServices) Process(context.Context) error { return nil }

func (okServices) Analyze(context.Context, string) error { return nil }

func newTestServer(t *testing.T) string {
	t.Helper()

	svc := okServices{}
	sys, err := orchestration.New(orchestration.DefaultConfig(), orchestration.Services{
		Upload:     svc,
		Ingestion:  svc,
		Processing: svc,
		Analysis:   svc,
	}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}

	mux := http.NewServeMux()
	routes.Register(mux, sys.Handler(pagination.Config{DefaultPageSize: 20, MaxPageSize: 100}, 10<<20).Routes())

	srv := httptest.NewServer(module.New("/api", mux))
	t.Cleanup(func() {
		srv.Close()
		sys.Close()
	})
	return srv.URL
}

func runCLI(t *testing.T, server string, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--server", server}, args...))

	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func requireContains(t *testing.T, out, want string) {
	t.Helper()
	if !strings.Contains(out, want) {
		t.Fatalf("output missing %q:\n%s", want, out)
	}
}

func TestStatus(t *testing.T) {
	server := newTestServer(t)

	out, err := runCLI(t, server, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Ingestion")
	requireContains(t, out, "pending")
	requireContains(t, out, "Configuration: unlocked")
	requireContains(t, out, "Documents: 0 total")
}

func TestWorkflow(t *testing.T) {
	server := newTestServer(t)
	dir := t.TempDir()

	path := filepath.Join(dir, "controls.md")
	if err := os.WriteFile(path, []byte("# Access controls"), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := runCLI(t, server, "upload", path)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	requireContains(t, out, "controls.md")
	requireContains(t, out, "Uploaded 1, failed 0")

	out, err = runCLI(t, server, "documents", "--status", "uploaded")
	if err != nil {
		t.Fatalf("documents: %v", err)
	}
	requireContains(t, out, "controls.md")

	if _, err := runCLI(t, server, "configure", "Acme", "Corp"); err != nil {
		t.Fatalf("configure: %v", err)
	}

	out, err = runCLI(t, server, "ingest")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	requireContains(t, out, "Company: Acme Corp")

	if _, err := runCLI(t, server, "process"); err != nil {
		t.Fatalf("process: %v", err)
	}

	out, err = runCLI(t, server, "--json", "analyze", "hipaa")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	var state orchestration.State
	if err := json.Unmarshal([]byte(out), &state); err != nil {
		t.Fatalf("decode json output: %v\n%s", err, out)
	}
	if state.Configuration.Regulation != "HIPAA" {
		t.Errorf("regulation: got %s", state.Configuration.Regulation)
	}
	for _, s := range state.Stages {
		if s.Status != workflow.StatusCompleted {
			t.Errorf("%s: got %s, want completed", s.Stage, s.Status)
		}
	}
	if len(state.Documents) != 1 || state.Documents[0].Status != documents.StatusProcessed {
		t.Errorf("documents: %+v", state.Documents)
	}
}

func TestErrors(t *testing.T) {
	server := newTestServer(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"processing gated", []string{"process"}, "409"},
		{"cancel idle", []string{"cancel", "ingestion"}, "not running"},
		{"unknown stage", []string{"reset", "review"}, "review"},
		{"bad status filter", []string{"documents", "--status", "lost"}, "lost"},
		{"bad id", []string{"remove", "nope"}, "invalid document id"},
		{"missing upload args", []string{"upload"}, "requires at least 1 arg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, server, tt.args...)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not contain %q", err, tt.want)
			}
		})
	}
}

func TestServerFromEnv(t *testing.T) {
	server := newTestServer(t)
	t.Setenv(envServer, server)

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"regulations"})

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("regulations: %v", err)
	}
	requireContains(t, out.String(), "ISO27001")
}
