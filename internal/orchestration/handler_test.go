package orchestration_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/JaimeStill/attest/internal/documents"
	"github.com/JaimeStill/attest/internal/orchestration"
	"github.com/JaimeStill/attest/internal/workflow"
	"github.com/JaimeStill/attest/pkg/openapi"
	"github.com/JaimeStill/attest/pkg/pagination"
	"github.com/JaimeStill/attest/pkg/routes"
)

func newServer(t *testing.T, maxUpload int64) (*httptest.Server, orchestration.System) {
	t.Helper()
	sys := newFacade(t, orchestration.DefaultConfig(), okServices())

	mux := http.NewServeMux()
	routes.Register(mux, sys.Handler(pagination.Config{DefaultPageSize: 20, MaxPageSize: 100}, maxUpload).Routes())

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, sys
}

func multipartBody(t *testing.T, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, content := range files {
		part, err := w.CreateFormFile("files", name)
		if err != nil {
			t.Fatal(err)
		}
		part.Write([]byte(content))
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, w.FormDataContentType()
}

func do(t *testing.T, method, url, contentType string, body *bytes.Buffer) *http.Response {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatal(err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func jsonBody(v any) *bytes.Buffer {
	var buf bytes.Buffer
	json.NewEncoder(&buf).Encode(v)
	return &buf
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func TestHandlerUploadAndList(t *testing.T) {
	srv, _ := newServer(t, 1<<20)

	body, ct := multipartBody(t, map[string]string{
		"notes.txt": "plain text notes",
		"tool.exe":  "MZ",
	})
	resp := do(t, "POST", srv.URL+"/documents", ct, body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload status: got %d", resp.StatusCode)
	}

	report := decode[orchestration.UploadReport](t, resp)
	if report.Uploaded != 1 || report.Failed != 1 {
		t.Errorf("report: got %+v", report)
	}

	resp = do(t, "GET", srv.URL+"/documents?status=uploaded", "", nil)
	page := decode[pagination.PageResult[documents.Document]](t, resp)
	if page.Total != 1 || page.Data[0].Name != "notes.txt" {
		t.Errorf("uploaded page: got %+v", page)
	}
	if !strings.HasPrefix(page.Data[0].ContentType, "text/plain") {
		t.Errorf("content type: got %q", page.Data[0].ContentType)
	}

	resp = do(t, "GET", srv.URL+"/documents?page_size=1&page=2", "", nil)
	page = decode[pagination.PageResult[documents.Document]](t, resp)
	if page.Total != 2 || page.TotalPages != 2 || len(page.Data) != 1 {
		t.Errorf("second page: got %+v", page)
	}

	resp = do(t, "GET", srv.URL+"/documents?status=archived", "", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad status filter: got %d", resp.StatusCode)
	}
}

func TestHandlerUploadTooLarge(t *testing.T) {
	srv, _ := newServer(t, 512)

	body, ct := multipartBody(t, map[string]string{"big.txt": strings.Repeat("x", 4096)})
	resp := do(t, "POST", srv.URL+"/documents", ct, body)
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("got %d, want 413", resp.StatusCode)
	}
}

func TestHandlerUploadNoFiles(t *testing.T) {
	srv, _ := newServer(t, 1<<20)

	body, ct := multipartBody(t, nil)
	resp := do(t, "POST", srv.URL+"/documents", ct, body)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("got %d, want 400", resp.StatusCode)
	}
}

func TestHandlerFindAndRemove(t *testing.T) {
	srv, sys := newServer(t, 1<<20)
	report := mustUpload(t, sys, "a.pdf")
	id := report.Items[0].ID.String()

	tests := []struct {
		name   string
		method string
		path   string
		status int
	}{
		{"find", "GET", "/documents/" + id, http.StatusOK},
		{"find invalid id", "GET", "/documents/not-a-uuid", http.StatusBadRequest},
		{"find unknown", "GET", "/documents/00000000-0000-0000-0000-000000000001", http.StatusNotFound},
		{"remove", "DELETE", "/documents/" + id, http.StatusNoContent},
		{"remove again", "DELETE", "/documents/" + id, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, tt.method, srv.URL+tt.path, "", nil)
			if resp.StatusCode != tt.status {
				t.Errorf("got %d, want %d", resp.StatusCode, tt.status)
			}
		})
	}
}

func TestHandlerWorkflow(t *testing.T) {
	srv, sys := newServer(t, 1<<20)
	mustUpload(t, sys, "a.pdf")

	resp := do(t, "POST", srv.URL+"/workflow/processing", "", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("processing before ingestion: got %d, want 409", resp.StatusCode)
	}

	resp = do(t, "PUT", srv.URL+"/workflow/configuration", "application/json", jsonBody(map[string]string{}))
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty configure: got %d, want 400", resp.StatusCode)
	}

	resp = do(t, "PUT", srv.URL+"/workflow/configuration", "application/json",
		jsonBody(orchestration.ConfigureRequest{CompanyDescription: "Acme Corp"}))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("configure: got %d", resp.StatusCode)
	}

	resp = do(t, "POST", srv.URL+"/workflow/ingestion", "", nil)
	st := decode[orchestration.State](t, resp)
	if resp.StatusCode != http.StatusOK || st.Configuration.CompanyDescription != "Acme Corp" {
		t.Fatalf("ingestion from draft: status %d, config %+v", resp.StatusCode, st.Configuration)
	}

	resp = do(t, "POST", srv.URL+"/workflow/processing", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("processing: got %d", resp.StatusCode)
	}

	resp = do(t, "POST", srv.URL+"/workflow/analysis", "application/json",
		jsonBody(orchestration.AnalysisRequest{Regulation: "SOX"}))
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unsupported regulation: got %d, want 400", resp.StatusCode)
	}

	resp = do(t, "POST", srv.URL+"/workflow/analysis", "application/json",
		jsonBody(orchestration.AnalysisRequest{Regulation: "NIST"}))
	st = decode[orchestration.State](t, resp)
	if st.Stage(workflow.Analysis).Status != workflow.StatusCompleted || st.Configuration.Regulation != "NIST" {
		t.Errorf("analysis: got %+v", st.Stage(workflow.Analysis))
	}

	resp = do(t, "POST", srv.URL+"/workflow/analysis/cancel", "", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("cancel idle stage: got %d, want 409", resp.StatusCode)
	}

	resp = do(t, "POST", srv.URL+"/workflow/review/reset", "", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("reset unknown stage: got %d, want 400", resp.StatusCode)
	}

	resp = do(t, "POST", srv.URL+"/workflow/analysis/reset", "", nil)
	st = decode[orchestration.State](t, resp)
	if st.Stage(workflow.Analysis).Status != workflow.StatusPending {
		t.Errorf("reset analysis: got %+v", st.Stage(workflow.Analysis))
	}

	resp = do(t, "GET", srv.URL+"/workflow/regulations", "", nil)
	regs := decode[[]string](t, resp)
	if len(regs) != 4 {
		t.Errorf("regulations: got %v", regs)
	}
}

func TestHandlerRoutesDescribed(t *testing.T) {
	sys := newFacade(t, orchestration.DefaultConfig(), okServices())
	h := sys.Handler(pagination.Config{DefaultPageSize: 20, MaxPageSize: 100}, 1<<20)

	spec := openapi.NewSpec("Attest", "test")
	routes.Describe(spec, "/api", h.Routes())

	for _, path := range []string{
		"/api/documents",
		"/api/documents/{id}",
		"/api/workflow",
		"/api/workflow/{stage}/cancel",
	} {
		if _, ok := spec.Paths[path]; !ok {
			t.Errorf("missing path %s", path)
		}
	}

	if _, ok := spec.Components.Schemas["WorkflowState"]; !ok {
		t.Error("missing WorkflowState schema")
	}
}
