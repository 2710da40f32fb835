package orchestration

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/JaimeStill/attest/internal/documents"
	"github.com/JaimeStill/attest/internal/workflow"
	"github.com/JaimeStill/attest/pkg/handlers"
	"github.com/JaimeStill/attest/pkg/pagination"
	"github.com/JaimeStill/attest/pkg/routes"
)

// ErrUploadTooLarge is returned when a multipart upload exceeds the request limit.
var ErrUploadTooLarge = errors.New("upload exceeds maximum request size")

// Handler provides HTTP endpoints for documents and workflow stages.
type Handler struct {
	sys           System
	logger        *slog.Logger
	pagination    pagination.Config
	maxUploadSize int64
}

// ConfigureRequest sets the draft company description.
type ConfigureRequest struct {
	CompanyDescription string `json:"company_description" validate:"required,max=10000"`
}

// IngestionRequest starts ingestion. An empty description uses the stored draft.
type IngestionRequest struct {
	CompanyDescription string `json:"company_description" validate:"max=10000"`
}

// AnalysisRequest starts analysis for one regulation.
type AnalysisRequest struct {
	Regulation string `json:"regulation" validate:"required"`
}

// CancelRequest cancels a running stage.
type CancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// NewHandler creates a Handler with the given system, logger, pagination config, and upload size limit.
func NewHandler(
	sys System,
	logger *slog.Logger,
	pagination pagination.Config,
	maxUploadSize int64,
) *Handler {
	return &Handler{
		sys:           sys,
		logger:        logger.With("handler", "orchestration"),
		pagination:    pagination,
		maxUploadSize: maxUploadSize,
	}
}

// Routes returns the route groups for document and workflow endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Children: []routes.Group{
			{
				Prefix:      "/documents",
				Tags:        []string{"Documents"},
				Description: "Document upload and registry",
				Schemas:     documentSchemas,
				Routes: []routes.Route{
					{Method: "GET", Pattern: "", Handler: h.List, OpenAPI: listOp},
					{Method: "GET", Pattern: "/{id}", Handler: h.Find, OpenAPI: findOp},
					{Method: "POST", Pattern: "", Handler: h.Upload, OpenAPI: uploadOp},
					{Method: "DELETE", Pattern: "/{id}", Handler: h.Remove, OpenAPI: removeOp},
				},
			},
			{
				Prefix:      "/workflow",
				Tags:        []string{"Workflow"},
				Description: "Stage execution and workflow state",
				Schemas:     workflowSchemas,
				Routes: []routes.Route{
					{Method: "GET", Pattern: "", Handler: h.State, OpenAPI: stateOp},
					{Method: "GET", Pattern: "/regulations", Handler: h.Regulations, OpenAPI: regulationsOp},
					{Method: "PUT", Pattern: "/configuration", Handler: h.Configure, OpenAPI: configureOp},
					{Method: "POST", Pattern: "/ingestion", Handler: h.RunIngestion, OpenAPI: ingestionOp},
					{Method: "POST", Pattern: "/processing", Handler: h.RunProcessing, OpenAPI: processingOp},
					{Method: "POST", Pattern: "/analysis", Handler: h.RunAnalysis, OpenAPI: analysisOp},
					{Method: "POST", Pattern: "/{stage}/cancel", Handler: h.Cancel, OpenAPI: cancelOp},
					{Method: "POST", Pattern: "/{stage}/reset", Handler: h.Reset, OpenAPI: resetOp},
				},
			},
		},
	}
}

// List returns a page of documents, optionally filtered by the status query parameter.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page := pagination.PageRequestFromQuery(query, h.pagination)

	docs := h.sys.List()
	if s := query.Get("status"); s != "" {
		status, err := documents.ParseStatus(s)
		if err != nil {
			handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
			return
		}
		docs = h.sys.ListByStatus(status)
	}

	handlers.RespondJSON(w, http.StatusOK, pagination.Paginate(docs, page))
}

// Find returns a single document by its UUID path parameter.
func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, fmt.Errorf("invalid document id: %w", err))
		return
	}

	doc, err := h.sys.Find(id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, doc)
}

// Upload accepts a multipart form with one or more "files" parts and returns
// the per-file report. Page counts are extracted from PDF files with pdfcpu.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)

	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			handlers.RespondError(w, h.logger, http.StatusRequestEntityTooLarge, ErrUploadTooLarge)
			return
		}
		handlers.RespondError(w, h.logger, http.StatusBadRequest, fmt.Errorf("invalid multipart form: %w", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	files := make([]FileUpload, 0, len(headers))
	for _, header := range headers {
		file, err := readPart(header)
		if err != nil {
			handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
			return
		}
		file.PageCount = extractPDFPageCount(h.logger, file.Data, file.ContentType)
		files = append(files, file)
	}

	report, err := h.sys.Upload(r.Context(), files)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusCreated, report)
}

// Remove deletes a document by its UUID path parameter.
func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, fmt.Errorf("invalid document id: %w", err))
		return
	}

	if err := h.sys.Remove(id); err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// State returns the combined workflow state.
func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	handlers.RespondJSON(w, http.StatusOK, h.sys.State())
}

// Regulations returns the supported regulation identifiers.
func (h *Handler) Regulations(w http.ResponseWriter, r *http.Request) {
	handlers.RespondJSON(w, http.StatusOK, h.sys.Regulations())
}

// Configure stores the draft company description.
func (h *Handler) Configure(w http.ResponseWriter, r *http.Request) {
	var req ConfigureRequest
	if err := handlers.DecodeJSON(r, &req); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	if err := h.sys.Configure(req.CompanyDescription); err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, h.sys.State())
}

// RunIngestion runs the ingestion stage and returns the resulting state.
// The request body is optional.
func (h *Handler) RunIngestion(w http.ResponseWriter, r *http.Request) {
	var req IngestionRequest
	if r.ContentLength != 0 {
		if err := handlers.DecodeJSON(r, &req); err != nil {
			handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
			return
		}
	}

	desc := req.CompanyDescription
	if strings.TrimSpace(desc) == "" {
		desc = h.sys.State().Configuration.Draft
	}

	h.respondRun(w, h.sys.RunIngestion(r.Context(), desc))
}

// RunProcessing runs the processing stage and returns the resulting state.
func (h *Handler) RunProcessing(w http.ResponseWriter, r *http.Request) {
	h.respondRun(w, h.sys.RunProcessing(r.Context()))
}

// RunAnalysis runs the analysis stage and returns the resulting state.
func (h *Handler) RunAnalysis(w http.ResponseWriter, r *http.Request) {
	var req AnalysisRequest
	if err := handlers.DecodeJSON(r, &req); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	h.respondRun(w, h.sys.RunAnalysis(r.Context(), req.Regulation))
}

// Cancel fails the running stage named by the stage path parameter.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	stage, err := workflow.ParseStage(r.PathValue("stage"))
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	var req CancelRequest
	if r.ContentLength != 0 {
		if err := handlers.DecodeJSON(r, &req); err != nil {
			handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
			return
		}
	}

	if err := h.sys.Cancel(stage, req.Reason); err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, h.sys.State())
}

// Reset returns the stage named by the stage path parameter and its
// downstream stages to pending.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	stage, err := workflow.ParseStage(r.PathValue("stage"))
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	if err := h.sys.Reset(r.Context(), stage); err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, h.sys.State())
}

func (h *Handler) respondRun(w http.ResponseWriter, err error) {
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, h.sys.State())
}

func readPart(header *multipart.FileHeader) (FileUpload, error) {
	file, err := header.Open()
	if err != nil {
		return FileUpload{}, fmt.Errorf("open %s: %w", header.Filename, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return FileUpload{}, fmt.Errorf("read %s: %w", header.Filename, err)
	}

	return FileUpload{
		Name:        header.Filename,
		ContentType: detectContentType(header.Header.Get("Content-Type"), data),
		Data:        data,
	}, nil
}

func detectContentType(header string, data []byte) string {
	header = strings.TrimSpace(header)
	if header != "" && header != "application/octet-stream" {
		return header
	}
	return http.DetectContentType(data)
}

func extractPDFPageCount(logger *slog.Logger, data []byte, contentType string) *int {
	if contentType != "application/pdf" {
		return nil
	}

	count, err := api.PageCount(bytes.NewReader(data), nil)
	if err != nil {
		logger.Warn("failed to extract PDF page count", "error", err)
		return nil
	}

	return &count
}
