package api

import (
	"cmp"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/JaimeStill/attest/internal/documents"
	"github.com/JaimeStill/attest/internal/orchestration"
	"github.com/JaimeStill/attest/internal/uploads"
	"github.com/JaimeStill/attest/pkg/handlers"
	"github.com/JaimeStill/attest/pkg/openapi"
	"github.com/JaimeStill/attest/pkg/routes"
	"github.com/JaimeStill/attest/pkg/storage"
)

// contentHandler serves stored document bytes when uploads target blob storage.
type contentHandler struct {
	sys    orchestration.System
	store  storage.System
	logger *slog.Logger
}

func newContentHandler(
	sys orchestration.System,
	store storage.System,
	logger *slog.Logger,
) *contentHandler {
	return &contentHandler{
		sys:    sys,
		store:  store,
		logger: logger.With("handler", "content"),
	}
}

func (h *contentHandler) routes() routes.Group {
	return routes.Group{
		Prefix: "/documents",
		Tags:   []string{"Documents"},
		Routes: []routes.Route{
			{Method: "GET", Pattern: "/{id}/content", Handler: h.download, OpenAPI: contentOp},
		},
	}
}

func (h *contentHandler) download(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(
			w, h.logger,
			http.StatusBadRequest,
			fmt.Errorf("invalid document id: %w", err),
		)
		return
	}

	doc, err := h.sys.Find(id)
	if err != nil {
		handlers.RespondError(
			w, h.logger,
			orchestration.MapHTTPStatus(err), err,
		)
		return
	}

	if doc.Status == documents.StatusUploading || doc.Status == documents.StatusFailed {
		handlers.RespondError(
			w, h.logger,
			http.StatusNotFound,
			fmt.Errorf("document %s has no stored content (status %s)", id, doc.Status),
		)
		return
	}

	obj, err := h.store.Get(r.Context(), uploads.Key(doc.ID, doc.Name))
	if err != nil {
		handlers.RespondError(
			w, h.logger,
			storage.MapHTTPStatus(err), err,
		)
		return
	}
	defer obj.Body.Close()

	contentType := cmp.Or(obj.ContentType, doc.ContentType, "application/octet-stream")

	w.Header().Set("Content-Type", contentType)
	if obj.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	w.Header().Set(
		"Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", doc.Name),
	)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, obj.Body); err != nil {
		h.logger.Warn("content copy interrupted", "id", id, "error", err)
	}
}

var contentOp = &openapi.Operation{
	Summary:     "Download document content",
	Description: "Streams the stored bytes of a document that reached blob storage. Available when uploads target blob storage.",
	Parameters:  []*openapi.Parameter{openapi.PathParam("id", "Document id")},
	Responses: map[int]*openapi.Response{
		200: openapi.ResponseMedia("Document bytes", openapi.MediaOctetStream, openapi.Binary()),
		400: openapi.ResponseRef("BadRequest"),
		404: openapi.ResponseRef("NotFound"),
		503: openapi.ResponseRef("ServiceUnavailable"),
	},
}
