// Package uploads stores uploaded document content in blob storage.
package uploads

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/JaimeStill/attest/internal/documents"
	"github.com/JaimeStill/attest/internal/orchestration"
	"github.com/JaimeStill/attest/pkg/storage"
)

// Store implements orchestration.UploadService on blob storage.
type Store struct {
	storage     storage.System
	concurrency int
	logger      *slog.Logger
}

var _ orchestration.UploadService = (*Store)(nil)

// New creates a Store that writes at most concurrency blobs at once.
// A non-positive concurrency uses the number of CPUs.
func New(sys storage.System, concurrency int, logger *slog.Logger) *Store {
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	return &Store{
		storage:     sys,
		concurrency: concurrency,
		logger:      logger.With("system", "uploads"),
	}
}

// MetadataDocumentID is the blob metadata key holding the owning document id.
const MetadataDocumentID = "document_id"

// Key returns the blob key for a document's content.
func Key(id uuid.UUID, name string) string {
	return fmt.Sprintf("uploads/%s/%s", id, name)
}

// Send writes each file to its own blob. A failed write fails only that
// file; a cancelled context fails every file not yet written.
func (s *Store) Send(ctx context.Context, files []orchestration.UploadFile) ([]documents.Outcome, error) {
	outcomes := make([]documents.Outcome, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(s.concurrency, max(len(files), 1)))

	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				outcomes[i] = documents.Fail(fmt.Sprintf("upload cancelled: %v", err))
				return nil
			}

			key := Key(f.ID, f.Name)
			attrs := storage.Attributes{
				ContentType: f.ContentType,
				Metadata:    map[string]string{MetadataDocumentID: f.ID.String()},
			}
			if err := s.storage.Put(gctx, key, bytes.NewReader(f.Data), attrs); err != nil {
				s.logger.Warn("blob upload failed", "key", key, "error", err)
				outcomes[i] = documents.Fail(fmt.Sprintf("store %s: %v", f.Name, err))
				return nil
			}

			outcomes[i] = documents.OK()
			return nil
		})
	}

	g.Wait()

	s.logger.Info("blobs stored", "count", len(files))
	return outcomes, nil
}
