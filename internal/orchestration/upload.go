package orchestration

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/JaimeStill/attest/internal/documents"
	"github.com/JaimeStill/attest/pkg/tracing"
)

func (f *facade) Upload(ctx context.Context, files []FileUpload) (*UploadReport, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}

	entries := make([]documents.Entry, len(files))
	outcomes := make([]documents.Outcome, len(files))
	for i, file := range files {
		name := cleanName(file.Name)
		entries[i] = documents.Entry{
			Name:        name,
			SizeBytes:   int64(len(file.Data)),
			ContentType: file.ContentType,
			PageCount:   file.PageCount,
		}
		if reason := f.cfg.checkFile(name, int64(len(file.Data))); reason != "" {
			outcomes[i] = documents.Fail(reason)
		}
	}

	var (
		ids       []uuid.UUID
		send      []UploadFile
		sendIdx   []int
		unapplied = map[uuid.UUID]documents.ItemError{}
	)

	err := f.step(func() error {
		ids = f.docs.Add(entries)

		var rejected []documents.Result
		for i, id := range ids {
			if outcomes[i].Failed {
				rejected = append(rejected, documents.Result{ID: id, Outcome: outcomes[i]})
				continue
			}
			send = append(send, UploadFile{
				ID:          id,
				Name:        entries[i].Name,
				ContentType: entries[i].ContentType,
				Data:        files[i].Data,
			})
			sendIdx = append(sendIdx, i)
		}

		f.docs.MarkUploadResults(rejected)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(send) > 0 {
		results := f.send(ctx, send)
		for j, i := range sendIdx {
			outcomes[i] = results[j].Outcome
		}

		err = f.step(func() error {
			for _, e := range f.docs.MarkUploadResults(results) {
				f.logger.Warn("upload result not applied", "id", e.ID, "error", e.Err)
				unapplied[e.ID] = e
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	report := &UploadReport{Items: make([]UploadItem, len(files))}
	for i := range files {
		item := UploadItem{
			ID:     ids[i],
			Name:   entries[i].Name,
			Status: documents.StatusUploaded,
		}
		if e, ok := unapplied[ids[i]]; ok {
			item.Status, item.Error = unappliedStatus(e)
			report.Failed++
		} else if outcomes[i].Failed {
			item.Status = documents.StatusFailed
			item.Error = outcomes[i].Reason
			report.Failed++
		} else {
			report.Uploaded++
		}
		report.Items[i] = item
	}

	f.logger.Info("upload batch completed", "uploaded", report.Uploaded, "failed", report.Failed)
	return report, nil
}

// unappliedStatus reports a document whose upload result never reached the
// registry. A document removed mid-upload no longer exists.
func unappliedStatus(e documents.ItemError) (documents.Status, string) {
	if errors.Is(e.Err, documents.ErrNotFound) {
		return StatusRemoved, "removed before upload completed"
	}
	return e.Status, e.Err.Error()
}

// send hands valid files to the UploadService and returns one result per
// file. A call error or a short result list fails the affected files.
func (f *facade) send(ctx context.Context, files []UploadFile) []documents.Result {
	ctx, span := tracing.StartSpan(
		ctx,
		f.tracer,
		"orchestration.upload",
		attribute.Int(tracing.DocumentCountKey, len(files)),
	)
	defer span.End()

	outcomes, err := f.services.Upload.Send(ctx, files)
	if err != nil {
		tracing.SetError(span, err)
		f.logger.Error("upload service failed", "count", len(files), "error", err)
	}

	results := make([]documents.Result, len(files))
	for i, file := range files {
		results[i].ID = file.ID
		switch {
		case err != nil:
			results[i].Outcome = documents.Fail(fmt.Sprintf("upload failed: %v", err))
		case i >= len(outcomes):
			results[i].Outcome = documents.Fail("no result from upload service")
		default:
			results[i].Outcome = outcomes[i]
		}
	}
	return results
}

// cleanName reduces a client-supplied file name to its base name.
func cleanName(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	if name == "" {
		return ""
	}

	base := path.Base(name)
	if base == "." || base == "/" || base == ".." {
		return ""
	}
	return base
}
