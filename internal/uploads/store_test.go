package uploads_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/goleak"

	"github.com/JaimeStill/attest/internal/orchestration"
	"github.com/JaimeStill/attest/internal/uploads"
	"github.com/JaimeStill/attest/pkg/lifecycle"
	"github.com/JaimeStill/attest/pkg/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeStorage struct {
	mu      sync.Mutex
	blobs   map[string]string
	types   map[string]string
	meta    map[string]map[string]string
	fail    map[string]bool
	active  atomic.Int32
	maxSeen atomic.Int32
	gate    chan struct{}
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		blobs: make(map[string]string),
		types: make(map[string]string),
		meta:  make(map[string]map[string]string),
		fail:  make(map[string]bool),
	}
}

func (f *fakeStorage) Start(*lifecycle.Coordinator) error { return nil }

func (f *fakeStorage) Put(ctx context.Context, key string, r io.Reader, attrs storage.Attributes) error {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		seen := f.maxSeen.Load()
		if n <= seen || f.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}

	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[key] {
		return errors.New("quota exceeded")
	}
	f.blobs[key] = string(data)
	f.types[key] = attrs.ContentType
	f.meta[key] = attrs.Metadata
	return nil
}

func (f *fakeStorage) Get(_ context.Context, key string) (*storage.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.blobs[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &storage.Object{
		Attributes: storage.Attributes{ContentType: f.types[key], Metadata: f.meta[key]},
		Body:       io.NopCloser(strings.NewReader(data)),
		Size:       int64(len(data)),
	}, nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func files(n int) []orchestration.UploadFile {
	out := make([]orchestration.UploadFile, n)
	for i := range out {
		out[i] = orchestration.UploadFile{
			ID:          uuid.New(),
			Name:        "doc.pdf",
			ContentType: "application/pdf",
			Data:        []byte(strings.Repeat("x", i+1)),
		}
	}
	return out
}

func TestKey(t *testing.T) {
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	if got := uploads.Key(id, "policy.pdf"); got != "uploads/6ba7b810-9dad-11d1-80b4-00c04fd430c8/policy.pdf" {
		t.Errorf("got %s", got)
	}
}

func TestSendStoresEachFile(t *testing.T) {
	fs := newFakeStorage()
	in := files(3)
	fs.fail[uploads.Key(in[1].ID, in[1].Name)] = true

	store := uploads.New(fs, 2, discard())
	outcomes, err := store.Send(context.Background(), in)
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if outcomes[0].Failed || outcomes[2].Failed {
		t.Errorf("outcomes: got %+v", outcomes)
	}
	if !outcomes[1].Failed || !strings.Contains(outcomes[1].Reason, "quota exceeded") {
		t.Errorf("failed outcome: got %+v", outcomes[1])
	}

	key := uploads.Key(in[2].ID, in[2].Name)
	if fs.blobs[key] != "xxx" || fs.types[key] != "application/pdf" {
		t.Errorf("blob %s: got %q (%s)", key, fs.blobs[key], fs.types[key])
	}
	if got := fs.meta[key][uploads.MetadataDocumentID]; got != in[2].ID.String() {
		t.Errorf("document id metadata: got %q, want %s", got, in[2].ID)
	}
}

func TestSendBoundsConcurrency(t *testing.T) {
	fs := newFakeStorage()
	store := uploads.New(fs, 3, discard())

	if _, err := store.Send(context.Background(), files(20)); err != nil {
		t.Fatalf("send: %v", err)
	}

	if got := fs.maxSeen.Load(); got > 3 {
		t.Errorf("concurrent uploads: got %d, want at most 3", got)
	}
	if got := len(fs.blobs); got != 20 {
		t.Errorf("blobs: got %d, want 20", got)
	}
}

func TestSendCancelled(t *testing.T) {
	fs := newFakeStorage()
	fs.gate = make(chan struct{})
	store := uploads.New(fs, 2, discard())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes, err := store.Send(ctx, files(4))
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	for i, o := range outcomes {
		if !o.Failed {
			t.Errorf("outcome %d: expected failure", i)
		}
	}
}
