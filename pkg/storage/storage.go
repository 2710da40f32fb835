// Package storage reads and writes keyed blobs in an Azure Blob Storage container.
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/JaimeStill/attest/pkg/lifecycle"
)

// Attributes are the headers stored alongside a blob. Metadata keys must be
// valid identifiers (letters, digits, underscores).
type Attributes struct {
	ContentType string
	Metadata    map[string]string
}

// Object is a blob opened for reading. The caller must close Body.
type Object struct {
	Attributes
	Body io.ReadCloser
	Size int64
}

// System manages blob storage operations and lifecycle coordination.
type System interface {
	// Start registers a startup hook that creates the container and a
	// readiness check named "storage" that passes once it exists.
	Start(lc *lifecycle.Coordinator) error
	// Put streams r to the blob at key, replacing any existing blob.
	Put(ctx context.Context, key string, r io.Reader, attrs Attributes) error
	// Get opens the blob at key. Returns ErrNotFound if it does not exist.
	Get(ctx context.Context, key string) (*Object, error)
}

type azure struct {
	client    *azblob.Client
	container string
	logger    *slog.Logger
	ready     atomic.Bool
}

// New creates a storage system from the given configuration.
// A connection string takes precedence over an account URL.
// No request is made until Start is called.
func New(cfg *Config, logger *slog.Logger) (System, error) {
	client, err := newClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	return &azure{
		client:    client,
		container: cfg.ContainerName,
		logger:    logger.With("system", "storage", "container", cfg.ContainerName),
	}, nil
}

func newClient(cfg *Config) (*azblob.Client, error) {
	if cfg.ConnectionString != "" {
		return azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
	}

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("default credential: %w", err)
	}
	return azblob.NewClient(cfg.AccountURL, cred, nil)
}

func (a *azure) Start(lc *lifecycle.Coordinator) error {
	lc.RegisterCheck("storage", lifecycle.ReadinessFunc(a.ready.Load))

	lc.OnStartup(func() {
		_, err := a.client.CreateContainer(lc.Context(), a.container, nil)
		switch {
		case err == nil:
			a.logger.Info("storage container created")
		case bloberror.HasCode(err, bloberror.ContainerAlreadyExists):
			a.logger.Info("storage container exists")
		default:
			a.logger.Error("storage container initialization failed", "error", err)
			return
		}
		a.ready.Store(true)
	})

	return nil
}

func (a *azure) Put(ctx context.Context, key string, r io.Reader, attrs Attributes) error {
	if err := a.check(key); err != nil {
		return err
	}

	opts := &azblob.UploadStreamOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &attrs.ContentType},
		Metadata:    toAzureMetadata(attrs.Metadata),
	}

	if _, err := a.client.UploadStream(ctx, a.container, key, r, opts); err != nil {
		return fmt.Errorf("put blob %s: %w", key, err)
	}
	return nil
}

func (a *azure) Get(ctx context.Context, key string) (*Object, error) {
	if err := a.check(key); err != nil {
		return nil, err
	}

	resp, err := a.client.DownloadStream(ctx, a.container, key, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("get blob %s: %w", key, err)
	}

	obj := &Object{
		Body:       resp.Body,
		Attributes: Attributes{Metadata: fromAzureMetadata(resp.Metadata)},
	}
	if resp.ContentType != nil {
		obj.ContentType = *resp.ContentType
	}
	if resp.ContentLength != nil {
		obj.Size = *resp.ContentLength
	}
	return obj, nil
}

// check rejects malformed keys before consulting readiness so callers get
// the more specific error.
func (a *azure) check(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if !a.ready.Load() {
		return ErrNotReady
	}
	return nil
}

func validateKey(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	for seg := range strings.SplitSeq(key, "/") {
		if seg == ".." {
			return ErrInvalidKey
		}
	}
	return nil
}

func toAzureMetadata(m map[string]string) map[string]*string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]*string, len(m))
	for k, v := range m {
		out[k] = &v
	}
	return out
}

func fromAzureMetadata(m map[string]*string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		if v != nil {
			out[strings.ToLower(k)] = *v
		}
	}
	return out
}
