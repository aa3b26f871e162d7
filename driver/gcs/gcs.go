package gcs

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/gobeaver/filescan"
	"google.golang.org/api/iterator"
)

// Adapter is a filescan.PayloadStore backed by a Google Cloud Storage bucket.
type Adapter struct {
	client *storage.Client
	bucket string
	prefix string
}

// AdapterOption configures an Adapter
type AdapterOption func(*Adapter)

// WithPrefix sets the object prefix for parked payloads
func WithPrefix(prefix string) AdapterOption {
	return func(a *Adapter) {
		if prefix != "" && !strings.HasSuffix(prefix, "/") {
			prefix += "/"
		}
		a.prefix = prefix
	}
}

// New creates a GCS payload adapter
func New(client *storage.Client, bucket string, options ...AdapterOption) *Adapter {
	adapter := &Adapter{
		client: client,
		bucket: bucket,
	}
	for _, option := range options {
		option(adapter)
	}
	return adapter
}

func (a *Adapter) object(key string) *storage.ObjectHandle {
	return a.client.Bucket(a.bucket).Object(path.Join(a.prefix, key))
}

// Put implements filescan.PayloadStore
func (a *Adapter) Put(ctx context.Context, key string, data []byte) error {
	writer := a.object(key).NewWriter(ctx)
	writer.ContentType = "application/octet-stream"

	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return mapGCSError("put", key, err)
	}
	if err := writer.Close(); err != nil {
		return mapGCSError("put", key, err)
	}
	return nil
}

// Get implements filescan.PayloadStore
func (a *Adapter) Get(ctx context.Context, key string) ([]byte, error) {
	reader, err := a.object(key).NewReader(ctx)
	if err != nil {
		return nil, mapGCSError("get", key, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, mapGCSError("get", key, err)
	}
	return data, nil
}

// Delete implements filescan.PayloadStore
func (a *Adapter) Delete(ctx context.Context, key string) error {
	err := a.object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return mapGCSError("delete", key, err)
	}
	return nil
}

// DeletePrefix implements filescan.PayloadSweeper
func (a *Adapter) DeletePrefix(ctx context.Context, prefix string) error {
	bucket := a.client.Bucket(a.bucket)
	it := bucket.Objects(ctx, &storage.Query{Prefix: path.Join(a.prefix, prefix) + "/"})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return mapGCSError("sweep", prefix, err)
		}
		if err := bucket.Object(attrs.Name).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			return mapGCSError("sweep", attrs.Name, err)
		}
	}
}

// mapGCSError maps GCS errors to filescan errors
func mapGCSError(op, key string, err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return &filescan.StoreError{Op: op, Key: key, Err: filescan.ErrPayloadNotFound}
	}
	return &filescan.StoreError{Op: op, Key: key, Err: err}
}

var (
	_ filescan.PayloadStore   = (*Adapter)(nil)
	_ filescan.PayloadSweeper = (*Adapter)(nil)
)
