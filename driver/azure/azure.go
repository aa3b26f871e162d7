package azure

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/gobeaver/filescan"
)

// Adapter is a filescan.PayloadStore backed by an Azure Blob Storage
// container.
type Adapter struct {
	client        *azblob.Client
	containerName string
	prefix        string
}

// AdapterOption configures an Adapter
type AdapterOption func(*Adapter)

// WithPrefix sets the blob prefix for parked payloads
func WithPrefix(prefix string) AdapterOption {
	return func(a *Adapter) {
		if prefix != "" && !strings.HasSuffix(prefix, "/") {
			prefix += "/"
		}
		a.prefix = prefix
	}
}

// New creates an Azure Blob Storage payload adapter
func New(client *azblob.Client, containerName string, options ...AdapterOption) *Adapter {
	adapter := &Adapter{
		client:        client,
		containerName: containerName,
	}
	for _, option := range options {
		option(adapter)
	}
	return adapter
}

// Put implements filescan.PayloadStore
func (a *Adapter) Put(ctx context.Context, key string, data []byte) error {
	contentType := "application/octet-stream"
	_, err := a.client.UploadBuffer(ctx, a.containerName, path.Join(a.prefix, key), data, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType: &contentType,
		},
	})
	if err != nil {
		return mapAzureError("put", key, err)
	}
	return nil
}

// Get implements filescan.PayloadStore
func (a *Adapter) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := a.client.DownloadStream(ctx, a.containerName, path.Join(a.prefix, key), nil)
	if err != nil {
		return nil, mapAzureError("get", key, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, mapAzureError("get", key, err)
	}
	return data, nil
}

// Delete implements filescan.PayloadStore
func (a *Adapter) Delete(ctx context.Context, key string) error {
	_, err := a.client.DeleteBlob(ctx, a.containerName, path.Join(a.prefix, key), nil)
	if err != nil && !bloberror.HasCode(err, bloberror.BlobNotFound) {
		return mapAzureError("delete", key, err)
	}
	return nil
}

// DeletePrefix implements filescan.PayloadSweeper
func (a *Adapter) DeletePrefix(ctx context.Context, prefix string) error {
	full := path.Join(a.prefix, prefix) + "/"
	pager := a.client.NewListBlobsFlatPager(a.containerName, &container.ListBlobsFlatOptions{
		Prefix: &full,
	})
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return mapAzureError("sweep", prefix, err)
		}
		for _, item := range resp.Segment.BlobItems {
			if item.Name == nil {
				continue
			}
			_, err := a.client.DeleteBlob(ctx, a.containerName, *item.Name, nil)
			if err != nil && !bloberror.HasCode(err, bloberror.BlobNotFound) {
				return mapAzureError("sweep", *item.Name, err)
			}
		}
	}
	return nil
}

// mapAzureError maps Azure errors to filescan errors
func mapAzureError(op, key string, err error) error {
	if bloberror.HasCode(err, bloberror.BlobNotFound) || bloberror.HasCode(err, bloberror.ContainerNotFound) {
		return &filescan.StoreError{Op: op, Key: key, Err: filescan.ErrPayloadNotFound}
	}

	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
		return &filescan.StoreError{Op: op, Key: key, Err: filescan.ErrPayloadNotFound}
	}

	return &filescan.StoreError{Op: op, Key: key, Err: err}
}

var (
	_ filescan.PayloadStore   = (*Adapter)(nil)
	_ filescan.PayloadSweeper = (*Adapter)(nil)
)
