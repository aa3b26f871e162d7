// Package minio parks claim-checked payloads in a MinIO (or any
// S3-compatible) bucket through minio-go.
package minio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/gobeaver/filescan"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config holds the MinIO connection settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// Adapter is a filescan.PayloadStore backed by a MinIO bucket. The bucket is
// created on first use when it does not exist.
type Adapter struct {
	client *minio.Client
	bucket string
	region string

	initOnce sync.Once
	initErr  error
}

// New creates a MinIO client from cfg and wraps it.
func New(cfg Config) (*Adapter, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("minio access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("minio bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}

	return &Adapter{client: client, bucket: bucket, region: region}, nil
}

func (a *Adapter) ensureBucket(ctx context.Context) error {
	a.initOnce.Do(func() {
		exists, err := a.client.BucketExists(ctx, a.bucket)
		if err != nil {
			a.initErr = err
			return
		}
		if exists {
			return
		}
		a.initErr = a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{Region: a.region})
	})
	return a.initErr
}

// Put implements filescan.PayloadStore
func (a *Adapter) Put(ctx context.Context, key string, data []byte) error {
	if err := a.ensureBucket(ctx); err != nil {
		return &filescan.StoreError{Op: "put", Key: key, Err: fmt.Errorf("ensure bucket: %w", err)}
	}
	_, err := a.client.PutObject(ctx, a.bucket, objectKey(key), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return mapMinioError("put", key, err)
	}
	return nil
}

// Get implements filescan.PayloadStore
func (a *Adapter) Get(ctx context.Context, key string) ([]byte, error) {
	if err := a.ensureBucket(ctx); err != nil {
		return nil, &filescan.StoreError{Op: "get", Key: key, Err: fmt.Errorf("ensure bucket: %w", err)}
	}

	obj, err := a.client.GetObject(ctx, a.bucket, objectKey(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, mapMinioError("get", key, err)
	}
	defer obj.Close()

	// GetObject is lazy; a missing key surfaces on the first read.
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, mapMinioError("get", key, err)
	}
	return data, nil
}

// Delete implements filescan.PayloadStore
func (a *Adapter) Delete(ctx context.Context, key string) error {
	err := a.client.RemoveObject(ctx, a.bucket, objectKey(key), minio.RemoveObjectOptions{})
	if err != nil && !isNotFound(err) {
		return mapMinioError("delete", key, err)
	}
	return nil
}

// DeletePrefix implements filescan.PayloadSweeper
func (a *Adapter) DeletePrefix(ctx context.Context, prefix string) error {
	listPrefix := strings.TrimSuffix(objectKey(prefix), "/") + "/"

	objects := a.client.ListObjects(ctx, a.bucket, minio.ListObjectsOptions{
		Prefix:    listPrefix,
		Recursive: true,
	})
	for obj := range objects {
		if obj.Err != nil {
			return mapMinioError("sweep", prefix, obj.Err)
		}
		if obj.Key == "" {
			continue
		}
		err := a.client.RemoveObject(ctx, a.bucket, obj.Key, minio.RemoveObjectOptions{})
		if err != nil && !isNotFound(err) {
			return mapMinioError("sweep", obj.Key, err)
		}
	}
	return nil
}

func objectKey(key string) string {
	return strings.TrimPrefix(path.Clean("/"+key), "/")
}

func isNotFound(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return true
	}
	return false
}

func mapMinioError(op, key string, err error) error {
	if isNotFound(err) {
		return &filescan.StoreError{Op: op, Key: key, Err: filescan.ErrPayloadNotFound}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &filescan.StoreError{Op: op, Key: key, Err: err}
}

var (
	_ filescan.PayloadStore   = (*Adapter)(nil)
	_ filescan.PayloadSweeper = (*Adapter)(nil)
)
