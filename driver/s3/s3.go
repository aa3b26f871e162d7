package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gobeaver/filescan"
)

// API is the subset of *s3.Client the adapter calls.
type API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Adapter is a filescan.PayloadStore backed by an S3 bucket.
type Adapter struct {
	client API
	bucket string
	prefix string
}

// AdapterOption configures an Adapter
type AdapterOption func(*Adapter)

// WithPrefix sets the key prefix for parked payloads
func WithPrefix(prefix string) AdapterOption {
	return func(a *Adapter) {
		if prefix != "" && !strings.HasSuffix(prefix, "/") {
			prefix += "/"
		}
		a.prefix = prefix
	}
}

// New creates an S3 payload adapter
func New(client API, bucket string, options ...AdapterOption) *Adapter {
	adapter := &Adapter{
		client: client,
		bucket: bucket,
	}
	for _, option := range options {
		option(adapter)
	}
	return adapter
}

func (a *Adapter) key(k string) string {
	return path.Join(a.prefix, k)
}

// Put implements filescan.PayloadStore
func (a *Adapter) Put(ctx context.Context, key string, data []byte) error {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:            aws.String(a.bucket),
		Key:               aws.String(a.key(key)),
		Body:              bytes.NewReader(data),
		ContentLength:     aws.Int64(int64(len(data))),
		ContentType:       aws.String("application/octet-stream"),
		ChecksumAlgorithm: types.ChecksumAlgorithmSha256,
	})
	if err != nil {
		return mapS3Error("put", key, err)
	}
	return nil
}

// Get implements filescan.PayloadStore
func (a *Adapter) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key(key)),
	})
	if err != nil {
		return nil, mapS3Error("get", key, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, mapS3Error("get", key, err)
	}
	return data, nil
}

// Delete implements filescan.PayloadStore
func (a *Adapter) Delete(ctx context.Context, key string) error {
	_, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key(key)),
	})
	if err != nil {
		return mapS3Error("delete", key, err)
	}
	return nil
}

// DeletePrefix implements filescan.PayloadSweeper
func (a *Adapter) DeletePrefix(ctx context.Context, prefix string) error {
	listPrefix := strings.TrimSuffix(a.key(prefix), "/") + "/"

	paginator := s3.NewListObjectsV2Paginator(a.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(listPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return mapS3Error("sweep", prefix, err)
		}
		for _, obj := range page.Contents {
			_, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(a.bucket),
				Key:    obj.Key,
			})
			if err != nil {
				return mapS3Error("sweep", aws.ToString(obj.Key), err)
			}
		}
	}
	return nil
}

// mapS3Error maps S3 errors to filescan errors
func mapS3Error(op, key string, err error) error {
	var nsk *types.NoSuchKey
	var notFound *types.NotFound

	if errors.As(err, &nsk) || errors.As(err, &notFound) {
		return &filescan.StoreError{Op: op, Key: key, Err: filescan.ErrPayloadNotFound}
	}
	return &filescan.StoreError{Op: op, Key: key, Err: err}
}

var (
	_ filescan.PayloadStore   = (*Adapter)(nil)
	_ filescan.PayloadSweeper = (*Adapter)(nil)
)
