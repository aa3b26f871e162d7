package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gobeaver/filescan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	fail    error
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: make(map[string][]byte)} }

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[*in.Bucket+"/"+*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, *in.Bucket+"/"+*in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := &s3.ListObjectsV2Output{}
	for k := range f.objects {
		key := strings.TrimPrefix(k, *in.Bucket+"/")
		if strings.HasPrefix(key, aws.ToString(in.Prefix)) {
			out.Contents = append(out.Contents, types.Object{Key: aws.String(key)})
		}
	}
	return out, nil
}

func TestAdapter(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	a := New(fake, "bucket", WithPrefix("parked"))

	require.NoError(t, a.Put(ctx, "sub/node", []byte("data")))
	assert.Contains(t, fake.objects, "bucket/parked/sub/node")

	got, err := a.Get(ctx, "sub/node")
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), got)

	require.NoError(t, a.Delete(ctx, "sub/node"))
	_, err = a.Get(ctx, "sub/node")
	assert.ErrorIs(t, err, filescan.ErrPayloadNotFound)
}

func TestAdapterErrors(t *testing.T) {
	fake := newFakeS3()
	fake.fail = errors.New("throttled")
	a := New(fake, "bucket")

	err := a.Put(context.Background(), "k", nil)
	var se *filescan.StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "put", se.Op)
	assert.NotErrorIs(t, err, filescan.ErrPayloadNotFound)
}

func TestRegisterRequiresBucket(t *testing.T) {
	_, err := filescan.CreatePayloadStore(&filescan.Config{PayloadDriver: "s3"})
	require.Error(t, err)
}

func TestAdapterDeletePrefix(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	a := New(fake, "bucket", WithPrefix("parked"))

	for _, key := range []string{"sub-1/a", "sub-1/b", "sub-10/a"} {
		require.NoError(t, a.Put(ctx, key, []byte(key)))
	}

	require.NoError(t, a.DeletePrefix(ctx, "sub-1"))

	_, err := a.Get(ctx, "sub-1/a")
	assert.True(t, errors.Is(err, filescan.ErrPayloadNotFound))
	_, err = a.Get(ctx, "sub-10/a")
	assert.NoError(t, err)
}
