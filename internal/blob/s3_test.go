package blob

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 keeps objects in memory and pages listings two keys at a time.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: map[string][]byte{}} }

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(string(data)))}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[aws.ToString(in.Key)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range in.Delete.Objects {
		delete(f.objects, aws.ToString(id.Key))
	}
	return &s3.DeleteObjectsOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := aws.ToString(in.Prefix)
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) && k > aws.ToString(in.ContinuationToken) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := &s3.ListObjectsV2Output{}
	if len(keys) > 2 {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(keys[1])
		keys = keys[:2]
	}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	return out, nil
}

func TestS3Store(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	s := NewS3Store(fake, "catalog", "/uploads/")

	require.NoError(t, s.Put(ctx, "zipImages/a.jpg", strings.NewReader("a")))
	assert.Contains(t, fake.objects, "uploads/zipImages/a.jpg")

	ok, err := s.Exists(ctx, "zipImages/a.jpg")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Exists(ctx, "zipImages/b.jpg")
	require.NoError(t, err)
	assert.False(t, ok)

	rc, err := s.Open(ctx, "zipImages/a.jpg")
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	assert.Equal(t, "a", string(data))

	_, err = s.Open(ctx, "zipImages/b.jpg")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestS3StoreDeleteDirPages(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	s := NewS3Store(fake, "catalog", "")

	for _, k := range []string{"imports/9/a", "imports/9/b", "imports/9/c", "imports/9/d", "imports/90/keep"} {
		require.NoError(t, s.Put(ctx, k, strings.NewReader("x")))
	}
	require.NoError(t, s.DeleteDir(ctx, "imports/9"))

	assert.Len(t, fake.objects, 1)
	assert.Contains(t, fake.objects, "imports/90/keep")
}
