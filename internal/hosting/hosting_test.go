package hosting

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubS3 struct {
	existing map[string]bool
	puts     []*s3.PutObjectInput
	putErr   error
}

func (s *stubS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if s.existing[aws.ToString(in.Key)] {
		return &s3.HeadObjectOutput{}, nil
	}
	return nil, &types.NotFound{}
}

func (s *stubS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if s.putErr != nil {
		return nil, s.putErr
	}
	s.puts = append(s.puts, in)
	return &s3.PutObjectOutput{}, nil
}

func TestS3Host_Upload(t *testing.T) {
	stub := &stubS3{existing: map[string]bool{}}
	h := &S3Host{client: stub, bucket: "tally-pages", region: "us-east-1", prefix: "tasks/"}

	url, err := h.Upload(context.Background(), "crowdER_template_abc.html", []byte("<html></html>"))
	require.NoError(t, err)
	assert.Equal(t, "https://tally-pages.s3.us-east-1.amazonaws.com/tasks/crowdER_template_abc.html", url)

	require.Len(t, stub.puts, 1)
	put := stub.puts[0]
	assert.Equal(t, "tasks/crowdER_template_abc.html", aws.ToString(put.Key))
	assert.Equal(t, types.ObjectCannedACLPublicRead, put.ACL)
	assert.Equal(t, "text/html; charset=utf-8", aws.ToString(put.ContentType))
}

func TestS3Host_UploadIsIdempotent(t *testing.T) {
	stub := &stubS3{existing: map[string]bool{"page.html": true}}
	h := &S3Host{client: stub, bucket: "b", region: "eu-west-1"}

	url, err := h.Upload(context.Background(), "page.html", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "https://b.s3.eu-west-1.amazonaws.com/page.html", url)
	assert.Empty(t, stub.puts)
}

func TestS3Host_CustomEndpoint(t *testing.T) {
	h := &S3Host{client: &stubS3{}, bucket: "b", endpoint: "http://localhost:9000/"}

	url, err := h.Upload(context.Background(), "page one.html", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000/b/page%20one.html", url)
}

func TestS3Host_PutFailure(t *testing.T) {
	h := &S3Host{client: &stubS3{putErr: errors.New("access denied")}, bucket: "b", region: "us-east-1"}

	_, err := h.Upload(context.Background(), "page.html", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

func TestFileHost(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "pages")
	h, err := NewFileHost(dir, "http://localhost:8080/")
	require.NoError(t, err)

	url, err := h.Upload(context.Background(), "q.html", []byte("first"))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/q.html", url)

	// A second upload under the same name keeps the original content
	_, err = h.Upload(context.Background(), "q.html", []byte("second"))
	require.NoError(t, err)
	content, err := os.ReadFile(filepath.Join(dir, "q.html"))
	require.NoError(t, err)
	assert.Equal(t, "first", string(content))

	_, err = h.Upload(context.Background(), "../escape.html", []byte("x"))
	assert.Error(t, err)
}

func TestFileHost_DefaultsToFileURL(t *testing.T) {
	dir := t.TempDir()
	h, err := NewFileHost(dir, "")
	require.NoError(t, err)

	url, err := h.Upload(context.Background(), "q.html", []byte("x"))
	require.NoError(t, err)
	assert.Contains(t, url, "file://")
	assert.Contains(t, url, "/q.html")
}

func TestUploadFiles(t *testing.T) {
	src := t.TempDir()
	css := filepath.Join(src, "style.css")
	require.NoError(t, os.WriteFile(css, []byte("body{}"), 0644))

	h, err := NewFileHost(filepath.Join(t.TempDir(), "out"), "https://pages.example")
	require.NoError(t, err)

	urls, err := UploadFiles(context.Background(), h, []string{css})
	require.NoError(t, err)
	assert.Equal(t, "https://pages.example/style.css", urls[css])

	_, err = UploadFiles(context.Background(), h, []string{filepath.Join(src, "missing.js")})
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	t.Run("unknown backend", func(t *testing.T) {
		_, err := New(context.Background(), Config{Backend: "ftp"})
		assert.Error(t, err)
	})

	t.Run("s3 requires bucket", func(t *testing.T) {
		_, err := New(context.Background(), Config{Backend: BackendS3})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket is required")
	})

	t.Run("file backend", func(t *testing.T) {
		host, err := New(context.Background(), Config{Backend: BackendFile, Dir: t.TempDir()})
		require.NoError(t, err)
		assert.IsType(t, &FileHost{}, host)
	})
}
