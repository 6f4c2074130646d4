package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"slices"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// apiError implements smithy.APIError for test assertions.
type apiError struct {
	code string
	msg  string
}

func (e *apiError) Error() string                 { return e.msg }
func (e *apiError) ErrorCode() string             { return e.code }
func (e *apiError) ErrorMessage() string          { return e.msg }
func (e *apiError) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

var (
	errNoSuchKey = &apiError{code: "NoSuchKey", msg: "no such key"}
	errNotFound  = &apiError{code: "NotFound", msg: "not found"}
)

// mockS3 is an in-memory S3 backend. pageSize bounds ListObjectsV2 pages.
type mockS3 struct {
	mu       sync.Mutex
	objects  map[string][]byte
	pageSize int

	getErr error
	putErr error
}

func newMockS3() *mockS3 {
	return &mockS3{objects: make(map[string][]byte), pageSize: 1000}
}

func (m *mockS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[*in.Key]
	if !ok {
		return nil, errNoSuchKey
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *mockS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (m *mockS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[*in.Key]; !ok {
		return nil, errNotFound
	}
	return &s3.HeadObjectOutput{}, nil
}

func (m *mockS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	start := 0
	if in.ContinuationToken != nil {
		start = sort.SearchStrings(keys, *in.ContinuationToken)
	}
	end := min(start+m.pageSize, len(keys))
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(keys))}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	if end < len(keys) {
		out.NextContinuationToken = aws.String(keys[end])
	}
	return out, nil
}

func TestS3WriteAndRead(t *testing.T) {
	store := NewS3(newMockS3(), "test-bucket", "")
	ctx := context.Background()

	if err := WriteFile(ctx, store, "sessions/a/session.json", []byte(`{"id":"a"}`)); err != nil {
		t.Fatal(err)
	}
	got, err := ReadFile(ctx, store, "sessions/a/session.json")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != `{"id":"a"}` {
		t.Fatalf("got %q", got)
	}
}

func TestS3ReadNotExist(t *testing.T) {
	store := NewS3(newMockS3(), "bucket", "")
	_, err := store.Read(context.Background(), "missing")
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected os.ErrNotExist, got %v", err)
	}
}

func TestS3ReadOtherError(t *testing.T) {
	mock := newMockS3()
	mock.getErr = errors.New("network timeout")
	store := NewS3(mock, "bucket", "pfx")

	_, err := store.Read(context.Background(), "x")
	if err == nil || errors.Is(err, os.ErrNotExist) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestS3ExistsAndDelete(t *testing.T) {
	mock := newMockS3()
	store := NewS3(mock, "bucket", "")
	ctx := context.Background()

	if ok, err := store.Exists(ctx, "f"); err != nil || ok {
		t.Fatalf("Exists(missing) = %v, %v", ok, err)
	}
	mock.objects["f"] = []byte("x")
	if ok, err := store.Exists(ctx, "f"); err != nil || !ok {
		t.Fatalf("Exists(present) = %v, %v", ok, err)
	}
	if err := store.Delete(ctx, "f"); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(ctx, "f"); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if ok, _ := store.Exists(ctx, "f"); ok {
		t.Fatal("object should be gone after delete")
	}
}

func TestS3WriteUploadError(t *testing.T) {
	mock := newMockS3()
	mock.putErr = errors.New("upload failed")
	store := NewS3(mock, "bucket", "")

	w, err := store.Write(context.Background(), "obj")
	if err != nil {
		t.Fatal(err)
	}
	io.WriteString(w, "data")
	if err := w.Close(); err == nil || err.Error() != "upload failed" {
		t.Fatalf("Close = %v, want upload failed", err)
	}
}

func TestS3KeyPrefix(t *testing.T) {
	mock := newMockS3()
	store := NewS3(mock, "bucket", "/archive/")
	if err := WriteFile(context.Background(), store, "file.bin", []byte("content")); err != nil {
		t.Fatal(err)
	}
	if _, ok := mock.objects["archive/file.bin"]; !ok {
		t.Fatalf("objects = %v, want key archive/file.bin", mock.objects)
	}
	if got := NewS3(mock, "bucket", "").key("a/b"); got != "a/b" {
		t.Fatalf("key = %q, want a/b", got)
	}
}

func TestS3List(t *testing.T) {
	mock := newMockS3()
	mock.pageSize = 2
	store := NewS3(mock, "bucket", "vf")
	ctx := context.Background()

	for _, p := range []string{
		"sessions/b/session.json",
		"sessions/a/session.json",
		"sessions/a/transcript.json",
		"sessionsx/c",
		"other/d",
	} {
		if err := WriteFile(ctx, store, p, nil); err != nil {
			t.Fatal(err)
		}
	}
	mock.objects["unprefixed"] = nil

	got, err := store.List(ctx, "sessions")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"sessions/a/session.json", "sessions/a/transcript.json", "sessions/b/session.json"}
	if !slices.Equal(got, want) {
		t.Errorf("List = %v, want %v", got, want)
	}

	all, err := store.List(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 5 {
		t.Errorf("List(\"\") = %v, want 5 entries", all)
	}
}

func TestIsS3NotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"NoSuchKey", errNoSuchKey, true},
		{"NotFound", errNotFound, true},
		{"other api error", &apiError{code: "AccessDenied", msg: "denied"}, false},
		{"plain error", errors.New("timeout"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isS3NotFound(tt.err); got != tt.want {
				t.Fatalf("isS3NotFound(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestNewS3Client(t *testing.T) {
	c := NewS3Client(S3Config{
		Region:          "us-east-1",
		Endpoint:        "http://localhost:9000",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		UsePathStyle:    true,
	})
	opts := c.Options()
	if opts.Region != "us-east-1" || !opts.UsePathStyle {
		t.Errorf("options = region %q path-style %v", opts.Region, opts.UsePathStyle)
	}
	if aws.ToString(opts.BaseEndpoint) != "http://localhost:9000" {
		t.Errorf("BaseEndpoint = %q", aws.ToString(opts.BaseEndpoint))
	}
	creds, err := opts.Credentials.Retrieve(context.Background())
	if err != nil || creds.AccessKeyID != "key" {
		t.Errorf("credentials = %+v, %v", creds, err)
	}
}
