package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func newTestS3Client(rt http.RoundTripper) *s3.Client {
	cfg := aws.Config{
		Region:      "us-east-1",
		Credentials: credentials.NewStaticCredentialsProvider("AKID", "SECRET", ""),
		HTTPClient:  &http.Client{Transport: rt},
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
		o.EndpointResolver = s3.EndpointResolverFromURL("https://s3.test")
	})
}

func httpResponse(status int, body []byte, headers map[string]string) *http.Response {
	h := http.Header{}
	for k, v := range headers {
		h.Set(k, v)
	}
	return &http.Response{
		StatusCode: status,
		Status:     fmt.Sprintf("%d %s", status, http.StatusText(status)),
		Header:     h,
		Body:       io.NopCloser(bytes.NewReader(body)),
	}
}

// fakeBucket answers HEAD, PUT and GET for path-style requests.
type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{objects: map[string][]byte{}, types: map[string]string{}}
}

func (b *fakeBucket) RoundTrip(r *http.Request) (*http.Response, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/")

	switch r.Method {
	case http.MethodHead:
		if _, ok := b.objects[path]; !ok {
			return httpResponse(http.StatusNotFound, nil, nil), nil
		}
		return httpResponse(http.StatusOK, nil, map[string]string{"Content-Length": "0"}), nil

	case http.MethodPut:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
		b.objects[path] = body
		b.types[path] = r.Header.Get("Content-Type")
		return httpResponse(http.StatusOK, nil, map[string]string{"ETag": `"etag"`}), nil

	case http.MethodGet:
		data, ok := b.objects[path]
		if !ok {
			return httpResponse(http.StatusNotFound,
				[]byte(`<Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`),
				map[string]string{"Content-Type": "application/xml"}), nil
		}
		return httpResponse(http.StatusOK, data, nil), nil
	}

	return nil, fmt.Errorf("unexpected method %s", r.Method)
}

func TestS3StoreRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	bucket := newFakeBucket()

	s, err := NewS3Store(newTestS3Client(bucket), "irs", "rooms/hall")
	if err != nil {
		t.Fatalf("NewS3Store failed: %v", err)
	}

	ok, err := s.Exists(ctx, "histogram.wav")
	if err != nil || ok {
		t.Fatalf("Exists before Put: %v, %v", ok, err)
	}

	// strings.Reader is seekable; the custom reader below is not.
	if err := s.Put(ctx, "histogram.wav", strings.NewReader("RIFF-payload")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if err := s.Put(ctx, "meta.json", io.MultiReader(strings.NewReader(`{"ok":`), strings.NewReader(`true}`))); err != nil {
		t.Fatalf("Put non-seekable failed: %v", err)
	}

	ok, err = s.Exists(ctx, "histogram.wav")
	if err != nil || !ok {
		t.Fatalf("Exists after Put: %v, %v", ok, err)
	}

	bucket.mu.Lock()
	stored, found := bucket.objects["irs/rooms/hall/histogram.wav"]
	ct := bucket.types["irs/rooms/hall/histogram.wav"]
	_, jsonFound := bucket.objects["irs/rooms/hall/meta.json"]
	bucket.mu.Unlock()

	if !found {
		t.Fatal("object not stored under prefixed key")
	}

	if !bytes.Contains(stored, []byte("RIFF-payload")) {
		t.Errorf("stored body %q does not carry the payload", stored)
	}

	if ct != "audio/wav" {
		t.Errorf("content type: got %q, want audio/wav", ct)
	}

	if !jsonFound {
		t.Error("non-seekable body was not stored")
	}
}

func TestS3StoreHeadError(t *testing.T) {
	t.Parallel()

	rt := roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		return httpResponse(http.StatusForbidden, nil, nil), nil
	})

	s, err := NewS3Store(newTestS3Client(rt), "irs", "")
	if err != nil {
		t.Fatalf("NewS3Store failed: %v", err)
	}

	if _, err := s.Exists(context.Background(), "histogram.wav"); err == nil {
		t.Error("expected error for forbidden HEAD")
	}
}

func TestS3StoreGetMissing(t *testing.T) {
	t.Parallel()

	s, err := NewS3Store(newTestS3Client(newFakeBucket()), "irs", "")
	if err != nil {
		t.Fatalf("NewS3Store failed: %v", err)
	}

	if _, err := s.Get(context.Background(), "nope.wav"); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestS3StoreRejectsBadKeys(t *testing.T) {
	t.Parallel()

	rt := roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		t.Errorf("unexpected request %s %s", r.Method, r.URL)
		return httpResponse(http.StatusOK, nil, nil), nil
	})

	s, err := NewS3Store(newTestS3Client(rt), "irs", "")
	if err != nil {
		t.Fatalf("NewS3Store failed: %v", err)
	}

	if _, err := s.Exists(context.Background(), "../escape.wav"); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("got %v, want ErrInvalidKey", err)
	}
}

func TestNewS3StoreValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewS3Store(nil, "b", ""); err == nil {
		t.Error("expected error for nil client")
	}

	if _, err := NewS3Store(newTestS3Client(newFakeBucket()), "", ""); err == nil {
		t.Error("expected error for empty bucket")
	}
}
