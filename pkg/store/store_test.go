package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

func TestCleanKey(t *testing.T) {
	t.Parallel()

	valid := []struct{ in, want string }{
		{"histogram.wav", "histogram.wav"},
		{"room/a/histogram.wav", "room/a/histogram.wav"},
		{"room/./x.wav", "room/x.wav"},
	}
	for _, tc := range valid {
		got, err := cleanKey(tc.in)
		if err != nil || got != tc.want {
			t.Errorf("cleanKey(%q) = %q, %v; want %q", tc.in, got, err, tc.want)
		}
	}

	for _, in := range []string{"", "/abs.wav", "..", "../up.wav", "a/../../b", ".", `a\b`} {
		if _, err := cleanKey(in); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("cleanKey(%q): got %v, want ErrInvalidKey", in, err)
		}
	}
}

func TestFileStorePutExists(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewFileStore(t.TempDir())

	ok, err := s.Exists(ctx, "room/histogram.wav")
	if err != nil || ok {
		t.Fatalf("Exists before Put: %v, %v", ok, err)
	}

	if err := s.Put(ctx, "room/histogram.wav", strings.NewReader("RIFF")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	ok, err = s.Exists(ctx, "room/histogram.wav")
	if err != nil || !ok {
		t.Fatalf("Exists after Put: %v, %v", ok, err)
	}

	data, err := s.Get(ctx, "room/histogram.wav")
	if err != nil || string(data) != "RIFF" {
		t.Errorf("Get: %q, %v", data, err)
	}

	if err := s.Put(ctx, "room/histogram.wav", strings.NewReader("second")); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}

	data, _ = s.Get(ctx, "room/histogram.wav")
	if string(data) != "second" {
		t.Errorf("overwrite: got %q", data)
	}
}

func TestFileStoreFailedPutLeavesNothing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	s := NewFileStore(dir)

	if err := s.Put(ctx, "histogram.wav", failingReader{}); err == nil {
		t.Fatal("expected error from failing reader")
	}

	ok, err := s.Exists(ctx, "histogram.wav")
	if err != nil || ok {
		t.Errorf("Exists after failed Put: %v, %v", ok, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}

	if len(entries) != 0 {
		t.Errorf("leftover files: %v", entries)
	}
}

func TestFileStoreDirectoryIsNotAnArtifact(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "histogram.wav"), 0o755); err != nil {
		t.Fatal(err)
	}

	ok, err := NewFileStore(dir).Exists(context.Background(), "histogram.wav")
	if err != nil || ok {
		t.Errorf("Exists on directory: %v, %v", ok, err)
	}
}

func TestFileStoreGetMissing(t *testing.T) {
	t.Parallel()

	_, err := NewFileStore(t.TempDir()).Get(context.Background(), "nope.wav")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestStoresHonorCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, s := range []Store{NewFileStore(t.TempDir()), NewMemoryStore()} {
		if _, err := s.Exists(ctx, "a.wav"); !errors.Is(err, context.Canceled) {
			t.Errorf("%T.Exists: got %v, want context.Canceled", s, err)
		}

		if err := s.Put(ctx, "a.wav", strings.NewReader("x")); !errors.Is(err, context.Canceled) {
			t.Errorf("%T.Put: got %v, want context.Canceled", s, err)
		}
	}
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()

	if _, err := s.Get(ctx, "x.wav"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get missing: got %v, want ErrNotFound", err)
	}

	if err := s.Put(ctx, "x.wav", strings.NewReader("abc")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	data, err := s.Get(ctx, "x.wav")
	if err != nil || string(data) != "abc" {
		t.Fatalf("Get: %q, %v", data, err)
	}

	// Returned bytes are a copy.
	data[0] = 'z'
	again, _ := s.Get(ctx, "x.wav")
	if string(again) != "abc" {
		t.Errorf("stored data was mutated: %q", again)
	}

	if err := s.Put(ctx, "y.wav", failingReader{}); err == nil {
		t.Error("expected error from failing reader")
	}

	if ok, _ := s.Exists(ctx, "y.wav"); ok {
		t.Error("failed Put left an artifact")
	}

	if s.Puts() != 1 {
		t.Errorf("Puts: got %d, want 1", s.Puts())
	}
}

func TestMemoryStoreConcurrent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()

	var wg sync.WaitGroup
	for i := range 32 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			key := fmt.Sprintf("k%d.wav", i%4)
			_ = s.Put(ctx, key, strings.NewReader(key))
			_, _ = s.Exists(ctx, key)
		}(i)
	}
	wg.Wait()

	if s.Puts() != 32 {
		t.Errorf("Puts: got %d, want 32", s.Puts())
	}

	for i := range 4 {
		if ok, _ := s.Exists(ctx, fmt.Sprintf("k%d.wav", i)); !ok {
			t.Errorf("k%d.wav missing", i)
		}
	}
}
