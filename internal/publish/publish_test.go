package publish

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

// fakeUploader records upload order and fails keys listed in failKeys
// a configurable number of times.
type fakeUploader struct {
	mu       sync.Mutex
	keys     []string
	attempts map[string]int
	failKeys map[string]int // key -> number of attempts that fail
}

func (f *fakeUploader) Upload(ctx context.Context, localPath, objectKey, contentType, cc string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.attempts == nil {
		f.attempts = make(map[string]int)
	}
	f.attempts[objectKey]++
	if f.failKeys[objectKey] >= f.attempts[objectKey] {
		return errors.New("connection reset")
	}
	f.keys = append(f.keys, objectKey)
	return nil
}

// writeTree lays out a small finished output directory. Sizes are chosen
// so ordering within a priority band is observable.
func writeTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]int{
		"master.m3u8":     100,
		"720/index.m3u8":  300,
		"720/0.ts":        5000,
		"720/1.ts":        9000,
		"download.mp4":    20000,
		"thumbnail.jpg":   400,
		"thumbnail_1.jpg": 400,
	}
	for name, size := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestUploadOrdering(t *testing.T) {
	up := &fakeUploader{}
	// Batch size 1 serialises uploads so the recorded order is the plan order.
	p := New(up, 1, 1, zerolog.Nop())

	report, err := p.Upload(context.Background(), writeTree(t), "assets/a/c/v")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if report.Uploaded != 7 || report.Failed != 0 {
		t.Errorf("report = %+v, want 7 uploaded", report)
	}

	want := []string{
		"assets/a/c/v/720/index.m3u8", // larger manifest first
		"assets/a/c/v/master.m3u8",
		"assets/a/c/v/720/1.ts", // larger segment first
		"assets/a/c/v/720/0.ts",
		"assets/a/c/v/download.mp4",
	}
	if len(up.keys) != 7 {
		t.Fatalf("uploaded keys = %v", up.keys)
	}
	for i := range want {
		if up.keys[i] != want[i] {
			t.Errorf("upload %d = %q, want %q", i, up.keys[i], want[i])
		}
	}
	// Thumbnails land last in either order.
	for _, k := range up.keys[5:] {
		if !strings.HasSuffix(k, ".jpg") {
			t.Errorf("trailing upload %q is not a thumbnail", k)
		}
	}
}

func TestUploadRetriesTransientFailure(t *testing.T) {
	up := &fakeUploader{failKeys: map[string]int{"assets/v/720/0.ts": 2}}
	p := New(up, 15, 3, zerolog.Nop())
	p.backoff = 0

	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "720"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "720", "0.ts"), []byte("seg"), 0o644); err != nil {
		t.Fatal(err)
	}

	report, err := p.Upload(context.Background(), dir, "assets/v")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if report.Uploaded != 1 {
		t.Errorf("report = %+v, want 1 uploaded", report)
	}
	if got := up.attempts["assets/v/720/0.ts"]; got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestUploadSegmentLossIsFatal(t *testing.T) {
	up := &fakeUploader{failKeys: map[string]int{"assets/v/720/0.ts": 99}}
	p := New(up, 15, 2, zerolog.Nop())
	p.backoff = 0

	dir := t.TempDir()
	for _, name := range []string{"720/0.ts", "720/index.m3u8"} {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	report, err := p.Upload(context.Background(), dir, "assets/v")
	var pubErr *PublishError
	if !errors.As(err, &pubErr) {
		t.Fatalf("expected PublishError, got %v", err)
	}
	if len(pubErr.Failed) != 1 || pubErr.Failed[0] != "assets/v/720/0.ts" {
		t.Errorf("Failed = %v", pubErr.Failed)
	}
	if report.Uploaded != 1 || report.Failed != 1 {
		t.Errorf("report = %+v", report)
	}
}

func TestUploadThumbnailLossIsNotFatal(t *testing.T) {
	up := &fakeUploader{failKeys: map[string]int{"assets/v/thumbnail.jpg": 99}}
	p := New(up, 15, 2, zerolog.Nop())
	p.backoff = 0

	dir := t.TempDir()
	for _, name := range []string{"master.m3u8", "thumbnail.jpg"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	report, err := p.Upload(context.Background(), dir, "assets/v")
	if err != nil {
		t.Fatalf("Upload: %v, auxiliary loss must not fail the run", err)
	}
	if report.Uploaded != 1 || report.Failed != 1 {
		t.Errorf("report = %+v", report)
	}
}

func TestContentType(t *testing.T) {
	cases := map[string]string{
		"master.m3u8":   "application/vnd.apple.mpegurl",
		"0.ts":          "video/mp2t",
		"download.mp4":  "video/mp4",
		"thumbnail.jpg": "image/jpeg",
		"notes.txt":     "application/octet-stream",
	}
	for path, want := range cases {
		if got := ContentType(path); got != want {
			t.Errorf("ContentType(%q) = %q, want %q", path, got, want)
		}
	}
}
