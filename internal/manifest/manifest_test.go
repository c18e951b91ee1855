package manifest

import (
	"os"
	"strings"
	"testing"

	"vodencoder/internal/ladder"
)

func TestWriteMaster(t *testing.T) {
	dir := t.TempDir()
	renditions := []ladder.Rendition{
		{Name: "720", Width: 1280, Height: 720, Bitrate: "2800k"},
		{Name: "360", Width: 640, Height: 360, Bitrate: "800k"},
	}

	path, err := WriteMaster(dir, renditions)
	if err != nil {
		t.Fatalf("WriteMaster: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read master: %v", err)
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	want := []string{
		"#EXTM3U",
		"#EXT-X-VERSION:6",
		"#EXT-X-STREAM-INF:BANDWIDTH=2928000,RESOLUTION=1280x720",
		"720/index.m3u8",
		"#EXT-X-STREAM-INF:BANDWIDTH=928000,RESOLUTION=640x360",
		"360/index.m3u8",
	}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines:\n%s", len(lines), data)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestWriteMasterEmpty(t *testing.T) {
	if _, err := WriteMaster(t.TempDir(), nil); err == nil {
		t.Fatal("expected error for empty rendition set")
	}
}
