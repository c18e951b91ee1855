// Package manifest writes the master playlist for adaptive playback.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"vodencoder/internal/ladder"
)

const MasterName = "master.m3u8"

// WriteMaster renders the top-level playlist referencing the given
// renditions. Callers must only pass renditions whose segments and
// per-rendition manifests are fully present: the master is written once,
// after every planned rung has settled, so playback never references a
// half-produced ladder.
func WriteMaster(outDir string, renditions []ladder.Rendition) (string, error) {
	if len(renditions) == 0 {
		return "", fmt.Errorf("no renditions to reference")
	}

	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:6\n")
	for _, r := range renditions {
		fmt.Fprintf(&b, "#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%dx%d\n", r.BandwidthBps(), r.Width, r.Height)
		fmt.Fprintf(&b, "%s/index.m3u8\n", r.Name)
	}

	path := filepath.Join(outDir, MasterName)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("write master manifest: %w", err)
	}
	return path, nil
}
