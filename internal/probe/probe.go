package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// MediaInfo holds the source metadata the planner needs. Fields that
// ffprobe could not report stay at their zero value; callers must treat
// zeroes as unknown, not as facts about the stream.
type MediaInfo struct {
	Width           int
	Height          int
	DurationSeconds float64
	BitRateBps      int64
	VideoCodec      string
	AudioCodec      string
	SizeBytes       int64
	HasVideo        bool
}

// Resolution returns "WxH", or "" when the dimensions are unknown.
func (m *MediaInfo) Resolution() string {
	if m == nil || m.Width == 0 || m.Height == 0 {
		return ""
	}
	return fmt.Sprintf("%dx%d", m.Width, m.Height)
}

// CorruptSourceError is terminal for a job: the downloaded object is not a
// usable video and re-running the same job cannot change that.
type CorruptSourceError struct {
	Path   string
	Reason string
}

func (e *CorruptSourceError) Error() string {
	return fmt.Sprintf("corrupt source %s: %s", e.Path, e.Reason)
}

// Probe runs a single ffprobe JSON call against path.
func Probe(ctx context.Context, ffprobePath, path string) (*MediaInfo, error) {
	cmd := exec.CommandContext(ctx, ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format", "-show_streams",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe %q: %w", path, err)
	}
	return ParseJSON(out)
}

// Validate enforces the sanity floor on a downloaded source: at least one
// video stream, a positive duration and a minimum size. The size comes
// from the file itself, not the probe; containers may omit format.size.
func Validate(info *MediaInfo, path string, minBytes int64) error {
	if info == nil || !info.HasVideo {
		return &CorruptSourceError{Path: path, Reason: "no video stream"}
	}
	if info.DurationSeconds <= 0 {
		return &CorruptSourceError{Path: path, Reason: "zero duration"}
	}
	fi, err := os.Stat(path)
	if err != nil {
		return &CorruptSourceError{Path: path, Reason: err.Error()}
	}
	if fi.Size() < minBytes {
		return &CorruptSourceError{Path: path, Reason: fmt.Sprintf("size %d below floor %d", fi.Size(), minBytes)}
	}
	return nil
}

// ParseJSON converts raw ffprobe JSON output into MediaInfo. Exported for
// testing without a real ffprobe binary.
func ParseJSON(data []byte) (*MediaInfo, error) {
	var raw ffprobeOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse ffprobe JSON: %w", err)
	}

	info := &MediaInfo{
		DurationSeconds: parseFloat(raw.Format.Duration),
		BitRateBps:      parseInt64(raw.Format.BitRate),
		SizeBytes:       parseInt64(raw.Format.Size),
	}
	for i := range raw.Streams {
		s := &raw.Streams[i]
		switch s.CodecType {
		case "video":
			if s.Disposition["attached_pic"] == 1 {
				continue
			}
			if !info.HasVideo {
				info.HasVideo = true
				info.Width = s.Width
				info.Height = s.Height
				info.VideoCodec = s.CodecName
			}
		case "audio":
			if info.AudioCodec == "" {
				info.AudioCodec = s.CodecName
			}
		}
	}
	return info, nil
}

// ffprobe JSON wire types. Numeric format fields arrive as strings.

type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
	Size     string `json:"size"`
	BitRate  string `json:"bit_rate"`
}

type ffprobeStream struct {
	CodecName   string         `json:"codec_name"`
	CodecType   string         `json:"codec_type"`
	Width       int            `json:"width"`
	Height      int            `json:"height"`
	Disposition map[string]int `json:"disposition"`
}

func parseInt64(s string) int64 {
	n, _ := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return n
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f
}
