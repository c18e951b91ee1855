package encode

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	keyframeInterval = 48
	diagnosticTail   = 2000
)

// FFmpeg shells out to the ffmpeg binary. One value is shared by all
// concurrent invocations; it holds no per-job state.
type FFmpeg struct {
	path             string
	videoCodec       string
	progressInterval time.Duration
	logger           zerolog.Logger
}

func NewFFmpeg(path, videoCodec string, progressInterval time.Duration, logger zerolog.Logger) *FFmpeg {
	if videoCodec == "" {
		videoCodec = "libx264"
	}
	return &FFmpeg{
		path:             path,
		videoCodec:       videoCodec,
		progressInterval: progressInterval,
		logger:           logger.With().Str("component", "ffmpeg").Str("video_codec", videoCodec).Logger(),
	}
}

// hardware encoders probed in order of preference when no codec is pinned
// by configuration.
var hardwareCodecs = []string{"h264_nvenc", "h264_videotoolbox", "h264_qsv", "h264_vaapi"}

// DetectVideoCodec inspects `ffmpeg -encoders` and returns the best
// available H.264 encoder, preferring hardware. Detection failure falls
// back to libx264 rather than failing startup.
func DetectVideoCodec(ctx context.Context, ffmpegPath, preferred string) string {
	if preferred != "" {
		return preferred
	}
	out, err := exec.CommandContext(ctx, ffmpegPath, "-hide_banner", "-encoders").Output()
	if err != nil {
		return "libx264"
	}
	for _, codec := range hardwareCodecs {
		if bytes.Contains(out, []byte(codec)) {
			return codec
		}
	}
	return "libx264"
}

// Transcode runs one encoder invocation to completion, streaming progress
// into the log at a throttled cadence. A non-zero exit returns an
// EncodeError carrying a bounded stderr tail.
func (f *FFmpeg) Transcode(ctx context.Context, spec Spec) (Result, error) {
	args, outPath, err := f.buildArgs(spec)
	if err != nil {
		return Result{}, &EncodeError{Rendition: spec.Rendition.Name, Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return Result{}, &EncodeError{Rendition: spec.Rendition.Name, Err: err}
	}

	logger := f.logger.With().Str("rendition", spec.Rendition.Name).Logger()
	logger.Debug().Strs("args", args).Msg("starting encoder")

	cmd := exec.CommandContext(ctx, f.path, args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{}, &EncodeError{Rendition: spec.Rendition.Name, Err: err}
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{}, &EncodeError{Rendition: spec.Rendition.Name, Err: err}
	}

	var state progressState
	tail := newTailBuffer(diagnosticTail)
	lastLog := time.Now()

	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	scanner.Split(scanLines)
	for scanner.Scan() {
		line := scanner.Text()
		_, _ = tail.Write(append([]byte(line), '\n'))
		if !state.observe(line) {
			continue
		}
		if time.Since(lastLog) < f.progressInterval {
			continue
		}
		lastLog = time.Now()
		ev := logger.Info().
			Int64("frames", state.frames).
			Float64("fps", state.fps).
			Float64("speed", state.speed).
			Float64("bitrate_kbps", state.bitrateKbps).
			Int64("dropped_frames", state.droppedFrames)
		if spec.SourceDuration > 0 && state.outSeconds > 0 {
			pct := state.outSeconds / spec.SourceDuration.Seconds() * 100
			ev = ev.Float64("progress_pct", pct)
		}
		ev.Msg("encoding progress")
	}

	waitErr := cmd.Wait()
	elapsed := time.Since(start)
	result := Result{
		OutputPath:    outPath,
		Frames:        state.frames,
		DroppedFrames: state.droppedFrames,
		FPS:           state.fps,
		Speed:         state.speed,
		BitrateKbps:   state.bitrateKbps,
		Elapsed:       elapsed,
	}
	if waitErr != nil {
		if ctx.Err() != nil {
			waitErr = fmt.Errorf("%w: %v", ctx.Err(), waitErr)
		}
		return result, &EncodeError{
			Rendition: spec.Rendition.Name,
			Err:       waitErr,
			Tail:      strings.TrimSpace(tail.String()),
		}
	}

	logger.Info().
		Dur("elapsed", elapsed).
		Int64("frames", state.frames).
		Int64("dropped_frames", state.droppedFrames).
		Float64("speed", state.speed).
		Msg("encoder finished")
	return result, nil
}

// ExtractFrame grabs a single padded 1280x720 JPEG at offset.
func (f *FFmpeg) ExtractFrame(ctx context.Context, inputPath string, offset time.Duration, outPath string) error {
	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-ss", fmt.Sprintf("%.2f", offset.Seconds()),
		"-i", inputPath,
		"-vf", "scale=1280:720:force_original_aspect_ratio=decrease,pad=1280:720:(ow-iw)/2:(oh-ih)/2:black",
		"-q:v", "2",
		"-frames:v", "1",
		"-f", "image2",
		outPath,
	}
	cmd := exec.CommandContext(ctx, f.path, args...)
	var buf bytes.Buffer
	cmd.Stderr = &buf
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("extract frame at %s: %w: %s", offset, err, truncate(buf.String(), 400))
	}
	return nil
}

func (f *FFmpeg) buildArgs(spec Spec) (args []string, outPath string, err error) {
	r := spec.Rendition
	args = []string{
		"-hide_banner", "-loglevel", "error",
		"-progress", "pipe:2",
		"-y",
		"-i", spec.InputPath,
		"-c:v", f.videoCodec,
	}
	switch {
	case strings.HasSuffix(f.videoCodec, "_videotoolbox"):
		args = append(args, "-allow_sw", "1")
	case f.videoCodec == "libx264":
		args = append(args, "-preset", spec.Tier.Preset, "-crf", fmt.Sprintf("%d", spec.Tier.CRF))
	}

	switch spec.Kind {
	case KindHLS:
		resDir := filepath.Join(spec.OutDir, r.Name)
		outPath = filepath.Join(resDir, "index.m3u8")
		args = append(args,
			"-profile:v", spec.Tier.Profile,
			"-vf", fmt.Sprintf("scale=%d:%d:flags=fast_bilinear,format=yuv420p", r.Width, r.Height),
			"-b:v", r.Bitrate,
			"-maxrate", r.MaxBitrate,
			"-bufsize", r.BufSize,
			"-g", fmt.Sprintf("%d", keyframeInterval),
			"-keyint_min", fmt.Sprintf("%d", keyframeInterval),
			"-sc_threshold", "0",
			"-c:a", "aac", "-b:a", "128k", "-ac", "2", "-ar", "48000",
			"-hls_time", fmt.Sprintf("%d", spec.SegmentSeconds),
			"-hls_playlist_type", "vod",
			"-hls_segment_filename", filepath.Join(resDir, "%d.ts"),
			"-hls_flags", "independent_segments+temp_file",
			"-f", "hls",
			outPath,
		)
	case KindMP4:
		outPath = filepath.Join(spec.OutDir, "download.mp4")
		args = append(args,
			"-profile:v", "high",
			"-level", "4.1",
			"-b:v", r.Bitrate,
			"-maxrate", r.MaxBitrate,
			"-bufsize", r.BufSize,
			"-g", fmt.Sprintf("%d", keyframeInterval),
			"-keyint_min", fmt.Sprintf("%d", keyframeInterval),
			"-sc_threshold", "0",
			"-c:a", "aac", "-b:a", "160k", "-ac", "2", "-ar", "48000",
			"-movflags", "+faststart",
			"-fflags", "+genpts",
			outPath,
		)
	default:
		return nil, "", fmt.Errorf("unknown output kind %d", spec.Kind)
	}
	return args, outPath, nil
}

// scanLines splits on both \n and \r so ffmpeg's carriage-return status
// updates arrive as individual lines.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
