package encode

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"vodencoder/internal/ladder"
)

// mp4Rendition is the fixed-bitrate single-file download branch.
var mp4Rendition = ladder.Rendition{Name: "download", Bitrate: "3000k", MaxBitrate: "4500k", BufSize: "6000k"}

// Engine fans one job out across the planned renditions and the auxiliary
// MP4/thumbnail branches. It owns no per-job state; everything is scoped
// to the call.
type Engine struct {
	enc            Encoder
	segmentSeconds int
	mp4Timeout     time.Duration
	logger         zerolog.Logger
}

func NewEngine(enc Encoder, segmentSeconds int, mp4Timeout time.Duration, logger zerolog.Logger) *Engine {
	return &Engine{
		enc:            enc,
		segmentSeconds: segmentSeconds,
		mp4Timeout:     mp4Timeout,
		logger:         logger.With().Str("component", "engine").Logger(),
	}
}

// RenditionOutcome is the settled state of one ladder rung.
type RenditionOutcome struct {
	Rendition ladder.Rendition
	Result    Result
	Err       error
}

func (o RenditionOutcome) OK() bool { return o.Err == nil }

// RunLadder launches every planned rendition concurrently and waits for
// all of them to settle. One rendition failing never cancels its siblings;
// the caller decides whether the job survives. Outcomes are returned in
// plan order.
func (e *Engine) RunLadder(ctx context.Context, inputPath, outDir string, plan ladder.Plan, sourceDuration time.Duration) []RenditionOutcome {
	outcomes := make([]RenditionOutcome, len(plan.Renditions))

	var wg sync.WaitGroup
	for i, r := range plan.Renditions {
		wg.Add(1)
		go func(i int, r ladder.Rendition) {
			defer wg.Done()
			result, err := e.enc.Transcode(ctx, Spec{
				InputPath:      inputPath,
				OutDir:         outDir,
				Rendition:      r,
				Tier:           plan.Tier,
				Kind:           KindHLS,
				SegmentSeconds: e.segmentSeconds,
				SourceDuration: sourceDuration,
			})
			outcomes[i] = RenditionOutcome{Rendition: r, Result: result, Err: err}
			if err != nil {
				e.logger.Error().Err(err).Str("rendition", r.Name).Msg("rendition failed")
			}
		}(i, r)
	}
	wg.Wait()
	return outcomes
}

// RunMP4 produces the download rendition under its own timeout. A stuck
// encode kills only this branch, never the ladder.
func (e *Engine) RunMP4(ctx context.Context, inputPath, outDir string, tier ladder.Tier, sourceDuration time.Duration) (Result, error) {
	if e.mp4Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.mp4Timeout)
		defer cancel()
	}
	return e.enc.Transcode(ctx, Spec{
		InputPath:      inputPath,
		OutDir:         outDir,
		Rendition:      mp4Rendition,
		Tier:           tier,
		Kind:           KindMP4,
		SourceDuration: sourceDuration,
	})
}

// Thumbnails samples candidate frames at an early absolute offset and at
// 25/50/75% of the duration, then promotes the mid-duration candidate to
// thumbnail.jpg, falling back to the first that succeeded. It returns the
// produced files; an error means no candidate at all could be extracted.
func (e *Engine) Thumbnails(ctx context.Context, inputPath, outDir string, sourceDuration time.Duration) ([]string, error) {
	offsets := []time.Duration{5 * time.Second}
	canonicalIdx := 0
	if sourceDuration > 0 {
		for _, frac := range []float64{0.25, 0.50, 0.75} {
			offsets = append(offsets, time.Duration(frac*float64(sourceDuration)))
		}
		canonicalIdx = 2 // the 50% candidate
	}

	produced := make([]string, len(offsets))
	var wg sync.WaitGroup
	for i, off := range offsets {
		wg.Add(1)
		go func(i int, off time.Duration) {
			defer wg.Done()
			outPath := filepath.Join(outDir, fmt.Sprintf("thumbnail_%d.jpg", i+1))
			if err := e.enc.ExtractFrame(ctx, inputPath, off, outPath); err != nil {
				e.logger.Warn().Err(err).Dur("offset", off).Msg("thumbnail candidate failed")
				return
			}
			produced[i] = outPath
		}(i, off)
	}
	wg.Wait()

	canonical := produced[canonicalIdx]
	var files []string
	for _, p := range produced {
		if p == "" {
			continue
		}
		files = append(files, p)
		if canonical == "" {
			canonical = p
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("all %d thumbnail candidates failed", len(offsets))
	}

	mainPath := filepath.Join(outDir, "thumbnail.jpg")
	if err := copyFile(canonical, mainPath); err != nil {
		e.logger.Warn().Err(err).Msg("promote canonical thumbnail")
		return files, nil
	}
	return append(files, mainPath), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
