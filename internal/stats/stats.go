// Package stats carries per-job run statistics and the process-wide
// aggregate reporter. RunStats is a value scoped to one job's call chain;
// it is never shared across jobs.
package stats

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// RunStats accumulates counters and timers for one job. It is threaded
// through the pipeline and logged once at job end.
type RunStats struct {
	VideoID string
	RunID   string

	Frames        int64
	DroppedFrames int64
	Renditions    int
	FailedRungs   int
	PeakSpeed     float64

	UploadedFiles int
	FailedUploads int
	UploadedBytes int64

	FetchDuration     time.Duration
	ProbeDuration     time.Duration
	TranscodeDuration time.Duration
	PublishDuration   time.Duration
	NotifyDuration    time.Duration
	TotalDuration     time.Duration
}

// ObserveRendition folds one settled rendition into the stats.
func (s *RunStats) ObserveRendition(frames, dropped int64, speed float64, failed bool) {
	s.Renditions++
	s.Frames += frames
	s.DroppedFrames += dropped
	if speed > s.PeakSpeed {
		s.PeakSpeed = speed
	}
	if failed {
		s.FailedRungs++
	}
}

// Log emits the per-job summary.
func (s *RunStats) Log(logger zerolog.Logger) {
	logger.Info().
		Str("video_id", s.VideoID).
		Str("run_id", s.RunID).
		Int64("frames", s.Frames).
		Int64("dropped_frames", s.DroppedFrames).
		Int("renditions", s.Renditions).
		Int("failed_renditions", s.FailedRungs).
		Float64("peak_speed", s.PeakSpeed).
		Int("uploaded_files", s.UploadedFiles).
		Int("failed_uploads", s.FailedUploads).
		Int64("uploaded_bytes", s.UploadedBytes).
		Dur("fetch", s.FetchDuration).
		Dur("probe", s.ProbeDuration).
		Dur("transcode", s.TranscodeDuration).
		Dur("publish", s.PublishDuration).
		Dur("notify", s.NotifyDuration).
		Dur("total", s.TotalDuration).
		Msg("job statistics")
}

// Reporter keeps process-wide aggregates and logs them periodically.
type Reporter struct {
	mu        sync.Mutex
	processed int
	failed    int
	total     time.Duration
	interval  time.Duration
	logger    zerolog.Logger
}

func NewReporter(interval time.Duration, logger zerolog.Logger) *Reporter {
	return &Reporter{
		interval: interval,
		logger:   logger.With().Str("component", "stats").Logger(),
	}
}

// Observe records one finished job.
func (r *Reporter) Observe(d time.Duration, failed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if failed {
		r.failed++
	} else {
		r.processed++
	}
	r.total += d
}

// Start logs aggregates on a ticker until ctx is done.
func (r *Reporter) Start(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.log()
			}
		}
	}()
}

func (r *Reporter) log() {
	r.mu.Lock()
	processed, failed, total := r.processed, r.failed, r.total
	r.mu.Unlock()

	var avg time.Duration
	if n := processed + failed; n > 0 {
		avg = total / time.Duration(n)
	}
	r.logger.Info().
		Int("processed", processed).
		Int("failed", failed).
		Dur("average_duration", avg).
		Msg("processing statistics")
}
