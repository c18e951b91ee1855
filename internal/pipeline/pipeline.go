// Package pipeline runs one encode job end to end: fetch, probe, plan,
// transcode, package, publish, notify, cleanup. Stages are strictly
// sequential; the only fan-out is inside the transcode stage.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"vodencoder/internal/encode"
	"vodencoder/internal/ladder"
	"vodencoder/internal/manifest"
	"vodencoder/internal/probe"
	"vodencoder/internal/publish"
	"vodencoder/internal/queue"
	"vodencoder/internal/stats"
	"vodencoder/internal/storage"
	"vodencoder/internal/store"
	"vodencoder/internal/workspace"
)

// SourceFetcher is the slice of object storage the fetch stage needs.
type SourceFetcher interface {
	FetchSource(ctx context.Context, objectKey, destPath string) error
}

// Notifier reports completion to the backend.
type Notifier interface {
	Encoded(ctx context.Context, videoID string) error
}

// ProbeFunc inspects a local media file.
type ProbeFunc func(ctx context.Context, path string) (*probe.MediaInfo, error)

type Pipeline struct {
	fetcher   SourceFetcher
	probeFn   ProbeFunc
	engine    *encode.Engine
	publisher *publish.Publisher
	notifier  Notifier
	objectURL func(objectKey string) string
	ledger    *store.Store
	reporter  *stats.Reporter
	logger    zerolog.Logger

	sourceBucket   string
	tempDir        string
	minSourceBytes int64
	fetchAttempts  int
	fetchBackoff   time.Duration
}

type Options struct {
	Fetcher        SourceFetcher
	Probe          ProbeFunc
	Engine         *encode.Engine
	Publisher      *publish.Publisher
	Notifier       Notifier
	ObjectURL      func(objectKey string) string
	Ledger         *store.Store
	Reporter       *stats.Reporter
	Logger         zerolog.Logger
	SourceBucket   string
	TempDir        string
	MinSourceBytes int64
	FetchAttempts  int
}

func New(opts Options) *Pipeline {
	if opts.FetchAttempts < 1 {
		opts.FetchAttempts = 1
	}
	return &Pipeline{
		fetcher:        opts.Fetcher,
		probeFn:        opts.Probe,
		engine:         opts.Engine,
		publisher:      opts.Publisher,
		notifier:       opts.Notifier,
		objectURL:      opts.ObjectURL,
		ledger:         opts.Ledger,
		reporter:       opts.Reporter,
		logger:         opts.Logger.With().Str("component", "pipeline").Logger(),
		sourceBucket:   opts.SourceBucket,
		tempDir:        opts.TempDir,
		minSourceBytes: opts.MinSourceBytes,
		fetchAttempts:  opts.FetchAttempts,
		fetchBackoff:   time.Second,
	}
}

// Process runs one job descriptor to completion. Duplicate delivery of
// the same descriptor is tolerated: each run gets its own workspace, and
// destination object paths derive from job identity, so a re-run settles
// as last-writer-wins on storage.
func (p *Pipeline) Process(ctx context.Context, job queue.EncodePayload) (err error) {
	runID := uuid.NewString()
	logger := p.logger.With().
		Str("video_id", job.VideoID).
		Str("run_id", runID).
		Logger()

	rs := stats.RunStats{VideoID: job.VideoID, RunID: runID}
	start := time.Now()
	defer func() {
		rs.TotalDuration = time.Since(start)
		rs.Log(logger)
		if p.reporter != nil {
			p.reporter.Observe(rs.TotalDuration, err != nil)
		}
	}()

	sourceKey, keyErr := job.SourceObjectKey(p.sourceBucket)
	if keyErr != nil {
		return &queue.MalformedJobError{Reason: keyErr.Error()}
	}

	p.recordStart(ctx, runID, job, logger)
	defer func() { p.recordFinish(ctx, runID, job, err, logger) }()

	ws, wsErr := workspace.Acquire(p.tempDir, job.VideoID+"-"+runID, logger)
	if wsErr != nil {
		return wsErr
	}
	defer ws.Release()

	logger.Info().Str("source_key", sourceKey).Msg("job started")

	// Fetch.
	stageStart := time.Now()
	if err := p.fetch(ctx, sourceKey, ws.InputPath, logger); err != nil {
		return err
	}
	rs.FetchDuration = time.Since(stageStart)

	// Probe and validate.
	stageStart = time.Now()
	info, probeErr := p.probeFn(ctx, ws.InputPath)
	if probeErr != nil {
		return &probe.CorruptSourceError{Path: ws.InputPath, Reason: probeErr.Error()}
	}
	if err := probe.Validate(info, ws.InputPath, p.minSourceBytes); err != nil {
		return err
	}
	rs.ProbeDuration = time.Since(stageStart)
	logger.Info().
		Str("resolution", info.Resolution()).
		Float64("duration_sec", info.DurationSeconds).
		Int64("bitrate_bps", info.BitRateBps).
		Str("video_codec", info.VideoCodec).
		Str("audio_codec", info.AudioCodec).
		Msg("source analyzed")

	// Plan.
	plan := ladder.Build(info)
	for _, r := range plan.Skipped {
		logger.Info().Str("rendition", r.Name).Msg("skipping rendition, source already at this resolution")
	}
	logger.Info().Int("renditions", len(plan.Renditions)).Str("tier", plan.Tier.Name).Msg("ladder planned")

	// Transcode: the ladder plus the auxiliary branches, all joined
	// before anything is published.
	stageStart = time.Now()
	sourceDuration := time.Duration(info.DurationSeconds * float64(time.Second))
	outcomes, mp4Result, mp4Err := p.transcode(ctx, ws, plan, sourceDuration, logger)
	rs.TranscodeDuration = time.Since(stageStart)

	var failed []string
	var successful []ladder.Rendition
	for _, o := range outcomes {
		rs.ObserveRendition(o.Result.Frames, o.Result.DroppedFrames, o.Result.Speed, !o.OK())
		if o.OK() {
			successful = append(successful, o.Rendition)
		} else {
			failed = append(failed, o.Rendition.Name)
		}
	}
	if mp4Err == nil {
		rs.Frames += mp4Result.Frames
		rs.DroppedFrames += mp4Result.DroppedFrames
	}

	// Package: the master manifest is written only now, with every
	// planned rendition settled, and references successes only.
	if len(successful) > 0 {
		if _, err := manifest.WriteMaster(ws.OutDir, successful); err != nil {
			return err
		}
	}
	if len(failed) > 0 {
		return &LadderError{Failed: failed}
	}

	// Publish.
	stageStart = time.Now()
	report, pubErr := p.publisher.Upload(ctx, ws.OutDir, job.RemotePrefix())
	rs.PublishDuration = time.Since(stageStart)
	rs.UploadedFiles = report.Uploaded
	rs.FailedUploads = report.Failed
	rs.UploadedBytes = report.UploadedBytes
	if pubErr != nil {
		return pubErr
	}

	// Notify. Output is already durable; a callback failure loses only
	// the status flip and can be re-issued by an operator.
	stageStart = time.Now()
	notifyErr := p.notifier.Encoded(ctx, job.VideoID)
	rs.NotifyDuration = time.Since(stageStart)
	if notifyErr != nil {
		return notifyErr
	}

	logger.Info().Str("playback_url", p.playbackURL(job)).Msg("job completed")
	return nil
}

func (p *Pipeline) fetch(ctx context.Context, sourceKey, destPath string, logger zerolog.Logger) error {
	var lastErr error
	for attempt := 1; attempt <= p.fetchAttempts; attempt++ {
		lastErr = p.fetcher.FetchSource(ctx, sourceKey, destPath)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, storage.ErrNotFound) {
			return &FetchError{Key: sourceKey, NotFound: true, Err: lastErr}
		}
		if attempt == p.fetchAttempts {
			break
		}
		logger.Warn().Err(lastErr).Int("attempt", attempt).Msg("fetch retrying")
		select {
		case <-ctx.Done():
			return &FetchError{Key: sourceKey, Err: ctx.Err()}
		case <-time.After(time.Duration(attempt) * p.fetchBackoff):
		}
	}
	return &FetchError{Key: sourceKey, Err: lastErr}
}

func (p *Pipeline) transcode(ctx context.Context, ws *workspace.Workspace, plan ladder.Plan, sourceDuration time.Duration, logger zerolog.Logger) ([]encode.RenditionOutcome, encode.Result, error) {
	var (
		mp4Result encode.Result
		mp4Err    error
		thumbErr  error
		done      = make(chan struct{})
	)
	go func() {
		defer close(done)
		mp4Result, mp4Err = p.engine.RunMP4(ctx, ws.InputPath, ws.OutDir, plan.Tier, sourceDuration)
		if mp4Err != nil {
			logger.Warn().Err(mp4Err).Msg("download rendition failed, continuing without it")
		}
		if _, thumbErr = p.engine.Thumbnails(ctx, ws.InputPath, ws.OutDir, sourceDuration); thumbErr != nil {
			logger.Warn().Err(thumbErr).Msg("thumbnails failed, continuing without them")
		}
	}()

	outcomes := p.engine.RunLadder(ctx, ws.InputPath, ws.OutDir, plan, sourceDuration)
	<-done
	return outcomes, mp4Result, mp4Err
}

func (p *Pipeline) playbackURL(job queue.EncodePayload) string {
	if p.objectURL == nil {
		return ""
	}
	return p.objectURL(job.RemotePrefix() + "/" + manifest.MasterName)
}

func (p *Pipeline) recordStart(ctx context.Context, runID string, job queue.EncodePayload, logger zerolog.Logger) {
	if p.ledger == nil {
		return
	}
	err := p.ledger.CreateRun(ctx, store.Run{
		RunID:     runID,
		VideoID:   job.VideoID,
		CourseID:  job.CourseID,
		SourceURI: job.GCSURI,
		Status:    store.StatusProcessing,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("ledger: record run start failed")
	}
}

func (p *Pipeline) recordFinish(ctx context.Context, runID string, job queue.EncodePayload, jobErr error, logger zerolog.Logger) {
	if p.ledger == nil {
		return
	}
	status := store.StatusCompleted
	var errMsg *string
	var playbackURL *string
	if jobErr != nil {
		status = store.StatusFailed
		msg := jobErr.Error()
		if len(msg) > 800 {
			msg = msg[:800] + "..."
		}
		errMsg = &msg
	} else if url := p.playbackURL(job); url != "" {
		playbackURL = &url
	}
	if err := p.ledger.FinishRun(ctx, runID, status, errMsg, playbackURL); err != nil {
		logger.Warn().Err(err).Msg("ledger: record run finish failed")
	}
}
