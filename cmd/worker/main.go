package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"vodencoder/internal/config"
	"vodencoder/internal/encode"
	"vodencoder/internal/notify"
	"vodencoder/internal/pipeline"
	"vodencoder/internal/probe"
	"vodencoder/internal/publish"
	"vodencoder/internal/queue"
	"vodencoder/internal/stats"
	"vodencoder/internal/storage"
	"vodencoder/internal/store"
)

func main() {
	cfg := config.Load()
	logger := newLogger(cfg.Env)

	ctx := context.Background()

	var ledger *store.Store
	if cfg.DatabaseURL != "" {
		var err error
		ledger, err = store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("ledger init failed")
		}
		defer ledger.Close()
		if err := ledger.Init(ctx); err != nil {
			logger.Fatal().Err(err).Msg("ledger schema failed")
		}
	}

	s3, err := storage.NewS3(
		cfg.S3Endpoint,
		cfg.S3AccessKey,
		cfg.S3SecretKey,
		cfg.S3Region,
		cfg.S3UsePathStyle,
		cfg.SourceBucket,
		cfg.PublicBucket,
		cfg.PublicBucketHost,
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("object storage init failed")
	}

	detectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	codec := encode.DetectVideoCodec(detectCtx, cfg.FFmpegPath, cfg.VideoCodec)
	cancel()
	logger.Info().Str("video_codec", codec).Msg("encoder selected")

	ffmpeg := encode.NewFFmpeg(cfg.FFmpegPath, codec, cfg.ProgressInterval, logger)
	engine := encode.NewEngine(ffmpeg, cfg.SegmentSeconds, cfg.MP4Timeout, logger)
	publisher := publish.New(s3, cfg.UploadBatchSize, cfg.UploadAttempts, logger)
	notifier := notify.New(cfg.BackendBase, cfg.EncoderSecret, cfg.NotifyTimeout, logger)

	reporter := stats.NewReporter(cfg.StatsInterval, logger)
	reporter.Start(ctx)

	pipe := pipeline.New(pipeline.Options{
		Fetcher: s3,
		Probe: func(ctx context.Context, path string) (*probe.MediaInfo, error) {
			return probe.Probe(ctx, cfg.FFprobePath, path)
		},
		Engine:         engine,
		Publisher:      publisher,
		Notifier:       notifier,
		ObjectURL:      s3.ObjectURL,
		Ledger:         ledger,
		Reporter:       reporter,
		Logger:         logger,
		SourceBucket:   cfg.SourceBucket,
		TempDir:        cfg.TempDir,
		MinSourceBytes: cfg.MinSourceBytes,
		FetchAttempts:  cfg.FetchAttempts,
	})

	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr, DB: cfg.RedisDB},
		asynq.Config{Concurrency: cfg.WorkerConcurrency},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskVideoEncode, func(ctx context.Context, t *asynq.Task) error {
		job, err := queue.Decode(t.Payload())
		if err != nil {
			// Redelivery cannot make an unparseable message parseable:
			// acknowledge and drop.
			logger.Warn().Err(err).Msg("dropping malformed job")
			return fmt.Errorf("%w: %s", asynq.SkipRetry, err)
		}
		if err := pipe.Process(ctx, job); err != nil {
			var malformed *queue.MalformedJobError
			if errors.As(err, &malformed) {
				logger.Warn().Err(err).Str("video_id", job.VideoID).Msg("dropping malformed job")
			} else {
				logger.Error().Err(err).Str("video_id", job.VideoID).Msg("job failed")
			}
			// No automatic re-queue: recovery is an operator republish.
			return fmt.Errorf("%w: %s", asynq.SkipRetry, err)
		}
		return nil
	})

	logger.Info().
		Int("concurrency", cfg.WorkerConcurrency).
		Str("source_bucket", cfg.SourceBucket).
		Str("public_bucket", cfg.PublicBucket).
		Msg("worker started")
	if err := srv.Run(mux); err != nil {
		logger.Fatal().Err(err).Msg("worker stopped")
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "local" {
		return log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
