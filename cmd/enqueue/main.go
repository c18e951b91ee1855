// Command enqueue publishes a job descriptor onto the encode queue. It is
// the operator path for submitting or replaying a job when a worker died
// mid-processing or a callback was lost.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"vodencoder/internal/config"
	"vodencoder/internal/queue"
	"vodencoder/internal/store"
)

func main() {
	var (
		videoID  = flag.String("video", "", "video id (required)")
		courseID = flag.String("course", "", "course id")
		adminID  = flag.String("admin", "", "owning admin id")
		uri      = flag.String("uri", "", "source object uri, gs://bucket/key or bare key (required)")
		force    = flag.Bool("force", false, "enqueue even if the last recorded run completed")
	)
	flag.Parse()

	if *videoID == "" || *uri == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Load()

	if cfg.DatabaseURL != "" {
		if err := checkPriorRuns(cfg.DatabaseURL, *videoID, *force); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
	}
	client := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	defer client.Close()

	task, err := queue.NewEncodeTask(queue.EncodePayload{
		VideoID:   *videoID,
		CourseID:  *courseID,
		AdminID:   *adminID,
		GCSURI:    *uri,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "build task: %v\n", err)
		os.Exit(1)
	}

	info, err := client.Enqueue(task)
	if err != nil {
		fmt.Fprintf(os.Stderr, "enqueue: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("enqueued %s id=%s queue=%s\n", queue.TaskVideoEncode, info.ID, info.Queue)
}

// checkPriorRuns consults the run ledger so an operator does not re-encode
// a video whose last run already completed.
func checkPriorRuns(dsn, videoID string, force bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ledger, err := store.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	defer ledger.Close()

	runs, err := ledger.RunsForVideo(ctx, videoID, 5)
	if err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	for _, r := range runs {
		fmt.Printf("run %s status=%s at=%s\n", r.RunID, r.Status, r.UpdatedAt.Format(time.RFC3339))
	}
	if len(runs) > 0 && runs[0].Status == store.StatusCompleted && !force {
		return fmt.Errorf("last run for %s completed; pass -force to re-encode", videoID)
	}
	return nil
}
