// Package publish uploads a finished output tree to object storage.
// Playback-critical files (manifests, segments) land first and are the
// only ones whose loss fails the job.
package publish

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const cacheControl = "public, max-age=31536000"

// Uploader is the slice of object storage the publisher needs.
type Uploader interface {
	Upload(ctx context.Context, localPath, objectKey, contentType, cacheControl string) error
}

// PublishError reports that one or more playback-critical files never
// reached the destination. Auxiliary failures never produce it.
type PublishError struct {
	Failed []string
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish: %d critical files failed: %s", len(e.Failed), strings.Join(e.Failed, ", "))
}

type Publisher struct {
	up        Uploader
	batchSize int
	attempts  int
	backoff   time.Duration
	logger    zerolog.Logger
}

func New(up Uploader, batchSize, attempts int, logger zerolog.Logger) *Publisher {
	if batchSize < 1 {
		batchSize = 1
	}
	if attempts < 1 {
		attempts = 1
	}
	return &Publisher{
		up:        up,
		batchSize: batchSize,
		attempts:  attempts,
		backoff:   time.Second,
		logger:    logger.With().Str("component", "publisher").Logger(),
	}
}

type fileEntry struct {
	localPath string
	objectKey string
	size      int64
	priority  int
}

// Report summarises one publish run.
type Report struct {
	Uploaded      int
	Failed        int
	UploadedBytes int64
}

// Upload walks localDir and uploads every file under remotePrefix in
// priority order (manifests, then segments, then the download rendition
// and thumbnails), batching uploads and retrying each file up to the
// configured bound. The batch continues past individual failures; only a
// lost manifest or segment makes the whole call fail.
func (p *Publisher) Upload(ctx context.Context, localDir, remotePrefix string) (Report, error) {
	entries, err := enumerate(localDir, remotePrefix)
	if err != nil {
		return Report{}, err
	}

	var (
		report Report
		mu     sync.Mutex
		fatal  []string
	)
	var totalBytes int64
	for _, e := range entries {
		totalBytes += e.size
	}
	p.logger.Info().
		Int("files", len(entries)).
		Int64("total_bytes", totalBytes).
		Int("batch_size", p.batchSize).
		Msg("starting upload")

	for start := 0; start < len(entries); start += p.batchSize {
		end := start + p.batchSize
		if end > len(entries) {
			end = len(entries)
		}
		batch := entries[start:end]

		var wg sync.WaitGroup
		for _, e := range batch {
			wg.Add(1)
			go func(e fileEntry) {
				defer wg.Done()
				err := p.uploadOne(ctx, e)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					report.Failed++
					if e.priority <= priSegment {
						fatal = append(fatal, e.objectKey)
					}
					p.logger.Error().Err(err).Str("object", e.objectKey).Int("priority", e.priority).Msg("upload failed")
					return
				}
				report.Uploaded++
				report.UploadedBytes += e.size
			}(e)
		}
		wg.Wait()
	}

	if len(fatal) > 0 {
		sort.Strings(fatal)
		return report, &PublishError{Failed: fatal}
	}
	return report, nil
}

func (p *Publisher) uploadOne(ctx context.Context, e fileEntry) error {
	ct := ContentType(e.localPath)
	var lastErr error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		lastErr = p.up.Upload(ctx, e.localPath, e.objectKey, ct, cacheControl)
		if lastErr == nil {
			if attempt > 1 {
				p.logger.Info().Str("object", e.objectKey).Int("attempt", attempt).Msg("upload succeeded on retry")
			}
			return nil
		}
		if attempt == p.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * p.backoff):
		}
	}
	return lastErr
}

// Priorities: lower uploads first. Manifests and segments are the
// playback-critical core.
const (
	priManifest = 1
	priSegment  = 2
	priOther    = 3
	priDownload = 4
	priThumb    = 5
)

func priorityFor(path string) int {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".m3u8":
		return priManifest
	case ".ts":
		return priSegment
	case ".mp4":
		return priDownload
	case ".jpg", ".jpeg", ".png":
		return priThumb
	default:
		return priOther
	}
}

// ContentType maps output extensions to their media types so the CDN
// serves playlists and segments correctly.
func ContentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".m3u8":
		return "application/vnd.apple.mpegurl"
	case ".ts":
		return "video/mp2t"
	case ".mp4":
		return "video/mp4"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	default:
		return "application/octet-stream"
	}
}

func enumerate(localDir, remotePrefix string) ([]fileEntry, error) {
	var entries []fileEntry
	err := filepath.WalkDir(localDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(localDir, path)
		if err != nil {
			return err
		}
		entries = append(entries, fileEntry{
			localPath: path,
			objectKey: remotePrefix + "/" + filepath.ToSlash(rel),
			size:      info.Size(),
			priority:  priorityFor(path),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("enumerate %s: %w", localDir, err)
	}

	// Priority first, then larger files first within a priority band.
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].priority != entries[j].priority {
			return entries[i].priority < entries[j].priority
		}
		return entries[i].size > entries[j].size
	})
	return entries, nil
}
