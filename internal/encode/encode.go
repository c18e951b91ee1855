// Package encode drives the external encoder. The ffmpeg binary sits
// behind the Encoder interface so the pipeline and its tests never depend
// on a real encoder process.
package encode

import (
	"context"
	"fmt"
	"time"

	"vodencoder/internal/ladder"
)

// Kind selects the output container for one Transcode call.
type Kind int

const (
	// KindHLS produces fixed-duration segments plus a per-rendition
	// manifest under <OutDir>/<rendition name>/.
	KindHLS Kind = iota
	// KindMP4 produces the single-file broad-compatibility download.
	KindMP4
)

// Spec describes one encoder invocation.
type Spec struct {
	InputPath      string
	OutDir         string
	Rendition      ladder.Rendition
	Tier           ladder.Tier
	Kind           Kind
	SegmentSeconds int
	// SourceDuration, when known, lets progress reporting compute
	// percentages. Zero means unknown.
	SourceDuration time.Duration
}

// Result aggregates what the encoder reported while producing one output.
// All fields are best-effort telemetry parsed from the progress stream.
type Result struct {
	OutputPath    string
	Frames        int64
	DroppedFrames int64
	FPS           float64
	Speed         float64
	BitrateKbps   float64
	Elapsed       time.Duration
}

// Encoder is the capability the pipeline needs from an external encoder.
// The production implementation shells out to ffmpeg; tests substitute
// fakes.
type Encoder interface {
	Transcode(ctx context.Context, spec Spec) (Result, error)
	ExtractFrame(ctx context.Context, inputPath string, offset time.Duration, outPath string) error
}

// EncodeError reports a non-zero encoder exit for one rendition. The tail
// is bounded so a chatty encoder cannot blow up logs or the run ledger.
type EncodeError struct {
	Rendition string
	Err       error
	Tail      string
}

func (e *EncodeError) Error() string {
	if e.Tail == "" {
		return fmt.Sprintf("encode %s: %v", e.Rendition, e.Err)
	}
	return fmt.Sprintf("encode %s: %v: %s", e.Rendition, e.Err, e.Tail)
}

func (e *EncodeError) Unwrap() error { return e.Err }
