package encode

import (
	"regexp"
	"strconv"
)

// ffmpeg reports progress as key=value lines on the -progress pipe and as
// combined "frame= 123 fps= 24 ..." status lines. The same expressions
// match both shapes. Parsing is best-effort telemetry: a line that matches
// nothing is skipped, never an error.
var (
	reFrame   = regexp.MustCompile(`frame=\s*(\d+)`)
	reFPS     = regexp.MustCompile(`fps=\s*([\d.]+)`)
	reSpeed   = regexp.MustCompile(`speed=\s*([\d.]+)x`)
	reBitrate = regexp.MustCompile(`bitrate=\s*([\d.]+)kbits/s`)
	reDrop    = regexp.MustCompile(`drop=\s*(\d+)`)
	reOutTime = regexp.MustCompile(`time=(\d{2}):(\d{2}):(\d{2})\.(\d{2})`)
)

// progressState accumulates the latest values seen on the encoder's
// diagnostic stream.
type progressState struct {
	frames        int64
	fps           float64
	speed         float64
	bitrateKbps   float64
	droppedFrames int64
	outSeconds    float64
}

// observe folds one diagnostic line into the state and reports whether the
// line carried any progress information at all.
func (p *progressState) observe(line string) bool {
	matched := false
	if m := reFrame.FindStringSubmatch(line); m != nil {
		if n, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			p.frames = n
			matched = true
		}
	}
	if m := reFPS.FindStringSubmatch(line); m != nil {
		if f, err := strconv.ParseFloat(m[1], 64); err == nil {
			p.fps = f
			matched = true
		}
	}
	if m := reSpeed.FindStringSubmatch(line); m != nil {
		if f, err := strconv.ParseFloat(m[1], 64); err == nil {
			p.speed = f
			matched = true
		}
	}
	if m := reBitrate.FindStringSubmatch(line); m != nil {
		if f, err := strconv.ParseFloat(m[1], 64); err == nil {
			p.bitrateKbps = f
			matched = true
		}
	}
	if m := reDrop.FindStringSubmatch(line); m != nil {
		if n, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			p.droppedFrames = n
			matched = true
		}
	}
	if m := reOutTime.FindStringSubmatch(line); m != nil {
		h, _ := strconv.Atoi(m[1])
		min, _ := strconv.Atoi(m[2])
		s, _ := strconv.Atoi(m[3])
		cs, _ := strconv.Atoi(m[4])
		p.outSeconds = float64(h*3600+min*60+s) + float64(cs)/100
		matched = true
	}
	return matched
}

// tailBuffer keeps the last max bytes written to it, for bounded
// diagnostics when the encoder exits non-zero.
type tailBuffer struct {
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return string(t.buf)
}
