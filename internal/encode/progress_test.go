package encode

import (
	"bufio"
	"strings"
	"testing"
)

func TestObserveStatusLine(t *testing.T) {
	var st progressState
	line := "frame= 1234 fps= 29.9 q=28.0 size=    2048kB time=00:01:23.45 bitrate=1850.3kbits/s drop=7 speed=3.14x"
	if !st.observe(line) {
		t.Fatal("observe = false, want true for a status line")
	}
	if st.frames != 1234 {
		t.Errorf("frames = %d, want 1234", st.frames)
	}
	if st.fps != 29.9 {
		t.Errorf("fps = %v, want 29.9", st.fps)
	}
	if st.speed != 3.14 {
		t.Errorf("speed = %v, want 3.14", st.speed)
	}
	if st.bitrateKbps != 1850.3 {
		t.Errorf("bitrateKbps = %v, want 1850.3", st.bitrateKbps)
	}
	if st.droppedFrames != 7 {
		t.Errorf("droppedFrames = %d, want 7", st.droppedFrames)
	}
	if st.outSeconds != 83.45 {
		t.Errorf("outSeconds = %v, want 83.45", st.outSeconds)
	}
}

func TestObserveProgressPipeLines(t *testing.T) {
	var st progressState
	for _, line := range []string{"frame=42", "fps=24.0", "speed=1.5x"} {
		if !st.observe(line) {
			t.Errorf("observe(%q) = false, want true", line)
		}
	}
	if st.frames != 42 || st.fps != 24.0 || st.speed != 1.5 {
		t.Errorf("state = %+v", st)
	}
}

func TestObserveIgnoresNoise(t *testing.T) {
	var st progressState
	for _, line := range []string{
		"Input #0, mov,mp4,m4a,3gp,3g2,mj2, from 'input.mp4':",
		"Stream mapping:",
		"",
	} {
		if st.observe(line) {
			t.Errorf("observe(%q) = true, want false", line)
		}
	}
	if st.frames != 0 {
		t.Errorf("frames = %d, want untouched", st.frames)
	}
}

func TestObserveKeepsLatestValue(t *testing.T) {
	var st progressState
	st.observe("frame=10")
	st.observe("frame=20")
	if st.frames != 20 {
		t.Errorf("frames = %d, want 20", st.frames)
	}
}

func TestTailBufferBound(t *testing.T) {
	tb := newTailBuffer(8)
	tb.Write([]byte("0123456789abcdef"))
	if got := tb.String(); got != "89abcdef" {
		t.Errorf("String = %q, want last 8 bytes", got)
	}
	tb.Write([]byte("XY"))
	if got := tb.String(); got != "abcdefXY" {
		t.Errorf("String = %q, want %q", got, "abcdefXY")
	}
}

func TestScanLinesSplitsCarriageReturns(t *testing.T) {
	// ffmpeg rewrites its status line with bare \r separators.
	sc := bufio.NewScanner(strings.NewReader("frame=1 speed=1.0x\rframe=2 speed=1.1x\nDone"))
	sc.Split(scanLines)

	var lines []string
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	want := []string{"frame=1 speed=1.0x", "frame=2 speed=1.1x", "Done"}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines %q, want %d", len(lines), lines, len(want))
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 800); got != "short" {
		t.Errorf("truncate = %q, want unchanged", got)
	}
	if got := truncate("abcdefgh", 4); got != "abcd..." {
		t.Errorf("truncate = %q, want %q", got, "abcd...")
	}
}
