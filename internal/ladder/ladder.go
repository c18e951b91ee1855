package ladder

import (
	"vodencoder/internal/probe"
)

// Rendition is one rung of the static resolution ladder. Bitrate values
// are ffmpeg-style strings ("2800k") because they pass straight into the
// encoder arguments.
type Rendition struct {
	Name       string
	Width      int
	Height     int
	Bitrate    string
	MaxBitrate string
	BufSize    string
}

// BandwidthBps approximates the peak playback bandwidth for the master
// manifest: video target bitrate plus a stereo AAC audio allowance.
func (r Rendition) BandwidthBps() int {
	return (parseKbps(r.Bitrate) + 128) * 1000
}

// Default is the full ladder attempted for every job, top rung first.
var Default = []Rendition{
	{Name: "1080", Width: 1920, Height: 1080, Bitrate: "5000k", MaxBitrate: "7500k", BufSize: "10000k"},
	{Name: "720", Width: 1280, Height: 720, Bitrate: "2800k", MaxBitrate: "4200k", BufSize: "5600k"},
	{Name: "480", Width: 854, Height: 480, Bitrate: "1400k", MaxBitrate: "2100k", BufSize: "2800k"},
	{Name: "360", Width: 640, Height: 360, Bitrate: "800k", MaxBitrate: "1200k", BufSize: "1600k"},
	{Name: "240", Width: 426, Height: 240, Bitrate: "400k", MaxBitrate: "600k", BufSize: "800k"},
	{Name: "144", Width: 256, Height: 144, Bitrate: "200k", MaxBitrate: "300k", BufSize: "400k"},
}

// Tier is the encoder speed/quality preset chosen per job.
type Tier struct {
	Name    string
	Preset  string
	CRF     int
	Profile string
}

var (
	// TierUltraFast trades quality for speed on long sources.
	TierUltraFast = Tier{Name: "ultrafast", Preset: "ultrafast", CRF: 28, Profile: "baseline"}
	// TierSuperFast is the default.
	TierSuperFast = Tier{Name: "superfast", Preset: "superfast", CRF: 25, Profile: "main"}
	// TierVeryFast spends more effort on low-bitrate sources.
	TierVeryFast = Tier{Name: "veryfast", Preset: "veryfast", CRF: 23, Profile: "high"}
)

// Plan filters the ladder for one source. Exactly the rung matching the
// probed resolution is dropped; rungs larger than the source are still
// attempted. With no usable metadata the full ladder is returned.
type Plan struct {
	Renditions []Rendition
	Skipped    []Rendition
	Tier       Tier
}

func Build(info *probe.MediaInfo) Plan {
	p := Plan{Tier: SelectTier(info)}
	source := info.Resolution()
	for _, r := range Default {
		if source != "" && r.Width == info.Width && r.Height == info.Height {
			p.Skipped = append(p.Skipped, r)
			continue
		}
		p.Renditions = append(p.Renditions, r)
	}
	return p
}

// SelectTier picks the encoder tier from source duration and bitrate.
// Deterministic for identical probe output; falls back to the default
// tier when metadata is absent.
func SelectTier(info *probe.MediaInfo) Tier {
	if info == nil {
		return TierSuperFast
	}
	if info.DurationSeconds > 300 {
		return TierUltraFast
	}
	if info.BitRateBps > 0 && info.BitRateBps < 2000*1000 {
		return TierVeryFast
	}
	return TierSuperFast
}

func parseKbps(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int(c-'0')
	}
	return n
}
