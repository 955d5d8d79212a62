// Package media wraps the ffmpeg/ffprobe tooling behind capability
// interfaces so the encoder can be swapped or faked in tests.
package media

import "context"

// Encoding constants shared by every rendered segment. Concatenation is a
// stream copy, so every clip must be produced with identical parameters.
const (
	FrameRate   = 25
	FrameWidth  = 1920
	FrameHeight = 1080

	// The still is upscaled before zoompan samples it; zooming on the
	// output resolution directly produces visible jitter.
	ZoomSourceWidth  = 3840
	ZoomSourceHeight = 2160

	ZoomStart = 1.0
	ZoomEnd   = 1.2

	// Trailing silence appended after the narration so scenes do not cut
	// abruptly into each other.
	TrailingSilenceSec = 1.0

	AudioSampleRate = 44100
)

// Prober measures the exact play length of an audio or video asset.
type Prober interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// SegmentRenderer produces a single scene clip from one image, one narration
// audio file and the measured spoken duration.
type SegmentRenderer interface {
	Render(ctx context.Context, imagePath, audioPath string, spokenDuration float64, outPath string) error
}

// Concatenator joins uniformly encoded clips into one output without
// re-encoding, preserving order exactly.
type Concatenator interface {
	Concat(ctx context.Context, clipPaths []string, outPath string) error
}
