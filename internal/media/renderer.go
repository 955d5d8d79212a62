package media

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"math"
	"os/exec"
)

// FFmpegRenderer implements SegmentRenderer by shelling out to ffmpeg
type FFmpegRenderer struct {
	bin string
}

// NewFFmpegRenderer creates a renderer using the given ffmpeg binary
func NewFFmpegRenderer(bin string) *FFmpegRenderer {
	if bin == "" {
		bin = "ffmpeg"
	}
	return &FFmpegRenderer{bin: bin}
}

// Render produces a clip of exactly spokenDuration+1s: the still image with a
// linear push-in from 1.0 to 1.2, narration followed by one second of
// silence. Silence is concatenated, not mixed, so audio and video tracks end
// together.
func (r *FFmpegRenderer) Render(ctx context.Context, imagePath, audioPath string, spokenDuration float64, outPath string) error {
	if spokenDuration <= 0 {
		return fmt.Errorf("invalid spoken duration %.3f", spokenDuration)
	}

	args := renderArgs(imagePath, audioPath, spokenDuration, outPath)
	log.Printf("[ffmpeg] render %s (%.3fs + %.1fs tail)", outPath, spokenDuration, TrailingSilenceSec)

	cmd := exec.CommandContext(ctx, r.bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg render %s: %w: %s", outPath, err, tail(stderr.String(), 2048))
	}
	return nil
}

// renderArgs builds the full ffmpeg argument list for one segment.
func renderArgs(imagePath, audioPath string, spokenDuration float64, outPath string) []string {
	clipDuration := spokenDuration + TrailingSilenceSec
	totalFrames := int(math.Round(clipDuration * FrameRate))
	zoomStep := (ZoomEnd - ZoomStart) / float64(totalFrames)

	// Scale to cover (never letterbox), crop to the zoom source frame, then
	// zoompan samples a continuously shrinking window down to the output size.
	filter := fmt.Sprintf(
		"[0:v]scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,"+
			"zoompan=z='min(zoom+%.6f,%.3f)':x='iw/2-(iw/zoom/2)':y='ih/2-(ih/zoom/2)':d=%d:fps=%d:s=%dx%d[v];"+
			"[1:a][2:a]concat=n=2:v=0:a=1[a]",
		ZoomSourceWidth, ZoomSourceHeight,
		ZoomSourceWidth, ZoomSourceHeight,
		zoomStep, ZoomEnd, totalFrames, FrameRate, FrameWidth, FrameHeight,
	)

	return []string{
		"-y",
		"-loop", "1",
		"-i", imagePath,
		"-i", audioPath,
		"-f", "lavfi",
		"-t", fmt.Sprintf("%.3f", TrailingSilenceSec),
		"-i", fmt.Sprintf("anullsrc=r=%d:cl=stereo", AudioSampleRate),
		"-filter_complex", filter,
		"-map", "[v]",
		"-map", "[a]",
		"-t", fmt.Sprintf("%.3f", clipDuration),
		"-r", fmt.Sprintf("%d", FrameRate),
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "23",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "192k",
		"-ar", fmt.Sprintf("%d", AudioSampleRate),
		outPath,
	}
}

// tail returns the last n bytes of s, for surfacing encoder stderr verbatim
// without flooding the job error.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
