package media

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderArgsClipDuration(t *testing.T) {
	args := renderArgs("scene.png", "scene.mp3", 4.5, "scene.mp4")

	// Output duration is spoken narration plus the one second tail.
	idx := indexOfFlag(args, "-t", 1)
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, "5.500", args[idx+1])

	// The lavfi silence input is exactly the tail length.
	idx = indexOfFlag(args, "-t", 0)
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, "1.000", args[idx+1])
}

func TestRenderArgsFilterGraph(t *testing.T) {
	args := renderArgs("in.png", "in.mp3", 3.0, "out.mp4")

	idx := indexOfFlag(args, "-filter_complex", 0)
	require.GreaterOrEqual(t, idx, 0)
	filter := args[idx+1]

	// Scale to cover and crop, never letterbox.
	assert.Contains(t, filter, "scale=3840:2160:force_original_aspect_ratio=increase")
	assert.Contains(t, filter, "crop=3840:2160")

	// Zoom caps at 1.2 and the window is centered.
	assert.Contains(t, filter, ",1.200)")
	assert.Contains(t, filter, "x='iw/2-(iw/zoom/2)'")
	assert.Contains(t, filter, "y='ih/2-(ih/zoom/2)'")

	// 4 seconds total at 25fps.
	assert.Contains(t, filter, "d=100")
	assert.Contains(t, filter, "fps=25")
	assert.Contains(t, filter, "s=1920x1080")

	// Narration and silence are concatenated, not mixed.
	assert.Contains(t, filter, "[1:a][2:a]concat=n=2:v=0:a=1[a]")
}

func TestRenderArgsEncoderSettings(t *testing.T) {
	args := renderArgs("in.png", "in.mp3", 2.0, "out.mp4")
	joined := strings.Join(args, " ")

	assert.Contains(t, joined, "-c:v libx264")
	assert.Contains(t, joined, "-pix_fmt yuv420p")
	assert.Contains(t, joined, "-c:a aac")
	assert.Contains(t, joined, "-ar 44100")
	assert.Contains(t, joined, "-r 25")
	assert.Contains(t, joined, "anullsrc=r=44100:cl=stereo")
	assert.Equal(t, "out.mp4", args[len(args)-1])
}

func TestRenderRejectsNonPositiveDuration(t *testing.T) {
	r := NewFFmpegRenderer("")
	err := r.Render(context.Background(), "in.png", "in.mp3", 0, "out.mp4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid spoken duration")
}

func TestTail(t *testing.T) {
	assert.Equal(t, "short", tail("short", 100))
	long := strings.Repeat("a", 50) + "END"
	got := tail(long, 10)
	assert.True(t, strings.HasPrefix(got, "..."))
	assert.True(t, strings.HasSuffix(got, "END"))
}

// indexOfFlag returns the position of the nth occurrence of flag in args.
func indexOfFlag(args []string, flag string, nth int) int {
	seen := 0
	for i, a := range args {
		if a == flag {
			if seen == nth {
				return i
			}
			seen++
		}
	}
	return -1
}
