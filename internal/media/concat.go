package media

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
)

// FFmpegConcatenator implements Concatenator using the concat demuxer
type FFmpegConcatenator struct {
	bin string
}

// NewFFmpegConcatenator creates a concatenator using the given ffmpeg binary
func NewFFmpegConcatenator(bin string) *FFmpegConcatenator {
	if bin == "" {
		bin = "ffmpeg"
	}
	return &FFmpegConcatenator{bin: bin}
}

// Concat stream-copies the clips into one output in the given order. The
// intermediate manifest is removed after success; on failure no partial
// output is retained.
func (c *FFmpegConcatenator) Concat(ctx context.Context, clipPaths []string, outPath string) error {
	if len(clipPaths) == 0 {
		return fmt.Errorf("no clips to concatenate")
	}

	var missing []string
	for _, p := range clipPaths {
		if _, err := os.Stat(p); err != nil {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing clips: %s", strings.Join(missing, ", "))
	}

	manifestPath := outPath + ".concat.txt"
	if err := os.WriteFile(manifestPath, []byte(concatManifest(clipPaths)), 0644); err != nil {
		return fmt.Errorf("write concat manifest: %w", err)
	}

	log.Printf("[ffmpeg] concat %d clips -> %s", len(clipPaths), outPath)

	cmd := exec.CommandContext(ctx, c.bin,
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", manifestPath,
		"-c", "copy",
		"-movflags", "+faststart",
		outPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		os.Remove(outPath)
		os.Remove(manifestPath)
		return fmt.Errorf("ffmpeg concat: %w: %s", err, tail(stderr.String(), 2048))
	}

	if err := os.Remove(manifestPath); err != nil {
		log.Printf("[ffmpeg] Warning: failed to remove concat manifest %s: %v", manifestPath, err)
	}
	return nil
}

// concatManifest renders the demuxer file list, one `file` directive per
// clip, order preserved.
func concatManifest(clipPaths []string) string {
	var b strings.Builder
	for _, p := range clipPaths {
		// Single quotes in paths must be escaped for the concat demuxer
		escaped := strings.ReplaceAll(p, "'", `'\''`)
		fmt.Fprintf(&b, "file '%s'\n", escaped)
	}
	return b.String()
}
