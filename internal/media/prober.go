package media

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// FFProber implements Prober by shelling out to ffprobe
type FFProber struct {
	bin string
}

// NewFFProber creates a prober using the given ffprobe binary
func NewFFProber(bin string) *FFProber {
	if bin == "" {
		bin = "ffprobe"
	}
	return &FFProber{bin: bin}
}

// Duration returns the container duration in seconds with fractional
// precision preserved.
func (p *FFProber) Duration(ctx context.Context, path string) (float64, error) {
	out, err := exec.CommandContext(ctx, p.bin,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	).Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w", path, err)
	}

	var dur float64
	if _, err := fmt.Sscanf(strings.TrimSpace(string(out)), "%f", &dur); err != nil {
		return 0, fmt.Errorf("ffprobe %s: unparseable duration %q: %w", path, strings.TrimSpace(string(out)), err)
	}
	return dur, nil
}
