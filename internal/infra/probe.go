package infra

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mgrindstad/replayd/internal/domain"
)

// h264EncoderPreference orders candidate H.264 encoders hardware-first;
// libx264 is the software fallback.
var h264EncoderPreference = []string{
	"h264_nvenc",
	"h264_qsv",
	"h264_amf",
	"h264_videotoolbox",
	"libx264",
}

const probeTimeout = 5 * time.Second

// ProbeH264Encoder asks ffmpeg which encoders it carries and picks the most
// preferred H.264 encoder available. No usable ffmpeg or no usable encoder
// is startup-fatal for the daemon: it could never record anything.
func ProbeH264Encoder(ctx context.Context, logger *zap.Logger) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "ffmpeg", "-hide_banner", "-encoders").Output()
	if err != nil {
		return "", domain.NewEncodeError("probe encoders", fmt.Errorf("run ffmpeg: %w", err))
	}

	name, ok := selectH264Encoder(string(out))
	if !ok {
		return "", domain.NewEncodeError("probe encoders",
			fmt.Errorf("no H.264 encoder available (tried %s)", strings.Join(h264EncoderPreference, ", ")))
	}
	logger.Info("selected H.264 encoder", zap.String("encoder", name))
	return name, nil
}

// selectH264Encoder scans `ffmpeg -encoders` output for the most preferred
// encoder present. Lines look like:
//
//	V....D h264_nvenc           NVIDIA NVENC H.264 encoder (codec h264)
func selectH264Encoder(output string) (string, bool) {
	available := make(map[string]bool)
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && strings.HasPrefix(fields[0], "V") {
			available[fields[1]] = true
		}
	}
	for _, name := range h264EncoderPreference {
		if available[name] {
			return name, true
		}
	}
	return "", false
}
