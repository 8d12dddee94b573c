package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/jmylchreest/loopcast/internal/util"
)

// BinaryEnvVar overrides the ffmpeg lookup when no path is configured.
const BinaryEnvVar = "LOOPCAST_FFMPEG_BINARY"

// BinaryInfo describes a detected FFmpeg installation.
type BinaryInfo struct {
	Path          string `json:"path"`
	Version       string `json:"version"`
	MajorVersion  int    `json:"major_version"`
	MinorVersion  int    `json:"minor_version"`
	Configuration string `json:"configuration,omitempty"`
}

var versionRe = regexp.MustCompile(`^n?(\d+)\.(\d+)`)

// FindBinary resolves the ffmpeg executable from configured, the
// LOOPCAST_FFMPEG_BINARY env var, the working directory or PATH.
func FindBinary(configured string) (string, error) {
	path, err := util.FindBinary("ffmpeg", configured, BinaryEnvVar)
	if err != nil {
		return "", fmt.Errorf("ffmpeg not found: %w", err)
	}
	return path, nil
}

// Detect locates ffmpeg and reads its version banner.
func Detect(ctx context.Context, configured string) (*BinaryInfo, error) {
	path, err := FindBinary(configured)
	if err != nil {
		return nil, err
	}

	out, err := exec.CommandContext(ctx, path, "-hide_banner", "-version").Output()
	if err != nil {
		return nil, fmt.Errorf("getting ffmpeg version: %w", err)
	}

	info, err := ParseVersion(string(out))
	if err != nil {
		return nil, err
	}
	info.Path = path
	return info, nil
}

// ParseVersion parses `ffmpeg -version` output.
func ParseVersion(output string) (*BinaryInfo, error) {
	info := &BinaryInfo{}
	for _, line := range strings.Split(output, "\n") {
		switch {
		case strings.HasPrefix(line, "ffmpeg version"):
			parts := strings.Fields(line)
			if len(parts) < 3 {
				continue
			}
			info.Version = parts[2]
			if m := versionRe.FindStringSubmatch(parts[2]); m != nil {
				info.MajorVersion, _ = strconv.Atoi(m[1])
				info.MinorVersion, _ = strconv.Atoi(m[2])
			}
		case strings.HasPrefix(line, "configuration:"):
			info.Configuration = strings.TrimSpace(strings.TrimPrefix(line, "configuration:"))
		}
	}

	if info.Version == "" {
		return nil, fmt.Errorf("failed to parse ffmpeg version")
	}
	return info, nil
}
