package ffmpeg

import (
	"regexp"
	"strconv"
	"time"
)

// Progress is the encoder status FFmpeg prints periodically on stderr.
type Progress struct {
	Frame      int64         `json:"frame"`
	FPS        float64       `json:"fps"`
	Bitrate    string        `json:"bitrate,omitempty"`
	TotalSize  int64         `json:"total_size"`
	Time       time.Duration `json:"time"`
	Speed      float64       `json:"speed"`
	DupFrames  int64         `json:"dup_frames"`
	DropFrames int64         `json:"drop_frames"`
	UpdatedAt  time.Time     `json:"updated_at,omitzero"`
}

var (
	frameRe   = regexp.MustCompile(`frame=\s*(\d+)`)
	fpsRe     = regexp.MustCompile(`fps=\s*([\d.]+)`)
	bitrateRe = regexp.MustCompile(`bitrate=\s*([\d.]+\s*\w+/s)`)
	sizeRe    = regexp.MustCompile(`size=\s*(\d+)`)
	timeRe    = regexp.MustCompile(`time=(\d+):(\d+):(\d+)\.(\d+)`)
	speedRe   = regexp.MustCompile(`speed=\s*([\d.]+)x`)
	dupRe     = regexp.MustCompile(`dup=\s*(\d+)`)
	dropRe    = regexp.MustCompile(`drop=\s*(\d+)`)
)

// ParseProgressLine updates p from a stderr line. It reports whether the
// line was a progress line.
func ParseProgressLine(line string, p *Progress) bool {
	m := timeRe.FindStringSubmatch(line)
	if m == nil {
		return false
	}

	hours, _ := strconv.Atoi(m[1])
	mins, _ := strconv.Atoi(m[2])
	secs, _ := strconv.Atoi(m[3])
	centis, _ := strconv.Atoi(m[4])
	p.Time = time.Duration(hours)*time.Hour +
		time.Duration(mins)*time.Minute +
		time.Duration(secs)*time.Second +
		time.Duration(centis)*10*time.Millisecond

	if m := frameRe.FindStringSubmatch(line); m != nil {
		p.Frame, _ = strconv.ParseInt(m[1], 10, 64)
	}
	if m := fpsRe.FindStringSubmatch(line); m != nil {
		p.FPS, _ = strconv.ParseFloat(m[1], 64)
	}
	if m := bitrateRe.FindStringSubmatch(line); m != nil {
		p.Bitrate = m[1]
	}
	if m := sizeRe.FindStringSubmatch(line); m != nil {
		p.TotalSize, _ = strconv.ParseInt(m[1], 10, 64)
	}
	if m := speedRe.FindStringSubmatch(line); m != nil {
		p.Speed, _ = strconv.ParseFloat(m[1], 64)
	}
	if m := dupRe.FindStringSubmatch(line); m != nil {
		p.DupFrames, _ = strconv.ParseInt(m[1], 10, 64)
	}
	if m := dropRe.FindStringSubmatch(line); m != nil {
		p.DropFrames, _ = strconv.ParseInt(m[1], 10, 64)
	}
	p.UpdatedAt = time.Now()
	return true
}
