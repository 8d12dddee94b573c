package transcoder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmylchreest/loopcast/internal/config"
	"github.com/jmylchreest/loopcast/internal/ffmpeg"
)

const statsInterval = 5 * time.Second

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// FFmpegSpawner runs one looping ffmpeg process per session.
type FFmpegSpawner struct {
	cfg      config.FFmpegConfig
	endpoint string
	logger   *slog.Logger

	mu     sync.Mutex
	binary string
}

// NewFFmpegSpawner creates a spawner pushing to endpointTemplate.
func NewFFmpegSpawner(cfg config.FFmpegConfig, endpointTemplate string, logger *slog.Logger) *FFmpegSpawner {
	if logger == nil {
		logger = slog.Default()
	}
	return &FFmpegSpawner{
		cfg:      cfg,
		endpoint: endpointTemplate,
		logger:   logger,
	}
}

func (s *FFmpegSpawner) resolveBinary() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.binary != "" {
		return s.binary, nil
	}
	path, err := ffmpeg.FindBinary(s.cfg.BinaryPath)
	if err != nil {
		return "", err
	}
	s.binary = path
	return path, nil
}

// Build returns the command that would stream spec.
func (s *FFmpegSpawner) Build(spec Spec) (*ffmpeg.Command, error) {
	bin, err := s.resolveBinary()
	if err != nil {
		return nil, err
	}

	b := ffmpeg.NewCommandBuilder(bin).
		LogLevel(s.cfg.LogLevel).
		HideBanner().
		NoStdin().
		StreamLoop(-1).
		NativeRate().
		Input(spec.SourcePath).
		VideoBitrate(s.cfg.VideoBitrate).
		VideoPreset(s.cfg.Preset).
		Codec(s.cfg.Codec).
		Format(s.cfg.Format).
		Redact(string(spec.StreamKey)).
		Output(DestinationURL(s.endpoint, spec.StreamKey))

	if s.cfg.StderrLogDir != "" {
		name := unsafeFileChars.ReplaceAllString(spec.SessionID, "_") + ".log"
		b.StderrLogPath(filepath.Join(s.cfg.StderrLogDir, name))
	}

	return b.Build(), nil
}

// Spawn starts ffmpeg for spec. Events are delivered from background
// goroutines; the terminal event always follows EventStarted.
func (s *FFmpegSpawner) Spawn(ctx context.Context, spec Spec, onEvent EventFunc) (Handle, error) {
	cmd, err := s.Build(spec)
	if err != nil {
		return nil, err
	}

	if s.cfg.StderrLogDir != "" {
		if err := os.MkdirAll(s.cfg.StderrLogDir, 0o750); err != nil {
			s.logger.Warn("creating ffmpeg log directory", slog.String("error", err.Error()))
		}
	}

	h := &ffmpegHandle{
		cmd:   cmd,
		grace: s.cfg.KillGrace.Duration(),
		done:  make(chan struct{}),
	}

	// Hold stderr events until Started has been delivered.
	var startedOnce sync.WaitGroup
	startedOnce.Add(1)
	onLine := func(line string) {
		startedOnce.Wait()
		onEvent(Event{Kind: EventStderr, Line: line, At: time.Now()})
	}

	if err := cmd.Start(ctx, onLine); err != nil {
		return nil, fmt.Errorf("spawning ffmpeg for session %s: %w", spec.SessionID, err)
	}

	s.logger.Debug("ffmpeg started",
		slog.String("session_id", spec.SessionID),
		slog.Int("pid", cmd.PID()),
		slog.String("command", cmd.String()),
	)

	h.monitor = ffmpeg.NewProcessMonitor(cmd.PID(), statsInterval)
	h.monitor.Start(ctx)

	go func() {
		onEvent(Event{Kind: EventStarted, At: time.Now()})
		startedOnce.Done()

		<-cmd.Done()
		h.monitor.Stop()

		ev := Event{Killed: h.killed.Load(), Tail: cmd.StderrLines(), At: time.Now()}
		if waitErr := cmd.Err(); waitErr != nil {
			ev.Kind = EventErrored
			ev.Message = cmd.Scrub(exitMessage(waitErr, ev.Tail))
		} else {
			ev.Kind = EventEnded
		}
		onEvent(ev)
		close(h.done)
	}()

	return h, nil
}

func exitMessage(err error, tail []string) string {
	if len(tail) == 0 {
		return fmt.Sprintf("ffmpeg exited: %v", err)
	}
	return fmt.Sprintf("ffmpeg exited: %v: %s", err, tail[len(tail)-1])
}

type ffmpegHandle struct {
	cmd     *ffmpeg.Command
	monitor *ffmpeg.ProcessMonitor
	grace   time.Duration
	killed  atomic.Bool
	done    chan struct{}
}

func (h *ffmpegHandle) PID() int { return h.cmd.PID() }

func (h *ffmpegHandle) Kill() error {
	h.killed.Store(true)
	return h.cmd.Kill(h.grace)
}

func (h *ffmpegHandle) Done() <-chan struct{} { return h.done }

func (h *ffmpegHandle) Progress() ffmpeg.Progress { return h.cmd.Progress() }

func (h *ffmpegHandle) Stats() *ffmpeg.ProcessStats {
	stats := h.monitor.Stats()
	return &stats
}

func (h *ffmpegHandle) StderrTail() []string { return h.cmd.StderrLines() }
