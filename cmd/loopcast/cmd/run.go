package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jmylchreest/loopcast/internal/events"
	"github.com/jmylchreest/loopcast/internal/models"
	"github.com/jmylchreest/loopcast/internal/streaming"
	"github.com/jmylchreest/loopcast/internal/transcoder"
	"github.com/jmylchreest/loopcast/pkg/duration"
)

// streamKeyEnv supplies the stream key when --key is not given, keeping it
// out of the process list.
const streamKeyEnv = "LOOPCAST_STREAM_KEY"

var runCmd = &cobra.Command{
	Use:   "run <video-file>",
	Short: "Stream one video in the foreground",
	Long: `Loop one video file to the configured RTMP endpoint without the server.

Notifications are printed to stdout as JSON lines. The command returns when
the session stops, fails, or on Ctrl-C.

Examples:
  # Start now, stop after 90 minutes
  LOOPCAST_STREAM_KEY=xxxx-xxxx loopcast run loop.mp4 --duration 90m

  # Start at 20:00 local time, stop at 22:30
  loopcast run loop.mp4 --key xxxx-xxxx --start "2025-06-01 20:00" --end "2025-06-01 22:30"`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("id", "", "session id (default: generated)")
	runCmd.Flags().String("key", "", "stream key (default $"+streamKeyEnv+")")
	runCmd.Flags().String("start", "now", `start time: "now", "+10m", "in 2 hours" or "2006-01-02 15:04"`)
	runCmd.Flags().String("duration", "", `stop this long after starting, e.g. "90m" or "1h30m"`)
	runCmd.Flags().String("end", "", "stop at this time (same forms as --start)")
}

// runOptions are the raw run flags.
type runOptions struct {
	ID       string
	Source   string
	Key      string
	Start    string
	Duration string
	End      string
}

// request turns the flags into a session request relative to now.
func (o runOptions) request(now time.Time) (streaming.Request, error) {
	req := streaming.Request{
		SessionID:  o.ID,
		SourcePath: o.Source,
		StreamKey:  models.StreamKey(o.Key),
	}
	if req.SessionID == "" {
		req.SessionID = ulid.Make().String()
	}

	start, err := duration.ParseTime(o.Start, now)
	if err != nil {
		return req, fmt.Errorf("--start: %w", err)
	}
	req.StartTime = start

	switch {
	case o.Duration != "" && o.End != "":
		return req, errors.New("--duration and --end are mutually exclusive")
	case o.Duration != "":
		d, err := duration.Parse(o.Duration)
		if err != nil {
			return req, fmt.Errorf("--duration: %w", err)
		}
		req.Stop = streaming.StopAfter(d)
	case o.End != "":
		end, err := duration.ParseTime(o.End, now)
		if err != nil {
			return req, fmt.Errorf("--end: %w", err)
		}
		req.Stop = streaming.StopAt(end)
	}
	return req, req.Validate(now)
}

func runRun(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	opts := runOptions{Source: args[0]}
	opts.ID, _ = flags.GetString("id")
	opts.Key, _ = flags.GetString("key")
	opts.Start, _ = flags.GetString("start")
	opts.Duration, _ = flags.GetString("duration")
	opts.End, _ = flags.GetString("end")
	if opts.Key == "" {
		opts.Key = os.Getenv(streamKeyEnv)
	}

	printer := newEventPrinter(cmd.OutOrStdout())
	req, err := opts.request(time.Now())
	if err != nil {
		printer.Notify(rejection(req.SessionID, err, time.Now()))
		return err
	}

	logger := slog.Default()
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, finish := context.WithCancelCause(ctx)
	defer finish(nil)

	sink := events.SinkFunc(func(e events.Event) {
		printer.Notify(e)
		if e.SessionID != req.SessionID {
			return
		}
		switch e.Type {
		case events.TypeStopped:
			finish(nil)
		case events.TypeError, events.TypeSchedulingError:
			finish(errors.New(e.Message))
		}
	})

	manager := streaming.NewManager(
		transcoder.NewFFmpegSpawner(cfg.FFmpeg, cfg.Streaming.EndpointTemplate, logger),
		sink,
		streaming.WithLogger(logger),
		streaming.WithConfig(streaming.ConfigFrom(cfg.Streaming)),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return manager.Run(gctx) })
	if err := manager.ScheduleSession(ctx, req); err != nil {
		finish(nil)
		_ = g.Wait()
		return err
	}

	<-ctx.Done()
	if err := g.Wait(); err != nil {
		return err
	}
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return fmt.Errorf("session %s: %w", req.SessionID, cause)
	}
	return nil
}

// rejection is the scheduling-error printed for flags that never become a
// valid request.
func rejection(sessionID string, err error, at time.Time) events.Event {
	return events.Event{
		Type:      events.TypeSchedulingError,
		SessionID: sessionID,
		Message:   err.Error(),
		Timestamp: at,
	}
}

// eventPrinter writes notifications as JSON lines.
type eventPrinter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func newEventPrinter(w io.Writer) *eventPrinter {
	return &eventPrinter{enc: json.NewEncoder(w)}
}

func (p *eventPrinter) Notify(e events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.enc.Encode(e)
}
