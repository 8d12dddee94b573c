// Package ffmpeg builds, launches and observes FFmpeg processes.
package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// maxStderrLines is how many recent stderr lines a Command keeps in memory.
const maxStderrLines = 100

// ErrNotStarted is returned when a Command is waited on before Start.
var ErrNotStarted = errors.New("ffmpeg: command not started")

// CommandBuilder builds FFmpeg commands with a fluent API.
type CommandBuilder struct {
	binary        string
	globalArgs    []string
	inputArgs     []string
	input         string
	outputArgs    []string
	output        string
	logLevel      string
	stderrLogPath string
	redact        []string
}

// NewCommandBuilder creates a new FFmpeg command builder.
func NewCommandBuilder(ffmpegPath string) *CommandBuilder {
	return &CommandBuilder{
		binary:   ffmpegPath,
		logLevel: "info",
	}
}

// LogLevel sets the FFmpeg log level. "info" or more verbose is needed for
// progress lines to appear on stderr.
func (b *CommandBuilder) LogLevel(level string) *CommandBuilder {
	if level != "" {
		b.logLevel = level
	}
	return b
}

// HideBanner hides the FFmpeg banner.
func (b *CommandBuilder) HideBanner() *CommandBuilder {
	b.globalArgs = append(b.globalArgs, "-hide_banner")
	return b
}

// NoStdin stops FFmpeg from reading the terminal.
func (b *CommandBuilder) NoStdin() *CommandBuilder {
	b.globalArgs = append(b.globalArgs, "-nostdin")
	return b
}

// StreamLoop repeats the input n times; -1 loops forever.
func (b *CommandBuilder) StreamLoop(n int) *CommandBuilder {
	b.inputArgs = append(b.inputArgs, "-stream_loop", fmt.Sprint(n))
	return b
}

// NativeRate reads the input at its native frame rate (-re), as a live
// source would deliver it.
func (b *CommandBuilder) NativeRate() *CommandBuilder {
	b.inputArgs = append(b.inputArgs, "-re")
	return b
}

// Input sets the input source.
func (b *CommandBuilder) Input(input string) *CommandBuilder {
	b.input = input
	return b
}

// InputArgs appends raw arguments placed before -i.
func (b *CommandBuilder) InputArgs(args ...string) *CommandBuilder {
	b.inputArgs = append(b.inputArgs, args...)
	return b
}

// VideoBitrate sets the video bitrate.
func (b *CommandBuilder) VideoBitrate(bitrate string) *CommandBuilder {
	if bitrate != "" {
		b.outputArgs = append(b.outputArgs, "-b:v", bitrate)
	}
	return b
}

// VideoPreset sets the encoder preset.
func (b *CommandBuilder) VideoPreset(preset string) *CommandBuilder {
	if preset != "" {
		b.outputArgs = append(b.outputArgs, "-preset", preset)
	}
	return b
}

// Codec sets the codec for all streams; "copy" remuxes without re-encoding.
func (b *CommandBuilder) Codec(codec string) *CommandBuilder {
	if codec != "" {
		b.outputArgs = append(b.outputArgs, "-codec", codec)
	}
	return b
}

// Format sets the output container format.
func (b *CommandBuilder) Format(format string) *CommandBuilder {
	if format != "" {
		b.outputArgs = append(b.outputArgs, "-f", format)
	}
	return b
}

// OutputArgs appends raw arguments placed before the output.
func (b *CommandBuilder) OutputArgs(args ...string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, args...)
	return b
}

// StderrLogPath mirrors stderr into the given file.
func (b *CommandBuilder) StderrLogPath(path string) *CommandBuilder {
	b.stderrLogPath = path
	return b
}

// Redact hides secret from String output and from every captured stderr
// line.
func (b *CommandBuilder) Redact(secret string) *CommandBuilder {
	if secret != "" {
		b.redact = append(b.redact, secret)
	}
	return b
}

// Output sets the output destination.
func (b *CommandBuilder) Output(output string) *CommandBuilder {
	b.output = output
	return b
}

// Build builds the command.
func (b *CommandBuilder) Build() *Command {
	args := []string{"-loglevel", b.logLevel}
	args = append(args, b.globalArgs...)
	args = append(args, b.inputArgs...)
	args = append(args, "-i", b.input)
	args = append(args, b.outputArgs...)
	args = append(args, b.output)

	return &Command{
		Binary:        b.binary,
		Args:          args,
		Input:         b.input,
		Output:        b.output,
		stderrLogPath: b.stderrLogPath,
		redact:        append([]string(nil), b.redact...),
		done:          make(chan struct{}),
		stderrLines:   make([]string, 0, maxStderrLines),
	}
}

// Command is a single FFmpeg invocation.
type Command struct {
	Binary string
	Args   []string
	Input  string
	Output string

	mu      sync.RWMutex
	cmd     *exec.Cmd
	waitErr error
	done    chan struct{}

	stderrLogPath string
	redact        []string

	stderrMu    sync.RWMutex
	stderrLines []string
	progress    Progress
}

// String returns the command line with redacted secrets masked.
func (c *Command) String() string {
	return c.Scrub(c.Binary + " " + strings.Join(c.Args, " "))
}

// Scrub masks every redacted secret in s. FFmpeg echoes its output URL on
// stderr, so every captured line passes through here.
func (c *Command) Scrub(s string) string {
	for _, secret := range c.redact {
		s = strings.ReplaceAll(s, secret, "[FILTERED]")
	}
	return s
}

// Start launches the process in its own process group. Every stderr line is
// passed to onLine (which may be nil) from a reader goroutine. The process is
// reaped in the background; use Done and Err to observe the exit.
func (c *Command) Start(ctx context.Context, onLine func(string)) error {
	c.mu.Lock()
	if c.cmd != nil {
		c.mu.Unlock()
		return fmt.Errorf("ffmpeg: command already started")
	}

	cmd := exec.CommandContext(ctx, c.Binary, c.Args...)
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return killGroup(cmd) }

	stderr, err := cmd.StderrPipe()
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("getting stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("starting ffmpeg: %w", err)
	}
	c.cmd = cmd
	c.mu.Unlock()

	captured := make(chan struct{})
	go c.captureStderr(stderr, onLine, captured)

	go func() {
		// Wait closes the pipe, so drain stderr first.
		<-captured
		err := cmd.Wait()
		c.mu.Lock()
		c.waitErr = err
		c.mu.Unlock()
		close(c.done)
	}()

	return nil
}

// Done is closed once the process has exited and stderr is drained.
func (c *Command) Done() <-chan struct{} {
	return c.done
}

// Err returns the exit error after Done is closed.
func (c *Command) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.waitErr
}

// Wait blocks until the process exits and returns its exit error.
func (c *Command) Wait() error {
	c.mu.RLock()
	started := c.cmd != nil
	c.mu.RUnlock()
	if !started {
		return ErrNotStarted
	}
	<-c.done
	return c.Err()
}

// Kill terminates the process group. SIGTERM is sent first; if the process
// is still running after grace, SIGKILL follows. Kill does not block.
func (c *Command) Kill(grace time.Duration) error {
	c.mu.RLock()
	cmd := c.cmd
	c.mu.RUnlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}

	if grace <= 0 {
		return killGroup(cmd)
	}

	if err := terminateGroup(cmd); err != nil {
		return killGroup(cmd)
	}
	go func() {
		select {
		case <-c.done:
		case <-time.After(grace):
			_ = killGroup(cmd)
		}
	}()
	return nil
}

// PID returns the process id, or 0 before Start.
func (c *Command) PID() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cmd == nil || c.cmd.Process == nil {
		return 0
	}
	return c.cmd.Process.Pid
}

// IsRunning returns true if the process has started and not exited.
func (c *Command) IsRunning() bool {
	c.mu.RLock()
	started := c.cmd != nil
	c.mu.RUnlock()
	if !started {
		return false
	}
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// StderrLines returns a copy of the most recent stderr lines.
func (c *Command) StderrLines() []string {
	c.stderrMu.RLock()
	defer c.stderrMu.RUnlock()
	lines := make([]string, len(c.stderrLines))
	copy(lines, c.stderrLines)
	return lines
}

// Progress returns the latest encoder progress parsed from stderr.
func (c *Command) Progress() Progress {
	c.stderrMu.RLock()
	defer c.stderrMu.RUnlock()
	return c.progress
}

func (c *Command) captureStderr(stderr io.Reader, onLine func(string), done chan struct{}) {
	defer close(done)

	var logFile *os.File
	if c.stderrLogPath != "" {
		f, err := os.OpenFile(c.stderrLogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err == nil {
			logFile = f
			defer logFile.Close()
			fmt.Fprintf(logFile, "\n=== ffmpeg started at %s ===\n%s\n\n", time.Now().Format(time.RFC3339), c.String())
		}
	}

	scanner := bufio.NewScanner(stderr)
	scanner.Split(scanLines)
	for scanner.Scan() {
		line := c.Scrub(strings.TrimSpace(scanner.Text()))
		if line == "" {
			continue
		}

		c.stderrMu.Lock()
		if len(c.stderrLines) >= maxStderrLines {
			c.stderrLines = c.stderrLines[1:]
		}
		c.stderrLines = append(c.stderrLines, line)
		ParseProgressLine(line, &c.progress)
		c.stderrMu.Unlock()

		if logFile != nil {
			fmt.Fprintln(logFile, line)
		}
		if onLine != nil {
			onLine(line)
		}
	}

	if logFile != nil {
		fmt.Fprintf(logFile, "\n=== ffmpeg ended at %s ===\n", time.Now().Format(time.RFC3339))
	}
}

// scanLines splits on \n or \r; FFmpeg rewrites its progress line with \r.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	for i, b := range data {
		if b == '\n' || b == '\r' {
			return i + 1, data[:i], nil
		}
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
