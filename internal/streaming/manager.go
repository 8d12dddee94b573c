// Package streaming supervises scheduled streaming sessions: it starts
// encoder processes at their start time, stops them by duration or end
// time, and retries abnormal exits with a bounded budget.
//
// All session state is owned by a single dispatcher goroutine (Run). API
// calls, timer callbacks and process events are posted to its mailbox and
// applied one at a time, so there is no lock around the session table.
package streaming

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/jmylchreest/loopcast/internal/config"
	"github.com/jmylchreest/loopcast/internal/events"
	"github.com/jmylchreest/loopcast/internal/observability"
	"github.com/jmylchreest/loopcast/internal/timer"
	"github.com/jmylchreest/loopcast/internal/transcoder"
)

// ErrAlreadyRunning is returned when Run is called twice.
var ErrAlreadyRunning = errors.New("stream manager already running")

// Config tunes retry and notification behaviour.
type Config struct {
	// MaxRetries is the retry budget per session. The failure after the
	// budget is spent terminates the session.
	MaxRetries int
	// RetryDelay is the fixed delay for unclassified failures.
	RetryDelay time.Duration
	// BackoffBase and BackoffMax bound the exponential delay used for
	// transient network failures.
	BackoffBase time.Duration
	BackoffMax  time.Duration
	// LogRate and LogBurst limit stream-log notifications per session.
	LogRate  rate.Limit
	LogBurst int
	// ShutdownTimeout bounds how long Run waits for killed processes
	// when its context is cancelled.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns the stock retry policy.
func DefaultConfig() Config {
	return Config{
		MaxRetries:      5,
		RetryDelay:      3 * time.Second,
		BackoffBase:     2 * time.Second,
		BackoffMax:      time.Minute,
		LogRate:         20,
		LogBurst:        50,
		ShutdownTimeout: 10 * time.Second,
	}
}

// ConfigFrom builds a Config from the application's streaming section.
func ConfigFrom(c config.StreamingConfig) Config {
	return Config{
		MaxRetries:      c.MaxRetries,
		RetryDelay:      c.RetryDelay.Duration(),
		BackoffBase:     c.BackoffBase.Duration(),
		BackoffMax:      c.BackoffMax.Duration(),
		LogRate:         rate.Limit(c.LogRate),
		LogBurst:        c.LogBurst,
		ShutdownTimeout: c.ShutdownTimeout.Duration(),
	}
}

// Backoff returns the delay before retry number attempt (1-based).
func (c Config) Backoff(class FailureClass, attempt int) time.Duration {
	if class != FailureTransient {
		return c.RetryDelay
	}
	d := c.BackoffBase
	for i := 1; i < attempt && d < c.BackoffMax; i++ {
		d *= 2
	}
	return min(d, c.BackoffMax)
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the timer service. Defaults to a real-time timer.Loop that
// Run starts and stops.
func WithClock(clock timer.Service) Option {
	return func(m *Manager) { m.clock = clock }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithConfig sets the retry policy.
func WithConfig(cfg Config) Option {
	return func(m *Manager) { m.cfg = cfg }
}

// WithMetrics sets the metrics sink. Defaults to a private registry.
func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// Manager owns every streaming session.
type Manager struct {
	cfg     Config
	clock   timer.Service
	loop    *timer.Loop // set when the manager owns its clock
	spawner transcoder.Spawner
	sink    events.Sink
	logger  *slog.Logger
	metrics *Metrics

	inbox   *mailbox
	runMu   sync.Mutex
	started bool
	stopped chan struct{}

	// Dispatcher-owned state.
	sessions map[string]*record
	limiters map[string]*rate.Limiter
	seq      uint64
	procCtx  context.Context
	closing  bool
}

// NewManager creates a manager that launches processes with spawner and
// reports to sink. Call Run to start dispatching.
func NewManager(spawner transcoder.Spawner, sink events.Sink, opts ...Option) *Manager {
	m := &Manager{
		cfg:      DefaultConfig(),
		spawner:  spawner,
		sink:     sink,
		logger:   slog.Default(),
		inbox:    newMailbox(),
		stopped:  make(chan struct{}),
		sessions: make(map[string]*record),
		limiters: make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.sink == nil {
		m.sink = events.Discard
	}
	if m.metrics == nil {
		m.metrics = NewMetrics(prometheus.NewRegistry())
	}
	m.logger = observability.WithComponent(m.logger, "stream-manager")
	if m.clock == nil {
		m.loop = timer.New().WithLogger(m.logger)
		m.clock = m.loop
	}
	return m
}

// Run dispatches work until ctx is cancelled. On cancellation every session
// is torn down and Run waits up to Config.ShutdownTimeout for processes to
// exit.
func (m *Manager) Run(ctx context.Context) error {
	m.runMu.Lock()
	if m.started {
		m.runMu.Unlock()
		return ErrAlreadyRunning
	}
	m.started = true
	m.runMu.Unlock()

	if m.loop != nil {
		if err := m.loop.Start(ctx); err != nil {
			return fmt.Errorf("starting timer loop: %w", err)
		}
		defer m.loop.Stop()
	}

	// Processes outlive ctx so teardown can kill them gracefully.
	procCtx, cancelProcs := context.WithCancel(context.Background())
	defer cancelProcs()
	m.procCtx = procCtx

	m.logger.Info("stream manager started")
	for {
		select {
		case <-ctx.Done():
			killed := m.teardownAll()
			m.inbox.close()
			close(m.stopped)
			m.logger.Info("stream manager stopping", slog.Int("processes", len(killed)))

			waitCtx, cancel := context.WithTimeout(context.Background(), m.cfg.ShutdownTimeout)
			defer cancel()
			if err := waitExited(waitCtx, killed); err != nil {
				m.logger.Warn("encoder processes did not exit in time", slog.String("error", err.Error()))
			}
			return nil
		case <-m.inbox.ready:
			for {
				fn, ok := m.inbox.next()
				if !ok {
					break
				}
				m.dispatch(fn)
				if ctx.Err() != nil {
					break
				}
			}
		}
	}
}

func (m *Manager) dispatch(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("panic in stream manager handler", slog.Any("panic", r))
		}
	}()
	fn()
}

// call runs fn on the dispatcher and waits for it. If ctx ends before the
// dispatcher reaches fn, fn is skipped and ctx.Err() is returned; once fn
// has begun, call waits for it and reports success.
func (m *Manager) call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	var claimed atomic.Bool
	if !m.inbox.post(func() {
		defer close(done)
		if claimed.CompareAndSwap(false, true) {
			fn()
		}
	}) {
		return ErrManagerClosed
	}
	select {
	case <-done:
		return nil
	case <-m.stopped:
		select {
		case <-done:
			return nil
		default:
			return ErrManagerClosed
		}
	case <-ctx.Done():
		if claimed.CompareAndSwap(false, true) {
			return ctx.Err()
		}
		<-done
		return nil
	}
}

// later wraps fn so a timer or process goroutine hands it to the dispatcher.
func (m *Manager) later(fn func()) func() {
	return func() { m.inbox.post(fn) }
}

// next returns a fresh token. Tokens identify process generations and armed
// timers; a callback whose token no longer matches the session is stale.
func (m *Manager) next() uint64 {
	m.seq++
	return m.seq
}

// ScheduleSession validates req and schedules it. A start time at or before
// now starts immediately. Validation failures are also reported as a
// scheduling-error notification.
func (m *Manager) ScheduleSession(ctx context.Context, req Request) error {
	var err error
	if cerr := m.call(ctx, func() { err = m.schedule(req) }); cerr != nil {
		return cerr
	}
	return err
}

// RejectSchedule reports a schedule request that failed before it reached
// the manager, for example an unparsable duration, as a scheduling-error
// notification. It returns err.
func (m *Manager) RejectSchedule(ctx context.Context, sessionID string, err error) error {
	if cerr := m.call(ctx, func() { m.schedulingError(sessionID, err) }); cerr != nil {
		return errors.Join(err, cerr)
	}
	return err
}

// StopSession stops a session in any state. Unknown ids are ignored.
func (m *Manager) StopSession(ctx context.Context, sessionID string) error {
	return m.call(ctx, func() { m.stop(sessionID) })
}

// UpdateStreamEnd moves the stop time of a running session.
func (m *Manager) UpdateStreamEnd(ctx context.Context, sessionID string, endAt time.Time) error {
	var err error
	if cerr := m.call(ctx, func() { err = m.updateEnd(sessionID, endAt) }); cerr != nil {
		return cerr
	}
	return err
}

// Get returns a snapshot of one session.
func (m *Manager) Get(ctx context.Context, sessionID string) (SessionInfo, error) {
	var (
		info  SessionInfo
		found bool
	)
	err := m.call(ctx, func() {
		if rec, ok := m.sessions[sessionID]; ok {
			info, found = rec.info(), true
		}
	})
	if err != nil {
		return SessionInfo{}, err
	}
	if !found {
		return SessionInfo{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return info, nil
}

// List returns snapshots of every live session ordered by id.
func (m *Manager) List(ctx context.Context) ([]SessionInfo, error) {
	var out []SessionInfo
	err := m.call(ctx, func() {
		out = make([]SessionInfo, 0, len(m.sessions))
		for _, id := range m.sortedIDs() {
			out = append(out, m.sessions[id].info())
		}
	})
	return out, err
}

// Sync returns once every piece of queued work, including work queued by
// the handlers it runs, has been applied.
func (m *Manager) Sync(ctx context.Context) error {
	for {
		var pending int
		if err := m.call(ctx, func() { pending = m.inbox.len() }); err != nil {
			return err
		}
		if pending == 0 {
			return nil
		}
	}
}

// Shutdown stops every session and waits, bounded by ctx, for their
// processes to exit. New schedule requests are refused afterwards.
func (m *Manager) Shutdown(ctx context.Context) error {
	var killed []transcoder.Handle
	err := m.call(ctx, func() {
		m.closing = true
		killed = m.teardownAll()
	})
	if errors.Is(err, ErrManagerClosed) {
		return nil
	}
	if err != nil {
		return err
	}
	m.logger.Info("stream manager shut down", slog.Int("processes", len(killed)))
	return waitExited(ctx, killed)
}

func waitExited(ctx context.Context, handles []transcoder.Handle) error {
	for _, h := range handles {
		select {
		case <-h.Done():
		case <-ctx.Done():
			return fmt.Errorf("waiting for encoder processes: %w", ctx.Err())
		}
	}
	return nil
}

func (m *Manager) sortedIDs() []string {
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// schedule runs on the dispatcher.
func (m *Manager) schedule(req Request) error {
	now := m.clock.Now()
	if m.closing {
		return ErrManagerClosed
	}
	if err := req.Validate(now); err != nil {
		m.schedulingError(req.SessionID, err)
		return err
	}

	if old, ok := m.sessions[req.SessionID]; ok {
		if !req.Replace {
			err := fmt.Errorf("%w: %s", ErrSessionExists, req.SessionID)
			m.schedulingError(req.SessionID, err)
			return err
		}
		m.teardown(old)
		m.finishStopped(old, "replaced by a new schedule")
	}

	rec := &record{id: req.SessionID, req: req, createdAt: now}
	if req.Stop.Kind == StopAtTime {
		rec.endAt = req.Stop.EndTime
	}
	m.sessions[rec.id] = rec
	m.metrics.Scheduled.Inc()

	log := observability.WithSession(m.logger, rec.id)
	if !req.StartTime.After(now) {
		log.Info("starting session immediately", slog.String("source", req.SourcePath))
		m.startSequence(rec)
		return nil
	}

	tok := m.next()
	id := rec.id
	h := m.clock.ArmAt(req.StartTime, m.later(func() { m.onStartTimer(id, tok) }))
	rec.phase = &scheduledPhase{timer: h, token: tok, at: req.StartTime}
	log.Info("session scheduled", slog.Time("start_time", req.StartTime))
	at := req.StartTime
	m.emit(events.Event{
		Type:          events.TypeScheduled,
		SessionID:     rec.id,
		Message:       fmt.Sprintf("stream scheduled for %s", at.Format(time.RFC3339)),
		ScheduledTime: &at,
	})
	return nil
}

func (m *Manager) schedulingError(id string, err error) {
	observability.WithSession(m.logger, id).Warn("schedule rejected", slog.String("error", err.Error()))
	m.emit(events.Event{Type: events.TypeSchedulingError, SessionID: id, Message: err.Error()})
}

func (m *Manager) onStartTimer(id string, tok uint64) {
	rec, ok := m.sessions[id]
	if !ok {
		return
	}
	p, ok := rec.phase.(*scheduledPhase)
	if !ok || p.token != tok {
		return
	}
	m.startSequence(rec)
}

func (m *Manager) onRetryTimer(id string, tok uint64) {
	rec, ok := m.sessions[id]
	if !ok {
		return
	}
	p, ok := rec.phase.(*retryingPhase)
	if !ok || p.token != tok {
		return
	}
	if !rec.endAt.IsZero() && !m.clock.Now().Before(rec.endAt) {
		m.release(rec)
		m.finishStopped(rec, "end time reached before retry")
		return
	}
	m.startSequence(rec)
}

func (m *Manager) onStopTimer(id string, tok uint64) {
	rec, ok := m.sessions[id]
	if !ok {
		return
	}
	p, ok := rec.phase.(*runningPhase)
	if !ok || p.stopToken != tok {
		return
	}
	observability.WithSession(m.logger, id).Info("stop time reached")
	m.teardown(rec)
	m.finishStopped(rec, "stop time reached")
}

// startSequence checks the source and launches a process. The record leaves
// in starting, retrying or removed.
func (m *Manager) startSequence(rec *record) {
	log := observability.WithSession(m.logger, rec.id)
	if !rec.endAt.IsZero() && !m.clock.Now().Before(rec.endAt) {
		m.release(rec)
		m.finishStopped(rec, "end time already passed")
		return
	}

	if err := checkSource(rec.req.SourcePath); err != nil {
		log.Warn("source not accessible", slog.String("source", rec.req.SourcePath), slog.String("error", err.Error()))
		m.release(rec)
		rec.lastErr = err.Error()
		m.finishError(rec, err, "error")
		return
	}

	gen := m.next()
	id := rec.id
	proc, err := m.spawner.Spawn(m.procCtx, transcoder.Spec{
		SessionID:  rec.id,
		SourcePath: rec.req.SourcePath,
		StreamKey:  rec.req.StreamKey,
	}, func(ev transcoder.Event) {
		m.inbox.post(func() { m.onProcessEvent(id, gen, ev) })
	})
	if err != nil {
		msg := rec.req.StreamKey.Scrub(err.Error())
		log.Warn("spawning encoder failed", slog.String("error", msg))
		m.handleFailure(rec, msg, ClassifyFailure(msg, nil))
		return
	}
	rec.phase = &startingPhase{proc: proc, gen: gen, spawnedAt: m.clock.Now()}
	log.Debug("encoder spawned", slog.Int("pid", proc.PID()), slog.Uint64("generation", gen))
}

func checkSource(path string) error {
	fi, err := os.Stat(path)
	if err != nil || !fi.Mode().IsRegular() {
		return fmt.Errorf("%w: %s", ErrSourceAccess, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrSourceAccess, path)
	}
	return f.Close()
}

func (m *Manager) onProcessEvent(id string, gen uint64, ev transcoder.Event) {
	rec, ok := m.sessions[id]
	if !ok {
		if ev.Kind == transcoder.EventEnded || ev.Kind == transcoder.EventErrored {
			m.logger.Debug("ignoring exit of retired process",
				slog.String("session_id", id), slog.Uint64("generation", gen))
		}
		return
	}

	switch p := rec.phase.(type) {
	case *startingPhase:
		if p.gen != gen {
			return
		}
		switch ev.Kind {
		case transcoder.EventStarted:
			m.enterRunning(rec, p)
		case transcoder.EventStderr:
			m.streamLog(rec, ev.Line)
		case transcoder.EventEnded, transcoder.EventErrored:
			m.onExit(rec, ev)
		}
	case *runningPhase:
		if p.gen != gen {
			return
		}
		switch ev.Kind {
		case transcoder.EventStderr:
			m.streamLog(rec, ev.Line)
		case transcoder.EventEnded, transcoder.EventErrored:
			m.clock.Cancel(p.stopTimer)
			m.onExit(rec, ev)
		}
	}
}

func (m *Manager) enterRunning(rec *record, p *startingPhase) {
	now := m.clock.Now()
	if rec.firstStart.IsZero() {
		rec.firstStart = now
		if rec.req.Stop.Kind == StopAfterDuration {
			rec.endAt = now.Add(rec.req.Stop.Duration)
		}
	}
	run := &runningPhase{proc: p.proc, gen: p.gen, since: now}
	rec.phase = run
	m.armStop(rec, run)
	m.metrics.Starts.Inc()
	m.observe()

	log := observability.WithSession(m.logger, rec.id)
	log.Info("streaming started", slog.Int("pid", p.proc.PID()), slog.Int("retry_count", rec.retryCount))
	msg := "streaming started"
	if rec.retryCount > 0 {
		msg = fmt.Sprintf("streaming restarted after %d retries", rec.retryCount)
	}
	m.emit(events.Event{Type: events.TypeStarted, SessionID: rec.id, Message: msg, RetryCount: rec.retryCount})
}

func (m *Manager) armStop(rec *record, run *runningPhase) {
	if rec.endAt.IsZero() {
		return
	}
	tok := m.next()
	id := rec.id
	run.stopToken = tok
	run.stopTimer = m.clock.ArmAt(rec.endAt, m.later(func() { m.onStopTimer(id, tok) }))
}

// onExit handles the terminal event of the current process. Only a kill
// the manager issued itself (ev.Killed) counts as a clean stop; a signal
// from anywhere else is a failure.
func (m *Manager) onExit(rec *record, ev transcoder.Event) {
	if ev.Kind == transcoder.EventEnded || ev.Killed {
		m.release(rec)
		m.finishStopped(rec, "encoder exited")
		return
	}
	msg := rec.req.StreamKey.Scrub(ev.Message)
	m.handleFailure(rec, msg, ClassifyFailure(msg, ev.Tail))
}

// handleFailure arms a retry or terminates the session once the budget is
// spent. The retry count only starts over with a new schedule.
func (m *Manager) handleFailure(rec *record, message string, class FailureClass) {
	now := m.clock.Now()
	log := observability.WithSession(m.logger, rec.id)
	rec.lastErr = message

	if rec.retryCount >= m.cfg.MaxRetries {
		log.Error("retry budget exhausted",
			slog.Int("retries", rec.retryCount), slog.String("error", message))
		m.release(rec)
		m.finishError(rec, fmt.Errorf("%w after %d retries: %s", ErrRetryBudgetExhausted, rec.retryCount, message), "failed")
		return
	}

	rec.retryCount++
	delay := m.cfg.Backoff(class, rec.retryCount)
	tok := m.next()
	id := rec.id
	h := m.clock.ArmAfter(delay, m.later(func() { m.onRetryTimer(id, tok) }))
	rec.phase = &retryingPhase{timer: h, token: tok, delay: delay, class: class, until: now.Add(delay)}
	m.metrics.Retries.WithLabelValues(class.String()).Inc()
	m.observe()

	log.Warn("encoder failed, retrying",
		slog.String("class", class.String()),
		slog.Duration("delay", delay),
		slog.Int("attempt", rec.retryCount),
		slog.String("error", message))
	m.emit(events.Event{
		Type:      events.TypeLog,
		SessionID: rec.id,
		Message: fmt.Sprintf("stream failed (%s), retrying in %s (attempt %d/%d): %s",
			class, delay, rec.retryCount, m.cfg.MaxRetries, message),
		RetryCount: rec.retryCount,
	})
}

// streamLog forwards an encoder line, rate limited per session.
func (m *Manager) streamLog(rec *record, line string) {
	lim, ok := m.limiters[rec.id]
	if !ok {
		lim = rate.NewLimiter(m.cfg.LogRate, m.cfg.LogBurst)
		m.limiters[rec.id] = lim
	}
	if !lim.AllowN(m.clock.Now(), 1) {
		return
	}
	m.emit(events.Event{
		Type:       events.TypeLog,
		SessionID:  rec.id,
		Message:    rec.req.StreamKey.Scrub(line),
		RetryCount: rec.retryCount,
	})
}

func (m *Manager) stop(id string) {
	rec, ok := m.sessions[id]
	if !ok {
		return
	}
	observability.WithSession(m.logger, id).Info("stopping session", slog.String("state", string(rec.phase.state())))
	m.teardown(rec)
	m.finishStopped(rec, "stopped by request")
}

func (m *Manager) updateEnd(id string, endAt time.Time) error {
	rec, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	run, ok := rec.phase.(*runningPhase)
	if !ok {
		return fmt.Errorf("%w: %s is %s", ErrNotRunning, id, rec.phase.state())
	}
	if endAt.IsZero() {
		return &ValidationError{Field: "endTime", Message: "is required"}
	}
	m.clock.Cancel(run.stopTimer)
	run.stopTimer = nil
	rec.endAt = endAt
	m.armStop(rec, run)

	observability.WithSession(m.logger, id).Info("stream end updated", slog.Time("end_at", endAt))
	m.emit(events.Event{
		Type:      events.TypeLog,
		SessionID: id,
		Message:   fmt.Sprintf("stream end rescheduled to %s", endAt.Format(time.RFC3339)),
	})
	return nil
}

// teardown kills the session's process, if any, and removes it. The killed
// handle is returned so callers can wait for it.
func (m *Manager) teardown(rec *record) transcoder.Handle {
	proc := rec.process()
	if proc != nil {
		if err := proc.Kill(); err != nil {
			observability.WithSession(m.logger, rec.id).Warn("killing encoder", slog.String("error", err.Error()))
		}
	}
	m.release(rec)
	return proc
}

// release cancels the phase's timers and removes the record without
// touching its process.
func (m *Manager) release(rec *record) {
	switch p := rec.phase.(type) {
	case *scheduledPhase:
		m.clock.Cancel(p.timer)
	case *runningPhase:
		m.clock.Cancel(p.stopTimer)
	case *retryingPhase:
		m.clock.Cancel(p.timer)
	}
	if m.sessions[rec.id] == rec {
		delete(m.sessions, rec.id)
		delete(m.limiters, rec.id)
	}
	m.observe()
}

func (m *Manager) teardownAll() []transcoder.Handle {
	var killed []transcoder.Handle
	for _, id := range m.sortedIDs() {
		rec := m.sessions[id]
		if proc := m.teardown(rec); proc != nil {
			killed = append(killed, proc)
		}
		m.finishStopped(rec, "manager shutting down")
	}
	return killed
}

func (m *Manager) finishStopped(rec *record, reason string) {
	m.metrics.Terminations.WithLabelValues("stopped").Inc()
	m.emit(events.Event{Type: events.TypeStopped, SessionID: rec.id, Message: reason, RetryCount: rec.retryCount})
}

func (m *Manager) finishError(rec *record, err error, outcome string) {
	m.metrics.Terminations.WithLabelValues(outcome).Inc()
	m.emit(events.Event{Type: events.TypeError, SessionID: rec.id, Message: err.Error(), RetryCount: rec.retryCount})
}

// observe refreshes the active gauge.
func (m *Manager) observe() {
	n := 0
	for _, rec := range m.sessions {
		if _, ok := rec.phase.(*runningPhase); ok {
			n++
		}
	}
	m.metrics.Active.Set(float64(n))
}

func (m *Manager) emit(ev events.Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = m.clock.Now()
	}
	m.sink.Notify(ev)
}
