// Package logs keeps the most recent server log records in memory so they
// can be read over the API without shell access to the host.
package logs

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// DefaultSize is the number of records kept.
const DefaultSize = 1000

// maxRecentErrors bounds Stats.RecentErrors.
const maxRecentErrors = 10

// Entry is one captured log record.
type Entry struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Component string         `json:"component,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`

	level slog.Level
}

// Stats summarises what has been captured since start.
type Stats struct {
	Total         int64            `json:"total"`
	ByLevel       map[string]int64 `json:"by_level"`
	ByComponent   map[string]int64 `json:"by_component"`
	RecentErrors  []Entry          `json:"recent_errors"`
	RatePerMinute float64          `json:"rate_per_minute"`
	Oldest        *time.Time       `json:"oldest,omitempty"`
	Newest        *time.Time       `json:"newest,omitempty"`
}

// Filter selects entries from Recent.
type Filter struct {
	MinLevel  slog.Level
	Component string
	SessionID string
	Limit     int
}

// Capture is a bounded ring of log records.
type Capture struct {
	mu          sync.RWMutex
	entries     []Entry
	size        int
	total       int64
	byLevel     map[string]int64
	byComponent map[string]int64
	errors      []Entry
	startTime   time.Time
	redact      func([]string, slog.Attr) slog.Attr
}

// New creates a capture holding up to size records. redact, if not nil,
// is applied to every attribute before it is stored.
func New(size int, redact func([]string, slog.Attr) slog.Attr) *Capture {
	if size <= 0 {
		size = DefaultSize
	}
	return &Capture{
		entries:     make([]Entry, 0, size),
		size:        size,
		byLevel:     make(map[string]int64),
		byComponent: make(map[string]int64),
		startTime:   time.Now(),
		redact:      redact,
	}
}

// Wrap returns a handler that records into c and then passes every record
// on to next.
func (c *Capture) Wrap(next slog.Handler) slog.Handler {
	return &handler{capture: c, next: next}
}

func (c *Capture) add(e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.total++
	c.byLevel[e.Level]++
	if e.Component != "" {
		c.byComponent[e.Component]++
	}
	if e.level >= slog.LevelError {
		if len(c.errors) >= maxRecentErrors {
			c.errors = c.errors[1:]
		}
		c.errors = append(c.errors, e)
	}
	if len(c.entries) >= c.size {
		c.entries = c.entries[1:]
	}
	c.entries = append(c.entries, e)
}

// Recent returns matching entries, oldest first, keeping the newest
// f.Limit of them. A zero Limit returns every match.
func (c *Capture) Recent(f Filter) []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Entry, 0, min(len(c.entries), max(f.Limit, 0)))
	for i := len(c.entries) - 1; i >= 0; i-- {
		e := c.entries[i]
		if e.level < f.MinLevel ||
			(f.Component != "" && e.Component != f.Component) ||
			(f.SessionID != "" && e.SessionID != f.SessionID) {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Stats returns capture statistics.
func (c *Capture) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	st := Stats{
		Total:        c.total,
		ByLevel:      map[string]int64{"debug": 0, "info": 0, "warn": 0, "error": 0},
		ByComponent:  make(map[string]int64, len(c.byComponent)),
		RecentErrors: append([]Entry{}, c.errors...),
	}
	for k, v := range c.byLevel {
		st.ByLevel[k] = v
	}
	for k, v := range c.byComponent {
		st.ByComponent[k] = v
	}
	if minutes := time.Since(c.startTime).Minutes(); minutes > 0 {
		st.RatePerMinute = float64(c.total) / minutes
	}
	if n := len(c.entries); n > 0 {
		oldest, newest := c.entries[0].Timestamp, c.entries[n-1].Timestamp
		st.Oldest, st.Newest = &oldest, &newest
	}
	return st
}

// LevelName is the lower-case name used in entries and filters.
func LevelName(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "error"
	case l >= slog.LevelWarn:
		return "warn"
	case l >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}

type handler struct {
	capture *Capture
	next    slog.Handler
	attrs   []slog.Attr
	groups  []string
}

func (h *handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *handler) Handle(ctx context.Context, r slog.Record) error {
	e := Entry{
		ID:        ulid.Make().String(),
		Timestamp: r.Time,
		Level:     LevelName(r.Level),
		Message:   r.Message,
		level:     r.Level,
	}
	for _, a := range h.attrs {
		h.collect(&e, nil, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		h.collect(&e, h.groups, a)
		return true
	})
	h.capture.add(e)

	return h.next.Handle(ctx, r)
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	// Keys are qualified with the current groups now; later groups do not
	// apply to them.
	qualified := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	qualified = append(qualified, h.attrs...)
	for _, a := range attrs {
		if len(h.groups) > 0 {
			a.Key = strings.Join(h.groups, ".") + "." + a.Key
		}
		qualified = append(qualified, a)
	}
	return &handler{capture: h.capture, next: h.next.WithAttrs(attrs), attrs: qualified, groups: h.groups}
}

func (h *handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	groups := append(append([]string{}, h.groups...), name)
	return &handler{capture: h.capture, next: h.next.WithGroup(name), attrs: h.attrs, groups: groups}
}

func (h *handler) collect(e *Entry, groups []string, a slog.Attr) {
	if h.capture.redact != nil {
		a = h.capture.redact(groups, a)
	}
	a.Value = a.Value.Resolve()
	if a.Value.Kind() == slog.KindGroup {
		sub := groups
		if a.Key != "" {
			sub = append(append([]string{}, groups...), a.Key)
		}
		for _, ga := range a.Value.Group() {
			h.collect(e, sub, ga)
		}
		return
	}

	switch a.Key {
	case "component":
		e.Component = a.Value.String()
		return
	case "session_id":
		e.SessionID = a.Value.String()
		return
	}
	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}
	key := a.Key
	if len(groups) > 0 {
		key = strings.Join(groups, ".") + "." + key
	}
	e.Fields[key] = a.Value.Any()
}
