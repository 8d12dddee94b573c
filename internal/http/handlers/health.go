// Package handlers provides the loopcast HTTP API handlers.
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/jmylchreest/loopcast/internal/ffmpeg"
	"github.com/jmylchreest/loopcast/internal/streaming"
	"github.com/jmylchreest/loopcast/internal/version"
)

// Pinger checks a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health and version endpoints.
type HealthHandler struct {
	startTime time.Time
	db        Pinger
	sessions  SessionManager
	ffmpeg    *ffmpeg.BinaryInfo
}

// NewHealthHandler creates a health handler.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{startTime: time.Now()}
}

// WithDB sets the database checked by readiness.
func (h *HealthHandler) WithDB(db Pinger) *HealthHandler {
	h.db = db
	return h
}

// WithSessions sets the stream manager reported in health output.
func (h *HealthHandler) WithSessions(sessions SessionManager) *HealthHandler {
	h.sessions = sessions
	return h
}

// WithFFmpeg records the detected ffmpeg binary.
func (h *HealthHandler) WithFFmpeg(info *ffmpeg.BinaryInfo) *HealthHandler {
	h.ffmpeg = info
	return h
}

// Register registers the health routes with the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns component status, session counts and system metrics",
		Tags:        []string{"System"},
	}, h.GetHealth)

	huma.Register(api, huma.Operation{
		OperationID: "getLivez",
		Method:      http.MethodGet,
		Path:        "/livez",
		Summary:     "Liveness probe",
		Tags:        []string{"System"},
	}, h.GetLivez)

	huma.Register(api, huma.Operation{
		OperationID: "getReadyz",
		Method:      http.MethodGet,
		Path:        "/readyz",
		Summary:     "Readiness probe",
		Description: "Reports not_ready until the database and stream manager respond",
		Tags:        []string{"System"},
	}, h.GetReadyz)

	huma.Register(api, huma.Operation{
		OperationID: "getVersion",
		Method:      http.MethodGet,
		Path:        "/api/v1/version",
		Summary:     "Build information",
		Tags:        []string{"System"},
	}, h.GetVersion)
}

// HealthResponse is the body of /health.
type HealthResponse struct {
	Status        string             `json:"status"`
	Timestamp     time.Time          `json:"timestamp"`
	Version       string             `json:"version"`
	Uptime        string             `json:"uptime"`
	UptimeSeconds float64            `json:"uptime_seconds"`
	Checks        map[string]string  `json:"checks"`
	Sessions      map[string]int     `json:"sessions" doc:"Live sessions by state"`
	FFmpeg        *ffmpeg.BinaryInfo `json:"ffmpeg,omitempty"`
	System        SystemInfo         `json:"system"`
}

// SystemInfo holds host and process metrics. Encoder figures cover the
// child processes, normally one ffmpeg per running session.
type SystemInfo struct {
	Cores             int     `json:"cores"`
	Load1Min          float64 `json:"load_1min"`
	TotalMemoryMB     float64 `json:"total_memory_mb"`
	AvailableMemoryMB float64 `json:"available_memory_mb"`
	ProcessMemoryMB   float64 `json:"process_memory_mb"`
	EncoderProcesses  int     `json:"encoder_processes"`
	EncoderMemoryMB   float64 `json:"encoder_memory_mb"`
}

// HealthInput is the input for /health.
type HealthInput struct{}

// HealthOutput is the output for /health.
type HealthOutput struct {
	Body HealthResponse
}

// GetHealth reports overall health. Failing checks mark the status
// degraded but still answer 200.
func (h *HealthHandler) GetHealth(ctx context.Context, _ *HealthInput) (*HealthOutput, error) {
	now := time.Now()
	uptime := now.Sub(h.startTime)
	checks, sessions := h.check(ctx)

	status := "healthy"
	for _, c := range checks {
		if c == "error" {
			status = "degraded"
		}
	}

	return &HealthOutput{Body: HealthResponse{
		Status:        status,
		Timestamp:     now.UTC(),
		Version:       version.Version,
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: uptime.Seconds(),
		Checks:        checks,
		Sessions:      sessions,
		FFmpeg:        h.ffmpeg,
		System:        systemInfo(),
	}}, nil
}

func (h *HealthHandler) check(ctx context.Context) (map[string]string, map[string]int) {
	checks := map[string]string{
		"database":       "not_configured",
		"stream_manager": "not_configured",
		"ffmpeg":         "not_found",
	}
	sessions := map[string]int{}

	if h.db != nil {
		checks["database"] = "ok"
		if err := h.db.Ping(ctx); err != nil {
			checks["database"] = "error"
		}
	}
	if h.sessions != nil {
		list, err := h.sessions.List(ctx)
		if err != nil {
			checks["stream_manager"] = "error"
		} else {
			checks["stream_manager"] = "ok"
			for _, s := range list {
				sessions[string(s.State)]++
			}
		}
	}
	if h.ffmpeg != nil {
		checks["ffmpeg"] = "ok"
	}
	return checks, sessions
}

func systemInfo() SystemInfo {
	info := SystemInfo{Cores: runtime.NumCPU()}

	if avg, err := load.Avg(); err == nil && avg != nil {
		info.Load1Min = avg.Load1
	}
	if vm, err := mem.VirtualMemory(); err == nil && vm != nil {
		info.TotalMemoryMB = float64(vm.Total) / 1024 / 1024
		info.AvailableMemoryMB = float64(vm.Available) / 1024 / 1024
	}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return info
	}
	if mi, err := proc.MemoryInfo(); err == nil && mi != nil {
		info.ProcessMemoryMB = float64(mi.RSS) / 1024 / 1024
	}
	if children, err := proc.Children(); err == nil {
		info.EncoderProcesses = len(children)
		for _, c := range children {
			if mi, err := c.MemoryInfo(); err == nil && mi != nil {
				info.EncoderMemoryMB += float64(mi.RSS) / 1024 / 1024
			}
		}
	}
	return info
}

// LivezInput is the input for /livez.
type LivezInput struct{}

// ProbeOutput is the output for the probes.
type ProbeOutput struct {
	Body struct {
		Status     string            `json:"status"`
		Components map[string]string `json:"components,omitempty"`
	}
}

// GetLivez answers as long as the process serves HTTP.
func (h *HealthHandler) GetLivez(_ context.Context, _ *LivezInput) (*ProbeOutput, error) {
	resp := &ProbeOutput{}
	resp.Body.Status = "ok"
	return resp, nil
}

// ReadyzInput is the input for /readyz.
type ReadyzInput struct{}

// GetReadyz returns 503 until the database and stream manager respond.
func (h *HealthHandler) GetReadyz(ctx context.Context, _ *ReadyzInput) (*ProbeOutput, error) {
	checks, _ := h.check(ctx)
	delete(checks, "ffmpeg")

	for name, c := range checks {
		if c != "ok" {
			return nil, huma.Error503ServiceUnavailable(fmt.Sprintf("not ready: %s is %s", name, c))
		}
	}
	resp := &ProbeOutput{}
	resp.Body.Status = "ready"
	resp.Body.Components = checks
	return resp, nil
}

// VersionInput is the input for the version endpoint.
type VersionInput struct{}

// VersionOutput is the output for the version endpoint.
type VersionOutput struct {
	Body version.Info
}

// GetVersion returns build information.
func (h *HealthHandler) GetVersion(_ context.Context, _ *VersionInput) (*VersionOutput, error) {
	return &VersionOutput{Body: version.GetInfo()}, nil
}

var _ SessionManager = (*streaming.Manager)(nil)
