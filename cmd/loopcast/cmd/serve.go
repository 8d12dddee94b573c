package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jmylchreest/loopcast/internal/config"
	"github.com/jmylchreest/loopcast/internal/database"
	"github.com/jmylchreest/loopcast/internal/events"
	"github.com/jmylchreest/loopcast/internal/ffmpeg"
	internalhttp "github.com/jmylchreest/loopcast/internal/http"
	"github.com/jmylchreest/loopcast/internal/http/handlers"
	"github.com/jmylchreest/loopcast/internal/observability"
	"github.com/jmylchreest/loopcast/internal/repository"
	"github.com/jmylchreest/loopcast/internal/scheduler"
	"github.com/jmylchreest/loopcast/internal/service"
	"github.com/jmylchreest/loopcast/internal/service/logs"
	"github.com/jmylchreest/loopcast/internal/streaming"
	"github.com/jmylchreest/loopcast/internal/transcoder"
	"github.com/jmylchreest/loopcast/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the loopcast server",
	Long: `Start the stream manager and its HTTP API.

The server provides:
- REST API for live sessions, saved stream definitions and history
- Server-sent events for session notifications at /api/v1/events/stream
- Prometheus metrics at /metrics and health probes at /livez and /readyz
- OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "host to bind to (overrides server.host)")
	serveCmd.Flags().Int("port", 0, "port to listen on (overrides server.port)")
	serveCmd.Flags().String("media-dir", "", "directory offered by the media listing (overrides streaming.media_dir)")
	serveCmd.Flags().Bool("no-scheduler", false, "do not start saved definitions automatically")
}

func runServe(cmd *cobra.Command, _ []string) error {
	applyServeFlags(cmd, cfg)

	// Keep recent records for /api/v1/logs.
	capture := logs.New(logs.DefaultSize, observability.Redactor())
	slog.SetDefault(slog.New(capture.Wrap(slog.Default().Handler())))
	logger := slog.Default()

	info := version.GetInfo()
	logger.Info("loopcast starting",
		slog.String("version", info.Version),
		slog.String("commit", info.Commit),
		slog.String("built", info.Date),
		slog.String("go", info.GoVersion),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watchConfig(cmd, logger)

	db, err := database.New(cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return err
	}

	ffmpegInfo, err := ffmpeg.Detect(ctx, cfg.FFmpeg.BinaryPath)
	if err != nil {
		logger.Warn("ffmpeg not available, sessions will fail to start",
			slog.String("error", err.Error()))
	} else {
		logger.Info("ffmpeg detected",
			slog.String("path", ffmpegInfo.Path),
			slog.String("version", ffmpegInfo.Version))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	hub := events.NewHub()
	historyService := service.NewHistoryService(repository.NewSessionHistoryRepository(db.DB)).
		WithLogger(logger)
	manager := streaming.NewManager(
		transcoder.NewFFmpegSpawner(cfg.FFmpeg, cfg.Streaming.EndpointTemplate, logger),
		events.Fanout(hub, historyService),
		streaming.WithLogger(logger),
		streaming.WithConfig(streaming.ConfigFrom(cfg.Streaming)),
		streaming.WithMetrics(streaming.NewMetrics(registry)),
	)

	definitionService := service.NewDefinitionService(repository.NewStreamDefinitionRepository(db.DB), manager).
		WithLogger(logger)
	mediaService := service.NewMediaService(cfg.Streaming.MediaDir)

	server := internalhttp.NewServer(cfg.Server, logger, registry)

	docsHandler := handlers.NewDocsHandler("loopcast API", "/openapi.yaml")
	server.Router().Get("/docs", docsHandler.ServeHTTP)

	handlers.NewHealthHandler().
		WithDB(db).
		WithSessions(manager).
		WithFFmpeg(ffmpegInfo).
		Register(server.API())
	handlers.NewStreamHandler(manager).Register(server.API())
	handlers.NewDefinitionHandler(definitionService).Register(server.API())
	handlers.NewHistoryHandler(historyService).Register(server.API())
	handlers.NewMediaHandler(mediaService).Register(server.API())
	handlers.NewLogsHandler(capture).Register(server.API())

	eventHandler := handlers.NewEventHandler(hub).WithLogger(logger)
	eventHandler.Register(server.API())
	eventHandler.RegisterSSE(server.Router())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return manager.Run(gctx) })
	g.Go(func() error { return historyService.Run(gctx) })

	if cfg.Scheduler.Enabled {
		planner := scheduler.NewPlanner(definitionService, historyService).
			WithLogger(logger).
			WithConfig(scheduler.PlannerConfigFrom(cfg.Scheduler))
		if err := planner.Start(gctx); err != nil {
			return fmt.Errorf("starting planner: %w", err)
		}
		defer planner.Stop()
	}

	g.Go(func() error {
		logger.Info("http server listening", slog.String("address", cfg.Server.Address()))
		return server.ListenAndServe(gctx)
	})

	err = g.Wait()
	logger.Info("loopcast stopped")
	return err
}

func applyServeFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("host") {
		c.Server.Host, _ = flags.GetString("host")
	}
	if flags.Changed("port") {
		c.Server.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("media-dir") {
		c.Streaming.MediaDir, _ = flags.GetString("media-dir")
	}
	if noScheduler, _ := flags.GetBool("no-scheduler"); noScheduler {
		c.Scheduler.Enabled = false
	}
}

// watchConfig follows the config file and applies the log level on change.
// Everything else requires a restart.
func watchConfig(cmd *cobra.Command, logger *slog.Logger) {
	levelFromFlag := cmd.Root().PersistentFlags().Changed("log-level")
	_, err := config.Watch(cfgFile, func(next *config.Config) {
		if !levelFromFlag {
			reloadLogLevel(logLevel, next.Logging.Level, logger)
		}
	}, func(err error) {
		logger.Warn("ignoring config change", slog.String("error", err.Error()))
	})
	if err != nil {
		logger.Warn("config watch disabled", slog.String("error", err.Error()))
	}
}

// reloadLogLevel moves v to the named level. The watcher goroutine only
// touches v, never the loaded config.
func reloadLogLevel(v *slog.LevelVar, name string, logger *slog.Logger) bool {
	next := observability.ParseLevel(name)
	prev := v.Level()
	if next == prev {
		return false
	}
	v.Set(next)
	logger.Info("log level changed",
		slog.String("from", prev.String()),
		slog.String("to", next.String()))
	return true
}
