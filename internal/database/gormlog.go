package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const slowQueryThreshold = 500 * time.Millisecond

// gormLogger sends GORM output to slog. Failed statements log at error,
// slow ones at warn, and with the info level every statement logs at debug.
type gormLogger struct {
	logger *slog.Logger
	level  logger.LogLevel
}

func newGormLogger(level string, l *slog.Logger) gormLogger {
	return gormLogger{logger: l.With(slog.String("component", "database")), level: gormLogLevel(level)}
}

func gormLogLevel(level string) logger.LogLevel {
	switch level {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	}
	return logger.Warn
}

func (g gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	g.level = level
	return g
}

func (g gormLogger) Info(ctx context.Context, format string, args ...any) {
	g.printf(ctx, logger.Info, slog.LevelInfo, format, args)
}

func (g gormLogger) Warn(ctx context.Context, format string, args ...any) {
	g.printf(ctx, logger.Warn, slog.LevelWarn, format, args)
}

func (g gormLogger) Error(ctx context.Context, format string, args ...any) {
	g.printf(ctx, logger.Error, slog.LevelError, format, args)
}

func (g gormLogger) printf(ctx context.Context, min logger.LogLevel, level slog.Level, format string, args []any) {
	if g.level >= min {
		g.logger.Log(ctx, level, fmt.Sprintf(format, args...))
	}
}

func (g gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)

	var msg string
	level := slog.LevelDebug
	switch {
	case g.level >= logger.Error && err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		msg, level = "database error", slog.LevelError
	case g.level >= logger.Warn && elapsed > slowQueryThreshold:
		msg, level = "slow query", slog.LevelWarn
	case g.level >= logger.Info && g.logger.Enabled(ctx, slog.LevelDebug):
		msg = "database query"
	default:
		return
	}

	sql, rows := fc()
	attrs := []slog.Attr{
		slog.String("sql", sql),
		slog.Int64("rows", rows),
		slog.Duration("elapsed", elapsed),
	}
	if level == slog.LevelError {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	g.logger.LogAttrs(ctx, level, msg, attrs...)
}
