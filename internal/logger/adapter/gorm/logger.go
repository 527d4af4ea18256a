// Package gorm routes gorm's logger through the global zerolog logger.
package gorm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Logger implements gorm's logger.Interface.
type Logger struct {
	// SlowThreshold marks queries slower than this as warnings. 0 disables it.
	SlowThreshold time.Duration
	// LogQueries logs every statement at debug level.
	LogQueries bool
	level      gormlogger.LogLevel
}

// New returns a logger at gorm's Warn level.
func New(slowThreshold time.Duration, logQueries bool) *Logger {
	return &Logger{
		SlowThreshold: slowThreshold,
		LogQueries:    logQueries,
		level:         gormlogger.Warn,
	}
}

// LogMode implements gorm logger.Interface.
func (l *Logger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	nl := *l
	nl.level = level

	return &nl
}

// Info implements gorm logger.Interface.
func (l *Logger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Info {
		l.logger(ctx).Info().Msg(fmt.Sprintf(msg, data...))
	}
}

// Warn implements gorm logger.Interface.
func (l *Logger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Warn {
		l.logger(ctx).Warn().Msg(fmt.Sprintf(msg, data...))
	}
}

// Error implements gorm logger.Interface.
func (l *Logger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Error {
		l.logger(ctx).Error().Msg(fmt.Sprintf(msg, data...))
	}
}

// Trace implements gorm logger.Interface.
// Record-not-found is expected in lookups and never logged as an error.
func (l *Logger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)

	var event *zerolog.Event

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= gormlogger.Error:
		event = l.logger(ctx).Error().Err(err)
	case l.SlowThreshold > 0 && elapsed > l.SlowThreshold && l.level >= gormlogger.Warn:
		event = l.logger(ctx).Warn().Dur("threshold", l.SlowThreshold)
	case l.LogQueries:
		event = l.logger(ctx).Debug()
	default:
		return
	}

	sql, rows := fc()
	event.Str("sql", sql).Int64("rows", rows).Dur("elapsed", elapsed).Msg("gorm query")
}

func (l *Logger) logger(ctx context.Context) *zerolog.Logger {
	if ctxLogger := zerolog.Ctx(ctx); ctxLogger != nil && ctxLogger.GetLevel() != zerolog.Disabled {
		return ctxLogger
	}

	return &log.Logger
}
