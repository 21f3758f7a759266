package logger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

// GormLogger routes gorm logs into the "sql" module logger
type GormLogger struct {
	log           *CtxZapLogger
	slowThreshold time.Duration
	logLevel      gormlogger.LogLevel
}

// NewGormLogger slowThreshold 为 0 时不做慢查询检测
func NewGormLogger(log *CtxZapLogger, slowThreshold time.Duration, level gormlogger.LogLevel) *GormLogger {
	if log == nil {
		log = GetLogger("sql")
	}
	return &GormLogger{log: log, slowThreshold: slowThreshold, logLevel: level}
}

// LogMode implements gorm logger.Interface
func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.logLevel = level
	return &clone
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.logLevel >= gormlogger.Info {
		l.log.DebugCtx(ctx, fmt.Sprintf(msg, data...))
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.logLevel >= gormlogger.Warn {
		l.log.WarnCtx(ctx, fmt.Sprintf(msg, data...))
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.logLevel >= gormlogger.Error {
		l.log.ErrorCtx(ctx, fmt.Sprintf(msg, data...))
	}
}

// Trace records each SQL execution
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.logLevel <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := []zap.Field{
		zap.String("sql", sql),
		zap.Duration("elapsed", elapsed),
		zap.Int64("rows", rows),
	}

	switch {
	case err != nil && l.logLevel >= gormlogger.Error && !errors.Is(err, gormlogger.ErrRecordNotFound):
		l.log.ErrorCtx(ctx, "SQL 执行错误", append(fields, zap.Error(err))...)
	case l.slowThreshold != 0 && elapsed > l.slowThreshold && l.logLevel >= gormlogger.Warn:
		l.log.WarnCtx(ctx, "慢查询检测", append(fields, zap.Duration("threshold", l.slowThreshold))...)
	case l.logLevel >= gormlogger.Info:
		l.log.DebugCtx(ctx, "SQL 执行", fields...)
	}
}
