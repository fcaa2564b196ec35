package models

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const slowQueryThreshold = 200 * time.Millisecond

// gormLogger forwards GORM logs to logrus
type gormLogger struct {
	logger *logrus.Logger
}

func newGormLogger(logger *logrus.Logger) gormlogger.Interface {
	return &gormLogger{logger: logger}
}

func (l *gormLogger) LogMode(gormlogger.LogLevel) gormlogger.Interface {
	return l
}

func (l *gormLogger) Info(_ context.Context, msg string, data ...interface{}) {
	l.logger.Infof(msg, data...)
}

func (l *gormLogger) Warn(_ context.Context, msg string, data ...interface{}) {
	l.logger.Warnf(msg, data...)
}

func (l *gormLogger) Error(_ context.Context, msg string, data ...interface{}) {
	l.logger.Errorf(msg, data...)
}

func (l *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := logrus.Fields{
		"sql":     sql,
		"rows":    rows,
		"elapsed": elapsed,
	}

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		l.logger.WithFields(fields).WithError(err).Error("SQL error")
	case elapsed > slowQueryThreshold:
		l.logger.WithFields(fields).Warn("Slow SQL query")
	default:
		l.logger.WithFields(fields).Trace("SQL query")
	}
}
