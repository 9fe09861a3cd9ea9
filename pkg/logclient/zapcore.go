// Copyright (C) 2026 Ironlog Authors.
// See LICENSE for copying information.

package logclient

import (
	"go.uber.org/zap/zapcore"

	"github.com/heety313/ironlog/pkg/logmsg"
)

// core forwards zap entries to a collector.
type core struct {
	logger *Logger
	enab   zapcore.LevelEnabler
	fields []zapcore.Field
}

// NewZapCore returns a zapcore.Core that ships every enabled entry through
// the given logger. It is meant to be combined with a local console core via
// zapcore.NewTee.
func NewZapCore(logger *Logger, enab zapcore.LevelEnabler) zapcore.Core {
	return &core{logger: logger, enab: enab}
}

func (c *core) Enabled(level zapcore.Level) bool { return c.enab.Enabled(level) }

func (c *core) With(fields []zapcore.Field) zapcore.Core {
	clone := *c
	clone.fields = append(clone.fields[:len(clone.fields):len(clone.fields)], fields...)
	return &clone
}

func (c *core) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return checked.AddCore(entry, c)
	}
	return checked
}

func (c *core) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	msg := logmsg.LogMessage{
		Level:     zapLevelName(entry.Level),
		Message:   entry.Message,
		Target:    entry.LoggerName,
		Hash:      c.logger.hash,
		Timestamp: entry.Time.UTC().Format(logmsg.TimeLayout),
	}
	if entry.Caller.Defined {
		file := entry.Caller.File
		line := int64(entry.Caller.Line)
		msg.File = &file
		msg.Line = &line
	}

	c.logger.send(msg)
	return nil
}

func (c *core) Sync() error { return nil }

func zapLevelName(level zapcore.Level) string {
	switch {
	case level >= zapcore.ErrorLevel:
		return "ERROR"
	case level == zapcore.WarnLevel:
		return "WARN"
	case level == zapcore.InfoLevel:
		return "INFO"
	default:
		return "DEBUG"
	}
}
