// Copyright (C) 2026 Ironlog Authors.
// See LICENSE for copying information.

// Package logclient is a small producer-side client that ships log records to
// a collector over its newline-delimited TCP protocol. Sending is
// fire-and-forget; transport errors are reported on stderr and never returned
// to the caller.
package logclient

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/zeebo/errs"

	"github.com/heety313/ironlog/pkg/logmsg"
)

// Error is the log client error class.
var Error = errs.Class("logclient")

// Logger ships records for a single stream id over one TCP connection.
type Logger struct {
	hash string

	mu   sync.Mutex
	conn net.Conn
	enc  *json.Encoder
}

// Dial connects to a collector and returns a logger bound to the given
// stream id.
func Dial(addr, hash string) (*Logger, error) {
	if hash == "" {
		return nil, Error.Wrap(logmsg.ErrMissingHash)
	}
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return &Logger{
		hash: hash,
		conn: conn,
		enc:  json.NewEncoder(conn),
	}, nil
}

// Log sends one record. The collector assigns the receive timestamp when none
// is set here.
func (logger *Logger) Log(level, target, message string) {
	logger.send(logmsg.LogMessage{
		Level:     level,
		Message:   message,
		Target:    target,
		Hash:      logger.hash,
		Timestamp: logmsg.Now(),
	})
}

// Error sends an ERROR record.
func (logger *Logger) Error(target, message string) { logger.Log("ERROR", target, message) }

// Warn sends a WARN record.
func (logger *Logger) Warn(target, message string) { logger.Log("WARN", target, message) }

// Info sends an INFO record.
func (logger *Logger) Info(target, message string) { logger.Log("INFO", target, message) }

// Debug sends a DEBUG record.
func (logger *Logger) Debug(target, message string) { logger.Log("DEBUG", target, message) }

// Trace sends a TRACE record.
func (logger *Logger) Trace(target, message string) { logger.Log("TRACE", target, message) }

func (logger *Logger) send(msg logmsg.LogMessage) {
	logger.mu.Lock()
	defer logger.mu.Unlock()

	// json.Encoder terminates every record with a newline, which is exactly
	// the framing the collector expects.
	if err := logger.enc.Encode(msg); err != nil {
		fmt.Fprintf(os.Stderr, "logclient: failed to send record: %v\n", err)
	}
}

// Close closes the underlying connection.
func (logger *Logger) Close() error {
	logger.mu.Lock()
	defer logger.mu.Unlock()
	return Error.Wrap(logger.conn.Close())
}
