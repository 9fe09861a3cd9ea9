// Copyright (C) 2026 Ironlog Authors.
// See LICENSE for copying information.

package logmsg

import (
	"encoding/json"
	"time"
	"unicode/utf8"

	"github.com/zeebo/errs"
)

// TimeLayout is RFC 3339 in UTC with a fixed-width nanosecond fraction.
// Fixed width keeps lexicographic order equal to chronological order, which
// the store relies on for range predicates and result ordering.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

var (
	// Error is the default logmsg error class.
	Error = errs.Class("logmsg")

	// ErrMissingHash is returned when a decoded record carries no stream id.
	ErrMissingHash = Error.New("missing hash")
)

// LogMessage is the unit of ingestion and persistence. The internal row id
// is assigned by the store and never appears on the wire.
type LogMessage struct {
	Level      string  `json:"level"`
	Message    string  `json:"message"`
	Target     string  `json:"target"`
	ModulePath *string `json:"module_path,omitempty"`
	File       *string `json:"file,omitempty"`
	Line       *int64  `json:"line,omitempty"`
	Hash       string  `json:"hash"`
	Timestamp  string  `json:"timestamp"`
}

// Decode parses a single JSON object. Unknown fields are ignored. A missing
// timestamp is filled with the current instant; a present one is normalized
// to UTC. Records without a hash are rejected with ErrMissingHash.
func Decode(line []byte) (LogMessage, error) {
	var msg LogMessage
	if err := json.Unmarshal(line, &msg); err != nil {
		return LogMessage{}, Error.Wrap(err)
	}
	if msg.Hash == "" {
		return LogMessage{}, ErrMissingHash
	}
	if msg.Timestamp == "" {
		msg.Timestamp = Now()
	} else {
		msg.Timestamp = NormalizeTimestamp(msg.Timestamp)
	}
	return msg, nil
}

// Truncate caps s at maxBytes, walking backward to the nearest UTF-8
// character boundary so no partial code point survives.
func Truncate(s string, maxBytes int) string {
	if maxBytes <= 0 {
		return ""
	}
	if len(s) <= maxBytes {
		return s
	}
	end := maxBytes
	for end > 0 && !utf8.RuneStart(s[end]) {
		end--
	}
	return s[:end]
}

// NormalizeTimestamp re-encodes an RFC 3339 timestamp as UTC in TimeLayout.
// Values that do not parse are replaced with the current instant, keeping
// the persisted-timestamp invariant instead of storing garbage.
func NormalizeTimestamp(s string) string {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return Now()
	}
	return t.UTC().Format(TimeLayout)
}

// Now returns the current UTC instant in TimeLayout.
func Now() string {
	return time.Now().UTC().Format(TimeLayout)
}
