// Copyright (C) 2026 Ironlog Authors.
// See LICENSE for copying information.

// Package console implements the query surface over the log store.
package console

import (
	"context"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"
	monkit "gopkg.in/spacemonkeygo/monkit.v2"

	"github.com/heety313/ironlog/collector/admission"
	"github.com/heety313/ironlog/collector/collectordb"
	"github.com/heety313/ironlog/pkg/logmsg"
)

var (
	mon = monkit.Package()

	// Error is the default console error class.
	Error = errs.Class("console")
)

// trimSlack is the hysteresis margin on the synchronous insert path: a
// stream may exceed its cap by this many rows before the oldest rows are
// deleted inline.
const trimSlack = 50

// emptyRangeDays is how far back the reported minimum date reaches when the
// store is empty.
const emptyRangeDays = 7

// Status strings returned by mutating endpoints.
const (
	StatusInserted   = "Log inserted successfully."
	StatusHashesFull = "Maximum number of hashes reached. Log not inserted."
	StatusPurged     = "Logs purged successfully."
)

// Config holds query-service limits.
type Config struct {
	MaxLogLength int
	MaxLogCount  int
}

// DateRange is the span of persisted timestamps.
type DateRange struct {
	MinDate string `json:"min_date"`
	MaxDate string `json:"max_date"`
}

// Info summarizes the store.
type Info struct {
	DBSizeBytes    int64    `json:"db_size_bytes"`
	TotalLogCount  int64    `json:"total_log_count"`
	NumberOfHashes int64    `json:"number_of_hashes"`
	MinDate        string   `json:"min_date"`
	MaxDate        string   `json:"max_date"`
	HashList       []string `json:"hash_list"`
}

// Service handles log browsing and the synchronous insert path.
type Service struct {
	log    *zap.Logger
	db     *collectordb.DB
	cache  *admission.Cache
	config Config
}

// NewService returns new instance of Service.
func NewService(log *zap.Logger, db *collectordb.DB, cache *admission.Cache, config Config) (*Service, error) {
	if log == nil {
		return nil, errs.New("log can't be nil")
	}
	if db == nil {
		return nil, errs.New("db can't be nil")
	}
	if cache == nil {
		return nil, errs.New("cache can't be nil")
	}
	return &Service{
		log:    log,
		db:     db,
		cache:  cache,
		config: config,
	}, nil
}

// Hashes lists all persisted stream ids.
func (service *Service) Hashes(ctx context.Context) (hashes []string, err error) {
	defer mon.Task()(&ctx)(&err)
	return service.db.DistinctHashes(ctx)
}

// Range returns the persisted date span; for an empty store it reports the
// window from a week ago until now.
func (service *Service) Range(ctx context.Context) (_ DateRange, err error) {
	defer mon.Task()(&ctx)(&err)

	min, max, err := service.db.DateRange(ctx)
	if err != nil {
		return DateRange{}, err
	}
	if max == "" {
		now := time.Now().UTC()
		return DateRange{
			MinDate: now.AddDate(0, 0, -emptyRangeDays).Format(logmsg.TimeLayout),
			MaxDate: now.Format(logmsg.TimeLayout),
		}, nil
	}
	return DateRange{MinDate: min, MaxDate: max}, nil
}

// Logs returns records for one stream, newest first. An unknown stream id
// yields an empty list, not an error.
func (service *Service) Logs(ctx context.Context, hash string, opts collectordb.SelectOptions) (logs []logmsg.LogMessage, err error) {
	defer mon.Task()(&ctx)(&err)
	return service.db.SelectByHash(ctx, hash, opts)
}

// GetInfo returns a store summary.
func (service *Service) GetInfo(ctx context.Context) (_ Info, err error) {
	defer mon.Task()(&ctx)(&err)

	size, err := service.db.SizeBytes()
	if err != nil {
		return Info{}, err
	}
	total, err := service.db.TotalCount(ctx)
	if err != nil {
		return Info{}, err
	}
	hashes, err := service.db.DistinctHashes(ctx)
	if err != nil {
		return Info{}, err
	}
	dateRange, err := service.Range(ctx)
	if err != nil {
		return Info{}, err
	}

	return Info{
		DBSizeBytes:    size,
		TotalLogCount:  total,
		NumberOfHashes: int64(len(hashes)),
		MinDate:        dateRange.MinDate,
		MaxDate:        dateRange.MaxDate,
		HashList:       hashes,
	}, nil
}

// Purge deletes every persisted record.
func (service *Service) Purge(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)
	return service.db.PurgeAll(ctx)
}

// Insert is the synchronous variant of the TCP ingestion path: truncate,
// admit, insert inline, then trim once the stream is past its cap by more
// than the slack. The caller gets a human-readable status string.
func (service *Service) Insert(ctx context.Context, msg logmsg.LogMessage) (status string, err error) {
	defer mon.Task()(&ctx)(&err)

	if msg.Hash == "" {
		return "", logmsg.ErrMissingHash
	}
	msg.Message = logmsg.Truncate(msg.Message, service.config.MaxLogLength)
	if msg.Timestamp == "" {
		msg.Timestamp = logmsg.Now()
	} else {
		msg.Timestamp = logmsg.NormalizeTimestamp(msg.Timestamp)
	}

	if !service.cache.Admit(msg.Hash) {
		return StatusHashesFull, nil
	}

	if err := service.db.InsertBatch(ctx, []logmsg.LogMessage{msg}); err != nil {
		return "", err
	}

	count, err := service.db.CountForHash(ctx, msg.Hash)
	if err != nil {
		return "", err
	}
	if count > int64(service.config.MaxLogCount+trimSlack) {
		if err := service.db.TrimHash(ctx, msg.Hash, trimSlack); err != nil {
			return "", err
		}
	}

	return StatusInserted, nil
}
