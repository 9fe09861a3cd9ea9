// Copyright (C) 2026 Ironlog Authors.
// See LICENSE for copying information.

// Package retention reconciles the admission cache with persisted truth and
// trims per-stream overflow on a fixed period.
package retention

import (
	"context"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"
	monkit "gopkg.in/spacemonkeygo/monkit.v2"

	"github.com/heety313/ironlog/collector/admission"
	"github.com/heety313/ironlog/collector/collectordb"
	"github.com/heety313/ironlog/internal/sync2"
)

var (
	mon = monkit.Package()

	// Error is the default retention error class.
	Error = errs.Class("retention")
)

// Config holds sweeper settings.
type Config struct {
	Interval    time.Duration
	MaxHashes   int
	MaxLogCount int
}

// Sweeper periodically rebuilds the admission cache from the store and
// enforces the per-stream retention cap. The cap is eventual: a stream may
// overshoot by up to one sweep period of ingest between ticks.
type Sweeper struct {
	log    *zap.Logger
	db     *collectordb.DB
	cache  *admission.Cache
	config Config

	Loop *sync2.Cycle
}

// NewSweeper creates a sweeper.
func NewSweeper(log *zap.Logger, db *collectordb.DB, cache *admission.Cache, config Config) *Sweeper {
	if config.Interval <= 0 {
		config.Interval = time.Minute
	}
	return &Sweeper{
		log:    log,
		db:     db,
		cache:  cache,
		config: config,
		Loop:   sync2.NewCycle(config.Interval),
	}
}

// Run sweeps on every tick until the context is canceled. Sweep failures are
// logged and never stop the loop.
func (sweeper *Sweeper) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	return sweeper.Loop.Run(ctx, func(ctx context.Context) error {
		if err := sweeper.Sweep(ctx); err != nil {
			sweeper.log.Error("sweep failed", zap.Error(err))
		}
		return nil
	})
}

// Sweep runs a single reconciliation pass.
func (sweeper *Sweeper) Sweep(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	if err := sweeper.reseedCache(ctx); err != nil {
		return err
	}
	return sweeper.trimOverflow(ctx)
}

// reseedCache rebuilds the admission cache from persisted truth whenever its
// cardinality exceeds the cap, bounding both the cache memory and the set of
// admitted streams.
func (sweeper *Sweeper) reseedCache(ctx context.Context) error {
	if sweeper.cache.Len() <= sweeper.config.MaxHashes {
		return nil
	}

	top, err := sweeper.db.TopHashes(ctx, sweeper.config.MaxHashes)
	if err != nil {
		return Error.Wrap(err)
	}

	entries := make([]admission.Entry, 0, len(top))
	for _, hc := range top {
		entries = append(entries, admission.Entry{Hash: hc.Hash, Count: hc.Count})
	}
	sweeper.cache.Reseed(entries)

	sweeper.log.Info("admission cache reseeded", zap.Int("hashes", len(entries)))
	return nil
}

// trimOverflow deletes the oldest rows of every stream above the per-stream
// cap. Failures on one stream do not stop the others.
func (sweeper *Sweeper) trimOverflow(ctx context.Context) error {
	hashes, err := sweeper.db.DistinctHashes(ctx)
	if err != nil {
		return Error.Wrap(err)
	}

	var group errs.Group
	for _, hash := range hashes {
		count, err := sweeper.db.CountForHash(ctx, hash)
		if err != nil {
			group.Add(Error.Wrap(err))
			continue
		}
		if overflow := count - int64(sweeper.config.MaxLogCount); overflow > 0 {
			group.Add(Error.Wrap(sweeper.db.TrimHash(ctx, hash, overflow)))
		}
	}
	return group.Err()
}
