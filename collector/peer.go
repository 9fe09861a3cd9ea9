// Copyright (C) 2026 Ironlog Authors.
// See LICENSE for copying information.

// Package collector wires the log collection service together: storage,
// admission cache, TCP ingestion, retention sweeper and the query API.
package collector

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/heety313/ironlog/collector/admission"
	"github.com/heety313/ironlog/collector/collectordb"
	"github.com/heety313/ironlog/collector/console"
	"github.com/heety313/ironlog/collector/console/consoleserver"
	"github.com/heety313/ironlog/collector/ingest"
	"github.com/heety313/ironlog/collector/retention"
)

// Config is all the configuration parameters for the collector.
type Config struct {
	LogDB string

	TCPListenerIP   string
	TCPListenerPort int

	APIServerIP   string
	APIServerPort int

	MaxHashes    int
	MaxLogCount  int
	MaxLogLength int

	SweepInterval time.Duration
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		LogDB:           "logs.db",
		TCPListenerIP:   "127.0.0.1",
		TCPListenerPort: 5000,
		APIServerIP:     "127.0.0.1",
		APIServerPort:   8000,
		MaxHashes:       1000,
		MaxLogCount:     10000,
		MaxLogLength:    4096,
		SweepInterval:   time.Minute,
	}
}

// Peer is the running collector process.
type Peer struct {
	// core dependencies
	Log *zap.Logger
	DB  *collectordb.DB

	Admission *admission.Cache

	Ingest struct {
		Listener net.Listener
		Server   *ingest.Server
	}

	Retention struct {
		Sweeper *retention.Sweeper
	}

	Console struct {
		Listener net.Listener
		Service  *console.Service
		Endpoint *consoleserver.Server
	}
}

// New creates a new collector peer. Listener bind failures are fatal and
// reported to the caller, which exits non-zero.
func New(ctx context.Context, log *zap.Logger, db *collectordb.DB, config Config) (*Peer, error) {
	peer := &Peer{
		Log: log,
		DB:  db,
	}

	var err error

	{ // setup admission cache, seeded from persisted truth
		peer.Admission = admission.NewCache(config.MaxHashes)

		top, err := db.TopHashes(ctx, config.MaxHashes)
		if err != nil {
			return nil, errs.Combine(err, peer.Close())
		}
		entries := make([]admission.Entry, 0, len(top))
		for _, hc := range top {
			entries = append(entries, admission.Entry{Hash: hc.Hash, Count: hc.Count})
		}
		peer.Admission.Reseed(entries)
	}

	{ // setup ingestion
		addr := net.JoinHostPort(config.TCPListenerIP, strconv.Itoa(config.TCPListenerPort))
		peer.Ingest.Listener, err = net.Listen("tcp", addr)
		if err != nil {
			return nil, errs.Combine(err, peer.Close())
		}

		peer.Ingest.Server = ingest.NewServer(
			log.Named("ingest"),
			ingest.Config{MaxLogLength: config.MaxLogLength},
			peer.DB,
			peer.Admission,
			peer.Ingest.Listener,
		)
	}

	{ // setup retention
		peer.Retention.Sweeper = retention.NewSweeper(
			log.Named("retention"),
			peer.DB,
			peer.Admission,
			retention.Config{
				Interval:    config.SweepInterval,
				MaxHashes:   config.MaxHashes,
				MaxLogCount: config.MaxLogCount,
			},
		)
	}

	{ // setup console
		peer.Console.Service, err = console.NewService(
			log.Named("console:service"),
			peer.DB,
			peer.Admission,
			console.Config{
				MaxLogLength: config.MaxLogLength,
				MaxLogCount:  config.MaxLogCount,
			},
		)
		if err != nil {
			return nil, errs.Combine(err, peer.Close())
		}

		addr := net.JoinHostPort(config.APIServerIP, strconv.Itoa(config.APIServerPort))
		peer.Console.Listener, err = net.Listen("tcp", addr)
		if err != nil {
			return nil, errs.Combine(err, peer.Close())
		}

		peer.Console.Endpoint = consoleserver.NewServer(
			log.Named("console:endpoint"),
			peer.Console.Service,
			peer.Console.Listener,
		)
	}

	return peer, nil
}

// Run runs the collector until it's either closed or it errors.
func (peer *Peer) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var group errgroup.Group
	group.Go(func() error {
		return ignoreCancel(peer.Ingest.Server.Run(ctx))
	})
	group.Go(func() error {
		return ignoreCancel(peer.Retention.Sweeper.Run(ctx))
	})
	group.Go(func() error {
		return ignoreCancel(peer.Console.Endpoint.Run(ctx))
	})

	return group.Wait()
}

func ignoreCancel(err error) error {
	if errs.IsFunc(err, func(err error) bool { return err == context.Canceled }) {
		return nil
	}
	return err
}

// Close closes all the resources.
func (peer *Peer) Close() error {
	var errlist errs.Group

	// close servers in reverse initialization order
	if peer.Console.Endpoint != nil {
		errlist.Add(peer.Console.Endpoint.Close())
	} else if peer.Console.Listener != nil {
		errlist.Add(peer.Console.Listener.Close())
	}

	if peer.Ingest.Server == nil && peer.Ingest.Listener != nil {
		// the ingest server closes its own listener during Run
		errlist.Add(peer.Ingest.Listener.Close())
	}

	return errlist.Err()
}

// IngestAddr returns the bound ingestion address.
func (peer *Peer) IngestAddr() string { return peer.Ingest.Listener.Addr().String() }

// APIAddr returns the bound query API address.
func (peer *Peer) APIAddr() string { return peer.Console.Listener.Addr().String() }
