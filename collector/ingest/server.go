// Copyright (C) 2026 Ironlog Authors.
// See LICENSE for copying information.

// Package ingest accepts TCP streams of newline-delimited JSON log records
// and hands admitted records to a single batched writer.
package ingest

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"
	monkit "gopkg.in/spacemonkeygo/monkit.v2"

	"github.com/heety313/ironlog/collector/admission"
	"github.com/heety313/ironlog/pkg/logmsg"
)

var (
	mon = monkit.Package()

	// Error is the default ingest error class.
	Error = errs.Class("ingest")

	errLineTooLong = Error.New("line exceeds limit")
)

// dropLogEvery throttles the malformed-line log so a misbehaving producer
// cannot flood our own output.
const dropLogEvery = 1000

// Store is the subset of the log store the writer needs.
type Store interface {
	InsertBatch(ctx context.Context, batch []logmsg.LogMessage) error
}

// Config holds ingestion settings.
type Config struct {
	MaxLogLength int
	MaxLineBytes int
	QueueSize    int
	BatchSize    int
	IdleTimeout  time.Duration
}

func (config *Config) withDefaults() Config {
	c := *config
	if c.MaxLogLength <= 0 {
		c.MaxLogLength = 4096
	}
	if c.MaxLineBytes <= 0 {
		c.MaxLineBytes = 1 << 20
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 10000
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 1000
	}
	return c
}

// Server owns the accept loop, the per-connection handlers, the writer
// channel and the single batched-writer goroutine.
type Server struct {
	log      *zap.Logger
	config   Config
	store    Store
	cache    *admission.Cache
	listener net.Listener

	queue    chan logmsg.LogMessage
	handlers sync.WaitGroup

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}

	dropped uint64
}

// NewServer creates an ingestion server on an already-bound listener.
func NewServer(log *zap.Logger, config Config, store Store, cache *admission.Cache, listener net.Listener) *Server {
	config = config.withDefaults()
	return &Server{
		log:      log,
		config:   config,
		store:    store,
		cache:    cache,
		listener: listener,
		queue:    make(chan logmsg.LogMessage, config.QueueSize),
		conns:    make(map[net.Conn]struct{}),
	}
}

// Addr returns the listener address.
func (server *Server) Addr() net.Addr { return server.listener.Addr() }

// Run accepts connections until the context is canceled, then shuts down in
// order: stop accepting, close remaining connections, wait for handlers,
// close the writer channel, let the writer drain.
func (server *Server) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var closer sync.WaitGroup
	closer.Add(1)
	go func() {
		defer closer.Done()
		<-ctx.Done()
		_ = server.listener.Close()
		server.closeConns()
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		server.runWriter()
	}()

	err = server.serve(ctx)

	cancel()
	server.handlers.Wait()
	close(server.queue)
	<-writerDone
	closer.Wait()

	return err
}

func (server *Server) serve(ctx context.Context) error {
	for {
		conn, err := server.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return Error.Wrap(err)
			}
		}

		server.track(conn)
		server.handlers.Add(1)
		go func() {
			defer server.handlers.Done()
			defer server.untrack(conn)
			server.handle(ctx, conn)
		}()
	}
}

func (server *Server) track(conn net.Conn) {
	server.connsMu.Lock()
	server.conns[conn] = struct{}{}
	server.connsMu.Unlock()
}

func (server *Server) untrack(conn net.Conn) {
	server.connsMu.Lock()
	delete(server.conns, conn)
	server.connsMu.Unlock()
}

func (server *Server) closeConns() {
	server.connsMu.Lock()
	defer server.connsMu.Unlock()
	for conn := range server.conns {
		_ = conn.Close()
	}
}

// handle reads newline-delimited records from one connection. It ends
// silently on EOF or read error and must never affect other connections.
func (server *Server) handle(ctx context.Context, conn net.Conn) {
	defer func() {
		if rec := recover(); rec != nil {
			server.log.Error("connection handler panicked", zap.Any("panic", rec))
		}
	}()
	defer func() { _ = conn.Close() }()

	reader := bufio.NewReaderSize(conn, 64<<10)
	for {
		if server.config.IdleTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(server.config.IdleTimeout))
		}

		line, err := readLine(reader, server.config.MaxLineBytes)
		if errors.Is(err, errLineTooLong) {
			server.countDrop()
			continue
		}
		if err != nil {
			return
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		msg, err := logmsg.Decode(line)
		if err != nil {
			server.countDrop()
			continue
		}
		msg.Message = logmsg.Truncate(msg.Message, server.config.MaxLogLength)

		if !server.cache.Admit(msg.Hash) {
			// silent drop; producers are fire-and-forget
			continue
		}

		// blocking send: backpressure propagates to the socket. Dropping
		// here is not allowed since admission already counted the record.
		select {
		case server.queue <- msg:
		case <-ctx.Done():
			return
		}
	}
}

func (server *Server) countDrop() {
	n := atomic.AddUint64(&server.dropped, 1)
	if n%dropLogEvery == 1 {
		server.log.Debug("dropped unparseable lines", zap.Uint64("total", n))
	}
}

// readLine reads one newline-terminated line of at most max bytes. Oversized
// lines are consumed through their newline and reported with errLineTooLong
// so the connection survives. A non-empty final line without a trailing
// newline is returned before EOF.
func readLine(reader *bufio.Reader, max int) ([]byte, error) {
	var line []byte
	for {
		frag, err := reader.ReadSlice('\n')
		line = append(line, frag...)
		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			if len(line) > max {
				if err := discardLine(reader); err != nil {
					return nil, err
				}
				return nil, errLineTooLong
			}
		case errors.Is(err, io.EOF):
			if len(line) == 0 {
				return nil, io.EOF
			}
			return line, nil
		case err != nil:
			return nil, err
		default:
			if len(line) > max {
				return nil, errLineTooLong
			}
			return line, nil
		}
	}
}

// discardLine consumes input through the next newline.
func discardLine(reader *bufio.Reader) error {
	for {
		_, err := reader.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return err
	}
}
