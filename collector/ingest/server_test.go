// Copyright (C) 2026 Ironlog Authors.
// See LICENSE for copying information.

package ingest_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/heety313/ironlog/collector/admission"
	"github.com/heety313/ironlog/collector/ingest"
	"github.com/heety313/ironlog/internal/testcontext"
	"github.com/heety313/ironlog/pkg/logmsg"
)

type testStore struct {
	mu      sync.Mutex
	records []logmsg.LogMessage
	batches int
	failing int32
}

func (store *testStore) InsertBatch(ctx context.Context, batch []logmsg.LogMessage) error {
	if atomic.LoadInt32(&store.failing) != 0 {
		return errs.New("disk on fire")
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	store.records = append(store.records, batch...)
	store.batches++
	return nil
}

func (store *testStore) stored() []logmsg.LogMessage {
	store.mu.Lock()
	defer store.mu.Unlock()
	return append([]logmsg.LogMessage(nil), store.records...)
}

func startServer(t *testing.T, ctx *testcontext.Context, config ingest.Config, store ingest.Store, cache *admission.Cache) (*ingest.Server, context.CancelFunc) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server := ingest.NewServer(zap.NewNop(), config, store, cache, listener)

	runCtx, cancel := context.WithCancel(context.Background())
	ctx.Go(func() error {
		return server.Run(runCtx)
	})
	return server, cancel
}

func dial(t *testing.T, server *ingest.Server) net.Conn {
	conn, err := net.Dial("tcp", server.Addr().String())
	require.NoError(t, err)
	return conn
}

func sendLine(t *testing.T, conn net.Conn, line string) {
	_, err := conn.Write([]byte(line + "\n"))
	require.NoError(t, err)
}

func recordLine(hash string, seq int) string {
	data, _ := json.Marshal(logmsg.LogMessage{
		Level:     "INFO",
		Message:   fmt.Sprintf("seq-%03d", seq),
		Target:    "test",
		Hash:      hash,
		Timestamp: logmsg.Now(),
	})
	return string(data)
}

func TestIngestOrdering(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store := &testStore{}
	server, cancel := startServer(t, ctx, ingest.Config{}, store, admission.NewCache(10))
	defer cancel()

	conn := dial(t, server)
	defer func() { _ = conn.Close() }()

	const total = 50
	for i := 0; i < total; i++ {
		sendLine(t, conn, recordLine("stream", i))
	}

	require.Eventually(t, func() bool {
		return len(store.stored()) >= total
	}, 10*time.Second, 10*time.Millisecond)

	stored := store.stored()
	require.Len(t, stored, total)
	for i, msg := range stored {
		assert.Equal(t, fmt.Sprintf("seq-%03d", i), msg.Message)
		assert.Equal(t, "stream", msg.Hash)
	}
}

func TestIngestDropsBadLinesKeepsConnection(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store := &testStore{}
	server, cancel := startServer(t, ctx, ingest.Config{MaxLineBytes: 256}, store, admission.NewCache(10))
	defer cancel()

	conn := dial(t, server)
	defer func() { _ = conn.Close() }()

	sendLine(t, conn, `{"broken`)
	sendLine(t, conn, `{"level":"INFO","message":"no hash","target":"t"}`)
	sendLine(t, conn, `{"level":"INFO","message":"`+strings.Repeat("x", 1000)+`","target":"t","hash":"h"}`)
	sendLine(t, conn, "")
	sendLine(t, conn, recordLine("h", 1))

	require.Eventually(t, func() bool {
		return len(store.stored()) >= 1
	}, 10*time.Second, 10*time.Millisecond)

	stored := store.stored()
	require.Len(t, stored, 1)
	assert.Equal(t, "seq-001", stored[0].Message)
}

func TestIngestTruncatesMessages(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store := &testStore{}
	server, cancel := startServer(t, ctx, ingest.Config{MaxLogLength: 8}, store, admission.NewCache(10))
	defer cancel()

	conn := dial(t, server)
	defer func() { _ = conn.Close() }()

	sendLine(t, conn, `{"level":"INFO","message":"héllo wörld","target":"t","hash":"h"}`)

	require.Eventually(t, func() bool {
		return len(store.stored()) >= 1
	}, 10*time.Second, 10*time.Millisecond)

	stored := store.stored()
	require.Len(t, stored, 1)
	assert.Equal(t, "héllo w", stored[0].Message)
}

func TestIngestAdmissionCap(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store := &testStore{}
	server, cancel := startServer(t, ctx, ingest.Config{}, store, admission.NewCache(2))
	defer cancel()

	conn := dial(t, server)
	defer func() { _ = conn.Close() }()

	sendLine(t, conn, recordLine("A", 0))
	sendLine(t, conn, recordLine("B", 1))
	sendLine(t, conn, recordLine("C", 2))
	sendLine(t, conn, recordLine("A", 3))

	require.Eventually(t, func() bool {
		return len(store.stored()) >= 3
	}, 10*time.Second, 10*time.Millisecond)

	// give the rejected record a moment to show up if the gate leaked it
	time.Sleep(50 * time.Millisecond)

	hashes := map[string]int{}
	for _, msg := range store.stored() {
		hashes[msg.Hash]++
	}
	assert.Equal(t, map[string]int{"A": 2, "B": 1}, hashes)
}

func TestIngestSurvivesStoreFailure(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store := &testStore{failing: 1}
	server, cancel := startServer(t, ctx, ingest.Config{}, store, admission.NewCache(10))
	defer cancel()

	conn := dial(t, server)
	defer func() { _ = conn.Close() }()

	sendLine(t, conn, recordLine("h", 0))
	time.Sleep(100 * time.Millisecond)
	atomic.StoreInt32(&store.failing, 0)
	sendLine(t, conn, recordLine("h", 1))

	require.Eventually(t, func() bool {
		return len(store.stored()) >= 1
	}, 10*time.Second, 10*time.Millisecond)

	stored := store.stored()
	// the batch that hit the failure is gone; later records still arrive
	assert.Equal(t, "seq-001", stored[len(stored)-1].Message)
}

func TestIngestHandlersIsolated(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store := &testStore{}
	server, cancel := startServer(t, ctx, ingest.Config{}, store, admission.NewCache(10))
	defer cancel()

	first := dial(t, server)
	second := dial(t, server)
	defer func() { _ = second.Close() }()

	// abruptly closing one connection must not affect the other
	sendLine(t, first, recordLine("a", 0))
	require.NoError(t, first.Close())

	sendLine(t, second, recordLine("b", 1))
	require.Eventually(t, func() bool {
		for _, msg := range store.stored() {
			if msg.Hash == "b" {
				return true
			}
		}
		return false
	}, 10*time.Second, 10*time.Millisecond)
}

func TestIngestShutdownDrains(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store := &testStore{}
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	server := ingest.NewServer(zap.NewNop(), ingest.Config{}, store, admission.NewCache(10), listener)

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Run(runCtx) }()

	conn := dial(t, server)
	sendLine(t, conn, recordLine("h", 0))
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		return len(store.stored()) >= 1
	}, 10*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}
