// Copyright (C) 2026 Ironlog Authors.
// See LICENSE for copying information.

package ingest

import (
	"context"

	"go.uber.org/zap"

	"github.com/heety313/ironlog/pkg/logmsg"
)

// runWriter is the single consumer of the writer channel. It accumulates
// records and commits a batch when it reaches the batch size or when no
// record is immediately available, bounding both transaction count and
// latency. It exits once the channel is closed and drained.
//
// The writer uses its own context so batches still in the queue at shutdown
// are flushed rather than aborted.
func (server *Server) runWriter() {
	ctx := context.Background()
	batch := make([]logmsg.LogMessage, 0, server.config.BatchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := server.store.InsertBatch(ctx, batch); err != nil {
			// the store is local; a failed commit means disk trouble that a
			// retry cannot mask. Drop the batch and keep writing.
			server.log.Error("failed to write batch, dropping it",
				zap.Int("records", len(batch)),
				zap.Error(err))
		}
		batch = batch[:0]
	}

	for msg := range server.queue {
		batch = append(batch, msg)

	gather:
		for len(batch) < server.config.BatchSize {
			select {
			case next, ok := <-server.queue:
				if !ok {
					break gather
				}
				batch = append(batch, next)
			default:
				break gather
			}
		}
		flush()
	}
	flush()
}
