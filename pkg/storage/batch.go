package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vjranagit/timesync/pkg/timeseries"
	"github.com/vjranagit/timesync/pkg/types"
	"go.uber.org/zap"
)

// BatchWriter buffers samples and writes them in batches. A batch is written
// once it holds batchSize samples, on every flush interval and on Close.
type BatchWriter struct {
	storage    Storage
	logger     *zap.Logger
	batchSize  int
	interval   time.Duration
	mu         sync.Mutex
	buffer     map[batchKey]*types.Series
	order      []batchKey
	buffered   int
	flushTimer *time.Timer
	closed     bool
}

type batchKey struct {
	tenantID string
	path     string
}

// NewBatchWriter creates a new batch writer. A zero interval disables the
// periodic flush.
func NewBatchWriter(storage Storage, logger *zap.Logger, batchSize int, interval time.Duration) *BatchWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if batchSize <= 0 {
		batchSize = 1
	}
	bw := &BatchWriter{
		storage:   storage,
		logger:    logger,
		batchSize: batchSize,
		interval:  interval,
		buffer:    make(map[batchKey]*types.Series),
	}
	if interval > 0 {
		bw.flushTimer = time.AfterFunc(interval, bw.autoFlush)
	}
	return bw
}

// Add buffers samples for a resource.
func (bw *BatchWriter) Add(ctx context.Context, tenantID string, res types.Resource, samples ...timeseries.Sample) error {
	bw.mu.Lock()
	defer bw.mu.Unlock()

	if bw.closed {
		return fmt.Errorf("batch writer is closed")
	}

	key := batchKey{tenantID: tenantID, path: res.Path}
	series, ok := bw.buffer[key]
	if !ok {
		series = &types.Series{Resource: res}
		bw.buffer[key] = series
		bw.order = append(bw.order, key)
	}
	series.Resource = res
	series.Samples = append(series.Samples, samples...)
	bw.buffered += len(samples)

	if bw.buffered >= bw.batchSize {
		return bw.flushLocked(ctx)
	}
	return nil
}

// Flush flushes the buffer
func (bw *BatchWriter) Flush(ctx context.Context) error {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return bw.flushLocked(ctx)
}

// flushLocked flushes the buffer (must hold lock)
func (bw *BatchWriter) flushLocked(ctx context.Context) error {
	if len(bw.order) == 0 {
		return nil
	}

	// one request per tenant, resources in the order they were first added
	var tenants []string
	requests := make(map[string]*types.WriteRequest)
	for _, key := range bw.order {
		req, ok := requests[key.tenantID]
		if !ok {
			req = &types.WriteRequest{TenantID: key.tenantID}
			requests[key.tenantID] = req
			tenants = append(tenants, key.tenantID)
		}
		req.Series = append(req.Series, *bw.buffer[key])
	}

	for _, tenantID := range tenants {
		if err := bw.storage.Write(ctx, requests[tenantID]); err != nil {
			return fmt.Errorf("batch write failed: %w", err)
		}
	}

	bw.logger.Debug("flushed batch",
		zap.Int("resources", len(bw.order)),
		zap.Int("samples", bw.buffered),
	)
	bw.buffer = make(map[batchKey]*types.Series)
	bw.order = bw.order[:0]
	bw.buffered = 0
	return nil
}

// autoFlush periodically flushes the buffer
func (bw *BatchWriter) autoFlush() {
	if err := bw.Flush(context.Background()); err != nil {
		bw.logger.Error("periodic flush failed", zap.Error(err))
	}
	bw.mu.Lock()
	defer bw.mu.Unlock()
	if !bw.closed {
		bw.flushTimer.Reset(bw.interval)
	}
}

// Close flushes what is left and stops the periodic flush.
func (bw *BatchWriter) Close(ctx context.Context) error {
	bw.mu.Lock()
	defer bw.mu.Unlock()

	if bw.flushTimer != nil {
		bw.flushTimer.Stop()
	}
	bw.closed = true
	return bw.flushLocked(ctx)
}
