package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/uber-go/tally"
	"github.com/vjranagit/timesync/pkg/timeseries"
	"github.com/vjranagit/timesync/pkg/types"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrResourceNotFound is returned for a path that was never written.
var ErrResourceNotFound = errors.New("resource not found")

var (
	dataPrefix = []byte("data/")
	metaPrefix = []byte("meta/")
)

// Storage interface defines the contract for time-series storage
type Storage interface {
	// Write merges samples into storage. A sample replaces a stored sample
	// with the same timestamp.
	Write(ctx context.Context, req *types.WriteRequest) error

	// Query returns the samples in [Start, End) of all matching resources
	Query(ctx context.Context, req *types.QueryRequest) (*types.QueryResult, error)

	// Series returns an in-memory snapshot of one resource covering
	// [start, end), plus the last sample before start and the first sample
	// at or after end so values can be interpolated up to the edges.
	Series(ctx context.Context, tenantID, path string, start, end int64) (*timeseries.MemorySeries, error)

	// Resources lists the resources of a tenant matching all selectors
	Resources(ctx context.Context, tenantID string, selectors map[string]string) ([]types.Resource, error)

	// Close closes the storage
	Close() error
}

// Config holds storage configuration
type Config struct {
	Path             string
	RetentionDays    int
	CompressionLevel int
	// BlockSpan is the width of one stored block in timestamp units.
	BlockSpan   int64
	CacheSizeMB int
	CacheTTL    time.Duration
}

// DefaultConfig returns default storage configuration
func DefaultConfig() *Config {
	return &Config{
		Path:             "./data",
		RetentionDays:    0,
		CompressionLevel: 3,
		BlockSpan:        3600000,
		CacheSizeMB:      64,
		CacheTTL:         5 * time.Minute,
	}
}

// Options carries the collaborators of a store.
type Options struct {
	Logger *zap.Logger
	Scope  tally.Scope
}

type storageMetrics struct {
	samplesWritten tally.Counter
	blocksRead     tally.Counter
	cacheHits      tally.Counter
	cacheMisses    tally.Counter
	resources      tally.Gauge
}

func newStorageMetrics(scope tally.Scope) storageMetrics {
	return storageMetrics{
		samplesWritten: scope.Counter("samples_written"),
		blocksRead:     scope.Counter("blocks_read"),
		cacheHits:      scope.Counter("cache_hits"),
		cacheMisses:    scope.Counter("cache_misses"),
		resources:      scope.Gauge("resources"),
	}
}

// badgerStorage implements Storage using BadgerDB
type badgerStorage struct {
	cfg        *Config
	db         *badger.DB
	index      *Index
	compressor *Compressor
	cache      *BlockCache
	logger     *zap.Logger
	metrics    storageMetrics
	mu         sync.RWMutex
}

// NewStorage opens the store under cfg.Path and loads its resource index.
func NewStorage(cfg *Config, opts Options) (Storage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.BlockSpan <= 0 {
		return nil, fmt.Errorf("block span must be positive, got %d", cfg.BlockSpan)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Scope == nil {
		opts.Scope = tally.NoopScope
	}

	bopts := badger.DefaultOptions(filepath.Join(cfg.Path, "badger"))
	bopts.Logger = newBadgerLogger(opts.Logger)

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	compressor, err := NewCompressor(cfg.CompressionLevel)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create compressor: %w", err)
	}

	s := &badgerStorage{
		cfg:        cfg,
		db:         db,
		index:      NewIndex(),
		compressor: compressor,
		logger:     opts.Logger,
		metrics:    newStorageMetrics(opts.Scope),
	}

	if cfg.CacheSizeMB > 0 {
		s.cache, err = NewBlockCache(int64(cfg.CacheSizeMB)<<20, cfg.CacheTTL)
		if err != nil {
			return nil, multierr.Append(err, s.Close())
		}
	}

	if err := s.loadIndex(); err != nil {
		return nil, multierr.Append(err, s.Close())
	}
	s.metrics.resources.Update(float64(s.index.SeriesCount()))
	s.logger.Info("opened storage",
		zap.String("path", cfg.Path),
		zap.Int("resources", s.index.SeriesCount()),
	)

	return s, nil
}

func (s *badgerStorage) loadIndex() error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = metaPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				return s.index.Restore(val)
			})
			if err != nil {
				return fmt.Errorf("failed to load index: %w", err)
			}
		}
		return nil
	})
}

// Write implements Storage.Write
func (s *badgerStorage) Write(ctx context.Context, req *types.WriteRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, series := range req.Series {
		if err := ctx.Err(); err != nil {
			return err
		}
		if series.Resource.Kind == timeseries.KindInvalid {
			return fmt.Errorf("%w: resource %s has no value kind",
				timeseries.ErrInvalidArgument, series.Resource.Path)
		}

		seriesID, err := s.index.AddSeries(req.TenantID, &series.Resource)
		if err != nil {
			return fmt.Errorf("failed to index series: %w", err)
		}
		meta, _ := s.index.GetSeries(seriesID)

		blocks := s.groupSamplesByBlock(series.Samples)
		err = s.db.Update(func(txn *badger.Txn) error {
			for blockTime, samples := range blocks {
				key := generateKey(req.TenantID, seriesID, blockTime)
				if err := s.mergeBlock(txn, key, meta.Resource.Kind, samples); err != nil {
					return fmt.Errorf("failed to write block: %w", err)
				}
			}

			if len(series.Samples) > 0 {
				minTime, maxTime := sampleRange(series.Samples)
				if err := s.index.UpdateTimeRange(seriesID, minTime, maxTime); err != nil {
					return err
				}
			}
			data, err := s.index.Marshal(seriesID)
			if err != nil {
				return err
			}
			return txn.Set(metaKey(seriesID), data)
		})
		if err != nil {
			return err
		}

		for blockTime := range blocks {
			s.invalidate(generateKey(req.TenantID, seriesID, blockTime))
		}
		s.metrics.samplesWritten.Inc(int64(len(series.Samples)))
	}

	s.metrics.resources.Update(float64(s.index.SeriesCount()))
	s.logger.Debug("wrote samples",
		zap.String("tenant", req.TenantID),
		zap.Int("series", len(req.Series)),
	)
	return nil
}

func (s *badgerStorage) invalidate(key []byte) {
	if s.cache != nil {
		s.cache.Invalidate(key)
	}
}

// mergeBlock merges samples into the block stored under key.
func (s *badgerStorage) mergeBlock(txn *badger.Txn, key []byte, kind timeseries.Kind, samples []timeseries.Sample) error {
	var stored []timeseries.Sample
	item, err := txn.Get(key)
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
	case err != nil:
		return err
	default:
		err = item.Value(func(val []byte) error {
			var err error
			stored, err = s.compressor.DecodeBlock(val)
			return err
		})
		if err != nil {
			return err
		}
	}
	payload, err := s.compressor.EncodeBlock(kind, mergeSamples(stored, samples))
	if err != nil {
		return err
	}
	entry := badger.NewEntry(key, payload)
	if s.cfg.RetentionDays > 0 {
		entry = entry.WithTTL(time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
	}
	return txn.SetEntry(entry)
}

// groupSamplesByBlock groups samples into blocks of cfg.BlockSpan
func (s *badgerStorage) groupSamplesByBlock(samples []timeseries.Sample) map[int64][]timeseries.Sample {
	blocks := make(map[int64][]timeseries.Sample)
	for _, sample := range samples {
		blockTime := s.blockOf(sample.Timestamp)
		blocks[blockTime] = append(blocks[blockTime], sample)
	}
	return blocks
}

// blockOf rounds t down to the start of its block.
func (s *badgerStorage) blockOf(t int64) int64 {
	span := s.cfg.BlockSpan
	block := t / span * span
	if t < 0 && block != t {
		if block < math.MinInt64+span {
			return math.MinInt64
		}
		block -= span
	}
	return block
}

// Query implements Storage.Query
func (s *badgerStorage) Query(ctx context.Context, req *types.QueryRequest) (*types.QueryResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var seriesIDs []uint64
	if req.Path != "" {
		if meta, ok := s.index.Lookup(req.TenantID, req.Path); ok && matches(meta, req.Selectors) {
			seriesIDs = append(seriesIDs, meta.ID)
		}
	} else {
		seriesIDs = s.index.FindSeries(req.TenantID, req.Selectors)
	}

	result := &types.QueryResult{
		Series: make([]types.Series, 0, len(seriesIDs)),
	}
	for _, seriesID := range seriesIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		meta, ok := s.index.GetSeries(seriesID)
		if !ok {
			continue
		}

		samples, err := s.readRange(req.TenantID, seriesID, req.Start, req.End)
		if err != nil {
			return nil, err
		}
		if len(samples) > 0 {
			result.Series = append(result.Series, types.Series{
				Resource: meta.Resource,
				Samples:  samples,
			})
		}
	}

	return result, nil
}

// Series implements Storage.Series
func (s *badgerStorage) Series(ctx context.Context, tenantID, path string, start, end int64) (*timeseries.MemorySeries, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta, ok := s.index.Lookup(tenantID, path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrResourceNotFound, path)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	samples, err := s.readRange(tenantID, meta.ID, start, end)
	if err != nil {
		return nil, err
	}
	series := timeseries.NewMemorySeries(meta.Resource.Mode, samples...)

	before, ok, err := s.lastBefore(tenantID, meta.ID, start)
	if err != nil {
		return nil, err
	}
	if ok {
		series.Add(before)
	}
	after, ok, err := s.firstFrom(tenantID, meta.ID, end)
	if err != nil {
		return nil, err
	}
	if ok {
		series.Add(after)
	}
	return series, nil
}

// Resources implements Storage.Resources
func (s *badgerStorage) Resources(ctx context.Context, tenantID string, selectors map[string]string) ([]types.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ids := s.index.FindSeries(tenantID, selectors)
	out := make([]types.Resource, 0, len(ids))
	for _, id := range ids {
		meta, _ := s.index.GetSeries(id)
		out = append(out, meta.Resource)
	}
	return out, nil
}

// readRange collects the samples in [start, end) in timestamp order.
func (s *badgerStorage) readRange(tenantID string, seriesID uint64, start, end int64) ([]timeseries.Sample, error) {
	if end <= start {
		return nil, nil
	}
	var out []timeseries.Sample
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = seriesPrefix(tenantID, seriesID)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(generateKey(tenantID, seriesID, s.blockOf(start))); it.Valid(); it.Next() {
			if blockTimeOf(it.Item().Key()) >= end {
				break
			}
			samples, err := s.readBlock(it.Item())
			if err != nil {
				return err
			}
			for _, sample := range samples {
				if sample.Timestamp >= start && sample.Timestamp < end {
					out = append(out, sample)
				}
			}
		}
		return nil
	})
	return out, err
}

// lastBefore finds the last sample strictly before t.
func (s *badgerStorage) lastBefore(tenantID string, seriesID uint64, t int64) (timeseries.Sample, bool, error) {
	var (
		found  timeseries.Sample
		exists bool
	)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = seriesPrefix(tenantID, seriesID)
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(generateKey(tenantID, seriesID, s.blockOf(t))); it.Valid(); it.Next() {
			samples, err := s.readBlock(it.Item())
			if err != nil {
				return err
			}
			for i := len(samples) - 1; i >= 0; i-- {
				if samples[i].Timestamp < t {
					found, exists = samples[i], true
					return nil
				}
			}
		}
		return nil
	})
	return found, exists, err
}

// firstFrom finds the first sample at or after t.
func (s *badgerStorage) firstFrom(tenantID string, seriesID uint64, t int64) (timeseries.Sample, bool, error) {
	var (
		found  timeseries.Sample
		exists bool
	)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = seriesPrefix(tenantID, seriesID)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(generateKey(tenantID, seriesID, s.blockOf(t))); it.Valid(); it.Next() {
			samples, err := s.readBlock(it.Item())
			if err != nil {
				return err
			}
			for _, sample := range samples {
				if sample.Timestamp >= t {
					found, exists = sample, true
					return nil
				}
			}
		}
		return nil
	})
	return found, exists, err
}

// readBlock decodes a block, going through the block cache
func (s *badgerStorage) readBlock(item *badger.Item) ([]timeseries.Sample, error) {
	key := item.KeyCopy(nil)
	if s.cache != nil {
		if samples, ok := s.cache.Get(key); ok {
			s.metrics.cacheHits.Inc(1)
			return samples, nil
		}
		s.metrics.cacheMisses.Inc(1)
	}

	var samples []timeseries.Sample
	err := item.Value(func(val []byte) error {
		var err error
		samples, err = s.compressor.DecodeBlock(val)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read block: %w", err)
	}
	s.metrics.blocksRead.Inc(1)

	if s.cache != nil {
		s.cache.Put(key, samples)
	}
	return samples, nil
}

// Close implements Storage.Close
func (s *badgerStorage) Close() error {
	var err error
	if s.cache != nil {
		s.cache.Close()
	}
	if s.compressor != nil {
		s.compressor.Close()
	}
	if s.db != nil {
		err = multierr.Append(err, s.db.Close())
	}
	return err
}

// generateKey generates a storage key for a time block. Block times are
// stored with the sign bit flipped so keys sort in time order.
func generateKey(tenantID string, seriesID uint64, blockTime int64) []byte {
	buf := bytes.NewBuffer(seriesPrefix(tenantID, seriesID))
	binary.Write(buf, binary.BigEndian, uint64(blockTime)^(1<<63))
	return buf.Bytes()
}

func seriesPrefix(tenantID string, seriesID uint64) []byte {
	buf := new(bytes.Buffer)
	buf.Write(dataPrefix)
	buf.WriteString(tenantID)
	buf.WriteByte('/')
	binary.Write(buf, binary.BigEndian, seriesID)
	buf.WriteByte('/')
	return buf.Bytes()
}

func blockTimeOf(key []byte) int64 {
	return int64(binary.BigEndian.Uint64(key[len(key)-8:]) ^ (1 << 63))
}

func metaKey(seriesID uint64) []byte {
	key := append([]byte(nil), metaPrefix...)
	return binary.BigEndian.AppendUint64(key, seriesID)
}

func sampleRange(samples []timeseries.Sample) (int64, int64) {
	minTime, maxTime := samples[0].Timestamp, samples[0].Timestamp
	for _, sample := range samples[1:] {
		if sample.Timestamp < minTime {
			minTime = sample.Timestamp
		}
		if sample.Timestamp > maxTime {
			maxTime = sample.Timestamp
		}
	}
	return minTime, maxTime
}

func matches(meta *seriesMetadata, selectors map[string]string) bool {
	for k, v := range selectors {
		if meta.Resource.Labels[k] != v {
			return false
		}
	}
	return true
}

// mergeSamples merges incoming into stored, sorted by timestamp. Incoming
// samples win on equal timestamps; among themselves the last one wins.
func mergeSamples(stored, incoming []timeseries.Sample) []timeseries.Sample {
	byTime := make(map[int64]timeseries.Sample, len(stored)+len(incoming))
	for _, sample := range stored {
		byTime[sample.Timestamp] = sample
	}
	for _, sample := range incoming {
		byTime[sample.Timestamp] = sample
	}
	out := make([]timeseries.Sample, 0, len(byTime))
	for _, sample := range byTime {
		out = append(out, sample)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}
