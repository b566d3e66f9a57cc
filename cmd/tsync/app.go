package main

import (
	"context"
	"fmt"
	"io"
	"math"

	"github.com/vjranagit/timesync/internal/config"
	"github.com/vjranagit/timesync/internal/logging"
	"github.com/vjranagit/timesync/pkg/storage"
	"github.com/vjranagit/timesync/pkg/timeseries"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// app bundles what every subcommand needs after startup.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	store  storage.Storage
	tenant string
}

func openApp() (*app, error) {
	cfg, err := config.Load(gFlags.configPath)
	if err != nil {
		return nil, err
	}
	if gFlags.tenant != "" {
		cfg.Storage.TenantID = gFlags.tenant
	}
	if gFlags.logLevel != "" {
		cfg.Log.Level = gFlags.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.Log.Level)
	if err != nil {
		return nil, err
	}

	store, err := storage.NewStorage(cfg.ToStorageConfig(), storage.Options{Logger: logger})
	if err != nil {
		logger.Sync()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	logger.Debug("storage opened",
		zap.String("path", cfg.Storage.Path),
		zap.String("tenant", cfg.Storage.TenantID))

	return &app{cfg: cfg, logger: logger, store: store, tenant: cfg.Storage.TenantID}, nil
}

func (a *app) Close() error {
	err := a.store.Close()
	// stderr sync fails on some platforms; nothing to report there
	_ = a.logger.Sync()
	return err
}

// loadSeries reads one snapshot per path covering [start, end) plus the
// neighbouring samples on both sides.
func (a *app) loadSeries(ctx context.Context, paths []string, start, end int64) ([]timeseries.Series, error) {
	forced, hasForced, err := a.cfg.InterpolationMode()
	if err != nil {
		return nil, err
	}

	out := make([]timeseries.Series, 0, len(paths))
	var errs error
	for _, path := range paths {
		s, err := a.store.Series(ctx, a.tenant, path, start, end)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if hasForced {
			s.SetInterpolationMode(forced)
		}
		a.logger.Debug("loaded series", zap.String("path", path), zap.Int("samples", s.Size()))
		out = append(out, s)
	}
	if errs != nil {
		return nil, errs
	}
	return out, nil
}

// boundaries collects the samples just outside [start, end) for each
// series, to be handed to the merge iterator.
func boundaries(series []timeseries.Series, start, end int64) (lower, upper map[int]timeseries.Sample) {
	lower = make(map[int]timeseries.Sample)
	upper = make(map[int]timeseries.Sample)
	for i, s := range series {
		if start > math.MinInt64 {
			if prev, ok := s.Previous(start - 1); ok {
				lower[i] = prev
			}
		}
		if next, ok := s.Next(end); ok {
			upper[i] = next
		}
	}
	return lower, upper
}

func modesOf(series []timeseries.Series) []timeseries.InterpolationMode {
	modes := make([]timeseries.InterpolationMode, len(series))
	for i, s := range series {
		modes[i] = s.InterpolationMode()
	}
	return modes
}

func iterators(series []timeseries.Series, start, end int64) []timeseries.SampleIterator {
	iters := make([]timeseries.SampleIterator, len(series))
	for i, s := range series {
		iters[i] = s.Iterator(start, end)
	}
	return iters
}

func formatSample(s timeseries.Sample) string {
	if s.IsGood() {
		return s.Value.String()
	}
	return s.Value.String() + "!"
}

func writeRow(w io.Writer, ts int64, cells []string) error {
	if _, err := fmt.Fprintf(w, "%d", ts); err != nil {
		return err
	}
	for _, c := range cells {
		if _, err := fmt.Fprintf(w, "\t%s", c); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w)
	return err
}
