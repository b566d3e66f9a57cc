package main

import (
	"bytes"
	"context"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vjranagit/timesync/pkg/combine"
	"github.com/vjranagit/timesync/pkg/storage"
	"github.com/vjranagit/timesync/pkg/timeseries"
	"github.com/vjranagit/timesync/pkg/types"
)

func f64(ts int64, v float64) timeseries.Sample {
	return timeseries.NewSample(ts, timeseries.Float64Value(v))
}

var everything = timeRange{start: math.MinInt64, end: math.MaxInt64}

func boilerAndValve() []timeseries.Series {
	return []timeseries.Series{
		timeseries.NewMemorySeries(timeseries.Linear, f64(0, 10), f64(10, 20)),
		timeseries.NewMemorySeries(timeseries.Steps, f64(5, 100)),
	}
}

func TestWriteSync(t *testing.T) {
	it, err := newSyncIterator(boilerAndValve(), everything, nil, 2)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, writeSync(&out, it))
	assert.Equal(t, "0\t10\t-\n5\t(15)\t100\n10\t20\t(100)\n", out.String())
}

func TestWriteSyncStepRuler(t *testing.T) {
	it, err := newSyncIterator(boilerAndValve(), everything, []int{1}, 0)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, writeSync(&out, it))
	assert.Equal(t, "5\t(15)\t100\n", out.String())
}

func TestWriteSyncWindowUsesBoundaries(t *testing.T) {
	series := []timeseries.Series{
		timeseries.NewMemorySeries(timeseries.Linear, f64(0, 0), f64(10, 10), f64(20, 20)),
		timeseries.NewMemorySeries(timeseries.Steps, f64(0, 1), f64(15, 2)),
	}
	it, err := newSyncIterator(series, timeRange{start: 5, end: 20}, nil, 0)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, writeSync(&out, it))
	assert.Equal(t, "10\t10\t(1)\n15\t(15)\t2\n", out.String())
}

func TestWriteAggregates(t *testing.T) {
	series := []timeseries.Series{
		timeseries.NewMemorySeries(timeseries.Linear, f64(0, 0), f64(10, 10)),
		timeseries.NewMemorySeries(timeseries.Steps, f64(0, 1), f64(5, 2)),
	}

	it, err := newIntegrateIterator(series, everything, false)
	require.NoError(t, err)
	var out bytes.Buffer
	require.NoError(t, writeAggregates(&out, it))
	assert.Equal(t, "0\t0\t0\n5\t12.5\t5\n10\t50\t15\n", out.String())

	it, err = newIntegrateIterator(series, everything, true)
	require.NoError(t, err)
	out.Reset()
	require.NoError(t, writeAggregates(&out, it))
	assert.Equal(t, "0\t0\t1\n5\t2.5\t1\n10\t7.5\t2\n", out.String())
}

func TestWriteSeriesCombined(t *testing.T) {
	fs, err := combine.NewFunctionSeries(boilerAndValve(), timeseries.KindFloat64, combine.Average)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, writeSeries(&out, fs, timeRange{start: 0, end: 11}))
	assert.Equal(t, "0\t10!\n5\t57.5\n10\t60\n", out.String())
}

func TestWriteResources(t *testing.T) {
	var out bytes.Buffer
	err := writeResources(&out, []types.Resource{{
		Path:   "plant/boiler/temperature",
		Labels: map[string]string{"unit": "C", "site": "north"},
		Mode:   timeseries.Linear,
		Kind:   timeseries.KindFloat64,
	}})
	require.NoError(t, err)
	assert.Equal(t, "plant/boiler/temperature\tfloat64\tlinear\tsite=north,unit=C\n", out.String())
}

func TestIngest(t *testing.T) {
	cfg := storage.DefaultConfig()
	cfg.Path = t.TempDir()
	cfg.BlockSpan = 100
	store, err := storage.NewStorage(cfg, storage.Options{})
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	res := types.Resource{Path: "plant/boiler/temperature", Mode: timeseries.Linear, Kind: timeseries.KindFloat64}
	input := "# boiler\n0,1.5\n150,2.5,bad\n300,4\n"

	n, err := ingest(ctx, store, nil, "plant", res, strings.NewReader(input), 2)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	series, err := store.Series(ctx, "plant", res.Path, math.MinInt64, math.MaxInt64)
	require.NoError(t, err)
	samples := series.Values(math.MinInt64, math.MaxInt64)
	require.Len(t, samples, 3)
	assert.Equal(t, timeseries.Bad, samples[1].Quality)
	assert.Equal(t, 4.0, samples[2].Value.Float64())

	_, err = ingest(ctx, store, nil, "plant", res, strings.NewReader("0,oops\n"), 2)
	assert.Error(t, err)
}
