package storage

import (
	"context"
	"testing"
	"time"

	"github.com/vjranagit/timesync/pkg/timeseries"
	"github.com/vjranagit/timesync/pkg/types"
)

func TestBatchWriterFlushesOnSize(t *testing.T) {
	store := openStorage(t, testConfig(t.TempDir()), Options{})
	defer store.Close()

	ctx := context.Background()
	bw := NewBatchWriter(store, nil, 3, 0)
	res := temperature().Resource

	for i := int64(0); i < 2; i++ {
		if err := bw.Add(ctx, "t", res, f64(i, float64(i))); err != nil {
			t.Fatalf("Failed to add: %v", err)
		}
	}
	resources, err := store.Resources(ctx, "t", nil)
	if err != nil {
		t.Fatalf("Failed to list resources: %v", err)
	}
	if len(resources) != 0 {
		t.Fatalf("Expected nothing written before the batch is full, got %d resources", len(resources))
	}

	if err := bw.Add(ctx, "t", res, f64(2, 2)); err != nil {
		t.Fatalf("Failed to add: %v", err)
	}
	series, err := store.Series(ctx, "t", res.Path, 0, 10)
	if err != nil {
		t.Fatalf("Failed to load series: %v", err)
	}
	if series.Size() != 3 {
		t.Errorf("Expected 3 samples after the batch filled, got %d", series.Size())
	}

	if err := bw.Close(ctx); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}
	if err := bw.Add(ctx, "t", res, f64(3, 3)); err == nil {
		t.Error("Expected error when adding to a closed writer")
	}
}

func TestBatchWriterGroupsTenants(t *testing.T) {
	store := openStorage(t, testConfig(t.TempDir()), Options{})
	defer store.Close()

	ctx := context.Background()
	bw := NewBatchWriter(store, nil, 100, 0)
	state := types.Resource{Path: "valve", Kind: timeseries.KindBool, Mode: timeseries.Steps}

	if err := bw.Add(ctx, "a", state, timeseries.NewSample(0, timeseries.BoolValue(true))); err != nil {
		t.Fatalf("Failed to add: %v", err)
	}
	if err := bw.Add(ctx, "b", state, timeseries.NewSample(0, timeseries.BoolValue(false))); err != nil {
		t.Fatalf("Failed to add: %v", err)
	}
	if err := bw.Add(ctx, "a", state, timeseries.NewSample(5, timeseries.BoolValue(false))); err != nil {
		t.Fatalf("Failed to add: %v", err)
	}
	if err := bw.Close(ctx); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}

	for tenant, size := range map[string]int{"a": 2, "b": 1} {
		series, err := store.Series(ctx, tenant, "valve", 0, 10)
		if err != nil {
			t.Fatalf("Failed to load series for %s: %v", tenant, err)
		}
		if series.Size() != size {
			t.Errorf("%s: expected %d samples, got %d", tenant, size, series.Size())
		}
	}
}

func TestBatchWriterPeriodicFlush(t *testing.T) {
	store := openStorage(t, testConfig(t.TempDir()), Options{})
	defer store.Close()

	ctx := context.Background()
	bw := NewBatchWriter(store, nil, 1000, 20*time.Millisecond)
	defer bw.Close(ctx)

	res := temperature().Resource
	if err := bw.Add(ctx, "t", res, f64(0, 1)); err != nil {
		t.Fatalf("Failed to add: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := store.Series(ctx, "t", res.Path, 0, 10); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("Expected the periodic flush to write the buffered sample")
}
