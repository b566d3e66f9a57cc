package storage

import (
	"errors"
	"fmt"
	"testing"

	"github.com/vjranagit/timesync/pkg/timeseries"
	"github.com/vjranagit/timesync/pkg/types"
)

func resource(path string, labels map[string]string) types.Resource {
	return types.Resource{Path: path, Labels: labels, Mode: timeseries.Steps, Kind: timeseries.KindFloat64}
}

func TestIndexAddSeries(t *testing.T) {
	idx := NewIndex()

	res := resource("line1/pump/pressure", map[string]string{"unit": "bar"})
	id, err := idx.AddSeries("t", &res)
	if err != nil {
		t.Fatalf("Failed to add series: %v", err)
	}

	// Adding same series again should return same ID
	res.Mode = timeseries.Linear
	id2, err := idx.AddSeries("t", &res)
	if err != nil {
		t.Fatalf("Failed to add series again: %v", err)
	}
	if id != id2 {
		t.Errorf("Expected same ID for duplicate series: %d != %d", id, id2)
	}
	if idx.SeriesCount() != 1 {
		t.Errorf("Expected 1 series, got %d", idx.SeriesCount())
	}

	meta, ok := idx.Lookup("t", "line1/pump/pressure")
	if !ok {
		t.Fatal("Series not found by path")
	}
	if meta.Resource.Mode != timeseries.Linear {
		t.Errorf("Expected mode to be replaced, got %s", meta.Resource.Mode)
	}

	if _, ok := idx.Lookup("other", "line1/pump/pressure"); ok {
		t.Error("Paths must be scoped to their tenant")
	}

	res.Kind = timeseries.KindString
	if _, err := idx.AddSeries("t", &res); !errors.Is(err, timeseries.ErrInvalidArgument) {
		t.Errorf("Expected kind change to fail, got %v", err)
	}

	empty := resource("", nil)
	if _, err := idx.AddSeries("t", &empty); !errors.Is(err, timeseries.ErrInvalidArgument) {
		t.Errorf("Expected empty path to fail, got %v", err)
	}
}

func TestIndexFindSeries(t *testing.T) {
	idx := NewIndex()

	resources := []types.Resource{
		resource("c", map[string]string{"area": "north", "unit": "bar"}),
		resource("a", map[string]string{"area": "south", "unit": "bar"}),
		resource("b", map[string]string{"area": "north", "unit": "celsius"}),
	}
	for i := range resources {
		if _, err := idx.AddSeries("t", &resources[i]); err != nil {
			t.Fatalf("Failed to add series %d: %v", i, err)
		}
	}

	found := idx.FindSeries("t", map[string]string{"area": "north"})
	if len(found) != 2 {
		t.Fatalf("Expected 2 series with area=north, got %d", len(found))
	}
	first, _ := idx.GetSeries(found[0])
	if first.Resource.Path != "b" {
		t.Errorf("Expected results ordered by path, got %s first", first.Resource.Path)
	}

	found = idx.FindSeries("t", map[string]string{"area": "north", "unit": "bar"})
	if len(found) != 1 {
		t.Errorf("Expected 1 series with area=north and unit=bar, got %d", len(found))
	}

	if found := idx.FindSeries("t", nil); len(found) != 3 {
		t.Errorf("Expected all 3 series without selectors, got %d", len(found))
	}
	if found := idx.FindSeries("other", nil); len(found) != 0 {
		t.Errorf("Expected no series for another tenant, got %d", len(found))
	}
	if found := idx.FindSeries("t", map[string]string{"area": "east"}); len(found) != 0 {
		t.Errorf("Expected 0 series with area=east, got %d", len(found))
	}
}

func TestIndexRelabel(t *testing.T) {
	idx := NewIndex()

	res := resource("a", map[string]string{"area": "north"})
	if _, err := idx.AddSeries("t", &res); err != nil {
		t.Fatalf("Failed to add series: %v", err)
	}
	res.Labels = map[string]string{"area": "south"}
	if _, err := idx.AddSeries("t", &res); err != nil {
		t.Fatalf("Failed to relabel series: %v", err)
	}

	if found := idx.FindSeries("t", map[string]string{"area": "north"}); len(found) != 0 {
		t.Errorf("Expected old label to be dropped, got %d matches", len(found))
	}
	if found := idx.FindSeries("t", map[string]string{"area": "south"}); len(found) != 1 {
		t.Errorf("Expected new label to match, got %d matches", len(found))
	}
}

func TestIndexUpdateTimeRange(t *testing.T) {
	idx := NewIndex()

	res := resource("a", nil)
	id, err := idx.AddSeries("t", &res)
	if err != nil {
		t.Fatalf("Failed to add series: %v", err)
	}

	// zero and negative timestamps are ordinary values
	if err := idx.UpdateTimeRange(id, 0, 0); err != nil {
		t.Fatalf("Failed to update time range: %v", err)
	}
	if err := idx.UpdateTimeRange(id, -500, 20); err != nil {
		t.Fatalf("Failed to update time range: %v", err)
	}

	meta, _ := idx.GetSeries(id)
	if meta.MinTime != -500 || meta.MaxTime != 20 {
		t.Errorf("Expected range [-500, 20], got [%d, %d]", meta.MinTime, meta.MaxTime)
	}

	if err := idx.UpdateTimeRange(42, 0, 1); err == nil {
		t.Error("Expected error for unknown series")
	}
}

func TestCalculateFingerprint(t *testing.T) {
	if calculateFingerprint("t", "a") != calculateFingerprint("t", "a") {
		t.Error("Fingerprints must be stable")
	}
	if calculateFingerprint("t", "ab") == calculateFingerprint("ta", "b") {
		t.Error("Tenant and path must be separated")
	}
}

func TestIndexMarshalRestore(t *testing.T) {
	idx := NewIndex()

	res := resource("a", map[string]string{"unit": "bar"})
	res.Mode = timeseries.Nearest
	id, err := idx.AddSeries("t", &res)
	if err != nil {
		t.Fatalf("Failed to add series: %v", err)
	}
	if err := idx.UpdateTimeRange(id, 3, 9); err != nil {
		t.Fatalf("Failed to update time range: %v", err)
	}

	data, err := idx.Marshal(id)
	if err != nil {
		t.Fatalf("Failed to marshal series: %v", err)
	}

	restored := NewIndex()
	if err := restored.Restore(data); err != nil {
		t.Fatalf("Failed to restore series: %v", err)
	}
	meta, ok := restored.Lookup("t", "a")
	if !ok {
		t.Fatal("Restored series not found")
	}
	if meta.Resource.Mode != timeseries.Nearest || meta.Resource.Kind != timeseries.KindFloat64 {
		t.Errorf("Unexpected restored resource %+v", meta.Resource)
	}
	if meta.MinTime != 3 || meta.MaxTime != 9 || !meta.HasData {
		t.Errorf("Unexpected restored range [%d, %d]", meta.MinTime, meta.MaxTime)
	}
	if found := restored.FindSeries("t", map[string]string{"unit": "bar"}); len(found) != 1 {
		t.Errorf("Expected restored labels to be indexed, got %d matches", len(found))
	}
}

func BenchmarkIndexFindSeries(b *testing.B) {
	idx := NewIndex()

	for i := 0; i < 10000; i++ {
		res := resource(fmt.Sprintf("line/%d", i), map[string]string{
			"area": fmt.Sprintf("area-%d", i%10),
		})
		idx.AddSeries("t", &res)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		idx.FindSeries("t", map[string]string{"area": "area-3"})
	}
}
