package storage

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/vjranagit/timesync/pkg/timeseries"
	"github.com/vjranagit/timesync/pkg/types"
)

const (
	tenantLabel = "__tenant__"
	pathLabel   = "__path__"
)

// Index manages the resource index
type Index struct {
	// Maps resource fingerprint to metadata
	series map[uint64]*seriesMetadata
	// Inverted index: label name -> label value -> series IDs
	labelIndex map[string]map[string][]uint64
}

// seriesMetadata holds metadata about a single resource
type seriesMetadata struct {
	ID       uint64
	TenantID string
	Resource types.Resource
	MinTime  int64
	MaxTime  int64
	HasData  bool
}

// NewIndex creates a new index
func NewIndex() *Index {
	return &Index{
		series:     make(map[uint64]*seriesMetadata),
		labelIndex: make(map[string]map[string][]uint64),
	}
}

// AddSeries adds a resource to the index. A resource keeps the value kind it
// was first written with; the interpolation mode and labels of an existing
// resource are replaced.
func (idx *Index) AddSeries(tenantID string, res *types.Resource) (uint64, error) {
	if res.Path == "" {
		return 0, fmt.Errorf("%w: empty resource path", timeseries.ErrInvalidArgument)
	}
	fingerprint := calculateFingerprint(tenantID, res.Path)

	if meta, exists := idx.series[fingerprint]; exists {
		if meta.Resource.Kind != res.Kind {
			return 0, fmt.Errorf("%w: resource %s holds %s values, not %s",
				timeseries.ErrInvalidArgument, res.Path, meta.Resource.Kind, res.Kind)
		}
		idx.unindexLabels(meta)
		meta.Resource.Mode = res.Mode
		meta.Resource.Labels = copyLabels(res.Labels)
		idx.indexLabels(meta)
		return meta.ID, nil
	}

	meta := &seriesMetadata{
		ID:       fingerprint,
		TenantID: tenantID,
		Resource: types.Resource{
			Path:   res.Path,
			Labels: copyLabels(res.Labels),
			Mode:   res.Mode,
			Kind:   res.Kind,
		},
	}
	idx.series[fingerprint] = meta
	idx.indexLabels(meta)
	return fingerprint, nil
}

func (idx *Index) indexLabels(meta *seriesMetadata) {
	for name, value := range meta.labels() {
		if idx.labelIndex[name] == nil {
			idx.labelIndex[name] = make(map[string][]uint64)
		}
		idx.labelIndex[name][value] = append(idx.labelIndex[name][value], meta.ID)
	}
}

func (idx *Index) unindexLabels(meta *seriesMetadata) {
	for name, value := range meta.labels() {
		ids := idx.labelIndex[name][value]
		for i, id := range ids {
			if id == meta.ID {
				ids = append(ids[:i:i], ids[i+1:]...)
				break
			}
		}
		if len(ids) == 0 {
			delete(idx.labelIndex[name], value)
			continue
		}
		idx.labelIndex[name][value] = ids
	}
}

// labels returns the user labels plus the tenant and path pseudo labels.
func (meta *seriesMetadata) labels() map[string]string {
	out := make(map[string]string, len(meta.Resource.Labels)+2)
	for k, v := range meta.Resource.Labels {
		out[k] = v
	}
	out[tenantLabel] = meta.TenantID
	out[pathLabel] = meta.Resource.Path
	return out
}

// GetSeries retrieves series metadata by ID
func (idx *Index) GetSeries(id uint64) (*seriesMetadata, bool) {
	meta, ok := idx.series[id]
	return meta, ok
}

// Lookup finds the resource stored under path.
func (idx *Index) Lookup(tenantID, path string) (*seriesMetadata, bool) {
	return idx.GetSeries(calculateFingerprint(tenantID, path))
}

// FindSeries finds the resources of a tenant matching all label selectors,
// ordered by path.
func (idx *Index) FindSeries(tenantID string, labelSelectors map[string]string) []uint64 {
	selectors := make(map[string]string, len(labelSelectors)+1)
	for k, v := range labelSelectors {
		selectors[k] = v
	}
	selectors[tenantLabel] = tenantID

	var result []uint64
	first := true
	for labelName, labelValue := range selectors {
		seriesIDs, ok := idx.labelIndex[labelName][labelValue]
		if !ok {
			return nil
		}

		if first {
			result = append([]uint64(nil), seriesIDs...)
			first = false
		} else {
			result = intersect(result, seriesIDs)
		}

		if len(result) == 0 {
			return nil
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return idx.series[result[i]].Resource.Path < idx.series[result[j]].Resource.Path
	})
	return result
}

// UpdateTimeRange widens the time range of a series
func (idx *Index) UpdateTimeRange(id uint64, minTime, maxTime int64) error {
	meta, ok := idx.series[id]
	if !ok {
		return fmt.Errorf("series %d not found", id)
	}

	if !meta.HasData || minTime < meta.MinTime {
		meta.MinTime = minTime
	}
	if !meta.HasData || maxTime > meta.MaxTime {
		meta.MaxTime = maxTime
	}
	meta.HasData = true

	return nil
}

// SeriesCount returns the number of indexed series
func (idx *Index) SeriesCount() int {
	return len(idx.series)
}

// Marshal encodes the metadata of one series for persistence.
func (idx *Index) Marshal(id uint64) ([]byte, error) {
	meta, ok := idx.series[id]
	if !ok {
		return nil, fmt.Errorf("series %d not found", id)
	}
	return json.Marshal(meta)
}

// Restore adds a series previously encoded with Marshal.
func (idx *Index) Restore(data []byte) error {
	var meta seriesMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("failed to decode series metadata: %w", err)
	}
	if old, ok := idx.series[meta.ID]; ok {
		idx.unindexLabels(old)
	}
	idx.series[meta.ID] = &meta
	idx.indexLabels(&meta)
	return nil
}

// calculateFingerprint identifies a resource by tenant and path.
func calculateFingerprint(tenantID, path string) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(tenantID)
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(path)
	return d.Sum64()
}

func copyLabels(labels map[string]string) map[string]string {
	if labels == nil {
		return nil
	}
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}

// intersect finds common elements in two slices. b belongs to the index and
// is not modified.
func intersect(a, b []uint64) []uint64 {
	b = append([]uint64(nil), b...)
	sort.Slice(a, func(i, j int) bool { return a[i] < a[j] })
	sort.Slice(b, func(i, j int) bool { return b[i] < b[j] })

	result := make([]uint64, 0)
	i, j := 0, 0

	for i < len(a) && j < len(b) {
		if a[i] < b[j] {
			i++
		} else if a[i] > b[j] {
			j++
		} else {
			result = append(result, a[i])
			i++
			j++
		}
	}

	return result
}
