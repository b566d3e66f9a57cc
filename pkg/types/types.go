package types

import "github.com/vjranagit/timesync/pkg/timeseries"

// Resource identifies one stored series. Path is unique within a tenant.
type Resource struct {
	Path   string
	Labels map[string]string
	Mode   timeseries.InterpolationMode
	Kind   timeseries.Kind
}

// Series represents a resource with its samples
type Series struct {
	Resource Resource
	Samples  []timeseries.Sample
}

// WriteRequest represents a write request to the storage engine
type WriteRequest struct {
	TenantID string
	Series   []Series
}

// QueryRequest selects resources by path or labels and a time range
// [Start, End). An empty Path with no Selectors matches every resource.
type QueryRequest struct {
	TenantID  string
	Path      string
	Selectors map[string]string
	Start     int64
	End       int64
}

// QueryResult represents query results
type QueryResult struct {
	Series []Series
}
