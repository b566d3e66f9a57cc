package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/vjranagit/timesync/pkg/timeseries"
)

// sampleReader decodes "timestamp,value[,quality]" records. Lines starting
// with '#' are skipped.
type sampleReader struct {
	r    *csv.Reader
	kind timeseries.Kind
	line int
}

func newSampleReader(r io.Reader, kind timeseries.Kind) *sampleReader {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true
	return &sampleReader{r: cr, kind: kind}
}

// Read returns the next sample, or io.EOF.
func (sr *sampleReader) Read() (timeseries.Sample, error) {
	record, err := sr.r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return timeseries.Sample{}, io.EOF
		}
		return timeseries.Sample{}, fmt.Errorf("failed to read csv: %w", err)
	}
	sr.line++

	if len(record) < 2 || len(record) > 3 {
		return timeseries.Sample{}, fmt.Errorf("record %d: expected 2 or 3 fields, got %d", sr.line, len(record))
	}
	ts, err := strconv.ParseInt(strings.TrimSpace(record[0]), 10, 64)
	if err != nil {
		return timeseries.Sample{}, fmt.Errorf("record %d: invalid timestamp: %w", sr.line, err)
	}
	value, err := parseValue(sr.kind, record[1])
	if err != nil {
		return timeseries.Sample{}, fmt.Errorf("record %d: %w", sr.line, err)
	}
	quality := timeseries.Good
	if len(record) == 3 {
		if quality, err = parseQuality(record[2]); err != nil {
			return timeseries.Sample{}, fmt.Errorf("record %d: %w", sr.line, err)
		}
	}
	return timeseries.Sample{Timestamp: ts, Value: value, Quality: quality}, nil
}

func parseValue(kind timeseries.Kind, raw string) (timeseries.Value, error) {
	if kind == timeseries.KindString {
		return timeseries.StringValue(raw), nil
	}

	raw = strings.TrimSpace(raw)
	switch kind {
	case timeseries.KindFloat32:
		f, err := strconv.ParseFloat(raw, 32)
		if err != nil {
			return timeseries.Value{}, fmt.Errorf("invalid float32 %q: %w", raw, err)
		}
		return timeseries.Float32Value(float32(f)), nil
	case timeseries.KindFloat64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return timeseries.Value{}, fmt.Errorf("invalid float64 %q: %w", raw, err)
		}
		return timeseries.Float64Value(f), nil
	case timeseries.KindInt32:
		i, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			return timeseries.Value{}, fmt.Errorf("invalid int32 %q: %w", raw, err)
		}
		return timeseries.Int32Value(int32(i)), nil
	case timeseries.KindInt64:
		i, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return timeseries.Value{}, fmt.Errorf("invalid int64 %q: %w", raw, err)
		}
		return timeseries.Int64Value(i), nil
	case timeseries.KindBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return timeseries.Value{}, fmt.Errorf("invalid bool %q: %w", raw, err)
		}
		return timeseries.BoolValue(b), nil
	}
	return timeseries.Value{}, fmt.Errorf("%w: cannot parse values of kind %s",
		timeseries.ErrInvalidArgument, kind)
}

func parseQuality(raw string) (timeseries.Quality, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "good", "g":
		return timeseries.Good, nil
	case "bad", "b":
		return timeseries.Bad, nil
	}
	return timeseries.Bad, fmt.Errorf("invalid quality %q", raw)
}
