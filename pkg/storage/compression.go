package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/klauspost/compress/zstd"
	"github.com/vjranagit/timesync/pkg/timeseries"
)

// Compressor encodes blocks of typed samples. Timestamps use delta-of-delta
// encoding, floats XOR encoding and integers delta encoding; every section
// is compressed with zstd.
type Compressor struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewCompressor creates a new compressor
func NewCompressor(level int) (*Compressor, error) {
	encLevel := zstd.SpeedDefault
	switch level {
	case 1:
		encLevel = zstd.SpeedFastest
	case 2:
		encLevel = zstd.SpeedDefault
	case 3:
		encLevel = zstd.SpeedBetterCompression
	case 4:
		encLevel = zstd.SpeedBestCompression
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(encLevel))
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	return &Compressor{
		encoder: encoder,
		decoder: decoder,
	}, nil
}

// blockPayload is the stored form of one block.
type blockPayload struct {
	Kind       timeseries.Kind
	Count      int
	Timestamps []byte
	Qualities  []byte
	Values     []byte
}

// EncodeBlock encodes samples sorted by timestamp. All values are converted
// to kind.
func (c *Compressor) EncodeBlock(kind timeseries.Kind, samples []timeseries.Sample) ([]byte, error) {
	timestamps := make([]int64, len(samples))
	qualities := make([]byte, len(samples))
	values := make([]timeseries.Value, len(samples))
	for i, s := range samples {
		timestamps[i] = s.Timestamp
		qualities[i] = byte(s.Quality)
		values[i] = s.Value.Convert(kind)
	}

	compressedTS, err := c.CompressTimestamps(timestamps)
	if err != nil {
		return nil, fmt.Errorf("failed to compress timestamps: %w", err)
	}
	compressedVals, err := c.compressTyped(kind, values)
	if err != nil {
		return nil, fmt.Errorf("failed to compress values: %w", err)
	}

	payload := &blockPayload{
		Kind:       kind,
		Count:      len(samples),
		Timestamps: compressedTS,
		Qualities:  c.encoder.EncodeAll(qualities, nil),
		Values:     compressedVals,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return data, nil
}

// DecodeBlock reverses EncodeBlock.
func (c *Compressor) DecodeBlock(data []byte) ([]timeseries.Sample, error) {
	var payload blockPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	if payload.Count == 0 {
		return nil, nil
	}

	timestamps, err := c.DecompressTimestamps(payload.Timestamps, payload.Count)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress timestamps: %w", err)
	}
	qualities, err := c.decoder.DecodeAll(payload.Qualities, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress qualities: %w", err)
	}
	if len(qualities) != payload.Count {
		return nil, fmt.Errorf("block has %d qualities for %d samples", len(qualities), payload.Count)
	}
	values, err := c.decompressTyped(payload.Kind, payload.Values, payload.Count)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress values: %w", err)
	}

	samples := make([]timeseries.Sample, payload.Count)
	for i := range samples {
		samples[i] = timeseries.Sample{
			Timestamp: timestamps[i],
			Value:     values[i],
			Quality:   timeseries.Quality(qualities[i]),
		}
	}
	return samples, nil
}

func (c *Compressor) compressTyped(kind timeseries.Kind, values []timeseries.Value) ([]byte, error) {
	switch kind {
	case timeseries.KindFloat32, timeseries.KindFloat64:
		floats := make([]float64, len(values))
		for i, v := range values {
			floats[i] = v.Float64()
		}
		return c.CompressValues(floats)
	case timeseries.KindInt32, timeseries.KindInt64, timeseries.KindBool:
		ints := make([]int64, len(values))
		for i, v := range values {
			ints[i] = v.Int64()
		}
		return c.CompressIntegers(ints)
	case timeseries.KindString:
		var buf []byte
		for _, v := range values {
			s := v.String()
			buf = binary.AppendUvarint(buf, uint64(len(s)))
			buf = append(buf, s...)
		}
		return c.encoder.EncodeAll(buf, nil), nil
	}
	return nil, fmt.Errorf("unsupported value kind %s", kind)
}

func (c *Compressor) decompressTyped(kind timeseries.Kind, data []byte, count int) ([]timeseries.Value, error) {
	out := make([]timeseries.Value, count)
	switch kind {
	case timeseries.KindFloat32, timeseries.KindFloat64:
		floats, err := c.DecompressValues(data, count)
		if err != nil {
			return nil, err
		}
		for i, f := range floats {
			out[i] = timeseries.FromFloat64(kind, f)
		}
	case timeseries.KindInt32, timeseries.KindInt64, timeseries.KindBool:
		ints, err := c.DecompressIntegers(data, count)
		if err != nil {
			return nil, err
		}
		for i, n := range ints {
			out[i] = timeseries.Int64Value(n).Convert(kind)
		}
	case timeseries.KindString:
		raw, err := c.decoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("decompression failed: %w", err)
		}
		for i := range out {
			n, size := binary.Uvarint(raw)
			if size <= 0 || uint64(len(raw)-size) < n {
				return nil, fmt.Errorf("truncated string at %d", i)
			}
			out[i] = timeseries.StringValue(string(raw[size : size+int(n)]))
			raw = raw[size+int(n):]
		}
	default:
		return nil, fmt.Errorf("unsupported value kind %s", kind)
	}
	return out, nil
}

// CompressTimestamps compresses a series of timestamps using delta encoding + zstd
func (c *Compressor) CompressTimestamps(timestamps []int64) ([]byte, error) {
	if len(timestamps) == 0 {
		return nil, nil
	}

	buf := new(bytes.Buffer)

	if err := binary.Write(buf, binary.LittleEndian, timestamps[0]); err != nil {
		return nil, err
	}

	// delta-of-delta
	var prevDelta int64
	for i := 1; i < len(timestamps); i++ {
		delta := timestamps[i] - timestamps[i-1]
		if err := binary.Write(buf, binary.LittleEndian, delta-prevDelta); err != nil {
			return nil, err
		}
		prevDelta = delta
	}

	return c.encoder.EncodeAll(buf.Bytes(), make([]byte, 0, buf.Len())), nil
}

// DecompressTimestamps decompresses timestamps
func (c *Compressor) DecompressTimestamps(data []byte, count int) ([]int64, error) {
	if len(data) == 0 || count == 0 {
		return nil, nil
	}

	decompressed, err := c.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompression failed: %w", err)
	}

	buf := bytes.NewReader(decompressed)
	timestamps := make([]int64, count)

	if err := binary.Read(buf, binary.LittleEndian, &timestamps[0]); err != nil {
		return nil, err
	}

	var prevDelta int64
	for i := 1; i < count; i++ {
		var deltaOfDelta int64
		if err := binary.Read(buf, binary.LittleEndian, &deltaOfDelta); err != nil {
			return nil, err
		}

		delta := deltaOfDelta + prevDelta
		timestamps[i] = timestamps[i-1] + delta
		prevDelta = delta
	}

	return timestamps, nil
}

// CompressValues compresses float64 values using XOR encoding + zstd
func (c *Compressor) CompressValues(values []float64) ([]byte, error) {
	if len(values) == 0 {
		return nil, nil
	}

	buf := new(bytes.Buffer)

	prevBits := math.Float64bits(values[0])
	if err := binary.Write(buf, binary.LittleEndian, prevBits); err != nil {
		return nil, err
	}
	for i := 1; i < len(values); i++ {
		currentBits := math.Float64bits(values[i])
		if err := binary.Write(buf, binary.LittleEndian, currentBits^prevBits); err != nil {
			return nil, err
		}
		prevBits = currentBits
	}

	return c.encoder.EncodeAll(buf.Bytes(), make([]byte, 0, buf.Len())), nil
}

// DecompressValues decompresses float64 values
func (c *Compressor) DecompressValues(data []byte, count int) ([]float64, error) {
	if len(data) == 0 || count == 0 {
		return nil, nil
	}

	decompressed, err := c.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompression failed: %w", err)
	}

	buf := bytes.NewReader(decompressed)
	values := make([]float64, count)

	var prevBits uint64
	if err := binary.Read(buf, binary.LittleEndian, &prevBits); err != nil {
		return nil, err
	}
	values[0] = math.Float64frombits(prevBits)

	for i := 1; i < count; i++ {
		var xorBits uint64
		if err := binary.Read(buf, binary.LittleEndian, &xorBits); err != nil {
			return nil, err
		}

		prevBits ^= xorBits
		values[i] = math.Float64frombits(prevBits)
	}

	return values, nil
}

// CompressIntegers compresses int64 values as zig-zag varint deltas + zstd.
func (c *Compressor) CompressIntegers(values []int64) ([]byte, error) {
	if len(values) == 0 {
		return nil, nil
	}

	buf := make([]byte, 0, len(values)*2)
	var prev int64
	for _, v := range values {
		buf = binary.AppendVarint(buf, v-prev)
		prev = v
	}
	return c.encoder.EncodeAll(buf, nil), nil
}

// DecompressIntegers decompresses int64 values
func (c *Compressor) DecompressIntegers(data []byte, count int) ([]int64, error) {
	if len(data) == 0 || count == 0 {
		return nil, nil
	}

	raw, err := c.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompression failed: %w", err)
	}

	values := make([]int64, count)
	var prev int64
	for i := range values {
		delta, size := binary.Varint(raw)
		if size <= 0 {
			return nil, fmt.Errorf("truncated integer at %d", i)
		}
		raw = raw[size:]
		prev += delta
		values[i] = prev
	}
	return values, nil
}

// Close closes the compressor resources
func (c *Compressor) Close() {
	if c.encoder != nil {
		c.encoder.Close()
	}
	if c.decoder != nil {
		c.decoder.Close()
	}
}
