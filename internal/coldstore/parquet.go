package coldstore

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/vitals-systems/siphon/pkg/types"
)

// sampleRow is the parquet row shape. Site and point are carried in every
// row so the objects stay self-describing for query engines scanning the
// whole prefix.
type sampleRow struct {
	Site      string    `parquet:"site,dict"`
	PointName string    `parquet:"point_name,dict"`
	Time      time.Time `parquet:"time,timestamp(millisecond)"`
	Value     float64   `parquet:"value"`
}

// codecFor maps a config compression name to a parquet codec. Empty
// defaults to zstd.
func codecFor(name string) (compress.Codec, error) {
	switch strings.ToLower(name) {
	case "", "zstd":
		return &parquet.Zstd, nil
	case "snappy":
		return &parquet.Snappy, nil
	case "gzip":
		return &parquet.Gzip, nil
	case "none", "uncompressed":
		return &parquet.Uncompressed, nil
	default:
		return nil, fmt.Errorf("unknown compression %q", name)
	}
}

// Encode serializes samples into one compressed parquet buffer.
func (s *Store) Encode(samples []types.Sample) ([]byte, error) {
	codec, err := codecFor(s.codec)
	if err != nil {
		return nil, err
	}

	rows := make([]sampleRow, len(samples))
	for i, sm := range samples {
		rows[i] = sampleRow{
			Site:      sm.Site,
			PointName: sm.PointName,
			Time:      sm.Time(),
			Value:     sm.Value,
		}
	}

	var buf bytes.Buffer
	w := parquet.NewGenericWriter[sampleRow](&buf, parquet.Compression(codec))
	if _, err := w.Write(rows); err != nil {
		return nil, fmt.Errorf("writing parquet rows: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode deserializes a parquet buffer back into samples.
func Decode(data []byte) ([]types.Sample, error) {
	rows, err := parquet.Read[sampleRow](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("reading parquet rows: %w", err)
	}

	samples := make([]types.Sample, len(rows))
	for i, r := range rows {
		samples[i] = types.Sample{
			Site:      r.Site,
			PointName: r.PointName,
			Timestamp: r.Time.UnixMilli(),
			Value:     r.Value,
		}
	}
	return samples, nil
}
