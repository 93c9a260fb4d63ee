package hotstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/vitals-systems/siphon/pkg/types"
)

// upsertChunkSize bounds the number of statements per round trip.
const upsertChunkSize = 500

type sampleKey struct {
	site  string
	point string
	ts    int64
}

// dedupeSamples collapses duplicate (site, point, timestamp) keys to the last
// value in the batch, preserving first-seen order.
func dedupeSamples(samples []types.Sample) []types.Sample {
	unique := make([]types.Sample, 0, len(samples))
	seen := make(map[sampleKey]int, len(samples))
	for _, sm := range samples {
		k := sampleKey{site: sm.Site, point: sm.PointName, ts: sm.Timestamp}
		if idx, ok := seen[k]; ok {
			unique[idx] = sm
			continue
		}
		seen[k] = len(unique)
		unique = append(unique, sm)
	}
	return unique
}

// UpsertSamples writes a batch of samples. The API can return the same
// reading on consecutive pages, and ON CONFLICT rejects a batch that touches
// the same key twice, so duplicates are collapsed first. Returns the number
// of rows that landed.
func (s *Store) UpsertSamples(ctx context.Context, samples []types.Sample) (int, error) {
	if len(samples) == 0 {
		return 0, nil
	}

	unique := dedupeSamples(samples)
	written := 0
	for i := 0; i < len(unique); i += upsertChunkSize {
		j := i + upsertChunkSize
		if j > len(unique) {
			j = len(unique)
		}

		b := &pgx.Batch{}
		for _, sm := range unique[i:j] {
			b.Queue(`
				INSERT INTO samples (site, point_name, ts, value)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (site, point_name, ts) DO UPDATE SET value = EXCLUDED.value
			`, sm.Site, sm.PointName, sm.Timestamp, sm.Value)
		}

		br := s.pool.SendBatch(ctx, b)
		for k := i; k < j; k++ {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return written, fmt.Errorf("upserting samples: %w", err)
			}
			written++
		}
		if err := br.Close(); err != nil {
			return written, fmt.Errorf("closing upsert batch: %w", err)
		}
	}
	return written, nil
}

// DeletePartitionRows removes all hot rows for one (site, point, day)
// partition. Only called after the archived object has been verified in cold
// storage. Returns the number of rows deleted.
func (s *Store) DeletePartitionRows(ctx context.Context, p types.Partition) (int64, error) {
	start, end, err := dayBoundsMs(p.Day)
	if err != nil {
		return 0, err
	}
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM samples
		WHERE site = $1 AND point_name = $2 AND ts >= $3 AND ts < $4
	`, p.Site, p.PointName, start, end)
	if err != nil {
		return 0, fmt.Errorf("deleting partition %s/%s/%s: %w", p.Site, p.PointName, p.Day, err)
	}
	return tag.RowsAffected(), nil
}
