package hotstore

import (
	"context"
	"fmt"
	"time"

	"github.com/vitals-systems/siphon/pkg/types"
)

// dayBoundsMs returns the [start, end) millisecond range of a UTC calendar
// day in "2006-01-02" form.
func dayBoundsMs(day string) (int64, int64, error) {
	t, err := time.Parse("2006-01-02", day)
	if err != nil {
		return 0, 0, fmt.Errorf("bad partition day %q: %w", day, err)
	}
	return t.UnixMilli(), t.Add(24 * time.Hour).UnixMilli(), nil
}

// MaxSampleTime returns the newest sample timestamp for a site in
// milliseconds. ok is false when the site has no hot rows.
func (s *Store) MaxSampleTime(ctx context.Context, site string) (int64, bool, error) {
	var ts *int64
	err := s.pool.QueryRow(ctx, `
		SELECT MAX(ts) FROM samples WHERE site = $1
	`, site).Scan(&ts)
	if err != nil {
		return 0, false, fmt.Errorf("max sample time for %s: %w", site, err)
	}
	if ts == nil {
		return 0, false, nil
	}
	return *ts, true, nil
}

// DistinctSites returns every site with at least one hot row, sorted.
func (s *Store) DistinctSites(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT site FROM samples ORDER BY site
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sites []string
	for rows.Next() {
		var site string
		if err := rows.Scan(&site); err != nil {
			return nil, err
		}
		sites = append(sites, site)
	}
	return sites, rows.Err()
}

// ListAgedPartitions returns every (site, point, day) partition strictly
// older than the cutoff day, oldest first, with its row count. Repeated
// capped archive runs drain the backlog oldest-first.
func (s *Store) ListAgedPartitions(ctx context.Context, cutoff time.Time) ([]types.Partition, error) {
	cutoffDay := cutoff.UTC().Format("2006-01-02")
	cutoffStart, _, err := dayBoundsMs(cutoffDay)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT site, point_name,
			to_char(to_timestamp(ts / 1000.0) AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day,
			COUNT(*) AS row_count
		FROM samples
		WHERE ts < $1
		GROUP BY site, point_name, day
		ORDER BY day, site, point_name
	`, cutoffStart)
	if err != nil {
		return nil, fmt.Errorf("listing aged partitions: %w", err)
	}
	defer rows.Close()

	var parts []types.Partition
	for rows.Next() {
		var p types.Partition
		if err := rows.Scan(&p.Site, &p.PointName, &p.Day, &p.Rows); err != nil {
			return nil, err
		}
		parts = append(parts, p)
	}
	return parts, rows.Err()
}

// ReadPartitionRows returns all samples in one (site, point, day) partition
// in timestamp order.
func (s *Store) ReadPartitionRows(ctx context.Context, p types.Partition) ([]types.Sample, error) {
	start, end, err := dayBoundsMs(p.Day)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT site, point_name, ts, value
		FROM samples
		WHERE site = $1 AND point_name = $2 AND ts >= $3 AND ts < $4
		ORDER BY ts
	`, p.Site, p.PointName, start, end)
	if err != nil {
		return nil, fmt.Errorf("reading partition %s/%s/%s: %w", p.Site, p.PointName, p.Day, err)
	}
	defer rows.Close()

	var samples []types.Sample
	for rows.Next() {
		var sm types.Sample
		if err := rows.Scan(&sm.Site, &sm.PointName, &sm.Timestamp, &sm.Value); err != nil {
			return nil, err
		}
		samples = append(samples, sm)
	}
	return samples, rows.Err()
}

// CountPartitionRows returns the current row count of one partition.
func (s *Store) CountPartitionRows(ctx context.Context, p types.Partition) (int64, error) {
	start, end, err := dayBoundsMs(p.Day)
	if err != nil {
		return 0, err
	}
	var count int64
	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM samples
		WHERE site = $1 AND point_name = $2 AND ts >= $3 AND ts < $4
	`, p.Site, p.PointName, start, end).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting partition %s/%s/%s: %w", p.Site, p.PointName, p.Day, err)
	}
	return count, nil
}
