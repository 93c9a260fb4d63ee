package coldstore

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/vitals-systems/siphon/pkg/types"
)

// dayPath converts a "2006-01-02" day into the YYYY/MM/DD path segment.
func dayPath(day string) string {
	return strings.ReplaceAll(day, "-", "/")
}

// escapePoint makes a point name safe as a single path component. Point
// names routinely contain slashes ("zone1/temp") which would otherwise nest
// the object under extra prefixes.
func escapePoint(point string) string {
	return url.PathEscape(point)
}

// PartitionKey returns the object key for an archived (site, point, day)
// partition: {prefix}/{site}/{YYYY}/{MM}/{DD}/{point}.parquet.
func (s *Store) PartitionKey(p types.Partition) string {
	return fmt.Sprintf("%s/%s/%s/%s.parquet", s.prefix, p.Site, dayPath(p.Day), escapePoint(p.PointName))
}

// BackfillPageKey returns the object key for one backfill page of a site's
// day: {prefix}/{site}/{YYYY}/{MM}/{DD}/{site}-{page}.parquet. A retried
// page reuses its index and overwrites the same key, keeping page retries
// idempotent.
func (s *Store) BackfillPageKey(site, day string, page int) string {
	return fmt.Sprintf("%s/%s/%s/%s-%04d.parquet", s.prefix, site, dayPath(day), escapePoint(site), page)
}
