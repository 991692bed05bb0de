package db

import (
	"fmt"
	"regexp"
	"time"

	"gorm.io/gorm"
)

// Granularity selects the calendar span of newly created partitions.
// Deployments have switched between the two over time, so partitions of
// both widths coexist in one table.
type Granularity string

const (
	GranularityMonth Granularity = "month"
	GranularityYear  Granularity = "year"
)

// ParseGranularity validates a configured granularity value.
func ParseGranularity(s string) (Granularity, error) {
	switch Granularity(s) {
	case GranularityMonth, GranularityYear:
		return Granularity(s), nil
	}
	return "", fmt.Errorf("unknown partition granularity %q", s)
}

const dateLayout = "2006-01-02"

// Partition is one range partition of the requests table. Start is
// inclusive and End exclusive, both midnight UTC.
type Partition struct {
	Name  string
	Start time.Time
	End   time.Time
}

// Covers reports whether d falls inside the partition's range.
func (p Partition) Covers(d time.Time) bool {
	return !d.Before(p.Start) && d.Before(p.End)
}

// partBoundsRe extracts range bounds from pg_get_expr output, e.g.
// FOR VALUES FROM ('2024-06-01') TO ('2024-07-01').
var partBoundsRe = regexp.MustCompile(`FROM \('([0-9]{4}-[0-9]{2}-[0-9]{2})'\) TO \('([0-9]{4}-[0-9]{2}-[0-9]{2})'\)`)

// ListPartitions reads the attached partitions of requests from the
// catalog. Existing boundaries are data, not a fixed-width grid: monthly
// and yearly partitions coexist, so coverage decisions always start here.
// Partitions whose bounds are not plain date ranges (such as a DEFAULT
// partition) are skipped.
func ListPartitions(db *gorm.DB) ([]Partition, error) {
	type row struct {
		Name   string
		Bounds string
	}
	var rows []row
	err := db.Raw(`
		SELECT c.relname AS name, pg_get_expr(c.relpartbound, c.oid) AS bounds
		FROM pg_inherits i
		JOIN pg_class c ON c.oid = i.inhrelid
		WHERE i.inhparent = 'requests'::regclass
		ORDER BY c.relname`).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	parts := make([]Partition, 0, len(rows))
	for _, r := range rows {
		if p, ok := parseBounds(r.Name, r.Bounds); ok {
			parts = append(parts, p)
		}
	}
	return parts, nil
}

func parseBounds(name, bounds string) (Partition, bool) {
	m := partBoundsRe.FindStringSubmatch(bounds)
	if m == nil {
		return Partition{}, false
	}
	start, err := time.ParseInLocation(dateLayout, m[1], time.UTC)
	if err != nil {
		return Partition{}, false
	}
	end, err := time.ParseInLocation(dateLayout, m[2], time.UTC)
	if err != nil {
		return Partition{}, false
	}
	return Partition{Name: name, Start: start, End: end}, true
}

// partitionInterval returns the calendar period of granularity g
// containing d.
func partitionInterval(d time.Time, g Granularity) (start, end time.Time) {
	if g == GranularityYear {
		start = time.Date(d.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(1, 0, 0)
	}
	start = time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// clipInterval narrows [start, end) until it overlaps no existing
// partition while still containing d. Callers must already have checked
// that no partition covers d, so the clipped interval is never empty.
func clipInterval(start, end, d time.Time, existing []Partition) (time.Time, time.Time) {
	for _, p := range existing {
		if !p.End.After(d) && p.End.After(start) {
			start = p.End
		}
		if p.Start.After(d) && p.Start.Before(end) {
			end = p.Start
		}
	}
	return start, end
}

// partitionName names a partition after its bounds: requests_y2024m06 for
// a whole calendar month, requests_y2024 for a whole calendar year, and an
// explicit requests_YYYYMMDD_YYYYMMDD range for anything clipped.
func partitionName(start, end time.Time, g Granularity) string {
	switch g {
	case GranularityYear:
		if start.Month() == time.January && start.Day() == 1 && end.Equal(start.AddDate(1, 0, 0)) {
			return fmt.Sprintf("requests_y%04d", start.Year())
		}
	default:
		if start.Day() == 1 && end.Equal(start.AddDate(0, 1, 0)) {
			return fmt.Sprintf("requests_y%04dm%02d", start.Year(), int(start.Month()))
		}
	}
	return fmt.Sprintf("requests_%s_%s", start.Format("20060102"), end.Format("20060102"))
}

// EnsurePartition guarantees that a partition of requests covers the UTC
// calendar date of ts, creating one when absent. A new partition spans the
// month or year containing the date, clipped against existing partitions
// so ranges never overlap, and gets its request_date index in the same
// step. Must run inside a transaction: creation happens under a savepoint
// so a lost creation race can be rolled back without poisoning the
// caller's work. The race is resolved by re-reading the catalog and, if
// the winner's partition still leaves the date uncovered, retrying the
// creation once with re-clipped bounds.
func EnsurePartition(tx *gorm.DB, ts time.Time, g Granularity) (Partition, error) {
	d := midnightUTC(ts)

	for attempt := 0; ; attempt++ {
		parts, err := ListPartitions(tx)
		if err != nil {
			return Partition{}, err
		}
		if p, ok := coveredBy(parts, d); ok {
			return p, nil
		}

		start, end := partitionInterval(d, g)
		start, end = clipInterval(start, end, d, parts)
		p := Partition{Name: partitionName(start, end, g), Start: start, End: end}

		if err := tx.SavePoint("create_partition").Error; err != nil {
			return Partition{}, err
		}
		err = createPartition(tx, p)
		if err == nil {
			partitionsCreated.WithLabelValues(string(g)).Inc()
			return p, nil
		}
		if !isPartitionExists(err) || attempt > 0 {
			return Partition{}, fmt.Errorf("create partition %s: %w", p.Name, err)
		}
		// Lost a creation race to a concurrent writer.
		if err := tx.RollbackTo("create_partition").Error; err != nil {
			return Partition{}, err
		}
	}
}

func coveredBy(parts []Partition, d time.Time) (Partition, bool) {
	for _, p := range parts {
		if p.Covers(d) {
			return p, true
		}
	}
	return Partition{}, false
}

// createPartition attaches a new range partition and its per-partition
// date index. Bounds and names come from partitionName/partitionInterval,
// never from caller input, so building the DDL with Sprintf is safe.
func createPartition(tx *gorm.DB, p Partition) error {
	ddl := fmt.Sprintf(`CREATE TABLE %s PARTITION OF requests FOR VALUES FROM ('%s') TO ('%s')`,
		p.Name, p.Start.Format(dateLayout), p.End.Format(dateLayout))
	if err := tx.Exec(ddl).Error; err != nil {
		return err
	}
	return tx.Exec(fmt.Sprintf(`CREATE INDEX %s_request_date ON %s (request_date)`, p.Name, p.Name)).Error
}

// midnightUTC truncates ts to its UTC calendar date.
func midnightUTC(ts time.Time) time.Time {
	u := ts.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
