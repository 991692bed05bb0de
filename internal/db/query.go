package db

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"
)

// FilterAll is the sentinel callers pass to leave a dimension unfiltered.
const FilterAll = "ALL"

// Filter selects events for counting. Zero values mean "no constraint";
// Resource and Country also accept the explicit ALL sentinel.
type Filter struct {
	Resource string
	Country  string
	Start    time.Time // inclusive, zero means open-ended
	End      time.Time // inclusive, zero means open-ended
	Endpoint string    // substring of the endpoint path
	Ontology string    // ontology id, matched as an endpoint-path substring
	Params   map[string]string
}

// Validate rejects filters with no consistent meaning: a start date after
// the end date, or endpoint and ontology substrings that disagree. Both
// carrying the same value collapse to one substring.
func (f Filter) Validate() error {
	if !f.Start.IsZero() && !f.End.IsZero() && f.Start.After(f.End) {
		return fmt.Errorf("%w: start date %s is after end date %s",
			ErrInvalidFilter, f.Start.Format(dateLayout), f.End.Format(dateLayout))
	}
	if f.Endpoint != "" && f.Ontology != "" && f.Endpoint != f.Ontology {
		return fmt.Errorf("%w: endpoint %q and ontology %q disagree", ErrInvalidFilter, f.Endpoint, f.Ontology)
	}
	return nil
}

// pathSubstring returns the endpoint-path substring the filter implies.
// Parameter matches take precedence: when any are present the substring
// modes are ignored entirely.
func (f Filter) pathSubstring() string {
	if len(f.Params) > 0 {
		return ""
	}
	if f.Endpoint != "" {
		return f.Endpoint
	}
	return f.Ontology
}

func dimensionFiltered(v string) bool {
	return v != "" && v != FilterAll
}

// shape names the active filter classes for the query duration metric.
func (f Filter) shape() string {
	parts := make([]string, 0, 4)
	if dimensionFiltered(f.Resource) {
		parts = append(parts, "resource")
	}
	if dimensionFiltered(f.Country) {
		parts = append(parts, "country")
	}
	if !f.Start.IsZero() || !f.End.IsZero() {
		parts = append(parts, "dates")
	}
	if len(f.Params) > 0 {
		parts = append(parts, "params")
	} else if f.pathSubstring() != "" {
		parts = append(parts, "path")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "+")
}

// CountRequests runs the filter and returns the matching event count.
// Unknown resource or country names count zero rather than failing, per
// the lenient search contract; a malformed filter fails with
// ErrInvalidFilter before touching the store.
func CountRequests(db *gorm.DB, f Filter) (int64, error) {
	if err := f.Validate(); err != nil {
		return 0, err
	}

	start := time.Now()
	defer func() {
		queryDuration.WithLabelValues(f.shape()).Observe(time.Since(start).Seconds())
	}()

	var resourceID, countryID uint
	if dimensionFiltered(f.Resource) {
		id, err := ResourceIDByName(db, f.Resource)
		if errors.Is(err, ErrNotFound) {
			return 0, nil
		}
		if err != nil {
			return 0, err
		}
		resourceID = id
	}
	if dimensionFiltered(f.Country) {
		id, err := CountryIDByName(db, f.Country)
		if errors.Is(err, ErrNotFound) {
			return 0, nil
		}
		if err != nil {
			return 0, err
		}
		countryID = id
	}

	sql, args := buildCountQuery(f, resourceID, countryID)
	var count int64
	if err := db.Raw(sql, args...).Scan(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// buildCountQuery assembles the aggregate count statement. Dimension names
// are resolved to ids by the caller so the fact scan never joins resources
// or countries; endpoints join in only when a path substring is active,
// and each parameter pair becomes an EXISTS correlated on the composite
// (request_id, request_date) key.
func buildCountQuery(f Filter, resourceID, countryID uint) (string, []any) {
	conds := make([]string, 0, 4)
	args := make([]any, 0, 6)

	if resourceID != 0 {
		conds = append(conds, `r.resource_id = ?`)
		args = append(args, resourceID)
	}
	if countryID != 0 {
		conds = append(conds, `r.country_id = ?`)
		args = append(args, countryID)
	}
	if !f.Start.IsZero() {
		conds = append(conds, `r.request_date >= ?`)
		args = append(args, f.Start.Format(dateLayout))
	}
	if !f.End.IsZero() {
		conds = append(conds, `r.request_date <= ?`)
		args = append(args, f.End.Format(dateLayout))
	}

	sub := f.pathSubstring()
	if sub != "" {
		conds = append(conds, `e.path LIKE ?`)
		args = append(args, "%"+sub+"%")
	}

	if len(f.Params) > 0 {
		keys := make([]string, 0, len(f.Params))
		for k := range f.Params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			conds = append(conds, `EXISTS (SELECT 1 FROM parameters p`+
				` WHERE p.request_id = r.id AND p.request_date = r.request_date`+
				` AND p.param_name = ? AND p.param_value = ?)`)
			args = append(args, k, f.Params[k])
		}
	}

	sql := `SELECT count(*) FROM requests r`
	if sub != "" {
		sql += ` JOIN endpoints e ON e.id = r.endpoint_id`
	}
	if len(conds) > 0 {
		sql += ` WHERE ` + strings.Join(conds, ` AND `)
	}
	return sql, args
}

// EndpointHit is one endpoint path with its request count.
type EndpointHit struct {
	Path  string `json:"path"`
	Count int64  `json:"count"`
}

// ResourceSummary aggregates one resource's traffic.
type ResourceSummary struct {
	Resource        string        `json:"resource"`
	TotalRequests   int64         `json:"total_requests"`
	UniqueEndpoints int64         `json:"unique_endpoints"`
	FirstSeen       string        `json:"first_seen,omitempty"`
	LastSeen        string        `json:"last_seen,omitempty"`
	TopEndpoints    []EndpointHit `json:"top_endpoints"`
}

// resourceDateCond builds the shared resource + date-window predicate for
// the per-resource stats queries. alias is the request-table prefix,
// "r." in joined queries and "" otherwise.
func resourceDateCond(alias string, id uint, start, end time.Time) (string, []any) {
	cond := alias + `resource_id = ?`
	args := []any{id}
	if !start.IsZero() {
		cond += ` AND ` + alias + `request_date >= ?`
		args = append(args, start.Format(dateLayout))
	}
	if !end.IsZero() {
		cond += ` AND ` + alias + `request_date <= ?`
		args = append(args, end.Format(dateLayout))
	}
	return cond, args
}

// SummarizeResource reports total traffic, distinct endpoints, the
// observed date span and the five busiest endpoints for one resource,
// optionally restricted to an inclusive date window. Unknown names fail
// with ErrNotFound.
func SummarizeResource(db *gorm.DB, name string, start, end time.Time) (*ResourceSummary, error) {
	id, err := ResourceIDByName(db, name)
	if err != nil {
		return nil, err
	}

	s := &ResourceSummary{Resource: name, TopEndpoints: make([]EndpointHit, 0, 5)}

	cond, args := resourceDateCond("", id, start, end)
	var span struct {
		Total     int64
		Endpoints int64
		First     *time.Time
		Last      *time.Time
	}
	err = db.Raw(`
		SELECT count(*) AS total, count(DISTINCT endpoint_id) AS endpoints,
			min(request_date) AS first, max(request_date) AS last
		FROM requests WHERE `+cond, args...).Scan(&span).Error
	if err != nil {
		return nil, err
	}
	s.TotalRequests = span.Total
	s.UniqueEndpoints = span.Endpoints
	if span.First != nil {
		s.FirstSeen = span.First.Format(dateLayout)
	}
	if span.Last != nil {
		s.LastSeen = span.Last.Format(dateLayout)
	}

	cond, args = resourceDateCond("r.", id, start, end)
	err = db.Raw(`
		SELECT e.path AS path, count(*) AS count
		FROM requests r JOIN endpoints e ON e.id = r.endpoint_id
		WHERE `+cond+`
		GROUP BY e.path
		ORDER BY count(*) DESC, e.path
		LIMIT 5`, args...).Scan(&s.TopEndpoints).Error
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ParameterStat is one parameter name with its usage count and most
// frequent values.
type ParameterStat struct {
	Name   string   `json:"name"`
	Count  int64    `json:"count"`
	Values []string `json:"values"`
}

// ParameterUsage lists the ten most used parameter names across a
// resource's requests, each with up to five of its most frequent values,
// optionally restricted to an inclusive date window.
func ParameterUsage(db *gorm.DB, name string, start, end time.Time) ([]ParameterStat, error) {
	id, err := ResourceIDByName(db, name)
	if err != nil {
		return nil, err
	}
	cond, args := resourceDateCond("r.", id, start, end)

	type nameRow struct {
		Name  string
		Count int64
	}
	var names []nameRow
	err = db.Raw(`
		SELECT p.param_name AS name, count(*) AS count
		FROM parameters p
		JOIN requests r ON r.id = p.request_id AND r.request_date = p.request_date
		WHERE `+cond+`
		GROUP BY p.param_name
		ORDER BY count(*) DESC, p.param_name
		LIMIT 10`, args...).Scan(&names).Error
	if err != nil {
		return nil, err
	}

	stats := make([]ParameterStat, 0, len(names))
	for _, n := range names {
		values := make([]string, 0, 5)
		err = db.Raw(`
			SELECT p.param_value
			FROM parameters p
			JOIN requests r ON r.id = p.request_id AND r.request_date = p.request_date
			WHERE `+cond+` AND p.param_name = ?
			GROUP BY p.param_value
			ORDER BY count(*) DESC, p.param_value
			LIMIT 5`, append(append([]any{}, args...), n.Name)...).Scan(&values).Error
		if err != nil {
			return nil, err
		}
		stats = append(stats, ParameterStat{Name: n.Name, Count: n.Count, Values: values})
	}
	return stats, nil
}

// TimelinePoint is one aggregation bucket of a request timeline.
type TimelinePoint struct {
	Bucket string `json:"bucket"`
	Count  int64  `json:"count"`
}

// timelineIntervals whitelists the date_trunc units the timeline accepts.
// The unit is interpolated into SQL, so it must never come from raw input.
var timelineIntervals = map[string]bool{"hour": true, "day": true, "week": true, "month": true}

// RequestTimeline buckets one resource's requests by the given interval,
// optionally restricted to an inclusive date window.
func RequestTimeline(db *gorm.DB, name, interval string, start, end time.Time) ([]TimelinePoint, error) {
	if !timelineIntervals[interval] {
		return nil, fmt.Errorf("%w: unknown timeline interval %q", ErrInvalidFilter, interval)
	}
	id, err := ResourceIDByName(db, name)
	if err != nil {
		return nil, err
	}
	cond, args := resourceDateCond("", id, start, end)

	// Use Raw so the date_trunc unit is never parameterized.
	sql := `SELECT to_char(date_trunc('` + interval + `', request_timestamp), 'YYYY-MM-DD"T"HH24:MI:SS') || 'Z' AS bucket,
		count(*) AS count
		FROM requests WHERE ` + cond + `
		GROUP BY date_trunc('` + interval + `', request_timestamp)
		ORDER BY 1`

	points := make([]TimelinePoint, 0)
	if err := db.Raw(sql, args...).Scan(&points).Error; err != nil {
		return nil, err
	}
	return points, nil
}
