package db

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Event is one observed API request ready for ingestion.
type Event struct {
	Resource  string
	Endpoint  string
	Timestamp time.Time
	Country   string            // optional, "" means unknown
	Params    map[string]string // optional query parameters
}

// InsertEvent persists one event in a single transaction: dimension
// resolution, partition ensure, the request row and its parameters commit
// together or not at all. The request_date is derived from the timestamp's
// UTC calendar date and routes the row to its partition. Returns the new
// request id, or ErrDuplicateEvent when an identical event is already
// stored; the store is unchanged in that case.
func InsertEvent(db *gorm.DB, ev Event, g Granularity) (int64, error) {
	if ev.Resource == "" || ev.Endpoint == "" {
		return 0, errors.New("event needs a resource and an endpoint")
	}
	if ev.Timestamp.IsZero() {
		return 0, errors.New("event needs a timestamp")
	}

	date := midnightUTC(ev.Timestamp)

	var id int64
	err := db.Transaction(func(tx *gorm.DB) error {
		resourceID, err := ResolveResource(tx, ev.Resource)
		if err != nil {
			return err
		}
		endpointID, err := ResolveEndpoint(tx, ev.Endpoint, resourceID)
		if err != nil {
			return err
		}
		var countryID *uint
		if ev.Country != "" {
			cid, err := ResolveCountry(tx, ev.Country)
			if err != nil {
				return err
			}
			countryID = &cid
		}

		if _, err := EnsurePartition(tx, ev.Timestamp, g); err != nil {
			return err
		}

		res := tx.Raw(`
			INSERT INTO requests (request_date, request_timestamp, endpoint_id, resource_id, country_id)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (request_date, request_timestamp, endpoint_id, resource_id) DO NOTHING
			RETURNING id`,
			date.Format(dateLayout), ev.Timestamp, endpointID, resourceID, countryID).Scan(&id)
		if res.Error != nil {
			if isUniqueViolation(res.Error) {
				return ErrDuplicateEvent
			}
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrDuplicateEvent
		}

		return attachParams(tx, id, date, ev.Params)
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateEvent) {
			eventsIngested.WithLabelValues(ev.Resource, "duplicate").Inc()
		}
		return 0, err
	}

	eventsIngested.WithLabelValues(ev.Resource, "stored").Inc()
	return id, nil
}

// AttachParams stores query parameters for an already persisted request,
// all in one transaction. The composite foreign key rejects parameters
// whose parent request does not exist for that date; that surfaces as
// ErrOrphanParameter.
func AttachParams(db *gorm.DB, requestID int64, date time.Time, params map[string]string) error {
	if len(params) == 0 {
		return nil
	}
	return db.Transaction(func(tx *gorm.DB) error {
		return attachParams(tx, requestID, midnightUTC(date), params)
	})
}

func attachParams(tx *gorm.DB, requestID int64, date time.Time, params map[string]string) error {
	for name, value := range params {
		err := tx.Exec(`
			INSERT INTO parameters (request_id, request_date, param_name, param_value)
			VALUES (?, ?, ?, ?)`,
			requestID, date.Format(dateLayout), name, value).Error
		if err != nil {
			if isForeignKeyViolation(err) {
				return fmt.Errorf("request %d on %s: %w", requestID, date.Format(dateLayout), ErrOrphanParameter)
			}
			return err
		}
	}
	return nil
}

// DeleteEventsBefore removes all requests dated strictly before cutoff's
// UTC calendar date. Parameters go with their parents through the
// cascading foreign key. Returns the number of requests removed.
func DeleteEventsBefore(db *gorm.DB, cutoff time.Time) (int64, error) {
	res := db.Where("request_date < ?", midnightUTC(cutoff).Format(dateLayout)).Delete(&Request{})
	return res.RowsAffected, res.Error
}
