package db

import (
	"log"
	"time"

	"gorm.io/gorm"
)

// runRetentionOnce performs a single pass of retention cleanup, deleting
// events older than the configured window. Parameters cascade away with
// their parents; partitions themselves are never dropped, only emptied.
func runRetentionOnce(db *gorm.DB, days int) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	n, err := DeleteEventsBefore(db, cutoff)
	if err != nil {
		return err
	}
	if n > 0 {
		log.Printf("retention removed %d events dated before %s", n, cutoff.Format(dateLayout))
	}
	return nil
}

// StartRetentionWorker launches a background goroutine that runs the
// retention cleanup once at startup and then once per day. A window of
// zero or less disables retention entirely.
func StartRetentionWorker(db *gorm.DB, days int) {
	if days <= 0 {
		return
	}
	go func() {
		if err := runRetentionOnce(db, days); err != nil {
			log.Printf("retention cleanup error (startup): %v", err)
		}

		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		for range ticker.C {
			if err := runRetentionOnce(db, days); err != nil {
				log.Printf("retention cleanup error: %v", err)
			}
		}
	}()
}
