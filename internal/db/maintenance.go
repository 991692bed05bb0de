package db

import (
	"log"
	"time"

	"gorm.io/gorm"
)

// runPartitionMaintenance pre-creates the partitions ingest is about to
// need: the one covering today and the one starting where it ends.
// Inserts still ensure their own partition, so this only keeps creation
// cost off the write path around period rollover.
func runPartitionMaintenance(db *gorm.DB, g Granularity) error {
	var next time.Time
	err := db.Transaction(func(tx *gorm.DB) error {
		p, err := EnsurePartition(tx, time.Now().UTC(), g)
		if err != nil {
			return err
		}
		next = p.End
		return nil
	})
	if err != nil {
		return err
	}

	// The day the current partition closes is the first uncovered date,
	// whatever width that partition happens to have.
	return db.Transaction(func(tx *gorm.DB) error {
		_, err := EnsurePartition(tx, next, g)
		return err
	})
}

// StartPartitionWorker launches a background goroutine that runs partition
// maintenance once at startup and then once per day.
func StartPartitionWorker(db *gorm.DB, g Granularity) {
	go func() {
		if err := runPartitionMaintenance(db, g); err != nil {
			log.Printf("partition maintenance error (startup): %v", err)
		}

		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		for range ticker.C {
			if err := runPartitionMaintenance(db, g); err != nil {
				log.Printf("partition maintenance error: %v", err)
			}
		}
	}()
}
