// ABOUTME: Background scheduler running a sync at the top of every UTC hour
// ABOUTME: Soft overlap guard skips a slot when a recent run is still marked Started
package sync

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/stlnu/dealsync/db"
	"github.com/stlnu/dealsync/models"
)

// overlapWindow is how far back a lingering Started run blocks a new slot.
// Generous on purpose: a crashed run leaves its row in Started forever, and
// two hours keeps that from wedging the schedule for good.
const overlapWindow = 2 * time.Hour

// Daemon runs the engine on an hourly schedule until its context is
// cancelled. Errors are logged and the next slot proceeds as usual.
type Daemon struct {
	db     *sql.DB
	engine *Engine
}

func NewDaemon(database *sql.DB, engine *Engine) *Daemon {
	return &Daemon{db: database, engine: engine}
}

// Run blocks until ctx is done, firing one sync at the top of each UTC hour.
func (d *Daemon) Run(ctx context.Context) {
	log.Printf("sync daemon started, next run at %s", nextHour(time.Now().UTC()).Format(time.RFC3339))

	for {
		wait := time.Until(nextHour(time.Now().UTC()))
		timer := time.NewTimer(wait)

		select {
		case <-ctx.Done():
			timer.Stop()
			log.Printf("sync daemon stopping: %v", ctx.Err())
			return
		case <-timer.C:
		}

		d.tick(ctx)
	}
}

// tick runs one scheduled slot.
func (d *Daemon) tick(ctx context.Context) {
	busy, err := db.HasRunInStatusSince(d.db, models.RunStarted, time.Now().UTC().Add(-overlapWindow))
	if err != nil {
		log.Printf("overlap check failed, skipping slot: %v", err)
		return
	}
	if busy {
		log.Printf("previous run still in progress, skipping slot")
		return
	}

	result := d.engine.RunIncrementalSync(ctx)
	if result.Succeeded {
		log.Printf("scheduled sync done: %s", result.Message)
	} else {
		log.Printf("scheduled sync failed: %s", result.Message)
	}
}

// nextHour returns the next top-of-hour instant strictly after now.
func nextHour(now time.Time) time.Time {
	return now.Truncate(time.Hour).Add(time.Hour)
}
