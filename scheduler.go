package main

import (
	"database/sql"
	"log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// CheckDroppedGames tags every eligible game as dropped: played at some
// point, untouched for longer than the inactivity window, visible, not
// manually pinned, and not already holding a higher-priority tag.
// Returns the number of games newly tagged.
func CheckDroppedGames(db *sql.DB, now time.Time) (int, error) {
	settings, err := LoadSettings(db)
	if err != nil {
		return 0, err
	}
	if !settings.AutoTagEnabled {
		return 0, nil
	}

	cutoff := now.Unix() - int64(settings.DroppedInactivityDays)*secondsPerDay
	eligible, err := GetGamesEligibleForDropped(db, cutoff)
	if err != nil {
		return 0, err
	}

	dropped := 0
	for _, rec := range eligible {
		if err := SetTag(db, rec.AppID, TagDropped, false); err != nil {
			log.Printf("Failed to tag %s (%s) as dropped: %v", rec.AppID, rec.Name, err)
			continue
		}
		days := (now.Unix() - *rec.LastPlayedAt) / secondsPerDay
		log.Printf("Tagged as dropped: %s (%s, not played for %d days)", rec.Name, rec.AppID, days)
		dropped++
	}
	return dropped, nil
}

// StartDroppedCheckScheduler runs CheckDroppedGames on a cron schedule.
// The schedule is a standard 5-field cron expression (minute hour
// day-of-month month day-of-week), e.g. "0 3 * * *" for daily at 3am.
func StartDroppedCheckScheduler(cfg Config, db *sql.DB) {
	schedule := strings.TrimSpace(cfg.DroppedCheckSchedule)
	if schedule == "" {
		log.Println("Dropped-games check disabled (dropped_check_schedule not set)")
		return
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(schedule)
	if err != nil {
		log.Printf("Invalid dropped_check_schedule '%s': %v, dropped-games check disabled", schedule, err)
		return
	}

	log.Printf("Dropped-games check scheduled (cron: %s)", schedule)

	go func() {
		for {
			now := time.Now()
			next := sched.Next(now)
			wait := next.Sub(now)
			log.Printf("Next dropped-games check at %s (in %s)", next.Format("Mon Jan 2 15:04"), wait.Round(time.Minute))

			time.Sleep(wait)

			count, err := CheckDroppedGames(db, time.Now())
			if err != nil {
				log.Printf("Dropped-games check error: %v", err)
				continue
			}
			log.Printf("Dropped-games check complete: %d games tagged", count)
		}
	}()
}
