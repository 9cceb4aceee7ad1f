package main

import "time"

const secondsPerDay = 24 * 60 * 60

// AutoTag computes the automatic tag for a game. First matching rule wins:
//
//  1. mastered:    achievement ratio at or above the configured threshold
//  2. completed:   playtime at or past the main-story estimate
//  3. dropped:     last played longer ago than the inactivity window
//  4. in_progress: playtime at or above the threshold
//  5. backlog:     everything else
//
// A mastered game that also qualifies as dropped stays mastered; the rule
// order is the tie-break. Games without an achievement system (total == 0)
// can never be mastered, and games never played can never be dropped.
func AutoTag(rec GameRecord, est *CompletionEstimate, s Settings, now time.Time) Tag {
	if rec.AchievementsTotal > 0 {
		ratio := float64(rec.AchievementsUnlocked) / float64(rec.AchievementsTotal)
		if ratio >= s.MasteredAchievementRatio {
			return TagMastered
		}
	}

	if est != nil && est.MainStoryHours != nil {
		if float64(rec.PlaytimeMinutes) >= *est.MainStoryHours*60 {
			return TagCompleted
		}
	}

	if rec.LastPlayedAt != nil && *rec.LastPlayedAt > 0 {
		if now.Unix()-*rec.LastPlayedAt >= int64(s.DroppedInactivityDays)*secondsPerDay {
			return TagDropped
		}
	}

	if rec.PlaytimeMinutes >= s.InProgressThresholdMinutes {
		return TagInProgress
	}

	return TagBacklog
}
