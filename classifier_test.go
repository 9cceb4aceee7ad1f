package main

import (
	"testing"
	"time"
)

func intPtr(v int) *int           { return &v }
func int64Ptr(v int64) *int64     { return &v }
func floatPtr(v float64) *float64 { return &v }
func strPtr(v string) *string     { return &v }

func estimateWithMainStory(hours float64) *CompletionEstimate {
	return &CompletionEstimate{
		MatchedName:    "Some Game",
		Similarity:     0.95,
		MainStoryHours: floatPtr(hours),
		ResolvedAt:     time.Now(),
	}
}

func TestAutoTagPriorityOrder(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := DefaultSettings()

	// Fully mastered but untouched for two years: rule order wins, not recency.
	twoYearsAgo := now.Unix() - 2*365*secondsPerDay
	rec := GameRecord{
		PlaytimeMinutes:      5000,
		AchievementsTotal:    20,
		AchievementsUnlocked: 20,
		LastPlayedAt:         int64Ptr(twoYearsAgo),
	}
	if got := AutoTag(rec, nil, s, now); got != TagMastered {
		t.Fatalf("mastered+dropped game: got %q, want %q", got, TagMastered)
	}

	// Completed also outranks dropped.
	rec = GameRecord{
		PlaytimeMinutes: 700,
		LastPlayedAt:    int64Ptr(twoYearsAgo),
	}
	if got := AutoTag(rec, estimateWithMainStory(10), s, now); got != TagCompleted {
		t.Fatalf("completed+dropped game: got %q, want %q", got, TagCompleted)
	}
}

func TestAutoTagNoAchievementSystemNeverMastered(t *testing.T) {
	now := time.Now()
	s := DefaultSettings()
	s.MasteredAchievementRatio = 0 // even a zero threshold must not apply

	rec := GameRecord{
		PlaytimeMinutes:      10,
		AchievementsTotal:    0,
		AchievementsUnlocked: 5,
	}
	if got := AutoTag(rec, nil, s, now); got == TagMastered {
		t.Fatalf("game without achievement system classified mastered")
	}
}

func TestAutoTagRatioThresholdInclusive(t *testing.T) {
	now := time.Now()
	s := DefaultSettings()
	s.MasteredAchievementRatio = 0.85

	// 17/20 is exactly 0.85.
	rec := GameRecord{
		PlaytimeMinutes:      100,
		AchievementsTotal:    20,
		AchievementsUnlocked: 17,
	}
	if got := AutoTag(rec, nil, s, now); got != TagMastered {
		t.Fatalf("ratio exactly at threshold: got %q, want %q", got, TagMastered)
	}

	rec.AchievementsUnlocked = 16
	if got := AutoTag(rec, nil, s, now); got == TagMastered {
		t.Fatalf("ratio below threshold classified mastered")
	}
}

func TestAutoTagMissingLastPlayedNeverDropped(t *testing.T) {
	now := time.Now()
	s := DefaultSettings()

	rec := GameRecord{PlaytimeMinutes: 10}
	if got := AutoTag(rec, nil, s, now); got == TagDropped {
		t.Fatalf("game without last-played timestamp classified dropped")
	}
}

func TestAutoTagTable(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	recent := now.Unix() - 10*secondsPerDay
	stale := now.Unix() - 400*secondsPerDay

	tests := []struct {
		name     string
		rec      GameRecord
		est      *CompletionEstimate
		settings func(*Settings)
		want     Tag
	}{
		{
			name: "fresh 90 minutes no achievements no estimate",
			rec:  GameRecord{PlaytimeMinutes: 90},
			want: TagInProgress,
		},
		{
			name: "corrected playtime 45 still over default threshold",
			rec:  GameRecord{PlaytimeMinutes: 45},
			want: TagInProgress,
		},
		{
			name:     "corrected playtime 45 under raised threshold",
			rec:      GameRecord{PlaytimeMinutes: 45},
			settings: func(s *Settings) { s.InProgressThresholdMinutes = 60 },
			want:     TagBacklog,
		},
		{
			name: "beat the main story",
			rec:  GameRecord{PlaytimeMinutes: 650, LastPlayedAt: int64Ptr(recent)},
			est:  estimateWithMainStory(10), // 600 minutes
			want: TagCompleted,
		},
		{
			name: "just under the main story",
			rec:  GameRecord{PlaytimeMinutes: 599, LastPlayedAt: int64Ptr(recent)},
			est:  estimateWithMainStory(10),
			want: TagInProgress,
		},
		{
			name: "playtime exactly at the main story",
			rec:  GameRecord{PlaytimeMinutes: 600},
			est:  estimateWithMainStory(10),
			want: TagCompleted,
		},
		{
			name: "estimate without a main story figure",
			rec:  GameRecord{PlaytimeMinutes: 650},
			est:  &CompletionEstimate{MatchedName: "Some Game", Similarity: 0.9},
			want: TagInProgress,
		},
		{
			name: "stale low-playtime game",
			rec:  GameRecord{PlaytimeMinutes: 20, LastPlayedAt: int64Ptr(stale)},
			want: TagDropped,
		},
		{
			name: "stale game over the in-progress threshold",
			rec:  GameRecord{PlaytimeMinutes: 200, LastPlayedAt: int64Ptr(stale)},
			want: TagDropped,
		},
		{
			name: "zero playtime never played",
			rec:  GameRecord{},
			want: TagBacklog,
		},
		{
			name: "playtime exactly at in-progress threshold",
			rec:  GameRecord{PlaytimeMinutes: 30},
			want: TagInProgress,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := DefaultSettings()
			if tc.settings != nil {
				tc.settings(&s)
			}
			if got := AutoTag(tc.rec, tc.est, s, now); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}
