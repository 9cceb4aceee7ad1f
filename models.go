package main

import "time"

// Tag is one of the five mutually exclusive progress categories.
type Tag string

const (
	TagNone       Tag = "" // no stored assignment
	TagMastered   Tag = "mastered"
	TagCompleted  Tag = "completed"
	TagDropped    Tag = "dropped"
	TagInProgress Tag = "in_progress"
	TagBacklog    Tag = "backlog"
)

// Valid reports whether t is a storable tag value.
func (t Tag) Valid() bool {
	switch t {
	case TagMastered, TagCompleted, TagDropped, TagInProgress, TagBacklog:
		return true
	}
	return false
}

// GameRecord is the persisted per-game state, one row per appid.
type GameRecord struct {
	AppID                string    `json:"appid"`
	Name                 string    `json:"game_name"`
	PlaytimeMinutes      int       `json:"playtime_minutes"`
	LastPlayedAt         *int64    `json:"rt_last_time_played"` // unix seconds, nil if never played
	AchievementsTotal    int       `json:"total_achievements"`  // 0 means the game has no achievement system
	AchievementsUnlocked int       `json:"unlocked_achievements"`
	IsHidden             bool      `json:"is_hidden"` // non-Steam shortcut with no completion estimate
	LastSyncAt           time.Time `json:"last_sync"`
}

// Observation is one sync pass worth of freshly gathered data for a game.
// Nil fields were not observed this pass and must not clobber stored values.
type Observation struct {
	Name                 *string `json:"name"`
	PlaytimeMinutes      *int    `json:"playtime_minutes"`
	LastPlayedAt         *int64  `json:"rt_last_time_played"`
	AchievementsTotal    *int    `json:"total_achievements"`
	AchievementsUnlocked *int    `json:"unlocked_achievements"`
}

// TagAssignment is the current tag for a game. IsManual marks a user pin
// that automatic syncs must never overwrite.
type TagAssignment struct {
	AppID     string    `json:"appid"`
	Tag       Tag       `json:"tag"`
	IsManual  bool      `json:"is_manual"`
	UpdatedAt time.Time `json:"last_updated"`
}

// TaggedGame is one row of the frontend's tag list: a tag assignment
// joined with its game's display name.
type TaggedGame struct {
	AppID    string `json:"appid"`
	Name     string `json:"game_name"`
	Tag      Tag    `json:"tag"`
	IsManual bool   `json:"is_manual"`
}

// CompletionEstimate is a cached HowLongToBeat lookup result for a game.
// Hour fields are nil when the service has no figure for that style.
type CompletionEstimate struct {
	AppID              string    `json:"appid"`
	QueryName          string    `json:"game_name"`
	MatchedName        string    `json:"matched_name"`
	Similarity         float64   `json:"similarity"`
	MainStoryHours     *float64  `json:"main_story"`
	MainExtraHours     *float64  `json:"main_extra"`
	CompletionistHours *float64  `json:"completionist"`
	ResolvedAt         time.Time `json:"cached_at"`
}

// Settings are the runtime tagging knobs, persisted in the settings table
// and mutable through the API.
type Settings struct {
	AutoTagEnabled             bool    `json:"auto_tag_enabled"`
	InProgressThresholdMinutes int     `json:"in_progress_threshold"`
	MasteredAchievementRatio   float64 `json:"mastered_achievement_ratio"`
	DroppedInactivityDays      int     `json:"dropped_inactivity_days"`
	SourceInstalled            bool    `json:"source_installed"`
	SourceNonSteam             bool    `json:"source_non_steam"`
}

// DefaultSettings are seeded into a fresh database.
func DefaultSettings() Settings {
	return Settings{
		AutoTagEnabled:             true,
		InProgressThresholdMinutes: 30,
		MasteredAchievementRatio:   0.85,
		DroppedInactivityDays:      365,
		SourceInstalled:            true,
		SourceNonSteam:             false,
	}
}

// ErrorKind classifies a per-game sync failure.
type ErrorKind string

const (
	ErrKindResolverUnavailable ErrorKind = "resolver_unavailable"
	ErrKindResolverNoMatch     ErrorKind = "resolver_no_match"
	ErrKindStoreIO             ErrorKind = "store_io"
	ErrKindInvalidObservation  ErrorKind = "invalid_observation"
)

// SyncError records one failed game in a sync pass.
type SyncError struct {
	AppID   string    `json:"appid"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"error"`
}

// SyncResult aggregates one batch reconcile pass.
// Synced counts games fully processed without error; Changed counts games
// whose stored tag value was rewritten.
type SyncResult struct {
	Total   int         `json:"total"`
	Synced  int         `json:"synced"`
	Changed int         `json:"changed"`
	Errors  []SyncError `json:"errors"`
}

// TagStatistics are per-tag counts over visible games. Backlog includes
// games with no stored assignment.
type TagStatistics struct {
	Mastered   int `json:"mastered"`
	Completed  int `json:"completed"`
	Dropped    int `json:"dropped"`
	InProgress int `json:"in_progress"`
	Backlog    int `json:"backlog"`
	Total      int `json:"total"`
}

// nonSteamAppIDFloor is the first appid Steam assigns to local shortcuts.
// Anything above it is a non-Steam app (Discord, browsers, emulators).
const nonSteamAppIDFloor = 2_000_000_000

func isNonSteamAppID(appID string) bool {
	if appID == "" {
		return false
	}
	var n int64
	for _, r := range appID {
		if r < '0' || r > '9' {
			return false
		}
		n = n*10 + int64(r-'0')
		if n > 1<<40 {
			break
		}
	}
	return n > nonSteamAppIDFloor
}
