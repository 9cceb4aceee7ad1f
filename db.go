package main

import (
	"database/sql"
	"fmt"
	"strconv"

	_ "github.com/mattn/go-sqlite3"
)

func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS game_stats (
		appid                 TEXT PRIMARY KEY,
		game_name             TEXT NOT NULL DEFAULT '',
		playtime_minutes      INTEGER NOT NULL DEFAULT 0,
		total_achievements    INTEGER NOT NULL DEFAULT 0,
		unlocked_achievements INTEGER NOT NULL DEFAULT 0,
		rt_last_time_played   INTEGER,
		is_hidden             BOOLEAN NOT NULL DEFAULT 0,
		last_sync             DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_stats_hidden ON game_stats(is_hidden);
	CREATE INDEX IF NOT EXISTS idx_stats_last_played ON game_stats(rt_last_time_played);

	CREATE TABLE IF NOT EXISTS game_tags (
		appid        TEXT PRIMARY KEY,
		tag          TEXT NOT NULL CHECK(tag IN ('mastered', 'completed', 'dropped', 'in_progress', 'backlog')),
		is_manual    BOOLEAN NOT NULL DEFAULT 0,
		last_updated DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_tags_tag ON game_tags(tag);
	CREATE INDEX IF NOT EXISTS idx_tags_manual ON game_tags(is_manual);

	CREATE TABLE IF NOT EXISTS hltb_cache (
		appid            TEXT PRIMARY KEY,
		game_name        TEXT NOT NULL DEFAULT '',
		matched_name     TEXT NOT NULL DEFAULT '',
		similarity_score REAL NOT NULL DEFAULT 0,
		main_story       REAL,
		main_extra       REAL,
		completionist    REAL,
		cached_at        DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS settings (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}

	defaults := DefaultSettings()
	_, err = db.Exec(`
		INSERT OR IGNORE INTO settings (key, value) VALUES
			('auto_tag_enabled', ?),
			('in_progress_threshold', ?),
			('mastered_achievement_ratio', ?),
			('dropped_inactivity_days', ?),
			('source_installed', ?),
			('source_non_steam', ?)`,
		strconv.FormatBool(defaults.AutoTagEnabled),
		strconv.Itoa(defaults.InProgressThresholdMinutes),
		strconv.FormatFloat(defaults.MasteredAchievementRatio, 'f', -1, 64),
		strconv.Itoa(defaults.DroppedInactivityDays),
		strconv.FormatBool(defaults.SourceInstalled),
		strconv.FormatBool(defaults.SourceNonSteam),
	)
	if err != nil {
		return nil, err
	}

	return db, nil
}

// --- Game records ---

func GetGameRecord(db *sql.DB, appID string) (*GameRecord, error) {
	var rec GameRecord
	var lastPlayed sql.NullInt64
	err := db.QueryRow(
		`SELECT appid, game_name, playtime_minutes, total_achievements, unlocked_achievements, rt_last_time_played, is_hidden, last_sync
		 FROM game_stats WHERE appid = ?`,
		appID,
	).Scan(
		&rec.AppID, &rec.Name, &rec.PlaytimeMinutes, &rec.AchievementsTotal,
		&rec.AchievementsUnlocked, &lastPlayed, &rec.IsHidden, &rec.LastSyncAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if lastPlayed.Valid {
		rec.LastPlayedAt = &lastPlayed.Int64
	}
	return &rec, nil
}

func UpsertGameRecord(db *sql.DB, rec GameRecord) error {
	var lastPlayed sql.NullInt64
	if rec.LastPlayedAt != nil {
		lastPlayed = sql.NullInt64{Int64: *rec.LastPlayedAt, Valid: true}
	}
	_, err := db.Exec(`
		INSERT INTO game_stats (appid, game_name, playtime_minutes, total_achievements, unlocked_achievements, rt_last_time_played, is_hidden, last_sync)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(appid) DO UPDATE SET
			game_name             = excluded.game_name,
			playtime_minutes      = excluded.playtime_minutes,
			total_achievements    = excluded.total_achievements,
			unlocked_achievements = excluded.unlocked_achievements,
			rt_last_time_played   = excluded.rt_last_time_played,
			is_hidden             = excluded.is_hidden,
			last_sync             = CURRENT_TIMESTAMP`,
		rec.AppID, rec.Name, rec.PlaytimeMinutes, rec.AchievementsTotal,
		rec.AchievementsUnlocked, lastPlayed, rec.IsHidden,
	)
	return err
}

func GetAllGameRecords(db *sql.DB, includeHidden bool) ([]GameRecord, error) {
	query := `SELECT appid, game_name, playtime_minutes, total_achievements, unlocked_achievements, rt_last_time_played, is_hidden, last_sync
	          FROM game_stats`
	if !includeHidden {
		query += ` WHERE is_hidden = 0`
	}
	query += ` ORDER BY appid`

	rows, err := db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []GameRecord
	for rows.Next() {
		var rec GameRecord
		var lastPlayed sql.NullInt64
		if err := rows.Scan(
			&rec.AppID, &rec.Name, &rec.PlaytimeMinutes, &rec.AchievementsTotal,
			&rec.AchievementsUnlocked, &lastPlayed, &rec.IsHidden, &rec.LastSyncAt,
		); err != nil {
			return nil, err
		}
		if lastPlayed.Valid {
			rec.LastPlayedAt = &lastPlayed.Int64
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetGamesEligibleForDropped returns visible, automatically tagged games
// whose last play predates the cutoff and whose current tag would not be
// demoted by a dropped assignment (untagged, backlog, or in_progress).
func GetGamesEligibleForDropped(db *sql.DB, cutoff int64) ([]GameRecord, error) {
	rows, err := db.Query(`
		SELECT g.appid, g.game_name, g.playtime_minutes, g.total_achievements, g.unlocked_achievements, g.rt_last_time_played, g.is_hidden, g.last_sync
		FROM game_stats g
		LEFT JOIN game_tags t ON t.appid = g.appid
		WHERE g.is_hidden = 0
		  AND g.rt_last_time_played IS NOT NULL
		  AND g.rt_last_time_played > 0
		  AND g.rt_last_time_played <= ?
		  AND (t.appid IS NULL OR (t.is_manual = 0 AND t.tag IN ('in_progress', 'backlog')))
		ORDER BY g.appid`,
		cutoff,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []GameRecord
	for rows.Next() {
		var rec GameRecord
		var lastPlayed sql.NullInt64
		if err := rows.Scan(
			&rec.AppID, &rec.Name, &rec.PlaytimeMinutes, &rec.AchievementsTotal,
			&rec.AchievementsUnlocked, &lastPlayed, &rec.IsHidden, &rec.LastSyncAt,
		); err != nil {
			return nil, err
		}
		if lastPlayed.Valid {
			rec.LastPlayedAt = &lastPlayed.Int64
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// --- Tags ---

func GetTag(db *sql.DB, appID string) (*TagAssignment, error) {
	var ta TagAssignment
	err := db.QueryRow(
		`SELECT appid, tag, is_manual, last_updated FROM game_tags WHERE appid = ?`,
		appID,
	).Scan(&ta.AppID, &ta.Tag, &ta.IsManual, &ta.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ta, nil
}

func SetTag(db *sql.DB, appID string, tag Tag, isManual bool) error {
	if !tag.Valid() {
		return fmt.Errorf("invalid tag %q", tag)
	}
	_, err := db.Exec(`
		INSERT INTO game_tags (appid, tag, is_manual, last_updated)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(appid) DO UPDATE SET
			tag          = excluded.tag,
			is_manual    = excluded.is_manual,
			last_updated = CURRENT_TIMESTAMP`,
		appID, string(tag), isManual,
	)
	return err
}

func RemoveTag(db *sql.DB, appID string) error {
	_, err := db.Exec(`DELETE FROM game_tags WHERE appid = ?`, appID)
	return err
}

// GetAllTagsWithNames returns every tag assignment joined with its game
// name, for the frontend's badge list. Hidden games are skipped unless
// their tag was set manually. Ordered by tag group, then by name.
func GetAllTagsWithNames(db *sql.DB) ([]TaggedGame, error) {
	rows, err := db.Query(`
		SELECT t.appid, COALESCE(g.game_name, ''), t.tag, t.is_manual
		FROM game_tags t
		LEFT JOIN game_stats g ON g.appid = t.appid
		WHERE t.is_manual = 1 OR g.appid IS NULL OR g.is_hidden = 0
		ORDER BY CASE t.tag
			WHEN 'completed' THEN 0
			WHEN 'mastered' THEN 1
			WHEN 'in_progress' THEN 2
			WHEN 'dropped' THEN 3
			ELSE 99
		END, LOWER(g.game_name)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TaggedGame
	for rows.Next() {
		var tg TaggedGame
		if err := rows.Scan(&tg.AppID, &tg.Name, &tg.Tag, &tg.IsManual); err != nil {
			return nil, err
		}
		if tg.Name == "" {
			tg.Name = "Game " + tg.AppID
		}
		out = append(out, tg)
	}
	return out, rows.Err()
}

// GetBacklogGames returns the visible games whose effective tag is
// backlog: an explicit backlog row or no stored assignment at all.
func GetBacklogGames(db *sql.DB) ([]TaggedGame, error) {
	rows, err := db.Query(`
		SELECT g.appid, g.game_name
		FROM game_stats g
		LEFT JOIN game_tags t ON t.appid = g.appid
		WHERE g.is_hidden = 0 AND (t.appid IS NULL OR t.tag = 'backlog')
		ORDER BY LOWER(g.game_name)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TaggedGame
	for rows.Next() {
		tg := TaggedGame{Tag: TagBacklog}
		if err := rows.Scan(&tg.AppID, &tg.Name); err != nil {
			return nil, err
		}
		if tg.Name == "" {
			tg.Name = "Game " + tg.AppID
		}
		out = append(out, tg)
	}
	return out, rows.Err()
}

// GetTagStatistics counts tags over visible games. Games with no stored
// assignment (and stored backlog rows) both count into Backlog, so the
// per-tag counts always sum to Total.
func GetTagStatistics(db *sql.DB) (TagStatistics, error) {
	var stats TagStatistics

	err := db.QueryRow(`SELECT COUNT(*) FROM game_stats WHERE is_hidden = 0`).Scan(&stats.Total)
	if err != nil {
		return stats, err
	}

	rows, err := db.Query(`
		SELECT t.tag, COUNT(*)
		FROM game_tags t
		LEFT JOIN game_stats g ON g.appid = t.appid
		WHERE g.appid IS NULL OR g.is_hidden = 0
		GROUP BY t.tag`)
	if err != nil {
		return stats, err
	}
	defer rows.Close()

	tagged := 0
	for rows.Next() {
		var tag Tag
		var count int
		if err := rows.Scan(&tag, &count); err != nil {
			return stats, err
		}
		switch tag {
		case TagMastered:
			stats.Mastered = count
		case TagCompleted:
			stats.Completed = count
		case TagDropped:
			stats.Dropped = count
		case TagInProgress:
			stats.InProgress = count
		case TagBacklog:
			stats.Backlog = count
		}
		tagged += count
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	// Untagged visible games are backlog by definition.
	if untagged := stats.Total - tagged; untagged > 0 {
		stats.Backlog += untagged
	}
	return stats, nil
}

// --- Completion estimate cache ---

func GetCachedEstimate(db *sql.DB, appID string) (*CompletionEstimate, error) {
	var est CompletionEstimate
	var mainStory, mainExtra, completionist sql.NullFloat64
	err := db.QueryRow(
		`SELECT appid, game_name, matched_name, similarity_score, main_story, main_extra, completionist, cached_at
		 FROM hltb_cache WHERE appid = ?`,
		appID,
	).Scan(&est.AppID, &est.QueryName, &est.MatchedName, &est.Similarity,
		&mainStory, &mainExtra, &completionist, &est.ResolvedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if mainStory.Valid {
		est.MainStoryHours = &mainStory.Float64
	}
	if mainExtra.Valid {
		est.MainExtraHours = &mainExtra.Float64
	}
	if completionist.Valid {
		est.CompletionistHours = &completionist.Float64
	}
	return &est, nil
}

func CacheEstimate(db *sql.DB, est CompletionEstimate) error {
	toNull := func(f *float64) sql.NullFloat64 {
		if f == nil {
			return sql.NullFloat64{}
		}
		return sql.NullFloat64{Float64: *f, Valid: true}
	}
	_, err := db.Exec(`
		INSERT INTO hltb_cache (appid, game_name, matched_name, similarity_score, main_story, main_extra, completionist, cached_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(appid) DO UPDATE SET
			game_name        = excluded.game_name,
			matched_name     = excluded.matched_name,
			similarity_score = excluded.similarity_score,
			main_story       = excluded.main_story,
			main_extra       = excluded.main_extra,
			completionist    = excluded.completionist,
			cached_at        = CURRENT_TIMESTAMP`,
		est.AppID, est.QueryName, est.MatchedName, est.Similarity,
		toNull(est.MainStoryHours), toNull(est.MainExtraHours), toNull(est.CompletionistHours),
	)
	return err
}

// ClearEstimateCache drops all cached lookups so the next sync refetches.
func ClearEstimateCache(db *sql.DB) error {
	_, err := db.Exec(`DELETE FROM hltb_cache`)
	return err
}

// --- Settings ---

func GetSetting(db *sql.DB, key string) (string, bool, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func SetSetting(db *sql.DB, key, value string) error {
	_, err := db.Exec(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// LoadSettings reads the settings table into a Settings value, falling back
// to the defaults for missing or unparseable entries.
func LoadSettings(db *sql.DB) (Settings, error) {
	s := DefaultSettings()

	rows, err := db.Query(`SELECT key, value FROM settings`)
	if err != nil {
		return s, err
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return s, err
		}
		switch key {
		case "auto_tag_enabled":
			if v, err := strconv.ParseBool(value); err == nil {
				s.AutoTagEnabled = v
			}
		case "in_progress_threshold":
			if v, err := strconv.Atoi(value); err == nil && v >= 0 {
				s.InProgressThresholdMinutes = v
			}
		case "mastered_achievement_ratio":
			if v, err := strconv.ParseFloat(value, 64); err == nil && v >= 0 && v <= 1 {
				s.MasteredAchievementRatio = v
			}
		case "dropped_inactivity_days":
			if v, err := strconv.Atoi(value); err == nil && v > 0 {
				s.DroppedInactivityDays = v
			}
		case "source_installed":
			if v, err := strconv.ParseBool(value); err == nil {
				s.SourceInstalled = v
			}
		case "source_non_steam":
			if v, err := strconv.ParseBool(value); err == nil {
				s.SourceNonSteam = v
			}
		}
	}
	return s, rows.Err()
}

// SaveSettings writes every field of s back to the settings table.
func SaveSettings(db *sql.DB, s Settings) error {
	pairs := map[string]string{
		"auto_tag_enabled":           strconv.FormatBool(s.AutoTagEnabled),
		"in_progress_threshold":      strconv.Itoa(s.InProgressThresholdMinutes),
		"mastered_achievement_ratio": strconv.FormatFloat(s.MasteredAchievementRatio, 'f', -1, 64),
		"dropped_inactivity_days":    strconv.Itoa(s.DroppedInactivityDays),
		"source_installed":           strconv.FormatBool(s.SourceInstalled),
		"source_non_steam":           strconv.FormatBool(s.SourceNonSteam),
	}
	for key, value := range pairs {
		if err := SetSetting(db, key, value); err != nil {
			return err
		}
	}
	return nil
}
