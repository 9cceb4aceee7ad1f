package main

import (
	"database/sql"
	"testing"
	"time"
)

func seedPlayedGame(t *testing.T, db *sql.DB, appID, name string, lastPlayed int64) {
	t.Helper()
	if err := UpsertGameRecord(db, GameRecord{
		AppID:           appID,
		Name:            name,
		PlaytimeMinutes: 120,
		LastPlayedAt:    &lastPlayed,
	}); err != nil {
		t.Fatalf("seeding %s: %v", appID, err)
	}
}

func TestCheckDroppedGames(t *testing.T) {
	db := newTestDB(t)
	now := time.Now()
	staleTime := now.Unix() - 400*secondsPerDay
	recentTime := now.Unix() - 10*secondsPerDay

	seedPlayedGame(t, db, "1", "Stale Untagged", staleTime)
	seedPlayedGame(t, db, "2", "Recently Played", recentTime)
	seedPlayedGame(t, db, "3", "Stale But Completed", staleTime)
	if err := SetTag(db, "3", TagCompleted, false); err != nil {
		t.Fatalf("SetTag failed: %v", err)
	}
	seedPlayedGame(t, db, "4", "Stale But Pinned", staleTime)
	if err := SetTag(db, "4", TagInProgress, true); err != nil {
		t.Fatalf("SetTag failed: %v", err)
	}
	seedPlayedGame(t, db, "5", "Stale In Progress", staleTime)
	if err := SetTag(db, "5", TagInProgress, false); err != nil {
		t.Fatalf("SetTag failed: %v", err)
	}

	dropped, err := CheckDroppedGames(db, now)
	if err != nil {
		t.Fatalf("CheckDroppedGames failed: %v", err)
	}
	if dropped != 2 {
		t.Fatalf("dropped = %d, want 2", dropped)
	}

	wantTags := map[string]Tag{
		"1": TagDropped,
		"2": TagNone,
		"3": TagCompleted,
		"4": TagInProgress,
		"5": TagDropped,
	}
	for appID, want := range wantTags {
		tag, err := GetTag(db, appID)
		if err != nil {
			t.Fatalf("GetTag(%s) failed: %v", appID, err)
		}
		got := TagNone
		if tag != nil {
			got = tag.Tag
		}
		if got != want {
			t.Errorf("game %s: tag %q, want %q", appID, got, want)
		}
	}

	// The pin survives untouched.
	tag, err := GetTag(db, "4")
	if err != nil || tag == nil || !tag.IsManual {
		t.Fatalf("manual pin lost: %v, %v", tag, err)
	}
}

func TestCheckDroppedGamesIdempotent(t *testing.T) {
	db := newTestDB(t)
	now := time.Now()
	seedPlayedGame(t, db, "1", "Stale Game", now.Unix()-400*secondsPerDay)

	first, err := CheckDroppedGames(db, now)
	if err != nil || first != 1 {
		t.Fatalf("first run: %d, %v", first, err)
	}
	second, err := CheckDroppedGames(db, now)
	if err != nil || second != 0 {
		t.Fatalf("second run: %d, %v; want 0", second, err)
	}
}

func TestCheckDroppedGamesDisabled(t *testing.T) {
	db := newTestDB(t)
	now := time.Now()
	seedPlayedGame(t, db, "1", "Stale Game", now.Unix()-400*secondsPerDay)

	settings, err := LoadSettings(db)
	if err != nil {
		t.Fatalf("LoadSettings failed: %v", err)
	}
	settings.AutoTagEnabled = false
	if err := SaveSettings(db, settings); err != nil {
		t.Fatalf("SaveSettings failed: %v", err)
	}

	dropped, err := CheckDroppedGames(db, now)
	if err != nil || dropped != 0 {
		t.Fatalf("dropped = %d, %v; want 0 with auto-tagging off", dropped, err)
	}
	if tag, err := GetTag(db, "1"); err != nil || tag != nil {
		t.Fatalf("tag = %v, %v; want none", tag, err)
	}
}

func TestCheckDroppedGamesRespectsInactivityWindow(t *testing.T) {
	db := newTestDB(t)
	now := time.Now()
	seedPlayedGame(t, db, "1", "Forty Days Idle", now.Unix()-40*secondsPerDay)

	settings, err := LoadSettings(db)
	if err != nil {
		t.Fatalf("LoadSettings failed: %v", err)
	}
	settings.DroppedInactivityDays = 30
	if err := SaveSettings(db, settings); err != nil {
		t.Fatalf("SaveSettings failed: %v", err)
	}

	dropped, err := CheckDroppedGames(db, now)
	if err != nil || dropped != 1 {
		t.Fatalf("dropped = %d, %v; want 1 at 30-day window", dropped, err)
	}
}
