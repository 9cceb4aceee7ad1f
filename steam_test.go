package main

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFixture(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("creating %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

const tf2Manifest = `"AppState"
{
	"appid"		"440"
	"name"		"Team Fortress 2"
	"StateFlags"	"4"
}
`

const localConfig = `"UserLocalConfigStore"
{
	"Software"
	{
		"Valve"
		{
			"Steam"
			{
				"apps"
				{
					"440"
					{
						"Playtime"		"90"
						"LastPlayed"	"1700000000"
					}
					"620"
					{
						"TotalPlayTime"		"7200"
					}
				}
			}
		}
	}
}
`

const tf2Stats = `"stats"
{
	"achievements"
	{
		"TF_SCOUT_KILL"
		{
			"achieved"		"1"
		}
		"TF_HEAVY_KILL"
		{
			"achieved"		"0"
		}
		"TF_MEDIC_HEAL"
		{
			"achieved"		"1"
		}
	}
}
`

func newTestSteamRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFixture(t, filepath.Join(root, "steamapps", "appmanifest_440.acf"), tf2Manifest)
	writeFixture(t, filepath.Join(root, "userdata", "12345678", "config", "localconfig.vdf"), localConfig)
	writeFixture(t, filepath.Join(root, "userdata", "12345678", "440", "stats", "UserGameStats_440.vdf"), tf2Stats)
	return root
}

func TestObservationsFromInstallation(t *testing.T) {
	lib := &SteamLibrary{root: newTestSteamRoot(t)}

	obs, err := lib.Observations(DefaultSettings())
	if err != nil {
		t.Fatalf("Observations failed: %v", err)
	}
	got, ok := obs["440"]
	if !ok {
		t.Fatalf("no observation for 440: %v", obs)
	}
	if got.Name == nil || *got.Name != "Team Fortress 2" {
		t.Fatalf("name = %v", got.Name)
	}
	if got.PlaytimeMinutes == nil || *got.PlaytimeMinutes != 90 {
		t.Fatalf("playtime = %v", got.PlaytimeMinutes)
	}
	if got.LastPlayedAt == nil || *got.LastPlayedAt != 1700000000 {
		t.Fatalf("last played = %v", got.LastPlayedAt)
	}
	if got.AchievementsTotal == nil || *got.AchievementsTotal != 3 {
		t.Fatalf("achievement total = %v", got.AchievementsTotal)
	}
	if got.AchievementsUnlocked == nil || *got.AchievementsUnlocked != 2 {
		t.Fatalf("unlocked = %v", got.AchievementsUnlocked)
	}
}

func TestObservationsUninstalledGamePlaytimeIgnored(t *testing.T) {
	// 620 has playtime in localconfig but no appmanifest, so it is not
	// installed and must not appear in the scan.
	lib := &SteamLibrary{root: newTestSteamRoot(t)}

	obs, err := lib.Observations(DefaultSettings())
	if err != nil {
		t.Fatalf("Observations failed: %v", err)
	}
	if _, ok := obs["620"]; ok {
		t.Fatalf("uninstalled game observed: %v", obs["620"])
	}
}

func TestObservationsMissingStatsLeavesAchievementsAbsent(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, filepath.Join(root, "steamapps", "appmanifest_440.acf"), tf2Manifest)
	lib := &SteamLibrary{root: root}

	obs, err := lib.Observations(DefaultSettings())
	if err != nil {
		t.Fatalf("Observations failed: %v", err)
	}
	got := obs["440"]
	if got.AchievementsTotal != nil || got.AchievementsUnlocked != nil {
		t.Fatalf("achievement fields set with no stats file: %+v", got)
	}
	if got.PlaytimeMinutes != nil {
		t.Fatalf("playtime set with no localconfig: %+v", got)
	}
}

func TestObservationsTotalPlayTimeFallback(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, filepath.Join(root, "steamapps", "appmanifest_620.acf"), `"AppState"
{
	"appid"		"620"
	"name"		"Portal 2"
}
`)
	writeFixture(t, filepath.Join(root, "userdata", "12345678", "config", "localconfig.vdf"), localConfig)
	lib := &SteamLibrary{root: root}

	obs, err := lib.Observations(DefaultSettings())
	if err != nil {
		t.Fatalf("Observations failed: %v", err)
	}
	got := obs["620"]
	// 7200 seconds of TotalPlayTime is 120 minutes.
	if got.PlaytimeMinutes == nil || *got.PlaytimeMinutes != 120 {
		t.Fatalf("playtime = %v, want 120", got.PlaytimeMinutes)
	}
}

func TestObservationsSecondLibraryFolder(t *testing.T) {
	root := newTestSteamRoot(t)
	extra := t.TempDir()
	writeFixture(t, filepath.Join(extra, "steamapps", "appmanifest_620.acf"), `"AppState"
{
	"appid"		"620"
	"name"		"Portal 2"
}
`)
	writeFixture(t, filepath.Join(root, "steamapps", "libraryfolders.vdf"), `"libraryfolders"
{
	"0"
	{
		"path"		"`+root+`"
	}
	"1"
	{
		"path"		"`+extra+`"
	}
}
`)
	lib := &SteamLibrary{root: root}

	obs, err := lib.Observations(DefaultSettings())
	if err != nil {
		t.Fatalf("Observations failed: %v", err)
	}
	if _, ok := obs["440"]; !ok {
		t.Fatal("game from primary library missing")
	}
	if got, ok := obs["620"]; !ok || got.Name == nil || *got.Name != "Portal 2" {
		t.Fatalf("game from extra library: %+v (found %v)", got, ok)
	}
}

func TestObservationsSourceInstalledDisabled(t *testing.T) {
	lib := &SteamLibrary{root: newTestSteamRoot(t)}

	settings := DefaultSettings()
	settings.SourceInstalled = false
	obs, err := lib.Observations(settings)
	if err != nil {
		t.Fatalf("Observations failed: %v", err)
	}
	if len(obs) != 0 {
		t.Fatalf("scan ran with source disabled: %v", obs)
	}
}

func TestObservationsNoInstallation(t *testing.T) {
	lib := &SteamLibrary{root: ""}
	obs, err := lib.Observations(DefaultSettings())
	if err != nil {
		t.Fatalf("Observations failed: %v", err)
	}
	if len(obs) != 0 {
		t.Fatalf("observations without a root: %v", obs)
	}
}
