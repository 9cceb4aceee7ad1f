package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/andygrunwald/vdf"
)

// SteamLibrary reads installed-game data straight from a local Steam
// installation's VDF files. It is one observation source for the Syncer;
// the plugin frontend is the other (and the only one that sees live
// frontend-cache numbers and non-Steam shortcuts).
type SteamLibrary struct {
	root string
}

func NewSteamLibrary(cfg Config) *SteamLibrary {
	root := cfg.SteamRoot
	if root == "" {
		root = detectSteamRoot()
	}
	if root != "" {
		log.Printf("Steam installation: %s", root)
	} else {
		log.Println("Steam installation not found; local scan disabled")
	}
	return &SteamLibrary{root: root}
}

func detectSteamRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "/home/deck"
	}
	candidates := []string{
		filepath.Join(home, ".steam", "steam"),
		filepath.Join(home, ".local", "share", "Steam"),
		"/home/deck/.steam/steam",
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && info.IsDir() {
			return c
		}
	}
	return ""
}

func (l *SteamLibrary) Available() bool {
	return l.root != ""
}

// Observations scans the installation and returns one partial observation
// per installed game. Data a file does not carry stays nil so the sync
// merge never zeroes out state known from another source.
func (l *SteamLibrary) Observations(settings Settings) (map[string]Observation, error) {
	out := make(map[string]Observation)
	if l.root == "" || !settings.SourceInstalled {
		return out, nil
	}

	folders := l.libraryFolders()
	for _, folder := range folders {
		manifests, err := filepath.Glob(filepath.Join(folder, "steamapps", "appmanifest_*.acf"))
		if err != nil {
			continue
		}
		for _, manifest := range manifests {
			appID := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(manifest), "appmanifest_"), ".acf")
			name, err := appManifestName(manifest)
			if err != nil {
				log.Printf("Failed to parse %s: %v", manifest, err)
				continue
			}
			obs := Observation{}
			if name != "" {
				obs.Name = &name
			}
			out[appID] = obs
		}
	}

	userID := l.currentUserID()
	if userID == "" {
		return out, nil
	}

	for appID, pt := range l.localPlaytimes(userID) {
		obs, installed := out[appID]
		if !installed {
			// localconfig keeps entries for uninstalled games too.
			continue
		}
		if pt.minutes >= 0 {
			m := pt.minutes
			obs.PlaytimeMinutes = &m
		}
		if pt.lastPlayed > 0 {
			lp := pt.lastPlayed
			obs.LastPlayedAt = &lp
		}
		out[appID] = obs
	}

	for appID := range out {
		total, unlocked, ok := l.achievements(userID, appID)
		if !ok {
			continue
		}
		obs := out[appID]
		obs.AchievementsTotal = &total
		obs.AchievementsUnlocked = &unlocked
		out[appID] = obs
	}

	log.Printf("Local scan found %d installed games", len(out))
	return out, nil
}

// libraryFolders returns the Steam root plus any extra library locations
// listed in libraryfolders.vdf.
func (l *SteamLibrary) libraryFolders() []string {
	folders := []string{l.root}

	m, err := parseVDFFile(filepath.Join(l.root, "steamapps", "libraryfolders.vdf"))
	if err != nil {
		return folders
	}
	lib, ok := childMap(m, "libraryfolders")
	if !ok {
		return folders
	}
	keys := sortedKeys(lib)
	for _, key := range keys {
		entry, ok := lib[key].(map[string]interface{})
		if !ok {
			continue
		}
		path, _ := entry["path"].(string)
		if path == "" || path == l.root {
			continue
		}
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			folders = append(folders, path)
		}
	}
	return folders
}

// currentUserID picks the most recently used account directory under
// userdata, matching what the Steam client itself would consider current.
func (l *SteamLibrary) currentUserID() string {
	entries, err := os.ReadDir(filepath.Join(l.root, "userdata"))
	if err != nil {
		return ""
	}
	type userDir struct {
		id    string
		mtime int64
	}
	var users []userDir
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := strconv.Atoi(e.Name()); err != nil {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		users = append(users, userDir{id: e.Name(), mtime: info.ModTime().Unix()})
	}
	if len(users) == 0 {
		return ""
	}
	sort.Slice(users, func(i, j int) bool { return users[i].mtime > users[j].mtime })
	return users[0].id
}

type playtimeEntry struct {
	minutes    int
	lastPlayed int64
}

// localPlaytimes reads per-app playtime and last-played timestamps from the
// account's localconfig.vdf. Keys vary across client versions, so both the
// minute-based and second-based playtime fields are tried.
func (l *SteamLibrary) localPlaytimes(userID string) map[string]playtimeEntry {
	out := make(map[string]playtimeEntry)

	m, err := parseVDFFile(filepath.Join(l.root, "userdata", userID, "config", "localconfig.vdf"))
	if err != nil {
		return out
	}
	apps, ok := childMapPath(m, "UserLocalConfigStore", "Software", "Valve", "Steam", "apps")
	if !ok {
		return out
	}

	for appID, raw := range apps {
		app, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		entry := playtimeEntry{minutes: -1}
		if v, ok := intField(app, "Playtime"); ok {
			entry.minutes = v
		} else if v, ok := intField(app, "TotalPlayTime"); ok {
			entry.minutes = v / 60
		}
		if v, ok := intField(app, "LastPlayed"); ok {
			entry.lastPlayed = int64(v)
		}
		if entry.minutes >= 0 || entry.lastPlayed > 0 {
			out[appID] = entry
		}
	}
	return out
}

// achievements counts unlocked achievements from the per-app stats files.
// ok is false when no stats exist, so the caller leaves the observation
// fields absent instead of writing zeros over known data.
func (l *SteamLibrary) achievements(userID, appID string) (total, unlocked int, ok bool) {
	statsDir := filepath.Join(l.root, "userdata", userID, appID, "stats")
	files, err := filepath.Glob(filepath.Join(statsDir, "*.vdf"))
	if err != nil || len(files) == 0 {
		return 0, 0, false
	}
	sort.Strings(files)

	m, err := parseVDFFile(files[0])
	if err != nil {
		return 0, 0, false
	}
	achievements, found := childMapPath(m, "stats", "achievements")
	if !found || len(achievements) == 0 {
		return 0, 0, false
	}

	for _, raw := range achievements {
		ach, isMap := raw.(map[string]interface{})
		if !isMap {
			continue
		}
		total++
		if v, has := intField(ach, "achieved"); has && v == 1 {
			unlocked++
		}
	}
	if total == 0 {
		return 0, 0, false
	}
	return total, unlocked, true
}

func appManifestName(path string) (string, error) {
	m, err := parseVDFFile(path)
	if err != nil {
		return "", err
	}
	state, ok := childMap(m, "AppState")
	if !ok {
		return "", fmt.Errorf("no AppState in %s", filepath.Base(path))
	}
	name, _ := state["name"].(string)
	return name, nil
}

func parseVDFFile(path string) (map[string]interface{}, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return vdf.NewParser(f).Parse()
}

// childMap does a case-insensitive single-level descent; Valve is not
// consistent about key casing across client versions.
func childMap(m map[string]interface{}, key string) (map[string]interface{}, bool) {
	for k, v := range m {
		if strings.EqualFold(k, key) {
			child, ok := v.(map[string]interface{})
			return child, ok
		}
	}
	return nil, false
}

func childMapPath(m map[string]interface{}, keys ...string) (map[string]interface{}, bool) {
	cur := m
	for _, key := range keys {
		next, ok := childMap(cur, key)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func intField(m map[string]interface{}, key string) (int, bool) {
	for k, v := range m {
		if !strings.EqualFold(k, key) {
			continue
		}
		switch t := v.(type) {
		case string:
			n, err := strconv.Atoi(strings.TrimSpace(t))
			if err != nil {
				return 0, false
			}
			return n, true
		case int:
			return t, true
		case int64:
			return int(t), true
		case float64:
			return int(t), true
		}
	}
	return 0, false
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
