package main

import (
	"database/sql"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
)

// Server is the HTTP surface the plugin frontend talks to. Every response
// carries a {"success": bool} envelope so the frontend has one error path.
type Server struct {
	db     *sql.DB
	syncer *Syncer
	steam  *SteamLibrary
}

func NewServer(db *sql.DB, syncer *Syncer, steam *SteamLibrary) *Server {
	return &Server{db: db, syncer: syncer, steam: steam}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/games", s.handleListGames)
		r.Get("/games/backlog", s.handleBacklogGames)
		r.Get("/games/{appid}", s.handleGameDetails)
		r.Get("/games/{appid}/tag", s.handleGetTag)
		r.Put("/games/{appid}/tag", s.handleSetManualTag)
		r.Delete("/games/{appid}/tag", s.handleRemoveTag)
		r.Post("/games/{appid}/reset", s.handleResetToAuto)
		r.Get("/tags", s.handleListTags)
		r.Post("/sync", s.handleSync)
		r.Get("/sync/progress", s.handleSyncProgress)
		r.Get("/stats", s.handleStats)
		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handleUpdateSettings)
		r.Delete("/estimates", s.handleClearEstimates)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"success": false, "error": err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleListGames(w http.ResponseWriter, r *http.Request) {
	records, err := GetAllGameRecords(s.db, false)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "games": records})
}

func (s *Server) handleGameDetails(w http.ResponseWriter, r *http.Request) {
	appID := chi.URLParam(r, "appid")

	rec, err := GetGameRecord(s.db, appID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if rec == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "error": "unknown game"})
		return
	}
	tag, err := GetTag(s.db, appID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	est, err := GetCachedEstimate(s.db, appID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"appid":     appID,
		"stats":     rec,
		"tag":       tag,
		"hltb_data": est,
	})
}

func (s *Server) handleGetTag(w http.ResponseWriter, r *http.Request) {
	tag, err := GetTag(s.db, chi.URLParam(r, "appid"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "tag": tag})
}

func (s *Server) handleSetManualTag(w http.ResponseWriter, r *http.Request) {
	appID := chi.URLParam(r, "appid")

	var body struct {
		Tag Tag `json:"tag"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !body.Tag.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "tag must be one of: mastered, completed, dropped, in_progress, backlog",
		})
		return
	}
	if err := SetTag(s.db, appID, body.Tag, true); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	log.Printf("Manual tag set: %s = %s", appID, body.Tag)
	tag, err := GetTag(s.db, appID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "tag": tag})
}

func (s *Server) handleRemoveTag(w http.ResponseWriter, r *http.Request) {
	appID := chi.URLParam(r, "appid")
	if err := RemoveTag(s.db, appID); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	log.Printf("Tag removed: %s", appID)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleResetToAuto discards a manual pin and re-runs merge-and-classify
// for the game with a forced estimate refresh.
func (s *Server) handleResetToAuto(w http.ResponseWriter, r *http.Request) {
	appID := chi.URLParam(r, "appid")

	if _, syncErr := s.syncer.SyncGame(r.Context(), appID, Observation{}, true); syncErr != nil {
		if syncErr.Kind != ErrKindResolverNoMatch {
			writeJSON(w, http.StatusBadGateway, map[string]any{"success": false, "error": syncErr.Message})
			return
		}
	}
	tag, err := GetTag(s.db, appID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "tag": tag})
}

// handleListTags is the badge-list read path: every assignment with its
// game name, grouped by tag. Hidden games only show up when the user
// tagged them explicitly.
func (s *Server) handleListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := GetAllTagsWithNames(s.db)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "games": tags})
}

func (s *Server) handleBacklogGames(w http.ResponseWriter, r *http.Request) {
	games, err := GetBacklogGames(s.db)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "games": games})
}

type achievementObservation struct {
	Total    int `json:"total"`
	Unlocked int `json:"unlocked"`
}

// syncRequest is the payload the frontend posts: live frontend-cache
// playtime plus achievement counts and names gathered separately. Any of
// the three maps may cover a different subset of games.
type syncRequest struct {
	GameData        map[string]Observation            `json:"game_data"`
	AchievementData map[string]achievementObservation `json:"achievement_data"`
	GameNames       map[string]string                 `json:"game_names"`
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	observations := req.observations()
	if len(observations) == 0 && s.steam.Available() {
		// Nothing posted: fall back to scanning the local installation.
		settings, err := LoadSettings(s.db)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		observations, err = s.steam.Observations(settings)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}

	result, err := s.syncer.Reconcile(r.Context(), observations)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"total":   result.Total,
		"synced":  result.Synced,
		"changed": result.Changed,
		"errors":  result.Errors,
	})
}

// observations folds the three frontend maps into per-game observations.
// Achievement entries with a zero total mean "no data", not "no
// achievements", and are left absent so stored counts survive the merge.
func (req syncRequest) observations() map[string]Observation {
	out := make(map[string]Observation, len(req.GameData))
	for appID, obs := range req.GameData {
		out[appID] = obs
	}
	for appID, ach := range req.AchievementData {
		if ach.Total <= 0 {
			continue
		}
		obs := out[appID]
		total, unlocked := ach.Total, ach.Unlocked
		obs.AchievementsTotal = &total
		obs.AchievementsUnlocked = &unlocked
		out[appID] = obs
	}
	for appID, name := range req.GameNames {
		if name == "" {
			continue
		}
		obs := out[appID]
		n := name
		obs.Name = &n
		out[appID] = obs
	}
	return out
}

func (s *Server) handleSyncProgress(w http.ResponseWriter, r *http.Request) {
	syncing, current, total := s.syncer.Progress()
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"syncing": syncing,
		"current": current,
		"total":   total,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := GetTagStatistics(s.db)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "stats": stats})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := LoadSettings(s.db)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "settings": settings})
}

// settingsPatch updates only the fields present in the request body.
type settingsPatch struct {
	AutoTagEnabled             *bool    `json:"auto_tag_enabled"`
	InProgressThresholdMinutes *int     `json:"in_progress_threshold"`
	MasteredAchievementRatio   *float64 `json:"mastered_achievement_ratio"`
	DroppedInactivityDays      *int     `json:"dropped_inactivity_days"`
	SourceInstalled            *bool    `json:"source_installed"`
	SourceNonSteam             *bool    `json:"source_non_steam"`
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var patch settingsPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	settings, err := LoadSettings(s.db)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if err := patch.apply(&settings); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := SaveSettings(s.db, settings); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	log.Printf("Settings updated: %+v", settings)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "settings": settings})
}

func (p settingsPatch) apply(s *Settings) error {
	if p.InProgressThresholdMinutes != nil && *p.InProgressThresholdMinutes < 0 {
		return errors.New("in_progress_threshold must be >= 0")
	}
	if p.MasteredAchievementRatio != nil && (*p.MasteredAchievementRatio < 0 || *p.MasteredAchievementRatio > 1) {
		return errors.New("mastered_achievement_ratio must be between 0 and 1")
	}
	if p.DroppedInactivityDays != nil && *p.DroppedInactivityDays < 1 {
		return errors.New("dropped_inactivity_days must be >= 1")
	}

	if p.AutoTagEnabled != nil {
		s.AutoTagEnabled = *p.AutoTagEnabled
	}
	if p.InProgressThresholdMinutes != nil {
		s.InProgressThresholdMinutes = *p.InProgressThresholdMinutes
	}
	if p.MasteredAchievementRatio != nil {
		s.MasteredAchievementRatio = *p.MasteredAchievementRatio
	}
	if p.DroppedInactivityDays != nil {
		s.DroppedInactivityDays = *p.DroppedInactivityDays
	}
	if p.SourceInstalled != nil {
		s.SourceInstalled = *p.SourceInstalled
	}
	if p.SourceNonSteam != nil {
		s.SourceNonSteam = *p.SourceNonSteam
	}
	return nil
}

func (s *Server) handleClearEstimates(w http.ResponseWriter, r *http.Request) {
	if err := ClearEstimateCache(s.db); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	log.Println("Completion estimate cache cleared")
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
