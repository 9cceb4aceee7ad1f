package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"
)

// Syncer reconciles observed per-game data into the store and keeps tags
// current. Passes are serialized: a sync requested while one is running
// waits behind it rather than interleaving against the same store.
type Syncer struct {
	db       *sql.DB
	resolver CompletionTimeResolver

	mu sync.Mutex // serializes reconcile passes

	progressMu sync.Mutex
	syncing    bool
	current    int
	total      int
}

func NewSyncer(db *sql.DB, resolver CompletionTimeResolver) *Syncer {
	return &Syncer{db: db, resolver: resolver}
}

// Progress reports the state of the in-flight pass for the frontend poll.
func (s *Syncer) Progress() (syncing bool, current, total int) {
	s.progressMu.Lock()
	defer s.progressMu.Unlock()
	return s.syncing, s.current, s.total
}

func (s *Syncer) setProgress(syncing bool, current, total int) {
	s.progressMu.Lock()
	s.syncing = syncing
	s.current = current
	s.total = total
	s.progressMu.Unlock()
}

// Reconcile merges a batch of observations into the store and recomputes
// tags. Per-game failures land in the result's error list and never abort
// the batch; the returned error is non-nil only when the whole pass could
// not run (settings unreadable, context canceled).
func (s *Syncer) Reconcile(ctx context.Context, observations map[string]Observation) (SyncResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := SyncResult{Total: len(observations)}

	settings, err := LoadSettings(s.db)
	if err != nil {
		return SyncResult{}, fmt.Errorf("loading settings: %w", err)
	}

	appIDs := make([]string, 0, len(observations))
	for appID := range observations {
		appIDs = append(appIDs, appID)
	}
	sort.Strings(appIDs)

	s.setProgress(true, 0, len(appIDs))
	defer s.setProgress(false, 0, 0)

	for i, appID := range appIDs {
		// Abortable between games, never mid-game.
		if err := ctx.Err(); err != nil {
			log.Printf("Sync aborted after %d/%d games", i, len(appIDs))
			return result, err
		}

		changed, syncErr := s.syncOne(ctx, appID, observations[appID], settings, false)
		if changed {
			result.Changed++
		}
		if syncErr != nil {
			result.Errors = append(result.Errors, *syncErr)
			if syncErr.Kind != ErrKindResolverNoMatch {
				s.setProgress(true, i+1, len(appIDs))
				continue
			}
			// No-match is a coverage gap, not a processing failure: the
			// game was still merged and classified without an estimate.
		}
		result.Synced++
		s.setProgress(true, i+1, len(appIDs))
	}

	log.Printf("Sync complete: %d/%d synced, %d changed, %d errors",
		result.Synced, result.Total, result.Changed, len(result.Errors))
	return result, nil
}

// SyncGame runs the merge-and-classify step for a single game. force
// re-classifies even over a manual pin and requests a fresh estimate; it is
// the "reset to automatic" path.
func (s *Syncer) SyncGame(ctx context.Context, appID string, obs Observation, force bool) (bool, *SyncError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, err := LoadSettings(s.db)
	if err != nil {
		return false, &SyncError{AppID: appID, Kind: ErrKindStoreIO, Message: err.Error()}
	}
	return s.syncOne(ctx, appID, obs, settings, force)
}

func (s *Syncer) syncOne(ctx context.Context, appID string, obs Observation, settings Settings, force bool) (bool, *SyncError) {
	if err := validateObservation(obs); err != nil {
		return false, &SyncError{AppID: appID, Kind: ErrKindInvalidObservation, Message: err.Error()}
	}

	existing, err := GetTag(s.db, appID)
	if err != nil {
		return false, &SyncError{AppID: appID, Kind: ErrKindStoreIO, Message: err.Error()}
	}

	rec, err := GetGameRecord(s.db, appID)
	if err != nil {
		return false, &SyncError{AppID: appID, Kind: ErrKindStoreIO, Message: err.Error()}
	}
	if rec == nil {
		rec = &GameRecord{AppID: appID}
	}
	mergeObservation(rec, obs)

	if rec.AchievementsUnlocked > rec.AchievementsTotal {
		return false, &SyncError{
			AppID: appID, Kind: ErrKindInvalidObservation,
			Message: fmt.Sprintf("unlocked %d exceeds total %d after merge", rec.AchievementsUnlocked, rec.AchievementsTotal),
		}
	}

	// Manual pins and disabled auto-tagging skip classification, so no
	// lookup is needed; persist the merge with the hidden flag derived
	// from whatever estimate is already cached.
	skipClassify := !settings.AutoTagEnabled || (existing != nil && existing.IsManual && !force)

	var est *CompletionEstimate
	var resolveErr *SyncError
	if skipClassify {
		est, err = GetCachedEstimate(s.db, appID)
		if err != nil {
			return false, &SyncError{AppID: appID, Kind: ErrKindStoreIO, Message: err.Error()}
		}
	} else {
		est, err = s.resolver.Resolve(ctx, appID, rec.Name, force)
		switch {
		case err == nil:
		case errors.Is(err, ErrNoMatch):
			resolveErr = &SyncError{AppID: appID, Kind: ErrKindResolverNoMatch, Message: err.Error()}
			est = nil
		default:
			// The merge below still happens; losing an observation over a
			// flaky third-party lookup would violate the merge contract.
			resolveErr = &SyncError{AppID: appID, Kind: ErrKindResolverUnavailable, Message: err.Error()}
			est = nil
		}
	}

	rec.IsHidden = isNonSteamAppID(appID) && est == nil

	if err := UpsertGameRecord(s.db, *rec); err != nil {
		return false, &SyncError{AppID: appID, Kind: ErrKindStoreIO, Message: err.Error()}
	}

	if skipClassify || rec.IsHidden {
		return false, resolveErr
	}
	if resolveErr != nil && resolveErr.Kind == ErrKindResolverUnavailable {
		// Tag left as-is: classifying without the estimate could demote a
		// completed game just because the service was down.
		return false, resolveErr
	}

	tag := AutoTag(*rec, est, settings, time.Now())

	currentTag := TagNone
	wasManual := false
	if existing != nil {
		currentTag = existing.Tag
		wasManual = existing.IsManual
	}

	if tag != currentTag || (force && wasManual) {
		if err := SetTag(s.db, appID, tag, false); err != nil {
			return false, &SyncError{AppID: appID, Kind: ErrKindStoreIO, Message: err.Error()}
		}
		log.Printf("Tagged %s (%s): %s -> %s", appID, rec.Name, displayTag(currentTag), tag)
		return true, resolveErr
	}
	return false, resolveErr
}

// mergeObservation applies a field-level merge: present observation fields
// overwrite stored ones, absent fields are left untouched. Playtime and
// achievement data often arrive in separate partially-overlapping batches
// within one pass, so a whole-record replace would erase known state.
func mergeObservation(rec *GameRecord, obs Observation) {
	if obs.Name != nil && *obs.Name != "" {
		rec.Name = *obs.Name
	}
	if obs.PlaytimeMinutes != nil {
		rec.PlaytimeMinutes = *obs.PlaytimeMinutes
	}
	if obs.LastPlayedAt != nil && *obs.LastPlayedAt > 0 {
		v := *obs.LastPlayedAt
		rec.LastPlayedAt = &v
	}
	if obs.AchievementsTotal != nil {
		rec.AchievementsTotal = *obs.AchievementsTotal
	}
	if obs.AchievementsUnlocked != nil {
		rec.AchievementsUnlocked = *obs.AchievementsUnlocked
	}
}

func validateObservation(obs Observation) error {
	if obs.PlaytimeMinutes != nil && *obs.PlaytimeMinutes < 0 {
		return fmt.Errorf("negative playtime %d", *obs.PlaytimeMinutes)
	}
	if obs.AchievementsTotal != nil && *obs.AchievementsTotal < 0 {
		return fmt.Errorf("negative achievement total %d", *obs.AchievementsTotal)
	}
	if obs.AchievementsUnlocked != nil && *obs.AchievementsUnlocked < 0 {
		return fmt.Errorf("negative unlocked count %d", *obs.AchievementsUnlocked)
	}
	if obs.AchievementsTotal != nil && obs.AchievementsUnlocked != nil &&
		*obs.AchievementsUnlocked > *obs.AchievementsTotal {
		return fmt.Errorf("unlocked %d exceeds total %d", *obs.AchievementsUnlocked, *obs.AchievementsTotal)
	}
	return nil
}

func displayTag(t Tag) string {
	if t == TagNone {
		return "none"
	}
	return string(t)
}
