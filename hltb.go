package main

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

// CompletionTimeResolver supplies main-story completion estimates. force
// requests a fresh lookup even when a cached estimate exists.
type CompletionTimeResolver interface {
	Resolve(ctx context.Context, appID, name string, force bool) (*CompletionEstimate, error)
}

// ErrNoMatch means the service returned no title similar enough to the query.
var ErrNoMatch = errors.New("no sufficiently similar title")

// ErrResolverUnavailable wraps network, HTTP, and circuit-breaker failures.
var ErrResolverUnavailable = errors.New("completion-time service unavailable")

type hltbSearchRequest struct {
	SearchType  string   `json:"searchType"`
	SearchTerms []string `json:"searchTerms"`
	SearchPage  int      `json:"searchPage"`
	Size        int      `json:"size"`
}

type hltbSearchResponse struct {
	Data []hltbGame `json:"data"`
}

type hltbGame struct {
	GameID   int    `json:"game_id"`
	GameName string `json:"game_name"`
	CompMain int    `json:"comp_main"` // seconds
	CompPlus int    `json:"comp_plus"`
	Comp100  int    `json:"comp_100"`
}

// HLTBClient resolves completion times against the HowLongToBeat search API.
// It owns its cache (backed by the hltb_cache table), rate limits outbound
// lookups, and trips a circuit breaker when the service is down so a
// library-wide sync fails fast instead of timing out per game.
type HLTBClient struct {
	db            *sql.DB
	httpClient    *http.Client
	endpoint      string
	minSimilarity float64
	limiter       *rate.Limiter
	breaker       *gobreaker.CircuitBreaker[[]hltbGame]
}

func NewHLTBClient(db *sql.DB, cfg Config) *HLTBClient {
	breaker := gobreaker.NewCircuitBreaker[[]hltbGame](gobreaker.Settings{
		Name:        "hltb-search",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("HLTB breaker %s: %s -> %s", name, from, to)
		},
	})

	return &HLTBClient{
		db:            db,
		httpClient:    resolverHTTPClient,
		endpoint:      strings.TrimRight(cfg.HLTBEndpoint, "/"),
		minSimilarity: cfg.HLTBMinSimilarity,
		limiter:       rate.NewLimiter(rate.Limit(cfg.HLTBRatePerSecond), 1),
		breaker:       breaker,
	}
}

// Resolve returns the cached estimate when one with a main-story figure
// exists; otherwise it searches the service. An estimate without a
// main-story figure is not cached, so coverage gaps are retried on later
// syncs (matching typical service behavior for obscure titles).
func (c *HLTBClient) Resolve(ctx context.Context, appID, name string, force bool) (*CompletionEstimate, error) {
	if !force {
		cached, err := GetCachedEstimate(c.db, appID)
		if err != nil {
			return nil, fmt.Errorf("reading estimate cache: %w", err)
		}
		if cached != nil && cached.MainStoryHours != nil {
			return cached, nil
		}
	}

	name = strings.TrimSpace(name)
	if name == "" || strings.HasPrefix(name, "Unknown") {
		return nil, ErrNoMatch
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	candidates, err := c.breaker.Execute(func() ([]hltbGame, error) {
		return c.search(ctx, name)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: circuit open", ErrResolverUnavailable)
		}
		return nil, fmt.Errorf("%w: %v", ErrResolverUnavailable, err)
	}

	best, bestScore := bestMatch(name, candidates)
	if best == nil || bestScore < c.minSimilarity {
		return nil, ErrNoMatch
	}

	est := &CompletionEstimate{
		AppID:       appID,
		QueryName:   name,
		MatchedName: best.GameName,
		Similarity:  bestScore,
		ResolvedAt:  time.Now(),
	}
	if h := secondsToHours(best.CompMain); h != nil {
		est.MainStoryHours = h
	}
	if h := secondsToHours(best.CompPlus); h != nil {
		est.MainExtraHours = h
	}
	if h := secondsToHours(best.Comp100); h != nil {
		est.CompletionistHours = h
	}

	if est.MainStoryHours != nil {
		if err := CacheEstimate(c.db, *est); err != nil {
			log.Printf("Failed to cache HLTB estimate for %s: %v", appID, err)
		}
	}

	log.Printf("HLTB match for %q: %q (similarity %.2f)", name, est.MatchedName, bestScore)
	return est, nil
}

func (c *HLTBClient) search(ctx context.Context, name string) ([]hltbGame, error) {
	body, err := json.Marshal(hltbSearchRequest{
		SearchType:  "games",
		SearchTerms: strings.Fields(name),
		SearchPage:  1,
		Size:        20,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/api/search", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Referer", c.endpoint+"/")
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("search returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var parsed hltbSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}
	return parsed.Data, nil
}

func bestMatch(query string, candidates []hltbGame) (*hltbGame, float64) {
	var best *hltbGame
	bestScore := -1.0
	for i := range candidates {
		score := nameSimilarity(query, candidates[i].GameName)
		if score > bestScore {
			best = &candidates[i]
			bestScore = score
		}
	}
	return best, bestScore
}

// nameSimilarity is a normalized Levenshtein ratio in [0,1] over
// case-folded, trademark-stripped titles.
func nameSimilarity(a, b string) float64 {
	a = normalizeTitle(a)
	b = normalizeTitle(b)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	longer := len([]rune(a))
	if l := len([]rune(b)); l > longer {
		longer = l
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(longer)
}

func normalizeTitle(s string) string {
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		switch r {
		case '™', '®', '©':
			return -1
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

func secondsToHours(sec int) *float64 {
	if sec <= 0 {
		return nil
	}
	h := float64(sec) / 3600
	return &h
}
