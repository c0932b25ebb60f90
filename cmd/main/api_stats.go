package main

import (
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/CTAG07/Nepenthes/pkg/ejs"
	"github.com/CTAG07/Nepenthes/pkg/store"
)

// TemplateRenderStats is the per-template entry of a StatsSummary.
type TemplateRenderStats struct {
	Name          string    `json:"name"`
	Renders       int       `json:"renders"`
	Failures      int       `json:"failures"`
	AverageMillis float64   `json:"average_ms"`
	LastRender    time.Time `json:"last_render"`
}

// StatsSummary provides a high-level overview of stored templates and
// render activity.
type StatsSummary struct {
	Templates    int                   `json:"templates"`
	Revisions    int                   `json:"revisions"`
	TotalRenders int                   `json:"total_renders"`
	CacheEntries int                   `json:"cache_entries"`
	Renders      []TemplateRenderStats `json:"renders"`
}

// StatsAPI holds the dependencies for the statistics handlers.
type StatsAPI struct {
	store  *store.Store
	cache  *ejs.Cache
	logger *slog.Logger
}

func NewStatsAPI(st *store.Store, cache *ejs.Cache, logger *slog.Logger) *StatsAPI {
	return &StatsAPI{
		store:  st,
		cache:  cache,
		logger: logger,
	}
}

func (s *StatsAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/stats", s.handleSummary)
}

// handleSummary returns render statistics ordered by render count, busiest
// template first.
func (s *StatsAPI) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !hasScope(r, scopeStatsRead) {
		respondForbidden(w, scopeStatsRead)
		return
	}

	stats, err := s.store.GetStats(r.Context())
	if err != nil {
		s.logger.Error("Failed to query render stats", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Database query failed")
		return
	}

	summary := StatsSummary{
		Templates:    stats.Templates,
		Revisions:    stats.Revisions,
		CacheEntries: s.cache.Len(),
		Renders:      make([]TemplateRenderStats, 0, len(stats.Renders)),
	}
	for name, rs := range stats.Renders {
		summary.TotalRenders += rs.Renders
		summary.Renders = append(summary.Renders, TemplateRenderStats{
			Name:          name,
			Renders:       rs.Renders,
			Failures:      rs.Failures,
			AverageMillis: float64(rs.AverageDuration()) / float64(time.Millisecond),
			LastRender:    rs.LastRender,
		})
	}
	sort.Slice(summary.Renders, func(i, j int) bool {
		a, b := summary.Renders[i], summary.Renders[j]
		if a.Renders != b.Renders {
			return a.Renders > b.Renders
		}
		return a.Name < b.Name
	})

	respondWithJSON(w, http.StatusOK, summary)
}
