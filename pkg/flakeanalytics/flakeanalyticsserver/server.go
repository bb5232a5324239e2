package flakeanalyticsserver

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"

	"github.com/Pulkitchaturvedi/flakydashboard/pkg/flakeanalytics/flakeanalyticsapi"
	"github.com/Pulkitchaturvedi/flakydashboard/pkg/flakeanalytics/flakeanalyticslib"
	"github.com/Pulkitchaturvedi/flakydashboard/pkg/flakeanalytics/flakeanalyticsquery"
)

const dateOnlyLayout = "2006-01-02"

// Server exposes the analytics core over HTTP: a dashboard document per
// filter selection, weekly insight exports, an explicit snapshot refresh, and
// Prometheus metrics. It holds no UI state; every response is derived from
// the cached snapshot and the request's selection.
type Server struct {
	cache       *flakeanalyticslib.SnapshotCache
	options     flakeanalyticsquery.DashboardOptions
	coordinator *flakeanalyticsquery.Coordinator
	metrics     *serverMetrics
	logger      *logrus.Entry
}

func NewServer(cache *flakeanalyticslib.SnapshotCache, options flakeanalyticsquery.DashboardOptions) *Server {
	s := &Server{
		cache:       cache,
		options:     options,
		coordinator: &flakeanalyticsquery.Coordinator{},
		logger:      logrus.WithField("component", "flake-analytics-server"),
	}
	s.metrics = newServerMetrics(cache.Age)
	return s
}

func (s *Server) Routes() http.Handler {
	router := httprouter.New()
	router.HandlerFunc(http.MethodGet, "/api/dashboard", s.metrics.instrument("/api/dashboard", s.handleDashboard))
	router.HandlerFunc(http.MethodPost, "/api/refresh", s.metrics.instrument("/api/refresh", s.handleRefresh))
	router.HandlerFunc(http.MethodGet, "/exports/flake-metrics.csv", s.metrics.instrument("/exports/flake-metrics.csv", s.handleExportCSV))
	router.HandlerFunc(http.MethodGet, "/exports/flake-metrics.json", s.metrics.instrument("/exports/flake-metrics.json", s.handleExportJSON))
	router.Handler(http.MethodGet, "/metrics", s.metrics.handler())
	return router
}

type dashboardResponse struct {
	*flakeanalyticsquery.DashboardResult
	Stale    bool      `json:"stale"`
	LoadedAt time.Time `json:"loaded_at"`
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	selection, topN, err := parseSelection(r.URL.Query())
	if err != nil {
		s.writeError(w, err)
		return
	}
	options := s.options
	if topN > 0 {
		options.TopN = topN
	}

	snapshot, stale, err := s.cache.Get(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	generation := s.coordinator.Begin()
	result, err := flakeanalyticsquery.BuildDashboard(r.Context(), snapshot, selection, options)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if s.coordinator.Accept(generation, result) == nil {
		// A newer selection superseded this computation while it ran; its
		// result must be discarded, not merged.
		http.Error(w, "superseded by a newer selection", http.StatusConflict)
		return
	}

	s.writeJSON(w, dashboardResponse{DashboardResult: result, Stale: stale, LoadedAt: snapshot.LoadedAt})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.cache.Refresh(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]interface{}{
		"loaded_at": snapshot.LoadedAt,
		"events":    len(snapshot.Events),
	})
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	insights, err := s.weeklyInsights(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	if err := WriteInsightsCSV(w, insights); err != nil {
		s.logger.WithError(err).Error("failed to write insight export")
	}
}

func (s *Server) handleExportJSON(w http.ResponseWriter, r *http.Request) {
	insights, err := s.weeklyInsights(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, insights)
}

func (s *Server) weeklyInsights(r *http.Request) ([]flakeanalyticsapi.WeeklyFlakeInsight, error) {
	selection, _, err := parseSelection(r.URL.Query())
	if err != nil {
		return nil, err
	}
	snapshot, _, err := s.cache.Get(r.Context())
	if err != nil {
		return nil, err
	}
	resolved, err := flakeanalyticsquery.Resolve(snapshot, selection)
	if err != nil {
		return nil, err
	}
	return flakeanalyticsquery.ComputeWeeklyInsights(resolved, s.options.AnomalyZScore), nil
}

// parseSelection builds a FilterSelection from query parameters. Date
// parameters are whole days; the end day is included in full, matching the
// inclusive-range contract.
func parseSelection(values url.Values) (flakeanalyticsapi.FilterSelection, int, error) {
	selection := flakeanalyticsapi.FilterSelection{
		Platform:   values.Get("platform"),
		Team:       values.Get("team"),
		Pipeline:   values.Get("pipeline"),
		AppVersion: values.Get("app_version"),
	}

	start := values.Get("start")
	end := values.Get("end")
	if (start == "") != (end == "") {
		return selection, 0, flakeanalyticsapi.NewValidationError("start and end must be provided together")
	}
	if start != "" {
		startDay, err := time.Parse(dateOnlyLayout, start)
		if err != nil {
			return selection, 0, flakeanalyticsapi.NewValidationError("invalid start date %q: expected YYYY-MM-DD", start)
		}
		endDay, err := time.Parse(dateOnlyLayout, end)
		if err != nil {
			return selection, 0, flakeanalyticsapi.NewValidationError("invalid end date %q: expected YYYY-MM-DD", end)
		}
		selection.DateRange = flakeanalyticsapi.DateRange{
			Start: startDay,
			End:   endDay.Add(24*time.Hour - time.Nanosecond),
		}
	}

	topN := 0
	if raw := values.Get("top_n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return selection, 0, flakeanalyticsapi.NewValidationError("invalid top_n %q: expected a positive integer", raw)
		}
		topN = parsed
	}
	return selection, topN, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.WithError(err).Error("failed to encode response")
	}
}

// writeError maps the error taxonomy onto HTTP statuses: user-correctable
// selections are 400s, configuration problems and everything else are 500s.
// The body carries the raw message; user-facing wording is the presentation
// layer's concern.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if flakeanalyticsapi.IsValidationError(err) {
		status = http.StatusBadRequest
	}
	s.logger.WithError(err).Debug("request failed")
	http.Error(w, err.Error(), status)
}
