package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tutu-network/learnquest/internal/app"
	"github.com/tutu-network/learnquest/internal/app/ledger"
	"github.com/tutu-network/learnquest/internal/domain"
)

// ─── Events (/api/events/*) ──────────────────────────────────────────────────

type activityCompletedRequest struct {
	UserID           string `json:"user_id"`
	ActivityID       string `json:"activity_id"`
	Score            *int   `json:"score"`
	TimeSpentSeconds int    `json:"time_spent_seconds"`
}

func (s *Server) handleActivityCompleted(w http.ResponseWriter, r *http.Request) {
	var req activityCompletedRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UserID == "" || req.ActivityID == "" || req.Score == nil {
		writeError(w, http.StatusBadRequest, "user_id, activity_id and score are required")
		return
	}

	res, err := s.engine.OnActivityCompleted(r.Context(), req.UserID, req.ActivityID, *req.Score, req.TimeSpentSeconds)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type courseEventRequest struct {
	UserID   string `json:"user_id"`
	CourseID string `json:"course_id"`
}

func (s *Server) decodeCourseEvent(w http.ResponseWriter, r *http.Request) (courseEventRequest, bool) {
	var req courseEventRequest
	if !decodeJSON(w, r, &req) {
		return req, false
	}
	if req.UserID == "" || req.CourseID == "" {
		writeError(w, http.StatusBadRequest, "user_id and course_id are required")
		return req, false
	}
	return req, true
}

func (s *Server) handleCourseEnrolled(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeCourseEvent(w, r)
	if !ok {
		return
	}
	res, err := s.engine.OnCourseEnrolled(r.Context(), req.UserID, req.CourseID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleCourseCompleted(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeCourseEvent(w, r)
	if !ok {
		return
	}
	res, err := s.engine.OnCourseCompleted(r.Context(), req.UserID, req.CourseID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ─── Reads ───────────────────────────────────────────────────────────────────

func (s *Server) handleAccess(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user query parameter is required")
		return
	}
	decision, err := s.engine.CheckAccess(r.Context(), userID, chi.URLParam(r, "activityID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

// boardParams parses metric and period query parameters.
func boardParams(r *http.Request) (domain.Metric, domain.Period, error) {
	q := r.URL.Query()
	metric, err := domain.ParseMetric(q.Get("metric"))
	if err != nil {
		return "", "", err
	}
	period, err := domain.ParsePeriod(q.Get("period"))
	if err != nil {
		return "", "", err
	}
	return metric, period, nil
}

// intParam parses an optional integer query parameter.
func intParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(name + " must be an integer")
	}
	return n, nil
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	metric, period, err := boardParams(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	limit, err := intParam(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if limit == 0 {
		limit = s.defaultLimit
	}

	entries, err := s.engine.Leaderboard(r.Context(), metric, period, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"metric":  metric,
		"period":  period,
		"entries": entries,
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.engine.UserSummary(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleRank(w http.ResponseWriter, r *http.Request) {
	metric, period, err := boardParams(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	userID := chi.URLParam(r, "userID")
	rank, value, err := s.engine.RankOf(r.Context(), userID, metric, period)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id": userID,
		"metric":  metric,
		"period":  period,
		"rank":    rank,
		"value":   value,
	})
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	limit, err := intParam(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, err := s.store.GetUser(r.Context(), userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if user == nil {
		s.fail(w, r, domain.ErrUserNotFound)
		return
	}

	entries, err := ledger.History(r.Context(), s.store, userID, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if entries == nil {
		entries = []domain.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id":      userID,
		"total_points": user.TotalPoints,
		"entries":      entries,
	})
}

// ─── Maintenance ─────────────────────────────────────────────────────────────

func (s *Server) handleRecalculate(w http.ResponseWriter, r *http.Request) {
	report, err := s.engine.Recalculate(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type redeemRequest struct {
	Amount   int64  `json:"amount"`
	RewardID string `json:"reward_id"`
	Reason   string `json:"reason"`
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	entry, err := s.engine.Redeem(r.Context(), chi.URLParam(r, "userID"), req.Amount, req.RewardID, req.Reason)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

type upsertUserRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleUpsertUser(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		writeError(w, http.StatusMethodNotAllowed, "user writes are disabled")
		return
	}
	var req upsertUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	u := domain.User{ID: chi.URLParam(r, "userID"), Name: req.Name}
	if err := s.catalog.UpsertUser(r.Context(), u); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": u.ID, "name": u.Name})
}

// handleCatalog loads a TOML catalogue from the request body.
func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		writeError(w, http.StatusMethodNotAllowed, "catalogue writes are disabled")
		return
	}
	c, err := app.ParseCatalog(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	report, err := app.Seed(r.Context(), s.catalog, c)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.log.Info("catalogue loaded",
		"users", report.Users, "courses", report.Courses,
		"activities", report.Activities, "badges", report.Badges)
	writeJSON(w, http.StatusOK, report)
}
