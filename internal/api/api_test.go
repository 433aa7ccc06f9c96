package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutu-network/learnquest/internal/app/engagement"
	"github.com/tutu-network/learnquest/internal/domain"
	"github.com/tutu-network/learnquest/internal/health"
	"github.com/tutu-network/learnquest/internal/infra/store"
)

const testCatalog = `
[[users]]
id = "u1"
name = "Ada"

[[users]]
id = "u2"
name = "Bob"

[[courses]]
id = "c1"
title = "Go Basics"
points_per_completion = 100

  [[courses.activities]]
  id = "a0"
  title = "Hello"
  points = 10
  duration_minutes = 30

  [[courses.activities]]
  id = "a1"
  title = "Variables"
  points = 10
  duration_minutes = 30
`

func newTestServer(t *testing.T) *Server {
	t.Helper()
	db, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	srv := NewServer(engagement.NewEngine(db, engagement.Config{}), db, nil)
	srv.SetCatalog(db)
	srv.SetHealth(health.NewChecker(health.Options{Store: db}))
	srv.EnableMetrics()

	w := do(t, srv, "POST", "/api/catalog", testCatalog)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return srv
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(w.Body).Decode(v), w.Body.String())
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	decode(t, w, &body)
	return body.Error.Message
}

// ─── Health & Metrics ───────────────────────────────────────────────────────

func TestAPI_Health(t *testing.T) {
	srv := newTestServer(t)

	w := do(t, srv, "GET", "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Status string          `json:"status"`
		Checks []health.Status `json:"checks"`
	}
	decode(t, w, &body)
	assert.Equal(t, "ok", body.Status)
	require.Len(t, body.Checks, 1)
	assert.Equal(t, "store", body.Checks[0].Name)
}

func TestAPI_HealthDegraded(t *testing.T) {
	db, err := store.Open(t.TempDir())
	require.NoError(t, err)
	srv := NewServer(engagement.NewEngine(db, engagement.Config{}), db, nil)
	srv.SetHealth(health.NewChecker(health.Options{Store: db}))
	db.Close()

	w := do(t, srv, "GET", "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAPI_Metrics(t *testing.T) {
	srv := newTestServer(t)
	do(t, srv, "POST", "/api/events/course-enrolled", `{"user_id":"u1","course_id":"c1"}`)

	w := do(t, srv, "GET", "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "learnquest_events_processed_total")
}

func TestAPI_Version(t *testing.T) {
	srv := newTestServer(t)
	w := do(t, srv, "GET", "/api/version", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

// ─── Events ─────────────────────────────────────────────────────────────────

func TestAPI_EnrollAndComplete(t *testing.T) {
	srv := newTestServer(t)

	w := do(t, srv, "POST", "/api/events/course-enrolled", `{"user_id":"u1","course_id":"c1"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var enrolled domain.EventResult
	decode(t, w, &enrolled)
	assert.True(t, enrolled.WelcomeBonus)
	assert.EqualValues(t, 5, enrolled.PointsAwarded)

	w = do(t, srv, "POST", "/api/events/activity-completed",
		`{"user_id":"u1","activity_id":"a0","score":96,"time_spent_seconds":1200}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var done domain.EventResult
	decode(t, w, &done)
	assert.EqualValues(t, 18, done.PointsAwarded)
	assert.EqualValues(t, 23, done.TotalPoints)
	assert.NotEmpty(t, done.Notifications)

	w = do(t, srv, "POST", "/api/events/course-completed", `{"user_id":"u1","course_id":"c1"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var finished domain.EventResult
	decode(t, w, &finished)
	assert.EqualValues(t, 50, finished.CompletionBonus)
}

func TestAPI_ErrorMapping(t *testing.T) {
	srv := newTestServer(t)
	do(t, srv, "POST", "/api/events/course-enrolled", `{"user_id":"u1","course_id":"c1"}`)

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"bad score", "POST", "/api/events/activity-completed", `{"user_id":"u1","activity_id":"a0","score":101}`, http.StatusBadRequest},
		{"missing score", "POST", "/api/events/activity-completed", `{"user_id":"u1","activity_id":"a0"}`, http.StatusBadRequest},
		{"bad json", "POST", "/api/events/activity-completed", `{`, http.StatusBadRequest},
		{"unknown field", "POST", "/api/events/course-enrolled", `{"user_id":"u1","course_id":"c1","x":1}`, http.StatusBadRequest},
		{"unknown user", "POST", "/api/events/activity-completed", `{"user_id":"ghost","activity_id":"a0","score":80}`, http.StatusNotFound},
		{"unknown activity", "POST", "/api/events/activity-completed", `{"user_id":"u1","activity_id":"zz","score":80}`, http.StatusNotFound},
		{"not enrolled", "POST", "/api/events/activity-completed", `{"user_id":"u2","activity_id":"a0","score":80}`, http.StatusConflict},
		{"locked", "POST", "/api/events/activity-completed", `{"user_id":"u1","activity_id":"a1","score":80}`, http.StatusConflict},
		{"duplicate enroll", "POST", "/api/events/course-enrolled", `{"user_id":"u1","course_id":"c1"}`, http.StatusConflict},
		{"bad metric", "GET", "/api/leaderboard?metric=karma", "", http.StatusBadRequest},
		{"bad limit", "GET", "/api/leaderboard?limit=ten", "", http.StatusBadRequest},
		{"access without user", "GET", "/api/activities/a0/access", "", http.StatusBadRequest},
		{"insufficient points", "POST", "/api/users/u1/redeem", `{"amount":500,"reward_id":"mug"}`, http.StatusConflict},
		{"unknown summary", "GET", "/api/users/ghost", "", http.StatusNotFound},
		{"unknown ledger", "GET", "/api/users/ghost/ledger", "", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, srv, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.status, w.Code, w.Body.String())
			assert.NotEmpty(t, errorMessage(t, w))
		})
	}
}

// ─── Reads ──────────────────────────────────────────────────────────────────

func TestAPI_Access(t *testing.T) {
	srv := newTestServer(t)
	do(t, srv, "POST", "/api/events/course-enrolled", `{"user_id":"u1","course_id":"c1"}`)

	w := do(t, srv, "GET", "/api/activities/a1/access?user=u1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var d domain.AccessDecision
	decode(t, w, &d)
	assert.False(t, d.Allowed)
	require.NotNil(t, d.NextActivity)
	assert.Equal(t, "a0", d.NextActivity.ActivityID)
}

func TestAPI_LeaderboardAndRank(t *testing.T) {
	srv := newTestServer(t)
	do(t, srv, "POST", "/api/events/course-enrolled", `{"user_id":"u2","course_id":"c1"}`)

	w := do(t, srv, "GET", "/api/leaderboard?metric=points&period=weekly&limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	var board struct {
		Metric  domain.Metric        `json:"metric"`
		Period  domain.Period        `json:"period"`
		Entries []domain.RankedEntry `json:"entries"`
	}
	decode(t, w, &board)
	assert.Equal(t, domain.PeriodWeekly, board.Period)
	require.Len(t, board.Entries, 1)
	assert.Equal(t, "u2", board.Entries[0].UserID)

	w = do(t, srv, "GET", "/api/users/u2/rank?metric=points", "")
	require.Equal(t, http.StatusOK, w.Code)
	var rank struct {
		Rank  int   `json:"rank"`
		Value int64 `json:"value"`
	}
	decode(t, w, &rank)
	assert.Equal(t, 1, rank.Rank)
	assert.EqualValues(t, 5, rank.Value)
}

func TestAPI_SummaryLedgerRedeemRecalc(t *testing.T) {
	srv := newTestServer(t)
	do(t, srv, "POST", "/api/events/course-enrolled", `{"user_id":"u1","course_id":"c1"}`)

	w := do(t, srv, "GET", "/api/users/u1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var summary engagement.Summary
	decode(t, w, &summary)
	assert.Equal(t, "Ada", summary.User.Name)
	assert.Len(t, summary.Enrollments, 1)

	w = do(t, srv, "POST", "/api/users/u1/redeem", `{"amount":3,"reward_id":"sticker","reason":"sticker"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, srv, "GET", "/api/users/u1/ledger?limit=10", "")
	require.Equal(t, http.StatusOK, w.Code)
	var history struct {
		TotalPoints int64                `json:"total_points"`
		Entries     []domain.LedgerEntry `json:"entries"`
	}
	decode(t, w, &history)
	assert.EqualValues(t, 2, history.TotalPoints)
	assert.Len(t, history.Entries, 2)

	w = do(t, srv, "POST", "/api/users/u1/recalculate", "")
	require.Equal(t, http.StatusOK, w.Code)
	var report engagement.RecalcReport
	decode(t, w, &report)
	assert.False(t, report.Changed)
}

// ─── Writes ─────────────────────────────────────────────────────────────────

func TestAPI_UpsertUser(t *testing.T) {
	srv := newTestServer(t)

	w := do(t, srv, "PUT", "/api/users/u9", `{"name":"Nia"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, srv, "GET", "/api/users/u9", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAPI_CatalogRejected(t *testing.T) {
	srv := newTestServer(t)
	w := do(t, srv, "POST", "/api/catalog", "[[courses]]\nid = \"x\"\n")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPI_WritesDisabled(t *testing.T) {
	db, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	srv := NewServer(engagement.NewEngine(db, engagement.Config{}), db, nil)

	w := do(t, srv, "PUT", "/api/users/u1", `{"name":"x"}`)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	w = do(t, srv, "POST", "/api/catalog", testCatalog)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	u, err := db.GetUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestErrorStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, errorStatus(domain.ErrInvalidScore))
	assert.Equal(t, http.StatusNotFound, errorStatus(domain.ErrCourseNotFound))
	assert.Equal(t, http.StatusConflict, errorStatus(domain.ErrActivityLocked))
	assert.Equal(t, http.StatusInternalServerError,
		errorStatus(&domain.EventError{Event: domain.TriggerCourseEnrolled, Err: assert.AnError}))
}

// brokenStore fails every ledger write inside a transaction.
type brokenStore struct {
	domain.Store
}

type brokenTx struct {
	domain.Tx
}

func (brokenTx) InsertLedgerEntry(context.Context, domain.LedgerEntry) error {
	return errors.New("sqlite: disk I/O error at /var/lib/learnquest/learnquest.db")
}

func (s brokenStore) WithTx(ctx context.Context, fn func(tx domain.Tx) error) error {
	return s.Store.WithTx(ctx, func(tx domain.Tx) error { return fn(brokenTx{Tx: tx}) })
}

func TestAPI_ServerErrorHidesCause(t *testing.T) {
	db, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	seed := NewServer(engagement.NewEngine(db, engagement.Config{}), db, nil)
	seed.SetCatalog(db)
	require.Equal(t, http.StatusOK, do(t, seed, "POST", "/api/catalog", testCatalog).Code)

	srv := NewServer(engagement.NewEngine(brokenStore{Store: db}, engagement.Config{}), db, nil)
	w := do(t, srv, "POST", "/api/events/course-enrolled", `{"user_id":"u1","course_id":"c1"}`)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	msg := errorMessage(t, w)
	assert.Equal(t, domain.ErrEventFailed.Error(), msg)
	assert.NotContains(t, msg, "disk I/O")
	assert.NotContains(t, msg, "/var/lib")
}
