package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/tutor-quest/internal/config"
	"github.com/terra-clan/tutor-quest/internal/content"
	"github.com/terra-clan/tutor-quest/internal/grading"
	"github.com/terra-clan/tutor-quest/internal/health"
	"github.com/terra-clan/tutor-quest/internal/metrics"
	"github.com/terra-clan/tutor-quest/internal/models"
	"github.com/terra-clan/tutor-quest/internal/quest"
	"github.com/terra-clan/tutor-quest/internal/session"
	"github.com/terra-clan/tutor-quest/internal/storage"
)

const adminSecret = "s3cret-pass"

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *apiError       `json:"error"`
}

// appendFailStore refuses submissions once failAppend is set
type appendFailStore struct {
	*storage.MemoryStore
	failAppend bool
}

func (s *appendFailStore) AppendSubmission(ctx context.Context, sub models.Submission) error {
	if s.failAppend {
		return &storage.PersistenceError{Op: "append submission", Err: errors.New("disk full")}
	}
	return s.MemoryStore.AppendSubmission(ctx, sub)
}

type testEnv struct {
	server   *Server
	store    *appendFailStore
	registry *health.Registry
}

func newTestEnv(t *testing.T, adminCfg config.AdminConfig) *testEnv {
	t.Helper()

	loader := content.NewLoader()
	require.NoError(t, loader.LoadDefault())
	q := loader.Quest()

	store := &appendFailStore{MemoryStore: storage.NewMemoryStore()}
	m := metrics.New()
	machine := session.NewMachine(q.Rules, q.Questions, q.Catalog, q.Avatars)
	svc := quest.NewService(machine, store, quest.Options{
		RestorePolicy: config.RestoreAuto,
		Metrics:       m,
	})

	registry := health.NewRegistry()
	registry.Register("store", health.CheckerFunc(store.Ping))

	return &testEnv{
		server:   NewServer(config.ServerConfig{}, adminCfg, svc, q, registry, m),
		store:    store,
		registry: registry,
	}
}

func defaultAdmin() config.AdminConfig {
	return config.AdminConfig{Secret: adminSecret, RateLimit: 100, RateWindow: time.Minute}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, headers ...string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func decodeOutcome(t *testing.T, env envelope) models.Outcome {
	t.Helper()
	var out models.Outcome
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func (e *testEnv) startSession(t *testing.T) string {
	t.Helper()
	rec, env := e.do(t, http.MethodPost, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	return decodeOutcome(t, env).Token
}

func TestHealthAndReady(t *testing.T) {
	e := newTestEnv(t, defaultAdmin())

	rec, env := e.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)

	rec, _ = e.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	e.registry.Register("cache", health.CheckerFunc(func(ctx context.Context) error {
		return errors.New("connection refused")
	}))
	rec, env = e.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "not_ready", env.Error.Code)
}

func TestCatalogEndpoints(t *testing.T) {
	e := newTestEnv(t, defaultAdmin())

	rec, env := e.do(t, http.MethodGet, "/api/v1/catalog/questions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, string(env.Data), "expected")
	var questions struct {
		Questions []models.QuestionView `json:"questions"`
		Total     int                   `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &questions))
	assert.Equal(t, 10, questions.Total)
	assert.Equal(t, "o1", questions.Questions[0].ID)

	rec, env = e.do(t, http.MethodGet, "/api/v1/catalog/items", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"gafas"`)

	rec, env = e.do(t, http.MethodGet, "/api/v1/catalog/avatars", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"aurora"`)

	rec, env = e.do(t, http.MethodGet, "/api/v1/catalog/rules", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rules models.Rules
	require.NoError(t, json.Unmarshal(env.Data, &rules))
	assert.Equal(t, models.DefaultRules(), rules)
}

func TestSessionFlow(t *testing.T) {
	e := newTestEnv(t, defaultAdmin())
	token := e.startSession(t)
	base := "/api/v1/sessions/" + token

	rec, env := e.do(t, http.MethodPost, base+"/advance", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "missing_identity", env.Error.Code)

	rec, _ = e.do(t, http.MethodPut, base+"/identity", models.Identity{Name: "Ana", NationalID: "70112233"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = e.do(t, http.MethodPost, base+"/answer", models.AnswerRequest{Position: 0, Text: "Paciencia"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = e.do(t, http.MethodPost, base+"/advance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decodeOutcome(t, env)
	assert.Equal(t, 1, out.Attempt.Cursor)
	assert.Equal(t, models.Ledger{Coins: 58, XP: 12, Level: 1}, out.Attempt.Ledger)
	assert.Equal(t, "o2", out.Question.ID)

	rec, env = e.do(t, http.MethodPost, base+"/purchase", models.PurchaseRequest{ItemID: "yate"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "unknown_item", env.Error.Code)

	rec, env = e.do(t, http.MethodPost, base+"/purchase", models.PurchaseRequest{ItemID: "gafas"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 28, decodeOutcome(t, env).Attempt.Ledger.Coins)

	rec, env = e.do(t, http.MethodPost, base+"/purchase", models.PurchaseRequest{ItemID: "libro"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "insufficient_funds", env.Error.Code)

	rec, env = e.do(t, http.MethodPut, base+"/avatar", models.AvatarRequest{AvatarID: "milo"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "milo", decodeOutcome(t, env).Attempt.Avatar)

	rec, env = e.do(t, http.MethodPost, base+"/flag", models.PositionRequest{Position: 3})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"o4"}, decodeOutcome(t, env).Attempt.Flagged)

	rec, env = e.do(t, http.MethodPost, base+"/answer", models.AnswerRequest{Position: 42, Text: "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "position_out_of_range", env.Error.Code)

	rec, env = e.do(t, http.MethodPost, base+"/back", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decodeOutcome(t, env).Attempt.Cursor)

	rec, env = e.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Paciencia", decodeOutcome(t, env).Attempt.Answers[0])

	rec, env = e.do(t, http.MethodPost, base+"/submit", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out = decodeOutcome(t, env)
	require.NotNil(t, out.Submission)
	assert.NotEmpty(t, out.Submission.ID)
	assert.Equal(t, models.AttemptSubmitted, out.Attempt.Status)

	rec, env = e.do(t, http.MethodPost, base+"/submit", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_submitted", env.Error.Code)
}

func TestResetAndResume(t *testing.T) {
	e := newTestEnv(t, defaultAdmin())

	first := "/api/v1/sessions/" + e.startSession(t)
	e.do(t, http.MethodPut, first+"/identity", models.Identity{Name: "Ana", NationalID: "70112233"})
	e.do(t, http.MethodPost, first+"/advance", nil)

	second := "/api/v1/sessions/" + e.startSession(t)
	rec, env := e.do(t, http.MethodPost, second+"/resume", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "no_draft", env.Error.Code)

	e.do(t, http.MethodPost, second+"/answer", models.AnswerRequest{Position: 0, Text: "local"})
	rec, env = e.do(t, http.MethodPut, second+"/identity", models.Identity{Name: "Ana", NationalID: "70112233"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeOutcome(t, env).DraftAvailable)

	rec, env = e.do(t, http.MethodPost, second+"/resume", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "local_progress", env.Error.Code)

	rec, env = e.do(t, http.MethodPost, first+"/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 50, decodeOutcome(t, env).Attempt.Ledger.Coins)
}

func TestSessionErrors(t *testing.T) {
	e := newTestEnv(t, defaultAdmin())

	rec, env := e.do(t, http.MethodGet, "/api/v1/sessions/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "session_not_found", env.Error.Code)

	token := e.startSession(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+token+"/answer", strings.NewReader("{broken"))
	r := httptest.NewRecorder()
	e.server.Router().ServeHTTP(r, req)
	assert.Equal(t, http.StatusBadRequest, r.Code)

	rec, env = e.do(t, http.MethodPost, "/api/v1/sessions/"+token+"/purchase", models.PurchaseRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", env.Error.Code)
}

func TestSubmissionNotRecorded(t *testing.T) {
	e := newTestEnv(t, defaultAdmin())
	base := "/api/v1/sessions/" + e.startSession(t)
	e.do(t, http.MethodPut, base+"/identity", models.Identity{Name: "Ana"})

	e.store.failAppend = true
	rec, env := e.do(t, http.MethodPost, base+"/submit", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "submission_not_recorded", env.Error.Code)

	rec, env = e.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.AttemptInProgress, decodeOutcome(t, env).Attempt.Status)

	e.store.failAppend = false
	rec, _ = e.do(t, http.MethodPost, base+"/submit", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminEndpoints(t *testing.T) {
	e := newTestEnv(t, defaultAdmin())
	base := "/api/v1/sessions/" + e.startSession(t)
	e.do(t, http.MethodPut, base+"/identity", models.Identity{Name: "Ana", NationalID: "70112233"})
	e.do(t, http.MethodPost, base+"/answer", models.AnswerRequest{Position: 8, Text: "B,C,A"})
	e.do(t, http.MethodPost, base+"/submit", nil)

	rec, env := e.do(t, http.MethodGet, "/api/v1/admin/submissions", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "missing_admin_key", env.Error.Code)

	rec, env = e.do(t, http.MethodGet, "/api/v1/admin/submissions", nil, "Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_admin_key", env.Error.Code)

	rec, env = e.do(t, http.MethodGet, "/api/v1/admin/submissions", nil, "Authorization", "Bearer "+adminSecret)
	require.Equal(t, http.StatusOK, rec.Code)
	var list models.SubmissionList
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, 1, list.Total)

	rec, _ = e.do(t, http.MethodGet, "/api/v1/admin/submissions/export.csv", nil, "X-Admin-Key", adminSecret)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "timestamp,name,national_id"))

	rec, env = e.do(t, http.MethodGet, "/api/v1/admin/submissions/grades", nil, "X-Admin-Key", adminSecret)
	require.Equal(t, http.StatusOK, rec.Code)
	var grades struct {
		Grades []grading.Report `json:"grades"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &grades))
	require.Len(t, grades.Grades, 1)
	assert.Equal(t, 1, grades.Grades[0].Correct)
	assert.Equal(t, 2, grades.Grades[0].Total)

	rec, env = e.do(t, http.MethodGet, "/api/v1/admin/sessions", nil, "X-Admin-Key", adminSecret)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"total":1`)

	rec, _ = e.do(t, http.MethodDelete, "/api/v1/admin/submissions", nil, "X-Admin-Key", adminSecret)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = e.do(t, http.MethodGet, "/api/v1/admin/submissions", nil, "X-Admin-Key", adminSecret)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, 0, list.Total)
}

func TestAdminDisabledWithoutSecret(t *testing.T) {
	e := newTestEnv(t, config.AdminConfig{RateLimit: 10, RateWindow: time.Minute})

	rec, env := e.do(t, http.MethodGet, "/api/v1/admin/submissions", nil, "X-Admin-Key", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "admin_disabled", env.Error.Code)
}

func TestAdminRateLimit(t *testing.T) {
	e := newTestEnv(t, config.AdminConfig{Secret: adminSecret, RateLimit: 2, RateWindow: time.Hour})

	for i := 0; i < 2; i++ {
		rec, _ := e.do(t, http.MethodGet, "/api/v1/admin/submissions", nil, "X-Admin-Key", "guess")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec, env := e.do(t, http.MethodGet, "/api/v1/admin/submissions", nil, "X-Admin-Key", adminSecret)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", env.Error.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	e := newTestEnv(t, defaultAdmin())
	e.startSession(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "http_requests_total")
	assert.Contains(t, body, "quest_active_sessions 1")
}

func TestSessionWebSocket(t *testing.T) {
	e := newTestEnv(t, defaultAdmin())
	token := e.startSession(t)

	srv := httptest.NewServer(e.server.Router())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/sessions/" + token + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() SessionMessage {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var msg SessionMessage
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}

	msg := read()
	assert.Equal(t, "connected", msg.Type)
	require.NotNil(t, msg.Outcome)
	assert.Equal(t, token, msg.Outcome.Token)

	require.NoError(t, conn.WriteJSON(models.Action{Type: models.ActionAdvance}))
	msg = read()
	assert.Equal(t, "error", msg.Type)
	assert.Equal(t, "missing_identity", msg.Error.Code)

	require.NoError(t, conn.WriteJSON(models.Action{
		Type:     models.ActionIdentity,
		Identity: &models.Identity{Name: "Ana"},
	}))
	msg = read()
	assert.Equal(t, "outcome", msg.Type)

	require.NoError(t, conn.WriteJSON(models.Action{Type: models.ActionAdvance}))
	msg = read()
	require.Equal(t, "outcome", msg.Type)
	assert.Equal(t, 1, msg.Outcome.Attempt.Cursor)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	msg = read()
	assert.Equal(t, "error", msg.Type)
	assert.Equal(t, "invalid_action", msg.Error.Code)
}

func TestSessionWebSocketUnknownToken(t *testing.T) {
	e := newTestEnv(t, defaultAdmin())
	srv := httptest.NewServer(e.server.Router())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/sessions/nope/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
