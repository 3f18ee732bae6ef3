package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/tutor-quest/internal/api"
	"github.com/terra-clan/tutor-quest/internal/config"
	"github.com/terra-clan/tutor-quest/internal/content"
	"github.com/terra-clan/tutor-quest/internal/health"
	"github.com/terra-clan/tutor-quest/internal/models"
	"github.com/terra-clan/tutor-quest/internal/quest"
	"github.com/terra-clan/tutor-quest/internal/session"
	"github.com/terra-clan/tutor-quest/internal/storage"
)

const secret = "admin-secret"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	loader := content.NewLoader()
	require.NoError(t, loader.LoadDefault())
	q := loader.Quest()

	machine := session.NewMachine(q.Rules, q.Questions, q.Catalog, q.Avatars)
	svc := quest.NewService(machine, storage.NewMemoryStore(), quest.Options{RestorePolicy: config.RestoreAuto})

	srv := api.NewServer(
		config.ServerConfig{},
		config.AdminConfig{Secret: secret, RateLimit: 100, RateWindow: time.Minute},
		svc, q, health.NewRegistry(), nil,
	)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func TestClientSessionFlow(t *testing.T) {
	ts := newTestServer(t)
	c := NewClient(ts.URL+"/", WithAdminKey(secret))
	ctx := context.Background()

	require.NoError(t, c.Health(ctx))

	questions, err := c.Questions(ctx)
	require.NoError(t, err)
	assert.Len(t, questions, 10)

	items, err := c.Items(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 3)

	avatars, err := c.Avatars(ctx)
	require.NoError(t, err)
	assert.Equal(t, "nova", avatars[0].ID)

	rules, err := c.Rules(ctx)
	require.NoError(t, err)
	assert.Equal(t, 50, rules.StartingCoins)

	started, err := c.StartSession(ctx)
	require.NoError(t, err)
	token := started.Token
	require.NotEmpty(t, token)

	_, err = c.Advance(ctx, token)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, "missing_identity", apiErr.Code)

	_, err = c.UpdateIdentity(ctx, token, models.Identity{Name: "Luis", NationalID: "40900100"})
	require.NoError(t, err)

	_, err = c.Answer(ctx, token, 0, "Escucha activa")
	require.NoError(t, err)

	out, err := c.Advance(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Attempt.Cursor)

	out, err = c.Back(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, 0, out.Attempt.Cursor)

	out, err = c.Purchase(ctx, token, "gorra")
	require.NoError(t, err)
	assert.Equal(t, []string{"gorra"}, out.Attempt.Owned)

	out, err = c.ChooseAvatar(ctx, token, "aurora")
	require.NoError(t, err)
	assert.Equal(t, "aurora", out.Attempt.Avatar)

	out, err = c.ToggleFlag(ctx, token, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"o2"}, out.Attempt.Flagged)

	_, err = c.Resume(ctx, token)
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "local_progress", apiErr.Code)

	out, err = c.GetSession(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "Escucha activa", out.Attempt.Answers[0])

	out, err = c.Submit(ctx, token)
	require.NoError(t, err)
	require.NotNil(t, out.Submission)

	_, err = c.Reset(ctx, token)
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "already_submitted", apiErr.Code)

	list, err := c.ListSubmissions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, list.Total)

	grades, err := c.Grades(ctx)
	require.NoError(t, err)
	require.Len(t, grades, 1)
	assert.Equal(t, 2, grades[0].Total)

	csvData, err := c.ExportCSV(ctx)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(csvData), "timestamp,"))

	require.NoError(t, c.ClearSubmissions(ctx))
	list, err = c.ListSubmissions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, list.Total)
}

func TestClientAdminWithoutKey(t *testing.T) {
	ts := newTestServer(t)
	c := NewClient(ts.URL)

	_, err := c.ListSubmissions(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "missing_admin_key", apiErr.Code)

	_, err = c.ExportCSV(context.Background())
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func TestDialSession(t *testing.T) {
	ts := newTestServer(t)
	c := NewClient(ts.URL)
	ctx := context.Background()

	started, err := c.StartSession(ctx)
	require.NoError(t, err)

	sc, err := c.DialSession(ctx, started.Token)
	require.NoError(t, err)
	defer sc.Close()
	assert.Equal(t, started.Token, sc.Initial.Token)

	_, err = sc.Send(models.Action{Type: models.ActionPurchase, ItemID: "yate"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "unknown_item", apiErr.Code)

	out, err := sc.Send(models.Action{Type: models.ActionAnswer, Position: 2, Text: "hola"})
	require.NoError(t, err)
	assert.Equal(t, "hola", out.Attempt.Answers[2])

	_, err = c.DialSession(ctx, "missing")
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "session_not_found", apiErr.Code)
}
