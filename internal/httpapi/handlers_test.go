package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/DoyleJ11/live-poll/internal/archive"
	"github.com/DoyleJ11/live-poll/internal/auth"
	"github.com/DoyleJ11/live-poll/internal/catalog"
	"github.com/DoyleJ11/live-poll/internal/engine"
	"github.com/DoyleJ11/live-poll/internal/poll"
	"github.com/DoyleJ11/live-poll/internal/types"
	pub "github.com/DoyleJ11/live-poll/pkg/types"
)

type fixture struct {
	t       *testing.T
	handler http.Handler
	poll    *poll.Poll
}

type memArchive struct {
	archive.NopStore
	results []archive.Result
}

func (m *memArchive) List(_ context.Context, limit int) ([]archive.Result, error) {
	if limit < len(m.results) {
		return m.results[:limit], nil
	}
	return m.results, nil
}

func newFixture(t *testing.T, store archive.Store) *fixture {
	t.Helper()
	state := engine.NewState(catalog.Default(), engine.Rules{GraceWindow: time.Minute})
	p := poll.New(context.Background(), state)
	t.Cleanup(p.Close)

	hash, err := auth.HashPassword("abc", bcrypt.MinCost)
	require.NoError(t, err)
	sessions, err := auth.NewRegistry(hash)
	require.NoError(t, err)

	s := NewServer(p, sessions, store, zap.NewNop())
	return &fixture{t: t, handler: SetupRoutes(s, "", nil), poll: p}
}

func (f *fixture) do(method, path, token string, body any) *httptest.ResponseRecorder {
	f.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(f.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(AdminTokenHeader, token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) login() string {
	f.t.Helper()
	rec := f.do(http.MethodPost, "/api/admin/login", "", types.LoginRequest{Password: "abc"})
	require.Equal(f.t, http.StatusOK, rec.Code, rec.Body.String())
	var resp types.LoginResponse
	require.NoError(f.t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(f.t, resp.Token)
	return resp.Token
}

func (f *fixture) state() pub.StateSnapshot {
	f.t.Helper()
	rec := f.do(http.MethodGet, "/api/state", "", nil)
	require.Equal(f.t, http.StatusOK, rec.Code)
	var snap pub.StateSnapshot
	require.NoError(f.t, json.Unmarshal(rec.Body.Bytes(), &snap))
	return snap
}

func selectTopic(id string) types.SelectTopicRequest {
	return types.SelectTopicRequest{TopicID: &id}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp types.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func ackMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp types.AckResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Message
}

func TestGetState_Initial(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(http.MethodGet, "/api/state", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	snap := f.state()
	assert.Nil(t, snap.ActiveTopicID)
	require.Len(t, snap.Topics, catalog.Default().Len())
	v, ok := snap.Topic("vote2")
	require.True(t, ok)
	assert.Equal(t, "idle", v.Status)
	assert.Equal(t, map[string]int{"yes": 0, "no": 0}, v.Totals)
}

func TestAdmin_WrongPasswordAndMissingToken(t *testing.T) {
	f := newFixture(t, nil)
	before := f.state()

	rec := f.do(http.MethodPost, "/api/admin/login", "", types.LoginRequest{Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", errorCode(t, rec))

	rec = f.do(http.MethodPost, "/api/admin/login", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	for _, tok := range []string{"", "not-a-session"} {
		rec = f.do(http.MethodPost, "/api/admin/start", tok, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "unauthorized", errorCode(t, rec))
	}
	assert.Equal(t, before, f.state())
}

func TestAdmin_BearerToken(t *testing.T) {
	f := newFixture(t, nil)
	tok := f.login()

	body, _ := json.Marshal(selectTopic("vote1"))
	req := httptest.NewRequest(http.MethodPost, "/api/admin/topic", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, "active topic set", ackMessage(t, rec))
}

func TestVote_CaseInsensitiveOverwrite(t *testing.T) {
	f := newFixture(t, nil)
	tok := f.login()

	f.do(http.MethodPost, "/api/admin/topic", tok, selectTopic("vote2"))
	assert.Equal(t, "poll started", ackMessage(t, f.do(http.MethodPost, "/api/admin/start", tok, nil)))

	rec := f.do(http.MethodPost, "/api/vote", "", types.VoteRequest{TopicID: "vote2", OptionID: "yes", VoterName: "Anna"})
	assert.Equal(t, "vote recorded", ackMessage(t, rec))
	rec = f.do(http.MethodPost, "/api/vote", "", types.VoteRequest{TopicID: "vote2", OptionID: "no", VoterName: "anna"})
	assert.Equal(t, "vote recorded", ackMessage(t, rec))

	v, _ := f.state().Topic("vote2")
	assert.Equal(t, map[string]int{"yes": 0, "no": 1}, v.Totals)
	assert.Nil(t, v.Names, "private poll leaks names")
}

func TestVote_Validation(t *testing.T) {
	f := newFixture(t, nil)
	tok := f.login()
	f.do(http.MethodPost, "/api/admin/topic", tok, selectTopic("vote2"))
	f.do(http.MethodPost, "/api/admin/start", tok, nil)

	tests := []struct {
		name string
		req  types.VoteRequest
	}{
		{"empty name", types.VoteRequest{TopicID: "vote2", OptionID: "yes", VoterName: "   "}},
		{"unknown option", types.VoteRequest{TopicID: "vote2", OptionID: "maybe", VoterName: "Anna"}},
		{"inactive topic", types.VoteRequest{TopicID: "vote1", OptionID: "cake", VoterName: "Anna"}},
		{"missing option", types.VoteRequest{TopicID: "vote2", VoterName: "Anna"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(http.MethodPost, "/api/vote", "", tt.req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "validation", errorCode(t, rec))
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/vote", bytes.NewBufferString("{nope"))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVote_RejectedWhileClosing(t *testing.T) {
	f := newFixture(t, nil)
	tok := f.login()
	f.do(http.MethodPost, "/api/admin/topic", tok, selectTopic("vote2"))
	f.do(http.MethodPost, "/api/admin/start", tok, nil)
	assert.Equal(t, "poll closing", ackMessage(t, f.do(http.MethodPost, "/api/admin/stop", tok, nil)))

	rec := f.do(http.MethodPost, "/api/vote", "", types.VoteRequest{TopicID: "vote2", OptionID: "yes", VoterName: "Anna"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_state", errorCode(t, rec))

	v, _ := f.state().Topic("vote2")
	assert.Equal(t, "closing", v.Status)
	require.NotNil(t, v.ClosingEndsAt)
}

func TestAdmin_Lifecycle(t *testing.T) {
	f := newFixture(t, nil)
	tok := f.login()

	rec := f.do(http.MethodPost, "/api/admin/start", tok, nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "start without topic")

	f.do(http.MethodPost, "/api/admin/topic", tok, selectTopic("vote1"))
	assert.Equal(t, "poll started", ackMessage(t, f.do(http.MethodPost, "/api/admin/start", tok, nil)))
	assert.Equal(t, "poll already started", ackMessage(t, f.do(http.MethodPost, "/api/admin/start", tok, nil)))

	rec = f.do(http.MethodPost, "/api/admin/topic", tok, selectTopic("vote2"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", errorCode(t, rec))

	rec = f.do(http.MethodPost, "/api/admin/visibility", tok, types.VisibilityRequest{Mode: "loud"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(http.MethodPost, "/api/admin/visibility", tok, types.VisibilityRequest{Mode: "public"})
	assert.Equal(t, "visibility updated", ackMessage(t, rec))

	f.do(http.MethodPost, "/api/vote", "", types.VoteRequest{TopicID: "vote1", OptionID: "cake", VoterName: "Anna"})
	v, _ := f.state().Topic("vote1")
	assert.Equal(t, []string{"Anna"}, v.Names["cake"])

	assert.Equal(t, "poll reset", ackMessage(t, f.do(http.MethodPost, "/api/admin/reset", tok, nil)))
	snap := f.state()
	assert.Nil(t, snap.ActiveTopicID)
	v, _ = snap.Topic("vote1")
	assert.Equal(t, "idle", v.Status)
	assert.Equal(t, "private", v.Visibility)
	assert.Equal(t, map[string]int{"cake": 0, "ice": 0, "donut": 0}, v.Totals)
}

func TestAdmin_SelectTopicErrors(t *testing.T) {
	f := newFixture(t, nil)
	tok := f.login()

	rec := f.do(http.MethodPost, "/api/admin/topic", tok, selectTopic("nope"))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodPost, "/api/admin/topic", tok, selectTopic("placeholder4"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_state", errorCode(t, rec))

	f.do(http.MethodPost, "/api/admin/topic", tok, selectTopic("vote3"))
	rec = f.do(http.MethodPost, "/api/admin/topic", tok, types.SelectTopicRequest{})
	assert.Equal(t, "no active topic", ackMessage(t, rec))
	assert.Nil(t, f.state().ActiveTopicID)
}

func TestListArchive(t *testing.T) {
	store := &memArchive{results: []archive.Result{
		{ID: 2, TopicID: "vote2", Totals: map[string]int{"yes": 3, "no": 1}, Voters: 4},
		{ID: 1, TopicID: "vote1", Totals: map[string]int{"cake": 1}, Voters: 1},
	}}
	f := newFixture(t, store)

	rec := f.do(http.MethodGet, "/api/archive?limit=1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got []archive.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "vote2", got[0].TopicID)

	rec = f.do(http.MethodGet, "/api/archive?limit=zero", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRoutes_HealthzAndNotFound(t *testing.T) {
	f := newFixture(t, nil)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/healthz", "", nil).Code)

	rec := f.do(http.MethodGet, "/api/nothing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", errorCode(t, rec))
}

func TestGetState_AfterShutdown(t *testing.T) {
	f := newFixture(t, nil)
	f.poll.Close()
	rec := f.do(http.MethodGet, "/api/state", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
