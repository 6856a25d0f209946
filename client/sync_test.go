package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/quick-elections/backend/internal/auth"
	"github.com/quick-elections/backend/internal/middleware"
	"github.com/quick-elections/backend/internal/models"
	"github.com/quick-elections/backend/internal/polls"
)

const testKeyword = "TrentAdmin"

// newTestServer runs the real routes over a memory store.
func newTestServer(t *testing.T) (*httptest.Server, *polls.MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := polls.NewMemoryStore()
	provider := auth.NewKeywordProvider(testKeyword)
	pollHandler := polls.NewHandler(store, zap.NewNop())
	authHandler := auth.NewHandler(provider, zap.NewNop())

	router := gin.New()
	router.POST("/login", authHandler.Login)
	router.POST("/polls/access", pollHandler.Access)
	router.POST("/polls/:id/vote", pollHandler.Vote)
	admin := router.Group("")
	admin.Use(middleware.RequireAdmin(provider))
	{
		admin.GET("/polls", pollHandler.List)
		admin.POST("/polls", pollHandler.Create)
		admin.POST("/polls/:id/close", pollHandler.Close)
	}

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, store
}

func newTestSyncer(t *testing.T, baseURL string) *Syncer {
	t.Helper()
	api := NewAPI(baseURL, nil)
	state := NewState(NewMapStorage())
	return NewSyncer(api, state, zap.NewNop(), 0)
}

func TestSyncerAdminRefresh(t *testing.T) {
	srv, store := newTestServer(t)
	s := newTestSyncer(t, srv.URL)
	ctx := context.Background()

	sess, err := s.Login(ctx, testKeyword)
	require.NoError(t, err)
	require.True(t, sess.IsAdmin())

	first, err := s.Create(ctx, "Lunch", []string{"Pizza", "Sushi"}, "LUNCH")
	require.NoError(t, err)
	second, err := s.Create(ctx, "Color", []string{"Red", "Blue"}, "COLOR")
	require.NoError(t, err)

	// Another client's vote shows up on the next refresh.
	_, err = store.Vote(ctx, first.ID, "remote-voter", first.Options[0].ID)
	require.NoError(t, err)

	s.Refresh(ctx)
	require.NoError(t, s.Err())

	view := s.Polls()
	require.Len(t, view, 2)
	assert.Equal(t, second.ID, view[0].ID, "newest first")
	assert.Equal(t, 1, view[1].TotalVotes(), "whole record replaced with server counts")
}

func TestSyncerParticipantFlow(t *testing.T) {
	srv, store := newTestServer(t)
	s := newTestSyncer(t, srv.URL)
	ctx := context.Background()

	seeded, err := store.Create(ctx, "Color", []string{"Red", "Blue"}, "COLOR")
	require.NoError(t, err)

	_, err = s.Login(ctx, "alice")
	require.NoError(t, err)

	// The client may send any case; the server normalizes.
	joined, err := s.Join(ctx, "color")
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, joined.ID)

	voted, err := s.Vote(ctx, joined.ID, joined.Options[1].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, voted.Options[1].Votes)
	assert.Equal(t, joined.Options[1].ID, s.state.VotedOption(joined.ID))

	// A second vote is rejected by the server; the known local vote survives.
	_, err = s.Vote(ctx, joined.ID, joined.Options[0].ID)
	require.Error(t, err)
	assert.True(t, IsConflict(err))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "this voter has already voted in this poll", apiErr.Detail)
	assert.True(t, s.state.HasVoted(joined.ID))
	assert.Equal(t, joined.Options[1].ID, s.state.VotedOption(joined.ID))

	// Refresh through the cached grant still works after close.
	_, err = store.Close(ctx, joined.ID)
	require.NoError(t, err)
	s.Refresh(ctx)
	require.NoError(t, s.Err())
	view := s.Polls()
	require.Len(t, view, 1)
	assert.Equal(t, models.StatusClosed, view[0].Status)
}

func TestSyncerVoteConflictCorrectsOptimisticState(t *testing.T) {
	srv, store := newTestServer(t)
	s := newTestSyncer(t, srv.URL)
	ctx := context.Background()

	seeded, err := store.Create(ctx, "Color", []string{"Red", "Blue"}, "COLOR")
	require.NoError(t, err)
	_, err = s.Login(ctx, "alice")
	require.NoError(t, err)
	joined, err := s.Join(ctx, "COLOR")
	require.NoError(t, err)

	// The server already holds a vote by this name (say, from another device
	// or before local storage was cleared).
	_, err = store.Vote(ctx, seeded.ID, "alice", seeded.Options[0].ID)
	require.NoError(t, err)

	require.False(t, s.state.HasVoted(joined.ID))
	_, err = s.Vote(ctx, joined.ID, joined.Options[1].ID)
	require.Error(t, err)
	assert.True(t, IsConflict(err))
	assert.True(t, s.state.HasVoted(joined.ID), "already-voted locks the local state")
	assert.Equal(t, uuid.Nil, s.state.VotedOption(joined.ID), "chosen option is unknown")

	// A vote bounced by a close leaves no claim of success behind.
	second, err := store.Create(ctx, "Lunch", []string{"Pizza", "Sushi"}, "LUNCH")
	require.NoError(t, err)
	_, err = s.Join(ctx, "LUNCH")
	require.NoError(t, err)
	_, err = store.Close(ctx, second.ID)
	require.NoError(t, err)

	_, err = s.Vote(ctx, second.ID, second.Options[0].ID)
	require.Error(t, err)
	assert.True(t, IsConflict(err))
	assert.False(t, s.state.HasVoted(second.ID))

	// The refreshed record reflects the close without waiting for a tick.
	for _, p := range s.Polls() {
		if p.ID == second.ID {
			assert.Equal(t, models.StatusClosed, p.Status)
		}
	}
}

func TestSyncerDropsGrantOnNotFound(t *testing.T) {
	srv, store := newTestServer(t)
	s := newTestSyncer(t, srv.URL)
	ctx := context.Background()

	_, err := store.Create(ctx, "Color", []string{"Red", "Blue"}, "COLOR")
	require.NoError(t, err)

	_, err = s.Login(ctx, "alice")
	require.NoError(t, err)
	joined, err := s.Join(ctx, "COLOR")
	require.NoError(t, err)

	// Simulate the poll disappearing server-side: cache a grant for a code
	// the server does not know.
	ghost := uuid.New()
	s.state.AddGrant(ghost, "GHOST")

	s.Refresh(ctx)
	require.NoError(t, s.Err(), "a 404 is a resolution, not an error")

	grants := s.state.Grants()
	assert.NotContains(t, grants, ghost, "404 drops the grant")
	assert.Contains(t, grants, joined.ID, "unrelated grants survive")
	require.Len(t, s.Polls(), 1)
}

func TestSyncerKeepsGrantOnTransientError(t *testing.T) {
	// A server where one code always fails with 500 and another succeeds.
	goodPoll := &models.Poll{
		ID:         uuid.New(),
		Title:      "Color",
		Status:     models.StatusOpen,
		AccessCode: "GOOD",
		Options:    []models.Option{{ID: uuid.New(), Label: "Red"}, {ID: uuid.New(), Label: "Blue"}},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/polls/access" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Code string `json:"code"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Code == "GOOD" {
			_ = json.NewEncoder(w).Encode(goodPoll)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"detail": "unable to load poll"})
	}))
	t.Cleanup(srv.Close)

	s := newTestSyncer(t, srv.URL)
	s.state.SetSession(models.Session{Name: "alice", Role: models.RoleParticipant})
	flaky := uuid.New()
	s.state.AddGrant(goodPoll.ID, "GOOD")
	s.state.AddGrant(flaky, "FLAKY")

	s.Refresh(context.Background())

	require.Error(t, s.Err(), "transient failures surface as an aggregate error")
	grants := s.state.Grants()
	assert.Contains(t, grants, flaky, "transient error keeps the grant for retry")
	require.Len(t, s.Polls(), 1, "polls for healthy grants are not discarded")
	assert.Equal(t, goodPoll.ID, s.Polls()[0].ID)
}

func TestSyncerDiscardsLateResponseAfterStop(t *testing.T) {
	release := make(chan struct{})
	inFlight := make(chan struct{})
	poll := &models.Poll{
		ID:         uuid.New(),
		Title:      "Color",
		Status:     models.StatusOpen,
		AccessCode: "COLOR",
		Options:    []models.Option{{ID: uuid.New(), Label: "Red"}, {ID: uuid.New(), Label: "Blue"}},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(inFlight)
		<-release
		_ = json.NewEncoder(w).Encode(poll)
	}))
	t.Cleanup(srv.Close)

	s := newTestSyncer(t, srv.URL)
	s.state.SetSession(models.Session{Name: "alice", Role: models.RoleParticipant})

	done := make(chan error, 1)
	go func() {
		_, err := s.Join(context.Background(), "COLOR")
		done <- err
	}()

	<-inFlight
	s.Stop() // logout happens while the request is in flight
	close(release)
	require.NoError(t, <-done)

	assert.Empty(t, s.Polls(), "a response arriving after teardown is discarded")
}

func TestSyncerRefreshWithoutSession(t *testing.T) {
	srv, _ := newTestServer(t)
	s := newTestSyncer(t, srv.URL)

	s.Refresh(context.Background())
	assert.Empty(t, s.Polls())
	assert.NoError(t, s.Err())

	_, err := s.Vote(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, ErrNoSession)
	_, err = s.Create(context.Background(), "T", []string{"A", "B"}, "CODE")
	assert.ErrorIs(t, err, ErrNotAdmin)
}
