package client

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/quick-elections/backend/internal/models"
	"github.com/quick-elections/backend/internal/polls"
)

// DefaultInterval is the refresh cadence of the sync loop.
const DefaultInterval = 5 * time.Second

// Syncer keeps a local view of authorized polls consistent with the server.
// While a session is active it refreshes on a fixed interval: an admin session
// refetches the full collection, a participant session re-requests every
// cached access grant in parallel. Reconciliation always replaces a poll's
// whole record by ID, never merges partial fields, which is what makes the
// interleaving of ticks and user actions safe. User actions (Vote, Join,
// Create) run independently of the tick and apply their returned poll
// immediately.
type Syncer struct {
	api      *API
	state    *State
	logger   *zap.Logger
	interval time.Duration

	mu      sync.Mutex
	polls   map[uuid.UUID]*models.Poll
	lastErr error
	gen     uint64 // bumped on Stop so late responses are discarded
	cancel  context.CancelFunc
}

// NewSyncer creates a syncer. interval <= 0 means DefaultInterval.
func NewSyncer(api *API, state *State, logger *zap.Logger, interval time.Duration) *Syncer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Syncer{
		api:      api,
		state:    state,
		logger:   logger,
		interval: interval,
		polls:    make(map[uuid.UUID]*models.Poll),
	}
}

// Start launches the interval loop. It returns immediately; Stop (or ctx
// cancellation) ends the loop. Tests drive the syncer deterministically by
// calling Refresh directly instead.
func (s *Syncer) Start(ctx context.Context) {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	go s.run(loopCtx)
}

// Stop halts the loop and discards any in-flight refresh results. The local
// view is torn down; nothing that arrives later is applied.
func (s *Syncer) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.gen++
	s.polls = make(map[uuid.UUID]*models.Poll)
	s.lastErr = nil
	s.mu.Unlock()
}

// Logout clears the session and stops the loop.
func (s *Syncer) Logout() {
	s.state.ClearSession()
	s.Stop()
}

func (s *Syncer) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}

// Refresh performs one reconciliation pass for the active session. It never
// blocks user actions; those run on their own goroutines.
func (s *Syncer) Refresh(ctx context.Context) {
	sess := s.state.Session()
	if sess == nil {
		return
	}
	gen := s.generation()
	if sess.IsAdmin() {
		s.refreshAdmin(ctx, gen, sess.AdminKey)
		return
	}
	s.refreshGrants(ctx, gen)
}

// refreshAdmin refetches the full collection and swaps the snapshot.
func (s *Syncer) refreshAdmin(ctx context.Context, gen uint64, adminKey string) {
	list, err := s.api.ListPolls(ctx, adminKey)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return // logged out while the request was in flight
	}
	if err != nil {
		s.logger.Warn("refresh polls", zap.Error(err))
		s.lastErr = err
		return // keep the previously rendered polls
	}
	s.polls = make(map[uuid.UUID]*models.Poll, len(list))
	for _, p := range list {
		s.polls[p.ID] = p
	}
	s.lastErr = nil
}

// refreshGrants re-requests every cached grant in parallel. A not-found drops
// the grant and its poll; any other error keeps both and is aggregated, so
// one bad grant never discards polls for unrelated grants.
func (s *Syncer) refreshGrants(ctx context.Context, gen uint64) {
	grants := s.state.Grants()

	type result struct {
		pollID uuid.UUID
		poll   *models.Poll
		err    error
	}
	results := make([]result, len(grants))

	var wg sync.WaitGroup
	i := 0
	for pollID, code := range grants {
		wg.Add(1)
		go func(slot int, pollID uuid.UUID, code string) {
			defer wg.Done()
			p, err := s.api.PollByCode(ctx, code)
			results[slot] = result{pollID: pollID, poll: p, err: err}
		}(i, pollID, code)
		i++
	}
	wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return
	}

	var agg error
	for _, r := range results {
		switch {
		case r.err == nil:
			// Whole-record replacement keyed by the server's poll ID; a
			// grant cached under a stale ID is re-keyed rather than merged.
			if r.poll.ID != r.pollID {
				delete(s.polls, r.pollID)
			}
			s.polls[r.poll.ID] = r.poll
		case IsNotFound(r.err):
			s.state.DropGrant(r.pollID)
			delete(s.polls, r.pollID)
		default:
			agg = multierr.Append(agg, r.err) // transient; grant and poll survive
		}
	}
	if agg != nil {
		s.logger.Warn("refresh grants", zap.Error(agg))
	}
	s.lastErr = agg
}

// Polls returns the current snapshot, newest first.
func (s *Syncer) Polls() []*models.Poll {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Poll, 0, len(s.polls))
	for _, p := range s.polls {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Err returns the aggregate error from the last refresh, if any.
func (s *Syncer) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Join presents an access code and, on success, caches the grant and the poll.
func (s *Syncer) Join(ctx context.Context, code string) (*models.Poll, error) {
	gen := s.generation()
	p, err := s.api.PollByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	s.state.AddGrant(p.ID, code)
	s.apply(gen, p)
	return p, nil
}

// Vote casts the active participant's vote and reconciles the returned poll.
// A conflict ("already voted", "poll is closed") corrects the optimistic
// local state instead of leaving it claiming success.
func (s *Syncer) Vote(ctx context.Context, pollID, optionID uuid.UUID) (*models.Poll, error) {
	sess := s.state.Session()
	if sess == nil {
		return nil, ErrNoSession
	}
	gen := s.generation()

	p, err := s.api.Vote(ctx, pollID, sess.Name, optionID)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict {
			switch apiErr.Detail {
			case polls.ErrAlreadyVoted.Error():
				// The server holds a vote this client did not know about
				// (e.g. its cache was cleared); lock the local state.
				s.state.MarkVoted(pollID)
			case polls.ErrPollClosed.Error():
				// The optimistic attempt never landed.
				s.state.ForgetVote(pollID)
			}
			if code, ok := s.state.Grants()[pollID]; ok {
				if refreshed, rerr := s.api.PollByCode(ctx, code); rerr == nil {
					s.apply(gen, refreshed)
				}
			}
		}
		return nil, err
	}

	s.state.RecordVote(pollID, optionID)
	s.apply(gen, p)
	return p, nil
}

// Create makes a new poll through the active admin session and adds it to the
// local view without waiting for the next tick.
func (s *Syncer) Create(ctx context.Context, title string, options []string, accessCode string) (*models.Poll, error) {
	sess := s.state.Session()
	if sess == nil || !sess.IsAdmin() {
		return nil, ErrNotAdmin
	}
	gen := s.generation()
	p, err := s.api.CreatePoll(ctx, sess.AdminKey, title, options, accessCode)
	if err != nil {
		return nil, err
	}
	s.apply(gen, p)
	return p, nil
}

// ClosePoll closes a poll through the active admin session.
func (s *Syncer) ClosePoll(ctx context.Context, pollID uuid.UUID) (*models.Poll, error) {
	sess := s.state.Session()
	if sess == nil || !sess.IsAdmin() {
		return nil, ErrNotAdmin
	}
	gen := s.generation()
	p, err := s.api.ClosePoll(ctx, sess.AdminKey, pollID)
	if err != nil {
		return nil, err
	}
	s.apply(gen, p)
	return p, nil
}

// Login establishes the working identity for subsequent requests.
func (s *Syncer) Login(ctx context.Context, name string) (models.Session, error) {
	sess, err := s.api.Login(ctx, name)
	if err != nil {
		return models.Session{}, err
	}
	s.state.SetSession(sess)
	return sess, nil
}

func (s *Syncer) generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// apply replaces one poll record in the snapshot unless the view was torn
// down since the request started.
func (s *Syncer) apply(gen uint64, p *models.Poll) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return
	}
	s.polls[p.ID] = p
}
