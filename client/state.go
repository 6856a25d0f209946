package client

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"github.com/quick-elections/backend/internal/models"
)

// Fixed storage keys for the three independently-serialized caches.
const (
	KeySession     = "session"
	KeyVotes       = "votes"
	KeyAccessCodes = "access_codes"
)

// State holds the client-side caches: the session, the optimistic vote
// history, and the access-code grants. Each cache tolerates absent or
// malformed stored data by falling back to empty, so local corruption never
// prevents a fresh login. The vote history is never the enforcement point for
// the one-vote rule; the server is.
type State struct {
	storage Storage

	mu      sync.Mutex
	session *models.Session
	votes   map[uuid.UUID]uuid.UUID // poll -> option the local participant chose
	grants  map[uuid.UUID]string    // poll -> access code that unlocked it
}

// NewState loads all three caches from storage.
func NewState(storage Storage) *State {
	s := &State{
		storage: storage,
		votes:   make(map[uuid.UUID]uuid.UUID),
		grants:  make(map[uuid.UUID]string),
	}
	s.session = loadJSON[models.Session](storage, KeySession)
	if s.session != nil && s.session.Name == "" {
		// A stored "null" or "{}" decodes to a zero session; a session
		// without a name was never issued by a login, so treat it as absent.
		s.session = nil
	}
	if votes := loadJSON[map[uuid.UUID]uuid.UUID](storage, KeyVotes); votes != nil {
		s.votes = *votes
	}
	if grants := loadJSON[map[uuid.UUID]string](storage, KeyAccessCodes); grants != nil {
		s.grants = *grants
	}
	return s
}

// loadJSON decodes a stored blob, returning nil on absence or corruption.
func loadJSON[T any](storage Storage, key string) *T {
	data, err := storage.Load(key)
	if err != nil || len(data) == 0 {
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil
	}
	return &v
}

// Session returns the current session, or nil when logged out.
func (s *State) Session() *models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	sess := *s.session
	return &sess
}

// SetSession stores the session established by login.
func (s *State) SetSession(sess models.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = &sess
	s.persist(KeySession, s.session)
}

// ClearSession logs out locally. The server holds no session record, so this
// cannot fail; vote history and grants survive for the next login.
func (s *State) ClearSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = nil
	_ = s.storage.Delete(KeySession)
}

// VotedOption returns the option the local participant believes they chose,
// or uuid.Nil. Optimistic only; the server's vote record can diverge.
func (s *State) VotedOption(pollID uuid.UUID) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.votes[pollID]
}

// RecordVote caches the locally cast vote for locked-UI rendering.
func (s *State) RecordVote(pollID, optionID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.votes[pollID] = optionID
	s.persist(KeyVotes, s.votes)
}

// HasVoted reports whether the local participant believes they voted on the
// poll, even when the chosen option is unknown.
func (s *State) HasVoted(pollID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.votes[pollID]
	return ok
}

// MarkVoted records that the server holds a vote for this poll without
// knowing which option (e.g. the local cache was cleared and a re-vote came
// back "already voted"). An existing entry with a known option is kept.
func (s *State) MarkVoted(pollID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.votes[pollID]; ok {
		return
	}
	s.votes[pollID] = uuid.Nil
	s.persist(KeyVotes, s.votes)
}

// ForgetVote removes an optimistic vote entry that the server contradicted.
func (s *State) ForgetVote(pollID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.votes, pollID)
	s.persist(KeyVotes, s.votes)
}

// Grants returns a copy of the access-grant cache.
func (s *State) Grants() map[uuid.UUID]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uuid.UUID]string, len(s.grants))
	for id, code := range s.grants {
		out[id] = code
	}
	return out
}

// AddGrant caches the code that successfully unlocked a poll so periodic
// refresh can re-authorize without re-prompting.
func (s *State) AddGrant(pollID uuid.UUID, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[pollID] = code
	s.persist(KeyAccessCodes, s.grants)
}

// DropGrant invalidates a cached code after the server reported the poll is
// gone under it.
func (s *State) DropGrant(pollID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.grants, pollID)
	s.persist(KeyAccessCodes, s.grants)
}

func (s *State) persist(key string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = s.storage.Save(key, data)
}
