package polls

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quick-elections/backend/internal/models"
)

// MemoryStore keeps polls in process memory behind a single mutex. It is the
// default driver; vote records live in a per-poll voter map keyed by VoterKey.
type MemoryStore struct {
	mu     sync.Mutex
	polls  map[uuid.UUID]*models.Poll
	voters map[uuid.UUID]map[string]uuid.UUID // poll -> voter key -> option
	byCode map[string]uuid.UUID
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		polls:  make(map[uuid.UUID]*models.Poll),
		voters: make(map[uuid.UUID]map[string]uuid.UUID),
		byCode: make(map[string]uuid.UUID),
	}
}

// List returns all polls, newest first.
func (s *MemoryStore) List(ctx context.Context) ([]*models.Poll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.Poll, 0, len(s.polls))
	for _, p := range s.polls {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Create inserts a new open poll.
func (s *MemoryStore) Create(ctx context.Context, title string, options []string, accessCode string) (*models.Poll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byCode[accessCode]; taken {
		return nil, ErrCodeInUse
	}

	p := &models.Poll{
		ID:         uuid.New(),
		Title:      title,
		Status:     models.StatusOpen,
		AccessCode: accessCode,
		Options:    make([]models.Option, 0, len(options)),
		CreatedAt:  time.Now().UTC(),
	}
	for _, label := range options {
		p.Options = append(p.Options, models.Option{ID: uuid.New(), Label: label})
	}

	s.polls[p.ID] = p
	s.voters[p.ID] = make(map[string]uuid.UUID)
	s.byCode[accessCode] = p.ID
	return p.Clone(), nil
}

// GetByID returns a poll copy by ID.
func (s *MemoryStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Poll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.polls[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

// Close flips the poll to closed, once.
func (s *MemoryStore) Close(ctx context.Context, id uuid.UUID) (*models.Poll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.polls[id]
	if !ok {
		return nil, ErrNotFound
	}
	if p.Status == models.StatusClosed {
		return nil, ErrPollClosed
	}
	now := time.Now().UTC()
	p.Status = models.StatusClosed
	p.ClosedAt = &now
	return p.Clone(), nil
}

// Vote records a single vote; the mutex serializes the check-then-increment.
func (s *MemoryStore) Vote(ctx context.Context, id uuid.UUID, voterName string, optionID uuid.UUID) (*models.Poll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.polls[id]
	if !ok {
		return nil, ErrNotFound
	}
	if p.Status != models.StatusOpen {
		return nil, ErrPollClosed
	}
	opt := p.Option(optionID)
	if opt == nil {
		return nil, ErrInvalidOption
	}
	key := VoterKey(voterName)
	if _, voted := s.voters[id][key]; voted {
		return nil, ErrAlreadyVoted
	}
	opt.Votes++
	s.voters[id][key] = optionID
	return p.Clone(), nil
}

// GetByAccessCode returns the poll holding the code, open or closed.
func (s *MemoryStore) GetByAccessCode(ctx context.Context, code string) (*models.Poll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byCode[code]
	if !ok {
		return nil, ErrNotFound
	}
	return s.polls[id].Clone(), nil
}
