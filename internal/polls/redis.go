package polls

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/quick-elections/backend/internal/models"
)

// RedisStore persists polls in Redis so several server instances can share one
// poll collection. Layout:
//
//	polls:index        zset of poll IDs scored by creation time
//	poll:{id}          JSON doc with the immutable poll fields and option labels
//	poll:{id}:counts   hash option ID -> vote count (HINCRBY)
//	poll:{id}:voters   hash voter key -> option ID (HSETNX enforces one vote)
//	poll:{id}:closed   closed-at timestamp, written once via SETNX
//	pollcode:{CODE}    poll ID, written via SETNX to keep codes unique
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

type redisPollDoc struct {
	ID         uuid.UUID `json:"id"`
	Title      string    `json:"title"`
	AccessCode string    `json:"access_code"`
	CreatedAt  time.Time `json:"created_at"`
	Options    []struct {
		ID    uuid.UUID `json:"id"`
		Label string    `json:"label"`
	} `json:"options"`
}

func pollKey(id uuid.UUID) string   { return "poll:" + id.String() }
func countsKey(id uuid.UUID) string { return "poll:" + id.String() + ":counts" }
func votersKey(id uuid.UUID) string { return "poll:" + id.String() + ":voters" }
func closedKey(id uuid.UUID) string { return "poll:" + id.String() + ":closed" }
func codeKey(code string) string    { return "pollcode:" + code }

const indexKey = "polls:index"

// createScript reserves the access code and writes the poll doc plus its
// index entry in one atomic step, so a failure cannot leave a code reserved
// without a poll behind it. KEYS: code, doc, index. ARGV: poll ID, doc
// payload, creation score.
var createScript = redis.NewScript(`
if redis.call("SETNX", KEYS[1], ARGV[1]) == 0 then
	return 0
end
redis.call("SET", KEYS[2], ARGV[2])
redis.call("ZADD", KEYS[3], ARGV[3], ARGV[1])
return 1
`)

// voteScript is the atomic check-then-write for a vote: the closed check,
// the HSETNX vote record and the HINCRBY tally happen in one server-side
// step, so a voter entry always has a matching count and no vote can land
// after a close. KEYS: closed marker, voters, counts. ARGV: voter key,
// option ID.
var voteScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return "closed"
end
if redis.call("HSETNX", KEYS[2], ARGV[1], ARGV[2]) == 0 then
	return "voted"
end
redis.call("HINCRBY", KEYS[3], ARGV[2], 1)
return "ok"
`)

// List returns all polls, newest first (ZREVRANGE over the creation index).
func (s *RedisStore) List(ctx context.Context) ([]*models.Poll, error) {
	ids, err := s.rdb.ZRevRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list polls: %w", err)
	}
	out := make([]*models.Poll, 0, len(ids))
	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		p, err := s.load(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Create writes the code reservation, the poll doc and the index entry via
// createScript.
func (s *RedisStore) Create(ctx context.Context, title string, options []string, accessCode string) (*models.Poll, error) {
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

	doc := redisPollDoc{ID: p.ID, Title: p.Title, AccessCode: p.AccessCode, CreatedAt: p.CreatedAt}
	for _, o := range p.Options {
		doc.Options = append(doc.Options, struct {
			ID    uuid.UUID `json:"id"`
			Label string    `json:"label"`
		}{o.ID, o.Label})
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal poll: %w", err)
	}

	stored, err := createScript.Run(ctx, s.rdb,
		[]string{codeKey(accessCode), pollKey(p.ID), indexKey},
		p.ID.String(), payload, float64(p.CreatedAt.UnixNano())).Int()
	if err != nil {
		return nil, fmt.Errorf("store poll: %w", err)
	}
	if stored == 0 {
		return nil, ErrCodeInUse
	}
	return p, nil
}

// GetByID returns a poll by ID.
func (s *RedisStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Poll, error) {
	return s.load(ctx, id)
}

// GetByAccessCode resolves the code index, then loads the poll.
func (s *RedisStore) GetByAccessCode(ctx context.Context, code string) (*models.Poll, error) {
	raw, err := s.rdb.Get(ctx, codeKey(code)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve code: %w", err)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, ErrNotFound
	}
	return s.load(ctx, id)
}

// Close writes the closed marker; SETNX makes the transition single-shot.
func (s *RedisStore) Close(ctx context.Context, id uuid.UUID) (*models.Poll, error) {
	exists, err := s.rdb.Exists(ctx, pollKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("check poll: %w", err)
	}
	if exists == 0 {
		return nil, ErrNotFound
	}
	closedAt := time.Now().UTC()
	set, err := s.rdb.SetNX(ctx, closedKey(id), closedAt.Format(time.RFC3339Nano), 0).Result()
	if err != nil {
		return nil, fmt.Errorf("close poll: %w", err)
	}
	if !set {
		return nil, ErrPollClosed
	}
	return s.load(ctx, id)
}

// Vote validates the option against the immutable poll doc, then runs
// voteScript: the closed check, the vote record and the tally increment are
// one atomic server-side step, so a recorded voter always has a matching
// count and a concurrent Close cannot let a late vote through.
func (s *RedisStore) Vote(ctx context.Context, id uuid.UUID, voterName string, optionID uuid.UUID) (*models.Poll, error) {
	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status != models.StatusOpen {
		return nil, ErrPollClosed
	}
	if p.Option(optionID) == nil {
		return nil, ErrInvalidOption
	}

	res, err := voteScript.Run(ctx, s.rdb,
		[]string{closedKey(id), votersKey(id), countsKey(id)},
		VoterKey(voterName), optionID.String()).Text()
	if err != nil {
		return nil, fmt.Errorf("record vote: %w", err)
	}
	switch res {
	case "closed":
		return nil, ErrPollClosed
	case "voted":
		return nil, ErrAlreadyVoted
	}
	return s.load(ctx, id)
}

func (s *RedisStore) load(ctx context.Context, id uuid.UUID) (*models.Poll, error) {
	payload, err := s.rdb.Get(ctx, pollKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load poll: %w", err)
	}
	var doc redisPollDoc
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("decode poll: %w", err)
	}

	p := &models.Poll{
		ID:         doc.ID,
		Title:      doc.Title,
		Status:     models.StatusOpen,
		AccessCode: doc.AccessCode,
		CreatedAt:  doc.CreatedAt,
		Options:    make([]models.Option, 0, len(doc.Options)),
	}

	counts, err := s.rdb.HGetAll(ctx, countsKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("load counts: %w", err)
	}
	for _, o := range doc.Options {
		opt := models.Option{ID: o.ID, Label: o.Label}
		if raw, ok := counts[o.ID.String()]; ok {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return nil, fmt.Errorf("decode count for option %s: %w", o.ID, err)
			}
			opt.Votes = n
		}
		p.Options = append(p.Options, opt)
	}

	closedAt, err := s.rdb.Get(ctx, closedKey(id)).Result()
	switch {
	case errors.Is(err, redis.Nil):
		// still open
	case err != nil:
		return nil, fmt.Errorf("load status: %w", err)
	default:
		p.Status = models.StatusClosed
		if t, perr := time.Parse(time.RFC3339Nano, closedAt); perr == nil {
			p.ClosedAt = &t
		}
	}
	return p, nil
}
