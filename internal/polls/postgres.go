package polls

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quick-elections/backend/internal/models"
)

const pgUniqueViolation = "23505"

// PostgresStore persists polls in PostgreSQL. The one-vote rule rides on the
// poll_votes primary key (poll_id, voter_key); the count increment happens in
// the same transaction as the vote insert.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// List returns all polls with their options, newest first.
func (s *PostgresStore) List(ctx context.Context) ([]*models.Poll, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, title, status, access_code, created_at, closed_at
		FROM polls ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list polls: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Poll, 0)
	for rows.Next() {
		var p models.Poll
		if err := rows.Scan(&p.ID, &p.Title, &p.Status, &p.AccessCode, &p.CreatedAt, &p.ClosedAt); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, p := range out {
		if p.Options, err = s.loadOptions(ctx, s.pool, p.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Create inserts the poll and its options in one transaction.
func (s *PostgresStore) Create(ctx context.Context, title string, options []string, accessCode string) (*models.Poll, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	p := &models.Poll{
		ID:         uuid.New(),
		Title:      title,
		Status:     models.StatusOpen,
		AccessCode: accessCode,
	}
	err = tx.QueryRow(ctx, `INSERT INTO polls (id, title, status, access_code)
		VALUES ($1, $2, $3, $4) RETURNING created_at`,
		p.ID, p.Title, p.Status, p.AccessCode).Scan(&p.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, ErrCodeInUse
		}
		return nil, fmt.Errorf("insert poll: %w", err)
	}

	for i, label := range options {
		opt := models.Option{ID: uuid.New(), Label: label}
		if _, err := tx.Exec(ctx, `INSERT INTO poll_options (id, poll_id, label, position)
			VALUES ($1, $2, $3, $4)`, opt.ID, p.ID, opt.Label, i); err != nil {
			return nil, fmt.Errorf("insert option: %w", err)
		}
		p.Options = append(p.Options, opt)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return p, nil
}

// GetByID returns a poll by ID.
func (s *PostgresStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Poll, error) {
	return s.getWhere(ctx, `id = $1`, id)
}

// GetByAccessCode returns the poll holding the code, open or closed.
func (s *PostgresStore) GetByAccessCode(ctx context.Context, code string) (*models.Poll, error) {
	return s.getWhere(ctx, `access_code = $1`, code)
}

// Close flips status open -> closed; the WHERE status guard makes the
// transition single-shot under concurrency.
func (s *PostgresStore) Close(ctx context.Context, id uuid.UUID) (*models.Poll, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE polls SET status = $1, closed_at = NOW()
		WHERE id = $2 AND status = $3`, models.StatusClosed, id, models.StatusOpen)
	if err != nil {
		return nil, fmt.Errorf("close poll: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish missing from already closed.
		p, err := s.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if p.Status == models.StatusClosed {
			return nil, ErrPollClosed
		}
		return nil, ErrNotFound
	}
	return s.GetByID(ctx, id)
}

// Vote records one vote inside a transaction. The row lock on the poll
// serializes against Close; the poll_votes primary key rejects a second vote
// by the same voter key.
func (s *PostgresStore) Vote(ctx context.Context, id uuid.UUID, voterName string, optionID uuid.UUID) (*models.Poll, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var status models.PollStatus
	err = tx.QueryRow(ctx, `SELECT status FROM polls WHERE id = $1 FOR UPDATE`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock poll: %w", err)
	}
	if status != models.StatusOpen {
		return nil, ErrPollClosed
	}

	var belongs bool
	err = tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM poll_options WHERE id = $1 AND poll_id = $2)`,
		optionID, id).Scan(&belongs)
	if err != nil {
		return nil, fmt.Errorf("check option: %w", err)
	}
	if !belongs {
		return nil, ErrInvalidOption
	}

	tag, err := tx.Exec(ctx, `INSERT INTO poll_votes (poll_id, voter_key, option_id)
		VALUES ($1, $2, $3) ON CONFLICT (poll_id, voter_key) DO NOTHING`,
		id, VoterKey(voterName), optionID)
	if err != nil {
		return nil, fmt.Errorf("insert vote: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrAlreadyVoted
	}

	if _, err := tx.Exec(ctx, `UPDATE poll_options SET votes = votes + 1 WHERE id = $1`, optionID); err != nil {
		return nil, fmt.Errorf("increment votes: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetByID(ctx, id)
}

type pgQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (s *PostgresStore) getWhere(ctx context.Context, cond string, arg any) (*models.Poll, error) {
	var p models.Poll
	err := s.pool.QueryRow(ctx, `SELECT id, title, status, access_code, created_at, closed_at
		FROM polls WHERE `+cond, arg).
		Scan(&p.ID, &p.Title, &p.Status, &p.AccessCode, &p.CreatedAt, &p.ClosedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get poll: %w", err)
	}
	if p.Options, err = s.loadOptions(ctx, s.pool, p.ID); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) loadOptions(ctx context.Context, q pgQuerier, pollID uuid.UUID) ([]models.Option, error) {
	rows, err := q.Query(ctx, `SELECT id, label, votes FROM poll_options
		WHERE poll_id = $1 ORDER BY position`, pollID)
	if err != nil {
		return nil, fmt.Errorf("load options: %w", err)
	}
	defer rows.Close()

	var opts []models.Option
	for rows.Next() {
		var o models.Option
		if err := rows.Scan(&o.ID, &o.Label, &o.Votes); err != nil {
			return nil, err
		}
		opts = append(opts, o)
	}
	return opts, rows.Err()
}
