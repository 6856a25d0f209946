package polls

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/quick-elections/backend/internal/models"
)

// Store errors. Handlers map these to HTTP statuses; the messages travel to
// clients verbatim as the error detail.
var (
	ErrNotFound      = errors.New("poll not found")
	ErrPollClosed    = errors.New("poll is closed")
	ErrAlreadyVoted  = errors.New("this voter has already voted in this poll")
	ErrInvalidOption = errors.New("option not found")
	ErrCodeInUse     = errors.New("access code already in use")
	ErrValidation    = errors.New("validation error")
)

// MaxAccessCodeLen caps the normalized access code length.
const MaxAccessCodeLen = 32

// Store is the authoritative poll collection. Implementations must serialize
// the vote check-then-increment per (poll, voter) pair: concurrent votes by
// the same voter yield exactly one success.
type Store interface {
	// List returns all polls, newest first.
	List(ctx context.Context) ([]*models.Poll, error)
	// Create inserts a new open poll with zero vote counts. Title, options
	// and code must already be normalized (NormalizeTitle, CleanOptions,
	// NormalizeCode). Fails with ErrCodeInUse when another poll holds the code.
	Create(ctx context.Context, title string, options []string, accessCode string) (*models.Poll, error)
	// GetByID returns a single poll or ErrNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Poll, error)
	// Close transitions the poll open -> closed exactly once. A second close
	// fails with ErrPollClosed; a missing poll with ErrNotFound.
	Close(ctx context.Context, id uuid.UUID) (*models.Poll, error)
	// Vote records one vote by voterName for optionID and returns the updated
	// poll. Fails with ErrNotFound, ErrPollClosed, ErrInvalidOption or
	// ErrAlreadyVoted; on failure nothing is mutated.
	Vote(ctx context.Context, id uuid.UUID, voterName string, optionID uuid.UUID) (*models.Poll, error)
	// GetByAccessCode returns the poll carrying the (normalized) code,
	// regardless of status, or ErrNotFound.
	GetByAccessCode(ctx context.Context, code string) (*models.Poll, error)
}

// NormalizeTitle trims the title; an empty result is a validation error.
func NormalizeTitle(title string) (string, error) {
	t := strings.TrimSpace(title)
	if t == "" {
		return "", errors.New("title is required")
	}
	return t, nil
}

// CleanOptions trims labels, drops blanks and case-insensitive duplicates
// (keeping the first occurrence). At least two options must survive.
func CleanOptions(labels []string) ([]string, error) {
	seen := make(map[string]struct{}, len(labels))
	cleaned := make([]string, 0, len(labels))
	for _, raw := range labels {
		label := strings.TrimSpace(raw)
		if label == "" {
			continue
		}
		key := strings.ToLower(label)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		cleaned = append(cleaned, label)
	}
	if len(cleaned) < 2 {
		return nil, errors.New("at least two unique options are required")
	}
	return cleaned, nil
}

// NormalizeCode uppercases and trims an access code. The server is the single
// normalization layer, so code matching is case-insensitive in effect.
func NormalizeCode(code string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(code))
	if c == "" {
		return "", errors.New("access code is required")
	}
	if len(c) > MaxAccessCodeLen {
		return "", errors.New("access code must be at most 32 characters")
	}
	return c, nil
}

// VoterKey derives the dedup key for a voter name. Names differing only in
// case or surrounding whitespace count as the same voter.
func VoterKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
