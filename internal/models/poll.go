package models

import (
	"time"

	"github.com/google/uuid"
)

// PollStatus is the lifecycle state of a poll.
type PollStatus string

const (
	StatusOpen   PollStatus = "open"
	StatusClosed PollStatus = "closed"
)

// Poll is a titled question with an ordered set of options, an open/closed
// status, and a shared access code required for non-admin viewing.
type Poll struct {
	ID         uuid.UUID  `json:"id"`
	Title      string     `json:"title"`
	Status     PollStatus `json:"status"`
	AccessCode string     `json:"access_code"`
	Options    []Option   `json:"options"`
	CreatedAt  time.Time  `json:"created_at"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`
}

// Option is one selectable choice within a poll, tracked with a running vote count.
type Option struct {
	ID    uuid.UUID `json:"id"`
	Label string    `json:"label"`
	Votes int       `json:"votes"`
}

// Option returns the option with the given ID, or nil if the poll has no such option.
func (p *Poll) Option(id uuid.UUID) *Option {
	for i := range p.Options {
		if p.Options[i].ID == id {
			return &p.Options[i]
		}
	}
	return nil
}

// TotalVotes sums the vote counts across all options.
func (p *Poll) TotalVotes() int {
	total := 0
	for _, o := range p.Options {
		total += o.Votes
	}
	return total
}

// Clone returns a deep copy so callers never share option slices with a store.
func (p *Poll) Clone() *Poll {
	cp := *p
	cp.Options = make([]Option, len(p.Options))
	copy(cp.Options, p.Options)
	if p.ClosedAt != nil {
		t := *p.ClosedAt
		cp.ClosedAt = &t
	}
	return &cp
}
