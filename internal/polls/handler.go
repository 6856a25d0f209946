package polls

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quick-elections/backend/pkg/response"
)

// CreateRequest is the body for POST /polls.
type CreateRequest struct {
	Title      string   `json:"title" binding:"required"`
	Options    []string `json:"options" binding:"required"`
	AccessCode string   `json:"access_code" binding:"required"`
}

// VoteRequest is the body for POST /polls/:id/vote.
type VoteRequest struct {
	VoterName string `json:"voter_name" binding:"required"`
	OptionID  string `json:"option_id" binding:"required"`
}

// AccessRequest is the body for POST /polls/access.
type AccessRequest struct {
	Code string `json:"code" binding:"required"`
}

// Handler handles poll HTTP endpoints.
type Handler struct {
	store  Store
	logger *zap.Logger
}

// NewHandler creates a polls handler.
func NewHandler(store Store, logger *zap.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// List handles GET /polls (admin). Closed polls stay in the list so results
// remain reviewable.
func (h *Handler) List(c *gin.Context) {
	list, err := h.store.List(c.Request.Context())
	if err != nil {
		h.logger.Error("list polls", zap.Error(err))
		response.Internal(c, "unable to load polls")
		return
	}
	response.OK(c, list)
}

// Create handles POST /polls (admin). Not idempotent: resubmission creates a
// second, distinct poll.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "title, options and access_code are required")
		return
	}

	title, err := NormalizeTitle(req.Title)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	options, err := CleanOptions(req.Options)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	code, err := NormalizeCode(req.AccessCode)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	p, err := h.store.Create(c.Request.Context(), title, options, code)
	if err != nil {
		if errors.Is(err, ErrCodeInUse) {
			response.Conflict(c, err.Error())
			return
		}
		h.logger.Error("create poll", zap.Error(err))
		response.Internal(c, "unable to create poll")
		return
	}
	response.Created(c, p)
}

// Close handles POST /polls/:id/close (admin). Closing is one-way; a second
// attempt is an error, not a no-op.
func (h *Handler) Close(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.NotFound(c, ErrNotFound.Error())
		return
	}

	p, err := h.store.Close(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			response.NotFound(c, err.Error())
		case errors.Is(err, ErrPollClosed):
			response.Conflict(c, err.Error())
		default:
			h.logger.Error("close poll", zap.Error(err), zap.String("poll_id", id.String()))
			response.Internal(c, "unable to close poll")
		}
		return
	}
	response.OK(c, p)
}

// Vote handles POST /polls/:id/vote. All preconditions are checked here and
// in the store; client-side disabling is advisory only.
func (h *Handler) Vote(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.NotFound(c, ErrNotFound.Error())
		return
	}

	var req VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "voter_name and option_id are required")
		return
	}
	if strings.TrimSpace(req.VoterName) == "" {
		response.BadRequest(c, "voter name is required")
		return
	}
	optionID, err := uuid.Parse(req.OptionID)
	if err != nil {
		response.BadRequest(c, ErrInvalidOption.Error())
		return
	}

	p, err := h.store.Vote(c.Request.Context(), id, req.VoterName, optionID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			response.NotFound(c, err.Error())
		case errors.Is(err, ErrPollClosed), errors.Is(err, ErrAlreadyVoted):
			response.Conflict(c, err.Error())
		case errors.Is(err, ErrInvalidOption):
			response.BadRequest(c, err.Error())
		default:
			h.logger.Error("vote", zap.Error(err), zap.String("poll_id", id.String()))
			response.Internal(c, "unable to record vote")
		}
		return
	}
	response.OK(c, p)
}

// Access handles POST /polls/access. The code is normalized here, so matching
// is case-insensitive regardless of what the client sends. Closed polls are
// returned; a not-found is distinct so clients know to drop a cached code.
func (h *Handler) Access(c *gin.Context) {
	var req AccessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "code is required")
		return
	}
	code, err := NormalizeCode(req.Code)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	p, err := h.store.GetByAccessCode(c.Request.Context(), code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, ErrNotFound.Error())
			return
		}
		h.logger.Error("access poll", zap.Error(err))
		response.Internal(c, "unable to load poll")
		return
	}
	response.OK(c, p)
}
