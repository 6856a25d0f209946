package auth

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/quick-elections/backend/pkg/response"
)

// LoginRequest is the body for POST /login.
type LoginRequest struct {
	Name string `json:"name" binding:"required"`
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	provider Provider
	logger   *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(provider Provider, logger *zap.Logger) *Handler {
	return &Handler{provider: provider, logger: logger}
}

// Login handles POST /login. Any non-empty name signs in; the role depends on
// whether the name matches the admin keyword.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "name is required")
		return
	}

	session, err := h.provider.Login(req.Name)
	if err != nil {
		if errors.Is(err, ErrEmptyName) {
			response.BadRequest(c, err.Error())
			return
		}
		h.logger.Error("login", zap.Error(err))
		response.Internal(c, "unable to sign in")
		return
	}

	response.OK(c, session)
}
