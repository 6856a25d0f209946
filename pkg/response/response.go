package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error is the body of every non-2xx response. Detail is human-readable and
// surfaced verbatim by clients.
type Error struct {
	Detail string `json:"detail"`
}

// OK sends a 200 JSON response with the payload.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// Created sends a 201 JSON response with the payload.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

// BadRequest sends 400 with an error detail.
func BadRequest(c *gin.Context, detail string) {
	c.JSON(http.StatusBadRequest, Error{Detail: detail})
}

// Forbidden sends 403.
func Forbidden(c *gin.Context, detail string) {
	c.JSON(http.StatusForbidden, Error{Detail: detail})
}

// NotFound sends 404.
func NotFound(c *gin.Context, detail string) {
	c.JSON(http.StatusNotFound, Error{Detail: detail})
}

// Conflict sends 409.
func Conflict(c *gin.Context, detail string) {
	c.JSON(http.StatusConflict, Error{Detail: detail})
}

// Internal sends 500.
func Internal(c *gin.Context, detail string) {
	c.JSON(http.StatusInternalServerError, Error{Detail: detail})
}
