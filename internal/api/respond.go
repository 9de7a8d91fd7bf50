package api

import (
	"net/http"
	"strconv"

	"bookstore/internal/apperr"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// envelope is the body of every API response
type envelope struct {
	OK      bool        `json:"ok"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, envelope{OK: true, Data: data})
}

func respondCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, envelope{OK: true, Data: data})
}

func respondMessage(c *gin.Context, message string) {
	c.JSON(http.StatusOK, envelope{OK: true, Message: message})
}

// respondError writes err with the status of its kind. Unclassified errors
// are logged and reported as a generic internal error.
func (h *Handler) respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindGeneral {
		h.logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.JSON(kind.HTTPStatus(), envelope{OK: false, Message: apperr.MessageOf(err)})
}

func (h *Handler) abortWithError(c *gin.Context, err error) {
	h.respondError(c, err)
	c.Abort()
}

// bindJSON decodes the request body into req and answers 400 on failure
func (h *Handler) bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.respondError(c, apperr.Wrap(apperr.KindBadRequest, "Invalid request body", err))
		return false
	}
	return true
}

// pathID parses a positive integer path parameter
func (h *Handler) pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		h.respondError(c, apperr.BadRequest("Invalid "+name))
		return 0, false
	}
	return id, true
}
