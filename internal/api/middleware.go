package api

import (
	"context"

	"bookstore/internal/apperr"
	"bookstore/internal/auth"
	"bookstore/internal/models"

	"github.com/gin-gonic/gin"
)

const principalKey = "principal"

// Authenticator resolves a bearer token to a principal
type Authenticator interface {
	Authenticate(ctx context.Context, rawToken string) (*models.Principal, error)
}

// authRequired rejects requests without a valid bearer token
func (h *Handler) authRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := auth.BearerToken(c.GetHeader("Authorization"))
		if !ok {
			h.abortWithError(c, apperr.Unauthorized("Authorization token is required"))
			return
		}

		p, err := h.authn.Authenticate(c.Request.Context(), raw)
		if err != nil {
			h.abortWithError(c, err)
			return
		}

		c.Set(principalKey, p)
		c.Next()
	}
}

// optionalAuth attaches a principal when the token is valid and otherwise
// lets the request through anonymously
func (h *Handler) optionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if raw, ok := auth.BearerToken(c.GetHeader("Authorization")); ok {
			if p, err := h.authn.Authenticate(c.Request.Context(), raw); err == nil {
				c.Set(principalKey, p)
			}
		}
		c.Next()
	}
}

// adminOnly must run after authRequired
func adminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !principal(c).IsAdmin() {
			c.AbortWithStatusJSON(apperr.KindForbidden.HTTPStatus(), envelope{
				OK:      false,
				Message: "Access denied. Admins only.",
			})
			return
		}
		c.Next()
	}
}

// principal returns the caller attached by the auth middlewares, or nil
func principal(c *gin.Context) *models.Principal {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil
	}
	p, _ := v.(*models.Principal)
	return p
}
