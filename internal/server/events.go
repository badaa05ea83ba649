package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	trackingdomain "github.com/smallbiznis/usagetrack/internal/tracking/domain"
)

type authEventRequest struct {
	UserID string `json:"user_id"`
}

// RecordAuthEvent lets the host CMS report logins and logouts, which never
// pass through the tracker as trackable URLs.
func (s *Server) RecordAuthEvent(c *gin.Context) {
	kind := strings.ToLower(strings.TrimSpace(c.Param("kind")))
	if kind != trackingdomain.SubTypeLogin && kind != trackingdomain.SubTypeLogout {
		AbortWithError(c, ErrNotFound)
		return
	}

	var req authEventRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		if actor, ok := actorFromContext(c); ok {
			userID = actor.UserID
		}
	}
	if userID == "" {
		AbortWithError(c, newValidationError("user_id", "required", "user_id is required"))
		return
	}

	out := s.interceptor.TrackAuthEvent(c.Request.Context(), c.Request, kind, userID)
	c.JSON(http.StatusAccepted, gin.H{
		"state":  out.State,
		"reason": out.Reason,
	})
}
