package server

import (
	"github.com/gin-gonic/gin"
	apikeydomain "github.com/smallbiznis/usagetrack/internal/apikey/domain"
	"github.com/smallbiznis/usagetrack/internal/authorization"
	obscontext "github.com/smallbiznis/usagetrack/internal/observability/context"
	trackingdomain "github.com/smallbiznis/usagetrack/internal/tracking/domain"
)

const contextActorKey = "tracking_actor"

// authorizeAction resolves the caller the same way the tracker does, minus the
// token cache, and asks the authorization service for the permission.
func (s *Server) authorizeAction(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := s.resolver.Resolve(apikeydomain.WithoutCache(c.Request.Context()), c.Request)
		if !actor.Resolved() {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), authorization.UserSubject(actor.UserID), object, action); err != nil {
			AbortWithError(c, err)
			return
		}

		c.Request = c.Request.WithContext(obscontext.WithActor(c.Request.Context(), string(actor.Source), actor.UserID))
		c.Set(contextActorKey, actor)
		c.Next()
	}
}

func actorFromContext(c *gin.Context) (trackingdomain.Actor, bool) {
	v, ok := c.Get(contextActorKey)
	if !ok {
		return trackingdomain.Actor{}, false
	}
	actor, ok := v.(trackingdomain.Actor)
	return actor, ok
}
