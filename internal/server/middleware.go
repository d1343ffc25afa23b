package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/pipetrade/internal/doctype"
	documentdomain "github.com/smallbiznis/pipetrade/internal/document/domain"
	obsmiddleware "github.com/smallbiznis/pipetrade/internal/observability/logger"
)

const contextActorKey = "actor"

// ActorRequired rejects requests without an actor asserted by the gateway.
func (s *Server) ActorRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := documentdomain.Actor{
			ID:    strings.TrimSpace(c.GetHeader(obsmiddleware.ActorIDHeader)),
			Roles: doctype.ParseRoles(c.GetHeader(obsmiddleware.ActorRolesHeader)),
		}
		if !actor.Valid() {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(contextActorKey, actor)
		c.Next()
	}
}

func actorFromContext(c *gin.Context) documentdomain.Actor {
	if v, ok := c.Get(contextActorKey); ok {
		if actor, ok := v.(documentdomain.Actor); ok {
			return actor
		}
	}
	return documentdomain.Actor{}
}
