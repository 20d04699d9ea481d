package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academic-records-api/internal/models"
	"github.com/noah-isme/academic-records-api/pkg/middleware/requestid"
)

const (
	contextActorKey = "actor"
	unknownOrigin   = "unknown"
)

// Actor resolves the authenticated caller into a models.Actor for the mutation paths. Origin
// is the client address as resolved by the engine's trusted proxy list. It must run after JWT.
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(contextActorKey, actorFor(c))
		c.Next()
	}
}

// ActorFrom returns the actor placed by Actor, or builds one from the request.
func ActorFrom(c *gin.Context) models.Actor {
	if v, ok := c.Get(contextActorKey); ok {
		if actor, ok := v.(models.Actor); ok {
			return actor
		}
	}
	return actorFor(c)
}

func actorFor(c *gin.Context) models.Actor {
	actor := models.Actor{Origin: clientAddress(c), RequestID: requestid.Value(c)}
	if claims := Claims(c); claims != nil {
		actor.UserID = claims.UserID
		actor.Role = claims.Role
	}
	return actor
}

func clientAddress(c *gin.Context) string {
	if ip := c.ClientIP(); ip != "" {
		return ip
	}
	return unknownOrigin
}
