package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mailmirror/pkg/trace"
	"mailmirror/pkg/util"
)

// AuthMiddleware resolves the server-trusted owner identity from the
// bearer token. Handlers must use this identity and ignore any
// client-supplied owner id.
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := util.ExtractToken(c.Request)
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		ownerID, err := util.ParseJWT(tokenStr, jwtSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("owner_id", ownerID)
		c.Next()
	}
}

// TraceMiddleware propagates or generates the request trace id.
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(trace.HeaderName())
		if traceID == "" {
			traceID = trace.GenerateTraceID()
		}
		ctx := trace.WithContext(c.Request.Context(), traceID)
		c.Request = c.Request.WithContext(ctx)
		c.Header(trace.HeaderName(), traceID)
		c.Next()
	}
}

func ownerID(c *gin.Context) string {
	v, _ := c.Get("owner_id")
	id, _ := v.(string)
	return id
}
