package server

import (
	"context"

	"github.com/gin-gonic/gin"
)

type clientIPKey struct{}

// clientIPMiddleware copies gin's resolved client IP into the request context
// so layers below the handlers (audit logging) can read it without a gin dependency.
func clientIPMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := context.WithValue(c.Request.Context(), clientIPKey{}, c.ClientIP())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// ClientIP returns the client IP stashed by the router middleware, or "unknown".
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey{}).(string); ok && ip != "" {
		return ip
	}
	return "unknown"
}
