package api

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/wollfoo/ai-gateway/internal/config"
)

const requestIDHeader = "X-Request-Id"

// requestID assigns a UUID to every request so log lines and debug headers
// can be correlated with a single value.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// recoverMiddleware turns a panic in a handler into a 500 JSON body instead
// of tearing down the server.
func recoverMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.WithField("request_id", c.GetString("request_id")).
					Errorf("panic in handler: %v\n%s", r, debug.Stack())
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": gin.H{"message": fmt.Sprintf("internal error: %v", r), "type": "internal_error"},
				})
			}
		}()
		c.Next()
	}
}

// bodyLimit wraps the request body in an http.MaxBytesReader sized to the
// live BodyLimitMB snapshot value, so oversized requests fail on read
// before the handler ever buffers them into memory (spec §6).
func bodyLimit(store *config.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if mb := store.Get().BodyLimitMB; mb > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, int64(mb)<<20)
		}
		c.Next()
	}
}

// clientAuth enforces the configured client API keys via Authorization:
// Bearer or x-api-key/x-goog-api-key, per spec §6.
func clientAuth(store *config.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap := store.Get()
		if len(snap.ClientAPIKeys) == 0 {
			c.Next()
			return
		}

		key := extractClientKey(c)
		if key == "" || !snap.IsClientKeyValid(key) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"message": "invalid or missing API key", "type": "authentication_error"},
			})
			return
		}
		c.Next()
	}
}

func extractClientKey(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if k := c.GetHeader("x-api-key"); k != "" {
		return k
	}
	if k := c.GetHeader("x-goog-api-key"); k != "" {
		return k
	}
	return ""
}

func isDebugRequest(c *gin.Context) bool {
	v := strings.ToLower(strings.TrimSpace(c.GetHeader("x-debug")))
	return v == "1" || v == "true"
}
