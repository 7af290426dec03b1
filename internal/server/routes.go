// Package server wires HTTP handlers and middleware into a gin engine.
package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Tyrowin/chatroom/internal/logger"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// SetupRoutes returns the gin engine serving the hub. GET / is the only route.
func (s *Server) SetupRoutes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), accessLog(s.log))
	r.GET("/", s.RootHandler)
	return r
}

// requestID tags each request with an id, reusing a well-formed incoming
// X-Request-ID header.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func accessLog(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"remote", c.ClientIP(),
			requestIDKey, c.GetString(requestIDKey))
	}
}

func requestLogger(c *gin.Context, log *logger.Logger) *logger.Logger {
	return log.With(requestIDKey, c.GetString(requestIDKey), "remote", c.Request.RemoteAddr)
}
