// Package server exposes the single HTTP route: a websocket upgrade on GET /,
// with a plain-text health line for requests that are not upgrades.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// HealthText is the body returned to plain GET / requests.
const HealthText = "Chatroom server is running!"

// RootHandler upgrades websocket requests on GET / and attaches them to the
// hub. Any other GET / is answered by HealthHandler.
func (s *Server) RootHandler(c *gin.Context) {
	if !websocket.IsWebSocketUpgrade(c.Request) {
		HealthHandler(c)
		return
	}

	log := requestLogger(c, s.log)

	responseHeader := http.Header{}
	if id := c.GetString(requestIDKey); id != "" {
		responseHeader.Set(requestIDHeader, id)
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, responseHeader)
	if err != nil {
		// The upgrader has already written the HTTP error response.
		log.WarnWithErr("websocket upgrade failed", err)
		return
	}

	if err := s.attach(conn, log); err != nil {
		log.WarnWithErr("rejecting connection", err)
		msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "")
		_ = conn.WriteMessage(websocket.CloseMessage, msg)
		_ = conn.Close()
	}
}

// HealthHandler provides a simple health check that returns server status.
func HealthHandler(c *gin.Context) {
	c.String(http.StatusOK, HealthText)
}
