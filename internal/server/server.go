// Package server wires the chat hub to the network: it owns the websocket
// upgrader, assigns connection ids and runs the pumps of every client.
package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/chatroom/internal/hub"
	"github.com/Tyrowin/chatroom/internal/logger"
)

// ErrShuttingDown is returned when a connection arrives during shutdown.
var ErrShuttingDown = errors.New("server is shutting down")

// Server accepts websocket connections and attaches them to a Hub.
type Server struct {
	cfg      Config
	hub      *hub.Hub
	ids      hub.IDGenerator
	origins  *originPolicy
	upgrader websocket.Upgrader
	log      *logger.Logger

	mu           sync.Mutex
	clients      map[*Client]struct{}
	shuttingDown bool
	wg           sync.WaitGroup
}

// NewServer builds a Server from cfg. A nil cfg uses the defaults and a nil
// log uses the global logger.
func NewServer(cfg *Config, log *logger.Logger) (*Server, error) {
	if cfg == nil {
		cfg = NewConfig()
	}
	sanitized := sanitizeConfig(*cfg)
	if err := sanitized.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Get()
	}

	s := &Server{
		cfg:     sanitized,
		hub:     hub.New(sanitized.HubOptions(), log),
		origins: newOriginPolicy(sanitized.AllowedOrigins, log),
		log:     log.With("component", "server"),
		clients: make(map[*Client]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.checkOrigin,
	}
	return s, nil
}

// Hub returns the hub connections are attached to.
func (s *Server) Hub() *hub.Hub {
	return s.hub
}

// Config returns the effective configuration.
func (s *Server) Config() Config {
	return s.cfg
}

// attach opens a hub session for conn and starts its pumps.
func (s *Server) attach(conn *websocket.Conn, log *logger.Logger) error {
	id := s.ids.Next()
	log = log.With("conn_id", id)
	client := NewClient(id, conn, &s.cfg, log)

	session, err := s.hub.Open(id, client)
	if err != nil {
		return err
	}
	client.session = session

	s.mu.Lock()
	if s.shuttingDown {
		s.mu.Unlock()
		session.Close()
		return ErrShuttingDown
	}
	s.clients[client] = struct{}{}
	s.wg.Add(2)
	s.mu.Unlock()

	log.Info("connection accepted", "remote", conn.RemoteAddr().String())

	go func() {
		defer s.wg.Done()
		client.writePump()
	}()
	go func() {
		defer s.wg.Done()
		defer s.detach(client)
		client.readPump()
	}()
	return nil
}

func (s *Server) detach(c *Client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

// ActiveConnections returns the number of connections with running pumps,
// including ones that have not identified yet.
func (s *Server) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Shutdown closes every client connection and waits for their pumps to
// finish or for timeout to pass.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.log.Info("shutting down all client connections")

	s.mu.Lock()
	s.shuttingDown = true
	clients := make([]*Client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.closeConnection()
	}
	s.log.Info("closed client connections", "count", len(clients))

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		s.log.Warn("hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
