// Package everything serves a demonstration of every MCP feature: tools with progress and
// sampling, prompts with arguments, and static and templated resources with update
// notifications.
package everything

import (
	"log/slog"
	"sync"
	"time"

	"github.com/contextwire/go-mcp"
)

// Server is a demonstration server that exercises every feature of the engine. It provides
// typed tools, tool progress, sampling requests back to the client, prompts with arguments, and
// literal and templated resources, primarily for testing MCP client implementations.
//
// While not intended for production use, it serves as both a reference registration and a
// testing tool. Resource updates are simulated by a background goroutine that notifies
// subscribed clients.
type Server struct {
	logger         *slog.Logger
	updateInterval time.Duration

	wg        sync.WaitGroup
	done      chan struct{}
	closeOnce sync.Once
}

// Option configures a Server.
type Option func(*Server)

var defaultUpdateInterval = 30 * time.Second

// WithLogger sets the logger for the server's background tasks.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger.With(slog.String("server", "everything"))
	}
}

// WithUpdateInterval sets how often subscribed resources are reported as updated. Zero disables
// the simulated updates.
func WithUpdateInterval(interval time.Duration) Option {
	return func(s *Server) {
		s.updateInterval = interval
	}
}

// NewServer creates a new demonstration server. Callers must call Close when finished to stop
// the background tasks started by Register.
func NewServer(options ...Option) *Server {
	s := &Server{
		logger:         slog.Default(),
		updateInterval: defaultUpdateInterval,
		done:           make(chan struct{}),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Register adds every tool, prompt and resource of the server to srv and starts the simulated
// resource updates.
func (s *Server) Register(srv *mcp.Server) error {
	s.registerTools(srv)
	s.registerPrompts(srv)
	if err := s.registerResources(srv); err != nil {
		return err
	}

	if s.updateInterval > 0 {
		s.wg.Add(1)
		go s.simulateResourceUpdates(srv)
	}
	return nil
}

// Close stops all background tasks.
func (s *Server) Close() {
	s.closeOnce.Do(func() { close(s.done) })
	s.wg.Wait()
}
