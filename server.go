package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ServerOption represents the options for the server.
type ServerOption func(*Server)

// Server implements a Model Context Protocol (MCP) server. It owns a registry of tools, prompts
// and resources, accepts sessions from its transport, runs the initialize handshake with each
// client and dispatches their requests to the registered handlers.
//
// Tools, prompts and resources may be registered before or while serving. Changes made while
// serving are announced to initialized clients with the matching list_changed notification.
type Server struct {
	info         Info
	instructions string
	transport    ServerTransport
	registry     *registry
	logger       *slog.Logger

	forceCapabilities ServerCapabilities
	rootsListWatcher  RootsListWatcher

	requestTimeout time.Duration
	sendTimeout    time.Duration

	onClientConnected    func(*ServerSession)
	onClientDisconnected func(*ServerSession)

	sessionsMu sync.Mutex
	sessions   map[string]*ServerSession
	sessionsWG sync.WaitGroup

	done      chan struct{}
	closeOnce sync.Once
}

var (
	defaultServerRequestTimeout = 60 * time.Second
	defaultServerSendTimeout    = 30 * time.Second
)

// NewServer creates a new MCP server that will accept sessions from transport once Serve is
// called.
func NewServer(info Info, transport ServerTransport, options ...ServerOption) *Server {
	s := &Server{
		info:           info,
		transport:      transport,
		registry:       newRegistry(),
		logger:         slog.Default(),
		requestTimeout: defaultServerRequestTimeout,
		sendTimeout:    defaultServerSendTimeout,
		sessions:       make(map[string]*ServerSession),
		done:           make(chan struct{}),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// WithInstructions returns a ServerOption that configures the server instructions sent to
// clients in the initialize result.
func WithInstructions(instructions string) ServerOption {
	return func(s *Server) {
		s.instructions = instructions
	}
}

// WithToolCapability advertises the tools capability even while no tool is registered.
func WithToolCapability() ServerOption {
	return func(s *Server) {
		s.forceCapabilities.Tools = &ToolsCapability{ListChanged: true}
	}
}

// WithPromptCapability advertises the prompts capability even while no prompt is registered.
func WithPromptCapability() ServerOption {
	return func(s *Server) {
		s.forceCapabilities.Prompts = &PromptsCapability{ListChanged: true}
	}
}

// WithResourceCapability advertises the resources capability even while no resource is
// registered.
func WithResourceCapability() ServerOption {
	return func(s *Server) {
		s.forceCapabilities.Resources = &ResourcesCapability{Subscribe: true, ListChanged: true}
	}
}

// WithRootsListWatcher returns a ServerOption that configures the roots list watcher implementation.
func WithRootsListWatcher(watcher RootsListWatcher) ServerOption {
	return func(s *Server) {
		s.rootsListWatcher = watcher
	}
}

// WithServerRequestTimeout bounds how long requests sent to clients, such as sampling, wait for
// an answer. Zero disables the bound and leaves only the caller's context.
func WithServerRequestTimeout(timeout time.Duration) ServerOption {
	return func(s *Server) {
		s.requestTimeout = timeout
	}
}

// WithServerSendTimeout returns a ServerOption that configures the server's send timeout.
func WithServerSendTimeout(timeout time.Duration) ServerOption {
	return func(s *Server) {
		s.sendTimeout = timeout
	}
}

// WithServerOnClientConnected sets the callback for when a client finishes the handshake.
func WithServerOnClientConnected(onClientConnected func(*ServerSession)) ServerOption {
	return func(s *Server) {
		s.onClientConnected = onClientConnected
	}
}

// WithServerOnClientDisconnected sets the callback for when a client session ends.
func WithServerOnClientDisconnected(onClientDisconnected func(*ServerSession)) ServerOption {
	return func(s *Server) {
		s.onClientDisconnected = onClientDisconnected
	}
}

// WithServerLogger sets the logger for the server.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger.With(
			slog.String("package", "go-mcp"),
			slog.String("component", "server"),
		)
	}
}

// AddTool registers a tool under name, replacing any tool already registered with that name.
// Without WithInputSchema the tool advertises an object schema with no constraints.
func (s *Server) AddTool(name, description string, handler ToolHandler, options ...ToolOption) {
	e := &toolEntry{
		tool: Tool{
			Name:        name,
			Description: description,
			InputSchema: emptyObjectSchema,
		},
		handler: handler,
	}
	for _, opt := range options {
		opt(e)
	}
	if e.err != nil {
		s.logger.Error("tool registered with the default input schema",
			slog.String("tool", name), slog.String("err", e.err.Error()))
	}
	s.registry.addTool(e)
	s.broadcast(methodNotificationsToolsListChanged)
}

// RemoveTool unregisters a tool and reports whether it existed.
func (s *Server) RemoveTool(name string) bool {
	if !s.registry.removeTool(name) {
		return false
	}
	s.broadcast(methodNotificationsToolsListChanged)
	return true
}

// AddPrompt registers a prompt under name, replacing any prompt already registered with that name.
func (s *Server) AddPrompt(name, description string, handler PromptHandler, options ...PromptOption) {
	e := &promptEntry{
		prompt: Prompt{
			Name:        name,
			Description: description,
		},
		handler: handler,
	}
	for _, opt := range options {
		opt(e)
	}
	s.registry.addPrompt(e)
	s.broadcast(methodNotificationsPromptsListChanged)
}

// RemovePrompt unregisters a prompt and reports whether it existed.
func (s *Server) RemovePrompt(name string) bool {
	if !s.registry.removePrompt(name) {
		return false
	}
	s.broadcast(methodNotificationsPromptsListChanged)
	return true
}

// AddResource registers a resource. A uri without placeholders is a literal resource listed by
// resources/list; a uri with {name} placeholders is a template listed by
// resources/templates/list and matched against every resources/read that no literal resource
// claims. Registering the same uri again replaces the earlier registration.
func (s *Server) AddResource(uri, name, description string, handler ResourceHandler, options ...ResourceOption) error {
	tmpl, err := ParseURITemplate(uri)
	if err != nil {
		return err
	}
	e := &resourceEntry{
		template: tmpl,
		resource: Resource{
			URI:         uri,
			Name:        name,
			Description: description,
		},
		handler: handler,
	}
	for _, opt := range options {
		opt(e)
	}
	s.registry.addResource(e)
	s.broadcast(methodNotificationsResourcesListChanged)
	return nil
}

// RemoveResource unregisters a literal resource or template and reports whether it existed.
func (s *Server) RemoveResource(uri string) bool {
	if !s.registry.removeResource(uri) {
		return false
	}
	s.broadcast(methodNotificationsResourcesListChanged)
	return true
}

// NotifyResourceUpdated tells every client subscribed to uri that the resource changed.
func (s *Server) NotifyResourceUpdated(ctx context.Context, uri string) {
	for _, ss := range s.Sessions() {
		if !ss.isSubscribed(uri) {
			continue
		}
		if err := ss.endpoint.notify(ctx, methodNotificationsResourcesUpdated, ResourceUpdatedParams{URI: uri}); err != nil {
			ss.logger.Warn("failed to send resource updated notification",
				slog.String("uri", uri),
				slog.String("err", err.Error()))
		}
	}
}

// Sessions returns a snapshot of the sessions currently served.
func (s *Server) Sessions() []*ServerSession {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()

	sessions := make([]*ServerSession, 0, len(s.sessions))
	for _, ss := range s.sessions {
		sessions = append(sessions, ss)
	}
	return sessions
}

// Serve accepts sessions from the transport and serves each of them concurrently. It blocks
// until the transport stops yielding sessions, which happens after Shutdown.
func (s *Server) Serve() error {
	select {
	case <-s.done:
		return errors.New("server is shut down")
	default:
	}

	for sess := range s.transport.Sessions() {
		ss := newServerSession(s, sess)

		s.sessionsMu.Lock()
		s.sessions[sess.ID()] = ss
		s.sessionsMu.Unlock()

		s.sessionsWG.Add(1)
		go func() {
			defer s.sessionsWG.Done()

			ss.endpoint.run()
			ss.state.close()
			sess.Stop()

			s.sessionsMu.Lock()
			delete(s.sessions, sess.ID())
			s.sessionsMu.Unlock()

			if s.onClientDisconnected != nil {
				s.onClientDisconnected(ss)
			}
		}()
	}
	return nil
}

// Shutdown gracefully shuts down the server by terminating all active clients and cleaning up resources.
// It returns an error if the shutdown process fails or if the context is cancelled before the shutdown completes.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.done) })

	for _, ss := range s.Sessions() {
		ss.session.Stop()
	}

	if err := s.transport.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown transport: %w", err)
	}

	sessionsDone := make(chan struct{})
	go func() {
		s.sessionsWG.Wait()
		close(sessionsDone)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("failed to wait for sessions: %w", ctx.Err())
	case <-sessionsDone:
	}
	return nil
}

// capabilities derives what the server advertises from what is registered.
func (s *Server) capabilities() ServerCapabilities {
	caps := s.forceCapabilities
	tools, prompts, resources := s.registry.counts()
	if tools > 0 && caps.Tools == nil {
		caps.Tools = &ToolsCapability{ListChanged: true}
	}
	if prompts > 0 && caps.Prompts == nil {
		caps.Prompts = &PromptsCapability{ListChanged: true}
	}
	if resources > 0 && caps.Resources == nil {
		caps.Resources = &ResourcesCapability{Subscribe: true, ListChanged: true}
	}
	return caps
}

// broadcast sends a parameterless notification to every initialized session.
func (s *Server) broadcast(method string) {
	for _, ss := range s.Sessions() {
		if ss.State() != StateInitialized {
			continue
		}
		go func() {
			ctx, cancel := ss.endpoint.sendContext()
			defer cancel()

			if err := ss.endpoint.notify(ctx, method, nil); err != nil {
				ss.logger.Warn("failed to broadcast notification",
					slog.String("method", method),
					slog.String("err", err.Error()))
			}
		}()
	}
}
