package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
)

// ServerSession is the server's view of one connected client. Handlers reach it through
// Request.Session to call back into the client.
type ServerSession struct {
	server   *Server
	session  Session
	endpoint *endpoint
	logger   *slog.Logger
	state    sessionState

	mu                 sync.RWMutex
	clientInfo         Info
	clientCapabilities ClientCapabilities
	protocolVersion    string

	subscriptionsMu sync.Mutex
	subscriptions   map[string]struct{}
}

// Request describes the inbound request a handler is serving.
type Request struct {
	// ID is the id the client gave the request.
	ID RequestID
	// Method is the protocol method being served, such as tools/call.
	Method string
	// Session is the session the request arrived on.
	Session *ServerSession

	progressToken *RequestID
}

func newServerSession(s *Server, sess Session) *ServerSession {
	ss := &ServerSession{
		server:        s,
		session:       sess,
		logger:        s.logger.With(slog.String("sessionID", sess.ID())),
		subscriptions: make(map[string]struct{}),
	}
	ss.endpoint = newEndpoint(sess, ss, ss.logger, s.requestTimeout, s.sendTimeout)
	return ss
}

// ID returns the transport session id.
func (ss *ServerSession) ID() string {
	return ss.session.ID()
}

// State returns the handshake state of the session.
func (ss *ServerSession) State() SessionState {
	return ss.state.load()
}

// ClientInfo returns the name and version the client sent in initialize.
func (ss *ServerSession) ClientInfo() Info {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	return ss.clientInfo
}

// ClientCapabilities returns the capabilities the client advertised in initialize.
func (ss *ServerSession) ClientCapabilities() ClientCapabilities {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	return ss.clientCapabilities
}

// ProtocolVersion returns the negotiated protocol version.
func (ss *ServerSession) ProtocolVersion() string {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	return ss.protocolVersion
}

// Ping checks that the client is still responsive.
func (ss *ServerSession) Ping(ctx context.Context) error {
	return ss.endpoint.call(ctx, MethodPing, nil, nil)
}

// CreateMessage asks the client's model for a completion through sampling/createMessage.
func (ss *ServerSession) CreateMessage(ctx context.Context, params SamplingParams) (SamplingResult, error) {
	var result SamplingResult
	if err := ss.endpoint.call(ctx, MethodSamplingCreateMessage, params, &result); err != nil {
		return SamplingResult{}, err
	}
	return result, nil
}

// ListRoots asks the client for its roots.
func (ss *ServerSession) ListRoots(ctx context.Context) (RootList, error) {
	var result RootList
	if err := ss.endpoint.call(ctx, MethodRootsList, nil, &result); err != nil {
		return RootList{}, err
	}
	return result, nil
}

// Close ends the session.
func (ss *ServerSession) Close() {
	ss.session.Stop()
}

func (ss *ServerSession) isSubscribed(uri string) bool {
	ss.subscriptionsMu.Lock()
	defer ss.subscriptionsMu.Unlock()

	_, ok := ss.subscriptions[strings.ToLower(uri)]
	return ok
}

func (ss *ServerSession) subscribe(uri string) {
	ss.subscriptionsMu.Lock()
	defer ss.subscriptionsMu.Unlock()

	ss.subscriptions[strings.ToLower(uri)] = struct{}{}
}

func (ss *ServerSession) unsubscribe(uri string) {
	ss.subscriptionsMu.Lock()
	defer ss.subscriptionsMu.Unlock()

	delete(ss.subscriptions, strings.ToLower(uri))
}

func (ss *ServerSession) handleRequest(ctx context.Context, msg JSONRPCMessage) (any, error) {
	if err := checkServerRequest(ss.state.load(), msg.Method); err != nil {
		return nil, err
	}

	handle, ok := serverMethods[msg.Method]
	if !ok {
		return nil, methodNotFoundError(msg.Method)
	}

	req := &Request{
		ID:            *msg.ID,
		Method:        msg.Method,
		Session:       ss,
		progressToken: progressToken(msg.Params),
	}
	return handle(ss, ctx, req, msg.Params)
}

func (ss *ServerSession) handleNotification(_ context.Context, msg JSONRPCMessage) {
	switch msg.Method {
	case methodNotificationsInitialized, methodLegacyInitialized:
		if !ss.state.transition(StateInitializing, StateInitialized) {
			ss.logger.Debug("ignoring initialized notification", slog.String("state", ss.State().String()))
			return
		}
		ss.logger.Info("client initialized",
			slog.String("client", ss.ClientInfo().Name),
			slog.String("protocolVersion", ss.ProtocolVersion()))
		if ss.server.onClientConnected != nil {
			go ss.server.onClientConnected(ss)
		}
		return
	}

	if ss.State() != StateInitialized {
		ss.logger.Debug("ignoring notification before initialization", slog.String("method", msg.Method))
		return
	}

	switch msg.Method {
	case methodNotificationsRootsListChanged, methodLegacyRootsUpdated:
		if ss.server.rootsListWatcher != nil {
			go ss.server.rootsListWatcher.OnRootsListChanged(ss)
		}
	case methodNotificationsProgress, methodLegacyProgress:
		ss.logger.Debug("received progress from client", slog.String("params", string(msg.Params)))
	default:
		ss.logger.Debug("ignoring unknown notification", slog.String("method", msg.Method))
	}
}

// ReportProgress sends notifications/progress for the request when the client asked for progress
// with a progress token. It is a no-op otherwise.
func (r *Request) ReportProgress(ctx context.Context, progress, total float64) error {
	if r.progressToken == nil || r.Session == nil {
		return nil
	}
	return r.Session.endpoint.notify(ctx, methodNotificationsProgress, ProgressParams{
		ProgressToken: *r.progressToken,
		Progress:      progress,
		Total:         total,
	})
}

// Logger returns the session logger annotated with the request.
func (r *Request) Logger() *slog.Logger {
	if r.Session == nil {
		return slog.Default()
	}
	return r.Session.logger.With(
		slog.String("method", r.Method),
		slog.String("requestID", r.ID.String()),
	)
}

func progressToken(params json.RawMessage) *RequestID {
	if len(params) == 0 {
		return nil
	}
	var p struct {
		Meta *ParamsMeta `json:"_meta"`
	}
	if err := json.Unmarshal(params, &p); err != nil || p.Meta == nil {
		return nil
	}
	return p.Meta.ProgressToken
}
