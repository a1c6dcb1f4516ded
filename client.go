package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ClientOption is a function that configures a client.
type ClientOption func(*Client)

// Client implements a Model Context Protocol (MCP) client. It runs the initialize handshake
// with a server over a ClientTransport and then exposes the server's tools, prompts and
// resources as plain method calls. Requests the server sends back, sampling and roots, are
// answered by the configured handlers.
//
// A Client must be created using NewClient() and requires Connect() to be called before any
// operations can be performed. The client should be properly closed using Close() when it's no
// longer needed.
type Client struct {
	info         Info
	capabilities ClientCapabilities
	transport    ClientTransport
	logger       *slog.Logger

	protocolVersion string

	rootsListHandler RootsListHandler
	samplingHandler  SamplingHandler

	promptListWatcher         PromptListWatcher
	resourceListWatcher       ResourceListWatcher
	resourceSubscribedWatcher ResourceSubscribedWatcher
	toolListWatcher           ToolListWatcher
	progressListener          ProgressListener

	requestTimeout       time.Duration
	sendTimeout          time.Duration
	pingInterval         time.Duration
	pingTimeoutThreshold int

	state sessionState

	mu                 sync.RWMutex
	session            Session
	endpoint           *endpoint
	serverInfo         Info
	serverCapabilities ServerCapabilities
	instructions       string
	negotiatedVersion  string

	progress *progressQueue

	done     chan struct{}
	doneOnce sync.Once
}

var (
	defaultClientRequestTimeout = 60 * time.Second
	defaultClientSendTimeout    = 30 * time.Second

	defaultClientPingTimeoutThreshold = 3
)

// WithRootsListHandler sets the roots list handler for the client and advertises the roots
// capability.
func WithRootsListHandler(handler RootsListHandler) ClientOption {
	return func(c *Client) {
		c.rootsListHandler = handler
	}
}

// WithSamplingHandler sets the sampling handler for the client and advertises the sampling
// capability.
func WithSamplingHandler(handler SamplingHandler) ClientOption {
	return func(c *Client) {
		c.samplingHandler = handler
	}
}

// WithPromptListWatcher sets the prompt list watcher for the client.
func WithPromptListWatcher(watcher PromptListWatcher) ClientOption {
	return func(c *Client) {
		c.promptListWatcher = watcher
	}
}

// WithResourceListWatcher sets the resource list watcher for the client.
func WithResourceListWatcher(watcher ResourceListWatcher) ClientOption {
	return func(c *Client) {
		c.resourceListWatcher = watcher
	}
}

// WithResourceSubscribedWatcher sets the resource subscribe watcher for the client.
func WithResourceSubscribedWatcher(watcher ResourceSubscribedWatcher) ClientOption {
	return func(c *Client) {
		c.resourceSubscribedWatcher = watcher
	}
}

// WithToolListWatcher sets the tool list watcher for the client.
func WithToolListWatcher(watcher ToolListWatcher) ClientOption {
	return func(c *Client) {
		c.toolListWatcher = watcher
	}
}

// WithProgressListener sets the progress listener for the client.
func WithProgressListener(listener ProgressListener) ClientOption {
	return func(c *Client) {
		c.progressListener = listener
	}
}

// WithClientRequestTimeout bounds how long a call waits for the server's answer. Zero disables
// the bound and leaves only the caller's context.
func WithClientRequestTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.requestTimeout = timeout
	}
}

// WithClientSendTimeout sets the timeout for writing replies and notifications.
func WithClientSendTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.sendTimeout = timeout
	}
}

// WithClientPingInterval makes the client ping the server periodically once connected. The
// session is closed after more consecutive failed pings than the threshold.
func WithClientPingInterval(interval time.Duration) ClientOption {
	return func(c *Client) {
		c.pingInterval = interval
	}
}

// WithClientPingTimeoutThreshold sets how many consecutive pings may fail before the client
// closes the session.
func WithClientPingTimeoutThreshold(threshold int) ClientOption {
	return func(c *Client) {
		c.pingTimeoutThreshold = threshold
	}
}

// WithClientProtocolVersion sets the protocol version the client requests.
func WithClientProtocolVersion(version string) ClientOption {
	return func(c *Client) {
		c.protocolVersion = version
	}
}

// WithClientLogger sets the logger for the client.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger.With(
			slog.String("package", "go-mcp"),
			slog.String("component", "client"),
		)
	}
}

// NewClient creates a client identified by info that will talk to a server over transport.
func NewClient(info Info, transport ClientTransport, options ...ClientOption) *Client {
	c := &Client{
		info:                 info,
		transport:            transport,
		logger:               slog.Default(),
		protocolVersion:      LatestProtocolVersion,
		requestTimeout:       defaultClientRequestTimeout,
		sendTimeout:          defaultClientSendTimeout,
		pingTimeoutThreshold: defaultClientPingTimeoutThreshold,
		progress:             newProgressQueue(),
		done:                 make(chan struct{}),
	}
	for _, opt := range options {
		opt(c)
	}

	if c.rootsListHandler != nil {
		c.capabilities.Roots = &RootsCapability{ListChanged: true}
	}
	if c.samplingHandler != nil {
		c.capabilities.Sampling = &SamplingCapability{}
	}

	return c
}

// Connect opens a session on the transport and performs the handshake: it sends initialize,
// checks the protocol version the server answered with, records the server's capabilities and
// sends notifications/initialized. Calls are possible once Connect returns nil.
func (c *Client) Connect(ctx context.Context) error {
	if !c.state.transition(StateUninitialized, StateInitializing) {
		return ErrAlreadyConnected
	}

	sess, err := c.transport.StartSession(ctx)
	if err != nil {
		c.state.close()
		c.finish()
		return fmt.Errorf("failed to start session: %w", err)
	}

	ep := newEndpoint(sess, c, c.logger.With(slog.String("sessionID", sess.ID())), c.requestTimeout, c.sendTimeout)

	c.mu.Lock()
	c.session = sess
	c.endpoint = ep
	c.mu.Unlock()

	go func() {
		ep.run()
		c.state.close()
		sess.Stop()
		c.finish()
	}()
	if c.progressListener != nil {
		go c.progress.drain(c.progressListener, c.done)
	}

	var result InitializeResult
	err = ep.call(ctx, MethodInitialize, initializeParams{
		ProtocolVersion: c.protocolVersion,
		Capabilities:    c.capabilities,
		ClientInfo:      c.info,
	}, &result)
	if err != nil {
		c.Close()
		return fmt.Errorf("failed to initialize: %w", err)
	}

	if !isSupportedProtocolVersion(result.ProtocolVersion) {
		c.Close()
		return fmt.Errorf("%w: server answered %q", ErrUnsupportedProtocolVersion, result.ProtocolVersion)
	}

	c.mu.Lock()
	c.serverInfo = result.ServerInfo
	c.serverCapabilities = result.Capabilities
	c.instructions = result.Instructions
	c.negotiatedVersion = result.ProtocolVersion
	c.mu.Unlock()

	if err := ep.notify(ctx, methodNotificationsInitialized, nil); err != nil {
		c.Close()
		return fmt.Errorf("failed to send initialized notification: %w", err)
	}
	c.state.transition(StateInitializing, StateInitialized)

	if c.pingInterval > 0 {
		go c.pings(ep)
	}

	return nil
}

// Close ends the session with the server. Pending calls fail with ErrSessionClosed.
func (c *Client) Close() {
	c.mu.RLock()
	sess, ep := c.session, c.endpoint
	c.mu.RUnlock()

	c.state.close()
	if sess == nil {
		// Never connected, so no read loop is left to close done.
		c.finish()
		return
	}
	sess.Stop()
	if ep != nil {
		ep.close()
	}
}

func (c *Client) finish() {
	c.doneOnce.Do(func() {
		close(c.done)
	})
}

// Done returns a channel that is closed when the session with the server ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// State returns the handshake state of the client.
func (c *Client) State() SessionState {
	return c.state.load()
}

// ServerInfo returns the name and version the server sent in its initialize result.
func (c *Client) ServerInfo() Info {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.serverInfo
}

// ServerCapabilities returns the capabilities the server advertised.
func (c *Client) ServerCapabilities() ServerCapabilities {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.serverCapabilities
}

// Instructions returns the usage instructions the server sent, if any.
func (c *Client) Instructions() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.instructions
}

// ProtocolVersion returns the negotiated protocol version.
func (c *Client) ProtocolVersion() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.negotiatedVersion
}

// Ping checks that the server is responsive.
func (c *Client) Ping(ctx context.Context) error {
	return c.call(ctx, MethodPing, nil, nil)
}

// ListTools lists the tools the server exposes.
func (c *Client) ListTools(ctx context.Context, params ListToolsParams) (ListToolsResult, error) {
	var result ListToolsResult
	if err := c.call(ctx, MethodToolsList, params, &result); err != nil {
		return ListToolsResult{}, fmt.Errorf("failed to list tools: %w", err)
	}
	return result, nil
}

// CallTool invokes a tool and returns its normalized content.
func (c *Client) CallTool(ctx context.Context, params CallToolParams) (CallToolResult, error) {
	var result CallToolResult
	if err := c.call(ctx, MethodToolsCall, params, &result); err != nil {
		return CallToolResult{}, fmt.Errorf("failed to call tool %q: %w", params.Name, err)
	}
	return result, nil
}

// ListPrompts lists the prompts the server exposes.
func (c *Client) ListPrompts(ctx context.Context, params ListPromptsParams) (ListPromptsResult, error) {
	var result ListPromptsResult
	if err := c.call(ctx, MethodPromptsList, params, &result); err != nil {
		return ListPromptsResult{}, fmt.Errorf("failed to list prompts: %w", err)
	}
	return result, nil
}

// GetPrompt renders a prompt with the given arguments.
func (c *Client) GetPrompt(ctx context.Context, params GetPromptParams) (GetPromptResult, error) {
	var result GetPromptResult
	if err := c.call(ctx, MethodPromptsGet, params, &result); err != nil {
		return GetPromptResult{}, fmt.Errorf("failed to get prompt %q: %w", params.Name, err)
	}
	return result, nil
}

// ListResources lists the literal resources the server exposes.
func (c *Client) ListResources(ctx context.Context, params ListResourcesParams) (ListResourcesResult, error) {
	var result ListResourcesResult
	if err := c.call(ctx, MethodResourcesList, params, &result); err != nil {
		return ListResourcesResult{}, fmt.Errorf("failed to list resources: %w", err)
	}
	return result, nil
}

// ListResourceTemplates lists the resource templates the server exposes.
func (c *Client) ListResourceTemplates(
	ctx context.Context,
	params ListResourceTemplatesParams,
) (ListResourceTemplatesResult, error) {
	var result ListResourceTemplatesResult
	if err := c.call(ctx, MethodResourcesTemplatesList, params, &result); err != nil {
		return ListResourceTemplatesResult{}, fmt.Errorf("failed to list resource templates: %w", err)
	}
	return result, nil
}

// ReadResource reads a resource by its concrete URI.
func (c *Client) ReadResource(ctx context.Context, params ReadResourceParams) (ReadResourceResult, error) {
	var result ReadResourceResult
	if err := c.call(ctx, MethodResourcesRead, params, &result); err != nil {
		return ReadResourceResult{}, fmt.Errorf("failed to read resource %q: %w", params.URI, err)
	}
	return result, nil
}

// SubscribeResource asks the server to send notifications/resources/updated when the resource
// changes.
func (c *Client) SubscribeResource(ctx context.Context, params SubscribeResourceParams) error {
	if err := c.call(ctx, MethodResourcesSubscribe, params, nil); err != nil {
		return fmt.Errorf("failed to subscribe to resource %q: %w", params.URI, err)
	}
	return nil
}

// UnsubscribeResource cancels a subscription made with SubscribeResource.
func (c *Client) UnsubscribeResource(ctx context.Context, params SubscribeResourceParams) error {
	if err := c.call(ctx, MethodResourcesUnsubscribe, params, nil); err != nil {
		return fmt.Errorf("failed to unsubscribe from resource %q: %w", params.URI, err)
	}
	return nil
}

// NotifyRootsListChanged tells the server that the roots returned by the RootsListHandler changed.
func (c *Client) NotifyRootsListChanged(ctx context.Context) error {
	ep, err := c.connectedEndpoint()
	if err != nil {
		return err
	}
	return ep.notify(ctx, methodNotificationsRootsListChanged, nil)
}

func (c *Client) call(ctx context.Context, method string, params, result any) error {
	ep, err := c.connectedEndpoint()
	if err != nil {
		return err
	}
	return ep.call(ctx, method, params, result)
}

func (c *Client) connectedEndpoint() (*endpoint, error) {
	switch c.state.load() {
	case StateInitialized:
	case StateClosed:
		return nil, ErrSessionClosed
	default:
		return nil, ErrNotConnected
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.endpoint, nil
}

func (c *Client) pings(ep *endpoint) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	failed := 0
	for {
		select {
		case <-ep.closed():
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.pingInterval)
		err := ep.call(ctx, MethodPing, nil, nil)
		cancel()

		if err == nil {
			failed = 0
			continue
		}
		if errors.Is(err, ErrSessionClosed) {
			return
		}
		failed++
		c.logger.Warn("failed to ping server", slog.Int("failed", failed), slog.String("err", err.Error()))
		if failed > c.pingTimeoutThreshold {
			c.logger.Warn("too many pings failed, closing session")
			c.Close()
			return
		}
	}
}

func (c *Client) handleRequest(ctx context.Context, msg JSONRPCMessage) (any, error) {
	switch msg.Method {
	case MethodPing:
		return struct{}{}, nil
	case MethodSamplingCreateMessage:
		if c.samplingHandler == nil {
			return nil, methodNotFoundError(msg.Method)
		}
		var params SamplingParams
		if err := unmarshalParams(msg.Params, &params); err != nil {
			return nil, err
		}
		result, err := c.samplingHandler.CreateSampleMessage(ctx, params)
		if err != nil {
			return nil, err
		}
		return result, nil
	case MethodRootsList:
		if c.rootsListHandler == nil {
			return nil, methodNotFoundError(msg.Method)
		}
		roots, err := c.rootsListHandler.RootsList(ctx)
		if err != nil {
			return nil, err
		}
		if roots.Roots == nil {
			roots.Roots = []Root{}
		}
		return roots, nil
	default:
		return nil, methodNotFoundError(msg.Method)
	}
}

// handleNotification runs on the read loop, so watchers are called on their own goroutines and
// may call back into the client. Progress goes through a queue drained by one goroutine so the
// listener sees updates in the order they arrived.
func (c *Client) handleNotification(_ context.Context, msg JSONRPCMessage) {
	switch msg.Method {
	case methodNotificationsToolsListChanged, methodLegacyToolsListChangedCamel:
		if c.toolListWatcher != nil {
			go c.toolListWatcher.OnToolListChanged()
		}
	case methodNotificationsPromptsListChanged:
		if c.promptListWatcher != nil {
			go c.promptListWatcher.OnPromptListChanged()
		}
	case methodNotificationsResourcesListChanged:
		if c.resourceListWatcher != nil {
			go c.resourceListWatcher.OnResourceListChanged()
		}
	case methodNotificationsResourcesUpdated:
		if c.resourceSubscribedWatcher == nil {
			return
		}
		var params ResourceUpdatedParams
		if err := unmarshalParams(msg.Params, &params); err != nil {
			c.logger.Warn("failed to unmarshal resource updated params", slog.String("err", err.Error()))
			return
		}
		go c.resourceSubscribedWatcher.OnResourceSubscribedChanged(params.URI)
	case methodNotificationsProgress, methodLegacyProgress:
		if c.progressListener == nil {
			return
		}
		var params ProgressParams
		if err := unmarshalParams(msg.Params, &params); err != nil {
			c.logger.Warn("failed to unmarshal progress params", slog.String("err", err.Error()))
			return
		}
		c.progress.push(params)
	default:
		c.logger.Debug("ignoring unknown notification", slog.String("method", msg.Method))
	}
}

// progressQueue buffers progress notifications between the read loop and the listener. push
// never blocks.
type progressQueue struct {
	mu     sync.Mutex
	items  []ProgressParams
	signal chan struct{}
}

func newProgressQueue() *progressQueue {
	return &progressQueue{signal: make(chan struct{}, 1)}
}

func (q *progressQueue) push(params ProgressParams) {
	q.mu.Lock()
	q.items = append(q.items, params)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *progressQueue) drain(listener ProgressListener, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-q.signal:
		}

		q.mu.Lock()
		items := q.items
		q.items = nil
		q.mu.Unlock()

		for _, params := range items {
			listener.OnProgress(params)
		}
	}
}
