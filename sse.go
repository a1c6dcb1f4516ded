package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/google/uuid"
	"github.com/tmaxmax/go-sse"
	"golang.org/x/time/rate"
)

var (
	jsonMediaType         = contenttype.NewMediaType("application/json")
	eventStreamMediaType  = contenttype.NewMediaType("text/event-stream")
	eventStreamMediaTypes = []contenttype.MediaType{eventStreamMediaType}
)

const (
	sseEndpointEvent = "endpoint"
	sseMessageEvent  = "message"

	sseSessionIDParam = "sessionId"
)

// SSEServer implements a framework-agnostic Server-Sent Events (SSE) server transport. It
// streams server-to-client messages over a long-lived GET response and receives client-to-server
// messages through HTTP POST. A POST carrying a request is held open until the server answers
// and the response is written as the POST body; other messages are acknowledged with 204.
//
// The server exposes HandleSSE and HandleMessage http.Handlers that can be mounted on any
// router. Instances should be created using NewSSEServer and shut down using Shutdown.
type SSEServer struct {
	messageURL string
	logger     *slog.Logger
	keepAlive  time.Duration

	rateLimit rate.Limit
	rateBurst int

	sessions chan *sseServerSession

	mu     sync.RWMutex
	active map[string]*sseServerSession

	serving   atomic.Bool
	done      chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
}

// SSEServerOption represents the options for the SSEServer.
type SSEServerOption func(*SSEServer)

type sseServerSession struct {
	id      string
	logger  *slog.Logger
	limiter *rate.Limiter

	sendMsgs chan sseServerSessionSendMsg
	received chan json.RawMessage

	waitersMu sync.Mutex
	waiters   map[RequestID]chan JSONRPCMessage

	done     chan struct{}
	stopOnce sync.Once
	onStop   func()
}

type sseServerSessionSendMsg struct {
	msg  *sse.Message
	errs chan<- error
}

var defaultSSEKeepAlive = 15 * time.Second

// NewSSEServer creates an SSE server that tells each client to POST its messages to messageURL.
// The session id is appended to messageURL as the sessionId query parameter.
func NewSSEServer(messageURL string, options ...SSEServerOption) *SSEServer {
	s := &SSEServer{
		messageURL: messageURL,
		logger:     slog.Default(),
		keepAlive:  defaultSSEKeepAlive,
		sessions:   make(chan *sseServerSession),
		active:     make(map[string]*sseServerSession),
		done:       make(chan struct{}),
		closed:     make(chan struct{}),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// WithSSEServerLogger sets the logger for the SSE server.
func WithSSEServerLogger(logger *slog.Logger) SSEServerOption {
	return func(s *SSEServer) {
		s.logger = logger.With(
			slog.String("package", "go-mcp"),
			slog.String("component", "sse-server"),
		)
	}
}

// WithSSEKeepAlive sets the interval of the keep-alive comments written on idle streams. Zero
// disables keep-alives.
func WithSSEKeepAlive(interval time.Duration) SSEServerOption {
	return func(s *SSEServer) {
		s.keepAlive = interval
	}
}

// WithSSEMessageRateLimit limits how many POSTs each session may send. Requests over the limit are
// rejected with 429 Too Many Requests.
func WithSSEMessageRateLimit(limit rate.Limit, burst int) SSEServerOption {
	return func(s *SSEServer) {
		s.rateLimit = limit
		s.rateBurst = burst
	}
}

// Sessions returns an iterator over client sessions. A session is yielded once its SSE stream
// is open and the endpoint event has been written.
func (s *SSEServer) Sessions() iter.Seq[Session] {
	return func(yield func(Session) bool) {
		s.serving.Store(true)
		defer close(s.closed)

		for {
			select {
			case <-s.done:
				return
			case sess := <-s.sessions:
				if !yield(sess) {
					return
				}
			}
		}
	}
}

// Shutdown stops every open session and waits for the Sessions loop to return.
func (s *SSEServer) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.done) })

	s.mu.RLock()
	sessions := make([]*sseServerSession, 0, len(s.active))
	for _, sess := range s.active {
		sessions = append(sessions, sess)
	}
	s.mu.RUnlock()
	for _, sess := range sessions {
		sess.Stop()
	}

	if !s.serving.Load() {
		return nil
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("failed to close SSE server: %w", ctx.Err())
	case <-s.closed:
	}
	return nil
}

// HandleSSE returns an http.Handler for SSE connections over GET requests. The handler upgrades
// the connection, assigns a session id, writes the endpoint event and then streams the session's
// outbound messages until the client disconnects or the session is stopped.
func (s *SSEServer) HandleSSE() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if r.Header.Get("Accept") != "" {
			if _, _, err := contenttype.GetAcceptableMediaType(r, eventStreamMediaTypes); err != nil {
				http.Error(w, "client must accept text/event-stream", http.StatusNotAcceptable)
				return
			}
		}

		select {
		case <-s.done:
			http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
			return
		default:
		}

		// Received the request to establish a new SSE session.
		stream, err := sse.Upgrade(w, r)
		if err != nil {
			s.logger.Error("failed to upgrade session", slog.String("err", err.Error()))
			http.Error(w, fmt.Sprintf("failed to upgrade session: %v", err), http.StatusInternalServerError)
			return
		}

		sess := s.newSession()

		// Use the type "endpoint" to indicate the endpoint URL.
		msg := &sse.Message{Type: sse.Type(sseEndpointEvent)}
		msg.AppendData(s.endpointURL(sess.id))
		if err := stream.Send(msg); err != nil {
			s.logger.Error("failed to write SSE endpoint", slog.String("err", err.Error()))
			return
		}
		if err := stream.Flush(); err != nil {
			s.logger.Error("failed to flush SSE endpoint", slog.String("err", err.Error()))
			return
		}

		s.mu.Lock()
		s.active[sess.id] = sess
		s.mu.Unlock()
		defer sess.Stop()

		// Feed the sessions channel that would be consumed in Sessions loop, so it can be forwarded to caller.
		select {
		case s.sessions <- sess:
		case <-s.done:
			return
		case <-r.Context().Done():
			return
		}

		s.logger.Debug("SSE session opened", slog.String("sessionID", sess.id))
		sess.processSendMessages(r.Context(), stream, s.keepAlive)
		s.logger.Debug("SSE session closed", slog.String("sessionID", sess.id))
	})
}

// HandleMessage returns an http.Handler for client messages sent via POST. The handler expects
// a sessionId query parameter naming an open session and a body holding exactly one JSON-RPC
// message.
func (s *SSEServer) HandleMessage() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		sessID := r.URL.Query().Get(sseSessionIDParam)
		if sessID == "" {
			sessID = r.URL.Query().Get("sessionID")
		}
		if sessID == "" {
			http.Error(w, "missing sessionId query parameter", http.StatusBadRequest)
			return
		}

		s.mu.RLock()
		sess, ok := s.active[sessID]
		s.mu.RUnlock()
		if !ok {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}

		ctype, err := contenttype.GetMediaType(r)
		if err != nil || !ctype.Matches(jsonMediaType) {
			http.Error(w, "content-type must be application/json", http.StatusUnsupportedMediaType)
			return
		}

		if sess.limiter != nil && !sess.limiter.Allow() {
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, fmt.Sprintf("failed to read body: %v", err), http.StatusBadRequest)
			return
		}

		// Requests, including malformed ones whose id could be recovered, are answered on this
		// POST. Everything else is only acknowledged.
		var replyTo *RequestID
		msg, err := DecodeMessage(body)
		switch {
		case err != nil:
			var decodeErr *DecodeError
			if !errors.As(err, &decodeErr) || decodeErr.ID == nil {
				s.logger.Warn("failed to decode message", slog.String("err", err.Error()))
				http.Error(w, fmt.Sprintf("failed to decode message: %v", err), http.StatusBadRequest)
				return
			}
			replyTo = decodeErr.ID
		case msg.Kind() == KindRequest:
			replyTo = msg.ID
		}

		var replies <-chan JSONRPCMessage
		if replyTo != nil {
			replies, ok = sess.addWaiter(*replyTo)
			if !ok {
				http.Error(w, "duplicate request id", http.StatusBadRequest)
				return
			}
			defer sess.removeWaiter(*replyTo)
		}

		select {
		case sess.received <- json.RawMessage(body):
		case <-sess.done:
			http.Error(w, "session closed", http.StatusNotFound)
			return
		case <-r.Context().Done():
			return
		}

		if replies == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		select {
		case reply := <-replies:
			replyBs, err := EncodeMessage(reply)
			if err != nil {
				s.logger.Error("failed to marshal reply", slog.String("err", err.Error()))
				http.Error(w, "failed to marshal reply", http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			if _, err := w.Write(replyBs); err != nil {
				s.logger.Warn("failed to write reply", slog.String("err", err.Error()))
			}
		case <-sess.done:
			http.Error(w, "session closed", http.StatusServiceUnavailable)
		case <-r.Context().Done():
		}
	})
}

func (s *SSEServer) newSession() *sseServerSession {
	id := uuid.New().String()
	sess := &sseServerSession{
		id:       id,
		logger:   s.logger.With(slog.String("sessionID", id)),
		sendMsgs: make(chan sseServerSessionSendMsg),
		received: make(chan json.RawMessage, 16),
		waiters:  make(map[RequestID]chan JSONRPCMessage),
		done:     make(chan struct{}),
	}
	if s.rateLimit > 0 {
		sess.limiter = rate.NewLimiter(s.rateLimit, max(s.rateBurst, 1))
	}
	sess.onStop = func() {
		s.mu.Lock()
		delete(s.active, id)
		s.mu.Unlock()
	}
	return sess
}

func (s *SSEServer) endpointURL(sessID string) string {
	sep := "?"
	if strings.Contains(s.messageURL, "?") {
		sep = "&"
	}
	return s.messageURL + sep + sseSessionIDParam + "=" + url.QueryEscape(sessID)
}

func (s *sseServerSession) ID() string { return s.id }

// Send answers a held POST when msg is the response to it, and streams msg as an SSE event
// otherwise. Events are named after the method, or "message" for responses.
func (s *sseServerSession) Send(ctx context.Context, msg JSONRPCMessage) error {
	if kind := msg.Kind(); (kind == KindResponse || kind == KindErrorResponse) && msg.ID != nil {
		if s.deliverReply(msg) {
			return nil
		}
	}

	msgBs, err := EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	event := sseMessageEvent
	if msg.Method != "" {
		event = msg.Method
	}
	sseMsg := &sse.Message{Type: sse.Type(event)}
	sseMsg.AppendData(string(msgBs))

	errs := make(chan error, 1)

	// Queue the message for sending to avoid race in the sse library
	select {
	case s.sendMsgs <- sseServerSessionSendMsg{msg: sseMsg, errs: errs}:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrSessionClosed
	}

	// Wait and return the error if any
	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrSessionClosed
	}
}

func (s *sseServerSession) Messages() iter.Seq[json.RawMessage] {
	return func(yield func(json.RawMessage) bool) {
		for {
			select {
			case msg := <-s.received:
				if !yield(msg) {
					return
				}
			case <-s.done:
				return
			}
		}
	}
}

func (s *sseServerSession) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		if s.onStop != nil {
			s.onStop()
		}
	})
}

func (s *sseServerSession) addWaiter(id RequestID) (<-chan JSONRPCMessage, bool) {
	s.waitersMu.Lock()
	defer s.waitersMu.Unlock()

	if _, ok := s.waiters[id]; ok {
		return nil, false
	}
	ch := make(chan JSONRPCMessage, 1)
	s.waiters[id] = ch
	return ch, true
}

func (s *sseServerSession) removeWaiter(id RequestID) {
	s.waitersMu.Lock()
	defer s.waitersMu.Unlock()

	delete(s.waiters, id)
}

func (s *sseServerSession) deliverReply(msg JSONRPCMessage) bool {
	s.waitersMu.Lock()
	ch, ok := s.waiters[*msg.ID]
	if ok {
		delete(s.waiters, *msg.ID)
	}
	s.waitersMu.Unlock()

	if !ok {
		return false
	}
	ch <- msg
	return true
}

// processSendMessages owns the stream: every write to it happens here.
func (s *sseServerSession) processSendMessages(ctx context.Context, stream *sse.Session, keepAlive time.Duration) {
	defer s.Stop()

	var ticks <-chan time.Time
	if keepAlive > 0 {
		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()
		ticks = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticks:
			ping := &sse.Message{}
			ping.AppendComment("ping")
			if err := s.write(stream, ping); err != nil {
				s.logger.Warn("failed to send keep-alive", slog.String("err", err.Error()))
				return
			}
		case sm := <-s.sendMsgs:
			// Send and flush the message to the client.
			err := s.write(stream, sm.msg)
			sm.errs <- err
			if err != nil {
				s.logger.Warn("failed to send message", slog.String("err", err.Error()))
				return
			}
		}
	}
}

func (s *sseServerSession) write(stream *sse.Session, msg *sse.Message) error {
	if err := stream.Send(msg); err != nil {
		return err
	}
	return stream.Flush()
}

// SSEClient implements the client side of the SSE transport: it opens the event stream with a
// GET request, learns the POST endpoint from the endpoint event and sends its messages there.
// Instances should be created using NewSSEClient.
type SSEClient struct {
	httpClient *http.Client
	connectURL string
	logger     *slog.Logger

	maxPayloadSize int
}

// SSEClientOption represents the options for the SSEClient.
type SSEClientOption func(*SSEClient)

type sseClientSession struct {
	id         string
	client     *SSEClient
	messageURL string

	messages chan json.RawMessage
	cancel   context.CancelFunc
	readDone chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewSSEClient creates an SSE client that connects to the specified connectURL. The optional
// httpClient parameter allows custom HTTP client configuration - if nil, the default HTTP
// client is used. The client must call StartSession to begin communication.
func NewSSEClient(connectURL string, httpClient *http.Client, options ...SSEClientOption) *SSEClient {
	cli := httpClient
	if cli == nil {
		cli = http.DefaultClient
	}
	s := &SSEClient{
		connectURL: connectURL,
		httpClient: cli,
		logger:     slog.Default(),
	}

	for _, opt := range options {
		opt(s)
	}

	return s
}

// WithSSEClientMaxPayloadSize sets the maximum size of the payload that can be received
// from the server. If the payload size exceeds this limit, the error will be logged and
// the client will be disconnected.
func WithSSEClientMaxPayloadSize(size int) SSEClientOption {
	return func(s *SSEClient) {
		s.maxPayloadSize = size
	}
}

// WithSSEClientLogger sets the logger for the SSE client.
func WithSSEClientLogger(logger *slog.Logger) SSEClientOption {
	return func(s *SSEClient) {
		s.logger = logger.With(
			slog.String("package", "go-mcp"),
			slog.String("component", "sse-client"),
		)
	}
}

// StartSession opens the event stream and waits for the endpoint event. ctx bounds only the
// connection phase; the stream stays open until the session is stopped.
func (s *SSEClient) StartSession(ctx context.Context) (Session, error) {
	base, err := url.Parse(s.connectURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connect URL: %w", err)
	}

	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, s.connectURL, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	connected := make(chan *http.Response, 1)
	connectErrs := make(chan error, 1)
	go func() {
		resp, err := s.httpClient.Do(req)
		if err != nil {
			connectErrs <- err
			return
		}
		connected <- resp
	}()

	var resp *http.Response
	select {
	case <-ctx.Done():
		cancel()
		return nil, fmt.Errorf("failed to connect to SSE server: %w", ctx.Err())
	case err := <-connectErrs:
		cancel()
		return nil, fmt.Errorf("failed to connect to SSE server: %w", err)
	case resp = <-connected:
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	sess := &sseClientSession{
		client:   s,
		messages: make(chan json.RawMessage, 16),
		cancel:   cancel,
		readDone: make(chan struct{}),
		done:     make(chan struct{}),
	}
	endpoints := make(chan string, 1)
	go sess.listenSSEMessages(resp.Body, endpoints)

	select {
	case <-ctx.Done():
		sess.Stop()
		return nil, fmt.Errorf("failed to wait for endpoint event: %w", ctx.Err())
	case <-sess.readDone:
		sess.Stop()
		return nil, errors.New("SSE stream closed before endpoint event")
	case endpoint := <-endpoints:
		u, err := url.Parse(endpoint)
		if err != nil || endpoint == "" {
			sess.Stop()
			return nil, fmt.Errorf("invalid endpoint URL %q", endpoint)
		}
		u = base.ResolveReference(u)
		sess.messageURL = u.String()
		sess.id = u.Query().Get(sseSessionIDParam)
		if sess.id == "" {
			sess.id = uuid.New().String()
		}
	}

	return sess, nil
}

func (s *sseClientSession) listenSSEMessages(body io.ReadCloser, endpoints chan<- string) {
	defer func() {
		body.Close()
		close(s.readDone)
	}()

	var config *sse.ReadConfig
	if s.client.maxPayloadSize > 0 {
		config = &sse.ReadConfig{
			MaxEventSize: s.client.maxPayloadSize,
		}
	}

	gotEndpoint := false
	for ev, err := range sse.Read(body, config) {
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				s.client.logger.Error("failed to read SSE message", slog.String("err", err.Error()))
			}
			return
		}

		if ev.Type == sseEndpointEvent {
			if !gotEndpoint {
				gotEndpoint = true
				endpoints <- ev.Data
			}
			continue
		}
		if !gotEndpoint {
			s.client.logger.Warn("received message before endpoint URL", slog.String("type", ev.Type))
			continue
		}
		if ev.Data == "" {
			continue
		}

		// The event name is informational; every data event carries one JSON-RPC message.
		select {
		case s.messages <- json.RawMessage(ev.Data):
		case <-s.done:
			return
		}
	}
}

func (s *sseClientSession) ID() string { return s.id }

// Send transmits a JSON-encoded message to the server through an HTTP POST request. When the
// server answers a request in the POST response, the answer is fed back into Messages.
func (s *sseClientSession) Send(ctx context.Context, msg JSONRPCMessage) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}

	msgBs, err := EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.messageURL, bytes.NewReader(msgBs))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusAccepted, http.StatusNoContent:
		return nil
	case http.StatusOK:
	default:
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, bytes.TrimSpace(text))
	}

	reply, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read reply: %w", err)
	}
	reply = bytes.TrimSpace(reply)
	if len(reply) == 0 {
		return nil
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !contenttype.NewMediaType(ct).Matches(jsonMediaType) {
		return fmt.Errorf("unexpected reply content type %q", ct)
	}

	select {
	case s.messages <- json.RawMessage(reply):
		return nil
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *sseClientSession) Messages() iter.Seq[json.RawMessage] {
	return func(yield func(json.RawMessage) bool) {
		for {
			select {
			case msg := <-s.messages:
				if !yield(msg) {
					return
				}
			case <-s.readDone:
				return
			case <-s.done:
				return
			}
		}
	}
}

func (s *sseClientSession) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.cancel()
	})
}
