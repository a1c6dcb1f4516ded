package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// endpoint runs the protocol over one Session. It is shared by both peers: it decodes inbound
// frames, hands requests and notifications to its handler, matches responses to the calls this
// side made, and packages handler results and failures into replies.
type endpoint struct {
	session Session
	handler endpointHandler
	logger  *slog.Logger

	requestTimeout time.Duration
	sendTimeout    time.Duration

	pending *pendingRequests

	inflightMu sync.Mutex
	inflight   map[RequestID]context.CancelFunc

	baseCtx    context.Context
	baseCancel context.CancelFunc
	done       chan struct{}
	closeOnce  sync.Once
}

type endpointHandler interface {
	// handleRequest serves one inbound request. Its context is cancelled when the peer cancels
	// the request or the session ends.
	handleRequest(ctx context.Context, msg JSONRPCMessage) (any, error)
	// handleNotification consumes one inbound notification. It runs on the read loop.
	handleNotification(ctx context.Context, msg JSONRPCMessage)
}

func newEndpoint(
	session Session,
	handler endpointHandler,
	logger *slog.Logger,
	requestTimeout, sendTimeout time.Duration,
) *endpoint {
	baseCtx, baseCancel := context.WithCancel(context.Background())
	return &endpoint{
		session:        session,
		handler:        handler,
		logger:         logger,
		requestTimeout: requestTimeout,
		sendTimeout:    sendTimeout,
		pending:        newPendingRequests(),
		inflight:       make(map[RequestID]context.CancelFunc),
		baseCtx:        baseCtx,
		baseCancel:     baseCancel,
		done:           make(chan struct{}),
	}
}

// run reads the session until it ends. Requests are served concurrently; notifications and
// responses are handled in arrival order.
func (e *endpoint) run() {
	defer e.close()

	for frame := range e.session.Messages() {
		msg, err := DecodeMessage(frame)
		if err != nil {
			e.handleDecodeError(frame, err)
			continue
		}

		switch msg.Kind() {
		case KindRequest:
			go e.serveRequest(msg)
		case KindNotification:
			e.dispatchNotification(msg)
		case KindResponse, KindErrorResponse:
			if !e.pending.resolve(msg) {
				attrs := []any{slog.String("kind", msg.Kind().String())}
				if msg.ID != nil {
					attrs = append(attrs, slog.String("id", msg.ID.String()))
				}
				e.logger.Warn("dropping response with unknown id", attrs...)
			}
		default:
		}
	}
}

// close fails every pending call and cancels every in-flight handler.
func (e *endpoint) close() {
	e.closeOnce.Do(func() {
		e.pending.closeAll()
		e.baseCancel()
		close(e.done)
	})
}

func (e *endpoint) closed() <-chan struct{} {
	return e.done
}

func (e *endpoint) handleDecodeError(frame json.RawMessage, err error) {
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) || decodeErr.ID == nil {
		e.logger.Warn("failed to decode message",
			slog.String("frame", string(frame)),
			slog.String("err", err.Error()))
		return
	}

	e.logger.Info("answering malformed message",
		slog.String("id", decodeErr.ID.String()),
		slog.String("err", err.Error()))
	e.send(newErrorResponse(decodeErr.ID, decodeErr.Err))
}

func (e *endpoint) dispatchNotification(msg JSONRPCMessage) {
	switch msg.Method {
	case methodNotificationsCancelled, methodLegacyCancel:
		var params CancelledParams
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			e.logger.Warn("failed to unmarshal cancelled params", slog.String("err", err.Error()))
			return
		}
		e.inflightMu.Lock()
		cancel, ok := e.inflight[params.RequestID]
		e.inflightMu.Unlock()
		if ok {
			e.logger.Debug("cancelling request",
				slog.String("id", params.RequestID.String()),
				slog.String("reason", params.Reason))
			cancel()
		}
	default:
		e.handler.handleNotification(e.baseCtx, msg)
	}
}

func (e *endpoint) serveRequest(msg JSONRPCMessage) {
	id := *msg.ID
	ctx, cancel := context.WithCancel(e.baseCtx)

	e.inflightMu.Lock()
	e.inflight[id] = cancel
	e.inflightMu.Unlock()

	defer func() {
		e.inflightMu.Lock()
		delete(e.inflight, id)
		e.inflightMu.Unlock()
		cancel()
	}()

	result, err := e.invoke(ctx, msg)
	if err != nil {
		jsonErr := toJSONRPCError(err)
		e.logger.Info("request failed",
			slog.String("method", msg.Method),
			slog.String("id", id.String()),
			slog.String("err", jsonErr.Error()))
		e.send(newErrorResponse(&id, jsonErr))
		return
	}

	resBs, err := marshalResult(result)
	if err != nil {
		e.logger.Error("failed to marshal result",
			slog.String("method", msg.Method),
			slog.String("err", err.Error()))
		e.send(newErrorResponse(&id, JSONRPCError{
			Code:    CodeInternalError,
			Message: errMsgInternalError,
			Data:    err.Error(),
		}))
		return
	}
	e.send(newResponse(id, resBs))
}

// invoke calls the handler and turns a panic into an internal error so the session survives
// faulty handlers.
func (e *endpoint) invoke(ctx context.Context, msg JSONRPCMessage) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("handler panicked",
				slog.String("method", msg.Method),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			result = nil
			err = JSONRPCError{
				Code:    CodeInternalError,
				Message: errMsgInternalError,
				Data:    fmt.Sprint(r),
			}
		}
	}()

	return e.handler.handleRequest(ctx, msg)
}

// send writes a message bounded by the send timeout. Failures are only logged.
func (e *endpoint) send(msg JSONRPCMessage) {
	ctx, cancel := e.sendContext()
	defer cancel()

	if err := e.session.Send(ctx, msg); err != nil {
		e.logger.Error("failed to send message", slog.String("err", err.Error()))
	}
}

func (e *endpoint) sendContext() (context.Context, context.CancelFunc) {
	if e.sendTimeout > 0 {
		return context.WithTimeout(context.Background(), e.sendTimeout)
	}
	return context.WithCancel(context.Background())
}

// call sends a request and waits for the matching response. A peer error is returned as a
// JSONRPCError. When ctx ends or the request timeout elapses first, the pending slot is released
// and the peer is told to stop working on the request.
func (e *endpoint) call(ctx context.Context, method string, params, result any) error {
	select {
	case <-e.done:
		return ErrSessionClosed
	default:
	}

	paramsBs, err := marshalParams(params)
	if err != nil {
		return fmt.Errorf("failed to marshal %s params: %w", method, err)
	}

	id, responses, ok := e.pending.add()
	if !ok {
		return ErrSessionClosed
	}

	if e.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.requestTimeout)
		defer cancel()
	}

	if err := e.session.Send(ctx, newRequest(id, method, paramsBs)); err != nil {
		e.pending.remove(id)
		return fmt.Errorf("failed to send %s request: %w", method, err)
	}

	select {
	case msg, ok := <-responses:
		if !ok {
			return ErrSessionClosed
		}
		if msg.Error != nil {
			return *msg.Error
		}
		if result == nil || len(msg.Result) == 0 {
			return nil
		}
		if err := json.Unmarshal(msg.Result, result); err != nil {
			return fmt.Errorf("failed to unmarshal %s result: %w", method, err)
		}
		return nil
	case <-ctx.Done():
		e.pending.remove(id)
		reason := userCancelledReason
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			reason = timeoutReason
		}
		go e.cancelRemote(id, reason)
		return fmt.Errorf("%s request abandoned: %w", method, ctx.Err())
	}
}

func (e *endpoint) cancelRemote(id RequestID, reason string) {
	ctx, cancel := e.sendContext()
	defer cancel()

	if err := e.notify(ctx, methodNotificationsCancelled, CancelledParams{RequestID: id, Reason: reason}); err != nil {
		e.logger.Warn("failed to send cancellation", slog.String("err", err.Error()))
	}
}

// notify sends a one-way message.
func (e *endpoint) notify(ctx context.Context, method string, params any) error {
	select {
	case <-e.done:
		return ErrSessionClosed
	default:
	}

	paramsBs, err := marshalParams(params)
	if err != nil {
		return fmt.Errorf("failed to marshal %s params: %w", method, err)
	}
	if err := e.session.Send(ctx, newNotification(method, paramsBs)); err != nil {
		return fmt.Errorf("failed to send %s notification: %w", method, err)
	}
	return nil
}

func marshalParams(params any) (json.RawMessage, error) {
	switch p := params.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return p, nil
	default:
		return json.Marshal(p)
	}
}

func marshalResult(result any) (json.RawMessage, error) {
	switch r := result.(type) {
	case nil:
		return json.RawMessage("{}"), nil
	case json.RawMessage:
		if len(r) == 0 {
			return json.RawMessage("{}"), nil
		}
		return r, nil
	default:
		return json.Marshal(r)
	}
}
