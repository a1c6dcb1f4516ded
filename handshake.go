package mcp

import (
	"slices"
	"sync/atomic"
)

// SessionState is the lifecycle state of a protocol session.
type SessionState int32

// sessionState holds a SessionState that is read by the dispatch path and advanced by the
// handshake path concurrently.
type sessionState struct {
	v atomic.Int32
}

const (
	// StateUninitialized is the state before any initialize request.
	StateUninitialized SessionState = iota
	// StateInitializing is entered when initialize is sent (client) or answered (server).
	StateInitializing
	// StateInitialized is entered once notifications/initialized is sent (client) or
	// received (server). Capabilities are fixed from here on.
	StateInitialized
	// StateClosed is entered when the transport ends, from any state.
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateInitialized:
		return "initialized"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

func (s *sessionState) load() SessionState {
	return SessionState(s.v.Load())
}

// advance moves the state forward to next. It never leaves StateClosed and never moves backwards,
// and reports whether the state changed.
func (s *sessionState) advance(next SessionState) bool {
	for {
		cur := s.v.Load()
		if SessionState(cur) == StateClosed || SessionState(cur) >= next {
			return false
		}
		if s.v.CompareAndSwap(cur, int32(next)) {
			return true
		}
	}
}

// transition moves the state from one exact state to another.
func (s *sessionState) transition(from, to SessionState) bool {
	return s.v.CompareAndSwap(int32(from), int32(to))
}

func (s *sessionState) close() {
	s.v.Store(int32(StateClosed))
}

// negotiateProtocolVersion picks the version a server answers with: the client's own version
// when supported, otherwise the newest version the server speaks.
func negotiateProtocolVersion(requested string) string {
	if isSupportedProtocolVersion(requested) {
		return requested
	}
	return LatestProtocolVersion
}

func isSupportedProtocolVersion(version string) bool {
	return slices.Contains(supportedProtocolVersions, version)
}

// SupportedProtocolVersions returns the protocol revisions this package speaks, newest first.
func SupportedProtocolVersions() []string {
	return slices.Clone(supportedProtocolVersions)
}

// checkServerRequest decides whether a request may be dispatched in the given state. Before the
// handshake completes only initialize and ping are served.
func checkServerRequest(state SessionState, method string) error {
	switch method {
	case MethodPing:
		return nil
	case MethodInitialize:
		if state == StateInitialized {
			return JSONRPCError{Code: CodeInvalidRequest, Message: errMsgAlreadyInitialized}
		}
		return nil
	}
	if state != StateInitialized {
		return JSONRPCError{Code: CodeNotInitialized, Message: errMsgNotInitialized, Data: method}
	}
	return nil
}
