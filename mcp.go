package mcp

import (
	"context"
	"encoding/json"
	"iter"
)

// ServerTransport provides the server side of a communication channel. Each yielded Session is
// one connected client, served by its own protocol session.
type ServerTransport interface {
	// Sessions returns an iterator that yields new client sessions as they are initiated.
	// Each yielded Session represents a unique client connection and provides methods for
	// bidirectional communication. The implementation must guarantee that each session ID
	// is unique across all active connections.
	//
	// The implementation should exit the iteration when the Shutdown method is called.
	Sessions() iter.Seq[Session]

	// Shutdown gracefully shuts down the ServerTransport and cleans up resources. The
	// implementation should stop yielding sessions and release anything the Sessions loop holds.
	Shutdown(ctx context.Context) error
}

// ClientTransport provides the client side of a communication channel.
type ClientTransport interface {
	// StartSession initiates a new session with the server. The returned Session is ready for
	// sending once StartSession returns without error.
	StartSession(ctx context.Context) (Session, error)
}

// Session is one duplex message channel between two peers.
type Session interface {
	// ID returns the unique identifier for this session. The implementation must
	// guarantee that session IDs are unique across all active sessions managed.
	ID() string

	// Send transmits a message to the peer. Implementations serialize concurrent calls so that
	// frames never interleave on the wire.
	Send(ctx context.Context, msg JSONRPCMessage) error

	// Messages returns an iterator that yields every frame received from the peer, one complete
	// JSON document per element. Decoding and validation are left to the caller so that malformed
	// frames can still be answered. The iteration ends when the session is stopped or the
	// underlying connection fails.
	Messages() iter.Seq[json.RawMessage]

	// Stop terminates the session and releases its resources. It is safe to call more than once.
	Stop()
}

// RootsListWatcher is notified on the server when a client reports that its roots changed.
type RootsListWatcher interface {
	// OnRootsListChanged is called with the session whose client reported the change. The
	// session can be used to fetch the new list with ListRoots.
	OnRootsListChanged(session *ServerSession)
}

// Client interfaces

// RootsListHandler answers roots/list requests sent by the server.
type RootsListHandler interface {
	// RootsList returns the list of available root resources.
	// Returns error if operation fails or context is cancelled.
	RootsList(ctx context.Context) (RootList, error)
}

// SamplingHandler provides an interface for generating AI model responses based on conversation history.
// It is invoked when a server sends sampling/createMessage to the client.
type SamplingHandler interface {
	// CreateSampleMessage generates a response message based on the provided conversation history and parameters.
	// Returns error if model selection fails, generation fails, token limit is exceeded, or context is cancelled.
	CreateSampleMessage(ctx context.Context, params SamplingParams) (SamplingResult, error)
}

// PromptListWatcher provides an interface for receiving notifications when the server's prompt list changes.
type PromptListWatcher interface {
	// OnPromptListChanged is called when the server notifies that its prompt list has changed.
	OnPromptListChanged()
}

// ResourceListWatcher provides an interface for receiving notifications when the server's resource list changes.
type ResourceListWatcher interface {
	// OnResourceListChanged is called when the server notifies that its resource list has changed.
	OnResourceListChanged()
}

// ResourceSubscribedWatcher provides an interface for receiving notifications when a subscribed resource changes.
type ResourceSubscribedWatcher interface {
	// OnResourceSubscribedChanged is called when the server notifies that a subscribed resource has changed.
	OnResourceSubscribedChanged(uri string)
}

// ToolListWatcher provides an interface for receiving notifications when the server's tool list changes.
type ToolListWatcher interface {
	// OnToolListChanged is called when the server notifies that its tool list has changed.
	OnToolListChanged()
}

// ProgressListener provides an interface for receiving progress updates on long-running operations.
type ProgressListener interface {
	// OnProgress is called when a progress update is received for an operation.
	OnProgress(params ProgressParams)
}

// ToolHandler implements a tool. Arguments is the raw JSON object sent by the client, or nil
// when the client sent none. The returned value is normalized into tool content: a string
// becomes text, a []byte becomes a binary blob, Content and []Content are kept as-is, a
// CallToolResult is sent unchanged and anything else is encoded as JSON text.
type ToolHandler func(ctx context.Context, req *Request, arguments json.RawMessage) (any, error)

// PromptHandler renders a prompt. The returned value is normalized into prompt messages: a
// PromptMessage or []PromptMessage is kept, a string or Content becomes a single user message,
// a GetPromptResult is sent unchanged and anything else is encoded as JSON text.
type PromptHandler func(ctx context.Context, req *Request, arguments map[string]string) (any, error)

// ResourceHandler reads a resource. For template resources params holds the percent-decoded
// placeholder values captured from uri; for literal resources it is empty. A string becomes
// text contents, a []byte becomes blob contents and ResourceContents values are kept as-is.
type ResourceHandler func(ctx context.Context, req *Request, uri string, params map[string]string) (any, error)
