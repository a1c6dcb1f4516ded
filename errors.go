package mcp

import (
	"errors"
	"fmt"
)

// JSONRPCError represents an error response in the JSON-RPC 2.0 protocol.
// It is the error object of a JSON-RPC 2.0 response.
//
// Handlers may return a JSONRPCError (or an error wrapping one) to control the exact code sent
// to the peer. Calls that fail because of the peer's error response return a JSONRPCError built
// from the peer's code, message and data.
type JSONRPCError struct {
	// Code indicates the error type that occurred.
	Code int `json:"code"`

	// Message provides a short description of the error.
	Message string `json:"message"`

	// Data contains additional information about the error.
	// The value is unstructured and may be omitted.
	Data any `json:"data,omitempty"`
}

// Error codes used by the protocol.
const (
	CodeParseError       = -32700
	CodeInvalidRequest   = -32600
	CodeMethodNotFound   = -32601
	CodeInvalidParams    = -32602
	CodeInternalError    = -32603
	CodeNotInitialized   = -32002
	CodeNotFound         = -32001
	CodeApplicationError = -32000
)

const (
	errMsgParseError         = "Parse error"
	errMsgInvalidRequest     = "Invalid request"
	errMsgMethodNotFound     = "Method not found"
	errMsgInvalidParams      = "Invalid params"
	errMsgInternalError      = "Internal error"
	errMsgNotInitialized     = "Server not initialized"
	errMsgAlreadyInitialized = "Session already initialized"
	errMsgToolNotFound       = "Tool not found"
	errMsgPromptNotFound     = "Prompt not found"
	errMsgResourceNotFound   = "Resource not found"
	errMsgApplicationError   = "Application error"
)

var (
	// ErrSessionClosed is returned for calls that were pending, or attempted, after the session
	// with the peer ended.
	ErrSessionClosed = errors.New("session closed")

	// ErrNotConnected is returned by Client calls made before Connect succeeded.
	ErrNotConnected = errors.New("client not connected")

	// ErrAlreadyConnected is returned when Connect is called twice on the same Client.
	ErrAlreadyConnected = errors.New("client already connected")

	// ErrUnsupportedProtocolVersion is returned by Connect when the server answers with a
	// protocol version the client does not speak.
	ErrUnsupportedProtocolVersion = errors.New("unsupported protocol version")

	// ErrInvalidTemplate is returned when a resource URI template cannot be parsed.
	ErrInvalidTemplate = errors.New("invalid resource template")
)

func (j JSONRPCError) Error() string {
	if j.Data != nil {
		return fmt.Sprintf("request error, code: %d, message: %s, data: %v", j.Code, j.Message, j.Data)
	}
	return fmt.Sprintf("request error, code: %d, message: %s", j.Code, j.Message)
}

func invalidParamsError(err error) JSONRPCError {
	return JSONRPCError{
		Code:    CodeInvalidParams,
		Message: errMsgInvalidParams,
		Data:    err.Error(),
	}
}

func methodNotFoundError(method string) JSONRPCError {
	return JSONRPCError{
		Code:    CodeMethodNotFound,
		Message: errMsgMethodNotFound,
		Data:    method,
	}
}

func notFoundError(message, name string) JSONRPCError {
	return JSONRPCError{
		Code:    CodeNotFound,
		Message: message,
		Data:    name,
	}
}

// toJSONRPCError packages an error returned by a handler. Errors that already are, or wrap, a
// JSONRPCError are sent unchanged; anything else becomes an application error carrying the
// error text as data.
func toJSONRPCError(err error) JSONRPCError {
	var jsonErr JSONRPCError
	if errors.As(err, &jsonErr) {
		return jsonErr
	}
	return JSONRPCError{
		Code:    CodeApplicationError,
		Message: errMsgApplicationError,
		Data:    err.Error(),
	}
}
