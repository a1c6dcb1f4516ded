package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// RequestID identifies a JSON-RPC request. The protocol allows either a string or an integer,
// and peers may type-check the id strictly, so RequestID keeps the exact JSON primitive it was
// read as and writes it back unchanged. The zero value is an absent id.
//
// RequestID is comparable and can be used as a map key. It is also used for progress tokens,
// which share the same string-or-integer shape.
type RequestID struct {
	raw string
}

// MessageKind classifies a JSONRPCMessage.
type MessageKind int

// JSONRPCMessage represents a JSON-RPC 2.0 message used for communication in the MCP protocol.
// It can represent a request, a notification, a response or an error response depending on
// which fields are populated:
//   - Request: ID and Method are set
//   - Notification: Method is set, ID is nil
//   - Response: ID and Result are set
//   - Error response: Error is set, ID may be nil when the failing request id was unrecoverable
type JSONRPCMessage struct {
	// JSONRPC must always be "2.0". EncodeMessage fills it in when empty.
	JSONRPC string
	// ID correlates requests and responses.
	ID *RequestID
	// Method contains the RPC method name for requests and notifications.
	Method string
	// Params contains the parameters for the method call as a raw JSON message.
	Params json.RawMessage
	// Result contains the successful response data as a raw JSON message.
	Result json.RawMessage
	// Error contains error details if the request failed.
	Error *JSONRPCError
}

// DecodeError reports a frame that could not be decoded into a JSONRPCMessage. ID is set when
// the frame was a JSON object carrying a usable id, so the receiver can still answer it.
type DecodeError struct {
	ID  *RequestID
	Err JSONRPCError
}

type wireMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

const (
	// KindInvalid is returned for messages that carry neither a method nor a result or error.
	KindInvalid MessageKind = iota
	// KindRequest is a message with a method and an id.
	KindRequest
	// KindNotification is a message with a method and no id.
	KindNotification
	// KindResponse is a successful reply to a request.
	KindResponse
	// KindErrorResponse is a failed reply to a request.
	KindErrorResponse
)

var jsonNull = []byte("null")

// NewIntID returns a numeric RequestID.
func NewIntID(n int64) RequestID {
	return RequestID{raw: strconv.FormatInt(n, 10)}
}

// NewStringID returns a string RequestID.
func NewStringID(s string) RequestID {
	bs, _ := json.Marshal(s)
	return RequestID{raw: string(bs)}
}

// IsZero reports whether the id is absent.
func (id RequestID) IsZero() bool {
	return id.raw == ""
}

// IsString reports whether the id was written as a JSON string.
func (id RequestID) IsString() bool {
	return len(id.raw) > 0 && id.raw[0] == '"'
}

// String returns the id value without JSON quoting.
func (id RequestID) String() string {
	if id.IsString() {
		var s string
		if err := json.Unmarshal([]byte(id.raw), &s); err == nil {
			return s
		}
	}
	return id.raw
}

// MarshalJSON writes the id exactly as it was received or constructed.
func (id RequestID) MarshalJSON() ([]byte, error) {
	if id.raw == "" {
		return jsonNull, nil
	}
	return []byte(id.raw), nil
}

// UnmarshalJSON accepts a JSON string or number. Strings are stored in canonical encoding so
// equal strings always compare equal.
func (id *RequestID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty id")
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("failed to unmarshal string id: %w", err)
		}
		*id = NewStringID(s)
		return nil
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("failed to unmarshal numeric id: %w", err)
		}
		*id = RequestID{raw: n.String()}
		return nil
	default:
		return fmt.Errorf("id must be a string or a number, got %s", data)
	}
}

// Kind classifies the message by the fields that are populated.
func (m JSONRPCMessage) Kind() MessageKind {
	switch {
	case m.Method != "" && m.ID != nil:
		return KindRequest
	case m.Method != "":
		return KindNotification
	case m.Error != nil:
		return KindErrorResponse
	case m.Result != nil && m.ID != nil:
		return KindResponse
	default:
		return KindInvalid
	}
}

// MarshalJSON implements json.Marshaler with the same rules as EncodeMessage.
func (m JSONRPCMessage) MarshalJSON() ([]byte, error) {
	w := wireMessage{
		JSONRPC: m.JSONRPC,
		Method:  m.Method,
		Params:  m.Params,
		Result:  m.Result,
		Error:   m.Error,
	}
	if w.JSONRPC == "" {
		w.JSONRPC = JSONRPCVersion
	}
	if m.ID != nil {
		w.ID, _ = m.ID.MarshalJSON()
	}

	switch m.Kind() {
	case KindErrorResponse:
		if w.ID == nil {
			w.ID = jsonNull
		}
		w.Result = nil
	case KindResponse:
		w.Params = nil
	case KindInvalid:
		// A response without result still needs the member to be a valid reply.
		if m.ID != nil {
			w.Result = jsonNull
		}
	default:
	}

	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler with the same rules as DecodeMessage.
func (m *JSONRPCMessage) UnmarshalJSON(data []byte) error {
	msg, err := DecodeMessage(data)
	if err != nil {
		return err
	}
	*m = msg
	return nil
}

// EncodeMessage serializes a message as a single JSON document. The "jsonrpc" member is always
// "2.0" and the id is written with its original JSON kind.
func EncodeMessage(msg JSONRPCMessage) ([]byte, error) {
	bs, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	return bs, nil
}

// DecodeMessage parses one JSON document into a message. A document with a method and an id is
// a request, a method without id is a notification, and a result or error without a method is a
// response. Anything else yields a *DecodeError carrying a parse error or invalid request error.
func DecodeMessage(data []byte) (JSONRPCMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return JSONRPCMessage{}, &DecodeError{Err: JSONRPCError{
			Code:    CodeParseError,
			Message: errMsgParseError,
			Data:    "message must be a JSON object",
		}}
	}

	var msg JSONRPCMessage

	// Recover the id first so every later failure can still be answered.
	if raw, ok := fields["id"]; ok && !bytes.Equal(bytes.TrimSpace(raw), jsonNull) {
		var id RequestID
		if err := id.UnmarshalJSON(raw); err != nil {
			return JSONRPCMessage{}, &DecodeError{Err: JSONRPCError{
				Code:    CodeInvalidRequest,
				Message: errMsgInvalidRequest,
				Data:    err.Error(),
			}}
		}
		msg.ID = &id
	}

	invalid := func(reason string) (JSONRPCMessage, error) {
		return JSONRPCMessage{}, &DecodeError{ID: msg.ID, Err: JSONRPCError{
			Code:    CodeInvalidRequest,
			Message: errMsgInvalidRequest,
			Data:    reason,
		}}
	}

	if raw, ok := fields["jsonrpc"]; !ok || json.Unmarshal(raw, &msg.JSONRPC) != nil || msg.JSONRPC != JSONRPCVersion {
		return invalid(`"jsonrpc" must be "2.0"`)
	}

	if raw, ok := fields["method"]; ok {
		if err := json.Unmarshal(raw, &msg.Method); err != nil || msg.Method == "" {
			return invalid(`"method" must be a non-empty string`)
		}
		if params, ok := fields["params"]; ok && !bytes.Equal(bytes.TrimSpace(params), jsonNull) {
			msg.Params = params
		}
		return msg, nil
	}

	if raw, ok := fields["error"]; ok {
		var rpcErr JSONRPCError
		if err := json.Unmarshal(raw, &rpcErr); err != nil {
			return invalid(fmt.Sprintf(`"error" is malformed: %s`, err))
		}
		msg.Error = &rpcErr
		return msg, nil
	}

	if raw, ok := fields["result"]; ok {
		if msg.ID == nil {
			return invalid("response is missing its id")
		}
		msg.Result = raw
		return msg, nil
	}

	if msg.ID != nil {
		return invalid(`message has an id but no "method", "result" or "error"`)
	}
	return JSONRPCMessage{}, &DecodeError{Err: JSONRPCError{
		Code:    CodeParseError,
		Message: errMsgParseError,
		Data:    "message is not a request, notification or response",
	}}
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode message: %s", e.Err.Error())
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func (k MessageKind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindNotification:
		return "notification"
	case KindResponse:
		return "response"
	case KindErrorResponse:
		return "error response"
	default:
		return "invalid"
	}
}

func newRequest(id RequestID, method string, params json.RawMessage) JSONRPCMessage {
	return JSONRPCMessage{JSONRPC: JSONRPCVersion, ID: &id, Method: method, Params: params}
}

func newNotification(method string, params json.RawMessage) JSONRPCMessage {
	return JSONRPCMessage{JSONRPC: JSONRPCVersion, Method: method, Params: params}
}

func newResponse(id RequestID, result json.RawMessage) JSONRPCMessage {
	return JSONRPCMessage{JSONRPC: JSONRPCVersion, ID: &id, Result: result}
}

func newErrorResponse(id *RequestID, err JSONRPCError) JSONRPCMessage {
	return JSONRPCMessage{JSONRPC: JSONRPCVersion, ID: id, Error: &err}
}
