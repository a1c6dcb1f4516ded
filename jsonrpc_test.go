package mcp_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/contextwire/go-mcp"
	"github.com/google/go-cmp/cmp"
)

func TestDecodeMessageKinds(t *testing.T) {
	intID := mcp.NewIntID(7)
	strID := mcp.NewStringID("abc")

	tests := []struct {
		name  string
		frame string
		kind  mcp.MessageKind
		id    *mcp.RequestID
	}{
		{
			name:  "request with numeric id",
			frame: `{"jsonrpc":"2.0","id":7,"method":"tools/list","params":{}}`,
			kind:  mcp.KindRequest,
			id:    &intID,
		},
		{
			name:  "request with string id",
			frame: `{"jsonrpc":"2.0","id":"abc","method":"ping"}`,
			kind:  mcp.KindRequest,
			id:    &strID,
		},
		{
			name:  "notification",
			frame: `{"jsonrpc":"2.0","method":"notifications/initialized"}`,
			kind:  mcp.KindNotification,
		},
		{
			name:  "notification with null id",
			frame: `{"jsonrpc":"2.0","id":null,"method":"notifications/initialized"}`,
			kind:  mcp.KindNotification,
		},
		{
			name:  "response",
			frame: `{"jsonrpc":"2.0","id":7,"result":{"ok":true}}`,
			kind:  mcp.KindResponse,
			id:    &intID,
		},
		{
			name:  "error response",
			frame: `{"jsonrpc":"2.0","id":"abc","error":{"code":-32601,"message":"Method not found"}}`,
			kind:  mcp.KindErrorResponse,
			id:    &strID,
		},
		{
			name:  "error response without id",
			frame: `{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"Parse error"}}`,
			kind:  mcp.KindErrorResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := mcp.DecodeMessage([]byte(tt.frame))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := msg.Kind(); got != tt.kind {
				t.Errorf("kind = %s, want %s", got, tt.kind)
			}
			if diff := cmp.Diff(tt.id, msg.ID, cmp.Comparer(func(a, b mcp.RequestID) bool { return a == b })); diff != "" {
				t.Errorf("id mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeMessageErrors(t *testing.T) {
	id := mcp.NewIntID(3)

	tests := []struct {
		name     string
		frame    string
		wantCode int
		wantID   *mcp.RequestID
	}{
		{name: "not json", frame: `{"jsonrpc":`, wantCode: mcp.CodeParseError},
		{name: "not an object", frame: `[1,2,3]`, wantCode: mcp.CodeParseError},
		{name: "no method, result or error", frame: `{"jsonrpc":"2.0"}`, wantCode: mcp.CodeParseError},
		{name: "wrong version keeps id", frame: `{"jsonrpc":"1.0","id":3,"method":"ping"}`, wantCode: mcp.CodeInvalidRequest, wantID: &id},
		{name: "missing version", frame: `{"id":3,"method":"ping"}`, wantCode: mcp.CodeInvalidRequest, wantID: &id},
		{name: "id without anything else", frame: `{"jsonrpc":"2.0","id":3}`, wantCode: mcp.CodeInvalidRequest, wantID: &id},
		{name: "object id", frame: `{"jsonrpc":"2.0","id":{},"method":"ping"}`, wantCode: mcp.CodeInvalidRequest},
		{name: "result without id", frame: `{"jsonrpc":"2.0","result":{}}`, wantCode: mcp.CodeInvalidRequest},
		{name: "empty method", frame: `{"jsonrpc":"2.0","id":3,"method":""}`, wantCode: mcp.CodeInvalidRequest, wantID: &id},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := mcp.DecodeMessage([]byte(tt.frame))
			var decodeErr *mcp.DecodeError
			if !errors.As(err, &decodeErr) {
				t.Fatalf("expected *DecodeError, got %v", err)
			}
			if decodeErr.Err.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", decodeErr.Err.Code, tt.wantCode)
			}
			if (tt.wantID == nil) != (decodeErr.ID == nil) || (tt.wantID != nil && *tt.wantID != *decodeErr.ID) {
				t.Errorf("id = %v, want %v", decodeErr.ID, tt.wantID)
			}

			var jsonErr mcp.JSONRPCError
			if !errors.As(err, &jsonErr) {
				t.Error("DecodeError must unwrap to JSONRPCError")
			}
		})
	}
}

func TestEncodeMessageRoundTrip(t *testing.T) {
	tests := []string{
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"echo"}}`,
		`{"jsonrpc":"2.0","id":"x-1","method":"ping"}`,
		`{"jsonrpc":"2.0","method":"notifications/progress","params":{"progressToken":"t","progress":1}}`,
		`{"jsonrpc":"2.0","id":"x-1","result":{}}`,
		`{"jsonrpc":"2.0","id":42,"error":{"code":-32001,"message":"Tool not found","data":"nope"}}`,
	}

	for _, frame := range tests {
		msg, err := mcp.DecodeMessage([]byte(frame))
		if err != nil {
			t.Fatalf("decode %s: %v", frame, err)
		}
		bs, err := mcp.EncodeMessage(msg)
		if err != nil {
			t.Fatalf("encode %s: %v", frame, err)
		}

		var want, got any
		_ = json.Unmarshal([]byte(frame), &want)
		_ = json.Unmarshal(bs, &got)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("round trip of %s mismatch (-want +got):\n%s", frame, diff)
		}
	}
}

func TestEncodeErrorResponseWithoutID(t *testing.T) {
	bs, err := mcp.EncodeMessage(mcp.JSONRPCMessage{
		Error: &mcp.JSONRPCError{Code: mcp.CodeParseError, Message: "Parse error"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"Parse error"}}`
	if string(bs) != want {
		t.Errorf("got %s, want %s", bs, want)
	}
}

func TestRequestIDKeepsKind(t *testing.T) {
	var num, str mcp.RequestID
	if err := json.Unmarshal([]byte(`1`), &num); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(`"1"`), &str); err != nil {
		t.Fatal(err)
	}

	if num == str {
		t.Error("numeric 1 and string \"1\" must differ")
	}
	if num.IsString() || !str.IsString() {
		t.Error("IsString reports the wrong kind")
	}
	if num.String() != "1" || str.String() != "1" {
		t.Errorf("String() = %q and %q, want 1 for both", num.String(), str.String())
	}

	bs, _ := json.Marshal(str)
	if string(bs) != `"1"` {
		t.Errorf("string id marshals to %s", bs)
	}
	bs, _ = json.Marshal(num)
	if string(bs) != `1` {
		t.Errorf("numeric id marshals to %s", bs)
	}

	// Equivalent string encodings compare equal once decoded.
	var escaped mcp.RequestID
	if err := json.Unmarshal([]byte(`"\u0061"`), &escaped); err != nil {
		t.Fatal(err)
	}
	if escaped != mcp.NewStringID("a") {
		t.Error("escaped string id should equal its canonical form")
	}

	if !(mcp.RequestID{}).IsZero() {
		t.Error("zero RequestID must report IsZero")
	}
}
