package mcp

import (
	"errors"
	"testing"
)

func TestSessionStateAdvance(t *testing.T) {
	var s sessionState

	if got := s.load(); got != StateUninitialized {
		t.Fatalf("zero state = %s, want uninitialized", got)
	}
	if !s.advance(StateInitializing) {
		t.Error("expected advance to initializing")
	}
	if s.advance(StateUninitialized) {
		t.Error("state must not move backwards")
	}
	if s.transition(StateUninitialized, StateInitialized) {
		t.Error("transition must require the exact from state")
	}
	if !s.transition(StateInitializing, StateInitialized) {
		t.Error("expected transition to initialized")
	}

	s.close()
	if s.advance(StateInitialized) {
		t.Error("state must not leave closed")
	}
	if got := s.load(); got != StateClosed {
		t.Errorf("state = %s, want closed", got)
	}
}

func TestNegotiateProtocolVersion(t *testing.T) {
	tests := []struct {
		requested string
		want      string
	}{
		{requested: "2024-11-05", want: "2024-11-05"},
		{requested: LatestProtocolVersion, want: LatestProtocolVersion},
		{requested: "1999-01-01", want: LatestProtocolVersion},
		{requested: "", want: LatestProtocolVersion},
	}

	for _, tt := range tests {
		if got := negotiateProtocolVersion(tt.requested); got != tt.want {
			t.Errorf("negotiateProtocolVersion(%q) = %q, want %q", tt.requested, got, tt.want)
		}
	}

	versions := SupportedProtocolVersions()
	versions[0] = "mutated"
	if !isSupportedProtocolVersion(LatestProtocolVersion) {
		t.Error("SupportedProtocolVersions must return a copy")
	}
}

func TestCheckServerRequest(t *testing.T) {
	tests := []struct {
		name     string
		state    SessionState
		method   string
		wantCode int
	}{
		{name: "ping before initialize", state: StateUninitialized, method: MethodPing},
		{name: "initialize", state: StateUninitialized, method: MethodInitialize},
		{name: "initialize while initializing", state: StateInitializing, method: MethodInitialize},
		{name: "initialize twice", state: StateInitialized, method: MethodInitialize, wantCode: CodeInvalidRequest},
		{name: "tools before initialize", state: StateUninitialized, method: MethodToolsList, wantCode: CodeNotInitialized},
		{name: "tools before initialized notification", state: StateInitializing, method: MethodToolsCall, wantCode: CodeNotInitialized},
		{name: "tools after initialize", state: StateInitialized, method: MethodToolsList},
		{name: "unknown method after initialize", state: StateInitialized, method: "foo/bar"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkServerRequest(tt.state, tt.method)
			if tt.wantCode == 0 {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			var jsonErr JSONRPCError
			if !errors.As(err, &jsonErr) {
				t.Fatalf("expected JSONRPCError, got %v", err)
			}
			if jsonErr.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", jsonErr.Code, tt.wantCode)
			}
		})
	}
}
