package mcp

import (
	"encoding/json"
	"testing"
)

func TestPendingRequestsOutOfOrder(t *testing.T) {
	p := newPendingRequests()

	id1, ch1, ok := p.add()
	if !ok {
		t.Fatal("add failed")
	}
	id2, ch2, ok := p.add()
	if !ok {
		t.Fatal("add failed")
	}
	if id1 == id2 {
		t.Fatalf("ids must be unique, got %s twice", id1)
	}

	// Answer the second request first.
	if !p.resolve(newResponse(id2, json.RawMessage(`"second"`))) {
		t.Fatal("resolve of second request failed")
	}
	if !p.resolve(newResponse(id1, json.RawMessage(`"first"`))) {
		t.Fatal("resolve of first request failed")
	}

	if got := string((<-ch1).Result); got != `"first"` {
		t.Errorf("first waiter got %s", got)
	}
	if got := string((<-ch2).Result); got != `"second"` {
		t.Errorf("second waiter got %s", got)
	}
	if p.len() != 0 {
		t.Errorf("expected empty table, got %d entries", p.len())
	}
}

func TestPendingRequestsResolveUnknown(t *testing.T) {
	p := newPendingRequests()

	id, _, _ := p.add()
	if p.resolve(newResponse(NewIntID(999), json.RawMessage(`{}`))) {
		t.Error("expected unknown id to be rejected")
	}
	if !p.resolve(newResponse(id, json.RawMessage(`{}`))) {
		t.Error("expected known id to resolve")
	}
	if p.resolve(newResponse(id, json.RawMessage(`{}`))) {
		t.Error("expected a second response for the same id to be rejected")
	}
	if p.resolve(newErrorResponse(nil, JSONRPCError{Code: CodeInternalError})) {
		t.Error("expected response without id to be rejected")
	}
}

func TestPendingRequestsRemove(t *testing.T) {
	p := newPendingRequests()

	id, _, _ := p.add()
	p.remove(id)
	if p.len() != 0 {
		t.Errorf("expected empty table after remove, got %d entries", p.len())
	}
	if p.resolve(newResponse(id, json.RawMessage(`{}`))) {
		t.Error("expected late response to an abandoned request to be rejected")
	}
}

func TestPendingRequestsCloseAll(t *testing.T) {
	p := newPendingRequests()

	_, ch1, _ := p.add()
	_, ch2, _ := p.add()
	p.closeAll()

	for i, ch := range []<-chan JSONRPCMessage{ch1, ch2} {
		if _, ok := <-ch; ok {
			t.Errorf("waiter %d: expected closed channel", i)
		}
	}
	if _, _, ok := p.add(); ok {
		t.Error("expected add to fail after closeAll")
	}

	// Closing twice is harmless.
	p.closeAll()
}

func TestPendingRequestsStringIDs(t *testing.T) {
	p := newPendingRequests()
	p.calls[NewStringID("abc")] = make(chan JSONRPCMessage, 1)

	var id RequestID
	if err := json.Unmarshal([]byte(`"abc"`), &id); err != nil {
		t.Fatalf("unmarshal id: %v", err)
	}
	if !p.resolve(newResponse(id, json.RawMessage(`{}`))) {
		t.Error("expected decoded string id to match")
	}

	p.calls[NewIntID(7)] = make(chan JSONRPCMessage, 1)
	if p.resolve(newResponse(NewStringID("7"), json.RawMessage(`{}`))) {
		t.Error("string id \"7\" must not match numeric id 7")
	}
}
