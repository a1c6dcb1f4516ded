package mcp

import (
	"sync"
	"sync/atomic"
)

// pendingRequests tracks the requests this side sent and has not yet seen answered. The send
// path adds entries and the read loop resolves them, so everything is guarded by mu.
type pendingRequests struct {
	nextID atomic.Int64

	mu     sync.Mutex
	calls  map[RequestID]chan JSONRPCMessage
	closed bool
}

func newPendingRequests() *pendingRequests {
	return &pendingRequests{
		calls: make(map[RequestID]chan JSONRPCMessage),
	}
}

// add allocates the next id and a channel that receives the matching response. ok is false once
// the table has been closed.
func (p *pendingRequests) add() (RequestID, <-chan JSONRPCMessage, bool) {
	id := NewIntID(p.nextID.Add(1))
	ch := make(chan JSONRPCMessage, 1)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return RequestID{}, nil, false
	}
	p.calls[id] = ch
	return id, ch, true
}

// resolve delivers a response to its waiter and forgets the entry. It reports false for ids
// that are unknown, already resolved or abandoned.
func (p *pendingRequests) resolve(msg JSONRPCMessage) bool {
	if msg.ID == nil {
		return false
	}

	p.mu.Lock()
	ch, ok := p.calls[*msg.ID]
	if ok {
		delete(p.calls, *msg.ID)
	}
	p.mu.Unlock()

	if !ok {
		return false
	}
	// The channel is buffered and only ever receives once.
	ch <- msg
	return true
}

// remove abandons an entry, typically after the caller gave up waiting.
func (p *pendingRequests) remove(id RequestID) {
	p.mu.Lock()
	delete(p.calls, id)
	p.mu.Unlock()
}

// closeAll closes every waiting channel. Waiters observe the closed channel as ErrSessionClosed.
// Later calls to add fail.
func (p *pendingRequests) closeAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	for id, ch := range p.calls {
		close(ch)
		delete(p.calls, id)
	}
}

func (p *pendingRequests) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.calls)
}
