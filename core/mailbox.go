package core

import (
	"context"
	"sync"
)

// Reply is the outcome of a request/response dispatch.
type Reply struct {
	Value any
	Err   error
}

// envelope carries one message through a mailbox. reply is nil for tells.
type envelope struct {
	ctx   context.Context
	msg   Message
	reply chan Reply
}

func (e *envelope) complete(v any, err error) {
	if e.reply == nil {
		return
	}
	select {
	case e.reply <- Reply{Value: v, Err: err}:
	default:
	}
}

// mailbox is an unbounded FIFO queue of envelopes.
type mailbox struct {
	mu    sync.Mutex
	queue []*envelope
}

func (m *mailbox) push(env *envelope) {
	m.mu.Lock()
	m.queue = append(m.queue, env)
	m.mu.Unlock()
}

func (m *mailbox) pop() (*envelope, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return nil, false
	}
	env := m.queue[0]
	m.queue[0] = nil
	m.queue = m.queue[1:]
	return env, true
}

func (m *mailbox) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// takeAll empties the mailbox and returns what it held.
func (m *mailbox) takeAll() []*envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.queue
	m.queue = nil
	return out
}
