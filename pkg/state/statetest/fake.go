// Package statetest provides a fake state.Transport for tests.
package statetest

import (
	"sync"

	"github.com/google/uuid"

	"github.com/25kamalesh/YapOps/pkg/state"
)

// FakeConn records every frame pushed to it. Set FailSends to simulate a
// stalled peer whose buffer never drains.
type FakeConn struct {
	id uuid.UUID

	mu         sync.Mutex
	frames     [][]byte
	closed     bool
	closeCause error

	FailSends bool
	// OnSend, when set, observes successful sends; used to assert
	// cross-connection delivery order.
	OnSend func(c *FakeConn)
}

func NewFakeConn() *FakeConn {
	return &FakeConn{id: uuid.New()}
}

var _ state.Transport = (*FakeConn)(nil)

func (c *FakeConn) ID() uuid.UUID { return c.id }

func (c *FakeConn) TrySend(message []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.FailSends {
		return false
	}
	frame := make([]byte, len(message))
	copy(frame, message)
	c.frames = append(c.frames, frame)
	if c.OnSend != nil {
		c.OnSend(c)
	}
	return true
}

func (c *FakeConn) Close(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.closeCause = err
}

func (c *FakeConn) Frames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.frames))
	copy(out, c.frames)
	return out
}

func (c *FakeConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *FakeConn) CloseCause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCause
}
