// Package hubtest provides an in-memory hub.Conn for tests.
package hubtest

import (
	"encoding/json"
	"sync"
)

// Frame decoded outbound frame
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Conn records every frame sent to it
type Conn struct {
	id     string
	mu     sync.Mutex
	frames []Frame
	closed bool
	full   bool
}

// NewConn creates a recording connection
func NewConn(id string) *Conn {
	return &Conn{id: id}
}

func (c *Conn) ID() string { return c.id }

// Send records the frame unless the connection is closed or marked full
func (c *Conn) Send(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.full {
		return false
	}
	var f Frame
	if err := json.Unmarshal(frame, &f); err != nil {
		return false
	}
	c.frames = append(c.frames, f)
	return true
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// SetFull makes Send drop frames, as a saturated socket would
func (c *Conn) SetFull(full bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.full = full
}

// Closed reports whether Close was called
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Frames all recorded frames
func (c *Conn) Frames() []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Frame(nil), c.frames...)
}

// Events recorded event names in order
func (c *Conn) Events() []string {
	frames := c.Frames()
	events := make([]string, len(frames))
	for i, f := range frames {
		events[i] = f.Event
	}
	return events
}

// Last most recent frame with the given event name
func (c *Conn) Last(event string) (Frame, bool) {
	frames := c.Frames()
	for i := len(frames) - 1; i >= 0; i-- {
		if frames[i].Event == event {
			return frames[i], true
		}
	}
	return Frame{}, false
}

// Reset drops recorded frames
func (c *Conn) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}
