// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package conn

import (
	"mellium.im/engine/stanza"
)

// Handler handles an incoming element.
// It reports whether it handled the element; if it did not, the next matching
// handler is tried.
//
// Handlers run on the dispatch goroutine.
// They may wait on requests, but doing so delays delivery of every later
// unsolicited element.
type Handler interface {
	HandleElement(e *stanza.Element) bool
}

// The HandlerFunc type is an adapter to allow the use of ordinary functions as
// handlers. If f is a function with the appropriate signature,
// HandlerFunc(f) is a Handler that calls f.
type HandlerFunc func(e *stanza.Element) bool

// HandleElement calls f(e).
func (f HandlerFunc) HandleElement(e *stanza.Element) bool {
	return f(e)
}

// HandlerRef identifies a registered handler so that it can be deleted.
type HandlerRef uint64

type handlerEntry struct {
	ref HandlerRef
	m   Matcher
	h   Handler
}

// AddHandler registers h for every incoming element selected by m.
// Handlers are tried in registration order.
func (c *Conn) AddHandler(m Matcher, h Handler) HandlerRef {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextRef++
	ref := c.nextRef
	c.handlers = append(c.handlers, handlerEntry{ref: ref, m: m, h: h})
	return ref
}

// DeleteHandler removes a handler.
// Deleting a handler that does not exist is a no-op.
func (c *Conn) DeleteHandler(ref HandlerRef) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, entry := range c.handlers {
		if entry.ref == ref {
			c.handlers = append(c.handlers[:i:i], c.handlers[i+1:]...)
			return
		}
	}
}

// Handlers returns the number of registered handlers.
func (c *Conn) Handlers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers)
}

func (c *Conn) dispatch(e *stanza.Element) {
	c.mu.Lock()
	handlers := c.handlers
	c.mu.Unlock()

	for _, entry := range handlers {
		if !entry.m.Match(e) {
			continue
		}
		if c.call(entry, e) {
			return
		}
	}

	c.logger.Warn("unknown element: %s", e)
	if stanza.IsIQ(e, stanza.GetIQ, stanza.SetIQ) {
		err := stanza.ErrorReply(e, stanza.Error{
			Type:      stanza.Cancel,
			Condition: stanza.ServiceUnavailable,
		}).WithSender(c).Send(c.ctx())
		if err != nil {
			c.logger.Debug("error replying to unhandled iq: %v", err)
		}
	}
}

func (c *Conn) call(entry handlerEntry, e *stanza.Element) (handled bool) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("handler %d panicked on %s: %v", entry.ref, e, r)
			handled = false
		}
	}()
	return entry.h.HandleElement(e)
}
