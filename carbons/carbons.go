// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package carbons implements carbon copying messages to all interested clients.
package carbons // import "mellium.im/engine/carbons"

import (
	"context"
	"fmt"
	"sync"

	"mellium.im/engine/conn"
	"mellium.im/engine/disco"
	"mellium.im/engine/forward"
	"mellium.im/engine/internal/logging"
	"mellium.im/engine/internal/ns"
	"mellium.im/engine/plugin"
	"mellium.im/engine/stanza"
)

// Namespaces used by this package, provided as a convenience.
const (
	NS      = ns.Carbons
	NSHints = "urn:xmpp:hints"
)

// Handler receives the messages unwrapped from carbon copies.
// Sent is true for copies of messages sent by another resource of the local
// account.
type Handler interface {
	HandleCarbon(msg *stanza.Element, sent bool)
}

// HandlerFunc is an adapter to use a function as a Handler.
type HandlerFunc func(msg *stanza.Element, sent bool)

// HandleCarbon calls f(msg, sent).
func (f HandlerFunc) HandleCarbon(msg *stanza.Element, sent bool) {
	f(msg, sent)
}

// Enable instructs the server to start carbon copying messages on the given
// connection.
func Enable(ctx context.Context, c *conn.Conn) error {
	_, err := c.IQ(stanza.SetIQ, c.LocalAddr().Bare()).Cnode(stanza.NewElement(NS, "enable")).SendAwaitingResponse(ctx)
	return err
}

// Disable instructs the server to stop carbon copying messages on the given
// connection.
func Disable(ctx context.Context, c *conn.Conn) error {
	_, err := c.IQ(stanza.SetIQ, c.LocalAddr().Bare()).Cnode(stanza.NewElement(NS, "disable")).SendAwaitingResponse(ctx)
	return err
}

// Private marks the message e so that the server does not copy it to other
// resources.
func Private(e *stanza.Element) *stanza.Element {
	e.AddChild(stanza.NewElement(NS, "private"))
	e.AddChild(stanza.NewElement(NSHints, "no-copy"))
	return e
}

// Carbons enables carbons when the server supports them and passes unwrapped
// copies to a Handler.
type Carbons struct {
	c      *conn.Conn
	disco  *disco.Disco
	h      Handler
	logger *logging.Logger

	mu      sync.Mutex
	enabled bool
	ref     conn.HandlerRef
}

// New returns a carbons plugin that looks up server support with d and passes
// copies to h.
func New(c *conn.Conn, d *disco.Disco, h Handler, logger *logging.Logger) *Carbons {
	return &Carbons{
		c:      c,
		disco:  d,
		h:      h,
		logger: logger.With("carbons"),
	}
}

// ID satisfies plugin.Plugin.
func (cb *Carbons) ID() plugin.ID {
	return plugin.Carbons
}

// Enabled reports whether carbons were enabled on the current stream.
func (cb *Carbons) Enabled() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.enabled
}

// BeforeOnline enables carbons if the server advertises support.
func (cb *Carbons) BeforeOnline(ctx context.Context) error {
	info, err := cb.disco.ServerInfo(ctx)
	if err != nil {
		return fmt.Errorf("carbons: error discovering support: %w", err)
	}
	if !info.HasFeature(NS) {
		cb.logger.Debug("server does not support carbons")
		return nil
	}
	if err := Enable(ctx, cb.c); err != nil {
		return fmt.Errorf("carbons: error enabling: %w", err)
	}
	cb.mu.Lock()
	cb.enabled = true
	cb.mu.Unlock()
	return nil
}

// Offline satisfies plugin.Offliner.
func (cb *Carbons) Offline() {
	cb.mu.Lock()
	cb.enabled = false
	cb.mu.Unlock()
}

// RegisterHandlers satisfies plugin.Registerer.
func (cb *Carbons) RegisterHandlers(c *conn.Conn) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.ref = c.AddHandler(conn.Matcher{Name: "message", NS: NS}, conn.HandlerFunc(cb.handleMessage))
}

// UnregisterHandlers satisfies plugin.Registerer.
func (cb *Carbons) UnregisterHandlers(c *conn.Conn) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	c.DeleteHandler(cb.ref)
}

func (cb *Carbons) handleMessage(e *stanza.Element) bool {
	var wrapper *stanza.Element
	var sent bool
	for _, child := range e.Children {
		if child.Name.Space != NS {
			continue
		}
		switch child.Name.Local {
		case "received":
			wrapper = child
		case "sent":
			wrapper, sent = child, true
		}
		if wrapper != nil {
			break
		}
	}
	if wrapper == nil {
		return false
	}

	// Only our own server may send us copies, anything else is an attempt to
	// spoof messages.
	if from := e.From(); !from.Equal(cb.c.LocalAddr().Bare()) {
		cb.logger.Warn("ignoring carbon copy from %s", from)
		return true
	}
	fwd, err := forward.Unwrap(wrapper)
	if err != nil {
		cb.logger.Debug("error unwrapping carbon copy: %v", err)
		return true
	}
	if fwd.Stanza.Name.Local != "message" {
		return true
	}
	if cb.h != nil {
		cb.h.HandleCarbon(fwd.Stanza, sent)
	}
	return true
}
