// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmpptest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mellium.im/engine/conn"
	"mellium.im/engine/stanza"
	"mellium.im/xmpp/jid"
)

// LocalAddr is the address bound by transports created with Connect.
var LocalAddr = jid.MustParse("juliet@example.com/balcony")

// ErrClosed is returned when sending on a transport that is not connected.
var ErrClosed = errors.New("xmpptest: transport closed")

// ResponderFunc is called for every element sent over a Transport.
// It may call deliver any number of times to simulate server traffic.
type ResponderFunc func(e *stanza.Element, deliver func(*stanza.Element))

// Transport is an in-memory conn.Transport.
// Every sent element is recorded and passed to an optional responder.
type Transport struct {
	Local      jid.JID
	ConnectErr error

	respond ResponderFunc

	mu        sync.Mutex
	h         conn.TransportHandler
	connected bool
	sent      []*stanza.Element
	deliverMu sync.Mutex
}

// NewTransport returns a transport that binds local and passes sent elements
// to respond, which may be nil.
func NewTransport(local jid.JID, respond ResponderFunc) *Transport {
	return &Transport{Local: local, respond: respond}
}

// Connect satisfies conn.Transport.
func (t *Transport) Connect(_ context.Context, h conn.TransportHandler) (jid.JID, error) {
	h.HandleStatus(conn.StatusConnecting, nil)
	if t.ConnectErr != nil {
		h.HandleStatus(conn.StatusConnFail, t.ConnectErr)
		return jid.JID{}, t.ConnectErr
	}
	h.HandleStatus(conn.StatusAuthenticating, nil)
	t.mu.Lock()
	t.h = h
	t.connected = true
	t.mu.Unlock()
	h.HandleStatus(conn.StatusConnected, nil)
	return t.Local, nil
}

// Send satisfies conn.Transport.
func (t *Transport) Send(_ context.Context, e *stanza.Element) error {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return ErrClosed
	}
	t.sent = append(t.sent, e.Copy())
	t.mu.Unlock()
	if t.respond != nil {
		t.respond(e.Copy(), t.Deliver)
	}
	return nil
}

// Disconnect satisfies conn.Transport.
func (t *Transport) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
	return nil
}

// Deliver hands e to the connection as if it had been received from the
// server.
func (t *Transport) Deliver(e *stanza.Element) {
	t.mu.Lock()
	h := t.h
	t.mu.Unlock()
	if h == nil {
		return
	}
	t.deliverMu.Lock()
	defer t.deliverMu.Unlock()
	h.HandleElement(e)
}

// DeliverString parses s and delivers the result.
func (t *Transport) DeliverString(s string) error {
	e, err := stanza.Parse(s)
	if err != nil {
		return err
	}
	t.Deliver(e)
	return nil
}

// Drop simulates loss of the underlying stream.
func (t *Transport) Drop(err error) {
	t.mu.Lock()
	h := t.h
	t.connected = false
	t.mu.Unlock()
	if h != nil {
		h.HandleStatus(conn.StatusConnFail, err)
	}
}

// Sent returns a copy of every element sent so far.
func (t *Transport) Sent() []*stanza.Element {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*stanza.Element, len(t.sent))
	copy(out, t.sent)
	return out
}

// SentMatching returns the sent elements selected by m.
func (t *Transport) SentMatching(m conn.Matcher) []*stanza.Element {
	var out []*stanza.Element
	for _, e := range t.Sent() {
		if m.Match(e) {
			out = append(out, e)
		}
	}
	return out
}

// Reset forgets all sent elements.
func (t *Transport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = nil
}

// WaitFor polls the sent elements until f returns true or the timeout
// expires.
func (t *Transport) WaitFor(timeout time.Duration, f func([]*stanza.Element) bool) bool {
	deadline := time.Now().Add(timeout)
	for {
		if f(t.Sent()) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Connect creates a connection over a new Transport bound to LocalAddr and
// connects it, failing the test on error.
// The connection is disconnected when the test ends.
func Connect(tb testing.TB, respond ResponderFunc, opts ...conn.Option) (*conn.Conn, *Transport) {
	tb.Helper()
	t := NewTransport(LocalAddr, respond)
	c := conn.New(t, opts...)
	if err := c.Connect(context.Background()); err != nil {
		tb.Fatalf("error connecting: %v", err)
	}
	tb.Cleanup(func() {
		c.Close()
	})
	return c, t
}

// Sync waits for all delivered elements to be handled, failing the test if it
// takes longer than a second.
func Sync(tb testing.TB, c *conn.Conn) {
	tb.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Sync(ctx); err != nil {
		tb.Fatalf("error waiting for handlers: %v", err)
	}
}

// Reply returns a result for the request req with the provided payload.
// The addresses of the request are swapped.
func Reply(req *stanza.Element, payload ...*stanza.Element) *stanza.Element {
	resp := stanza.NewElement("jabber:client", "iq")
	resp.SetAttr("type", string(stanza.ResultIQ))
	resp.SetAttr("id", req.ID())
	resp.SetAttr("from", req.Attribute("to"))
	resp.SetAttr("to", req.Attribute("from"))
	for _, p := range payload {
		resp.AddChild(p)
	}
	return resp
}

// ErrorReply returns an error response to req.
func ErrorReply(req *stanza.Element, se stanza.Error) *stanza.Element {
	resp := Reply(req)
	resp.SetAttr("type", string(stanza.ErrorIQ))
	resp.AddChild(se.Element())
	return resp
}
