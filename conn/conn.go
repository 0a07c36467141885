// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package conn

import (
	"context"
	"sync"

	"mellium.im/engine/event"
	"mellium.im/engine/internal/attr"
	"mellium.im/engine/internal/logging"
	"mellium.im/engine/stanza"
	"mellium.im/xmpp/jid"
)

var jidZero jid.JID

// Transport carries elements to and from the server.
//
// Connect must establish and authenticate the stream and return the bound
// address.
// Afterwards the transport reports received elements and lifecycle changes to
// h, one at a time and in the order they happened.
// Send may be called from multiple goroutines; the transport serializes
// writes.
type Transport interface {
	Connect(ctx context.Context, h TransportHandler) (jid.JID, error)
	Send(ctx context.Context, e *stanza.Element) error
	Disconnect() error
}

// TransportHandler receives events from a Transport.
type TransportHandler interface {
	HandleElement(e *stanza.Element)
	HandleStatus(s Status, err error)
}

type response struct {
	e   *stanza.Element
	err error
}

type pendingReq struct {
	to jid.JID
	ch chan response
}

type queued struct {
	e    *stanza.Element
	done chan struct{}
}

// Conn is a connection to a server.
type Conn struct {
	t      Transport
	opts   options
	logger *logging.Logger
	ids    *attr.IDGen
	states event.Feed[StateChange]

	mu       sync.Mutex
	state    State
	local    jid.JID
	pending  map[string]pendingReq
	handlers []handlerEntry
	nextRef  HandlerRef
	queue    *event.Queue[queued]
	life     context.Context
	cancel   context.CancelFunc
}

// New creates a connection that will use t once Connect is called.
func New(t Transport, opts ...Option) *Conn {
	o := getOpts(opts...)
	return &Conn{
		t:       t,
		opts:    o,
		logger:  o.logger,
		ids:     attr.NewIDGen(),
		pending: make(map[string]pendingReq),
	}
}

// State returns the current connection state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// States subscribes to state changes.
func (c *Conn) States() (<-chan StateChange, func()) {
	return c.states.Subscribe()
}

// LocalAddr returns the address bound by the transport.
// Before the first successful connect it is the zero JID.
func (c *Conn) LocalAddr() jid.JID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.local
}

// Logger returns the logger used by the connection.
func (c *Conn) Logger() *logging.Logger {
	return c.logger
}

// Pending returns the number of requests waiting on a response.
func (c *Conn) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Conn) ctx() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.life == nil {
		return context.Background()
	}
	return c.life
}

// Connect opens the transport, runs the BeforeOnline hook, sends the initial
// presence, and moves the connection to Online.
// Elements other than responses that arrive before the BeforeOnline hook
// returns are handled after it.
func (c *Conn) Connect(ctx context.Context) error {
	return c.connect(ctx, Connecting)
}

// Reconnect drops the current stream, if any, and connects again.
// Requests that were outstanding on the old stream fail with
// ErrConnectionLost and are not retried.
func (c *Conn) Reconnect(ctx context.Context) error {
	if c.State() != Disconnected {
		err := c.t.Disconnect()
		if err != nil {
			c.logger.Debug("error disconnecting before reconnect: %v", err)
		}
		c.drop(nil)
	}
	return c.connect(ctx, Reconnecting)
}

func (c *Conn) connect(ctx context.Context, st State) error {
	c.mu.Lock()
	if c.state != Disconnected {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	q := event.NewQueue[queued]()
	c.queue = q
	c.life, c.cancel = context.WithCancel(context.Background())
	c.mu.Unlock()

	c.setState(st, nil)
	local, err := c.t.Connect(ctx, transportHandler{c: c})
	if err != nil {
		c.drop(err)
		return err
	}
	c.mu.Lock()
	c.local = local
	c.mu.Unlock()
	c.logger.Info("connected as %s", local)

	if c.opts.beforeOnline != nil {
		c.opts.beforeOnline(ctx)
	}
	// Responses are resolved as they arrive, but everything else waits in the
	// queue until the handlers are registered.
	go c.run(q)
	if c.State() != st {
		return ErrConnectionLost
	}

	err = c.Send(ctx, c.opts.initialPresence())
	if err != nil {
		c.drop(err)
		return err
	}
	c.setState(Online, nil)
	return nil
}

// Disconnect closes the transport.
// Outstanding requests fail with ErrConnectionLost.
func (c *Conn) Disconnect() error {
	if c.State() == Disconnected {
		return nil
	}
	err := c.t.Disconnect()
	c.drop(nil)
	return err
}

// drop tears down the state associated with the current stream.
func (c *Conn) drop(cause error) {
	c.mu.Lock()
	if c.state == Disconnected {
		c.mu.Unlock()
		return
	}
	pending := c.pending
	c.pending = make(map[string]pendingReq)
	q := c.queue
	c.queue = nil
	cancel := c.cancel
	c.mu.Unlock()

	err := lost(cause)
	for _, p := range pending {
		p.ch <- response{err: err}
	}
	if q != nil {
		q.Close()
	}
	if cancel != nil {
		cancel()
	}
	if cause != nil {
		c.logger.Warn("connection lost: %v", cause)
	}
	c.setState(Disconnected, cause)
}

func (c *Conn) setState(s State, cause error) {
	c.mu.Lock()
	old := c.state
	c.state = s
	c.mu.Unlock()
	if old == s {
		return
	}
	change := StateChange{Old: old, New: s, Err: cause}
	for _, hook := range c.opts.stateHooks {
		hook(change)
	}
	c.states.Publish(change)
}

// Close disconnects and ends all state subscriptions.
func (c *Conn) Close() error {
	err := c.Disconnect()
	c.states.Close()
	return err
}

func (c *Conn) run(q *event.Queue[queued]) {
	for {
		item, ok := q.Pop()
		if !ok {
			return
		}
		if item.done != nil {
			close(item.done)
			continue
		}
		c.dispatch(item.e)
	}
}

// Sync blocks until every element received before the call has been handed to
// the handlers.
func (c *Conn) Sync(ctx context.Context) error {
	c.mu.Lock()
	q := c.queue
	c.mu.Unlock()
	if q == nil {
		return nil
	}
	done := make(chan struct{})
	if !q.Push(queued{done: done}) {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send transmits e without waiting for a response.
func (c *Conn) Send(ctx context.Context, e *stanza.Element) error {
	if c.State() == Disconnected {
		return ErrNotConnected
	}
	if c.logger.Enabled(logging.LevelDebug) {
		c.logger.Debug("SEND %s", e)
	}
	return c.t.Send(ctx, e)
}

// SendAwaitingResponse transmits a get or set IQ and blocks until the response
// arrives, the context is canceled, or the connection is lost.
//
// A fresh id is assigned unless e already carries one that is not in use, and
// the from address is set to the local address.
// If the response is an error, it is returned along with a stanza.Error.
func (c *Conn) SendAwaitingResponse(ctx context.Context, e *stanza.Element) (*stanza.Element, error) {
	if !stanza.IsIQ(e, stanza.GetIQ, stanza.SetIQ) {
		return nil, &ConfigurationError{Op: "send request", Err: errNotRequest}
	}
	ch := make(chan response, 1)

	c.mu.Lock()
	if c.state == Disconnected {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	id := e.ID()
	if _, inUse := c.pending[id]; id == "" || inUse {
		id = c.ids.Next()
		e.SetAttr("id", id)
	}
	if e.Attribute("from") == "" && !c.local.Equal(jidZero) {
		e.SetAttr("from", c.local.String())
	}
	c.pending[id] = pendingReq{to: e.To(), ch: ch}
	c.mu.Unlock()

	err := c.Send(ctx, e)
	if err != nil {
		c.forget(id, ch)
		return nil, err
	}

	select {
	case resp := <-ch:
		if resp.err != nil {
			return nil, resp.err
		}
		if se, ok := stanza.UnmarshalError(resp.e); ok {
			return resp.e, se
		}
		return resp.e, nil
	case <-ctx.Done():
		c.forget(id, ch)
		return nil, ctx.Err()
	}
}

func (c *Conn) forget(id string, ch chan response) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.pending[id]; ok && p.ch == ch {
		delete(c.pending, id)
	}
}

// resolve delivers e to the request waiting on its id and reports whether
// there was one.
func (c *Conn) resolve(e *stanza.Element) bool {
	id := e.ID()
	if id == "" {
		return false
	}
	c.mu.Lock()
	p, ok := c.pending[id]
	if !ok || !fromMatches(p.to, c.local, e.From()) {
		c.mu.Unlock()
		return false
	}
	delete(c.pending, id)
	c.mu.Unlock()
	p.ch <- response{e: e}
	return true
}

// fromMatches reports whether a response from "from" may answer a request that
// was sent to "to".
func fromMatches(to, local, from jid.JID) bool {
	switch {
	case from.Equal(to):
		return true
	case from.Equal(jidZero):
		return to.Equal(jidZero) || to.Bare().Equal(local.Bare()) || to.Equal(local.Domain())
	case to.Equal(jidZero):
		return from.Equal(local.Bare()) || from.Equal(local.Domain()) || from.Equal(local)
	}
	return false
}

// IQ returns a builder for an IQ that will be sent over c.
func (c *Conn) IQ(typ stanza.IQType, to jid.JID) *stanza.Builder {
	return stanza.IQ(typ, to).WithSender(c)
}

// Message returns a builder for a message that will be sent over c.
func (c *Conn) Message(typ stanza.MessageType, to jid.JID) *stanza.Builder {
	return stanza.Message(typ, to).WithSender(c)
}

// Presence returns a builder for a presence that will be sent over c.
func (c *Conn) Presence(typ stanza.PresenceType, to jid.JID) *stanza.Builder {
	return stanza.Presence(typ, to).WithSender(c)
}

// Reply returns a builder for an empty result to req that will be sent over
// c.
func (c *Conn) Reply(req *stanza.Element) *stanza.Builder {
	return stanza.Result(req).WithSender(c)
}

type transportHandler struct {
	c *Conn
}

func (h transportHandler) HandleElement(e *stanza.Element) {
	c := h.c
	if c.logger.Enabled(logging.LevelDebug) {
		c.logger.Debug("RECV %s", e)
	}
	if stanza.IsIQ(e, stanza.ResultIQ, stanza.ErrorIQ) && c.resolve(e) {
		return
	}
	c.mu.Lock()
	q := c.queue
	c.mu.Unlock()
	if q == nil || !q.Push(queued{e: e}) {
		c.logger.Debug("dropping element received while disconnected: %s", e)
	}
}

func (h transportHandler) HandleStatus(s Status, err error) {
	h.c.logger.Debug("transport status %s", s)
	if s.terminal() {
		if err == nil && s != StatusDisconnected {
			err = statusError(s)
		}
		h.c.drop(err)
	}
}
