// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package ping implements XEP-0199: XMPP Ping.
//
// The plugin answers pings from other entities and, while the connection is
// online, pings the server periodically.
// A keepalive that does not get an answer in time produces a TimeoutError that
// is logged and published but never closes the connection.
package ping // import "mellium.im/engine/ping"

import (
	"context"
	"errors"
	"sync"
	"time"

	"mellium.im/engine/conn"
	"mellium.im/engine/event"
	"mellium.im/engine/internal/logging"
	"mellium.im/engine/internal/ns"
	"mellium.im/engine/plugin"
	"mellium.im/engine/stanza"
	"mellium.im/xmpp/jid"
)

// NS is the XML namespace used by XMPP pings. It is provided as a convenience.
const NS = ns.Ping

// Defaults used when no option is provided.
const (
	DefaultInterval = 5 * time.Minute
	DefaultTimeout  = 30 * time.Second
)

// Element returns a ping payload.
func Element() *stanza.Element {
	return stanza.NewElement(NS, "ping")
}

// Option configures a Pinger.
type Option func(*Pinger)

// Interval sets the time between keepalive pings.
// A zero or negative interval disables the keepalive.
func Interval(d time.Duration) Option {
	return func(p *Pinger) {
		p.interval = d
	}
}

// Timeout sets how long to wait for an answer to a ping.
func Timeout(d time.Duration) Option {
	return func(p *Pinger) {
		p.timeout = d
	}
}

// Pinger answers pings and keeps the connection alive.
type Pinger struct {
	c        *conn.Conn
	logger   *logging.Logger
	interval time.Duration
	timeout  time.Duration
	timeouts event.Feed[error]

	mu   sync.Mutex
	ref  conn.HandlerRef
	stop chan struct{}
	done chan struct{}
}

// New returns a ping plugin that sends over c.
func New(c *conn.Conn, logger *logging.Logger, opts ...Option) *Pinger {
	p := &Pinger{
		c:        c,
		logger:   logger.With("ping"),
		interval: DefaultInterval,
		timeout:  DefaultTimeout,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// ID satisfies plugin.Plugin.
func (p *Pinger) ID() plugin.ID {
	return plugin.Ping
}

// Timeouts subscribes to keepalive failures.
func (p *Pinger) Timeouts() (<-chan error, func()) {
	return p.timeouts.Subscribe()
}

// RegisterHandlers answers incoming pings and starts the keepalive.
func (p *Pinger) RegisterHandlers(c *conn.Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ref = c.AddHandler(conn.Matcher{Name: "iq", NS: NS, Types: []string{string(stanza.GetIQ)}}, conn.HandlerFunc(func(e *stanza.Element) bool {
		if err := c.Reply(e).Send(context.Background()); err != nil {
			p.logger.Debug("error answering ping from %s: %v", e.From(), err)
		}
		return true
	}))
	if p.interval > 0 && p.stop == nil {
		p.stop = make(chan struct{})
		p.done = make(chan struct{})
		go p.keepalive(p.stop, p.done)
	}
}

// UnregisterHandlers stops answering pings and stops the keepalive.
func (p *Pinger) UnregisterHandlers(c *conn.Conn) {
	p.mu.Lock()
	c.DeleteHandler(p.ref)
	stop, done := p.stop, p.done
	p.stop, p.done = nil, nil
	p.mu.Unlock()
	if stop != nil {
		close(stop)
		<-done
	}
}

func (p *Pinger) keepalive(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		err := p.Send(context.Background(), jid.JID{})
		var timeout *conn.TimeoutError
		switch {
		case errors.As(err, &timeout):
			p.logger.Warn("keepalive: %v", err)
			p.timeouts.Publish(err)
		case err != nil:
			p.logger.Debug("keepalive: %v", err)
		}
	}
}

// Send pings to, or the server if to is the zero JID, and waits for the
// answer.
// An error response still shows that the entity is reachable and is not
// reported.
// If no answer arrives before the configured timeout a *conn.TimeoutError is
// returned.
func (p *Pinger) Send(ctx context.Context, to jid.JID) error {
	if to.Equal(jid.JID{}) {
		to = p.c.LocalAddr().Domain()
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	_, err := p.c.IQ(stanza.GetIQ, to).Cnode(Element()).SendAwaitingResponse(ctx)
	var se stanza.Error
	switch {
	case err == nil, errors.As(err, &se):
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return &conn.TimeoutError{Op: "ping " + to.String(), After: p.timeout}
	}
	return err
}
