// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package ping_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"mellium.im/engine/conn"
	"mellium.im/engine/internal/xmpptest"
	"mellium.im/engine/ping"
	"mellium.im/engine/stanza"
	"mellium.im/xmpp/jid"
)

func pong(e *stanza.Element, deliver func(*stanza.Element)) {
	if stanza.IsIQ(e, stanza.GetIQ) && e.Child(ping.NS, "ping") != nil {
		deliver(xmpptest.Reply(e))
	}
}

func TestAnswer(t *testing.T) {
	c, tr := xmpptest.Connect(t, nil)
	p := ping.New(c, nil, ping.Interval(0))
	p.RegisterHandlers(c)

	err := tr.DeliverString(`<iq xmlns="jabber:client" type="get" id="c2s1" from="example.com" to="juliet@example.com/balcony"><ping xmlns="urn:xmpp:ping"/></iq>`)
	if err != nil {
		t.Fatalf("error delivering: %v", err)
	}
	xmpptest.Sync(t, c)
	sent := tr.SentMatching(conn.Matcher{Name: "iq", ID: "c2s1"})
	if len(sent) != 1 {
		t.Fatalf("expected one answer, got %d", len(sent))
	}
	if typ := sent[0].Type(); typ != "result" {
		t.Errorf("wrong answer type: want=result, got=%s", typ)
	}
	if to := sent[0].Attribute("to"); to != "example.com" {
		t.Errorf("wrong answer recipient: want=example.com, got=%s", to)
	}

	p.UnregisterHandlers(c)
	tr.Reset()
	err = tr.DeliverString(`<iq xmlns="jabber:client" type="get" id="c2s2" from="example.com"><ping xmlns="urn:xmpp:ping"/></iq>`)
	if err != nil {
		t.Fatalf("error delivering: %v", err)
	}
	xmpptest.Sync(t, c)
	for _, e := range tr.Sent() {
		if e.ID() == "c2s2" && e.Type() == "result" {
			t.Errorf("unregistered plugin must not answer pings")
		}
	}
}

func TestSend(t *testing.T) {
	c, tr := xmpptest.Connect(t, pong)
	p := ping.New(c, nil, ping.Interval(0))
	if err := p.Send(context.Background(), jid.JID{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sent := tr.SentMatching(conn.Matcher{Name: "iq", NS: ping.NS})
	if len(sent) != 1 || sent[0].Attribute("to") != "example.com" {
		t.Errorf("expected a ping to the server, got %v", sent)
	}
}

func TestErrorIsAlive(t *testing.T) {
	c, _ := xmpptest.Connect(t, func(e *stanza.Element, deliver func(*stanza.Element)) {
		deliver(xmpptest.ErrorReply(e, stanza.Error{Type: stanza.Cancel, Condition: stanza.ServiceUnavailable}))
	})
	p := ping.New(c, nil, ping.Interval(0))
	if err := p.Send(context.Background(), jid.MustParse("romeo@example.net/orchard")); err != nil {
		t.Errorf("error responses must count as an answer, got %v", err)
	}
}

func TestTimeout(t *testing.T) {
	c, _ := xmpptest.Connect(t, nil)
	p := ping.New(c, nil, ping.Interval(0), ping.Timeout(10*time.Millisecond))
	err := p.Send(context.Background(), jid.JID{})
	var timeout *conn.TimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if timeout.After != 10*time.Millisecond {
		t.Errorf("wrong timeout: want=%v, got=%v", 10*time.Millisecond, timeout.After)
	}
	if c.State() != conn.Online {
		t.Errorf("a ping timeout must not drop the connection, state is %s", c.State())
	}
}

func TestKeepalive(t *testing.T) {
	c, tr := xmpptest.Connect(t, nil)
	p := ping.New(c, nil, ping.Interval(5*time.Millisecond), ping.Timeout(5*time.Millisecond))
	timeouts, cancel := p.Timeouts()
	defer cancel()
	p.RegisterHandlers(c)
	defer p.UnregisterHandlers(c)

	select {
	case err := <-timeouts:
		var timeout *conn.TimeoutError
		if !errors.As(err, &timeout) {
			t.Errorf("wrong error type: %T", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for keepalive failure")
	}
	if c.State() != conn.Online {
		t.Errorf("keepalive failures must not drop the connection, state is %s", c.State())
	}
	if len(tr.SentMatching(conn.Matcher{Name: "iq", NS: ping.NS})) == 0 {
		t.Errorf("expected keepalive pings to be sent")
	}
}
