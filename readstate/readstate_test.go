// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package readstate_test

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"mellium.im/engine/conn"
	"mellium.im/engine/form"
	"mellium.im/engine/internal/xmpptest"
	"mellium.im/engine/message"
	"mellium.im/engine/pubsub"
	"mellium.im/engine/readstate"
	"mellium.im/engine/stanza"
	"mellium.im/xmpp/jid"
)

var (
	romeo   = jid.MustParse("romeo@example.net")
	account = xmpptest.LocalAddr.Bare()
)

const item = `<item xmlns="http://jabber.org/protocol/pubsub" id="romeo@example.net"><displayed xmlns="urn:xmpp:mds:displayed:0"><stanza-id xmlns="urn:xmpp:sid:0" id="s2" by="juliet@example.com"></stanza-id></displayed></item>`

func TestItem(t *testing.T) {
	d := readstate.Displayed{Conversation: jid.MustParse("romeo@example.net/orchard"), StanzaID: "s2", By: account}
	if got := d.Item().Element().String(); got != item {
		t.Errorf("wrong item:\nwant=%s,\n got=%s", item, got)
	}
	parsed, ok := readstate.ParseDisplayed(d.Item())
	if !ok {
		t.Fatalf("could not parse item")
	}
	if !parsed.Conversation.Equal(romeo) || parsed.StanzaID != "s2" || !parsed.By.Equal(account) {
		t.Errorf("wrong round trip: %+v", parsed)
	}
}

func TestParseDisplayed(t *testing.T) {
	for i, tc := range []struct {
		in string
		ok bool
	}{
		0: {in: item, ok: true},
		1: {in: `<item xmlns="http://jabber.org/protocol/pubsub" id="romeo@example.net"></item>`},
		2: {in: `<item xmlns="http://jabber.org/protocol/pubsub" id="romeo@example.net"><displayed xmlns="urn:xmpp:other"><stanza-id xmlns="urn:xmpp:sid:0" id="s2" by="juliet@example.com"/></displayed></item>`},
		3: {in: `<item xmlns="http://jabber.org/protocol/pubsub" id="romeo@example.net"><displayed xmlns="urn:xmpp:mds:displayed:0"></displayed></item>`},
		4: {in: `<item xmlns="http://jabber.org/protocol/pubsub" id="@@"><displayed xmlns="urn:xmpp:mds:displayed:0"><stanza-id xmlns="urn:xmpp:sid:0" id="s2" by="juliet@example.com"/></displayed></item>`},
	} {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			e, err := stanza.Parse(tc.in)
			if err != nil {
				t.Fatalf("error parsing: %v", err)
			}
			_, ok := readstate.ParseDisplayed(pubsub.ParseItem(e))
			if ok != tc.ok {
				t.Errorf("wrong result: want=%t, got=%t", tc.ok, ok)
			}
		})
	}
}

// pep answers like the personal eventing service of the account.
type pep struct {
	mu        sync.Mutex
	items     []string
	missing   bool
	published []*stanza.Element
}

func (p *pep) respond(e *stanza.Element, deliver func(*stanza.Element)) {
	if !stanza.IsIQ(e, stanza.GetIQ, stanza.SetIQ) {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	ps := e.Child(pubsub.NS, "pubsub")
	switch {
	case ps.Child(pubsub.NS, "items") != nil:
		if p.missing {
			deliver(xmpptest.ErrorReply(e, stanza.Error{Type: stanza.Cancel, Condition: stanza.ItemNotFound}))
			return
		}
		items := stanza.NewElement(pubsub.NS, "items").SetAttr("node", readstate.NS)
		for _, s := range p.items {
			i, err := stanza.Parse(s)
			if err != nil {
				panic(err)
			}
			items.AddChild(i)
		}
		resp := stanza.NewElement(pubsub.NS, "pubsub")
		resp.AddChild(items)
		deliver(xmpptest.Reply(e, resp))
	case ps.Child(pubsub.NS, "publish") != nil:
		p.published = append(p.published, e)
		deliver(xmpptest.Reply(e))
	}
}

func newSync(t *testing.T, p *pep) (*readstate.Sync, *conn.Conn, *xmpptest.Transport) {
	t.Helper()
	c, tr := xmpptest.Connect(t, p.respond)
	n := pubsub.NewNotifier(nil)
	n.RegisterHandlers(c)
	return readstate.New(c, n, nil), c, tr
}

func TestFetch(t *testing.T) {
	for i, tc := range []struct {
		pep  *pep
		want string
	}{
		0: {pep: &pep{items: []string{item}}, want: "s2"},
		1: {pep: &pep{missing: true}},
		2: {pep: &pep{}},
	} {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			s, _, _ := newSync(t, tc.pep)
			if err := s.BeforeOnline(context.Background()); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			d, ok := s.Displayed(romeo)
			if ok != (tc.want != "") || d.StanzaID != tc.want {
				t.Errorf("wrong position: want=%q, got=%q (%t)", tc.want, d.StanzaID, ok)
			}
		})
	}
}

func TestMarkRead(t *testing.T) {
	p := &pep{}
	s, _, _ := newSync(t, p)
	updates, cancel := s.Updates()
	defer cancel()

	err := s.MarkRead(context.Background(), readstate.Displayed{Conversation: romeo, StanzaID: "s3", By: account})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d, _ := s.Displayed(romeo); d.StanzaID != "s3" {
		t.Errorf("wrong local position: want=s3, got=%q", d.StanzaID)
	}
	select {
	case d := <-updates:
		if d.StanzaID != "s3" {
			t.Errorf("wrong update: %+v", d)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for update")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.published) != 1 {
		t.Fatalf("wrong number of publish requests: want=1, got=%d", len(p.published))
	}
	ps := p.published[0].Child(pubsub.NS, "pubsub")
	if n := ps.Child(pubsub.NS, "publish").Attribute("node"); n != readstate.NS {
		t.Errorf("wrong node: want=%q, got=%q", readstate.NS, n)
	}
	x := ps.Child(pubsub.NS, "publish-options").Child(form.NS, "x")
	opts, err := form.Parse(x)
	if err != nil {
		t.Fatalf("error parsing publish options: %v", err)
	}
	if v, _ := opts.GetString("pubsub#access_model"); v != "whitelist" {
		t.Errorf("wrong access model: want=whitelist, got=%q", v)
	}
	if v, _ := opts.GetBool("pubsub#persist_items"); !v {
		t.Errorf("items must be persisted")
	}
}

func TestMarkReadRequiresID(t *testing.T) {
	s, _, _ := newSync(t, &pep{})
	err := s.MarkRead(context.Background(), readstate.Displayed{Conversation: romeo})
	var cerr *conn.ConfigurationError
	if !errors.As(err, &cerr) {
		t.Errorf("wrong error: want=ConfigurationError, got=%v", err)
	}
}

func TestEvents(t *testing.T) {
	const (
		published = `<message xmlns="jabber:client" from="%s" to="juliet@example.com/balcony"><event xmlns="http://jabber.org/protocol/pubsub#event"><items node="urn:xmpp:mds:displayed:0"><item id="romeo@example.net"><displayed xmlns="urn:xmpp:mds:displayed:0"><stanza-id xmlns="urn:xmpp:sid:0" id="s9" by="juliet@example.com"/></displayed></item></items></event></message>`
		retracted = `<message xmlns="jabber:client" from="juliet@example.com" to="juliet@example.com/balcony"><event xmlns="http://jabber.org/protocol/pubsub#event"><items node="urn:xmpp:mds:displayed:0"><retract id="romeo@example.net"/></items></event></message>`
	)
	for i, tc := range []struct {
		from string
		want string
	}{
		0: {from: "juliet@example.com", want: "s9"},
		1: {from: "mallory@example.net"},
		2: {from: "juliet@example.com/chamber"},
	} {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			s, c, tr := newSync(t, &pep{})
			if err := tr.DeliverString(fmt.Sprintf(published, tc.from)); err != nil {
				t.Fatalf("error delivering: %v", err)
			}
			xmpptest.Sync(t, c)
			d, _ := s.Displayed(romeo)
			if d.StanzaID != tc.want {
				t.Errorf("wrong position: want=%q, got=%q", tc.want, d.StanzaID)
			}
			if err := tr.DeliverString(retracted); err != nil {
				t.Fatalf("error delivering: %v", err)
			}
			xmpptest.Sync(t, c)
			if _, ok := s.Displayed(romeo); ok {
				t.Errorf("expected position to be retracted")
			}
		})
	}
}

func TestUnread(t *testing.T) {
	s, _, _ := newSync(t, &pep{items: []string{item}})
	h := message.NewHistory()
	for i, m := range []message.Message{
		{StanzaID: "s1", Direction: message.In},
		{StanzaID: "s2", Direction: message.In},
		{StanzaID: "s3", Direction: message.Out},
		{StanzaID: "s4", Direction: message.In},
		{StanzaID: "s5", Direction: message.In},
	} {
		m := m
		m.Time = time.Unix(int64(i), 0)
		h.Add(&m)
	}
	if n := s.Unread(romeo, h); n != 4 {
		t.Errorf("wrong count without a position: want=4, got=%d", n)
	}
	if err := s.Fetch(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := s.Unread(romeo, h); n != 2 {
		t.Errorf("wrong count: want=2, got=%d", n)
	}
}
