// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package history_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"mellium.im/engine/history"
	"mellium.im/engine/internal/xmpptest"
	"mellium.im/engine/message"
	"mellium.im/engine/paging"
	"mellium.im/engine/stanza"
	"mellium.im/xmpp/jid"
)

type recipient struct {
	archive jid.JID
	with    jid.JID
	h       *message.History

	mu      sync.Mutex
	handled []*message.Message
	stanzas []*stanza.Element
}

func newRecipient(archive, with string) *recipient {
	r := &recipient{h: message.NewHistory()}
	r.archive = jid.MustParse(archive)
	if with != "" {
		r.with = jid.MustParse(with)
	}
	return r
}

func (r *recipient) Archive() jid.JID          { return r.archive }
func (r *recipient) With() jid.JID             { return r.with }
func (r *recipient) History() *message.History { return r.h }

func (r *recipient) HandleArchived(m *message.Message, e *stanza.Element) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handled = append(r.handled, m)
	r.stanzas = append(r.stanzas, e)
	r.h.Add(m)
}

// page describes the response of the archive to a single query.
type page struct {
	from     string
	ids      []string
	complete bool
}

func archivedMessage(from, queryID, id string) string {
	fromAttr := ""
	if from != "" {
		fromAttr = fmt.Sprintf(` from="%s"`, from)
	}
	return fmt.Sprintf(`<message xmlns="jabber:client"%s to="juliet@example.com/balcony"><result xmlns="urn:xmpp:mam:2" queryid="%s" id="%s"><forwarded xmlns="urn:xmpp:forward:0"><delay xmlns="urn:xmpp:delay" stamp="2010-07-10T23:08:25Z"/><message xmlns="jabber:client" from="romeo@example.net/orchard" to="juliet@example.com/balcony" type="chat"><body>msg %s</body></message></forwarded></result></message>`, fromAttr, queryID, id, id)
}

// archiveResponder serves pages in order and records every query it receives.
func archiveResponder(pages []page, queries *[]*stanza.Element) xmpptest.ResponderFunc {
	var mu sync.Mutex
	i := 0
	return func(e *stanza.Element, deliver func(*stanza.Element)) {
		q := e.Child(history.NS, "query")
		if !stanza.IsIQ(e, stanza.SetIQ) || q == nil {
			return
		}
		mu.Lock()
		*queries = append(*queries, e)
		p := pages[i%len(pages)]
		i++
		mu.Unlock()

		queryID := q.Attribute("queryid")
		for _, id := range p.ids {
			msg, err := stanza.Parse(archivedMessage(p.from, queryID, id))
			if err != nil {
				panic(err)
			}
			deliver(msg)
		}
		set := `<set xmlns="http://jabber.org/protocol/rsm"/>`
		if len(p.ids) > 0 {
			set = fmt.Sprintf(`<set xmlns="http://jabber.org/protocol/rsm"><first>%s</first><last>%s</last></set>`, p.ids[0], p.ids[len(p.ids)-1])
		}
		fin, err := stanza.Parse(fmt.Sprintf(`<fin xmlns="urn:xmpp:mam:2" complete="%t">%s</fin>`, p.complete, set))
		if err != nil {
			panic(err)
		}
		deliver(xmpptest.Reply(e, fin))
	}
}

func newArchive(t *testing.T, pages []page) (*history.Archive, *[]*stanza.Element) {
	t.Helper()
	queries := new([]*stanza.Element)
	c, _ := xmpptest.Connect(t, archiveResponder(pages, queries))
	a := history.New(c, nil, history.PageSize(2))
	a.RegisterHandlers(c)
	return a, queries
}

func TestPaginationTermination(t *testing.T) {
	for n := 1; n <= 4; n++ {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			var pages []page
			for i := 0; i < n; i++ {
				pages = append(pages, page{
					ids:      []string{fmt.Sprintf("p%da", i), fmt.Sprintf("p%db", i)},
					complete: i == n-1,
				})
			}
			a, queries := newArchive(t, pages)
			r := newRecipient("juliet@example.com", "romeo@example.net")

			requests, err := a.LoadAllMessages(context.Background(), r)
			if err != nil {
				t.Fatalf("error loading: %v", err)
			}
			if requests != n || len(*queries) != n {
				t.Errorf("wrong number of requests: want=%d, got=%d (%d sent)", n, requests, len(*queries))
			}
			if l := r.h.Len(); l != 2*n {
				t.Errorf("wrong number of messages: want=%d, got=%d", 2*n, l)
			}
			for i, q := range *queries {
				after := q.Child(history.NS, "query").Child(paging.NS, "set").ChildText(paging.NS, "after")
				want := ""
				if i > 0 {
					want = fmt.Sprintf("p%db", i-1)
				}
				if after != want {
					t.Errorf("%d: wrong cursor: want=%q, got=%q", i, want, after)
				}
			}
		})
	}
}

func TestArchivedMessagesAreTagged(t *testing.T) {
	a, queries := newArchive(t, []page{{ids: []string{"s1"}, complete: true}})
	r := newRecipient("juliet@example.com", "romeo@example.net")
	res, err := a.Fetch(context.Background(), r, history.Query{})
	if err != nil {
		t.Fatalf("error fetching: %v", err)
	}
	if !res.Complete || res.Messages != 1 {
		t.Errorf("wrong result: %+v", res)
	}
	if len(r.handled) != 1 {
		t.Fatalf("wrong number of messages handled: want=1, got=%d", len(r.handled))
	}
	m := r.handled[0]
	if !m.FromArchive || !m.Delayed {
		t.Errorf("archived message must be tagged: %+v", m)
	}
	if m.StanzaID != "s1" || m.Body != "msg s1" {
		t.Errorf("wrong message: %+v", m)
	}
	if m.Time.Year() != 2010 {
		t.Errorf("expected time from the forwarding delay, got %v", m.Time)
	}
	if from := r.stanzas[0].Attribute("from"); from != "romeo@example.net/orchard" {
		t.Errorf("expected original stanza to be passed on, got from=%q", from)
	}

	q := (*queries)[0]
	if to := q.Attribute("to"); to != "" {
		t.Errorf("queries to the own archive must not be addressed, got %q", to)
	}
	query := q.Child(history.NS, "query")
	x := query.Child("jabber:x:data", "x")
	var with string
	for _, f := range x.ChildrenNamed("", "field") {
		if f.Attribute("var") == "with" {
			with = f.ChildText("", "value")
		}
	}
	if with != "romeo@example.net" {
		t.Errorf("wrong with filter: want=%q, got=%q in %s", "romeo@example.net", with, query)
	}
}

func TestArchiveDedup(t *testing.T) {
	a, _ := newArchive(t, []page{
		{ids: []string{"s1", "s2"}, complete: true},
		{ids: []string{"s2", "s3"}, complete: true},
	})
	r := newRecipient("juliet@example.com", "romeo@example.net")
	ctx := context.Background()
	if _, err := a.Fetch(ctx, r, history.Query{}); err != nil {
		t.Fatalf("error fetching: %v", err)
	}
	if _, err := a.Fetch(ctx, r, history.Query{}); err != nil {
		t.Fatalf("error fetching: %v", err)
	}
	if n := r.h.Len(); n != 3 {
		t.Errorf("wrong number of messages: want=3, got=%d", n)
	}
	if n := len(r.handled); n != 3 {
		t.Errorf("duplicates must not reach the recipient: want=3, got=%d", n)
	}
}

func TestLoadMostRecent(t *testing.T) {
	a, queries := newArchive(t, []page{
		{from: "room@muc.example.com", ids: []string{"s8", "s9"}},
		{from: "room@muc.example.com", ids: []string{"s6", "s7"}},
	})
	r := newRecipient("room@muc.example.com", "")
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := a.LoadMostRecentUnloadedMessages(ctx, r); err != nil {
			t.Fatalf("error loading: %v", err)
		}
	}
	if len(*queries) != 2 {
		t.Fatalf("wrong number of queries: want=2, got=%d", len(*queries))
	}
	for i, want := range []string{"", "s8"} {
		q := (*queries)[i]
		if to := q.Attribute("to"); to != "room@muc.example.com" {
			t.Errorf("%d: wrong archive: %q", i, to)
		}
		set := q.Child(history.NS, "query").Child(paging.NS, "set")
		before := set.Child(paging.NS, "before")
		if before == nil {
			t.Fatalf("%d: expected a before anchor: %s", i, set)
		}
		if before.Text != want {
			t.Errorf("%d: wrong anchor: want=%q, got=%q", i, want, before.Text)
		}
		if max := set.ChildText(paging.NS, "max"); max != "2" {
			t.Errorf("%d: wrong page size: %q", i, max)
		}
	}
	if n := r.h.Len(); n != 4 {
		t.Errorf("wrong number of messages: want=4, got=%d", n)
	}
}

func TestSpoofedArchive(t *testing.T) {
	a, _ := newArchive(t, []page{{from: "mallory@example.net", ids: []string{"s1"}, complete: true}})
	r := newRecipient("juliet@example.com", "")
	res, err := a.Fetch(context.Background(), r, history.Query{})
	if err != nil {
		t.Fatalf("error fetching: %v", err)
	}
	if res.Messages != 1 {
		t.Errorf("wrong number of received results: want=1, got=%d", res.Messages)
	}
	if n := r.h.Len(); n != 0 {
		t.Errorf("messages from another archive must be dropped, got %d", n)
	}
}

func TestArchiveError(t *testing.T) {
	c, _ := xmpptest.Connect(t, func(e *stanza.Element, deliver func(*stanza.Element)) {
		if stanza.IsIQ(e, stanza.SetIQ) {
			deliver(xmpptest.ErrorReply(e, stanza.Error{Type: stanza.Cancel, Condition: stanza.ItemNotFound}))
		}
	})
	a := history.New(c, nil)
	a.RegisterHandlers(c)
	_, err := a.LoadAllMessages(context.Background(), newRecipient("juliet@example.com", ""))
	if !errors.Is(err, stanza.Error{Condition: stanza.ItemNotFound}) {
		t.Errorf("expected item-not-found, got %v", err)
	}
}
