// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package blocklist_test

import (
	"context"
	"errors"
	"reflect"
	"strconv"
	"testing"

	"mellium.im/engine/blocklist"
	"mellium.im/engine/conn"
	"mellium.im/engine/internal/xmpptest"
	"mellium.im/engine/stanza"
	"mellium.im/xmpp/jid"
)

func TestMatch(t *testing.T) {
	for i, tc := range []struct {
		j1, j2 string
		match  bool
	}{
		0: {j1: "romeo@example.net/orchard", j2: "romeo@example.net/orchard", match: true},
		1: {j1: "romeo@example.net/orchard", j2: "romeo@example.net", match: true},
		2: {j1: "romeo@example.net/orchard", j2: "example.net/orchard", match: true},
		3: {j1: "romeo@example.net/orchard", j2: "example.net", match: true},
		4: {j1: "romeo@example.net", j2: "romeo@example.net/orchard"},
		5: {j1: "romeo@example.net/orchard", j2: "juliet@example.net"},
		6: {j1: "romeo@example.net/orchard", j2: "example.com"},
	} {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			if m := blocklist.Match(jid.MustParse(tc.j1), jid.MustParse(tc.j2)); m != tc.match {
				t.Errorf("wrong match: want=%t, got=%t", tc.match, m)
			}
		})
	}
}

func TestEncode(t *testing.T) {
	xmpptest.RunEncodingTests(t, []xmpptest.EncodingTestCase{
		0: {
			Value: blocklist.Item{JID: jid.MustParse("romeo@example.net")},
			XML:   `<item xmlns="urn:xmpp:blocking" jid="romeo@example.net"></item>`,
		},
		1: {
			Value: blocklist.Item{JID: jid.MustParse("romeo@example.net"), StanzaIDs: []string{"s1"}, Text: "Spam!"},
			XML:   `<item xmlns="urn:xmpp:blocking" jid="romeo@example.net"><report xmlns="urn:xmpp:reporting:1" reason="urn:xmpp:reporting:spam"><stanza-id xmlns="urn:xmpp:sid:0" id="s1"></stanza-id><text>Spam!</text></report></item>`,
			Parse: func(s string) (interface{}, error) {
				e, err := stanza.Parse(s)
				if err != nil {
					return nil, err
				}
				item, ok := blocklist.ParseItem(e)
				if !ok {
					return nil, errors.New("invalid item")
				}
				return item, nil
			},
		},
	})
}

func listResponder(items ...string) xmpptest.ResponderFunc {
	return func(e *stanza.Element, deliver func(*stanza.Element)) {
		switch {
		case stanza.IsIQ(e, stanza.GetIQ) && e.Child(blocklist.NS, "blocklist") != nil:
			list := stanza.NewElement(blocklist.NS, "blocklist")
			for _, j := range items {
				list.AddChild(stanza.NewElement(blocklist.NS, "item").SetAttr("jid", j))
			}
			deliver(xmpptest.Reply(e, list))
		case stanza.IsIQ(e, stanza.SetIQ):
			deliver(xmpptest.Reply(e))
		}
	}
}

func jids(list []jid.JID) []string {
	out := make([]string, 0, len(list))
	for _, j := range list {
		out = append(out, j.String())
	}
	return out
}

func TestFetch(t *testing.T) {
	c, _ := xmpptest.Connect(t, listResponder("romeo@example.net", "example.org", "@@invalid"))
	l := blocklist.New(c, nil)
	if err := l.BeforeOnline(context.Background()); err != nil {
		t.Fatalf("error fetching: %v", err)
	}
	want := []string{"example.org", "romeo@example.net"}
	if got := jids(l.Blocked()); !reflect.DeepEqual(got, want) {
		t.Errorf("wrong blocklist: want=%v, got=%v", want, got)
	}
	if !l.IsBlocked(jid.MustParse("mercutio@example.org/party")) {
		t.Errorf("domain blocks must match every address on the domain")
	}
	if l.IsBlocked(jid.MustParse("juliet@example.net")) {
		t.Errorf("unexpected block")
	}
}

func TestUnsupported(t *testing.T) {
	c, _ := xmpptest.Connect(t, func(e *stanza.Element, deliver func(*stanza.Element)) {
		deliver(xmpptest.ErrorReply(e, stanza.Error{Type: stanza.Cancel, Condition: stanza.ServiceUnavailable}))
	})
	l := blocklist.New(c, nil)
	if err := l.BeforeOnline(context.Background()); err != nil {
		t.Fatalf("unsupported blocking must not fail going online: %v", err)
	}
	if l.Supported() {
		t.Errorf("expected blocking to be unsupported")
	}
}

func TestBlockUnblock(t *testing.T) {
	c, tr := xmpptest.Connect(t, listResponder())
	l := blocklist.New(c, nil)
	ctx := context.Background()
	romeo := jid.MustParse("romeo@example.net")
	tybalt := jid.MustParse("tybalt@example.net")

	if err := l.Block(ctx, blocklist.Item{JID: romeo}, blocklist.Item{JID: tybalt}); err != nil {
		t.Fatalf("error blocking: %v", err)
	}
	sent := tr.SentMatching(conn.Matcher{Name: "iq", NS: blocklist.NS})
	const want = `<block xmlns="urn:xmpp:blocking"><item jid="romeo@example.net"></item><item jid="tybalt@example.net"></item></block>`
	if len(sent) != 1 || sent[0].Child(blocklist.NS, "block").String() != want {
		t.Fatalf("wrong block request: %v", sent)
	}
	if !l.IsBlocked(romeo) || !l.IsBlocked(tybalt) {
		t.Errorf("expected both addresses to be blocked")
	}

	if err := l.Unblock(ctx, romeo); err != nil {
		t.Fatalf("error unblocking: %v", err)
	}
	if l.IsBlocked(romeo) || !l.IsBlocked(tybalt) {
		t.Errorf("wrong blocklist after unblock: %v", l.Blocked())
	}
	if err := l.UnblockAll(ctx); err != nil {
		t.Fatalf("error unblocking all: %v", err)
	}
	if n := len(l.Blocked()); n != 0 {
		t.Errorf("expected empty blocklist, got %d entries", n)
	}

	var cfgErr *conn.ConfigurationError
	if err := l.Unblock(ctx); !errors.As(err, &cfgErr) {
		t.Errorf("unblocking nothing must be a configuration error, got %v", err)
	}
	if err := l.Block(ctx); !errors.As(err, &cfgErr) {
		t.Errorf("blocking nothing must be a configuration error, got %v", err)
	}
}

func TestPush(t *testing.T) {
	c, tr := xmpptest.Connect(t, nil)
	l := blocklist.New(c, nil)
	l.RegisterHandlers(c)
	events, cancel := l.Updates()
	defer cancel()

	for i, tc := range []struct {
		push    string
		want    []string
		kind    blocklist.EventKind
		ack     bool
		ignored bool
	}{
		0: {
			push: `<iq xmlns="jabber:client" type="set" id="push1"><block xmlns="urn:xmpp:blocking"><item jid="romeo@example.net"/></block></iq>`,
			want: []string{"romeo@example.net"},
			kind: blocklist.Blocked,
			ack:  true,
		},
		1: {
			push:    `<iq xmlns="jabber:client" type="set" id="push2" from="mallory@example.net"><block xmlns="urn:xmpp:blocking"><item jid="juliet@example.com"/></block></iq>`,
			want:    []string{"romeo@example.net"},
			ignored: true,
		},
		2: {
			push: `<iq xmlns="jabber:client" type="set" id="push3" from="juliet@example.com"><block xmlns="urn:xmpp:blocking"><item jid="tybalt@example.net"/></block></iq>`,
			want: []string{"romeo@example.net", "tybalt@example.net"},
			kind: blocklist.Blocked,
			ack:  true,
		},
		3: {
			push: `<iq xmlns="jabber:client" type="set" id="push4"><unblock xmlns="urn:xmpp:blocking"><item jid="romeo@example.net"/></unblock></iq>`,
			want: []string{"tybalt@example.net"},
			kind: blocklist.Unblocked,
			ack:  true,
		},
		4: {
			push: `<iq xmlns="jabber:client" type="set" id="push5"><unblock xmlns="urn:xmpp:blocking"/></iq>`,
			want: []string{},
			kind: blocklist.Reset,
			ack:  true,
		},
	} {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			tr.Reset()
			if err := tr.DeliverString(tc.push); err != nil {
				t.Fatalf("error delivering: %v", err)
			}
			xmpptest.Sync(t, c)
			if got := jids(l.Blocked()); !reflect.DeepEqual(got, tc.want) {
				t.Errorf("wrong blocklist: want=%v, got=%v", tc.want, got)
			}
			sent := tr.Sent()
			if len(sent) != 1 {
				t.Fatalf("expected exactly one answer, got %d", len(sent))
			}
			wantType := "result"
			if tc.ignored {
				wantType = "error"
			}
			if typ := sent[0].Type(); typ != wantType {
				t.Errorf("wrong answer type: want=%s, got=%s", wantType, typ)
			}
			if tc.ignored {
				return
			}
			ev := <-events
			if ev.Kind != tc.kind {
				t.Errorf("wrong event: want=%d, got=%d", tc.kind, ev.Kind)
			}
		})
	}
}
