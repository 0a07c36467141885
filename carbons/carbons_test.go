// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package carbons_test

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"

	"mellium.im/engine/carbons"
	"mellium.im/engine/conn"
	"mellium.im/engine/disco"
	"mellium.im/engine/internal/xmpptest"
	"mellium.im/engine/stanza"
)

func serverResponder(features ...string) xmpptest.ResponderFunc {
	return func(e *stanza.Element, deliver func(*stanza.Element)) {
		switch {
		case stanza.IsIQ(e, stanza.GetIQ) && e.Child(disco.NSInfo, "query") != nil:
			q := stanza.NewElement(disco.NSInfo, "query")
			for _, f := range features {
				q.AddChild(stanza.NewElement(disco.NSInfo, "feature").SetAttr("var", f))
			}
			deliver(xmpptest.Reply(e, q))
		case stanza.IsIQ(e, stanza.SetIQ):
			deliver(xmpptest.Reply(e))
		}
	}
}

func TestEnable(t *testing.T) {
	for i, tc := range []struct {
		features []string
		enabled  bool
	}{
		0: {features: []string{carbons.NS}, enabled: true},
		1: {},
	} {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			c, tr := xmpptest.Connect(t, serverResponder(tc.features...))
			cb := carbons.New(c, disco.New(c, nil), nil, nil)
			if err := cb.BeforeOnline(context.Background()); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cb.Enabled() != tc.enabled {
				t.Errorf("wrong state: want=%t, got=%t", tc.enabled, cb.Enabled())
			}
			sent := tr.SentMatching(conn.Matcher{Name: "iq", NS: carbons.NS})
			if tc.enabled != (len(sent) == 1) {
				t.Errorf("wrong number of enable requests: %d", len(sent))
			}
			cb.Offline()
			if cb.Enabled() {
				t.Errorf("carbons must be reset when going offline")
			}
		})
	}
}

type copied struct {
	body string
	from string
	sent bool
}

func TestUnwrap(t *testing.T) {
	const (
		received = `<message xmlns="jabber:client" from="%s" to="juliet@example.com/balcony"><received xmlns="urn:xmpp:carbons:2"><forwarded xmlns="urn:xmpp:forward:0"><message xmlns="jabber:client" from="romeo@example.net/orchard" to="juliet@example.com/chamber" type="chat"><body>Wherefore art thou?</body></message></forwarded></received></message>`
		sent     = `<message xmlns="jabber:client" from="%s" to="juliet@example.com/balcony"><sent xmlns="urn:xmpp:carbons:2"><forwarded xmlns="urn:xmpp:forward:0"><message xmlns="jabber:client" from="juliet@example.com/chamber" to="romeo@example.net" type="chat"><body>Here I am</body></message></forwarded></sent></message>`
	)
	for i, tc := range []struct {
		in   string
		want []copied
	}{
		0: {in: received, want: []copied{{body: "Wherefore art thou?", from: "romeo@example.net/orchard"}}},
		1: {in: sent, want: []copied{{body: "Here I am", from: "juliet@example.com/chamber", sent: true}}},
	} {
		for j, from := range []string{"juliet@example.com", "mallory@example.net", "juliet@example.com/chamber"} {
			t.Run(strconv.Itoa(i)+"/"+strconv.Itoa(j), func(t *testing.T) {
				c, tr := xmpptest.Connect(t, nil)
				var mu sync.Mutex
				var got []copied
				cb := carbons.New(c, disco.New(c, nil), carbons.HandlerFunc(func(msg *stanza.Element, sent bool) {
					mu.Lock()
					defer mu.Unlock()
					got = append(got, copied{body: msg.ChildText("", "body"), from: msg.Attribute("from"), sent: sent})
				}), nil)
				cb.RegisterHandlers(c)

				if err := tr.DeliverString(fmt.Sprintf(tc.in, from)); err != nil {
					t.Fatalf("error delivering: %v", err)
				}
				xmpptest.Sync(t, c)
				mu.Lock()
				defer mu.Unlock()
				want := tc.want
				if j != 0 {
					// Copies not sent by our own bare address are spoofed.
					want = nil
				}
				if len(got) != len(want) {
					t.Fatalf("wrong number of copies: want=%d, got=%d", len(want), len(got))
				}
				for k := range want {
					if got[k] != want[k] {
						t.Errorf("wrong copy: want=%+v, got=%+v", want[k], got[k])
					}
				}
			})
		}
	}
}

func TestPrivate(t *testing.T) {
	e := stanza.NewElement("jabber:client", "message")
	carbons.Private(e)
	const want = `<message xmlns="jabber:client"><private xmlns="urn:xmpp:carbons:2"></private><no-copy xmlns="urn:xmpp:hints"></no-copy></message>`
	if s := e.String(); s != want {
		t.Errorf("wrong output:\nwant=%s,\n got=%s", want, s)
	}
}
