// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stanza_test

import (
	"context"
	"encoding/xml"
	"errors"
	"strconv"
	"testing"

	"mellium.im/engine/stanza"
	"mellium.im/xmpp/jid"
)

var builderTests = [...]struct {
	b   *stanza.Builder
	out string
}{
	0: {
		b:   stanza.IQ(stanza.GetIQ, jid.JID{}),
		out: `<iq type="get"></iq>`,
	},
	1: {
		b: stanza.IQ(stanza.GetIQ, jid.MustParse("example.net")).
			C("query", stanza.Attrs{"xmlns": "jabber:iq:roster"}, "").
			C("item", stanza.Attrs{"jid": "a@example.net"}, "").Up().Up(),
		out: `<iq to="example.net" type="get"><query xmlns="jabber:iq:roster"><item jid="a@example.net"></item></query></iq>`,
	},
	2: {
		b: stanza.Message(stanza.ChatMessage, jid.MustParse("juliet@example.com")).
			C("body", nil, "Wherefore art thou?").Up().
			C("active", stanza.Attrs{"xmlns": "http://jabber.org/protocol/chatstates"}, ""),
		out: `<message to="juliet@example.com" type="chat"><body>Wherefore art thou?</body><active xmlns="http://jabber.org/protocol/chatstates"></active></message>`,
	},
	3: {
		b: stanza.Presence(stanza.AvailablePresence, jid.MustParse("room@muc.example.com/nick")).
			C("x", stanza.Attrs{"xmlns": "http://jabber.org/protocol/muc"}, "").
			C("history", stanza.Attrs{"maxstanzas": "0"}, "").Up().
			C("password", nil, "secret").Top().Attrs(stanza.Attrs{"id": "123"}),
		out: `<presence to="room@muc.example.com/nick" id="123"><x xmlns="http://jabber.org/protocol/muc"><history maxstanzas="0"></history><password>secret</password></x></presence>`,
	},
	4: {
		b:   stanza.NewBuilder("presence", nil).C("status", stanza.Attrs{"xml:lang": "en"}, "away").Up().Up().Up(),
		out: `<presence><status xml:lang="en">away</status></presence>`,
	},
}

func TestBuilder(t *testing.T) {
	for i, tc := range builderTests {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			if out := tc.b.String(); out != tc.out {
				t.Errorf("wrong output:\nwant=%s,\n got=%s", tc.out, out)
			}
		})
	}
}

func TestParseResolvesNamespaces(t *testing.T) {
	const in = `<iq xmlns="jabber:client" type="result" id="1"><query xmlns="jabber:iq:roster" ver="v1"><item jid="a@example.net"><group>Friends</group></item></query></iq>`
	e, err := stanza.Parse(in)
	if err != nil {
		t.Fatalf("error parsing: %v", err)
	}
	if e.Name.Space != "jabber:client" || e.Name.Local != "iq" {
		t.Errorf("wrong root name: %v", e.Name)
	}
	item := e.Child("jabber:iq:roster", "query").Child("jabber:iq:roster", "item")
	if item == nil {
		t.Fatalf("expected to find item in inherited namespace")
	}
	if j := item.Attribute("jid"); j != "a@example.net" {
		t.Errorf("wrong jid: want=%q, got=%q", "a@example.net", j)
	}
	if g := item.ChildText("", "group"); g != "Friends" {
		t.Errorf("wrong group: want=%q, got=%q", "Friends", g)
	}
	const out = `<iq xmlns="jabber:client" type="result" id="1"><query xmlns="jabber:iq:roster" ver="v1"><item jid="a@example.net"><group>Friends</group></item></query></iq>`
	if s := e.String(); s != out {
		t.Errorf("wrong round trip:\nwant=%s,\n got=%s", out, s)
	}
}

func TestNilChaining(t *testing.T) {
	var e *stanza.Element
	if c := e.Child("", "a").Child("", "b"); c != nil {
		t.Errorf("expected nil child, got %v", c)
	}
	if v := e.Attribute("id"); v != "" {
		t.Errorf("expected empty attribute, got %q", v)
	}
	if s := e.String(); s != "" {
		t.Errorf("expected empty string, got %q", s)
	}
}

func TestCopyIsDeep(t *testing.T) {
	e, err := stanza.Parse(`<a xmlns="urn:example" b="c"><d>text</d></a>`)
	if err != nil {
		t.Fatalf("error parsing: %v", err)
	}
	cp := e.Copy()
	cp.SetAttr("b", "changed")
	cp.Children[0].Text = "changed"
	if v := e.Attribute("b"); v != "c" {
		t.Errorf("copy mutated original attribute: %q", v)
	}
	if v := e.ChildText("", "d"); v != "text" {
		t.Errorf("copy mutated original child: %q", v)
	}
}

func TestDecodeTokenStream(t *testing.T) {
	b := stanza.IQ(stanza.SetIQ, jid.JID{}).C("query", stanza.Attrs{"xmlns": "jabber:iq:roster"}, "").C("item", stanza.Attrs{"jid": "b@example.net"}, "")
	e, err := stanza.Decode(b.TokenReader())
	if err != nil {
		t.Fatalf("error decoding: %v", err)
	}
	if item := e.Child("jabber:iq:roster", "query").Child("jabber:iq:roster", "item"); item == nil {
		t.Errorf("child did not inherit namespace when decoded from tokens: %s", e)
	}
}

func TestMarshalXML(t *testing.T) {
	e := stanza.NewElement("urn:xmpp:ping", "ping")
	out, err := xml.Marshal(e)
	if err != nil {
		t.Fatalf("error marshaling: %v", err)
	}
	const want = `<ping xmlns="urn:xmpp:ping"></ping>`
	if string(out) != want {
		t.Errorf("wrong output: want=%s, got=%s", want, out)
	}
}

type recordSender struct {
	sent []*stanza.Element
}

func (s *recordSender) Send(_ context.Context, e *stanza.Element) error {
	s.sent = append(s.sent, e)
	return nil
}

func (s *recordSender) SendAwaitingResponse(_ context.Context, e *stanza.Element) (*stanza.Element, error) {
	s.sent = append(s.sent, e)
	return stanza.Result(e).Element(), nil
}

func TestBuilderSend(t *testing.T) {
	b := stanza.IQ(stanza.GetIQ, jid.JID{}).C("ping", stanza.Attrs{"xmlns": "urn:xmpp:ping"}, "")
	if err := b.Send(context.Background()); !errors.Is(err, stanza.ErrNoSender) {
		t.Errorf("wrong error: want=%v, got=%v", stanza.ErrNoSender, err)
	}
	s := &recordSender{}
	b.WithSender(s)
	if err := b.Send(context.Background()); err != nil {
		t.Fatalf("unexpected error sending: %v", err)
	}
	resp, err := b.SendAwaitingResponse(context.Background())
	if err != nil {
		t.Fatalf("unexpected error sending: %v", err)
	}
	if len(s.sent) != 2 {
		t.Errorf("wrong number of sent elements: want=2, got=%d", len(s.sent))
	}
	if resp.Type() != "result" {
		t.Errorf("wrong response type: %q", resp.Type())
	}
}
