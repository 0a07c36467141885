// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package disco_test

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"mellium.im/engine/conn"
	"mellium.im/engine/disco"
	"mellium.im/engine/disco/info"
	"mellium.im/engine/disco/items"
	"mellium.im/engine/internal/xmpptest"
	"mellium.im/engine/stanza"
	"mellium.im/xmpp/jid"
)

func TestEncode(t *testing.T) {
	xmpptest.RunEncodingTests(t, []xmpptest.EncodingTestCase{
		0: {
			Value: info.Feature{Var: "urn:example"},
			XML:   `<feature xmlns="http://jabber.org/protocol/disco#info" var="urn:example"></feature>`,
		},
		1: {
			Value: info.Identity{Category: "client", Type: "pc", Name: "engine"},
			XML:   `<identity xmlns="http://jabber.org/protocol/disco#info" category="client" type="pc" name="engine"></identity>`,
		},
		2: {
			Value: items.Item{JID: jid.MustParse("example.net"), Node: "urn:example", Name: "test"},
			XML:   `<item xmlns="http://jabber.org/protocol/disco#items" jid="example.net" node="urn:example" name="test"></item>`,
		},
		3: {
			Value: disco.Caps{Hash: "sha-1", Node: "https://example.com", Ver: "abc="},
			XML:   `<c xmlns="http://jabber.org/protocol/caps" hash="sha-1" node="https://example.com" ver="abc="></c>`,
		},
	})
}

func TestVer(t *testing.T) {
	// The simple generation example from XEP-0115.
	i := disco.Info{
		Identities: []info.Identity{{Category: "client", Type: "pc", Name: "Exodus 0.9.1"}},
		Features: []info.Feature{
			{Var: "http://jabber.org/protocol/disco#info"},
			{Var: "http://jabber.org/protocol/caps"},
			{Var: "http://jabber.org/protocol/muc"},
			{Var: "http://jabber.org/protocol/disco#items"},
		},
	}
	const want = "QgayPKawpkPSDYmwT/WM94uAlu0="
	if ver := i.Ver(); ver != want {
		t.Errorf("wrong verification string: want=%q, got=%q", want, ver)
	}
}

func TestParseInfo(t *testing.T) {
	e, err := stanza.Parse(`<query xmlns="http://jabber.org/protocol/disco#info" node="n"><identity category="conference" type="text" name="Rooms"/><feature var="http://jabber.org/protocol/muc"/><x xmlns="jabber:x:data" type="result"><field var="FORM_TYPE" type="hidden"><value>urn:xmpp:http:upload:0</value></field><field var="max-file-size"><value>5242880</value></field></x></query>`)
	if err != nil {
		t.Fatalf("error parsing: %v", err)
	}
	i := disco.ParseInfo(e)
	if i.Node != "n" {
		t.Errorf("wrong node: want=%q, got=%q", "n", i.Node)
	}
	if !i.HasIdentity("conference", "text") || !i.HasIdentity("conference", "") || i.HasIdentity("client", "") {
		t.Errorf("wrong identities: %+v", i.Identities)
	}
	if !i.HasFeature("http://jabber.org/protocol/muc") || i.HasFeature("urn:example") {
		t.Errorf("wrong features: %+v", i.Features)
	}
	data, ok := i.Forms["urn:xmpp:http:upload:0"]
	if !ok {
		t.Fatalf("expected extended form")
	}
	if v, _ := data.GetString("max-file-size"); v != "5242880" {
		t.Errorf("wrong field value: %q", v)
	}
}

func serverResponder(requests *int32) xmpptest.ResponderFunc {
	return func(e *stanza.Element, deliver func(*stanza.Element)) {
		if !stanza.IsIQ(e, stanza.GetIQ) {
			return
		}
		atomic.AddInt32(requests, 1)
		to := e.Attribute("to")
		var payload string
		switch {
		case e.Child(disco.NSItems, "query") != nil && to == "example.com":
			payload = `<query xmlns="http://jabber.org/protocol/disco#items"><item jid="pubsub.example.com"/><item jid="conference.example.com"/><item jid="upload.example.com"/></query>`
		case e.Child(disco.NSInfo, "query") != nil && to == "conference.example.com":
			payload = `<query xmlns="http://jabber.org/protocol/disco#info"><identity category="conference" type="text"/><feature var="http://jabber.org/protocol/muc"/></query>`
		case e.Child(disco.NSInfo, "query") != nil && to == "upload.example.com":
			payload = `<query xmlns="http://jabber.org/protocol/disco#info"><identity category="store" type="file"/><feature var="urn:xmpp:http:upload:0"/></query>`
		case e.Child(disco.NSInfo, "query") != nil && to == "pubsub.example.com":
			deliver(xmpptest.ErrorReply(e, stanza.Error{Type: stanza.Cancel, Condition: stanza.ServiceUnavailable}))
			return
		case e.Child(disco.NSInfo, "query") != nil:
			payload = `<query xmlns="http://jabber.org/protocol/disco#info"><identity category="server" type="im"/><feature var="urn:xmpp:carbons:2"/></query>`
		default:
			return
		}
		p, err := stanza.Parse(payload)
		if err != nil {
			panic(err)
		}
		deliver(xmpptest.Reply(e, p))
	}
}

func TestFindService(t *testing.T) {
	var requests int32
	c, _ := xmpptest.Connect(t, serverResponder(&requests))
	d := disco.New(c, nil)
	ctx := context.Background()

	for i, tc := range []struct {
		category, typ string
		want          string
	}{
		0: {category: "conference", typ: "text", want: "conference.example.com"},
		1: {category: "store", typ: "file", want: "upload.example.com"},
		2: {category: "pubsub", typ: "service"},
	} {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			j, err := d.FindService(ctx, tc.category, tc.typ)
			if tc.want == "" {
				var nf *conn.NotFoundError
				if !errors.As(err, &nf) {
					t.Fatalf("expected not found error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("error finding service: %v", err)
			}
			if j.String() != tc.want {
				t.Errorf("wrong service: want=%s, got=%s", tc.want, j)
			}
		})
	}

	j, err := d.FindFeature(ctx, "urn:xmpp:carbons:2")
	if err != nil || j.String() != "example.com" {
		t.Errorf("expected feature on the server, got %v, %v", j, err)
	}
	j, err = d.FindFeature(ctx, "urn:xmpp:http:upload:0")
	if err != nil || j.String() != "upload.example.com" {
		t.Errorf("expected feature on an item, got %v, %v", j, err)
	}
}

func TestCache(t *testing.T) {
	var requests int32
	c, _ := xmpptest.Connect(t, serverResponder(&requests))
	d := disco.New(c, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			i, err := d.ServerInfo(ctx)
			if err != nil {
				t.Errorf("error fetching info: %v", err)
				return
			}
			if !i.HasIdentity("server", "im") {
				t.Errorf("wrong info: %+v", i)
			}
		}()
	}
	wg.Wait()
	if n := atomic.LoadInt32(&requests); n != 1 {
		t.Errorf("concurrent lookups must share a request: want=1, got=%d", n)
	}

	d.Offline()
	if _, err := d.ServerInfo(ctx); err != nil {
		t.Fatalf("error fetching info: %v", err)
	}
	if n := atomic.LoadInt32(&requests); n != 2 {
		t.Errorf("going offline must clear the cache: want=2, got=%d", n)
	}
}

func TestErrorsAreNotCached(t *testing.T) {
	var requests int32
	c, _ := xmpptest.Connect(t, serverResponder(&requests))
	d := disco.New(c, nil)
	pubsub := jid.MustParse("pubsub.example.com")
	for i := 0; i < 2; i++ {
		_, err := d.Info(context.Background(), pubsub, "")
		if !errors.Is(err, stanza.Error{Condition: stanza.ServiceUnavailable}) {
			t.Fatalf("wrong error: %v", err)
		}
	}
	if n := atomic.LoadInt32(&requests); n != 2 {
		t.Errorf("wrong number of requests: want=2, got=%d", n)
	}
}

func TestAnswerInfo(t *testing.T) {
	c, tr := xmpptest.Connect(t, nil)
	d := disco.New(c, nil, disco.Identity("client", "pc", "engine"), disco.Feature("urn:xmpp:ping"))
	d.AddFeature("urn:xmpp:receipts")
	d.RegisterHandlers(c)

	err := tr.DeliverString(`<iq xmlns="jabber:client" type="get" id="info1" from="romeo@example.net/orchard" to="juliet@example.com/balcony"><query xmlns="http://jabber.org/protocol/disco#info" node="https://example.com#ver"/></iq>`)
	if err != nil {
		t.Fatalf("error delivering: %v", err)
	}
	xmpptest.Sync(t, c)

	sent := tr.SentMatching(conn.Matcher{Name: "iq", ID: "info1"})
	if len(sent) != 1 {
		t.Fatalf("expected one response, got %d", len(sent))
	}
	if typ := sent[0].Type(); typ != string(stanza.ResultIQ) {
		t.Fatalf("wrong response type: %q", typ)
	}
	i := disco.ParseInfo(sent[0].Child(disco.NSInfo, "query"))
	if i.Node != "https://example.com#ver" {
		t.Errorf("node must be echoed, got %q", i.Node)
	}
	for _, f := range []string{disco.NSInfo, disco.NSCaps, "urn:xmpp:ping", "urn:xmpp:receipts"} {
		if !i.HasFeature(f) {
			t.Errorf("expected feature %s in %+v", f, i.Features)
		}
	}
	if !i.HasIdentity("client", "pc") {
		t.Errorf("wrong identities: %+v", i.Identities)
	}
	if caps := d.Caps("https://example.com"); caps.Ver != d.Own().Ver() || caps.Hash != "sha-1" {
		t.Errorf("wrong caps: %+v", caps)
	}
}
