// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package delay_test

import (
	"encoding/xml"
	"strconv"
	"testing"
	"time"

	"mellium.im/engine/delay"
	"mellium.im/engine/internal/xmpptest"
	"mellium.im/engine/stanza"
	"mellium.im/xmpp/jid"
)

var _ xml.Marshaler = delay.Delay{}

func TestEncode(t *testing.T) {
	xmpptest.RunEncodingTests(t, []xmpptest.EncodingTestCase{
		0: {
			Value: delay.Delay{},
			XML:   `<delay xmlns="urn:xmpp:delay" stamp="0001-01-01T00:00:00Z"></delay>`,
		},
		1: {
			Value: delay.Delay{From: jid.MustParse("me@example.net")},
			XML:   `<delay xmlns="urn:xmpp:delay" stamp="0001-01-01T00:00:00Z" from="me@example.net"></delay>`,
		},
		2: {
			Value: delay.Delay{
				Time:   time.Date(2002, time.September, 10, 23, 8, 25, 0, time.FixedZone("X", 3600)),
				Reason: "Offline Storage",
			},
			XML: `<delay xmlns="urn:xmpp:delay" stamp="2002-09-10T22:08:25Z">Offline Storage</delay>`,
		},
	})
}

var parseTests = [...]struct {
	in   string
	ok   bool
	want delay.Delay
}{
	0: {in: `<message xmlns="jabber:client"/>`},
	1: {
		in:   `<message xmlns="jabber:client"><delay xmlns="urn:xmpp:delay" from="capulet.com" stamp="2002-09-10T23:08:25Z">Offline Storage</delay></message>`,
		ok:   true,
		want: delay.Delay{From: jid.MustParse("capulet.com"), Time: time.Date(2002, time.September, 10, 23, 8, 25, 0, time.UTC), Reason: "Offline Storage"},
	},
	2: {
		in:   `<delay xmlns="urn:xmpp:delay" stamp="2002-09-10T23:08:25.123Z"/>`,
		ok:   true,
		want: delay.Delay{Time: time.Date(2002, time.September, 10, 23, 8, 25, 123000000, time.UTC)},
	},
	3: {
		in:   `<message xmlns="jabber:client"><x xmlns="jabber:x:delay" stamp="20020910T23:08:25"/></message>`,
		ok:   true,
		want: delay.Delay{Time: time.Date(2002, time.September, 10, 23, 8, 25, 0, time.UTC)},
	},
	4: {in: `<delay xmlns="urn:xmpp:delay" stamp="yesterday"/>`},
}

func TestParse(t *testing.T) {
	for i, tc := range parseTests {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			e, err := stanza.Parse(tc.in)
			if err != nil {
				t.Fatalf("error parsing: %v", err)
			}
			d, ok := delay.Parse(e)
			if ok != tc.ok {
				t.Fatalf("wrong ok: want=%t, got=%t", tc.ok, ok)
			}
			if !d.Time.Equal(tc.want.Time) {
				t.Errorf("wrong time: want=%v, got=%v", tc.want.Time, d.Time)
			}
			if !d.From.Equal(tc.want.From) {
				t.Errorf("wrong from: want=%v, got=%v", tc.want.From, d.From)
			}
			if d.Reason != tc.want.Reason {
				t.Errorf("wrong reason: want=%q, got=%q", tc.want.Reason, d.Reason)
			}
		})
	}
}

func TestInsertReplaces(t *testing.T) {
	e, err := stanza.Parse(`<message xmlns="jabber:client"><delay xmlns="urn:xmpp:delay" stamp="2002-09-10T23:08:25Z"/></message>`)
	if err != nil {
		t.Fatalf("error parsing: %v", err)
	}
	stamp := time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)
	delay.Insert(e, delay.Delay{Time: stamp})
	if n := len(e.ChildrenNamed(delay.NS, "delay")); n != 1 {
		t.Fatalf("wrong number of delays: want=1, got=%d", n)
	}
	d, _ := delay.Parse(e)
	if !d.Time.Equal(stamp) {
		t.Errorf("wrong time: want=%v, got=%v", stamp, d.Time)
	}
}
