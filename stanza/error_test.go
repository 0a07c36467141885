// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stanza_test

import (
	"errors"
	"strconv"
	"testing"

	"golang.org/x/text/language"
	"mellium.im/engine/stanza"
)

var unmarshalErrorTests = [...]struct {
	in  string
	ok  bool
	err stanza.Error
}{
	0: {in: `<iq type="result" id="1"/>`},
	1: {
		in: `<iq type="error" id="1"/>`,
		ok: true,
		err: stanza.Error{Condition: stanza.UndefinedCondition},
	},
	2: {
		in: `<iq type="error" id="1"><error type="cancel" code="404"><item-not-found xmlns="urn:ietf:params:xml:ns:xmpp-stanzas"/></error></iq>`,
		ok: true,
		err: stanza.Error{Type: stanza.Cancel, Code: "404", Condition: stanza.ItemNotFound},
	},
	3: {
		in: `<message type="error" xmlns="jabber:client"><error type="auth" by="muc.example.net"><text xmlns="urn:ietf:params:xml:ns:xmpp-stanzas" xml:lang="en">nope</text><forbidden xmlns="urn:ietf:params:xml:ns:xmpp-stanzas"/></error></message>`,
		ok: true,
		err: stanza.Error{Type: stanza.Auth, Condition: stanza.Forbidden},
	},
}

func TestUnmarshalError(t *testing.T) {
	for i, tc := range unmarshalErrorTests {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			e, err := stanza.Parse(tc.in)
			if err != nil {
				t.Fatalf("error parsing: %v", err)
			}
			se, ok := stanza.UnmarshalError(e)
			if ok != tc.ok {
				t.Fatalf("wrong ok: want=%t, got=%t", tc.ok, ok)
			}
			if se.Condition != tc.err.Condition {
				t.Errorf("wrong condition: want=%q, got=%q", tc.err.Condition, se.Condition)
			}
			if se.Type != tc.err.Type {
				t.Errorf("wrong type: want=%q, got=%q", tc.err.Type, se.Type)
			}
			if se.Code != tc.err.Code {
				t.Errorf("wrong code: want=%q, got=%q", tc.err.Code, se.Code)
			}
		})
	}
}

func TestErrorIs(t *testing.T) {
	var err error = stanza.Error{Type: stanza.Cancel, Condition: stanza.ItemNotFound}
	if !errors.Is(err, stanza.Error{Condition: stanza.ItemNotFound}) {
		t.Errorf("expected condition to match")
	}
	if errors.Is(err, stanza.Error{Condition: stanza.Forbidden}) {
		t.Errorf("did not expect different condition to match")
	}
	if errors.Is(err, stanza.Error{Type: stanza.Wait}) {
		t.Errorf("did not expect different type to match")
	}
}

func TestTextFor(t *testing.T) {
	se := stanza.Error{Text: map[string]string{
		"":   "default",
		"en": "english",
		"de": "deutsch",
	}}
	if s := se.TextFor(); s != "default" {
		t.Errorf("wrong default text: want=%q, got=%q", "default", s)
	}
	if s := se.TextFor(language.German); s != "deutsch" {
		t.Errorf("wrong german text: want=%q, got=%q", "deutsch", s)
	}
	if s := se.TextFor(language.BritishEnglish); s != "english" {
		t.Errorf("wrong english text: want=%q, got=%q", "english", s)
	}
}

func TestErrorReply(t *testing.T) {
	req, err := stanza.Parse(`<iq xmlns="jabber:client" type="get" id="1" from="a@example.net/c"><ping xmlns="urn:xmpp:ping"/></iq>`)
	if err != nil {
		t.Fatalf("error parsing: %v", err)
	}
	reply := stanza.ErrorReply(req, stanza.Error{Type: stanza.Cancel, Condition: stanza.ServiceUnavailable})
	const want = `<iq id="1" to="a@example.net/c" type="error"><error type="cancel"><service-unavailable xmlns="urn:ietf:params:xml:ns:xmpp-stanzas"></service-unavailable></error></iq>`
	if s := reply.String(); s != want {
		t.Errorf("wrong reply:\nwant=%s,\n got=%s", want, s)
	}
}
