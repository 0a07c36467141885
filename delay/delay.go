// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package delay reads and writes the timestamps that servers and archives put
// on stanzas that were not delivered live.
package delay // import "mellium.im/engine/delay"

import (
	"encoding/xml"
	"time"

	"mellium.im/engine/internal/ns"
	"mellium.im/engine/stanza"
	"mellium.im/xmpp/jid"
)

// Namespaces used by this package.
const (
	NS = ns.Delay

	// NSLegacy is the namespace of the older <x/> stamp that some archives
	// still produce.
	NSLegacy = "jabber:x:delay"
)

const (
	stampLayout  = "2006-01-02T15:04:05Z07:00"
	legacyLayout = "20060102T15:04:05"
)

// Delay is the original send time of a stanza and the entity that held it
// back.
type Delay struct {
	From   jid.JID
	Time   time.Time
	Reason string
}

// Element returns the <delay/> element.
// The stamp is always written in UTC.
func (d Delay) Element() *stanza.Element {
	e := stanza.NewElement(NS, "delay").SetAttr("stamp", d.Time.UTC().Format(stampLayout))
	if !d.From.Equal(jid.JID{}) {
		e.SetAttr("from", d.From.String())
	}
	e.Text = d.Reason
	return e
}

// MarshalXML implements xml.Marshaler.
func (d Delay) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	return d.Element().MarshalXML(e, start)
}

// Insert stamps e with d, replacing any stamp it already carries.
func Insert(e *stanza.Element, d Delay) *stanza.Element {
	e.RemoveChild(NS, "delay")
	return e.AddChild(d.Element())
}

// Parse reads the stamp from e, which is either the stamp itself or a stanza
// carrying one as a direct child.
// Legacy stamps are understood.
// ok is false if there is no stamp or its time cannot be parsed.
func Parse(e *stanza.Element) (d Delay, ok bool) {
	el := e
	if !isStamp(el) {
		el = e.Child(NS, "delay")
	}
	if el == nil {
		el = e.Child(NSLegacy, "x")
	}
	if !isStamp(el) {
		return Delay{}, false
	}

	layout := time.RFC3339Nano
	if el.Name.Space == NSLegacy {
		layout = legacyLayout
	}
	t, err := time.Parse(layout, el.Attribute("stamp"))
	if err != nil {
		return Delay{}, false
	}
	from, _ := jid.Parse(el.Attribute("from"))
	return Delay{From: from, Time: t, Reason: el.Text}, true
}

func isStamp(e *stanza.Element) bool {
	switch {
	case e == nil:
		return false
	case e.Name.Space == NS:
		return e.Name.Local == "delay"
	case e.Name.Space == NSLegacy:
		return e.Name.Local == "x"
	}
	return false
}
