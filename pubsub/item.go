// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package pubsub

import (
	"encoding/xml"

	"mellium.im/engine/stanza"
	"mellium.im/xmpp/jid"
)

// Item is one entry of a node.
// The service picks an ID when publishing without one.
// Publisher is only known if the service discloses it, and Payload is nil in
// notifications sent without payloads.
type Item struct {
	ID        string
	Publisher jid.JID
	Payload   *stanza.Element
}

// Element returns the item in the pubsub namespace.
func (i Item) Element() *stanza.Element {
	e := stanza.NewElement(NS, "item").SetAttr("id", i.ID)
	if !i.Publisher.Equal(jid.JID{}) {
		e.SetAttr("publisher", i.Publisher.String())
	}
	if i.Payload != nil {
		e.AddChild(i.Payload.Copy())
	}
	return e
}

// MarshalXML implements xml.Marshaler.
func (i Item) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	return i.Element().MarshalXML(e, start)
}

// ParseItem reads an item element in any of the pubsub namespaces.
func ParseItem(e *stanza.Element) Item {
	i := Item{
		ID:      e.Attribute("id"),
		Payload: e.FirstChild(),
	}
	i.Publisher, _ = jid.Parse(e.Attribute("publisher"))
	return i
}
