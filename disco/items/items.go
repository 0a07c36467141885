// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package items contains the entries of a disco#items response.
package items // import "mellium.im/engine/disco/items"

import (
	"encoding/xml"

	"mellium.im/engine/internal/ns"
	"mellium.im/engine/stanza"
	"mellium.im/xmpp/jid"
)

// Item is an entity or node reachable from the entity that was queried, such
// as a room on a MUC service.
type Item struct {
	JID  jid.JID
	Name string
	Node string
}

// Element returns the <item/> element.
func (i Item) Element() *stanza.Element {
	e := stanza.NewElement(ns.DiscoItems, "item").SetAttr("jid", i.JID.String())
	if i.Node != "" {
		e.SetAttr("node", i.Node)
	}
	if i.Name != "" {
		e.SetAttr("name", i.Name)
	}
	return e
}

// MarshalXML implements xml.Marshaler.
func (i Item) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	return i.Element().MarshalXML(e, start)
}

// Parse decodes an item element.
// Items without a valid address are rejected.
func Parse(e *stanza.Element) (Item, bool) {
	if e == nil || e.Name.Local != "item" || e.Name.Space != ns.DiscoItems {
		return Item{}, false
	}
	addr, err := jid.Parse(e.Attribute("jid"))
	if err != nil {
		return Item{}, false
	}
	return Item{JID: addr, Name: e.Attribute("name"), Node: e.Attribute("node")}, true
}
