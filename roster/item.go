// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package roster

import (
	"encoding/xml"

	"mellium.im/engine/internal/ns"
	"mellium.im/engine/stanza"
	"mellium.im/xmpp/jid"
)

// NS is the namespace used by this package.
const NS = ns.Roster

// Item is a roster entry as sent by the server.
// Ask is set while our subscription request is pending.
type Item struct {
	JID          jid.JID
	Name         string
	Subscription Subscription
	Ask          bool
	Groups       []string
}

// Element returns the <item/> element.
func (item Item) Element() *stanza.Element {
	e := stanza.NewElement(NS, "item").
		SetAttr("jid", item.JID.String()).
		SetAttr("name", item.Name).
		SetAttr("subscription", string(item.Subscription))
	if item.Ask {
		e.SetAttr("ask", "subscribe")
	}
	for _, g := range item.Groups {
		group := stanza.NewElement("", "group")
		group.Text = g
		e.AddChild(group)
	}
	return e
}

// MarshalXML satisfies the xml.Marshaler interface.
func (item Item) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	return item.Element().MarshalXML(e, start)
}

// ParseItem reads a roster item element.
// Items with a missing or invalid jid are reported as not ok.
func ParseItem(e *stanza.Element) (Item, bool) {
	j, err := jid.Parse(e.Attribute("jid"))
	if err != nil || j.Equal(jid.JID{}) {
		return Item{}, false
	}
	item := Item{
		JID:          j.Bare(),
		Name:         e.Attribute("name"),
		Subscription: Subscription(e.Attribute("subscription")),
		Ask:          e.Attribute("ask") == "subscribe",
	}
	switch item.Subscription {
	case None, To, From, Both, Remove:
	default:
		item.Subscription = None
	}
	for _, g := range e.ChildrenNamed("", "group") {
		item.Groups = append(item.Groups, g.Text)
	}
	return item, true
}

// query builds a roster query with the provided items.
func query(ver string, hasVer bool, items ...Item) *stanza.Element {
	q := stanza.NewElement(NS, "query")
	if hasVer {
		q.Attr = append(q.Attr, xml.Attr{Name: xml.Name{Local: "ver"}, Value: ver})
	}
	for _, item := range items {
		q.AddChild(item.Element())
	}
	return q
}
