// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package blocklist implements blocking and unblocking of contacts.
package blocklist // import "mellium.im/engine/blocklist"

import (
	"encoding/xml"

	"mellium.im/engine/internal/ns"
	"mellium.im/engine/stanza"
	"mellium.im/xmpp/jid"
)

// Various namespaces used by this package, provided as a convenience.
const (
	NS          = ns.Blocking
	NSReporting = `urn:xmpp:reporting:1`
)

// Match reports whether addr is covered by the blocklist entry.
// An entry matches the exact address, the bare address, the domain with the
// same resource, or the whole domain.
func Match(addr, entry jid.JID) bool {
	switch {
	case addr.Equal(entry), addr.Bare().Equal(entry), addr.Domain().Equal(entry):
		return true
	}
	withRes, err := addr.Domain().WithResource(addr.Resourcepart())
	return err == nil && withRes.Equal(entry)
}

// ReportReason says why an address is being reported.
type ReportReason string

// The available report reasons are listed below.
const (
	ReasonSpam  ReportReason = "urn:xmpp:reporting:spam"
	ReasonAbuse ReportReason = "urn:xmpp:reporting:abuse"
)

// Item is an entry in a block request.
// The report fields are optional and let the server know why the address was
// blocked.
type Item struct {
	JID       jid.JID
	Reason    ReportReason
	StanzaIDs []string
	Text      string
}

// Element returns the item as an element.
// A report is attached when any report field is set and defaults to spam.
func (i Item) Element() *stanza.Element {
	item := stanza.NewElement(NS, "item").SetAttr("jid", i.JID.String())
	if i.Reason == "" && len(i.StanzaIDs) == 0 && i.Text == "" {
		return item
	}
	reason := i.Reason
	if reason == "" {
		reason = ReasonSpam
	}
	report := stanza.NewElement(NSReporting, "report").SetAttr("reason", string(reason))
	for _, id := range i.StanzaIDs {
		report.AddChild(stanza.NewElement(ns.SID, "stanza-id").SetAttr("id", id))
	}
	if i.Text != "" {
		text := stanza.NewElement("", "text")
		text.Text = i.Text
		report.AddChild(text)
	}
	return item.AddChild(report)
}

// MarshalXML satisfies the xml.Marshaler interface.
func (i Item) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	return i.Element().MarshalXML(e, start)
}

// ParseItem reads a block item, including any report.
func ParseItem(e *stanza.Element) (Item, bool) {
	j, err := jid.Parse(e.Attribute("jid"))
	if err != nil {
		return Item{}, false
	}
	item := Item{JID: j}
	if report := e.Child(NSReporting, "report"); report != nil {
		item.Reason = ReportReason(report.Attribute("reason"))
		item.Text = report.ChildText("", "text")
		for _, sid := range report.ChildrenNamed(ns.SID, "stanza-id") {
			item.StanzaIDs = append(item.StanzaIDs, sid.Attribute("id"))
		}
	}
	return item, true
}
