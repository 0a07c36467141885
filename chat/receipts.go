// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package chat

import (
	"encoding/xml"

	"mellium.im/engine/stanza"
)

// Requested asks the recipient of a message for a delivery receipt.
type Requested struct{}

// Element returns the <request/> element.
func (Requested) Element() *stanza.Element {
	return stanza.NewElement(NSReceipts, "request")
}

// MarshalXML implements xml.Marshaler.
func (r Requested) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	return r.Element().MarshalXML(e, start)
}

// WantsReceipt reports whether msg asks for a delivery receipt.
func WantsReceipt(msg *stanza.Element) bool {
	return msg.Child(NSReceipts, "request") != nil
}

// Receipt confirms delivery of the message with the given id.
type Receipt struct {
	ID string
}

// Element returns the <received/> element.
func (r Receipt) Element() *stanza.Element {
	return stanza.NewElement(NSReceipts, "received").SetAttr("id", r.ID)
}

// MarshalXML implements xml.Marshaler.
func (r Receipt) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	return r.Element().MarshalXML(e, start)
}

// ParseReceipt returns the receipt carried by msg.
func ParseReceipt(msg *stanza.Element) (Receipt, bool) {
	r := msg.Child(NSReceipts, "received")
	if r == nil {
		return Receipt{}, false
	}
	return Receipt{ID: r.Attribute("id")}, true
}

// MarkerKind is the element name of a chat marker.
type MarkerKind string

// Chat markers, in the order they are looked for in a message.
// Markable is put on outgoing messages to ask for the others.
const (
	Displayed    MarkerKind = "displayed"
	Delivered    MarkerKind = "received"
	Acknowledged MarkerKind = "acknowledged"
	Markable     MarkerKind = "markable"
)

var markerKinds = [...]MarkerKind{Displayed, Delivered, Acknowledged, Markable}

// Marker is a chat marker.
// ID names the marked message and is empty for Markable.
type Marker struct {
	Kind MarkerKind
	ID   string
}

// Element returns the marker element.
func (m Marker) Element() *stanza.Element {
	return stanza.NewElement(NSMarkers, string(m.Kind)).SetAttr("id", m.ID)
}

// MarshalXML implements xml.Marshaler.
func (m Marker) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	return m.Element().MarshalXML(e, start)
}

// ParseMarker returns the first chat marker in a message.
func ParseMarker(msg *stanza.Element) (Marker, bool) {
	for _, kind := range markerKinds {
		if e := msg.Child(NSMarkers, string(kind)); e != nil {
			return Marker{Kind: kind, ID: e.Attribute("id")}, true
		}
	}
	return Marker{}, false
}
