// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package message contains the message entity shared by one-to-one chats,
// rooms, and the archive, along with an ordered history that deduplicates
// messages by their protocol ids.
package message // import "mellium.im/engine/message"

import (
	"time"

	"mellium.im/engine/delay"
	"mellium.im/engine/internal/ns"
	"mellium.im/engine/stanza"
	"mellium.im/xmpp/jid"
)

// Direction is the direction of a message relative to the local user.
type Direction int8

// A list of directions.
const (
	In Direction = iota
	Out
)

func (d Direction) String() string {
	if d == Out {
		return "out"
	}
	return "in"
}

// DeliveryState tracks an outgoing message.
// States only ever move forward.
type DeliveryState int8

// A list of delivery states.
// StateUnknown is used for incoming messages.
const (
	StateUnknown DeliveryState = iota
	StateSending
	StateSent
	StateReceived
	StateSeen
)

func (s DeliveryState) String() string {
	switch s {
	case StateSending:
		return "sending"
	case StateSent:
		return "sent"
	case StateReceived:
		return "recipient_received"
	case StateSeen:
		return "recipient_seen"
	}
	return "unknown"
}

// Message is a chat or groupchat message.
type Message struct {
	// ID is the id attribute of the stanza.
	ID string
	// OriginID is the id assigned by the sending client.
	OriginID string
	// StanzaID is the id assigned by the archive that stored the message.
	StanzaID string

	From      jid.JID
	To        jid.JID
	Type      stanza.MessageType
	Direction Direction
	Body      string
	Time      time.Time

	Delayed     bool
	FromArchive bool
	State       DeliveryState
}

// Parse extracts a message from a message stanza.
// The direction is left as In and State as StateUnknown.
// If the message carries a delay its timestamp is used and Delayed is set,
// otherwise Time is set to now.
// StanzaIDs are only accepted when assigned by archive, which is usually the
// bare address of the recipient or the room.
func Parse(e *stanza.Element, archive jid.JID, now time.Time) *Message {
	m := &Message{
		ID:   e.ID(),
		From: e.From(),
		To:   e.To(),
		Type: stanza.MessageType(e.Type()),
		Body: e.ChildText("", "body"),
		Time: now,
	}
	if m.Type == "" {
		m.Type = stanza.NormalMessage
	}
	if origin := e.Child(ns.SID, "origin-id"); origin != nil {
		m.OriginID = origin.Attribute("id")
	}
	for _, sid := range e.ChildrenNamed(ns.SID, "stanza-id") {
		by, err := jid.Parse(sid.Attribute("by"))
		if err == nil && by.Equal(archive) {
			m.StanzaID = sid.Attribute("id")
			break
		}
	}
	if d, ok := delay.Parse(e); ok {
		m.Time = d.Time
		m.Delayed = true
	}
	return m
}

// OriginIDElement returns an origin-id element with the provided id.
func OriginIDElement(id string) *stanza.Element {
	return stanza.NewElement(ns.SID, "origin-id").SetAttr("id", id)
}
