// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stanza

import (
	"mellium.im/engine/internal/ns"
)

// IQType is the type attribute of an IQ.
type IQType string

// Request IQs are get or set and are always answered with a result or an
// error.
const (
	GetIQ    IQType = "get"
	SetIQ    IQType = "set"
	ResultIQ IQType = "result"
	ErrorIQ  IQType = "error"
)

// MessageType is the type attribute of a message.
type MessageType string

// Message types.
// A missing type attribute means NormalMessage.
const (
	NormalMessage    MessageType = "normal"
	ChatMessage      MessageType = "chat"
	GroupChatMessage MessageType = "groupchat"
	HeadlineMessage  MessageType = "headline"
	ErrorMessage     MessageType = "error"
)

// PresenceType is the type attribute of a presence.
type PresenceType string

// Presence types.
// An available presence has no type attribute at all.
const (
	AvailablePresence   PresenceType = ""
	UnavailablePresence PresenceType = "unavailable"
	ErrorPresence       PresenceType = "error"
	ProbePresence       PresenceType = "probe"

	// Subscription management, see the roster package.
	SubscribePresence    PresenceType = "subscribe"
	SubscribedPresence   PresenceType = "subscribed"
	UnsubscribePresence  PresenceType = "unsubscribe"
	UnsubscribedPresence PresenceType = "unsubscribed"
)

// Is reports whether e is an iq, message or presence in the client namespace.
// An empty namespace counts as the client namespace.
func Is(e *Element) bool {
	if e == nil || (e.Name.Space != ns.Client && e.Name.Space != "") {
		return false
	}
	switch e.Name.Local {
	case "iq", "message", "presence":
		return true
	}
	return false
}

// IsIQ reports whether e is an IQ of one of the provided types.
// If no types are provided any IQ matches.
func IsIQ(e *Element, types ...IQType) bool {
	if !Is(e) || e.Name.Local != "iq" {
		return false
	}
	typ := IQType(e.Type())
	for _, t := range types {
		if typ == t {
			return true
		}
	}
	return len(types) == 0
}
