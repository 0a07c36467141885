// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package ns provides namespace constants that are shared between the engine
// packages.
package ns // import "mellium.im/engine/internal/ns"

// List of commonly used namespaces.
const (
	Client      = "jabber:client"
	Stanza      = "urn:ietf:params:xml:ns:xmpp-stanzas"
	XML         = "http://www.w3.org/XML/1998/namespace"
	Roster      = "jabber:iq:roster"
	Delay       = "urn:xmpp:delay"
	Forward     = "urn:xmpp:forward:0"
	SID         = "urn:xmpp:sid:0"
	Receipts    = "urn:xmpp:receipts"
	Markers     = "urn:xmpp:chat-markers:0"
	XData       = "jabber:x:data"
	RSM         = "http://jabber.org/protocol/rsm"
	MUC         = "http://jabber.org/protocol/muc"
	MUCUser     = "http://jabber.org/protocol/muc#user"
	MUCAdmin    = "http://jabber.org/protocol/muc#admin"
	MUCOwner    = "http://jabber.org/protocol/muc#owner"
	MAM         = "urn:xmpp:mam:2"
	DiscoInfo   = "http://jabber.org/protocol/disco#info"
	DiscoItems  = "http://jabber.org/protocol/disco#items"
	PubSub      = "http://jabber.org/protocol/pubsub"
	PubSubEvent = "http://jabber.org/protocol/pubsub#event"
	Carbons     = "urn:xmpp:carbons:2"
	Ping        = "urn:xmpp:ping"
	Blocking    = "urn:xmpp:blocking"
	Upload      = "urn:xmpp:http:upload:0"
	Conference  = "jabber:x:conference"
	Caps        = "http://jabber.org/protocol/caps"
	PubSubOwner = "http://jabber.org/protocol/pubsub#owner"
	MDS         = "urn:xmpp:mds:displayed:0"
)
