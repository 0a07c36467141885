// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package stanza contains the element tree used throughout the engine, a fluent
// builder for constructing stanzas, and stanza level errors.
//
// Stanzas (Message, Presence, and IQ) are the "primitives" of XMPP. Messages
// are used to send data that is fire-and-forget such as chat messages, Presence
// is used as a general broadcast and publish-subscribe mechanism and is used to
// broadcast availability on the network, and IQ (Info-Query) is used as a
// request response mechanism for data that requires a response.
//
// Plugins never talk to the transport directly.
// Instead they build an Element (usually with a Builder) and hand it to
// whatever Sender the builder was bound to, which lets the same plugin code run
// over any transport that can carry an Element.
package stanza // import "mellium.im/engine/stanza"
