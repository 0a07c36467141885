// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package engine is a client side XMPP session.
//
// A Session owns one connection to a server and the set of protocol
// extensions layered on top of it: the roster, one to one chats with delivery
// receipts and chat markers, multi-user chat, message archives, blocking,
// read positions that are shared between clients, keepalive pings and file
// upload slots.
// All of them share the lifecycle of the connection: state that is only
// meaningful for a single stream is dropped when the connection goes offline
// and fetched again before the next initial presence is sent.
//
// Sessions are configured with an explicit Context, there is no package level
// state:
//
//	logger, err := logging.New(cfg.Logging.Logger())
//	…
//	s, err := engine.Dial(engine.Context{Logger: logger, Config: cfg})
//	…
//	err = s.Login(ctx)
//
// Changes are observed by subscribing to the feeds returned by States,
// Contacts, Rooms, Occupants and Messages.
// Every feed is buffered and never blocks the connection; subscribers must
// call the returned cancel function when they are done.
package engine // import "mellium.im/engine"
