// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package pubsub implements data storage using a publish–subscribe pattern.
//
// Items are published to nodes on a pubsub service or on the personal
// eventing service of an account, which is addressed with the zero JID.
// Notifications of changes to nodes are published on the feed of a Notifier.
package pubsub // import "mellium.im/engine/pubsub"

import (
	"mellium.im/engine/internal/ns"
)

// Various namespaces used by this package, provided as a convenience.
const (
	NS               = ns.PubSub
	NSErrors         = ns.PubSub + "#errors"
	NSEvent          = ns.PubSubEvent
	NSOwner          = ns.PubSubOwner
	NSPaging         = ns.PubSub + "#rsm"
	NSPublishOptions = ns.PubSub + "#publish-options"
	NSNodeConfig     = ns.PubSub + "#node_config"
)
