// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package pubsub

import (
	"sync"

	"mellium.im/engine/conn"
	"mellium.im/engine/event"
	"mellium.im/engine/internal/logging"
	"mellium.im/engine/plugin"
	"mellium.im/engine/stanza"
	"mellium.im/xmpp/jid"
)

// EventKind is the kind of change to a node.
type EventKind uint8

// A list of event kinds.
const (
	ItemsPublished EventKind = iota
	ItemsRetracted
	NodePurged
	NodeDeleted
)

func (k EventKind) String() string {
	switch k {
	case ItemsPublished:
		return "published"
	case ItemsRetracted:
		return "retracted"
	case NodePurged:
		return "purged"
	case NodeDeleted:
		return "deleted"
	}
	return "unknown"
}

// Event is a notification about a change to a node.
// Items is set for ItemsPublished, Retracted for ItemsRetracted.
type Event struct {
	Kind      EventKind
	From      jid.JID
	Node      string
	Items     []Item
	Retracted []string
}

// ParseEvents returns the notifications carried by a message.
// A single message may both publish and retract items.
func ParseEvents(msg *stanza.Element) []Event {
	ev := msg.Child(NSEvent, "event")
	if ev == nil {
		return nil
	}
	from := msg.From()
	var out []Event
	for _, items := range ev.ChildrenNamed(NSEvent, "items") {
		node := items.Attribute("node")
		published := Event{Kind: ItemsPublished, From: from, Node: node}
		for _, item := range items.ChildrenNamed(NSEvent, "item") {
			published.Items = append(published.Items, ParseItem(item))
		}
		if len(published.Items) > 0 {
			out = append(out, published)
		}
		retracted := Event{Kind: ItemsRetracted, From: from, Node: node}
		for _, r := range items.ChildrenNamed(NSEvent, "retract") {
			retracted.Retracted = append(retracted.Retracted, r.Attribute("id"))
		}
		if len(retracted.Retracted) > 0 {
			out = append(out, retracted)
		}
	}
	for _, p := range ev.ChildrenNamed(NSEvent, "purge") {
		out = append(out, Event{Kind: NodePurged, From: from, Node: p.Attribute("node")})
	}
	for _, d := range ev.ChildrenNamed(NSEvent, "delete") {
		out = append(out, Event{Kind: NodeDeleted, From: from, Node: d.Attribute("node")})
	}
	return out
}

// Notifier publishes the node notifications received over a connection.
type Notifier struct {
	logger *logging.Logger
	feed   event.Feed[Event]

	mu       sync.Mutex
	ref      conn.HandlerRef
	on       bool
	handlers map[string][]func(Event)
}

// NewNotifier returns a pubsub plugin.
func NewNotifier(logger *logging.Logger) *Notifier {
	return &Notifier{logger: logger.With("pubsub")}
}

// ID satisfies plugin.Plugin.
func (n *Notifier) ID() plugin.ID {
	return plugin.PubSub
}

// Events subscribes to notifications.
func (n *Notifier) Events() (<-chan Event, func()) {
	return n.feed.Subscribe()
}

// Handle calls h for every notification about node before it is published on
// the feed.
// The handler runs on the connection's dispatch goroutine and must not block.
func (n *Notifier) Handle(node string, h func(Event)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.handlers == nil {
		n.handlers = make(map[string][]func(Event))
	}
	n.handlers[node] = append(n.handlers[node], h)
}

// RegisterHandlers satisfies plugin.Registerer.
func (n *Notifier) RegisterHandlers(c *conn.Conn) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.on {
		return
	}
	n.ref = c.AddHandler(conn.Matcher{Name: "message", NS: NSEvent}, conn.HandlerFunc(n.handleMessage))
	n.on = true
}

// UnregisterHandlers satisfies plugin.Registerer.
func (n *Notifier) UnregisterHandlers(c *conn.Conn) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.on {
		return
	}
	c.DeleteHandler(n.ref)
	n.on = false
}

func (n *Notifier) handleMessage(e *stanza.Element) bool {
	if stanza.MessageType(e.Type()) == stanza.ErrorMessage {
		return false
	}
	events := ParseEvents(e)
	if len(events) == 0 {
		return false
	}
	for _, ev := range events {
		n.logger.Debug("%s on %s from %s", ev.Kind, ev.Node, ev.From)
		n.mu.Lock()
		handlers := n.handlers[ev.Node]
		n.mu.Unlock()
		for _, h := range handlers {
			h(ev)
		}
		n.feed.Publish(ev)
	}
	return true
}
