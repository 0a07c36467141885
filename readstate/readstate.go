// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package readstate keeps track of the last message displayed in every
// conversation across all of the clients of an account.
//
// The position is stored on the server as an item of a private node of the
// account, keyed by the bare address of the conversation.
// Items hold the stanza id that the conversation's archive assigned to the
// last displayed message.
package readstate // import "mellium.im/engine/readstate"

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"mellium.im/engine/conn"
	"mellium.im/engine/event"
	"mellium.im/engine/internal/logging"
	"mellium.im/engine/internal/ns"
	"mellium.im/engine/message"
	"mellium.im/engine/plugin"
	"mellium.im/engine/pubsub"
	"mellium.im/engine/stanza"
	"mellium.im/xmpp/jid"
)

// NS is both the node and the namespace of its payloads.
const NS = ns.MDS

// Displayed is the position of the last displayed message in a conversation.
type Displayed struct {
	// Conversation is the bare address of the contact or room.
	Conversation jid.JID

	// StanzaID is the id assigned by By.
	StanzaID string

	// By is the archive that assigned StanzaID, the local account for one to
	// one chats and the room for group chats.
	By jid.JID
}

// Item returns d as a pubsub item.
func (d Displayed) Item() pubsub.Item {
	payload := stanza.NewElement(NS, "displayed")
	payload.AddChild(stanza.NewElement(ns.SID, "stanza-id").
		SetAttr("id", d.StanzaID).
		SetAttr("by", d.By.String()))
	return pubsub.Item{
		ID:      d.Conversation.Bare().String(),
		Payload: payload,
	}
}

// ParseDisplayed reads a position from a pubsub item.
func ParseDisplayed(item pubsub.Item) (Displayed, bool) {
	conv, err := jid.Parse(item.ID)
	if err != nil || item.Payload == nil {
		return Displayed{}, false
	}
	if item.Payload.Name.Space != NS || item.Payload.Name.Local != "displayed" {
		return Displayed{}, false
	}
	sid := item.Payload.Child(ns.SID, "stanza-id")
	if sid == nil || sid.Attribute("id") == "" {
		return Displayed{}, false
	}
	by, err := jid.Parse(sid.Attribute("by"))
	if err != nil {
		return Displayed{}, false
	}
	return Displayed{
		Conversation: conv.Bare(),
		StanzaID:     sid.Attribute("id"),
		By:           by,
	}, true
}

// Sync keeps the local copy of the read positions of the account.
type Sync struct {
	c      *conn.Conn
	logger *logging.Logger
	feed   event.Feed[Displayed]

	mu        sync.Mutex
	displayed map[string]Displayed
}

// New returns a plugin that reads and writes positions over c and applies the
// notifications received by n.
func New(c *conn.Conn, n *pubsub.Notifier, logger *logging.Logger) *Sync {
	s := &Sync{
		c:         c,
		logger:    logger.With("readstate"),
		displayed: make(map[string]Displayed),
	}
	n.Handle(NS, s.handleEvent)
	return s
}

// ID satisfies plugin.Plugin.
func (s *Sync) ID() plugin.ID {
	return plugin.ReadState
}

// BeforeOnline satisfies plugin.BeforeOnliner by fetching every position.
func (s *Sync) BeforeOnline(ctx context.Context) error {
	return s.Fetch(ctx)
}

// Updates subscribes to position changes, whether made locally or by another
// client.
func (s *Sync) Updates() (<-chan Displayed, func()) {
	return s.feed.Subscribe()
}

// Fetch replaces the local positions with those stored on the server.
// A missing node is treated as an empty one.
func (s *Sync) Fetch(ctx context.Context) error {
	res, err := pubsub.Fetch(ctx, s.c, jid.JID{}, pubsub.Query{Node: NS})
	switch {
	case errors.Is(err, stanza.Error{Condition: stanza.ItemNotFound}):
		res = pubsub.Result{}
	case err != nil:
		return fmt.Errorf("readstate: error fetching positions: %w", err)
	}
	fetched := make(map[string]Displayed, len(res.Items))
	for _, item := range res.Items {
		d, ok := ParseDisplayed(item)
		if !ok {
			s.logger.Debug("skipping malformed item %q", item.ID)
			continue
		}
		fetched[d.Conversation.String()] = d
	}
	s.mu.Lock()
	s.displayed = fetched
	s.mu.Unlock()
	for _, d := range fetched {
		s.feed.Publish(d)
	}
	return nil
}

// Displayed returns the position in the conversation with the bare form of
// conv.
func (s *Sync) Displayed(conv jid.JID) (Displayed, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.displayed[conv.Bare().String()]
	return d, ok
}

// MarkRead stores d on the server and, once accepted, locally.
func (s *Sync) MarkRead(ctx context.Context, d Displayed) error {
	if d.StanzaID == "" {
		return &conn.ConfigurationError{Op: "mark read", Err: errors.New("readstate: missing stanza id")}
	}
	d.Conversation = d.Conversation.Bare()
	_, err := pubsub.Publish(ctx, s.c, jid.JID{}, NS, d.Item(), pubsub.PrivateOptions())
	if err != nil {
		return fmt.Errorf("readstate: error storing position in %s: %w", d.Conversation, err)
	}
	s.set(d)
	return nil
}

// Unread counts the incoming messages in h after the displayed position of
// conv.
// If no position is known every incoming message is unread.
func (s *Sync) Unread(conv jid.JID, h *message.History) int {
	var after []message.Message
	if d, ok := s.Displayed(conv); ok {
		after = h.After(d.StanzaID)
	} else {
		after = h.Messages()
	}
	n := 0
	for _, m := range after {
		if m.Direction == message.In {
			n++
		}
	}
	return n
}

func (s *Sync) set(d Displayed) {
	s.mu.Lock()
	old, ok := s.displayed[d.Conversation.String()]
	s.displayed[d.Conversation.String()] = d
	s.mu.Unlock()
	if !ok || old.StanzaID != d.StanzaID || !old.By.Equal(d.By) {
		s.feed.Publish(d)
	}
}

func (s *Sync) handleEvent(ev pubsub.Event) {
	local := s.c.LocalAddr().Bare()
	if !ev.From.Equal(jid.JID{}) && !ev.From.Equal(local) {
		s.logger.Warn("ignoring read positions from %s", ev.From)
		return
	}
	switch ev.Kind {
	case pubsub.ItemsPublished:
		for _, item := range ev.Items {
			d, ok := ParseDisplayed(item)
			if !ok {
				s.logger.Debug("skipping malformed item %q", item.ID)
				continue
			}
			s.set(d)
		}
	case pubsub.ItemsRetracted:
		s.mu.Lock()
		for _, id := range ev.Retracted {
			if conv, err := jid.Parse(id); err == nil {
				delete(s.displayed, conv.Bare().String())
			}
		}
		s.mu.Unlock()
	case pubsub.NodePurged, pubsub.NodeDeleted:
		s.mu.Lock()
		s.displayed = make(map[string]Displayed)
		s.mu.Unlock()
	}
}
