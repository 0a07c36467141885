// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package blocklist

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"mellium.im/engine/conn"
	"mellium.im/engine/event"
	"mellium.im/engine/internal/logging"
	"mellium.im/engine/plugin"
	"mellium.im/engine/stanza"
	"mellium.im/xmpp/jid"
)

// EventKind describes a change to the blocklist.
type EventKind int8

// A list of blocklist changes.
const (
	Blocked EventKind = iota
	Unblocked
	Reset
)

// Event is published when the blocklist changes.
// JID is the zero value for Reset, which is sent after a fetch or when every
// address is unblocked at once.
type Event struct {
	Kind EventKind
	JID  jid.JID
}

// List keeps a local copy of the server side blocklist.
type List struct {
	c      *conn.Conn
	logger *logging.Logger
	feed   event.Feed[Event]

	mu          sync.Mutex
	blocked     map[string]jid.JID
	unsupported bool
	refs        []conn.HandlerRef
}

// New returns a blocklist plugin that sends over c.
func New(c *conn.Conn, logger *logging.Logger) *List {
	return &List{
		c:       c,
		logger:  logger.With("blocklist"),
		blocked: make(map[string]jid.JID),
	}
}

// ID satisfies plugin.Plugin.
func (l *List) ID() plugin.ID {
	return plugin.Blocklist
}

// Updates subscribes to changes.
func (l *List) Updates() (<-chan Event, func()) {
	return l.feed.Subscribe()
}

// BeforeOnline fetches the blocklist.
// Servers that do not implement blocking are not treated as an error.
func (l *List) BeforeOnline(ctx context.Context) error {
	err := l.Fetch(ctx)
	var se stanza.Error
	if errors.As(err, &se) && (se.Condition == stanza.FeatureNotImplemented || se.Condition == stanza.ServiceUnavailable) {
		l.logger.Debug("server does not support blocking: %v", se)
		l.mu.Lock()
		l.unsupported = true
		l.mu.Unlock()
		return nil
	}
	return err
}

// RegisterHandlers satisfies plugin.Registerer.
func (l *List) RegisterHandlers(c *conn.Conn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refs = append(l.refs,
		c.AddHandler(conn.Matcher{Name: "iq", NS: NS, Types: []string{string(stanza.SetIQ)}}, conn.HandlerFunc(l.handlePush)),
	)
}

// UnregisterHandlers satisfies plugin.Registerer.
func (l *List) UnregisterHandlers(c *conn.Conn) {
	l.mu.Lock()
	refs := l.refs
	l.refs = nil
	l.mu.Unlock()
	for _, ref := range refs {
		c.DeleteHandler(ref)
	}
}

// Supported reports whether the server answered the last fetch.
func (l *List) Supported() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.unsupported
}

// Fetch replaces the local copy with the blocklist stored on the server.
func (l *List) Fetch(ctx context.Context) error {
	resp, err := l.c.IQ(stanza.GetIQ, jid.JID{}).Cnode(stanza.NewElement(NS, "blocklist")).SendAwaitingResponse(ctx)
	if err != nil {
		return fmt.Errorf("blocklist: error fetching: %w", err)
	}
	blocked := make(map[string]jid.JID)
	for _, el := range resp.Child(NS, "blocklist").ChildrenNamed(NS, "item") {
		item, ok := ParseItem(el)
		if !ok {
			continue
		}
		blocked[item.JID.String()] = item.JID
	}
	l.mu.Lock()
	l.blocked = blocked
	l.unsupported = false
	l.mu.Unlock()
	l.feed.Publish(Event{Kind: Reset})
	return nil
}

// Blocked returns the blocked addresses sorted by their string form.
func (l *List) Blocked() []jid.JID {
	l.mu.Lock()
	out := make([]jid.JID, 0, len(l.blocked))
	for _, j := range l.blocked {
		out = append(out, j)
	}
	l.mu.Unlock()
	sort.Slice(out, func(i, k int) bool {
		return out[i].String() < out[k].String()
	})
	return out
}

// IsBlocked reports whether traffic from j is blocked by any entry.
func (l *List) IsBlocked(j jid.JID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, b := range l.blocked {
		if Match(j, b) {
			return true
		}
	}
	return false
}

// Block adds addresses to the blocklist, optionally reporting them.
// The local copy is updated by the push the server sends in response.
func (l *List) Block(ctx context.Context, items ...Item) error {
	if len(items) == 0 {
		return &conn.ConfigurationError{Op: "block", Err: errors.New("no addresses")}
	}
	payload := stanza.NewElement(NS, "block")
	for _, item := range items {
		payload.AddChild(item.Element())
	}
	_, err := l.c.IQ(stanza.SetIQ, jid.JID{}).Cnode(payload).SendAwaitingResponse(ctx)
	if err != nil {
		return fmt.Errorf("blocklist: error blocking: %w", err)
	}
	for _, item := range items {
		l.add(item.JID)
	}
	return nil
}

// Unblock removes addresses from the blocklist.
func (l *List) Unblock(ctx context.Context, jids ...jid.JID) error {
	if len(jids) == 0 {
		return &conn.ConfigurationError{Op: "unblock", Err: errors.New("no addresses, use UnblockAll")}
	}
	return l.unblock(ctx, jids)
}

// UnblockAll clears the blocklist.
func (l *List) UnblockAll(ctx context.Context) error {
	return l.unblock(ctx, nil)
}

func (l *List) unblock(ctx context.Context, jids []jid.JID) error {
	payload := stanza.NewElement(NS, "unblock")
	for _, j := range jids {
		payload.AddChild(Item{JID: j}.Element())
	}
	_, err := l.c.IQ(stanza.SetIQ, jid.JID{}).Cnode(payload).SendAwaitingResponse(ctx)
	if err != nil {
		return fmt.Errorf("blocklist: error unblocking: %w", err)
	}
	if len(jids) == 0 {
		l.clear()
	}
	for _, j := range jids {
		l.remove(j)
	}
	return nil
}

func (l *List) add(j jid.JID) {
	l.mu.Lock()
	_, known := l.blocked[j.String()]
	l.blocked[j.String()] = j
	l.mu.Unlock()
	if !known {
		l.feed.Publish(Event{Kind: Blocked, JID: j})
	}
}

func (l *List) remove(j jid.JID) {
	l.mu.Lock()
	_, known := l.blocked[j.String()]
	delete(l.blocked, j.String())
	l.mu.Unlock()
	if known {
		l.feed.Publish(Event{Kind: Unblocked, JID: j})
	}
}

func (l *List) clear() {
	l.mu.Lock()
	l.blocked = make(map[string]jid.JID)
	l.mu.Unlock()
	l.feed.Publish(Event{Kind: Reset})
}

func (l *List) handlePush(e *stanza.Element) bool {
	from := e.From()
	local := l.c.LocalAddr()
	if !from.Equal(jid.JID{}) && !from.Equal(local.Bare()) {
		l.logger.Warn("ignoring blocklist push from %s", from)
		err := l.c.Send(context.Background(), stanza.ErrorReply(e, stanza.Error{
			Type:      stanza.Cancel,
			Condition: stanza.Forbidden,
		}).Element())
		if err != nil {
			l.logger.Debug("error rejecting blocklist push: %v", err)
		}
		return true
	}

	var payload *stanza.Element
	block := true
	if payload = e.Child(NS, "block"); payload == nil {
		payload, block = e.Child(NS, "unblock"), false
	}
	if payload == nil {
		return false
	}
	items := payload.ChildrenNamed(NS, "item")
	switch {
	case !block && len(items) == 0:
		l.clear()
	default:
		for _, el := range items {
			item, ok := ParseItem(el)
			if !ok {
				continue
			}
			if block {
				l.add(item.JID)
			} else {
				l.remove(item.JID)
			}
		}
	}
	if err := l.c.Reply(e).Send(context.Background()); err != nil {
		l.logger.Debug("error acknowledging blocklist push: %v", err)
	}
	return true
}
