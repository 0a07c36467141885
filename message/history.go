// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package message

import (
	"sort"
	"sync"

	"mellium.im/engine/event"
	"mellium.im/engine/stanza"
)

// UpdateKind describes an entry in a history feed.
type UpdateKind int8

// A list of update kinds.
const (
	Added UpdateKind = iota
	StateChanged
	Cleared
)

// Update is published by a History when it changes.
// Message is the zero value for Cleared.
type Update struct {
	Kind    UpdateKind
	Message Message
}

// History is an ordered list of messages.
// Messages are kept sorted by time, and a message is only added once even if
// it is seen again under its stanza id or origin id.
// The id attribute of a stanza is not unique and is only used for lookups.
type History struct {
	mu   sync.RWMutex
	msgs []*Message
	// stanzaIDs and origins are the deduplication keys.
	stanzaIDs map[string]*Message
	origins   map[string]*Message
	// ids indexes id attributes and origin ids for Get and SetState.
	ids  map[string]*Message
	feed event.Feed[Update]
}

// NewHistory returns an empty history.
func NewHistory() *History {
	h := &History{}
	h.reset()
	return h
}

func (h *History) reset() {
	h.msgs = nil
	h.stanzaIDs = make(map[string]*Message)
	h.origins = make(map[string]*Message)
	h.ids = make(map[string]*Message)
}

// originKey scopes the origin id of m to its sender.
// Occupants of a room share a bare address so they are told apart by their
// full address.
func originKey(m *Message) string {
	var sender string
	switch {
	case m.Direction == Out:
	case m.Type == stanza.GroupChatMessage:
		sender = m.From.String()
	default:
		sender = m.From.Bare().String()
	}
	return sender + " " + m.OriginID
}

func (h *History) known(m *Message) *Message {
	if m.StanzaID != "" {
		if known, ok := h.stanzaIDs[m.StanzaID]; ok {
			return known
		}
	}
	if m.OriginID != "" {
		if known, ok := h.origins[originKey(m)]; ok {
			return known
		}
	}
	return nil
}

// index adds a lookup id, preferring outgoing messages since receipts and
// markers refer to the ids we sent.
func (h *History) index(id string, m *Message) {
	if id == "" {
		return
	}
	if cur, ok := h.ids[id]; ok && (cur.Direction == Out || m.Direction != Out) {
		return
	}
	h.ids[id] = m
}

func (h *History) lookup(id string) (*Message, bool) {
	if m, ok := h.stanzaIDs[id]; ok {
		return m, true
	}
	m, ok := h.ids[id]
	return m, ok
}

// Add inserts m at its position in time.
// It reports false and leaves the history untouched if m has a stanza id or
// origin id that is already known.
func (h *History) Add(m *Message) bool {
	h.mu.Lock()
	if known := h.known(m); known != nil {
		// The archive may be the first to tell us the stanza id of a message
		// we already have.
		if known.StanzaID == "" && m.StanzaID != "" {
			known.StanzaID = m.StanzaID
			h.stanzaIDs[m.StanzaID] = known
		}
		h.mu.Unlock()
		return false
	}
	if m.StanzaID != "" {
		h.stanzaIDs[m.StanzaID] = m
	}
	if m.OriginID != "" {
		h.origins[originKey(m)] = m
	}
	h.index(m.ID, m)
	h.index(m.OriginID, m)
	idx := sort.Search(len(h.msgs), func(i int) bool {
		return h.msgs[i].Time.After(m.Time)
	})
	h.msgs = append(h.msgs, nil)
	copy(h.msgs[idx+1:], h.msgs[idx:])
	h.msgs[idx] = m
	cp := *m
	h.mu.Unlock()

	h.feed.Publish(Update{Kind: Added, Message: cp})
	return true
}

// Known reports whether Add would treat m as a duplicate.
func (h *History) Known(m *Message) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.known(m) != nil
}

// Has reports whether a message with the provided stanza id, origin id, or id
// attribute is known.
func (h *History) Has(id string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.lookup(id)
	return ok
}

// Get returns a copy of the message with the provided stanza id, origin id, or
// id attribute.
func (h *History) Get(id string) (Message, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	m, ok := h.lookup(id)
	if !ok {
		return Message{}, false
	}
	return *m, true
}

// SetState advances the delivery state of the message with the provided id.
// It reports false if the message is unknown or already in the same or a later
// state.
func (h *History) SetState(id string, s DeliveryState) bool {
	h.mu.Lock()
	m, ok := h.lookup(id)
	if !ok || m.State >= s {
		h.mu.Unlock()
		return false
	}
	m.State = s
	cp := *m
	h.mu.Unlock()

	h.feed.Publish(Update{Kind: StateChanged, Message: cp})
	return true
}

// Len returns the number of messages.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.msgs)
}

// Messages returns copies of all messages in order.
func (h *History) Messages() []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Message, len(h.msgs))
	for i, m := range h.msgs {
		out[i] = *m
	}
	return out
}

// Oldest returns the first message.
func (h *History) Oldest() (Message, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.msgs) == 0 {
		return Message{}, false
	}
	return *h.msgs[0], true
}

// Newest returns the last message.
func (h *History) Newest() (Message, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.msgs) == 0 {
		return Message{}, false
	}
	return *h.msgs[len(h.msgs)-1], true
}

// After returns copies of the messages that follow the message with the
// provided id.
// If the id is unknown every message is returned.
func (h *History) After(id string) []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	start := 0
	if m, ok := h.lookup(id); ok {
		for i, cand := range h.msgs {
			if cand == m {
				start = i + 1
				break
			}
		}
	}
	out := make([]Message, 0, len(h.msgs)-start)
	for _, m := range h.msgs[start:] {
		out = append(out, *m)
	}
	return out
}

// Clear removes all messages.
func (h *History) Clear() {
	h.mu.Lock()
	h.reset()
	h.mu.Unlock()
	h.feed.Publish(Update{Kind: Cleared})
}

// Updates subscribes to changes.
func (h *History) Updates() (<-chan Update, func()) {
	return h.feed.Subscribe()
}
