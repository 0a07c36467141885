// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package chat implements one-to-one messaging.
//
// Outgoing messages carry an origin id, a delivery receipt request, and a
// markable chat marker.
// Their delivery state moves from sending to sent once they are handed to the
// transport, to recipient_received when a receipt or received marker comes
// back, and to recipient_seen on a displayed marker.
// Incoming messages are added to the history of the sending contact and their
// receipt requests are answered.
package chat // import "mellium.im/engine/chat"

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"mellium.im/engine/conn"
	"mellium.im/engine/internal/logging"
	"mellium.im/engine/internal/ns"
	"mellium.im/engine/message"
	"mellium.im/engine/plugin"
	"mellium.im/engine/roster"
	"mellium.im/engine/stanza"
	"mellium.im/xmpp/jid"
)

// Various namespaces used by this package, provided as a convenience.
const (
	NSReceipts = ns.Receipts
	NSMarkers  = ns.Markers
)

var errEmptyBody = errors.New("chat: message body is empty")

// Chat sends and receives one-to-one messages.
type Chat struct {
	c        *conn.Conn
	contacts *roster.Contacts
	logger   *logging.Logger
	now      func() time.Time

	mu   sync.Mutex
	refs []conn.HandlerRef
}

// New returns a chat plugin that sends over c and records messages in the
// histories of contacts.
func New(c *conn.Conn, contacts *roster.Contacts, logger *logging.Logger) *Chat {
	return &Chat{
		c:        c,
		contacts: contacts,
		logger:   logger.With("chat"),
		now:      time.Now,
	}
}

// ID satisfies plugin.Plugin.
func (ch *Chat) ID() plugin.ID {
	return plugin.Chat
}

// RegisterHandlers satisfies plugin.Registerer.
func (ch *Chat) RegisterHandlers(c *conn.Conn) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if len(ch.refs) > 0 {
		return
	}
	ch.refs = append(ch.refs, c.AddHandler(conn.Matcher{
		Name:  "message",
		Types: []string{"", string(stanza.ChatMessage), string(stanza.NormalMessage)},
	}, conn.HandlerFunc(ch.handleMessage)))
}

// UnregisterHandlers satisfies plugin.Registerer.
func (ch *Chat) UnregisterHandlers(c *conn.Conn) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	for _, ref := range ch.refs {
		c.DeleteHandler(ref)
	}
	ch.refs = nil
}

// Conversation returns the conversation with the bare form of with.
func (ch *Chat) Conversation(with jid.JID) *Conversation {
	return &Conversation{
		account: ch.c.LocalAddr().Bare(),
		with:    with.Bare(),
		h:       ch.contacts.History(with),
	}
}

// Send sends a chat message and adds it to the history of the recipient.
// The returned message is a copy taken after the message was handed to the
// transport.
func (ch *Chat) Send(ctx context.Context, to jid.JID, body string) (*message.Message, error) {
	if body == "" {
		return nil, &conn.ConfigurationError{Op: "send message", Err: errEmptyBody}
	}
	if to.Equal(jid.JID{}) {
		return nil, &conn.ConfigurationError{Op: "send message", Err: errors.New("chat: missing recipient")}
	}
	id := uuid.NewString()
	m := &message.Message{
		ID:        id,
		OriginID:  id,
		From:      ch.c.LocalAddr(),
		To:        to,
		Type:      stanza.ChatMessage,
		Direction: message.Out,
		Body:      body,
		Time:      ch.now(),
		State:     message.StateSending,
	}
	e := ch.c.Message(stanza.ChatMessage, to).
		Attrs(stanza.Attrs{"id": id}).
		C("body", nil, body).Up().
		Cnode(message.OriginIDElement(id)).
		Cnode(Requested{}.Element()).
		Cnode(Marker{Kind: Markable}.Element()).
		Element()

	h := ch.contacts.History(to)
	h.Add(m)
	if err := ch.c.Send(ctx, e); err != nil {
		sent, _ := h.Get(id)
		return &sent, err
	}
	h.SetState(id, message.StateSent)
	sent, _ := h.Get(id)
	return &sent, nil
}

// MarkDisplayed tells the sender of m that it has been displayed.
// Messages that did not ask for chat markers are ignored.
func (ch *Chat) MarkDisplayed(ctx context.Context, m message.Message) error {
	if m.Direction != message.In || m.ID == "" {
		return nil
	}
	return ch.c.Message(stanza.ChatMessage, m.From.Bare()).
		Cnode(Marker{Kind: Displayed, ID: m.ID}.Element()).
		Send(ctx)
}

// HandleCarbon satisfies carbons.Handler.
// Sent copies are recorded as outgoing messages to their recipient.
func (ch *Chat) HandleCarbon(msg *stanza.Element, sent bool) {
	typ := stanza.MessageType(msg.Type())
	if typ == stanza.GroupChatMessage || typ == stanza.ErrorMessage {
		return
	}
	if sent {
		if msg.ChildText("", "body") == "" {
			return
		}
		to := msg.To()
		m := message.Parse(msg, ch.c.LocalAddr().Bare(), ch.now())
		m.Direction = message.Out
		m.State = message.StateSent
		ch.contacts.History(to).Add(m)
		return
	}
	ch.receive(msg, false)
}

func (ch *Chat) handleMessage(e *stanza.Element) bool {
	from := e.From()
	if from.Equal(jid.JID{}) || from.Bare().Equal(ch.c.LocalAddr().Bare()) {
		return false
	}
	// Invitations are left to the room plugin.
	if e.Child(ns.MUCUser, "x") != nil || e.Child(ns.Conference, "x") != nil {
		return false
	}
	return ch.receive(e, true)
}

// receive applies an incoming message and reports whether it was used.
func (ch *Chat) receive(e *stanza.Element, answer bool) bool {
	from := e.From()
	handled := false

	if r, ok := ParseReceipt(e); ok {
		ch.advance(from, r.ID, message.StateReceived)
		handled = true
	}
	if mk, ok := ParseMarker(e); ok {
		switch mk.Kind {
		case Delivered:
			ch.advance(from, mk.ID, message.StateReceived)
			handled = true
		case Displayed, Acknowledged:
			ch.seen(from, mk.ID)
			handled = true
		}
	}

	if e.ChildText("", "body") == "" {
		return handled
	}
	m := message.Parse(e, ch.c.LocalAddr().Bare(), ch.now())
	m.Direction = message.In
	if !ch.contacts.History(from).Add(m) {
		ch.logger.Debug("duplicate message %q from %s", m.ID, from)
	}
	if answer && WantsReceipt(e) && e.ID() != "" {
		err := ch.c.Message(stanza.MessageType(e.Type()), from).
			Attrs(stanza.Attrs{"id": uuid.NewString()}).
			Cnode(Receipt{ID: e.ID()}.Element()).
			Send(context.Background())
		if err != nil {
			ch.logger.Warn("error sending receipt to %s: %v", from, err)
		}
	}
	return true
}

func (ch *Chat) advance(from jid.JID, id string, s message.DeliveryState) {
	if id == "" {
		return
	}
	ch.contacts.History(from).SetState(id, s)
}

// seen marks the message with the provided id and every earlier outgoing
// message as displayed.
func (ch *Chat) seen(from jid.JID, id string) {
	if id == "" {
		return
	}
	h := ch.contacts.History(from)
	if !h.Has(id) {
		return
	}
	for _, m := range h.Messages() {
		if m.Direction == message.Out && m.ID != "" {
			h.SetState(m.ID, message.StateSeen)
		}
		if m.ID == id || m.OriginID == id || m.StanzaID == id {
			break
		}
	}
}

// Conversation is a one-to-one conversation whose history can be loaded from
// the archive of the local account.
type Conversation struct {
	account jid.JID
	with    jid.JID
	h       *message.History
}

// Archive returns the bare address of the local account.
func (cv *Conversation) Archive() jid.JID {
	return cv.account
}

// With returns the bare address of the contact.
func (cv *Conversation) With() jid.JID {
	return cv.with
}

// History returns the history of the contact.
func (cv *Conversation) History() *message.History {
	return cv.h
}

// HandleArchived adds an archived message to the history.
// Messages sent from the local account are outgoing and already sent.
func (cv *Conversation) HandleArchived(m *message.Message, _ *stanza.Element) {
	if m.Body == "" {
		return
	}
	if m.From.Bare().Equal(cv.account) {
		m.Direction = message.Out
		m.State = message.StateSent
	} else {
		m.Direction = message.In
	}
	cv.h.Add(m)
}
