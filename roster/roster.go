// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package roster implements the contact list and presence subscriptions.
package roster // import "mellium.im/engine/roster"

import (
	"context"
	"fmt"
	"sync"

	"mellium.im/engine/conn"
	"mellium.im/engine/internal/logging"
	"mellium.im/engine/internal/ns"
	"mellium.im/engine/plugin"
	"mellium.im/engine/stanza"
	"mellium.im/xmpp/jid"
)

// Roster keeps the contacts registry in sync with the server side roster and
// with incoming presence.
type Roster struct {
	c        *conn.Conn
	contacts *Contacts
	logger   *logging.Logger

	mu   sync.Mutex
	ver  string
	own  map[string]Presence
	refs []conn.HandlerRef
}

// New returns a roster plugin that sends over c and records contacts in
// contacts.
func New(c *conn.Conn, contacts *Contacts, logger *logging.Logger) *Roster {
	return &Roster{
		c:        c,
		contacts: contacts,
		logger:   logger.With("roster"),
		own:      make(map[string]Presence),
	}
}

// ID satisfies plugin.Plugin.
func (r *Roster) ID() plugin.ID {
	return plugin.Roster
}

// Contacts returns the registry updated by the roster.
func (r *Roster) Contacts() *Contacts {
	return r.contacts
}

// BeforeOnline fetches the roster.
func (r *Roster) BeforeOnline(ctx context.Context) error {
	return r.Fetch(ctx)
}

// RegisterHandlers satisfies plugin.Registerer.
func (r *Roster) RegisterHandlers(c *conn.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refs = append(r.refs,
		c.AddHandler(conn.Matcher{Name: "iq", NS: NS, Types: []string{string(stanza.SetIQ)}}, conn.HandlerFunc(r.handlePush)),
		c.AddHandler(conn.Matcher{Name: "presence"}, conn.HandlerFunc(r.handlePresence)),
	)
}

// UnregisterHandlers satisfies plugin.Registerer.
func (r *Roster) UnregisterHandlers(c *conn.Conn) {
	r.mu.Lock()
	refs := r.refs
	r.refs = nil
	r.mu.Unlock()
	for _, ref := range refs {
		c.DeleteHandler(ref)
	}
}

// Offline forgets all presence, which is only valid for a single stream.
func (r *Roster) Offline() {
	r.mu.Lock()
	r.own = make(map[string]Presence)
	r.mu.Unlock()
	r.contacts.clearResources()
}

// Forget drops every contact along with the roster version, so that the next
// fetch asks for the full roster.
func (r *Roster) Forget() {
	r.mu.Lock()
	r.ver = ""
	r.own = make(map[string]Presence)
	r.mu.Unlock()
	r.contacts.Clear()
}

// Ver returns the last roster version received from the server.
func (r *Roster) Ver() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ver
}

// OwnResources returns the other online resources of the local account.
func (r *Roster) OwnResources() map[string]Presence {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Presence, len(r.own))
	for k, v := range r.own {
		out[k] = v
	}
	return out
}

// Fetch requests the roster and updates the contacts registry.
// If a version was stored previously it is sent, and an empty response is
// taken to mean that nothing changed.
func (r *Roster) Fetch(ctx context.Context) error {
	ver := r.Ver()
	q := query(ver, ver != "")
	resp, err := r.c.IQ(stanza.GetIQ, jid.JID{}).Cnode(q).SendAwaitingResponse(ctx)
	if err != nil {
		return fmt.Errorf("roster: error fetching roster: %w", err)
	}
	payload := resp.Child(NS, "query")
	if payload == nil {
		return nil
	}

	seen := make(map[string]struct{})
	for _, el := range payload.ChildrenNamed(NS, "item") {
		item, ok := ParseItem(el)
		if !ok || item.Subscription == Remove {
			continue
		}
		seen[item.JID.String()] = struct{}{}
		r.contacts.Update(item.JID, func(c *Contact) {
			applyItem(c, item)
		})
	}
	for _, c := range r.contacts.All() {
		if _, ok := seen[c.JID.String()]; ok || !c.InRoster {
			continue
		}
		r.contacts.Update(c.JID, func(c *Contact) {
			applyItem(c, Item{Subscription: Remove})
		})
	}

	if v := payload.Attribute("ver"); v != "" {
		r.mu.Lock()
		r.ver = v
		r.mu.Unlock()
	}
	r.logger.Debug("fetched %d roster items", len(seen))
	return nil
}

func applyItem(c *Contact, item Item) {
	if item.Subscription == Remove {
		c.InRoster = false
		c.Name = ""
		c.Groups = nil
		c.Subscription = None
		c.PendingOut = false
		return
	}
	c.InRoster = true
	c.Name = item.Name
	c.Groups = item.Groups
	c.Subscription = item.Subscription
	if c.Subscription == "" {
		c.Subscription = None
	}
	c.PendingOut = item.Ask
}

// AddContact adds j to the roster and requests a subscription to its presence.
func (r *Roster) AddContact(ctx context.Context, j jid.JID, name string, groups ...string) error {
	if j.Equal(jid.JID{}) {
		return &conn.ConfigurationError{Op: "add contact", Err: fmt.Errorf("empty address")}
	}
	item := Item{JID: j.Bare(), Name: name, Groups: groups}
	_, err := r.c.IQ(stanza.SetIQ, jid.JID{}).Cnode(query("", false, item)).SendAwaitingResponse(ctx)
	if err != nil {
		return fmt.Errorf("roster: error adding %s: %w", j.Bare(), err)
	}
	return r.Subscribe(ctx, j)
}

// RemoveContact removes j from the roster.
// The server cancels subscriptions in both directions.
func (r *Roster) RemoveContact(ctx context.Context, j jid.JID) error {
	item := Item{JID: j.Bare(), Subscription: Remove}
	_, err := r.c.IQ(stanza.SetIQ, jid.JID{}).Cnode(query("", false, item)).SendAwaitingResponse(ctx)
	if err != nil {
		return fmt.Errorf("roster: error removing %s: %w", j.Bare(), err)
	}
	return nil
}

// Subscribe requests a subscription to the presence of j.
func (r *Roster) Subscribe(ctx context.Context, j jid.JID) error {
	err := r.c.Presence(stanza.SubscribePresence, j.Bare()).Send(ctx)
	if err != nil {
		return err
	}
	r.contacts.Update(j, func(c *Contact) {
		c.PendingOut = true
	})
	return nil
}

// Approve accepts a pending subscription request from j.
func (r *Roster) Approve(ctx context.Context, j jid.JID) error {
	err := r.c.Presence(stanza.SubscribedPresence, j.Bare()).Send(ctx)
	if err != nil {
		return err
	}
	r.contacts.Update(j, func(c *Contact) {
		c.PendingIn = false
		switch c.Subscription {
		case None, "":
			c.Subscription = From
		case To:
			c.Subscription = Both
		}
	})
	return nil
}

// Deny rejects a pending subscription request from j.
func (r *Roster) Deny(ctx context.Context, j jid.JID) error {
	err := r.c.Presence(stanza.UnsubscribedPresence, j.Bare()).Send(ctx)
	if err != nil {
		return err
	}
	r.contacts.Update(j, func(c *Contact) {
		c.PendingIn = false
	})
	return nil
}

func (r *Roster) handlePush(e *stanza.Element) bool {
	ctx := context.Background()
	defer func() {
		if err := r.c.Reply(e).Send(ctx); err != nil {
			r.logger.Debug("error acknowledging roster push: %v", err)
		}
	}()

	from := e.From()
	local := r.c.LocalAddr()
	if !from.Equal(jid.JID{}) && !from.Equal(local.Bare()) {
		r.logger.Warn("ignoring roster push from %s", from)
		return true
	}
	payload := e.Child(NS, "query")
	for _, el := range payload.ChildrenNamed(NS, "item") {
		item, ok := ParseItem(el)
		if !ok {
			continue
		}
		r.contacts.Update(item.JID, func(c *Contact) {
			applyItem(c, item)
		})
	}
	if v := payload.Attribute("ver"); v != "" {
		r.mu.Lock()
		r.ver = v
		r.mu.Unlock()
	}
	return true
}

func (r *Roster) handlePresence(e *stanza.Element) bool {
	if e.Child(ns.MUCUser, "x") != nil {
		return false
	}
	from := e.From()
	if from.Equal(jid.JID{}) {
		return true
	}
	typ := stanza.PresenceType(e.Type())
	local := r.c.LocalAddr()

	if from.Bare().Equal(local.Bare()) {
		r.handleOwnPresence(from, local, typ, e)
		return true
	}

	switch typ {
	case stanza.AvailablePresence:
		r.contacts.Update(from, func(c *Contact) {
			c.Resources[from.Resourcepart()] = ParsePresence(e)
		})
	case stanza.UnavailablePresence:
		r.contacts.Update(from, func(c *Contact) {
			delete(c.Resources, from.Resourcepart())
		})
	case stanza.ErrorPresence:
		se, _ := stanza.UnmarshalError(e)
		r.logger.Debug("presence error from %s: %v", from, se)
		// Errors may answer a room join, let later handlers see them.
		return false
	case stanza.SubscribePresence, stanza.SubscribedPresence, stanza.UnsubscribePresence, stanza.UnsubscribedPresence:
		var reply stanza.PresenceType
		var send bool
		r.contacts.Update(from, func(c *Contact) {
			c.State, reply, send = Transition(c.State, typ)
		})
		if send {
			err := r.c.Presence(reply, from.Bare()).Send(context.Background())
			if err != nil {
				r.logger.Debug("error answering %s from %s: %v", typ, from, err)
			}
		}
	}
	return true
}

func (r *Roster) handleOwnPresence(from, local jid.JID, typ stanza.PresenceType, e *stanza.Element) {
	if from.Equal(local) {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	switch typ {
	case stanza.AvailablePresence:
		r.own[from.Resourcepart()] = ParsePresence(e)
	case stanza.UnavailablePresence:
		delete(r.own, from.Resourcepart())
	}
}
