// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package muc

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"mellium.im/engine/conn"
	"mellium.im/engine/disco"
	"mellium.im/engine/form"
	"mellium.im/engine/stanza"
	"mellium.im/xmpp/jid"
)

// NSRoomConfig is the FORM_TYPE of room configuration forms.
const NSRoomConfig = "http://jabber.org/protocol/muc#roomconfig"

// ErrUnexpectedForm is returned when the room sends a configuration form of
// an unknown type.
var ErrUnexpectedForm = errors.New("muc: unexpected configuration form")

// RoomConfig maps configuration field variables to the values to set.
// Fields that are not listed keep the value proposed by the room.
type RoomConfig map[string]form.FieldValue

// UnconfiguredError is returned by CreateRoom when the room was created and
// joined but could not be configured.
// The room stays joined and reports Unconfigured until a configuration is
// submitted successfully.
type UnconfiguredError struct {
	Room jid.JID
	Err  error
}

func (e *UnconfiguredError) Error() string {
	return fmt.Sprintf("muc: %s joined but not configured: %v", e.Room, e.Err)
}

// Unwrap returns the configuration error.
func (e *UnconfiguredError) Unwrap() error {
	return e.Err
}

// FetchConfig requests the configuration form of the room.
func (cl *Client) FetchConfig(ctx context.Context, room jid.JID) (*form.Data, error) {
	q := stanza.NewElement(NSOwner, "query")
	resp, err := cl.c.IQ(stanza.GetIQ, room.Bare()).Cnode(q).SendAwaitingResponse(ctx)
	if err != nil {
		return nil, fmt.Errorf("muc: error fetching configuration of %s: %w", room.Bare(), err)
	}
	data, err := form.Parse(resp.Child(NSOwner, "query").Child(form.NS, "x"))
	if err != nil {
		return nil, fmt.Errorf("muc: error parsing configuration of %s: %w", room.Bare(), err)
	}
	if r, ok := cl.rooms.Lookup(room); ok {
		r.mu.Lock()
		r.config = data
		r.mu.Unlock()
	}
	return data, nil
}

// SubmitConfig submits a configuration form, normally one returned by
// FetchConfig with some values changed.
// A successful submission clears the unconfigured state of the room.
func (cl *Client) SubmitConfig(ctx context.Context, room jid.JID, data *form.Data) error {
	x, ok := data.Submit()
	if !ok {
		return &conn.ConfigurationError{Op: "submit room configuration", Err: errors.New("missing required field")}
	}
	q := stanza.NewElement(NSOwner, "query")
	q.AddChild(x)
	_, err := cl.c.IQ(stanza.SetIQ, room.Bare()).Cnode(q).SendAwaitingResponse(ctx)
	if err != nil {
		return fmt.Errorf("muc: error configuring %s: %w", room.Bare(), err)
	}
	if r, ok := cl.rooms.Lookup(room); ok {
		r.mu.Lock()
		r.config = data
		r.unconfigured = false
		r.mu.Unlock()
	}
	return nil
}

// Configure fetches the configuration form of the room, changes the fields
// listed in cfg, and submits it.
// Referencing a field that is not on the form is an error and nothing is
// submitted.
func (cl *Client) Configure(ctx context.Context, room jid.JID, cfg RoomConfig) error {
	data, err := cl.FetchConfig(ctx, room)
	if err != nil {
		return err
	}
	if ft := data.FormType(); ft != NSRoomConfig {
		return fmt.Errorf("%w: %q", ErrUnexpectedForm, ft)
	}
	vars := make([]string, 0, len(cfg))
	for v := range cfg {
		vars = append(vars, v)
	}
	sort.Strings(vars)
	for _, v := range vars {
		if err := data.Set(v, cfg[v]); err != nil {
			return &conn.ConfigurationError{Op: "configure room", Err: err}
		}
	}
	return cl.SubmitConfig(ctx, room, data)
}

// CreateRoom creates a room by joining it, checking that the local user was
// made owner, and configuring it with cfg.
//
// If the configuration step fails the room has already been created and
// joined.
// It is returned along with an *UnconfiguredError, and the caller may retry
// with Configure or leave the room.
func (cl *Client) CreateRoom(ctx context.Context, addr jid.JID, cfg RoomConfig, opts ...Option) (*Room, error) {
	r, err := cl.Join(ctx, addr, opts...)
	if err != nil {
		return nil, err
	}
	self, ok := r.Occupant(r.Me())
	if !ok || self.Affiliation != AffiliationOwner {
		return r, fmt.Errorf("muc: error creating %s: %w", r.Addr(), ErrNotOwner)
	}
	r.mu.Lock()
	r.unconfigured = true
	r.mu.Unlock()
	if err := cl.Configure(ctx, r.Addr(), cfg); err != nil {
		cl.logger.Warn("room %s created but not configured: %v", r.Addr(), err)
		return r, &UnconfiguredError{Room: r.Addr(), Err: err}
	}
	return r, nil
}

// ListRooms returns the rooms hosted by a service.
// Listed rooms are added to the registry but are not joined.
func (cl *Client) ListRooms(ctx context.Context, service jid.JID) ([]*Room, error) {
	list, err := disco.FetchItems(ctx, cl.c, service, "")
	if err != nil {
		return nil, err
	}
	out := make([]*Room, 0, len(list))
	for _, item := range list {
		if item.JID.Localpart() == "" {
			continue
		}
		r := cl.rooms.Get(item.JID)
		r.mu.Lock()
		r.name = item.Name
		r.mu.Unlock()
		out = append(out, r)
	}
	return out, nil
}
