// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package muc

import (
	"context"
	"fmt"

	"mellium.im/engine/conn"
	"mellium.im/engine/stanza"
	"mellium.im/xmpp/jid"
)

// AffiliationItem is an entry of an affiliation list such as the ban list.
type AffiliationItem struct {
	JID         jid.JID
	Nick        string
	Affiliation Affiliation
	Reason      string
}

func adminItem(attrs stanza.Attrs, reason string) *stanza.Element {
	item := stanza.NewElement(NSAdmin, "item")
	for _, k := range [...]string{"affiliation", "role", "jid", "nick"} {
		if v := attrs[k]; v != "" {
			item.SetAttr(k, v)
		}
	}
	if reason != "" {
		item.AddChild(textElement(NSAdmin, "reason", reason))
	}
	return item
}

func textElement(space, local, text string) *stanza.Element {
	e := stanza.NewElement(space, local)
	e.Text = text
	return e
}

func (cl *Client) admin(ctx context.Context, room jid.JID, typ stanza.IQType, item *stanza.Element) (*stanza.Element, error) {
	q := stanza.NewElement(NSAdmin, "query")
	q.AddChild(item)
	return cl.c.IQ(typ, room.Bare()).Cnode(q).SendAwaitingResponse(ctx)
}

// SetRole changes the role of the occupant with the provided nickname.
func (cl *Client) SetRole(ctx context.Context, room jid.JID, nick string, role Role, reason string) error {
	if nick == "" {
		return &conn.ConfigurationError{Op: "set role", Err: fmt.Errorf("empty nickname")}
	}
	_, err := cl.admin(ctx, room, stanza.SetIQ, adminItem(stanza.Attrs{
		"nick": nick,
		"role": role.String(),
	}, reason))
	if err != nil {
		return fmt.Errorf("muc: error setting role of %s in %s: %w", nick, room.Bare(), err)
	}
	return nil
}

// Kick removes the occupant with the provided nickname from the room.
func (cl *Client) Kick(ctx context.Context, room jid.JID, nick, reason string) error {
	return cl.SetRole(ctx, room, nick, RoleNone, reason)
}

// SetAffiliation changes the affiliation of j, which should be the users real
// bare address, not their occupant address.
func (cl *Client) SetAffiliation(ctx context.Context, room, j jid.JID, a Affiliation, reason string) error {
	if j.Equal(jid.JID{}) {
		return &conn.ConfigurationError{Op: "set affiliation", Err: fmt.Errorf("empty address")}
	}
	_, err := cl.admin(ctx, room, stanza.SetIQ, adminItem(stanza.Attrs{
		"jid":         j.Bare().String(),
		"affiliation": a.String(),
	}, reason))
	if err != nil {
		return fmt.Errorf("muc: error setting affiliation of %s in %s: %w", j.Bare(), room.Bare(), err)
	}
	return nil
}

// Ban adds j to the list of outcasts of the room.
func (cl *Client) Ban(ctx context.Context, room, j jid.JID, reason string) error {
	return cl.SetAffiliation(ctx, room, j, AffiliationOutcast, reason)
}

// Unban removes j from the list of outcasts of the room.
func (cl *Client) Unban(ctx context.Context, room, j jid.JID) error {
	return cl.SetAffiliation(ctx, room, j, AffiliationNone, "")
}

// GrantMembership makes j a member of the room.
func (cl *Client) GrantMembership(ctx context.Context, room, j jid.JID, reason string) error {
	return cl.SetAffiliation(ctx, room, j, AffiliationMember, reason)
}

// RevokeMembership removes the membership of j.
func (cl *Client) RevokeMembership(ctx context.Context, room, j jid.JID, reason string) error {
	return cl.SetAffiliation(ctx, room, j, AffiliationNone, reason)
}

// FetchAffiliations returns the users with the provided affiliation, for
// example the ban list for AffiliationOutcast.
// It fails with a NotFoundError if the room is not known locally.
func (cl *Client) FetchAffiliations(ctx context.Context, room jid.JID, a Affiliation) ([]AffiliationItem, error) {
	if _, ok := cl.rooms.Lookup(room); !ok {
		return nil, &conn.NotFoundError{Kind: "room", Addr: room.Bare().String()}
	}
	resp, err := cl.admin(ctx, room, stanza.GetIQ, adminItem(stanza.Attrs{"affiliation": a.String()}, ""))
	if err != nil {
		return nil, fmt.Errorf("muc: error fetching %s list of %s: %w", a, room.Bare(), err)
	}
	var out []AffiliationItem
	for _, el := range resp.Child(NSAdmin, "query").ChildrenNamed(NSAdmin, "item") {
		item := AffiliationItem{
			Nick:   el.Attribute("nick"),
			Reason: el.ChildText(NSAdmin, "reason"),
		}
		item.JID, err = jid.Parse(el.Attribute("jid"))
		if err != nil {
			continue
		}
		item.Affiliation, _ = ParseAffiliation(el.Attribute("affiliation"))
		out = append(out, item)
	}
	return out, nil
}

// Destroy destroys the room.
// Occupants, including the local user, are removed when the room announces
// the destruction.
func (cl *Client) Destroy(ctx context.Context, room jid.JID, reason string, alternate jid.JID) error {
	destroy := stanza.NewElement(NSOwner, "destroy")
	if !alternate.Equal(jid.JID{}) {
		destroy.SetAttr("jid", alternate.Bare().String())
	}
	if reason != "" {
		destroy.AddChild(textElement(NSOwner, "reason", reason))
	}
	q := stanza.NewElement(NSOwner, "query")
	q.AddChild(destroy)
	_, err := cl.c.IQ(stanza.SetIQ, room.Bare()).Cnode(q).SendAwaitingResponse(ctx)
	if err != nil {
		return fmt.Errorf("muc: error destroying %s: %w", room.Bare(), err)
	}
	return nil
}
