// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package muc

import (
	"encoding/xml"

	"mellium.im/engine/stanza"
	"mellium.im/xmpp/jid"
)

// Invitation is a mediated or direct room invitation.
type Invitation struct {
	// Direct is set for invitations that go straight to the invitee instead of
	// through the room.
	Direct bool

	// Room is the bare room address.
	Room jid.JID

	// From is the inviting user and To the invitee.
	// To is unset on received direct invitations.
	From jid.JID
	To   jid.JID

	Continue bool
	Password string
	Reason   string
	Thread   string
}

// direct returns the jabber:x:conference payload, which carries everything in
// attributes.
func (i Invitation) direct() *stanza.Element {
	x := stanza.NewElement(NSConf, "x").SetAttr("jid", i.Room.String())
	if i.Continue {
		x.SetAttr("continue", "true").SetAttr("thread", i.Thread)
	}
	return x.SetAttr("password", i.Password).SetAttr("reason", i.Reason)
}

// mediated returns the muc#user payload sent through the room.
func (i Invitation) mediated() *stanza.Element {
	invite := stanza.NewElement("", "invite")
	if !i.To.Equal(jid.JID{}) {
		invite.SetAttr("to", i.To.String())
	}
	if !i.From.Equal(jid.JID{}) {
		invite.SetAttr("from", i.From.String())
	}
	if i.Reason != "" {
		invite.AddChild(textElement(NSUser, "reason", i.Reason))
	}
	if i.Continue {
		invite.AddChild(stanza.NewElement("", "continue").SetAttr("thread", i.Thread))
	}
	x := stanza.NewElement(NSUser, "x").AddChild(invite)
	if i.Password != "" {
		x.AddChild(textElement(NSUser, "password", i.Password))
	}
	return x
}

// Element returns the invitation payload in the form selected by Direct.
func (i Invitation) Element() *stanza.Element {
	if i.Direct {
		return i.direct()
	}
	return i.mediated()
}

// MarshalXML implements xml.Marshaler.
func (i Invitation) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	return i.Element().MarshalXML(e, start)
}

// ParseInvitation extracts a direct or mediated invitation from a message.
func ParseInvitation(msg *stanza.Element) (Invitation, bool) {
	if x := msg.Child(NSConf, "x"); x != nil {
		room, err := jid.Parse(x.Attribute("jid"))
		if err != nil {
			return Invitation{}, false
		}
		return Invitation{
			Direct:   true,
			Room:     room.Bare(),
			From:     msg.From(),
			Continue: x.Attribute("continue") == "true",
			Password: x.Attribute("password"),
			Reason:   x.Attribute("reason"),
			Thread:   x.Attribute("thread"),
		}, true
	}

	x := msg.Child(NSUser, "x")
	invite := x.Child(NSUser, "invite")
	if invite == nil {
		return Invitation{}, false
	}
	inv := Invitation{
		Room:     msg.From().Bare(),
		Password: x.ChildText(NSUser, "password"),
		Reason:   invite.ChildText(NSUser, "reason"),
	}
	inv.From, _ = jid.Parse(invite.Attribute("from"))
	inv.To, _ = jid.Parse(invite.Attribute("to"))
	if cont := invite.Child(NSUser, "continue"); cont != nil {
		inv.Continue = true
		inv.Thread = cont.Attribute("thread")
	}
	return inv, true
}
