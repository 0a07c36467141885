// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package muc

import (
	"sort"
	"sync"

	"mellium.im/engine/event"
	"mellium.im/engine/form"
	"mellium.im/engine/message"
	"mellium.im/engine/stanza"
	"mellium.im/xmpp/jid"
)

// Occupant is a user present in a room.
type Occupant struct {
	// JID is the occupant address, the room with the nickname as its resource.
	JID  jid.JID
	Nick string

	// RealJID is only known in non-anonymous rooms or to moderators.
	RealJID jid.JID

	Role        Role
	Affiliation Affiliation
	Show        string
	Status      string
}

// Privileges returns the default privileges of the occupant's role.
func (o Occupant) Privileges() Privileges {
	return DefaultPrivileges(o.Role)
}

// EventKind is the transition that an occupant went through.
type EventKind uint8

// A list of occupant transitions.
// Exactly one is reported for every presence received from a room.
const (
	Joined EventKind = iota
	Modified
	Left
	Kicked
	Banned
	NickChanged
	LostMembership
	MembersOnly
	ConnectionError
	Destroyed
)

var eventNames = [...]string{
	Joined:          "joined",
	Modified:        "modified",
	Left:            "left",
	Kicked:          "kicked",
	Banned:          "banned",
	NickChanged:     "nick-changed",
	LostMembership:  "lost-membership",
	MembersOnly:     "members-only",
	ConnectionError: "connection-error",
	Destroyed:       "destroyed",
}

func (k EventKind) String() string {
	if int(k) < len(eventNames) {
		return eventNames[k]
	}
	return "unknown"
}

// Departure reports whether the occupant is no longer in the room after the
// transition.
func (k EventKind) Departure() bool {
	return k != Joined && k != Modified && k != NickChanged
}

// OccupantEvent is a delta published on a room's occupant feed.
type OccupantEvent struct {
	Kind EventKind
	Room jid.JID

	// Occupant is the state after the transition, or the last known state for
	// departures.
	Occupant Occupant

	// Old is the previous state for Modified and NickChanged.
	Old Occupant

	// IsCurrentUser is set when the presence carried the self-presence status
	// code.
	IsCurrentUser bool

	Reason string
	Actor  string
}

// Room is a multi-user chat room.
// It is safe for concurrent use.
type Room struct {
	addr    jid.JID
	history *message.History
	feed    event.Feed[OccupantEvent]

	mu           sync.Mutex
	name         string
	nick         string
	password     string
	joined       bool
	subject      string
	occupants    map[string]Occupant
	config       *form.Data
	unconfigured bool
}

func newRoom(addr jid.JID) *Room {
	return &Room{
		addr:      addr.Bare(),
		history:   message.NewHistory(),
		occupants: make(map[string]Occupant),
	}
}

// Addr returns the bare address of the room.
func (r *Room) Addr() jid.JID {
	return r.addr
}

// Name returns the human readable name of the room, if it was listed.
func (r *Room) Name() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.name
}

// Nick returns the nickname of the local user in the room.
func (r *Room) Nick() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nick
}

// Me returns the occupant address of the local user.
// It is the bare room address if no nickname is set.
func (r *Room) Me() jid.JID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.me()
}

func (r *Room) me() jid.JID {
	if r.nick == "" {
		return r.addr
	}
	j, err := r.addr.WithResource(r.nick)
	if err != nil {
		return r.addr
	}
	return j
}

// Joined reports whether the local user is currently an occupant.
func (r *Room) Joined() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.joined
}

// Subject returns the current subject of the room.
func (r *Room) Subject() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.subject
}

// Config returns the last configuration form fetched or submitted.
func (r *Room) Config() *form.Data {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.config
}

// Unconfigured reports whether the room was created by the local user but the
// initial configuration has not been submitted successfully.
func (r *Room) Unconfigured() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unconfigured
}

// HasOccupant reports whether the occupant address j is present.
func (r *Room) HasOccupant(j jid.JID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.occupants[j.String()]
	return ok
}

// Occupant returns the occupant with address j.
func (r *Room) Occupant(j jid.JID) (Occupant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.occupants[j.String()]
	return o, ok
}

// OccupantByNick returns the occupant with the provided nickname.
func (r *Room) OccupantByNick(nick string) (Occupant, bool) {
	j, err := r.addr.WithResource(nick)
	if err != nil {
		return Occupant{}, false
	}
	return r.Occupant(j)
}

// Occupants returns every occupant sorted by nickname.
func (r *Room) Occupants() []Occupant {
	r.mu.Lock()
	out := make([]Occupant, 0, len(r.occupants))
	for _, o := range r.occupants {
		out = append(out, o)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].Nick < out[j].Nick
	})
	return out
}

// Updates subscribes to occupant transitions.
func (r *Room) Updates() (<-chan OccupantEvent, func()) {
	return r.feed.Subscribe()
}

// History returns the message history of the room.
func (r *Room) History() *message.History {
	return r.history
}

// Archive returns the room address, rooms keep their own archive.
func (r *Room) Archive() jid.JID {
	return r.addr
}

// With returns the zero JID since a room archive only holds the room.
func (r *Room) With() jid.JID {
	return jid.JID{}
}

// HandleArchived adds archived messages to the room history.
// Archived subject changes are discarded: the archive only stores non-empty
// subjects, so replaying them could resurrect a subject that has since been
// cleared.
func (r *Room) HandleArchived(m *message.Message, _ *stanza.Element) {
	if m.Body == "" {
		return
	}
	r.attribute(m)
	r.history.Add(m)
}

// attribute sets the direction of a room message from its sender.
func (r *Room) attribute(m *message.Message) {
	if m.From.Equal(r.Me()) {
		m.Direction = message.Out
	} else {
		m.Direction = message.In
	}
}

// apply updates the occupants map for a transition and reports the event
// that must be published.
func (r *Room) apply(ev *OccupantEvent, newAddr jid.JID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := ev.Occupant.JID.String()
	switch ev.Kind {
	case Joined, Modified:
		if old, ok := r.occupants[key]; ok {
			ev.Kind = Modified
			ev.Old = old
		} else {
			ev.Kind = Joined
		}
		r.occupants[key] = ev.Occupant
		if ev.IsCurrentUser {
			r.joined = true
			r.nick = ev.Occupant.Nick
		}
	case NickChanged:
		if old, ok := r.occupants[key]; ok {
			ev.Old = old
			delete(r.occupants, key)
		} else {
			ev.Old = ev.Occupant
		}
		ev.Occupant.JID = newAddr
		ev.Occupant.Nick = newAddr.Resourcepart()
		r.occupants[newAddr.String()] = ev.Occupant
		if ev.IsCurrentUser {
			r.nick = ev.Occupant.Nick
		}
	default:
		if old, ok := r.occupants[key]; ok {
			ev.Old = old
		}
		if ev.IsCurrentUser {
			r.occupants = make(map[string]Occupant)
			r.joined = false
			return
		}
		delete(r.occupants, key)
	}
}

// reset forgets every occupant without publishing events.
func (r *Room) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.occupants = make(map[string]Occupant)
	r.joined = false
}

func (r *Room) setSubject(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subject = s
}
