// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package muc implements multi-user chat rooms.
//
// Room membership is driven by presence: every presence received from a room
// is turned into exactly one occupant transition (joined, modified, kicked,
// banned, and so on) that updates the room's occupant map and is published on
// the room's feed.
// When the local user departs a room for any reason the room is dropped from
// the registry.
package muc // import "mellium.im/engine/muc"

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"mellium.im/engine/conn"
	"mellium.im/engine/event"
	"mellium.im/engine/internal/logging"
	"mellium.im/engine/internal/ns"
	"mellium.im/engine/message"
	"mellium.im/engine/plugin"
	"mellium.im/engine/stanza"
	"mellium.im/xmpp/jid"
)

// Various namespaces used by this package, provided as a convenience.
const (
	NS      = ns.MUC
	NSUser  = ns.MUCUser
	NSOwner = ns.MUCOwner
	NSAdmin = ns.MUCAdmin

	// NSConf is the legacy conference namespace, now only used for direct
	// invitations.
	NSConf = ns.Conference
)

// Status codes found in room presence and messages.
const (
	StatusSelf              = "110"
	StatusCreated           = "201"
	StatusBanned            = "301"
	StatusNickChange        = "303"
	StatusKicked            = "307"
	StatusAffiliationChange = "321"
	StatusMembersOnly       = "322"
	StatusShutdown          = "332"
	StatusTechnicalError    = "333"
)

// ErrNotOwner is returned when creating a room that the local user does not
// own.
var ErrNotOwner = errors.New("muc: not owner of the room")

// DepartedError is returned when the local user is removed from a room while
// waiting to join it.
type DepartedError struct {
	Room   jid.JID
	Kind   EventKind
	Reason string
}

func (e *DepartedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("muc: %s from %s", e.Kind, e.Room)
	}
	return fmt.Sprintf("muc: %s from %s: %s", e.Kind, e.Room, e.Reason)
}

type rejoin struct {
	addr     jid.JID
	password string
}

// Client tracks the rooms that the local user is in.
type Client struct {
	c       *conn.Conn
	rooms   *Rooms
	logger  *logging.Logger
	now     func() time.Time
	invites event.Feed[Invitation]

	mu     sync.Mutex
	joins  map[string]chan error
	leaves map[string]chan struct{}
	rejoin []rejoin
	refs   []conn.HandlerRef
}

// New returns a room plugin that sends over c and records rooms in rooms.
func New(c *conn.Conn, rooms *Rooms, logger *logging.Logger) *Client {
	return &Client{
		c:      c,
		rooms:  rooms,
		logger: logger.With("muc"),
		now:    time.Now,
		joins:  make(map[string]chan error),
		leaves: make(map[string]chan struct{}),
	}
}

// ID satisfies plugin.Plugin.
func (cl *Client) ID() plugin.ID {
	return plugin.MUC
}

// Rooms returns the registry updated by the client.
func (cl *Client) Rooms() *Rooms {
	return cl.rooms
}

// Invites subscribes to received invitations.
func (cl *Client) Invites() (<-chan Invitation, func()) {
	return cl.invites.Subscribe()
}

// RegisterHandlers satisfies plugin.Registerer.
func (cl *Client) RegisterHandlers(c *conn.Conn) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.refs = append(cl.refs,
		c.AddHandler(conn.Matcher{Name: "presence", NS: NSUser}, conn.HandlerFunc(cl.handlePresence)),
		c.AddHandler(conn.Matcher{Name: "presence", Types: []string{string(stanza.ErrorPresence)}}, conn.HandlerFunc(cl.handlePresenceError)),
		c.AddHandler(conn.Matcher{Name: "message", Types: []string{string(stanza.GroupChatMessage)}}, conn.HandlerFunc(cl.handleMessage)),
		c.AddHandler(conn.Matcher{Name: "message", NS: NSUser}, conn.HandlerFunc(cl.handleInvite)),
		c.AddHandler(conn.Matcher{Name: "message", NS: NSConf}, conn.HandlerFunc(cl.handleInvite)),
	)
}

// UnregisterHandlers satisfies plugin.Registerer.
func (cl *Client) UnregisterHandlers(c *conn.Conn) {
	cl.mu.Lock()
	refs := cl.refs
	cl.refs = nil
	cl.mu.Unlock()
	for _, ref := range refs {
		c.DeleteHandler(ref)
	}
}

// Offline forgets all occupants, which are only valid for a single stream,
// and remembers which rooms were joined so that they can be rejoined.
func (cl *Client) Offline() {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.rejoin = cl.rejoin[:0]
	for _, r := range cl.rooms.All() {
		r.mu.Lock()
		if r.joined {
			cl.rejoin = append(cl.rejoin, rejoin{addr: r.me(), password: r.password})
		}
		r.mu.Unlock()
		r.reset()
	}
	for k, ch := range cl.joins {
		ch <- conn.ErrConnectionLost
		delete(cl.joins, k)
	}
	for k, ch := range cl.leaves {
		close(ch)
		delete(cl.leaves, k)
	}
}

// Forget drops every room and the list of rooms to rejoin.
func (cl *Client) Forget() {
	cl.mu.Lock()
	cl.rejoin = nil
	cl.mu.Unlock()
	cl.rooms.Clear()
}

// Rejoin joins every room that was joined when the connection was lost.
// Failures are logged and the first one is returned after all rooms have been
// attempted.
func (cl *Client) Rejoin(ctx context.Context) error {
	cl.mu.Lock()
	list := cl.rejoin
	cl.rejoin = nil
	cl.mu.Unlock()

	var first error
	for _, rj := range list {
		_, err := cl.Join(ctx, rj.addr, Password(rj.password))
		if err != nil {
			cl.logger.Warn("error rejoining %s: %v", rj.addr.Bare(), err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// Join enters the room at addr, whose resourcepart is the nickname unless
// overridden with the Nick option.
// Join blocks until the room has sent the presence of every occupant and
// reflected the presence of the local user.
func (cl *Client) Join(ctx context.Context, addr jid.JID, opts ...Option) (*Room, error) {
	cfg := newJoinOpts(opts)
	nick := cfg.nick
	if nick == "" {
		nick = addr.Resourcepart()
	}
	if nick == "" {
		return nil, &conn.ConfigurationError{Op: "join room", Err: errors.New("missing nickname")}
	}
	me, err := addr.Bare().WithResource(nick)
	if err != nil {
		return nil, &conn.ConfigurationError{Op: "join room", Err: err}
	}

	r := cl.rooms.Get(me)
	r.mu.Lock()
	r.nick = nick
	r.password = cfg.password
	r.mu.Unlock()

	key := me.Bare().String()
	ch := make(chan error, 1)
	cl.mu.Lock()
	cl.joins[key] = ch
	cl.mu.Unlock()

	err = cl.c.Presence(stanza.AvailablePresence, me).Cnode(cfg.Element()).Send(ctx)
	if err != nil {
		cl.forgetJoin(key, ch)
		return nil, err
	}
	select {
	case err = <-ch:
		if err != nil {
			return nil, fmt.Errorf("muc: error joining %s: %w", me.Bare(), err)
		}
		return r, nil
	case <-ctx.Done():
		cl.forgetJoin(key, ch)
		return nil, ctx.Err()
	}
}

func (cl *Client) forgetJoin(key string, ch chan error) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.joins[key] == ch {
		delete(cl.joins, key)
	}
}

func (cl *Client) resolveJoin(room jid.JID, err error) {
	key := room.Bare().String()
	cl.mu.Lock()
	ch, ok := cl.joins[key]
	delete(cl.joins, key)
	cl.mu.Unlock()
	if ok {
		ch <- err
	}
}

func (cl *Client) resolveLeave(room jid.JID) {
	key := room.Bare().String()
	cl.mu.Lock()
	ch, ok := cl.leaves[key]
	delete(cl.leaves, key)
	cl.mu.Unlock()
	if ok {
		close(ch)
	}
}

// Leave exits the room and waits for the room to confirm the departure.
func (cl *Client) Leave(ctx context.Context, room jid.JID, status string) error {
	r, ok := cl.rooms.Lookup(room)
	if !ok || !r.Joined() {
		return &conn.NotFoundError{Kind: "room", Addr: room.Bare().String()}
	}
	key := r.Addr().String()
	ch := make(chan struct{})
	cl.mu.Lock()
	cl.leaves[key] = ch
	cl.mu.Unlock()

	b := cl.c.Presence(stanza.UnavailablePresence, r.Me())
	if status != "" {
		b.C("status", nil, status)
	}
	if err := b.Send(ctx); err != nil {
		cl.mu.Lock()
		delete(cl.leaves, key)
		cl.mu.Unlock()
		return err
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ChangeNick requests a new nickname in the room.
// The occupant is re-keyed when the room confirms the change.
func (cl *Client) ChangeNick(ctx context.Context, room jid.JID, nick string) error {
	r, ok := cl.rooms.Lookup(room)
	if !ok || !r.Joined() {
		return &conn.NotFoundError{Kind: "room", Addr: room.Bare().String()}
	}
	to, err := r.Addr().WithResource(nick)
	if err != nil {
		return &conn.ConfigurationError{Op: "change nickname", Err: err}
	}
	return cl.c.Presence(stanza.AvailablePresence, to).Send(ctx)
}

// SetSubject attempts to change the room subject.
// It returns after the request has been sent and does not wait to see if the
// change was accepted.
func (cl *Client) SetSubject(ctx context.Context, room jid.JID, subject string) error {
	return cl.c.Message(stanza.GroupChatMessage, room.Bare()).C("subject", nil, subject).Send(ctx)
}

// Send sends a message to the room and adds it to the room history.
// The message is marked sent when the room reflects it.
func (cl *Client) Send(ctx context.Context, room jid.JID, body string) (*message.Message, error) {
	r, ok := cl.rooms.Lookup(room)
	if !ok || !r.Joined() {
		return nil, &conn.NotFoundError{Kind: "room", Addr: room.Bare().String()}
	}
	m := &message.Message{
		OriginID:  uuid.NewString(),
		From:      r.Me(),
		To:        r.Addr(),
		Type:      stanza.GroupChatMessage,
		Direction: message.Out,
		Body:      body,
		Time:      cl.now(),
		State:     message.StateSending,
	}
	m.ID = m.OriginID
	e := cl.c.Message(stanza.GroupChatMessage, r.Addr()).
		Attrs(stanza.Attrs{"id": m.ID}).
		C("body", nil, body).Up().
		Cnode(message.OriginIDElement(m.OriginID)).
		Element()
	r.history.Add(m)
	if err := cl.c.Send(ctx, e); err != nil {
		return m, err
	}
	return m, nil
}

// Invite sends a mediated invitation through the room.
func (cl *Client) Invite(ctx context.Context, room, to jid.JID, reason string) error {
	inv := Invitation{To: to, Reason: reason}
	if r, ok := cl.rooms.Lookup(room); ok {
		inv.Password = r.password
	}
	return cl.c.Message(stanza.NormalMessage, room.Bare()).Cnode(inv.Element()).Send(ctx)
}

// InviteDirect sends a direct invitation from the local account.
// This is useful when a mediated invitation is being blocked by a user that
// does not allow contact from unknown addresses.
func (cl *Client) InviteDirect(ctx context.Context, room, to jid.JID, reason string) error {
	inv := Invitation{Direct: true, Room: room.Bare(), Reason: reason}
	if r, ok := cl.rooms.Lookup(room); ok {
		inv.Password = r.password
	}
	return cl.c.Message(stanza.NormalMessage, to).Cnode(inv.Element()).Send(ctx)
}

func statusCodes(x *stanza.Element) map[string]bool {
	codes := make(map[string]bool)
	for _, s := range x.ChildrenNamed(NSUser, "status") {
		codes[s.Attribute("code")] = true
	}
	return codes
}

// departure returns the cause of an unavailable presence.
// Causes are checked in a fixed order, so a presence carrying several status
// codes is reported once under the first that matches.
func departure(e, x *stanza.Element, codes map[string]bool) EventKind {
	switch {
	case codes[StatusShutdown] || codes[StatusTechnicalError] || e.Child("", "error") != nil:
		return ConnectionError
	case x.Child(NSUser, "destroy") != nil:
		return Destroyed
	case codes[StatusKicked]:
		return Kicked
	case codes[StatusBanned]:
		return Banned
	case codes[StatusNickChange]:
		return NickChanged
	case codes[StatusAffiliationChange]:
		return LostMembership
	case codes[StatusMembersOnly]:
		return MembersOnly
	}
	return Left
}

func (cl *Client) handlePresence(e *stanza.Element) bool {
	from := e.From()
	if from.Resourcepart() == "" {
		return false
	}
	typ := stanza.PresenceType(e.Type())
	if typ != stanza.AvailablePresence && typ != stanza.UnavailablePresence {
		return false
	}

	x := e.Child(NSUser, "x")
	item := x.Child(NSUser, "item")
	codes := statusCodes(x)
	// Rooms are created by Join, so anything else is a stray presence, such as
	// one that arrived after leaving.
	room, ok := cl.rooms.Lookup(from)
	if !ok {
		cl.logger.Debug("ignoring presence from %s, which is not a joined room", from)
		return false
	}

	occ := Occupant{
		JID:    from,
		Nick:   from.Resourcepart(),
		Show:   e.ChildText("", "show"),
		Status: e.ChildText("", "status"),
	}
	occ.Role, _ = ParseRole(item.Attribute("role"))
	occ.Affiliation, _ = ParseAffiliation(item.Attribute("affiliation"))
	occ.RealJID, _ = jid.Parse(item.Attribute("jid"))

	ev := OccupantEvent{
		Kind:          Joined,
		Room:          room.Addr(),
		Occupant:      occ,
		IsCurrentUser: codes[StatusSelf] || from.Equal(room.Me()),
		Reason:        item.ChildText(NSUser, "reason"),
		Actor:         item.Child(NSUser, "actor").Attribute("nick"),
	}

	var newAddr jid.JID
	if typ == stanza.UnavailablePresence {
		ev.Kind = departure(e, x, codes)
		if destroy := x.Child(NSUser, "destroy"); destroy != nil && ev.Kind == Destroyed {
			ev.Reason = destroy.ChildText(NSUser, "reason")
		}
		if ev.Kind == NickChanged {
			var err error
			newAddr, err = room.Addr().WithResource(item.Attribute("nick"))
			if err != nil || item.Attribute("nick") == "" {
				cl.logger.Warn("nickname change in %s without a valid new nickname", room.Addr())
				ev.Kind = Left
			}
		}
	}

	if ev.IsCurrentUser && codes[StatusCreated] {
		room.mu.Lock()
		room.unconfigured = true
		room.mu.Unlock()
	}
	room.apply(&ev, newAddr)
	room.feed.Publish(ev)
	cl.logger.Debug("%s %s in %s", ev.Occupant.Nick, ev.Kind, room.Addr())

	if ev.IsCurrentUser {
		switch {
		case !ev.Kind.Departure():
			cl.resolveJoin(room.Addr(), nil)
		default:
			cl.rooms.Remove(room.Addr())
			cl.resolveLeave(room.Addr())
			cl.resolveJoin(room.Addr(), &DepartedError{Room: room.Addr(), Kind: ev.Kind, Reason: ev.Reason})
		}
	}
	return true
}

func (cl *Client) handlePresenceError(e *stanza.Element) bool {
	room := e.From().Bare()
	key := room.String()
	cl.mu.Lock()
	ch, ok := cl.joins[key]
	delete(cl.joins, key)
	cl.mu.Unlock()
	if !ok {
		return false
	}
	se, _ := stanza.UnmarshalError(e)
	if r, ok := cl.rooms.Lookup(room); ok && !r.Joined() {
		cl.rooms.Remove(room)
	}
	ch <- se
	return true
}

func (cl *Client) handleMessage(e *stanza.Element) bool {
	from := e.From()
	room, ok := cl.rooms.Lookup(from)
	if !ok {
		return false
	}
	if body := e.ChildText("", "body"); body != "" {
		m := message.Parse(e, room.Addr(), cl.now())
		room.attribute(m)
		if m.Direction == message.Out {
			m.State = message.StateSent
		}
		if !room.history.Add(m) && m.Direction == message.Out && m.OriginID != "" {
			// A reflection of a message that we sent.
			room.history.SetState(m.OriginID, message.StateSent)
		}
		return true
	}
	if subject := e.Child("", "subject"); subject != nil {
		room.setSubject(subject.Text)
	}
	return true
}

func (cl *Client) handleInvite(e *stanza.Element) bool {
	if stanza.MessageType(e.Type()) == stanza.GroupChatMessage || stanza.MessageType(e.Type()) == stanza.ErrorMessage {
		return false
	}
	inv, ok := ParseInvitation(e)
	if !ok {
		return false
	}
	cl.logger.Info("invitation to %s from %s", inv.Room, inv.From)
	cl.invites.Publish(inv)
	return true
}
