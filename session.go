// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package engine

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/text/language"

	"mellium.im/engine/blocklist"
	"mellium.im/engine/carbons"
	"mellium.im/engine/chat"
	"mellium.im/engine/config"
	"mellium.im/engine/conn"
	"mellium.im/engine/disco"
	"mellium.im/engine/history"
	"mellium.im/engine/internal/logging"
	"mellium.im/engine/internal/ns"
	"mellium.im/engine/message"
	"mellium.im/engine/muc"
	"mellium.im/engine/ping"
	"mellium.im/engine/plugin"
	"mellium.im/engine/pubsub"
	"mellium.im/engine/readstate"
	"mellium.im/engine/roster"
	"mellium.im/engine/stanza"
	"mellium.im/engine/transport"
	"mellium.im/engine/upload"
	"mellium.im/xmpp/jid"
)

// CapsNode is the node advertised in entity capabilities.
const CapsNode = "https://mellium.im/engine"

// Context is the explicit environment a Session runs in.
type Context struct {
	// Logger receives the output of the session and all of its plugins.
	// A nil logger discards everything.
	Logger *logging.Logger

	// Config is the configuration of the account.
	// If nil, config.Default is used.
	Config *config.Config

	// Lang is the preferred language for human readable text in errors.
	// If unset, the language of Config is used.
	Lang language.Tag
}

// Session is a logged in account and the extensions that act on its behalf.
type Session struct {
	ctx     Context
	logger  *logging.Logger
	plugins *plugin.Manager
	c       *conn.Conn

	contacts  *roster.Contacts
	rooms     *muc.Rooms
	disco     *disco.Disco
	roster    *roster.Roster
	chat      *chat.Chat
	carbons   *carbons.Carbons
	blocklist *blocklist.List
	muc       *muc.Client
	archive   *history.Archive
	notifier  *pubsub.Notifier
	readstate *readstate.Sync
	pinger    *ping.Pinger
	upload    *upload.Uploader
}

// Dial returns a session that connects over TCP to the account in the
// configuration of ectx.
// It does not connect; call Login.
func Dial(ectx Context) (*Session, error) {
	cfg := ectx.Config
	if cfg == nil {
		return nil, &conn.ConfigurationError{Op: "dial", Err: errors.New("missing configuration")}
	}
	addr, err := cfg.Account.Addr()
	if err != nil {
		return nil, &conn.ConfigurationError{Op: "dial", Err: err}
	}
	t := transport.New(transport.Config{
		Addr:     addr,
		Password: cfg.Account.Password,
		Server:   cfg.Account.Server,
		Port:     cfg.Account.Port,
		Timeout:  cfg.Account.Timeout,
		Logger:   ectx.Logger,
	})
	return New(ectx, t), nil
}

// New returns a session that connects over t.
// It does not connect; call Login.
func New(ectx Context, t conn.Transport) *Session {
	if ectx.Config == nil {
		ectx.Config = config.Default()
	}
	if ectx.Lang == language.Und {
		ectx.Lang = ectx.Config.Language()
	}
	logger := ectx.Logger
	s := &Session{
		ctx:      ectx,
		logger:   logger.With("session"),
		plugins:  plugin.New(logger),
		contacts: roster.NewContacts(),
		rooms:    muc.NewRooms(),
	}
	s.c = s.plugins.NewConn(t,
		conn.Logger(logger.With("conn")),
		conn.InitialPresence(s.initialPresence),
	)

	cfg := ectx.Config
	s.disco = disco.New(s.c, logger,
		disco.Identity("client", "pc", "engine"),
		disco.Feature(
			ns.Receipts,
			ns.Markers,
			ns.MUC,
			ns.Conference,
			ns.Ping,
			ns.MDS+"+notify",
		),
	)
	s.roster = roster.New(s.c, s.contacts, logger)
	s.chat = chat.New(s.c, s.contacts, logger)
	s.carbons = carbons.New(s.c, s.disco, s.chat, logger)
	s.blocklist = blocklist.New(s.c, logger)
	s.muc = muc.New(s.c, s.rooms, logger)
	s.archive = history.New(s.c, logger, history.PageSize(uint64(cfg.Archive.PageSize)))
	s.notifier = pubsub.NewNotifier(logger)
	s.readstate = readstate.New(s.c, s.notifier, logger)
	s.pinger = ping.New(s.c, logger,
		ping.Interval(cfg.Keepalive.Interval),
		ping.Timeout(cfg.Keepalive.Timeout),
	)
	s.upload = upload.New(s.c, s.disco, logger)

	for _, p := range []plugin.Plugin{
		s.disco,
		s.roster,
		s.chat,
		s.carbons,
		s.blocklist,
		s.muc,
		s.archive,
		s.notifier,
		s.readstate,
		s.pinger,
		s.upload,
	} {
		s.plugins.MustRegister(p)
	}
	return s
}

func (s *Session) initialPresence() *stanza.Element {
	return stanza.Presence(stanza.AvailablePresence, jid.JID{}).
		Cnode(s.disco.Caps(CapsNode).Element()).
		Element()
}

// Conn returns the connection of the session.
func (s *Session) Conn() *conn.Conn { return s.c }

// Plugins returns the plugin registry of the session.
func (s *Session) Plugins() *plugin.Manager { return s.plugins }

// LocalAddr returns the address bound by the current or last stream.
func (s *Session) LocalAddr() jid.JID { return s.c.LocalAddr() }

// Lang returns the preferred language of the session.
func (s *Session) Lang() language.Tag { return s.ctx.Lang }

// Disco returns the service discovery plugin.
func (s *Session) Disco() *disco.Disco { return s.disco }

// Roster returns the roster plugin.
func (s *Session) Roster() *roster.Roster { return s.roster }

// Chat returns the one to one chat plugin.
func (s *Session) Chat() *chat.Chat { return s.chat }

// Carbons returns the message carbons plugin.
func (s *Session) Carbons() *carbons.Carbons { return s.carbons }

// Blocklist returns the blocking plugin.
func (s *Session) Blocklist() *blocklist.List { return s.blocklist }

// MUC returns the multi-user chat plugin.
func (s *Session) MUC() *muc.Client { return s.muc }

// Archive returns the message archive plugin.
func (s *Session) Archive() *history.Archive { return s.archive }

// PubSub returns the plugin that receives node notifications.
func (s *Session) PubSub() *pubsub.Notifier { return s.notifier }

// ReadState returns the plugin that shares read positions between clients.
func (s *Session) ReadState() *readstate.Sync { return s.readstate }

// Ping returns the keepalive plugin.
func (s *Session) Ping() *ping.Pinger { return s.pinger }

// Upload returns the file upload plugin.
func (s *Session) Upload() *upload.Uploader { return s.upload }

// Login connects, runs the plugins that prepare the session and announces
// presence.
// Rooms listed in the configuration are then joined; failures to join a room
// are logged and do not fail the login.
func (s *Session) Login(ctx context.Context) error {
	err := s.c.Connect(ctx)
	if err != nil {
		return err
	}
	for _, r := range s.ctx.Config.Rooms {
		addr, err := jid.Parse(r.JID)
		if err != nil {
			s.logger.Warn("skipping room %q: %v", r.JID, err)
			continue
		}
		nick := r.Nick
		if nick == "" {
			nick = s.c.LocalAddr().Localpart()
		}
		opts := []muc.Option{muc.Nick(nick)}
		if r.Password != "" {
			opts = append(opts, muc.Password(r.Password))
		}
		if _, err := s.muc.Join(ctx, addr, opts...); err != nil {
			s.logger.Warn("error joining %s: %v", addr, err)
		}
	}
	return nil
}

// Logout ends the stream and forgets every contact and room.
// Requests that are still outstanding fail with conn.ErrConnectionLost.
// Unlike a lost connection, a logout is not followed by rejoining rooms.
func (s *Session) Logout() error {
	err := s.c.Disconnect()
	s.muc.Forget()
	s.roster.Forget()
	return err
}

// Reconnect replaces the stream and joins the rooms that were joined when it
// was lost.
func (s *Session) Reconnect(ctx context.Context) error {
	err := s.c.Reconnect(ctx)
	if err != nil {
		return err
	}
	return s.muc.Rejoin(ctx)
}

// Close logs out and ends every state subscription.
func (s *Session) Close() error {
	err := s.Logout()
	if cerr := s.c.Close(); err == nil {
		err = cerr
	}
	return err
}

// SendMessage sends body to a joined room or to a contact.
func (s *Session) SendMessage(ctx context.Context, to jid.JID, body string) (*message.Message, error) {
	if r, ok := s.rooms.Lookup(to); ok && r.Joined() && to.Resourcepart() == "" {
		return s.muc.Send(ctx, to, body)
	}
	return s.chat.Send(ctx, to, body)
}

// JoinRoom enters a room.
// If the address has no resourcepart and no Nick option is given, the
// localpart of the account is used as the nickname.
func (s *Session) JoinRoom(ctx context.Context, addr jid.JID, opts ...muc.Option) (*muc.Room, error) {
	return s.muc.Join(ctx, s.roomAddr(addr), opts...)
}

// CreateRoom creates, joins and configures a room.
// If the room was created but not configured both the room and a
// *muc.UnconfiguredError are returned.
func (s *Session) CreateRoom(ctx context.Context, addr jid.JID, cfg muc.RoomConfig, opts ...muc.Option) (*muc.Room, error) {
	return s.muc.CreateRoom(ctx, s.roomAddr(addr), cfg, opts...)
}

func (s *Session) roomAddr(addr jid.JID) jid.JID {
	if addr.Resourcepart() != "" {
		return addr
	}
	withNick, err := addr.WithResource(s.c.LocalAddr().Localpart())
	if err != nil {
		return addr
	}
	return withNick
}

// LeaveRoom exits a joined room.
func (s *Session) LeaveRoom(ctx context.Context, room jid.JID, status string) error {
	return s.muc.Leave(ctx, room, status)
}

// AddContact adds j to the roster and asks to see their presence.
func (s *Session) AddContact(ctx context.Context, j jid.JID, name string, groups ...string) error {
	return s.roster.AddContact(ctx, j, name, groups...)
}

// RemoveContact removes j from the roster, which also cancels any
// subscription.
func (s *Session) RemoveContact(ctx context.Context, j jid.JID) error {
	return s.roster.RemoveContact(ctx, j)
}

// Block stops all communication with the provided addresses.
func (s *Session) Block(ctx context.Context, jids ...jid.JID) error {
	items := make([]blocklist.Item, 0, len(jids))
	for _, j := range jids {
		items = append(items, blocklist.Item{JID: j})
	}
	return s.blocklist.Block(ctx, items...)
}

// Unblock allows communication with the provided addresses again.
func (s *Session) Unblock(ctx context.Context, jids ...jid.JID) error {
	return s.blocklist.Unblock(ctx, jids...)
}

// recipient returns the conversation with addr: a room if one with that
// address is known, otherwise a chat with a contact.
func (s *Session) recipient(addr jid.JID) history.Recipient {
	if r, ok := s.rooms.Lookup(addr); ok {
		return r
	}
	return s.chat.Conversation(addr)
}

// History returns the messages exchanged with a contact or in a room.
func (s *Session) History(addr jid.JID) *message.History {
	return s.recipient(addr).History()
}

// LoadHistory fetches the most recent page of messages that are not loaded yet
// from the archive of a conversation.
func (s *Session) LoadHistory(ctx context.Context, addr jid.JID) (history.Result, error) {
	return s.archive.LoadMostRecentUnloadedMessages(ctx, s.recipient(addr))
}

// LoadAllHistory pages through the whole archive of a conversation and
// returns the number of messages that were added.
func (s *Session) LoadAllHistory(ctx context.Context, addr jid.JID) (int, error) {
	return s.archive.LoadAllMessages(ctx, s.recipient(addr))
}

// Unread returns the number of incoming messages in a conversation after the
// last one displayed on any client.
func (s *Session) Unread(addr jid.JID) int {
	return s.readstate.Unread(addr, s.recipient(addr).History())
}

// MarkRead records the newest archived message of a conversation as
// displayed, shares the position with the other clients of the account and,
// for one to one chats, sends a displayed marker to the contact.
func (s *Session) MarkRead(ctx context.Context, addr jid.JID) error {
	r := s.recipient(addr)
	msgs := r.History().Messages()
	var newest *message.Message
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].StanzaID != "" {
			newest = &msgs[i]
			break
		}
	}
	if newest == nil {
		return &conn.NotFoundError{Kind: "archived message", Addr: addr.Bare().String()}
	}
	err := s.readstate.MarkRead(ctx, readstate.Displayed{
		Conversation: addr.Bare(),
		StanzaID:     newest.StanzaID,
		By:           r.Archive(),
	})
	if err != nil {
		return err
	}
	if _, room := r.(*muc.Room); room {
		return nil
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Direction == message.In {
			if err := s.chat.MarkDisplayed(ctx, msgs[i]); err != nil {
				s.logger.Debug("error sending displayed marker to %s: %v", addr, err)
			}
			break
		}
	}
	return nil
}

// ErrorText returns the text of a protocol error in the language of the
// session, or the error string if err is not a protocol error or has no text.
func (s *Session) ErrorText(err error) string {
	var se stanza.Error
	if errors.As(err, &se) {
		if text := se.TextFor(s.ctx.Lang); text != "" {
			return text
		}
		return fmt.Sprintf("%s: %s", se.Type, se.Condition)
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// States subscribes to connection state changes.
func (s *Session) States() (<-chan conn.StateChange, func()) {
	return s.c.States()
}

// Contacts subscribes to changes of the contact collection.
func (s *Session) Contacts() (<-chan roster.Event, func()) {
	return s.contacts.Updates()
}

// Rooms subscribes to changes of the set of known rooms.
func (s *Session) Rooms() (<-chan muc.RoomEvent, func()) {
	return s.rooms.Updates()
}

// Occupants subscribes to changes of the occupants of a known room.
func (s *Session) Occupants(room jid.JID) (<-chan muc.OccupantEvent, func(), error) {
	r, ok := s.rooms.Lookup(room)
	if !ok {
		return nil, nil, &conn.NotFoundError{Kind: "room", Addr: room.Bare().String()}
	}
	ch, cancel := r.Updates()
	return ch, cancel, nil
}

// Messages subscribes to changes of the history of a conversation.
func (s *Session) Messages(addr jid.JID) (<-chan message.Update, func()) {
	return s.recipient(addr).History().Updates()
}
