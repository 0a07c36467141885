// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package history

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"mellium.im/engine/conn"
	"mellium.im/engine/forward"
	"mellium.im/engine/internal/logging"
	"mellium.im/engine/message"
	"mellium.im/engine/paging"
	"mellium.im/engine/plugin"
	"mellium.im/engine/stanza"
	"mellium.im/xmpp/jid"
)

// DefaultPageSize is the number of messages requested per page unless
// changed with the PageSize option.
const DefaultPageSize = 50

// Recipient is a conversation whose messages can be loaded from an archive.
type Recipient interface {
	// Archive is the address of the archive that stores the conversation.
	// For one-to-one chats this is the bare address of the local account, for
	// rooms it is the room itself.
	Archive() jid.JID

	// With filters the archive to a single conversation.
	// It is the zero JID if the archive only holds one.
	With() jid.JID

	// History is the list of messages already known locally.
	History() *message.History

	// HandleArchived is called with every archived message that is not already
	// in the history.
	// The message is tagged as delayed and from the archive, and its stanza id
	// and time are those recorded by the archive.
	// The original stanza is provided for attribution.
	HandleArchived(m *message.Message, e *stanza.Element)
}

// Option configures an Archive.
type Option func(*Archive)

// PageSize sets the number of messages requested per page.
func PageSize(n uint64) Option {
	return func(a *Archive) {
		a.pageSize = n
	}
}

// Archive loads messages from message archives.
type Archive struct {
	c        *conn.Conn
	logger   *logging.Logger
	pageSize uint64
	now      func() time.Time

	mu      sync.Mutex
	queries map[string]*activeQuery
	ref     conn.HandlerRef
	armed   bool
}

type activeQuery struct {
	r        Recipient
	received int
}

// New returns an archive plugin that sends over c.
func New(c *conn.Conn, logger *logging.Logger, opts ...Option) *Archive {
	a := &Archive{
		c:        c,
		logger:   logger.With("history"),
		pageSize: DefaultPageSize,
		now:      time.Now,
		queries:  make(map[string]*activeQuery),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// ID satisfies plugin.Plugin.
func (a *Archive) ID() plugin.ID {
	return plugin.History
}

// RegisterHandlers satisfies plugin.Registerer.
func (a *Archive) RegisterHandlers(c *conn.Conn) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.armed {
		return
	}
	a.ref = c.AddHandler(conn.Matcher{Name: "message", NS: NS}, conn.HandlerFunc(a.handleResult))
	a.armed = true
}

// UnregisterHandlers satisfies plugin.Registerer.
func (a *Archive) UnregisterHandlers(c *conn.Conn) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.armed {
		return
	}
	c.DeleteHandler(a.ref)
	a.armed = false
}

// Offline forgets queries that were in flight.
func (a *Archive) Offline() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.queries = make(map[string]*activeQuery)
}

// Fetch requests a single page of the archive of r.
// Every message received for the query has been handed to r when Fetch
// returns.
//
// Fetch waits for the connection to dispatch queued elements, so it must not
// be called from a handler.
func (a *Archive) Fetch(ctx context.Context, r Recipient, q Query) (Result, error) {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.With.Equal(jid.JID{}) {
		q.With = r.With()
	}
	aq := &activeQuery{r: r}
	a.mu.Lock()
	a.queries[q.ID] = aq
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		delete(a.queries, q.ID)
		a.mu.Unlock()
	}()

	to := r.Archive()
	if to.Equal(a.c.LocalAddr().Bare()) {
		to = jid.JID{}
	}
	resp, err := a.c.IQ(stanza.SetIQ, to).Cnode(q.Element()).SendAwaitingResponse(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("history: error querying archive of %s: %w", r.Archive(), err)
	}
	// Results are delivered as messages before the response, so make sure they
	// have all been dispatched.
	if err = a.c.Sync(ctx); err != nil {
		return Result{}, err
	}

	res := parseFin(resp)
	a.mu.Lock()
	res.Messages = aq.received
	a.mu.Unlock()
	return res, nil
}

// LoadMostRecentUnloadedMessages fetches the page of messages immediately
// preceding the oldest message known for r.
// If no messages are known, the newest page is fetched.
func (a *Archive) LoadMostRecentUnloadedMessages(ctx context.Context, r Recipient) (Result, error) {
	q := Query{Page: paging.Request{Max: a.pageSize, Last: true}}
	if oldest, ok := r.History().Oldest(); ok {
		if oldest.StanzaID != "" {
			q.Page.Before = oldest.StanzaID
		} else {
			q.End = oldest.Time
		}
	}
	return a.Fetch(ctx, r, q)
}

// LoadAllMessages pages forward from the start of the archive of r until the
// archive reports that the results are complete.
// It returns the number of requests that were made.
func (a *Archive) LoadAllMessages(ctx context.Context, r Recipient) (int, error) {
	page := paging.Request{Max: a.pageSize}
	requests := 0
	for {
		res, err := a.Fetch(ctx, r, Query{Page: page})
		requests++
		if err != nil {
			return requests, err
		}
		if res.Complete {
			return requests, nil
		}
		if res.Set.Last == "" {
			a.logger.Warn("archive of %s returned an incomplete page without a cursor", r.Archive())
			return requests, nil
		}
		page = res.Set.Next(a.pageSize)
	}
}

func (a *Archive) handleResult(e *stanza.Element) bool {
	result := e.Child(NS, "result")
	if result == nil {
		return false
	}
	a.mu.Lock()
	aq, ok := a.queries[result.Attribute("queryid")]
	if ok {
		aq.received++
	}
	a.mu.Unlock()
	if !ok {
		a.logger.Debug("dropping archived message for unknown query %q", result.Attribute("queryid"))
		return true
	}

	archive := aq.r.Archive()
	from := e.From()
	local := a.c.LocalAddr()
	ownArchive := archive.Equal(local.Bare())
	if !from.Equal(archive) && !(ownArchive && from.Equal(jid.JID{})) {
		a.logger.Warn("dropping archived message from %s, expected %s", from, archive)
		return true
	}

	fwd, err := forward.Unwrap(result)
	if err != nil {
		a.logger.Warn("malformed archived message: %v", err)
		return true
	}
	m := message.Parse(fwd.Stanza, archive, a.now())
	if id := result.Attribute("id"); id != "" {
		m.StanzaID = id
	}
	if fwd.HasDelay {
		m.Time = fwd.Delay.Time
	}
	m.Delayed = true
	m.FromArchive = true

	if h := aq.r.History(); h.Known(m) {
		// Already known, though the archive may have assigned it a stanza id
		// that the history did not have yet.
		h.Add(m)
		return true
	}
	aq.r.HandleArchived(m, fwd.Stanza)
	return true
}
