// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package roster

import (
	"strconv"
	"sync"

	"mellium.im/engine/event"
	"mellium.im/engine/message"
	"mellium.im/engine/stanza"
	"mellium.im/xmpp/jid"
)

// Presence is the last presence received from one resource.
type Presence struct {
	Show     string
	Status   string
	Priority int
}

// ParsePresence reads the availability details of an available presence.
func ParsePresence(e *stanza.Element) Presence {
	p := Presence{
		Show:   e.ChildText("", "show"),
		Status: e.ChildText("", "status"),
	}
	if prio, err := strconv.Atoi(e.ChildText("", "priority")); err == nil {
		p.Priority = prio
	}
	return p
}

// Contact is a snapshot of everything known about one bare address.
type Contact struct {
	JID    jid.JID
	Name   string
	Groups []string
	State

	// InRoster is true if the contact is an item in the server side roster.
	InRoster bool

	// Resources maps the resources of the contact that are online to their
	// last presence.
	Resources map[string]Presence
}

// Online reports whether any resource of the contact is available.
func (c Contact) Online() bool {
	return len(c.Resources) > 0
}

func (c *Contact) snapshot() Contact {
	cp := *c
	cp.Groups = append([]string(nil), c.Groups...)
	cp.Resources = make(map[string]Presence, len(c.Resources))
	for k, v := range c.Resources {
		cp.Resources[k] = v
	}
	return cp
}

// EventKind describes a change in the contact collection.
type EventKind int8

// A list of contact event kinds.
const (
	ContactAdded EventKind = iota
	ContactChanged
	ContactsCleared
)

// Event is published by Contacts when the collection changes.
type Event struct {
	Kind    EventKind
	Contact Contact
}

type entry struct {
	c       Contact
	history *message.History
}

// Contacts is the registry of contacts keyed by bare address.
// Contacts are created on first reference and only removed by Clear.
// It is safe for concurrent use.
type Contacts struct {
	mu      sync.Mutex
	entries map[string]*entry
	feed    event.Feed[Event]
}

// NewContacts returns an empty registry.
func NewContacts() *Contacts {
	return &Contacts{entries: make(map[string]*entry)}
}

// lookup must be called with the lock held.
func (cs *Contacts) lookup(j jid.JID, create bool) (*entry, bool) {
	key := j.Bare().String()
	e, ok := cs.entries[key]
	if ok || !create {
		return e, false
	}
	e = &entry{
		c: Contact{
			JID:       j.Bare(),
			State:     State{Subscription: None},
			Resources: make(map[string]Presence),
		},
		history: message.NewHistory(),
	}
	cs.entries[key] = e
	return e, true
}

// Get returns the contact for the bare form of j, creating it if necessary.
func (cs *Contacts) Get(j jid.JID) Contact {
	cs.mu.Lock()
	e, created := cs.lookup(j, true)
	c := e.c.snapshot()
	cs.mu.Unlock()
	if created {
		cs.feed.Publish(Event{Kind: ContactAdded, Contact: c})
	}
	return c
}

// Lookup returns the contact for the bare form of j without creating it.
func (cs *Contacts) Lookup(j jid.JID) (Contact, bool) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	e, _ := cs.lookup(j, false)
	if e == nil {
		return Contact{}, false
	}
	return e.c.snapshot(), true
}

// Update calls f with the contact for the bare form of j, creating it if
// necessary, and publishes the result.
// Changes must be made to the Contact passed to f, which must not be retained.
func (cs *Contacts) Update(j jid.JID, f func(*Contact)) Contact {
	cs.mu.Lock()
	e, created := cs.lookup(j, true)
	f(&e.c)
	e.c.JID = j.Bare()
	c := e.c.snapshot()
	cs.mu.Unlock()

	kind := ContactChanged
	if created {
		kind = ContactAdded
	}
	cs.feed.Publish(Event{Kind: kind, Contact: c})
	return c
}

// History returns the message history of the contact for the bare form of j,
// creating the contact if necessary.
func (cs *Contacts) History(j jid.JID) *message.History {
	cs.mu.Lock()
	e, created := cs.lookup(j, true)
	h := e.history
	c := e.c.snapshot()
	cs.mu.Unlock()
	if created {
		cs.feed.Publish(Event{Kind: ContactAdded, Contact: c})
	}
	return h
}

// All returns a snapshot of every contact.
func (cs *Contacts) All() []Contact {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	out := make([]Contact, 0, len(cs.entries))
	for _, e := range cs.entries {
		out = append(out, e.c.snapshot())
	}
	return out
}

// Len returns the number of known contacts.
func (cs *Contacts) Len() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return len(cs.entries)
}

// Clear forgets every contact.
func (cs *Contacts) Clear() {
	cs.mu.Lock()
	cs.entries = make(map[string]*entry)
	cs.mu.Unlock()
	cs.feed.Publish(Event{Kind: ContactsCleared})
}

// Updates subscribes to changes of the collection.
func (cs *Contacts) Updates() (<-chan Event, func()) {
	return cs.feed.Subscribe()
}

// clearResources forgets the presence of every contact.
func (cs *Contacts) clearResources() {
	cs.mu.Lock()
	var changed []Contact
	for _, e := range cs.entries {
		if len(e.c.Resources) == 0 {
			continue
		}
		e.c.Resources = make(map[string]Presence)
		changed = append(changed, e.c.snapshot())
	}
	cs.mu.Unlock()
	for _, c := range changed {
		cs.feed.Publish(Event{Kind: ContactChanged, Contact: c})
	}
}
