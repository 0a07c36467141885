// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package muc

import (
	"sync"

	"mellium.im/engine/event"
	"mellium.im/xmpp/jid"
)

// RoomEventKind describes a change in the set of rooms.
type RoomEventKind uint8

// A list of room set changes.
const (
	RoomAdded RoomEventKind = iota
	RoomRemoved
	RoomsCleared
)

// RoomEvent is published by Rooms when the set of rooms changes.
type RoomEvent struct {
	Kind RoomEventKind
	Room *Room
}

// Rooms is the registry of active rooms keyed by bare address.
// It is safe for concurrent use.
type Rooms struct {
	mu    sync.Mutex
	rooms map[string]*Room
	feed  event.Feed[RoomEvent]
}

// NewRooms returns an empty registry.
func NewRooms() *Rooms {
	return &Rooms{rooms: make(map[string]*Room)}
}

// Get returns the room with the bare form of j, creating it if necessary.
func (rs *Rooms) Get(j jid.JID) *Room {
	key := j.Bare().String()
	rs.mu.Lock()
	r, ok := rs.rooms[key]
	if !ok {
		r = newRoom(j)
		rs.rooms[key] = r
	}
	rs.mu.Unlock()
	if !ok {
		rs.feed.Publish(RoomEvent{Kind: RoomAdded, Room: r})
	}
	return r
}

// Lookup returns the room with the bare form of j without creating it.
func (rs *Rooms) Lookup(j jid.JID) (*Room, bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	r, ok := rs.rooms[j.Bare().String()]
	return r, ok
}

// Remove drops the room from the registry.
// It reports whether the room was present.
func (rs *Rooms) Remove(j jid.JID) bool {
	key := j.Bare().String()
	rs.mu.Lock()
	r, ok := rs.rooms[key]
	delete(rs.rooms, key)
	rs.mu.Unlock()
	if ok {
		rs.feed.Publish(RoomEvent{Kind: RoomRemoved, Room: r})
	}
	return ok
}

// All returns every room.
func (rs *Rooms) All() []*Room {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	out := make([]*Room, 0, len(rs.rooms))
	for _, r := range rs.rooms {
		out = append(out, r)
	}
	return out
}

// Len returns the number of rooms.
func (rs *Rooms) Len() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.rooms)
}

// Clear forgets every room.
func (rs *Rooms) Clear() {
	rs.mu.Lock()
	rs.rooms = make(map[string]*Room)
	rs.mu.Unlock()
	rs.feed.Publish(RoomEvent{Kind: RoomsCleared})
}

// Updates subscribes to changes in the set of rooms.
func (rs *Rooms) Updates() (<-chan RoomEvent, func()) {
	return rs.feed.Subscribe()
}
