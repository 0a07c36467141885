// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package plugin sequences protocol extensions against the lifecycle of a
// connection.
//
// Every extension is registered once with a Manager under a fixed ID.
// When the connection authenticates, the Manager runs every BeforeOnline hook
// concurrently and waits for all of them to settle before the connection
// announces presence.
// Handlers are then armed, and they are disarmed again, followed by the
// Offline hooks in registration order, when the connection goes down.
package plugin // import "mellium.im/engine/plugin"

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"mellium.im/engine/conn"
	"mellium.im/engine/internal/logging"
)

// ID identifies one of the extensions known to the engine.
type ID int

// A list of extensions, in the order they are normally registered.
const (
	Disco ID = iota
	Roster
	Chat
	Carbons
	Blocklist
	MUC
	History
	PubSub
	ReadState
	Ping
	Upload
)

func (id ID) String() string {
	switch id {
	case Disco:
		return "disco"
	case Roster:
		return "roster"
	case Chat:
		return "chat"
	case Carbons:
		return "carbons"
	case Blocklist:
		return "blocklist"
	case MUC:
		return "muc"
	case History:
		return "history"
	case PubSub:
		return "pubsub"
	case ReadState:
		return "readstate"
	case Ping:
		return "ping"
	case Upload:
		return "upload"
	}
	return fmt.Sprintf("plugin(%d)", int(id))
}

// Plugin is an extension that can be registered with a Manager.
// The remaining behavior is opted into by implementing BeforeOnliner,
// Offliner, or Registerer.
type Plugin interface {
	ID() ID
}

// BeforeOnliner is implemented by plugins that need to talk to the server
// after authentication and before the initial presence is sent, for instance
// to fetch a list or enable a feature.
// All BeforeOnline hooks run concurrently.
type BeforeOnliner interface {
	BeforeOnline(ctx context.Context) error
}

// Offliner is implemented by plugins that hold state tied to a single stream.
type Offliner interface {
	Offline()
}

// Registerer is implemented by plugins that handle unsolicited elements.
// Both methods are called again for every stream and must tolerate it.
type Registerer interface {
	RegisterHandlers(c *conn.Conn)
	UnregisterHandlers(c *conn.Conn)
}

// ErrDuplicate is returned when registering a second plugin with an ID that
// is already in use.
var ErrDuplicate = errors.New("plugin: duplicate plugin id")

// Manager owns the registered plugins and drives their hooks.
// The zero value is not usable; use New.
type Manager struct {
	logger *logging.Logger

	mu      sync.Mutex
	plugins []Plugin
	byID    map[ID]Plugin
	c       *conn.Conn
	armed   bool
}

// New creates a manager that logs hook failures to logger.
func New(logger *logging.Logger) *Manager {
	return &Manager{
		logger: logger.With("plugin"),
		byID:   make(map[ID]Plugin),
	}
}

// Register adds p to the end of the plugin list.
// Plugins must be registered before the connection is first connected.
func (m *Manager) Register(p Plugin) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[p.ID()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, p.ID())
	}
	m.byID[p.ID()] = p
	m.plugins = append(m.plugins, p)
	return nil
}

// MustRegister is like Register but panics if the ID is already taken.
func (m *Manager) MustRegister(p Plugin) {
	if err := m.Register(p); err != nil {
		panic(err)
	}
}

// Get returns the plugin registered under id.
func (m *Manager) Get(id ID) (Plugin, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	return p, ok
}

// Lookup returns the plugin registered under id as a T.
// If no plugin is registered or it is of another type the zero T is returned.
func Lookup[T Plugin](m *Manager, id ID) (T, bool) {
	p, ok := m.Get(id)
	if !ok {
		var zero T
		return zero, false
	}
	t, ok := p.(T)
	return t, ok
}

// Plugins returns the registered plugins in registration order.
func (m *Manager) Plugins() []Plugin {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Plugin, len(m.plugins))
	copy(out, m.plugins)
	return out
}

// Conn returns the connection created by NewConn.
func (m *Manager) Conn() *conn.Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.c
}

// NewConn creates a connection over t whose lifecycle drives the registered
// plugins.
// Any options are applied after the lifecycle hooks, so additional state
// hooks observe a change after the plugins have.
func (m *Manager) NewConn(t conn.Transport, opts ...conn.Option) *conn.Conn {
	lifecycle := []conn.Option{
		conn.BeforeOnline(m.beforeOnline),
		conn.OnStateChange(m.stateChange),
	}
	c := conn.New(t, append(lifecycle, opts...)...)
	m.mu.Lock()
	m.c = c
	m.mu.Unlock()
	return c
}

func (m *Manager) beforeOnline(ctx context.Context) {
	plugins := m.Plugins()

	var wg sync.WaitGroup
	for _, p := range plugins {
		bo, ok := p.(BeforeOnliner)
		if !ok {
			continue
		}
		wg.Add(1)
		go func(p Plugin, bo BeforeOnliner) {
			defer wg.Done()
			m.guard(p, "before online", func() error {
				return bo.BeforeOnline(ctx)
			})
		}(p, bo)
	}
	wg.Wait()

	c := m.Conn()
	for _, p := range plugins {
		if r, ok := p.(Registerer); ok {
			m.guard(p, "register handlers", func() error {
				r.RegisterHandlers(c)
				return nil
			})
		}
	}
	m.mu.Lock()
	m.armed = true
	m.mu.Unlock()
}

func (m *Manager) stateChange(change conn.StateChange) {
	if change.New != conn.Disconnected {
		return
	}
	m.mu.Lock()
	armed := m.armed
	m.armed = false
	c := m.c
	m.mu.Unlock()
	if !armed {
		return
	}
	for _, p := range m.Plugins() {
		if r, ok := p.(Registerer); ok {
			m.guard(p, "unregister handlers", func() error {
				r.UnregisterHandlers(c)
				return nil
			})
		}
		if o, ok := p.(Offliner); ok {
			m.guard(p, "offline", func() error {
				o.Offline()
				return nil
			})
		}
	}
}

// guard runs f and logs any error or panic without propagating it.
func (m *Manager) guard(p Plugin, op string, f func() error) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("%s %s panicked: %v", p.ID(), op, r)
		}
	}()
	if err := f(); err != nil {
		m.logger.Error("%s %s: %v", p.ID(), op, err)
	}
}
