// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package conn

import (
	"context"

	"mellium.im/engine/internal/logging"
	"mellium.im/engine/stanza"
)

// Option's can be used to configure the connection.
type Option func(*options)

type options struct {
	logger          *logging.Logger
	beforeOnline    func(context.Context)
	stateHooks      []func(StateChange)
	initialPresence func() *stanza.Element
}

func getOpts(o ...Option) (res options) {
	for _, f := range o {
		f(&res)
	}
	if res.initialPresence == nil {
		res.initialPresence = func() *stanza.Element {
			return stanza.Presence(stanza.AvailablePresence, jidZero).Element()
		}
	}
	return
}

// The Logger option can be provided to have the connection log traffic and
// unknown elements.
func Logger(logger *logging.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// BeforeOnline is called after the transport has authenticated and before
// the initial presence is sent.
// Sending elements and waiting on responses is allowed.
func BeforeOnline(f func(ctx context.Context)) Option {
	return func(o *options) {
		o.beforeOnline = f
	}
}

// OnStateChange registers a hook that is called synchronously, in
// registration order, for every state change.
func OnStateChange(f func(StateChange)) Option {
	return func(o *options) {
		o.stateHooks = append(o.stateHooks, f)
	}
}

// InitialPresence sets the function used to build the presence that is sent
// when the connection goes online.
func InitialPresence(f func() *stanza.Element) Option {
	return func(o *options) {
		o.initialPresence = f
	}
}
