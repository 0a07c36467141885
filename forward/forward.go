// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package forward implements forwarding messages.
package forward // import "mellium.im/engine/forward"

import (
	"errors"
	"time"

	"mellium.im/engine/delay"
	"mellium.im/engine/internal/ns"
	"mellium.im/engine/stanza"
)

// NS is the namespace used by this package.
const NS = ns.Forward

var (
	// ErrNotForwarded is returned by Unwrap if the element is not a forwarding
	// envelope.
	ErrNotForwarded = errors.New("forward: not a forwarded element")

	// ErrNoStanza is returned by Unwrap if the envelope is empty.
	ErrNoStanza = errors.New("forward: forwarded element contains no stanza")
)

// Forwarded is an unwrapped forwarding envelope.
type Forwarded struct {
	// Delay is the delivery time recorded by the forwarding entity.
	// If the envelope did not carry a delay, HasDelay is false.
	Delay    delay.Delay
	HasDelay bool

	// Stanza is the forwarded stanza.
	Stanza *stanza.Element
}

// Wrap wraps a copy of e in a forwarding envelope recording the time it was
// originally received.
func Wrap(e *stanza.Element, received time.Time) *stanza.Element {
	f := stanza.NewElement(NS, "forwarded")
	f.AddChild(delay.Delay{Time: received}.Element())
	f.AddChild(e.Copy())
	return f
}

// Unwrap returns the contents of a forwarded element.
// The forwarded element may be passed directly or as the parent of one.
func Unwrap(e *stanza.Element) (Forwarded, error) {
	if e == nil {
		return Forwarded{}, ErrNotForwarded
	}
	f := e
	if f.Name.Space != NS || f.Name.Local != "forwarded" {
		f = e.Child(NS, "forwarded")
		if f == nil {
			return Forwarded{}, ErrNotForwarded
		}
	}
	var out Forwarded
	for _, c := range f.Children {
		switch {
		case c.Name.Space == delay.NS && c.Name.Local == "delay" && !out.HasDelay:
			out.Delay, out.HasDelay = delay.Parse(c)
		case out.Stanza == nil && stanza.Is(c):
			out.Stanza = c
		}
	}
	if out.Stanza == nil {
		return out, ErrNoStanza
	}
	return out, nil
}
