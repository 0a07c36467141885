// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package muc

import (
	"math"
	"strconv"
	"time"

	"mellium.im/engine/stanza"
)

// joinOpts collects the options passed to Join and CreateRoom.
// History limits are kept as attribute values so that an unset limit can be
// told apart from a zero limit.
type joinOpts struct {
	history  map[string]string
	password string
	nick     string
}

func newJoinOpts(opts []Option) joinOpts {
	o := joinOpts{}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o *joinOpts) limit(attr, value string) {
	if o.history == nil {
		o.history = make(map[string]string)
	}
	o.history[attr] = value
}

// Element returns the <x/> payload of the join presence.
func (o joinOpts) Element() *stanza.Element {
	x := stanza.NewElement(NS, "x")
	if len(o.history) > 0 {
		h := stanza.NewElement("", "history")
		for _, attr := range historyAttrs {
			if v, ok := o.history[attr]; ok {
				h.SetAttr(attr, v)
			}
		}
		x.AddChild(h)
	}
	if o.password != "" {
		pass := stanza.NewElement("", "password")
		pass.Text = o.password
		x.AddChild(pass)
	}
	return x
}

// historyAttrs fixes the order history limits are encoded in.
var historyAttrs = []string{"maxstanzas", "maxchars", "seconds", "since"}

// Option is used to configure joining a room.
type Option func(*joinOpts)

// MaxHistory limits the number of old messages the room replays on join.
func MaxHistory(messages uint64) Option {
	return func(o *joinOpts) {
		o.limit("maxstanzas", strconv.FormatUint(messages, 10))
	}
}

// MaxBytes limits the size in bytes of the XML the room replays on join.
func MaxBytes(b uint64) Option {
	return func(o *joinOpts) {
		o.limit("maxchars", strconv.FormatUint(b, 10))
	}
}

// Duration asks the room to only replay messages younger than d.
func Duration(d time.Duration) Option {
	return func(o *joinOpts) {
		secs := uint64(math.Abs(math.Round(d.Seconds())))
		o.limit("seconds", strconv.FormatUint(secs, 10))
	}
}

// Since asks the room to only replay messages sent after t.
func Since(t time.Time) Option {
	return func(o *joinOpts) {
		o.limit("since", t.UTC().Format(time.RFC3339Nano))
	}
}

// Password is used to join password protected rooms.
func Password(p string) Option {
	return func(o *joinOpts) {
		o.password = p
	}
}

// Nick is the nickname to join with.
// It overrides any resourcepart of the room address.
func Nick(n string) Option {
	return func(o *joinOpts) {
		o.nick = n
	}
}
