// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package roster_test

import (
	"strconv"
	"testing"

	"mellium.im/engine/roster"
	"mellium.im/engine/stanza"
)

var transitionTests = [...]struct {
	in    roster.State
	typ   stanza.PresenceType
	out   roster.State
	reply stanza.PresenceType
}{
	// Subscribe while subscribed to the contact or waiting on them is approved.
	0: {
		in:    roster.State{Subscription: roster.To},
		typ:   stanza.SubscribePresence,
		out:   roster.State{Subscription: roster.Both},
		reply: stanza.SubscribedPresence,
	},
	1: {
		in:    roster.State{Subscription: roster.None, PendingOut: true},
		typ:   stanza.SubscribePresence,
		out:   roster.State{Subscription: roster.From, PendingOut: true},
		reply: stanza.SubscribedPresence,
	},
	2: {
		in:    roster.State{Subscription: roster.Both},
		typ:   stanza.SubscribePresence,
		out:   roster.State{Subscription: roster.Both},
		reply: stanza.SubscribedPresence,
	},
	// Otherwise it waits on the user.
	3: {
		in:  roster.State{Subscription: roster.None},
		typ: stanza.SubscribePresence,
		out: roster.State{Subscription: roster.None, PendingIn: true},
	},
	4: {
		in:  roster.State{Subscription: roster.From},
		typ: stanza.SubscribePresence,
		out: roster.State{Subscription: roster.From, PendingIn: true},
	},
	5: {
		in:  roster.State{},
		typ: stanza.SubscribePresence,
		out: roster.State{Subscription: roster.None, PendingIn: true},
	},
	// Subscribed is acknowledged with subscribe.
	6: {
		in:    roster.State{Subscription: roster.None, PendingOut: true},
		typ:   stanza.SubscribedPresence,
		out:   roster.State{Subscription: roster.To},
		reply: stanza.SubscribePresence,
	},
	7: {
		in:    roster.State{Subscription: roster.From, PendingOut: true},
		typ:   stanza.SubscribedPresence,
		out:   roster.State{Subscription: roster.Both},
		reply: stanza.SubscribePresence,
	},
	8: {
		in:    roster.State{Subscription: roster.To},
		typ:   stanza.SubscribedPresence,
		out:   roster.State{Subscription: roster.To},
		reply: stanza.SubscribePresence,
	},
	9: {
		in:    roster.State{Subscription: roster.Both, PendingIn: true},
		typ:   stanza.SubscribedPresence,
		out:   roster.State{Subscription: roster.Both, PendingIn: true},
		reply: stanza.SubscribePresence,
	},
	// Unsubscribed is acknowledged with unsubscribe.
	10: {
		in:    roster.State{Subscription: roster.To},
		typ:   stanza.UnsubscribedPresence,
		out:   roster.State{Subscription: roster.To},
		reply: stanza.UnsubscribePresence,
	},
	11: {
		in:    roster.State{Subscription: roster.None, PendingOut: true},
		typ:   stanza.UnsubscribedPresence,
		out:   roster.State{Subscription: roster.None},
		reply: stanza.UnsubscribePresence,
	},
	// Unsubscribe revokes the contact's subscription to us.
	12: {
		in:    roster.State{Subscription: roster.Both},
		typ:   stanza.UnsubscribePresence,
		out:   roster.State{Subscription: roster.To},
		reply: stanza.UnsubscribedPresence,
	},
	13: {
		in:    roster.State{Subscription: roster.From, PendingIn: true},
		typ:   stanza.UnsubscribePresence,
		out:   roster.State{Subscription: roster.None},
		reply: stanza.UnsubscribedPresence,
	},
	// Everything else is a no-op.
	14: {
		in:  roster.State{Subscription: roster.Both, PendingIn: true},
		typ: stanza.AvailablePresence,
		out: roster.State{Subscription: roster.Both, PendingIn: true},
	},
	15: {
		in:  roster.State{Subscription: roster.From},
		typ: stanza.UnavailablePresence,
		out: roster.State{Subscription: roster.From},
	},
	16: {
		in:  roster.State{Subscription: roster.To, PendingOut: true},
		typ: stanza.ProbePresence,
		out: roster.State{Subscription: roster.To, PendingOut: true},
	},
}

func TestTransition(t *testing.T) {
	for i, tc := range transitionTests {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			out, reply, send := roster.Transition(tc.in, tc.typ)
			if out != tc.out {
				t.Errorf("wrong state: want=%+v, got=%+v", tc.out, out)
			}
			if reply != tc.reply {
				t.Errorf("wrong reply: want=%q, got=%q", tc.reply, reply)
			}
			if send != (tc.reply != "") {
				t.Errorf("wrong send: want=%t, got=%t", tc.reply != "", send)
			}
		})
	}
}

// Applying the same event twice must not change the state further.
func TestTransitionIdempotent(t *testing.T) {
	for i, tc := range transitionTests {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			once, _, _ := roster.Transition(tc.in, tc.typ)
			twice, _, _ := roster.Transition(once, tc.typ)
			if once != twice {
				t.Errorf("second event changed state: once=%+v, twice=%+v", once, twice)
			}
		})
	}
}
