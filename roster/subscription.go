// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package roster

import (
	"mellium.im/engine/stanza"
)

// Subscription is the presence subscription state between the user and a
// contact.
type Subscription string

// A list of subscription states.
// Remove only appears in roster pushes and requests.
const (
	None   Subscription = "none"
	To     Subscription = "to"
	From   Subscription = "from"
	Both   Subscription = "both"
	Remove Subscription = "remove"
)

func (s Subscription) hasTo() bool {
	return s == To || s == Both
}

// State is the subscription related state kept for a contact.
type State struct {
	Subscription Subscription
	PendingIn    bool
	PendingOut   bool
}

// Transition applies an incoming presence of type typ to s.
// It returns the new state and the type of presence that must be sent back to
// the contact, if any.
// Presence types that do not concern subscriptions leave the state unchanged.
func Transition(s State, typ stanza.PresenceType) (State, stanza.PresenceType, bool) {
	if s.Subscription == "" {
		s.Subscription = None
	}
	switch typ {
	case stanza.SubscribePresence:
		if !s.Subscription.hasTo() && !s.PendingOut {
			s.PendingIn = true
			return s, "", false
		}
		s.PendingIn = false
		switch s.Subscription {
		case None:
			s.Subscription = From
		case To:
			s.Subscription = Both
		}
		return s, stanza.SubscribedPresence, true
	case stanza.SubscribedPresence:
		s.PendingOut = false
		switch s.Subscription {
		case None:
			s.Subscription = To
		case From:
			s.Subscription = Both
		}
		return s, stanza.SubscribePresence, true
	case stanza.UnsubscribedPresence:
		s.PendingOut = false
		return s, stanza.UnsubscribePresence, true
	case stanza.UnsubscribePresence:
		s.PendingIn = false
		switch s.Subscription {
		case From:
			s.Subscription = None
		case Both:
			s.Subscription = To
		}
		return s, stanza.UnsubscribedPresence, true
	}
	return s, "", false
}
