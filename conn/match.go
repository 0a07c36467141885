// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package conn

import (
	"strings"

	"mellium.im/engine/stanza"
	"mellium.im/xmpp/jid"
)

// Matcher selects incoming elements for a handler.
// Zero valued fields match anything.
type Matcher struct {
	// NS matches the namespace of the element itself or of any of its direct
	// children.
	NS string

	// Name matches the local name of the element.
	Name string

	// Types matches the type attribute against any of the provided values.
	Types []string

	// ID matches the id attribute.
	ID string

	// From matches the from attribute.
	From jid.JID

	// MatchBareFrom compares only the bare form of the from address.
	MatchBareFrom bool

	// IgnoreNamespaceFragment drops anything after a "#" from both namespaces
	// before comparing them.
	IgnoreNamespaceFragment bool
}

// Match reports whether e is selected by m.
func (m Matcher) Match(e *stanza.Element) bool {
	if e == nil {
		return false
	}
	if m.Name != "" && e.Name.Local != m.Name {
		return false
	}
	if m.NS != "" && !m.nsMatch(e) {
		return false
	}
	if len(m.Types) > 0 {
		typ := e.Type()
		found := false
		for _, t := range m.Types {
			if t == typ {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if m.ID != "" && e.ID() != m.ID {
		return false
	}
	if !m.From.Equal(jidZero) {
		from := e.From()
		want := m.From
		if m.MatchBareFrom {
			from = from.Bare()
			want = want.Bare()
		}
		if !from.Equal(want) {
			return false
		}
	}
	return true
}

func (m Matcher) nsMatch(e *stanza.Element) bool {
	want := m.fragment(m.NS)
	if m.fragment(e.Name.Space) == want {
		return true
	}
	for _, c := range e.Children {
		if m.fragment(c.Name.Space) == want {
			return true
		}
	}
	return false
}

func (m Matcher) fragment(space string) string {
	if !m.IgnoreNamespaceFragment {
		return space
	}
	if idx := strings.IndexByte(space, '#'); idx != -1 {
		return space[:idx]
	}
	return space
}
