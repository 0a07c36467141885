// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stanza

import (
	"context"
	"encoding/xml"
	"errors"
	"sort"

	"mellium.im/engine/internal/ns"
	"mellium.im/xmpp/jid"
)

// ErrNoSender is returned when a builder that was never bound to a Sender is
// asked to send itself.
var ErrNoSender = errors.New("stanza: builder has no sender")

// Sender is anything that can transmit an element and, optionally, wait for
// the response to a request.
// The connection core is the canonical implementation.
type Sender interface {
	Send(ctx context.Context, e *Element) error
	SendAwaitingResponse(ctx context.Context, e *Element) (*Element, error)
}

// Attrs is a set of attributes used by the builder.
// The special key "xmlns" sets the namespace of the element and "xml:lang" is
// encoded in the XML namespace.
// Keys are applied in sorted order so that output is stable.
type Attrs map[string]string

// Builder is a mutable cursor over an element tree.
//
// C descends into a new child, Up returns to the parent, and Send or
// SendAwaitingResponse hand the finished tree to the Sender the builder was
// bound to.
type Builder struct {
	root *Element
	path []*Element
	s    Sender
}

// NewBuilder returns a builder whose root element has the provided local name
// and attributes.
func NewBuilder(local string, attrs Attrs) *Builder {
	root := &Element{Name: xml.Name{Local: local}}
	applyAttrs(root, attrs)
	return &Builder{root: root, path: []*Element{root}}
}

// Wrap returns a builder positioned at an existing element.
func Wrap(e *Element) *Builder {
	return &Builder{root: e, path: []*Element{e}}
}

// WithSender binds the builder to s and returns it.
func (b *Builder) WithSender(s Sender) *Builder {
	b.s = s
	return b
}

func (b *Builder) cur() *Element {
	return b.path[len(b.path)-1]
}

// C appends a child to the current element and moves the cursor to it.
// The child inherits the current namespace unless attrs sets xmlns.
func (b *Builder) C(local string, attrs Attrs, text string) *Builder {
	parent := b.cur()
	child := &Element{
		Name: xml.Name{Space: parent.Name.Space, Local: local},
		Text: text,
	}
	applyAttrs(child, attrs)
	parent.Children = append(parent.Children, child)
	b.path = append(b.path, child)
	return b
}

// Cnode appends an existing element to the current element and moves the
// cursor to it.
func (b *Builder) Cnode(e *Element) *Builder {
	b.cur().AddChild(e)
	b.path = append(b.path, e)
	return b
}

// Up moves the cursor to the parent of the current element.
// At the root it is a no-op.
func (b *Builder) Up() *Builder {
	if len(b.path) > 1 {
		b.path = b.path[:len(b.path)-1]
	}
	return b
}

// Top moves the cursor back to the root element.
func (b *Builder) Top() *Builder {
	b.path = b.path[:1]
	return b
}

// Attrs merges attributes into the current element.
func (b *Builder) Attrs(attrs Attrs) *Builder {
	applyAttrs(b.cur(), attrs)
	return b
}

// T sets the character data of the current element.
func (b *Builder) T(text string) *Builder {
	b.cur().Text = text
	return b
}

// Element returns the root of the tree being built.
func (b *Builder) Element() *Element {
	return b.root
}

// TokenReader satisfies the xmlstream.Marshaler interface.
func (b *Builder) TokenReader() xml.TokenReader {
	return b.root.TokenReader()
}

// String returns the XML encoding of the tree.
func (b *Builder) String() string {
	return b.root.String()
}

// Send transmits the tree without waiting for a response.
func (b *Builder) Send(ctx context.Context) error {
	if b.s == nil {
		return ErrNoSender
	}
	return b.s.Send(ctx, b.root)
}

// SendAwaitingResponse transmits the tree and blocks until a response is
// received or the request fails.
func (b *Builder) SendAwaitingResponse(ctx context.Context) (*Element, error) {
	if b.s == nil {
		return nil, ErrNoSender
	}
	return b.s.SendAwaitingResponse(ctx, b.root)
}

func applyAttrs(e *Element, attrs Attrs) {
	if len(attrs) == 0 {
		return
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := attrs[k]
		switch k {
		case "xmlns":
			e.inherit(v)
		case "xml:lang":
			e.Attr = append(e.Attr, xml.Attr{Name: xml.Name{Space: ns.XML, Local: "lang"}, Value: v})
		default:
			e.SetAttr(k, v)
		}
	}
}

// IQ returns a builder for an IQ stanza of the given type.
// If to is the zero value no to attribute is set.
func IQ(typ IQType, to jid.JID) *Builder {
	return NewBuilder("iq", addrAttrs(string(typ), to))
}

// Message returns a builder for a message stanza of the given type.
func Message(typ MessageType, to jid.JID) *Builder {
	return NewBuilder("message", addrAttrs(string(typ), to))
}

// Presence returns a builder for a presence stanza of the given type.
func Presence(typ PresenceType, to jid.JID) *Builder {
	return NewBuilder("presence", addrAttrs(string(typ), to))
}

// Result returns a builder for an empty result to the provided IQ request.
func Result(req *Element) *Builder {
	attrs := Attrs{"type": string(ResultIQ), "id": req.ID()}
	if from := req.Attribute("from"); from != "" {
		attrs["to"] = from
	}
	return NewBuilder("iq", attrs)
}

// ErrorReply returns a builder for an error reply to req that carries se.
// The reply uses the same stanza name as the request.
func ErrorReply(req *Element, se Error) *Builder {
	attrs := Attrs{"type": "error"}
	if id := req.ID(); id != "" {
		attrs["id"] = id
	}
	if from := req.Attribute("from"); from != "" {
		attrs["to"] = from
	}
	b := NewBuilder(req.Name.Local, attrs)
	return b.Cnode(se.Element()).Up()
}

func addrAttrs(typ string, to jid.JID) Attrs {
	attrs := Attrs{}
	if typ != "" {
		attrs["type"] = typ
	}
	if !to.Equal(jid.JID{}) {
		attrs["to"] = to.String()
	}
	return attrs
}
