// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stanza

import (
	"encoding/xml"
	"strings"

	"mellium.im/engine/internal/attr"
	"mellium.im/engine/internal/ns"
	"mellium.im/xmlstream"
	"mellium.im/xmpp/jid"
)

// Element is a generic XML element tree.
//
// The name of every element in a tree carries its resolved namespace.
// When the tree is encoded an xmlns attribute is only written where an
// element's namespace differs from that of its parent.
// Namespace declarations are never stored in Attr.
type Element struct {
	Name     xml.Name
	Attr     []xml.Attr
	Children []*Element
	Text     string
}

// NewElement returns an element with the provided name and attributes.
func NewElement(space, local string, attrs ...xml.Attr) *Element {
	return &Element{
		Name: xml.Name{Space: space, Local: local},
		Attr: attrs,
	}
}

// Parse decodes the first element found in s.
// It is mostly useful in tests.
func Parse(s string) (*Element, error) {
	return Decode(xml.NewDecoder(strings.NewReader(s)))
}

// Decode reads tokens from r until it finds a start element and then decodes
// that element and all of its children.
func Decode(r xml.TokenReader) (*Element, error) {
	d, ok := r.(*xml.Decoder)
	if !ok {
		d = xml.NewTokenDecoder(r)
	}
	for {
		tok, err := d.Token()
		if err != nil {
			return nil, err
		}
		if start, ok := tok.(xml.StartElement); ok {
			e := &Element{}
			err = e.UnmarshalXML(d, start)
			if err != nil {
				return nil, err
			}
			return e, nil
		}
	}
}

// Attribute returns the value of the first attribute with the given local
// name.
// It is safe to call on a nil element.
func (e *Element) Attribute(local string) string {
	if e == nil {
		return ""
	}
	_, v := attr.Get(e.Attr, local)
	return v
}

// SetAttr sets (or removes, if value is empty) an attribute and returns the
// element for chaining.
func (e *Element) SetAttr(local, value string) *Element {
	e.Attr = attr.Set(e.Attr, local, value)
	return e
}

// ID returns the id attribute.
func (e *Element) ID() string {
	return e.Attribute("id")
}

// Type returns the type attribute.
func (e *Element) Type() string {
	return e.Attribute("type")
}

// From returns the parsed from attribute.
// If the attribute is missing or invalid the zero JID is returned.
func (e *Element) From() jid.JID {
	j, _ := jid.Parse(e.Attribute("from"))
	return j
}

// To returns the parsed to attribute.
// If the attribute is missing or invalid the zero JID is returned.
func (e *Element) To() jid.JID {
	j, _ := jid.Parse(e.Attribute("to"))
	return j
}

// Lang returns the xml:lang attribute.
func (e *Element) Lang() string {
	if e == nil {
		return ""
	}
	for _, a := range e.Attr {
		if a.Name.Local == "lang" && (a.Name.Space == ns.XML || a.Name.Space == "xml") {
			return a.Value
		}
	}
	return ""
}

// Child returns the first child with the provided name.
// An empty space matches any namespace.
// It is safe to call on a nil element, making it possible to chain lookups.
func (e *Element) Child(space, local string) *Element {
	if e == nil {
		return nil
	}
	for _, c := range e.Children {
		if c.Name.Local == local && (space == "" || c.Name.Space == space) {
			return c
		}
	}
	return nil
}

// ChildrenNamed returns every child with the provided name.
// An empty space matches any namespace.
func (e *Element) ChildrenNamed(space, local string) []*Element {
	if e == nil {
		return nil
	}
	var children []*Element
	for _, c := range e.Children {
		if c.Name.Local == local && (space == "" || c.Name.Space == space) {
			children = append(children, c)
		}
	}
	return children
}

// ChildText returns the character data of the first matching child, or an
// empty string.
func (e *Element) ChildText(space, local string) string {
	if c := e.Child(space, local); c != nil {
		return c.Text
	}
	return ""
}

// FirstChild returns the first child element regardless of its name or nil.
func (e *Element) FirstChild() *Element {
	if e == nil || len(e.Children) == 0 {
		return nil
	}
	return e.Children[0]
}

// AddChild appends c to the children of e.
// If c has no namespace it inherits the namespace of e.
func (e *Element) AddChild(c *Element) *Element {
	if c.Name.Space == "" {
		c.inherit(e.Name.Space)
	}
	e.Children = append(e.Children, c)
	return e
}

func (e *Element) inherit(space string) {
	e.Name.Space = space
	for _, c := range e.Children {
		if c.Name.Space == "" {
			c.inherit(space)
		}
	}
}

// RemoveChild removes the first child with the provided name and reports
// whether one was found.
func (e *Element) RemoveChild(space, local string) bool {
	for i, c := range e.Children {
		if c.Name.Local == local && (space == "" || c.Name.Space == space) {
			e.Children = append(e.Children[:i], e.Children[i+1:]...)
			return true
		}
	}
	return false
}

// Copy returns a deep copy of the element.
func (e *Element) Copy() *Element {
	if e == nil {
		return nil
	}
	cp := &Element{
		Name: e.Name,
		Text: e.Text,
	}
	if e.Attr != nil {
		cp.Attr = make([]xml.Attr, len(e.Attr))
		copy(cp.Attr, e.Attr)
	}
	for _, c := range e.Children {
		cp.Children = append(cp.Children, c.Copy())
	}
	return cp
}

// TokenReader satisfies the xmlstream.Marshaler interface.
func (e *Element) TokenReader() xml.TokenReader {
	return e.tokenReader("")
}

func (e *Element) tokenReader(parentSpace string) xml.TokenReader {
	start := xml.StartElement{
		Name: xml.Name{Local: e.Name.Local},
		Attr: make([]xml.Attr, len(e.Attr)),
	}
	copy(start.Attr, e.Attr)
	if e.Name.Space != parentSpace {
		start.Name.Space = e.Name.Space
	}

	inner := make([]xml.TokenReader, 0, len(e.Children)+1)
	if e.Text != "" {
		inner = append(inner, xmlstream.Token(xml.CharData(e.Text)))
	}
	for _, c := range e.Children {
		inner = append(inner, c.tokenReader(e.Name.Space))
	}
	return xmlstream.Wrap(xmlstream.MultiReader(inner...), start)
}

// WriteXML satisfies the xmlstream.WriterTo interface.
// It is like MarshalXML except it writes tokens to w.
func (e *Element) WriteXML(w xmlstream.TokenWriter) (int, error) {
	return xmlstream.Copy(w, e.TokenReader())
}

// MarshalXML satisfies the xml.Marshaler interface.
func (e *Element) MarshalXML(enc *xml.Encoder, _ xml.StartElement) error {
	_, err := e.WriteXML(enc)
	if err != nil {
		return err
	}
	return enc.Flush()
}

// UnmarshalXML satisfies the xml.Unmarshaler interface.
func (e *Element) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	e.Name = start.Name
	e.Attr = e.Attr[:0]
	for _, a := range start.Attr {
		if a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns") {
			continue
		}
		e.Attr = append(e.Attr, a)
	}
	if len(e.Attr) == 0 {
		e.Attr = nil
	}
	var text strings.Builder
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			child := &Element{}
			err = child.UnmarshalXML(d, t)
			if err != nil {
				return err
			}
			if child.Name.Space == "" {
				child.inherit(e.Name.Space)
			}
			e.Children = append(e.Children, child)
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			e.Text = text.String()
			return nil
		}
	}
}

// String returns the XML encoding of the element.
// Encoding errors result in an empty string.
func (e *Element) String() string {
	if e == nil {
		return ""
	}
	var buf strings.Builder
	enc := xml.NewEncoder(&buf)
	_, err := e.WriteXML(enc)
	if err != nil {
		return ""
	}
	if err = enc.Flush(); err != nil {
		return ""
	}
	return buf.String()
}
