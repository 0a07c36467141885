// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package info contains the identities and features listed in a disco#info
// response.
package info // import "mellium.im/engine/disco/info"

import (
	"encoding/xml"

	"mellium.im/engine/internal/ns"
	"mellium.im/engine/stanza"
)

func isInfo(e *stanza.Element, local string) bool {
	return e != nil && e.Name.Local == local && e.Name.Space == ns.DiscoInfo
}

// Feature is a protocol namespace an entity advertises support for.
type Feature struct {
	Var string
}

// Element returns the <feature/> element.
func (f Feature) Element() *stanza.Element {
	return stanza.NewElement(ns.DiscoInfo, "feature").SetAttr("var", f.Var)
}

// MarshalXML implements xml.Marshaler.
func (f Feature) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	return f.Element().MarshalXML(e, start)
}

// ParseFeature decodes a feature element.
func ParseFeature(e *stanza.Element) (Feature, bool) {
	if !isInfo(e, "feature") {
		return Feature{}, false
	}
	return Feature{Var: e.Attribute("var")}, true
}

// Identity says what kind of entity answered a disco#info request.
type Identity struct {
	Category string
	Type     string
	Name     string
	Lang     string
}

// Key is the category/type/lang/name form that identities are sorted and
// hashed by when computing entity capabilities.
func (i Identity) Key() string {
	return i.Category + "/" + i.Type + "/" + i.Lang + "/" + i.Name
}

// Element returns the <identity/> element.
// Empty names and languages are omitted.
func (i Identity) Element() *stanza.Element {
	e := stanza.NewElement(ns.DiscoInfo, "identity").
		SetAttr("category", i.Category).
		SetAttr("type", i.Type)
	if i.Name != "" {
		e.SetAttr("name", i.Name)
	}
	if i.Lang != "" {
		e.Attr = append(e.Attr, xml.Attr{Name: xml.Name{Space: ns.XML, Local: "lang"}, Value: i.Lang})
	}
	return e
}

// MarshalXML implements xml.Marshaler.
func (i Identity) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	return i.Element().MarshalXML(e, start)
}

// ParseIdentity decodes an identity element.
func ParseIdentity(e *stanza.Element) (Identity, bool) {
	if !isInfo(e, "identity") {
		return Identity{}, false
	}
	return Identity{
		Category: e.Attribute("category"),
		Type:     e.Attribute("type"),
		Name:     e.Attribute("name"),
		Lang:     e.Lang(),
	}, true
}
