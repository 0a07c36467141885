// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package paging implements result set management.
package paging // import "mellium.im/engine/paging"

import (
	"encoding/xml"
	"strconv"

	"mellium.im/engine/internal/ns"
	"mellium.im/engine/stanza"
)

// NS is the namespace used by this package.
const NS = ns.RSM

// Request selects a page of a query's results.
//
// Paging backward uses Before with the first id of the current page.
// Last with an empty Before asks for the final page.
// Paging forward uses After with the last id of the current page.
type Request struct {
	Max    uint64
	After  string
	Before string
	Last   bool
}

// Element returns the <set/> element.
func (req Request) Element() *stanza.Element {
	set := stanza.NewElement(NS, "set")
	child := func(local, text string) {
		c := stanza.NewElement("", local)
		c.Text = text
		set.AddChild(c)
	}
	if req.Max > 0 {
		child("max", strconv.FormatUint(req.Max, 10))
	}
	if req.After != "" {
		child("after", req.After)
	}
	if req.Before != "" || req.Last {
		child("before", req.Before)
	}
	return set
}

// MarshalXML implements xml.Marshaler.
func (req Request) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	return req.Element().MarshalXML(e, start)
}

// Set is the result set metadata of a returned page.
// HasCount is false if the responder did not report a total.
type Set struct {
	First      string
	FirstIndex int
	Last       string
	Count      int
	HasCount   bool
}

// Parse reads a <set/> from e or from a direct child of e.
func Parse(e *stanza.Element) (Set, bool) {
	if e == nil {
		return Set{}, false
	}
	set := e
	if set.Name.Space != NS || set.Name.Local != "set" {
		set = e.Child(NS, "set")
		if set == nil {
			return Set{}, false
		}
	}
	var s Set
	if first := set.Child(NS, "first"); first != nil {
		s.First = first.Text
		s.FirstIndex, _ = strconv.Atoi(first.Attribute("index"))
	}
	s.Last = set.ChildText(NS, "last")
	if count := set.Child(NS, "count"); count != nil {
		var err error
		s.Count, err = strconv.Atoi(count.Text)
		s.HasCount = err == nil
	}
	return s, true
}

// Previous returns a request for the page before s.
func (s Set) Previous(max uint64) Request {
	return Request{Max: max, Before: s.First, Last: s.First == ""}
}

// Next returns a request for the page after s.
func (s Set) Next(max uint64) Request {
	return Request{Max: max, After: s.Last}
}
