// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package attr contains unexported functionality related to XML attributes and
// stanza identifiers.
package attr // import "mellium.im/engine/internal/attr"

import (
	"encoding/xml"
)

// Get returns the index and value of the first attribute with the provided
// local name from a list of attributes, or -1 and an empty string if no such
// attribute exists.
func Get(attr []xml.Attr, local string) (int, string) {
	for i, a := range attr {
		if a.Name.Local == local {
			return i, a.Value
		}
	}
	return -1, ""
}

// Set replaces the value of the first attribute with the provided local name
// or appends a new attribute if none exists.
// An empty value removes the attribute.
func Set(attr []xml.Attr, local, value string) []xml.Attr {
	idx, _ := Get(attr, local)
	switch {
	case idx == -1 && value == "":
		return attr
	case idx == -1:
		return append(attr, xml.Attr{Name: xml.Name{Local: local}, Value: value})
	case value == "":
		return append(attr[:idx], attr[idx+1:]...)
	}
	attr[idx].Value = value
	return attr
}
