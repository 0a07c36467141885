// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package disco

import (
	/* #nosec */
	"crypto/sha1"
	"encoding/base64"
	"encoding/xml"
	"sort"
	"strings"

	"mellium.im/engine/form"
	"mellium.im/engine/stanza"
	"mellium.im/xmlstream"
)

// Caps can be included in a presence stanza to advertise entity capabilities.
// Node is a string that uniquely identifies the client and Ver is the hash of
// its Info.
type Caps struct {
	Hash string
	Node string
	Ver  string
}

// TokenReader implements xmlstream.Marshaler.
func (c Caps) TokenReader() xml.TokenReader {
	return xmlstream.Wrap(nil, xml.StartElement{
		Name: xml.Name{Space: NSCaps, Local: "c"},
		Attr: []xml.Attr{
			{Name: xml.Name{Local: "hash"}, Value: c.Hash},
			{Name: xml.Name{Local: "node"}, Value: c.Node},
			{Name: xml.Name{Local: "ver"}, Value: c.Ver},
		},
	})
}

// WriteXML implements xmlstream.WriterTo.
func (c Caps) WriteXML(w xmlstream.TokenWriter) (int, error) {
	return xmlstream.Copy(w, c.TokenReader())
}

// MarshalXML implements xml.Marshaler.
func (c Caps) MarshalXML(e *xml.Encoder, _ xml.StartElement) error {
	_, err := c.WriteXML(e)
	if err != nil {
		return err
	}
	return e.Flush()
}

// Element returns the caps as an element tree.
func (c Caps) Element() *stanza.Element {
	e := stanza.NewElement(NSCaps, "c")
	e.SetAttr("hash", c.Hash)
	e.SetAttr("node", c.Node)
	e.SetAttr("ver", c.Ver)
	return e
}

// ParseCaps returns the capabilities advertised in a presence, if any.
func ParseCaps(p *stanza.Element) (Caps, bool) {
	c := p.Child(NSCaps, "c")
	if c == nil {
		return Caps{}, false
	}
	return Caps{
		Hash: c.Attribute("hash"),
		Node: c.Attribute("node"),
		Ver:  c.Attribute("ver"),
	}, true
}

// Ver returns the sha-1 verification string of the info.
func (i Info) Ver() string {
	ids := make([]string, 0, len(i.Identities))
	for _, id := range i.Identities {
		ids = append(ids, id.Key())
	}
	sort.Strings(ids)
	feats := make([]string, 0, len(i.Features))
	for _, f := range i.Features {
		feats = append(feats, f.Var)
	}
	sort.Strings(feats)

	var b strings.Builder
	for _, s := range ids {
		b.WriteString(s)
		b.WriteByte('<')
	}
	for _, s := range feats {
		b.WriteString(s)
		b.WriteByte('<')
	}
	types := make([]string, 0, len(i.Forms))
	for t := range i.Forms {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		b.WriteString(t)
		b.WriteByte('<')
		data := i.Forms[t]
		var vars []string
		data.ForFields(func(f form.FieldData) {
			if f.Var != "" && f.Var != "FORM_TYPE" {
				vars = append(vars, f.Var)
			}
		})
		sort.Strings(vars)
		for _, v := range vars {
			b.WriteString(v)
			b.WriteByte('<')
			vals := data.Values(v)
			sort.Strings(vals)
			for _, val := range vals {
				b.WriteString(val)
				b.WriteByte('<')
			}
		}
	}

	/* #nosec */
	sum := sha1.Sum([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(sum[:])
}
