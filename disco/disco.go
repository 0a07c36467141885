// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package disco implements service discovery.
package disco // import "mellium.im/engine/disco"

import (
	"context"
	"fmt"
	"sort"

	"mellium.im/engine/conn"
	"mellium.im/engine/disco/info"
	"mellium.im/engine/disco/items"
	"mellium.im/engine/form"
	"mellium.im/engine/internal/ns"
	"mellium.im/engine/stanza"
	"mellium.im/xmpp/jid"
)

// Namespaces used by this package.
const (
	NSInfo  = ns.DiscoInfo
	NSItems = ns.DiscoItems
	NSCaps  = ns.Caps
)

// Info is the response to an info query.
type Info struct {
	Node       string
	Identities []info.Identity
	Features   []info.Feature

	// Forms holds any extended information forms, keyed by FORM_TYPE.
	Forms map[string]*form.Data
}

// HasFeature reports whether the feature var is advertised.
func (i Info) HasFeature(v string) bool {
	for _, f := range i.Features {
		if f.Var == v {
			return true
		}
	}
	return false
}

// HasIdentity reports whether an identity with the provided category and type
// is advertised.
// An empty type matches any type in the category.
func (i Info) HasIdentity(category, typ string) bool {
	for _, id := range i.Identities {
		if id.Category == category && (typ == "" || id.Type == typ) {
			return true
		}
	}
	return false
}

// Element returns the info as a disco#info query payload.
func (i Info) Element() *stanza.Element {
	q := stanza.NewElement(NSInfo, "query")
	if i.Node != "" {
		q.SetAttr("node", i.Node)
	}
	for _, id := range i.Identities {
		q.AddChild(id.Element())
	}
	for _, f := range i.Features {
		q.AddChild(f.Element())
	}
	types := make([]string, 0, len(i.Forms))
	for t := range i.Forms {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		x, _ := i.Forms[t].Submit()
		x.SetAttr("type", form.TypeResult)
		q.AddChild(x)
	}
	return q
}

// ParseInfo decodes a disco#info query payload.
func ParseInfo(q *stanza.Element) Info {
	res := Info{Node: q.Attribute("node")}
	for _, c := range q.Children {
		switch {
		case c.Name.Space == NSInfo && c.Name.Local == "identity":
			if id, ok := info.ParseIdentity(c); ok {
				res.Identities = append(res.Identities, id)
			}
		case c.Name.Space == NSInfo && c.Name.Local == "feature":
			if f, ok := info.ParseFeature(c); ok {
				res.Features = append(res.Features, f)
			}
		case c.Name.Space == form.NS && c.Name.Local == "x":
			data, err := form.Parse(c)
			if err != nil || data.FormType() == "" {
				continue
			}
			if res.Forms == nil {
				res.Forms = make(map[string]*form.Data)
			}
			res.Forms[data.FormType()] = data
		}
	}
	return res
}

// FetchInfo requests the identities and features of to.
// It does not use any cache.
func FetchInfo(ctx context.Context, c *conn.Conn, to jid.JID, node string) (Info, error) {
	q := stanza.NewElement(NSInfo, "query")
	if node != "" {
		q.SetAttr("node", node)
	}
	resp, err := c.IQ(stanza.GetIQ, to).Cnode(q).SendAwaitingResponse(ctx)
	if err != nil {
		return Info{}, fmt.Errorf("disco: error fetching info of %s: %w", to, err)
	}
	payload := resp.Child(NSInfo, "query")
	if payload == nil {
		return Info{Node: node}, nil
	}
	return ParseInfo(payload), nil
}

// FetchItems requests the items of to.
// It does not use any cache.
func FetchItems(ctx context.Context, c *conn.Conn, to jid.JID, node string) ([]items.Item, error) {
	q := stanza.NewElement(NSItems, "query")
	if node != "" {
		q.SetAttr("node", node)
	}
	resp, err := c.IQ(stanza.GetIQ, to).Cnode(q).SendAwaitingResponse(ctx)
	if err != nil {
		return nil, fmt.Errorf("disco: error fetching items of %s: %w", to, err)
	}
	var out []items.Item
	for _, el := range resp.Child(NSItems, "query").ChildrenNamed(NSItems, "item") {
		if item, ok := items.Parse(el); ok {
			out = append(out, item)
		}
	}
	return out, nil
}
