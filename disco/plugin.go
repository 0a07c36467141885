// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package disco

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"mellium.im/engine/conn"
	"mellium.im/engine/disco/info"
	"mellium.im/engine/disco/items"
	"mellium.im/engine/internal/logging"
	"mellium.im/engine/plugin"
	"mellium.im/engine/stanza"
	"mellium.im/xmpp/jid"
)

// Option configures the discovery plugin.
type Option func(*Disco)

// Identity adds an identity to those advertised for the local client.
func Identity(category, typ, name string) Option {
	return func(d *Disco) {
		d.identities = append(d.identities, info.Identity{Category: category, Type: typ, Name: name})
	}
}

// Feature adds features to those advertised for the local client.
func Feature(vars ...string) Option {
	return func(d *Disco) {
		for _, v := range vars {
			d.features[v] = struct{}{}
		}
	}
}

// Disco queries other entities and answers queries about the local client.
// Responses are cached until the connection goes offline, and concurrent
// identical queries share a single request.
type Disco struct {
	c      *conn.Conn
	logger *logging.Logger
	group  singleflight.Group

	mu         sync.Mutex
	identities []info.Identity
	features   map[string]struct{}
	infos      map[string]Info
	items      map[string][]items.Item
	refs       []conn.HandlerRef
}

// New returns a discovery plugin that sends over c.
func New(c *conn.Conn, logger *logging.Logger, opts ...Option) *Disco {
	d := &Disco{
		c:        c,
		logger:   logger.With("disco"),
		features: map[string]struct{}{NSInfo: {}, NSCaps: {}},
		infos:    make(map[string]Info),
		items:    make(map[string][]items.Item),
	}
	for _, o := range opts {
		o(d)
	}
	if len(d.identities) == 0 {
		d.identities = []info.Identity{{Category: "client", Type: "pc"}}
	}
	return d
}

// ID satisfies plugin.Plugin.
func (d *Disco) ID() plugin.ID {
	return plugin.Disco
}

// AddFeature advertises more features for the local client.
func (d *Disco) AddFeature(vars ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, v := range vars {
		d.features[v] = struct{}{}
	}
}

// Own returns the info advertised for the local client.
func (d *Disco) Own() Info {
	d.mu.Lock()
	defer d.mu.Unlock()
	res := Info{Identities: append([]info.Identity(nil), d.identities...)}
	vars := make([]string, 0, len(d.features))
	for v := range d.features {
		vars = append(vars, v)
	}
	sort.Strings(vars)
	for _, v := range vars {
		res.Features = append(res.Features, info.Feature{Var: v})
	}
	return res
}

// Caps returns the entity capabilities of the local client.
func (d *Disco) Caps(node string) Caps {
	return Caps{Hash: "sha-1", Node: node, Ver: d.Own().Ver()}
}

// RegisterHandlers satisfies plugin.Registerer.
func (d *Disco) RegisterHandlers(c *conn.Conn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	get := []string{string(stanza.GetIQ)}
	d.refs = append(d.refs,
		c.AddHandler(conn.Matcher{Name: "iq", NS: NSInfo, Types: get}, conn.HandlerFunc(d.handleInfo)),
		c.AddHandler(conn.Matcher{Name: "iq", NS: NSItems, Types: get}, conn.HandlerFunc(d.handleItems)),
	)
}

// UnregisterHandlers satisfies plugin.Registerer.
func (d *Disco) UnregisterHandlers(c *conn.Conn) {
	d.mu.Lock()
	refs := d.refs
	d.refs = nil
	d.mu.Unlock()
	for _, ref := range refs {
		c.DeleteHandler(ref)
	}
}

// Offline clears the cache.
func (d *Disco) Offline() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.infos = make(map[string]Info)
	d.items = make(map[string][]items.Item)
}

func cacheKey(to jid.JID, node string) string {
	return to.String() + "#" + node
}

// Info returns the identities and features of to.
func (d *Disco) Info(ctx context.Context, to jid.JID, node string) (Info, error) {
	key := cacheKey(to, node)
	d.mu.Lock()
	cached, ok := d.infos[key]
	d.mu.Unlock()
	if ok {
		return cached, nil
	}
	v, err, _ := d.group.Do("info:"+key, func() (interface{}, error) {
		d.mu.Lock()
		cached, ok := d.infos[key]
		d.mu.Unlock()
		if ok {
			return cached, nil
		}
		res, err := FetchInfo(ctx, d.c, to, node)
		if err != nil {
			return Info{}, err
		}
		d.mu.Lock()
		d.infos[key] = res
		d.mu.Unlock()
		return res, nil
	})
	return v.(Info), err
}

// Items returns the items of to.
func (d *Disco) Items(ctx context.Context, to jid.JID, node string) ([]items.Item, error) {
	key := cacheKey(to, node)
	d.mu.Lock()
	cached, ok := d.items[key]
	d.mu.Unlock()
	if ok {
		return cached, nil
	}
	v, err, _ := d.group.Do("items:"+key, func() (interface{}, error) {
		d.mu.Lock()
		cached, ok := d.items[key]
		d.mu.Unlock()
		if ok {
			return cached, nil
		}
		res, err := FetchItems(ctx, d.c, to, node)
		if err != nil {
			return []items.Item(nil), err
		}
		d.mu.Lock()
		d.items[key] = res
		d.mu.Unlock()
		return res, nil
	})
	return v.([]items.Item), err
}

// ServerInfo returns the info of the domain of the local account.
func (d *Disco) ServerInfo(ctx context.Context) (Info, error) {
	return d.Info(ctx, d.c.LocalAddr().Domain(), "")
}

// AccountInfo returns the info of the bare address of the local account, which
// is where personal eventing features are advertised.
func (d *Disco) AccountInfo(ctx context.Context) (Info, error) {
	return d.Info(ctx, d.c.LocalAddr().Bare(), "")
}

// FindService returns the first item of the local domain that has an identity
// with the provided category and type.
func (d *Disco) FindService(ctx context.Context, category, typ string) (jid.JID, error) {
	return d.find(ctx, category+"/"+typ, func(i Info) bool {
		return i.HasIdentity(category, typ)
	})
}

// FindFeature returns the local domain if it advertises feature, or else the
// first of its items that does.
func (d *Disco) FindFeature(ctx context.Context, feature string) (jid.JID, error) {
	domain := d.c.LocalAddr().Domain()
	i, err := d.Info(ctx, domain, "")
	if err != nil {
		return jid.JID{}, err
	}
	if i.HasFeature(feature) {
		return domain, nil
	}
	return d.find(ctx, feature, func(i Info) bool {
		return i.HasFeature(feature)
	})
}

func (d *Disco) find(ctx context.Context, what string, match func(Info) bool) (jid.JID, error) {
	domain := d.c.LocalAddr().Domain()
	list, err := d.Items(ctx, domain, "")
	if err != nil {
		return jid.JID{}, err
	}
	for _, item := range list {
		i, err := d.Info(ctx, item.JID, item.Node)
		if err != nil {
			d.logger.Debug("skipping %s: %v", item.JID, err)
			continue
		}
		if match(i) {
			return item.JID, nil
		}
	}
	return jid.JID{}, &conn.NotFoundError{Kind: "service", Addr: what}
}

func (d *Disco) handleInfo(e *stanza.Element) bool {
	own := d.Own()
	own.Node = e.Child(NSInfo, "query").Attribute("node")
	if err := d.c.Reply(e).Cnode(own.Element()).Send(context.Background()); err != nil {
		d.logger.Debug("error answering info query: %v", err)
	}
	return true
}

func (d *Disco) handleItems(e *stanza.Element) bool {
	q := stanza.NewElement(NSItems, "query")
	if node := e.Child(NSItems, "query").Attribute("node"); node != "" {
		q.SetAttr("node", node)
	}
	if err := d.c.Reply(e).Cnode(q).Send(context.Background()); err != nil {
		d.logger.Debug("error answering items query: %v", err)
	}
	return true
}
