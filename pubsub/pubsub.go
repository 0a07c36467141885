// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package pubsub

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"mellium.im/engine/conn"
	"mellium.im/engine/form"
	"mellium.im/engine/paging"
	"mellium.im/engine/stanza"
	"mellium.im/xmpp/jid"
)

var errNoNode = errors.New("pubsub: missing node")

// PreconditionNotMet matches the error returned by a service when the publish
// options do not agree with the configuration of an existing node.
var PreconditionNotMet = stanza.Error{Condition: stanza.Conflict}

// Options returns a publish-options form that requires the provided node
// configuration.
// Field names are given without the "pubsub#" prefix.
func Options(cfg map[string]form.FieldValue) *form.Data {
	d := form.New(form.Hidden("FORM_TYPE", form.Value(NSPublishOptions)))
	names := make([]string, 0, len(cfg))
	for name := range cfg {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		// Creating fields on a new form cannot fail.
		_ = d.Set("pubsub#"+name, cfg[name], form.CreateField)
	}
	return d
}

// PrivateOptions returns publish options for a node that only the owner can
// read and that keeps every item.
func PrivateOptions() *form.Data {
	return Options(map[string]form.FieldValue{
		"persist_items": form.BoolValue(true),
		"access_model":  form.TextValue("whitelist"),
		"max_items":     form.TextValue("max"),
	})
}

func request(typ stanza.IQType, to jid.JID, space string) *stanza.Builder {
	return stanza.IQ(typ, to).C("pubsub", stanza.Attrs{"xmlns": space}, "")
}

// Publish copies item to node on the service at to and returns the id of the
// published item.
// If to is the zero JID the item is published to the account of the local
// user.
// If opts is not nil it is sent as publish options.
func Publish(ctx context.Context, c *conn.Conn, to jid.JID, node string, item Item, opts *form.Data) (string, error) {
	if node == "" {
		return "", &conn.ConfigurationError{Op: "publish", Err: errNoNode}
	}
	b := request(stanza.SetIQ, to, NS).
		C("publish", stanza.Attrs{"node": node}, "").
		Cnode(item.Element()).Up().Up()
	if opts != nil {
		submitted, _ := opts.Submit()
		b.C("publish-options", nil, "").Cnode(submitted)
	}
	resp, err := c.SendAwaitingResponse(ctx, b.Element())
	if err != nil {
		return "", fmt.Errorf("pubsub: error publishing to %s: %w", node, err)
	}
	id := resp.Child(NS, "pubsub").Child(NS, "publish").Child(NS, "item").Attribute("id")
	if id == "" {
		id = item.ID
	}
	return id, nil
}

// Query selects the items to fetch from a node.
type Query struct {
	// Node is the ID of a node to query.
	Node string

	// Item is a specific item to fetch by its ID.
	Item string

	// MaxItems restricts results to the most recent items.
	MaxItems uint64

	// Page is used if the service supports result set management.
	Page *paging.Request
}

// Result is the response to a Fetch.
type Result struct {
	Items []Item

	// Set is only valid if HasSet is true.
	Set    paging.Set
	HasSet bool
}

// Fetch requests items from a node on the service at to.
// If to is the zero JID the personal eventing service of the local account
// is queried.
func Fetch(ctx context.Context, c *conn.Conn, to jid.JID, q Query) (Result, error) {
	if q.Node == "" {
		return Result{}, &conn.ConfigurationError{Op: "fetch items", Err: errNoNode}
	}
	attrs := stanza.Attrs{"node": q.Node}
	if q.MaxItems > 0 {
		attrs["max_items"] = strconv.FormatUint(q.MaxItems, 10)
	}
	b := request(stanza.GetIQ, to, NS).C("items", attrs, "")
	if q.Item != "" {
		b.C("item", stanza.Attrs{"id": q.Item}, "").Up()
	}
	if q.Page != nil {
		b.Up().Cnode(q.Page.Element())
	}
	resp, err := c.SendAwaitingResponse(ctx, b.Element())
	if err != nil {
		return Result{}, fmt.Errorf("pubsub: error fetching items from %s: %w", q.Node, err)
	}
	ps := resp.Child(NS, "pubsub")
	var res Result
	for _, item := range ps.Child(NS, "items").ChildrenNamed(NS, "item") {
		res.Items = append(res.Items, ParseItem(item))
	}
	res.Set, res.HasSet = paging.Parse(ps)
	return res, nil
}

// Delete removes an item from the node.
// If notify is set, subscribers are told about the removal.
func Delete(ctx context.Context, c *conn.Conn, to jid.JID, node, id string, notify bool) error {
	if node == "" {
		return &conn.ConfigurationError{Op: "retract", Err: errNoNode}
	}
	attrs := stanza.Attrs{"node": node}
	if notify {
		attrs["notify"] = "true"
	}
	_, err := request(stanza.SetIQ, to, NS).
		C("retract", attrs, "").
		C("item", stanza.Attrs{"id": id}, "").
		WithSender(c).
		SendAwaitingResponse(ctx)
	return err
}

// CreateNode adds a new node on the service with the provided configuration,
// or the default configuration if cfg is nil.
func CreateNode(ctx context.Context, c *conn.Conn, to jid.JID, node string, cfg *form.Data) error {
	b := request(stanza.SetIQ, to, NS).C("create", stanza.Attrs{"node": node}, "").Up()
	if cfg != nil {
		submitted, _ := cfg.Submit()
		b.C("configure", nil, "").Cnode(submitted)
	}
	_, err := c.SendAwaitingResponse(ctx, b.Element())
	return err
}

// GetConfig fetches the configurable options for the given node.
func GetConfig(ctx context.Context, c *conn.Conn, to jid.JID, node string) (*form.Data, error) {
	return getConfig(ctx, c, to, "configure", stanza.Attrs{"node": node})
}

// GetDefaultConfig fetches the options that new nodes are created with.
func GetDefaultConfig(ctx context.Context, c *conn.Conn, to jid.JID) (*form.Data, error) {
	return getConfig(ctx, c, to, "default", nil)
}

func getConfig(ctx context.Context, c *conn.Conn, to jid.JID, local string, attrs stanza.Attrs) (*form.Data, error) {
	resp, err := request(stanza.GetIQ, to, NSOwner).
		C(local, attrs, "").
		WithSender(c).
		SendAwaitingResponse(ctx)
	if err != nil {
		return nil, err
	}
	x := resp.Child(NSOwner, "pubsub").Child(NSOwner, local).Child(form.NS, "x")
	if x == nil {
		return nil, &conn.NotFoundError{Kind: "node configuration", Addr: to.String()}
	}
	return form.Parse(x)
}

// SetConfig submits the provided form to the service for the given node.
func SetConfig(ctx context.Context, c *conn.Conn, to jid.JID, node string, cfg *form.Data) error {
	submitted, _ := cfg.Submit()
	_, err := request(stanza.SetIQ, to, NSOwner).
		C("configure", stanza.Attrs{"node": node}, "").
		Cnode(submitted).
		WithSender(c).
		SendAwaitingResponse(ctx)
	return err
}
