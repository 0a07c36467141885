// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package history

import (
	"time"

	"mellium.im/engine/form"
	"mellium.im/engine/paging"
	"mellium.im/engine/stanza"
	"mellium.im/xmpp/jid"
)

const (
	fieldWith   = "with"
	fieldStart  = "start"
	fieldEnd    = "end"
	fieldAfter  = "after-id"
	fieldBefore = "before-id"
)

// Query is a filter for the archive.
// The zero value matches every message.
type Query struct {
	// ID is echoed in every result to tie it to the query.
	ID string

	With     jid.JID
	Start    time.Time
	End      time.Time
	BeforeID string
	AfterID  string

	// Page selects a page of results.
	Page paging.Request
}

// Form returns the filter as a submitted data form.
func (q Query) Form() *stanza.Element {
	data := form.New(
		form.Hidden("FORM_TYPE", form.Value(NS)),
		form.JID(fieldWith),
		form.Text(fieldStart),
		form.Text(fieldEnd),
		form.Text(fieldAfter),
		form.Text(fieldBefore),
	)
	// The fields were declared above with matching types, so Set cannot fail.
	if !q.With.Equal(jid.JID{}) {
		_ = data.Set(fieldWith, form.JIDValue{JID: q.With})
	}
	if !q.Start.IsZero() {
		_ = data.Set(fieldStart, form.TextValue(q.Start.UTC().Format(time.RFC3339)))
	}
	if !q.End.IsZero() {
		_ = data.Set(fieldEnd, form.TextValue(q.End.UTC().Format(time.RFC3339)))
	}
	if q.AfterID != "" {
		_ = data.Set(fieldAfter, form.TextValue(q.AfterID))
	}
	if q.BeforeID != "" {
		_ = data.Set(fieldBefore, form.TextValue(q.BeforeID))
	}
	x, _ := data.Submit()
	return x
}

// Element returns the query payload.
func (q Query) Element() *stanza.Element {
	e := stanza.NewElement(NS, "query")
	if q.ID != "" {
		e.SetAttr("queryid", q.ID)
	}
	e.AddChild(q.Form())
	e.AddChild(q.Page.Element())
	return e
}

// Result is the metadata returned at the end of a query.
type Result struct {
	Complete bool
	Set      paging.Set

	// Messages is the number of archived messages received for the query,
	// including those that were already known.
	Messages int
}

func parseFin(e *stanza.Element) Result {
	fin := e.Child(NS, "fin")
	if fin == nil {
		return Result{}
	}
	r := Result{Complete: fin.Attribute("complete") == "true"}
	r.Set, _ = paging.Parse(fin)
	return r
}
