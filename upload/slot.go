// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package upload

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"

	"mellium.im/engine/internal/ns"
	"mellium.im/engine/stanza"
)

// NS is the namespace used by this package.
const NS = ns.Upload

// ErrFileTooLarge is returned when requesting a slot for a file larger than
// the service accepts.
var ErrFileTooLarge = errors.New("upload: file too large")

func attr(local, value string) xml.Attr {
	return xml.Attr{Name: xml.Name{Local: local}, Value: value}
}

// File is the metadata sent when asking for a slot.
type File struct {
	Name string
	Size uint64
	Type string
}

// Element returns the slot <request/>.
func (f File) Element() *stanza.Element {
	e := stanza.NewElement(NS, "request",
		attr("filename", f.Name),
		attr("size", strconv.FormatUint(f.Size, 10)),
	)
	return e.SetAttr("content-type", f.Type)
}

// MarshalXML implements xml.Marshaler.
func (f File) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	return f.Element().MarshalXML(e, start)
}

// Slot is a pair of URLs handed out by the upload service: the file is PUT to
// one and shared as the other.
type Slot struct {
	PutURL *url.URL
	GetURL *url.URL

	// Header holds the headers the service wants sent with the PUT.
	// Only Authorization, Cookie and Expires are honoured.
	Header http.Header
}

func allowedHeader(name string) bool {
	switch name {
	case "Authorization", "Cookie", "Expires":
		return true
	}
	return false
}

// filterHeader returns the allowed headers of h in canonical form.
func filterHeader(h http.Header) http.Header {
	out := make(http.Header)
	for name, vals := range h {
		if name = http.CanonicalHeaderKey(name); allowedHeader(name) {
			out[name] = append(out[name], vals...)
		}
	}
	return out
}

// Put builds the HTTP request that uploads body to the slot.
// Sending it is up to the caller.
func (s Slot) Put(ctx context.Context, body io.Reader) (*http.Request, error) {
	if s.PutURL == nil {
		return nil, errors.New("upload: slot has no put URL")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.PutURL.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header = filterHeader(s.Header)
	return req, nil
}

func urlString(u *url.URL) string {
	if u == nil {
		return ""
	}
	return u.String()
}

// Element returns the <slot/> payload.
// Headers are written in name order.
func (s Slot) Element() *stanza.Element {
	put := stanza.NewElement("", "put", attr("url", urlString(s.PutURL)))
	names := make([]string, 0, len(s.Header))
	for name := range s.Header {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		canonical := http.CanonicalHeaderKey(name)
		if !allowedHeader(canonical) {
			continue
		}
		for _, v := range s.Header[name] {
			h := stanza.NewElement("", "header", attr("name", canonical))
			h.Text = v
			put.AddChild(h)
		}
	}
	return stanza.NewElement(NS, "slot").
		AddChild(put).
		AddChild(stanza.NewElement("", "get", attr("url", urlString(s.GetURL))))
}

// MarshalXML implements xml.Marshaler.
func (s Slot) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	return s.Element().MarshalXML(e, start)
}

// ParseSlot reads a slot payload.
// Headers other than the allowed ones are dropped.
func ParseSlot(e *stanza.Element) (Slot, error) {
	if e == nil || e.Name.Local != "slot" {
		return Slot{}, fmt.Errorf("upload: expected slot, got %v", e)
	}
	var s Slot
	var err error
	put := e.Child(NS, "put")
	if u := put.Attribute("url"); u != "" {
		if s.PutURL, err = url.Parse(u); err != nil {
			return Slot{}, err
		}
	}
	if u := e.Child(NS, "get").Attribute("url"); u != "" {
		if s.GetURL, err = url.Parse(u); err != nil {
			return Slot{}, err
		}
	}
	for _, h := range put.ChildrenNamed(NS, "header") {
		name := http.CanonicalHeaderKey(h.Attribute("name"))
		if !allowedHeader(name) {
			continue
		}
		if s.Header == nil {
			s.Header = make(http.Header)
		}
		s.Header.Add(name, h.Text)
	}
	return s, nil
}
