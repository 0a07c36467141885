// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package form is an implementation of data forms.
//
// Fields are modeled as a tagged variant: every field has a declared type and
// a value whose shape must agree with that type.
// Parsing never fails because of an unknown field type, such fields are treated
// as single line text.
package form // import "mellium.im/engine/form"

import (
	"encoding/xml"
	"errors"
	"fmt"

	"mellium.im/engine/stanza"
	"mellium.im/xmlstream"
)

// NS is the data forms namespace.
const NS = "jabber:x:data"

// Form types.
const (
	TypeForm   = "form"
	TypeSubmit = "submit"
	TypeCancel = "cancel"
	TypeResult = "result"
)

// Errors returned when manipulating form values.
var (
	ErrTypeMismatch  = errors.New("form: value does not match field type")
	ErrFieldNotFound = errors.New("form: field not found")
)

// FieldError is returned by Set and records the variable that caused the
// failure.
// It unwraps to ErrTypeMismatch or ErrFieldNotFound.
type FieldError struct {
	Var string
	Err error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%v: %q", e.Err, e.Var)
}

// Unwrap returns the underlying sentinel error.
func (e *FieldError) Unwrap() error {
	return e.Err
}

// Data represents a data form.
type Data struct {
	typ          string
	title        string
	instructions string
	fields       []FieldData
}

// New builds a new data form from the provided options.
func New(o ...Option) *Data {
	form := &Data{typ: TypeForm}
	for _, opt := range o {
		opt(form)
	}
	return form
}

// Parse decodes a form from an <x xmlns="jabber:x:data"/> element.
func Parse(e *stanza.Element) (*Data, error) {
	if e == nil || e.Name.Space != NS || e.Name.Local != "x" {
		return nil, errors.New("form: element is not a data form")
	}
	data := &Data{
		typ:          e.Attribute("type"),
		title:        e.ChildText(NS, "title"),
		instructions: e.ChildText(NS, "instructions"),
	}
	if data.typ == "" {
		data.typ = TypeForm
	}
	for _, f := range e.ChildrenNamed(NS, "field") {
		fd := FieldData{
			Type:     FieldType(f.Attribute("type")),
			Var:      f.Attribute("var"),
			Label:    f.Attribute("label"),
			Desc:     f.ChildText(NS, "desc"),
			Required: f.Child(NS, "required") != nil,
		}
		if !fd.Type.known() {
			fd.Type = FieldText
		}
		for _, opt := range f.ChildrenNamed(NS, "option") {
			fd.Options = append(fd.Options, ListOption{
				Label: opt.Attribute("label"),
				Value: opt.ChildText(NS, "value"),
			})
		}
		var raw []string
		for _, v := range f.ChildrenNamed(NS, "value") {
			raw = append(raw, v.Text)
		}
		fd.Value = parseValue(fd.Type, raw)
		data.fields = append(data.fields, fd)
	}
	return data, nil
}

// Type returns the type of the form (form, submit, cancel, or result).
func (d *Data) Type() string {
	if d == nil {
		return ""
	}
	return d.typ
}

// Title returns the title of the form.
func (d *Data) Title() string {
	if d == nil {
		return ""
	}
	return d.title
}

// Instructions returns the instructions of the form.
func (d *Data) Instructions() string {
	if d == nil {
		return ""
	}
	return d.instructions
}

// FormType returns the value of the hidden FORM_TYPE field, if any.
func (d *Data) FormType() string {
	s, _ := d.GetString("FORM_TYPE")
	return s
}

// Len returns the number of fields in the form.
func (d *Data) Len() int {
	if d == nil {
		return 0
	}
	return len(d.fields)
}

// ForFields calls f for each field in the form.
// f receives a copy, changes must be made with Set.
func (d *Data) ForFields(f func(FieldData)) {
	if d == nil {
		return
	}
	for _, field := range d.fields {
		f(field)
	}
}

// Field returns the field with the provided variable name.
func (d *Data) Field(v string) (FieldData, bool) {
	if idx := d.index(v); idx != -1 {
		return d.fields[idx], true
	}
	return FieldData{}, false
}

func (d *Data) index(v string) int {
	if d == nil || v == "" {
		return -1
	}
	for i, f := range d.fields {
		if f.Var == v {
			return i
		}
	}
	return -1
}

// Get returns the value of the field with the provided variable name.
func (d *Data) Get(v string) (val FieldValue, ok bool) {
	f, ok := d.Field(v)
	if !ok || f.Value == nil {
		return nil, false
	}
	return f.Value, true
}

// SetOption changes the behavior of Set.
type SetOption func(*setConfig)

type setConfig struct {
	create bool
}

// CreateField causes Set to add a new field when the variable does not exist
// on the form instead of failing with ErrFieldNotFound.
// The type of the new field is derived from the value.
var CreateField SetOption = func(c *setConfig) {
	c.create = true
}

// Set changes the value of the field with the provided variable name.
// If val does not fit the declared type of the field, ErrTypeMismatch is
// returned.
// If the field does not exist and CreateField was not provided,
// ErrFieldNotFound is returned.
func (d *Data) Set(v string, val FieldValue, opts ...SetOption) error {
	var cfg setConfig
	for _, o := range opts {
		o(&cfg)
	}
	idx := d.index(v)
	if idx == -1 {
		if !cfg.create || d == nil || v == "" {
			return &FieldError{Var: v, Err: ErrFieldNotFound}
		}
		if val == nil || !val.fits(val.defaultType()) {
			return &FieldError{Var: v, Err: ErrTypeMismatch}
		}
		d.fields = append(d.fields, FieldData{
			Type:  val.defaultType(),
			Var:   v,
			Value: val,
		})
		return nil
	}
	if val != nil && !val.fits(d.fields[idx].Type) {
		return &FieldError{Var: v, Err: ErrTypeMismatch}
	}
	d.fields[idx].Value = val
	return nil
}

// TokenReader implements xmlstream.Marshaler for Data.
func (d *Data) TokenReader() xml.TokenReader {
	return d.Element().TokenReader()
}

// WriteXML implements xmlstream.WriterTo for Data.
func (d *Data) WriteXML(w xmlstream.TokenWriter) (int, error) {
	return xmlstream.Copy(w, d.TokenReader())
}

// MarshalXML satisfies the xml.Marshaler interface for *Data.
func (d *Data) MarshalXML(e *xml.Encoder, _ xml.StartElement) error {
	_, err := d.WriteXML(e)
	if err != nil {
		return err
	}
	return e.Flush()
}

// UnmarshalXML satisfies the xml.Unmarshaler interface for *Data.
func (d *Data) UnmarshalXML(dec *xml.Decoder, start xml.StartElement) error {
	e := &stanza.Element{}
	err := e.UnmarshalXML(dec, start)
	if err != nil {
		return err
	}
	parsed, err := Parse(e)
	if err != nil {
		return err
	}
	*d = *parsed
	return nil
}

// Element returns the complete form, including labels, descriptions, and
// options.
func (d *Data) Element() *stanza.Element {
	x := stanza.NewElement(NS, "x")
	if d == nil {
		x.SetAttr("type", TypeForm)
		return x
	}
	x.SetAttr("type", d.typ)
	if d.title != "" {
		x.AddChild(&stanza.Element{Name: xml.Name{Space: NS, Local: "title"}, Text: d.title})
	}
	if d.instructions != "" {
		x.AddChild(&stanza.Element{Name: xml.Name{Space: NS, Local: "instructions"}, Text: d.instructions})
	}
	for _, f := range d.fields {
		x.AddChild(f.element(true))
	}
	return x
}

// Submit returns a form of type submit containing the values of the form.
// Fixed fields, fields without a variable name, and unset optional fields are
// omitted.
// If any required field is unset, ok is false.
func (d *Data) Submit() (e *stanza.Element, ok bool) {
	x := stanza.NewElement(NS, "x")
	x.SetAttr("type", TypeSubmit)
	ok = true
	if d == nil {
		return x, ok
	}
	for _, f := range d.fields {
		if f.Var == "" || f.Type == FieldFixed {
			continue
		}
		if f.Value == nil {
			if f.Required {
				ok = false
				x.AddChild(f.element(false))
			}
			continue
		}
		x.AddChild(f.element(false))
	}
	return x, ok
}

// Cancel returns a form of type cancel.
func Cancel() *stanza.Element {
	return stanza.NewElement(NS, "x", xml.Attr{Name: xml.Name{Local: "type"}, Value: TypeCancel})
}
