// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package form

import (
	"encoding/xml"
	"strconv"
	"strings"

	"mellium.im/engine/stanza"
	"mellium.im/xmpp/jid"
)

// FieldType is the declared type of a field.
type FieldType string

// A list of field types.
const (
	FieldBoolean     FieldType = "boolean"
	FieldFixed       FieldType = "fixed"
	FieldHidden      FieldType = "hidden"
	FieldJIDMulti    FieldType = "jid-multi"
	FieldJID         FieldType = "jid-single"
	FieldListMulti   FieldType = "list-multi"
	FieldList        FieldType = "list-single"
	FieldTextMulti   FieldType = "text-multi"
	FieldTextPrivate FieldType = "text-private"
	FieldText        FieldType = "text-single"
)

func (t FieldType) known() bool {
	switch t {
	case FieldBoolean, FieldFixed, FieldHidden, FieldJIDMulti, FieldJID,
		FieldListMulti, FieldList, FieldTextMulti, FieldTextPrivate, FieldText:
		return true
	}
	return false
}

// ListOption is an option for the list-single and list-multi types.
type ListOption struct {
	Label string
	Value string
}

// FieldData holds the description and current value of a single field.
type FieldData struct {
	Type     FieldType
	Var      string
	Label    string
	Desc     string
	Required bool
	Options  []ListOption

	// Value is nil if the field has no value.
	Value FieldValue
}

func (f FieldData) element(full bool) *stanza.Element {
	e := stanza.NewElement(NS, "field")
	if f.Type != "" {
		e.SetAttr("type", string(f.Type))
	}
	if f.Var != "" {
		e.SetAttr("var", f.Var)
	}
	if full {
		if f.Label != "" {
			e.SetAttr("label", f.Label)
		}
		if f.Desc != "" {
			e.AddChild(&stanza.Element{Name: xml.Name{Space: NS, Local: "desc"}, Text: f.Desc})
		}
		if f.Required {
			e.AddChild(stanza.NewElement(NS, "required"))
		}
	}
	if f.Value != nil {
		for _, v := range f.Value.values() {
			e.AddChild(&stanza.Element{Name: xml.Name{Space: NS, Local: "value"}, Text: v})
		}
	}
	if full {
		for _, o := range f.Options {
			opt := stanza.NewElement(NS, "option")
			if o.Label != "" {
				opt.SetAttr("label", o.Label)
			}
			opt.AddChild(&stanza.Element{Name: xml.Name{Space: NS, Local: "value"}, Text: o.Value})
			e.AddChild(opt)
		}
	}
	return e
}

// FieldValue is the value of a field.
// It is always one of BoolValue, TextValue, LinesValue, JIDValue, or
// JIDsValue.
type FieldValue interface {
	values() []string
	fits(FieldType) bool
	defaultType() FieldType
}

// BoolValue is the value of a boolean field.
type BoolValue bool

func (v BoolValue) values() []string { return []string{strconv.FormatBool(bool(v))} }
func (BoolValue) fits(t FieldType) bool { return t == FieldBoolean }
func (BoolValue) defaultType() FieldType { return FieldBoolean }

// TextValue is the value of fixed, hidden, list-single, text-single, and
// text-private fields.
// These fields hold a single line, so a TextValue containing a line break does
// not fit any of them; use LinesValue with a text-multi field instead.
type TextValue string

func (v TextValue) values() []string { return []string{string(v)} }
func (v TextValue) fits(t FieldType) bool {
	if strings.ContainsAny(string(v), "\r\n") {
		return false
	}
	switch t {
	case FieldFixed, FieldHidden, FieldList, FieldText, FieldTextPrivate:
		return true
	}
	return false
}
func (TextValue) defaultType() FieldType { return FieldText }

// LinesValue is the value of list-multi and text-multi fields.
type LinesValue []string

func (v LinesValue) values() []string { return []string(v) }
func (LinesValue) fits(t FieldType) bool {
	return t == FieldListMulti || t == FieldTextMulti
}
func (LinesValue) defaultType() FieldType { return FieldTextMulti }

// JIDValue is the value of a jid-single field.
type JIDValue struct {
	jid.JID
}

func (v JIDValue) values() []string { return []string{v.JID.String()} }
func (JIDValue) fits(t FieldType) bool { return t == FieldJID }
func (JIDValue) defaultType() FieldType { return FieldJID }

// JIDsValue is the value of a jid-multi field.
type JIDsValue []jid.JID

func (v JIDsValue) values() []string {
	s := make([]string, 0, len(v))
	for _, j := range v {
		s = append(s, j.String())
	}
	return s
}
func (JIDsValue) fits(t FieldType) bool { return t == FieldJIDMulti }
func (JIDsValue) defaultType() FieldType { return FieldJIDMulti }

// parseValue converts raw values into the variant appropriate for typ.
// Invalid JIDs are skipped.
func parseValue(typ FieldType, raw []string) FieldValue {
	if len(raw) == 0 {
		return nil
	}
	switch typ {
	case FieldBoolean:
		b, _ := strconv.ParseBool(strings.TrimSpace(raw[0]))
		return BoolValue(b)
	case FieldTextMulti, FieldListMulti:
		v := make(LinesValue, len(raw))
		copy(v, raw)
		return v
	case FieldJID:
		for _, r := range raw {
			j, err := jid.Parse(r)
			if err == nil {
				return JIDValue{JID: j}
			}
		}
		return nil
	case FieldJIDMulti:
		var v JIDsValue
		for _, r := range raw {
			j, err := jid.Parse(r)
			if err == nil {
				v = append(v, j)
			}
		}
		if len(v) == 0 {
			return nil
		}
		return v
	}
	return TextValue(raw[0])
}

// GetBool returns the value of a boolean field.
func (d *Data) GetBool(v string) (bool, bool) {
	val, ok := d.Get(v)
	b, isBool := val.(BoolValue)
	return bool(b), ok && isBool
}

// GetString returns the value of a single line text, hidden, fixed, or
// list-single field.
func (d *Data) GetString(v string) (string, bool) {
	val, ok := d.Get(v)
	s, isText := val.(TextValue)
	return string(s), ok && isText
}

// GetStrings returns the values of a text-multi or list-multi field.
func (d *Data) GetStrings(v string) ([]string, bool) {
	val, ok := d.Get(v)
	s, isLines := val.(LinesValue)
	return []string(s), ok && isLines
}

// GetJID returns the value of a jid-single field.
func (d *Data) GetJID(v string) (jid.JID, bool) {
	val, ok := d.Get(v)
	j, isJID := val.(JIDValue)
	return j.JID, ok && isJID
}

// GetJIDs returns the values of a jid-multi field.
func (d *Data) GetJIDs(v string) ([]jid.JID, bool) {
	val, ok := d.Get(v)
	j, isJIDs := val.(JIDsValue)
	return []jid.JID(j), ok && isJIDs
}

// Values returns the raw string values of a field of any type.
func (d *Data) Values(v string) []string {
	val, ok := d.Get(v)
	if !ok {
		return nil
	}
	return append([]string(nil), val.values()...)
}
