// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package form

// An Option is used to define the behavior and appearance of a data form.
type Option func(*Data)

// Title sets a form's title.
func Title(s string) Option {
	return func(data *Data) {
		data.title = s
	}
}

// Instructions adds new textual instructions to the form.
func Instructions(s string) Option {
	return func(data *Data) {
		data.instructions = s
	}
}

var (
	// Result marks a form as the result type.
	Result Option = func(data *Data) {
		data.typ = TypeResult
	}
)

// A FieldOption is used to define the behavior and appearance of a form field.
type FieldOption func(*fieldConfig)

type fieldConfig struct {
	FieldData
	raw []string
}

var (
	// Required flags the field as required in order for the form to be considered
	// valid.
	Required FieldOption = func(f *fieldConfig) {
		f.Required = true
	}
)

// Desc provides a natural-language description of the field.
func Desc(s string) FieldOption {
	return func(f *fieldConfig) {
		f.Desc = s
	}
}

// Value defines the default value for the field.
// Fields of type ListMulti, JIDMulti, and TextMulti may contain more than one
// Value; all other field types will only use the first valid Value.
func Value(s string) FieldOption {
	return func(f *fieldConfig) {
		f.raw = append(f.raw, s)
	}
}

// Label defines a human-readable name for the field.
func Label(s string) FieldOption {
	return func(f *fieldConfig) {
		f.Label = s
	}
}

// ListItem adds a list item with the provided label and value.
// It has no effect on any non-list field type.
func ListItem(label, value string) FieldOption {
	return func(f *fieldConfig) {
		f.Options = append(f.Options, ListOption{Label: label, Value: value})
	}
}

func newField(typ FieldType, v string, o ...FieldOption) Option {
	return func(data *Data) {
		cfg := fieldConfig{FieldData: FieldData{Type: typ, Var: v}}
		for _, opt := range o {
			opt(&cfg)
		}
		if typ != FieldListMulti && typ != FieldList {
			cfg.Options = nil
		}
		cfg.Value = parseValue(typ, cfg.raw)
		data.fields = append(data.fields, cfg.FieldData)
	}
}

// Boolean fields enable an entity to gather or provide an either-or choice
// between two options.
func Boolean(v string, o ...FieldOption) Option {
	return newField(FieldBoolean, v, o...)
}

// Fixed is intended for data description rather than data gathering or
// provision.
func Fixed(o ...FieldOption) Option {
	return newField(FieldFixed, "", o...)
}

// Hidden fields are not shown by the form-submitting entity, but instead are
// returned, generally unmodified, with the form.
func Hidden(v string, o ...FieldOption) Option {
	return newField(FieldHidden, v, o...)
}

// JIDMulti enables an entity to gather or provide multiple JIDs.
func JIDMulti(v string, o ...FieldOption) Option {
	return newField(FieldJIDMulti, v, o...)
}

// JID enables an entity to gather or provide a single JID.
func JID(v string, o ...FieldOption) Option {
	return newField(FieldJID, v, o...)
}

// ListMulti enables an entity to gather or provide one or more entries from a
// list.
func ListMulti(v string, o ...FieldOption) Option {
	return newField(FieldListMulti, v, o...)
}

// List enables an entity to gather or provide a single entry from a list.
func List(v string, o ...FieldOption) Option {
	return newField(FieldList, v, o...)
}

// TextMulti enables an entity to gather or provide multiple lines of text.
func TextMulti(v string, o ...FieldOption) Option {
	return newField(FieldTextMulti, v, o...)
}

// TextPrivate enables an entity to gather or provide a line of text that
// should be obscured in an interface.
func TextPrivate(v string, o ...FieldOption) Option {
	return newField(FieldTextPrivate, v, o...)
}

// Text enables an entity to gather or provide a line of text.
func Text(v string, o ...FieldOption) Option {
	return newField(FieldText, v, o...)
}
