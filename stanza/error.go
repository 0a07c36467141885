// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stanza

import (
	"encoding/xml"
	"sort"

	"golang.org/x/text/language"
	"mellium.im/engine/internal/ns"
	"mellium.im/xmpp/jid"
)

// ErrorType is the type of an stanza error payloads.
// It should normally be one of the constants defined in this package.
type ErrorType string

const (
	// Cancel indicates that the error cannot be remedied and the operation should
	// not be retried.
	Cancel ErrorType = "cancel"

	// Auth indicates that an operation should be retried after providing
	// credentials.
	Auth ErrorType = "auth"

	// Continue indicates that the operation can proceed (the condition was only a
	// warning).
	Continue ErrorType = "continue"

	// Modify indicates that the operation can be retried after changing the data
	// sent.
	Modify ErrorType = "modify"

	// Wait is indicates that an error is temporary and may be retried.
	Wait ErrorType = "wait"
)

// Condition represents a more specific stanza error condition that can be
// encapsulated by an <error/> element.
type Condition string

// A list of stanza error conditions defined in RFC 6120 §8.3.3
const (
	BadRequest            Condition = "bad-request"
	Conflict              Condition = "conflict"
	FeatureNotImplemented Condition = "feature-not-implemented"
	Forbidden             Condition = "forbidden"
	Gone                  Condition = "gone"
	InternalServerError   Condition = "internal-server-error"
	ItemNotFound          Condition = "item-not-found"
	JIDMalformed          Condition = "jid-malformed"
	NotAcceptable         Condition = "not-acceptable"
	NotAllowed            Condition = "not-allowed"
	NotAuthorized         Condition = "not-authorized"
	PolicyViolation       Condition = "policy-violation"
	RecipientUnavailable  Condition = "recipient-unavailable"
	Redirect              Condition = "redirect"
	RegistrationRequired  Condition = "registration-required"
	RemoteServerNotFound  Condition = "remote-server-not-found"
	RemoteServerTimeout   Condition = "remote-server-timeout"
	ResourceConstraint    Condition = "resource-constraint"
	ServiceUnavailable    Condition = "service-unavailable"
	SubscriptionRequired  Condition = "subscription-required"
	UndefinedCondition    Condition = "undefined-condition"
	UnexpectedRequest     Condition = "unexpected-request"
)

// Error is a stanza level error returned by a remote entity in response to a
// request.
// It is the ProtocolError of the engine: request correlated failures carry one
// of these with whatever code, type, and condition the response contained.
type Error struct {
	By        jid.JID
	Type      ErrorType
	Condition Condition

	// Code is the legacy numeric error code, if the server sent one.
	Code string

	// Text maps a language tag (possibly empty) to human readable text.
	Text map[string]string
}

// Error satisfies the error interface by returning the condition.
func (se Error) Error() string {
	if se.Condition == "" && se.Code != "" {
		return "error code " + se.Code
	}
	return string(se.Condition)
}

// Is lets errors.Is match on the condition and type of a stanza error.
// Empty fields in target act as wildcards.
func (se Error) Is(target error) bool {
	t, ok := target.(Error)
	if !ok {
		return false
	}
	return (t.Condition == "" || t.Condition == se.Condition) &&
		(t.Type == "" || t.Type == se.Type)
}

// TextFor returns the human readable text that best matches the preferred
// languages.
// If no languages are provided the text without a language tag is preferred.
func (se Error) TextFor(prefs ...language.Tag) string {
	if len(se.Text) == 0 {
		return ""
	}
	if len(prefs) == 0 {
		if t, ok := se.Text[""]; ok {
			return t
		}
	}
	keys := make([]string, 0, len(se.Text))
	for k := range se.Text {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	tags := make([]language.Tag, 0, len(keys))
	for _, k := range keys {
		tag, err := language.Parse(k)
		if err != nil {
			tag = language.Und
		}
		tags = append(tags, tag)
	}
	_, idx, _ := language.NewMatcher(tags).Match(prefs...)
	return se.Text[keys[idx]]
}

// Element returns the <error/> element representing se.
func (se Error) Element() *Element {
	e := &Element{Name: xml.Name{Local: "error"}}
	if se.Type != "" {
		e.SetAttr("type", string(se.Type))
	}
	if se.Code != "" {
		e.SetAttr("code", se.Code)
	}
	if !se.By.Equal(jid.JID{}) {
		e.SetAttr("by", se.By.String())
	}
	if se.Condition != "" {
		e.Children = append(e.Children, NewElement(ns.Stanza, string(se.Condition)))
	}
	langs := make([]string, 0, len(se.Text))
	for lang := range se.Text {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	for _, lang := range langs {
		data := se.Text[lang]
		if data == "" {
			continue
		}
		text := NewElement(ns.Stanza, "text")
		// xml:lang attribute is optional, don't include it if it's empty.
		if lang != "" {
			text.Attr = []xml.Attr{{Name: xml.Name{Space: ns.XML, Local: "lang"}, Value: lang}}
		}
		text.Text = data
		e.Children = append(e.Children, text)
	}
	return e
}

// TokenReader satisfies the xmlstream.Marshaler interface for Error.
func (se Error) TokenReader() xml.TokenReader {
	return se.Element().TokenReader()
}

// UnmarshalError extracts the stanza error carried by e.
// If e is not an error stanza, ok is false.
func UnmarshalError(e *Element) (se Error, ok bool) {
	if e == nil || e.Type() != "error" {
		return se, false
	}
	errEl := e.Child("", "error")
	if errEl == nil {
		return Error{Condition: UndefinedCondition}, true
	}
	se.Type = ErrorType(errEl.Attribute("type"))
	se.Code = errEl.Attribute("code")
	se.By, _ = jid.Parse(errEl.Attribute("by"))
	for _, c := range errEl.Children {
		if c.Name.Space != ns.Stanza {
			continue
		}
		if c.Name.Local == "text" {
			if c.Text == "" {
				continue
			}
			if se.Text == nil {
				se.Text = make(map[string]string)
			}
			se.Text[c.Lang()] = c.Text
			continue
		}
		if se.Condition == "" {
			se.Condition = Condition(c.Name.Local)
		}
	}
	return se, true
}
