// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package attr_test

import (
	"encoding/xml"
	"reflect"
	"strconv"
	"testing"

	"mellium.im/engine/internal/attr"
)

func attrs(kv ...string) []xml.Attr {
	var out []xml.Attr
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, xml.Attr{Name: xml.Name{Local: kv[i]}, Value: kv[i+1]})
	}
	return out
}

func TestGet(t *testing.T) {
	for i, tc := range []struct {
		attr  []xml.Attr
		local string
		idx   int
		val   string
	}{
		0: {local: "id", idx: -1},
		1: {attr: attrs("type", "get"), local: "id", idx: -1},
		2: {attr: attrs("id", "a", "id", "b"), local: "id", val: "a"},
		3: {attr: attrs("to", "example.net", "id", "a"), local: "id", idx: 1, val: "a"},
		4: {attr: attrs("id", ""), local: "id"},
	} {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			idx, val := attr.Get(tc.attr, tc.local)
			if idx != tc.idx || val != tc.val {
				t.Errorf("want=(%d, %q), got=(%d, %q)", tc.idx, tc.val, idx, val)
			}
		})
	}
}

func TestSet(t *testing.T) {
	for i, tc := range []struct {
		attr  []xml.Attr
		local string
		val   string
		want  []xml.Attr
	}{
		0: {local: "id", val: "1", want: attrs("id", "1")},
		1: {attr: attrs("id", "1"), local: "id", val: "2", want: attrs("id", "2")},
		2: {attr: attrs("to", "a", "id", "1"), local: "id", want: attrs("to", "a")},
		3: {attr: attrs("to", "a"), local: "id", want: attrs("to", "a")},
	} {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			got := attr.Set(tc.attr, tc.local, tc.val)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("want=%v, got=%v", tc.want, got)
			}
		})
	}
}
