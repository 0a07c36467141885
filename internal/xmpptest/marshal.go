// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package xmpptest provides an in-memory transport and other helpers for
// testing the engine.
package xmpptest // import "mellium.im/engine/internal/xmpptest"

import (
	"encoding/xml"
	"errors"
	"strconv"
	"strings"
	"testing"
)

// EncodingTestCase checks that Value encodes to XML.
// If Parse is set the XML is decoded with it and the result must encode to the
// same XML again.
type EncodingTestCase struct {
	Value interface{}
	XML   string
	Err   error
	Parse func(string) (interface{}, error)
}

func encode(v interface{}) (string, error) {
	var buf strings.Builder
	enc := xml.NewEncoder(&buf)
	if err := enc.Encode(v); err != nil {
		return buf.String(), err
	}
	err := enc.Flush()
	return buf.String(), err
}

// RunEncodingTests runs each case as a subtest named after its index.
func RunEncodingTests(t *testing.T, testCases []EncodingTestCase) {
	for i, tc := range testCases {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			out, err := encode(tc.Value)
			switch {
			case !errors.Is(err, tc.Err):
				t.Fatalf("wrong error: want=%v, got=%v", tc.Err, err)
			case err != nil:
				return
			case out != tc.XML:
				t.Fatalf("wrong output:\nwant=%s,\n got=%s", tc.XML, out)
			case tc.Parse == nil:
				return
			}

			v, err := tc.Parse(tc.XML)
			if err != nil {
				t.Fatalf("error decoding: %v", err)
			}
			if out, err = encode(v); err != nil || out != tc.XML {
				t.Fatalf("decoded value encodes differently (err=%v):\nwant=%s,\n got=%s", err, tc.XML, out)
			}
		})
	}
}
