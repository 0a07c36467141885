// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package attr

import (
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDGen hands out IQ identifiers for a single connection.
// Identifiers are a random per-generator prefix followed by a counter.
//
// The zero value is not usable, use NewIDGen.
type IDGen struct {
	prefix  string
	counter atomic.Uint64
}

// NewIDGen returns a generator with a fresh random prefix.
func NewIDGen() *IDGen {
	prefix, _, _ := strings.Cut(uuid.NewString(), "-")
	return newIDGen(prefix)
}

func newIDGen(prefix string) *IDGen {
	return &IDGen{prefix: prefix}
}

// Next returns the next identifier.
// It is safe to call from multiple goroutines.
func (g *IDGen) Next() string {
	return g.prefix + ":" + strconv.FormatUint(g.counter.Add(1), 10)
}
