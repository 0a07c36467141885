// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package history implements fetching messages from an archive.
//
// Pages are requested in reverse chronological order using result set
// management, and every archived message is unwrapped and handed to the
// Recipient that the query was made for, which is responsible for attributing
// it and adding it to its history.
// Messages whose ids are already known to the recipient are skipped.
package history // import "mellium.im/engine/history"

import (
	"mellium.im/engine/internal/ns"
)

// The namespaces used by this package, provided as a convenience.
const (
	NS    = ns.MAM
	NSExt = ns.MAM + "#extended"
)
