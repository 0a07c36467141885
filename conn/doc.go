// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package conn is the connection core of the engine.
//
// A Conn owns a Transport, assigns identifiers to outgoing requests, matches
// responses to the requests that are waiting on them, and hands every other
// incoming element to the first registered handler that claims it.
// Unsolicited elements are delivered to handlers on a single goroutine in the
// order they were received.
// Responses are matched as soon as they arrive so that a handler may wait on a
// request without stalling the stream.
//
// When the transport is lost every outstanding request fails with
// ErrConnectionLost and the connection moves to the Disconnected state.
// Requests are never retried.
package conn // import "mellium.im/engine/conn"
