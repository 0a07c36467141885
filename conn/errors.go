// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package conn

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrConnectionLost is returned for every request that was outstanding when
	// the transport was lost.
	ErrConnectionLost = errors.New("conn: connection lost")

	// ErrNotConnected is returned when sending while disconnected.
	ErrNotConnected = errors.New("conn: not connected")

	// ErrAlreadyConnected is returned by Connect if the connection is not
	// disconnected.
	ErrAlreadyConnected = errors.New("conn: already connected")
)

func lost(cause error) error {
	if cause == nil || errors.Is(cause, ErrConnectionLost) {
		return ErrConnectionLost
	}
	return fmt.Errorf("%w: %v", ErrConnectionLost, cause)
}

// ConfigurationError indicates misuse by the caller such as an invalid
// address, a missing form field, or a value of the wrong type.
type ConfigurationError struct {
	Op  string
	Err error
}

func (e *ConfigurationError) Error() string {
	if e.Op == "" {
		return "configuration error: " + e.Err.Error()
	}
	return "configuration error: " + e.Op + ": " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// NotFoundError indicates that a queried entity such as a service, room, or
// list entry does not exist.
type NotFoundError struct {
	Kind string
	Addr string
}

func (e *NotFoundError) Error() string {
	if e.Addr == "" {
		return e.Kind + " not found"
	}
	return e.Kind + " not found: " + e.Addr
}

// TimeoutError is a soft failure used by best-effort background operations.
// It never causes the connection to be dropped.
type TimeoutError struct {
	Op    string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %v", e.Op, e.After)
}

// Timeout always returns true.
func (e *TimeoutError) Timeout() bool {
	return true
}

var errNotRequest = errors.New("only get and set IQs expect a response")

type statusError Status

func (s statusError) Error() string {
	return "transport reported " + Status(s).String()
}
