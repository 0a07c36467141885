// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package conn

// State is the state of a connection.
type State uint8

// A list of connection states.
const (
	Disconnected State = iota
	Connecting
	Online
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Online:
		return "online"
	case Reconnecting:
		return "reconnecting"
	}
	return "unknown"
}

// StateChange is emitted whenever the connection state changes.
// Err is set when the change was caused by a failure.
type StateChange struct {
	Old State
	New State
	Err error
}

// Status is reported by a transport as it moves through its own lifecycle.
type Status uint8

// A list of transport statuses.
const (
	StatusConnecting Status = iota
	StatusConnected
	StatusAuthenticating
	StatusError
	StatusConnFail
	StatusAuthFail
	StatusTimeout
	StatusDisconnecting
	StatusDisconnected
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "CONNECTING"
	case StatusConnected:
		return "CONNECTED"
	case StatusAuthenticating:
		return "AUTHENTICATING"
	case StatusError:
		return "ERROR"
	case StatusConnFail:
		return "CONNFAIL"
	case StatusAuthFail:
		return "AUTHFAIL"
	case StatusTimeout:
		return "TIMEOUT"
	case StatusDisconnecting:
		return "DISCONNECTING"
	case StatusDisconnected:
		return "DISCONNECTED"
	}
	return "UNKNOWN"
}

// terminal reports whether the status means the stream is gone.
func (s Status) terminal() bool {
	switch s {
	case StatusError, StatusConnFail, StatusAuthFail, StatusTimeout, StatusDisconnected:
		return true
	}
	return false
}
