// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"mellium.im/engine/conn"
	"mellium.im/engine/stanza"
	"mellium.im/xmpp/jid"
)

var _ conn.Transport = (*Transport)(nil)

func TestFailureStatus(t *testing.T) {
	expired, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	for i, tc := range []struct {
		ctx   context.Context
		stage stage
		want  conn.Status
	}{
		0: {ctx: context.Background(), stage: stageDial, want: conn.StatusConnFail},
		1: {ctx: context.Background(), stage: stageTLS, want: conn.StatusConnFail},
		2: {ctx: context.Background(), stage: stageAuth, want: conn.StatusAuthFail},
		3: {ctx: context.Background(), stage: stageBind, want: conn.StatusError},
		4: {ctx: expired, stage: stageAuth, want: conn.StatusTimeout},
	} {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			if got := failure(tc.ctx, tc.stage); got != tc.want {
				t.Errorf("wrong status: want=%s, got=%s", tc.want, got)
			}
		})
	}
}

func TestDefaults(t *testing.T) {
	tr := New(Config{Addr: jid.MustParse("juliet@example.com")})
	if tr.cfg.Timeout != DefaultTimeout {
		t.Errorf("wrong timeout: want=%v, got=%v", DefaultTimeout, tr.cfg.Timeout)
	}
	cfg := tr.tlsConfig()
	if cfg.ServerName != "example.com" {
		t.Errorf("wrong server name: want=example.com, got=%q", cfg.ServerName)
	}
}

func TestNotConnected(t *testing.T) {
	tr := New(Config{Addr: jid.MustParse("juliet@example.com")})
	err := tr.Send(context.Background(), stanza.NewElement("jabber:client", "message"))
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("wrong error: want=%v, got=%v", ErrNotConnected, err)
	}
	if err := tr.Disconnect(); err != nil {
		t.Errorf("unexpected error disconnecting: %v", err)
	}
}

type statusRecorder struct {
	mu       sync.Mutex
	statuses []conn.Status
}

func (r *statusRecorder) HandleElement(*stanza.Element) {}

func (r *statusRecorder) HandleStatus(s conn.Status, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

func TestConnectRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("cannot listen: %v", err)
	}
	addr := l.Addr().(*net.TCPAddr)
	/* #nosec */
	l.Close()

	tr := New(Config{
		Addr:    jid.MustParse("juliet@example.com"),
		Server:  "127.0.0.1",
		Port:    addr.Port,
		Timeout: 2 * time.Second,
	})
	rec := &statusRecorder{}
	_, err = tr.Connect(context.Background(), rec)
	if err == nil {
		t.Fatalf("expected an error dialing a closed port")
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	want := []conn.Status{conn.StatusConnecting, conn.StatusConnFail}
	if len(rec.statuses) != len(want) {
		t.Fatalf("wrong statuses: want=%v, got=%v", want, rec.statuses)
	}
	for i, s := range want {
		if rec.statuses[i] != s {
			t.Errorf("wrong status %d: want=%s, got=%s", i, s, rec.statuses[i])
		}
	}
}
