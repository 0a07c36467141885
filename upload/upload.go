// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package upload

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"mellium.im/engine/conn"
	"mellium.im/engine/disco"
	"mellium.im/engine/internal/logging"
	"mellium.im/engine/plugin"
	"mellium.im/engine/stanza"
	"mellium.im/xmpp/jid"
)

// Service is a discovered upload service.
// MaxSize is zero if the service did not announce a limit.
type Service struct {
	JID     jid.JID
	MaxSize uint64
}

// Uploader finds the upload service of the server and requests slots.
type Uploader struct {
	c      *conn.Conn
	disco  *disco.Disco
	logger *logging.Logger

	mu      sync.Mutex
	service *Service
}

// New returns an upload plugin that discovers the service with d.
func New(c *conn.Conn, d *disco.Disco, logger *logging.Logger) *Uploader {
	return &Uploader{
		c:      c,
		disco:  d,
		logger: logger.With("upload"),
	}
}

// ID satisfies plugin.Plugin.
func (u *Uploader) ID() plugin.ID {
	return plugin.Upload
}

// Offline forgets the discovered service.
func (u *Uploader) Offline() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.service = nil
}

// Discover finds the upload service, which is cached until the connection
// goes offline.
// If no service exists a *conn.NotFoundError is returned.
func (u *Uploader) Discover(ctx context.Context) (Service, error) {
	u.mu.Lock()
	if u.service != nil {
		s := *u.service
		u.mu.Unlock()
		return s, nil
	}
	u.mu.Unlock()

	addr, err := u.disco.FindFeature(ctx, NS)
	if err != nil {
		return Service{}, err
	}
	info, err := u.disco.Info(ctx, addr, "")
	if err != nil {
		return Service{}, err
	}
	s := Service{JID: addr}
	if data, ok := info.Forms[NS]; ok {
		if vals := data.Values("max-file-size"); len(vals) > 0 {
			s.MaxSize, err = strconv.ParseUint(vals[0], 10, 64)
			if err != nil {
				u.logger.Warn("invalid max-file-size %q from %s", vals[0], addr)
				s.MaxSize = 0
			}
		}
	}
	u.logger.Debug("found upload service %s (max size %d)", s.JID, s.MaxSize)
	u.mu.Lock()
	u.service = &s
	u.mu.Unlock()
	return s, nil
}

// RequestSlot asks the upload service for a slot for f.
// Files larger than the announced limit are rejected without contacting the
// service.
func (u *Uploader) RequestSlot(ctx context.Context, f File) (Slot, error) {
	if f.Name == "" {
		return Slot{}, &conn.ConfigurationError{Op: "request upload slot", Err: errors.New("missing file name")}
	}
	s, err := u.Discover(ctx)
	if err != nil {
		return Slot{}, err
	}
	if s.MaxSize > 0 && f.Size > s.MaxSize {
		return Slot{}, &conn.ConfigurationError{
			Op:  "request upload slot",
			Err: fmt.Errorf("%w: %d > %d bytes", ErrFileTooLarge, f.Size, s.MaxSize),
		}
	}
	resp, err := u.c.IQ(stanza.GetIQ, s.JID).Cnode(f.Element()).SendAwaitingResponse(ctx)
	if err != nil {
		return Slot{}, fmt.Errorf("upload: error requesting slot: %w", err)
	}
	return ParseSlot(resp.Child(NS, "slot"))
}
