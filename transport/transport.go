// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package transport connects a conn.Conn to a server over TCP.
//
// The stream is negotiated by the mellium.im/xmpp library: STARTTLS is
// required, authentication uses the strongest SASL mechanism offered by the
// server and a resource is bound before the transport reports that it is
// connected.
package transport // import "mellium.im/engine/transport"

import (
	"context"
	"crypto/tls"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"mellium.im/engine/conn"
	"mellium.im/engine/internal/logging"
	"mellium.im/engine/stanza"
	"mellium.im/sasl"
	"mellium.im/xmpp"
	"mellium.im/xmpp/dial"
	"mellium.im/xmpp/jid"
)

// DefaultTimeout bounds dialing and stream negotiation when Config.Timeout is
// not set.
const DefaultTimeout = 30 * time.Second

// Mechanisms is the list of SASL mechanisms offered to the server, in order of
// preference.
var Mechanisms = []sasl.Mechanism{
	sasl.ScramSha256Plus,
	sasl.ScramSha256,
	sasl.ScramSha1Plus,
	sasl.ScramSha1,
	sasl.Plain,
}

// ErrNotConnected is returned when sending over a transport with no stream.
var ErrNotConnected = errors.New("transport: not connected")

// Config configures a Transport.
type Config struct {
	// Addr is the address to authenticate as.
	// If it has a resourcepart it is requested when binding.
	Addr     jid.JID
	Password string

	// Server and Port override the host that is dialed.
	// If Server is empty the SRV records of the domain are used.
	Server string
	Port   int

	// TLS is used for STARTTLS.
	// If nil, the server name is the domainpart of Addr.
	TLS *tls.Config

	// Timeout bounds dialing and negotiation.
	Timeout time.Duration

	Logger *logging.Logger
}

// Transport is a conn.Transport over a negotiated XMPP stream.
type Transport struct {
	cfg    Config
	logger *logging.Logger

	mu      sync.Mutex
	netConn net.Conn
	session *xmpp.Session
	closing bool
	done    chan struct{}
}

// New returns a transport that connects using cfg.
func New(cfg Config) *Transport {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Transport{
		cfg:    cfg,
		logger: cfg.Logger.With("transport"),
	}
}

func (t *Transport) tlsConfig() *tls.Config {
	if t.cfg.TLS != nil {
		return t.cfg.TLS
	}
	return &tls.Config{
		ServerName: t.cfg.Addr.Domainpart(),
		MinVersion: tls.VersionTLS12,
	}
}

func (t *Transport) dial(ctx context.Context) (net.Conn, error) {
	if t.cfg.Server != "" {
		port := t.cfg.Port
		if port == 0 {
			port = 5222
		}
		addr := net.JoinHostPort(t.cfg.Server, strconv.Itoa(port))
		t.logger.Debug("dialing %s", addr)
		d := net.Dialer{Timeout: t.cfg.Timeout}
		return d.DialContext(ctx, "tcp", addr)
	}
	t.logger.Debug("looking up %s", t.cfg.Addr.Domainpart())
	d := dial.Dialer{
		Dialer: net.Dialer{Timeout: t.cfg.Timeout},
		NoTLS:  true,
	}
	return d.Dial(ctx, "tcp", t.cfg.Addr)
}

// stage records how far negotiation got so that a failure can be reported with
// the right status.
type stage uint8

const (
	stageDial stage = iota
	stageTLS
	stageAuth
	stageBind
)

// Connect satisfies conn.Transport.
// It dials the server, negotiates the stream and starts reading from it.
func (t *Transport) Connect(ctx context.Context, h conn.TransportHandler) (jid.JID, error) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	h.HandleStatus(conn.StatusConnecting, nil)
	netConn, err := t.dial(ctx)
	if err != nil {
		err = fmt.Errorf("transport: error dialing: %w", err)
		h.HandleStatus(failure(ctx, stageDial), err)
		return jid.JID{}, err
	}

	var (
		mu  sync.Mutex
		cur = stageTLS
	)
	tlsConfig := t.tlsConfig()
	negotiator := xmpp.NewNegotiator(func(_ *xmpp.Session, _ *xmpp.StreamConfig) xmpp.StreamConfig {
		// The stream is restarted after TLS and again after SASL.
		mu.Lock()
		next := cur
		switch cur {
		case stageTLS:
			cur = stageAuth
		case stageAuth:
			cur = stageBind
		}
		mu.Unlock()
		if next == stageAuth {
			h.HandleStatus(conn.StatusAuthenticating, nil)
		}
		return xmpp.StreamConfig{
			Features: []xmpp.StreamFeature{
				xmpp.StartTLS(tlsConfig),
				xmpp.SASL("", t.cfg.Password, Mechanisms...),
				xmpp.BindResource(),
			},
		}
	})
	session, err := xmpp.NewSession(ctx, t.cfg.Addr.Domain(), t.cfg.Addr, netConn, 0, negotiator)
	if err != nil {
		/* #nosec */
		netConn.Close()
		mu.Lock()
		reached := cur
		mu.Unlock()
		// cur has already moved past the stage whose stream failed.
		if reached > stageTLS {
			reached--
		}
		err = fmt.Errorf("transport: error negotiating session: %w", err)
		h.HandleStatus(failure(ctx, reached), err)
		return jid.JID{}, err
	}

	done := make(chan struct{})
	t.mu.Lock()
	t.netConn = netConn
	t.session = session
	t.closing = false
	t.done = done
	t.mu.Unlock()

	local := session.LocalAddr()
	go t.read(session, h, done)
	h.HandleStatus(conn.StatusConnected, nil)
	return local, nil
}

// failure picks the status reported for a connection attempt that failed
// during st.
func failure(ctx context.Context, st stage) conn.Status {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return conn.StatusTimeout
	case st == stageDial || st == stageTLS:
		return conn.StatusConnFail
	case st == stageAuth:
		return conn.StatusAuthFail
	}
	return conn.StatusError
}

// read decodes top level elements from the stream until it ends.
func (t *Transport) read(session *xmpp.Session, h conn.TransportHandler, done chan struct{}) {
	defer close(done)
	r := session.TokenReader()
	/* #nosec */
	defer r.Close()
	d := xml.NewTokenDecoder(r)
	for {
		tok, err := d.Token()
		if err != nil {
			t.finish(session, h, err)
			return
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		e := &stanza.Element{}
		err = e.UnmarshalXML(d, start)
		if err != nil {
			t.finish(session, h, err)
			return
		}
		h.HandleElement(e)
	}
}

// finish reports the end of the stream unless it was ended locally.
func (t *Transport) finish(session *xmpp.Session, h conn.TransportHandler, err error) {
	t.mu.Lock()
	local := t.closing || t.session != session
	if t.session == session {
		t.session = nil
		t.netConn = nil
	}
	t.mu.Unlock()
	if local {
		return
	}
	if errors.Is(err, io.EOF) {
		t.logger.Info("stream closed by server")
		h.HandleStatus(conn.StatusDisconnected, nil)
		return
	}
	t.logger.Error("error reading from stream: %v", err)
	h.HandleStatus(conn.StatusError, err)
}

// Send satisfies conn.Transport.
func (t *Transport) Send(ctx context.Context, e *stanza.Element) error {
	t.mu.Lock()
	session := t.session
	t.mu.Unlock()
	if session == nil {
		return ErrNotConnected
	}
	return session.Send(ctx, e.TokenReader())
}

// Disconnect satisfies conn.Transport.
// It closes the stream, waits briefly for the server to close its side and
// then closes the underlying connection.
func (t *Transport) Disconnect() error {
	t.mu.Lock()
	session, netConn, done := t.session, t.netConn, t.done
	t.closing = true
	t.session = nil
	t.netConn = nil
	t.mu.Unlock()
	if session == nil {
		return nil
	}
	err := session.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.logger.Debug("server did not close the stream")
	}
	if cerr := netConn.Close(); err == nil && !errors.Is(cerr, net.ErrClosed) {
		err = cerr
	}
	return err
}
