////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package relay

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

// connection is the lifecycle state machine for one relay URL. At most one
// reconnect task is ever pending; a disconnect observed while one is already
// scheduled does not schedule another.
type connection struct {
	url string
	m   *Manager

	mux              sync.Mutex
	conn             Conn
	state            State
	stopped          bool
	reconnectPending bool
	reconnectTimer   *time.Timer
	bo               *backoff.ExponentialBackOff
}

func newConnection(url string, m *Manager) *connection {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = m.params.ReconnectInitial
	bo.MaxInterval = m.params.ReconnectMax
	// Retry forever; giving up on a relay is the user's call, not ours.
	bo.MaxElapsedTime = 0

	return &connection{
		url:   url,
		m:     m,
		state: StateDisconnected,
		bo:    bo,
	}
}

// connect dials the relay and, on success, installs standing subscriptions
// and starts the read loop. Runs on its own goroutine.
func (c *connection) connect() {
	c.mux.Lock()
	if c.stopped || c.state == StateConnected || c.state == StateConnecting {
		c.mux.Unlock()
		return
	}
	c.state = StateConnecting
	c.mux.Unlock()
	c.m.notifyStatus(c.url, StateConnecting, "")

	conn, err := c.m.dialer.Dial(c.url)
	if err != nil {
		jww.WARN.Printf("Dial to relay %s failed: %+v", c.url, err)
		c.handleDrop(nil, "dial failed")
		return
	}

	c.mux.Lock()
	if c.stopped {
		c.mux.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.state = StateConnected
	c.bo.Reset()
	c.mux.Unlock()

	jww.INFO.Printf("Connected to relay %s", c.url)
	c.m.notifyStatus(c.url, StateConnected, "")
	c.m.installSubscriptions(c)

	go c.readLoop(conn)
}

// readLoop pumps frames off the socket until it dies.
func (c *connection) readLoop(conn Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			c.handleDrop(conn, "read failed")
			return
		}

		frame, err := ParseFrame(data)
		if err != nil {
			jww.WARN.Printf("Dropping bad frame from %s: %+v", c.url, err)
			continue
		}

		switch frame.Type {
		case FrameEvent:
			if c.m.cbs.Inbound != nil {
				c.m.cbs.Inbound(c.url, frame.SubID, frame.Event)
			}
		case FrameOK:
			if c.m.cbs.Ack != nil {
				c.m.cbs.Ack(c.url, frame.EventID, frame.OK, frame.Reason)
			}
		case FrameEOSE:
			if c.m.cbs.EndOfStream != nil {
				c.m.cbs.EndOfStream(c.url, frame.SubID)
			}
		case FrameNotice:
			jww.INFO.Printf("Notice from relay %s: %s", c.url, frame.Notice)
		}
	}
}

// send writes a frame if the connection is up. A write failure tears the
// connection down and schedules a reconnect.
func (c *connection) send(frame []byte) error {
	c.mux.Lock()
	conn := c.conn
	connected := c.state == StateConnected
	c.mux.Unlock()

	if !connected || conn == nil {
		return errors.Errorf("relay %s is not connected", c.url)
	}

	if err := conn.WriteMessage(frame); err != nil {
		jww.WARN.Printf("Write to relay %s failed: %+v", c.url, err)
		c.handleDrop(conn, "write failed")
		return errors.Wrapf(err, "write to relay %s failed", c.url)
	}
	return nil
}

// handleDrop closes the socket, reports the disconnect, and schedules a
// single reconnect task. Subsequent drops while one is pending are absorbed.
// failing is the socket that observed the error, nil for a dial failure; a
// drop reported by a socket that has already been replaced is ignored so a
// stale read loop cannot tear down a fresh connection.
func (c *connection) handleDrop(failing Conn, reason string) {
	c.mux.Lock()
	if c.stopped {
		c.mux.Unlock()
		return
	}
	if failing != nil && failing != c.conn {
		c.mux.Unlock()
		return
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.state = StateDisconnected

	if c.reconnectPending {
		c.mux.Unlock()
		return
	}
	c.reconnectPending = true
	delay := c.bo.NextBackOff()
	c.reconnectTimer = time.AfterFunc(delay, func() {
		c.mux.Lock()
		c.reconnectPending = false
		c.mux.Unlock()
		c.connect()
	})
	c.mux.Unlock()

	jww.INFO.Printf("Relay %s dropped (%s), reconnecting in %s",
		c.url, reason, delay)
	// Async: a drop can surface inside a caller's send, and the status
	// callback may post back onto the very loop that is blocked in that
	// send.
	c.m.notifyStatusAsync(c.url, StateDisconnected, reason)
}

// retryNow collapses a pending reconnect delay into an immediate attempt.
func (c *connection) retryNow() {
	c.mux.Lock()
	if c.stopped || c.state == StateConnected || c.state == StateConnecting {
		c.mux.Unlock()
		return
	}
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
	}
	c.reconnectPending = false
	c.mux.Unlock()

	go c.connect()
}

// shutdown permanently stops the connection and cancels any pending
// reconnect timer.
func (c *connection) shutdown() {
	c.mux.Lock()
	c.stopped = true
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.state = StateDisconnected
	c.mux.Unlock()
}

func (c *connection) isConnected() bool {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.state == StateConnected
}
