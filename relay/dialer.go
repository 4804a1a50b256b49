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

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// Conn is a single duplex text-frame channel to one relay.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer opens connections to relays. The production implementation speaks
// websocket; tests substitute an in-memory fake.
type Dialer interface {
	Dial(url string) (Conn, error)
}

// wsDialer is the gorilla/websocket backed Dialer.
type wsDialer struct {
	handshakeTimeout time.Duration
}

// NewWebsocketDialer returns the production Dialer.
func NewWebsocketDialer(handshakeTimeout time.Duration) Dialer {
	return &wsDialer{handshakeTimeout: handshakeTimeout}
}

func (d *wsDialer) Dial(url string) (Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: d.handshakeTimeout}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to dial relay %s", url)
	}
	return &wsConn{conn: conn}, nil
}

// wsConn serializes writes; gorilla websocket connections do not support
// concurrent writers.
type wsConn struct {
	conn     *websocket.Conn
	writeMux sync.Mutex
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) WriteMessage(data []byte) error {
	c.writeMux.Lock()
	defer c.writeMux.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}
