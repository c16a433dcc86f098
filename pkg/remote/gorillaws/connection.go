// Package gorillaws implements remote.Conn on top of gorilla/websocket.
package gorillaws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/revstore/revstore/pkg/constants"
	"github.com/revstore/revstore/pkg/remote"
)

// DefaultDialer is the gorilla default dialer with compression enabled and
// the CBOR subprotocol requested.
var DefaultDialer = &gorilla.Dialer{
	Proxy:             gorilla.DefaultDialer.Proxy,
	HandshakeTimeout:  gorilla.DefaultDialer.HandshakeTimeout,
	EnableCompression: true,
	Subprotocols:      []string{remote.Subprotocol},
}

type Connection struct {
	*remote.Toolkit

	conn *gorilla.Conn
	// connLock guards conn and serializes writes.
	connLock sync.Mutex

	// connCloseCh is closed once the connection is gone, stopping the read
	// loop and failing pending and future sends.
	connCloseCh    chan struct{}
	connCloseError error
	closeOnce      sync.Once
}

var _ remote.Conn = (*Connection)(nil)

func New(cfg *remote.Config) (*Connection, error) {
	tk, err := remote.NewToolkit(cfg)
	if err != nil {
		return nil, err
	}
	return &Connection{Toolkit: tk, connCloseCh: make(chan struct{})}, nil
}

// IsClosed reports whether the connection went away. A closed Connection
// cannot be reconnected; create a new one.
func (c *Connection) IsClosed() bool {
	select {
	case <-c.connCloseCh:
		return true
	default:
		return false
	}
}

func (c *Connection) Connect(ctx context.Context) error {
	conn, res, err := DefaultDialer.DialContext(ctx, c.Endpoint(), c.Header())
	if err != nil {
		if res != nil {
			return fmt.Errorf("dialing %s: %w (status %d)", c.Endpoint(), err, res.StatusCode)
		}
		return err
	}
	defer res.Body.Close()

	c.connLock.Lock()
	defer c.connLock.Unlock()
	c.conn = conn

	go c.readLoop(conn)
	return nil
}

func (c *Connection) Send(ctx context.Context, method remote.RPCFunction, params any) (*remote.RPCResponse, error) {
	return c.Call(ctx, method, params, c.write, c.connCloseCh, c.closeError)
}

func (c *Connection) write(data []byte) error {
	c.connLock.Lock()
	defer c.connLock.Unlock()
	if c.conn == nil {
		return constants.ErrConnectionClosed
	}
	err := c.conn.WriteMessage(gorilla.BinaryMessage, data)
	if errors.Is(err, gorilla.ErrCloseSent) {
		c.closeWithError(err)
	}
	return err
}

func (c *Connection) closeError() error {
	c.connLock.Lock()
	defer c.connLock.Unlock()
	if c.connCloseError == nil || errors.Is(c.connCloseError, constants.ErrConnectionClosed) {
		return constants.ErrConnectionClosed
	}
	return fmt.Errorf("%w: %w", constants.ErrConnectionClosed, c.connCloseError)
}

// closeWithError must be called with connLock held.
func (c *Connection) closeWithError(err error) {
	c.closeOnce.Do(func() {
		c.connCloseError = err
		close(c.connCloseCh)
	})
}

func (c *Connection) readLoop(conn *gorilla.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) && gorilla.IsUnexpectedCloseError(err, gorilla.CloseNormalClosure) {
				c.Config.Logger.Error("connection lost", "error", err)
			}
			c.connLock.Lock()
			c.closeWithError(err)
			c.connLock.Unlock()
			return
		}
		go c.HandleResponse(data)
	}
}

// Close sends a close message and closes the network connection. The write
// of the close message gives up when ctx is done; the connection is closed
// locally regardless.
func (c *Connection) Close(ctx context.Context) error {
	c.connLock.Lock()
	defer c.connLock.Unlock()

	conn := c.conn
	if conn == nil {
		return nil
	}
	c.conn = nil
	c.closeWithError(constants.ErrConnectionClosed)

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(time.Second)
	}
	msg := gorilla.FormatCloseMessage(constants.CloseMessageCode, "")
	if err := conn.WriteControl(gorilla.CloseMessage, msg, deadline); err != nil {
		c.Config.Logger.Error("failed to write close message", "error", err)
	}
	return conn.Close()
}
