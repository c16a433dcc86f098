// Package gws implements remote.Conn on top of github.com/lxzan/gws.
package gws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/lxzan/gws"
	"github.com/revstore/revstore/pkg/constants"
	"github.com/revstore/revstore/pkg/remote"
)

type GwsConnection struct {
	*remote.Toolkit

	conn     *gws.Conn
	connLock sync.Mutex

	connCloseCh    chan struct{}
	connCloseError error
	closeOnce      sync.Once
}

var _ remote.Conn = (*GwsConnection)(nil)

type websocketHandler struct {
	conn *GwsConnection
}

func (h *websocketHandler) OnOpen(socket *gws.Conn) {}

func (h *websocketHandler) OnClose(socket *gws.Conn, err error) {
	h.conn.connLock.Lock()
	defer h.conn.connLock.Unlock()
	h.conn.closeWithError(err)
}

func (h *websocketHandler) OnMessage(socket *gws.Conn, message *gws.Message) {
	defer message.Close()
	// The message buffer is recycled on Close.
	data := append([]byte(nil), message.Bytes()...)
	go h.conn.HandleResponse(data)
}

func (h *websocketHandler) OnPing(socket *gws.Conn, payload []byte) {
	_ = socket.WritePong(payload)
}

func (h *websocketHandler) OnPong(socket *gws.Conn, payload []byte) {}

func New(cfg *remote.Config) (*GwsConnection, error) {
	tk, err := remote.NewToolkit(cfg)
	if err != nil {
		return nil, err
	}
	return &GwsConnection{Toolkit: tk, connCloseCh: make(chan struct{})}, nil
}

// Connect dials the server. The handshake does not observe ctx.
func (c *GwsConnection) Connect(ctx context.Context) error {
	header := c.Header()
	header.Set("Sec-WebSocket-Protocol", remote.Subprotocol)
	option := &gws.ClientOption{
		Addr:          c.Endpoint(),
		RequestHeader: header,
		PermessageDeflate: gws.PermessageDeflate{
			Enabled: true,
		},
	}

	conn, res, err := gws.NewClient(&websocketHandler{conn: c}, option)
	if err != nil {
		if res != nil {
			return fmt.Errorf("dialing %s: %w (status %d)", option.Addr, err, res.StatusCode)
		}
		return err
	}

	c.connLock.Lock()
	c.conn = conn
	c.connLock.Unlock()

	go conn.ReadLoop()
	return nil
}

func (c *GwsConnection) Send(ctx context.Context, method remote.RPCFunction, params any) (*remote.RPCResponse, error) {
	return c.Call(ctx, method, params, c.write, c.connCloseCh, c.closeError)
}

func (c *GwsConnection) write(data []byte) error {
	c.connLock.Lock()
	defer c.connLock.Unlock()
	if c.conn == nil {
		return constants.ErrConnectionClosed
	}
	return c.conn.WriteMessage(gws.OpcodeBinary, data)
}

func (c *GwsConnection) closeError() error {
	c.connLock.Lock()
	defer c.connLock.Unlock()
	if c.connCloseError == nil || errors.Is(c.connCloseError, constants.ErrConnectionClosed) {
		return constants.ErrConnectionClosed
	}
	return fmt.Errorf("%w: %w", constants.ErrConnectionClosed, c.connCloseError)
}

// closeWithError must be called with connLock held.
func (c *GwsConnection) closeWithError(err error) {
	c.closeOnce.Do(func() {
		c.connCloseError = err
		close(c.connCloseCh)
	})
}

func (c *GwsConnection) Close(ctx context.Context) error {
	c.connLock.Lock()
	conn := c.conn
	c.conn = nil
	c.closeWithError(constants.ErrConnectionClosed)
	c.connLock.Unlock()

	if conn == nil {
		return nil
	}
	// WriteClose ends in OnClose, which takes connLock.
	conn.WriteClose(constants.CloseMessageCode, nil)
	if err := conn.NetConn().Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}
