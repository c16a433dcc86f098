package remote

import (
	"context"
	"fmt"

	"github.com/revstore/revstore/internal/codec"
	"github.com/revstore/revstore/pkg/change"
	"github.com/revstore/revstore/pkg/constants"
	"github.com/revstore/revstore/pkg/models"
	"github.com/revstore/revstore/pkg/synchronizer"
)

// Client calls a server over a Conn. It implements synchronizer.Remote.
type Client struct {
	conn  Conn
	actor models.ID
	codec codec.Unmarshaler
}

var _ synchronizer.Remote = (*Client)(nil)

// NewClient wraps a connection built from cfg.
func NewClient(conn Conn, cfg *Config) *Client {
	var u codec.Unmarshaler = models.CborCodec{}
	if cfg.Codec != nil {
		u = cfg.Codec
	}
	return &Client{conn: conn, actor: cfg.Actor, codec: u}
}

func (c *Client) Actor() models.ID {
	return c.actor
}

func (c *Client) Ping(ctx context.Context) error {
	_, err := c.conn.Send(ctx, Ping, nil)
	return err
}

func (c *Client) GetEvents(ctx context.Context, model models.Address, begin, end int64) ([]change.Event, error) {
	res, err := c.conn.Send(ctx, Events, EventsParams{Model: model, Begin: begin, End: end})
	if err != nil {
		return nil, err
	}
	return Decode[[]change.Event](c.codec, res)
}

// Execute runs ch on the server. The connection's actor is the only one it can
// act as.
func (c *Client) Execute(ctx context.Context, actor models.ID, ch change.Change) (int64, error) {
	if actor != c.actor {
		return change.Failed, fmt.Errorf("%w: connection of %s used by %s", constants.ErrAccessDenied, c.actor, actor)
	}
	res, err := c.conn.Send(ctx, Execute, ExecuteParams{Change: change.Box{Change: ch}})
	if err != nil {
		return change.Failed, err
	}
	return Decode[int64](c.codec, res)
}

func (c *Client) Close(ctx context.Context) error {
	return c.conn.Close(ctx)
}
