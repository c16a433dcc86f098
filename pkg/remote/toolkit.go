package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/revstore/revstore/internal/codec"
	"github.com/revstore/revstore/pkg/constants"
	"github.com/revstore/revstore/pkg/logger"
	"github.com/revstore/revstore/pkg/models"
)

// Subprotocol is negotiated by both ends of a connection.
const Subprotocol = "cbor"

// Config describes how a connection reaches a server.
type Config struct {
	// BaseURL is the ws:// or wss:// URL of the server, without RPCPath.
	BaseURL string
	// Actor is sent with the handshake. The server runs every call of the
	// connection as this actor.
	Actor models.ID

	Codec  codec.Codec
	Logger logger.Logger

	// Timeout bounds the wait for a response once a request is written. Zero
	// leaves it to the caller's context.
	Timeout time.Duration
}

// NewConfig returns a config with the CBOR codec, no logging and the default
// timeout.
func NewConfig(baseURL string, actor models.ID) *Config {
	return &Config{
		BaseURL: baseURL,
		Actor:   actor,
		Codec:   models.CborCodec{},
		Logger:  logger.Nop(),
		Timeout: constants.DefaultWSTimeout,
	}
}

// check validates c and rewrites an http(s) BaseURL to ws(s).
func (c *Config) check() error {
	if c.BaseURL == "" {
		return constants.ErrNoBaseURL
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("%w: %w", constants.ErrNoBaseURL, err)
	}
	switch u.Scheme {
	case constants.WebsocketScheme, constants.WebsocketSecureScheme:
	case constants.HTTPScheme:
		u.Scheme = constants.WebsocketScheme
	case constants.HTTPSecureScheme:
		u.Scheme = constants.WebsocketSecureScheme
	default:
		return fmt.Errorf("%w: %q", constants.ErrUnsupportedScheme, u.Scheme)
	}
	c.BaseURL = strings.TrimSuffix(u.String(), "/")
	if c.Codec == nil {
		return constants.ErrNoCodec
	}
	if c.Actor.IsZero() {
		return constants.ErrNoActor
	}
	return nil
}

// Conn is a connection to a server. Implementations are safe for concurrent
// Send calls.
type Conn interface {
	Connect(ctx context.Context) error
	// Send calls method and waits for its response. Error responses are
	// returned as *RPCError.
	Send(ctx context.Context, method RPCFunction, params any) (*RPCResponse, error)
	Close(ctx context.Context) error
}

// Toolkit carries the parts every Conn implementation shares: the config and
// the channels of requests waiting for their response.
type Toolkit struct {
	Config *Config

	responseChannels     map[string]chan RPCResponse
	responseChannelsLock sync.RWMutex
}

// NewToolkit checks cfg and fills in defaults for the unset optional fields.
func NewToolkit(cfg *Config) (*Toolkit, error) {
	if cfg == nil {
		return nil, constants.ErrNoBaseURL
	}
	if err := cfg.check(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	return &Toolkit{
		Config:           cfg,
		responseChannels: make(map[string]chan RPCResponse),
	}, nil
}

// Endpoint is the URL to dial.
func (t *Toolkit) Endpoint() string {
	return t.Config.BaseURL + constants.RPCPath
}

// Header is the handshake header carrying the actor.
func (t *Toolkit) Header() http.Header {
	h := http.Header{}
	h.Set(constants.ActorHeader, t.Config.Actor.String())
	return h
}

func (t *Toolkit) CreateResponseChannel(id string) (chan RPCResponse, error) {
	t.responseChannelsLock.Lock()
	defer t.responseChannelsLock.Unlock()

	if _, ok := t.responseChannels[id]; ok {
		return nil, fmt.Errorf("%w: %v", constants.ErrIDInUse, id)
	}

	// Buffered so that a response arriving after its caller gave up does not
	// block the read loop.
	ch := make(chan RPCResponse, 1)
	t.responseChannels[id] = ch
	return ch, nil
}

func (t *Toolkit) GetResponseChannel(id string) (chan RPCResponse, bool) {
	t.responseChannelsLock.RLock()
	defer t.responseChannelsLock.RUnlock()
	ch, ok := t.responseChannels[id]
	return ch, ok
}

func (t *Toolkit) RemoveResponseChannel(id string) {
	t.responseChannelsLock.Lock()
	defer t.responseChannelsLock.Unlock()
	delete(t.responseChannels, id)
}

// NewRequest encodes a call of method with a fresh request ID.
func (t *Toolkit) NewRequest(method RPCFunction, params any) (*RPCRequest, []byte, error) {
	req := &RPCRequest{ID: uuid.NewString(), Method: string(method)}
	if params != nil {
		raw, err := t.Config.Codec.Marshal(params)
		if err != nil {
			return nil, nil, fmt.Errorf("encoding %s params: %w", method, err)
		}
		req.Params = raw
	}
	data, err := t.Config.Codec.Marshal(req)
	if err != nil {
		return nil, nil, err
	}
	return req, data, nil
}

// Call writes a request with write and waits for the matching response.
// closed is closed when the connection goes away, closeErr then tells why.
func (t *Toolkit) Call(ctx context.Context, method RPCFunction, params any, write func([]byte) error, closed <-chan struct{}, closeErr func() error) (*RPCResponse, error) {
	if t.Config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Config.Timeout)
		defer cancel()
	}

	select {
	case <-closed:
		return nil, closeErr()
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	req, data, err := t.NewRequest(method, params)
	if err != nil {
		return nil, err
	}

	responseChan, err := t.CreateResponseChannel(req.ID)
	if err != nil {
		return nil, err
	}
	defer t.RemoveResponseChannel(req.ID)

	if err := write(data); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s: %w", constants.ErrTimeout, method, ctx.Err())
		}
		return nil, ctx.Err()
	case <-closed:
		return nil, closeErr()
	case res := <-responseChan:
		if res.Error != nil {
			return nil, res.Error
		}
		return &res, nil
	}
}

// HandleResponse routes an encoded response to the request waiting for it.
func (t *Toolkit) HandleResponse(data []byte) {
	var res RPCResponse
	if err := t.Config.Codec.Unmarshal(data, &res); err != nil {
		t.Config.Logger.Error("failed to decode response", "error", err)
		return
	}
	if res.ID == "" {
		// Requests the server could not even decode are answered without ID.
		// Their caller finds out by timing out.
		t.Config.Logger.Error("response without id", "error", res.Error)
		return
	}
	responseChan, ok := t.GetResponseChannel(res.ID)
	if !ok {
		t.Config.Logger.Warn("unavailable response channel", "id", res.ID)
		return
	}
	select {
	case responseChan <- res:
	default:
		t.Config.Logger.Warn("duplicate response", "id", res.ID)
	}
}

// Decode unmarshals the result of res into a T.
func Decode[T any](u codec.Unmarshaler, res *RPCResponse) (T, error) {
	var out T
	if res == nil || len(res.Result) == 0 {
		return out, nil
	}
	if err := u.Unmarshal(res.Result, &out); err != nil {
		return out, fmt.Errorf("decoding result: %w", err)
	}
	return out, nil
}

// encodeResult is the server side counterpart of Decode.
func encodeResult(m codec.Marshaler, v any) (cbor.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	return m.Marshal(v)
}
