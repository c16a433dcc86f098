package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	gorilla "github.com/gorilla/websocket"
	"github.com/revstore/revstore/internal/codec"
	"github.com/revstore/revstore/pkg/arm"
	"github.com/revstore/revstore/pkg/change"
	"github.com/revstore/revstore/pkg/constants"
	"github.com/revstore/revstore/pkg/logger"
	"github.com/revstore/revstore/pkg/models"
	"github.com/revstore/revstore/pkg/store"
)

// Server serves a store over WebSocket connections. Each connection acts for
// the actor named in its handshake.
type Server struct {
	store    store.Store
	am       arm.AuthorizationManager
	codec    codec.Codec
	logger   logger.Logger
	upgrader gorilla.Upgrader
}

type ServerOption func(*Server)

// WithAuthorization makes every connection see the store through
// arm.NewStore for its actor.
func WithAuthorization(am arm.AuthorizationManager) ServerOption {
	return func(s *Server) {
		s.am = am
	}
}

func WithServerLogger(l logger.Logger) ServerOption {
	return func(s *Server) {
		s.logger = l
	}
}

func WithServerCodec(c codec.Codec) ServerOption {
	return func(s *Server) {
		s.codec = c
	}
}

func NewServer(st store.Store, opts ...ServerOption) *Server {
	s := &Server{
		store:  st,
		codec:  models.CborCodec{},
		logger: logger.Nop(),
		upgrader: gorilla.Upgrader{
			Subprotocols:      []string{Subprotocol},
			EnableCompression: true,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	actor, err := models.NewID(r.Header.Get(constants.ActorHeader))
	if err != nil {
		http.Error(w, fmt.Sprintf("%v: %v", constants.ErrNoActor, err), http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has replied already.
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	var st store.Store = s.store
	if s.am != nil {
		st = arm.NewStore(s.store, actor, s.am)
	}
	sess := &session{server: s, conn: conn, actor: actor, store: st}
	sess.serve(r.Context())
}

type session struct {
	server *Server
	conn   *gorilla.Conn
	actor  models.ID
	store  store.Store

	writeLock sync.Mutex
}

func (sess *session) serve(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
		sess.conn.Close()
	}()

	log := sess.server.logger
	log.Debug("connection opened", "actor", sess.actor)
	for {
		_, data, err := sess.conn.ReadMessage()
		if err != nil {
			if gorilla.IsUnexpectedCloseError(err, gorilla.CloseNormalClosure, gorilla.CloseGoingAway) {
				log.Warn("connection lost", "actor", sess.actor, "error", err)
			} else {
				log.Debug("connection closed", "actor", sess.actor)
			}
			return
		}

		var req RPCRequest
		if err := sess.server.codec.Unmarshal(data, &req); err != nil {
			sess.reply(RPCResponse{Error: &RPCError{Code: CodeParseError, Message: err.Error()}})
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess.reply(sess.handle(ctx, &req))
		}()
	}
}

func (sess *session) handle(ctx context.Context, req *RPCRequest) RPCResponse {
	res := RPCResponse{ID: req.ID}
	result, err := sess.call(ctx, RPCFunction(req.Method), req.Params)
	if err == nil {
		res.Result, err = encodeResult(sess.server.codec, result)
	}
	if err != nil {
		res.Error = newRPCError(err)
		res.Result = nil
		sess.server.logger.Debug("request failed", "method", req.Method, "actor", sess.actor, "error", err)
	}
	return res
}

func (sess *session) call(ctx context.Context, method RPCFunction, params []byte) (any, error) {
	u := sess.server.codec
	switch method {
	case Ping:
		return nil, nil
	case Events:
		var p EventsParams
		if err := u.Unmarshal(params, &p); err != nil {
			return nil, &RPCError{Code: CodeInvalidParams, Message: err.Error()}
		}
		events, err := sess.store.GetEvents(ctx, p.Model, p.Begin, p.End)
		if err != nil {
			return nil, err
		}
		if events == nil {
			events = []change.Event{}
		}
		return events, nil
	case Execute:
		var p ExecuteParams
		if err := u.Unmarshal(params, &p); err != nil {
			if errors.Is(err, constants.ErrInvalidCommand) {
				return nil, err
			}
			return nil, &RPCError{Code: CodeInvalidParams, Message: err.Error()}
		}
		return sess.store.ExecuteCommand(ctx, sess.actor, p.Change.Change)
	default:
		return nil, &RPCError{Code: CodeMethodNotFound, Message: fmt.Sprintf("%v: %s", constants.ErrMethodNotAvailable, method)}
	}
}

func (sess *session) reply(res RPCResponse) {
	data, err := sess.server.codec.Marshal(res)
	if err != nil {
		sess.server.logger.Error("failed to encode response", "id", res.ID, "error", err)
		return
	}
	sess.writeLock.Lock()
	defer sess.writeLock.Unlock()
	if err := sess.conn.WriteMessage(gorilla.BinaryMessage, data); err != nil {
		sess.server.logger.Warn("failed to write response", "id", res.ID, "error", err)
	}
}
