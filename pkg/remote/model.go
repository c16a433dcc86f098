package remote

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/revstore/revstore/pkg/change"
	"github.com/revstore/revstore/pkg/constants"
	"github.com/revstore/revstore/pkg/models"
)

// RPC error codes. The negative codes below -32000 follow JSON-RPC.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	CodeAccessDenied    = -32001
	CodeInvalidCommand  = -32002
	CodeInvalidAddress  = -32003
	CodeOutsideRepo     = -32004
	CodeRevisionGap     = -32005
	CodeInvalidValue    = -32006
	CodeNoActor         = -32007
	CodeOutsideModel    = -32008
	CodeContention      = -32009
	CodeInvalidIdentity = -32010
)

// codeErrors lists the codes that stand for a sentinel error, outermost
// first.
var codeErrors = []struct {
	code int
	err  error
}{
	{CodeAccessDenied, constants.ErrAccessDenied},
	{CodeNoActor, constants.ErrNoActor},
	{CodeInvalidCommand, constants.ErrInvalidCommand},
	{CodeOutsideRepo, constants.ErrOutsideRepo},
	{CodeOutsideModel, constants.ErrOutsideModel},
	{CodeInvalidAddress, constants.ErrInvalidAddress},
	{CodeInvalidIdentity, constants.ErrInvalidID},
	{CodeInvalidValue, constants.ErrInvalidValue},
	{CodeRevisionGap, constants.ErrRevisionGap},
	{CodeContention, constants.ErrContention},
	{CodeMethodNotFound, constants.ErrMethodNotAvailable},
}

// RPCError is an error reported by the server.
type RPCError struct {
	Code    int    `cbor:"code"`
	Message string `cbor:"message,omitempty"`
}

func (r *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", r.Code, r.Message)
}

// Unwrap returns the sentinel error the code stands for, so that errors.Is
// works across the transport.
func (r *RPCError) Unwrap() error {
	for _, c := range codeErrors {
		if c.code == r.Code {
			return c.err
		}
	}
	return nil
}

// newRPCError converts a server side error.
func newRPCError(err error) *RPCError {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	for _, c := range codeErrors {
		if errors.Is(err, c.err) {
			return &RPCError{Code: c.code, Message: err.Error()}
		}
	}
	return &RPCError{Code: CodeInternalError, Message: err.Error()}
}

// RPCRequest is a call from the client.
type RPCRequest struct {
	ID     string          `cbor:"id"`
	Method string          `cbor:"method"`
	Params cbor.RawMessage `cbor:"params,omitempty"`
}

// RPCResponse answers the request with the same ID. Exactly one of Error and
// Result is set.
type RPCResponse struct {
	ID     string          `cbor:"id"`
	Error  *RPCError       `cbor:"error,omitempty"`
	Result cbor.RawMessage `cbor:"result,omitempty"`
}

type RPCFunction string

var (
	Events  RPCFunction = "events"
	Execute RPCFunction = "execute"
	Ping    RPCFunction = "ping"
)

// EventsParams selects the events of Model with Begin <= revision < End.
type EventsParams struct {
	Model models.Address `cbor:"model"`
	Begin int64          `cbor:"begin"`
	End   int64          `cbor:"end"`
}

// ExecuteParams carries the change to execute as the connection's actor.
type ExecuteParams struct {
	Change change.Box `cbor:"change"`
}
