package constants

import "errors"

// Errors
var (
	ErrInvalidID      = errors.New("invalid id")
	ErrInvalidAddress = errors.New("invalid address")
	ErrInvalidValue   = errors.New("invalid value")
	ErrInvalidCommand = errors.New("invalid command")
	ErrNoActor        = errors.New("actor is not set")
	ErrOutsideModel   = errors.New("address outside of model")
	ErrOutsideRepo    = errors.New("address outside of repository")
	ErrRevisionGap    = errors.New("event revision does not continue the log")
	ErrAccessDenied   = errors.New("access denied")
	ErrConflict       = errors.New("synchronization conflict")
	ErrSyncRejected   = errors.New("synchronization rejected by server")
	ErrNoModel        = errors.New("model does not exist")
	ErrContention     = errors.New("model log contended by other writers")
)

var (
	ErrIDInUse            = errors.New("id already in use")
	ErrTimeout            = errors.New("timeout")
	ErrNoBaseURL          = errors.New("base url not set")
	ErrNoCodec            = errors.New("codec not set")
	ErrUnsupportedScheme  = errors.New("unsupported url scheme")
	ErrConnectionClosed   = errors.New("connection closed")
	ErrMethodNotAvailable = errors.New("method not available on this connection")
)
