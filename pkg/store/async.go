package store

import (
	"context"

	"github.com/revstore/revstore/pkg/change"
	"github.com/revstore/revstore/pkg/models"
)

// Callback receives the outcome of an asynchronous call.
type Callback[T any] interface {
	OnSuccess(result T)
	OnFailure(err error)
}

// CallbackFuncs adapts two functions to a Callback. Nil functions are skipped.
type CallbackFuncs[T any] struct {
	Success func(T)
	Failure func(error)
}

func (c CallbackFuncs[T]) OnSuccess(result T) {
	if c.Success != nil {
		c.Success(result)
	}
}

func (c CallbackFuncs[T]) OnFailure(err error) {
	if c.Failure != nil {
		c.Failure(err)
	}
}

// Async runs fn on its own goroutine and reports to cb. The returned channel
// is closed after cb returned.
func Async[T any](ctx context.Context, fn func(context.Context) (T, error), cb Callback[T]) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		res, err := fn(ctx)
		if err != nil {
			cb.OnFailure(err)
			return
		}
		cb.OnSuccess(res)
	}()
	return done
}

// ExecuteAsync executes c on s without blocking the caller. Rejections are
// delivered to OnSuccess as result codes.
func ExecuteAsync(ctx context.Context, s Store, actor models.ID, c change.Change, cb Callback[int64]) <-chan struct{} {
	return Async(ctx, func(ctx context.Context) (int64, error) {
		return s.ExecuteCommand(ctx, actor, c)
	}, cb)
}
