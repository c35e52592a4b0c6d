// File: adapters/context.go
// Package adapters provides glue between the executor's handle-based
// lifecycle and the context-based conventions of the wider Go ecosystem.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package adapters

import (
	"context"

	"github.com/prettynatty/bastion/api"
)

// SubmitContext submits p and ties the resulting handle to ctx: when ctx
// is cancelled before the proc settles, the handle is cancelled too. The
// watcher goroutine exits as soon as either side settles.
func SubmitContext(ctx context.Context, ex api.Executor, p api.Proc) (api.Handle, error) {
	h, err := ex.Submit(p)
	if err != nil {
		return nil, err
	}
	go func() {
		select {
		case <-ctx.Done():
			h.Cancel()
		case <-h.Done():
		}
	}()
	return h, nil
}

// HandleContext derives a context that is cancelled once h reaches a
// terminal state, with context.Cause reporting the proc's outcome:
// the proc error after a failure, api.ErrProcCancelled after
// cancellation, or context.Canceled after normal completion.
//
// The returned stop function releases the watcher and must be called
// when the context is no longer needed.
func HandleContext(parent context.Context, h api.Handle) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)
	go func() {
		select {
		case <-h.Done():
			cancel(h.Err())
		case <-ctx.Done():
		}
	}()
	return ctx, func() { cancel(context.Canceled) }
}

// Wait blocks until h settles or ctx expires. It returns the proc's
// terminal error in the first case and ctx.Err() in the second.
func Wait(ctx context.Context, h api.Handle) error {
	select {
	case <-h.Done():
		return h.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}
