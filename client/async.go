package client

import (
	"context"

	"github.com/netfsd/netfsd/protocol"
	"golang.org/x/sync/singleflight"
)

// singleflightGroup is a thin rename of singleflight.Group so callers
// inside this package don't reach into golang.org/x/sync directly; it
// collapses concurrent identical reads into one storage-server round
// trip instead of each caller dialing and reading independently.
type singleflightGroup = singleflight.Group

// Result carries the outcome of an asynchronous operation.
type Result struct {
	Data []byte
	Err  error
}

// AsyncEngine wraps an Engine with a fixed worker pool for the
// *Async client operations, using a semaphore channel to cap how many
// operations run concurrently.
type AsyncEngine struct {
	engine *Engine
	sem    chan struct{}
}

// NewAsyncEngine wraps engine with a pool of engine.config.Workers
// concurrent slots.
func NewAsyncEngine(engine *Engine) *AsyncEngine {
	workers := engine.config.Workers
	if workers <= 0 {
		workers = 8
	}
	return &AsyncEngine{engine: engine, sem: make(chan struct{}, workers)}
}

func (a *AsyncEngine) acquire(ctx context.Context) error {
	select {
	case a.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *AsyncEngine) release() { <-a.sem }

// ReadAsync runs Read on a pooled worker, delivering its result on the
// returned channel.
func (a *AsyncEngine) ReadAsync(ctx context.Context, path string, offset uint64, length uint32) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		defer close(out)
		if err := a.acquire(ctx); err != nil {
			out <- Result{Err: err}
			return
		}
		defer a.release()

		data, err := a.engine.Read(path, offset, length)
		out <- Result{Data: data, Err: err}
	}()
	return out
}

// WriteAsync runs Write on a pooled worker, delivering the error on the
// returned channel.
func (a *AsyncEngine) WriteAsync(ctx context.Context, path string, offset uint64, data []byte) <-chan error {
	out := make(chan error, 1)
	go func() {
		defer close(out)
		if err := a.acquire(ctx); err != nil {
			out <- err
			return
		}
		defer a.release()
		out <- a.engine.Write(path, offset, data)
	}()
	return out
}

// DeleteAsync runs Delete on a pooled worker.
func (a *AsyncEngine) DeleteAsync(ctx context.Context, path string) <-chan error {
	out := make(chan error, 1)
	go func() {
		defer close(out)
		if err := a.acquire(ctx); err != nil {
			out <- err
			return
		}
		defer a.release()
		out <- a.engine.Delete(path)
	}()
	return out
}

// CreateAsync runs Create on a pooled worker.
func (a *AsyncEngine) CreateAsync(ctx context.Context, path string) <-chan error {
	out := make(chan error, 1)
	go func() {
		defer close(out)
		if err := a.acquire(ctx); err != nil {
			out <- err
			return
		}
		defer a.release()
		out <- a.engine.Create(path)
	}()
	return out
}

// InfoResult carries the outcome of an asynchronous GetFileInfo call.
type InfoResult struct {
	Info protocol.GetFileInfoResponseMsg
	Err  error
}

// GetFileInfoAsync runs GetFileInfo on a pooled worker.
func (a *AsyncEngine) GetFileInfoAsync(ctx context.Context, path string) <-chan InfoResult {
	out := make(chan InfoResult, 1)
	go func() {
		defer close(out)
		if err := a.acquire(ctx); err != nil {
			out <- InfoResult{Err: err}
			return
		}
		defer a.release()
		info, err := a.engine.GetFileInfo(path)
		out <- InfoResult{Info: info, Err: err}
	}()
	return out
}

// StreamAsync runs Stream on a pooled worker, invoking handler for each
// chunk as it arrives and delivering the final error once the stream
// ends or fails. The caller's handler is invoked from the worker
// goroutine, not the caller's, matching the no-cancellation-once-
// started async contract.
func (a *AsyncEngine) StreamAsync(ctx context.Context, path string, startPosition uint64, chunkSize uint32, handler ChunkHandler) <-chan error {
	out := make(chan error, 1)
	go func() {
		defer close(out)
		if err := a.acquire(ctx); err != nil {
			out <- err
			return
		}
		defer a.release()
		out <- a.engine.Stream(path, startPosition, chunkSize, handler)
	}()
	return out
}
