// Package flow provides point-to-point, ordered flows of integers.
//
// A [Queue] is the in-process flow: unbounded, FIFO, never blocking on
// [Queue.Send] and blocking on [Queue.Recv] until a value is available.
// [RemoteWriter] carries the same values across a QUIC stream, and [Pump]
// decodes them on the other end, both framed by a [Codec].
package flow

import (
	"context"
	"errors"
)

var (
	ErrFlowClosed    = errors.New("flow closed")
	ErrFrameTooLarge = errors.New("flow: frame too large")
	ErrBadFrame      = errors.New("flow: malformed frame")
)

// Reader is the consuming end of a flow.
type Reader interface {
	Recv(ctx context.Context) (int64, error)
}

// Writer is the producing end of a flow.
type Writer interface {
	Send(ctx context.Context, value int64) error
}

// Pipe is a flow seen from both ends, the local [Queue] being the only
// in-process implementation.
type Pipe interface {
	Reader
	Writer
}
