package flow

import (
	"context"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
)

// RemoteWriter encodes values on a QUIC send stream.
//
// It is safe for concurrent use, values from concurrent senders are
// serialised in lock order.
type RemoteWriter struct {
	stream quic.SendStream
	codec  Codec

	lk     sync.Mutex
	closed bool
}

var _ Writer = (*RemoteWriter)(nil)

func NewRemoteWriter(stream quic.SendStream, codec Codec) *RemoteWriter {
	if codec == nil {
		codec = VarintCodec{}
	}
	return &RemoteWriter{
		stream: stream,
		codec:  codec,
	}
}

func (w *RemoteWriter) Send(ctx context.Context, value int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	w.lk.Lock()
	defer w.lk.Unlock()
	if w.closed {
		return ErrFlowClosed
	}

	if dl, ok := ctx.Deadline(); ok {
		w.stream.SetWriteDeadline(dl)
		defer w.stream.SetWriteDeadline(time.Time{})
	}
	return w.codec.Encode(w.stream, value)
}

// Close flushes and half-closes the stream, the peer sees io.EOF once it
// has read every value.
func (w *RemoteWriter) Close() error {
	w.lk.Lock()
	defer w.lk.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.stream.Close()
}
