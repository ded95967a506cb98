package flow

import (
	"context"
	"errors"
	"io"
)

// Pump decodes values from src and sends them to dst until src is
// exhausted. A clean end of stream returns nil.
func Pump(ctx context.Context, src Source, codec Codec, dst Writer) (n int, err error) {
	for {
		value, err := codec.Decode(src)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return n, nil
			}
			return n, err
		}
		if err := dst.Send(ctx, value); err != nil {
			return n, err
		}
		n++
	}
}
