package flow

import (
	"encoding/binary"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"
)

// MaxFrameSize bounds length-prefixed frames read from a stream.
const MaxFrameSize = 1 << 16

// Source is what codecs decode from. Both *bufio.Reader and
// *bytes.Buffer satisfy it.
type Source interface {
	io.Reader
	io.ByteReader
}

// Codec turns integers into bytes on a stream and back.
// It is supposed to return an error only when a final error is
// encountered.
type Codec interface {
	Name() string
	Encode(w io.Writer, value int64) error
	Decode(r Source) (int64, error)
}

// VarintCodec writes each value as a single zig-zag varint, which is
// self-delimiting and needs no length prefix.
type VarintCodec struct{}

var _ Codec = VarintCodec{}

func (VarintCodec) Name() string {
	return "varint"
}

func (VarintCodec) Encode(w io.Writer, value int64) error {
	_, err := w.Write(protowire.AppendVarint(nil, protowire.EncodeZigZag(value)))
	return err
}

func (VarintCodec) Decode(r Source) (int64, error) {
	raw, err := readVarint(r)
	if err != nil {
		return 0, err
	}
	return protowire.DecodeZigZag(raw), nil
}

// WriteFrame writes buf prefixed by its varint-encoded length.
func WriteFrame(w io.Writer, buf []byte) error {
	if len(buf) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(buf))
	}
	prefixed := protowire.AppendVarint(make([]byte, 0, binary.MaxVarintLen64+len(buf)), uint64(len(buf)))
	prefixed = append(prefixed, buf...)
	_, err := w.Write(prefixed)
	return err
}

// ReadFrame reads a frame written by WriteFrame.
func ReadFrame(r Source) ([]byte, error) {
	size, err := readVarint(r)
	if err != nil {
		return nil, err
	}
	if size > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)
	}

	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return buf, nil
}

func readVarint(r Source) (uint64, error) {
	buf := make([]byte, 0, binary.MaxVarintLen64)
	for len(buf) < binary.MaxVarintLen64 {
		b, err := r.ReadByte()
		if err != nil {
			if err == io.EOF && len(buf) > 0 {
				err = io.ErrUnexpectedEOF
			}
			return 0, err
		}
		buf = append(buf, b)
		if b < 0x80 {
			v, n := protowire.ConsumeVarint(buf)
			if err := protowire.ParseError(n); err != nil {
				return 0, fmt.Errorf("%w: %w", ErrBadFrame, err)
			}
			return v, nil
		}
	}
	return 0, fmt.Errorf("%w: varint overflow", ErrBadFrame)
}
