package flow

import (
	"fmt"
	"io"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ProtoCodec frames every value as a protobuf Int64Value message. It is
// chattier than VarintCodec but readable by any protobuf peer.
type ProtoCodec struct{}

var _ Codec = ProtoCodec{}

func (ProtoCodec) Name() string {
	return "proto"
}

func (ProtoCodec) Encode(w io.Writer, value int64) error {
	buf, err := proto.Marshal(wrapperspb.Int64(value))
	if err != nil {
		return err
	}
	return WriteFrame(w, buf)
}

func (ProtoCodec) Decode(r Source) (int64, error) {
	buf, err := ReadFrame(r)
	if err != nil {
		return 0, err
	}

	msg := &wrapperspb.Int64Value{}
	if err := proto.Unmarshal(buf, msg); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrBadFrame, err)
	}
	return msg.GetValue(), nil
}
