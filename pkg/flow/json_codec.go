package flow

import (
	"encoding/json"
	"fmt"
	"io"
)

// JSONCodec frames every value as a JSON number, handy when sniffing a
// link by eye.
type JSONCodec struct{}

var _ Codec = JSONCodec{}

func (JSONCodec) Name() string {
	return "json"
}

func (JSONCodec) Encode(w io.Writer, value int64) error {
	buf, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return WriteFrame(w, buf)
}

func (JSONCodec) Decode(r Source) (int64, error) {
	buf, err := ReadFrame(r)
	if err != nil {
		return 0, err
	}

	var value int64
	if err := json.Unmarshal(buf, &value); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrBadFrame, err)
	}
	return value, nil
}

// CodecByName returns the codec registered under name, defaulting to
// VarintCodec for an empty name.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", VarintCodec{}.Name():
		return VarintCodec{}, nil
	case ProtoCodec{}.Name():
		return ProtoCodec{}, nil
	case JSONCodec{}.Name():
		return JSONCodec{}, nil
	default:
		return nil, fmt.Errorf("flow: unknown codec %q", name)
	}
}
