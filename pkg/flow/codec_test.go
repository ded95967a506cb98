package flow

import (
	"bytes"
	"context"
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestCodecs_Stream(t *testing.T) {
	values := []int64{0, 1, -1, 139629729, math.MaxInt64, math.MinInt64}

	for _, codec := range []Codec{VarintCodec{}, ProtoCodec{}, JSONCodec{}} {
		t.Run(codec.Name(), func(t *testing.T) {
			var buf bytes.Buffer
			for _, v := range values {
				require.NoError(t, codec.Encode(&buf, v))
			}

			for _, want := range values {
				got, err := codec.Decode(&buf)
				require.NoError(t, err)
				require.Equal(t, want, got)
			}

			_, err := codec.Decode(&buf)
			require.ErrorIs(t, err, io.EOF, "exhausted stream must report a clean EOF")
		})
	}
}

func TestVarintCodec_IsZigZag(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, VarintCodec{}.Encode(&buf, -1))
	require.Equal(t, protowire.AppendVarint(nil, 1), buf.Bytes())
}

func TestReadFrame_Truncated(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte("abcdef")))
	truncated := bytes.NewBuffer(buf.Bytes()[:4])

	_, err := ReadFrame(truncated)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReadFrame_TooLarge(t *testing.T) {
	buf := bytes.NewBuffer(protowire.AppendVarint(nil, MaxFrameSize+1))
	_, err := ReadFrame(buf)
	require.ErrorIs(t, err, ErrFrameTooLarge)

	require.ErrorIs(t, WriteFrame(io.Discard, make([]byte, MaxFrameSize+1)), ErrFrameTooLarge)
}

func TestJSONCodec_BadPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte(`"nope"`)))
	_, err := JSONCodec{}.Decode(&buf)
	require.ErrorIs(t, err, ErrBadFrame)
}

func TestPump(t *testing.T) {
	var buf bytes.Buffer
	for _, v := range []int64{5, 6, 7} {
		require.NoError(t, VarintCodec{}.Encode(&buf, v))
	}

	q := NewQueue()
	n, err := Pump(context.Background(), &buf, VarintCodec{}, q)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, []int64{5, 6, 7}, q.Drain())
}

func TestPump_StopsOnClosedSink(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, VarintCodec{}.Encode(&buf, 1))

	q := NewQueue()
	require.NoError(t, q.Close())
	_, err := Pump(context.Background(), &buf, VarintCodec{}, q)
	require.ErrorIs(t, err, ErrFlowClosed)
}

func TestCodecByName(t *testing.T) {
	for name, want := range map[string]Codec{
		"":       VarintCodec{},
		"varint": VarintCodec{},
		"proto":  ProtoCodec{},
		"json":   JSONCodec{},
	} {
		got, err := CodecByName(name)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	_, err := CodecByName("cbor")
	require.Error(t, err)
}
