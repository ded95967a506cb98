package intcode

import (
	"github.com/quic-go/quic-go"
)

// QErrStreamExportClosed is sent to peers still writing to an export once
// it is closed.
const QErrStreamExportClosed = quic.StreamErrorCode(0x11)

type inboundStream struct {
	peer   Peer
	export string

	// done is closed once the stream stopped being pumped.
	done chan struct{}

	quic.ReceiveStream
}

func newInboundStream(stream quic.ReceiveStream, peer Peer) *inboundStream {
	return &inboundStream{
		peer:          peer,
		done:          make(chan struct{}),
		ReceiveStream: stream,
	}
}

func (s *inboundStream) garbageCollector(closer <-chan struct{}) {
	select {
	case <-s.done:
		// already drained, nothing to clean-up.
	case <-closer:
		// export closed while the peer is still writing.
		s.CancelRead(QErrStreamExportClosed)
	}
}
