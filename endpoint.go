package intcode

import (
	"context"
	"io"
	"regexp"
	"sync"

	"github.com/raskyld/intcode/pkg/flow"
)

const MaxExportLength = 128

var InvalidExportName = regexp.MustCompile(`[^A-Za-z0-9\-\.]+`)

// Endpoint is a named, transport-backed input. Every peer dialing its name
// appends to the same FIFO, which makes it usable as a machine input.
type Endpoint interface {
	Name() string
	flow.Reader
	io.Closer
}

var _ Endpoint = (*endpoint)(nil)

type endpoint struct {
	name  string
	queue *flow.Queue

	closed  bool
	closeCh chan struct{}
	lk      sync.Mutex

	tr *Transport
}

func newEndpoint(name string, tr *Transport) *endpoint {
	return &endpoint{
		name:    name,
		queue:   flow.NewQueue(),
		closeCh: make(chan struct{}),
		tr:      tr,
	}
}

func (ep *endpoint) Name() string {
	return ep.name
}

func (ep *endpoint) Recv(ctx context.Context) (int64, error) {
	return ep.queue.Recv(ctx)
}

func (ep *endpoint) Close() error {
	if !ep.close() {
		return nil
	}
	ep.tr.forgetExport(ep)
	return nil
}

// close marks the endpoint closed and reports whether it was open.
func (ep *endpoint) close() bool {
	ep.lk.Lock()
	defer ep.lk.Unlock()
	if ep.closed {
		return false
	}

	ep.closed = true
	close(ep.closeCh)
	ep.queue.Close()
	return true
}

func validExportName(name string) bool {
	return name != "" && len(name) < MaxExportLength && !InvalidExportName.MatchString(name)
}
