package intcode

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-metrics"
	"github.com/quic-go/quic-go"
	"github.com/raskyld/intcode/pkg/flow"
)

// ALPN negotiated by every ring link.
const ALPN = "intcode-ring"

const defaultPort = 6174

// TransportConfig represents configuration for remote ring links.
type TransportConfig struct {
	// TlsConfig should be configured to ensure mTLS is enabled between the
	// peers.
	TlsConfig *tls.Config

	// BindAddr and BindPort are where we want to listen for inbound links.
	BindAddr string
	BindPort int

	// Codec used on the streams we open. Inbound streams announce their
	// own.
	Codec flow.Codec

	// HintMaxLinks gives an indication of how many links a single peer
	// may open towards us.
	HintMaxLinks int64

	// HostnameResolver to resolve peer names from their certificates.
	HostnameResolver HostnameResolver

	// MetricsLabels to add to every metrics emitted by the transport.
	MetricLabels []metrics.Label

	// MetricSink to use for emitting metrics.
	MetricSink metrics.MetricSink

	// DialTimeout controls how much time we wait for link establishment.
	DialTimeout time.Duration

	// LogHandler to use for emitting structured logs.
	LogHandler slog.Handler
}

// Transport carries values between machines living in different
// processes. A process exports named inputs with `Export`, and peers
// `Dial` them to obtain a `flow.Writer` they can hand to a machine as its
// output.
//
// Each link is a unidirectional QUIC stream starting with two frames, the
// export name and the codec name, followed by the encoded values.
type Transport struct {
	cfg    *TransportConfig
	logger *slog.Logger
	msink  metrics.MetricSink
	codec  flow.Codec

	// graceful termination asked, do not spam of connection error in logs
	gracefulTerm atomic.Bool

	exports     map[string]*endpoint
	exportsLock sync.RWMutex

	outbound  map[string]quic.Connection
	inbound   []quic.Connection
	connsLock sync.Mutex

	// QUIC layer
	tr     *quic.Transport
	ln     *quic.Listener
	quicCf *quic.Config

	// UDP layer
	udpLn *net.UDPConn

	wg sync.WaitGroup
}

func NewTransport(cfg *TransportConfig) (t *Transport, err error) {
	if cfg.TlsConfig == nil {
		return nil, ErrNoTLSConfig
	}

	t = &Transport{
		cfg:      cfg,
		exports:  make(map[string]*endpoint),
		outbound: make(map[string]quic.Connection),
		codec:    cfg.Codec,
	}

	if cfg.LogHandler == nil {
		t.logger = slog.Default()
	} else {
		t.logger = slog.New(cfg.LogHandler)
	}

	if cfg.MetricSink == nil {
		t.msink = metrics.Default()
	} else {
		t.msink = cfg.MetricSink
	}

	if t.codec == nil {
		t.codec = flow.VarintCodec{}
	}

	if cfg.HostnameResolver == nil {
		cfg.HostnameResolver = CommonNameResolver
	}

	// release what was allocated if we fail half-way.
	self := t
	defer func() {
		if err != nil {
			self.Shutdown()
		}
	}()

	port := cfg.BindPort
	if port == 0 {
		port = defaultPort
	}

	addr := net.IPv4zero
	if cfg.BindAddr != "" {
		addr = net.ParseIP(cfg.BindAddr)
		if addr == nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidAddr, cfg.BindAddr)
		}
	}

	udpLn, err := net.ListenUDP("udp", &net.UDPAddr{IP: addr, Port: port})
	if err != nil {
		return nil, fmt.Errorf("transport: failed to allocate UDP listener: %w", err)
	}
	t.udpLn = udpLn

	t.tr = &quic.Transport{
		Conn: udpLn,
	}

	hintLinks := cfg.HintMaxLinks
	if hintLinks == 0 {
		hintLinks = 1000
	}

	t.quicCf = &quic.Config{
		Versions:              []quic.Version{quic.Version2, quic.Version1},
		MaxIncomingStreams:    -1,
		MaxIncomingUniStreams: hintLinks,
		// A ring may legitimately stay silent while a machine computes.
		KeepAlivePeriod: 15 * time.Second,
		MaxIdleTimeout:  1 * time.Minute,
	}

	ln, err := t.tr.Listen(t.serverTLS(), t.quicCf)
	if err != nil {
		return nil, fmt.Errorf("transport: failed to allocate QUIC listener: %w", err)
	}
	t.ln = ln

	t.wg.Add(1)
	go t.acceptCx()

	return t, nil
}

// Addr is the UDP address the transport listens on.
func (t *Transport) Addr() net.Addr {
	return t.udpLn.LocalAddr()
}

// Export creates a named input fed by every peer dialing name.
func (t *Transport) Export(name string) (Endpoint, error) {
	if !validExportName(name) {
		return nil, ErrExportName
	}
	if t.gracefulTerm.Load() {
		return nil, ErrShutdown
	}

	t.exportsLock.Lock()
	defer t.exportsLock.Unlock()
	if _, exists := t.exports[name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrExportExists, name)
	}

	ep := newEndpoint(name, t)
	t.exports[name] = ep
	t.logger.Debug("export created", LabelExport.L(name))
	return ep, nil
}

// Dial opens a link to the export name of the peer listening on addr.
// The returned writer MUST be closed once the machine using it stopped.
func (t *Transport) Dial(ctx context.Context, addr, name string) (*flow.RemoteWriter, error) {
	if !validExportName(name) {
		return nil, ErrExportName
	}
	if t.gracefulTerm.Load() {
		return nil, ErrShutdown
	}

	if t.cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.DialTimeout)
		defer cancel()
	}

	mLabels := withLabels(t.cfg.MetricLabels, LabelPeerAddr.M(addr), LabelExport.M(name))

	conn, err := t.getActiveCx(ctx, addr)
	if err != nil {
		t.msink.IncrCounterWithLabels(
			MetricStreamEstOutErrors,
			1.0,
			withLabels(mLabels, LabelError.M("no_conn_to_host")),
		)
		return nil, err
	}

	stream, err := conn.OpenUniStreamSync(ctx)
	if err != nil {
		t.msink.IncrCounterWithLabels(
			MetricStreamEstOutErrors,
			1.0,
			withLabels(mLabels, LabelError.M("cannot_open_stream")),
		)
		return nil, err
	}

	if err := writeLinkHeader(stream, name, t.codec.Name()); err != nil {
		stream.CancelWrite(QErrStreamProtocol)
		t.msink.IncrCounterWithLabels(
			MetricStreamEstOutErrors,
			1.0,
			withLabels(mLabels, LabelError.M("cannot_send_header")),
		)
		return nil, err
	}

	t.msink.IncrCounterWithLabels(MetricStreamEstOutCount, 1.0, mLabels)
	t.logger.Debug("link established", LabelPeerAddr.L(addr), LabelExport.L(name))
	return flow.NewRemoteWriter(stream, t.codec), nil
}

// Shutdown closes every export, connection and the UDP socket. Writers
// should be closed, and their values consumed, before calling it since
// in-flight frames are dropped.
func (t *Transport) Shutdown() error {
	if !t.gracefulTerm.CompareAndSwap(false, true) {
		// no-op because it was already shutdown
		return nil
	}

	t.exportsLock.Lock()
	for name, ep := range t.exports {
		ep.close()
		delete(t.exports, name)
	}
	t.exportsLock.Unlock()

	t.connsLock.Lock()
	for _, conn := range t.outbound {
		QErrShutdown.Close(conn, "we are shutting down! bye!")
	}
	for _, conn := range t.inbound {
		QErrShutdown.Close(conn, "we are shutting down! bye!")
	}
	t.connsLock.Unlock()

	if t.ln != nil {
		t.ln.Close()
	}

	if t.tr != nil {
		t.tr.Close()
	}

	if t.udpLn != nil {
		t.udpLn.Close()
	}

	t.wg.Wait()
	return nil
}

func (t *Transport) forgetExport(ep *endpoint) {
	t.exportsLock.Lock()
	defer t.exportsLock.Unlock()
	if t.exports[ep.name] == ep {
		delete(t.exports, ep.name)
	}
}

func (t *Transport) lookupExport(name string) (*endpoint, bool) {
	t.exportsLock.RLock()
	defer t.exportsLock.RUnlock()
	ep, ok := t.exports[name]
	return ep, ok
}

func (t *Transport) getActiveCx(ctx context.Context, addr string) (quic.Connection, error) {
	t.connsLock.Lock()
	defer t.connsLock.Unlock()

	if conn, ok := t.outbound[addr]; ok {
		if conn.Context().Err() == nil {
			return conn, nil
		}
		delete(t.outbound, addr)
	}

	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAddr, err)
	}

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAddr, err)
	}

	conn, err := t.tr.Dial(ctx, udpAddr, t.clientTLS(host), t.quicCf)
	if err != nil {
		return nil, fmt.Errorf("transport: failed to dial %s: %w", addr, err)
	}

	t.msink.IncrCounterWithLabels(
		MetricConnEstCount,
		1.0,
		withLabels(t.cfg.MetricLabels, LabelPeerAddr.M(addr)),
	)
	t.outbound[addr] = conn
	return conn, nil
}

func (t *Transport) serverTLS() *tls.Config {
	conf := t.cfg.TlsConfig.Clone()
	conf.NextProtos = []string{ALPN}
	return conf
}

func (t *Transport) clientTLS(host string) *tls.Config {
	conf := t.cfg.TlsConfig.Clone()
	conf.NextProtos = []string{ALPN}
	if conf.ServerName == "" {
		conf.ServerName = host
	}
	return conf
}

func (t *Transport) acceptCx() {
	defer t.wg.Done()
	for {
		conn, err := t.ln.Accept(context.Background())
		if err != nil {
			if !t.gracefulTerm.Load() {
				t.logger.Warn("unexpected QUIC listener closure", LabelError.L(err))
			}
			return
		}

		t.connsLock.Lock()
		t.inbound = append(t.inbound, conn)
		t.connsLock.Unlock()

		t.wg.Add(1)
		go t.handleStreams(conn)
	}
}

func (t *Transport) handleStreams(conn quic.Connection) {
	defer t.wg.Done()

	peer := Peer{Addr: conn.RemoteAddr().String()}
	name, err := t.cfg.HostnameResolver(conn.ConnectionState().TLS.PeerCertificates)
	if err != nil {
		t.logger.Warn("could not resolve peer name", LabelPeerAddr.L(peer.Addr), LabelError.L(err))
	}
	peer.Name = name

	logger := t.logger.With("peer", peer)
	mLabels := withLabels(t.cfg.MetricLabels, LabelPeerName.M(peer.Name))

	for {
		stream, err := conn.AcceptUniStream(conn.Context())
		if err != nil {
			if !t.gracefulTerm.Load() && !errors.Is(err, context.Canceled) {
				logger.Debug("connection closed", LabelError.L(err))
			}
			return
		}

		t.wg.Add(1)
		go t.serveStream(newInboundStream(stream, peer), logger, mLabels)
	}
}

func (t *Transport) serveStream(s *inboundStream, logger *slog.Logger, mLabels []metrics.Label) {
	defer t.wg.Done()
	defer close(s.done)

	logger = logger.With("stream_id", s.StreamID())
	r := bufio.NewReader(s)

	name, codecName, err := readLinkHeader(r)
	if err != nil {
		s.CancelRead(QErrStreamProtocol)
		t.msink.IncrCounterWithLabels(
			MetricStreamEstInErrors,
			1.0,
			withLabels(mLabels, LabelError.M("bad_header")),
		)
		logger.Warn("invalid link header", LabelError.L(err))
		return
	}
	s.export = name

	codec, err := flow.CodecByName(codecName)
	if err != nil {
		s.CancelRead(QErrStreamProtocol)
		t.msink.IncrCounterWithLabels(
			MetricStreamEstInErrors,
			1.0,
			withLabels(mLabels, LabelError.M("unknown_codec")),
		)
		logger.Warn("peer uses an unknown codec", LabelError.L(err))
		return
	}

	ep, ok := t.lookupExport(name)
	if !ok {
		s.CancelRead(QErrStreamUnknownExport)
		t.msink.IncrCounterWithLabels(
			MetricStreamEstInErrors,
			1.0,
			withLabels(mLabels, LabelError.M("unknown_export")),
		)
		logger.Warn("peer dialed an unknown export", LabelError.L(fmt.Errorf("%w: %s", ErrExportUnknown, name)))
		return
	}

	mLabels = withLabels(mLabels, LabelExport.M(name))
	t.msink.IncrCounterWithLabels(MetricStreamEstInCount, 1.0, mLabels)
	logger.Debug("link accepted", LabelExport.L(name), "codec", codec.Name())

	go s.garbageCollector(ep.closeCh)

	n, err := flow.Pump(context.Background(), r, codec, ep.queue)
	t.msink.IncrCounterWithLabels(MetricStreamValuesIn, float32(n), mLabels)
	if err != nil && !errors.Is(err, flow.ErrFlowClosed) && !t.gracefulTerm.Load() {
		logger.Warn("link broken", LabelExport.L(name), LabelError.L(err))
	}
}

func writeLinkHeader(stream quic.SendStream, export, codec string) error {
	var buf bytes.Buffer
	if err := flow.WriteFrame(&buf, []byte(export)); err != nil {
		return err
	}
	if err := flow.WriteFrame(&buf, []byte(codec)); err != nil {
		return err
	}
	_, err := stream.Write(buf.Bytes())
	return err
}

func readLinkHeader(r flow.Source) (export, codec string, err error) {
	rawExport, err := flow.ReadFrame(r)
	if err != nil {
		return "", "", err
	}
	if !validExportName(string(rawExport)) {
		return "", "", fmt.Errorf("%w: bad export name", ErrProtocolViolation)
	}
	rawCodec, err := flow.ReadFrame(r)
	if err != nil {
		return "", "", err
	}
	return string(rawExport), string(rawCodec), nil
}
