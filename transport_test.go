package intcode

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"os"
	"slices"
	"testing"
	"time"

	"github.com/hashicorp/go-metrics"
	"github.com/raskyld/intcode/pkg/flow"
	"github.com/stretchr/testify/require"
)

func generateKeyPair(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate private key: %s", err)
		return nil
	}
	return key
}

func generateCa(t *testing.T, pkey *ecdsa.PrivateKey) []byte {
	t.Helper()
	notBefore := time.Now()
	notAfter := time.Now().Add(1 * time.Hour)

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		t.Fatalf("failed to generate serialNumber: %s", err)
	}
	tmpl := x509.Certificate{
		Subject: pkix.Name{
			CommonName: "self-signed",
		},
		SerialNumber:          serialNumber,
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IPAddresses: []net.IP{
			{127, 0, 0, 1},
		},
		IsCA: true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &pkey.PublicKey, pkey)
	if err != nil {
		t.Fatalf("failed to generate CA: %s", err)
		return nil
	}
	return certDER
}

func generateLeaf(t *testing.T, ca *x509.Certificate, caKP, leafKP *ecdsa.PrivateKey, cn string) []byte {
	t.Helper()
	notBefore := time.Now()
	notAfter := time.Now().Add(1 * time.Hour)

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		t.Fatalf("failed to generate serialNumber: %s", err)
	}
	tmpl := x509.Certificate{
		Subject: pkix.Name{
			CommonName: cn,
		},
		SerialNumber: serialNumber,
		NotBefore:    notBefore,
		NotAfter:     notAfter,
		IPAddresses: []net.IP{
			{127, 0, 0, 1},
		},
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
		IsCA:                  false,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &tmpl, ca, &leafKP.PublicKey, caKP)
	if err != nil {
		t.Fatalf("failed to generate leaf %s: %s", cn, err)
		return nil
	}
	return certDER
}

type testNode struct {
	tr   *Transport
	sink *metrics.InmemSink
	addr string
}

// newTestPKI returns one mTLS configuration per node name, all signed by
// the same throw-away CA.
func newTestPKI(t *testing.T, names ...string) map[string]*tls.Config {
	t.Helper()
	caKey := generateKeyPair(t)
	caDER := generateCa(t, caKey)
	ca, err := x509.ParseCertificate(caDER)
	if err != nil {
		t.Fatalf("failed to parse CA: %s", err)
	}

	caPool := x509.NewCertPool()
	caPool.AddCert(ca)

	configs := make(map[string]*tls.Config, len(names))
	for _, name := range names {
		key := generateKeyPair(t)
		der := generateLeaf(t, ca, caKey, key, name)
		leaf, err := x509.ParseCertificate(der)
		if err != nil {
			t.Fatalf("failed to parse %s: %s", name, err)
		}

		configs[name] = &tls.Config{
			Certificates: []tls.Certificate{
				{
					Certificate: [][]byte{der},
					Leaf:        leaf,
					PrivateKey:  key,
				},
			},
			ClientAuth: tls.RequireAndVerifyClientCert,
			ClientCAs:  caPool,
			RootCAs:    caPool,
		}
	}
	return configs
}

func newTestNode(t *testing.T, name string, tlsCf *tls.Config, port int, codec flow.Codec) *testNode {
	t.Helper()
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     slog.LevelDebug,
		AddSource: true,
	}).WithAttrs([]slog.Attr{
		{Key: "emitter", Value: slog.StringValue(name)},
	})

	sink := metrics.NewInmemSink(time.Second, 5*time.Minute)
	tr, err := NewTransport(&TransportConfig{
		TlsConfig:  tlsCf,
		BindAddr:   "127.0.0.1",
		BindPort:   port,
		Codec:      codec,
		MetricSink: sink,
		LogHandler: handler,
	})
	if err != nil {
		t.Fatalf("failed to start %s: %s", name, err)
	}
	t.Cleanup(func() {
		tr.Shutdown()
	})

	return &testNode{
		tr:   tr,
		sink: sink,
		addr: net.JoinHostPort("127.0.0.1", fmt.Sprint(port)),
	}
}

func recvN(t *testing.T, ctx context.Context, r flow.Reader, n int) []int64 {
	t.Helper()
	out := make([]int64, 0, n)
	for range n {
		v, err := r.Recv(ctx)
		require.NoError(t, err)
		out = append(out, v)
	}
	return out
}

func TestNewTransportRequiresTLS(t *testing.T) {
	_, err := NewTransport(&TransportConfig{BindAddr: "127.0.0.1", BindPort: 6040})
	require.ErrorIs(t, err, ErrNoTLSConfig)

	pki := newTestPKI(t, "node1")
	_, err = NewTransport(&TransportConfig{TlsConfig: pki["node1"], BindAddr: "not-an-ip", BindPort: 6040})
	require.ErrorIs(t, err, ErrInvalidAddr)
}

func TestTransportLink(t *testing.T) {
	pki := newTestPKI(t, "node1", "node2")
	n1 := newTestNode(t, "node1", pki["node1"], 6041, nil)
	n2 := newTestNode(t, "node2", pki["node2"], 6042, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ep, err := n2.tr.Export("amp-0")
	require.NoError(t, err)
	require.Equal(t, "amp-0", ep.Name())

	t.Run("values arrive in order", func(t *testing.T) {
		w, err := n1.tr.Dial(ctx, n2.addr, "amp-0")
		require.NoError(t, err)

		values := []int64{1, -2, 3, 1 << 40, -(1 << 50)}
		for _, v := range values {
			require.NoError(t, w.Send(ctx, v))
		}
		require.NoError(t, w.Close())
		require.ErrorIs(t, w.Send(ctx, 4), flow.ErrFlowClosed)

		require.Equal(t, values, recvN(t, ctx, ep, len(values)))
	})

	t.Run("several links feed the same export", func(t *testing.T) {
		w1, err := n1.tr.Dial(ctx, n2.addr, "amp-0")
		require.NoError(t, err)
		w2, err := n1.tr.Dial(ctx, n2.addr, "amp-0")
		require.NoError(t, err)

		require.NoError(t, w1.Send(ctx, 10))
		require.NoError(t, w2.Send(ctx, 20))
		require.NoError(t, w1.Close())
		require.NoError(t, w2.Close())

		got := recvN(t, ctx, ep, 2)
		slices.Sort(got)
		require.Equal(t, []int64{10, 20}, got)
	})

	t.Run("peer is identified by its certificate", func(t *testing.T) {
		require.Eventually(t, func() bool {
			for _, intv := range n2.sink.Data() {
				for _, sv := range intv.Counters {
					if sv.Name == "intcode.stream.establishment.in.count" &&
						slices.Contains(sv.Labels, LabelPeerName.M("node1")) {
						return true
					}
				}
			}
			return false
		}, 2*time.Second, 50*time.Millisecond)

		count, _ := counterSum(t, n1.sink, MetricConnEstCount)
		require.Equal(t, 1, count, "connections to a peer are reused")
	})
}

func TestTransportRemoteRing(t *testing.T) {
	pki := newTestPKI(t, "node1", "node2")
	n1 := newTestNode(t, "node1", pki["node1"], 6043, flow.ProtoCodec{})
	n2 := newTestNode(t, "node2", pki["node2"], 6044, flow.JSONCodec{})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// node1 hosts amp-0 and amp-1, node2 hosts amp-2.
	prog := MustParse(amplifierSingle[0].program)
	phases := amplifierSingle[0].phases[:3]

	in0, err := n1.tr.Export("amp-0")
	require.NoError(t, err)
	in2, err := n2.tr.Export("amp-2")
	require.NoError(t, err)

	to2, err := n1.tr.Dial(ctx, n2.addr, "amp-2")
	require.NoError(t, err)
	to0, err := n2.tr.Dial(ctx, n1.addr, "amp-0")
	require.NoError(t, err)

	q1 := flow.NewQueue(phases[1])
	require.NoError(t, to0.Send(ctx, phases[0]))
	require.NoError(t, to0.Send(ctx, 0))
	require.NoError(t, to2.Send(ctx, phases[2]))

	// amp-2 writes its result on a local queue so the test can read it.
	out := flow.NewQueue()

	errs := make(chan error, 3)
	go func() { errs <- Run(ctx, prog, in0, q1, WithName("amp-0")) }()
	go func() { errs <- Run(ctx, prog, q1, to2, WithName("amp-1")) }()
	go func() { errs <- Run(ctx, prog, in2, out, WithName("amp-2")) }()

	for range 3 {
		require.NoError(t, <-errs)
	}
	require.NoError(t, to2.Close())
	require.NoError(t, to0.Close())

	signal, err := out.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(432), signal)
}

func TestTransportExports(t *testing.T) {
	pki := newTestPKI(t, "node1", "node2")
	n1 := newTestNode(t, "node1", pki["node1"], 6045, nil)
	n2 := newTestNode(t, "node2", pki["node2"], 6046, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	t.Run("names are validated", func(t *testing.T) {
		for _, name := range []string{"", "amp 0", "amp/0", string(slices.Repeat([]byte("a"), MaxExportLength))} {
			_, err := n2.tr.Export(name)
			require.ErrorIs(t, err, ErrExportName, "name %q", name)
		}
	})

	t.Run("names are unique until closed", func(t *testing.T) {
		ep, err := n2.tr.Export("unique")
		require.NoError(t, err)
		_, err = n2.tr.Export("unique")
		require.ErrorIs(t, err, ErrExportExists)

		require.NoError(t, ep.Close())
		_, err = ep.Recv(ctx)
		require.ErrorIs(t, err, flow.ErrFlowClosed)

		again, err := n2.tr.Export("unique")
		require.NoError(t, err)
		require.NoError(t, again.Close())
	})

	t.Run("unknown exports are refused", func(t *testing.T) {
		w, err := n1.tr.Dial(ctx, n2.addr, "nobody")
		require.NoError(t, err)
		defer w.Close()

		require.Eventually(t, func() bool {
			count, _ := counterSum(t, n2.sink, MetricStreamEstInErrors)
			return count == 1
		}, 2*time.Second, 50*time.Millisecond)
	})

	t.Run("dialing after shutdown fails", func(t *testing.T) {
		require.NoError(t, n1.tr.Shutdown())
		_, err := n1.tr.Dial(ctx, n2.addr, "unique")
		require.ErrorIs(t, err, ErrShutdown)
		_, err = n1.tr.Export("late")
		require.ErrorIs(t, err, ErrShutdown)
	})
}
