package intcode

import (
	"crypto/x509"
	"errors"
	"log/slog"
)

// Peer is the remote end of a QUIC connection feeding one of our exports.
type Peer struct {
	Name string
	Addr string
}

// HostnameResolver can resolve a peer name from a list of
// `x509.Certificate`, those certificates are the one received from a
// remote peer.
//
// *Implementations* MUST NOT be blocking, since they are invoked on
// the stream acceptance path.
type HostnameResolver func(certs []*x509.Certificate) (string, error)

var errNoClientCert = errors.New("transport: peer presented no certificate")

// CommonNameResolver is the default resolver used to resolve the peer name
// from the x509 Subject Common Name of the peer certificate.
func CommonNameResolver(certs []*x509.Certificate) (string, error) {
	if len(certs) == 0 {
		return "", errNoClientCert
	}

	return certs[0].Subject.CommonName, nil
}

func (p Peer) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("name", p.Name),
		slog.String("addr", p.Addr),
	)
}
