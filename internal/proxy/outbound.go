package proxy

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"corsproxy/internal/rewriter"
)

const dialTimeout = 10 * time.Second

// dialOutbound resolves info.Addr, refuses to proxy to a loopback target,
// and dials the resolved IP on info.Port — plaintext for ProtocolHTTP, a
// TLS handshake for ProtocolHTTPS. For an https target, any failure of
// the TCP dial or of the handshake (refusal, reset, timeout, certificate
// error alike) is reported as ErrDowngradeToHTTP, on the theory that most
// such failures mean the target simply doesn't speak TLS on that port; a
// failed plaintext dial is ErrInternalServerError.
func (d *Dispatcher) dialOutbound(ctx context.Context, info *rewriter.RequestInfo) (net.Conn, error) {
	ip, err := d.resolve(ctx, info.Addr)
	if err != nil {
		return nil, err
	}

	dialer := &net.Dialer{Timeout: dialTimeout}
	addr := net.JoinHostPort(ip.String(), fmt.Sprintf("%d", info.Port))

	raw, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		if info.Protocol == rewriter.ProtocolHTTPS {
			return nil, rewriter.ErrDowngradeToHTTP
		}
		return nil, rewriter.ErrInternalServerError
	}

	if info.Protocol == rewriter.ProtocolHTTP {
		return raw, nil
	}

	tlsConn := tls.Client(raw, d.tlsConfigFor(info.Addr))
	hsCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if err := tlsConn.HandshakeContext(hsCtx); err != nil {
		raw.Close()
		return nil, rewriter.ErrDowngradeToHTTP
	}
	return tlsConn, nil
}

func (d *Dispatcher) tlsConfigFor(serverName string) *tls.Config {
	cfg := d.tlsConfig.Clone()
	cfg.ServerName = serverName
	return cfg
}

// resolve looks up host and returns the first address that isn't a
// loopback target. Proxying to 127.0.0.0/8 or ::1 would let any client
// reach services bound to this host's own loopback interface under the
// proxy's identity, so it's refused outright rather than attempted.
func (d *Dispatcher) resolve(ctx context.Context, host string) (net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsLoopback() {
			return nil, rewriter.ErrLoopbackIP
		}
		return ip, nil
	}

	addrs, err := d.resolver.LookupIPAddr(ctx, host)
	if err != nil || len(addrs) == 0 {
		return nil, rewriter.ErrNotFound
	}

	sawLoopback := false
	for _, a := range addrs {
		if a.IP.IsLoopback() {
			sawLoopback = true
			continue
		}
		return a.IP, nil
	}
	if sawLoopback {
		return nil, rewriter.ErrLoopbackIP
	}
	return nil, rewriter.ErrNotFound
}
