// Package proxy wires internal/rewriter and internal/response into a
// running connection: accept a client, rewrite its request line and
// Host: header in place, forward to the resolved target, relay the
// response back with its CORS header rewritten or injected.
package proxy

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"time"

	"corsproxy/internal/response"
	"corsproxy/internal/rewriter"
)

const (
	// headingBufCap bounds how many request-heading bytes this proxy
	// will accumulate before the Host: header has been found and
	// rewritten. Sized like the teacher's own start-line cap
	// (maxStartLine, 8 KiB) plus headroom a growing Host: rewrite may
	// need to expand into.
	headingBufCap = 8*1024 + 96
	bodyReadSize  = 1024
	readTimeout   = 10 * time.Second
)

// Dispatcher holds the shared, read-only state every connection's
// goroutine dials outbound connections through.
type Dispatcher struct {
	resolver  *net.Resolver
	tlsConfig *tls.Config
	sem       chan struct{}

	// dial is a seam over dialOutbound so tests can substitute an
	// in-memory upstream instead of touching the network.
	dial func(ctx context.Context, info *rewriter.RequestInfo) (net.Conn, error)
}

// NewDispatcher returns a Dispatcher. maxConns <= 0 means unbounded
// concurrency.
func NewDispatcher(maxConns int) *Dispatcher {
	d := &Dispatcher{
		resolver:  net.DefaultResolver,
		tlsConfig: &tls.Config{MinVersion: tls.VersionTLS12},
	}
	d.dial = d.dialOutbound
	if maxConns > 0 {
		d.sem = make(chan struct{}, maxConns)
	}
	return d
}

func fmtDur(d time.Duration) string {
	return fmt.Sprintf("%.1fms", float64(d.Microseconds())/1000.0)
}

// Handle drives one accepted connection end to end. It never returns an
// error; every outcome is either a forwarded byte stream or a logged,
// best-effort error reply.
func (d *Dispatcher) Handle(conn net.Conn) {
	if d.sem != nil {
		d.sem <- struct{}{}
		defer func() { <-d.sem }()
	}
	defer conn.Close()

	start := time.Now()
	remoteHost, _, _ := net.SplitHostPort(conn.RemoteAddr().String())
	target := "-"

	parser := rewriter.NewParser()
	heading := make([]byte, 0, headingBufCap)
	tmp := make([]byte, bodyReadSize)

	var out net.Conn
	defer func() {
		if out != nil {
			out.Close()
		}
	}()

	for !parser.Finished() {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		n, rerr := conn.Read(tmp)

		if n > 0 {
			if len(heading)+n > cap(heading) {
				d.fail(conn, remoteHost, target, start, rewriter.ErrTooLong)
				return
			}
			heading = append(heading, tmp[:n]...)

			removed, perr := parser.ModifyStream(heading)
			if perr != nil {
				d.fail(conn, remoteHost, target, start, perr)
				return
			}
			// removed may be negative (a growing Host: rewrite): always
			// reslice to the buffer's true, just-mutated extent before
			// touching it again, whether or not it's forwarded this round.
			heading = heading[:len(heading)-removed]

			if info := parser.Info(); info != nil && target == "-" {
				target = fmt.Sprintf("%s:%d", info.Addr, info.Port)
			}

			if parser.PastHost() {
				if out == nil {
					dialCtx, cancel := context.WithTimeout(context.Background(), dialTimeout)
					var derr error
					out, derr = d.dial(dialCtx, parser.Info())
					cancel()
					if derr != nil {
						d.fail(conn, remoteHost, target, start, derr)
						return
					}
				}

				if _, werr := out.Write(heading); werr != nil {
					d.logOutcome(remoteHost, target, 502, start, werr)
					return
				}
				heading = heading[:0]
			}
		}

		if parser.Finished() {
			break
		}

		if rerr != nil {
			d.logOutcome(remoteHost, target, 400, start, rerr)
			return
		}
	}

	d.relay(conn, out, remoteHost, target, start)
}

// relay copies the outbound response back to the client, rewriting or
// injecting the Access-Control-Allow-Origin header in the first chunk
// that contains the full header block, and forwarding every later chunk
// — including the body — byte for byte.
func (d *Dispatcher) relay(clientConn, outConn net.Conn, remoteHost, target string, start time.Time) {
	buf := make([]byte, bodyReadSize)
	headersDone := false

	for {
		_ = outConn.SetReadDeadline(time.Now().Add(readTimeout))
		n, rerr := outConn.Read(buf)

		if n > 0 {
			chunk := buf[:n]
			if !headersDone {
				if rewritten, found := response.ModifyResponse(chunk); found {
					chunk = rewritten
					headersDone = true
				} else if idx := indexHeaderTerminator(chunk); idx != -1 {
					chunk = response.InjectAllowOrigin(chunk, idx)
					headersDone = true
				}
			}
			if _, werr := clientConn.Write(chunk); werr != nil {
				d.logOutcome(remoteHost, target, 200, start, werr)
				return
			}
		}

		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				d.logOutcome(remoteHost, target, 200, start, nil)
			} else {
				d.logOutcome(remoteHost, target, 200, start, rerr)
			}
			return
		}
	}
}

func indexHeaderTerminator(b []byte) int {
	for i := 0; i+3 < len(b); i++ {
		if b[i] == '\r' && b[i+1] == '\n' && b[i+2] == '\r' && b[i+3] == '\n' {
			return i
		}
	}
	return -1
}

// fail writes a synthetic error reply for errs with a known HTTP status
// and logs the outcome either way. Plain I/O errors (timeouts, resets)
// get no reply attempt: the socket is assumed already broken.
func (d *Dispatcher) fail(conn net.Conn, remoteHost, target string, start time.Time, err error) {
	var rerr *rewriter.Error
	if errors.As(err, &rerr) {
		w := response.NewWriter(conn)
		_ = w.WriteError(response.StatusCode(rerr.Status), rerr.Message)
		d.logOutcome(remoteHost, target, rerr.Status, start, err)
		return
	}
	d.logOutcome(remoteHost, target, 0, start, err)
}

func (d *Dispatcher) logOutcome(remoteHost, target string, status int, start time.Time, err error) {
	if err != nil {
		log.Printf("%s\t%s\t%d\t%s\terr=%q", remoteHost, target, status, fmtDur(time.Since(start)), err.Error())
		return
	}
	log.Printf("%s\t%s\t%d\t%s", remoteHost, target, status, fmtDur(time.Since(start)))
}
