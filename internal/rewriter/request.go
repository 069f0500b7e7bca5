// Package rewriter implements the proxy's core: a single-pass, in-place
// byte-level editor that turns an absolute-URL request line of the form
//
//	GET /https://api.example.com/v1/x HTTP/1.1
//
// into a valid origin-form request for api.example.com, rewriting the
// Host: header to match and tracking the declared Content-Length so the
// caller knows when the request body has fully arrived. Every edit
// happens inside the caller's own buffer; the parser never holds a byte
// of it between calls.
package rewriter

import (
	"bytes"
	"strconv"
)

// Protocol is the scheme a rewritten request targets.
type Protocol int

const (
	// ProtocolHTTPS is the zero value, matching the data model's stated
	// default. The request line must still name its scheme explicitly:
	// a missing one is ErrInvalidProtocol, not https.
	ProtocolHTTPS Protocol = iota
	ProtocolHTTP
)

const maxAddrLen = 64

// RequestInfo is the target extracted from the request line.
type RequestInfo struct {
	Protocol Protocol
	Addr     string
	Port     uint16
}

func (info *RequestInfo) isDefaultPort() bool {
	switch info.Protocol {
	case ProtocolHTTP:
		return info.Port == 80
	default:
		return info.Port == 443
	}
}

// contentLength tracks how many body bytes have arrived against a
// declared Content-Length.
type contentLength struct {
	declared uint64
	seen     uint64
}

func (c *contentLength) full() bool { return c.seen >= c.declared }

type phase int

const (
	phaseRequestLine phase = iota + 1
	phaseHostHeader
	phaseContentLength
	phaseFinished
)

var phaseName = map[phase]string{
	phaseRequestLine:   "request_line",
	phaseHostHeader:    "host_header",
	phaseContentLength: "content_length",
	phaseFinished:      "finished",
}

// Parser is the per-connection rewriter state. Create one with
// NewParser: the zero value has no phase set, and ModifyStream on it
// does nothing. A Parser must not be shared across connections.
type Parser struct {
	phase        phase
	info         *RequestInfo
	contentLen   *contentLength
	pastHeading  bool
	pastHost     bool
	finished     bool
	headingEnded bool
}

// NewParser returns a Parser ready to process the first read of a new
// connection.
func NewParser() *Parser {
	return &Parser{phase: phaseRequestLine}
}

// Info returns the parsed target, or nil if the request line hasn't
// been fully parsed yet.
func (p *Parser) Info() *RequestInfo { return p.info }

// Finished reports whether the request heading and (if declared) body
// have both been fully observed.
func (p *Parser) Finished() bool { return p.finished }

// PastHost reports whether the Host: header has been located and
// rewritten. Nothing is forwardable to the outbound connection before
// this is true: the request-target's scheme/host/port have already
// been edited out of the buffer, but the Host header, and therefore the
// whole heading, may still be incomplete.
func (p *Parser) PastHost() bool { return p.pastHost }

// ModifyStream rewrites buf in place and returns how many bytes must be
// dropped from its end: the forwardable prefix is buf[:len(buf)-removed].
// removed is negative when a growing Host: rewrite outweighs the bytes
// cut from the request line. buf must be sliced to exactly the valid,
// not yet forwarded bytes (in internal/proxy, the accumulated heading
// buffer) but must still have spare capacity behind it, since a growing
// Host: rewrite needs somewhere to grow into.
//
// Once finished, ModifyStream is a no-op returning (0, nil), and it is
// safe to keep calling it on trailing reads of the same connection (the
// caller is expected to stop invoking it and start relaying instead, but
// nothing breaks if it's called once more).
func (p *Parser) ModifyStream(buf []byte) (int, error) {
	if p.finished {
		return 0, nil
	}

	total := 0

	if p.phase == phaseRequestLine {
		newBuf, n, info, complete, err := parseRequestLine(buf)
		if err != nil {
			p.finished = true
			return n, err
		}
		if !complete {
			return 0, nil
		}
		buf = newBuf
		total += n
		p.info = info
		p.pastHeading = true
		p.phase = phaseHostHeader
	}

	if p.phase == phaseHostHeader {
		newBuf, delta, replaced := replaceHostHeader(buf, p.info)
		buf = newBuf
		total += delta
		if !replaced {
			return total, nil
		}
		p.pastHost = true
		p.phase = phaseContentLength
	}

	if p.phase == phaseContentLength {
		done := p.observeContentLength(buf)
		if done {
			p.finished = true
			p.phase = phaseFinished
		}
	}

	return total, nil
}

// parseRequestLine parses and rewrites the request line in place. If no
// '\n' is present yet, it returns (buf, 0, nil, false, nil) unchanged:
// the caller should wait for more data before trying again.
func parseRequestLine(buf []byte) (newBuf []byte, removed int, info *RequestInfo, complete bool, err error) {
	if bytes.IndexByte(buf, '\n') == -1 {
		return buf, 0, nil, false, nil
	}

	c := &cursor{buf: buf}

	// 1. Skip the method up to and including the first space; it is
	// discarded, the proxy is method-agnostic.
	for {
		b, ok := c.advance()
		if !ok {
			return c.buf, c.removed, nil, false, ErrInvalidRequest
		}
		if b == ' ' {
			break
		}
	}

	// 2. The request-target must start with '/'; this leading slash is
	// the absolute-URL marker and is removed.
	b, ok := c.removeCurrent()
	if !ok || b != '/' {
		return c.buf, c.removed, nil, false, ErrInvalidRequest
	}

	// 3. An immediate '?' is a deliberate alternate access form and is
	// stripped too.
	if b2, ok := c.peek(); ok && b2 == '?' {
		c.removeCurrent()
	}

	// 4. Literal "http".
	for _, want := range []byte("http") {
		b, ok := c.removeCurrent()
		if !ok || b != want {
			return c.buf, c.removed, nil, false, ErrInvalidProtocol
		}
	}

	// 5. Optional 's'.
	proto := ProtocolHTTP
	if b, ok := c.peek(); ok && b == 's' {
		c.removeCurrent()
		proto = ProtocolHTTPS
	}

	// 6. Literal "://".
	for _, want := range []byte("://") {
		b, ok := c.removeCurrent()
		if !ok || b != want {
			return c.buf, c.removed, nil, false, ErrInvalidProtocol
		}
	}

	// 7. Host, optionally ":port", up to the '/' that starts the path.
	// That slash is kept, not removed.
	var addr []byte
	var portDigits []byte
	for {
		b, ok := c.peek()
		if !ok {
			return c.buf, c.removed, nil, false, ErrInvalidRequest
		}
		// The path's leading '/' is kept, not removed: the absolute-URL
		// marker was already consumed in step 2, so this is the only
		// slash left to preserve.
		if b == '/' {
			break
		}
		c.removeCurrent()
		if b == ' ' {
			return c.buf, c.removed, nil, false, ErrMissingPath
		}
		if b == ':' {
			for {
				pb, ok := c.peek()
				if !ok {
					return c.buf, c.removed, nil, false, ErrInvalidRequest
				}
				if pb == '/' {
					break
				}
				c.removeCurrent()
				if pb == ' ' {
					return c.buf, c.removed, nil, false, ErrMissingPath
				}
				if len(portDigits) >= 5 {
					return c.buf, c.removed, nil, false, ErrInvalidPort
				}
				portDigits = append(portDigits, pb)
			}
			break
		}
		if len(addr) >= maxAddrLen {
			return c.buf, c.removed, nil, false, ErrTooLong
		}
		addr = append(addr, b)
	}

	var port uint16
	if len(portDigits) == 0 {
		if proto == ProtocolHTTPS {
			port = 443
		} else {
			port = 80
		}
	} else {
		v, perr := strconv.ParseUint(string(portDigits), 10, 16)
		if perr != nil || v == 0 {
			return c.buf, c.removed, nil, false, ErrInvalidPort
		}
		port = uint16(v)
	}

	// 9/10. The cursor now sits right before the path's leading '/',
	// which was kept in the buffer. Walk the rest of the line without
	// removing anything, validating the HTTP version along the way.
	if err := validateLineRemainder(c); err != nil {
		return c.buf, c.removed, nil, false, err
	}

	return c.buf, c.removed, &RequestInfo{Protocol: proto, Addr: string(addr), Port: port}, true, nil
}

// validateLineRemainder advances the cursor past the path, the HTTP
// version token and the line's terminating '\n', requiring the version
// to be exactly HTTP/1.0 or HTTP/1.1. Nothing in this span is removed:
// it's kept verbatim as the rewritten request line's tail.
func validateLineRemainder(c *cursor) error {
	for {
		b, ok := c.advance()
		if !ok {
			return ErrInvalidRequest
		}
		if b == ' ' {
			break
		}
		if b == '\n' {
			return ErrUnsupportedHTTPVersion
		}
	}

	start := c.pos
	for {
		b, ok := c.peek()
		if !ok {
			return ErrInvalidRequest
		}
		if b == '\r' || b == '\n' {
			break
		}
		c.advance()
	}
	version := c.buf[start:c.pos]
	if !bytes.Equal(version, []byte("HTTP/1.1")) && !bytes.Equal(version, []byte("HTTP/1.0")) {
		return ErrUnsupportedHTTPVersion
	}

	for {
		b, ok := c.advance()
		if !ok {
			return ErrInvalidRequest
		}
		if b == '\n' {
			break
		}
	}
	return nil
}

// replaceHostHeader finds "Host: " in buf and rewrites its value to
// match info, growing or shrinking buf as needed. If the marker isn't
// present yet, buf is returned unchanged with replaced == false — the
// caller should try again on the next read.
func replaceHostHeader(buf []byte, info *RequestInfo) (newBuf []byte, delta int, replaced bool) {
	const marker = "Host: "
	idx := bytes.Index(buf, []byte(marker))
	if idx == -1 {
		return buf, 0, false
	}
	valueStart := idx + len(marker)

	crIdx := bytes.IndexByte(buf[valueStart:], '\r')
	if crIdx == -1 {
		// The header's terminating CRLF hasn't arrived yet.
		return buf, 0, false
	}
	oldLen := crIdx

	portBytes, portDigits := numToBytes(info.Port)
	newLen := len(info.Addr)
	if !info.isDefaultPort() {
		newLen += 1 + portDigits
	}

	switch {
	case newLen > oldLen:
		grow := newLen - oldLen
		buf = shiftRight(buf, valueStart+oldLen, grow)
		delta = -grow
	case newLen < oldLen:
		shrink := oldLen - newLen
		buf = removeN(buf, valueStart+newLen, shrink)
		delta = shrink
	}

	pos := valueStart
	pos += copy(buf[pos:pos+len(info.Addr)], info.Addr)
	if !info.isDefaultPort() {
		buf[pos] = ':'
		pos++
		pos += copy(buf[pos:pos+portDigits], portBytes[:portDigits])
	}

	return buf, delta, true
}

// observeContentLength locates the heading terminator and, once found,
// counts bytes past it against any declared Content-Length. It returns
// true once the request is fully received.
func (p *Parser) observeContentLength(buf []byte) bool {
	if !p.headingEnded {
		if p.contentLen == nil {
			const marker = "\nContent-Length: "
			if idx := bytes.Index(buf, []byte(marker)); idx != -1 {
				start := idx + len(marker)
				end := bytes.IndexByte(buf[start:], '\r')
				if end == -1 {
					end = len(buf) - start
				}
				if v, err := strconv.ParseUint(string(buf[start:start+end]), 10, 64); err == nil {
					p.contentLen = &contentLength{declared: v}
				}
			}
		}

		termIdx := bytes.Index(buf, []byte("\r\n\r\n"))
		if termIdx == -1 {
			return false
		}
		p.headingEnded = true
		headingEnd := termIdx + 4
		bodyBytes := uint64(len(buf) - headingEnd)

		if p.contentLen == nil {
			return true
		}
		p.contentLen.seen += bodyBytes
		return p.contentLen.full()
	}

	if p.contentLen == nil {
		return true
	}
	p.contentLen.seen += uint64(len(buf))
	return p.contentLen.full()
}
