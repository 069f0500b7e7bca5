package rewriter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newReadBuf builds a buffer shaped like the one the dispatcher passes
// in: a fixed 1024-byte backing array holding s at its front, sliced to
// len(s) but keeping the spare capacity a growing Host: rewrite needs.
func newReadBuf(s string) []byte {
	buf := make([]byte, 1024)
	n := copy(buf, s)
	return buf[:n]
}

func TestModifyStream_S1_BasicHTTPS(t *testing.T) {
	buf := newReadBuf("GET /https://example.com/ HTTP/1.1\r\nHost: x\r\n\r\n")
	p := NewParser()
	removed, err := p.ModifyStream(buf)
	require.NoError(t, err)
	// removed is the net of the request-line's 20-byte shrink and the
	// Host: value's 10-byte growth ("x" -> "example.com"): 20-10=10.
	assert.Equal(t, 10, removed)
	assert.Equal(t, "GET / HTTP/1.1\r\nHost: example.com\r\n\r\n", string(buf[:len(buf)-removed]))
	assert.Equal(t, ProtocolHTTPS, p.Info().Protocol)
	assert.Equal(t, "example.com", p.Info().Addr)
	assert.EqualValues(t, 443, p.Info().Port)
}

func TestModifyStream_S2_HTTPWithPortAndQuery(t *testing.T) {
	buf := newReadBuf("GET /http://example.com:8080/a?b=1 HTTP/1.1\r\nHost: x\r\n\r\n")
	p := NewParser()
	removed, err := p.ModifyStream(buf)
	require.NoError(t, err)
	// net of the request-line shrink and the Host: value's growth
	// ("x" -> "example.com:8080").
	assert.Equal(t, 9, removed)
	assert.Equal(t, "GET /a?b=1 HTTP/1.1\r\nHost: example.com:8080\r\n\r\n", string(buf[:len(buf)-removed]))
	assert.Equal(t, ProtocolHTTP, p.Info().Protocol)
	assert.EqualValues(t, 8080, p.Info().Port)
}

func TestModifyStream_S3_QuestionMarkBypass(t *testing.T) {
	buf := newReadBuf("GET /?https://e.com/ HTTP/1.1\r\nHost: x\r\n\r\n")
	p := NewParser()
	removed, err := p.ModifyStream(buf)
	require.NoError(t, err)
	// net of the request-line shrink and the Host: value's growth
	// ("x" -> "e.com").
	assert.Equal(t, 11, removed)
	assert.Equal(t, "GET / HTTP/1.1\r\nHost: e.com\r\n\r\n", string(buf[:len(buf)-removed]))
}

func TestModifyStream_S4_InvalidProtocol(t *testing.T) {
	buf := newReadBuf("GET /ftp://e.com/ HTTP/1.1\r\nHost: x\r\n\r\n")
	p := NewParser()
	_, err := p.ModifyStream(buf)
	require.ErrorIs(t, err, ErrInvalidProtocol)
}

func TestModifyStream_S5_ResponseNotThisPackage(t *testing.T) {
	// S5 exercises the response rewriter; see internal/response/cors_test.go.
	t.Skip("covered by internal/response")
}

func TestModifyStream_S6_HostTooLong(t *testing.T) {
	longHost := ""
	for i := 0; i < 65; i++ {
		longHost += "a"
	}
	buf := newReadBuf("GET /https://" + longHost + "/ HTTP/1.1\r\nHost: x\r\n\r\n")
	p := NewParser()
	_, err := p.ModifyStream(buf)
	require.ErrorIs(t, err, ErrTooLong)
}

func TestModifyStream_GrowingHostHeader(t *testing.T) {
	// Host rewritten to something much longer than the placeholder "x".
	buf := newReadBuf("GET /https://averyveryveryverylonghostname.example.com:8443/p HTTP/1.1\r\nHost: x\r\n\r\n")
	p := NewParser()
	removed, err := p.ModifyStream(buf)
	require.NoError(t, err)
	got := string(buf[:len(buf)-removed])
	assert.Equal(t, "GET /p HTTP/1.1\r\nHost: averyveryveryverylonghostname.example.com:8443\r\n\r\n", got)
}

func TestModifyStream_UnsupportedHTTPVersion(t *testing.T) {
	buf := newReadBuf("GET /https://example.com/ HTTP/2.0\r\nHost: x\r\n\r\n")
	p := NewParser()
	_, err := p.ModifyStream(buf)
	require.ErrorIs(t, err, ErrUnsupportedHTTPVersion)
}

func TestModifyStream_MissingPath(t *testing.T) {
	buf := newReadBuf("GET /https://example.com HTTP/1.1\r\nHost: x\r\n\r\n")
	p := NewParser()
	_, err := p.ModifyStream(buf)
	require.ErrorIs(t, err, ErrMissingPath)
}

func TestModifyStream_InvalidPort(t *testing.T) {
	buf := newReadBuf("GET /https://example.com:0/ HTTP/1.1\r\nHost: x\r\n\r\n")
	p := NewParser()
	_, err := p.ModifyStream(buf)
	require.ErrorIs(t, err, ErrInvalidPort)
}

func TestModifyStream_NeedsMoreDataForRequestLine(t *testing.T) {
	buf := newReadBuf("GET /https://example.com/")
	p := NewParser()
	removed, err := p.ModifyStream(buf)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
	assert.Nil(t, p.Info())
	assert.False(t, p.Finished())
}

func TestModifyStream_SplitHostLineWaitsForTerminator(t *testing.T) {
	// A Host: line with no CRLF yet (as if a read landed mid-line) must
	// not be treated as replaced: the dispatcher is expected to hold
	// these bytes back and retry on the same Parser once more data
	// arrives (see internal/proxy for the accumulation that makes that
	// retry see the whole line at once).
	p := NewParser()
	buf := newReadBuf("GET /https://example.com/ HTTP/1.1\r\nHost: exa")
	removed, err := p.ModifyStream(buf)
	require.NoError(t, err)
	assert.False(t, p.pastHost)
	assert.Equal(t, "GET / HTTP/1.1\r\nHost: exa", string(buf[:len(buf)-removed]))

	// Feeding the same Parser the full line (request-line bytes already
	// rewritten, so now just a normal Host: header) completes it.
	full := newReadBuf("Host: example.com\r\n\r\n")
	removed2, err := p.ModifyStream(full)
	require.NoError(t, err)
	assert.True(t, p.pastHost)
	assert.Equal(t, "Host: example.com\r\n\r\n", string(full[:len(full)-removed2]))
	assert.True(t, p.Finished())
}

func TestModifyStream_ContentLengthAccounting(t *testing.T) {
	p := NewParser()
	buf := newReadBuf("GET /https://example.com/ HTTP/1.1\r\nHost: x\r\nContent-Length: 5\r\n\r\nhel")
	_, err := p.ModifyStream(buf)
	require.NoError(t, err)
	assert.False(t, p.Finished())

	more := newReadBuf("lo")
	_, err = p.ModifyStream(more)
	require.NoError(t, err)
	assert.True(t, p.Finished())
}

func TestModifyStream_NoContentLengthFinishesAtHeadingEnd(t *testing.T) {
	p := NewParser()
	buf := newReadBuf("GET /https://example.com/ HTTP/1.1\r\nHost: x\r\n\r\n")
	_, err := p.ModifyStream(buf)
	require.NoError(t, err)
	assert.True(t, p.Finished())
}

func TestModifyStream_FinishedIsNoOp(t *testing.T) {
	p := NewParser()
	buf := newReadBuf("GET /https://example.com/ HTTP/1.1\r\nHost: x\r\n\r\n")
	_, err := p.ModifyStream(buf)
	require.NoError(t, err)
	require.True(t, p.Finished())

	more := newReadBuf("garbage past the end")
	removed, err := p.ModifyStream(more)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestModifyStream_Monotonicity(t *testing.T) {
	p := NewParser()
	buf := newReadBuf("GET /https://example.com/ HTTP/1.1\r\nHost: x\r\n\r\n")
	_, err := p.ModifyStream(buf)
	require.NoError(t, err)
	assert.True(t, p.pastHeading)
	assert.True(t, p.pastHost)
	assert.True(t, p.finished)

	// Calling again can't un-flip any of these.
	_, _ = p.ModifyStream(newReadBuf("more"))
	assert.True(t, p.pastHeading)
	assert.True(t, p.pastHost)
	assert.True(t, p.finished)
}

func TestModifyStream_DefaultPortsByScheme(t *testing.T) {
	p := NewParser()
	buf := newReadBuf("GET /http://example.com/ HTTP/1.1\r\nHost: x\r\n\r\n")
	_, err := p.ModifyStream(buf)
	require.NoError(t, err)
	assert.EqualValues(t, 80, p.Info().Port)
}
