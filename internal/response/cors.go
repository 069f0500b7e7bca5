package response

import "bytes"

// ModifyResponse locates Access-Control-Allow-Origin in resp and
// overwrites its value with "*", collapsing whatever the original value
// was. It returns the (possibly shrunk) buffer and true if a header was
// found and rewritten. Callers own resp; ModifyResponse never allocates,
// since a CORS header's value is always shrunk to a single byte or left
// alone, never grown.
func ModifyResponse(resp []byte) ([]byte, bool) {
	const marker = "Access-Control-Allow-Origin: "
	idx := bytes.Index(resp, []byte(marker))
	if idx == -1 {
		return resp, false
	}
	start := idx + len(marker)

	end := bytes.IndexByte(resp[start:], '\n')
	if end == -1 {
		return resp, false
	}

	resp[start] = '*'
	// end is the offset of '\n' relative to start, so the '\r' right
	// before it sits at start+end-1. That \r\n must both survive, so
	// only the end-2 bytes strictly between the new '*' and the '\r'
	// are collapsed away.
	collapsed := removeN(resp, start+1, end-2)
	return collapsed, true
}

// InjectAllowOrigin splices "Access-Control-Allow-Origin: *" into resp
// just before the header terminator at termIdx (the offset of the
// leading '\r' in "\r\n\r\n"). Used when ModifyResponse found no
// existing header to rewrite: this proxy's whole point is to guarantee
// a permissive CORS policy, so absence is not a no-op.
func InjectAllowOrigin(resp []byte, termIdx int) []byte {
	const header = "\r\nAccess-Control-Allow-Origin: *"
	out := make([]byte, 0, len(resp)+len(header))
	out = append(out, resp[:termIdx]...)
	out = append(out, header...)
	out = append(out, resp[termIdx:]...)
	return out
}

// removeN deletes the n bytes at s[index:index+n], shifting the rest of
// the slice left and returning the shrunk result. Mirrors
// internal/rewriter's buffer editor; kept as an unexported copy here
// rather than an internal/rewriter import so that internal/response has
// no dependency on the request-side package.
func removeN(s []byte, index, n int) []byte {
	if n <= 0 {
		return s
	}
	copy(s[index:], s[index+n:])
	return s[:len(s)-n]
}
