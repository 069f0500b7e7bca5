// Package headers is a minimal case-insensitive header multimap, used
// by internal/response to assemble the fixed header set on this
// proxy's synthetic error replies. The proxy's core never builds a
// structured header map out of the inbound request — see
// internal/rewriter, which locates Host:/Content-Length: by direct
// substring search on the raw buffer instead.
package headers

import "strings"

type Headers map[string]string

func NewHeaders() Headers { return Headers{} }

// Get should be case-insensitive.
func (h Headers) Get(name string) string {
	return h[strings.ToLower(name)]
}

func (h Headers) Delete(name string) {
	delete(h, strings.ToLower(name))
}

func (h Headers) Set(name, value string) {
	name = strings.ToLower(name)

	if old, ok := h[name]; ok {
		h[name] = old + "," + value
	} else {
		h[name] = value
	}
}

func (h Headers) Override(name, value string) {
	name = strings.ToLower(name)
	h[name] = value
}
