package rewriter

// Kind identifies which of the fixed error conditions a connection hit.
// Every kind carries a static message and an HTTP status, mirroring the
// way the teacher's server package pairs a StatusCode with a message on
// its HandlerError, just collected here since the rewriter (not a
// handler) is what raises most of these.
type Kind int

const (
	KindInvalidProtocol Kind = iota
	KindInvalidRequest
	KindMissingPath
	KindInvalidPort
	KindTooLong
	KindUnsupportedHTTPVersion
	KindNotFound
	KindLoopbackIP
	KindDowngradeToHTTP
	KindInternalServerError
)

// Error is a terminal, fixed-message parse or dial failure. Partial
// mutation of the buffer that produced it must be assumed and the
// buffer discarded by the caller.
type Error struct {
	Kind    Kind
	Message string
	Status  int
}

func (e *Error) Error() string { return e.Message }

var (
	ErrInvalidProtocol = &Error{
		Kind:    KindInvalidProtocol,
		Message: "Invalid protocol (the path must start with http:// or https://)",
		Status:  400,
	}
	ErrInvalidRequest = &Error{
		Kind:    KindInvalidRequest,
		Message: "Invalid request",
		Status:  400,
	}
	ErrMissingPath = &Error{
		Kind:    KindMissingPath,
		Message: "Missing the path after the domain (if you want the root path, use /)",
		Status:  400,
	}
	ErrInvalidPort = &Error{
		Kind:    KindInvalidPort,
		Message: "Invalid port",
		Status:  400,
	}
	ErrTooLong = &Error{
		Kind:    KindTooLong,
		Message: "The domain or the request heading was too long (the domain has a max of 64)",
		Status:  414,
	}
	ErrUnsupportedHTTPVersion = &Error{
		Kind:    KindUnsupportedHTTPVersion,
		Message: "Unsupported HTTP version",
		Status:  505,
	}
	ErrNotFound = &Error{
		Kind:    KindNotFound,
		Message: "Could not resolve the target host",
		Status:  404,
	}
	ErrLoopbackIP = &Error{
		Kind:    KindLoopbackIP,
		Message: "Refusing to proxy to a loopback address",
		Status:  403,
	}
	ErrDowngradeToHTTP = &Error{
		Kind:    KindDowngradeToHTTP,
		Message: "The target refused TLS; retry the same path over http://",
		Status:  308,
	}
	ErrInternalServerError = &Error{
		Kind:    KindInternalServerError,
		Message: "Internal server error",
		Status:  500,
	}
)
