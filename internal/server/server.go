// Package server runs the TCP accept loop: bind a listener, spawn one
// goroutine per accepted connection running the supplied handler, and
// close cleanly on demand. It carries no opinion about what a
// connection is for — that's internal/proxy's job.
package server

import (
	"errors"
	"net"
	"sync/atomic"
)

// Handler processes one accepted connection to completion, including
// closing it.
type Handler func(net.Conn)

type Server struct {
	Addr     string
	listener net.Listener
	closed   atomic.Bool
	handle   Handler
}

// Serve binds addr and starts accepting connections in the background,
// dispatching each to handle.
func Serve(addr string, handle Handler) (*Server, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &Server{
		Addr:     addr,
		listener: l,
		handle:   handle,
	}
	go s.listen()
	return s, nil
}

// Close stops accepting new connections. It is idempotent and safe to
// call more than once.
func (s *Server) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.listener.Close()
}

func (s *Server) listen() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closed.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			// transient accept error; keep going
			continue
		}
		go s.handle(conn)
	}
}
