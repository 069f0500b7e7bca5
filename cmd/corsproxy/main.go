package main

import (
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"corsproxy/internal/proxy"
	"corsproxy/internal/server"
)

const (
	defaultPort     = "8000"
	defaultMaxConns = 512
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	maxConns := defaultMaxConns
	if v := os.Getenv("MAX_CONNS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			log.Fatalf("invalid MAX_CONNS %q: %v", v, err)
		}
		maxConns = n
	}

	dispatcher := proxy.NewDispatcher(maxConns)

	srv, err := server.Serve("0.0.0.0:"+port, dispatcher.Handle)
	if err != nil {
		log.Fatalf("Error starting server: %v", err)
	}
	defer srv.Close()

	log.Println("Server started on port:", port)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Server gracefully stopped")
}
