package sockopt

import (
	"context"
	"net"
	"testing"
)

func TestListen(t *testing.T) {
	ln, err := Listen(context.Background(), "127.0.0.1:0", Default)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	addr := ln.Addr().String()

	done := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
		done <- err
	}()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	conn.Close()

	if err := <-done; err != nil {
		t.Fatalf("Accept: %v", err)
	}
	ln.Close()

	// With SO_REUSEADDR the same address can be bound again right away.
	ln2, err := Listen(context.Background(), addr, Default)
	if err != nil {
		t.Fatalf("Rebind %s: %v", addr, err)
	}
	ln2.Close()
}

func TestListenBadAddress(t *testing.T) {
	if _, err := Listen(context.Background(), "127.0.0.1:notaport", Default); err == nil {
		t.Error("Expected error for bad address")
	}
}
