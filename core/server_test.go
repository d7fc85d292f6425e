package core

import (
	"bufio"
	"errors"
	"io"
	"log"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/samsonhttp/samson/core/http"
	"github.com/samsonhttp/samson/core/middleware"
	"github.com/samsonhttp/samson/core/pools"
	"github.com/samsonhttp/samson/core/static"
)

func newTestServer() *Server {
	s := NewServer()
	s.SetLogger(log.New(io.Discard, "", 0))
	return s
}

// startServer serves s on a loopback port and returns the address
func startServer(t *testing.T, s *Server) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- s.Serve(ln) }()

	t.Cleanup(func() {
		s.Close()
		select {
		case err := <-done:
			if !errors.Is(err, ErrServerClosed) {
				t.Errorf("Serve returned %v, expected ErrServerClosed", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("Serve did not return after Close")
		}
	})
	return ln.Addr().String()
}

// roundTrip sends raw and returns everything the server wrote before closing
func roundTrip(t *testing.T, addr, raw string) string {
	t.Helper()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(5 * time.Second))
	if _, err := conn.Write([]byte(raw)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	return string(out)
}

func parseResponse(t *testing.T, raw string) *http.Response {
	t.Helper()

	resp, err := http.ReadResponse(bufio.NewReader(strings.NewReader(raw)))
	if err != nil {
		t.Fatalf("ReadResponse(%q): %v", raw, err)
	}
	return resp
}

func TestServerServesRegisteredRoute(t *testing.T) {
	s := newTestServer()

	var calls atomic.Int32
	s.HandleFunc("/hello", func(req *http.Request) *http.Response {
		calls.Add(1)
		resp := http.Text(http.StatusOK, "Hello, World!")
		resp.Header.Set("X-Custom", "yes")
		return resp
	})
	addr := startServer(t, s)

	raw := roundTrip(t, addr, "GET /hello?ignored=1 HTTP/1.1\r\nHost: localhost\r\n\r\n")

	want := http.Text(http.StatusOK, "Hello, World!")
	want.Header.Set("X-Custom", "yes")
	if raw != want.String() {
		t.Errorf("Expected %q, got %q", want.String(), raw)
	}
	if calls.Load() != 1 {
		t.Errorf("Expected handler to run once, ran %d times", calls.Load())
	}
}

func TestServerNotFound(t *testing.T) {
	s := newTestServer()
	s.SetNotFoundPage(static.StaticPage{Body: []byte("<h1>gone</h1>"), Type: "text/html"})
	s.HandleFunc("/hello", func(*http.Request) *http.Response {
		t.Error("Handler should not run for a different path")
		return http.Text(http.StatusOK, "")
	})
	addr := startServer(t, s)

	resp := parseResponse(t, roundTrip(t, addr, "GET /missing HTTP/1.1\r\nHost: localhost\r\n\r\n"))
	if resp.Status != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.Status)
	}
	if string(resp.Body()) != "<h1>gone</h1>" {
		t.Errorf("Expected not-found page body, got %q", resp.Body())
	}
	if ct := resp.Header.Get(http.HeaderContentType); ct != "text/html" {
		t.Errorf("Expected text/html, got %q", ct)
	}
}

func TestServerNotFoundPageUnavailable(t *testing.T) {
	s := newTestServer()
	s.SetNotFoundPage(static.NewFilePage(t.TempDir() + "/missing.html"))
	addr := startServer(t, s)

	if raw := roundTrip(t, addr, "GET /nope HTTP/1.1\r\nHost: localhost\r\n\r\n"); raw != "" {
		t.Errorf("Expected the connection to be dropped, got %q", raw)
	}
}

func TestServerHandlerPanic(t *testing.T) {
	s := newTestServer()
	s.HandleFunc("/panic", func(*http.Request) *http.Response {
		panic("boom")
	})
	s.HandleFunc("/nil", func(*http.Request) *http.Response {
		return nil
	})
	s.HandleFunc("/ok", func(*http.Request) *http.Response {
		return http.Text(http.StatusOK, "fine")
	})
	s.SetNumThreads(1)
	addr := startServer(t, s)

	for _, path := range []string{"/panic", "/nil"} {
		resp := parseResponse(t, roundTrip(t, addr, "GET "+path+" HTTP/1.1\r\nHost: localhost\r\n\r\n"))
		if resp.Status != http.StatusInternalServerError {
			t.Errorf("%s: expected 500, got %d", path, resp.Status)
		}
	}

	// The single worker must still be alive
	resp := parseResponse(t, roundTrip(t, addr, "GET /ok HTTP/1.1\r\nHost: localhost\r\n\r\n"))
	if resp.Status != http.StatusOK || string(resp.Body()) != "fine" {
		t.Errorf("Expected 200 fine after a panic, got %d %q", resp.Status, resp.Body())
	}

	stats := s.Stats()
	if stats.Outcomes["handler_failure"] != 2 {
		t.Errorf("Expected 2 handler failures, got %d", stats.Outcomes["handler_failure"])
	}
}

func TestServerBadRequest(t *testing.T) {
	s := newTestServer()
	s.HandleFunc("/", func(*http.Request) *http.Response {
		return http.Text(http.StatusOK, "root")
	})
	addr := startServer(t, s)

	tests := []string{
		"BREW /pot HTTP/1.1\r\nHost: localhost\r\n\r\n",
		"GET /\r\nHost: localhost\r\n\r\n",
		"GET / HTTP/1.1\r\nAccept: */*\r\n\r\n",
		"GET / HTTP/1.1\r\nHost: localhost\r\nBroken\r\n\r\n",
	}
	for _, raw := range tests {
		resp := parseResponse(t, roundTrip(t, addr, raw))
		if resp.Status != http.StatusBadRequest {
			t.Errorf("%q: expected 400, got %d", raw, resp.Status)
		}
	}
}

func TestServerEmptyConnectionDropped(t *testing.T) {
	s := newTestServer()
	addr := startServer(t, s)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	conn.(*net.TCPConn).CloseWrite()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	out, _ := io.ReadAll(conn)
	if len(out) != 0 {
		t.Errorf("Expected no response to an empty connection, got %q", out)
	}
}

func TestServerReadTimeoutFreesWorker(t *testing.T) {
	s := newTestServer()
	s.SetNumThreads(1)
	s.SetReadTimeout(100 * time.Millisecond)
	s.HandleFunc("/ok", func(*http.Request) *http.Response {
		return http.Text(http.StatusOK, "ok")
	})
	addr := startServer(t, s)

	slow, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer slow.Close()
	slow.Write([]byte("GET /ok HTTP/1.1\r\n"))

	// Queued behind the stalled connection on the only worker
	resp := parseResponse(t, roundTrip(t, addr, "GET /ok HTTP/1.1\r\nHost: localhost\r\n\r\n"))
	if resp.Status != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.Status)
	}

	slow.SetReadDeadline(time.Now().Add(2 * time.Second))
	if out, _ := io.ReadAll(slow); len(out) != 0 {
		t.Errorf("Expected the stalled connection to be closed silently, got %q", out)
	}
	if n := s.Stats().Outcomes["timeout"]; n != 1 {
		t.Errorf("Expected 1 timeout, got %d", n)
	}
}

func TestServerPostBody(t *testing.T) {
	s := newTestServer()
	s.HandleFunc("/echo", func(req *http.Request) *http.Response {
		return http.Data(http.StatusOK, "text/plain", req.Body)
	})
	addr := startServer(t, s)

	resp := parseResponse(t, roundTrip(t, addr, "POST /echo HTTP/1.1\r\nHost: localhost\r\nContent-Length: 5\r\n\r\nhello"))
	if string(resp.Body()) != "hello" {
		t.Errorf("Expected echoed body, got %q", resp.Body())
	}
}

func TestServerMiddleware(t *testing.T) {
	s := newTestServer()
	s.Use(middleware.RequestID())
	s.HandleFunc("/id", func(req *http.Request) *http.Response {
		return http.Text(http.StatusOK, req.Header.Get(http.HeaderRequestID))
	})
	addr := startServer(t, s)

	resp := parseResponse(t, roundTrip(t, addr, "GET /id HTTP/1.1\r\nHost: localhost\r\n\r\n"))
	id := resp.Header.Get(http.HeaderRequestID)
	if id == "" {
		t.Fatal("Expected a request id on the response")
	}
	if string(resp.Body()) != id {
		t.Errorf("Expected handler to see id %q, got %q", id, resp.Body())
	}
}

func TestServerConcurrentRequests(t *testing.T) {
	s := newTestServer()
	s.SetNumThreads(4)
	s.HandleFunc("/n", func(*http.Request) *http.Response {
		return http.Text(http.StatusOK, "n")
	})
	addr := startServer(t, s)

	const clients = 32
	errs := make(chan string, clients)
	for i := 0; i < clients; i++ {
		go func() {
			conn, err := net.Dial("tcp", addr)
			if err != nil {
				errs <- err.Error()
				return
			}
			defer conn.Close()
			conn.SetDeadline(time.Now().Add(5 * time.Second))
			conn.Write([]byte("GET /n HTTP/1.1\r\nHost: localhost\r\n\r\n"))
			out, _ := io.ReadAll(conn)
			errs <- string(out)
		}()
	}

	want := http.Text(http.StatusOK, "n").String()
	for i := 0; i < clients; i++ {
		if got := <-errs; got != want {
			t.Errorf("Expected %q, got %q", want, got)
		}
	}
	if n := s.Stats().Requests.Connections; n != clients {
		t.Errorf("Expected %d connections, got %d", clients, n)
	}
}

func TestServerMaxConnections(t *testing.T) {
	s := newTestServer()
	s.SetNumThreads(2)
	s.SetMaxConnections(1)
	s.SetReadTimeout(200 * time.Millisecond)
	s.HandleFunc("/ok", func(*http.Request) *http.Response {
		return http.Text(http.StatusOK, "ok")
	})
	addr := startServer(t, s)

	idle, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer idle.Close()
	time.Sleep(20 * time.Millisecond)

	// Not accepted until the idle connection times out
	start := time.Now()
	resp := parseResponse(t, roundTrip(t, addr, "GET /ok HTTP/1.1\r\nHost: localhost\r\n\r\n"))
	if resp.Status != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.Status)
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("Expected the second connection to wait for the first, took %v", elapsed)
	}
}

func TestHandleConnectionPipe(t *testing.T) {
	s := newTestServer()
	s.HandleFunc("/pipe", func(*http.Request) *http.Response {
		return http.Text(http.StatusOK, "piped")
	})

	client, server := net.Pipe()
	done := make(chan struct{})
	go func() {
		s.handleConnection(server)
		close(done)
	}()

	client.SetDeadline(time.Now().Add(2 * time.Second))
	client.Write([]byte("GET /pipe HTTP/1.1\r\nHost: localhost\r\n\r\n"))
	out, _ := io.ReadAll(client)
	client.Close()
	<-done

	if want := http.Text(http.StatusOK, "piped").String(); string(out) != want {
		t.Errorf("Expected %q, got %q", want, out)
	}
}

// pipeListener hands out the server ends of in-memory pipes
type pipeListener struct {
	conns  chan net.Conn
	closed chan struct{}
	once   sync.Once
}

func newPipeListener() *pipeListener {
	return &pipeListener{conns: make(chan net.Conn), closed: make(chan struct{})}
}

func (l *pipeListener) dial() net.Conn {
	client, server := net.Pipe()
	l.conns <- server
	return client
}

func (l *pipeListener) Accept() (net.Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.closed:
		return nil, net.ErrClosed
	}
}

func (l *pipeListener) Close() error {
	l.once.Do(func() { close(l.closed) })
	return nil
}

func (l *pipeListener) Addr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)}
}

func TestWriteResponseFailure(t *testing.T) {
	s := newTestServer()

	client, server := net.Pipe()
	client.Close()

	err := s.writeResponse(server, http.Text(http.StatusOK, "lost"), time.Second)
	if !errors.Is(err, ErrWriteFailure) {
		t.Errorf("Expected ErrWriteFailure, got %v", err)
	}
}

func TestServerWriteFailureFreesWorker(t *testing.T) {
	s := newTestServer()
	s.SetNumThreads(1)
	s.HandleFunc("/ok", func(*http.Request) *http.Response {
		return http.Text(http.StatusOK, "ok")
	})

	ln := newPipeListener()
	done := make(chan error, 1)
	go func() { done <- s.Serve(ln) }()
	defer func() {
		s.Close()
		<-done
	}()

	// The client hangs up without reading, so the response cannot be written
	gone := ln.dial()
	gone.SetDeadline(time.Now().Add(2 * time.Second))
	if _, err := gone.Write([]byte("GET /ok HTTP/1.1\r\nHost: localhost\r\n\r\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	gone.Close()

	// The only worker must pick up the next connection
	next := ln.dial()
	defer next.Close()
	next.SetDeadline(time.Now().Add(2 * time.Second))
	next.Write([]byte("GET /ok HTTP/1.1\r\nHost: localhost\r\n\r\n"))
	out, _ := io.ReadAll(next)
	if want := http.Text(http.StatusOK, "ok").String(); string(out) != want {
		t.Errorf("Expected %q, got %q", want, out)
	}

	outcomes := s.Stats().Outcomes
	if outcomes["write_failure"] != 1 {
		t.Errorf("Expected 1 write failure, got %v", outcomes)
	}
	if outcomes["served"] != 1 {
		t.Errorf("Expected 1 served request, got %v", outcomes)
	}
}

func TestListenInvalidPoolSize(t *testing.T) {
	s := newTestServer()
	s.SetNumThreads(0)

	err := s.ListenAddr("127.0.0.1:0")
	if !errors.Is(err, pools.ErrInvalidPoolSize) {
		t.Fatalf("Expected ErrInvalidPoolSize, got %v", err)
	}
	if s.Addr() != nil {
		t.Error("Expected no listener after a failed Listen")
	}
}

func TestServerCloseTwice(t *testing.T) {
	s := newTestServer()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- s.Serve(ln) }()

	for s.Addr() == nil {
		time.Sleep(time.Millisecond)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Second Close: %v", err)
	}
	if err := <-done; !errors.Is(err, ErrServerClosed) {
		t.Errorf("Expected ErrServerClosed, got %v", err)
	}
	if err := s.ListenAddr("127.0.0.1:0"); !errors.Is(err, ErrServerClosed) {
		t.Errorf("Expected ErrServerClosed from Listen after Close, got %v", err)
	}
}

func TestHandlerError(t *testing.T) {
	cause := errors.New("db down")
	err := error(&HandlerError{Path: "/x", Value: cause, Stack: []byte("stack")})

	if !errors.Is(err, ErrHandlerFailure) {
		t.Error("Expected HandlerError to match ErrHandlerFailure")
	}
	if !errors.Is(err, cause) {
		t.Error("Expected HandlerError to unwrap an error panic value")
	}
	if !strings.Contains(err.Error(), "panicked") {
		t.Errorf("Expected panic wording, got %q", err.Error())
	}
}

func TestStatsText(t *testing.T) {
	s := newTestServer()
	s.HandleFunc("/a", func(*http.Request) *http.Response {
		return http.Text(http.StatusOK, "a")
	})
	addr := startServer(t, s)
	roundTrip(t, addr, "GET /a HTTP/1.1\r\nHost: localhost\r\n\r\n")

	text := s.StatsText()
	if !strings.Contains(text, "/a") {
		t.Errorf("Expected route /a in stats text, got:\n%s", text)
	}
	if !strings.Contains(s.StatsJSON(), `"served": 1`) {
		t.Errorf("Expected one served request in %s", s.StatsJSON())
	}
}

func BenchmarkServerRoundTrip(b *testing.B) {
	s := newTestServer()
	s.HandleFunc("/bench", func(*http.Request) *http.Response {
		return http.Text(http.StatusOK, "ok")
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		b.Fatal(err)
	}
	go s.Serve(ln)
	defer s.Close()

	addr := ln.Addr().String()
	req := []byte("GET /bench HTTP/1.1\r\nHost: localhost\r\n\r\n")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			b.Fatal(err)
		}
		conn.Write(req)
		io.ReadAll(conn)
		conn.Close()
	}
}
