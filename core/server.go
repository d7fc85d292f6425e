package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"golang.org/x/net/netutil"

	"github.com/samsonhttp/samson/core/http"
	"github.com/samsonhttp/samson/core/middleware"
	"github.com/samsonhttp/samson/core/observability"
	"github.com/samsonhttp/samson/core/pools"
	"github.com/samsonhttp/samson/core/router"
	"github.com/samsonhttp/samson/core/sockopt"
	"github.com/samsonhttp/samson/core/static"
)

// Server accepts connections, hands each one to a worker pool and answers
// a single request per connection from an exact-path route table.
//
// Configure it with the setters and register routes before calling Listen
// or Serve. Routes may still be added while serving.
type Server struct {
	routes   *router.Table
	pipeline *middleware.Pipeline
	monitor  *observability.Monitor
	buffers  *pools.BufferPool

	mu           sync.Mutex
	numThreads   int
	readTimeout  time.Duration
	writeTimeout time.Duration
	maxConns     int
	sockopts     sockopt.Options
	notFound     static.Page
	logger       *log.Logger

	pool     *pools.WorkerPool
	listener net.Listener
	closed   bool
	serving  sync.WaitGroup
}

// NewServer creates a server with default settings
func NewServer() *Server {
	return &Server{
		routes:       router.NewTable(),
		pipeline:     middleware.NewPipeline(),
		monitor:      observability.NewMonitor(),
		buffers:      pools.NewBufferPool(pools.DefaultBufferSize),
		numThreads:   DefaultNumThreads,
		readTimeout:  DefaultReadTimeout,
		writeTimeout: DefaultWriteTimeout,
		sockopts:     sockopt.Default,
		notFound:     static.DefaultNotFound,
		logger:       log.Default(),
	}
}

// SetNumThreads sets the worker pool size used by the next Listen or Serve
func (s *Server) SetNumThreads(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.numThreads = n
}

// SetReadTimeout bounds how long a connection may take to send its request.
// Zero disables the deadline.
func (s *Server) SetReadTimeout(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readTimeout = d
}

// SetWriteTimeout bounds how long writing a response may take. Zero disables the deadline.
func (s *Server) SetWriteTimeout(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeTimeout = d
}

// SetMaxConnections caps the number of connections held open at once,
// queued ones included. Zero means no cap.
func (s *Server) SetMaxConnections(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxConns = n
}

// SetSocketOptions sets the options Listen binds with
func (s *Server) SetSocketOptions(opts sockopt.Options) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sockopts = opts
}

// SetNotFoundPage sets the page served with 404 responses
func (s *Server) SetNotFoundPage(p static.Page) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notFound = p
}

// SetLogger replaces the logger used for per-connection errors
func (s *Server) SetLogger(l *log.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = l
}

// Register routes path to handler. The last registration for a path wins.
func (s *Server) Register(path string, handler http.Handler) {
	s.routes.Add(path, handler)
}

// HandleFunc registers a plain function for path
func (s *Server) HandleFunc(path string, f func(*http.Request) *http.Response) {
	s.Register(path, http.HandlerFunc(f))
}

// Use wraps every route with mw. The first middleware added runs first.
func (s *Server) Use(mw ...middleware.Middleware) {
	s.pipeline.Use(mw...)
}

// Routes returns the registered paths
func (s *Server) Routes() []string {
	return s.routes.Paths()
}

// Monitor exposes the request counters
func (s *Server) Monitor() *observability.Monitor {
	return s.monitor
}

// Listen binds every interface on port and serves until Close. It fails
// before accepting anything if the pool size is invalid or the bind fails.
func (s *Server) Listen(port int) error {
	return s.ListenAddr(fmt.Sprintf(":%d", port))
}

// ListenAddr is Listen for an explicit host:port
func (s *Server) ListenAddr(addr string) error {
	pool, err := s.startPool()
	if err != nil {
		return err
	}

	s.mu.Lock()
	opts := s.sockopts
	s.mu.Unlock()

	ln, err := sockopt.Listen(context.Background(), addr, opts)
	if err != nil {
		s.stopPool(pool)
		return err
	}

	return s.serve(ln, pool)
}

// Serve accepts connections on ln until Close. Each connection becomes one
// job on the worker pool; the accept loop never processes requests itself.
func (s *Server) Serve(ln net.Listener) error {
	pool, err := s.startPool()
	if err != nil {
		ln.Close()
		return err
	}
	return s.serve(ln, pool)
}

// Addr returns the listening address, or nil before Listen
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close stops accepting, lets queued and in-flight connections finish and
// stops the workers. It is safe to call more than once.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.serving.Wait()
		return nil
	}
	s.closed = true
	ln := s.listener
	pool := s.pool
	s.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}
	s.serving.Wait()
	if pool != nil {
		pool.Shutdown()
	}
	return err
}

func (s *Server) startPool() (*pools.WorkerPool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrServerClosed
	}
	if s.pool != nil {
		return nil, ErrAlreadyListening
	}

	pool, err := pools.NewWorkerPool(s.numThreads)
	if err != nil {
		return nil, fmt.Errorf("%w: %d", err, s.numThreads)
	}
	s.pool = pool
	return pool, nil
}

func (s *Server) stopPool(pool *pools.WorkerPool) {
	s.mu.Lock()
	if s.pool == pool {
		s.pool = nil
	}
	s.mu.Unlock()
	pool.Shutdown()
}

func (s *Server) serve(ln net.Listener, pool *pools.WorkerPool) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		pool.Shutdown()
		return ErrServerClosed
	}
	if s.maxConns > 0 {
		ln = netutil.LimitListener(ln, s.maxConns)
	}
	s.listener = ln
	logger := s.logger
	s.serving.Add(1)
	s.mu.Unlock()
	defer s.serving.Done()

	logger.Printf("listening on %s with %d workers", ln.Addr(), pool.Size())

	var tempDelay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return ErrServerClosed
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}

			// Back off on resource exhaustion and similar transient errors
			if tempDelay == 0 {
				tempDelay = 5 * time.Millisecond
			} else {
				tempDelay *= 2
			}
			if tempDelay > time.Second {
				tempDelay = time.Second
			}
			logger.Printf("accept error: %v; retrying in %v", err, tempDelay)
			time.Sleep(tempDelay)
			continue
		}
		tempDelay = 0

		s.monitor.ConnectionAccepted()
		if err := pool.Execute(func() { s.handleConnection(conn) }); err != nil {
			conn.Close()
			return ErrServerClosed
		}
	}
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
