package middleware

import (
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/samsonhttp/samson/core/http"
)

// Middleware decorates a handler
type Middleware func(next http.Handler) http.Handler

// Pipeline is an ordered list of middlewares. The first one added is the
// outermost around the final handler.
type Pipeline struct {
	mu          sync.RWMutex
	middlewares []Middleware
}

// NewPipeline creates a new middleware pipeline
func NewPipeline() *Pipeline {
	return &Pipeline{
		middlewares: make([]Middleware, 0, 8),
	}
}

// Use adds middlewares to the pipeline
func (p *Pipeline) Use(mw ...Middleware) *Pipeline {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.middlewares = append(p.middlewares, mw...)
	return p
}

// Len returns the number of middlewares
func (p *Pipeline) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return len(p.middlewares)
}

// Then wraps final with every middleware in the pipeline
func (p *Pipeline) Then(final http.Handler) http.Handler {
	p.mu.RLock()
	defer p.mu.RUnlock()

	// Fast path: no middlewares
	if len(p.middlewares) == 0 {
		return final
	}

	h := final
	for i := len(p.middlewares) - 1; i >= 0; i-- {
		h = p.middlewares[i](h)
	}
	return h
}

// Common middleware implementations

// Logger logs method, path, status and duration of every request
func Logger(logger *log.Logger) Middleware {
	if logger == nil {
		logger = log.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(req *http.Request) *http.Response {
			start := time.Now()
			resp := next.Serve(req)

			status := "-"
			if resp != nil {
				status = strconv.Itoa(resp.Status)
			}
			logger.Printf("[%s] %s %s %v", req.Method, req.Path(), status, time.Since(start))
			return resp
		})
	}
}

// RequestID tags the request and its response with an X-Request-Id. An id
// sent by the client is kept.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(req *http.Request) *http.Response {
			id := req.Header.Get(http.HeaderRequestID)
			if id == "" {
				id = uuid.NewString()
				if req.Header == nil {
					req.Header = http.Header{}
				}
				req.Header.Set(http.HeaderRequestID, id)
			}

			resp := next.Serve(req)
			if resp != nil {
				if resp.Header == nil {
					resp.Header = http.Header{}
				}
				resp.Header.Set(http.HeaderRequestID, id)
			}
			return resp
		})
	}
}

// CORS adds permissive CORS headers and answers OPTIONS itself
func CORS() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(req *http.Request) *http.Response {
			var resp *http.Response
			if req.Method == http.MethodOptions {
				resp = http.NewResponse()
				resp.Status = http.StatusNoContent
			} else {
				resp = next.Serve(req)
			}
			if resp == nil {
				return nil
			}
			if resp.Header == nil {
				resp.Header = http.Header{}
			}
			resp.Header.Set("Access-Control-Allow-Origin", "*")
			resp.Header.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			resp.Header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			return resp
		})
	}
}

// RateLimiter allows requestsPerSecond requests per one-second window and
// answers the rest with 429
func RateLimiter(requestsPerSecond int) Middleware {
	var (
		tokens     int
		lastRefill time.Time
		mu         sync.Mutex
	)

	tokens = requestsPerSecond
	lastRefill = time.Now()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(req *http.Request) *http.Response {
			mu.Lock()

			now := time.Now()
			if now.Sub(lastRefill) > time.Second {
				tokens = requestsPerSecond
				lastRefill = now
			}

			if tokens > 0 {
				tokens--
				mu.Unlock()
				return next.Serve(req)
			}

			mu.Unlock()
			return http.Error(http.StatusTooManyRequests, "Too Many Requests")
		})
	}
}
