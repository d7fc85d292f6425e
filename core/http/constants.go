package http

import (
	"errors"
	"fmt"
)

// HTTP header constants
const (
	HeaderContentType   = "Content-Type"
	HeaderContentLength = "Content-Length"
	HeaderHost          = "Host"
	HeaderConnection    = "Connection"
	HeaderAccept        = "Accept"
	HeaderRequestID     = "X-Request-Id"
)

// DefaultVersion is the protocol version written on responses
const DefaultVersion = "HTTP/1.1"

const (
	// MaxLineLength bounds the request line and every header line
	MaxLineLength = 8 * 1024
	// MaxBodySize bounds a request or response body
	MaxBodySize = 10 << 20
)

// Decode errors. The connection pipeline tells them apart with errors.Is.
var (
	ErrMalformedRequestLine = errors.New("malformed request line")
	ErrInvalidMethod        = errors.New("invalid http method")
	ErrMalformedHeader      = errors.New("malformed header")
	ErrMissingHostHeader    = errors.New("missing Host header")
	ErrInvalidURI           = errors.New("invalid request uri")
	ErrTimeout              = errors.New("request read timed out")
	ErrTruncatedBody        = errors.New("body shorter than Content-Length")
	ErrBodyTooLarge         = errors.New("body too large")
	ErrMalformedResponse    = errors.New("malformed response")
	errLineTooLong          = errors.New("line too long")

	// ErrEmptyRequest is returned when the peer sent nothing at all
	ErrEmptyRequest = fmt.Errorf("%w: empty request", ErrMalformedRequestLine)
)
