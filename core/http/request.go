package http

import (
	"bufio"
	"io"
	"net/url"
	"slices"
	"strconv"
	"strings"
)

// Request is a decoded HTTP request. Body is nil when the request carried none.
type Request struct {
	Method  string
	URI     *url.URL
	Version string
	Header  Header
	Body    []byte

	// RemoteAddr is filled in by the server, never by the codec
	RemoteAddr string
}

// NewRequest builds a request for an absolute or host-relative uri.
// host fills in the URI host and the Host header when set.
func NewRequest(method, host, target string, body []byte) (*Request, error) {
	if !ValidMethod(method) {
		return nil, ErrInvalidMethod
	}

	if host == "" {
		abs, err := url.Parse(target)
		if err != nil || !abs.IsAbs() {
			return nil, ErrMissingHostHeader
		}
		host = abs.Host
	}

	uri, err := resolveURI(host, target)
	if err != nil {
		return nil, err
	}

	header := Header{HeaderHost: host}

	return &Request{
		Method:  method,
		URI:     uri,
		Version: DefaultVersion,
		Header:  header,
		Body:    body,
	}, nil
}

// Path returns the resolved path used for routing
func (r *Request) Path() string {
	if r.URI == nil {
		return ""
	}
	return r.URI.Path
}

// HasBody reports whether a body was attached
func (r *Request) HasBody() bool {
	return r.Body != nil
}

// WriteTo encodes r in wire format: request line, headers, blank line, body
func (r *Request) WriteTo(w io.Writer) (int64, error) {
	bw, ok := w.(*bufio.Writer)
	if !ok {
		bw = bufio.NewWriter(w)
	}

	target := "/"
	if r.URI != nil {
		target = r.URI.RequestURI()
	}
	version := r.Version
	if version == "" {
		version = DefaultVersion
	}

	header := r.Header.Clone()
	if header == nil {
		header = Header{}
	}
	if _, ok := header.Lookup(HeaderHost); !ok && r.URI != nil && r.URI.Host != "" {
		header.Set(HeaderHost, r.URI.Host)
	}
	contentLength := -1
	if r.Body != nil {
		contentLength = len(r.Body)
	}

	cw := &countWriter{w: bw}
	cw.writeString(r.Method)
	cw.writeString(" ")
	cw.writeString(target)
	cw.writeString(" ")
	cw.writeString(version)
	cw.writeString("\r\n")
	writeHeader(cw, header, contentLength)
	cw.writeString("\r\n")
	if r.Body != nil {
		cw.write(r.Body)
	}
	if cw.err != nil {
		return cw.n, cw.err
	}
	return cw.n, bw.Flush()
}

// countWriter remembers the first error so encoders can write unconditionally
type countWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (c *countWriter) write(p []byte) {
	if c.err != nil {
		return
	}
	n, err := c.w.Write(p)
	c.n += int64(n)
	c.err = err
}

func (c *countWriter) writeString(s string) {
	if c.err != nil {
		return
	}
	n, err := io.WriteString(c.w, s)
	c.n += int64(n)
	c.err = err
}

// writeHeader writes h in sorted key order. A contentLength of zero or more
// replaces any Content-Length in h; h itself is only read.
func writeHeader(cw *countWriter, h Header, contentLength int) {
	keys := h.sortedKeys()
	if contentLength >= 0 {
		keys = slices.DeleteFunc(keys, func(k string) bool {
			return strings.EqualFold(k, HeaderContentLength)
		})
		i, _ := slices.BinarySearch(keys, HeaderContentLength)
		keys = slices.Insert(keys, i, HeaderContentLength)
	}

	for _, k := range keys {
		v := h[k]
		if k == HeaderContentLength && contentLength >= 0 {
			v = strconv.Itoa(contentLength)
		}
		cw.writeString(k)
		cw.writeString(": ")
		cw.writeString(v)
		cw.writeString("\r\n")
	}
}
