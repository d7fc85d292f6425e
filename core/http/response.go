package http

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Response is an HTTP response. The body is only reachable through SetBody
// and Body, so Content-Length always matches it.
type Response struct {
	Version string
	Status  int
	Header  Header
	body    []byte
	hasBody bool
}

// NewResponse returns an empty 200 response
func NewResponse() *Response {
	return &Response{
		Version: DefaultVersion,
		Status:  StatusOK,
		Header:  Header{},
	}
}

// SetBody attaches body and recomputes Content-Length
func (r *Response) SetBody(body []byte) {
	r.body = body
	r.hasBody = true
	r.syncContentLength()
}

// SetBodyString is SetBody for text
func (r *Response) SetBodyString(body string) {
	r.SetBody([]byte(body))
}

// Body returns the body, nil when none was set
func (r *Response) Body() []byte {
	return r.body
}

// HasBody reports whether a body was set, even an empty one
func (r *Response) HasBody() bool {
	return r.hasBody
}

// ContentLength is the byte length of the body
func (r *Response) ContentLength() int {
	return len(r.body)
}

func (r *Response) syncContentLength() {
	if r.Header == nil {
		r.Header = Header{}
	}
	r.Header.Set(HeaderContentLength, strconv.Itoa(len(r.body)))
}

// WriteTo encodes r: status line, headers, blank line, then the body if any.
// Content-Length is taken from the body, not the header map, and r is not
// modified, so one response may be written by several goroutines at once.
func (r *Response) WriteTo(w io.Writer) (int64, error) {
	contentLength := -1
	if r.hasBody {
		contentLength = len(r.body)
	}

	version := r.Version
	if version == "" {
		version = DefaultVersion
	}

	cw := &countWriter{w: w}
	cw.writeString(version)
	cw.writeString(" ")
	cw.writeString(strconv.Itoa(r.Status))
	cw.writeString(" ")
	cw.writeString(StatusText(r.Status))
	cw.writeString("\r\n")
	writeHeader(cw, r.Header, contentLength)
	cw.writeString("\r\n")
	if r.hasBody {
		cw.write(r.body)
	}
	return cw.n, cw.err
}

// Bytes returns the encoded response
func (r *Response) Bytes() []byte {
	var buf bytes.Buffer
	r.WriteTo(&buf)
	return buf.Bytes()
}

func (r *Response) String() string {
	return string(r.Bytes())
}

// ReadResponse decodes a response written by WriteTo. Without a
// Content-Length the body runs to end of stream.
func ReadResponse(br *bufio.Reader) (*Response, error) {
	line, err := readLine(br)
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("%w: empty response", ErrMalformedResponse)
		}
		return nil, classifyReadError(err, ErrMalformedResponse)
	}

	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 || parts[0] == "" {
		return nil, fmt.Errorf("%w: status line %q", ErrMalformedResponse, line)
	}
	status, err := strconv.Atoi(parts[1])
	if err != nil || status < 100 || status > 999 {
		return nil, fmt.Errorf("%w: status %q", ErrMalformedResponse, parts[1])
	}

	header, err := readHeader(br)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		Version: parts[0],
		Status:  status,
		Header:  header,
	}

	var body []byte
	if cl, ok := header.Lookup(HeaderContentLength); ok {
		n, err := parseContentLength(cl)
		if err != nil {
			return nil, err
		}
		if body, err = readFixedBody(br, n); err != nil {
			return nil, err
		}
		if n == 0 {
			body = []byte{}
		}
	} else {
		body, err = io.ReadAll(io.LimitReader(br, MaxBodySize+1))
		if err != nil {
			return nil, classifyReadError(err, ErrMalformedResponse)
		}
		if len(body) > MaxBodySize {
			return nil, ErrBodyTooLarge
		}
		if len(body) == 0 {
			return resp, nil
		}
	}

	resp.SetBody(body)
	return resp, nil
}

// Text builds a text/plain response
func Text(code int, s string) *Response {
	return Data(code, "text/plain; charset=utf-8", []byte(s))
}

// HTML builds a text/html response
func HTML(code int, page []byte) *Response {
	return Data(code, "text/html; charset=utf-8", page)
}

// JSON builds an application/json response. A value that cannot be
// marshalled turns into a 500.
func JSON(code int, v any) *Response {
	data, err := json.Marshal(v)
	if err != nil {
		return Error(StatusInternalServerError, "failed to marshal JSON")
	}
	return Data(code, "application/json", data)
}

// Data builds a response with a custom content type
func Data(code int, contentType string, data []byte) *Response {
	resp := NewResponse()
	resp.Status = code
	resp.Header.Set(HeaderContentType, contentType)
	resp.SetBody(data)
	return resp
}

// Error builds a JSON error response
func Error(code int, message string) *Response {
	data, _ := json.Marshal(map[string]any{
		"code":    code,
		"message": message,
	})
	return Data(code, "application/json", data)
}
