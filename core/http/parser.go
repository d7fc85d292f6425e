package http

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// ReadRequest decodes one request from br.
//
// The request line must be exactly "METHOD SP target SP version". Headers run
// until an empty line or end of stream. The target is resolved against
// http://<Host>. Only POST, PUT and PATCH are read for a body: exactly
// Content-Length bytes when the header is present, otherwise the remaining
// lines up to an empty line or end of stream. An empty body is left nil.
//
// A read that hits the connection deadline fails with ErrTimeout.
func ReadRequest(br *bufio.Reader) (*Request, error) {
	line, err := readLine(br)
	if err != nil {
		if err == io.EOF {
			return nil, ErrEmptyRequest
		}
		return nil, classifyReadError(err, ErrMalformedRequestLine)
	}

	req, target, err := parseRequestLine(line)
	if err != nil {
		return nil, err
	}

	if req.Header, err = readHeader(br); err != nil {
		return nil, err
	}

	if req.URI, err = resolveURI(req.Header.Get(HeaderHost), target); err != nil {
		return nil, err
	}

	if !methodHasBody(req.Method) {
		return req, nil
	}

	if req.Body, err = readRequestBody(br, req.Header); err != nil {
		return nil, err
	}
	return req, nil
}

// parseRequestLine splits METHOD SP target SP version. The target stays
// raw until the Host header is known.
func parseRequestLine(line string) (*Request, string, error) {
	parts := strings.Split(line, " ")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return nil, "", fmt.Errorf("%w: %q", ErrMalformedRequestLine, line)
	}

	method, target, version := parts[0], parts[1], parts[2]
	if !ValidMethod(method) {
		return nil, "", fmt.Errorf("%w: %q", ErrInvalidMethod, method)
	}

	return &Request{
		Method:  method,
		Version: version,
	}, target, nil
}

// readHeader reads header lines until an empty line. End of stream also
// ends the block.
func readHeader(br *bufio.Reader) (Header, error) {
	header := Header{}
	for {
		line, err := readLine(br)
		if err == io.EOF {
			return header, nil
		}
		if err != nil {
			return nil, classifyReadError(err, ErrMalformedHeader)
		}
		if line == "" {
			return header, nil
		}

		key, value, err := parseHeaderLine(line)
		if err != nil {
			return nil, err
		}
		header.Set(key, value)
	}
}

// parseHeaderLine splits on the first colon and trims both sides
func parseHeaderLine(line string) (string, string, error) {
	key, value, ok := strings.Cut(line, ":")
	if !ok {
		return "", "", fmt.Errorf("%w: missing colon in %q", ErrMalformedHeader, line)
	}

	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)

	if key == "" || !httpguts.ValidHeaderFieldName(key) {
		return "", "", fmt.Errorf("%w: invalid name in %q", ErrMalformedHeader, line)
	}
	if value == "" {
		return "", "", fmt.Errorf("%w: missing value for %q", ErrMalformedHeader, key)
	}
	if !httpguts.ValidHeaderFieldValue(value) {
		return "", "", fmt.Errorf("%w: invalid value for %q", ErrMalformedHeader, key)
	}
	return key, value, nil
}

// resolveURI joins target onto http://<host>
func resolveURI(host, target string) (*url.URL, error) {
	if host == "" {
		return nil, ErrMissingHostHeader
	}
	if !httpguts.ValidHostHeader(host) {
		return nil, fmt.Errorf("%w: bad host %q", ErrInvalidURI, host)
	}

	base, err := url.Parse("http://" + host)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("%w: bad host %q", ErrInvalidURI, host)
	}

	ref, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURI, target)
	}

	uri := base.ResolveReference(ref)
	if uri.Path == "" {
		uri.Path = "/"
	}
	return uri, nil
}

func readRequestBody(br *bufio.Reader, header Header) ([]byte, error) {
	if cl, ok := header.Lookup(HeaderContentLength); ok {
		n, err := parseContentLength(cl)
		if err != nil {
			return nil, err
		}
		return readFixedBody(br, n)
	}
	return readLineBody(br)
}

func parseContentLength(cl string) (int64, error) {
	n, err := strconv.ParseInt(cl, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: bad Content-Length %q", ErrMalformedHeader, cl)
	}
	if n > MaxBodySize {
		return 0, fmt.Errorf("%w: %d bytes", ErrBodyTooLarge, n)
	}
	return n, nil
}

func readFixedBody(br *bufio.Reader, n int64) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(br, body); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, ErrTruncatedBody
		}
		return nil, classifyReadError(err, ErrTruncatedBody)
	}
	return body, nil
}

// readLineBody concatenates lines up to an empty line or end of stream.
// Line terminators are not part of the body.
func readLineBody(br *bufio.Reader) ([]byte, error) {
	var body []byte
	for {
		line, err := readLine(br)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, classifyReadError(err, ErrTruncatedBody)
		}
		if line == "" {
			break
		}
		if len(body)+len(line) > MaxBodySize {
			return nil, ErrBodyTooLarge
		}
		body = append(body, line...)
	}

	if len(body) == 0 {
		return nil, nil
	}
	return body, nil
}

// readLine returns the next line without its CRLF or LF. A final line
// without a terminator is returned as is; io.EOF means no data was left.
func readLine(br *bufio.Reader) (string, error) {
	var line []byte
	for {
		frag, err := br.ReadSlice('\n')
		if len(line)+len(frag) > MaxLineLength {
			return "", errLineTooLong
		}
		line = append(line, frag...)

		if err == nil {
			break
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		if err == io.EOF && len(line) > 0 {
			break
		}
		return "", err
	}

	line = line[:len(line)-trailingNewline(line)]
	return string(line), nil
}

func trailingNewline(line []byte) int {
	n := len(line)
	switch {
	case n >= 2 && line[n-2] == '\r' && line[n-1] == '\n':
		return 2
	case n >= 1 && line[n-1] == '\n':
		return 1
	}
	return 0
}

// classifyReadError maps deadline errors to ErrTimeout and wraps the rest in kind
func classifyReadError(err, kind error) error {
	if isTimeout(err) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", kind, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
