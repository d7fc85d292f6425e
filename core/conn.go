package core

import (
	"errors"
	"fmt"
	"net"
	"runtime/debug"
	"time"

	"github.com/samsonhttp/samson/core/http"
	"github.com/samsonhttp/samson/core/observability"
)

// handleConnection runs on a worker and owns conn until it returns. Exactly
// one request is read and at most one response written; the connection is
// always closed afterwards.
func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	s.mu.Lock()
	readTimeout, writeTimeout := s.readTimeout, s.writeTimeout
	logger := s.logger
	s.mu.Unlock()

	if readTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
	}

	br := s.buffers.GetReader(conn)
	req, err := http.ReadRequest(br)
	s.buffers.PutReader(br)

	if err != nil {
		switch {
		case errors.Is(err, http.ErrTimeout):
			logger.Printf("%s: %v", conn.RemoteAddr(), err)
			s.monitor.RecordOutcome(observability.OutcomeTimeout)
			return
		case errors.Is(err, http.ErrEmptyRequest):
			s.monitor.RecordOutcome(observability.OutcomeDropped)
			return
		}
		logger.Printf("%s: bad request: %v", conn.RemoteAddr(), err)
		s.monitor.RecordOutcome(observability.OutcomeBadRequest)
		s.writeResponse(conn, http.Error(http.StatusBadRequest, http.StatusText(http.StatusBadRequest)), writeTimeout)
		return
	}
	req.RemoteAddr = conn.RemoteAddr().String()

	resp, outcome, err := s.dispatch(req)
	if err != nil {
		logger.Printf("%s %s: %v", req.Method, req.Path(), err)
	}
	if resp == nil {
		s.monitor.RecordOutcome(observability.OutcomeDropped)
		return
	}

	if err := s.writeResponse(conn, resp, writeTimeout); err != nil {
		logger.Printf("%s %s: %v", req.Method, req.Path(), err)
		s.monitor.RecordOutcome(observability.OutcomeWriteFailure)
		return
	}
	s.monitor.RecordOutcome(outcome)
}

// dispatch picks the response for req. A nil response means the
// connection is dropped without an answer.
func (s *Server) dispatch(req *http.Request) (*http.Response, observability.Outcome, error) {
	path := req.Path()

	handler, ok := s.routes.Find(path)
	if !ok {
		resp, err := s.notFoundResponse()
		if err != nil {
			return nil, observability.OutcomeDropped, err
		}
		return resp, observability.OutcomeNotFound, nil
	}

	start := s.monitor.StartTrace()
	resp, err := s.invoke(path, handler, req)
	s.monitor.EndTrace(path, start, err != nil)

	if err != nil {
		return http.Error(http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)),
			observability.OutcomeHandlerFailure, err
	}
	return resp, observability.OutcomeServed, nil
}

// invoke calls the handler wrapped in the middleware pipeline. A panic or
// a nil response comes back as a *HandlerError.
func (s *Server) invoke(path string, handler http.Handler, req *http.Request) (resp *http.Response, err error) {
	defer func() {
		if v := recover(); v != nil {
			resp = nil
			err = &HandlerError{Path: path, Value: v, Stack: debug.Stack()}
		}
	}()

	resp = s.pipeline.Then(handler).Serve(req)
	if resp == nil {
		return nil, &HandlerError{Path: path, Value: "nil response"}
	}
	return resp, nil
}

func (s *Server) notFoundResponse() (*http.Response, error) {
	s.mu.Lock()
	page := s.notFound
	s.mu.Unlock()

	if page == nil {
		return nil, ErrNotFoundPageUnavailable
	}
	body, err := page.Load()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFoundPageUnavailable, err)
	}
	return http.Data(http.StatusNotFound, page.ContentType(), body), nil
}

func (s *Server) writeResponse(conn net.Conn, resp *http.Response, timeout time.Duration) error {
	if timeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(timeout))
	}

	bw := s.buffers.GetWriter(conn)
	defer s.buffers.PutWriter(bw)

	n, err := resp.WriteTo(bw)
	if err == nil {
		err = bw.Flush()
	}
	s.monitor.RecordBytes(n)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailure, err)
	}
	return nil
}
