// Package parse reads a client's request line and header lines and produces
// a structured request or a parse failure.
package parse

import (
	"bufio"
	"errors"
	"io"
	"net"
	"strings"

	"forward-proxy-go/internal/message"
)

// Parse failures. Each maps to exactly one behavior in the worker: empty
// requests are abandoned silently, an unsupported method gets 501, and the
// rest get 400.
var (
	ErrEmptyRequest         = errors.New("client sent no request")
	ErrMalformedRequestLine = errors.New("malformed request line")
	ErrMalformedHeader      = errors.New("malformed header line")
	ErrNoHeaders            = errors.New("at least one header required")
	ErrNoHost               = errors.New("request names no origin host")
	ErrLineTooLong          = errors.New("line exceeds maximum length")
	ErrUnsupportedMethod    = errors.New("method not implemented")
)

// Reader reads one request from a client connection, line by line.
type Reader struct {
	r *bufio.Reader
}

// NewReader wraps conn in a line reader. Lines longer than maxLineBytes are
// rejected, never truncated into the next read.
func NewReader(conn io.Reader, maxLineBytes int) *Reader {
	return &Reader{r: bufio.NewReaderSize(conn, maxLineBytes)}
}

// readLine returns the next line with its CRLF trimmed. A line that does not
// fit the buffer is ErrLineTooLong.
func (p *Reader) readLine() (string, error) {
	line, err := p.r.ReadSlice('\n')
	if err != nil {
		if errors.Is(err, bufio.ErrBufferFull) {
			return "", ErrLineTooLong
		}
		if errors.Is(err, io.EOF) && len(line) > 0 {
			// Final line without a newline; take it as-is.
			return strings.TrimRight(string(line), "\r\n"), nil
		}
		return "", err
	}
	return strings.TrimRight(string(line), "\r\n"), nil
}

// ReadRequest drives the parse: one request line, then header lines until
// the blank terminator. The returned request is complete and immutable.
//
// A connection that closes before sending anything yields ErrEmptyRequest.
// A non-GET method yields ErrUnsupportedMethod as soon as the request line
// is parsed; headers are not read and the session ends with the 501.
func (p *Reader) ReadRequest() (*message.Request, error) {
	line, err := p.readLine()
	if err != nil {
		if errors.Is(err, ErrLineTooLong) {
			return nil, err
		}
		return nil, ErrEmptyRequest
	}

	req, err := parseRequestLine(line)
	if err != nil {
		return nil, err
	}
	if req.Method != "GET" {
		return nil, ErrUnsupportedMethod
	}

	for {
		line, err := p.readLine()
		if err != nil {
			if errors.Is(err, ErrLineTooLong) {
				return nil, err
			}
			// Connection ended before the blank terminator.
			return nil, ErrMalformedHeader
		}
		if line == "" {
			break
		}
		name, value, err := parseHeaderLine(line)
		if err != nil {
			return nil, err
		}
		req.Headers = append(req.Headers, message.Header{Name: name, Value: value})
	}

	if len(req.Headers) == 0 {
		return nil, ErrNoHeaders
	}

	if req.Host == "" {
		req.Host, req.Port = hostFromHeaders(req.Headers)
	}
	if req.Host == "" {
		return nil, ErrNoHost
	}

	return req, nil
}

// parseRequestLine splits "METHOD target HTTP/x.y" and resolves the target
// into path, host and port. Absolute-URI targets carry their own authority;
// origin-form targets leave the host to be derived from the Host header.
func parseRequestLine(line string) (*message.Request, error) {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return nil, ErrMalformedRequestLine
	}
	method, target, version := fields[0], fields[1], fields[2]
	if !strings.HasPrefix(version, "HTTP/") {
		return nil, ErrMalformedRequestLine
	}

	req := &message.Request{Method: method, Version: version}

	switch {
	case strings.HasPrefix(strings.ToLower(target), "http://"):
		rest := target[len("http://"):]
		authority := rest
		req.Path = "/"
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			authority = rest[:i]
			req.Path = rest[i:]
		}
		if authority == "" {
			return nil, ErrMalformedRequestLine
		}
		req.Host, req.Port = splitAuthority(authority)
	case strings.HasPrefix(target, "/"):
		req.Path = target
	default:
		return nil, ErrMalformedRequestLine
	}

	return req, nil
}

// parseHeaderLine splits one "name: value" line.
func parseHeaderLine(line string) (string, string, error) {
	i := strings.IndexByte(line, ':')
	if i <= 0 {
		return "", "", ErrMalformedHeader
	}
	name := strings.TrimSpace(line[:i])
	value := strings.TrimSpace(line[i+1:])
	if name == "" || strings.ContainsAny(name, " \t") {
		return "", "", ErrMalformedHeader
	}
	return name, value, nil
}

// hostFromHeaders derives the origin host and port from the Host header of
// an origin-form request.
func hostFromHeaders(headers []message.Header) (string, string) {
	for _, h := range headers {
		if strings.EqualFold(h.Name, "Host") {
			return splitAuthority(h.Value)
		}
	}
	return "", ""
}

// splitAuthority separates "host[:port]", tolerating bracketed IPv6 hosts.
// The port is empty when the authority names none.
func splitAuthority(authority string) (string, string) {
	if host, port, err := net.SplitHostPort(authority); err == nil {
		return host, port
	}
	return strings.Trim(authority, "[]"), ""
}
