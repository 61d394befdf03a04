// Package message defines the parsed request model and builds the rewritten
// request sent to the origin server.
package message

import (
	"errors"
	"strings"
)

// ErrRequestTooLarge is returned when the rewritten request would exceed the
// configured maximum size. The request is rejected whole; it is never
// truncated.
var ErrRequestTooLarge = errors.New("rewritten request exceeds maximum size")

// DefaultPort is used when the inbound request names no origin port.
const DefaultPort = "80"

// Header is one inbound header. Order is significant: the rewritten request
// must reproduce the inbound headers in their original order.
type Header struct {
	Name  string
	Value string
}

// Request is the structured form of one inbound client request. It is built
// incrementally by the parser and immutable once the terminating blank line
// has been seen.
type Request struct {
	Method  string
	Path    string
	Version string

	Host string
	Port string // empty means unspecified

	Headers []Header
}

// TargetPort returns the origin port, defaulting to 80 when the request
// named none.
func (r *Request) TargetPort() string {
	if r.Port == "" {
		return DefaultPort
	}
	return r.Port
}

// builder accumulates outbound bytes while enforcing the size cap. Growth is
// fine; exceeding max is a construction failure.
type builder struct {
	buf []byte
	max int
}

func (b *builder) append(parts ...string) error {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	if len(b.buf)+n > b.max {
		return ErrRequestTooLarge
	}
	for _, p := range parts {
		b.buf = append(b.buf, p...)
	}
	return nil
}

// Rewrite produces the exact byte sequence forwarded to the origin: the
// request line downgraded to HTTP/1.0, every inbound header except
// User-Agent in original order, exactly one synthetic User-Agent carrying
// the proxy identity, and the terminating blank line.
func (r *Request) Rewrite(userAgent string, maxBytes int) ([]byte, error) {
	b := &builder{max: maxBytes}

	if err := b.append("GET ", r.Path, " HTTP/1.0\r\n"); err != nil {
		return nil, err
	}
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, "User-Agent") {
			continue
		}
		if err := b.append(h.Name, ": ", h.Value, "\r\n"); err != nil {
			return nil, err
		}
	}
	if err := b.append("User-Agent: ", userAgent, "\r\n\r\n"); err != nil {
		return nil, err
	}

	return b.buf, nil
}
