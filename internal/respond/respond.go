// Package respond renders the proxy's synthesized error documents.
package respond

import (
	"errors"
	"fmt"
	"io"
)

// ErrResponseTooLarge is returned when a rendered error document would exceed
// maxResponseBytes; the write is aborted rather than truncated.
var ErrResponseTooLarge = errors.New("rendered error response exceeds maximum size")

// maxResponseBytes bounds one rendered error document (headers + body).
const maxResponseBytes = 8 * 1024

// Error is one synthesized error document: status line, matching headers
// with an exact Content-Length, and a small HTML body.
type Error struct {
	Code  int
	Short string // reason phrase, e.g. "Bad Request"
	Long  string // human-readable detail shown in the body
}

// Canned responses for the three failures the proxy reports to clients.
func BadRequest(detail string) Error {
	return Error{Code: 400, Short: "Bad Request", Long: detail}
}

func NotImplemented(detail string) Error {
	return Error{Code: 501, Short: "Not Implemented", Long: detail}
}

func ServiceUnavailable(detail string) Error {
	return Error{Code: 503, Short: "Service Unavailable", Long: detail}
}

// Render produces the full response: header block then body. Content-Length
// is the exact byte length of the rendered body.
func (e Error) Render() ([]byte, error) {
	body := fmt.Sprintf(
		"<html><head><title>Proxy Error</title></head>\r\n"+
			"<body bgcolor=\"ffffff\">\r\n"+
			"<p>%d: %s</p>\r\n"+
			"<p>%s</p>\r\n"+
			"<hr /><em>The forward proxy</em>\r\n"+
			"</body></html>\r\n",
		e.Code, e.Short, e.Long,
	)
	head := fmt.Sprintf(
		"HTTP/1.0 %d %s\r\n"+
			"Content-Type: text/html\r\n"+
			"Content-Length: %d\r\n"+
			"\r\n",
		e.Code, e.Short, len(body),
	)
	if len(head)+len(body) > maxResponseBytes {
		return nil, ErrResponseTooLarge
	}
	return append([]byte(head), body...), nil
}

// Write renders the error document and writes it to the client. Rendering
// failures abort the write; the caller logs and ends the session.
func (e Error) Write(w io.Writer) error {
	out, err := e.Render()
	if err != nil {
		return err
	}
	if _, err := w.Write(out); err != nil {
		return fmt.Errorf("write error response: %w", err)
	}
	return nil
}
