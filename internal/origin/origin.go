// Package origin opens outbound connections to origin servers and relays
// their responses back to clients.
package origin

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"
)

// Connector dials origin servers.
type Connector struct {
	dialer *net.Dialer
}

// NewConnector creates a Connector. A zero timeout means the dial is bounded
// only by the session deadline.
func NewConnector(timeout time.Duration) *Connector {
	return &Connector{dialer: &net.Dialer{Timeout: timeout}}
}

// Dial opens a TCP connection to host:port. Resolution and connection
// failures come back as ordinary errors; the worker answers them with 503.
func (c *Connector) Dial(ctx context.Context, host, port string) (net.Conn, error) {
	conn, err := c.dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
	if err != nil {
		return nil, fmt.Errorf("dial origin %s: %w", net.JoinHostPort(host, port), err)
	}
	return conn, nil
}

// Relay copies the origin's response to the client in fixed-size chunks
// until the origin closes or either side fails. Memory use is bounded to one
// chunk; the response is never buffered whole. It returns the bytes written
// to the client and the error that ended the loop, nil on a clean
// end-of-stream.
func Relay(client io.Writer, originConn io.Reader, chunkBytes int) (int64, error) {
	buf := make([]byte, chunkBytes)
	var written int64
	for {
		n, err := originConn.Read(buf)
		if n > 0 {
			wn, werr := client.Write(buf[:n])
			written += int64(wn)
			if werr != nil {
				return written, fmt.Errorf("write to client: %w", werr)
			}
			if wn < n {
				return written, io.ErrShortWrite
			}
		}
		if err != nil {
			if err == io.EOF {
				return written, nil
			}
			return written, fmt.Errorf("read from origin: %w", err)
		}
	}
}
