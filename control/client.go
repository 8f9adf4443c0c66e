package control

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/example/walker_sim/logging"
)

// Retry defaults for connecting to a server that may still be starting.
const (
	DefaultDialAttempts = 50
	DefaultDialInterval = 100 * time.Millisecond
)

// Client sends commands over a control socket.
type Client struct {
	conn    net.Conn
	r       *bufio.Reader
	timeout time.Duration
}

// Dial connects to the socket at path, retrying every interval up to attempts times.
func Dial(path string, attempts int, interval time.Duration) (*Client, error) {
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		conn, err := net.Dial("unix", path)
		if err == nil {
			return &Client{conn: conn, r: bufio.NewReader(conn), timeout: 5 * time.Second}, nil
		}
		lastErr = err
		logging.GetLogger().Debugf("Dial %s attempt %d/%d: %v", path, i+1, attempts, err)
		if i+1 < attempts {
			time.Sleep(interval)
		}
	}
	return nil, fmt.Errorf("control: connect %s after %d attempts: %w", path, attempts, lastErr)
}

// SetTimeout bounds each Send round trip. Zero disables the deadline.
func (c *Client) SetTimeout(d time.Duration) { c.timeout = d }

// Send writes one command line and returns the reply token.
func (c *Client) Send(cmd string) (string, error) {
	if strings.ContainsAny(cmd, "\r\n") {
		return "", fmt.Errorf("control: command %q spans lines", cmd)
	}
	if c.timeout > 0 {
		c.conn.SetDeadline(time.Now().Add(c.timeout))
		defer c.conn.SetDeadline(time.Time{})
	}
	if _, err := c.conn.Write([]byte(cmd + "\n")); err != nil {
		return "", fmt.Errorf("control: send %q: %w", cmd, err)
	}
	reply, err := c.r.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("control: read reply to %q: %w", cmd, err)
	}
	return strings.TrimRight(reply, "\r\n"), nil
}

// Ping checks liveness.
func (c *Client) Ping() error {
	reply, err := c.Send("PING")
	if err != nil {
		return err
	}
	if reply != ReplyPong {
		return fmt.Errorf("control: unexpected ping reply %q", reply)
	}
	return nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
