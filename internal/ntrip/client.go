// Package ntrip maintains the correction-caster link and relays bytes in both
// directions: inbound correction data to the receiver, outbound position
// sentences to the caster. Correction content is never inspected, only
// counted.
package ntrip

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"log"
	"net"
	"strconv"
	"time"
)

// drainPollTimeout bounds each relay read poll. Long enough for buffered
// bytes to be returned, short enough that an idle link costs one loop tick
// almost nothing.
const drainPollTimeout = 5 * time.Millisecond

type Config struct {
	Host     string
	Port     int
	Mount    string
	User     string
	Password string

	// SendPosition enables forwarding the receiver's position sentence to
	// the caster.
	SendPosition bool

	// ReconnectDelay is the minimum spacing between connect attempts.
	ReconnectDelay time.Duration
	// ResponseTimeout caps how long the caster has to answer with "200".
	ResponseTimeout time.Duration
	DialTimeout     time.Duration

	// DrainBuffer bounds how many correction bytes one relay call moves.
	DrainBuffer int
}

type Snapshot struct {
	Connected bool   `json:"connected"`
	Caster    string `json:"caster,omitempty"`
	Mount     string `json:"mount,omitempty"`
	BytesIn   uint64 `json:"bytes_in"`
	BytesOut  uint64 `json:"bytes_out"`
	LastError string `json:"last_error,omitempty"`
}

// Client is driven from the single control-loop goroutine; all methods are
// non-blocking apart from the bounded connect handshake.
type Client struct {
	cfg Config

	dial func(addr string, timeout time.Duration) (net.Conn, error)
	now  func() time.Time

	conn      net.Conn
	connected bool

	lastAttempt    time.Time
	lastAttemptSet bool

	buf []byte

	bytesIn  uint64
	bytesOut uint64
	lastErr  string
}

func New(cfg Config) *Client {
	if cfg.Port == 0 {
		cfg.Port = 2101
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 1 * time.Second
	}
	if cfg.ResponseTimeout <= 0 {
		cfg.ResponseTimeout = 5 * time.Second
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.DrainBuffer <= 0 {
		cfg.DrainBuffer = 2048
	}
	return &Client{
		cfg: cfg,
		dial: func(addr string, timeout time.Duration) (net.Conn, error) {
			return net.DialTimeout("tcp", addr, timeout)
		},
		now: time.Now,
		buf: make([]byte, cfg.DrainBuffer),
	}
}

// Configured reports whether caster credentials are present.
func (c *Client) Configured() bool {
	return c != nil && c.cfg.Host != "" && c.cfg.Mount != ""
}

// Connected reports whether the caster link is up.
func (c *Client) Connected() bool { return c != nil && c.connected }

func (c *Client) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	return Snapshot{
		Connected: c.connected,
		Caster:    c.cfg.Host,
		Mount:     c.cfg.Mount,
		BytesIn:   c.bytesIn,
		BytesOut:  c.bytesOut,
		LastError: c.lastErr,
	}
}

// EnsureConnected attempts a (re)connect when the link is down, configured,
// and the reconnect delay has elapsed. Returns the connectivity state.
func (c *Client) EnsureConnected(now time.Time) bool {
	if c == nil {
		return false
	}
	if c.connected {
		return true
	}
	if !c.Configured() {
		return false
	}
	if c.lastAttemptSet && now.Sub(c.lastAttempt) < c.cfg.ReconnectDelay {
		return false
	}
	c.lastAttempt = now
	c.lastAttemptSet = true

	if err := c.connect(); err != nil {
		c.lastErr = err.Error()
		log.Printf("ntrip connect failed caster=%s mount=%s: %v", c.cfg.Host, c.cfg.Mount, err)
		return false
	}
	c.lastErr = ""
	log.Printf("ntrip connected caster=%s:%d mount=%s", c.cfg.Host, c.cfg.Port, c.cfg.Mount)
	return true
}

// connect dials the caster and performs the plaintext HTTP/1.0 handshake.
// Success is the substring "200" appearing in the response header within the
// response timeout; anything else tears the connection down.
func (c *Client) connect() error {
	addr := net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
	conn, err := c.dial(addr, c.cfg.DialTimeout)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}

	auth := base64.StdEncoding.EncodeToString([]byte(c.cfg.User + ":" + c.cfg.Password))
	req := fmt.Sprintf("GET /%s HTTP/1.0\r\n"+
		"Host: %s\r\n"+
		"User-Agent: NTRIP rtkrover/1.0\r\n"+
		"Authorization: Basic %s\r\n"+
		"Accept: */*\r\n"+
		"Connection: close\r\n\r\n",
		c.cfg.Mount, c.cfg.Host, auth)
	if _, err := conn.Write([]byte(req)); err != nil {
		_ = conn.Close()
		return fmt.Errorf("send request: %w", err)
	}

	deadline := c.now().Add(c.cfg.ResponseTimeout)
	var header []byte
	tmp := make([]byte, 256)
	for {
		if c.now().After(deadline) {
			_ = conn.Close()
			return fmt.Errorf("no \"200\" in caster response within %s", c.cfg.ResponseTimeout)
		}
		_ = conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, rerr := conn.Read(tmp)
		if n > 0 {
			header = append(header, tmp[:n]...)
			if bytes.Contains(header, []byte("200")) {
				break
			}
			if len(header) > 4096 {
				_ = conn.Close()
				return fmt.Errorf("caster rejected request: %q", firstLine(header))
			}
		}
		if rerr != nil {
			if ne, ok := rerr.(net.Error); ok && ne.Timeout() {
				continue
			}
			_ = conn.Close()
			return fmt.Errorf("read caster response: %w", rerr)
		}
	}
	_ = conn.SetReadDeadline(time.Time{})

	c.conn = conn
	c.connected = true
	return nil
}

func firstLine(b []byte) string {
	if i := bytes.IndexByte(b, '\n'); i >= 0 {
		b = b[:i]
	}
	return string(bytes.TrimSpace(b))
}

func (c *Client) disconnect(err error) {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.connected = false
	if err != nil {
		c.lastErr = err.Error()
		log.Printf("ntrip disconnected caster=%s: %v", c.cfg.Host, err)
	}
}

// DrainInbound moves all currently available correction bytes, up to the
// bounded buffer size, into sink verbatim. On buffer-full it stops for this
// call and continues on the next. Returns the number of bytes moved.
func (c *Client) DrainInbound(sink io.Writer) int {
	if c == nil || !c.connected {
		return 0
	}

	filled := 0
	for filled < len(c.buf) {
		// A short positive deadline keeps the poll non-blocking while still
		// letting the kernel hand over bytes already buffered; an
		// already-expired deadline would fail every Read before the syscall.
		_ = c.conn.SetReadDeadline(time.Now().Add(drainPollTimeout))
		n, err := c.conn.Read(c.buf[filled:])
		filled += n
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				break // drained everything currently available
			}
			c.disconnect(err)
			break
		}
		if n == 0 {
			break
		}
	}
	if c.conn != nil {
		_ = c.conn.SetReadDeadline(time.Time{})
	}

	if filled == 0 {
		return 0
	}
	c.bytesIn += uint64(filled)
	if sink != nil {
		if _, err := sink.Write(c.buf[:filled]); err != nil {
			log.Printf("correction relay to receiver failed: %v", err)
		}
	}
	return filled
}

// ForwardPosition sends the receiver's position sentence to the caster,
// unmodified, when the link is up and outbound transmission is enabled.
func (c *Client) ForwardPosition(sentence []byte) bool {
	if c == nil || !c.connected || !c.cfg.SendPosition || len(sentence) == 0 {
		return false
	}
	n, err := c.conn.Write(sentence)
	if err != nil {
		c.disconnect(err)
		return false
	}
	c.bytesOut += uint64(n)
	return true
}

// Close tears down the caster link.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.disconnect(nil)
}
