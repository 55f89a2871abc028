// Package nis talks to the apcupsd network information server.
package nis

import (
	"context"
	"net"
	"strconv"
	"strings"
	"time"

	"codeberg.org/mutker/apcupsd-exporter/internal/errors"
	"codeberg.org/mutker/apcupsd-exporter/internal/logger"
)

const (
	DefaultPort             = 3551
	DefaultMaxFrameSize     = 4096
	DefaultMaxFrames        = 1024
	DefaultMaxResponseBytes = 256 << 10
	// DefaultExchangeTimeout bounds a whole request/response exchange. It is
	// raised to the read timeout when that is longer.
	DefaultExchangeTimeout = 30 * time.Second

	// StatusCommand requests the full status report.
	StatusCommand = "status"
)

// Target identifies the daemon to poll. It is immutable once built.
type Target struct {
	Host           string
	Port           int
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

// Address returns the host:port dial address.
func (t Target) Address() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

func (t Target) Validate() error {
	errFactory := errors.New()

	switch {
	case strings.TrimSpace(t.Host) == "":
		return errFactory.WithData(ErrInvalidTarget, "empty host")
	case t.Port <= 0 || t.Port > 65535:
		return errFactory.WithData(ErrInvalidTarget, "port out of range")
	case t.ConnectTimeout <= 0:
		return errFactory.WithData(ErrInvalidTarget, "connect timeout must be positive")
	case t.ReadTimeout <= 0:
		return errFactory.WithData(ErrInvalidTarget, "read timeout must be positive")
	}

	return nil
}

// Option tunes a Client's limits.
type Option func(*options) error

type options struct {
	maxFrameSize     int
	maxFrames        int
	maxResponseBytes int
	exchangeTimeout  time.Duration
	command          string
}

// WithMaxFrameSize bounds the payload size of a single response frame.
func WithMaxFrameSize(n int) Option {
	return func(o *options) error {
		if n <= 0 || n > MaxFrameSize {
			return errors.New().WithData(errors.ErrInvalidArgument, "max frame size out of range")
		}
		o.maxFrameSize = n
		return nil
	}
}

// WithMaxFrames bounds the number of frames accepted in one response.
func WithMaxFrames(n int) Option {
	return func(o *options) error {
		if n <= 0 {
			return errors.New().WithData(errors.ErrInvalidArgument, "max frames must be positive")
		}
		o.maxFrames = n
		return nil
	}
}

// WithMaxResponseBytes bounds the total payload bytes accepted in one response.
func WithMaxResponseBytes(n int) Option {
	return func(o *options) error {
		if n <= 0 {
			return errors.New().WithData(errors.ErrInvalidArgument, "max response bytes must be positive")
		}
		o.maxResponseBytes = n
		return nil
	}
}

// WithExchangeTimeout bounds the time from sending the request to reading
// the terminator frame, on top of the per-frame read timeout.
func WithExchangeTimeout(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return errors.New().WithData(errors.ErrInvalidArgument, "exchange timeout must be positive")
		}
		o.exchangeTimeout = d
		return nil
	}
}

// Client fetches status reports from one daemon. It holds no connection
// between calls and is safe for concurrent use.
type Client struct {
	target Target
	opts   options
	dialer net.Dialer
}

// NewClient validates target and applies opts.
func NewClient(target Target, opts ...Option) (*Client, error) {
	errFactory := errors.New()

	if err := target.Validate(); err != nil {
		return nil, err
	}

	o := options{
		maxFrameSize:     DefaultMaxFrameSize,
		maxFrames:        DefaultMaxFrames,
		maxResponseBytes: DefaultMaxResponseBytes,
		exchangeTimeout:  max(DefaultExchangeTimeout, target.ReadTimeout),
		command:          StatusCommand,
	}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidArgument, err)
		}
	}

	return &Client{
		target: target,
		opts:   o,
		dialer: net.Dialer{Timeout: target.ConnectTimeout},
	}, nil
}

// Target returns the daemon this client polls.
func (c *Client) Target() Target {
	return c.target
}

// FetchStatus opens a connection, requests the status report and returns one
// string per response line. The connection is closed before returning.
func (c *Client) FetchStatus(ctx context.Context) ([]string, error) {
	errFactory := errors.New()
	addr := c.target.Address()

	conn, err := c.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errFactory.Wrap(classifyDialError(err), err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			logger.Debug().Err(err).Str("addr", addr).Msg("Failed to close daemon connection")
		}
	}()

	deadline := time.Now().Add(c.opts.exchangeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if err := c.writeRequest(conn, deadline); err != nil {
		return nil, err
	}

	return c.readResponse(conn, deadline)
}

// frameDeadline is one read timeout from now, capped by the exchange deadline.
func (c *Client) frameDeadline(deadline time.Time) time.Time {
	d := time.Now().Add(c.target.ReadTimeout)
	if deadline.Before(d) {
		return deadline
	}
	return d
}

func (c *Client) writeRequest(conn net.Conn, deadline time.Time) error {
	errFactory := errors.New()

	request, err := EncodeFrame([]byte(c.opts.command))
	if err != nil {
		return err
	}

	if err := conn.SetWriteDeadline(c.frameDeadline(deadline)); err != nil {
		return errFactory.Wrap(ErrWriteFailed, err)
	}
	if _, err := conn.Write(request); err != nil {
		return errFactory.Wrap(ErrWriteFailed, err)
	}

	return nil
}

// readResponse collects lines until the terminator frame. Every frame must
// arrive within the read timeout and the whole response before deadline.
func (c *Client) readResponse(conn net.Conn, deadline time.Time) ([]string, error) {
	errFactory := errors.New()

	var (
		lines []string
		total int
	)

	for {
		if err := conn.SetReadDeadline(c.frameDeadline(deadline)); err != nil {
			return nil, errFactory.Wrap(ErrReadFailed, err)
		}

		frame, err := ReadFrame(conn, c.opts.maxFrameSize)
		if err != nil {
			return nil, err
		}
		if frame.IsTerminator() {
			return lines, nil
		}

		total += len(frame)
		if len(lines) >= c.opts.maxFrames {
			return nil, errFactory.WithData(ErrResponseTooLarge, "too many frames")
		}
		if total > c.opts.maxResponseBytes {
			return nil, errFactory.WithData(ErrResponseTooLarge, "too many bytes")
		}

		lines = append(lines, decodeLine(frame))
	}
}

// decodeLine turns a frame payload into text, replacing invalid UTF-8 and
// dropping the trailing line terminator the daemon appends.
func decodeLine(f Frame) string {
	line := strings.ToValidUTF8(string(f), "\uFFFD")
	return strings.TrimRight(line, "\r\n\x00")
}
