package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"
)

var (
	ErrNotConnected     = errors.New("socket not connected")
	ErrAlreadyConnected = errors.New("socket already connected")
	ErrNoAddress        = errors.New("no address for host")
	ErrDestroyed        = errors.New("socket destroyed")
)

// Socket is a single blocking TCP connection with per-call timeouts.
//
// Recv returns (0, nil) when no data arrived within the timeout; callers must
// retry rather than abort. A closed connection is reported as (0, io.EOF).
type Socket interface {
	Connect(ctx context.Context, ip net.IP, port int, timeout time.Duration) error
	ConnectByName(ctx context.Context, host string, port int, timeout time.Duration) error
	Send(p []byte, timeout time.Duration) (int, error)
	Recv(p []byte, timeout time.Duration) (int, error)
	Disconnect() error
	Destroy() error
}

// Factory creates sockets.
type Factory interface {
	Create() (Socket, error)
}

// Resolver resolves a host name to a single address.
type Resolver interface {
	Resolve(ctx context.Context, host string, timeout time.Duration) (net.IP, error)
}

// TCPFactory creates TCPSockets.
type TCPFactory struct{}

func (TCPFactory) Create() (Socket, error) {
	return NewTCPSocket(), nil
}

// TCPSocket implements Socket on top of net.Conn deadlines.
type TCPSocket struct {
	conn      net.Conn
	destroyed bool
}

func NewTCPSocket() *TCPSocket {
	return &TCPSocket{}
}

func (s *TCPSocket) Connect(ctx context.Context, ip net.IP, port int, timeout time.Duration) error {
	return s.dial(ctx, net.JoinHostPort(ip.String(), strconv.Itoa(port)), timeout)
}

func (s *TCPSocket) ConnectByName(ctx context.Context, host string, port int, timeout time.Duration) error {
	return s.dial(ctx, net.JoinHostPort(host, strconv.Itoa(port)), timeout)
}

func (s *TCPSocket) dial(ctx context.Context, addr string, timeout time.Duration) error {
	if s.destroyed {
		return ErrDestroyed
	}

	if s.conn != nil {
		return ErrAlreadyConnected
	}

	dialer := &net.Dialer{Timeout: timeout}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}

	s.conn = conn

	return nil
}

// Send writes p within timeout and returns the number of bytes written, which
// may be short on error.
func (s *TCPSocket) Send(p []byte, timeout time.Duration) (int, error) {
	if s.conn == nil {
		return 0, ErrNotConnected
	}

	if err := s.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return 0, err
	}

	return s.conn.Write(p)
}

func (s *TCPSocket) Recv(p []byte, timeout time.Duration) (int, error) {
	if s.conn == nil {
		return 0, ErrNotConnected
	}

	if err := s.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, err
	}

	n, err := s.conn.Read(p)
	if n > 0 {
		return n, nil
	}

	if err == nil {
		return 0, nil
	}

	if errors.Is(err, os.ErrDeadlineExceeded) {
		return 0, nil
	}

	if errors.Is(err, io.EOF) {
		return 0, io.EOF
	}

	return 0, err
}

func (s *TCPSocket) Disconnect() error {
	if s.conn == nil {
		return nil
	}

	err := s.conn.Close()
	s.conn = nil

	return err
}

// Destroy releases the socket; it cannot be connected again.
func (s *TCPSocket) Destroy() error {
	if s.destroyed {
		return nil
	}

	s.destroyed = true

	return s.Disconnect()
}

// NetResolver resolves names with the system resolver, preferring IPv4.
type NetResolver struct {
	Resolver *net.Resolver
}

func (r NetResolver) Resolve(ctx context.Context, host string, timeout time.Duration) (net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return ip, nil
	}

	resolver := r.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	addrs, err := resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}

	for _, a := range addrs {
		if v4 := a.IP.To4(); v4 != nil {
			return v4, nil
		}
	}

	if len(addrs) > 0 {
		return addrs[0].IP, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrNoAddress, host)
}
