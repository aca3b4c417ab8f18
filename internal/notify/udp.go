package notify

import (
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"
)

// UDPSink sends each payload as one datagram to every target.
type UDPSink struct {
	targets []string
	timeout time.Duration
	logger  *log.Logger

	mu    sync.Mutex
	conns map[string]net.Conn
}

// NewUDPSink creates a sink for host:port targets. Connections are opened lazily.
func NewUDPSink(targets []string, logger *log.Logger) *UDPSink {
	if logger == nil {
		logger = log.Default()
	}
	return &UDPSink{
		targets: append([]string(nil), targets...),
		timeout: time.Second,
		logger:  logger,
		conns:   make(map[string]net.Conn),
	}
}

func (u *UDPSink) Name() string { return "udp" }

func (u *UDPSink) Deliver(payload []byte) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	var errs []error
	for _, target := range u.targets {
		conn, err := u.connLocked(target)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		_ = conn.SetWriteDeadline(time.Now().Add(u.timeout))
		if _, err := conn.Write(payload); err != nil {
			conn.Close()
			delete(u.conns, target)
			errs = append(errs, fmt.Errorf("udp %s: %w", target, err))
		}
	}
	return errors.Join(errs...)
}

func (u *UDPSink) connLocked(target string) (net.Conn, error) {
	if conn, ok := u.conns[target]; ok {
		return conn, nil
	}
	conn, err := net.Dial("udp", target)
	if err != nil {
		return nil, fmt.Errorf("udp %s: %w", target, err)
	}
	u.conns[target] = conn
	u.logger.Printf("NOTIFY: udp target %s ready", target)
	return conn, nil
}

func (u *UDPSink) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	var errs []error
	for target, conn := range u.conns {
		if err := conn.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(u.conns, target)
	}
	return errors.Join(errs...)
}
