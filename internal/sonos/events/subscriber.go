package events

import (
	"context"
	"fmt"
	"log"
	"net"
	"strings"
	"time"

	"github.com/strefethen/sonos-broker-go/internal/sonos/soap"
)

// Subscriber creates leases whose notifications are delivered through a Router.
type Subscriber struct {
	client       *SubscriptionClient
	router       *Router
	callbackBase string
	logger       *log.Logger
}

// NewSubscriber creates a subscriber. callbackBase is the externally reachable
// base url of the NOTIFY endpoint, e.g. http://192.168.1.5:8080.
func NewSubscriber(client *SubscriptionClient, router *Router, callbackBase string, logger *log.Logger) *Subscriber {
	if logger == nil {
		logger = log.Default()
	}
	return &Subscriber{
		client:       client,
		router:       router,
		callbackBase: strings.TrimSuffix(callbackBase, "/"),
		logger:       logger,
	}
}

// CallbackURL returns the NOTIFY url handed to devices for a service.
func (s *Subscriber) CallbackURL(service soap.Service) string {
	return s.callbackBase + CallbackPrefix + "/" + strings.ToLower(string(service))
}

// Subscribe subscribes to a service of the device at host and routes its
// notifications to handler until the lease is unsubscribed.
func (s *Subscriber) Subscribe(ctx context.Context, host string, service soap.Service, timeout time.Duration, handler Handler) (*Lease, error) {
	path := soap.EventPath(service)
	if path == "" {
		return nil, fmt.Errorf("service %s has no event path", service)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	sid, granted, err := s.client.Subscribe(ctx, host, path, s.CallbackURL(service), timeout)
	if err != nil {
		return nil, err
	}
	s.router.Register(sid, service, host, handler)

	lease := &Lease{
		client:    s.client,
		router:    s.router,
		host:      host,
		service:   service,
		logger:    s.logger,
		now:       time.Now,
		sid:       sid,
		timeout:   timeout,
		expiresAt: time.Now().Add(granted),
		stop:      make(chan struct{}),
	}
	go lease.renewLoop()
	return lease, nil
}

// DiscoverLocalIP discovers the local IP address to use in callback URLs.
// It connects to a well-known address to determine which interface to use.
func DiscoverLocalIP() (string, error) {
	// Connect to a well-known address (doesn't actually send data)
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String(), nil
}
