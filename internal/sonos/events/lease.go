package events

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/strefethen/sonos-broker-go/internal/sonos/soap"
)

// Lease is one live GENA subscription. It renews itself shortly before it
// expires; once a renewal fails it is left to run out so the owner can
// resubscribe.
type Lease struct {
	client  *SubscriptionClient
	router  *Router
	host    string
	service soap.Service
	logger  *log.Logger
	now     func() time.Time

	mu        sync.Mutex
	sid       string
	timeout   time.Duration
	expiresAt time.Time
	cancelled bool

	stopOnce sync.Once
	stop     chan struct{}
}

func (l *Lease) ID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sid
}

func (l *Lease) Service() soap.Service { return l.service }

// RemainingTime is zero once the lease expired or was cancelled.
func (l *Lease) RemainingTime() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancelled {
		return 0
	}
	return max(l.expiresAt.Sub(l.now()), 0)
}

// Renew extends the lease by its timeout.
func (l *Lease) Renew(ctx context.Context) error {
	l.mu.Lock()
	sid, timeout, cancelled := l.sid, l.timeout, l.cancelled
	l.mu.Unlock()
	if cancelled {
		return ErrSubscriptionNotFound
	}

	granted, err := l.client.Renew(ctx, l.host, soap.EventPath(l.service), sid, timeout)
	l.mu.Lock()
	defer l.mu.Unlock()
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			l.expiresAt = l.now()
		}
		return err
	}
	l.expiresAt = l.now().Add(granted)
	return nil
}

// Unsubscribe cancels the lease on the device and stops routing its events.
func (l *Lease) Unsubscribe(ctx context.Context) error {
	l.stopOnce.Do(func() { close(l.stop) })

	l.mu.Lock()
	sid := l.sid
	wasCancelled := l.cancelled
	l.cancelled = true
	l.mu.Unlock()

	l.router.Unregister(sid)
	if wasCancelled {
		return nil
	}
	return l.client.Unsubscribe(ctx, l.host, soap.EventPath(l.service), sid)
}

// renewLoop renews the lease renewalBuffer before it expires.
func (l *Lease) renewLoop() {
	for {
		remaining := l.RemainingTime()
		wait := max(remaining-renewalBuffer, remaining/2, time.Second)
		timer := time.NewTimer(wait)
		select {
		case <-l.stop:
			timer.Stop()
			return
		case <-timer.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), l.client.timeout)
		err := l.Renew(ctx)
		cancel()
		if err != nil {
			l.logger.Printf("UPNP: renew %s of %s failed, letting lease expire: %v", l.service, l.host, err)
			return
		}
	}
}
