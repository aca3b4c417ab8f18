// Package subscription keeps one renewable event lease per category for a speaker.
package subscription

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/strefethen/sonos-broker-go/internal/metrics"
	"github.com/strefethen/sonos-broker-go/internal/speaker"
)

// DefaultTimeout is the lease duration requested on subscribe.
const DefaultTimeout = 3600 * time.Second

// Subscriber is the part of the Device Gateway the manager needs.
type Subscriber interface {
	UID() string
	Subscribe(ctx context.Context, category speaker.Category, timeout time.Duration, sink chan<- speaker.Event) (speaker.Lease, error)
}

// Options configures a Manager.
type Options struct {
	Timeout    time.Duration
	Categories []speaker.Category
	Logger     *log.Logger
}

// Stats counts manager activity.
type Stats struct {
	Subscribes          int
	SubscribeFailures   int
	Unsubscribes        int
	UnsubscribeFailures int
}

// Manager owns the leases of one speaker.
type Manager struct {
	subscriber Subscriber
	sink       chan<- speaker.Event
	timeout    time.Duration
	categories []speaker.Category
	logger     *log.Logger

	mu     sync.Mutex
	leases map[speaker.Category]speaker.Lease
	stats  Stats
}

// NewManager creates a manager delivering every category into sink.
func NewManager(subscriber Subscriber, sink chan<- speaker.Event, opts Options) *Manager {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if len(opts.Categories) == 0 {
		opts.Categories = speaker.Categories
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Manager{
		subscriber: subscriber,
		sink:       sink,
		timeout:    opts.Timeout,
		categories: append([]speaker.Category(nil), opts.Categories...),
		logger:     opts.Logger,
		leases:     make(map[speaker.Category]speaker.Lease),
	}
}

// Renew runs one renewal pass. An expired lease is unsubscribed and cleared,
// an absent one is subscribed. Failures are logged and retried on the next pass.
func (m *Manager) Renew(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	uid := m.subscriber.UID()
	for _, category := range m.categories {
		lease := m.leases[category]
		if lease != nil && lease.RemainingTime() <= 0 {
			m.unsubscribeLocked(ctx, category, lease)
			lease = nil
		}
		if lease != nil {
			continue
		}

		lease, err := m.subscriber.Subscribe(ctx, category, m.timeout, m.sink)
		metrics.SubscriptionOps.WithLabelValues("subscribe", metrics.Result(err)).Inc()
		if err != nil {
			m.stats.SubscribeFailures++
			m.logger.Printf("SUBSCRIBE: %s %s failed: %v", uid, category, err)
			continue
		}
		m.stats.Subscribes++
		m.leases[category] = lease
		m.logger.Printf("SUBSCRIBE: %s %s sid=%s", uid, category, lease.ID())
	}
}

// UnsubscribeAll cancels every lease. Errors are swallowed and all handles are cleared.
func (m *Manager) UnsubscribeAll(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, category := range m.categories {
		if lease := m.leases[category]; lease != nil {
			m.unsubscribeLocked(ctx, category, lease)
		}
	}
}

func (m *Manager) unsubscribeLocked(ctx context.Context, category speaker.Category, lease speaker.Lease) {
	delete(m.leases, category)
	err := lease.Unsubscribe(ctx)
	metrics.SubscriptionOps.WithLabelValues("unsubscribe", metrics.Result(err)).Inc()
	if err != nil {
		m.stats.UnsubscribeFailures++
		m.logger.Printf("SUBSCRIBE: %s unsubscribe %s failed: %v", m.subscriber.UID(), category, err)
		return
	}
	m.stats.Unsubscribes++
}

// Active returns the categories that currently hold a lease.
func (m *Manager) Active() []speaker.Category {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []speaker.Category
	for _, category := range m.categories {
		if m.leases[category] != nil {
			out = append(out, category)
		}
	}
	return out
}

// Lease returns the lease for category, or nil.
func (m *Manager) Lease(category speaker.Category) speaker.Lease {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leases[category]
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}
