// Package events implements UPnP GENA eventing against Sonos devices:
// SUBSCRIBE/renew/UNSUBSCRIBE, self renewing leases and the NOTIFY callback.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/strefethen/sonos-broker-go/internal/sonos/soap"
)

// CallbackPrefix is the path under which NOTIFY requests are received.
const CallbackPrefix = "/upnp/notify"

const (
	// DefaultTimeout is the lease duration requested when none is given.
	DefaultTimeout = time.Hour

	// renewalBuffer is how long before expiry a lease renews itself.
	renewalBuffer = 60 * time.Second

	// infiniteTimeout stands in for "Second-infinite" so renewal arithmetic stays positive.
	infiniteTimeout = 24 * time.Hour
)

// ErrSubscriptionNotFound indicates the subscription doesn't exist (HTTP 412).
var ErrSubscriptionNotFound = errors.New("subscription not found")

// Notification is one decoded NOTIFY request.
type Notification struct {
	SID     string
	Seq     int
	Service soap.Service
	// Host is the device the subscription was made against.
	Host string
	// Properties holds the evented variables. Variables carried in LastChange
	// are flattened into it; channel specific ones are keyed "Name/Channel".
	Properties map[string]string
}

// Handler receives the notifications of one subscription.
type Handler func(ctx context.Context, n Notification)
