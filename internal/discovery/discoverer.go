// Package discovery finds zone players on the local network with SSDP and
// confirms them by fetching their device description.
package discovery

import (
	"context"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/strefethen/sonos-broker-go/internal/sonos/soap"
)

// Found is a confirmed zone player.
type Found struct {
	UID         string
	Host        string
	Location    string
	Description DeviceDescription
}

// Options tunes a discovery run.
type Options struct {
	Passes       int
	PassInterval time.Duration
	Timeout      time.Duration
	// StaticIPs are probed directly, for networks where multicast is filtered.
	StaticIPs []string
	// ProbeTimeout bounds each description fetch.
	ProbeTimeout time.Duration
}

// Discoverer runs SSDP searches and probes.
type Discoverer struct {
	client *soap.Client
	opts   Options
	logger *log.Logger

	// search is replaced in tests.
	search func(ctx context.Context, passes int, passInterval, timeout time.Duration) ([]Response, error)
}

// NewDiscoverer creates a discoverer probing with client.
func NewDiscoverer(client *soap.Client, opts Options, logger *log.Logger) *Discoverer {
	if logger == nil {
		logger = log.Default()
	}
	if opts.Passes <= 0 {
		opts.Passes = 1
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 10 * time.Second
	}
	return &Discoverer{client: client, opts: opts, logger: logger, search: Search}
}

// Discover returns every zone player found by SSDP or at a static address.
// An SSDP failure is logged and the static addresses are still probed.
func (d *Discoverer) Discover(ctx context.Context) ([]Found, error) {
	var found []Found
	seen := make(map[string]struct{})

	if d.opts.Timeout > 0 {
		responses, err := d.search(ctx, d.opts.Passes, d.opts.PassInterval, d.opts.Timeout)
		if err != nil {
			d.logger.Printf("DISCOVERY: SSDP search failed: %v", err)
		}
		d.logger.Printf("DISCOVERY: SSDP returned %d responses", len(responses))

		for _, resp := range responses {
			host := extractHost(resp.Location)
			if host == "" {
				continue
			}
			dev, err := d.Probe(ctx, host)
			if err != nil {
				d.logger.Printf("DISCOVERY: probe of %s failed: %v", host, err)
				continue
			}
			dev.Location = resp.Location
			if _, dup := seen[dev.UID]; dup {
				continue
			}
			seen[dev.UID] = struct{}{}
			found = append(found, *dev)
		}
	}

	for _, ip := range d.opts.StaticIPs {
		if err := ctx.Err(); err != nil {
			return found, err
		}
		dev, err := d.Probe(ctx, ip)
		if err != nil {
			d.logger.Printf("DISCOVERY: static probe of %s failed: %v", ip, err)
			continue
		}
		if _, dup := seen[dev.UID]; dup {
			continue
		}
		seen[dev.UID] = struct{}{}
		found = append(found, *dev)
	}

	d.logger.Printf("DISCOVERY: complete, %d players found", len(found))
	return found, nil
}

// Probe fetches and parses the description of the player at host.
func (d *Discoverer) Probe(ctx context.Context, host string) (*Found, error) {
	probeCtx, cancel := context.WithTimeout(ctx, d.opts.ProbeTimeout)
	defer cancel()

	payload, err := d.client.Fetch(probeCtx, host, soap.DescriptionPath)
	if err != nil {
		return nil, err
	}
	desc, err := ParseDeviceDescription(payload)
	if err != nil {
		return nil, err
	}
	return &Found{
		UID:         desc.UDN,
		Host:        host,
		Location:    "http://" + soap.HostPort(host) + soap.DescriptionPath,
		Description: *desc,
	}, nil
}

func extractHost(location string) string {
	if location == "" {
		return ""
	}
	parsed, err := url.Parse(location)
	if err != nil {
		return ""
	}
	if parsed.Port() == soap.DefaultPort {
		return parsed.Hostname()
	}
	return strings.TrimSpace(parsed.Host)
}
