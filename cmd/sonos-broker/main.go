package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/strefethen/sonos-broker-go/internal/broker"
	"github.com/strefethen/sonos-broker-go/internal/config"
	"github.com/strefethen/sonos-broker-go/internal/discovery"
	"github.com/strefethen/sonos-broker-go/internal/notify"
	"github.com/strefethen/sonos-broker-go/internal/server"
	"github.com/strefethen/sonos-broker-go/internal/sonos"
	"github.com/strefethen/sonos-broker-go/internal/sonos/events"
	"github.com/strefethen/sonos-broker-go/internal/sonos/soap"
	"github.com/strefethen/sonos-broker-go/internal/speaker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	addr := cfg.Addr()
	logger := log.Default()

	callbackBase, err := callbackBaseURL(cfg)
	if err != nil {
		log.Fatalf("callback address error: %v", err)
	}

	soapClient := soap.NewClient(cfg.SonosTimeout())
	zones := sonos.NewZoneGroupCache(time.Duration(cfg.ZoneCacheTTLSeconds) * time.Second)
	callbacks := events.NewRouter(logger)
	subscriber := events.NewSubscriber(events.NewSubscriptionClient(cfg.SonosTimeout()), callbacks, callbackBase, logger)

	discoverer := discovery.NewDiscoverer(soapClient, discovery.Options{
		Passes:       cfg.SSDPDiscoveryPasses,
		PassInterval: time.Duration(cfg.SSDPPassIntervalMs) * time.Millisecond,
		Timeout:      time.Duration(cfg.SSDPDiscoveryTimeoutMs) * time.Millisecond,
		StaticIPs:    cfg.StaticDeviceIPs,
		ProbeTimeout: cfg.SonosTimeout(),
	}, logger)
	newDevice := func(found discovery.Found) speaker.Device {
		return sonos.NewDevice(found.UID, found.Host, soapClient, zones, subscriber, logger)
	}

	hub := notify.NewHub(logger)
	udp := notify.NewUDPSink(cfg.UDPTargets, logger)
	b := broker.New(notify.MultiSink{udp, hub}, discoverer, newDevice, broker.Options{
		SubscriptionTimeout:       cfg.SubscriptionTimeout(),
		SubscriptionCheckInterval: time.Duration(cfg.SubscriptionCheckIntervalSec) * time.Second,
		StatusPollInterval:        time.Duration(cfg.StatusPollIntervalSec) * time.Second,
		FlushInterval:             cfg.FlushInterval(),
		DiscoveryInterval:         time.Duration(cfg.DiscoveryIntervalSec) * time.Second,
		SnippetTimeout:            cfg.SnippetTimeout(),
		Logger:                    logger,
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           server.NewHandler(cfg, server.Deps{Broker: b, Hub: hub, Callbacks: callbacks}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	runCtx, stopRun := context.WithCancel(context.Background())
	go func() {
		if err := b.Run(runCtx); err != nil && err != context.Canceled {
			log.Printf("broker stopped: %v", err)
		}
	}()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("listen error: %v", err)
	}

	// Subscriptions start only once the NOTIFY endpoint is listening.
	go func() {
		if added, err := b.Discover(runCtx); err != nil {
			log.Printf("DISCOVERY: initial run failed: %v", err)
		} else {
			log.Printf("DISCOVERY: added %d speakers", added)
		}
		b.Start()
	}()

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-shutdownCh
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		stopRun()
		if err := b.Shutdown(ctx); err != nil {
			log.Printf("shutdown error: %v", err)
		}
		hub.Close()
		if err := udp.Close(); err != nil {
			log.Printf("shutdown error: %v", err)
		}
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("shutdown error: %v", err)
		}
	}()

	log.Printf("sonos-broker listening on %s (callbacks at %s%s)", addr, callbackBase, events.CallbackPrefix)
	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

// callbackBaseURL is the address speakers use to reach the NOTIFY endpoint.
func callbackBaseURL(cfg config.Config) (string, error) {
	host := cfg.UPnPCallbackHost
	if host == "" {
		ip, err := events.DiscoverLocalIP()
		if err != nil {
			return "", err
		}
		host = ip
	}
	if strings.HasPrefix(host, "http://") {
		return host, nil
	}
	if _, _, err := net.SplitHostPort(host); err == nil {
		return "http://" + host, nil
	}
	return "http://" + net.JoinHostPort(host, cfg.Port), nil
}
