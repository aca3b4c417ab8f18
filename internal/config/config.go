package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the broker configuration.
type Config struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`

	// JWTSecret enables bearer auth on the control API when set.
	JWTSecret string `yaml:"jwt_secret"`

	StaticDeviceIPs        []string `yaml:"static_device_ips"`
	SSDPDiscoveryTimeoutMs int      `yaml:"ssdp_discovery_timeout_ms"`
	SSDPDiscoveryPasses    int      `yaml:"ssdp_discovery_passes"`
	SSDPPassIntervalMs     int      `yaml:"ssdp_pass_interval_ms"`
	DiscoveryIntervalSec   int      `yaml:"discovery_interval_sec"`

	SonosTimeoutMs      int `yaml:"sonos_timeout_ms"`
	ZoneCacheTTLSeconds int `yaml:"zone_cache_ttl_seconds"`

	// UPnP event subscription settings
	UPnPSubscriptionTimeoutSec   int    `yaml:"upnp_subscription_timeout"`
	UPnPCallbackHost             string `yaml:"upnp_callback_host"`
	SubscriptionCheckIntervalSec int    `yaml:"subscription_check_interval_sec"`

	StatusPollIntervalSec int      `yaml:"status_poll_interval_sec"`
	FlushIntervalMs       int      `yaml:"flush_interval_ms"`
	SnippetTimeoutSec     int      `yaml:"snippet_timeout_sec"`
	UDPTargets            []string `yaml:"udp_targets"`
}

// Load reads configuration from environment variables with defaults, then
// applies the YAML file named by BROKER_CONFIG_FILE if set.
func Load() (Config, error) {
	cfg := Config{
		Host:                         envString("HOST", "0.0.0.0"),
		Port:                         envString("PORT", "9000"),
		JWTSecret:                    envString("JWT_SECRET", ""),
		StaticDeviceIPs:              envCSV("STATIC_DEVICE_IPS"),
		SSDPDiscoveryTimeoutMs:       envInt("SSDP_DISCOVERY_TIMEOUT_MS", 5000),
		SSDPDiscoveryPasses:          envInt("SSDP_DISCOVERY_PASSES", 3),
		SSDPPassIntervalMs:           envInt("SSDP_PASS_INTERVAL_MS", 2000),
		DiscoveryIntervalSec:         envInt("DISCOVERY_INTERVAL_SEC", 300),
		SonosTimeoutMs:               envInt("SONOS_TIMEOUT_MS", 5000),
		ZoneCacheTTLSeconds:          envInt("ZONE_CACHE_TTL_SECONDS", 30),
		UPnPSubscriptionTimeoutSec:   envInt("UPNP_SUBSCRIPTION_TIMEOUT", 3600),
		UPnPCallbackHost:             envString("UPNP_CALLBACK_HOST", ""),
		SubscriptionCheckIntervalSec: envInt("SUBSCRIPTION_CHECK_INTERVAL_SEC", 120),
		StatusPollIntervalSec:        envInt("STATUS_POLL_INTERVAL_SEC", 60),
		FlushIntervalMs:              envInt("FLUSH_INTERVAL_MS", 200),
		SnippetTimeoutSec:            envInt("SNIPPET_TIMEOUT_SEC", 60),
		UDPTargets:                   envCSV("UDP_TARGETS"),
	}

	if path := envString("BROKER_CONFIG_FILE", ""); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyFile overlays the non-zero fields of a YAML file.
func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var file Config
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	c.overlay(file)
	return nil
}

func (c *Config) overlay(o Config) {
	setString(&c.Host, o.Host)
	setString(&c.Port, o.Port)
	setString(&c.JWTSecret, o.JWTSecret)
	setString(&c.UPnPCallbackHost, o.UPnPCallbackHost)
	if len(o.StaticDeviceIPs) > 0 {
		c.StaticDeviceIPs = o.StaticDeviceIPs
	}
	if len(o.UDPTargets) > 0 {
		c.UDPTargets = o.UDPTargets
	}
	setInt(&c.SSDPDiscoveryTimeoutMs, o.SSDPDiscoveryTimeoutMs)
	setInt(&c.SSDPDiscoveryPasses, o.SSDPDiscoveryPasses)
	setInt(&c.SSDPPassIntervalMs, o.SSDPPassIntervalMs)
	setInt(&c.DiscoveryIntervalSec, o.DiscoveryIntervalSec)
	setInt(&c.SonosTimeoutMs, o.SonosTimeoutMs)
	setInt(&c.ZoneCacheTTLSeconds, o.ZoneCacheTTLSeconds)
	setInt(&c.UPnPSubscriptionTimeoutSec, o.UPnPSubscriptionTimeoutSec)
	setInt(&c.SubscriptionCheckIntervalSec, o.SubscriptionCheckIntervalSec)
	setInt(&c.StatusPollIntervalSec, o.StatusPollIntervalSec)
	setInt(&c.FlushIntervalMs, o.FlushIntervalMs)
	setInt(&c.SnippetTimeoutSec, o.SnippetTimeoutSec)
}

func (c Config) validate() error {
	if secret := strings.TrimSpace(c.JWTSecret); secret != "" && len(secret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if c.FlushIntervalMs <= 0 {
		return fmt.Errorf("FLUSH_INTERVAL_MS must be positive")
	}
	if c.UPnPSubscriptionTimeoutSec <= 0 {
		return fmt.Errorf("UPNP_SUBSCRIPTION_TIMEOUT must be positive")
	}
	return nil
}

// Addr is the listen address of the HTTP server.
func (c Config) Addr() string { return c.Host + ":" + c.Port }

func (c Config) SonosTimeout() time.Duration {
	return time.Duration(c.SonosTimeoutMs) * time.Millisecond
}

func (c Config) SubscriptionTimeout() time.Duration {
	return time.Duration(c.UPnPSubscriptionTimeoutSec) * time.Second
}

func (c Config) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalMs) * time.Millisecond
}

func (c Config) SnippetTimeout() time.Duration {
	return time.Duration(c.SnippetTimeoutSec) * time.Second
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func envString(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func envInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func envCSV(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return []string{}
	}
	parts := strings.Split(val, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		result = append(result, trimmed)
	}
	return result
}
