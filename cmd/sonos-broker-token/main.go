// Command sonos-broker-token issues an access token for the broker control API.
//
// Usage:
//
//	JWT_SECRET=... go run ./cmd/sonos-broker-token -name "Hall Panel"
//
//	# Token that expires after a day
//	JWT_SECRET=... go run ./cmd/sonos-broker-token -name "Hall Panel" -ttl 24h
//
// The token is printed on stdout. Clients send it as a Bearer token, or as
// the access_token query parameter on /ws.
package main

import (
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/strefethen/sonos-broker-go/internal/auth"
	"github.com/strefethen/sonos-broker-go/internal/config"
)

func main() {
	name := flag.String("name", "", "client name stored in the token")
	sub := flag.String("sub", "", "subject id (default: random)")
	ttl := flag.Duration("ttl", 0, "token lifetime, 0 for no expiry")
	flag.Parse()

	if strings.TrimSpace(*name) == "" {
		log.Fatal("-name is required")
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is not set; the control API is open")
	}
	if *sub == "" {
		*sub = uuid.NewString()
	}

	token, err := auth.GenerateAccessToken(cfg.JWTSecret, auth.TokenPayload{Sub: *sub, DeviceName: *name}, *ttl)
	if err != nil {
		log.Fatalf("sign token: %v", err)
	}
	fmt.Println(token)
	if *ttl > 0 {
		log.Printf("token for %q expires at %s", *name, time.Now().Add(*ttl).Format(time.RFC3339))
	}
}
