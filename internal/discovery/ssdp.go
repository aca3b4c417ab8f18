package discovery

import (
	"bufio"
	"context"
	"net"
	"strings"
	"time"
)

const (
	ssdpAddr   = "239.255.255.250:1900"
	ssdpTarget = "urn:schemas-upnp-org:device:ZonePlayer:1"
)

// Response is one SSDP answer from a zone player.
type Response struct {
	Location string
	USN      string
	UID      string
	Headers  map[string]string
	FromIP   string
}

// Search performs SSDP M-SEARCH with multi-pass behavior and collects the
// answers until timeout, deduplicated by player uid.
func Search(ctx context.Context, passes int, passInterval, timeout time.Duration) ([]Response, error) {
	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	addr, err := net.ResolveUDPAddr("udp4", ssdpAddr)
	if err != nil {
		return nil, err
	}

	responses := make(map[string]Response)
	var order []string

	for pass := 0; pass < passes; pass++ {
		if err := sendSearch(conn, addr); err != nil {
			return nil, err
		}
		if pass < passes-1 {
			select {
			case <-ctx.Done():
				return collect(responses, order), ctx.Err()
			case <-time.After(passInterval):
			}
		}
	}

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}

	buf := make([]byte, 2048)
	for {
		n, raddr, err := conn.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				break
			}
			return collect(responses, order), err
		}

		resp := parseResponse(string(buf[:n]))
		if resp.Location == "" || resp.UID == "" {
			continue
		}
		resp.FromIP = raddr.String()

		if _, exists := responses[resp.UID]; !exists {
			responses[resp.UID] = resp
			order = append(order, resp.UID)
		}
	}

	return collect(responses, order), nil
}

func sendSearch(conn net.PacketConn, addr *net.UDPAddr) error {
	msg := strings.Join([]string{
		"M-SEARCH * HTTP/1.1",
		"HOST: " + ssdpAddr,
		"MAN: \"ssdp:discover\"",
		"MX: 2",
		"ST: " + ssdpTarget,
		"",
		"",
	}, "\r\n")

	_, err := conn.WriteTo([]byte(msg), addr)
	return err
}

func parseResponse(raw string) Response {
	scanner := bufio.NewScanner(strings.NewReader(raw))
	headers := make(map[string]string)

	// status line
	scanner.Scan()

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			break
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		headers[strings.ToUpper(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}

	return Response{
		Location: headers["LOCATION"],
		USN:      headers["USN"],
		UID:      uidFromUSN(headers["USN"]),
		Headers:  headers,
	}
}

// uidFromUSN extracts RINCON_xxx from "uuid:RINCON_xxx::urn:...".
func uidFromUSN(usn string) string {
	uid, _, _ := strings.Cut(strings.TrimPrefix(usn, "uuid:"), "::")
	return strings.TrimSpace(uid)
}

func collect(responses map[string]Response, order []string) []Response {
	result := make([]Response, 0, len(order))
	for _, uid := range order {
		result = append(result, responses[uid])
	}
	return result
}
