package v1

import (
	"log/slog"
	"net/netip"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// loopbackIP stands in when a request carries no public address. It
// resolves no country and never matches an owner's excluded IP.
const loopbackIP = "127.0.0.1"

// proxyHeaders are consulted, in order, after X-Forwarded-For.
var proxyHeaders = []string{"X-Real-IP", "CF-Connecting-IP", "True-Client-IP", "X-Client-IP"}

// requestUserAgent prefers a forwarded user agent set by a proxying client.
func requestUserAgent(c *fiber.Ctx) string {
	if forwarded := c.Get("X-Forwarded-User-Agent"); forwarded != "" {
		return forwarded
	}
	return c.Get(fiber.HeaderUserAgent)
}

// clientIP returns the visitor's public address. Sources are tried from the
// most to the least specific; within one source IPv4 wins over IPv6.
func clientIP(c *fiber.Ctx) string {
	sources := [][]string{strings.Split(c.Get(fiber.HeaderXForwardedFor), ",")}
	for _, header := range proxyHeaders {
		sources = append(sources, []string{c.Get(header)})
	}
	sources = append(sources,
		forwardedFor(c.Get(fiber.HeaderForwarded)),
		[]string{c.Context().RemoteAddr().String()},
		[]string{c.IP()},
	)

	for _, candidates := range sources {
		if addr, ok := pickPublic(candidates); ok {
			return addr.String()
		}
	}

	slog.Default().Debug("No public client address, using loopback", slog.String("path", c.Path()))
	return loopbackIP
}

// pickPublic returns the first public IPv4 in values, else the first public
// IPv6.
func pickPublic(values []string) (netip.Addr, bool) {
	var v6 netip.Addr
	for _, raw := range values {
		addr, ok := parseIP(raw)
		if !ok || !isPublic(addr) {
			continue
		}
		if addr.Is4() {
			return addr, true
		}
		if !v6.IsValid() {
			v6 = addr
		}
	}
	return v6, v6.IsValid()
}

// parseIP accepts the shapes proxies send: bare, quoted, with a port, in
// brackets, with a zone, or IPv4-mapped IPv6.
func parseIP(raw string) (netip.Addr, bool) {
	s := strings.Trim(strings.TrimSpace(raw), `"`)
	if s == "" {
		return netip.Addr{}, false
	}

	if addrPort, err := netip.ParseAddrPort(s); err == nil {
		return addrPort.Addr().Unmap().WithZone(""), true
	}

	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap().WithZone(""), true
}

func isPublic(addr netip.Addr) bool {
	return addr.IsValid() &&
		!addr.IsPrivate() &&
		!addr.IsLoopback() &&
		!addr.IsLinkLocalUnicast() &&
		!addr.IsUnspecified()
}

// forwardedFor extracts the for= values of an RFC 7239 Forwarded header.
func forwardedFor(header string) []string {
	var out []string
	for _, element := range strings.Split(header, ",") {
		for _, pair := range strings.Split(element, ";") {
			key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
			if ok && strings.EqualFold(key, "for") {
				out = append(out, value)
			}
		}
	}
	return out
}
