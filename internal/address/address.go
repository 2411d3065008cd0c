// Package address validates blacklist entries and keeps reserved networks out
// of the enforcement set.
package address

import (
	"net/netip"
	"strconv"
	"strings"
)

// Entry is a validated IPv4 address or CIDR block in canonical form.
// A /32 prefix is the bare address; host bits of wider prefixes are cleared.
type Entry struct {
	prefix netip.Prefix
}

// reserved networks never reach the blacklist. The list is fixed.
var reserved = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("224.0.0.0/4"),
	netip.MustParsePrefix("240.0.0.0/4"),
}

// Reserved returns a copy of the filtered networks.
func Reserved() []netip.Prefix {
	return append([]netip.Prefix(nil), reserved...)
}

// Parse validates raw and returns its canonical entry. The second result is
// false for malformed text and for anything overlapping a reserved network.
func Parse(raw string) (Entry, bool) {
	p, ok := parsePrefix(strings.TrimSpace(raw))
	if !ok {
		return Entry{}, false
	}
	if IsReserved(p) {
		return Entry{}, false
	}
	return Entry{prefix: p}, true
}

// IsReserved reports whether p overlaps any reserved network. A block is
// rejected when any address it covers is reserved, not only when its
// network address is: 8.0.0.0/6 spans 10.0.0.0/8 and never reaches the set.
func IsReserved(p netip.Prefix) bool {
	for _, r := range reserved {
		if r.Overlaps(p) {
			return true
		}
	}
	return false
}

// parsePrefix accepts dotted-quad IPv4 with optional leading zeros and an
// optional /0-32 suffix.
func parsePrefix(s string) (netip.Prefix, bool) {
	if s == "" {
		return netip.Prefix{}, false
	}
	host, bitsText, hasBits := strings.Cut(s, "/")
	bits := 32
	if hasBits {
		n, ok := parseDecimal(bitsText, 2, 32)
		if !ok {
			return netip.Prefix{}, false
		}
		bits = n
	}

	parts := strings.Split(host, ".")
	if len(parts) != 4 {
		return netip.Prefix{}, false
	}
	var octets [4]byte
	for i, part := range parts {
		n, ok := parseDecimal(part, 3, 255)
		if !ok {
			return netip.Prefix{}, false
		}
		octets[i] = byte(n)
	}

	p, err := netip.AddrFrom4(octets).Prefix(bits)
	if err != nil {
		return netip.Prefix{}, false
	}
	return p, true
}

func parseDecimal(s string, maxDigits, maxValue int) (int, bool) {
	if s == "" || len(s) > maxDigits {
		return 0, false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || n > maxValue {
		return 0, false
	}
	return n, true
}

// Prefix returns the network the entry covers.
func (e Entry) Prefix() netip.Prefix { return e.prefix }

// IsValid reports whether e came from a successful Parse.
func (e Entry) IsValid() bool { return e.prefix.IsValid() }

// String returns the canonical text form.
func (e Entry) String() string {
	if !e.prefix.IsValid() {
		return ""
	}
	if e.prefix.Bits() == 32 {
		return e.prefix.Addr().String()
	}
	return e.prefix.String()
}

// Compare orders entries by network address, then by prefix length.
func Compare(a, b Entry) int {
	if c := a.prefix.Addr().Compare(b.prefix.Addr()); c != 0 {
		return c
	}
	switch {
	case a.prefix.Bits() < b.prefix.Bits():
		return -1
	case a.prefix.Bits() > b.prefix.Bits():
		return 1
	}
	return 0
}
