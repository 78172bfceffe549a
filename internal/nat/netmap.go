package nat

import (
	"fmt"
	"net"
	"net/netip"
)

// MapAddr translates addr from one subnet to the other by replacing the
// network prefix and preserving host-suffix bits. Both prefixes must
// have equal lengths and addr must lie inside from.
func MapAddr(addr netip.Addr, from, to netip.Prefix) (netip.Addr, error) {
	if !addr.Is4() {
		return netip.Addr{}, fmt.Errorf("map %s: only IPv4 is supported", addr)
	}
	if from.Bits() != to.Bits() {
		return netip.Addr{}, fmt.Errorf("map %s: prefix lengths differ (%s vs %s)", addr, from, to)
	}
	if !from.Contains(addr) {
		return netip.Addr{}, fmt.Errorf("map %s: address not in %s", addr, from)
	}

	a := addr.As4()
	base := to.Masked().Addr().As4()
	mask := net.CIDRMask(to.Bits(), 32)

	var out [4]byte
	for i := range out {
		out[i] = (base[i] & mask[i]) | (a[i] &^ mask[i])
	}
	return netip.AddrFrom4(out), nil
}

// prefixBase returns the 4-byte network address of an IPv4 prefix.
func prefixBase(p netip.Prefix) []byte {
	b := p.Masked().Addr().As4()
	return b[:]
}

// prefixMask returns the 4-byte netmask of an IPv4 prefix.
func prefixMask(p netip.Prefix) []byte {
	return net.CIDRMask(p.Bits(), 32)
}

// prefixHostMask returns the inverted netmask, selecting host bits.
func prefixHostMask(p netip.Prefix) []byte {
	m := net.CIDRMask(p.Bits(), 32)
	out := make([]byte, 4)
	for i := range out {
		out[i] = ^m[i]
	}
	return out
}
