package config

import (
	"net/netip"

	"github.com/RogueNAND/tailnat/internal/errors"
)

// AutoSelector is the sentinel LAN interface value that resolves to the
// interface owning the IPv4 default route.
const AutoSelector = "auto"

// Site is a validated, parsed SiteConfig. Subnets are normalized to
// their masked network address.
type Site struct {
	LANSelector    string
	LocalSubnet    netip.Prefix
	VirtualSubnet  netip.Prefix
	MeshInterface  string
	AllowLANToMesh bool
}

// Validate parses and checks the raw site configuration. All failures
// carry a stable error code; nothing may be planned or applied from a
// config that fails here.
func (c SiteConfig) Validate() (Site, error) {
	if c.LANInterface == "" {
		return Site{}, errors.Errorf(errors.CodeInvalidConfig, "site.lan_interface must be set (interface name or %q)", AutoSelector)
	}
	if c.MeshInterface == "" {
		return Site{}, errors.Errorf(errors.CodeInvalidConfig, "site.mesh_interface must be set")
	}

	local, err := parseIPv4Subnet("site.local_subnet", c.LocalSubnet)
	if err != nil {
		return Site{}, err
	}
	virtual, err := parseIPv4Subnet("site.virtual_subnet", c.VirtualSubnet)
	if err != nil {
		return Site{}, err
	}

	if local == virtual {
		return Site{}, errors.Errorf(errors.CodeInvalidSubnet,
			"site.local_subnet and site.virtual_subnet are both %s; the virtual subnet must differ from the LAN it stands in for", local)
	}
	// The prefix translation preserves host bits, so it is only
	// well-defined when both networks are the same size.
	if local.Bits() != virtual.Bits() {
		return Site{}, errors.Errorf(errors.CodeInvalidSubnet,
			"subnet prefix lengths differ (%s vs %s); 1:1 address mapping requires equal sizes", local, virtual)
	}

	return Site{
		LANSelector:    c.LANInterface,
		LocalSubnet:    local,
		VirtualSubnet:  virtual,
		MeshInterface:  c.MeshInterface,
		AllowLANToMesh: c.AllowLANToMesh,
	}, nil
}

func parseIPv4Subnet(key, value string) (netip.Prefix, error) {
	if value == "" {
		return netip.Prefix{}, errors.Errorf(errors.CodeInvalidSubnet, "%s must be set", key)
	}
	p, err := netip.ParsePrefix(value)
	if err != nil {
		return netip.Prefix{}, errors.Errorf(errors.CodeInvalidSubnet, "%s: %v", key, err)
	}
	if !p.Addr().Is4() {
		return netip.Prefix{}, errors.Errorf(errors.CodeInvalidSubnet, "%s: %s is not an IPv4 network", key, value)
	}
	return p.Masked(), nil
}
