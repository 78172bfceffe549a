package config

import (
	"net/netip"
	"testing"

	"github.com/RogueNAND/tailnat/internal/errors"
)

func validSite() SiteConfig {
	return SiteConfig{
		LANInterface:  "auto",
		LocalSubnet:   "192.168.10.0/24",
		VirtualSubnet: "100.64.42.0/24",
		MeshInterface: "tailscale0",
	}
}

func TestValidate_OK(t *testing.T) {
	site, err := validSite().Validate()
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if site.LocalSubnet != netip.MustParsePrefix("192.168.10.0/24") {
		t.Errorf("local subnet = %s", site.LocalSubnet)
	}
	if site.VirtualSubnet != netip.MustParsePrefix("100.64.42.0/24") {
		t.Errorf("virtual subnet = %s", site.VirtualSubnet)
	}
	if site.AllowLANToMesh {
		t.Error("allow_lan_to_mesh should default to false")
	}
}

func TestValidate_NormalizesToNetworkAddress(t *testing.T) {
	c := validSite()
	c.LocalSubnet = "192.168.10.37/24"

	site, err := c.Validate()
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got := site.LocalSubnet.String(); got != "192.168.10.0/24" {
		t.Errorf("expected masked subnet, got %s", got)
	}
}

func TestValidate_EqualSubnets(t *testing.T) {
	c := validSite()
	c.VirtualSubnet = c.LocalSubnet

	_, err := c.Validate()
	if err == nil {
		t.Fatal("expected error for equal subnets")
	}
	if !errors.HasCode(err, errors.CodeInvalidSubnet) {
		t.Errorf("code = %s, want INVALID_SUBNET", errors.CodeOf(err))
	}
}

func TestValidate_MismatchedPrefixLengths(t *testing.T) {
	c := validSite()
	c.VirtualSubnet = "100.64.42.0/25"

	_, err := c.Validate()
	if err == nil {
		t.Fatal("expected error for mismatched prefix lengths")
	}
	if !errors.HasCode(err, errors.CodeInvalidSubnet) {
		t.Errorf("code = %s, want INVALID_SUBNET", errors.CodeOf(err))
	}
}

func TestValidate_BadCIDR(t *testing.T) {
	for _, bad := range []string{"not-a-subnet", "192.168.10.0", "192.168.10.0/33", ""} {
		c := validSite()
		c.LocalSubnet = bad
		if _, err := c.Validate(); !errors.HasCode(err, errors.CodeInvalidSubnet) {
			t.Errorf("local_subnet=%q: expected INVALID_SUBNET, got %v", bad, err)
		}
	}
}

func TestValidate_RejectsIPv6(t *testing.T) {
	c := validSite()
	c.VirtualSubnet = "fd7a:115c::/64"

	if _, err := c.Validate(); !errors.HasCode(err, errors.CodeInvalidSubnet) {
		t.Errorf("expected INVALID_SUBNET for IPv6, got %v", err)
	}
}

func TestValidate_MissingInterfaces(t *testing.T) {
	c := validSite()
	c.LANInterface = ""
	if _, err := c.Validate(); !errors.HasCode(err, errors.CodeInvalidConfig) {
		t.Errorf("expected INVALID_CONFIG for empty lan_interface, got %v", err)
	}

	c = validSite()
	c.MeshInterface = ""
	if _, err := c.Validate(); !errors.HasCode(err, errors.CodeInvalidConfig) {
		t.Errorf("expected INVALID_CONFIG for empty mesh_interface, got %v", err)
	}
}
