package nat

import (
	"net/netip"
	"testing"

	"github.com/RogueNAND/tailnat/internal/config"
)

func testSite(allow bool) config.Site {
	return config.Site{
		LANSelector:    "auto",
		LocalSubnet:    netip.MustParsePrefix("192.168.10.0/24"),
		VirtualSubnet:  netip.MustParsePrefix("100.64.42.0/24"),
		MeshInterface:  "tailscale0",
		AllowLANToMesh: allow,
	}
}

func TestPlan_FiveRulesInOrder(t *testing.T) {
	rules := Plan(testSite(false), "enp3s0")

	if len(rules) != 5 {
		t.Fatalf("expected 5 rules, got %d", len(rules))
	}

	wantKinds := []RuleKind{
		RuleNetmapDNAT,
		RuleMasquerade,
		RuleForwardMeshToLAN,
		RuleForwardPolicy,
		RuleForwardReturn,
	}
	for i, want := range wantKinds {
		if rules[i].Kind != want {
			t.Errorf("rules[%d].Kind = %s, want %s", i, rules[i].Kind, want)
		}
	}
}

func TestPlan_NetmapRule(t *testing.T) {
	rules := Plan(testSite(false), "enp3s0")

	r := rules[0]
	if r.InInterface != "tailscale0" {
		t.Errorf("netmap in-interface = %q", r.InInterface)
	}
	if r.Dst.String() != "100.64.42.0/24" {
		t.Errorf("netmap dst = %s", r.Dst)
	}
	if r.MapTo.String() != "192.168.10.0/24" {
		t.Errorf("netmap map-to = %s", r.MapTo)
	}
}

func TestPlan_MasqueradeRule(t *testing.T) {
	rules := Plan(testSite(false), "enp3s0")

	r := rules[1]
	if r.OutInterface != "enp3s0" {
		t.Errorf("masquerade out-interface = %q", r.OutInterface)
	}
	if r.Src.String() != "100.64.42.0/24" {
		t.Errorf("masquerade src = %s", r.Src)
	}
}

func TestPlan_MeshToLANAlwaysAllowed(t *testing.T) {
	for _, allow := range []bool{true, false} {
		rules := Plan(testSite(allow), "enp3s0")

		r := rules[2]
		if r.Kind != RuleForwardMeshToLAN {
			t.Fatalf("allow=%v: rules[2].Kind = %s", allow, r.Kind)
		}
		if r.InInterface != "tailscale0" || r.OutInterface != "enp3s0" {
			t.Errorf("allow=%v: mesh-to-lan interfaces = %q -> %q", allow, r.InInterface, r.OutInterface)
		}
		if r.Src.String() != "100.64.42.0/24" || r.Dst.String() != "192.168.10.0/24" {
			t.Errorf("allow=%v: mesh-to-lan match = %s -> %s", allow, r.Src, r.Dst)
		}
	}
}

func TestPlan_PolicyFollowsFlag(t *testing.T) {
	if r := Plan(testSite(false), "enp3s0")[3]; r.Allow {
		t.Error("translator mode: policy rule should be a drop")
	}
	if r := Plan(testSite(true), "enp3s0")[3]; !r.Allow {
		t.Error("gateway mode: policy rule should be an accept")
	}
}

func TestPlan_ReturnRuleDirection(t *testing.T) {
	r := Plan(testSite(false), "enp3s0")[4]
	if r.InInterface != "enp3s0" || r.OutInterface != "tailscale0" {
		t.Errorf("return rule interfaces = %q -> %q, want enp3s0 -> tailscale0", r.InInterface, r.OutInterface)
	}
}
