package nat

import (
	"net/netip"

	"github.com/RogueNAND/tailnat/internal/config"
)

// RuleKind identifies the type of translation rule.
type RuleKind string

const (
	// RuleNetmapDNAT rewrites destinations in the virtual subnet to the
	// corresponding address in the local subnet, preserving host bits.
	RuleNetmapDNAT RuleKind = "netmap_dnat"

	// RuleMasquerade source-translates traffic leaving the LAN interface
	// so replies route back through this host.
	RuleMasquerade RuleKind = "masquerade"

	// RuleForwardMeshToLAN permits forwarding of translated mesh traffic
	// into the LAN. Always installed.
	RuleForwardMeshToLAN RuleKind = "forward_mesh_to_lan"

	// RuleForwardPolicy is the LAN-to-mesh verdict: accept in gateway
	// mode, an explicit drop in translator mode.
	RuleForwardPolicy RuleKind = "forward_policy"

	// RuleForwardReturn accepts established/related reply traffic from
	// the LAN back into the mesh. Required in translator mode, where the
	// policy verdict would otherwise drop replies to mesh-initiated
	// flows.
	RuleForwardReturn RuleKind = "forward_return"
)

// Rule is one translation rule. The zero value of a field means the
// rule does not match on it.
type Rule struct {
	Kind RuleKind

	InInterface  string
	OutInterface string

	Src netip.Prefix
	Dst netip.Prefix

	// MapTo is the destination network for NETMAP rewriting.
	MapTo netip.Prefix

	// Allow is the forward_policy verdict.
	Allow bool
}

// Plan computes the ordered rule set for a validated site and a
// resolved LAN interface. The order is fixed: NAT rules first, then
// forwarding rules. Pure; no host state is consulted.
func Plan(site config.Site, lanIface string) []Rule {
	return []Rule{
		{
			Kind:        RuleNetmapDNAT,
			InInterface: site.MeshInterface,
			Dst:         site.VirtualSubnet,
			MapTo:       site.LocalSubnet,
		},
		{
			Kind:         RuleMasquerade,
			OutInterface: lanIface,
			Src:          site.VirtualSubnet,
		},
		{
			Kind:         RuleForwardMeshToLAN,
			InInterface:  site.MeshInterface,
			OutInterface: lanIface,
			Src:          site.VirtualSubnet,
			Dst:          site.LocalSubnet,
		},
		{
			Kind:         RuleForwardPolicy,
			InInterface:  lanIface,
			OutInterface: site.MeshInterface,
			Allow:        site.AllowLANToMesh,
		},
		{
			Kind:         RuleForwardReturn,
			InInterface:  lanIface,
			OutInterface: site.MeshInterface,
		},
	}
}
