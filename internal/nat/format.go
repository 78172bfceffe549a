package nat

import (
	"fmt"
	"strings"
)

// FormatRules renders a rule set as nftables-style text, in the order
// the kernel would evaluate it. The output is deterministic and is what
// `tailnat plan` prints and the activation journal stores.
func FormatRules(rules []Rule) string {
	if len(rules) == 0 {
		return "table ip " + tableName + " {\n}"
	}

	var pre, post, fwd []string
	for _, r := range sortForward(rules) {
		switch r.Kind {
		case RuleNetmapDNAT:
			pre = append(pre, fmt.Sprintf(
				"    iifname %q ip daddr %s dnat ip prefix to %s",
				r.InInterface, r.Dst, r.MapTo))
		case RuleMasquerade:
			post = append(post, fmt.Sprintf(
				"    oifname %q ip saddr %s masquerade",
				r.OutInterface, r.Src))
		case RuleForwardReturn:
			fwd = append(fwd, fmt.Sprintf(
				"    iifname %q oifname %q ct state established,related accept",
				r.InInterface, r.OutInterface))
		case RuleForwardMeshToLAN:
			fwd = append(fwd, fmt.Sprintf(
				"    iifname %q oifname %q ip saddr %s ip daddr %s accept",
				r.InInterface, r.OutInterface, r.Src, r.Dst))
		case RuleForwardPolicy:
			verdict := "drop"
			if r.Allow {
				verdict = "accept"
			}
			fwd = append(fwd, fmt.Sprintf(
				"    iifname %q oifname %q %s",
				r.InInterface, r.OutInterface, verdict))
		}
	}

	var b strings.Builder
	b.WriteString("table ip " + tableName + " {\n")

	if len(pre) > 0 {
		b.WriteString("  chain prerouting {\n")
		b.WriteString("    type nat hook prerouting priority dstnat;\n")
		writeLines(&b, pre)
		b.WriteString("  }\n")
	}
	if len(post) > 0 {
		b.WriteString("  chain postrouting {\n")
		b.WriteString("    type nat hook postrouting priority srcnat;\n")
		writeLines(&b, post)
		b.WriteString("  }\n")
	}
	if len(fwd) > 0 {
		b.WriteString("  chain forward {\n")
		b.WriteString("    type filter hook forward priority filter;\n")
		writeLines(&b, fwd)
		b.WriteString("  }\n")
	}

	b.WriteByte('}')
	return b.String()
}

func writeLines(b *strings.Builder, lines []string) {
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
}
