package nat

import (
	"fmt"
	"net/netip"

	"github.com/google/nftables"
	"github.com/google/nftables/binaryutil"
	"github.com/google/nftables/expr"
	"golang.org/x/sys/unix"

	"github.com/RogueNAND/tailnat/internal/errors"
)

const tableName = "tailnat"

// kernelApplier implements Applier using the google/nftables library.
type kernelApplier struct{}

// NewApplier creates an Applier that drives the kernel nftables API.
// Requires CAP_NET_ADMIN.
func NewApplier() Applier {
	return &kernelApplier{}
}

func (a *kernelApplier) Apply(rules []Rule) error {
	conn, err := nftables.New()
	if err != nil {
		return errors.WithCode(errors.CodeRuleEngineUnavailable,
			fmt.Errorf("nftables connect: %w", err))
	}

	// Delete any previous tailnat table. Whole-table replacement is what
	// makes re-activation idempotent: there is never a second copy of a
	// rule to accumulate.
	existing, err := findTable(conn)
	if err != nil {
		return err
	}
	if existing != nil {
		conn.DelTable(existing)
		if err := conn.Flush(); err != nil {
			return errors.WithCode(errors.CodeRuleApplyFailed,
				fmt.Errorf("nftables delete table: %w", err))
		}
	}

	if len(rules) == 0 {
		return nil
	}

	table := conn.AddTable(&nftables.Table{
		Name:   tableName,
		Family: nftables.TableFamilyIPv4,
	})

	var natPre, natPost, forward []Rule
	for _, r := range rules {
		switch r.Kind {
		case RuleNetmapDNAT:
			natPre = append(natPre, r)
		case RuleMasquerade:
			natPost = append(natPost, r)
		case RuleForwardMeshToLAN, RuleForwardPolicy, RuleForwardReturn:
			forward = append(forward, r)
		default:
			return errors.Errorf(errors.CodeRuleApplyFailed, "unknown rule kind %q", r.Kind)
		}
	}

	// NAT chains are set up before the forward chain: forwarding
	// decisions on mesh traffic are only meaningful once prerouting has
	// rewritten the destination.
	if len(natPre) > 0 {
		chain := conn.AddChain(&nftables.Chain{
			Name:     "prerouting",
			Table:    table,
			Type:     nftables.ChainTypeNAT,
			Hooknum:  nftables.ChainHookPrerouting,
			Priority: nftables.ChainPriorityNATDest,
		})
		for _, r := range natPre {
			conn.AddRule(&nftables.Rule{Table: table, Chain: chain, Exprs: netmapExprs(r)})
		}
	}

	if len(natPost) > 0 {
		chain := conn.AddChain(&nftables.Chain{
			Name:     "postrouting",
			Table:    table,
			Type:     nftables.ChainTypeNAT,
			Hooknum:  nftables.ChainHookPostrouting,
			Priority: nftables.ChainPriorityNATSource,
		})
		for _, r := range natPost {
			conn.AddRule(&nftables.Rule{Table: table, Chain: chain, Exprs: masqueradeExprs(r)})
		}
	}

	if len(forward) > 0 {
		chain := conn.AddChain(&nftables.Chain{
			Name:     "forward",
			Table:    table,
			Type:     nftables.ChainTypeFilter,
			Hooknum:  nftables.ChainHookForward,
			Priority: nftables.ChainPriorityFilter,
		})
		for _, r := range sortForward(forward) {
			exprs, err := forwardExprs(r)
			if err != nil {
				return err
			}
			conn.AddRule(&nftables.Rule{Table: table, Chain: chain, Exprs: exprs})
		}
	}

	if err := conn.Flush(); err != nil {
		return errors.WithCode(errors.CodeRuleApplyFailed,
			fmt.Errorf("nftables flush: %w", err))
	}
	return nil
}

func (a *kernelApplier) Active() (bool, error) {
	conn, err := nftables.New()
	if err != nil {
		return false, errors.WithCode(errors.CodeRuleEngineUnavailable,
			fmt.Errorf("nftables connect: %w", err))
	}
	t, err := findTable(conn)
	if err != nil {
		return false, err
	}
	return t != nil, nil
}

func findTable(conn *nftables.Conn) (*nftables.Table, error) {
	tables, err := conn.ListTables()
	if err != nil {
		return nil, errors.WithCode(errors.CodeRuleEngineUnavailable,
			fmt.Errorf("nftables list tables: %w", err))
	}
	for _, t := range tables {
		if t.Name == tableName && t.Family == nftables.TableFamilyIPv4 {
			return t, nil
		}
	}
	return nil, nil
}

// chainPosition orders rules inside the forward chain. The conntrack
// return accept must evaluate before the policy verdict or translator
// mode would drop replies to mesh-initiated flows.
func chainPosition(k RuleKind) int {
	switch k {
	case RuleForwardReturn:
		return 0
	case RuleForwardMeshToLAN:
		return 1
	default:
		return 2
	}
}

func sortForward(rules []Rule) []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && chainPosition(out[j].Kind) < chainPosition(out[j-1].Kind); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

const (
	saddrOffset = 12
	daddrOffset = 16
)

// netmapExprs builds expressions for:
//
//	iifname <mesh> ip daddr <virtual> dnat ip prefix to <local>
//
// The rewrite itself is (daddr & hostmask) | localbase, computed in a
// register by the bitwise expression and fed to the DNAT target, so
// host-suffix bits survive translation unchanged.
func netmapExprs(r Rule) []expr.Any {
	exprs := []expr.Any{
		&expr.Meta{Key: expr.MetaKeyIIFNAME, Register: 1},
		&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: ifaceBytes(r.InInterface)},
	}
	exprs = append(exprs, subnetMatchExprs(daddrOffset, r.Dst)...)
	exprs = append(exprs,
		&expr.Payload{
			DestRegister: 1,
			Base:         expr.PayloadBaseNetworkHeader,
			Offset:       daddrOffset,
			Len:          4,
		},
		&expr.Bitwise{
			SourceRegister: 1,
			DestRegister:   1,
			Len:            4,
			Mask:           prefixHostMask(r.Dst),
			Xor:            prefixBase(r.MapTo),
		},
		&expr.NAT{
			Type:       expr.NATTypeDestNAT,
			Family:     unix.NFPROTO_IPV4,
			RegAddrMin: 1,
		},
	)
	return exprs
}

// masqueradeExprs builds expressions for:
//
//	oifname <lan> ip saddr <virtual> masquerade
func masqueradeExprs(r Rule) []expr.Any {
	exprs := []expr.Any{
		&expr.Meta{Key: expr.MetaKeyOIFNAME, Register: 1},
		&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: ifaceBytes(r.OutInterface)},
	}
	exprs = append(exprs, subnetMatchExprs(saddrOffset, r.Src)...)
	return append(exprs, &expr.Masq{})
}

func forwardExprs(r Rule) ([]expr.Any, error) {
	exprs := []expr.Any{
		&expr.Meta{Key: expr.MetaKeyIIFNAME, Register: 1},
		&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: ifaceBytes(r.InInterface)},
		&expr.Meta{Key: expr.MetaKeyOIFNAME, Register: 1},
		&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: ifaceBytes(r.OutInterface)},
	}

	switch r.Kind {
	case RuleForwardMeshToLAN:
		exprs = append(exprs, subnetMatchExprs(saddrOffset, r.Src)...)
		exprs = append(exprs, subnetMatchExprs(daddrOffset, r.Dst)...)
		exprs = append(exprs, &expr.Verdict{Kind: expr.VerdictAccept})

	case RuleForwardPolicy:
		verdict := expr.VerdictDrop
		if r.Allow {
			verdict = expr.VerdictAccept
		}
		exprs = append(exprs, &expr.Verdict{Kind: verdict})

	case RuleForwardReturn:
		exprs = append(exprs, ctStateExprs(expr.CtStateBitESTABLISHED|expr.CtStateBitRELATED)...)
		exprs = append(exprs, &expr.Verdict{Kind: expr.VerdictAccept})

	default:
		return nil, errors.Errorf(errors.CodeRuleApplyFailed, "rule kind %q does not belong in the forward chain", r.Kind)
	}

	return exprs, nil
}

// subnetMatchExprs matches an IPv4 header address field against a
// prefix: load, mask, compare with the network address.
func subnetMatchExprs(offset uint32, p netip.Prefix) []expr.Any {
	return []expr.Any{
		&expr.Payload{
			DestRegister: 1,
			Base:         expr.PayloadBaseNetworkHeader,
			Offset:       offset,
			Len:          4,
		},
		&expr.Bitwise{
			SourceRegister: 1,
			DestRegister:   1,
			Len:            4,
			Mask:           prefixMask(p),
			Xor:            []byte{0, 0, 0, 0},
		},
		&expr.Cmp{
			Op:       expr.CmpOpEq,
			Register: 1,
			Data:     prefixBase(p),
		},
	}
}

// ctStateExprs matches any of the given conntrack state bits.
func ctStateExprs(stateBits uint32) []expr.Any {
	return []expr.Any{
		&expr.Ct{Key: expr.CtKeySTATE, Register: 1},
		&expr.Bitwise{
			SourceRegister: 1,
			DestRegister:   1,
			Len:            4,
			Mask:           binaryutil.NativeEndian.PutUint32(stateBits),
			Xor:            []byte{0, 0, 0, 0},
		},
		&expr.Cmp{
			Op:       expr.CmpOpNeq,
			Register: 1,
			Data:     []byte{0, 0, 0, 0},
		},
	}
}

// ifaceBytes returns the interface name as a null-terminated byte slice
// for nftables comparison expressions.
func ifaceBytes(iface string) []byte {
	b := make([]byte, len(iface)+1)
	copy(b, iface)
	return b
}
