package nat

// Applier abstracts the kernel packet-filter operations for testability.
// The real implementation owns a dedicated nftables table and translates
// rules into google/nftables API calls.
type Applier interface {
	// Apply replaces all rules in the managed nftables table with the
	// given set, atomically. An empty slice removes the table entirely.
	// Re-applying an identical set never accumulates duplicate rules.
	Apply(rules []Rule) error

	// Active reports whether the managed table currently exists.
	Active() (bool, error)
}

// ForwardingChecker reports whether the kernel will forward IPv4
// packets at all. None of the planned rules have any effect without it,
// so activation fails fast when it is off.
type ForwardingChecker interface {
	Enabled() (bool, error)
}
