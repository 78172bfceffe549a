package nat

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/RogueNAND/tailnat/internal/errors"
)

// Manager drives the translator lifecycle: precondition checks, rule
// application on activation, teardown on stop. One instance per host;
// sequential re-invocation is safe, concurrent invocation is not
// guarded beyond the internal mutex.
type Manager struct {
	applier    Applier
	forwarding ForwardingChecker
	logger     *slog.Logger
	devMode    bool

	mu      sync.Mutex
	current []Rule
}

// NewManager creates a Manager with the given dependencies.
func NewManager(applier Applier, forwarding ForwardingChecker, logger *slog.Logger, devMode bool) (*Manager, error) {
	if applier == nil {
		return nil, fmt.Errorf("new nat manager: applier is required")
	}
	if forwarding == nil {
		return nil, fmt.Errorf("new nat manager: forwarding checker is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("new nat manager: logger is required")
	}
	return &Manager{
		applier:    applier,
		forwarding: forwarding,
		logger:     logger.With("component", "nat"),
		devMode:    devMode,
	}, nil
}

// Up installs the rule set, replacing any previously installed version.
// A failed apply leaves whatever the engine reports and surfaces the
// error; cleanup is the caller's explicit Down, never implicit.
func (m *Manager) Up(rules []Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.Debug("nat_up_start",
		"rule_count", len(rules),
		"operation", "up",
	)

	enabled, err := m.forwarding.Enabled()
	if err != nil {
		return errors.WithCode(errors.CodeForwardingDisabled,
			fmt.Errorf("check ip_forward: %w", err))
	}
	if !enabled {
		return errors.Errorf(errors.CodeForwardingDisabled,
			"net.ipv4.ip_forward is 0; enable IPv4 forwarding before activating the translator")
	}

	if err := m.applier.Apply(rules); err != nil {
		m.logger.Error("nat_apply_failed",
			"error", err,
			"error_code", string(errors.CodeOf(err)),
			"operation", "up",
		)
		return fmt.Errorf("apply translation rules: %w", err)
	}

	m.current = append([]Rule(nil), rules...)

	m.logDevDump("up")
	m.logger.Info("nat_rules_applied",
		"rule_count", len(rules),
		"operation", "up",
	)
	return nil
}

// Down removes every rule attributable to the translator. Absence of
// the rules is success, so teardown can run on a host that was never
// activated.
func (m *Manager) Down() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.Debug("nat_down_start", "operation", "down")

	if err := m.applier.Apply(nil); err != nil {
		m.logger.Error("nat_apply_failed",
			"error", err,
			"error_code", string(errors.CodeOf(err)),
			"operation", "down",
		)
		return fmt.Errorf("remove translation rules: %w", err)
	}

	m.current = nil

	m.logger.Info("nat_rules_removed", "operation", "down")
	return nil
}

// Active reports whether the translator's table is currently installed.
func (m *Manager) Active() (bool, error) {
	return m.applier.Active()
}

// DumpRules returns the nftables-style rendering of the rule set from
// the most recent successful Up.
func (m *Manager) DumpRules() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return FormatRules(m.current)
}

// logDevDump logs the full ruleset after a change in dev mode.
// Must be called with m.mu held.
func (m *Manager) logDevDump(action string) {
	if !m.devMode {
		return
	}
	m.logger.Debug("nat_ruleset_after_change",
		"action", action,
		"ruleset", FormatRules(m.current),
	)
}
