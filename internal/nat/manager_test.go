package nat

import (
	goerrors "errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/RogueNAND/tailnat/internal/errors"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingApplier mimics the kernel table: Apply replaces its
// contents wholesale.
type recordingApplier struct {
	installed []Rule
	hasTable  bool
	applies   int
}

func (a *recordingApplier) Apply(rules []Rule) error {
	a.applies++
	a.installed = append([]Rule(nil), rules...)
	a.hasTable = len(rules) > 0
	return nil
}

func (a *recordingApplier) Active() (bool, error) { return a.hasTable, nil }

// failApplier always rejects.
type failApplier struct{}

func (failApplier) Apply([]Rule) error {
	return errors.Errorf(errors.CodeRuleApplyFailed, "apply failed")
}
func (failApplier) Active() (bool, error) { return false, nil }

// staticForwarding reports a fixed ip_forward state.
type staticForwarding struct {
	enabled bool
	err     error
}

func (f staticForwarding) Enabled() (bool, error) { return f.enabled, f.err }

func newTestManager(t *testing.T, applier Applier) *Manager {
	t.Helper()
	m, err := NewManager(applier, staticForwarding{enabled: true}, testLogger(), false)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestNewManager_MissingDeps(t *testing.T) {
	if _, err := NewManager(nil, staticForwarding{}, testLogger(), false); err == nil {
		t.Error("expected error for nil applier")
	}
	if _, err := NewManager(&recordingApplier{}, nil, testLogger(), false); err == nil {
		t.Error("expected error for nil forwarding checker")
	}
	if _, err := NewManager(&recordingApplier{}, staticForwarding{}, nil, false); err == nil {
		t.Error("expected error for nil logger")
	}
}

func TestUp_InstallsRules(t *testing.T) {
	applier := &recordingApplier{}
	m := newTestManager(t, applier)

	rules := Plan(testSite(false), "enp3s0")
	if err := m.Up(rules); err != nil {
		t.Fatalf("Up: %v", err)
	}

	if len(applier.installed) != 5 {
		t.Errorf("installed %d rules, want 5", len(applier.installed))
	}
	if active, _ := m.Active(); !active {
		t.Error("table should be active after Up")
	}
}

func TestUp_Idempotent(t *testing.T) {
	applier := &recordingApplier{}
	m := newTestManager(t, applier)

	rules := Plan(testSite(false), "enp3s0")
	if err := m.Up(rules); err != nil {
		t.Fatal(err)
	}
	if err := m.Up(rules); err != nil {
		t.Fatal(err)
	}

	// Second activation replaces, never accumulates.
	if len(applier.installed) != 5 {
		t.Errorf("after double Up the engine holds %d rules, want 5", len(applier.installed))
	}
	if applier.applies != 2 {
		t.Errorf("applies = %d, want 2", applier.applies)
	}
}

func TestUpDown_RoundTrip(t *testing.T) {
	applier := &recordingApplier{}
	m := newTestManager(t, applier)

	if err := m.Up(Plan(testSite(false), "enp3s0")); err != nil {
		t.Fatal(err)
	}
	if err := m.Down(); err != nil {
		t.Fatalf("Down: %v", err)
	}

	if len(applier.installed) != 0 {
		t.Errorf("engine holds %d rules after Down, want 0", len(applier.installed))
	}
	if active, _ := m.Active(); active {
		t.Error("table should be gone after Down")
	}
}

func TestDown_WithoutUp(t *testing.T) {
	m := newTestManager(t, &recordingApplier{})
	if err := m.Down(); err != nil {
		t.Fatalf("Down on a never-activated host should succeed: %v", err)
	}
}

func TestUp_ForwardingDisabled(t *testing.T) {
	applier := &recordingApplier{}
	m, err := NewManager(applier, staticForwarding{enabled: false}, testLogger(), false)
	if err != nil {
		t.Fatal(err)
	}

	err = m.Up(Plan(testSite(false), "enp3s0"))
	if err == nil {
		t.Fatal("expected precondition failure")
	}
	if !errors.HasCode(err, errors.CodeForwardingDisabled) {
		t.Errorf("code = %s, want FORWARDING_DISABLED", errors.CodeOf(err))
	}
	if applier.applies != 0 {
		t.Error("nothing may be applied when forwarding is off")
	}
}

func TestUp_ForwardingCheckError(t *testing.T) {
	m, err := NewManager(&recordingApplier{}, staticForwarding{err: goerrors.New("proc unreadable")}, testLogger(), false)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Up(nil); !errors.HasCode(err, errors.CodeForwardingDisabled) {
		t.Errorf("expected FORWARDING_DISABLED, got %v", err)
	}
}

func TestUp_ApplyError(t *testing.T) {
	m := newTestManager(t, failApplier{})

	err := m.Up(Plan(testSite(false), "enp3s0"))
	if err == nil {
		t.Fatal("expected apply error")
	}
	if !errors.HasCode(err, errors.CodeRuleApplyFailed) {
		t.Errorf("code = %s, want RULE_APPLY_FAILED", errors.CodeOf(err))
	}

	// The failed rule set must not be reported as current.
	if dump := m.DumpRules(); strings.Contains(dump, "masquerade") {
		t.Errorf("dump should be empty after failed Up:\n%s", dump)
	}
}

func TestDumpRules_ReflectsCurrent(t *testing.T) {
	m := newTestManager(t, &recordingApplier{})

	if err := m.Up(Plan(testSite(false), "enp3s0")); err != nil {
		t.Fatal(err)
	}
	dump := m.DumpRules()
	if !strings.Contains(dump, "masquerade") || !strings.Contains(dump, "dnat ip prefix to") {
		t.Errorf("dump missing expected rules:\n%s", dump)
	}

	if err := m.Down(); err != nil {
		t.Fatal(err)
	}
	if dump := m.DumpRules(); strings.Contains(dump, "masquerade") {
		t.Errorf("dump should be empty after Down:\n%s", dump)
	}
}
