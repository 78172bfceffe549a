// Package testutil provides shared fakes for tests across packages.
package testutil

import (
	"sync"

	"github.com/RogueNAND/tailnat/internal/nat"
)

// FakeApplier implements nat.Applier recording every Apply call.
type FakeApplier struct {
	mu        sync.Mutex
	applies   [][]nat.Rule
	installed bool

	ApplyErr  error
	ActiveErr error
}

func (f *FakeApplier) Apply(rules []nat.Rule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ApplyErr != nil {
		return f.ApplyErr
	}
	cp := make([]nat.Rule, len(rules))
	copy(cp, rules)
	f.applies = append(f.applies, cp)
	f.installed = len(rules) > 0
	return nil
}

func (f *FakeApplier) Active() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ActiveErr != nil {
		return false, f.ActiveErr
	}
	return f.installed, nil
}

// Applies returns a copy of all recorded Apply calls.
func (f *FakeApplier) Applies() [][]nat.Rule {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]nat.Rule, len(f.applies))
	copy(out, f.applies)
	return out
}

// Installed reports whether the last Apply left rules in place.
func (f *FakeApplier) Installed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.installed
}

// FakeForwarding implements nat.ForwardingChecker with a fixed answer.
type FakeForwarding struct {
	On  bool
	Err error
}

func (f *FakeForwarding) Enabled() (bool, error) {
	return f.On, f.Err
}

// FakeResolver maps selectors to interface names for tests.
type FakeResolver struct {
	Names map[string]string
	Errs  map[string]error

	mu    sync.Mutex
	calls []string
}

func (f *FakeResolver) Resolve(selector string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, selector)
	f.mu.Unlock()
	if err, ok := f.Errs[selector]; ok {
		return "", err
	}
	if name, ok := f.Names[selector]; ok {
		return name, nil
	}
	return selector, nil
}

// Calls returns the selectors passed to Resolve in order.
func (f *FakeResolver) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}
