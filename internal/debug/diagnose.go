// Package debug reports whether the host satisfies the translator's
// environmental preconditions before anything is applied.
package debug

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/RogueNAND/tailnat/internal/config"
	"github.com/RogueNAND/tailnat/internal/nat"
)

// CheckStatus represents the result of a diagnostic check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds one diagnostic check outcome.
type CheckResult struct {
	Status  CheckStatus `json:"status"`
	Message string      `json:"message"`
}

// InterfaceResolver is the subset of the route resolver used here.
type InterfaceResolver interface {
	Resolve(selector string) (string, error)
}

// DiagnoseResult holds the complete diagnostic report.
type DiagnoseResult struct {
	Version   string        `json:"version"`
	GoVersion string        `json:"go_version"`
	OS        string        `json:"os"`
	Arch      string        `json:"arch"`
	Kernel    string        `json:"kernel"`
	Checks    []CheckResult `json:"checks"`
}

// Config holds dependencies for the diagnose command.
type Config struct {
	Version     string
	Site        config.SiteConfig
	JournalPath string
	Forwarding  nat.ForwardingChecker
	Engine      nat.Applier
	Resolver    InterfaceResolver
	JSONOutput  bool
	Writer      io.Writer
}

// Run executes all diagnostic checks and writes the report to the
// configured writer. Run never fails on a FAIL check; callers inspect
// the report.
func Run(cfg Config) error {
	if cfg.Writer == nil {
		cfg.Writer = os.Stdout
	}

	result := DiagnoseResult{
		Version:   cfg.Version,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		Kernel:    DetectKernelVersion(),
	}

	result.Checks = runChecks(cfg)

	if cfg.JSONOutput {
		enc := json.NewEncoder(cfg.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	return writeTextReport(cfg.Writer, result)
}

func runChecks(cfg Config) []CheckResult {
	var checks []CheckResult

	checks = append(checks, checkSiteConfig(cfg))
	checks = append(checks, checkIPForward(cfg.Forwarding))
	checks = append(checks, checkRuleEngine(cfg.Engine))
	checks = append(checks, checkCapabilities())
	checks = append(checks, checkJournalDir(cfg.JournalPath))

	return checks
}

// checkSiteConfig validates the config and resolves both interfaces,
// folding the outcome into one or more check lines.
func checkSiteConfig(cfg Config) CheckResult {
	site, err := cfg.Site.Validate()
	if err != nil {
		return CheckResult{StatusFail, fmt.Sprintf("Site configuration invalid: %v", err)}
	}

	if cfg.Resolver == nil {
		return CheckResult{StatusWarn, "Site configuration valid; interface resolution skipped"}
	}

	lan, err := cfg.Resolver.Resolve(site.LANSelector)
	if err != nil {
		return CheckResult{StatusFail, fmt.Sprintf("LAN interface: %v", err)}
	}
	if _, err := cfg.Resolver.Resolve(site.MeshInterface); err != nil {
		return CheckResult{StatusFail, fmt.Sprintf("Mesh interface %s not present (is the mesh client running?)", site.MeshInterface)}
	}

	return CheckResult{StatusPass, fmt.Sprintf("Site configuration valid (%s -> %s via %s)", site.VirtualSubnet, site.LocalSubnet, lan)}
}

func checkIPForward(fw nat.ForwardingChecker) CheckResult {
	if fw == nil {
		return CheckResult{StatusWarn, "Cannot read IPv4 forwarding status"}
	}
	enabled, err := fw.Enabled()
	if err != nil {
		return CheckResult{StatusWarn, "Cannot read IPv4 forwarding status"}
	}
	if enabled {
		return CheckResult{StatusPass, "IP forwarding enabled (v4)"}
	}
	return CheckResult{StatusFail, "IP forwarding disabled (v4); rules would have no effect"}
}

func checkRuleEngine(engine nat.Applier) CheckResult {
	if engine == nil {
		return CheckResult{StatusWarn, "Rule engine check skipped"}
	}
	active, err := engine.Active()
	if err != nil {
		return CheckResult{StatusFail, fmt.Sprintf("nftables unavailable: %v", err)}
	}
	if active {
		return CheckResult{StatusPass, "nftables reachable; tailnat table installed"}
	}
	return CheckResult{StatusPass, "nftables reachable; tailnat table not installed"}
}

func checkCapabilities() CheckResult {
	data, err := os.ReadFile("/proc/self/status")
	if err != nil {
		return CheckResult{StatusWarn, "Cannot read process capabilities"}
	}

	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "CapEff:") {
			continue
		}
		hexVal := strings.TrimSpace(strings.TrimPrefix(line, "CapEff:"))
		var caps uint64
		fmt.Sscanf(hexVal, "%x", &caps)

		// CAP_NET_ADMIN = 12
		if caps&(1<<12) != 0 {
			return CheckResult{StatusPass, "CAP_NET_ADMIN capability"}
		}
		return CheckResult{StatusFail, "CAP_NET_ADMIN capability missing"}
	}

	return CheckResult{StatusWarn, "Cannot parse process capabilities"}
}

func checkJournalDir(path string) CheckResult {
	if path == "" {
		return CheckResult{StatusWarn, "Journal path not configured"}
	}
	dir := path
	if i := strings.LastIndex(path, "/"); i > 0 {
		dir = path[:i]
	}
	info, err := os.Stat(dir)
	if err != nil {
		return CheckResult{StatusFail, fmt.Sprintf("Journal directory %s does not exist", dir)}
	}
	if !info.IsDir() {
		return CheckResult{StatusFail, fmt.Sprintf("%s is not a directory", dir)}
	}

	testFile := dir + "/.tailnat_diag_test"
	if err := os.WriteFile(testFile, []byte("test"), 0600); err != nil {
		return CheckResult{StatusFail, fmt.Sprintf("Journal directory %s is not writable", dir)}
	}
	os.Remove(testFile)

	return CheckResult{StatusPass, fmt.Sprintf("Journal directory %s exists and writable", dir)}
}

// DetectKernelVersion returns the running kernel release string.
func DetectKernelVersion() string {
	data, err := os.ReadFile("/proc/version")
	if err != nil {
		return "unknown"
	}
	fields := strings.Fields(string(data))
	if len(fields) >= 3 {
		return fields[2]
	}
	return "unknown"
}

func writeTextReport(w io.Writer, r DiagnoseResult) error {
	fmt.Fprintf(w, "\ntailnat diagnostic report\n")
	fmt.Fprintf(w, "=========================\n")
	fmt.Fprintf(w, "Version:     %s\n", r.Version)
	fmt.Fprintf(w, "Go:          %s\n", r.GoVersion)
	fmt.Fprintf(w, "OS:          %s/%s\n", r.OS, r.Arch)
	fmt.Fprintf(w, "Kernel:      %s\n", r.Kernel)
	fmt.Fprintf(w, "\n")

	for _, c := range r.Checks {
		fmt.Fprintf(w, "[%s] %s\n", c.Status, c.Message)
	}
	fmt.Fprintf(w, "\n")

	return nil
}
