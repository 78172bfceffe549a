package nat

import (
	"fmt"
	"os"
	"strings"
)

const ipForwardPath = "/proc/sys/net/ipv4/ip_forward"

// procForwardingChecker reads the kernel IPv4 forwarding toggle from
// procfs. The toggle is an environmental precondition shared with other
// components; tailnat only checks it, it never sets it.
type procForwardingChecker struct {
	path string
}

// NewForwardingChecker returns a ForwardingChecker backed by
// /proc/sys/net/ipv4/ip_forward.
func NewForwardingChecker() ForwardingChecker {
	return &procForwardingChecker{path: ipForwardPath}
}

func (c *procForwardingChecker) Enabled() (bool, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", c.path, err)
	}
	return strings.TrimSpace(string(data)) == "1", nil
}
