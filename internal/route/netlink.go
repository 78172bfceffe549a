package route

import (
	"errors"
	"strings"

	"github.com/vishvananda/netlink"
)

// realNetlinker implements Netlinker using vishvananda/netlink.
type realNetlinker struct{}

// NewNetlinker returns a Netlinker backed by the kernel routing tables.
func NewNetlinker() Netlinker {
	return &realNetlinker{}
}

func (realNetlinker) LinkByName(name string) (netlink.Link, error) {
	return netlink.LinkByName(name)
}

func (realNetlinker) LinkByIndex(index int) (netlink.Link, error) {
	return netlink.LinkByIndex(index)
}

func (realNetlinker) RouteList(link netlink.Link, family int) ([]netlink.Route, error) {
	return netlink.RouteList(link, family)
}

// isLinkNotFound distinguishes "no such interface" from transport
// failures when talking to rtnetlink.
func isLinkNotFound(err error) bool {
	var lnfe netlink.LinkNotFoundError
	if errors.As(err, &lnfe) {
		return true
	}
	// Fallback: match error message.
	return strings.Contains(err.Error(), "not found") ||
		strings.Contains(err.Error(), "no such device")
}
