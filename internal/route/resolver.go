// Package route resolves the symbolic LAN interface selector against
// the live host: a literal name is verified to exist, the "auto"
// sentinel is resolved via the IPv4 default route.
package route

import (
	"fmt"
	"log/slog"

	"github.com/vishvananda/netlink"

	"github.com/RogueNAND/tailnat/internal/config"
	"github.com/RogueNAND/tailnat/internal/errors"
)

// Netlinker is the seam over vishvananda/netlink used by the resolver,
// substitutable in tests.
type Netlinker interface {
	LinkByName(name string) (netlink.Link, error)
	LinkByIndex(index int) (netlink.Link, error)
	RouteList(link netlink.Link, family int) ([]netlink.Route, error)
}

// Resolver answers "which concrete interface is the LAN" once per
// activation. Results are never cached: the default route can move
// between boots.
type Resolver struct {
	nl     Netlinker
	logger *slog.Logger
}

// New creates a Resolver on the given Netlinker.
func New(nl Netlinker, logger *slog.Logger) (*Resolver, error) {
	if nl == nil {
		return nil, fmt.Errorf("new resolver: netlinker is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("new resolver: logger is required")
	}
	return &Resolver{nl: nl, logger: logger.With("component", "route")}, nil
}

// Resolve maps a selector to a live interface name. Read-only; fails
// with INTERFACE_NOT_FOUND for a dead literal name and NO_DEFAULT_ROUTE
// when "auto" finds nothing to follow.
func (r *Resolver) Resolve(selector string) (string, error) {
	if selector != config.AutoSelector {
		if _, err := r.nl.LinkByName(selector); err != nil {
			if isLinkNotFound(err) {
				return "", errors.Errorf(errors.CodeInterfaceNotFound,
					"lan interface %q does not exist on this host", selector)
			}
			return "", fmt.Errorf("look up interface %s: %w", selector, err)
		}
		r.logger.Debug("lan_interface_resolved",
			"selector", selector,
			"interface", selector,
		)
		return selector, nil
	}

	routes, err := r.nl.RouteList(nil, netlink.FAMILY_V4)
	if err != nil {
		return "", fmt.Errorf("list IPv4 routes: %w", err)
	}

	for _, rt := range routes {
		if !isDefaultRoute(rt) {
			continue
		}
		link, err := r.nl.LinkByIndex(rt.LinkIndex)
		if err != nil {
			return "", fmt.Errorf("look up interface index %d: %w", rt.LinkIndex, err)
		}
		name := link.Attrs().Name
		r.logger.Debug("lan_interface_resolved",
			"selector", selector,
			"interface", name,
			"gateway", rt.Gw.String(),
		)
		return name, nil
	}

	return "", errors.Errorf(errors.CodeNoDefaultRoute,
		"no IPv4 default route found; cannot resolve lan_interface %q", config.AutoSelector)
}

// isDefaultRoute reports whether rt is a 0.0.0.0/0 route.
func isDefaultRoute(rt netlink.Route) bool {
	if rt.LinkIndex == 0 {
		return false
	}
	if rt.Dst == nil {
		return true
	}
	ones, _ := rt.Dst.Mask.Size()
	return ones == 0 && rt.Dst.IP.IsUnspecified()
}
