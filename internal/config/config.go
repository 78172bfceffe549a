package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// DefaultPath is consulted when no --config flag is given.
const DefaultPath = "/etc/tailnat/config.yaml"

// Config holds all configuration for tailnat.
type Config struct {
	Site    SiteConfig    `koanf:"site"`
	Journal JournalConfig `koanf:"journal"`
	Logging LoggingConfig `koanf:"logging"`
	DevMode bool          `koanf:"dev_mode"`
}

// SiteConfig describes one translated site: which LAN to expose and
// under which virtual subnet the mesh reaches it.
type SiteConfig struct {
	// LANInterface is a literal interface name, or "auto" to use the
	// interface owning the IPv4 default route.
	LANInterface string `koanf:"lan_interface"`

	// LocalSubnet is the real LAN network reachable from this host.
	LocalSubnet string `koanf:"local_subnet"`

	// VirtualSubnet is the network advertised to the mesh in place of
	// LocalSubnet. Must be unique across sites.
	VirtualSubnet string `koanf:"virtual_subnet"`

	// MeshInterface is the mesh client's virtual interface.
	MeshInterface string `koanf:"mesh_interface"`

	// AllowLANToMesh selects gateway mode (LAN hosts may originate
	// traffic into the mesh) instead of translator mode (mesh-to-LAN
	// only).
	AllowLANToMesh bool `koanf:"allow_lan_to_mesh"`
}

// JournalConfig holds activation journal settings.
type JournalConfig struct {
	Path string `koanf:"path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Load reads configuration with priority: flags > env > yaml file > defaults.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", configPath, err)
		}
	}

	// Environment variables: TAILNAT_SITE_LOCAL_SUBNET and friends.
	// Only the first underscore separates the section from the key.
	if err := k.Load(env.Provider("TAILNAT_", ".", func(s string) string {
		return strings.Replace(
			strings.ToLower(strings.TrimPrefix(s, "TAILNAT_")),
			"_", ".", 1,
		)
	}), nil); err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, fmt.Errorf("load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"site.lan_interface":     AutoSelector,
		"site.mesh_interface":    "tailscale0",
		"site.allow_lan_to_mesh": false,
		"journal.path":           "/var/lib/tailnat/journal.db",
		"logging.level":          "info",
		"logging.format":         "json",
		"dev_mode":               false,
	}

	for key, val := range defaults {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}
