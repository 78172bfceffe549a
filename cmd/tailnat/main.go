package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/RogueNAND/tailnat/internal/config"
	"github.com/RogueNAND/tailnat/internal/db"
	"github.com/RogueNAND/tailnat/internal/debug"
	"github.com/RogueNAND/tailnat/internal/logging"
	"github.com/RogueNAND/tailnat/internal/nat"
	"github.com/RogueNAND/tailnat/internal/route"
	"github.com/RogueNAND/tailnat/internal/sdnotify"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tailnat",
		Short:         "Virtual subnet NAT for mesh networks",
		Long:          "tailnat maps a mesh-advertised virtual subnet onto the local LAN using nftables.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("config", "", "path to config file (default: /etc/tailnat/config.yaml)")
	root.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-format", "", "log format (json, text)")
	root.PersistentFlags().Bool("dev-mode", false, "enable development mode")

	root.AddCommand(
		newUpCmd(),
		newDownCmd(),
		newPlanCmd(),
		newStatusCmd(),
		newDiagnoseCmd(),
		newVersionCmd(),
	)

	return root
}

// loadConfig reads the layered configuration and applies the CLI
// overrides that don't map directly to koanf paths.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		if _, err := os.Stat(config.DefaultPath); err == nil {
			configPath = config.DefaultPath
		}
	}

	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if f := cmd.Flags().Lookup("dev-mode"); f != nil && f.Changed {
		devMode, _ := cmd.Flags().GetBool("dev-mode")
		cfg.DevMode = devMode
	}
	if f := cmd.Flags().Lookup("log-level"); f != nil && f.Changed {
		level, _ := cmd.Flags().GetString("log-level")
		cfg.Logging.Level = level
	}
	if f := cmd.Flags().Lookup("log-format"); f != nil && f.Changed {
		format, _ := cmd.Flags().GetString("log-format")
		cfg.Logging.Format = format
	}

	// Dev mode forces debug logging.
	if cfg.DevMode && cfg.Logging.Level == "info" {
		cfg.Logging.Level = "debug"
	}

	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	return logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Logging.Level),
		Format:  cfg.Logging.Format,
		DevMode: cfg.DevMode,
	})
}

// planRules validates the site, resolves the LAN interface, and
// returns the ruleset shared by up, plan, and dry runs.
func planRules(cfg *config.Config, logger *slog.Logger) ([]nat.Rule, config.Site, string, error) {
	site, err := cfg.Site.Validate()
	if err != nil {
		return nil, config.Site{}, "", err
	}

	resolver, err := route.New(route.NewNetlinker(), logger)
	if err != nil {
		return nil, config.Site{}, "", err
	}
	lan, err := resolver.Resolve(site.LANSelector)
	if err != nil {
		return nil, config.Site{}, "", err
	}

	return nat.Plan(site, lan), site, lan, nil
}

func newManager(cfg *config.Config, logger *slog.Logger) (*nat.Manager, error) {
	return nat.NewManager(nat.NewApplier(), nat.NewForwardingChecker(), logger, cfg.DevMode)
}

// journal opens the activation journal and runs migrations. Callers
// treat journal failures as warnings; the kernel state is already
// correct by the time the journal is written.
func journal(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*db.DB, error) {
	database, err := db.New(ctx, cfg.Journal.Path, logger, cfg.DevMode)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, database, logger); err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}

func recordActivation(ctx context.Context, cfg *config.Config, logger *slog.Logger, a *db.Activation) {
	database, err := journal(ctx, cfg, logger)
	if err != nil {
		logger.Warn("journal_open_failed",
			"error", err,
			"path", cfg.Journal.Path,
			"component", "main",
		)
		return
	}
	defer database.Close()

	if err := database.RecordActivation(ctx, a); err != nil {
		logger.Warn("journal_write_failed",
			"error", err,
			"component", "main",
		)
	}
}

func newUpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Apply the NAT ruleset",
		RunE:  runUp,
	}
	cmd.Flags().Bool("dry-run", false, "print the ruleset without applying it")
	return cmd
}

func runUp(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	rules, site, lan, err := planRules(cfg, logger)
	if err != nil {
		return err
	}

	if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
		fmt.Fprint(cmd.OutOrStdout(), nat.FormatRules(rules))
		return nil
	}

	logger.Info("tailnat_starting",
		"version", version,
		"go_version", runtime.Version(),
		"pid", os.Getpid(),
		"lan_interface", lan,
		"local_subnet", site.LocalSubnet.String(),
		"virtual_subnet", site.VirtualSubnet.String(),
		"mesh_interface", site.MeshInterface,
		"allow_lan_to_mesh", site.AllowLANToMesh,
		"component", "main",
	)

	mgr, err := newManager(cfg, logger)
	if err != nil {
		return err
	}
	if err := mgr.Up(rules); err != nil {
		return err
	}

	ctx := context.Background()
	recordActivation(ctx, cfg, logger, &db.Activation{
		Action:         "up",
		LANInterface:   lan,
		LocalSubnet:    site.LocalSubnet.String(),
		VirtualSubnet:  site.VirtualSubnet.String(),
		AllowLANToMesh: site.AllowLANToMesh,
		Ruleset:        nat.FormatRules(rules),
	})

	if err := sdnotify.Ready(); err != nil {
		logger.Warn("sd_notify_ready_failed", "error", err, "component", "main")
	}
	sdnotify.Status(fmt.Sprintf("translating %s -> %s", site.VirtualSubnet, site.LocalSubnet))

	return nil
}

func newDownCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "Remove the NAT ruleset",
		RunE:  runDown,
	}
}

func runDown(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	if err := sdnotify.Stopping(); err != nil {
		logger.Warn("sd_notify_stopping_failed", "error", err, "component", "main")
	}

	mgr, err := newManager(cfg, logger)
	if err != nil {
		return err
	}
	if err := mgr.Down(); err != nil {
		return err
	}

	ctx := context.Background()
	recordActivation(ctx, cfg, logger, &db.Activation{
		Action:         "down",
		LANInterface:   cfg.Site.LANInterface,
		LocalSubnet:    cfg.Site.LocalSubnet,
		VirtualSubnet:  cfg.Site.VirtualSubnet,
		AllowLANToMesh: cfg.Site.AllowLANToMesh,
	})

	return nil
}

func newPlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Print the ruleset that up would apply",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			rules, _, _, err := planRules(cfg, logger)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), nat.FormatRules(rules))
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether the ruleset is installed and recent activations",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	out := cmd.OutOrStdout()

	active, err := nat.NewApplier().Active()
	switch {
	case err != nil:
		fmt.Fprintf(out, "ruleset: unknown (%v)\n", err)
	case active:
		fmt.Fprintln(out, "ruleset: installed")
	default:
		fmt.Fprintln(out, "ruleset: not installed")
	}

	ctx := context.Background()
	database, err := journal(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(out, "journal: unavailable (%v)\n", err)
		return nil
	}
	defer database.Close()

	entries, err := database.ListActivations(ctx, 5)
	if err != nil {
		return fmt.Errorf("read journal: %w", err)
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "journal: empty")
		return nil
	}

	fmt.Fprintln(out, "recent activations:")
	for _, e := range entries {
		fmt.Fprintf(out, "  %s  %-4s  %s -> %s via %s\n",
			e.Timestamp.Format("2006-01-02 15:04:05"),
			e.Action, e.VirtualSubnet, e.LocalSubnet, e.LANInterface)
	}
	return nil
}

func newDiagnoseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Check host preconditions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			resolver, err := route.New(route.NewNetlinker(), logger)
			if err != nil {
				return err
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			return debug.Run(debug.Config{
				Version:     version,
				Site:        cfg.Site,
				JournalPath: cfg.Journal.Path,
				Forwarding:  nat.NewForwardingChecker(),
				Engine:      nat.NewApplier(),
				Resolver:    resolver,
				JSONOutput:  jsonOut,
				Writer:      cmd.OutOrStdout(),
			})
		},
	}
	cmd.Flags().Bool("json", false, "emit the report as JSON")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("tailnat %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	}
}
