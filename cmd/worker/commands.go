package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Netsync-Automation/PracticeTools-sub004/config"
	"github.com/Netsync-Automation/PracticeTools-sub004/internal/app"
	"github.com/Netsync-Automation/PracticeTools-sub004/internal/auth"
	"github.com/Netsync-Automation/PracticeTools-sub004/internal/sites"
)

// --- sweep ---

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one transcript retry sweep and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				res, err := a.Sweeper.Sweep(ctx)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			})
		},
	}
}

// --- run ---

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Sweep periodically until interrupted",
		Long: `Sweep periodically until interrupted. Use this where no external scheduler
calls POST /internal/transcripts/retry. With Redis configured, concurrent
instances skip a round while another holds the sweep lock.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			interval, _ := cmd.Flags().GetDuration("interval")
			if interval <= 0 {
				return fmt.Errorf("--interval must be positive")
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				a.Logger.Info("sweeper started", zap.Duration("interval", interval))
				a.Sweeper.Run(ctx, interval)
				return nil
			})
		},
	}
	cmd.Flags().Duration("interval", 5*time.Minute, "time between sweeps")
	return cmd
}

// --- issue-token ---

func newIssueTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "issue-token",
		Short: "Print a signed operator token for the admin endpoints",
		Long: `Print a signed operator token for the admin endpoints.

Examples:
  worker issue-token --email ops@example.com --role approver
  worker issue-token --email admin@example.com --role admin --subject admin-1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			role, _ := cmd.Flags().GetString("role")
			subject, _ := cmd.Flags().GetString("subject")
			if email == "" {
				return fmt.Errorf("--email is required")
			}
			if subject == "" {
				subject = email
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			tok, err := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours).Generate(subject, email, role)
			if err != nil {
				return fmt.Errorf("issue token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().String("email", "", "operator email")
	cmd.Flags().String("role", auth.RoleApprover, "admin or approver")
	cmd.Flags().String("subject", "", "operator id (defaults to email)")
	return cmd
}

// --- sites ---

func newSitesCmd() *cobra.Command {
	sitesCmd := &cobra.Command{
		Use:   "sites",
		Short: "Inspect the site registry file",
	}
	sitesCmd.AddCommand(&cobra.Command{
		Use:   "validate [path]",
		Short: "Parse and validate a sites file (defaults to SITES_CONFIG_PATH)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			} else {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				path = cfg.Sites.Path
			}
			list, err := sites.LoadFile(path)
			if err != nil {
				return err
			}
			for _, s := range list {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\thosts=%d\trooms=%d\n", s.SiteURL, len(s.RecordingHosts), len(s.MonitoredRooms))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d site(s) OK\n", len(list))
			return nil
		},
	})
	return sitesCmd
}

// withApp loads config, wires the app and runs fn with a context cancelled on SIGINT/SIGTERM.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	logger := app.NewLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}
