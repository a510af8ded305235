package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"volunteerops/app"
	"volunteerops/config"
	"volunteerops/db"
	"volunteerops/logger"
	"volunteerops/routes"
	"volunteerops/updater"
)

func main() {
	config.LoadEnv()
	cfg := config.Load()
	logger.Setup(cfg.Environment)

	root := &cobra.Command{
		Use:           "volunteerops",
		Short:         "Volunteer operations: inventory, missions and people",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          func(cmd *cobra.Command, _ []string) error { return serve(cmd.Context(), cfg) },
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the web server",
			RunE:  func(cmd *cobra.Command, _ []string) error { return serve(cmd.Context(), cfg) },
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Create or update the database schema",
			RunE: func(cmd *cobra.Command, _ []string) error {
				conn, err := db.ConnectDB(cfg.DatabaseURL)
				if err != nil {
					return err
				}
				return db.Migrate(conn)
			},
		},
		selfUpdateCmd(cfg),
	)

	if err := root.ExecuteContext(context.Background()); err != nil {
		logger.GetLogger(context.Background()).WithError(err).Error("exit")
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	application, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer application.Close()

	if err := app.BootstrapFirstAdmin(ctx, cfg, application.Repo, application.Mail); err != nil {
		logger.GetLogger(ctx).WithError(err).Warn("bootstrap admin")
	}

	r := application.Router
	routes.RegisterRoutes(r, application)

	logger.GetLogger(ctx).Infof("listening on :%s", cfg.Port)
	return r.Run(":" + cfg.Port)
}

func selfUpdateCmd(cfg config.Config) *cobra.Command {
	var checkOnly bool
	cmd := &cobra.Command{
		Use:   "self-update",
		Short: "Install the latest release from the update feed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conn, err := db.ConnectDB(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			p := updater.NewDefault(cfg, conn)
			out := cmd.OutOrStdout()
			if checkOnly {
				rel, newer, err := p.Check(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "current %s, latest %s, newer=%t\n", cfg.AppVersion, rel.Version, newer)
				return nil
			}
			rep, err := p.Run(cmd.Context())
			steps := make([]string, 0, len(rep.Completed))
			for _, s := range rep.Completed {
				steps = append(steps, string(s))
			}
			fmt.Fprintf(out, "from %s to %s\ncompleted: %s\n", rep.From, rep.To, strings.Join(steps, ", "))
			if rep.BackupPath != "" {
				fmt.Fprintf(out, "backup: %s\n", rep.BackupPath)
			}
			if rep.UpToDate {
				fmt.Fprintln(out, "already up to date")
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&checkOnly, "check", false, "only report whether a newer version exists")
	return cmd
}
