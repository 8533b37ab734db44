package main

import (
	"fmt"
	"time"

	"github.com/mylabook/opsflow/internal/application/services"
	"github.com/mylabook/opsflow/internal/templates"
	"github.com/mylabook/opsflow/pkg/auth"
	"github.com/spf13/cobra"
)

func newSeedTemplatesCmd(opts *rootOptions) *cobra.Command {
	var (
		dir  string
		demo bool
	)
	cmd := &cobra.Command{
		Use:   "seed-templates",
		Short: "Upsert the YAML template definitions into the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.Templates.Dir
			}
			conn, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer conn.Close()

			sm := services.NewServiceManager(conn, cfg.ReadTimeout())
			result, err := templates.SeedFromDir(cmd.Context(), sm.Templates, dir, seedUser)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "templates created=%d updated=%d\n", result.Created, result.Updated)

			if demo {
				n, err := templates.SeedDemoData(cmd.Context(), sm.Templates, sm.Entities, seedUser)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "demo entities created=%d\n", n)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "template definition directory (defaults to templates.dir)")
	cmd.Flags().BoolVar(&demo, "demo", false, "also create demo entities from the seeded templates")
	return cmd
}

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var (
		session auth.UserSession
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for local development",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if session.Name == "" {
				return fmt.Errorf("--name is required")
			}
			if session.ID == "" {
				session.ID = session.Name
			}
			if ttl <= 0 {
				ttl = cfg.TokenTTL()
			}
			token, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret, ttl).GenerateToken(session)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&session.Name, "name", "", "user name notifications are matched against")
	cmd.Flags().StringVar(&session.ID, "id", "", "user id (defaults to the name)")
	cmd.Flags().StringVar(&session.Email, "email", "", "user email")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to auth.token_ttl_hours)")
	return cmd
}
