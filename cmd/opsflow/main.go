package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/mylabook/opsflow/internal/bootstrap"
	"github.com/mylabook/opsflow/internal/config"
	"github.com/mylabook/opsflow/internal/infrastructure/database"
	"github.com/mylabook/opsflow/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const configEnv = "OPSFLOW_CONFIG"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
	envFile    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "opsflow",
		Short:         "Template-driven step workflows for leads, fundraises and finance operations",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	bindRootFlags(root.PersistentFlags(), opts)

	root.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newSeedTemplatesCmd(opts),
		newCheckCmd(opts),
		newTokenCmd(opts),
	)
	return root
}

func bindRootFlags(flags *pflag.FlagSet, opts *rootOptions) {
	flags.StringVarP(&opts.configPath, "config", "c", os.Getenv(configEnv), "path to the TOML config file (env "+configEnv+")")
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before environment overrides")
}

// loadConfig resolves configuration and installs the default logger.
func (o *rootOptions) loadConfig() (config.Config, error) {
	cfg, err := config.LoadAll(o.configPath, o.envFile)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if _, err := logging.Setup(os.Stderr, cfg.Logging); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// openStore connects and makes sure the workflow tables exist.
func openStore(ctx context.Context, cfg config.Config) (*database.Connection, error) {
	conn, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := bootstrap.InitializeSchema(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return conn, nil
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the workflow tables if they do not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			conn, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer conn.Close()
			log.Info("✅ Schema ready", "dialect", conn.Dialect())
			return nil
		},
	}
}

func newCheckCmd(opts *rootOptions) *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run data consistency assertions against stored steps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			conn, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer conn.Close()

			result, err := bootstrap.RunAssertions(cmd.Context(), conn, strict || cfg.Database.StrictAssertions)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "passed=%t violations=%d\n", result.Passed, len(result.Violations))
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "fail when any violation is found")
	return cmd
}
