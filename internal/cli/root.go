package cli

import (
	"context"
	"fmt"

	"storefront/menusync/internal/config"
	"storefront/menusync/internal/container"
	"storefront/menusync/internal/domain"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
	Partner    string
	Location   string

	config *config.Config
}

// NewRootCommand creates the root command for the menusync CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "menusync",
		Short: "Keep a local copy of a partner location's menu in sync",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFrom(opts.ConfigPath)
			if err != nil {
				return err
			}

			level := cfg.Log.Level
			if opts.LogLevel != "" {
				level = opts.LogLevel
			}
			parsed, err := log.ParseLevel(level)
			if err != nil {
				return fmt.Errorf("invalid log level %q: %w", level, err)
			}
			log.SetLevel(parsed)

			if opts.Partner != "" {
				cfg.Menu.Partner = opts.Partner
			}
			if opts.Location != "" {
				cfg.Menu.Location = opts.Location
			}
			opts.config = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to config file (default ./config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level, overrides log.level")
	cmd.PersistentFlags().StringVar(&opts.Partner, "partner", "", "partner id, overrides menu.partner")
	cmd.PersistentFlags().StringVar(&opts.Location, "location", "", "location id, overrides menu.location")

	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewRetrieveCommand(opts))
	cmd.AddCommand(NewProductCommand(opts))
	cmd.AddCommand(NewTailCommand(opts))

	return cmd
}

func (o *RootOptions) scope() (domain.Scope, error) {
	scope := domain.Scope{Partner: o.config.Menu.Partner, Location: o.config.Menu.Location}
	if scope.Partner == "" || scope.Location == "" {
		return scope, fmt.Errorf("partner and location must be set")
	}
	return scope, nil
}

func (o *RootOptions) container(ctx context.Context) (*container.Container, error) {
	app, err := container.New(ctx, o.config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize container: %w", err)
	}
	return app, nil
}
