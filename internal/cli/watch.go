package cli

import (
	"context"
	"errors"
	"fmt"

	"storefront/menusync/internal/domain"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "watch",
		Short:        "Stream menu updates into local storage until interrupted",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := rootOpts.scope()
			if err != nil {
				return err
			}

			app, err := rootOpts.container(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			out := cmd.OutOrStdout()
			err = app.Run(cmd.Context(), []domain.Scope{scope},
				func(menu *domain.Catalog, fingerprint string, usedLocal bool) {
					if usedLocal {
						fmt.Fprintf(out, "menu %s is current\n", fingerprint)
						return
					}
					fmt.Fprintf(out, "installed menu %s with %d products\n", fingerprint, menu.ProductCount())
				},
				func(event domain.MenuEvent) {
					fmt.Fprintf(out, "menu %s: %d changes\n", event.Fingerprint, len(event.Changes))
				},
			)
			if errors.Is(err, context.Canceled) {
				log.Info("Watch stopped")
				return nil
			}
			return err
		},
	}
}
