package cli

import (
	"fmt"

	"storefront/menusync/internal/domain"

	"github.com/spf13/cobra"
)

func NewRetrieveCommand(rootOpts *RootOptions) *cobra.Command {
	var keysOnly bool

	cmd := &cobra.Command{
		Use:          "retrieve",
		Short:        "Fetch the menu once and store it locally",
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

			resp, err := app.API.Retrieve(cmd.Context(), domain.RetrieveRequest{Scope: scope, KeysOnly: keysOnly})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if resp.NotModified {
				fmt.Fprintf(out, "menu %s not modified\n", resp.Fingerprint)
				return nil
			}
			fmt.Fprintf(out, "menu %s: %d products in %d sections\n",
				resp.Fingerprint, resp.Catalog.ProductCount(), len(resp.Catalog.Sections))
			return nil
		},
	}

	cmd.Flags().BoolVar(&keysOnly, "keys-only", false, "store product keys without payloads")

	return cmd
}
