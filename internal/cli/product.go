package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"storefront/menusync/internal/domain"

	"github.com/spf13/cobra"
)

func NewProductCommand(rootOpts *RootOptions) *cobra.Command {
	var fresh bool

	cmd := &cobra.Command{
		Use:   "product <kind>/<id>",
		Short: "Look up a product, locally first",
		Example: `  menusync product ITEM/burger-01
  menusync product COMBO/meal-01 --fresh`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseProductArg(args[0])
			if err != nil {
				return err
			}
			scope, err := rootOpts.scope()
			if err != nil {
				return err
			}

			app, err := rootOpts.container(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			resp, err := app.API.Product(cmd.Context(), domain.ProductRequest{Scope: scope, Key: key, Fresh: fresh})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"product":    resp.Product,
				"from_cache": resp.FromCache,
			})
		},
	}

	cmd.Flags().BoolVar(&fresh, "fresh", false, "skip the local cache")

	return cmd
}

func parseProductArg(arg string) (domain.ProductKey, error) {
	kind, id, ok := strings.Cut(arg, "/")
	if !ok || id == "" {
		return domain.ProductKey{}, fmt.Errorf("product must be given as <kind>/<id>, got %q", arg)
	}

	key := domain.ProductKey{Kind: domain.Kind(strings.ToUpper(kind)), ID: id}
	if !key.Kind.Valid() {
		return domain.ProductKey{}, fmt.Errorf("unknown product kind %q, expected one of %v", kind, domain.Kinds)
	}
	return key, nil
}
