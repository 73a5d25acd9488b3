package cli

import (
	"context"
	"errors"
	"fmt"

	"storefront/menusync/internal/domain/task"
	"storefront/menusync/internal/queue"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func NewTailCommand(rootOpts *RootOptions) *cobra.Command {
	var group string

	cmd := &cobra.Command{
		Use:          "tail",
		Short:        "Follow product changes mirrored to Redis",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rootOpts.config.Feed.Mirror = true

			app, err := rootOpts.container(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			out := cmd.OutOrStdout()
			stream := app.Queue.StreamName(&task.ProductTask{})
			consumer := "tail-" + uuid.NewString()

			opts := queue.ConsumeOptionsFrom(app.Config.Feed)
			err = queue.Consume(cmd.Context(), app.Queue, stream, group, consumer, opts, func(data []byte) error {
				product, err := task.UnmarshalTask[*task.ProductTask](data)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s %s %s/%s %s\n",
					product.Scope, product.Op, product.Kind, product.ID, product.Name)
				return nil
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&group, "group", "menusync-tail", "consumer group name")

	return cmd
}
