package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/codefionn/go-blueutil/internal/errorkinds"
)

func (a *app) getCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "get power|discoverable",
		Short:     "Print a host controller state",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"power", "discoverable"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, inv *invocation) error {
				switch args[0] {
				case "power":
					state, err := inv.controller.PowerState(ctx)
					if err != nil {
						return err
					}
					return inv.printer.Int(state)
				case "discoverable":
					state, err := inv.controller.DiscoverableState(ctx)
					if err != nil {
						return err
					}
					return inv.printer.Bool(state)
				}
				return errorkinds.InvalidArgument(ctx, "get", "unknown state "+args[0])
			})
		},
	}
}
