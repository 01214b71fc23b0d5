package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/codefionn/go-blueutil/internal/config"
	"github.com/codefionn/go-blueutil/internal/errorkinds"
	"github.com/codefionn/go-blueutil/internal/output"
)

func (a *app) listCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List devices",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "in-range [duration]",
			Short: "Scan for devices in range",
			Long: fmt.Sprintf("Scan for devices in range for duration seconds (1-%d). "+
				"The default comes from inquiry.duration.", config.MaxInquiryDuration),
			Args: cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.run(cmd, func(ctx context.Context, inv *invocation) error {
					seconds := inv.cfg.Inquiry.Duration
					if len(args) == 1 {
						var err error
						if seconds, err = parseDuration(ctx, args[0]); err != nil {
							return err
						}
					}

					devices, err := inv.controller.Inquiry(ctx, time.Duration(seconds)*time.Second)
					if err != nil {
						return err
					}
					return inv.printer.Devices(devices, output.Basic)
				})
			},
		},
		&cobra.Command{
			Use:   "paired",
			Short: "List paired devices",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.run(cmd, func(ctx context.Context, inv *invocation) error {
					devices, err := inv.controller.PairedDevices(ctx)
					if err != nil {
						return err
					}
					opts := output.Basic
					opts.ShowPairing = false
					return inv.printer.Devices(devices, opts)
				})
			},
		},
		&cobra.Command{
			Use:   "connected",
			Short: "List connected devices",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.run(cmd, func(ctx context.Context, inv *invocation) error {
					devices, err := inv.controller.ConnectedDevices(ctx)
					if err != nil {
						return err
					}
					opts := output.Basic
					opts.ShowConnected = false
					return inv.printer.Devices(devices, opts)
				})
			},
		},
	)

	return cmd
}

// parseDuration parses a scan length in whole seconds.
func parseDuration(ctx context.Context, arg string) (int, error) {
	seconds, err := strconv.Atoi(arg)
	if err != nil || seconds < 1 || seconds > config.MaxInquiryDuration {
		return 0, errorkinds.InvalidArgument(ctx, "list_in_range",
			fmt.Sprintf("duration %q must be 1-%d seconds", arg, config.MaxInquiryDuration))
	}
	return seconds, nil
}
