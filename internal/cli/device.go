package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codefionn/go-blueutil/internal/errorkinds"
)

var deviceActions = []string{"info", "is-connected", "connect", "disconnect", "pair", "unpair"}

func (a *app) deviceCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "device <id> <action>",
		Short: "Operate on a single device",
		Long: "Operate on a single device identified by address or paired name.\n" +
			"Actions: " + strings.Join(deviceActions, ", ") + ".",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pin, _ := cmd.Flags().GetString("pin")
			return a.run(cmd, func(ctx context.Context, inv *invocation) error {
				return deviceAction(ctx, inv, args[0], args[1], pin)
			})
		},
	}
	cmd.Flags().String("pin", "", "PIN to reply with when the device asks for one (pair only)")

	return cmd
}

func deviceAction(ctx context.Context, inv *invocation, id, action, pin string) error {
	c := inv.controller

	switch action {
	case "info":
		d, err := c.Info(ctx, id)
		if err != nil {
			return err
		}
		return inv.printer.DeviceInfo(d)

	case "is-connected":
		connected, err := c.IsConnected(ctx, id)
		if err != nil {
			return err
		}
		return inv.printer.Bool(connected)

	case "connect":
		if err := c.Connect(ctx, id); err != nil {
			return err
		}
		return inv.printer.Message("Successfully connected to device " + id)

	case "disconnect":
		if err := c.Disconnect(ctx, id); err != nil {
			return err
		}
		return inv.printer.Message("Successfully disconnected from device " + id)

	case "pair":
		if err := c.Pair(ctx, id, pin); err != nil {
			return err
		}
		return inv.printer.Message("Successfully paired with device " + id)

	case "unpair":
		if err := c.Unpair(ctx, id); err != nil {
			return err
		}
		return inv.printer.Message("Successfully unpaired device " + id)
	}

	return errorkinds.InvalidArgument(ctx, "device",
		"unknown action "+action+" (expected one of "+strings.Join(deviceActions, ", ")+")")
}
