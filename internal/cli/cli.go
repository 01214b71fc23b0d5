// Package cli wires the blueutil command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/codefionn/go-blueutil/internal/bluetooth"
	"github.com/codefionn/go-blueutil/internal/config"
	"github.com/codefionn/go-blueutil/internal/errorkinds"
	"github.com/codefionn/go-blueutil/internal/logger"
	"github.com/codefionn/go-blueutil/internal/output"
	"github.com/codefionn/go-blueutil/internal/radio"
	"github.com/codefionn/go-blueutil/internal/session"
)

// AdapterFactory opens the radio stack selected by cfg.
type AdapterFactory func(cfg *config.Config, log *logger.Logger) (radio.Adapter, error)

// Options configures a command tree. Zero values select the process
// streams and the BlueZ adapter.
type Options struct {
	Version    string
	Stdout     io.Writer
	Stderr     io.Writer
	NewAdapter AdapterFactory
}

func (o Options) withDefaults() Options {
	if o.Version == "" {
		o.Version = "dev"
	}
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
	if o.NewAdapter == nil {
		o.NewAdapter = BlueZAdapter
	}
	return o
}

// BlueZAdapter opens the BlueZ stack on the system bus.
func BlueZAdapter(cfg *config.Config, log *logger.Logger) (radio.Adapter, error) {
	m, err := bluetooth.NewManager(bluetooth.Config{
		AdapterID: cfg.Bluetooth.Adapter,
		Logger:    log,
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Execute runs the command tree with args. A failing command has its
// message written to Options.Stderr; the error is returned so the caller
// can pick the exit status.
func Execute(ctx context.Context, args []string, opts Options) error {
	opts = opts.withDefaults()

	root := NewRootCommand(opts)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(opts.Stderr, errorkinds.Message(err))
	}
	return err
}

// NewRootCommand builds the blueutil command tree.
func NewRootCommand(opts Options) *cobra.Command {
	opts = opts.withDefaults()
	a := &app{opts: opts}

	rootCmd := &cobra.Command{
		Use:           "blueutil",
		Short:         "Control the host Bluetooth radio from the command line",
		Version:       opts.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(opts.Stdout)
	rootCmd.SetErr(opts.Stderr)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default is $HOME/.blueutil/config.yaml)")
	flags.String("env-file", "", "env file to load environment variables from (e.g., .env)")
	flags.String("log-level", "warn", "log level (trace, debug, info, warn, error, off)")
	flags.String("log-format", "console", "log format (console, json)")
	flags.Bool("debug", false, "enable debug logging")
	flags.Bool("verbose", false, "enable trace logging")
	flags.String("adapter", "hci0", "Bluetooth adapter to use")
	flags.String("format", string(output.FormatDefault), "output format (default, new-default, json, json-pretty)")
	flags.Duration("pair-timeout", session.DefaultConfig().PairTimeout, "how long to wait for pairing to finish (0 waits forever)")
	flags.Duration("disconnect-timeout", session.DefaultConfig().DisconnectTimeout, "how long to wait for a disconnect notification (0 waits forever)")

	rootCmd.AddCommand(
		a.deviceCommand(),
		a.getCommand(),
		a.listCommand(),
	)

	return rootCmd
}

type app struct {
	opts Options
}

// invocation holds what a single command run needs.
type invocation struct {
	cfg        *config.Config
	log        *logger.Logger
	stack      radio.Adapter
	controller *session.Controller
	printer    *output.Printer
}

// run loads the configuration, opens the radio stack and hands both to fn.
// The stack is closed when fn returns.
func (a *app) run(cmd *cobra.Command, fn func(ctx context.Context, inv *invocation) error) error {
	cfg, err := config.Load(cmd)
	if err != nil {
		return err
	}

	format := cfg.LoggerFormat()
	log := logger.New(logger.Config{
		Level:     cfg.LoggerLevel(),
		Format:    format,
		Output:    a.opts.Stderr,
		UseColors: format == logger.ConsoleFormat,
	}).WithName("blueutil")

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	stack, err := a.opts.NewAdapter(cfg, log)
	if err != nil {
		log.Debug("adapter unavailable", logger.ErrorField(err))
		return errorkinds.OperationFailed(ctx, "adapter",
			fmt.Sprintf("Bluetooth adapter %s unavailable: %v", cfg.Bluetooth.Adapter, err), 0)
	}
	defer func() {
		if err := stack.Close(); err != nil {
			log.Warn("closing adapter", logger.ErrorField(err))
		}
	}()

	inv := &invocation{
		cfg:   cfg,
		log:   log,
		stack: stack,
		controller: session.New(stack, log, session.Config{
			PairTimeout:       cfg.Timeouts.Pair,
			DisconnectTimeout: cfg.Timeouts.Disconnect,
		}),
		printer: output.NewPrinter(cmd.OutOrStdout(), cfg.OutputFormat(), stack),
	}

	err = fn(ctx, inv)
	log.Debug("command finished",
		logger.String("command", cmd.CommandPath()),
		logger.Stringer("outcome", session.OutcomeOf(err)))
	return err
}
