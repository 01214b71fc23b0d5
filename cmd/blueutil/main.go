package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/codefionn/go-blueutil/internal/cli"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		cancel()
		os.Exit(1)
	}
}

// run executes the command tree. Failures have already been reported on
// stderr when it returns.
func run(ctx context.Context, args []string) error {
	return cli.Execute(ctx, args, cli.Options{
		Version: fmt.Sprintf("%s (%s)", version, commit),
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	})
}
