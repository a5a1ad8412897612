// Command credible computes credible regions and job fingerprints from
// local files, without the service.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "credible",
		Short:        "Credible regions of origin from genetic-assignment posteriors",
		SilenceUsage: true,
	}

	root.AddCommand(regionCommand())
	root.AddCommand(fingerprintCommand())

	return root
}
