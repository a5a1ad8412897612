package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JaimeStill/geoassign/internal/assignment"
	"github.com/JaimeStill/geoassign/internal/fingerprint"
)

func fingerprintCommand() *cobra.Command {
	var (
		defaults assignment.Config
		params   fingerprint.Params
	)
	// Defaults never fail to finalize without an environment.
	_ = defaults.Finalize(nil)

	cmd := &cobra.Command{
		Use:   "fingerprint <genotype-file>",
		Short: "Print the content hash and job fingerprint of a genotype file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			hash, err := fingerprint.HashContent(f)
			if err != nil {
				return err
			}

			p := params
			p.ContentHash = hash
			if err := p.Validate(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "content_hash %s\n", hash)
			fmt.Fprintf(out, "fingerprint  %s\n", fingerprint.New(p))
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&params.Species, "species", "", "reference species directory name")
	flags.IntVar(&params.PanelSize, "panel-size", 0, "number of loci in the genotype panel")
	flags.IntVar(&params.Iterations, "iterations", defaults.Iterations, "sampler iterations")
	flags.IntVar(&params.Thin, "thin", defaults.Thin, "sampler thinning interval")
	flags.IntVar(&params.Burn, "burn", defaults.Burn, "sampler burn-in")
	cmd.MarkFlagRequired("species")
	cmd.MarkFlagRequired("panel-size")

	return cmd
}
