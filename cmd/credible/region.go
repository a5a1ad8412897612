package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JaimeStill/geoassign/internal/density"
	"github.com/JaimeStill/geoassign/internal/posterior"
	"github.com/JaimeStill/geoassign/internal/region"
)

func regionCommand() *cobra.Command {
	var (
		confidence float64
		policy     string
		noTrailer  bool
		opts       = density.DefaultOptions()
	)

	cmd := &cobra.Command{
		Use:   "region <posterior-file>",
		Short: "Print the credible region of a posterior sample file as JSON",
		Long: "Estimates the posterior density of the sample file and prints the smallest " +
			"region holding the requested probability mass. The file is read as SCAT " +
			"output, whose last line is an acceptance-rate trailer, unless --no-trailer is set.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := region.ParsePolicy(policy)
			if err != nil {
				return err
			}
			if err := opts.Validate(); err != nil {
				return err
			}

			format := posterior.SCATOptions()
			if noTrailer {
				format = posterior.Options{}
			}

			samples, err := posterior.ParseFile(args[0], format)
			if err != nil {
				return err
			}

			surface, err := density.Estimate(cmd.Context(), samples, opts)
			if err != nil {
				return err
			}

			cr, err := region.Extract(surface, confidence, region.Options{Policy: p})
			if err != nil {
				return fmt.Errorf("extract region: %w", err)
			}

			return json.NewEncoder(cmd.OutOrStdout()).Encode(cr)
		},
	}

	flags := cmd.Flags()
	flags.Float64Var(&confidence, "confidence", 0.9, "probability mass the region must hold, in (0, 1)")
	flags.StringVar(&policy, "policy", string(region.PolicyConvexHull), "disconnected region policy: convex_hull or largest_component")
	flags.IntVar(&opts.Resolution, "resolution", opts.Resolution, fmt.Sprintf("grid cells along each axis, at most %d", density.MaxResolution))
	flags.IntVar(&opts.MinSamples, "min-samples", opts.MinSamples, "fewest samples accepted")
	flags.Float64Var(&opts.MarginBandwidths, "margin", opts.MarginBandwidths, "grid margin around the samples, in bandwidths")
	flags.BoolVar(&noTrailer, "no-trailer", false, "keep the last line of text input")

	return cmd
}
