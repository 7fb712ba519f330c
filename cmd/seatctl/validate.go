package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/saltfish/seatscope/go-backend/internal/domain"
)

func newValidateCmd(opts *rootOptions) *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load both datasets and report malformed rows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := opts.load(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "source:              %s\n", ds.Source)
			fmt.Fprintf(out, "market records:      %d\n", len(ds.Market))
			fmt.Fprintf(out, "equilibrium records: %d\n", len(ds.Equilibrium))
			fmt.Fprintf(out, "seller types:        %v\n", domain.SellerTypesPresent(ds.Equilibrium))
			fmt.Fprintf(out, "warnings:            %d\n", len(ds.Warnings))
			for _, w := range ds.Warnings {
				fmt.Fprintf(out, "  %s\n", w)
			}

			if strict && len(ds.Warnings) > 0 {
				return fmt.Errorf("%d malformed rows", len(ds.Warnings))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "Fail when any row is malformed")
	return cmd
}
