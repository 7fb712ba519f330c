package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/saltfish/seatscope/go-backend/internal/domain"
	"github.com/saltfish/seatscope/go-backend/internal/timeline"
)

func newIndexCmd(opts *rootOptions) *cobra.Command {
	var zoneName string

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Print the days available for scrubbing in a zone",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			zone, ok := domain.ZoneIDFromString(zoneName)
			if !ok {
				return fmt.Errorf("%w: unknown zone %q", domain.ErrInvalidInput, zoneName)
			}
			ds, err := opts.load(cmd.Context())
			if err != nil {
				return err
			}

			index := timeline.Build(ds.Equilibrium, zone)
			out := cmd.OutOrStdout()
			if len(index) == 0 {
				fmt.Fprintf(out, "no equilibrium data for zone %s\n", zone)
				return nil
			}
			for i, day := range index {
				fmt.Fprintf(out, "%d\t%d\n", i, day)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&zoneName, "zone", string(domain.ZoneStandard), "Zone to index")
	return cmd
}
