package main

import (
	"encoding/json"
	"fmt"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	httpapi "github.com/saltfish/seatscope/go-backend/internal/api/http"
	"github.com/saltfish/seatscope/go-backend/internal/domain"
	"github.com/saltfish/seatscope/go-backend/internal/projection"
	"github.com/saltfish/seatscope/go-backend/internal/timeline"
)

type projectOptions struct {
	zone     string
	day      int
	profiles []string
	compare  bool
	format   string
}

func newProjectCmd(opts *rootOptions) *cobra.Command {
	po := &projectOptions{}

	cmd := &cobra.Command{
		Use:   "project",
		Short: "Print the recommendations and series for a zone and day",
		Long: `project computes the dashboard view for one zone, day and profile
selection. A day missing from the zone snaps to the nearest available day.
Without --profiles every profile present in the data is shown.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			zone, ok := domain.ZoneIDFromString(po.zone)
			if !ok {
				return fmt.Errorf("%w: unknown zone %q", domain.ErrInvalidInput, po.zone)
			}
			if po.format != "table" && po.format != "json" {
				return fmt.Errorf("%w: format must be table or json", domain.ErrInvalidInput)
			}
			profiles := make([]domain.ProfileID, 0, len(po.profiles))
			for _, raw := range po.profiles {
				p, ok := domain.ProfileIDFromString(raw)
				if !ok {
					return fmt.Errorf("%w: unknown profile %q", domain.ErrInvalidInput, raw)
				}
				profiles = append(profiles, p)
			}

			ds, err := opts.load(cmd.Context())
			if err != nil {
				return err
			}
			if len(profiles) == 0 {
				present := domain.SellerTypesPresent(ds.Equilibrium)
				for _, p := range domain.Profiles {
					if slices.Contains(present, p.SellerType()) {
						profiles = append(profiles, p)
					}
				}
			}

			index := timeline.Build(ds.Equilibrium, zone)
			day, hasDay := po.day, timeline.Contains(index, po.day)
			if !hasDay {
				day, hasDay = timeline.Nearest(index, po.day)
			}

			view := projection.Project(projection.Input{
				Market:      ds.Market,
				Equilibrium: ds.Equilibrium,
				Zone:        zone,
				Day:         day,
				HasDay:      hasDay,
				Profiles:    profiles,
				Compare:     po.compare,
			})

			if po.format == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(view)
			}
			return printView(cmd, view)
		},
	}

	cmd.Flags().StringVar(&po.zone, "zone", string(domain.ZoneStandard), "Zone to project")
	cmd.Flags().IntVar(&po.day, "day", 0, "Days to event")
	cmd.Flags().StringSliceVar(&po.profiles, "profiles", nil, "Comma separated profile ids")
	cmd.Flags().BoolVar(&po.compare, "compare", false, "Include the market median series")
	cmd.Flags().StringVar(&po.format, "format", "table", "Output format (table|json)")
	return cmd
}

func printView(cmd *cobra.Command, view projection.View) error {
	out := cmd.OutOrStdout()
	if !view.HasDay {
		fmt.Fprintf(out, "no equilibrium data for zone %s\n", view.Zone)
		return nil
	}
	fmt.Fprintf(out, "zone %s, %d days to event (%s)\n\n", view.Zone, view.Day, timeline.Label(view.Day))

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROFILE\tPRICE\tSALE CHANCE\tDAYS")
	for _, s := range view.Series {
		price, chance := "-", "-"
		for _, r := range view.Recommendations {
			if r.Profile == s.Profile {
				price = "$" + httpapi.FormatPrice(r.Price)
				chance = httpapi.FormatProbability(r.Probability) + "%"
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", s.Name, price, chance, len(s.Trajectory))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if view.Market != nil {
		fmt.Fprintln(out, "\nmarket median")
		for _, p := range view.Market.Points() {
			fmt.Fprintf(out, "  %d\t$%s\n", p.Day, httpapi.FormatPrice(p.Value))
		}
	}
	return nil
}
