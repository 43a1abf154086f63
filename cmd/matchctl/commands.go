package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/meetmates/matcher/internal/geo"
	"github.com/meetmates/matcher/internal/matching"
	"github.com/meetmates/matcher/internal/profile"
)

func scoreCmd() *cobra.Command {
	var outputJSON bool

	cmd := &cobra.Command{
		Use:   "score <requester> <candidate>",
		Short: "Score one candidate against a requester",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			requester, err := loadProfile(args[0])
			if err != nil {
				return err
			}
			candidate, err := loadProfile(args[1])
			if err != nil {
				return err
			}

			result := matching.Score(requester, candidate)
			if outputJSON {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			return writeTable(cmd.OutOrStdout(), []matching.MatchResult{result})
		},
	}

	cmd.Flags().BoolVar(&outputJSON, "json", false, "Output the result as JSON")
	return cmd
}

func rankCmd() *cobra.Command {
	var (
		outputJSON  bool
		minScore    float64
		limit       int
		workers     int
		databaseURL string
	)

	cmd := &cobra.Command{
		Use:   "rank <requester> [candidates]",
		Short: "Rank candidates for a requester",
		Long: `Rank candidates for a requester, highest score first.

Candidates come from a file holding a list of profiles or, with --db, from
the profile database. When the requester has a location, database
candidates are limited to those within the requester's radius.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			requester, err := loadProfile(args[0])
			if err != nil {
				return err
			}

			var candidates []matching.Profile
			switch {
			case len(args) == 2 && databaseURL != "":
				return errors.New("pass either a candidates file or --db, not both")
			case len(args) == 2:
				candidates, err = loadProfiles(args[1])
			case databaseURL != "":
				candidates, err = candidatesFromDB(cmd.Context(), databaseURL, requester)
			default:
				return errors.New("a candidates file or --db is required")
			}
			if err != nil {
				return err
			}

			results, err := matching.RankParallel(cmd.Context(), requester, candidates, workers)
			if err != nil {
				return err
			}
			results = matching.Top(matching.FilterByMinScore(results, minScore), limit)

			if outputJSON {
				return writeJSON(cmd.OutOrStdout(), results)
			}
			return writeTable(cmd.OutOrStdout(), results)
		},
	}

	cmd.Flags().BoolVar(&outputJSON, "json", false, "Output results as JSON")
	cmd.Flags().Float64Var(&minScore, "min-score", matching.DefaultMinScore, "Drop results scoring below this")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results (0 for all)")
	cmd.Flags().IntVar(&workers, "workers", 4, "Goroutines used for scoring")
	cmd.Flags().StringVar(&databaseURL, "db", "", "Load candidates from this profile database (postgres:// URL)")
	return cmd
}

// candidatesFromDB loads candidates from PostgreSQL. With a location, a
// bounding box query narrows the rows and the exact distance check
// removes the box corners.
func candidatesFromDB(ctx context.Context, databaseURL string, requester matching.Profile) ([]matching.Profile, error) {
	store, err := profile.Open(databaseURL)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	if requester.Location == nil {
		return store.List(ctx)
	}

	radius := float64(requester.RadiusKm)
	box := geo.NewBoundingBox(requester.Location.Latitude, requester.Location.Longitude, radius)
	rows, err := store.ListWithin(ctx, box)
	if err != nil {
		return nil, err
	}

	candidates := rows[:0]
	for _, c := range rows {
		if geo.WithinRadius(*requester.Location, *c.Location, radius) {
			candidates = append(candidates, c)
		}
	}
	return candidates, nil
}

func geohashCmd() *cobra.Command {
	var (
		precision int
		decode    string
	)

	cmd := &cobra.Command{
		Use:   "geohash <lat> <lon>",
		Short: "Encode a coordinate as a geohash, or decode one with --decode",
		Args: func(cmd *cobra.Command, args []string) error {
			if decode != "" {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(2)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if decode != "" {
				box, err := geo.DecodeGeohash(decode)
				if err != nil {
					return err
				}
				c := box.Center()
				fmt.Fprintf(out, "%.6f %.6f\n", c.Latitude, c.Longitude)
				fmt.Fprintf(out, "box: south=%.6f west=%.6f north=%.6f east=%.6f\n", box.South, box.West, box.North, box.East)
				return nil
			}

			lat, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("latitude: %w", err)
			}
			lon, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("longitude: %w", err)
			}
			if err := (geo.Coordinate{Latitude: lat, Longitude: lon}).Validate(); err != nil {
				return err
			}

			fmt.Fprintln(out, geo.Geohash(lat, lon, precision))
			return nil
		},
	}

	cmd.Flags().IntVar(&precision, "precision", geo.DefaultGeohashPrecision, "Geohash length (1-12)")
	cmd.Flags().StringVar(&decode, "decode", "", "Decode this geohash instead of encoding")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeTable(w io.Writer, results []matching.MatchResult) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tCANDIDATE\tSCORE\tDISTANCE\tOVERLAP\tSHARED")
	for i, r := range results {
		shared := make([]string, len(r.SharedInterests))
		for j, in := range r.SharedInterests {
			shared[j] = string(in)
		}
		fmt.Fprintf(tw, "%d\t%s\t%d%%\t%.1f km\t%.0f%%\t%s\n",
			i+1, r.CandidateID, r.Percent(), r.Distance, r.AvailabilityOverlap*100, strings.Join(shared, ","))
	}
	return tw.Flush()
}
