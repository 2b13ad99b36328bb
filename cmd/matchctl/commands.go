package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/route-matching/internal/geo"
	"github.com/example/route-matching/internal/logging"
	"github.com/example/route-matching/internal/matcher"
	"github.com/example/route-matching/internal/models"
	"github.com/example/route-matching/internal/storage"
)

type options struct {
	candidates string
	date       string
	radiusKm   float64
	limit      int
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "matchctl",
		Short:         "Run route matching searches against a candidate file",
		Long:          `Loads driver routes, passenger routes and ride-wanted posts from a JSON file into an in-memory index and runs one search, printing the matches as JSON.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.candidates, "candidates", "c", "", "Candidate file (update list or fixture object)")
	root.PersistentFlags().StringVarP(&opts.date, "date", "d", "", "Earliest departure day, YYYY-MM-DD (default now)")
	root.PersistentFlags().Float64VarP(&opts.radiusKm, "radius", "r", 0, "Search radius in km (0 uses the default)")
	root.PersistentFlags().IntVarP(&opts.limit, "limit", "l", 0, "Maximum results (0 uses the default)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log excluded candidates to stderr")
	_ = root.MarkPersistentFlagRequired("candidates")

	root.AddCommand(newDriversCmd(opts), newPassengersCmd(opts), newWantedCmd(opts))
	return root
}

func newDriversCmd(opts *options) *cobra.Command {
	var pickup, dropoff string
	var minSeats int
	cmd := &cobra.Command{
		Use:   "drivers",
		Short: "Find driver routes passing near a pickup and dropoff, in that order",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cutoff, err := opts.service(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			p, err := parsePoint("pickup", pickup)
			if err != nil {
				return err
			}
			d, err := parsePoint("dropoff", dropoff)
			if err != nil {
				return err
			}
			res, err := svc.FindDrivers(cmd.Context(), matcher.DriverQuery{
				Pickup: p, Dropoff: d, RadiusKm: opts.radiusKm, Cutoff: cutoff, MinSeats: minSeats, Limit: opts.limit,
			})
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), res, len(res))
		},
	}
	cmd.Flags().StringVar(&pickup, "pickup", "", "Pickup point as lat,lng")
	cmd.Flags().StringVar(&dropoff, "dropoff", "", "Dropoff point as lat,lng")
	cmd.Flags().IntVar(&minSeats, "min-seats", 0, "Minimum available seats (0 uses the default)")
	_ = cmd.MarkFlagRequired("pickup")
	_ = cmd.MarkFlagRequired("dropoff")
	return cmd
}

func newPassengersCmd(opts *options) *cobra.Command {
	var routeID, polyline, points string
	cmd := &cobra.Command{
		Use:   "passengers",
		Short: "Find passenger trips that fit along a driver route",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cutoff, err := opts.service(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			q := matcher.PassengerQuery{RadiusKm: opts.radiusKm, Cutoff: cutoff, Limit: opts.limit}
			var res []models.PassengerMatch
			switch {
			case routeID != "":
				res, err = svc.FindPassengersForRoute(cmd.Context(), routeID, q)
			case polyline != "":
				if q.Route, err = geo.RouteFromPolyline(polyline); err == nil {
					res, err = svc.FindPassengers(cmd.Context(), q)
				}
			default:
				if q.Route, err = parseRoute(points); err == nil {
					res, err = svc.FindPassengers(cmd.Context(), q)
				}
			}
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), res, len(res))
		},
	}
	cmd.Flags().StringVar(&routeID, "route-id", "", "Id of a driver route in the candidate file")
	cmd.Flags().StringVar(&polyline, "polyline", "", "Route as an encoded polyline")
	cmd.Flags().StringVar(&points, "route", "", "Route as lat,lng;lat,lng;...")
	cmd.MarkFlagsMutuallyExclusive("route-id", "polyline", "route")
	cmd.MarkFlagsOneRequired("route-id", "polyline", "route")
	return cmd
}

func newWantedCmd(opts *options) *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "wanted",
		Short: "Find ride-wanted posts with both endpoints near from and to",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cutoff, err := opts.service(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			f, err := parsePoint("from", from)
			if err != nil {
				return err
			}
			t, err := parsePoint("to", to)
			if err != nil {
				return err
			}
			res, err := svc.FindRideWanted(cmd.Context(), matcher.WantedQuery{
				From: f, To: t, RadiusKm: opts.radiusKm, Cutoff: cutoff, Limit: opts.limit,
			})
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), res, len(res))
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "Origin as lat,lng")
	cmd.Flags().StringVar(&to, "to", "", "Destination as lat,lng")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

// service loads the candidate file and returns a matcher over it with the parsed cutoff.
func (o *options) service(ctx context.Context, stderr io.Writer) (*matcher.Service, time.Time, error) {
	var cutoff time.Time
	if o.date != "" {
		t, err := time.ParseInLocation("2006-01-02", o.date, time.UTC)
		if err != nil {
			return nil, cutoff, fmt.Errorf("invalid --date %q: want YYYY-MM-DD", o.date)
		}
		cutoff = t
	}

	f, err := os.Open(o.candidates)
	if err != nil {
		return nil, cutoff, err
	}
	defer f.Close()
	if ctx == nil {
		ctx = context.Background()
	}
	store := storage.NewMemoryStore()
	if _, err := storage.Load(ctx, store, f); err != nil {
		return nil, cutoff, fmt.Errorf("load %s: %w", o.candidates, err)
	}

	level := "error"
	if o.verbose {
		level = "warn"
	}
	logger := logging.New(stderr, level, "text")
	return matcher.NewService(store, matcher.DefaultLimits(), logger), cutoff, nil
}

func parsePoint(name, s string) (models.GeoPoint, error) {
	lat, lng, ok := strings.Cut(s, ",")
	if !ok {
		return models.GeoPoint{}, fmt.Errorf("--%s: want lat,lng, got %q", name, s)
	}
	var (
		p   models.GeoPoint
		err error
	)
	if p.Lat, err = strconv.ParseFloat(strings.TrimSpace(lat), 64); err != nil {
		return p, fmt.Errorf("--%s: invalid lat: %w", name, err)
	}
	if p.Lng, err = strconv.ParseFloat(strings.TrimSpace(lng), 64); err != nil {
		return p, fmt.Errorf("--%s: invalid lng: %w", name, err)
	}
	return p, nil
}

func parseRoute(s string) (models.RouteGeometry, error) {
	var route models.RouteGeometry
	for _, part := range strings.Split(s, ";") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		p, err := parsePoint("route", part)
		if err != nil {
			return nil, err
		}
		route = append(route, p)
	}
	return route, nil
}

func printResult(w io.Writer, data any, n int) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Data  any `json:"data"`
		Count int `json:"count"`
	}{data, n})
}
