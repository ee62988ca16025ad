package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"SpotFinder/internal/app"
	"SpotFinder/internal/config"
	"SpotFinder/internal/domain"
	"SpotFinder/internal/usecase"
)

func rootCommand(cfg *config.Config, logger *slog.Logger) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "spotfinder",
		Short:         "Discover work-friendly spots nearby",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfg.Database.Path, "db", cfg.Database.Path, "path to the SQLite record store")

	rootCmd.AddCommand(
		discoverCommand(cfg, logger),
		watchCommand(cfg, logger),
		resetCommand(cfg, logger),
		rateCommand(cfg, logger),
		showCommand(cfg, logger),
	)
	return rootCmd
}

func discoverCommand(cfg *config.Config, logger *slog.Logger) *cobra.Command {
	var (
		lat, lng    float64
		radiusMiles float64
		inMemory    bool
	)

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Run one discovery around a coordinate and print the spots",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			application, err := app.New(cmd.Context(), *cfg, logger, app.Options{
				InMemory: inMemory,
				Progress: func(_ usecase.Stage, message string) {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s\n", message)
				},
			})
			if err != nil {
				return err
			}
			defer application.Close()

			res, err := application.Discover(cmd.Context(), domain.Coordinate{Lat: lat, Lng: lng}, radiusMiles)
			if err != nil {
				var failed *usecase.DiscoveryFailedError
				if errors.As(err, &failed) && failed.Progress != "" {
					return fmt.Errorf("%w (last step: %s)", err, failed.Progress)
				}
				return err
			}

			printRecords(out, res)
			return nil
		},
	}

	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude of the search center")
	cmd.Flags().Float64Var(&lng, "lng", 0, "longitude of the search center")
	cmd.Flags().Float64Var(&radiusMiles, "radius-miles", 20, "search radius in miles")
	cmd.Flags().BoolVar(&inMemory, "memory", false, "keep records in memory instead of the database")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lng")
	return cmd
}

func watchCommand(cfg *config.Config, logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Periodically discover spots around the configured home location",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := app.New(cmd.Context(), *cfg, logger, app.Options{})
			if err != nil {
				return err
			}
			defer application.Close()

			return application.Watch(cmd.Context())
		},
	}

	cmd.Flags().Float64Var(&cfg.Watch.Latitude, "lat", cfg.Watch.Latitude, "latitude of the home location")
	cmd.Flags().Float64Var(&cfg.Watch.Longitude, "lng", cfg.Watch.Longitude, "longitude of the home location")
	cmd.Flags().Float64Var(&cfg.Watch.RadiusMiles, "radius-miles", cfg.Watch.RadiusMiles, "search radius in miles")
	cmd.Flags().DurationVar(&cfg.Watch.Interval, "interval", cfg.Watch.Interval, "time between discovery runs")
	cmd.Flags().StringVar(&cfg.Metrics.Listen, "metrics", cfg.Metrics.Listen, "address to serve /metrics on, empty to disable")
	return cmd
}

func resetCommand(cfg *config.Config, logger *slog.Logger) *cobra.Command {
	var (
		lat, lng    float64
		radiusMiles float64
		confirmed   bool
	)

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete stored spots within a radius",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirmed {
				return errors.New("refusing to delete spots without --yes")
			}

			application, err := app.New(cmd.Context(), *cfg, logger, app.Options{})
			if err != nil {
				return err
			}
			defer application.Close()

			removed, err := application.Reset(cmd.Context(), domain.Coordinate{Lat: lat, Lng: lng}, radiusMiles)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d spots\n", removed)
			return nil
		},
	}

	cmd.Flags().Float64Var(&lat, "lat", cfg.Watch.Latitude, "latitude of the center")
	cmd.Flags().Float64Var(&lng, "lng", cfg.Watch.Longitude, "longitude of the center")
	cmd.Flags().Float64Var(&radiusMiles, "radius-miles", 20, "radius in miles")
	cmd.Flags().BoolVar(&confirmed, "yes", false, "confirm deletion")
	return cmd
}

func rateCommand(cfg *config.Config, logger *slog.Logger) *cobra.Command {
	var (
		name, address string
		wifi          int
		noise, tip    string
		outlets       bool
	)

	cmd := &cobra.Command{
		Use:   "rate",
		Short: "Add your own rating to a stored spot",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := app.New(cmd.Context(), *cfg, logger, app.Options{})
			if err != nil {
				return err
			}
			defer application.Close()

			rating, err := application.Rate(cmd.Context(), name, address, wifi, noise, outlets, tip)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rated %s: wifi=%d noise=%s outlets=%s\n",
				name, rating.Wifi, rating.Noise, yesNo(rating.HasOutlets))
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "name of the spot")
	cmd.Flags().StringVar(&address, "address", "", "address of the spot")
	cmd.Flags().IntVar(&wifi, "wifi", 3, "wifi quality from 1 to 5")
	cmd.Flags().StringVar(&noise, "noise", domain.NoiseMedium, "noise level (Low, Medium, High)")
	cmd.Flags().BoolVar(&outlets, "outlets", false, "whether power outlets are available")
	cmd.Flags().StringVar(&tip, "tip", "", "short tip for other visitors")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("address")
	return cmd
}

func showCommand(cfg *config.Config, logger *slog.Logger) *cobra.Command {
	var name, address string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print a stored spot and its ratings",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := app.New(cmd.Context(), *cfg, logger, app.Options{})
			if err != nil {
				return err
			}
			defer application.Close()

			details, err := application.Show(cmd.Context(), name, address)
			if err != nil {
				return err
			}
			printDetails(cmd.OutOrStdout(), details)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "name of the spot")
	cmd.Flags().StringVar(&address, "address", "", "address of the spot")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("address")
	return cmd
}

func printDetails(w io.Writer, details app.SpotDetails) {
	p := details.Place
	fmt.Fprintf(w, "%s (%s)\n%s\n", p.Name, p.Category, p.Address)
	fmt.Fprintf(w, "wifi=%d noise=%s outlets=%s\n%s\n", p.Wifi, p.Noise, yesNo(p.HasOutlets), p.Tip)
	fmt.Fprintf(w, "%d ratings\n", len(details.Ratings))
	for _, r := range details.Ratings {
		fmt.Fprintf(w, "- wifi=%d noise=%s outlets=%s %s\n", r.Wifi, r.Noise, yesNo(r.HasOutlets), r.Tip)
	}
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func printRecords(w io.Writer, res usecase.Result) {
	fmt.Fprintf(w, "%s (%d spots, %d new, %d refreshed)\n", statusLine(res), len(res.Records), len(res.Inserted), len(res.Updated))
	for _, rec := range res.Records {
		fmt.Fprintf(w, "%-9s %-40s wifi=%d noise=%-6s outlets=%-3s %s\n",
			rec.Category, rec.Name, rec.Wifi, rec.Noise, yesNo(rec.HasOutlets), rec.Address)
	}
}

func statusLine(res usecase.Result) string {
	if res.Status != "" {
		return res.Status
	}
	return "Done"
}
