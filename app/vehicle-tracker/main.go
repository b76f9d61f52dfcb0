package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/transitwatch/transitwatch/app/vehicle-tracker/tracker"
	"github.com/transitwatch/transitwatch/app/vehicle-tracker/tripfeed"
	"github.com/transitwatch/transitwatch/business/data/integrity"
	"github.com/transitwatch/transitwatch/business/data/traveltime"
	"github.com/transitwatch/transitwatch/business/engine/estimate"
	"github.com/transitwatch/transitwatch/foundation/database"
	"github.com/transitwatch/transitwatch/foundation/eventbus"
	"github.com/transitwatch/transitwatch/foundation/logging"
)

var (
	dbUser, dbPassword, dbHost, dbName string
	dbDisableTLS                       bool
	logLevel                           string
	workers                            int
)

func main() {
	root := &cobra.Command{Use: "vehicle-tracker", Short: "Run the live map-matching pipeline and its batch maintenance jobs"}
	root.PersistentFlags().StringVar(&dbUser, "db-user", envOr("VEHICLE_TRACKER_DB_USER", "postgres"), "database user")
	root.PersistentFlags().StringVar(&dbPassword, "db-password", envOr("VEHICLE_TRACKER_DB_PASSWORD", "postgres"), "database password")
	root.PersistentFlags().StringVar(&dbHost, "db-host", envOr("VEHICLE_TRACKER_DB_HOST", "0.0.0.0"), "database host:port")
	root.PersistentFlags().StringVar(&dbName, "db-name", envOr("VEHICLE_TRACKER_DB_NAME", "postgres"), "database name")
	root.PersistentFlags().BoolVar(&dbDisableTLS, "db-disable-tls", true, "disable database TLS")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().IntVar(&workers, "workers", 4, "number of inference worker goroutines")

	root.AddCommand(fetchVehiclesCmd(), processRawDataCmd(), calculateTravelTimesCmd(), cleanCmd(), daemonCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func dbConfig() database.Config {
	return database.Config{
		User:       dbUser,
		Password:   dbPassword,
		Host:       dbHost,
		Name:       dbName,
		DisableTLS: dbDisableTLS,
	}
}

func fetchVehiclesCmd() *cobra.Command {
	var url string
	var tripUpdatePort int
	cmd := &cobra.Command{
		Use:   "fetch-vehicles",
		Short: "Run the live vehicle poller indefinitely",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New("vehicle-tracker", logLevel)
			db, err := database.Open(dbConfig())
			if err != nil {
				return fmt.Errorf("connecting to database: %w", err)
			}
			defer func() { _ = db.Close() }()

			bus, err := eventbus.Start()
			if err != nil {
				return fmt.Errorf("starting eventbus: %w", err)
			}
			defer bus.Close()

			dispatcher, err := tracker.NewLiveDispatcher(log, db, bus, workers, time.Now())
			if err != nil {
				return fmt.Errorf("building dispatcher: %w", err)
			}
			defer dispatcher.Close()

			subCtx, cancelSub := context.WithCancel(context.Background())
			defer cancelSub()
			go func() {
				if err := estimate.RunPredictionSubscriber(subCtx, bus, tracker.PredictionSink(log, db, bus)); err != nil {
					log.Error().Err(err).Msg("prediction subscriber exited")
				}
			}()

			feed := tripfeed.New(log)
			go func() {
				if err := feed.Run(subCtx, bus); err != nil {
					log.Error().Err(err).Msg("trip update feed exited")
				}
			}()
			feedSrv := &http.Server{Addr: fmt.Sprintf("0.0.0.0:%d", tripUpdatePort), Handler: feed.Router()}
			go func() {
				log.Info().Int("port", tripUpdatePort).Msg("serving gtfs-realtime trip update feed")
				if err := feedSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error().Err(err).Msg("trip update http server exited")
				}
			}()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = feedSrv.Shutdown(shutdownCtx)
			}()

			shutdown := make(chan os.Signal, 1)
			signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

			tracker.RunFetchVehicles(log, db, dispatcher, url, shutdown)
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", envOr("VEHICLE_TRACKER_URL", "https://developer.trimet.org/ws/V1/VehiclePositions"), "raw vehicle fix feed URL")
	cmd.Flags().IntVar(&tripUpdatePort, "trip-update-port", 8081, "port serving the GTFS-realtime trip update feed")
	return cmd
}

func processRawDataCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process-raw-data",
		Short: "Re-process every unprocessed historical raw fix",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New("vehicle-tracker", logLevel)
			db, err := database.Open(dbConfig())
			if err != nil {
				return fmt.Errorf("connecting to database: %w", err)
			}
			defer func() { _ = db.Close() }()

			total, err := tracker.RunProcessRawData(log, db, workers)
			if err != nil {
				return fmt.Errorf("processing raw data: %w", err)
			}
			log.Info().Int("total", total).Msg("process-raw-data complete")
			return nil
		},
	}
}

func calculateTravelTimesCmd() *cobra.Command {
	var day string
	var excludeHolidays bool
	cmd := &cobra.Command{
		Use:   "calculate-travel-times",
		Short: "Rebuild travel_time and average_travel_time",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New("vehicle-tracker", logLevel)
			db, err := database.Open(dbConfig())
			if err != nil {
				return fmt.Errorf("connecting to database: %w", err)
			}
			defer func() { _ = db.Close() }()

			return runCalculateTravelTimes(log, db, day, excludeHolidays)
		},
	}
	cmd.Flags().StringVar(&day, "day", "", "restrict the rebuild window to this single day (YYYY-MM-DD); defaults to the last 24 hours")
	cmd.Flags().BoolVar(&excludeHolidays, "exclude-holidays", true, "drop arrivals on observed US holidays from the rebuilt averages")
	return cmd
}

// runCalculateTravelTimes is calculate-travel-times's body, factored out so
// daemonCmd's cron ticks can call it against a long-lived connection instead
// of each tick re-running the cobra command.
func runCalculateTravelTimes(log zerolog.Logger, db *sqlx.DB, day string, excludeHolidays bool) error {
	after, before, err := rebuildWindow(day)
	if err != nil {
		return err
	}

	var samples, bins int
	if excludeHolidays {
		samples, bins, err = traveltime.RebuildExcludingHolidays(db, after, before, traveltime.UnlimitedHorizon, traveltime.NewHolidayCalendar())
	} else {
		samples, bins, err = traveltime.Rebuild(db, after, before, traveltime.UnlimitedHorizon)
	}
	if err != nil {
		return fmt.Errorf("rebuilding travel times: %w", err)
	}
	log.Info().Int("samples", samples).Int("bins", bins).
		Time("after", after).Time("before", before).Msg("calculate-travel-times complete")
	return nil
}

// rebuildWindow turns --day into the [after, before) window Rebuild expects:
// a single UTC calendar day if given, otherwise the trailing 24 hours from
// now so a bare `calculate-travel-times` run stays useful as a cron tick.
func rebuildWindow(day string) (time.Time, time.Time, error) {
	if day == "" {
		now := time.Now().UTC()
		return now.Add(-24 * time.Hour), now, nil
	}
	start, err := time.ParseInLocation("2006-01-02", day, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --day %q: %w", day, err)
	}
	return start, start.Add(24 * time.Hour), nil
}

func cleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Apply the four integrity cleanup passes",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New("vehicle-tracker", logLevel)
			db, err := database.Open(dbConfig())
			if err != nil {
				return fmt.Errorf("connecting to database: %w", err)
			}
			defer func() { _ = db.Close() }()

			return runClean(log, db)
		},
	}
}

// runClean is clean's body, factored out so daemonCmd's cron ticks can call
// it against a long-lived connection instead of each tick re-running the
// cobra command.
func runClean(log zerolog.Logger, db *sqlx.DB) error {
	report, err := integrity.Clean(log, db)
	if err != nil {
		return fmt.Errorf("cleaning: %w", err)
	}
	log.Info().
		Int("non_monotone", report.NonMonotoneTripInstances).
		Int("sparse", report.SparseTripInstances).
		Int("out_of_trip", report.OutOfTripTripInstances).
		Int("shadowed", report.ShadowedVehicleStopTimes).
		Msg("clean complete")
	return nil
}

// daemonCmd runs calculate-travel-times and clean on a recurring schedule
// instead of as one-shot invocations, for operators who'd rather run a single
// long-lived maintenance process than wire up an external cron. Modelled on
// the teacher's preference for in-process scheduling over relying on the
// host's crontab.
func daemonCmd() *cobra.Command {
	var travelTimesSchedule, cleanSchedule string
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run calculate-travel-times and clean on a recurring cron schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New("vehicle-tracker", logLevel)
			db, err := database.Open(dbConfig())
			if err != nil {
				return fmt.Errorf("connecting to database: %w", err)
			}
			defer func() { _ = db.Close() }()

			c := cron.New()
			if _, err := c.AddFunc(travelTimesSchedule, func() {
				if err := runCalculateTravelTimes(log, db, "", true); err != nil {
					log.Error().Err(err).Msg("scheduled calculate-travel-times failed")
				}
			}); err != nil {
				return fmt.Errorf("invalid --travel-times-schedule %q: %w", travelTimesSchedule, err)
			}
			if _, err := c.AddFunc(cleanSchedule, func() {
				if err := runClean(log, db); err != nil {
					log.Error().Err(err).Msg("scheduled clean failed")
				}
			}); err != nil {
				return fmt.Errorf("invalid --clean-schedule %q: %w", cleanSchedule, err)
			}

			c.Start()
			defer c.Stop()
			log.Info().Str("travel_times_schedule", travelTimesSchedule).Str("clean_schedule", cleanSchedule).
				Msg("maintenance daemon started")

			shutdown := make(chan os.Signal, 1)
			signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
			<-shutdown
			return nil
		},
	}
	cmd.Flags().StringVar(&travelTimesSchedule, "travel-times-schedule", "0 * * * *", "cron schedule for calculate-travel-times")
	cmd.Flags().StringVar(&cleanSchedule, "clean-schedule", "30 3 * * *", "cron schedule for clean")
	return cmd
}
