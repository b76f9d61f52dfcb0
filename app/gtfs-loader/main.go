package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/transitwatch/transitwatch/app/gtfs-loader/loader"
	"github.com/transitwatch/transitwatch/foundation/database"
	"github.com/transitwatch/transitwatch/foundation/logging"
)

var (
	dbUser, dbPassword, dbHost, dbName string
	dbDisableTLS                       bool
	logLevel                           string
)

func main() {
	root := &cobra.Command{
		Use:   "gtfs-loader",
		Short: "Download, version, and maintain GTFS static schedule data",
	}
	root.PersistentFlags().StringVar(&dbUser, "db-user", envOr("GTFS_LOADER_DB_USER", "postgres"), "database user")
	root.PersistentFlags().StringVar(&dbPassword, "db-password", envOr("GTFS_LOADER_DB_PASSWORD", "postgres"), "database password")
	root.PersistentFlags().StringVar(&dbHost, "db-host", envOr("GTFS_LOADER_DB_HOST", "0.0.0.0"), "database host:port")
	root.PersistentFlags().StringVar(&dbName, "db-name", envOr("GTFS_LOADER_DB_NAME", "postgres"), "database name")
	root.PersistentFlags().BoolVar(&dbDisableTLS, "db-disable-tls", true, "disable database TLS")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(updateFeedsCmd(), listFeedsCmd(), deleteFeedCmd())

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

func updateFeedsCmd() *cobra.Command {
	var url, tempDir string
	var force bool
	cmd := &cobra.Command{
		Use:   "update-feeds",
		Short: "Download the remote GTFS feed if it changed and load it as a new data set",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New("gtfs-loader", logLevel)
			db, err := database.Open(dbConfig())
			if err != nil {
				return fmt.Errorf("connecting to database: %w", err)
			}
			defer func() { _ = db.Close() }()

			return loader.UpdateFeed(log, db, tempDir, url, force)
		},
	}
	cmd.Flags().StringVar(&url, "url", envOr("GTFS_LOADER_URL", "https://developer.trimet.org/schedule/gtfs.zip"), "GTFS feed URL")
	cmd.Flags().StringVar(&tempDir, "temp-dir", envOr("GTFS_LOADER_TEMP_DIR", "gtfs_tmp"), "scratch directory for the downloaded zip")
	cmd.Flags().BoolVar(&force, "force", false, "load even if the remote feed looks unchanged")
	return cmd
}

func listFeedsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every loaded GTFS data set",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := database.Open(dbConfig())
			if err != nil {
				return fmt.Errorf("connecting to database: %w", err)
			}
			defer func() { _ = db.Close() }()
			return loader.ListFeeds(db)
		},
	}
}

func deleteFeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [data-set-id]",
		Short: "Delete a GTFS data set and every record it owns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid data set id %q: %w", args[0], err)
			}
			log := logging.New("gtfs-loader", logLevel)
			db, err := database.Open(dbConfig())
			if err != nil {
				return fmt.Errorf("connecting to database: %w", err)
			}
			defer func() { _ = db.Close() }()
			return loader.DeleteFeed(log, db, id)
		},
	}
}
