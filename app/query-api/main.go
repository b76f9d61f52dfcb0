package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ardanlabs/conf"

	"github.com/transitwatch/transitwatch/app/query-api/api"
	"github.com/transitwatch/transitwatch/foundation/cache"
	"github.com/transitwatch/transitwatch/foundation/database"
	"github.com/transitwatch/transitwatch/foundation/logging"
)

var build = "develop"

func main() {
	if err := run(); err != nil {
		fmt.Println("main: error:", err)
		os.Exit(1)
	}
}

func run() error {
	var cfg struct {
		conf.Version
		Args conf.Args
		Web struct {
			Port            int           `conf:"default:8082"`
			AllowedOrigins  string        `conf:"default:*"`
			ReadTimeout     time.Duration `conf:"default:5s"`
			WriteTimeout    time.Duration `conf:"default:10s"`
			ShutdownTimeout time.Duration `conf:"default:5s"`
		}
		DB struct {
			User       string `conf:"default:postgres"`
			Password   string `conf:"default:postgres,noprint"`
			Host       string `conf:"default:0.0.0.0"`
			Name       string `conf:"default:postgres"`
			DisableTLS bool   `conf:"default:true"`
		}
		Redis struct {
			Addr     string `conf:"default:0.0.0.0:6379"`
			Password string `conf:"default:,noprint"`
			DB       int    `conf:"default:0"`
		}
		LogLevel string `conf:"default:info"`
	}
	cfg.Version.SVN = build
	cfg.Version.Desc = "Serve read-only JSON queries over the live vehicle-tracking store"
	const prefix = "QUERY_API"
	if err := conf.Parse(os.Args[1:], prefix, &cfg); err != nil {
		switch err {
		case conf.ErrHelpWanted:
			usage, err := conf.Usage(prefix, &cfg)
			if err != nil {
				return fmt.Errorf("generating config usage: %w", err)
			}
			fmt.Println(usage)
			return nil
		case conf.ErrVersionWanted:
			version, err := conf.VersionString(prefix, &cfg)
			if err != nil {
				return fmt.Errorf("generating config version: %w", err)
			}
			fmt.Println(version)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	log := logging.New("query-api", cfg.LogLevel)
	log.Info().Str("version", build).Msg("main: application initializing")

	db, err := database.Open(database.Config{
		User:       cfg.DB.User,
		Password:   cfg.DB.Password,
		Host:       cfg.DB.Host,
		Name:       cfg.DB.Name,
		DisableTLS: cfg.DB.DisableTLS,
	})
	if err != nil {
		return fmt.Errorf("connecting to db: %w", err)
	}
	defer func() { _ = db.Close() }()

	redisCache := cache.Open(cache.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() { _ = redisCache.Close() }()
	if err := redisCache.Ping(context.Background()); err != nil {
		log.Warn().Err(err).Msg("main: redis unreachable at startup, continuing without a warm cache")
	}

	allowedOrigins := strings.Split(cfg.Web.AllowedOrigins, ",")
	handler := api.New(db, redisCache, log, allowedOrigins)

	srv := &http.Server{
		Addr:         fmt.Sprintf("0.0.0.0:%d", cfg.Web.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Web.Port).Msg("main: starting server")
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		log.Info().Str("signal", sig.String()).Msg("main: starting shutdown")
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			_ = srv.Close()
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
	}
	return nil
}
