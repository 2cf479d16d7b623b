package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/helloharbor/harbor-workers/cap-alerts/shared/archive"
	"github.com/helloharbor/harbor-workers/cap-alerts/shared/metrics"
	"github.com/helloharbor/harbor-workers/cap-alerts/shared/pipeline"
	"github.com/helloharbor/harbor-workers/cap-alerts/shared/store"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var stdFields log.Fields

func dbFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "db-conn",
		Usage:    "postgres connection string",
		EnvVars:  []string{"DB_CONN"},
		Required: true,
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "load-alerts",
		Usage: "load archived CAP alerts into postgres",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				EnvVars: []string{"LOG_LEVEL"},
			},
		},
		Before: setupLogging,
		Commands: []*cli.Command{
			newRunCmd(),
			newMigrateCmd(),
		},
	}
}

func newRunCmd() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "load every segment in a directory",
		Flags: []cli.Flag{
			dbFlag(),
			&cli.StringFlag{
				Name:  "dir",
				Value: filepath.Join("data", "json"),
				Usage: "directory holding the archive segments",
			},
			&cli.StringFlag{
				Name:  "pattern",
				Value: archive.DefaultPattern,
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "number of concurrent files, defaults to the number of CPUs",
			},
			&cli.DurationFlag{
				Name:  "progress-interval",
				Value: 5 * time.Second,
			},
			&cli.StringFlag{
				Name:    "metrics-addr",
				Usage:   "serve prometheus metrics on this address while loading",
				EnvVars: []string{"METRICS_ADDR"},
			},
		},
		Action: run,
	}
}

func newMigrateCmd() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "create the alert tables and indexes",
		Flags: []cli.Flag{dbFlag()},
		Action: func(c *cli.Context) error {
			db, err := store.Open(c.String("db-conn"))
			if err != nil {
				return fmt.Errorf("unable to connect: %w", err)
			}
			defer db.Close()

			if err := db.Migrate(c.Context); err != nil {
				return fmt.Errorf("unable to migrate: %w", err)
			}
			log.WithFields(stdFields).Info("schema applied")
			return nil
		},
	}
}

func setupLogging(c *cli.Context) error {
	log.SetFormatter(&log.JSONFormatter{})
	log.SetOutput(os.Stdout)
	lvl, err := log.ParseLevel(c.String("log-level"))
	if err != nil {
		return err
	}
	log.SetLevel(lvl)
	stdFields = log.Fields{"traceID": uuid.NewString()}
	return nil
}

func run(c *cli.Context) error {
	logger := log.WithFields(stdFields)

	reg := prometheus.NewRegistry()
	m, err := metrics.NewLoader(reg)
	if err != nil {
		return err
	}
	if addr := c.String("metrics-addr"); addr != "" {
		srv := &http.Server{Addr: addr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Error("metrics server stopped")
			}
		}()
		defer srv.Close()
	}

	db, err := store.Open(c.String("db-conn"))
	if err != nil {
		return fmt.Errorf("unable to connect: %w", err)
	}
	defer db.Close()

	open := func(ctx context.Context) (pipeline.Session, error) {
		sess, err := db.Session(ctx)
		if err != nil {
			return nil, err
		}
		return sess, nil
	}

	cfg := pipeline.Config{
		Dir:              c.String("dir"),
		Pattern:          c.String("pattern"),
		Workers:          c.Int("workers"),
		ProgressInterval: c.Duration("progress-interval"),
	}
	start := time.Now()
	sum, runErr := pipeline.New(cfg, open, logger, m).Run(c.Context)
	printSummary(sum, time.Since(start))

	if total, err := db.CountAlerts(c.Context); err != nil {
		logger.WithError(err).Warn("unable to count alerts")
	} else {
		logger.WithField("alerts", total).Info("alerts in store")
	}

	if runErr != nil {
		return cli.Exit(runErr.Error(), 1)
	}
	return nil
}

func printSummary(sum pipeline.Summary, elapsed time.Duration) {
	for _, f := range sum.Files {
		line := fmt.Sprintf("%-40s %-9s %8d attempted %6d failed", filepath.Base(f.Path), f.State, f.Result.Attempted, f.Result.Failed)
		if f.Err != nil {
			line += "  " + f.Err.Error()
		}
		fmt.Println(line)
	}
	fmt.Printf("%d files, %d attempted, %d failed, %d loaded in %s\n",
		len(sum.Files), sum.Attempted, sum.Failed, sum.Loaded, elapsed.Round(time.Millisecond))
}

func main() {
	// a missing .env is fine
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		log.WithFields(stdFields).Fatal(err)
	}
}
