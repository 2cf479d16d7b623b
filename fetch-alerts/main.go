package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

const dateLayout = "2006-01-02"

var stdFields log.Fields

func newApp() *cli.App {
	now := time.Now().UTC()
	return &cli.App{
		Name:  "fetch-alerts",
		Usage: "download archived IPAWS alerts from OpenFEMA as jsonl segments",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "from",
				Value: fmt.Sprintf("%d-01-01", now.Year()),
				Usage: "first sent date, " + dateLayout,
			},
			&cli.StringFlag{
				Name:  "to",
				Value: now.Format(dateLayout),
				Usage: "last sent date (inclusive), " + dateLayout,
			},
			&cli.StringFlag{
				Name:  "out",
				Value: filepath.Join("data", "json"),
			},
			&cli.IntFlag{
				Name:  "page-size",
				Value: defaultPageSize,
			},
			&cli.StringFlag{
				Name:  "base-url",
				Value: defaultBaseURL,
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: 10 * time.Minute,
				Usage: "per request timeout",
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "skip segments already fetched according to redis",
				EnvVars: []string{"REDIS_URL"},
			},
			&cli.StringFlag{
				Name:    "bucket",
				Usage:   "upload every segment to this bucket",
				EnvVars: []string{"BUCKET_NAME"},
			},
			&cli.StringFlag{
				Name:  "prefix",
				Value: "ipaws-archive",
			},
			&cli.StringFlag{
				Name:    "region",
				EnvVars: []string{"AWS_REGION"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				EnvVars: []string{"LOG_LEVEL"},
			},
		},
		Action: fetch,
	}
}

func fetch(c *cli.Context) error {
	log.SetFormatter(&log.JSONFormatter{})
	log.SetOutput(os.Stdout)
	lvl, err := log.ParseLevel(c.String("log-level"))
	if err != nil {
		return err
	}
	log.SetLevel(lvl)
	stdFields = log.Fields{"traceID": uuid.NewString()}

	from, err := time.Parse(dateLayout, c.String("from"))
	if err != nil {
		return fmt.Errorf("invalid --from: %w", err)
	}
	to, err := time.Parse(dateLayout, c.String("to"))
	if err != nil {
		return fmt.Errorf("invalid --to: %w", err)
	}
	to = to.Add(24*time.Hour - time.Second)
	if to.Before(from) {
		return fmt.Errorf("--to is before --from")
	}
	if c.Int("page-size") <= 0 {
		return fmt.Errorf("--page-size must be positive")
	}

	f := &Fetcher{
		client:   newRetryClient(c.Duration("timeout")),
		baseURL:  c.String("base-url"),
		outDir:   c.String("out"),
		pageSize: c.Int("page-size"),
		log:      log.WithFields(stdFields),
	}

	if u := c.String("redis-url"); u != "" {
		cache, err := newRedisCache(u)
		if err != nil {
			return fmt.Errorf("invalid --redis-url: %w", err)
		}
		defer cache.Close()
		f.cache = cache
	}

	if bucket := c.String("bucket"); bucket != "" {
		sess := session.Must(session.NewSession(&aws.Config{
			Region: aws.String(c.String("region")),
		}))
		f.uploader = &s3Uploader{
			uploader: s3manager.NewUploader(sess),
			bucket:   bucket,
			prefix:   c.String("prefix"),
		}
	}

	start := time.Now()
	n, err := f.Run(c.Context, from, to)
	log.WithFields(stdFields).WithFields(log.Fields{
		"segments": n,
		"duration": time.Since(start).String(),
	}).Info("fetch finished")
	return err
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
