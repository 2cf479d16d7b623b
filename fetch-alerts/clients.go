package main

import (
	"context"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/go-redis/redis/v8"
	"github.com/hashicorp/go-retryablehttp"
)

const fetchedTTL = 30 * 24 * time.Hour

type redisCache struct {
	conn *redis.Client
}

func newRedisCache(redisURL string) (*redisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &redisCache{conn: redis.NewClient(opts)}, nil
}

func (c *redisCache) Seen(ctx context.Context, key string) (bool, error) {
	exists, err := c.conn.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}

func (c *redisCache) Mark(ctx context.Context, key string) error {
	return c.conn.Set(ctx, key, time.Now().UTC().Format(time.RFC3339), fetchedTTL).Err()
}

func (c *redisCache) Close() error { return c.conn.Close() }

type s3Uploader struct {
	uploader *s3manager.Uploader
	bucket   string
	prefix   string
}

func (u *s3Uploader) Upload(ctx context.Context, p string) error {
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = u.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		ContentType: aws.String("application/octet-stream"),
		Key:         aws.String(path.Join(u.prefix, filepath.Base(p))),
		Body:        f,
		Bucket:      aws.String(u.bucket),
	})
	return err
}

func newRetryClient(timeout time.Duration) *http.Client {
	rC := retryablehttp.NewClient()
	rC.Logger = nil
	rC.RetryMax = 3
	client := rC.StandardClient()
	client.Timeout = timeout
	return client
}
