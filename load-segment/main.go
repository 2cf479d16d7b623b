package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/sns"
	"github.com/helloharbor/harbor-workers/cap-alerts/shared/archive"
	"github.com/helloharbor/harbor-workers/cap-alerts/shared/loader"
	"github.com/helloharbor/harbor-workers/cap-alerts/shared/store"
	log "github.com/sirupsen/logrus"
)

var (
	db         *store.DB
	dbConn     string
	downloader *s3manager.Downloader
	snsArn     = os.Getenv("SNS_ARN")
	snsClient  *sns.SNS
	stdFields  log.Fields
	traceID    = ""
)

func handler(awsCtx context.Context, req events.S3Event) error {
	setCtxFields(awsCtx)

	for _, rec := range req.Records {
		bucket := rec.S3.Bucket.Name
		key := rec.S3.Object.URLDecodedKey
		if key == "" {
			key = rec.S3.Object.Key
		}
		if !isSegment(key) {
			log.WithFields(stdFields).WithFields(log.Fields{"bucket": bucket, "key": key}).
				Info("not an archive segment, skipping")
			continue
		}

		res, err := loadObject(awsCtx, bucket, key)
		if err != nil {
			log.WithFields(stdFields).WithFields(log.Fields{"bucket": bucket, "key": key, "error": err}).
				Error("failed to load segment")
		}
		sum := loadSummary{Bucket: bucket, Key: key}
		sum.set(res, err)
		if pubErr := publishSummary(sum); pubErr != nil {
			log.WithFields(stdFields).WithFields(log.Fields{"key": key, "error": pubErr}).
				Warn("failed to publish load summary")
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func loadObject(ctx context.Context, bucket, key string) (loader.Result, error) {
	var res loader.Result

	f, err := os.CreateTemp("", "segment-*"+segmentExt(key))
	if err != nil {
		return res, fmt.Errorf("unable to create temp file: %w", err)
	}
	defer os.Remove(f.Name())
	defer f.Close()

	n, err := downloader.DownloadWithContext(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return res, fmt.Errorf("unable to download s3://%s/%s: %w", bucket, key, err)
	}
	log.WithFields(stdFields).WithFields(log.Fields{"key": key, "bytes": n}).Info("downloaded segment")

	sess, err := db.Session(ctx)
	if err != nil {
		return res, fmt.Errorf("unable to open store session: %w", err)
	}
	defer sess.Close()

	return loader.New(sess, log.WithFields(stdFields), nil).LoadFile(ctx, f.Name(), nil)
}

func publishSummary(sum loadSummary) error {
	if snsArn == "" {
		return nil
	}
	b, err := json.Marshal(sum)
	if err != nil {
		return err
	}
	msg := string(b)

	_, err = snsClient.Publish(&sns.PublishInput{
		Message:  &msg,
		TopicArn: &snsArn,
	})
	return err
}

func isSegment(key string) bool {
	ok, _ := path.Match(archive.DefaultPattern, path.Base(key))
	return ok
}

// segmentExt keeps the codec suffix so the loader picks the right decoder.
func segmentExt(key string) string {
	base := path.Base(key)
	ext := filepath.Ext(base)
	if ext == ".jsonl" {
		return ext
	}
	return filepath.Ext(base[:len(base)-len(ext)]) + ext
}

func setCtxFields(awsCtx context.Context) {
	lCtx, ok := lambdacontext.FromContext(awsCtx)

	if ok {
		traceID = lCtx.AwsRequestID
	}
	stdFields = log.Fields{"traceID": traceID}
}

func init() {
	log.SetFormatter(&log.JSONFormatter{DisableTimestamp: true})
	log.SetOutput(os.Stdout)

	required := map[string]*string{
		"DB_CONN": &dbConn,
	}
	for k, v := range required {
		tmp := os.Getenv(k)
		if len(tmp) == 0 {
			panic(fmt.Sprintf("%s is required", k))
		}
		*v = tmp
	}

	var err error
	db, err = store.Open(dbConn)
	if err != nil {
		panic(err)
	}

	sess := session.Must(session.NewSession(&aws.Config{
		Region: aws.String(os.Getenv("AWS_REGION")),
	}))
	downloader = s3manager.NewDownloader(sess)
	snsClient = sns.New(sess)
}

func main() {
	lambda.Start(handler)
}
