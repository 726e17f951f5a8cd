package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/spmonitor/dashboard/internal/downloads"
)

// ObjectGetter is the subset of the S3 client used by S3Fetcher.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Fetcher reads the snapshot from a public bucket: Container names the bucket and
// FileName the object key. Requests are unsigned.
type S3Fetcher struct {
	Client ObjectGetter
	Region string
	now    func() time.Time
}

// NewS3Fetcher loads an anonymous client for region. endpoint overrides the service
// endpoint for S3-compatible stores and may be empty.
func NewS3Fetcher(ctx context.Context, region, endpoint string) (*S3Fetcher, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(aws.AnonymousCredentials{}),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Fetcher{Client: client, Region: region, now: time.Now}, nil
}

// Fetch downloads the object named by conn.
func (f *S3Fetcher) Fetch(ctx context.Context, conn downloads.Connection) (downloads.Snapshot, error) {
	conn = conn.Normalize()
	location, err := conn.BucketURL()
	if err != nil {
		return downloads.Snapshot{}, err
	}

	out, err := f.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(conn.Container),
		Key:    aws.String(conn.FileName),
	})
	if err != nil {
		return downloads.Snapshot{}, &downloads.DataLoadError{URL: location, Status: statusOf(err), Message: "object request failed", Err: err}
	}
	defer func() { _ = out.Body.Close() }()

	loadedAt := time.Now()
	if f.now != nil {
		loadedAt = f.now()
	}
	return decode(location, io.Reader(out.Body), loadedAt)
}

func statusOf(err error) int {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NoSuchBucket", "NotFound":
			return 404
		case "AccessDenied":
			return 403
		}
	}
	return 0
}
