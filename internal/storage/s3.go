package storage

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/eatclean/mediagw/internal/batch"
)

const defaultRegion = "us-east-1"

// S3Uploader puts files into any S3-compatible store using the session
// credentials carried by the destination.
type S3Uploader struct {
	region    string
	pathStyle bool
}

// NewS3Uploader returns an uploader for region.
func NewS3Uploader(region string, pathStyle bool) *S3Uploader {
	if region == "" {
		region = defaultRegion
	}
	return &S3Uploader{region: region, pathStyle: pathStyle}
}

func (u *S3Uploader) client(ctx context.Context, dest batch.Destination) (*s3.Client, error) {
	return newS3Client(ctx, u.region, u.pathStyle, dest.Endpoint, dest.Credentials)
}

func newS3Client(ctx context.Context, region string, pathStyle bool, endpoint string, creds batch.Credentials) (*s3.Client, error) {
	// Only the given credentials are used; shared config files are ignored.
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithSharedConfigFiles([]string{}),
		config.WithSharedCredentialsFiles([]string{}),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			creds.AccessKeyID, creds.AccessKeySecret, creds.SecurityToken)),
	)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(withScheme(endpoint))
		o.UsePathStyle = pathStyle
	}), nil
}

// PutFile uploads file as key and blocks until the store acknowledges it.
func (u *S3Uploader) PutFile(ctx context.Context, dest batch.Destination, key string, file batch.FileRef) error {
	client, err := u.client(ctx, dest)
	if err != nil {
		return fmt.Errorf("s3 client: %w", err)
	}
	f, err := os.Open(file.Path)
	if err != nil {
		return fmt.Errorf("open %s: %w", file.Path, err)
	}
	defer f.Close()

	uploader := manager.NewUploader(client)
	_, err = uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(dest.Bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType(file)),
	})
	if err != nil {
		return fmt.Errorf("s3 put %s: %w", key, err)
	}
	return nil
}
