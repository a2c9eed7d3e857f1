package storage

import (
	"context"
	"fmt"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"

	"github.com/eatclean/mediagw/internal/batch"
)

// OSSUploader puts files into Aliyun OSS using STS token credentials.
type OSSUploader struct {
	options []oss.ClientOption
}

// NewOSSUploader returns an uploader; extra client options are appended to
// every client it builds.
func NewOSSUploader(options ...oss.ClientOption) *OSSUploader {
	return &OSSUploader{options: options}
}

// PutFile uploads file as key and blocks until OSS acknowledges it. The
// client lives only for this call.
func (u *OSSUploader) PutFile(ctx context.Context, dest batch.Destination, key string, file batch.FileRef) error {
	creds := dest.Credentials
	opts := append([]oss.ClientOption{oss.SecurityToken(creds.SecurityToken)}, u.options...)
	client, err := oss.New(withScheme(dest.Endpoint), creds.AccessKeyID, creds.AccessKeySecret, opts...)
	if err != nil {
		return fmt.Errorf("oss client: %w", err)
	}
	bucket, err := client.Bucket(dest.Bucket)
	if err != nil {
		return fmt.Errorf("oss bucket %s: %w", dest.Bucket, err)
	}
	if err := bucket.PutObjectFromFile(key, file.Path, oss.WithContext(ctx), oss.ContentType(contentType(file))); err != nil {
		return fmt.Errorf("oss put %s: %w", key, err)
	}
	return nil
}
