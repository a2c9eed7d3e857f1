package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/eatclean/mediagw/internal/batch"
)

// DefaultSignTTL is how long signed URLs stay valid when the caller does
// not ask for anything else.
const DefaultSignTTL = 15 * time.Minute

// Account is the long-lived account that owns the bucket. It signs read
// URLs for objects that uploads put there.
type Account struct {
	Endpoint        string
	Bucket          string
	Region          string
	AccessKeyID     string
	AccessKeySecret string
}

func (a Account) configured() bool {
	return a.Endpoint != "" && a.Bucket != "" && a.AccessKeyID != "" && a.AccessKeySecret != ""
}

// URLSigner turns an object key into a time-limited GET URL.
type URLSigner interface {
	SignURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// NewSigner returns the signer matching cfg.Provider.
func NewSigner(cfg Config, acct Account) (URLSigner, error) {
	if !acct.configured() {
		return nil, ErrNotConfigured
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderOSS:
		return &OSSSigner{account: acct}, nil
	case ProviderS3:
		region := acct.Region
		if region == "" {
			region = cfg.Region
		}
		if region == "" {
			region = defaultRegion
		}
		return &S3Signer{account: acct, region: region, pathStyle: cfg.PathStyle}, nil
	default:
		return nil, fmt.Errorf("unsupported storage provider %q", cfg.Provider)
	}
}

// OSSSigner signs with the account's AccessKey pair.
type OSSSigner struct {
	account Account
}

// SignURL returns a signed GET URL for key. A non-positive ttl means one hour.
func (s *OSSSigner) SignURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	client, err := oss.New(withScheme(s.account.Endpoint), s.account.AccessKeyID, s.account.AccessKeySecret)
	if err != nil {
		return "", fmt.Errorf("oss client: %w", err)
	}
	bucket, err := client.Bucket(s.account.Bucket)
	if err != nil {
		return "", fmt.Errorf("oss bucket %s: %w", s.account.Bucket, err)
	}
	return bucket.SignURL(key, oss.HTTPGet, expirySeconds(ttl))
}

// S3Signer presigns GET requests against an S3-compatible store.
type S3Signer struct {
	account   Account
	region    string
	pathStyle bool
}

// SignURL returns a presigned GET URL for key. A non-positive ttl means one hour.
func (s *S3Signer) SignURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	client, err := newS3Client(ctx, s.region, s.pathStyle, s.account.Endpoint, batch.Credentials{
		AccessKeyID:     s.account.AccessKeyID,
		AccessKeySecret: s.account.AccessKeySecret,
	})
	if err != nil {
		return "", fmt.Errorf("s3 client: %w", err)
	}
	req, err := s3.NewPresignClient(client).PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.account.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(time.Duration(expirySeconds(ttl))*time.Second))
	if err != nil {
		return "", fmt.Errorf("s3 presign %s: %w", key, err)
	}
	return req.URL, nil
}

func expirySeconds(ttl time.Duration) int64 {
	if sec := int64(ttl / time.Second); sec > 0 {
		return sec
	}
	return int64(time.Hour / time.Second)
}

// ObjectKey extracts the object key from a public object URL or a bare key.
// Path-style URLs have the bucket segment removed.
func ObjectKey(raw, bucket string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("empty url")
	}
	if !strings.Contains(raw, "://") {
		return strings.TrimPrefix(raw, "/"), nil
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	key := strings.TrimPrefix(parsed.Path, "/")
	if bucket != "" {
		key = strings.TrimPrefix(key, bucket+"/")
	}
	if key == "" {
		return "", fmt.Errorf("no object key in %q", raw)
	}
	return key, nil
}
