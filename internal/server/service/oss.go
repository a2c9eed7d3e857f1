package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/eatclean/mediagw/internal/batch"
	"github.com/eatclean/mediagw/internal/storage"
)

// TokenIssuer issues temporary upload credentials.
type TokenIssuer interface {
	AssumeRole(ctx context.Context) (storage.Grant, error)
}

// STSToken is what a client needs to call the upload channel.
type STSToken struct {
	AccessKeyID     string `json:"access_key_id"`
	AccessKeySecret string `json:"access_key_secret"`
	SecurityToken   string `json:"security_token"`
	Expiration      string `json:"expiration"`
	Endpoint        string `json:"endpoint"`
	Bucket          string `json:"bucket"`
	Region          string `json:"region"`
}

// OSSService hands out upload credentials and signs read URLs for
// uploaded objects.
type OSSService struct {
	issuer  TokenIssuer
	signer  storage.URLSigner
	account storage.Account
	signTTL time.Duration
	logger  *zap.Logger
}

// NewOSSService creates OSSService. issuer and signer may be nil, in which
// case the matching operation reports storage.ErrNotConfigured.
func NewOSSService(issuer TokenIssuer, signer storage.URLSigner, acct storage.Account, signTTL time.Duration, logger *zap.Logger) *OSSService {
	if signTTL <= 0 {
		signTTL = storage.DefaultSignTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OSSService{issuer: issuer, signer: signer, account: acct, signTTL: signTTL, logger: logger}
}

// IssueToken assumes the upload role and returns the temporary credentials
// together with the bucket they are good for.
func (s *OSSService) IssueToken(ctx context.Context) (STSToken, error) {
	if s.issuer == nil || s.account.Endpoint == "" || s.account.Bucket == "" {
		return STSToken{}, storage.ErrNotConfigured
	}
	grant, err := s.issuer.AssumeRole(ctx)
	if err != nil {
		return STSToken{}, fmt.Errorf("assume role: %w", err)
	}
	creds := grant.Credentials
	if creds.AccessKeyID == "" || creds.AccessKeySecret == "" || creds.SecurityToken == "" {
		s.logger.Error("sts returned incomplete credentials",
			zap.Int("access_key_id_len", len(creds.AccessKeyID)),
			zap.Int("access_key_secret_len", len(creds.AccessKeySecret)),
			zap.Int("security_token_len", len(creds.SecurityToken)))
		return STSToken{}, fmt.Errorf("invalid sts token")
	}

	dest := batch.Destination{Endpoint: s.account.Endpoint, Bucket: s.account.Bucket}
	s.logger.Info("sts issued",
		zap.String("ak_prefix", creds.KeyPrefix()),
		zap.Int("ak_len", len(creds.AccessKeyID)),
		zap.String("endpoint", dest.EndpointHost()),
		zap.String("bucket", dest.Bucket))

	return STSToken{
		AccessKeyID:     creds.AccessKeyID,
		AccessKeySecret: creds.AccessKeySecret,
		SecurityToken:   creds.SecurityToken,
		Expiration:      grant.Expiration,
		Endpoint:        dest.EndpointHost(),
		Bucket:          dest.Bucket,
		Region:          s.account.Region,
	}, nil
}

// SignURLs signs every object URL (or bare key) in order. A non-positive
// ttl uses the configured default.
func (s *OSSService) SignURLs(ctx context.Context, urls []string, ttl time.Duration) ([]string, error) {
	if s.signer == nil {
		return nil, storage.ErrNotConfigured
	}
	if ttl <= 0 {
		ttl = s.signTTL
	}
	signed := make([]string, 0, len(urls))
	for _, raw := range urls {
		key, err := storage.ObjectKey(raw, s.account.Bucket)
		if err != nil {
			return nil, &batch.Error{Code: batch.CodeInvalidArguments, Message: "Invalid object url", Err: err}
		}
		u, err := s.signer.SignURL(ctx, key, ttl)
		if err != nil {
			return nil, fmt.Errorf("sign %s: %w", key, err)
		}
		signed = append(signed, u)
	}
	return signed, nil
}
