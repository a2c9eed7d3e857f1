package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/eatclean/mediagw/internal/batch"
)

// DefaultSTSEndpoint is the public Aliyun STS endpoint.
const DefaultSTSEndpoint = "https://sts.aliyuncs.com"

// ErrNotConfigured is returned when the long-lived account settings needed
// for token issuing or URL signing are missing.
var ErrNotConfigured = errors.New("oss account not configured")

// STSConfig holds the RAM user allowed to assume RoleArn.
type STSConfig struct {
	Endpoint        string
	AccessKeyID     string
	AccessKeySecret string
	RoleArn         string
	Duration        time.Duration
}

// Grant is a set of temporary credentials as issued by STS.
type Grant struct {
	Credentials batch.Credentials
	Expiration  string
}

// STSIssuer calls the AssumeRole RPC of Aliyun STS.
type STSIssuer struct {
	cfg    STSConfig
	client *http.Client
	now    func() time.Time
}

// NewSTSIssuer returns an issuer; client may be nil.
func NewSTSIssuer(cfg STSConfig, client *http.Client) *STSIssuer {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if cfg.Duration <= 0 {
		cfg.Duration = time.Hour
	}
	return &STSIssuer{cfg: cfg, client: client, now: time.Now}
}

// AssumeRole requests temporary credentials for the configured role.
func (s *STSIssuer) AssumeRole(ctx context.Context) (Grant, error) {
	if s.cfg.AccessKeyID == "" || s.cfg.AccessKeySecret == "" || s.cfg.RoleArn == "" {
		return Grant{}, ErrNotConfigured
	}

	now := s.now()
	params := map[string]string{
		"Format":           "JSON",
		"Version":          "2015-04-01",
		"AccessKeyId":      s.cfg.AccessKeyID,
		"Action":           "AssumeRole",
		"RoleArn":          s.cfg.RoleArn,
		"RoleSessionName":  fmt.Sprintf("mediagw-%d", now.Unix()),
		"DurationSeconds":  strconv.Itoa(int(s.cfg.Duration / time.Second)),
		"SignatureMethod":  "HMAC-SHA1",
		"SignatureVersion": "1.0",
		"SignatureNonce":   strconv.FormatInt(now.UnixNano(), 10),
		"Timestamp":        now.UTC().Format("2006-01-02T15:04:05Z"),
	}
	params["Signature"] = signRPC(http.MethodGet, params, s.cfg.AccessKeySecret)

	endpoint := DefaultSTSEndpoint
	if strings.TrimSpace(s.cfg.Endpoint) != "" {
		endpoint = strings.TrimRight(withScheme(s.cfg.Endpoint), "/")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/?"+canonicalQuery(params), nil)
	if err != nil {
		return Grant{}, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return Grant{}, fmt.Errorf("sts request: %w", err)
	}
	defer resp.Body.Close()

	var decoded struct {
		Credentials *struct {
			AccessKeyID     string `json:"AccessKeyId"`
			AccessKeySecret string `json:"AccessKeySecret"`
			SecurityToken   string `json:"SecurityToken"`
			Expiration      string `json:"Expiration"`
		} `json:"Credentials"`
		Code    string `json:"Code"`
		Message string `json:"Message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Grant{}, fmt.Errorf("decode sts response (status %d): %w", resp.StatusCode, err)
	}
	if decoded.Credentials == nil {
		if decoded.Message != "" {
			return Grant{}, fmt.Errorf("sts %s: %s", decoded.Code, decoded.Message)
		}
		return Grant{}, fmt.Errorf("empty sts response (status %d)", resp.StatusCode)
	}

	return Grant{
		Credentials: batch.Credentials{
			AccessKeyID:     cleanField(decoded.Credentials.AccessKeyID),
			AccessKeySecret: cleanField(decoded.Credentials.AccessKeySecret),
			SecurityToken:   cleanField(decoded.Credentials.SecurityToken),
		},
		Expiration: cleanField(decoded.Credentials.Expiration),
	}, nil
}

// cleanField strips whitespace and a stray BOM some proxies add.
func cleanField(v string) string {
	v = strings.TrimPrefix(strings.TrimSpace(v), "\uFEFF")
	return strings.Map(func(r rune) rune {
		if r == '\r' || r == '\n' || r == '\t' {
			return -1
		}
		return r
	}, v)
}

// signRPC computes the signature of an Aliyun RPC style request over
// params, which must not contain Signature yet.
func signRPC(method string, params map[string]string, secret string) string {
	toSign := method + "&" + percentEncode("/") + "&" + percentEncode(canonicalQuery(params))
	h := hmac.New(sha1.New, []byte(secret+"&"))
	h.Write([]byte(toSign))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func canonicalQuery(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, percentEncode(k)+"="+percentEncode(params[k]))
	}
	return strings.Join(parts, "&")
}

func percentEncode(v string) string {
	escaped := url.QueryEscape(v)
	escaped = strings.ReplaceAll(escaped, "+", "%20")
	escaped = strings.ReplaceAll(escaped, "*", "%2A")
	return strings.ReplaceAll(escaped, "%7E", "~")
}
