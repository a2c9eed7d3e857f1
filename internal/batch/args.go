package batch

import (
	"encoding/json"
	"math"
	"strings"
)

// DefaultPrefix is used when an upload request carries no prefix.
const DefaultPrefix = "uploads"

// Credentials are short-lived STS credentials supplied by the caller.
// They are held for the duration of one batch and never persisted.
type Credentials struct {
	AccessKeyID     string
	AccessKeySecret string
	SecurityToken   string
}

// KeyPrefix is the loggable head of the access key id.
func (c Credentials) KeyPrefix() string {
	id := c.AccessKeyID
	if len(id) > 12 {
		id = id[:12]
	}
	return id + "***"
}

// Destination describes where an upload batch lands.
type Destination struct {
	Endpoint    string
	Bucket      string
	Credentials Credentials
	Prefix      string
	OwnerID     int64
}

// EndpointHost is the endpoint with any http(s) scheme removed.
func (d Destination) EndpointHost() string {
	host := strings.TrimSpace(d.Endpoint)
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")
	return strings.TrimRight(host, "/")
}

// PublicURL is the address an uploaded object is served from.
func (d Destination) PublicURL(key string) string {
	return "https://" + d.Bucket + "." + d.EndpointHost() + "/" + key
}

// ExtractRequest asks for text extraction over Files.
type ExtractRequest struct {
	Files []FileRef
}

// UploadRequest asks for Files to be uploaded to Destination.
type UploadRequest struct {
	Files       []FileRef
	Destination Destination
}

// ParseExtractArgs decodes the arguments of a recognizeText call.
func (r Resolver) ParseExtractArgs(args map[string]any) (ExtractRequest, error) {
	if args == nil {
		return ExtractRequest{}, invalidArgs("Missing image paths")
	}
	files, err := r.Resolve(args["paths"])
	if err != nil {
		return ExtractRequest{}, err
	}
	return ExtractRequest{Files: files}, nil
}

// ParseUploadArgs decodes the arguments of an uploadImages call. Every
// required field is checked before any file is touched.
func (r Resolver) ParseUploadArgs(args map[string]any) (UploadRequest, error) {
	if args == nil {
		return UploadRequest{}, invalidArgs("Missing arguments")
	}
	files, err := r.Resolve(args["paths"])
	if err != nil {
		return UploadRequest{}, invalidArgs("Missing OSS parameters")
	}

	var dest Destination
	required := []struct {
		name string
		dst  *string
	}{
		{"endpoint", &dest.Endpoint},
		{"bucket", &dest.Bucket},
		{"accessKeyId", &dest.Credentials.AccessKeyID},
		{"accessKeySecret", &dest.Credentials.AccessKeySecret},
		{"securityToken", &dest.Credentials.SecurityToken},
	}
	for _, f := range required {
		v, ok := args[f.name].(string)
		if !ok || strings.TrimSpace(v) == "" {
			return UploadRequest{}, invalidArgs("Missing OSS parameters")
		}
		*f.dst = strings.TrimSpace(v)
	}

	dest.Prefix = DefaultPrefix
	if p, ok := args["prefix"].(string); ok {
		if p = strings.Trim(strings.TrimSpace(p), "/"); p != "" {
			dest.Prefix = p
		}
	}
	dest.OwnerID = ownerID(args["userId"])

	return UploadRequest{Files: files, Destination: dest}, nil
}

// ownerID accepts integral JSON numbers; anything else yields 0.
func ownerID(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		if n == math.Trunc(n) && !math.IsInf(n, 0) {
			return int64(n)
		}
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
	}
	return 0
}
