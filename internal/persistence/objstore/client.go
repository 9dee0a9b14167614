// Package objstore mirrors batch artefacts to an S3-compatible bucket
// (AWS S3, Cloudflare R2, MinIO).
package objstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const envPrefix = "STARTUPSIM_S3_"

var ErrNotConfigured = errors.New("objstore: endpoint, bucket and credentials are required")

type Config struct {
	Endpoint        string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	// Region defaults to "auto", which R2 expects and MinIO ignores.
	Region string
	// Prefix is prepended to every object key.
	Prefix string
}

// ConfigFromEnv reads STARTUPSIM_S3_{ENDPOINT,BUCKET,ACCESS_KEY_ID,
// SECRET_ACCESS_KEY,REGION,PREFIX}.
func ConfigFromEnv(lookup func(string) (string, bool)) Config {
	get := func(k string) string {
		v, _ := lookup(envPrefix + k)
		return strings.TrimSpace(v)
	}
	return Config{
		Endpoint:        get("ENDPOINT"),
		Bucket:          get("BUCKET"),
		AccessKeyID:     get("ACCESS_KEY_ID"),
		SecretAccessKey: get("SECRET_ACCESS_KEY"),
		Region:          get("REGION"),
		Prefix:          get("PREFIX"),
	}
}

type Client struct {
	mc     *minio.Client
	bucket string
}

// New connects to cfg.Endpoint. A bare host means https.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" || cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, ErrNotConfigured
	}
	endpoint := cfg.Endpoint
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("objstore: parse endpoint: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("objstore: invalid endpoint %q", cfg.Endpoint)
	}
	region := cfg.Region
	if region == "" {
		region = "auto"
	}
	mc, err := minio.New(u.Host, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure:       u.Scheme == "https",
		Region:       region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("objstore: %w", err)
	}
	return &Client{mc: mc, bucket: cfg.Bucket}, nil
}

// PutFile uploads localPath as objectKey.
func (c *Client) PutFile(ctx context.Context, objectKey, localPath string) error {
	key := normalizeObjectKey(objectKey)
	if key == "" {
		return fmt.Errorf("objstore: invalid object key %q", objectKey)
	}
	_, err := c.mc.FPutObject(ctx, c.bucket, key, localPath, minio.PutObjectOptions{
		ContentType: contentType(key),
	})
	if err != nil {
		return fmt.Errorf("objstore: put %s: %w", key, err)
	}
	return nil
}

func contentType(key string) string {
	switch {
	case strings.HasSuffix(key, ".csv"):
		return "text/csv"
	case strings.HasSuffix(key, ".txt"):
		return "text/plain; charset=utf-8"
	case strings.HasSuffix(key, ".zst"):
		return "application/zstd"
	}
	return "application/octet-stream"
}

// normalizeObjectKey cleans key to a relative slash path, or "" when it
// escapes the bucket root.
func normalizeObjectKey(key string) string {
	key = strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return ""
	}
	clean := strings.TrimPrefix(path.Clean("/"+key), "/")
	if clean == "" || clean == "." {
		return ""
	}
	return clean
}
