// Package objectstore stores listing images in an S3-compatible bucket.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rbroggi/recyclo/internal/core/ports"

	log "github.com/sirupsen/logrus"
)

// ClientArgs are the mandatory arguments to build a Client.
type ClientArgs struct {
	// Endpoint of the S3 service, with or without scheme.
	Endpoint string
	// AccessKey and SecretKey are static credentials.
	AccessKey string
	SecretKey string
	// Bucket receiving the uploads. Created with public read on first upload when missing.
	Bucket string
}

// ClientOptArgs are the optional arguments of a Client.
type ClientOptArgs = func(*Client)

// WithSSL enables TLS towards the endpoint.
func WithSSL(useSSL bool) ClientOptArgs {
	return func(c *Client) {
		c.useSSL = useSSL
	}
}

// WithPublicBaseURL sets the base of the returned URLs. Defaults to the endpoint.
func WithPublicBaseURL(base string) ClientOptArgs {
	return func(c *Client) {
		if base = strings.TrimSpace(base); base != "" {
			c.publicBaseURL = strings.TrimRight(base, "/")
		}
	}
}

// Client wraps a minio client.
type Client struct {
	bucket        string
	publicBaseURL string
	useSSL        bool
	client        *minio.Client

	bucketInitOnce sync.Once
	bucketInitErr  error
}

// NewClient configures a Client.
func NewClient(args ClientArgs, optArgs ...ClientOptArgs) (*Client, error) {
	endpoint := strings.TrimSpace(args.Endpoint)
	if endpoint == "" {
		return nil, errors.New("object store endpoint is required")
	}
	bucket := strings.TrimSpace(args.Bucket)
	if bucket == "" {
		return nil, errors.New("object store bucket is required")
	}
	c := &Client{bucket: bucket, publicBaseURL: strings.TrimRight(endpoint, "/")}
	for _, opt := range optArgs {
		opt(c)
	}
	client, err := minio.New(hostOf(endpoint), &minio.Options{
		Creds:  credentials.NewStaticV4(strings.TrimSpace(args.AccessKey), strings.TrimSpace(args.SecretKey), ""),
		Secure: c.useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating object store client: %w", err)
	}
	c.client = client
	return c, nil
}

// Upload stores the content under key and returns its public URL.
func (c *Client) Upload(ctx context.Context, key string, reader io.Reader, contentType string) (string, error) {
	if reader == nil {
		return "", errors.New("nil reader passed to upload")
	}
	key = strings.Trim(strings.TrimSpace(key), "/")
	if key == "" {
		return "", errors.New("object key is required")
	}
	if err := c.ensureBucket(ctx); err != nil {
		return "", err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if _, err := c.client.PutObject(ctx, c.bucket, key, reader, -1, minio.PutObjectOptions{ContentType: contentType}); err != nil {
		return "", fmt.Errorf("error putting object: %w", err)
	}
	publicURL := ObjectURL(c.publicBaseURL, c.bucket, key)
	log.WithFields(log.Fields{"bucket": c.bucket, "key": key}).Debug("object uploaded")
	return publicURL, nil
}

func (c *Client) ensureBucket(ctx context.Context) error {
	c.bucketInitOnce.Do(func() {
		exists, err := c.client.BucketExists(ctx, c.bucket)
		if err != nil {
			c.bucketInitErr = fmt.Errorf("error checking bucket: %w", err)
			return
		}
		if exists {
			return
		}
		if err := c.client.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
			c.bucketInitErr = fmt.Errorf("error creating bucket: %w", err)
			return
		}
		policy := fmt.Sprintf(`{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"AWS":["*"]},"Action":["s3:GetObject"],"Resource":["arn:aws:s3:::%s/*"]}]}`, c.bucket)
		if err := c.client.SetBucketPolicy(ctx, c.bucket, policy); err != nil {
			c.bucketInitErr = fmt.Errorf("error setting bucket policy: %w", err)
		}
	})
	return c.bucketInitErr
}

// ObjectURL joins the public base, bucket and key.
func ObjectURL(base, bucket, key string) string {
	return fmt.Sprintf("%s/%s/%s", strings.TrimRight(base, "/"), bucket, strings.TrimLeft(key, "/"))
}

func hostOf(endpoint string) string {
	if parsed, err := url.Parse(endpoint); err == nil && parsed.Host != "" {
		return parsed.Host
	}
	return endpoint
}

// ErrNotConfigured is returned by Noop.
var ErrNotConfigured = errors.New("object store is not configured")

// Noop fails every upload. It is used when no object store is configured.
type Noop struct{}

func (Noop) Upload(context.Context, string, io.Reader, string) (string, error) {
	return "", ErrNotConfigured
}

var (
	_ ports.ObjectStore = (*Client)(nil)
	_ ports.ObjectStore = Noop{}
)
