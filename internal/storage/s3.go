package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrNotFound reports that the requested object does not exist, typically
// because the source was deleted while the job sat in the queue.
var ErrNotFound = errors.New("object not found")

type S3Client struct {
	client       *minio.Client
	sourceBucket string
	publicBucket string
	publicHost   string
	usePathStyle bool
	endpointURL  string
}

func NewS3(endpoint, accessKey, secretKey, region string, usePathStyle bool, sourceBucket, publicBucket, publicHost string) (*S3Client, error) {
	host, secure, endpointURL, err := normalizeEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	if sourceBucket == "" {
		return nil, errors.New("SOURCE_BUCKET is required")
	}
	if publicBucket == "" {
		return nil, errors.New("PUBLIC_BUCKET is required")
	}

	lookup := minio.BucketLookupAuto
	if usePathStyle {
		lookup = minio.BucketLookupPath
	}

	client, err := minio.New(host, &minio.Options{
		Creds:        credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure:       secure,
		Region:       region,
		BucketLookup: lookup,
	})
	if err != nil {
		return nil, err
	}

	return &S3Client{
		client:       client,
		sourceBucket: sourceBucket,
		publicBucket: publicBucket,
		publicHost:   strings.TrimSuffix(publicHost, "/"),
		usePathStyle: usePathStyle,
		endpointURL:  endpointURL,
	}, nil
}

// FetchSource streams the raw upload to destPath. A missing object maps to
// ErrNotFound so the caller can abort without retrying.
func (s *S3Client) FetchSource(ctx context.Context, objectKey, destPath string) error {
	err := s.client.FGetObject(ctx, s.sourceBucket, objectKey, destPath, minio.GetObjectOptions{})
	if err == nil {
		return nil
	}
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
		return fmt.Errorf("%s/%s: %w", s.sourceBucket, objectKey, ErrNotFound)
	}
	return err
}

// Upload publishes one output file to the public bucket.
func (s *S3Client) Upload(ctx context.Context, localPath, objectKey, contentType, cacheControl string) error {
	_, err := s.client.FPutObject(ctx, s.publicBucket, objectKey, localPath, minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: cacheControl,
	})
	return err
}

// ObjectURL returns the public URL for an object in the public bucket,
// preferring the CDN host when one is configured.
func (s *S3Client) ObjectURL(objectKey string) string {
	if s.publicHost != "" {
		return fmt.Sprintf("https://%s/%s", s.publicHost, objectKey)
	}
	base := strings.TrimRight(s.endpointURL, "/")
	if s.usePathStyle {
		return fmt.Sprintf("%s/%s/%s", base, s.publicBucket, objectKey)
	}
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return fmt.Sprintf("%s/%s/%s", base, s.publicBucket, objectKey)
	}
	u.Host = fmt.Sprintf("%s.%s", s.publicBucket, u.Host)
	u.Path = "/" + objectKey
	return u.String()
}

func normalizeEndpoint(raw string) (host string, secure bool, endpointURL string, err error) {
	if raw == "" {
		return "", false, "", errors.New("S3_ENDPOINT is required")
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", false, "", err
		}
		if u.Host == "" {
			return "", false, "", errors.New("invalid S3_ENDPOINT")
		}
		return u.Host, u.Scheme == "https", u.Scheme + "://" + u.Host, nil
	}
	return raw, false, "http://" + raw, nil
}
