package media

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"vidtube/internal/blob"
	"vidtube/internal/config"
	"vidtube/internal/mediaurl"
)

type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3 stores uploads as <prefix>/<uuid><ext> in an S3-compatible bucket.
type S3 struct {
	client        s3API
	bucket        string
	prefix        string
	publicBaseURL string
	maxBytes      int64
}

func NewS3(ctx context.Context, cfg config.S3Config, maxBytes int64) (*S3, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return newS3(client, cfg, maxBytes), nil
}

func newS3(client s3API, cfg config.S3Config, maxBytes int64) *S3 {
	return &S3{
		client:        client,
		bucket:        cfg.Bucket,
		prefix:        strings.Trim(cfg.Prefix, "/"),
		publicBaseURL: publicBaseURL(cfg),
		maxBytes:      maxBytes,
	}
}

func (h *S3) Upload(ctx context.Context, localPath string) (string, bool) {
	if localPath == "" {
		return "", false
	}
	defer removeTemp(localPath)

	f, err := os.Open(localPath)
	if err != nil {
		slog.Error("error opening upload", "component", "media", "error", err)
		return "", false
	}
	defer f.Close()

	img, err := blob.PrepareImage(f, h.maxBytes)
	if err != nil {
		slog.Warn("rejected upload", "component", "media", "error", err)
		return "", false
	}

	key := path.Join(h.prefix, uuid.NewString()+img.Ext())
	_, err = h.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(h.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(img.Data),
		ContentType:   aws.String(img.MimeType),
		ContentLength: aws.Int64(int64(len(img.Data))),
	})
	if err != nil {
		slog.Error("error uploading to s3", "component", "media", "bucket", h.bucket, "key", key, "error", err)
		return "", false
	}

	return h.publicBaseURL + "/" + key, true
}

func (h *S3) Delete(ctx context.Context, url string) {
	publicID := mediaurl.PublicID(url)
	if publicID == "" {
		slog.Warn("media url has no public id", "component", "media", "url", url)
		return
	}

	out, err := h.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(h.bucket),
		Prefix: aws.String(path.Join(h.prefix, publicID)),
	})
	if err != nil {
		slog.Warn("error listing s3 objects", "component", "media", "public_id", publicID, "error", err)
		return
	}

	for _, obj := range out.Contents {
		key := aws.ToString(obj.Key)
		base := path.Base(key)
		if strings.TrimSuffix(base, path.Ext(base)) != publicID {
			continue
		}
		if _, err := h.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(h.bucket),
			Key:    aws.String(key),
		}); err != nil {
			slog.Warn("error deleting s3 object", "component", "media", "key", key, "error", err)
		}
	}
}

func publicBaseURL(cfg config.S3Config) string {
	if cfg.PublicBaseURL != "" {
		return strings.TrimRight(cfg.PublicBaseURL, "/")
	}
	if cfg.Endpoint != "" {
		endpoint := strings.TrimRight(cfg.Endpoint, "/")
		if cfg.UsePathStyle {
			return endpoint + "/" + cfg.Bucket
		}
		scheme, host, found := strings.Cut(endpoint, "://")
		if found {
			return scheme + "://" + cfg.Bucket + "." + host
		}
		return endpoint + "/" + cfg.Bucket
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
}
