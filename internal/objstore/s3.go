// SPDX-License-Identifier: MIT

// Package objstore uploads files to S3-compatible object storage. The cloud
// strategy stages sources through it, and locally-produced renditions can be
// published through it as a post-processing step.
package objstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/InsiderP/video-streaming/internal/config"
)

// S3Store wraps an S3 client for one bucket.
type S3Store struct {
	client *s3.Client
	bucket string
	public string // base URL for delivery references
	logger zerolog.Logger
}

// New builds an S3Store from the cloud configuration.
func New(ctx context.Context, cfg config.CloudConfig, logger zerolog.Logger) (*S3Store, error) {
	if !cfg.Configured() {
		return nil, fmt.Errorf("objstore: cloud credentials not configured")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.StaticCredentialsProvider{
			Value: aws.Credentials{
				AccessKeyID:     cfg.AccessKey,
				SecretAccessKey: cfg.SecretKey,
			},
		}),
	}
	if cfg.S3Config.Endpoint != "" {
		opts = append(opts, awsconfig.WithBaseEndpoint(cfg.S3Config.Endpoint))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("objstore: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.S3Config.UsePathStyle
	})

	return &S3Store{
		client: client,
		bucket: cfg.Bucket,
		public: publicBase(cfg),
		logger: logger,
	}, nil
}

// Upload stores the file at path under key and returns the canonical
// object reference.
func (s *S3Store) Upload(ctx context.Context, path, key string) (string, error) {
	file, err := os.Open(path) // #nosec G304 -- path originates from the pipeline's own output dirs
	if err != nil {
		return "", fmt.Errorf("objstore: open %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String(contentTypeFor(path)),
	})
	if err != nil {
		return "", fmt.Errorf("objstore: put %s: %w", key, err)
	}

	s.logger.Debug().Str("key", key).Str("path", path).Msg("uploaded object")
	return s.ObjectURL(key), nil
}

// UploadDir uploads every file under dir with the given key prefix and
// returns the delivery URL of the named entry file.
func (s *S3Store) UploadDir(ctx context.Context, dir, prefix, entryFile string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("objstore: read dir %s: %w", dir, err)
	}

	var entryURL string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		key := prefix + "/" + e.Name()
		url, err := s.Upload(ctx, filepath.Join(dir, e.Name()), key)
		if err != nil {
			return "", err
		}
		if e.Name() == entryFile {
			entryURL = url
		}
	}
	if entryURL == "" {
		return "", fmt.Errorf("objstore: entry file %s not found in %s", entryFile, dir)
	}
	return entryURL, nil
}

// ObjectURL returns the delivery URL for a stored key.
func (s *S3Store) ObjectURL(key string) string {
	return s.public + "/" + key
}

func publicBase(cfg config.CloudConfig) string {
	if cfg.S3Config.Endpoint != "" {
		base := strings.TrimRight(cfg.S3Config.Endpoint, "/")
		if cfg.S3Config.UsePathStyle {
			return base + "/" + cfg.Bucket
		}
		return base
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
}

func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".m3u8":
		return "application/vnd.apple.mpegurl"
	case ".ts":
		return "video/mp2t"
	case ".mp4":
		return "video/mp4"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}
