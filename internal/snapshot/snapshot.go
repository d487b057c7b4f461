// Package snapshot archives copies of both stores after every successful
// mutation so an operator can repair them by hand if they ever diverge.
package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// File is one document in a snapshot.
type File struct {
	Name string
	Data []byte
}

// Snapshotter stores a labelled set of documents.
type Snapshotter interface {
	Snapshot(ctx context.Context, label string, files ...File) error
}

// Options configures the S3 archive. Credentials are static, which is what
// MinIO and most S3-compatible stores expect.
type Options struct {
	Bucket       string
	Region       string
	AccessKey    string
	SecretKey    string
	BaseEndpoint string
	Prefix       string
}

type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) objectPutter {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// S3Snapshotter uploads snapshots under <prefix>/<date>/<time>-<label>/.
type S3Snapshotter struct {
	client objectPutter
	bucket string
	prefix string
	now    func() time.Time
}

func NewS3Snapshotter(ctx context.Context, opts Options) (*S3Snapshotter, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(opts.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.AccessKey,
			opts.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if opts.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(opts.BaseEndpoint)
			o.UsePathStyle = true
		}
	})

	prefix := opts.Prefix
	if prefix == "" {
		prefix = "snapshots"
	}

	return &S3Snapshotter{client: client, bucket: opts.Bucket, prefix: prefix, now: time.Now}, nil
}

// Key returns the object key for a file of a snapshot taken at t.
func (s *S3Snapshotter) Key(t time.Time, label, name string) string {
	t = t.UTC()
	return path.Join(s.prefix, t.Format("2006/01/02"), t.Format("150405.000")+"-"+label, name)
}

func (s *S3Snapshotter) Snapshot(ctx context.Context, label string, files ...File) error {
	at := s.now()
	for _, f := range files {
		key := s.Key(at, label, f.Name)
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(f.Data),
			ContentType: aws.String("application/json"),
		})
		if err != nil {
			return fmt.Errorf("put %s: %w", key, err)
		}
	}
	return nil
}
