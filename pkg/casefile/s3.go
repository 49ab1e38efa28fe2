package casefile

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectFetcher 下载对象到 w
type ObjectFetcher interface {
	Fetch(ctx context.Context, bucket, key string, w io.WriterAt) (int64, error)
}

// S3Config 对象存储连接参数，Endpoint 非空时使用 path-style 访问
type S3Config struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// S3Fetcher 使用 s3 manager 分片并发下载
type S3Fetcher struct {
	downloader *manager.Downloader
}

var _ ObjectFetcher = (*S3Fetcher)(nil)

const (
	downloadPartSize    = 16 * 1024 * 1024
	downloadConcurrency = 4
)

func NewS3Fetcher(ctx context.Context, cfg S3Config) (*S3Fetcher, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" || cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Fetcher{
		downloader: manager.NewDownloader(client, func(d *manager.Downloader) {
			d.PartSize = downloadPartSize
			d.Concurrency = downloadConcurrency
		}),
	}, nil
}

func (f *S3Fetcher) Fetch(ctx context.Context, bucket, key string, w io.WriterAt) (int64, error) {
	return f.downloader.Download(ctx, w, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
}
