package source

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/errgroup"

	cfg "github.com/codexrag/ingesta/internal/config"
	"github.com/codexrag/ingesta/internal/core"
)

// S3Source lists a bucket prefix and downloads each supported object into a
// temp directory so the extractor can treat everything as a local file.
type S3Source struct {
	client  *s3.Client
	bucket  string
	prefix  string
	tempDir string
}

var _ core.Source = (*S3Source)(nil)

func NewS3Source(ctx context.Context, cfg *cfg.Config) (*S3Source, error) {
	if cfg.AwsAccessKey == "" || cfg.AwsSecretKey == "" {
		return nil, fmt.Errorf("AWS credentials not set")
	}
	if cfg.AwsRegion == "" {
		return nil, fmt.Errorf("AWS_REGION not set")
	}
	if cfg.BucketName == "" {
		return nil, fmt.Errorf("S3 bucket name not set")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRegion(cfg.AwsRegion),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AwsAccessKey, cfg.AwsSecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg)
	log.Println("Connected to AWS S3 successfully")

	return &S3Source{
		client: client,
		bucket: cfg.BucketName,
		prefix: cfg.BucketPrefix,
	}, nil
}

func (s *S3Source) List(ctx context.Context) ([]core.FileRef, error) {
	tmp, err := os.MkdirTemp("", "ingesta-s3-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	s.tempDir = tmp

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list s3 objects: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, "/") || !supportedExt[strings.ToLower(filepath.Ext(key))] {
				continue
			}
			keys = append(keys, key)
		}
	}

	downloader := manager.NewDownloader(s.client)
	refs := make([]core.FileRef, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, key := range keys {
		g.Go(func() error {
			local, err := s.download(gctx, downloader, key)
			if err != nil {
				return err
			}
			refs[i] = core.FileRef{Name: filepath.Base(key), Path: local}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return refs, nil
}

func (s *S3Source) download(ctx context.Context, downloader *manager.Downloader, key string) (string, error) {
	local := filepath.Join(s.tempDir, filepath.Base(key))
	f, err := os.Create(local)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", local, err)
	}
	defer f.Close()

	ctxGet, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	if _, err := downloader.Download(ctxGet, f, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return "", fmt.Errorf("s3 download %s: %w", key, err)
	}
	return local, nil
}

// Close removes the temp directory holding downloaded objects.
func (s *S3Source) Close() error {
	if s.tempDir != "" {
		return os.RemoveAll(s.tempDir)
	}
	return nil
}
