package loader

import (
	"context"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docrag/internal/model"
	appErr "github.com/xxxsen/docrag/internal/pkg/errors"
)

// S3API is the subset of *s3.Client the loader needs.
type S3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

type s3Config struct {
	Endpoint       string `json:"endpoint"`
	Region         string `json:"region"`
	SecretID       string `json:"secret_id"`
	SecretKey      string `json:"secret_key"`
	ForcePathStyle bool   `json:"force_path_style"`
}

type s3Source struct {
	client S3API
}

func init() {
	Register("s3", createS3Source)
}

func createS3Source(args interface{}) (Source, error) {
	cfg := &s3Config{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.SecretID != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.SecretID, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})
	return NewS3Source(client), nil
}

func NewS3Source(client S3API) Source {
	return &s3Source{client: client}
}

func (s *s3Source) Type() string {
	return "s3"
}

// ParseS3URL splits s3://bucket/prefix.
func ParseS3URL(root string) (string, string, error) {
	rest := strings.TrimPrefix(root, "s3://")
	if rest == root {
		return "", "", fmt.Errorf("not an s3 url: %s", root)
	}
	bucket, prefix, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("s3 url has no bucket: %s", root)
	}
	return bucket, prefix, nil
}

// UnderS3Root reports whether source lies under root. Buckets must match
// exactly; keys use the same prefix semantics as the object listing.
func UnderS3Root(source, root string) bool {
	rootBucket, rootPrefix, err := ParseS3URL(root)
	if err != nil {
		return false
	}
	bucket, key, err := ParseS3URL(source)
	if err != nil {
		return false
	}
	return bucket == rootBucket && strings.HasPrefix(key, rootPrefix)
}

func (s *s3Source) Open(ctx context.Context, root string, match func(name string) bool) (iter.Seq2[*model.Document, error], error) {
	bucket, prefix, err := ParseS3URL(root)
	if err != nil {
		return nil, &appErr.InvalidPathError{Path: root, Err: err}
	}
	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err != nil {
		return nil, &appErr.InvalidPathError{Path: root, Err: err}
	}
	return func(yield func(*model.Document, error) bool) {
		paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
			Bucket: aws.String(bucket),
			Prefix: aws.String(prefix),
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					err = ctx.Err()
				}
				yield(nil, &appErr.FileReadError{Path: root, Err: err})
				return
			}
			for _, obj := range page.Contents {
				if err := ctx.Err(); err != nil {
					yield(nil, err)
					return
				}
				key := aws.ToString(obj.Key)
				if strings.HasSuffix(key, "/") || !match(key) {
					continue
				}
				doc, err := s.read(ctx, bucket, key)
				if err != nil {
					if !yield(nil, err) {
						return
					}
					continue
				}
				if doc == nil {
					continue
				}
				if !yield(doc, nil) {
					return
				}
			}
		}
	}, nil
}

func (s *s3Source) read(ctx context.Context, bucket, key string) (*model.Document, error) {
	source := "s3://" + bucket + "/" + key
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, &appErr.FileReadError{Path: source, Err: err}
	}
	defer out.Body.Close()
	content, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, &appErr.FileReadError{Path: source, Err: err}
	}
	text := toText(content)
	if isBlank(text) {
		logutil.GetLogger(ctx).Debug("skip blank object", zap.String("source", source))
		return nil, nil
	}
	return &model.Document{
		Source:   source,
		Content:  text,
		Markdown: isMarkdown(key),
	}, nil
}
