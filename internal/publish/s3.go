package publish

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config holds optional overrides of the default AWS configuration chain.
type S3Config struct {
	Region       string
	Profile      string
	UsePathStyle bool
}

type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Publisher uploads videos to bucket under prefix.
type S3Publisher struct {
	Bucket string
	Prefix string
	client objectPutter
}

// NewS3Publisher loads the AWS configuration and creates the client.
func NewS3Publisher(ctx context.Context, bucket, prefix string, cfg S3Config) (*S3Publisher, error) {
	var loadOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.Profile))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
	})
	return &S3Publisher{Bucket: bucket, Prefix: prefix, client: client}, nil
}

// Key is the object key a local file is uploaded to.
func (p *S3Publisher) Key(file string) string {
	return path.Join(p.Prefix, filepath.Base(file))
}

func (p *S3Publisher) Publish(ctx context.Context, file string) (string, error) {
	f, err := os.Open(file)
	if err != nil {
		return "", err
	}
	defer f.Close()

	key := p.Key(file)
	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.Bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(ContentType(file)),
	})
	if err != nil {
		return "", fmt.Errorf("upload s3://%s/%s: %w", p.Bucket, key, err)
	}
	return fmt.Sprintf("s3://%s/%s", p.Bucket, key), nil
}
