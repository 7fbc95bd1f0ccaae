package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/markahope-aag/hazardos-sub008/internal/common"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in, optFns...)
	}
)

// S3Config describes an S3-compatible bucket.
type S3Config struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	// PublicBaseURL prefixes object keys in returned URLs. When empty the
	// URL is built from Endpoint and Bucket.
	PublicBaseURL string
}

// S3Uploader puts photos into an S3 bucket.
type S3Uploader struct {
	client  *s3.Client
	bucket  string
	baseURL string
}

func NewS3Uploader(ctx context.Context, c S3Config) (*S3Uploader, error) {
	if c.Bucket == "" {
		return nil, errors.New("s3 uploader: bucket is required")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(c.Region)}
	if c.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, "")))
	}
	cfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3 uploader: %w", err)
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
			o.UsePathStyle = true
		}
		// The queue owns retries.
		o.RetryMaxAttempts = 1
	})

	base := c.PublicBaseURL
	if base == "" {
		if c.Endpoint != "" {
			base = strings.TrimRight(c.Endpoint, "/") + "/" + c.Bucket
		} else {
			base = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", c.Bucket, c.Region)
		}
	}
	return &S3Uploader{client: client, bucket: c.Bucket, baseURL: strings.TrimRight(base, "/")}, nil
}

func (u *S3Uploader) Upload(ctx context.Context, req UploadRequest) (UploadResult, error) {
	key := ObjectKey(req)
	size := int64(len(req.Data))

	_, err := putObject(u.client, ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(req.Data),
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType(req)),
		Metadata:      map[string]string{"survey-id": req.SurveyID, "photo-id": req.ID},
	})
	if err != nil {
		return UploadResult{}, classifyS3(err)
	}
	return UploadResult{URL: u.baseURL + "/" + key, Size: size}, nil
}

func classifyS3(err error) error {
	var re *awshttp.ResponseError
	if errors.As(err, &re) {
		return classifyStatus(re.HTTPStatusCode(), err)
	}
	return common.Transient(err)
}
