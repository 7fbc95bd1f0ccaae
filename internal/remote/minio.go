package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/markahope-aag/hazardos-sub008/internal/common"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig describes a MinIO bucket. Endpoint is host:port without a
// scheme.
type MinioConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	Region        string
	Secure        bool
	PublicBaseURL string
}

// minioClient is the subset of *minio.Client used for uploads.
type minioClient interface {
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type MinioUploader struct {
	client  minioClient
	bucket  string
	baseURL string
}

func NewMinioUploader(c MinioConfig) (*MinioUploader, error) {
	if c.Endpoint == "" || c.Bucket == "" {
		return nil, errors.New("minio uploader: endpoint and bucket are required")
	}
	client, err := minio.New(c.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.AccessKey, c.SecretKey, ""),
		Secure: c.Secure,
		Region: c.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio uploader: %w", err)
	}

	base := c.PublicBaseURL
	if base == "" {
		scheme := "http"
		if c.Secure {
			scheme = "https"
		}
		base = fmt.Sprintf("%s://%s/%s", scheme, c.Endpoint, c.Bucket)
	}
	return &MinioUploader{client: client, bucket: c.Bucket, baseURL: strings.TrimRight(base, "/")}, nil
}

func (u *MinioUploader) Upload(ctx context.Context, req UploadRequest) (UploadResult, error) {
	key := ObjectKey(req)
	info, err := u.client.PutObject(ctx, u.bucket, key, bytes.NewReader(req.Data), int64(len(req.Data)),
		minio.PutObjectOptions{
			ContentType:  contentType(req),
			UserMetadata: map[string]string{"survey-id": req.SurveyID, "photo-id": req.ID},
		})
	if err != nil {
		return UploadResult{}, classifyMinio(err)
	}
	size := info.Size
	if size == 0 {
		size = int64(len(req.Data))
	}
	return UploadResult{URL: u.baseURL + "/" + key, Size: size}, nil
}

func classifyMinio(err error) error {
	if resp := minio.ToErrorResponse(err); resp.StatusCode != 0 {
		return classifyStatus(resp.StatusCode, err)
	}
	return common.Transient(err)
}
