package preservica

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// UploadConfig locates the S3-compatible bucket the ingest workflow watches.
type UploadConfig struct {
	Endpoint  string // host[:port], no scheme
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// objectPutter is the slice of *minio.Client the uploader needs.
type objectPutter interface {
	FPutObject(ctx context.Context, bucket, objectName, filePath string,
		opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Uploader puts packages into the ingest bucket. The object metadata tells
// the workflow which folder the package belongs under.
type Uploader struct {
	client objectPutter
	bucket string
	logger *slog.Logger
}

// NewUploader creates an Uploader backed by minio-go.
func NewUploader(cfg UploadConfig, logger *slog.Logger) (*Uploader, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("preservica: upload endpoint is required")
	}

	if cfg.Bucket == "" {
		return nil, errors.New("preservica: upload bucket is required")
	}

	if logger == nil {
		logger = slog.Default()
	}

	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("preservica: creating S3 client: %w", err)
	}

	return &Uploader{client: cli, bucket: cfg.Bucket, logger: logger}, nil
}

// UploadPackage uploads the zip at path for ingest under folder and returns
// the object key. The key is the package file name.
func (u *Uploader) UploadPackage(ctx context.Context, path string, folder *Folder) (string, error) {
	key := filepath.Base(path)
	keyID := strings.TrimSuffix(key, filepath.Ext(key))

	opts := minio.PutObjectOptions{
		ContentType: "application/zip",
		UserMetadata: map[string]string{
			"key":                       keyID,
			"name":                      key,
			"bucket":                    u.bucket,
			"status":                    "ready",
			"structuralobjectreference": folder.Ref,
		},
	}

	u.logger.Info("uploading package",
		slog.String("bucket", u.bucket),
		slog.String("key", key),
		slog.String("folder", folder.Ref),
	)

	info, err := u.client.FPutObject(ctx, u.bucket, key, path, opts)
	if err != nil {
		return "", fmt.Errorf("preservica: uploading package %s: %w", key, err)
	}

	u.logger.Debug("package uploaded",
		slog.String("key", info.Key),
		slog.String("etag", info.ETag),
		slog.Int64("size", info.Size),
	)

	return key, nil
}
