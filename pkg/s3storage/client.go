// "Тупой" клиент объектного хранилища: кладёт байты по ключу.
// Используется как зеркало локального кэша картинок.

package s3storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/ilkoid/poncho-assistants/pkg/config"
)

// Uploader - то, что нужно кэшу картинок от хранилища.
// Используется для мокания в тестах.
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
}

type Client struct {
	api    *minio.Client
	bucket string
	prefix string
}

// Проверка что Client реализует Uploader
var _ Uploader = (*Client)(nil)

// New создает клиент по секции s3 конфига.
func New(cfg config.S3Config) (*Client, error) {
	minioClient, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 client: %w", err)
	}

	return &Client{
		api:    minioClient,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// ObjectKey склеивает prefix и имя файла в ключ объекта.
func ObjectKey(prefix, name string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

// Upload кладёт байты в bucket под prefix/key.
func (c *Client) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	objectKey := ObjectKey(c.prefix, key)
	_, err := c.api.PutObject(ctx, c.bucket, objectKey, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", objectKey, err)
	}
	return nil
}
