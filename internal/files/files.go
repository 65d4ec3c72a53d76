// Package files stores uploaded avatars and attachments and hands back the
// reference string saved on users and messages.
package files

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/relaychat/internal/apperr"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Store puts an object and returns a stable reference to it.
type Store interface {
	Put(ctx context.Context, prefix, filename, contentType string, r io.Reader, size int64) (string, error)
}

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

type MinioStore struct {
	cfg    Config
	client *minio.Client
	now    func() time.Time
}

func NewMinioStore(cfg Config) (*MinioStore, error) {
	endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "http://"), "https://")
	cl, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return &MinioStore{cfg: cfg, client: cl, now: time.Now}, nil
}

func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("make bucket: %w", err)
		}
	}
	return nil
}

func (s *MinioStore) Put(ctx context.Context, prefix, filename, contentType string, r io.Reader, size int64) (string, error) {
	key := ObjectKey(prefix, filename, s.now(), uuid.New())
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.PutObject(ctx, s.cfg.Bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", apperr.Store("upload file", err)
	}
	return Ref(s.cfg.Bucket, key), nil
}

// ObjectKey lays objects out as <prefix>/<yyyy/mm/dd>/<id><ext>. Only the
// extension of the client's filename survives.
func ObjectKey(prefix, filename string, at time.Time, id uuid.UUID) string {
	ext := strings.ToLower(path.Ext(path.Base(strings.ReplaceAll(filename, "\\", "/"))))
	if len(ext) > 10 {
		ext = ""
	}
	return path.Join(prefix, at.UTC().Format("2006/01/02"), id.String()+ext)
}

// Ref is the value stored in Message.FileRef and User.Avatar.
func Ref(bucket, key string) string {
	return "/" + bucket + "/" + key
}

// Disabled rejects every upload. It is used when no object store is
// configured.
type Disabled struct{}

func (Disabled) Put(context.Context, string, string, string, io.Reader, int64) (string, error) {
	return "", apperr.Validation("file uploads are not enabled")
}
