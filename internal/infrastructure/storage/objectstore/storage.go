package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/kirillkom/conference-proceedings/internal/core/domain"
	"github.com/kirillkom/conference-proceedings/internal/infrastructure/resilience"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Storage keeps objects in an S3-compatible bucket. A PUT becomes visible only
// once the upload completes, which gives the atomic publish the core expects.
type Storage struct {
	client   *minio.Client
	bucket   string
	executor *resilience.Executor
}

func New(ctx context.Context, cfg Config, executor *resilience.Executor) (*Storage, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" || strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("minio endpoint and bucket are required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	s := &Storage{client: client, bucket: cfg.Bucket, executor: executor}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Storage) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// Save streams the body in a single attempt; the reader cannot be replayed.
func (s *Storage) Save(ctx context.Context, key string, data io.Reader) error {
	object, err := objectName(key)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, s.bucket, object, data, -1, minio.PutObjectOptions{
		ContentType: contentType(object),
	})
	if err != nil {
		return resilience.WrapTemporary("minio put", fmt.Errorf("put object %s: %w", object, err), classifyMinioError)
	}
	return nil
}

func (s *Storage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	object, err := objectName(key)
	if err != nil {
		return nil, err
	}
	if _, err := s.stat(ctx, object); err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, object, minio.GetObjectOptions{})
	if err != nil {
		return nil, resilience.WrapTemporary("minio get", fmt.Errorf("get object %s: %w", object, err), classifyMinioError)
	}
	return obj, nil
}

func (s *Storage) Exists(ctx context.Context, key string) (bool, error) {
	object, err := objectName(key)
	if err != nil {
		return false, err
	}
	if _, err := s.stat(ctx, object); err != nil {
		if domain.IsKind(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Storage) Delete(ctx context.Context, key string) error {
	object, err := objectName(key)
	if err != nil {
		return err
	}
	if err := s.client.RemoveObject(ctx, s.bucket, object, minio.RemoveObjectOptions{}); err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("remove object %s: %w", object, err)
	}
	return nil
}

func (s *Storage) stat(ctx context.Context, object string) (minio.ObjectInfo, error) {
	var info minio.ObjectInfo
	call := func(ctx context.Context) error {
		var err error
		info, err = s.client.StatObject(ctx, s.bucket, object, minio.StatObjectOptions{})
		return err
	}

	var err error
	if s.executor != nil {
		err = s.executor.Execute(ctx, "minio.stat", call, classifyMinioError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		if isNotFound(err) {
			return minio.ObjectInfo{}, domain.WrapError(domain.ErrNotFound, "stat object", fmt.Errorf("key=%s", object))
		}
		return minio.ObjectInfo{}, resilience.WrapTemporary("minio stat", fmt.Errorf("stat object %s: %w", object, err), classifyMinioError)
	}
	return info, nil
}

func objectName(key string) (string, error) {
	clean := path.Clean(strings.TrimSpace(key))
	if clean == "." || clean == "/" || strings.HasPrefix(clean, "/") || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", domain.WrapError(domain.ErrInvalidInput, "resolve object key", fmt.Errorf("key=%q", key))
	}
	return clean, nil
}

func contentType(object string) string {
	switch strings.ToLower(path.Ext(object)) {
	case ".pdf":
		return "application/pdf"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".doc":
		return "application/msword"
	default:
		return "application/octet-stream"
	}
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}

// Not-found is a permanent answer and must not open the breaker.
func classifyMinioError(err error) resilience.ErrorClassification {
	if err != nil && isNotFound(err) {
		return resilience.ErrorClassification{}
	}
	return resilience.TransientClassifier(isTransientMinioError)(err)
}

func isTransientMinioError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	resp := minio.ToErrorResponse(err)
	switch resp.StatusCode {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return resp.Code == "SlowDown" || resp.Code == "RequestTimeout"
}
