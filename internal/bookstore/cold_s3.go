package bookstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"bookforge/internal/memory"
)

// S3Config configures the object-storage cold tier.
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// S3ColdStore archives full unit texts as objects keyed
// <book>/units/<number>.txt, with the title in object metadata. Objects are
// only ever added, matching the append-only cold-tier contract.
type S3ColdStore struct {
	client   *minio.Client
	bucket   string
	region   string
	initOnce sync.Once
	initErr  error
}

var _ memory.ColdStore = (*S3ColdStore)(nil)

func NewS3ColdStore(cfg S3Config) (*S3ColdStore, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("s3 access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return &S3ColdStore{client: client, bucket: bucket, region: region}, nil
}

func (s *S3ColdStore) ensureBucket(ctx context.Context) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("store is nil")
	}
	s.initOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucket)
		if err != nil {
			s.initErr = err
			return
		}
		if exists {
			return
		}
		s.initErr = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region})
	})
	return s.initErr
}

func objectKey(bookID string, number int) string {
	return fmt.Sprintf("%s/units/%04d.txt", sanitizeID(bookID), number)
}

func (s *S3ColdStore) Put(ctx context.Context, bookID string, unit memory.HotUnit) error {
	if err := s.ensureBucket(ctx); err != nil {
		return err
	}
	body := []byte(unit.Text)
	_, err := s.client.PutObject(ctx, s.bucket, objectKey(bookID, unit.Number),
		bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{
			ContentType:  "text/plain; charset=utf-8",
			UserMetadata: map[string]string{"title": unit.Title},
		})
	return err
}

func (s *S3ColdStore) Get(ctx context.Context, bookID string, number int) (memory.HotUnit, bool, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return memory.HotUnit{}, false, err
	}
	key := objectKey(bookID, number)
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return memory.HotUnit{}, false, err
	}
	defer obj.Close()

	b, err := io.ReadAll(obj)
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" {
			return memory.HotUnit{}, false, nil
		}
		return memory.HotUnit{}, false, err
	}

	title := ""
	if stat, statErr := obj.Stat(); statErr == nil {
		title = stat.UserMetadata["Title"]
	}
	return memory.HotUnit{Number: number, Title: title, Text: string(b)}, true, nil
}
