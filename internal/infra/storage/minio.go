package storage

import (
	"bytes"
	"context"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rotisserie/eris"
)

// Options for the MinIO/S3 screenshot store.
type Options struct {
	Endpoint      string
	Region        string
	Bucket        string
	AccessKey     string
	SecretKey     string
	UseSSL        bool
	PublicBaseURL string
}

type Store struct {
	client *minio.Client
	keys   Keys
	region string
}

// New buat koneksi MinIO dan pastikan bucket ada
func New(ctx context.Context, opts Options) (*Store, error) {
	cli, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, eris.Wrap(err, "storage: new client")
	}

	exists, err := cli.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, eris.Wrapf(err, "storage: check bucket %s", opts.Bucket)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{Region: opts.Region}); err != nil {
			return nil, eris.Wrapf(err, "storage: make bucket %s", opts.Bucket)
		}
	}

	base := opts.PublicBaseURL
	if base == "" {
		base = cli.EndpointURL().String()
	}
	return &Store{
		client: cli,
		keys:   Keys{Bucket: opts.Bucket, BaseURL: base},
		region: opts.Region,
	}, nil
}

// Put uploads data under key.
func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, s.keys.Bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return classify(eris.Wrapf(err, "storage: put %s", key))
	}
	return nil
}

// Get downloads key and returns its bytes and stored content type.
func (s *Store) Get(ctx context.Context, key string) ([]byte, string, error) {
	obj, err := s.client.GetObject(ctx, s.keys.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", classify(eris.Wrapf(err, "storage: get %s", key))
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		return nil, "", classify(eris.Wrapf(err, "storage: stat %s", key))
	}
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, "", classify(eris.Wrapf(err, "storage: read %s", key))
	}
	return data, info.ContentType, nil
}

// PublicURL implementasi ObjectStore; bucket harus public-read
func (s *Store) PublicURL(key string) string {
	return s.keys.PublicURL(key)
}

// KeyFromURL implementasi ObjectStore
func (s *Store) KeyFromURL(raw string) (string, error) {
	return s.keys.KeyFromURL(raw)
}

// Check implements middleware.HealthChecker.
func (s *Store) Check(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.keys.Bucket)
	if err != nil {
		return eris.Wrap(err, "storage: health")
	}
	if !ok {
		return eris.Errorf("storage: bucket %s missing", s.keys.Bucket)
	}
	return nil
}
