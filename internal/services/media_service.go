package services

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MediaService stores owner logo uploads in object storage.
type MediaService interface {
	EnsureBucketExists(ctx context.Context) error
	UploadLogo(ctx context.Context, ownerID int64, reader io.Reader, size int64) (string, error)
	LogoURL(objectName string, expiry time.Duration) (string, error)
	DeleteLogo(ctx context.Context, objectName string) error
}

type minioMedia struct {
	client *minio.Client
	bucket string
}

func NewMinioMediaService(endpoint, accessKey, secretKey, bucket string, useSSL bool) (MediaService, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, err
	}
	return &minioMedia{client: client, bucket: bucket}, nil
}

func (m *minioMedia) EnsureBucketExists(ctx context.Context) error {
	found, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return err
	}
	if !found {
		return m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{})
	}
	return nil
}

// UploadLogo stores the image under a per-owner key and returns it.
func (m *minioMedia) UploadLogo(ctx context.Context, ownerID int64, reader io.Reader, size int64) (string, error) {
	objectName := fmt.Sprintf("logos/%d.jpg", ownerID)
	_, err := m.client.PutObject(ctx, m.bucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: "image/jpeg",
	})
	if err != nil {
		return "", err
	}
	return objectName, nil
}

func (m *minioMedia) LogoURL(objectName string, expiry time.Duration) (string, error) {
	url, err := m.client.PresignedGetObject(context.Background(), m.bucket, objectName, expiry, nil)
	if err != nil {
		return "", err
	}
	return url.String(), nil
}

func (m *minioMedia) DeleteLogo(ctx context.Context, objectName string) error {
	return m.client.RemoveObject(ctx, m.bucket, objectName, minio.RemoveObjectOptions{})
}
