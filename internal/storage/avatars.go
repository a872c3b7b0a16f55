package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"regexp"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/keyforge/keyforge/internal/config"
)

// AvatarStore keeps profile pictures in a MinIO bucket. It is optional:
// without an endpoint configured the settings flow keeps accepting plain
// image URLs.
type AvatarStore struct {
	client *minio.Client
	bucket string
}

// NewAvatarStore connects to MinIO and ensures the bucket exists.
func NewAvatarStore(cfg config.MinIOConfig) (*AvatarStore, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio config missing")
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio new: %w", err)
	}
	s := &AvatarStore{client: mc, bucket: cfg.Bucket}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := mc.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		exist, xerr := mc.BucketExists(ctx, s.bucket)
		if xerr != nil || !exist {
			return nil, fmt.Errorf("minio bucket ensure: %w", err)
		}
	}
	return s, nil
}

var avatarDataURL = regexp.MustCompile(`^data:(image/[a-z+.-]+);base64,(.+)$`)

// IsDataURL reports whether the string is an inline base64 image upload.
func IsDataURL(s string) bool {
	return avatarDataURL.MatchString(s)
}

// PutAvatar decodes an inline base64 image and stores it under the user's
// key, returning a presigned URL for the stored object.
func (s *AvatarStore) PutAvatar(ctx context.Context, userID, dataURL string) (string, error) {
	m := avatarDataURL.FindStringSubmatch(dataURL)
	if m == nil {
		return "", fmt.Errorf("not an inline image")
	}
	contentType := m[1]
	data, err := base64.StdEncoding.DecodeString(m[2])
	if err != nil {
		return "", fmt.Errorf("decode avatar: %w", err)
	}

	key := "avatars/" + userID
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("store avatar: %w", err)
	}
	return s.AvatarURL(ctx, userID)
}

// AvatarURL returns a presigned GET URL for the user's stored avatar.
func (s *AvatarStore) AvatarURL(ctx context.Context, userID string) (string, error) {
	presigned, err := s.client.PresignedGetObject(ctx, s.bucket, "avatars/"+userID,
		7*24*time.Hour, url.Values{})
	if err != nil {
		return "", err
	}
	return presigned.String(), nil
}
