// Package profile resolves user display data for call UIs: the display name
// stamped into ring notifications and a short-lived avatar URL.
package profile

import (
	"context"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"wavelink-backend/internal/domain"
	"wavelink-backend/pkg/cache"
	apperrors "wavelink-backend/pkg/errors"
)

// UserStore loads user profiles from persistent storage.
type UserStore interface {
	GetByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)
}

// ObjectStorage is the slice of the MinIO client used for avatar URLs.
type ObjectStorage interface {
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
}

const (
	profileCacheTTL = 5 * time.Minute
	avatarURLExpiry = time.Hour
)

// Service resolves profiles with a small in-memory cache in front of the
// database. Ring latency matters; a stale display name does not.
type Service struct {
	users   UserStore
	storage ObjectStorage
	bucket  string
	cache   *cache.MemoryCache
}

// NewService creates a profile service. storage may be nil when avatar URLs
// are not needed.
func NewService(users UserStore, storage ObjectStorage, bucket string) *Service {
	return &Service{
		users:   users,
		storage: storage,
		bucket:  bucket,
		cache:   cache.NewMemoryCache(profileCacheTTL),
	}
}

// NewObjectStorage connects to MinIO for avatar delivery.
func NewObjectStorage(endpoint, accessKey, secretKey string, useSSL bool) (*minio.Client, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "Failed to create object storage client", err)
	}
	return client, nil
}

// Get returns a user's profile, served from cache when fresh.
func (s *Service) Get(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	key := userID.String()
	if cached, ok := s.cache.Get(key); ok {
		return cached.(*domain.User), nil
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeUserNotFound, "User not found", err)
	}

	s.cache.Set(key, user)
	return user, nil
}

// DisplayName resolves the name shown on the callee's ringing screen. Falls
// back to the username when no display name is set.
func (s *Service) DisplayName(ctx context.Context, userID uuid.UUID) (string, error) {
	user, err := s.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	if user.DisplayName != "" {
		return user.DisplayName, nil
	}
	return user.Username, nil
}

// AvatarURL returns a presigned URL for the user's avatar, or empty when the
// user has no avatar or storage is not configured.
func (s *Service) AvatarURL(ctx context.Context, userID uuid.UUID) (string, error) {
	if s.storage == nil {
		return "", nil
	}

	user, err := s.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	if user.AvatarKey == "" {
		return "", nil
	}

	presigned, err := s.storage.PresignedGetObject(ctx, s.bucket, user.AvatarKey, avatarURLExpiry, nil)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrCodeInternal, "Failed to presign avatar URL", err)
	}
	return presigned.String(), nil
}

// Close releases the profile cache.
func (s *Service) Close() {
	s.cache.Close()
}
