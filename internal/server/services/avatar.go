package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

const (
	MaxAvatarBytes     = 5 << 20
	AvatarUploadExpiry = 10 * time.Minute
)

var avatarExtensions = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/webp": "webp",
}

// AvatarUpload is what a client needs to push the image straight to object
// storage.
type AvatarUpload struct {
	PutURL    string
	Key       string
	PublicURL string
}

type AvatarService struct {
	db            *sql.DB
	repomanager   repomanager.RepositoryManager
	objects       ObjectStore
	publicBaseURL string
	logger        logging.Logger
	now           func() time.Time
}

func NewAvatarService(db *sql.DB, m repomanager.RepositoryManager, objects ObjectStore, publicBaseURL string, logger logging.Logger) *AvatarService {
	return &AvatarService{
		db:            db,
		repomanager:   m,
		objects:       objects,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		logger:        logger.With("module", "avatar"),
		now:           time.Now,
	}
}

func avatarPrefix(accountID string) string {
	return "avatars/" + accountID + "/"
}

func (s *AvatarService) publicURL(key string) string {
	return s.publicBaseURL + "/" + key
}

// CreateUploadURL presigns a PUT for a new avatar object. Nothing is
// recorded until Commit.
func (s *AvatarService) CreateUploadURL(ctx context.Context, accountID, contentType string, contentLength int64) (*AvatarUpload, error) {
	if accountID == "" {
		return nil, common.NewError(common.ErrorInvalidInput, "account id is required")
	}
	ext, ok := avatarExtensions[strings.ToLower(contentType)]
	if !ok {
		return nil, common.NewError(common.ErrorInvalidInput, "unsupported avatar content type")
	}
	if contentLength <= 0 || contentLength > MaxAvatarBytes {
		return nil, common.NewError(common.ErrorInvalidInput, fmt.Sprintf("avatar must be between 1 and %d bytes", MaxAvatarBytes))
	}

	key := fmt.Sprintf("%s%s.%s", avatarPrefix(accountID), uuid.New(), ext)

	url, err := s.objects.PresignPut(ctx, key, strings.ToLower(contentType), contentLength, AvatarUploadExpiry)
	if err != nil {
		return nil, internal("presign failed", err)
	}

	return &AvatarUpload{PutURL: url, Key: key, PublicURL: s.publicURL(key)}, nil
}

// Commit points the profile at an uploaded object. The previous avatar, if
// any, is removed afterwards.
func (s *AvatarService) Commit(ctx context.Context, accountID, key, etag string) (*models.Profile, error) {
	if accountID == "" || !strings.HasPrefix(key, avatarPrefix(accountID)) {
		return nil, common.NewError(common.ErrorInvalidInput, "avatar key does not belong to this account")
	}

	storedETag, err := s.objects.Head(ctx, key)
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return nil, common.NewError(common.ErrorInvalidInput, "avatar has not been uploaded")
		}
		return nil, internal("object lookup failed", err)
	}
	if etag == "" {
		etag = storedETag
	}

	repo := s.repomanager.Profiles(s.db)
	profile, err := s.profile(ctx, accountID)
	if err != nil {
		return nil, err
	}

	previous := profile.AvatarKey
	profile.AvatarKey = key
	profile.AvatarURL = s.publicURL(key)
	profile.AvatarETag = etag
	profile.UpdatedAt = s.now()

	if _, err := repo.Save(ctx, profile); err != nil {
		return nil, internal("profile update failed", err)
	}

	if previous != "" && previous != key {
		s.deleteObject(ctx, previous)
	}
	return profile, nil
}

// Delete removes the current avatar. Without one it is a no-op.
func (s *AvatarService) Delete(ctx context.Context, accountID string) error {
	profile, err := s.profile(ctx, accountID)
	if err != nil {
		return err
	}
	if profile.AvatarKey == "" {
		return nil
	}

	key := profile.AvatarKey
	profile.AvatarKey = ""
	profile.AvatarURL = ""
	profile.AvatarETag = ""
	profile.UpdatedAt = s.now()

	if _, err := s.repomanager.Profiles(s.db).Save(ctx, profile); err != nil {
		return internal("profile update failed", err)
	}

	s.deleteObject(ctx, key)
	return nil
}

func (s *AvatarService) profile(ctx context.Context, accountID string) (*models.Profile, error) {
	profile, err := s.repomanager.Profiles(s.db).FindByAccountID(ctx, accountID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.NewError(common.ErrorNotFound, "profile not found")
		}
		return nil, internal("profile lookup failed", err)
	}
	return profile, nil
}

func (s *AvatarService) deleteObject(ctx context.Context, key string) {
	if err := s.objects.Delete(ctx, key); err != nil {
		s.logger.Warn(ctx, "avatar object delete failed", "key", key, "error", err)
	}
}
