package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"

	"vidtube/internal/apperr"
	"vidtube/internal/auth"
	"vidtube/internal/db"
	"vidtube/internal/media"
	"vidtube/internal/models"
)

type UserStore interface {
	Create(ctx context.Context, user *models.User, passwordHash string) error
	FindByID(ctx context.Context, id string) (*models.User, error)
	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error)
	UpdateAccount(ctx context.Context, id, fullName, email string) error
	UpdateAvatarURL(ctx context.Context, id, url string) error
	UpdateCoverImageURL(ctx context.Context, id, url string) error
}

// CacheInvalidator drops cached identity projections after a profile change.
type CacheInvalidator interface {
	Delete(ctx context.Context, userID string)
}

type RegisterInput struct {
	FullName       string
	Email          string
	Username       string
	Password       string
	AvatarPath     string
	CoverImagePath string
}

type Service struct {
	users     UserStore
	media     media.Host
	cache     CacheInvalidator
	sanitizer *bluemonday.Policy
	validate  *validator.Validate
}

func NewService(users UserStore, host media.Host) *Service {
	return &Service{
		users:     users,
		media:     host,
		sanitizer: bluemonday.StrictPolicy(),
		validate:  validator.New(),
	}
}

func (s *Service) SetCacheInvalidator(cache CacheInvalidator) {
	s.cache = cache
}

// Register creates an identity with its profile media. Uniqueness is checked
// before anything is uploaded and enforced again by the store on insert.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	fullName := s.cleanName(in.FullName)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	username := strings.ToLower(strings.TrimSpace(in.Username))

	if fullName == "" || email == "" || username == "" || strings.TrimSpace(in.Password) == "" {
		return nil, apperr.Validation("All fields are required")
	}
	if err := s.validate.Var(email, "email,max=254"); err != nil {
		return nil, apperr.Validation("Invalid email format")
	}
	if len(in.Password) > auth.MaxPasswordBytes {
		return nil, apperr.Validation("Password must be at most 72 bytes")
	}

	exists, err := s.users.ExistsByUsernameOrEmail(ctx, username, email)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("checking existing user: %w", err))
	}
	if exists {
		return nil, apperr.Conflict("User with email or username already exists")
	}

	if in.AvatarPath == "" {
		return nil, apperr.Validation("Avatar file is required")
	}

	avatarURL, ok := s.media.Upload(ctx, in.AvatarPath)
	if !ok {
		return nil, apperr.New(apperr.KindUpstream, "Error while uploading avatar")
	}

	var coverURL string
	if in.CoverImagePath != "" {
		if url, ok := s.media.Upload(ctx, in.CoverImagePath); ok {
			coverURL = url
		} else {
			slog.Warn("cover image upload failed during registration", "username", username)
		}
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		s.discardMedia(ctx, avatarURL, coverURL)
		return nil, apperr.Internal(err)
	}

	user := &models.User{
		Username:      username,
		Email:         email,
		FullName:      fullName,
		AvatarURL:     avatarURL,
		CoverImageURL: coverURL,
	}
	if err := s.users.Create(ctx, user, hash); err != nil {
		s.discardMedia(ctx, avatarURL, coverURL)
		if errors.Is(err, db.ErrDuplicate) {
			return nil, apperr.Conflict("User with email or username already exists")
		}
		return nil, apperr.Internal(fmt.Errorf("creating user: %w", err))
	}

	created, err := s.users.FindByID(ctx, user.ID)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("loading created user: %w", err))
	}

	slog.Info("user registered", "user_id", created.ID, "username", created.Username)
	return created, nil
}

func (s *Service) Current(ctx context.Context, userID string) (*models.User, error) {
	return s.load(ctx, userID)
}

func (s *Service) UpdateAccount(ctx context.Context, userID, fullName, email string) (*models.User, error) {
	fullName = s.cleanName(fullName)
	email = strings.ToLower(strings.TrimSpace(email))
	if fullName == "" || email == "" {
		return nil, apperr.Validation("All fields are required")
	}
	if err := s.validate.Var(email, "email,max=254"); err != nil {
		return nil, apperr.Validation("Invalid email format")
	}

	err := s.users.UpdateAccount(ctx, userID, fullName, email)
	switch {
	case errors.Is(err, db.ErrDuplicate):
		return nil, apperr.Conflict("Email is already in use")
	case errors.Is(err, db.ErrNotFound):
		return nil, apperr.NotFound("User does not exist")
	case err != nil:
		return nil, apperr.Internal(fmt.Errorf("updating account: %w", err))
	}

	s.invalidate(ctx, userID)
	return s.load(ctx, userID)
}

// UpdateAvatar replaces the avatar. The previous file is deleted only after
// the new URL is stored.
func (s *Service) UpdateAvatar(ctx context.Context, userID, localPath string) (*models.User, error) {
	if localPath == "" {
		return nil, apperr.Validation("Avatar file is missing")
	}
	return s.replaceMedia(ctx, userID, localPath, "avatar",
		func(u *models.User) string { return u.AvatarURL },
		s.users.UpdateAvatarURL,
	)
}

func (s *Service) UpdateCoverImage(ctx context.Context, userID, localPath string) (*models.User, error) {
	if localPath == "" {
		return nil, apperr.Validation("Cover image file is missing")
	}
	return s.replaceMedia(ctx, userID, localPath, "cover image",
		func(u *models.User) string { return u.CoverImageURL },
		s.users.UpdateCoverImageURL,
	)
}

func (s *Service) replaceMedia(
	ctx context.Context,
	userID, localPath, label string,
	current func(*models.User) string,
	store func(ctx context.Context, id, url string) error,
) (*models.User, error) {
	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	previous := current(user)

	url, ok := s.media.Upload(ctx, localPath)
	if !ok {
		return nil, apperr.New(apperr.KindUpstream, "Error while uploading "+label)
	}

	if err := store(ctx, userID, url); err != nil {
		s.media.Delete(ctx, url)
		if errors.Is(err, db.ErrNotFound) {
			return nil, apperr.NotFound("User does not exist")
		}
		return nil, apperr.Internal(fmt.Errorf("updating %s: %w", label, err))
	}

	s.invalidate(ctx, userID)
	if previous != "" {
		s.media.Delete(ctx, previous)
	}

	return s.load(ctx, userID)
}

func (s *Service) load(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound("User does not exist")
	}
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("loading user: %w", err))
	}
	return user, nil
}

func (s *Service) cleanName(raw string) string {
	return strings.TrimSpace(s.sanitizer.Sanitize(strings.TrimSpace(raw)))
}

func (s *Service) discardMedia(ctx context.Context, urls ...string) {
	for _, url := range urls {
		if url != "" {
			s.media.Delete(ctx, url)
		}
	}
}

func (s *Service) invalidate(ctx context.Context, userID string) {
	if s.cache != nil {
		s.cache.Delete(ctx, userID)
	}
}
