package api

import (
	"context"
	"net/http"
	"strings"

	"vidtube/internal/account"
	"vidtube/internal/models"
)

const (
	avatarField     = "avatar"
	coverImageField = "coverImage"
)

type UserHandler struct {
	accounts       *account.Service
	uploadMaxBytes int64
	tempDir        string
}

func NewUserHandler(accounts *account.Service, uploadMaxBytes int64, tempDir string) *UserHandler {
	return &UserHandler{
		accounts:       accounts,
		uploadMaxBytes: uploadMaxBytes,
		tempDir:        tempDir,
	}
}

// POST /api/v1/users/register
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	upload, ok := readUploadForm(w, r, h.uploadMaxBytes, h.tempDir, avatarField, coverImageField)
	if !ok {
		return
	}
	defer upload.Cleanup()

	user, err := h.accounts.Register(r.Context(), account.RegisterInput{
		FullName:       upload.Value("fullName"),
		Email:          upload.Value("email"),
		Username:       firstNonEmpty(upload.Value("username"), upload.Value("userName")),
		Password:       upload.Value("password"),
		AvatarPath:     upload.File(avatarField),
		CoverImagePath: upload.File(coverImageField),
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// GET /api/v1/users/current-user
func (h *UserHandler) Current(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrFail(w, r)
	if !ok {
		return
	}

	user, err := h.accounts.Current(r.Context(), principal.User.ID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// PATCH /api/v1/users/update-account
type UpdateAccountRequest struct {
	FullName string `json:"fullName" validate:"max=128"`
	Email    string `json:"email" validate:"max=254"`
}

func (h *UserHandler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrFail(w, r)
	if !ok {
		return
	}

	var req UpdateAccountRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.accounts.UpdateAccount(r.Context(), principal.User.ID, req.FullName, req.Email)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// PATCH /api/v1/users/avatar
func (h *UserHandler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	h.replaceMedia(w, r, avatarField, h.accounts.UpdateAvatar)
}

// PATCH /api/v1/users/cover-image
func (h *UserHandler) UpdateCoverImage(w http.ResponseWriter, r *http.Request) {
	h.replaceMedia(w, r, coverImageField, h.accounts.UpdateCoverImage)
}

func (h *UserHandler) replaceMedia(
	w http.ResponseWriter,
	r *http.Request,
	field string,
	update func(ctx context.Context, userID, localPath string) (*models.User, error),
) {
	principal, ok := principalOrFail(w, r)
	if !ok {
		return
	}

	upload, ok := readUploadForm(w, r, h.uploadMaxBytes, h.tempDir, field)
	if !ok {
		return
	}
	defer upload.Cleanup()

	user, err := update(r.Context(), principal.User.ID, upload.File(field))
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
