package account

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vidtube/internal/apperr"
	"vidtube/internal/auth"
	"vidtube/internal/db"
	"vidtube/internal/media"
)

type testEnv struct {
	users   *db.UserRepository
	media   *media.Fake
	service *Service
	dir     string
}

type countingCache struct {
	deleted []string
}

func (c *countingCache) Delete(_ context.Context, userID string) {
	c.deleted = append(c.deleted, userID)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	database, err := db.Open(db.DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})

	users := db.NewUserRepository(database)
	host := media.NewFake("https://cdn.example.com")
	return &testEnv{
		users:   users,
		media:   host,
		service: NewService(users, host),
		dir:     t.TempDir(),
	}
}

func (e *testEnv) tempFile(t *testing.T, name string) string {
	t.Helper()

	path := filepath.Join(e.dir, name)
	if err := os.WriteFile(path, []byte("image-bytes"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func (e *testEnv) registerAlice(t *testing.T) RegisterInput {
	t.Helper()

	return RegisterInput{
		FullName:   "Alice Liddell",
		Email:      "alice@x.com",
		Username:   "alice",
		Password:   "s3cret-pass",
		AvatarPath: e.tempFile(t, "avatar.png"),
	}
}

func assertKind(t *testing.T, err error, want apperr.Kind) {
	t.Helper()

	if err == nil {
		t.Fatalf("error = nil, want kind %v", want)
	}
	if got := apperr.KindOf(err); got != want {
		t.Fatalf("error kind = %v, want %v (err=%v)", got, want, err)
	}
}

func TestRegisterStoresProjectionWithoutPassword(t *testing.T) {
	env := newTestEnv(t)
	in := env.registerAlice(t)
	in.Username = "  Alice "
	in.FullName = "<b>Alice</b> Liddell"
	in.CoverImagePath = env.tempFile(t, "cover.png")

	user, err := env.service.Register(context.Background(), in)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if user.Username != "alice" {
		t.Fatalf("username = %q, want alice", user.Username)
	}
	if user.FullName != "Alice Liddell" {
		t.Fatalf("fullName = %q, want sanitized name", user.FullName)
	}
	if user.AvatarURL == "" || user.CoverImageURL == "" {
		t.Fatalf("media urls = %q, %q", user.AvatarURL, user.CoverImageURL)
	}

	creds, err := env.users.FindCredentialsByID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("FindCredentialsByID() error = %v", err)
	}
	if creds.PasswordHash == "s3cret-pass" {
		t.Fatal("password stored in plaintext")
	}
	if !auth.VerifyPassword("s3cret-pass", creds.PasswordHash) {
		t.Fatal("stored hash does not verify")
	}
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		mutate func(*RegisterInput)
	}{
		{"blank full name", func(in *RegisterInput) { in.FullName = "   " }},
		{"markup only full name", func(in *RegisterInput) { in.FullName = "<script></script>" }},
		{"blank email", func(in *RegisterInput) { in.Email = "" }},
		{"invalid email", func(in *RegisterInput) { in.Email = "not-an-email" }},
		{"blank username", func(in *RegisterInput) { in.Username = "\t" }},
		{"blank password", func(in *RegisterInput) { in.Password = " " }},
		{"long password", func(in *RegisterInput) { in.Password = strings.Repeat("p", 73) }},
		{"missing avatar", func(in *RegisterInput) { in.AvatarPath = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := env.registerAlice(t)
			tt.mutate(&in)
			_, err := env.service.Register(context.Background(), in)
			assertKind(t, err, apperr.KindValidation)
		})
	}

	if got := env.media.Uploaded(); len(got) != 0 {
		t.Fatalf("uploads after validation failures = %v, want none", got)
	}
}

func TestRegisterConflictBeforeUpload(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.service.Register(context.Background(), env.registerAlice(t)); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	again := env.registerAlice(t)
	again.Username = "alice2"
	_, err := env.service.Register(context.Background(), again)
	assertKind(t, err, apperr.KindConflict)

	if got := len(env.media.Uploaded()); got != 1 {
		t.Fatalf("uploads = %d, want 1", got)
	}
}

func TestRegisterConflictReportedBeforeMissingAvatar(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.service.Register(context.Background(), env.registerAlice(t)); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	again := env.registerAlice(t)
	again.AvatarPath = ""
	_, err := env.service.Register(context.Background(), again)
	assertKind(t, err, apperr.KindConflict)
}

func TestRegisterAvatarUploadFailure(t *testing.T) {
	env := newTestEnv(t)
	env.media.FailUploads(true)

	_, err := env.service.Register(context.Background(), env.registerAlice(t))
	assertKind(t, err, apperr.KindUpstream)
}

type failingCoverHost struct {
	*media.Fake
	calls int
}

func (h *failingCoverHost) Upload(ctx context.Context, localPath string) (string, bool) {
	h.calls++
	if h.calls == 2 {
		return "", false
	}
	return h.Fake.Upload(ctx, localPath)
}

func TestRegisterCoverFailureLeavesCoverEmpty(t *testing.T) {
	env := newTestEnv(t)
	host := &failingCoverHost{Fake: media.NewFake("https://cdn.example.com")}
	service := NewService(env.users, host)

	in := env.registerAlice(t)
	in.CoverImagePath = env.tempFile(t, "cover.png")
	user, err := service.Register(context.Background(), in)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if user.CoverImageURL != "" {
		t.Fatalf("cover = %q, want empty", user.CoverImageURL)
	}
}

func TestUpdateAccount(t *testing.T) {
	env := newTestEnv(t)
	cache := &countingCache{}
	env.service.SetCacheInvalidator(cache)
	alice, err := env.service.Register(context.Background(), env.registerAlice(t))
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	bobIn := env.registerAlice(t)
	bobIn.Username, bobIn.Email = "bob", "bob@x.com"
	if _, err := env.service.Register(context.Background(), bobIn); err != nil {
		t.Fatalf("Register(bob) error = %v", err)
	}

	updated, err := env.service.UpdateAccount(context.Background(), alice.ID, "Alice L.", "ALICE@new.com")
	if err != nil {
		t.Fatalf("UpdateAccount() error = %v", err)
	}
	if updated.FullName != "Alice L." || updated.Email != "alice@new.com" {
		t.Fatalf("updated = %+v", updated)
	}
	if len(cache.deleted) != 1 || cache.deleted[0] != alice.ID {
		t.Fatalf("cache invalidations = %v", cache.deleted)
	}

	_, err = env.service.UpdateAccount(context.Background(), alice.ID, "Alice", "bob@x.com")
	assertKind(t, err, apperr.KindConflict)

	_, err = env.service.UpdateAccount(context.Background(), alice.ID, "", "a@x.com")
	assertKind(t, err, apperr.KindValidation)
}

func TestUpdateAvatarDeletesPreviousAfterSwap(t *testing.T) {
	env := newTestEnv(t)
	alice, err := env.service.Register(context.Background(), env.registerAlice(t))
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	oldAvatar := alice.AvatarURL

	updated, err := env.service.UpdateAvatar(context.Background(), alice.ID, env.tempFile(t, "new.png"))
	if err != nil {
		t.Fatalf("UpdateAvatar() error = %v", err)
	}
	if updated.AvatarURL == oldAvatar || updated.AvatarURL == "" {
		t.Fatalf("avatar = %q, want new url", updated.AvatarURL)
	}
	if got := env.media.Deleted(); len(got) != 1 || got[0] != oldAvatar {
		t.Fatalf("deleted = %v, want [%s]", got, oldAvatar)
	}

	_, err = env.service.UpdateAvatar(context.Background(), alice.ID, "")
	assertKind(t, err, apperr.KindValidation)

	env.media.FailUploads(true)
	_, err = env.service.UpdateAvatar(context.Background(), alice.ID, env.tempFile(t, "again.png"))
	assertKind(t, err, apperr.KindUpstream)

	current, err := env.service.Current(context.Background(), alice.ID)
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	if current.AvatarURL != updated.AvatarURL {
		t.Fatalf("avatar changed after failed upload: %q", current.AvatarURL)
	}
}

func TestUpdateCoverImageWithoutPrevious(t *testing.T) {
	env := newTestEnv(t)
	alice, err := env.service.Register(context.Background(), env.registerAlice(t))
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	updated, err := env.service.UpdateCoverImage(context.Background(), alice.ID, env.tempFile(t, "cover.png"))
	if err != nil {
		t.Fatalf("UpdateCoverImage() error = %v", err)
	}
	if updated.CoverImageURL == "" {
		t.Fatal("cover image not set")
	}
	if got := env.media.Deleted(); len(got) != 0 {
		t.Fatalf("deleted = %v, want none", got)
	}
}

func TestCurrentMissingUser(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.service.Current(context.Background(), "usr_missing")
	assertKind(t, err, apperr.KindNotFound)
}
