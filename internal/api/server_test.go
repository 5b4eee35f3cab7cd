package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"vidtube/internal/account"
	"vidtube/internal/auth"
	"vidtube/internal/config"
	"vidtube/internal/constants"
	"vidtube/internal/db"
	"vidtube/internal/media"
	"vidtube/internal/models"
	"vidtube/internal/session"
	"vidtube/internal/ws"
)

const (
	testAccessSecret  = "access-secret-access-secret-0123456789"
	testRefreshSecret = "refresh-secret-refresh-secret-0123456789"
)

type testServer struct {
	*httptest.Server
	database *db.DB
	media    *media.Fake
	hub      *ws.Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	database, err := db.Open(db.DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})

	secure := false
	cfg := &config.Config{}
	cfg.Auth.CookieSecure = &secure
	cfg.Storage.UploadMaxBytes = 1 << 20
	cfg.Storage.TempDir = t.TempDir()
	cfg.RateLimit.LoginPerMinute = 1000
	cfg.RateLimit.RefreshPerMinute = 1000

	users := db.NewUserRepository(database)
	tokens := auth.NewTokenIssuer(testAccessSecret, testRefreshSecret, 15*time.Minute, 240*time.Hour)
	hub := ws.NewHub()
	host := media.NewFake("https://cdn.example.com")

	manager := session.NewManager(users, db.NewSessionRepository(database), tokens)
	manager.SetSessionNotifier(hub)

	srv, err := NewServer(Dependencies{
		Config:   cfg,
		Sessions: manager,
		Guard:    session.NewGuard(tokens, users),
		Accounts: account.NewService(users, host),
		Hub:      hub,
		Health:   map[string]Pinger{"database": database},
	})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}

	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		ts.Close()
		srv.Shutdown()
	})

	return &testServer{Server: ts, database: database, media: host, hub: hub}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("json.Marshal() error = %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, s.URL+path, reader)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return s.send(t, req)
}

func (s *testServer) send(t *testing.T, req *http.Request) (*http.Response, []byte) {
	t.Helper()

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	return resp, data
}

func (s *testServer) register(t *testing.T, fields map[string]string, files ...string) (*http.Response, []byte) {
	t.Helper()

	req := s.multipartRequest(t, http.MethodPost, "/api/v1/users/register", "", fields, files...)
	return s.send(t, req)
}

func (s *testServer) multipartRequest(t *testing.T, method, path, token string, fields map[string]string, files ...string) *http.Request {
	t.Helper()

	body := bytes.NewBuffer(nil)
	writer := multipart.NewWriter(body)
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			t.Fatalf("WriteField() error = %v", err)
		}
	}
	for _, name := range files {
		part, err := writer.CreateFormFile(name, name+".png")
		if err != nil {
			t.Fatalf("CreateFormFile() error = %v", err)
		}
		if _, err := part.Write([]byte("\x89PNG fake image for " + name)); err != nil {
			t.Fatalf("part.Write() error = %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("writer.Close() error = %v", err)
	}

	req, err := http.NewRequest(method, s.URL+path, body)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func (s *testServer) registerAlice(t *testing.T) *models.User {
	t.Helper()

	resp, body := s.register(t, aliceFields(), avatarField)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d, want %d, body=%q", resp.StatusCode, http.StatusCreated, body)
	}
	var user models.User
	decode(t, body, &user)
	return &user
}

func (s *testServer) login(t *testing.T, username, password string) AuthResponse {
	t.Helper()

	resp, body := s.do(t, http.MethodPost, "/api/v1/users/login", "", map[string]string{
		"username": username,
		"password": password,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d, want %d, body=%q", resp.StatusCode, http.StatusOK, body)
	}
	var out AuthResponse
	decode(t, body, &out)
	return out
}

func aliceFields() map[string]string {
	return map[string]string{
		"fullName": "Alice Example",
		"email":    "alice@x.com",
		"username": "Alice",
		"password": "s3cret-pass",
	}
}

func decode(t *testing.T, body []byte, dst any) {
	t.Helper()
	if err := json.Unmarshal(body, dst); err != nil {
		t.Fatalf("json.Unmarshal() error = %v, body=%q", err, body)
	}
}

func assertErrorCode(t *testing.T, resp *http.Response, body []byte, status int, code string) {
	t.Helper()

	if resp.StatusCode != status {
		t.Fatalf("status = %d, want %d, body=%q", resp.StatusCode, status, body)
	}
	var errResp ErrorResponse
	decode(t, body, &errResp)
	if errResp.Error.Code != code {
		t.Fatalf("error.code = %q, want %q", errResp.Error.Code, code)
	}
}

func TestAliceScenario(t *testing.T) {
	srv := newTestServer(t)

	alice := srv.registerAlice(t)
	if alice.Username != "alice" || alice.Email != "alice@x.com" {
		t.Fatalf("registered user = %+v, want lowercased alice", alice)
	}
	if alice.AvatarURL == "" {
		t.Fatal("avatar URL is empty")
	}
	if alice.CoverImageURL != "" {
		t.Fatalf("cover image = %q, want empty", alice.CoverImageURL)
	}

	fields := aliceFields()
	fields["username"] = "alice2"
	resp, body := srv.register(t, fields, avatarField)
	assertErrorCode(t, resp, body, http.StatusConflict, constants.ErrCodeConflict)

	resp, body = srv.do(t, http.MethodPost, "/api/v1/users/login", "", map[string]string{
		"username": "alice",
		"password": "wrong-password",
	})
	assertErrorCode(t, resp, body, http.StatusUnauthorized, constants.ErrCodeInvalidCredentials)

	login := srv.login(t, "alice", "s3cret-pass")
	if login.AccessToken == "" || login.RefreshToken == "" {
		t.Fatalf("login tokens = %+v, want both tokens", login)
	}
	if login.User == nil || login.User.ID != alice.ID {
		t.Fatalf("login user = %+v, want %q", login.User, alice.ID)
	}

	resp, body = srv.do(t, http.MethodPost, "/api/v1/users/refresh-token", "", RefreshRequest{RefreshToken: login.RefreshToken})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh status = %d, want %d, body=%q", resp.StatusCode, http.StatusOK, body)
	}
	var refreshed AuthResponse
	decode(t, body, &refreshed)
	if refreshed.RefreshToken == "" || refreshed.RefreshToken == login.RefreshToken {
		t.Fatalf("refresh token was not rotated")
	}
	if refreshed.SessionID != login.SessionID {
		t.Fatalf("refresh session = %q, want %q", refreshed.SessionID, login.SessionID)
	}

	resp, body = srv.do(t, http.MethodPost, "/api/v1/users/refresh-token", "", RefreshRequest{RefreshToken: login.RefreshToken})
	assertErrorCode(t, resp, body, http.StatusUnauthorized, constants.ErrCodeTokenUsed)
}

func TestLoginSetsHttpOnlyCookies(t *testing.T) {
	srv := newTestServer(t)
	srv.registerAlice(t)

	resp, body := srv.do(t, http.MethodPost, "/api/v1/users/login", "", map[string]string{
		"email":    "ALICE@x.com",
		"password": "s3cret-pass",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d, body=%q", resp.StatusCode, body)
	}

	cookies := map[string]*http.Cookie{}
	for _, c := range resp.Cookies() {
		cookies[c.Name] = c
	}
	for _, name := range []string{constants.AccessTokenCookie, constants.RefreshTokenCookie} {
		c, ok := cookies[name]
		if !ok {
			t.Fatalf("cookie %q not set", name)
		}
		if !c.HttpOnly || c.Path != "/" || c.SameSite != http.SameSiteLaxMode {
			t.Fatalf("cookie %q = %+v, want HttpOnly Lax on /", name, c)
		}
	}
}

func TestRegisterValidation(t *testing.T) {
	srv := newTestServer(t)

	blank := aliceFields()
	blank["fullName"] = "   "
	badEmail := aliceFields()
	badEmail["email"] = "not-an-email"

	tests := []struct {
		name   string
		fields map[string]string
		files  []string
	}{
		{"blank field", blank, []string{avatarField}},
		{"invalid email", badEmail, []string{avatarField}},
		{"missing avatar", aliceFields(), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := srv.register(t, tt.fields, tt.files...)
			assertErrorCode(t, resp, body, http.StatusBadRequest, constants.ErrCodeInvalidRequest)
		})
	}

	if got := len(srv.media.Uploaded()); got != 0 {
		t.Fatalf("uploads = %d, want 0 for rejected registrations", got)
	}
}

func TestRegisterAvatarUploadFailure(t *testing.T) {
	srv := newTestServer(t)
	srv.media.FailUploads(true)

	resp, body := srv.register(t, aliceFields(), avatarField, coverImageField)
	assertErrorCode(t, resp, body, http.StatusBadGateway, constants.ErrCodeUpstreamFailure)
}

func TestRegisterWithCoverImage(t *testing.T) {
	srv := newTestServer(t)

	resp, body := srv.register(t, aliceFields(), avatarField, coverImageField)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d, body=%q", resp.StatusCode, body)
	}
	var user models.User
	decode(t, body, &user)
	if user.CoverImageURL == "" || user.CoverImageURL == user.AvatarURL {
		t.Fatalf("user = %+v, want distinct cover image URL", user)
	}
}

func TestLoginValidation(t *testing.T) {
	srv := newTestServer(t)

	resp, body := srv.do(t, http.MethodPost, "/api/v1/users/login", "", map[string]string{"password": "x"})
	assertErrorCode(t, resp, body, http.StatusBadRequest, constants.ErrCodeInvalidRequest)

	resp, body = srv.do(t, http.MethodPost, "/api/v1/users/login", "", map[string]string{"username": "ghost", "password": "x"})
	assertErrorCode(t, resp, body, http.StatusNotFound, constants.ErrCodeNotFound)
}

func TestGuardedRoutes(t *testing.T) {
	srv := newTestServer(t)
	alice := srv.registerAlice(t)
	login := srv.login(t, "alice", "s3cret-pass")

	resp, body := srv.do(t, http.MethodGet, "/api/v1/users/current-user", "", nil)
	assertErrorCode(t, resp, body, http.StatusUnauthorized, constants.ErrCodeUnauthorized)

	resp, body = srv.do(t, http.MethodGet, "/api/v1/users/current-user", "not-a-token", nil)
	assertErrorCode(t, resp, body, http.StatusUnauthorized, constants.ErrCodeUnauthorized)

	resp, body = srv.do(t, http.MethodGet, "/api/v1/users/current-user", login.RefreshToken, nil)
	assertErrorCode(t, resp, body, http.StatusUnauthorized, constants.ErrCodeUnauthorized)

	resp, body = srv.do(t, http.MethodGet, "/api/v1/users/current-user", login.AccessToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("current-user status = %d, body=%q", resp.StatusCode, body)
	}
	if strings.Contains(string(body), "password") || strings.Contains(string(body), "refresh") {
		t.Fatalf("current-user leaked secrets: %s", body)
	}
	var current models.User
	decode(t, body, &current)
	if current.ID != alice.ID {
		t.Fatalf("current user = %q, want %q", current.ID, alice.ID)
	}

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/users/current-user", nil)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.AddCookie(&http.Cookie{Name: constants.AccessTokenCookie, Value: login.AccessToken})
	req.Header.Set("Authorization", "Bearer not-a-token")
	resp, body = srv.send(t, req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cookie auth status = %d, want cookie to take precedence, body=%q", resp.StatusCode, body)
	}
}

func TestRefreshFromCookieAndMissingToken(t *testing.T) {
	srv := newTestServer(t)
	srv.registerAlice(t)
	login := srv.login(t, "alice", "s3cret-pass")

	resp, body := srv.do(t, http.MethodPost, "/api/v1/users/refresh-token", "", nil)
	assertErrorCode(t, resp, body, http.StatusUnauthorized, constants.ErrCodeUnauthorized)

	resp, body = srv.do(t, http.MethodPost, "/api/v1/users/refresh-token", "", RefreshRequest{RefreshToken: "garbage"})
	assertErrorCode(t, resp, body, http.StatusUnauthorized, constants.ErrCodeTokenInvalid)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/users/refresh-token", nil)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.AddCookie(&http.Cookie{Name: constants.RefreshTokenCookie, Value: login.RefreshToken})
	resp, body = srv.send(t, req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cookie refresh status = %d, body=%q", resp.StatusCode, body)
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	srv := newTestServer(t)
	srv.registerAlice(t)
	login := srv.login(t, "alice", "s3cret-pass")

	for i := 0; i < 2; i++ {
		resp, body := srv.do(t, http.MethodPost, "/api/v1/users/logout", login.AccessToken, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("logout %d status = %d, body=%q", i, resp.StatusCode, body)
		}
		cleared := 0
		for _, c := range resp.Cookies() {
			if c.MaxAge < 0 {
				cleared++
			}
		}
		if cleared != 2 {
			t.Fatalf("cleared cookies = %d, want 2", cleared)
		}
	}

	resp, body := srv.do(t, http.MethodPost, "/api/v1/users/refresh-token", "", RefreshRequest{RefreshToken: login.RefreshToken})
	assertErrorCode(t, resp, body, http.StatusUnauthorized, constants.ErrCodeTokenUsed)
}

func TestChangePasswordKeepsCurrentSession(t *testing.T) {
	srv := newTestServer(t)
	srv.registerAlice(t)
	current := srv.login(t, "alice", "s3cret-pass")
	other := srv.login(t, "alice", "s3cret-pass")

	resp, body := srv.do(t, http.MethodPost, "/api/v1/users/change-password", current.AccessToken, ChangePasswordRequest{
		OldPassword: "wrong",
		NewPassword: "n3w-pass-word",
	})
	assertErrorCode(t, resp, body, http.StatusUnauthorized, constants.ErrCodeInvalidCredentials)

	resp, body = srv.do(t, http.MethodPost, "/api/v1/users/change-password", current.AccessToken, ChangePasswordRequest{
		OldPassword: "s3cret-pass",
		NewPassword: "n3w-pass-word",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("change-password status = %d, body=%q", resp.StatusCode, body)
	}

	resp, body = srv.do(t, http.MethodPost, "/api/v1/users/refresh-token", "", RefreshRequest{RefreshToken: other.RefreshToken})
	assertErrorCode(t, resp, body, http.StatusUnauthorized, constants.ErrCodeTokenUsed)

	resp, body = srv.do(t, http.MethodPost, "/api/v1/users/refresh-token", "", RefreshRequest{RefreshToken: current.RefreshToken})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("current session refresh status = %d, body=%q", resp.StatusCode, body)
	}

	resp, body = srv.do(t, http.MethodPost, "/api/v1/users/login", "", map[string]string{"username": "alice", "password": "s3cret-pass"})
	assertErrorCode(t, resp, body, http.StatusUnauthorized, constants.ErrCodeInvalidCredentials)
	srv.login(t, "alice", "n3w-pass-word")
}

func TestSessionsAndLogoutAll(t *testing.T) {
	srv := newTestServer(t)
	srv.registerAlice(t)
	first := srv.login(t, "alice", "s3cret-pass")
	srv.login(t, "alice", "s3cret-pass")

	resp, body := srv.do(t, http.MethodGet, "/api/v1/users/sessions", first.AccessToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sessions status = %d, body=%q", resp.StatusCode, body)
	}
	var list struct {
		Sessions []session.SessionInfo `json:"sessions"`
	}
	decode(t, body, &list)
	if len(list.Sessions) != 2 {
		t.Fatalf("sessions = %d, want 2", len(list.Sessions))
	}
	currentCount := 0
	for _, s := range list.Sessions {
		if s.Current {
			currentCount++
			if s.ID != first.SessionID {
				t.Fatalf("current session = %q, want %q", s.ID, first.SessionID)
			}
		}
	}
	if currentCount != 1 {
		t.Fatalf("current sessions = %d, want 1", currentCount)
	}

	resp, body = srv.do(t, http.MethodPost, "/api/v1/users/logout-all", first.AccessToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout-all status = %d, body=%q", resp.StatusCode, body)
	}
	var out LogoutAllResponse
	decode(t, body, &out)
	if out.RevokedSessions != 2 {
		t.Fatalf("revoked sessions = %d, want 2", out.RevokedSessions)
	}
}

func TestUpdateAccountAndMedia(t *testing.T) {
	srv := newTestServer(t)
	alice := srv.registerAlice(t)
	login := srv.login(t, "alice", "s3cret-pass")

	bobFields := aliceFields()
	bobFields["username"] = "bob"
	bobFields["email"] = "bob@x.com"
	if resp, body := srv.register(t, bobFields, avatarField); resp.StatusCode != http.StatusCreated {
		t.Fatalf("register bob status = %d, body=%q", resp.StatusCode, body)
	}

	resp, body := srv.do(t, http.MethodPatch, "/api/v1/users/update-account", login.AccessToken, UpdateAccountRequest{
		FullName: "Alice Updated",
		Email:    "bob@x.com",
	})
	assertErrorCode(t, resp, body, http.StatusConflict, constants.ErrCodeConflict)

	resp, body = srv.do(t, http.MethodPatch, "/api/v1/users/update-account", login.AccessToken, UpdateAccountRequest{
		FullName: "  ",
		Email:    "alice@x.com",
	})
	assertErrorCode(t, resp, body, http.StatusBadRequest, constants.ErrCodeInvalidRequest)

	resp, body = srv.do(t, http.MethodPatch, "/api/v1/users/update-account", login.AccessToken, UpdateAccountRequest{
		FullName: "Alice Updated",
		Email:    "alice.new@x.com",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update-account status = %d, body=%q", resp.StatusCode, body)
	}
	var updated models.User
	decode(t, body, &updated)
	if updated.FullName != "Alice Updated" || updated.Email != "alice.new@x.com" {
		t.Fatalf("updated user = %+v", updated)
	}

	req := srv.multipartRequest(t, http.MethodPatch, "/api/v1/users/avatar", login.AccessToken, nil)
	resp, body = srv.send(t, req)
	assertErrorCode(t, resp, body, http.StatusBadRequest, constants.ErrCodeInvalidRequest)

	req = srv.multipartRequest(t, http.MethodPatch, "/api/v1/users/avatar", login.AccessToken, nil, avatarField)
	resp, body = srv.send(t, req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("avatar status = %d, body=%q", resp.StatusCode, body)
	}
	decode(t, body, &updated)
	if updated.AvatarURL == alice.AvatarURL {
		t.Fatal("avatar URL was not replaced")
	}
	deleted := srv.media.Deleted()
	if len(deleted) != 1 || deleted[0] != alice.AvatarURL {
		t.Fatalf("deleted media = %v, want [%s]", deleted, alice.AvatarURL)
	}

	req = srv.multipartRequest(t, http.MethodPatch, "/api/v1/users/cover-image", login.AccessToken, nil, coverImageField)
	resp, body = srv.send(t, req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cover-image status = %d, body=%q", resp.StatusCode, body)
	}
	decode(t, body, &updated)
	if updated.CoverImageURL == "" {
		t.Fatal("cover image URL is empty")
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	resp, body := srv.do(t, http.MethodGet, "/health", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d, body=%q", resp.StatusCode, body)
	}
	var out struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	decode(t, body, &out)
	if out.Status != "ok" || out.Checks["database"] != "ok" {
		t.Fatalf("health = %+v", out)
	}
}

func TestHealthReportsFailedDependency(t *testing.T) {
	handler := NewHealthHandler(map[string]Pinger{
		"cache": PingFunc(func(context.Context) error { return io.ErrUnexpectedEOF }),
	})
	rr := httptest.NewRecorder()
	handler.Check(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}
}

func TestWebSocketReceivesSessionRevoked(t *testing.T) {
	srv := newTestServer(t)
	srv.registerAlice(t)
	login := srv.login(t, "alice", "s3cret-pass")

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	if _, resp, err := websocket.DefaultDialer.Dial(wsURL, nil); err == nil {
		t.Fatal("Dial() without token succeeded, want error")
	} else if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("Dial() without token response = %v, want 401", resp)
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token="+login.AccessToken, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	var msg struct {
		Op   ws.OpCode       `json:"op"`
		Type string          `json:"t"`
		Data json.RawMessage `json:"d"`
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if msg.Op != ws.OpReady {
		t.Fatalf("first op = %d, want READY", msg.Op)
	}

	resp, body := srv.do(t, http.MethodPost, "/api/v1/users/logout", login.AccessToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout status = %d, body=%q", resp.StatusCode, body)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if msg.Type != ws.EventSessionRevoked {
		t.Fatalf("event = %q, want %q", msg.Type, ws.EventSessionRevoked)
	}
}

func TestWebSocketRejectsRevokedSession(t *testing.T) {
	srv := newTestServer(t)
	srv.registerAlice(t)
	login := srv.login(t, "alice", "s3cret-pass")

	resp, body := srv.do(t, http.MethodPost, "/api/v1/users/logout", login.AccessToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout status = %d, body=%q", resp.StatusCode, body)
	}

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + login.AccessToken
	conn, dialResp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		conn.Close()
		t.Fatal("Dial() with revoked session succeeded, want error")
	}
	if dialResp == nil || dialResp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("Dial() response = %v, want 401", dialResp)
	}
	if got := srv.hub.ConnectionCount(login.User.ID); got != 0 {
		t.Fatalf("ConnectionCount() = %d, want 0", got)
	}
}

func TestLogoutFallsBackToRefreshCookie(t *testing.T) {
	srv := newTestServer(t)
	srv.registerAlice(t)
	login := srv.login(t, "alice", "s3cret-pass")

	expiredIssuer := auth.NewTokenIssuer(testAccessSecret, testRefreshSecret, -time.Minute, time.Hour)
	expired, _, err := expiredIssuer.IssueAccessToken(login.User.ID, login.SessionID)
	if err != nil {
		t.Fatalf("IssueAccessToken() error = %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/users/logout", nil)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.AddCookie(&http.Cookie{Name: constants.AccessTokenCookie, Value: expired})
	req.AddCookie(&http.Cookie{Name: constants.RefreshTokenCookie, Value: login.RefreshToken})
	resp, body := srv.send(t, req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout status = %d, body=%q", resp.StatusCode, body)
	}

	resp, body = srv.do(t, http.MethodPost, "/api/v1/users/refresh-token", "", RefreshRequest{RefreshToken: login.RefreshToken})
	assertErrorCode(t, resp, body, http.StatusUnauthorized, constants.ErrCodeTokenUsed)
}

func TestLogoutWithoutCredentialsStillClearsCookies(t *testing.T) {
	srv := newTestServer(t)

	resp, body := srv.do(t, http.MethodPost, "/api/v1/users/logout", "", nil)
	assertErrorCode(t, resp, body, http.StatusUnauthorized, constants.ErrCodeUnauthorized)

	cleared := 0
	for _, c := range resp.Cookies() {
		if c.MaxAge < 0 {
			cleared++
		}
	}
	if cleared != 2 {
		t.Fatalf("cleared cookies = %d, want 2", cleared)
	}
}

func TestCamelCaseUserNameAccepted(t *testing.T) {
	srv := newTestServer(t)

	fields := aliceFields()
	delete(fields, "username")
	fields["userName"] = "Alice"
	resp, body := srv.register(t, fields, avatarField)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d, body=%q", resp.StatusCode, body)
	}
	var user models.User
	decode(t, body, &user)
	if user.Username != "alice" {
		t.Fatalf("username = %q, want alice", user.Username)
	}

	resp, body = srv.do(t, http.MethodPost, "/api/v1/users/login", "", map[string]string{
		"userName": "alice",
		"password": "s3cret-pass",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d, body=%q", resp.StatusCode, body)
	}
}
