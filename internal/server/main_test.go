package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"classifieds/internal/cache"
	"classifieds/internal/config"
	"classifieds/internal/storage"
	"classifieds/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	testSecret = "test-secret-key-12345678901234567890123456789012"
	loginURL   = "/usuarios/accounts/login/"

	sellerID = uint(100)
	buyerID  = uint(200)
)

type testEnv struct {
	srv     *Server
	app     *fiber.App
	db      *gorm.DB
	factory *testutil.Factory
	store   *storage.MemoryStore
}

func testConfig() *config.Config {
	return &config.Config{
		Env:                       "test",
		Port:                      "8080",
		JWTSecret:                 testSecret,
		AuthCookie:                "access_token",
		LoginURL:                  loginURL,
		AllowedOrigins:            "http://localhost:5173",
		CategoryCacheTTL:          cache.DefaultCategoryTTL,
		MessageRateLimitPerMinute: 10,
		ImageMaxUploadMB:          1,
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	t.Setenv("APP_ENV", "test")

	db := testutil.NewSQLiteDB(t)
	store := storage.NewMemoryStore("http://images.test")
	srv, err := NewServerWithDeps(testConfig(), db, nil, store)
	require.NoError(t, err)

	return &testEnv{
		srv:     srv,
		app:     srv.NewApp(),
		db:      db,
		factory: testutil.NewFactory(t, db),
		store:   store,
	}
}

func tokenFor(t *testing.T, userID uint) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": strconv.FormatUint(uint64(userID), 10),
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

// do sends req as userID; zero means anonymous.
func (e *testEnv) do(t *testing.T, req *http.Request, userID uint) *http.Response {
	t.Helper()
	if userID != 0 {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+tokenFor(t, userID))
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (e *testEnv) get(t *testing.T, path string, userID uint) *http.Response {
	return e.do(t, httptest.NewRequest(http.MethodGet, path, nil), userID)
}

func (e *testEnv) postJSON(t *testing.T, path string, body any, userID uint) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return e.do(t, req, userID)
}

func (e *testEnv) postForm(t *testing.T, path string, values url.Values, userID uint) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationForm)
	return e.do(t, req, userID)
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, &v), string(body))
	return v
}

// requireLoginRedirect asserts a 303 to the login page that returns to next.
func requireLoginRedirect(t *testing.T, resp *http.Response, next string) {
	t.Helper()
	require.Equal(t, fiber.StatusSeeOther, resp.StatusCode)
	location, err := url.Parse(resp.Header.Get(fiber.HeaderLocation))
	require.NoError(t, err)
	require.Equal(t, loginURL, location.Path)
	require.Equal(t, next, location.Query().Get("next"))
}
