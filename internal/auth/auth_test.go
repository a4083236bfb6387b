package auth

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository/memory"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	user := domain.User{ID: "u-1", Name: "Ana", Role: domain.RoleAdministrator}

	token, exp, err := tm.GenerateToken(user)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), exp, 5*time.Second)

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.Subject)
	assert.Equal(t, domain.RoleAdministrator, claims.Role)
	assert.Equal(t, "Ana", claims.Name)
}

func TestParseTokenRejectsForeignSecretAndExpiry(t *testing.T) {
	token, _, err := NewTokenManager("other", 5).GenerateToken(domain.User{ID: "u-1"})
	require.NoError(t, err)
	_, err = NewTokenManager("secret", 5).ParseToken(token)
	assert.Error(t, err)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		Role: domain.RoleEmployee,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	signed, err := expired.SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = NewTokenManager("secret", 5).ParseToken(signed)
	assert.Error(t, err)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("pa55", bcrypt.MinCost)
	require.NoError(t, err)
	assert.NoError(t, ComparePassword(hash, "pa55"))
	assert.ErrorIs(t, ComparePassword(hash, "nope"), ErrPasswordMismatch)
	assert.ErrorIs(t, ComparePassword("", "pa55"), ErrPasswordMismatch)
}

func newProtectedApp(store *memory.Store, tm *TokenManager, roles ...domain.Role) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			domainErr := apperrors.ToDomainError(err)
			return c.Status(domainErr.HTTPStatus).SendString(domainErr.Code)
		},
	})
	mw := NewAuthMiddleware(tm, store.Repos().Users)
	app.Get("/who", mw.Handle, RequireRole(roles...), func(c *fiber.Ctx) error {
		caller, err := CallerFromContext(c)
		if err != nil {
			return err
		}
		return c.SendString(string(caller.Role))
	})
	return app
}

func doGet(t *testing.T, app *fiber.App, token string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/who", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestMiddlewareTakesRoleFromDirectory(t *testing.T) {
	store := memory.NewStore()
	tm := NewTokenManager("secret", 5)
	user := store.AddUser("Ana", "ana@example.com", domain.RoleEmployee)

	// a token claiming a higher role does not elevate the caller
	forged := user
	forged.Role = domain.RoleAdministrator
	token, _, err := tm.GenerateToken(forged)
	require.NoError(t, err)

	status, body := doGet(t, newProtectedApp(store, tm), token)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "EMPLOYEE", body)

	status, body = doGet(t, newProtectedApp(store, tm, domain.RoleAdministrator), token)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, apperrors.CodeForbidden, body)
}

func TestMiddlewareRejections(t *testing.T) {
	store := memory.NewStore()
	tm := NewTokenManager("secret", 5)
	app := newProtectedApp(store, tm)

	status, _ := doGet(t, app, "")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = doGet(t, app, "garbage")
	assert.Equal(t, http.StatusUnauthorized, status)

	user := store.AddUser("Ana", "ana@example.com", domain.RoleAgent)
	token, _, err := tm.GenerateToken(user)
	require.NoError(t, err)

	store.SetUserActive(user.ID, false)
	status, _ = doGet(t, app, token)
	assert.Equal(t, http.StatusUnauthorized, status)

	store.RemoveUser(user.ID)
	status, _ = doGet(t, app, token)
	assert.Equal(t, http.StatusUnauthorized, status)
}
