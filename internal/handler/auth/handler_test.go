package auth

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/clinicaonline/turnos-api/internal/handler/handlertest"
	"github.com/clinicaonline/turnos-api/internal/middleware"
	"github.com/clinicaonline/turnos-api/internal/model"
	"github.com/clinicaonline/turnos-api/internal/repository/memory"
	tokenstore "github.com/clinicaonline/turnos-api/internal/repository/redis"
	authsvc "github.com/clinicaonline/turnos-api/internal/service/auth"
	"github.com/clinicaonline/turnos-api/internal/service/specialty"
	"github.com/clinicaonline/turnos-api/internal/service/user"
	"github.com/clinicaonline/turnos-api/pkg/auth"
	"github.com/clinicaonline/turnos-api/pkg/security"
)

type fixture struct {
	router *gin.Engine
	store  *memory.Store
}

func setup(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := memory.NewStore()
	tokens := tokenstore.NewTokenRepository(client, nil)
	hasher := security.NewBcryptHasher(bcrypt.MinCost)
	jwtSvc := auth.NewJWTService(auth.Config{Secret: "a", RefreshSecret: "r", Issuer: "turnos-api"})

	authService := authsvc.NewService(store.Users(), store.LoginLogRepo(), tokens, jwtSvc, hasher, true)
	users := user.NewService(store.Users(), tokens, specialty.NewService(store.Specialties(), time.Minute), hasher, time.Hour)

	r := gin.New()
	v1 := r.Group("/api/v1")
	protected := v1.Group("", middleware.NewAuthMiddleware(authService).Authenticate())
	NewHandler(authService, users).RegisterRoutes(v1, protected)

	return &fixture{router: r, store: store}
}

func (f *fixture) verificationToken(t *testing.T) string {
	t.Helper()
	for _, ev := range f.store.Outbox() {
		if ev.EventType == model.EventUsuarioRegistrado {
			var p model.UserRegisteredPayload
			require.NoError(t, json.Unmarshal(ev.Payload, &p))
			return p.VerificationToken
		}
	}
	t.Fatal("no registration event")
	return ""
}

func (f *fixture) withBearer(t *testing.T, method, path, token string, body interface{}) int {
	t.Helper()
	w := handlertest.DoWithHeaders(t, f.router, method, path, body, map[string]string{"Authorization": "Bearer " + token})
	return w.Code
}

func TestSessionFlow(t *testing.T) {
	f := setup(t)
	creds := map[string]string{"email": "marta@mail.com", "password": "clave-segura"}

	w := handlertest.Do(t, f.router, http.MethodPost, "/api/v1/auth/register", map[string]interface{}{
		"email": creds["email"], "password": creds["password"], "nombre": "Marta", "apellido": "Ibáñez",
		"edad": 33, "dni": "33444555", "obra_social": "OSDE", "role": "PACIENTE",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = handlertest.Do(t, f.router, http.MethodPost, "/api/v1/auth/login", creds)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "EMAIL_NOT_CONFIRMED", handlertest.Decode(t, w, nil).Code)

	w = handlertest.Do(t, f.router, http.MethodGet, "/api/v1/auth/verify-email?token="+f.verificationToken(t), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = handlertest.Do(t, f.router, http.MethodGet, "/api/v1/auth/verify-email?token="+f.verificationToken(t), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "tokens are single use")

	w = handlertest.Do(t, f.router, http.MethodPost, "/api/v1/auth/login", creds)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var tokens model.TokenResponse
	handlertest.Decode(t, w, &tokens)
	assert.Equal(t, "Bearer", tokens.TokenType)

	assert.Equal(t, http.StatusOK, f.withBearer(t, http.MethodGet, "/api/v1/auth/me", tokens.AccessToken, nil))

	w = handlertest.Do(t, f.router, http.MethodPost, "/api/v1/auth/refresh", map[string]string{"refresh_token": tokens.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var rotated model.TokenResponse
	handlertest.Decode(t, w, &rotated)

	w = handlertest.Do(t, f.router, http.MethodPost, "/api/v1/auth/refresh", map[string]string{"refresh_token": tokens.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code, "refresh tokens rotate")

	assert.Equal(t, http.StatusOK, f.withBearer(t, http.MethodPost, "/api/v1/auth/logout", rotated.AccessToken,
		map[string]string{"refresh_token": rotated.RefreshToken}))
	assert.Equal(t, http.StatusUnauthorized, f.withBearer(t, http.MethodGet, "/api/v1/auth/me", rotated.AccessToken, nil))
}

func TestLogin_BadInput(t *testing.T) {
	f := setup(t)

	w := handlertest.Do(t, f.router, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": "no-es-email"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = handlertest.Do(t, f.router, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": "x@mail.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", handlertest.Decode(t, w, nil).Code)
}

func TestVerifyEmail_MissingToken(t *testing.T) {
	f := setup(t)
	w := handlertest.Do(t, f.router, http.MethodPost, "/api/v1/auth/verify-email", map[string]string{})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = handlertest.Do(t, f.router, http.MethodGet, "/api/v1/auth/verify-email", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogout_RequiresToken(t *testing.T) {
	f := setup(t)
	w := handlertest.Do(t, f.router, http.MethodPost, "/api/v1/auth/logout", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
