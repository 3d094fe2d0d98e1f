package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/clinic-rota-api/internal/middleware"
	"github.com/noah-isme/clinic-rota-api/internal/models"
	"github.com/noah-isme/clinic-rota-api/internal/service"
)

func newAuthHandlerForTest(t *testing.T) *AuthHandler {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)
	svc := service.NewAuthService(validator.New(), zap.NewNop(), service.AuthConfig{
		AdminEmail:        "admin@clinic.test",
		AdminPasswordHash: string(hash),
		TokenSecret:       "test-secret",
		TokenExpiry:       time.Hour,
	})
	return NewAuthHandler(svc)
}

func TestAuthHandlerLogin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newAuthHandlerForTest(t)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader([]byte(`{"email":"admin@clinic.test","password":"secret"}`)))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Login(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.NotEmpty(t, envelope.Data["access_token"])
	assert.Equal(t, "Bearer", envelope.Data["token_type"])
}

func TestAuthHandlerLoginWrongPassword(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newAuthHandlerForTest(t)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader([]byte(`{"email":"admin@clinic.test","password":"nope"}`)))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Login(c)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthHandlerLoginMalformed(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newAuthHandlerForTest(t)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader([]byte(`{"email":`)))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Login(c)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthHandlerMe(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newAuthHandlerForTest(t)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{Email: "admin@clinic.test", Role: models.RoleAdmin})

	handler.Me(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "admin@clinic.test", envelope.Data["email"])
	assert.Equal(t, "admin", envelope.Data["role"])
}

func TestAuthHandlerMeWithoutClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newAuthHandlerForTest(t)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/auth/me", nil)

	handler.Me(c)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthHandlerLoginThroughJWTMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)
	authSvc := service.NewAuthService(validator.New(), zap.NewNop(), service.AuthConfig{
		AdminEmail:        "admin@clinic.test",
		AdminPasswordHash: string(hash),
		TokenSecret:       "test-secret",
		TokenExpiry:       time.Hour,
	})
	handler := NewAuthHandler(authSvc)

	router := gin.New()
	router.POST("/auth/login", handler.Login)
	router.GET("/auth/me", middleware.JWT(authSvc), handler.Me)

	rec := httptest.NewRecorder()
	loginReq := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader([]byte(`{"email":"admin@clinic.test","password":"secret"}`)))
	loginReq.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, loginReq)
	require.Equal(t, http.StatusOK, rec.Code)

	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	token, _ := envelope.Data["access_token"].(string)
	require.NotEmpty(t, token)

	meRec := httptest.NewRecorder()
	meReq := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	meReq.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(meRec, meReq)
	require.Equal(t, http.StatusOK, meRec.Code)

	deniedRec := httptest.NewRecorder()
	deniedReq := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	router.ServeHTTP(deniedRec, deniedReq)
	require.Equal(t, http.StatusUnauthorized, deniedRec.Code)
}
