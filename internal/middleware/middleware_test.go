package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Netsync-Automation/PracticeTools-sub004/internal/auth"
)

func serve(r *gin.Engine, method, path, authz string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTAndRequireRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	jwtSvc := auth.NewJWTService("secret", 1)
	r := gin.New()
	r.GET("/recordings", JWT(jwtSvc), RequireRole(auth.RoleAdmin, auth.RoleApprover), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextUserEmail)+"|"+c.GetString(ContextUserID))
	})
	r.GET("/admin-only", JWT(jwtSvc), RequireRole(auth.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })

	approver, err := jwtSvc.Generate("op-7", "ops@example.com", auth.RoleApprover)
	require.NoError(t, err)

	w := serve(r, http.MethodGet, "/recordings", "Bearer "+approver)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ops@example.com|op-7", w.Body.String())

	assert.Equal(t, http.StatusForbidden, serve(r, http.MethodGet, "/admin-only", "Bearer "+approver).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/recordings", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/recordings", "Basic abc").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/recordings", "Bearer garbage").Code)
}

func TestRequireRole_WithoutJWT(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", RequireRole(auth.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/x", "").Code)
}

func TestBearerSecret(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/sweep", BearerSecret("cron-secret"), func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/sweep", "Bearer cron-secret").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodPost, "/sweep", "Bearer cron-secre").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodPost, "/sweep", "cron-secret").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodPost, "/sweep", "").Code)

	open := gin.New()
	open.POST("/sweep", BearerSecret(""), func(c *gin.Context) { c.Status(http.StatusOK) })
	assert.Equal(t, http.StatusUnauthorized, serve(open, http.MethodPost, "/sweep", "Bearer ").Code)
}

func TestLoggerSetsRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Logger(zap.NewNop()))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(r, http.MethodGet, "/health", "")
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Header().Get(RequestIDHeader))
}

func TestCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS("http://admin.local"))
	r.GET("/events", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.OPTIONS("/events", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/events", nil)
	req.Header.Set("Origin", "http://admin.local")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://admin.local", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/events", nil)
	req.Header.Set("Origin", "http://evil.local")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
