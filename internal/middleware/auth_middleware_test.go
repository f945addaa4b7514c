package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	iauth "github.com/charlesng35/salesalert/internal/auth"
)

func newTestJWT(t *testing.T) *iauth.JWTService {
	t.Helper()
	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         "secret",
		Issuer:         "test-suite",
		AccessTokenTTL: time.Minute,
	})
	require.NoError(t, err)
	return jwtSvc
}

func issue(t *testing.T, jwtSvc *iauth.JWTService, userID string, roles ...string) string {
	t.Helper()
	token, err := jwtSvc.GenerateAccessToken(iauth.AccessTokenInput{UserID: userID, Roles: roles})
	require.NoError(t, err)
	return token
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	jwtSvc := newTestJWT(t)
	token := issue(t, jwtSvc, "user-123")

	r := gin.New()
	r.GET("/secure", Auth(jwtSvc), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetString(CtxUserIDKey)})
	})

	// Missing Authorization header -> 401
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))

	// Tampered token -> 401
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.Header.Set("Authorization", "Bearer "+token+"x")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	// Valid token -> downstream handler executes
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.Equal(t, "user-123", payload["user_id"])
}

func TestAuthOrService(t *testing.T) {
	gin.SetMode(gin.TestMode)
	jwtSvc := newTestJWT(t)
	tokens := iauth.NewServiceTokens([]string{"crm-token"})

	r := gin.New()
	r.POST("/triggers", AuthOrService(jwtSvc, tokens), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service": IsServiceCaller(c),
			"user_id": c.GetString(CtxUserIDKey),
		})
	})

	call := func(header, value string) (*httptest.ResponseRecorder, map[string]any) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/triggers", nil)
		if header != "" {
			req.Header.Set(header, value)
		}
		r.ServeHTTP(w, req)
		var payload map[string]any
		_ = json.Unmarshal(w.Body.Bytes(), &payload)
		return w, payload
	}

	w, payload := call(ServiceTokenHeader, "crm-token")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, true, payload["service"])
	require.Equal(t, "", payload["user_id"])

	w, _ = call(ServiceTokenHeader, "wrong")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w, payload = call("Authorization", "Bearer "+issue(t, jwtSvc, "rep-1"))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, false, payload["service"])
	require.Equal(t, "rep-1", payload["user_id"])

	w, _ = call("", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAdmin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	jwtSvc := newTestJWT(t)
	tokens := iauth.NewServiceTokens([]string{"ops"})

	r := gin.New()
	r.DELETE("/rules/:id", AuthOrService(jwtSvc, tokens), RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	cases := []struct {
		name   string
		header string
		value  string
		status int
	}{
		{"admin", "Authorization", "Bearer " + issue(t, jwtSvc, "boss", iauth.RoleAdmin), http.StatusNoContent},
		{"rep", "Authorization", "Bearer " + issue(t, jwtSvc, "rep"), http.StatusForbidden},
		{"service", ServiceTokenHeader, "ops", http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodDelete, "/rules/r1", nil)
			req.Header.Set(tc.header, tc.value)
			r.ServeHTTP(w, req)
			require.Equal(t, tc.status, w.Code)
		})
	}
}
