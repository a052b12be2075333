package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signed(t *testing.T, secret, role string, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	})
	s, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

// TestRequireRole проверяет проверку токена и роли
func TestRequireRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hour := time.Now().Add(time.Hour)

	tests := []struct {
		name   string
		secret string
		header string
		want   int
	}{
		{"auth disabled", "", "", http.StatusOK},
		{"no token", testSecret, "", http.StatusUnauthorized},
		{"garbage", testSecret, "Bearer abc.def", http.StatusUnauthorized},
		{"wrong secret", testSecret, "Bearer " + signed(t, "other", "admin", hour), http.StatusUnauthorized},
		{"expired", testSecret, "Bearer " + signed(t, testSecret, "admin", time.Now().Add(-time.Minute)), http.StatusUnauthorized},
		{"wrong role", testSecret, "Bearer " + signed(t, testSecret, "user", hour), http.StatusForbidden},
		{"admin", testSecret, "Bearer " + signed(t, testSecret, "admin", hour), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/x", RequireRole(tt.secret, "admin"), func(c *gin.Context) { c.Status(http.StatusOK) })

			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestTimeoutSetsDeadline(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Timeout(time.Second))

	var hasDeadline bool
	r.GET("/x", func(c *gin.Context) {
		_, hasDeadline = c.Request.Context().Deadline()
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.True(t, hasDeadline)
}
