package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/01moynul/taptosell-orders/internal/auth"
)

func init() { gin.SetMode(gin.TestMode) }

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	handlers = append(handlers, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": UserID(c), "role": c.GetString(KeyRole)})
	})
	r.GET("/x", handlers...)
	return r
}

func do(r http.Handler, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	tokens := auth.NewTokens("secret")
	customer, err := tokens.GenerateToken(7, auth.RoleCustomer, time.Hour)
	require.NoError(t, err)
	admin, err := tokens.GenerateToken(1, auth.RoleAdmin, time.Hour)
	require.NoError(t, err)

	user := newRouter(AuthMiddleware(tokens))
	adminOnly := newRouter(AuthMiddleware(tokens), AdminMiddleware())

	tests := []struct {
		name   string
		router *gin.Engine
		header string
		want   int
	}{
		{"no header", user, "", http.StatusUnauthorized},
		{"not bearer", user, "Basic abc", http.StatusUnauthorized},
		{"garbage token", user, "Bearer abc", http.StatusUnauthorized},
		{"customer", user, "Bearer " + customer, http.StatusOK},
		{"customer on admin route", adminOnly, "Bearer " + customer, http.StatusForbidden},
		{"admin on admin route", adminOnly, "Bearer " + admin, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := map[string]string{}
			if tt.header != "" {
				h["Authorization"] = tt.header
			}
			w := do(tt.router, h)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestRequestLogger_SetsRequestID(t *testing.T) {
	r := newRouter(RequestLogger())

	w := do(r, nil)
	_, err := uuid.Parse(w.Header().Get(HeaderRequestID))
	assert.NoError(t, err)

	given := uuid.NewString()
	w = do(r, map[string]string{HeaderRequestID: given})
	assert.Equal(t, given, w.Header().Get(HeaderRequestID))

	w = do(r, map[string]string{HeaderRequestID: "not-a-uuid"})
	assert.NotEqual(t, "not-a-uuid", w.Header().Get(HeaderRequestID))
}

func TestRateLimit(t *testing.T) {
	r := newRouter(RateLimit(rate.NewLimiter(rate.Every(time.Hour), 2)))

	assert.Equal(t, http.StatusOK, do(r, nil).Code)
	assert.Equal(t, http.StatusOK, do(r, nil).Code)
	w := do(r, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestCORS_Preflight(t *testing.T) {
	r := gin.New()
	r.Use(CORS("http://shop.test"))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://shop.test", w.Header().Get("Access-Control-Allow-Origin"))
}
