package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/security"
)

type stubValidator struct{ valid string }

func (s stubValidator) ValidateToken(token string) (*security.EditorClaims, error) {
	if token != s.valid {
		return nil, errors.New("bad token")
	}
	return &security.EditorClaims{Role: security.RoleEditor}, nil
}

func newAuthRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/private", EditorAuthMiddleware(stubValidator{valid: "good"}), func(c *gin.Context) {
		claims, ok := GetEditorClaims(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, claims.Role)
	})
	return r
}

func TestEditorAuthMiddleware(t *testing.T) {
	r := newAuthRouter()
	cases := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"missing", "/private", "", http.StatusUnauthorized},
		{"invalid", "/private", "Bearer nope", http.StatusUnauthorized},
		{"wrong scheme", "/private", "Basic good", http.StatusUnauthorized},
		{"header", "/private", "Bearer good", http.StatusOK},
		{"query", "/private?token=good", "", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
			if tc.want == http.StatusOK {
				assert.Equal(t, security.RoleEditor, rec.Body.String())
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORSMiddleware([]string{"https://editor.example.com"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://editor.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, "https://editor.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}
