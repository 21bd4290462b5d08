package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestValidateToken(t *testing.T) {
	svc := NewService("s3cret")
	if !svc.Enabled() {
		t.Fatalf("expected auth enabled")
	}
	if err := svc.ValidateToken("s3cret"); err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if err := svc.ValidateToken("wrong"); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if err := svc.ValidateToken(""); err != ErrTokenRequired {
		t.Fatalf("expected ErrTokenRequired, got %v", err)
	}
}

func TestEmptyAdminTokenDisablesAuth(t *testing.T) {
	svc := NewService("")
	if svc.Enabled() {
		t.Fatalf("expected auth disabled")
	}
	if err := svc.ValidateToken(""); err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(NewService("s3cret").Middleware())
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong", "Bearer nope", http.StatusUnauthorized},
		{"not bearer", "Basic s3cret", http.StatusUnauthorized},
		{"ok", "Bearer s3cret", http.StatusOK},
		{"lowercase scheme", "bearer s3cret", http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, w.Code)
		}
	}
}

func TestGenerateToken(t *testing.T) {
	a, err := GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	b, _ := GenerateToken()
	if len(a) != 64 || a == b {
		t.Fatalf("unexpected tokens %q %q", a, b)
	}
}
