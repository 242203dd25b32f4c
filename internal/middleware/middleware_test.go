package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-academy/internal/service"
)

const testSecret = "middleware-secret"

func protectedEngine(auth *service.AuthService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	ok := func(c *gin.Context) { c.String(http.StatusOK, "%d", GetClaims(c).UserID) }

	r.GET("/student", RequireStudentJWT(auth), ok)
	r.GET("/ws", RequireStudentWSAuth(auth), ok)
	r.GET("/admin", RequireAdminJWT(auth), RequirePermission(service.PermExamCacheManage), ok)
	return r
}

func TestJWTMiddleware(t *testing.T) {
	auth := service.NewAuthService(testSecret)
	student, _ := auth.IssueToken(service.TokenTypeStudent, 5, time.Hour)
	admin, _ := auth.IssueToken(service.TokenTypeAdmin, 9, time.Hour, service.PermExamCacheManage)
	bareAdmin, _ := auth.IssueToken(service.TokenTypeAdmin, 10, time.Hour)

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"student ok", "/student", "Bearer " + student, http.StatusOK},
		{"lowercase scheme", "/student", "bearer " + student, http.StatusOK},
		{"missing token", "/student", "", http.StatusUnauthorized},
		{"garbage token", "/student", "Bearer nope", http.StatusUnauthorized},
		{"admin on student route", "/student", "Bearer " + admin, http.StatusForbidden},
		{"ws query token", "/ws?token=" + student, "", http.StatusOK},
		{"ws header ignored", "/ws", "Bearer " + student, http.StatusUnauthorized},
		{"admin with permission", "/admin", "Bearer " + admin, http.StatusOK},
		{"admin without permission", "/admin", "Bearer " + bareAdmin, http.StatusForbidden},
		{"student on admin route", "/admin", "Bearer " + student, http.StatusForbidden},
	}

	r := protectedEngine(auth)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	if !rl.allow("a") || !rl.allow("a") {
		t.Fatal("first two requests rejected")
	}
	if rl.allow("a") {
		t.Fatal("third request allowed")
	}
	if !rl.allow("b") {
		t.Error("separate caller shares a bucket")
	}

	now = now.Add(time.Minute)
	if !rl.allow("a") {
		t.Error("bucket did not refill")
	}

	now = now.Add(10 * time.Minute)
	if n := rl.Sweep(5 * time.Minute); n != 2 {
		t.Errorf("swept %d buckets, want 2", n)
	}
}
