package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRequestIDMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		wantSame bool
	}{
		{"client id kept", "req-123", true},
		{"missing id minted", "", false},
		{"oversized id replaced", strings.Repeat("x", 100), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.Use(RequestIDMiddleware())
			r.GET("/", func(c *gin.Context) { Success(c, http.StatusOK, gin.H{"ok": true}) })

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("X-Request-ID", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			got := w.Header().Get("X-Request-ID")
			if got == "" {
				t.Fatal("no X-Request-ID header")
			}
			if (got == tt.header) != tt.wantSame {
				t.Errorf("X-Request-ID = %q, header %q", got, tt.header)
			}

			var body Response
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Metadata.RequestID != got {
				t.Errorf("metadata request_id = %q, want %q", body.Metadata.RequestID, got)
			}
		})
	}
}

func TestFailWithData(t *testing.T) {
	r := gin.New()
	r.GET("/", func(c *gin.Context) {
		FailWithData(c, http.StatusServiceUnavailable, ErrPersistenceFailed, gin.H{"attempt_id": "a1"})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Data  map[string]string `json:"data"`
		Error ErrorBody         `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != ErrPersistenceFailed || body.Error.Message == "" {
		t.Errorf("error = %+v", body.Error)
	}
	if body.Data["attempt_id"] != "a1" {
		t.Errorf("data = %v", body.Data)
	}
}
