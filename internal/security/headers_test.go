package security

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/camp-trail/internal/webctx"
)

func newTestRouter(policy Policy) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Headers(policy))
	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, webctx.Get(c).Nonce)
	})
	return router
}

func TestHeadersSetsCSP(t *testing.T) {
	router := newTestRouter(Policy{
		ScriptOrigins:  []string{"https://cdn.jsdelivr.net"},
		StyleOrigins:   []string{"https://cdn.maptiler.com"},
		ImgOrigins:     []string{"https://images.unsplash.com"},
		ConnectOrigins: []string{"https://api.maptiler.com"},
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	csp := rec.Header().Get("Content-Security-Policy")
	if csp == "" {
		t.Fatal("expected Content-Security-Policy header")
	}

	nonce := rec.Body.String()
	if nonce == "" {
		t.Fatal("expected nonce on webctx")
	}

	// ヘッダーとハンドラーが同じノンスを見ていること
	for _, want := range []string{
		"default-src 'self'",
		"script-src 'self' 'nonce-" + nonce + "' https://cdn.jsdelivr.net",
		"style-src 'self' https://cdn.maptiler.com",
		"img-src 'self' data: https://images.unsplash.com",
		"connect-src 'self' https://api.maptiler.com",
		"worker-src 'self' blob:",
	} {
		if !strings.Contains(csp, want) {
			t.Fatalf("CSP missing %q: %s", want, csp)
		}
	}

	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("unexpected X-Content-Type-Options: %s", rec.Header().Get("X-Content-Type-Options"))
	}
	if rec.Header().Get("X-Frame-Options") != "SAMEORIGIN" {
		t.Fatalf("unexpected X-Frame-Options: %s", rec.Header().Get("X-Frame-Options"))
	}
}

func TestNonceFreshPerResponse(t *testing.T) {
	router := newTestRouter(Policy{})

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/", nil))
	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/", nil))

	if first.Body.String() == second.Body.String() {
		t.Fatalf("nonce must be fresh per response: %s", first.Body.String())
	}
}
