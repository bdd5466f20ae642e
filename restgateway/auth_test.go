package restgateway

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestContext(req *http.Request) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	return c, w
}

func TestVerify_DevEnvironmentBypassesTokenCheck(t *testing.T) {
	t.Setenv("TIERCACHE_ENV", "DEV")
	req := httptest.NewRequest(http.MethodGet, "/cache/k", nil)
	c, _ := newTestContext(req)

	if !verify(c) {
		t.Fatal("expected DEV environment to bypass verification")
	}
}

func TestVerify_MissingBearerPrefixIsUnauthorized(t *testing.T) {
	t.Setenv("TIERCACHE_ENV", "PROD")
	req := httptest.NewRequest(http.MethodGet, "/cache/k", nil)
	req.Header.Set("Authorization", "not-a-bearer-token")
	c, w := newTestContext(req)

	if verify(c) {
		t.Fatal("expected missing bearer prefix to fail verification")
	}
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestVerify_QATokenMatchesSharedSecret(t *testing.T) {
	t.Setenv("TIERCACHE_ENV", "QA")
	t.Setenv("TIERCACHE_QA_TOKEN", "qa-secret")
	req := httptest.NewRequest(http.MethodGet, "/cache/k", nil)
	req.Header.Set("Authorization", "Bearer qa-secret")
	c, _ := newTestContext(req)

	if !verify(c) {
		t.Fatal("expected matching QA shared-secret token to pass verification")
	}
}

func TestVerifyHeaderToken_SkipsHandlerWhenUnverified(t *testing.T) {
	t.Setenv("TIERCACHE_ENV", "PROD")
	req := httptest.NewRequest(http.MethodGet, "/cache/k", nil)
	c, _ := newTestContext(req)

	called := false
	wrapped := verifyHeaderToken(func(c *gin.Context) { called = true })
	wrapped(c)

	if called {
		t.Fatal("expected handler not to run when verification fails")
	}
}

func TestVerifyHeaderToken_RunsHandlerWhenVerified(t *testing.T) {
	t.Setenv("TIERCACHE_ENV", "DEV")
	req := httptest.NewRequest(http.MethodGet, "/cache/k", nil)
	c, _ := newTestContext(req)

	called := false
	wrapped := verifyHeaderToken(func(c *gin.Context) { called = true })
	wrapped(c)

	if !called {
		t.Fatal("expected handler to run once verification passes")
	}
}
