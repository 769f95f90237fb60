// README: Tests for Firebase auth middleware and caller resolution.
package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"medtrans/internal/http/middleware"
	"medtrans/internal/infra"
)

// stubVerifier is a test double for infra.TokenVerifier.
type stubVerifier struct {
	token *infra.VerifiedToken
	err   error
}

func (s *stubVerifier) VerifyIDToken(_ context.Context, _ string) (*infra.VerifiedToken, error) {
	return s.token, s.err
}

func newTestRouter(verifier infra.TokenVerifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.Auth(verifier))
	r.GET("/test", func(c *gin.Context) {
		actor := middleware.CallerActor(c)
		c.JSON(http.StatusOK, gin.H{
			"uid":  middleware.CallerUID(c),
			"role": middleware.CallerRole(c),
			"kind": actor.Kind,
		})
	})
	r.GET("/admin", middleware.RequireRole(middleware.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func tokenWithRole(uid, role string) *stubVerifier {
	claims := map[string]interface{}{}
	if role != "" {
		claims["role"] = role
	}
	return &stubVerifier{token: &infra.VerifiedToken{UID: uid, Claims: claims}}
}

func serve(r *gin.Engine, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth_MissingHeader(t *testing.T) {
	w := serve(newTestRouter(tokenWithRole("user1", "")), "/test", "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestAuth_InvalidBearerPrefix(t *testing.T) {
	w := serve(newTestRouter(tokenWithRole("user1", "")), "/test", "Token sometoken")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestAuth_VerifierError(t *testing.T) {
	w := serve(newTestRouter(&stubVerifier{err: errors.New("bad token")}), "/test", "Bearer invalidtoken")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestAuth_QueryTokenForWebsocketClients(t *testing.T) {
	w := serve(newTestRouter(tokenWithRole("patient1", "")), "/test?access_token=abc", "")
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestAuth_DriverRole(t *testing.T) {
	w := serve(newTestRouter(tokenWithRole("driver123", "driver")), "/test", "Bearer validtoken")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, `"uid":"driver123"`) {
		t.Errorf("expected uid driver123 in body, got %s", body)
	}
	if !strings.Contains(body, `"kind":"driver"`) {
		t.Errorf("expected driver actor in body, got %s", body)
	}
}

func TestAuth_NoRoleClaimIsPatient(t *testing.T) {
	w := serve(newTestRouter(tokenWithRole("patient456", "")), "/test", "Bearer validtoken")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"kind":"patient"`) {
		t.Errorf("expected patient actor, got %s", w.Body.String())
	}
}

func TestRequireRole(t *testing.T) {
	if w := serve(newTestRouter(tokenWithRole("d1", "driver")), "/admin", "Bearer x"); w.Code != http.StatusForbidden {
		t.Errorf("driver: expected 403, got %d", w.Code)
	}
	if w := serve(newTestRouter(tokenWithRole("a1", "admin")), "/admin", "Bearer x"); w.Code != http.StatusNoContent {
		t.Errorf("admin: expected 204, got %d", w.Code)
	}
}
