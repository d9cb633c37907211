package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"civicreport/internal/auth"

	"github.com/gin-gonic/gin"
)

func TestRequireAnyRole_SuperAdminBypasses(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/x", func(c *gin.Context) {
		ctx := auth.WithIdentity(c.Request.Context(), "u", RoleSuperAdmin)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}, RequireAuthenticated(), RequireAnyRole(RoleAuthority), func(c *gin.Context) {
		c.Status(200)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	r.ServeHTTP(w, req)
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestRequireAnyRole_DeniesUnlistedRole(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/x", func(c *gin.Context) {
		ctx := auth.WithIdentity(c.Request.Context(), "u", RoleCitizen)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}, RequireAuthenticated(), RequireAnyRole(RoleAuthority, RoleAdmin), func(c *gin.Context) {
		c.Status(200)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	r.ServeHTTP(w, req)
	if w.Code != 403 {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestRequireAuthenticated_RejectsAnonymous(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/x", RequireAuthenticated(), func(c *gin.Context) {
		c.Status(200)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	r.ServeHTTP(w, req)
	if w.Code != 401 {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestRequireVerifier(t *testing.T) {
	gin.SetMode(gin.TestMode)

	route := func(role string) int {
		r := gin.New()
		handlers := []gin.HandlerFunc{
			func(c *gin.Context) {
				if role != "" {
					ctx := auth.WithIdentity(c.Request.Context(), "u", role)
					c.Request = c.Request.WithContext(ctx)
				}
				c.Next()
			},
			RequireVerifier(),
			func(c *gin.Context) { c.Status(200) },
		}
		r.GET("/x", handlers...)

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		return w.Code
	}

	if got := route(RoleAuthority); got != 200 {
		t.Fatalf("authority: expected 200, got %d", got)
	}
	if got := route(RoleSuperAdmin); got != 200 {
		t.Fatalf("super_admin: expected 200, got %d", got)
	}
	if got := route(RoleCitizen); got != 403 {
		t.Fatalf("citizen: expected 403, got %d", got)
	}
	if got := route(""); got != 401 {
		t.Fatalf("anonymous: expected 401, got %d", got)
	}
}

func TestCanVerify(t *testing.T) {
	if CanVerify(RoleCitizen) {
		t.Fatalf("citizen must not verify")
	}
	if !CanVerify(RoleAuthority) || !CanVerify(RoleAdmin) || !CanVerify(RoleSuperAdmin) {
		t.Fatalf("verifier roles rejected")
	}
}
