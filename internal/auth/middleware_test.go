package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/queueforge/vqueue/internal/store"
)

func withIdentity(r *http.Request, role store.Role) *http.Request {
	id := &Identity{Subject: "user-1", Role: role, Method: MethodSession}
	return r.WithContext(NewContext(r.Context(), id))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAuthRejectsUnauthenticated(t *testing.T) {
	rr := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/", nil)

	RequireAuth(okHandler()).ServeHTTP(rr, r)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestRequireAuthAllowsAuthenticated(t *testing.T) {
	rr := httptest.NewRecorder()
	r := withIdentity(httptest.NewRequest("GET", "/", nil), store.RoleUser)

	RequireAuth(okHandler()).ServeHTTP(rr, r)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestRequireRoleRejectsWrongRole(t *testing.T) {
	rr := httptest.NewRecorder()
	r := withIdentity(httptest.NewRequest("GET", "/", nil), store.RoleUser)

	RequireRole(string(store.RoleAdmin))(okHandler()).ServeHTTP(rr, r)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusForbidden)
	}
}

func TestRequireRoleAllowsListedRole(t *testing.T) {
	rr := httptest.NewRecorder()
	r := withIdentity(httptest.NewRequest("GET", "/", nil), store.RoleAdmin)

	RequireRole(string(store.RoleAdmin), string(store.RoleManager))(okHandler()).ServeHTTP(rr, r)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestRequireRoleRejectsUnauthenticated(t *testing.T) {
	rr := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/", nil)

	RequireRole(string(store.RoleAdmin))(okHandler()).ServeHTTP(rr, r)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusForbidden)
	}
}

func TestRequireMinRoleAllowsHigherPrivilege(t *testing.T) {
	rr := httptest.NewRecorder()
	r := withIdentity(httptest.NewRequest("GET", "/", nil), store.RoleAdmin)

	RequireMinRole("Manager")(okHandler()).ServeHTTP(rr, r)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestRequireMinRoleRejectsLowerPrivilege(t *testing.T) {
	rr := httptest.NewRecorder()
	r := withIdentity(httptest.NewRequest("GET", "/", nil), store.RoleGuest)

	RequireMinRole("Manager")(okHandler()).ServeHTTP(rr, r)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusForbidden)
	}
}

func TestRequireMinRoleRejectsUnauthenticated(t *testing.T) {
	rr := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/", nil)

	RequireMinRole("Manager")(okHandler()).ServeHTTP(rr, r)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusForbidden)
	}
}
