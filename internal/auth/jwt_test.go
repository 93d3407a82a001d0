package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJWTManager() *JWTManager {
	return NewJWTManager("test-secret-key-with-32-characters!", 8*time.Hour)
}

// --- Token Tests ---

func TestGenerateAndValidateOpsToken(t *testing.T) {
	mgr := newTestJWTManager()

	token, err := mgr.GenerateToken(RealmOps, "anika", RoleOperator)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := mgr.ValidateTokenForRealm(token, RealmOps)
	require.NoError(t, err)
	assert.Equal(t, "anika", claims.Subject)
	assert.Equal(t, RealmOps, claims.Realm)
	assert.Equal(t, RoleOperator, claims.Role)
	assert.NotEmpty(t, claims.ID)
}

func TestUnknownRealmRefused(t *testing.T) {
	_, err := newTestJWTManager().GenerateToken(Realm("player"), "x", "")
	assert.Error(t, err)
}

func TestRealmMismatchRejected(t *testing.T) {
	mgr := newTestJWTManager()

	token, err := mgr.GenerateToken(RealmService, "deployer", RoleOperator)
	require.NoError(t, err)

	_, err = mgr.ValidateTokenForRealm(token, RealmOps)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "realm service not accepted")

	_, err = mgr.ValidateTokenForRealm(token, RealmOps, RealmService)
	assert.NoError(t, err)
}

func TestInvalidSecretRejected(t *testing.T) {
	mgr1 := NewJWTManager("secret-1", time.Hour)
	mgr2 := NewJWTManager("secret-2", time.Hour)

	token, err := mgr1.GenerateToken(RealmOps, "anika", RoleViewer)
	require.NoError(t, err)

	_, err = mgr2.ValidateToken(token)
	assert.Error(t, err)
}

func TestExpiredTokenRejected(t *testing.T) {
	mgr := NewJWTManager("secret", time.Millisecond)

	token, err := mgr.GenerateToken(RealmOps, "anika", RoleViewer)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	_, err = mgr.ValidateToken(token)
	assert.Error(t, err)
}

// --- Middleware Tests ---

func TestAuthenticateOps(t *testing.T) {
	mgr := newTestJWTManager()
	viewer, err := mgr.GenerateToken(RealmOps, "vik", RoleViewer)
	require.NoError(t, err)
	operator, err := mgr.GenerateToken(RealmOps, "anika", RoleOperator)
	require.NoError(t, err)

	var seen string
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = SubjectFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	chain := AuthenticateOps(mgr)(RequireRole(WriteRoles()...)(final))

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantSub    string
	}{
		{"missing header", "", http.StatusUnauthorized, ""},
		{"not bearer", "Basic abc", http.StatusUnauthorized, ""},
		{"garbage token", "Bearer abc.def.ghi", http.StatusUnauthorized, ""},
		{"viewer cannot write", "Bearer " + viewer, http.StatusForbidden, ""},
		{"operator passes", "Bearer " + operator, http.StatusOK, "anika"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			r := httptest.NewRequest(http.MethodPost, "/admin/settings/refresh", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			chain.ServeHTTP(w, r)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantSub, seen)
		})
	}
}
