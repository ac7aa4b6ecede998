package middleware

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

const (
	testKeyID  = "test-key-ar"
	testIssuer = "https://keycloak.test/realms/artstore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func generateTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	return key
}

func buildJWKSetJSON(pub *rsa.PublicKey, kid string) json.RawMessage {
	jwks := map[string]any{
		"keys": []map[string]any{{
			"kty": "RSA",
			"kid": kid,
			"use": "sig",
			"alg": "RS256",
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	}
	data, _ := json.Marshal(jwks)
	return data
}

func newTestJWTAuth(t *testing.T, key *rsa.PrivateKey) *JWTAuth {
	t.Helper()
	kf, err := keyfunc.NewJWKSetJSON(buildJWKSetJSON(&key.PublicKey, testKeyID))
	if err != nil {
		t.Fatalf("не удалось создать keyfunc: %v", err)
	}
	return NewJWTAuthWithKeyfunc(kf, JWTOptions{
		Issuer:         testIssuer,
		AdminGroups:    []string{"archive-admins"},
		ReadonlyGroups: []string{"archive-viewers"},
	}, testLogger())
}

func signToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	if _, ok := claims["iss"]; !ok {
		claims["iss"] = testIssuer
	}
	if _, ok := claims["exp"]; !ok {
		claims["exp"] = jwt.NewNumericDate(time.Now().Add(time.Hour))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID
	s, err := token.SignedString(key)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// serve прогоняет запрос через Middleware и RequireRoleOrScope.
func serve(auth *JWTAuth, header string, roles, scopes []string) (*httptest.ResponseRecorder, *AuthClaims) {
	var got *AuthClaims
	h := auth.Middleware()(RequireRoleOrScope(roles, scopes)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/requests", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, got
}

// TestJWTAuth_AdminUserByGroup проверяет роль admin по группе пользователя.
func TestJWTAuth_AdminUserByGroup(t *testing.T) {
	key := generateTestKey(t)
	auth := newTestJWTAuth(t, key)
	tok := signToken(t, key, jwt.MapClaims{
		"sub":                "user-1",
		"preferred_username": "admin",
		"groups":             []string{"archive-viewers", "archive-admins"},
	})

	rec, claims := serve(auth, "Bearer "+tok, []string{RoleAdmin}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался 200, получен %d: %s", rec.Code, rec.Body.String())
	}
	if claims.Subject != "user-1" || claims.Role != RoleAdmin || claims.SubjectType != SubjectTypeUser {
		t.Errorf("claims %+v", claims)
	}
}

// TestJWTAuth_ReadonlyForbiddenForAdminRoute проверяет запрет записи для роли readonly.
func TestJWTAuth_ReadonlyForbiddenForAdminRoute(t *testing.T) {
	key := generateTestKey(t)
	auth := newTestJWTAuth(t, key)
	tok := signToken(t, key, jwt.MapClaims{
		"sub":          "user-2",
		"realm_access": map[string]any{"roles": []string{"readonly", "offline_access"}},
	})

	rec, _ := serve(auth, "Bearer "+tok, []string{RoleAdmin}, nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("ожидался 403, получен %d", rec.Code)
	}
	rec, _ = serve(auth, "Bearer "+tok, []string{RoleAdmin, RoleReadonly}, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("readonly допускается на чтение, получен %d", rec.Code)
	}
}

// TestJWTAuth_ServiceAccountScopes проверяет доступ сервисного аккаунта по scope.
func TestJWTAuth_ServiceAccountScopes(t *testing.T) {
	key := generateTestKey(t)
	auth := newTestJWTAuth(t, key)
	tok := signToken(t, key, jwt.MapClaims{
		"sub":       "sa-1",
		"client_id": "reporter",
		"scope":     "openid archive:read",
	})

	rec, claims := serve(auth, "Bearer "+tok, []string{RoleAdmin}, []string{ScopeArchiveRead})
	if rec.Code != http.StatusOK || claims.SubjectType != SubjectTypeSA {
		t.Fatalf("ожидался доступ SA, код %d", rec.Code)
	}
	rec, _ = serve(auth, "Bearer "+tok, []string{RoleAdmin}, []string{ScopeArchiveWrite})
	if rec.Code != http.StatusForbidden {
		t.Errorf("без archive:write ожидался 403, получен %d", rec.Code)
	}
}

// TestJWTAuth_Rejects проверяет 401 для некорректных токенов.
func TestJWTAuth_Rejects(t *testing.T) {
	key := generateTestKey(t)
	other := generateTestKey(t)
	auth := newTestJWTAuth(t, key)

	tests := []struct {
		name   string
		header string
	}{
		{"без заголовка", ""},
		{"не Bearer", "Basic abc"},
		{"пустой токен", "Bearer "},
		{"просроченный", "Bearer " + signToken(t, key, jwt.MapClaims{
			"sub": "u", "exp": jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		})},
		{"чужой ключ", "Bearer " + signToken(t, other, jwt.MapClaims{"sub": "u"})},
		{"чужой issuer", "Bearer " + signToken(t, key, jwt.MapClaims{"sub": "u", "iss": "https://evil"})},
		{"без sub", "Bearer " + signToken(t, key, jwt.MapClaims{"groups": []string{"archive-admins"}})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _ := serve(auth, tt.header, []string{RoleAdmin}, nil)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("ожидался 401, получен %d", rec.Code)
			}
		})
	}
}

// TestNormalizePath проверяет замену идентификаторов в пути на {id} для метрик.
func TestNormalizePath(t *testing.T) {
	tests := map[string]string{
		"/api/v1/requests":              "/api/v1/requests",
		"/api/v1/requests/42":           "/api/v1/requests/{id}",
		"/api/v1/requests/42/close":     "/api/v1/requests/{id}/close",
		"/api/v1/items/9b2f-uuid":       "/api/v1/items/{id}",
		"/api/v1/jobs/daily_report/run": "/api/v1/jobs/{id}/run",
		"/onebot/events":                "/onebot/events",
	}
	for in, want := range tests {
		if got := normalizePath(in); got != want {
			t.Errorf("normalizePath(%q) = %q, ожидалось %q", in, got, want)
		}
	}
}
