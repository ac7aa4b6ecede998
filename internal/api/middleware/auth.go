// auth.go — JWT middleware административного API.
// Подпись проверяется через JWKS Keycloak. Пользователь получает роль
// по группам IdP или realm_access.roles, сервисный аккаунт — scopes.
package middleware

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/bigkaa/goartstore/archive-module/internal/api/errors"
)

type contextKey string

// ContextKeyClaims — claims в контексте запроса.
const ContextKeyClaims contextKey = "jwt_claims"

// Роли административного API.
const (
	RoleReadonly = "readonly"
	RoleAdmin    = "admin"
)

// Scopes сервисных аккаунтов.
const (
	ScopeArchiveRead  = "archive:read"
	ScopeArchiveWrite = "archive:write"
)

var roleWeight = map[string]int{
	RoleReadonly: 1,
	RoleAdmin:    2,
}

// SubjectType — тип субъекта JWT.
type SubjectType string

const (
	SubjectTypeUser SubjectType = "user"
	SubjectTypeSA   SubjectType = "service_account"
)

// AuthClaims — claims, доступные обработчикам.
type AuthClaims struct {
	Subject           string
	SubjectType       SubjectType
	PreferredUsername string
	// Role — максимальная роль пользователя (пусто для SA)
	Role   string
	Scopes []string
}

// HasAnyRole проверяет роль пользователя.
func (c *AuthClaims) HasAnyRole(roles ...string) bool {
	return c.Role != "" && slices.Contains(roles, c.Role)
}

// HasAnyScope проверяет наличие хотя бы одного scope.
func (c *AuthClaims) HasAnyScope(scopes ...string) bool {
	for _, s := range scopes {
		if slices.Contains(c.Scopes, s) {
			return true
		}
	}
	return false
}

type keycloakClaims struct {
	jwt.RegisteredClaims
	PreferredUsername string       `json:"preferred_username"`
	RealmAccess       *realmAccess `json:"realm_access,omitempty"`
	Groups            []string     `json:"groups,omitempty"`
	Scope             string       `json:"scope,omitempty"`
	ClientID          string       `json:"client_id,omitempty"`
}

type realmAccess struct {
	Roles []string `json:"roles"`
}

// JWTAuth — JWT-аутентификация через JWKS.
type JWTAuth struct {
	jwks           keyfunc.Keyfunc
	issuer         string
	leeway         time.Duration
	adminGroups    []string
	readonlyGroups []string
	logger         *slog.Logger
}

// JWTOptions — параметры JWT middleware.
type JWTOptions struct {
	JWKSURL         string
	CACertPath      string
	Issuer          string
	Leeway          time.Duration
	ClientTimeout   time.Duration
	RefreshInterval time.Duration
	AdminGroups     []string
	ReadonlyGroups  []string
}

// NewJWTAuth создаёт middleware с фоновым обновлением JWKS.
// Старт не блокируется недоступностью Keycloak.
func NewJWTAuth(opts JWTOptions, logger *slog.Logger) (*JWTAuth, error) {
	httpClient := &http.Client{Timeout: opts.ClientTimeout}
	if opts.CACertPath != "" {
		var err error
		httpClient, err = httpClientWithCA(opts.CACertPath, opts.ClientTimeout)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата %s: %w", opts.CACertPath, err)
		}
	}

	storage, err := jwkset.NewStorageFromHTTP(opts.JWKSURL, jwkset.HTTPClientStorageOptions{
		Client:                    httpClient,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           opts.RefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", opts.JWKSURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{Storage: storage})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}
	return NewJWTAuthWithKeyfunc(k, opts, logger), nil
}

// NewJWTAuthWithKeyfunc создаёт middleware с готовой keyfunc (тесты).
func NewJWTAuthWithKeyfunc(kf keyfunc.Keyfunc, opts JWTOptions, logger *slog.Logger) *JWTAuth {
	return &JWTAuth{
		jwks:           kf,
		issuer:         opts.Issuer,
		leeway:         opts.Leeway,
		adminGroups:    opts.AdminGroups,
		readonlyGroups: opts.ReadonlyGroups,
		logger:         logger.With(slog.String("component", "jwt_auth")),
	}
}

func httpClientWithCA(caCertPath string, timeout time.Duration) (*http.Client, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, err
	}
	pool, err := x509.SystemCertPool()
	if err != nil {
		pool = x509.NewCertPool()
	}
	pool.AppendCertsFromPEM(caCert)

	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12},
		},
	}, nil
}

// Middleware проверяет Bearer token и помещает AuthClaims в контекст.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				apierrors.Unauthorized(w, "Отсутствует заголовок Authorization")
				return
			}
			scheme, tokenString, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || tokenString == "" {
				apierrors.Unauthorized(w, "Неверный формат Authorization: ожидается Bearer <token>")
				return
			}

			raw := &keycloakClaims{}
			parserOpts := []jwt.ParserOption{
				jwt.WithValidMethods([]string{"RS256"}),
				jwt.WithExpirationRequired(),
				jwt.WithLeeway(j.leeway),
			}
			if j.issuer != "" {
				parserOpts = append(parserOpts, jwt.WithIssuer(j.issuer))
			}

			token, err := jwt.ParseWithClaims(tokenString, raw, j.jwks.KeyfuncCtx(r.Context()), parserOpts...)
			if err != nil || !token.Valid {
				msg := "невалидный токен"
				if err != nil {
					msg = err.Error()
				}
				j.logger.Debug("JWT валидация не пройдена",
					slog.String("error", msg),
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.Unauthorized(w, "Невалидный или просроченный токен")
				return
			}
			if raw.Subject == "" {
				apierrors.Unauthorized(w, "Отсутствует sub в токене")
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyClaims, j.buildClaims(raw))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (j *JWTAuth) buildClaims(raw *keycloakClaims) *AuthClaims {
	claims := &AuthClaims{
		Subject:           raw.Subject,
		PreferredUsername: raw.PreferredUsername,
	}
	if raw.ClientID != "" && raw.Scope != "" {
		claims.SubjectType = SubjectTypeSA
		claims.Scopes = strings.Fields(raw.Scope)
		return claims
	}

	claims.SubjectType = SubjectTypeUser
	var roles []string
	for _, g := range raw.Groups {
		if slices.Contains(j.adminGroups, g) {
			roles = append(roles, RoleAdmin)
		}
		if slices.Contains(j.readonlyGroups, g) {
			roles = append(roles, RoleReadonly)
		}
	}
	if len(roles) == 0 && raw.RealmAccess != nil {
		for _, r := range raw.RealmAccess.Roles {
			if _, ok := roleWeight[r]; ok {
				roles = append(roles, r)
			}
		}
	}
	claims.Role = highestRole(roles)
	return claims
}

func highestRole(roles []string) string {
	best := ""
	for _, r := range roles {
		if roleWeight[r] > roleWeight[best] {
			best = r
		}
	}
	return best
}

// RequireRoleOrScope пропускает пользователей с одной из ролей
// или сервисные аккаунты с одним из scopes. Используется после Middleware.
func RequireRoleOrScope(roles, scopes []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				apierrors.Unauthorized(w, "Отсутствуют claims в контексте")
				return
			}

			switch claims.SubjectType {
			case SubjectTypeUser:
				if claims.HasAnyRole(roles...) {
					next.ServeHTTP(w, r)
					return
				}
				apierrors.Forbidden(w, fmt.Sprintf("Недостаточно прав: требуется роль %s", strings.Join(roles, " или ")))
			case SubjectTypeSA:
				if claims.HasAnyScope(scopes...) {
					next.ServeHTTP(w, r)
					return
				}
				apierrors.Forbidden(w, fmt.Sprintf("Недостаточно прав: требуется scope %s", strings.Join(scopes, " или ")))
			default:
				apierrors.Forbidden(w, "Неизвестный тип субъекта")
			}
		})
	}
}

// ClaimsFromContext извлекает AuthClaims. nil — claims нет.
func ClaimsFromContext(ctx context.Context) *AuthClaims {
	claims, _ := ctx.Value(ContextKeyClaims).(*AuthClaims)
	return claims
}

// SubjectFromContext возвращает sub или пустую строку.
func SubjectFromContext(ctx context.Context) string {
	if c := ClaimsFromContext(ctx); c != nil {
		return c.Subject
	}
	return ""
}
