package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/afiqaffendi/rbs/internal/config"
	"github.com/afiqaffendi/rbs/internal/domain"
	"github.com/afiqaffendi/rbs/internal/lifecycle"
)

const (
	apiKeyHeaderDefault = "x-api-key"
	permPaymentCallback = "payments:callback"
)

var (
	errMissingToken     = errors.New("missing bearer token")
	errInvalidToken     = errors.New("invalid token")
	errMissingAPIKey    = errors.New("missing api key")
	errInvalidAPIKey    = errors.New("invalid api key")
	errPermissionDenied = errors.New("permission denied")
)

// Claims is the bearer token body issued by the identity provider.
// Subject carries the numeric user id.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for a user. Only customer and owner roles can be issued.
func IssueToken(secret, issuer string, userID int64, role lifecycle.Actor, ttl time.Duration) (string, error) {
	if role != lifecycle.ActorCustomer && role != lifecycle.ActorOwner {
		return "", fmt.Errorf("role %q cannot be issued to users", role)
	}
	if userID <= 0 {
		return "", fmt.Errorf("user id must be positive")
	}
	now := time.Now().UTC()
	claims := Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

type identityKey struct{}

func withIdentity(ctx context.Context, id domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the caller set by the bearer token middleware.
func IdentityFromContext(ctx context.Context) (domain.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(domain.Identity)
	return id, ok
}

// HTTPAuth resolves bearer tokens to identities and authenticates machine clients by API key.
type HTTPAuth struct {
	cfg     config.APIConfig
	clients map[string]config.APIClientKey
}

func NewHTTPAuth(cfg config.APIConfig) *HTTPAuth {
	m := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		m[k.Key] = k
	}
	return &HTTPAuth{cfg: cfg, clients: m}
}

// RequireUser rejects requests without a valid customer or owner token.
func (a *HTTPAuth) RequireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := a.identify(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), id)))
	}
}

// RequireAPIKey admits machine clients holding the given permission.
// A client with an empty permission list may call everything.
func (a *HTTPAuth) RequireAPIKey(permission string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client, err := a.apiClient(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		if err := checkPermissions(client, permission); err != nil {
			writeError(w, http.StatusForbidden, err.Error())
			return
		}
		next.ServeHTTP(w, r)
	}
}

func (a *HTTPAuth) identify(r *http.Request) (domain.Identity, error) {
	raw := bearerToken(r)
	if raw == "" {
		return domain.Identity{}, errMissingToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if a.cfg.Auth.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.cfg.Auth.Issuer))
	}

	var claims Claims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return []byte(a.cfg.Auth.JWTSecret), nil
	}, opts...)
	if err != nil || !tok.Valid {
		return domain.Identity{}, errInvalidToken
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return domain.Identity{}, errInvalidToken
	}
	role, err := lifecycle.ParseActor(claims.Role)
	// The payment role belongs to the gateway callback, never to a user token.
	if err != nil || role == lifecycle.ActorPayment {
		return domain.Identity{}, errInvalidToken
	}
	return domain.Identity{UserID: userID, Role: role}, nil
}

func (a *HTTPAuth) apiClient(r *http.Request) (config.APIClientKey, error) {
	apiKey := strings.TrimSpace(r.Header.Get(a.apiKeyHeader()))
	if apiKey == "" {
		return config.APIClientKey{}, errMissingAPIKey
	}
	for key, client := range a.clients {
		if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) == 1 {
			return client, nil
		}
	}
	return config.APIClientKey{}, errInvalidAPIKey
}

func (a *HTTPAuth) apiKeyHeader() string {
	h := strings.TrimSpace(a.cfg.Auth.HeaderAPIKey)
	if h == "" {
		return apiKeyHeaderDefault
	}
	return h
}

func checkPermissions(client config.APIClientKey, required string) error {
	if required == "" || len(client.Permissions) == 0 {
		return nil
	}
	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == required {
			return nil
		}
	}
	return errPermissionDenied
}

func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}
