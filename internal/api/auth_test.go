package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afiqaffendi/rbs/internal/config"
	"github.com/afiqaffendi/rbs/internal/domain"
	"github.com/afiqaffendi/rbs/internal/lifecycle"
)

func signClaims(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func validClaims(sub, role string) Claims {
	now := time.Now()
	return Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			Issuer:    testIssuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
}

func TestHTTPAuth_Identify(t *testing.T) {
	auth := NewHTTPAuth(testAPIConfig())

	expired := validClaims("7", "customer")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	noExpiry := validClaims("7", "customer")
	noExpiry.ExpiresAt = nil
	wrongIssuer := validClaims("7", "customer")
	wrongIssuer.Issuer = "someone-else"

	tests := []struct {
		name    string
		header  string
		want    domain.Identity
		wantErr error
	}{
		{"Customer", "Bearer " + signClaims(t, testSecret, validClaims("7", "customer")), domain.Identity{UserID: 7, Role: lifecycle.ActorCustomer}, nil},
		{"OwnerLowercaseScheme", "bearer " + signClaims(t, testSecret, validClaims("100", "owner")), domain.Identity{UserID: 100, Role: lifecycle.ActorOwner}, nil},
		{"Missing", "", domain.Identity{}, errMissingToken},
		{"NotBearer", "Basic abc", domain.Identity{}, errMissingToken},
		{"WrongSecret", "Bearer " + signClaims(t, "other", validClaims("7", "customer")), domain.Identity{}, errInvalidToken},
		{"Expired", "Bearer " + signClaims(t, testSecret, expired), domain.Identity{}, errInvalidToken},
		{"NoExpiry", "Bearer " + signClaims(t, testSecret, noExpiry), domain.Identity{}, errInvalidToken},
		{"WrongIssuer", "Bearer " + signClaims(t, testSecret, wrongIssuer), domain.Identity{}, errInvalidToken},
		{"PaymentRoleForged", "Bearer " + signClaims(t, testSecret, validClaims("7", "payment")), domain.Identity{}, errInvalidToken},
		{"UnknownRole", "Bearer " + signClaims(t, testSecret, validClaims("7", "admin")), domain.Identity{}, errInvalidToken},
		{"NonNumericSubject", "Bearer " + signClaims(t, testSecret, validClaims("alice", "customer")), domain.Identity{}, errInvalidToken},
		{"Garbage", "Bearer not.a.token", domain.Identity{}, errInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			got, err := auth.identify(req)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHTTPAuth_RejectsUnsignedToken(t *testing.T) {
	auth := NewHTTPAuth(testAPIConfig())
	raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, validClaims("7", "customer")).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	_, err = auth.identify(req)
	assert.ErrorIs(t, err, errInvalidToken)
}

func TestIssueToken(t *testing.T) {
	_, err := IssueToken(testSecret, testIssuer, 7, lifecycle.ActorPayment, time.Hour)
	assert.Error(t, err)

	_, err = IssueToken(testSecret, testIssuer, 0, lifecycle.ActorCustomer, time.Hour)
	assert.Error(t, err)

	tok, err := IssueToken(testSecret, testIssuer, 42, lifecycle.ActorOwner, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	id, err := NewHTTPAuth(testAPIConfig()).identify(req)
	require.NoError(t, err)
	assert.Equal(t, domain.Identity{UserID: 42, Role: lifecycle.ActorOwner}, id)
}

func TestCheckPermissions(t *testing.T) {
	assert.NoError(t, checkPermissions(config.APIClientKey{}, permPaymentCallback))
	assert.NoError(t, checkPermissions(config.APIClientKey{Permissions: []string{" payments:callback "}}, permPaymentCallback))
	assert.ErrorIs(t, checkPermissions(config.APIClientKey{Permissions: []string{"read:bookings"}}, permPaymentCallback), errPermissionDenied)
}

func TestRateLimiter_ClientKey(t *testing.T) {
	l := newRateLimiter(config.APIRateLimitConfig{RPS: 1}, "")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	assert.Equal(t, "ip:10.0.0.1", l.clientKey(req))

	req.Header.Set("Authorization", "Bearer abc")
	assert.Contains(t, l.clientKey(req), "token:")

	req.Header.Set("x-api-key", "k1")
	assert.Contains(t, l.clientKey(req), "key:")

	assert.Same(t, l.getLimiter("a"), l.getLimiter("a"))
	assert.NotSame(t, l.getLimiter("a"), l.getLimiter("b"))
}
