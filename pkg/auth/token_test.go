package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/BenTyson/evercraft-sub001/pkg/config"
	"github.com/BenTyson/evercraft-sub001/pkg/enums"
)

var testCfg = config.JWTConfig{Secret: "secret", Issuer: "evercraft"}

func mint(t *testing.T, now time.Time, ttl time.Duration, role enums.ActorRole) string {
	t.Helper()
	token, err := MintAccessToken(testCfg, now, ttl, AccessTokenPayload{UserID: uuid.New(), Role: role})
	require.NoError(t, err)
	return token
}

func TestMintAndParseAccessToken(t *testing.T) {
	userID := uuid.New()
	token, err := MintAccessToken(testCfg, time.Now().UTC(), 30*time.Minute, AccessTokenPayload{
		UserID: userID,
		Role:   enums.ActorRoleSeller,
		JTI:    " fixed-jti ",
	})
	require.NoError(t, err)

	claims, err := ParseAccessToken(testCfg, token)
	require.NoError(t, err)
	require.Equal(t, userID, claims.UserID)
	require.Equal(t, enums.ActorRoleSeller, claims.Role)
	require.Equal(t, testCfg.Issuer, claims.Issuer)
	require.Equal(t, "fixed-jti", claims.ID)
}

func TestParseAccessTokenRejects(t *testing.T) {
	cases := map[string]struct {
		cfg   config.JWTConfig
		token string
	}{
		"expired":      {testCfg, mint(t, time.Now().Add(-2*time.Hour), time.Hour, enums.ActorRoleBuyer)},
		"issued ahead": {testCfg, mint(t, time.Now().Add(time.Hour), 2*time.Hour, enums.ActorRoleBuyer)},
		"issuer":       {config.JWTConfig{Secret: "secret", Issuer: "other"}, mint(t, time.Now(), time.Hour, enums.ActorRoleAdmin)},
		"signature":    {config.JWTConfig{Secret: "nope", Issuer: "evercraft"}, mint(t, time.Now(), time.Hour, enums.ActorRoleAdmin)},
		"garbage":      {testCfg, "not-a-jwt"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseAccessToken(tc.cfg, tc.token)
			require.Error(t, err)
		})
	}
}

func TestParseAccessTokenToleratesSmallSkew(t *testing.T) {
	token := mint(t, time.Now().Add(10*time.Second), time.Hour, enums.ActorRoleBuyer)
	_, err := ParseAccessToken(testCfg, token)
	require.NoError(t, err)
}

func TestParseAccessTokenChecksClaimBody(t *testing.T) {
	now := time.Now()
	sign := func(claims AccessTokenClaims, method jwt.SigningMethod, key any) string {
		claims.Issuer = testCfg.Issuer
		claims.IssuedAt = jwt.NewNumericDate(now)
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(time.Hour))
		token, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return token
	}
	userID := uuid.New()

	mismatched := sign(AccessTokenClaims{UserID: userID, Role: enums.ActorRoleBuyer, RegisteredClaims: jwt.RegisteredClaims{Subject: uuid.NewString()}}, signingMethod, []byte(testCfg.Secret))
	_, err := ParseAccessToken(testCfg, mismatched)
	require.ErrorContains(t, err, "subject")

	unknownRole := sign(AccessTokenClaims{UserID: userID, Role: "owner", RegisteredClaims: jwt.RegisteredClaims{Subject: userID.String()}}, signingMethod, []byte(testCfg.Secret))
	_, err = ParseAccessToken(testCfg, unknownRole)
	require.ErrorContains(t, err, "role")

	unsigned := sign(AccessTokenClaims{UserID: userID, Role: enums.ActorRoleAdmin, RegisteredClaims: jwt.RegisteredClaims{Subject: userID.String()}}, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType)
	_, err = ParseAccessToken(testCfg, unsigned)
	require.Error(t, err)
}

func TestMintAccessTokenValidation(t *testing.T) {
	_, err := MintAccessToken(testCfg, time.Now(), time.Hour, AccessTokenPayload{UserID: uuid.New(), Role: "owner"})
	require.Error(t, err)
	_, err = MintAccessToken(testCfg, time.Now(), time.Hour, AccessTokenPayload{Role: enums.ActorRoleBuyer})
	require.Error(t, err)
	_, err = MintAccessToken(testCfg, time.Now(), 0, AccessTokenPayload{UserID: uuid.New(), Role: enums.ActorRoleBuyer})
	require.Error(t, err)
	_, err = MintAccessToken(config.JWTConfig{Issuer: "evercraft"}, time.Now(), time.Hour, AccessTokenPayload{UserID: uuid.New(), Role: enums.ActorRoleBuyer})
	require.ErrorIs(t, err, errSecretRequired)
}
