package service

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academic-records-api/internal/models"
	appErrors "github.com/noah-isme/academic-records-api/pkg/errors"
)

func TestAuthServiceIssueAndValidate(t *testing.T) {
	svc := NewAuthService(AuthConfig{AccessTokenSecret: "secret", Issuer: "records", Audience: []string{"records-api"}})

	token, expiresAt, err := svc.IssueToken("teacher-1", models.RoleTeacher, time.Minute)
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "teacher-1", claims.UserID)
	assert.Equal(t, models.RoleTeacher, claims.Role)
}

func TestAuthServiceRejectsBadTokens(t *testing.T) {
	svc := NewAuthService(AuthConfig{AccessTokenSecret: "secret", Issuer: "records"})

	other := NewAuthService(AuthConfig{AccessTokenSecret: "other", Issuer: "records"})
	forged, _, err := other.IssueToken("u1", models.RoleAdmin, time.Minute)
	require.NoError(t, err)

	expired, _, err := svc.IssueToken("u1", models.RoleAdmin, -time.Minute)
	require.NoError(t, err)

	wrongIssuer, _, err := NewAuthService(AuthConfig{AccessTokenSecret: "secret", Issuer: "elsewhere"}).IssueToken("u1", models.RoleAdmin, time.Minute)
	require.NoError(t, err)

	unknownRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &models.JWTClaims{
		UserID: "u1",
		Role:   "JANITOR",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "records",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"garbage":      "not-a-token",
		"forged":       forged,
		"expired":      expired,
		"wrong issuer": wrongIssuer,
		"unknown role": unknownRole,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(token)
			require.Error(t, err)
			assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
		})
	}
}
