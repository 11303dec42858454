package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/appointment-engine/internal/model"
)

func TestGenerateAndValidate(t *testing.T) {
	svc := NewJWTService("secret", "test", time.Hour)

	token, err := svc.GenerateToken(model.Actor{UserID: 7, Role: model.RolePatient})
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, model.Actor{UserID: 7, Role: model.RolePatient}, claims.Actor())
	assert.Equal(t, "test", claims.Issuer)
}

func TestValidateRejects(t *testing.T) {
	svc := NewJWTService("secret", "test", time.Hour)
	token, err := svc.GenerateToken(model.Actor{UserID: 7, Role: model.RoleDoctor})
	require.NoError(t, err)

	_, err = NewJWTService("other", "test", time.Hour).ValidateToken(token)
	assert.Error(t, err, "wrong secret")

	_, err = svc.ValidateToken(token + "x")
	assert.Error(t, err, "tampered")

	expired := NewJWTService("secret", "test", time.Hour).(*jwtService)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, err := expired.GenerateToken(model.Actor{UserID: 7, Role: model.RoleDoctor})
	require.NoError(t, err)
	_, err = svc.ValidateToken(old)
	assert.Error(t, err, "expired")

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &model.TokenClaims{UserID: 7, Role: model.RoleAdmin})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = svc.ValidateToken(unsigned)
	assert.Error(t, err, "alg none")

	bogus := jwt.NewWithClaims(jwt.SigningMethodHS256, &model.TokenClaims{UserID: 7, Role: "superuser"})
	signed, err := bogus.SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = svc.ValidateToken(signed)
	assert.Error(t, err, "unknown role")
}

func TestGenerateRejectsInvalidActor(t *testing.T) {
	svc := NewJWTService("secret", "test", time.Hour)
	_, err := svc.GenerateToken(model.Actor{UserID: 7, Role: "nurse"})
	assert.Error(t, err)
	_, err = svc.GenerateToken(model.Actor{Role: model.RolePatient})
	assert.Error(t, err)
}
