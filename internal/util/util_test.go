package util

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "super-secret-jwt-token-with-at-least-32-characters"

func claims(sub string, exp time.Time) Claims {
	return Claims{
		Email: "ana@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
}

func TestValidateJWTHMAC(t *testing.T) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims("u1", time.Now().Add(time.Hour))).SignedString([]byte(secret))
	require.NoError(t, err)

	got, err := ValidateJWT(signed, secret)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.Subject)
	assert.Equal(t, "ana@example.com", got.Email)

	_, err = ValidateJWT(signed, "another-secret")
	assert.Error(t, err)
}

func TestValidateJWTRejects(t *testing.T) {
	expired, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims("u1", time.Now().Add(-time.Minute))).SignedString([]byte(secret))
	noSubject, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims("", time.Now().Add(time.Hour))).SignedString([]byte(secret))
	noExpiry, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"}}).SignedString([]byte(secret))
	unsigned, _ := jwt.NewWithClaims(jwt.SigningMethodNone, claims("u1", time.Now().Add(time.Hour))).SignedString(jwt.UnsafeAllowNoneSignatureType)

	for name, token := range map[string]string{
		"expired":    expired,
		"no subject": noSubject,
		"no expiry":  noExpiry,
		"alg none":   unsigned,
		"garbage":    "a.b.c",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ValidateJWT(token, secret)
			assert.Error(t, err)
		})
	}
}

func TestValidateJWTECDSA(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pemKey := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))

	signed, err := jwt.NewWithClaims(jwt.SigningMethodES256, claims("u1", time.Now().Add(time.Hour))).SignedString(key)
	require.NoError(t, err)

	got, err := ValidateJWT(signed, pemKey)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.Subject)

	_, err = ValidateJWT(signed, "not a pem")
	assert.Error(t, err)
}
