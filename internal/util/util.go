package util

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the subset of a Supabase access token the API relies on.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// ValidateJWT verifies a Supabase access token. keyMaterial is the project's
// JWT secret for HS* tokens or a PEM public key for RS*/ES* tokens.
func ValidateJWT(tokenString, keyMaterial string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, keyFunc(keyMaterial),
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512", "RS256", "RS384", "RS512", "ES256", "ES384", "ES512"}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to validate token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

func keyFunc(keyMaterial string) jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		switch token.Method.(type) {
		case *jwt.SigningMethodHMAC:
			return []byte(keyMaterial), nil
		case *jwt.SigningMethodRSA:
			return parsePublicKey[*rsa.PublicKey](keyMaterial, "RSA")
		case *jwt.SigningMethodECDSA:
			return parsePublicKey[*ecdsa.PublicKey](keyMaterial, "ECDSA")
		default:
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
	}
}

// parsePublicKey decodes a PEM-encoded PKIX public key of the expected type.
func parsePublicKey[K any](pemKey, kind string) (K, error) {
	var zero K
	block, _ := pem.Decode([]byte(pemKey))
	if block == nil {
		return zero, errors.New("failed to decode PEM block containing public key")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return zero, fmt.Errorf("failed to parse public key: %w", err)
	}
	key, ok := pub.(K)
	if !ok {
		return zero, fmt.Errorf("public key is not %s", kind)
	}
	return key, nil
}
