package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Signer mints and verifies admin JWTs. The key and TTL come from
// configuration at construction; nothing here reads the environment.
type Signer struct {
	secret []byte
	ttl    time.Duration
}

func NewSigner(secret string, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Signer{secret: []byte(secret), ttl: ttl}
}

func (s *Signer) TTL() time.Duration { return s.ttl }

// Sign issues an HS256 token for an admin. jti must match a sessions row
// for the token to pass the middleware.
func (s *Signer) Sign(adminID, jti string, roles []string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   adminID,
		"jti":   jti,
		"roles": roles,
		"exp":   now.Add(s.ttl).Unix(),
		"iat":   now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *Signer) Verify(tokenStr string) (Claims, error) {
	tok, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !tok.Valid {
		return Claims{}, errors.New("invalid token")
	}
	mapc, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, errors.New("invalid claims")
	}
	sub, _ := mapc["sub"].(string)
	jti, _ := mapc["jti"].(string)
	var roles []string
	if arr, ok := mapc["roles"].([]interface{}); ok {
		for _, v := range arr {
			if s, ok := v.(string); ok {
				roles = append(roles, s)
			}
		}
	}
	return Claims{Subject: sub, JWTID: jti, Roles: roles}, nil
}
