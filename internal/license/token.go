package license

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims is what a verified device token resolves to.
type TokenClaims struct {
	DeviceID  string
	LicenseID string
}

// Issuer mints and verifies the tokens handed out at activation. It is
// stateless; the signing key and validity window are fixed at construction.
type Issuer struct {
	secret []byte
	ttl    time.Duration
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &Issuer{secret: []byte(secret), ttl: ttl}
}

func (i *Issuer) TTL() time.Duration { return i.ttl }

// Issue signs a token binding deviceID to licenseID, valid for the
// configured window from now.
func (i *Issuer) Issue(deviceID, licenseID string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":        deviceID,
		"license_id": licenseID,
		"exp":        now.Add(i.ttl).Unix(),
		"iat":        now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Verify checks signature and expiry and extracts the bound identifiers.
// Failures are one of ErrTokenMissing, ErrTokenExpired, ErrTokenInvalid.
func (i *Issuer) Verify(raw string) (TokenClaims, error) {
	if raw == "" {
		return TokenClaims{}, ErrTokenMissing
	}
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return i.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return TokenClaims{}, ErrTokenExpired
		}
		return TokenClaims{}, ErrTokenInvalid
	}
	if !tok.Valid {
		return TokenClaims{}, ErrTokenInvalid
	}
	mapc, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return TokenClaims{}, ErrTokenInvalid
	}
	sub, _ := mapc["sub"].(string)
	lid, _ := mapc["license_id"].(string)
	if sub == "" || lid == "" {
		return TokenClaims{}, ErrTokenInvalid
	}
	return TokenClaims{DeviceID: sub, LicenseID: lid}, nil
}
