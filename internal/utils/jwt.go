package utils // package utils provides helpers for minting and checking admin tokens

import (
    "errors"
    "time"

    "github.com/golang-jwt/jwt/v5"
)

// RoleAdmin is the only role the API recognises.  Admin tokens gate the
// catalog setup endpoints; buyers are identified by their queue token.
const RoleAdmin = "ADMIN"

// AccessToken is a signed JWT together with its expiry.
type AccessToken struct {
    Token string    // the serialized JWT string
    Exp   time.Time // the UTC expiration time
}

// AdminClaims are the claims carried by an admin token.
type AdminClaims struct {
    Role string `json:"role"`
    jwt.RegisteredClaims
}

// ErrInvalidToken is returned for tokens that fail signature, expiry or
// claim checks.
var ErrInvalidToken = errors.New("invalid admin token")

// NewAdminToken signs an HS256 token for subject valid for ttl.
func NewAdminToken(secret, subject string, ttl time.Duration) (AccessToken, error) {
    now := time.Now().UTC()
    exp := now.Add(ttl)
    claims := AdminClaims{
        Role: RoleAdmin,
        RegisteredClaims: jwt.RegisteredClaims{
            Subject:   subject,
            IssuedAt:  jwt.NewNumericDate(now),
            ExpiresAt: jwt.NewNumericDate(exp),
        },
    }
    signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
    if err != nil {
        return AccessToken{}, err
    }
    return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseAdminToken verifies raw against secret and returns its claims.
// Only HMAC signatures are accepted.
func ParseAdminToken(secret, raw string) (*AdminClaims, error) {
    claims := &AdminClaims{}
    tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
        if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
            return nil, ErrInvalidToken
        }
        return []byte(secret), nil
    }, jwt.WithExpirationRequired())
    if err != nil || !tok.Valid {
        return nil, ErrInvalidToken
    }
    if claims.Subject == "" {
        return nil, ErrInvalidToken
    }
    return claims, nil
}
