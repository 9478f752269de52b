package devserver

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/freelago/chatkit/internal/domain"
)

var errInvalidToken = errors.New("invalid token")

// MintToken issues a short-lived HS256 token for a party. In production the
// marketplace backend issues these; the dev server mints its own so the
// client can be exercised end to end.
func MintToken(secret string, p domain.Party, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  p.ID,
		"kind": string(p.Kind),
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateToken checks the signature and expiry and returns the
// authenticated party.
func ValidateToken(secret, tokenStr string) (domain.Party, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return domain.Party{}, errInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return domain.Party{}, errInvalidToken
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Party{}, errInvalidToken
	}
	kind, _ := claims["kind"].(string)
	k := domain.PartyKind(kind)
	if !k.Valid() {
		return domain.Party{}, errInvalidToken
	}

	return domain.Party{ID: sub, Kind: k}, nil
}
