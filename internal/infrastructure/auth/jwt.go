package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/bookwise-inc/bookwise/internal/shared/biztime"
)

const (
	adminIssuer   = "bookwise"
	adminAudience = "bookwise-admin"
	ScopeBilling  = "billing:admin"
)

var ErrInvalidToken = errors.New("invalid admin token")

type AdminClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// AdminTokenService issues and verifies the HS256 tokens that guard the
// billing admin endpoints.
type AdminTokenService struct {
	secret  []byte
	expDays int
	now     func() time.Time
}

func NewAdminTokenService(secret string, expDays int) *AdminTokenService {
	if expDays <= 0 {
		expDays = 30
	}
	return &AdminTokenService{
		secret:  []byte(secret),
		expDays: expDays,
		now:     biztime.NowUTC,
	}
}

// Issue signs a billing admin token for subject.
func (s *AdminTokenService) Issue(subject string) (string, time.Time, error) {
	if len(s.secret) == 0 {
		return "", time.Time{}, errors.New("jwt secret is not configured")
	}
	if subject == "" {
		return "", time.Time{}, errors.New("token subject is required")
	}

	now := s.now()
	exp := now.Add(time.Duration(s.expDays) * 24 * time.Hour)
	claims := &AdminClaims{
		Scope: ScopeBilling,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    adminIssuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{adminAudience},
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign admin token: %w", err)
	}
	return signed, exp, nil
}

func (s *AdminTokenService) Verify(tokenString string) (*AdminClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AdminClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(adminIssuer),
		jwt.WithAudience(adminAudience),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*AdminClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Scope != ScopeBilling {
		return nil, fmt.Errorf("%w: missing scope %s", ErrInvalidToken, ScopeBilling)
	}
	return claims, nil
}
