package auth

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jwalitptl/appointment-engine/internal/model"
)

// JWTService issues and checks HS256 bearer tokens carrying the actor.
type JWTService interface {
	GenerateToken(actor model.Actor) (string, error)
	ValidateToken(token string) (*model.TokenClaims, error)
}

type jwtService struct {
	secret []byte
	issuer string
	expiry time.Duration
	now    func() time.Time
}

func NewJWTService(secret, issuer string, expiry time.Duration) JWTService {
	return &jwtService{
		secret: []byte(secret),
		issuer: issuer,
		expiry: expiry,
		now:    time.Now,
	}
}

func (s *jwtService) GenerateToken(actor model.Actor) (string, error) {
	if !actor.Role.IsValid() {
		return "", fmt.Errorf("unknown role %q", actor.Role)
	}
	if actor.UserID <= 0 {
		return "", fmt.Errorf("user id must be positive")
	}

	now := s.now()
	claims := &model.TokenClaims{
		UserID: actor.UserID,
		Role:   actor.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   strconv.FormatInt(actor.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (s *jwtService) ValidateToken(tokenString string) (*model.TokenClaims, error) {
	claims := &model.TokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if !claims.Role.IsValid() || claims.UserID <= 0 {
		return nil, fmt.Errorf("token does not carry a valid actor")
	}
	return claims, nil
}
