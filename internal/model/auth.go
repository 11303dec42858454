package model

import "github.com/golang-jwt/jwt/v5"

type Role string

const (
	RolePatient   Role = "patient"
	RoleDoctor    Role = "doctor"
	RoleScheduler Role = "scheduler"
	RoleAdmin     Role = "admin"
)

func (r Role) IsValid() bool {
	switch r {
	case RolePatient, RoleDoctor, RoleScheduler, RoleAdmin:
		return true
	}
	return false
}

// Actor is the caller identity supplied by the identity collaborator.
type Actor struct {
	UserID int64 `json:"user_id"`
	Role   Role  `json:"role"`
}

// TokenClaims carries the actor in a bearer token.
type TokenClaims struct {
	UserID int64 `json:"user_id"`
	Role   Role  `json:"role"`
	jwt.RegisteredClaims
}

func (c *TokenClaims) Actor() Actor {
	return Actor{UserID: c.UserID, Role: c.Role}
}
