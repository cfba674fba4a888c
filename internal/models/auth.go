package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims carries identity for the job-trigger endpoints.
type JWTClaims struct {
	UserID   string `json:"user_id"`
	SchoolID string `json:"school_id"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}
