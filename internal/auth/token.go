// Package auth validates session tokens issued by the external identity
// collaborator. Token issuance lives outside this service; only HS256
// validation and role checks happen here.
package auth

import (
	"errors"

	pkgerrors "proctorhub/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
)

// Roles recognized by the monitoring surface.
const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

// UserInfo identifies an authenticated principal.
type UserInfo struct {
	ID   string
	Role string
}

// TokenService parses and validates bearer tokens.
type TokenService struct {
	secret []byte
	issuer string
}

// NewTokenService creates a validator for HS256 tokens with the given secret.
func NewTokenService(secret, issuer string) *TokenService {
	return &TokenService{secret: []byte(secret), issuer: issuer}
}

type tokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticate validates a raw token and returns the principal it names.
func (s *TokenService) Authenticate(raw string) (UserInfo, error) {
	if raw == "" {
		return UserInfo{}, pkgerrors.New(pkgerrors.TokenMissing)
	}
	if len(s.secret) == 0 {
		return UserInfo{}, pkgerrors.New(pkgerrors.TokenInvalid)
	}

	claims := &tokenClaims{}
	parserOpts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	if s.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(s.issuer))
	}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, parserOpts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return UserInfo{}, pkgerrors.New(pkgerrors.TokenExpired)
		}
		return UserInfo{}, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if !token.Valid {
		return UserInfo{}, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if claims.Subject == "" {
		return UserInfo{}, pkgerrors.New(pkgerrors.TokenInvalid).WithMessage("token subject is empty")
	}

	role := claims.Role
	if role == "" {
		role = RoleStudent
	}
	return UserInfo{ID: claims.Subject, Role: role}, nil
}

// HasRole reports whether role is one of the allowed roles. An empty allow
// list admits every authenticated principal.
func HasRole(role string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == role {
			return true
		}
	}
	return false
}
