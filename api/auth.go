package api

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// Auth issues and validates HS256 session tokens. A token is only accepted
// while the session named by its sid claim still exists.
type Auth struct {
	Secret   []byte
	Audience string
	Issuer   string
	TokenTTL time.Duration
	Sessions SessionStore

	parser *jwt.Parser
}

var errSessionExpired = errors.New("session expired")

// NewAuth creates a new Auth instance.
func NewAuth(secret []byte, audience, issuer string, tokenTTL time.Duration, sessions SessionStore) *Auth {
	if len(secret) == 0 {
		panic("api.NewAuth: session secret must not be empty")
	}
	return &Auth{
		Secret:   secret,
		Audience: audience,
		Issuer:   issuer,
		TokenTTL: tokenTTL,
		Sessions: sessions,
		parser:   jwt.NewParser(jwt.WithValidMethods([]string{"HS256"})),
	}
}

// IssueToken mints a session token for the given principal.
func (a *Auth) IssueToken(p Principal) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   p.UserID,
		"email": p.Email,
		"sid":   p.SessionID,
		"aud":   a.Audience,
		"iss":   a.Issuer,
		"iat":   now.Unix(),
		"nbf":   now.Unix(),
		"exp":   now.Add(a.TokenTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.Secret)
}

// Principal extracts and verifies the caller identity from an Authorization
// header.
func (a *Auth) Principal(ctx context.Context, authHeader string) (Principal, error) {
	tokenStr, err := bearerTokenFromHeader(authHeader)
	if err != nil {
		return Principal{}, err
	}

	parsedToken, err := a.parser.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return a.Secret, nil
	})
	if err != nil {
		return Principal{}, err
	}

	claims, ok := parsedToken.Claims.(jwt.MapClaims)
	if !ok {
		return Principal{}, errors.New("invalid claims")
	}

	now := time.Now().Add(time.Minute).Unix()
	if !claims.VerifyExpiresAt(now, true) {
		return Principal{}, errors.New("token expired")
	}
	if !claims.VerifyNotBefore(now, false) {
		return Principal{}, errors.New("token not valid yet")
	}
	if !claims.VerifyIssuedAt(now, false) {
		return Principal{}, errors.New("token used before issued")
	}
	if a.Audience != "" && !claims.VerifyAudience(a.Audience, false) {
		return Principal{}, errors.New("invalid audience")
	}
	if a.Issuer != "" && !claims.VerifyIssuer(a.Issuer, false) {
		return Principal{}, errors.New("invalid issuer")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return Principal{}, errors.New("missing sub")
	}
	sid, ok := claims["sid"].(string)
	if !ok || sid == "" {
		return Principal{}, errors.New("missing session id")
	}

	if a.Sessions != nil {
		exists, err := a.Sessions.Exists(ctx, sid)
		if err != nil {
			return Principal{}, err
		}
		if !exists {
			return Principal{}, errSessionExpired
		}
	}

	email, _ := claims["email"].(string)
	return Principal{UserID: sub, Email: email, SessionID: sid}, nil
}
