package api

import (
	"errors"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
)

// JWKSVerifier validates RS256 ID tokens against the external identity
// provider's published key set.
type JWKSVerifier struct {
	jwks     *keyfunc.JWKS
	issuer   string
	audience string
	parser   *jwt.Parser
}

// NewJWKSVerifier creates a verifier for the given provider issuer and
// audience.
func NewJWKSVerifier(jwks *keyfunc.JWKS, issuer, audience string) *JWKSVerifier {
	return &JWKSVerifier{
		jwks:     jwks,
		issuer:   issuer,
		audience: audience,
		parser:   jwt.NewParser(jwt.WithValidMethods([]string{"RS256"})),
	}
}

// Verify checks the token signature and claims, returning the provider
// identity embedded in it.
func (v *JWKSVerifier) Verify(idToken string) (FederatedIdentity, error) {
	if v.jwks == nil {
		return FederatedIdentity{}, errors.New("jwks not configured")
	}
	parsedToken, err := v.parser.Parse(idToken, v.jwks.Keyfunc)
	if err != nil {
		return FederatedIdentity{}, err
	}

	claims, ok := parsedToken.Claims.(jwt.MapClaims)
	if !ok {
		return FederatedIdentity{}, errors.New("invalid claims")
	}

	now := time.Now().Add(time.Minute).Unix()
	if !claims.VerifyExpiresAt(now, true) {
		return FederatedIdentity{}, errors.New("token expired")
	}
	if !claims.VerifyNotBefore(now, false) {
		return FederatedIdentity{}, errors.New("token not valid yet")
	}
	if v.audience != "" && !claims.VerifyAudience(v.audience, false) {
		return FederatedIdentity{}, errors.New("invalid audience")
	}
	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, false) {
		return FederatedIdentity{}, errors.New("invalid issuer")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return FederatedIdentity{}, errors.New("missing sub")
	}
	email, ok := claims["email"].(string)
	if !ok || email == "" {
		return FederatedIdentity{}, errors.New("missing email")
	}
	name, _ := claims["name"].(string)

	return FederatedIdentity{Subject: sub, Email: email, Name: name}, nil
}
