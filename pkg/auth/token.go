// Package auth verifies identity tokens issued by the external auth service and
// turns them into actors.
package auth

import (
	stderrors "errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/scentflow/scentflow-backend/pkg/actor"
	"github.com/scentflow/scentflow-backend/pkg/config"
	"github.com/scentflow/scentflow-backend/pkg/errors"
)

// Claims represents the JWT claims
type Claims struct {
	jwt.RegisteredClaims
	Name        string `json:"name,omitempty"`
	LocationID  string `json:"location_id,omitempty"`
	GlobalAdmin bool   `json:"global_admin"`
}

// TokenVerifier validates HS256 access tokens.
type TokenVerifier struct {
	secret []byte
	issuer string
}

// NewTokenVerifier creates a verifier from the JWT configuration
func NewTokenVerifier(cfg *config.JWTConfig) *TokenVerifier {
	return &TokenVerifier{secret: []byte(cfg.Secret), issuer: cfg.Issuer}
}

// Verify validates the token and returns the actor it describes.
func (v *TokenVerifier) Verify(tokenString string) (*actor.Actor, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		if stderrors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.TokenExpired()
		}
		return nil, errors.TokenInvalid()
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, errors.TokenInvalid()
	}

	return &actor.Actor{
		ID:            claims.Subject,
		Name:          claims.Name,
		LocationID:    claims.LocationID,
		IsGlobalAdmin: claims.GlobalAdmin,
	}, nil
}

// Issue signs a token for a. The auth service owns issuance in production; this
// is used by tests and local tooling.
func (v *TokenVerifier) Issue(a *actor.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			Subject:   a.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-time.Minute)),
			ID:        uuid.New().String(),
		},
		Name:        a.Name,
		LocationID:  a.LocationID,
		GlobalAdmin: a.IsGlobalAdmin,
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
