package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
)

// Google identity-token failures. Wrong audience and late presentation
// are distinct, reportable conditions.
var (
	ErrInvalidIDToken   = errors.New("invalid google identity token")
	ErrWrongAudience    = errors.New("google identity token issued for a different client")
	ErrIDTokenExpired   = errors.New("google identity token is expired")
	ErrVerifierDisabled = errors.New("google sign-in is not configured")
)

// GoogleProfile is the identity asserted by a verified Google ID token.
type GoogleProfile struct {
	GoogleID      string
	Email         string
	Name          string
	Picture       string
	EmailVerified bool
}

// GoogleVerifier validates third-party identity tokens against
// Google's published signing keys.
type GoogleVerifier interface {
	Verify(idToken string) (*GoogleProfile, error)
}

type googleIDClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	jwt.RegisteredClaims
}

type googleVerifier struct {
	clientID string
	jwks     *keyfunc.JWKS
}

// NewGoogleVerifier fetches Google's JWK set and keeps it refreshed in
// the background. Returns an error when the set cannot be fetched at
// boot; callers treat Google sign-in as unavailable in that case.
func NewGoogleVerifier(clientID, jwksURL string) (GoogleVerifier, error) {
	if clientID == "" {
		return nil, ErrVerifierDisabled
	}
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		RefreshInterval:  time.Hour,
		RefreshRateLimit: 5 * time.Minute,
		RefreshErrorHandler: func(err error) {
			// Stale keys keep working until the next successful refresh.
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch google JWK set: %w", err)
	}
	return &googleVerifier{clientID: clientID, jwks: jwks}, nil
}

func (v *googleVerifier) Verify(idToken string) (*GoogleProfile, error) {
	claims := &googleIDClaims{}
	token, err := jwt.ParseWithClaims(idToken, claims, v.jwks.Keyfunc,
		jwt.WithValidMethods([]string{"RS256"}),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrIDTokenExpired
		case errors.Is(err, jwt.ErrTokenInvalidAudience):
			return nil, ErrWrongAudience
		default:
			return nil, ErrInvalidIDToken
		}
	}
	if !token.Valid {
		return nil, ErrInvalidIDToken
	}

	if iss := claims.Issuer; iss != "accounts.google.com" && iss != "https://accounts.google.com" {
		return nil, ErrInvalidIDToken
	}
	if !audienceMatches(claims.Audience, v.clientID) {
		return nil, ErrWrongAudience
	}
	if claims.Subject == "" || claims.Email == "" {
		return nil, ErrInvalidIDToken
	}

	return &GoogleProfile{
		GoogleID:      claims.Subject,
		Email:         claims.Email,
		Name:          claims.Name,
		Picture:       claims.Picture,
		EmailVerified: claims.EmailVerified,
	}, nil
}

func audienceMatches(aud jwt.ClaimStrings, clientID string) bool {
	for _, a := range aud {
		if a == clientID {
			return true
		}
	}
	return false
}
