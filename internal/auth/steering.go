// Package auth decides which viewers may steer the shared camera. Tokens are
// compact HS256 JWTs signed with a secret shared with whoever hands them out.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SteeringAudience is the aud claim every steering token must carry.
const SteeringAudience = "raygrid-steering"

var (
	// ErrInvalidToken indicates the token failed signature checks or had malformed structure.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken signals that the token's expiry is in the past.
	ErrExpiredToken = errors.New("token expired")
	// ErrMissingToken is returned when the request carries no token at all.
	ErrMissingToken = errors.New("missing steering token")
)

// Claims is the payload of a steering token.
type Claims struct {
	Subject   string
	Audience  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// SteeringTokens issues and checks steering tokens.
type SteeringTokens struct {
	secret []byte
	now    func() time.Time
	leeway time.Duration
}

// NewSteeringTokens builds a signer/verifier for secret. leeway tolerates
// clock skew on expiry.
func NewSteeringTokens(secret string, leeway time.Duration) (*SteeringTokens, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("steering secret must not be empty")
	}
	return &SteeringTokens{secret: []byte(secret), now: time.Now, leeway: max(leeway, 0)}, nil
}

// WithClock overrides the clock for deterministic tests.
func (s *SteeringTokens) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Issue signs a token for subject valid for ttl.
func (s *SteeringTokens) Issue(subject string, ttl time.Duration) (string, error) {
	subject = strings.TrimSpace(subject)
	switch {
	case subject == "":
		return "", errors.New("subject must not be empty")
	case ttl <= 0:
		return "", errors.New("ttl must be positive")
	}
	now := s.now().Truncate(time.Second)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		Audience:  jwt.ClaimStrings{SteeringAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	return token.SignedString(s.secret)
}

// Verify checks the signature, audience and expiry and returns the claims.
// Only HS256 is accepted, so a token cannot pick a weaker algorithm.
func (s *SteeringTokens) Verify(token string) (*Claims, error) {
	var registered jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(strings.TrimSpace(token), &registered,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(SteeringAudience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(s.leeway),
		jwt.WithTimeFunc(s.now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpiredToken
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	case strings.TrimSpace(registered.Subject) == "":
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	claims := &Claims{Subject: registered.Subject, Audience: SteeringAudience, ExpiresAt: registered.ExpiresAt.Time}
	if registered.IssuedAt != nil {
		claims.IssuedAt = registered.IssuedAt.Time
	}
	return claims, nil
}

// Authenticate reads the token from the "steer" query parameter or the
// X-Steering-Token header and returns the subject allowed to steer.
func (s *SteeringTokens) Authenticate(r *http.Request) (string, error) {
	if s == nil {
		return "", errors.New("steering tokens not configured")
	}
	token := strings.TrimSpace(r.URL.Query().Get("steer"))
	if token == "" {
		token = strings.TrimSpace(r.Header.Get("X-Steering-Token"))
	}
	if token == "" {
		return "", ErrMissingToken
	}
	claims, err := s.Verify(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}
