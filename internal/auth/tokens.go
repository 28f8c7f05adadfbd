package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"aidanwoods.dev/go-paseto"

	"github.com/pkordes/trip-tracker/internal/domain"
)

const (
	tokenIssuer   = "trip-tracker"
	tokenAudience = "trip-tracker-web"

	keyBytes = 32
	keyHex   = 64
)

// TokenService issues and verifies PASETO v4.local session tokens.
type TokenService struct {
	key paseto.V4SymmetricKey
	ttl time.Duration
	now func() time.Time
}

// NewTokenService creates a TokenService from a 64-character hex key.
func NewTokenService(keyHexStr string, ttl time.Duration) (*TokenService, error) {
	if len(keyHexStr) != keyHex {
		return nil, fmt.Errorf("token key must be exactly %d hex characters, got %d", keyHex, len(keyHexStr))
	}
	raw, err := hex.DecodeString(keyHexStr)
	if err != nil {
		return nil, fmt.Errorf("token key is not valid hex: %w", err)
	}
	key, err := paseto.V4SymmetricKeyFromBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("create symmetric key: %w", err)
	}
	return &TokenService{key: key, ttl: ttl, now: time.Now}, nil
}

// GenerateKeyHex returns a fresh random key suitable for NewTokenService.
func GenerateKeyHex() (string, error) {
	b := make([]byte, keyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token key: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Issue creates a session for u with a freshly encrypted access token.
func (s *TokenService) Issue(u domain.User) (domain.Session, error) {
	now := s.now()
	exp := now.Add(s.ttl)

	token := paseto.NewToken()
	token.SetIssuer(tokenIssuer)
	token.SetAudience(tokenAudience)
	token.SetSubject(u.ID)
	token.SetIssuedAt(now)
	token.SetNotBefore(now)
	token.SetExpiration(exp)
	if err := token.Set("email", u.Email); err != nil {
		return domain.Session{}, fmt.Errorf("auth.TokenService.Issue: %w", err)
	}

	return domain.Session{
		AccessToken: token.V4Encrypt(s.key, nil),
		ExpiresAt:   exp,
		User:        u,
	}, nil
}

// Renew re-issues the session for u once less than half of the token
// lifetime remains before exp, so a session in use never expires. It reports
// whether a new token was issued.
func (s *TokenService) Renew(u domain.User, exp time.Time) (domain.Session, bool, error) {
	if exp.Sub(s.now()) > s.ttl/2 {
		return domain.Session{}, false, nil
	}
	sess, err := s.Issue(u)
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("auth.TokenService.Renew: %w", err)
	}
	return sess, true, nil
}

// Verify decrypts and validates an access token and returns its user and expiry.
// Expired, foreign or tampered tokens return an error.
func (s *TokenService) Verify(accessToken string) (domain.User, time.Time, error) {
	parser := paseto.NewParserWithoutExpiryCheck()
	parser.AddRule(paseto.ForAudience(tokenAudience))
	parser.AddRule(paseto.IssuedBy(tokenIssuer))
	parser.AddRule(paseto.ValidAt(s.now()))

	token, err := parser.ParseV4Local(s.key, accessToken, nil)
	if err != nil {
		return domain.User{}, time.Time{}, fmt.Errorf("auth.TokenService.Verify: %w", err)
	}

	sub, err := token.GetSubject()
	if err != nil {
		return domain.User{}, time.Time{}, fmt.Errorf("auth.TokenService.Verify: subject: %w", err)
	}
	email, err := token.GetString("email")
	if err != nil {
		return domain.User{}, time.Time{}, fmt.Errorf("auth.TokenService.Verify: email: %w", err)
	}
	exp, err := token.GetExpiration()
	if err != nil {
		return domain.User{}, time.Time{}, fmt.Errorf("auth.TokenService.Verify: expiration: %w", err)
	}

	return domain.User{ID: sub, Email: email}, exp, nil
}
