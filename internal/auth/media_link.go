package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const mediaLinkIssuer = "scribehook-api"

var ErrLinkMismatch = errors.New("token was issued for a different file")

// MediaClaims binds a playback token to a single stored file
type MediaClaims struct {
	File string `json:"file"`
	jwt.RegisteredClaims
}

// LinkSigner issues and checks HMAC-signed playback tokens. A signer with
// an empty secret is disabled: links are unsigned and every token passes.
type LinkSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewLinkSigner(secret string, ttl time.Duration) *LinkSigner {
	return &LinkSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Enabled reports whether links carry a token.
func (s *LinkSigner) Enabled() bool {
	return s != nil && len(s.secret) > 0
}

// Sign returns a token for file, or "" when signing is disabled.
func (s *LinkSigner) Sign(file string) (string, error) {
	if !s.Enabled() {
		return "", nil
	}

	now := s.now()
	claims := MediaClaims{
		File: file,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   mediaLinkIssuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if s.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate checks tokenString and that it was issued for file.
func (s *LinkSigner) Validate(tokenString, file string) error {
	if !s.Enabled() {
		return nil
	}

	token, err := jwt.ParseWithClaims(tokenString, &MediaClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	}, jwt.WithIssuer(mediaLinkIssuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return err
	}

	claims, ok := token.Claims.(*MediaClaims)
	if !ok || !token.Valid {
		return jwt.ErrTokenInvalidClaims
	}
	if claims.File != file {
		return ErrLinkMismatch
	}
	return nil
}

// URL builds the playback path for file, with a token when signing is on.
func (s *LinkSigner) URL(file string) (string, error) {
	path := "/api/video/" + file
	token, err := s.Sign(file)
	if err != nil {
		return "", fmt.Errorf("sign media link: %w", err)
	}
	if token == "" {
		return path, nil
	}
	return path + "?token=" + token, nil
}
