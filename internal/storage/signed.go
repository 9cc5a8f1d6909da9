package storage

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const DefaultURLTTL = 15 * time.Minute

// URLSigner points attachments at a file server and appends a short-lived
// HS256 token naming the key, which the file server verifies.
type URLSigner struct {
	base   *url.URL
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewURLSigner(baseURL, secret string, ttl time.Duration) (*URLSigner, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("storage: attachment base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("storage: attachment base url %q needs scheme and host", baseURL)
	}
	if secret == "" {
		return nil, fmt.Errorf("storage: attachment url secret is empty")
	}
	if ttl <= 0 {
		ttl = DefaultURLTTL
	}
	return &URLSigner{base: u, secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

func (s *URLSigner) SignedURL(key string) (string, error) {
	k, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	now := s.now()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   k,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}).SignedString(s.secret)
	if err != nil {
		return "", err
	}
	u := *s.base
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + k
	u.RawQuery = url.Values{"token": {tok}}.Encode()
	return u.String(), nil
}

// Verify checks a token issued by SignedURL and returns the key it covers.
func (s *URLSigner) Verify(token string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}
