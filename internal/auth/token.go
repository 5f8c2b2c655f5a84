package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTokenTTL is the token lifetime when none is configured (24 hours).
const DefaultTokenTTL = 24 * time.Hour

// Claims carries the signed identity assertion: subject, issued-at, expiry,
// and the role names resolved at issuance.
type Claims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Codec issues and verifies signed, time-bounded identity assertions using
// HS256 over a process-wide symmetric key. The key is read-only after
// startup: there is no runtime rotation, so revocation is achieved only by
// disabling the principal or restarting with a new key.
type Codec struct {
	key    []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// CodecOption configures a Codec.
type CodecOption func(*Codec)

// WithTTL overrides the default token lifetime.
func WithTTL(ttl time.Duration) CodecOption {
	return func(c *Codec) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithIssuer sets the issuer claim embedded into and required from tokens.
func WithIssuer(issuer string) CodecOption {
	return func(c *Codec) {
		c.issuer = strings.TrimSpace(issuer)
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) CodecOption {
	return func(c *Codec) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewCodec constructs a Codec for the given signing secret.
func NewCodec(secret string, opts ...CodecOption) (*Codec, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	c := &Codec{
		key: []byte(secret),
		ttl: DefaultTokenTTL,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// TTL returns the configured token lifetime.
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Issue signs a token for the subject with the configured TTL. Empty role
// sets are allowed; an empty subject is not.
func (c *Codec) Issue(subject string, roles []string) (token string, issuedAt, expiresAt time.Time, err error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", time.Time{}, time.Time{}, errors.New("auth: subject is required")
	}

	issuedAt = c.now().UTC()
	expiresAt = issuedAt.Add(c.ttl)
	claims := Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", time.Time{}, time.Time{}, err
	}
	return signed, issuedAt, expiresAt, nil
}

// Verify validates the token against the expected subject. Valid means the
// signature verifies, the decoded subject equals expectedSubject, and the
// expiry is strictly in the future. Every failure mode surfaces as
// ErrInvalidToken; nothing here panics on hostile input.
func (c *Codec) Verify(token, expectedSubject string) error {
	claims, err := c.parse(token, true)
	if err != nil {
		return ErrInvalidToken
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return ErrInvalidToken
	}
	if claims.Subject != strings.TrimSpace(expectedSubject) || claims.Subject == "" {
		return ErrInvalidToken
	}
	if c.issuer != "" && claims.Issuer != c.issuer {
		return ErrInvalidToken
	}
	return nil
}

// ExtractSubject decodes the token's subject without requiring prior
// knowledge of it, verifying the signature but not the time claims. Used to
// look up the principal before full verification. Structural or signature
// failures surface as ErrTokenMalformed.
func (c *Codec) ExtractSubject(token string) (string, error) {
	claims, err := c.parse(token, false)
	if err != nil {
		return "", ErrTokenMalformed
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", ErrTokenMalformed
	}
	return claims.Subject, nil
}

func (c *Codec) parse(token string, validateClaims bool) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	opts := []jwt.ParserOption{jwt.WithTimeFunc(func() time.Time { return c.now().UTC() })}
	if !validateClaims {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return c.key, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
