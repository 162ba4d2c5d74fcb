// Package auth implements the admin panel's token gate. Gate state lives in
// a visitor's local storage scope, mirroring a browser's localStorage.
package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ashureev/roofchat/internal/store"
)

// Storage keys.
const (
	TokenKey  = "accessToken"
	ExpiryKey = "tokenExpiry"
	EmailKey  = "userEmail"
)

const (
	// DevToken is the fixed token issued on login.
	DevToken = "dev-access-token"
	// DefaultTTL is how long a login stays valid.
	DefaultTTL = time.Hour
	// MinPasswordLength is measured in characters.
	MinPasswordLength = 8
)

// ErrInvalidCredentials is returned when well-formed input does not match
// the configured credentials.
var ErrInvalidCredentials = errors.New("invalid credentials")

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidationError maps form fields to messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Credentials are the single admin login the gate accepts.
type Credentials struct {
	Email    string
	Password string
}

// Session describes a successful login.
type Session struct {
	Token  string    `json:"accessToken"`
	Expiry time.Time `json:"expiresAt"`
	Email  string    `json:"email"`
}

// Gate checks and issues admin tokens.
type Gate struct {
	creds Credentials
	ttl   time.Duration
	now   func() time.Time
}

// Option configures a Gate.
type Option func(*Gate)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(g *Gate) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithNow overrides the wall clock.
func WithNow(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// NewGate creates a gate accepting creds. The configured email is compared
// case-insensitively.
func NewGate(creds Credentials, opts ...Option) *Gate {
	g := &Gate{
		creds: Credentials{
			Email:    normalizeEmail(creds.Email),
			Password: creds.Password,
		},
		ttl: DefaultTTL,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authorized reports whether s holds a token that has not expired.
func (g *Gate) Authorized(ctx context.Context, s store.Store) (bool, error) {
	token, ok, err := s.Get(ctx, TokenKey)
	if err != nil {
		return false, fmt.Errorf("read token: %w", err)
	}
	if !ok || token == "" {
		return false, nil
	}

	raw, ok, err := s.Get(ctx, ExpiryKey)
	if err != nil {
		return false, fmt.Errorf("read token expiry: %w", err)
	}
	if !ok {
		return false, nil
	}
	expiry, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false, nil
	}
	return expiry > g.now().UnixMilli(), nil
}

// Validate checks form input without looking at credentials.
func Validate(email, password string) error {
	fields := make(map[string]string)
	if !emailPattern.MatchString(strings.TrimSpace(email)) {
		fields["email"] = "Please enter a valid email address"
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		fields["password"] = fmt.Sprintf("Password must be at least %d characters", MinPasswordLength)
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// Login validates input, compares it with the configured credentials and on
// success writes the token, expiry and email into s.
func (g *Gate) Login(ctx context.Context, s store.Store, email, password string) (Session, error) {
	if err := Validate(email, password); err != nil {
		return Session{}, err
	}
	if normalizeEmail(email) != g.creds.Email || password != g.creds.Password {
		return Session{}, ErrInvalidCredentials
	}

	sess := Session{
		Token:  DevToken,
		Expiry: g.now().Add(g.ttl),
		Email:  g.creds.Email,
	}
	if err := s.Set(ctx, TokenKey, sess.Token); err != nil {
		return Session{}, fmt.Errorf("store token: %w", err)
	}
	if err := s.Set(ctx, ExpiryKey, strconv.FormatInt(sess.Expiry.UnixMilli(), 10)); err != nil {
		return Session{}, fmt.Errorf("store token expiry: %w", err)
	}
	if err := s.Set(ctx, EmailKey, sess.Email); err != nil {
		return Session{}, fmt.Errorf("store user email: %w", err)
	}
	return sess, nil
}

// Logout removes every gate key from s.
func (g *Gate) Logout(ctx context.Context, s store.Store) error {
	for _, key := range []string{TokenKey, ExpiryKey, EmailKey} {
		if err := s.Clear(ctx, key); err != nil {
			return fmt.Errorf("clear %s: %w", key, err)
		}
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
