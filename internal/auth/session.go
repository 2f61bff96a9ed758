// Package auth owns the persisted credentials of the signed-in user: the
// bearer token and the profile returned at login. It replaces ambient
// token helpers with a value that is passed to whoever needs it.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"

	"finsession/internal/core"
	"finsession/internal/log"
	"finsession/internal/storage"
)

const (
	KeyPrefix = "auth_"
	KeyToken  = KeyPrefix + "token"
	KeyUser   = KeyPrefix + "user"

	DefaultTokenTTL = 7 * 24 * time.Hour
)

var (
	ErrEmptyToken   = errors.New("auth: empty token")
	ErrTokenExpired = errors.New("auth: token already expired")
)

type Options struct {
	TokenTTL time.Duration
	Clock    clockwork.Clock
	Logger   *log.Logger
}

type Service struct {
	kv       storage.KV
	tokenTTL time.Duration
	clock    clockwork.Clock
	logger   *log.Logger
}

func NewService(kv storage.KV, opts Options) *Service {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = DefaultTokenTTL
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	return &Service{
		kv:       kv,
		tokenTTL: opts.TokenTTL,
		clock:    opts.Clock,
		logger:   opts.Logger.WithComponent(log.ComponentAuth),
	}
}

// Token returns the persisted bearer token. Storage failures read as absent.
func (s *Service) Token(ctx context.Context) (string, bool) {
	token, ok, err := s.kv.Get(ctx, KeyToken)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to read token", log.FieldError, err)
		return "", false
	}
	return token, ok && token != ""
}

// SetToken persists token until its JWT expiry, or for the configured TTL
// when the token carries no readable expiry. A JWT whose exp has passed is
// rejected with ErrTokenExpired.
func (s *Service) SetToken(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrEmptyToken
	}
	expiry, err := s.expiryFor(token)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, KeyToken, token, expiry); err != nil {
		return fmt.Errorf("persist token: %w", err)
	}
	return nil
}

// User returns the persisted profile, or nil when there is none. An
// unreadable profile is dropped.
func (s *Service) User(ctx context.Context) *core.User {
	raw, ok, err := s.kv.Get(ctx, KeyUser)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to read user profile", log.FieldError, err)
		return nil
	}
	if !ok {
		return nil
	}
	var u core.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		s.logger.WarnContext(ctx, "Discarding unreadable user profile", log.FieldError, err)
		if err := s.kv.Delete(ctx, KeyUser); err != nil {
			s.logger.WarnContext(ctx, "Failed to delete unreadable user profile", log.FieldError, err)
		}
		return nil
	}
	return &u
}

// SetUser persists the profile with the same lifetime as the current token.
func (s *Service) SetUser(ctx context.Context, u core.User) error {
	body, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encode user profile: %w", err)
	}
	expiry := s.clock.Now().Add(s.tokenTTL)
	if token, ok := s.Token(ctx); ok {
		if expiry, err = s.expiryFor(token); err != nil {
			return err
		}
	}
	if err := s.kv.Set(ctx, KeyUser, string(body), expiry); err != nil {
		return fmt.Errorf("persist user profile: %w", err)
	}
	return nil
}

// Login stores both credentials.
func (s *Service) Login(ctx context.Context, token string, u core.User) error {
	if err := s.SetToken(ctx, token); err != nil {
		return err
	}
	if err := s.SetUser(ctx, u); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Session stored", log.FieldOperation, log.OpLogin, "user_id", u.ID)
	return nil
}

// Clear removes token and profile.
func (s *Service) Clear(ctx context.Context) error {
	var errs []error
	for _, key := range []string{KeyToken, KeyUser} {
		if err := s.kv.Delete(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	s.logger.InfoContext(ctx, "Session cleared", log.FieldOperation, log.OpLogout)
	return nil
}

// IsAuthenticated is true when user is set and a token is persisted. It is
// evaluated on every call.
func (s *Service) IsAuthenticated(ctx context.Context, user *core.User) bool {
	if user == nil {
		return false
	}
	_, ok := s.Token(ctx)
	return ok
}

// expiryFor is the JWT exp when the token has one, else now plus the TTL.
func (s *Service) expiryFor(token string) (time.Time, error) {
	now := s.clock.Now()
	exp, ok := TokenExpiry(token)
	if !ok {
		return now.Add(s.tokenTTL), nil
	}
	if !exp.After(now) {
		return time.Time{}, fmt.Errorf("%w at %s", ErrTokenExpired, exp.UTC().Format(time.RFC3339))
	}
	return exp, nil
}

// TokenExpiry reads the exp claim of a JWT without verifying its signature.
// Verification is the API's job; the expiry only bounds local persistence.
func TokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
