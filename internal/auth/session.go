package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Defaults.
const (
	// DefaultRenewMargin is how long before expiry a credential is renewed.
	DefaultRenewMargin = 5 * time.Second

	// renewTimeout bounds one shared renewal, independent of the caller
	// that started it.
	renewTimeout = 30 * time.Second
)

// Logger defines the logging interface used by the Session.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// SessionConfig holds account identity and signing settings.
type SessionConfig struct {
	Username    string
	Password    string
	RenewMargin time.Duration
	Broker      BrokerConfig
}

// Session owns the account credential and keeps it usable.
//
// Renewal is single-flight: concurrent callers that find the credential
// expiring share one renewal. A renewal first tries the refresh token and
// falls back to a full login with the configured account identity; if both
// fail the caller gets ErrAuthentication.
//
// Thread Safety: all methods are safe for concurrent use.
type Session struct {
	provider IdentityProvider
	cache    CredentialCache
	cfg      SessionConfig
	logger   Logger
	now      func() time.Time

	group singleflight.Group

	mu     sync.RWMutex
	cred   Credential
	claims *IDClaims
	gen    uint64
}

// NewSession creates a session. cache may be nil.
func NewSession(provider IdentityProvider, cache CredentialCache, cfg SessionConfig) *Session {
	if cfg.RenewMargin <= 0 {
		cfg.RenewMargin = DefaultRenewMargin
	}
	return &Session{
		provider: provider,
		cache:    cache,
		cfg:      cfg,
		logger:   noopLogger{},
		now:      time.Now,
	}
}

// SetLogger sets the logger for the session.
func (s *Session) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Restore loads a cached credential, if any, without touching the
// network. An expired cached credential is still useful for its refresh
// token.
func (s *Session) Restore(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	c, err := s.cache.Load(ctx)
	if errors.Is(err, ErrNoCredential) {
		return nil
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.setLocked(c)
	s.mu.Unlock()

	s.logger.Info("restored cached credential", "expires", c.Expiry)
	return nil
}

// Credential returns a credential that does not expire within the renew
// margin, renewing first when needed. One renewal and one re-login are
// attempted per call.
func (s *Session) Credential(ctx context.Context) (Credential, error) {
	s.mu.RLock()
	c, gen := s.cred, s.gen
	s.mu.RUnlock()

	if !c.ExpiresWithin(s.cfg.RenewMargin, s.now()) {
		return c, nil
	}
	return s.renew(ctx, gen)
}

// ForceRenew renews regardless of the credential's stated expiry. It is
// used after the cloud rejects a credential the session believed valid.
func (s *Session) ForceRenew(ctx context.Context) error {
	s.mu.RLock()
	gen := s.gen
	s.mu.RUnlock()

	_, err := s.renew(ctx, gen)
	return err
}

// AuthHeader returns the Authorization header value for REST calls.
func (s *Session) AuthHeader(ctx context.Context) (string, error) {
	c, err := s.Credential(ctx)
	if err != nil {
		return "", err
	}
	return c.IDToken, nil
}

// SignedBrokerURL returns a freshly signed wss:// URL for the realtime
// broker.
func (s *Session) SignedBrokerURL(ctx context.Context) (string, error) {
	c, err := s.Credential(ctx)
	if err != nil {
		return "", err
	}
	creds, err := s.provider.AWSCredentials(ctx, c.IDToken)
	if err != nil {
		return "", fmt.Errorf("obtaining broker credentials: %w", err)
	}
	return PresignBrokerURL(ctx, creds, s.cfg.Broker, s.now())
}

// UserID returns the account subject from the id token, or "" before the
// first successful login.
func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.claims == nil {
		return ""
	}
	return s.claims.Subject
}

// Claims returns a copy of the id token claims, or nil.
func (s *Session) Claims() *IDClaims {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.claims == nil {
		return nil
	}
	c := *s.claims
	return &c
}

// Expiry returns when the current credential expires.
func (s *Session) Expiry() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred.Expiry
}

// renew runs one shared renewal. observed is the generation the caller saw;
// if another renewal completed since, its result is returned instead.
func (s *Session) renew(ctx context.Context, observed uint64) (Credential, error) {
	ch := s.group.DoChan("renew", func() (any, error) {
		s.mu.RLock()
		cur, gen := s.cred, s.gen
		s.mu.RUnlock()
		if gen != observed && cur.Valid() {
			return cur, nil
		}

		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), renewTimeout)
		defer cancel()
		return s.refreshOrLogin(rctx, cur)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return Credential{}, res.Err
		}
		return res.Val.(Credential), nil
	case <-ctx.Done():
		return Credential{}, ctx.Err()
	}
}

func (s *Session) refreshOrLogin(ctx context.Context, cur Credential) (Credential, error) {
	var errs []error

	if cur.RefreshToken != "" {
		c, err := s.provider.Refresh(ctx, cur.RefreshToken)
		if err == nil {
			if c.RefreshToken == "" {
				c.RefreshToken = cur.RefreshToken
			}
			s.install(ctx, c)
			s.logger.Debug("credential renewed", "expires", c.Expiry)
			return c, nil
		}
		s.logger.Warn("credential renewal failed, logging in again", "error", err)
		errs = append(errs, fmt.Errorf("renew: %w", err))
	}

	if s.cfg.Username == "" || s.cfg.Password == "" {
		errs = append(errs, errors.New("login: no account identity configured"))
	} else {
		c, err := s.provider.Login(ctx, s.cfg.Username, s.cfg.Password)
		if err == nil {
			s.install(ctx, c)
			s.logger.Info("logged in", "username", s.cfg.Username, "expires", c.Expiry)
			return c, nil
		}
		errs = append(errs, fmt.Errorf("login: %w", err))
	}

	return Credential{}, fmt.Errorf("%w: %w", ErrAuthentication, errors.Join(errs...))
}

func (s *Session) install(ctx context.Context, c Credential) {
	s.mu.Lock()
	s.setLocked(c)
	s.gen++
	s.mu.Unlock()

	if s.cache != nil {
		if err := s.cache.Save(ctx, c); err != nil {
			s.logger.Warn("failed to cache credential", "error", err)
		}
	}
}

// setLocked replaces the credential and its parsed claims. Caller holds mu.
func (s *Session) setLocked(c Credential) {
	s.cred = c
	claims, err := ParseIDToken(c.IDToken)
	if err != nil {
		s.logger.Warn("id token claims unreadable", "error", err)
		s.claims = nil
		return
	}
	s.claims = claims
}
