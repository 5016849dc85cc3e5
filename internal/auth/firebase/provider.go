package firebase

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/finhub/internal/auth"
	"github.com/felixgeelhaar/finhub/internal/log"
)

// ProviderName identifies sessions created by this package.
const ProviderName = "firebase"

// Provider signs users in against the hosted identity service and keeps the
// ID token fresh until sign-out. A refresh that fails ends the session.
type Provider struct {
	*auth.Broadcaster

	client   *client
	verifier *Verifier
	store    auth.SessionStore
	logger   *log.Logger

	// refreshLead is how long before expiry the ID token is refreshed
	refreshLead time.Duration
	now         func() time.Time

	mu    sync.Mutex
	timer *time.Timer
}

// Option configures a Provider.
type Option func(*Provider)

// WithHTTPClient sets the HTTP client for all REST calls.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.client.http = c
		p.verifier.http = c
	}
}

// WithSessionStore persists the session so the next run starts signed in.
func WithSessionStore(s auth.SessionStore) Option {
	return func(p *Provider) { p.store = s }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// WithRefreshLead sets how long before expiry the ID token is refreshed.
func WithRefreshLead(d time.Duration) Option {
	return func(p *Provider) { p.refreshLead = d }
}

// New creates a provider for the given web API key and project.
func New(apiKey, projectID string, endpoints Endpoints, opts ...Option) (*Provider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, auth.NewError(auth.ErrProviderUnavailable, "firebase API key is required", nil)
	}
	endpoints = endpoints.withDefaults()
	httpClient := &http.Client{Timeout: 15 * time.Second}

	p := &Provider{
		Broadcaster: auth.NewBroadcaster(),
		client:      &client{apiKey: apiKey, endpoints: endpoints, http: httpClient},
		verifier:    NewVerifier(projectID, endpoints.Certs, httpClient),
		logger:      log.DefaultLogger(),
		refreshLead: 5 * time.Minute,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "identity", "provider", ProviderName)
	return p, nil
}

// Name implements auth.Provider.
func (p *Provider) Name() string {
	return ProviderName
}

// Restore resumes a persisted session by refreshing its token. A session
// that can no longer be refreshed is discarded.
func (p *Provider) Restore(ctx context.Context) error {
	if p.store == nil {
		return nil
	}
	saved, err := p.store.Load(ctx)
	if err != nil || saved == nil || saved.RefreshToken == "" {
		return err
	}

	s, err := p.refreshSession(ctx, saved.RefreshToken)
	if err != nil {
		p.logger.WithError(err).Info("discarding persisted session", "user_id", saved.UserID)
		return p.store.Clear(ctx)
	}
	if !s.EmailVerified {
		return p.store.Clear(ctx)
	}
	if err := p.store.Save(ctx, s); err != nil {
		return err
	}
	p.activate(s)
	return nil
}

// SignIn implements auth.Provider.
func (p *Provider) SignIn(ctx context.Context, email, password string) (*auth.Session, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, auth.NewError(auth.ErrEmailRequired, "email is required", nil)
	}

	resp, err := p.client.signInWithPassword(ctx, email, password)
	if err != nil {
		return nil, err
	}

	s, err := p.sessionFromToken(resp.IDToken, resp.RefreshToken, resp.ExpiresIn)
	if err != nil {
		return nil, err
	}
	if !s.EmailVerified {
		return nil, auth.NewError(auth.ErrEmailNotVerified, "email address is not verified", map[string]interface{}{
			"email": s.Email,
		})
	}

	if p.store != nil {
		if err := p.store.Save(ctx, s); err != nil {
			p.logger.WithError(err).Warn("failed to persist session")
		}
	}
	p.activate(s)
	p.logger.Info("signed in", "user_id", s.UserID)
	return s.Clone(), nil
}

// SignUp implements auth.Provider. The new account receives a verification
// email and is not signed in.
func (p *Provider) SignUp(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return auth.NewError(auth.ErrEmailRequired, "email is required", nil)
	}
	if err := auth.ValidatePassword(password); err != nil {
		return err
	}

	resp, err := p.client.signUp(ctx, email, password)
	if err != nil {
		return err
	}
	if err := p.client.sendVerification(ctx, resp.IDToken); err != nil {
		return err
	}
	p.logger.Info("account created, verification email sent", "user_id", resp.LocalID)
	return nil
}

// SendPasswordReset implements auth.Provider.
func (p *Provider) SendPasswordReset(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return auth.NewError(auth.ErrEmailRequired, "email is required", nil)
	}
	return p.client.sendPasswordReset(ctx, email)
}

// SignOut implements auth.IdentityProvider.
func (p *Provider) SignOut(ctx context.Context) error {
	p.stopTimer()
	if p.store != nil {
		if err := p.store.Clear(ctx); err != nil {
			p.logger.WithError(err).Warn("failed to clear persisted session")
		}
	}
	p.Publish(nil)
	return nil
}

// IDToken implements auth.Provider. A token close to expiry is refreshed first.
func (p *Provider) IDToken(ctx context.Context) (string, error) {
	s := p.Current()
	if s == nil {
		return "", auth.NewError(auth.ErrNotSignedIn, "no user is signed in", nil)
	}
	if p.now().Add(p.refreshLead).Before(s.ExpiresAt) {
		return s.Token, nil
	}

	ns, err := p.refreshSession(ctx, s.RefreshToken)
	if err != nil {
		p.expire(s.UserID, err)
		return "", err
	}
	p.replace(ns)
	return ns.Token, nil
}

// Verify implements auth.TokenVerifier.
func (p *Provider) Verify(ctx context.Context, token string) (*auth.Session, error) {
	return p.verifier.Verify(ctx, token)
}

// Close implements auth.Provider.
func (p *Provider) Close() error {
	p.stopTimer()
	p.Broadcaster.Close()
	return nil
}

func (p *Provider) sessionFromToken(idToken, refreshToken, expiresIn string) (*auth.Session, error) {
	claims, err := auth.ParseIDToken(idToken)
	if err != nil {
		return nil, err
	}
	s := claims.Session(ProviderName, idToken)
	s.RefreshToken = refreshToken
	s.ExpiresAt = expiresAt(p.now(), expiresIn)
	if s.CreatedAt.IsZero() {
		s.CreatedAt = p.now()
	}
	if s.UserID == "" {
		return nil, auth.NewError(auth.ErrTokenInvalid, "ID token has no user", nil)
	}
	return s, nil
}

func (p *Provider) refreshSession(ctx context.Context, refreshToken string) (*auth.Session, error) {
	if refreshToken == "" {
		return nil, auth.NewError(auth.ErrRefreshFailed, "no refresh token", nil)
	}
	resp, err := p.client.refresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	return p.sessionFromToken(resp.IDToken, resp.RefreshToken, resp.ExpiresIn)
}

func (p *Provider) activate(s *auth.Session) {
	p.schedule(s)
	p.Publish(s)
}

func (p *Provider) replace(s *auth.Session) {
	if p.store != nil {
		if err := p.store.Save(context.Background(), s); err != nil {
			p.logger.WithError(err).Warn("failed to persist refreshed session")
		}
	}
	p.schedule(s)
	p.Replace(s)
}

// expire ends the session of uid after a failed refresh, unless another
// user has signed in meanwhile.
func (p *Provider) expire(uid string, cause error) {
	cur := p.Current()
	if cur == nil || cur.UserID != uid {
		return
	}
	p.logger.WithError(cause).Warn("token refresh failed, ending session", "user_id", uid)
	p.stopTimer()
	if p.store != nil {
		_ = p.store.Clear(context.Background())
	}
	p.Publish(nil)
}

func (p *Provider) schedule(s *auth.Session) {
	// Refresh at most halfway through the token's lifetime so short-lived
	// tokens do not spin.
	lifetime := s.ExpiresAt.Sub(p.now())
	lead := min(p.refreshLead, lifetime/2)
	wait := max(lifetime-lead, 0)
	uid, refreshToken := s.UserID, s.RefreshToken

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(wait, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		ns, err := p.refreshSession(ctx, refreshToken)
		if err != nil {
			p.expire(uid, err)
			return
		}
		if cur := p.Current(); cur == nil || cur.UserID != uid {
			return
		}
		p.logger.Debug("ID token refreshed", "user_id", uid)
		p.replace(ns)
	})
}

func (p *Provider) stopTimer() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

var _ auth.Provider = (*Provider)(nil)
var _ auth.TokenVerifier = (*Provider)(nil)
