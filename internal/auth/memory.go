package auth

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// MailKind identifies an out-of-band email sent by the memory provider.
type MailKind string

const (
	MailVerifyEmail   MailKind = "VERIFY_EMAIL"
	MailPasswordReset MailKind = "PASSWORD_RESET"
)

// Mail is an email the memory provider would have sent. Code is the
// out-of-band code the link would carry.
type Mail struct {
	Kind  MailKind
	Email string
	Code  string
	At    time.Time
}

type account struct {
	uid          string
	email        string
	passwordHash []byte
	verified     bool
}

// SeedAccount is one entry of a memory provider seed file.
type SeedAccount struct {
	UID           string `yaml:"uid"`
	Email         string `yaml:"email"`
	Password      string `yaml:"password,omitempty"`
	PasswordHash  string `yaml:"password_hash,omitempty"`
	EmailVerified bool   `yaml:"email_verified"`
}

type seedFile struct {
	Accounts []SeedAccount `yaml:"accounts"`
}

// MemoryProvider is an offline identity provider with bcrypt-hashed
// accounts and HS256 ID tokens. Emails are recorded in an outbox instead of
// being sent.
type MemoryProvider struct {
	*Broadcaster

	sessions *SessionManager
	store    SessionStore

	mu       sync.Mutex
	accounts map[string]*account // keyed by lower-case email
	codes    map[string]Mail
	outbox   []Mail
	expiry   *time.Timer
}

// NewMemoryProvider creates a provider that signs tokens with sessions.
// store may be nil.
func NewMemoryProvider(sessions *SessionManager, store SessionStore) *MemoryProvider {
	return &MemoryProvider{
		Broadcaster: NewBroadcaster(),
		sessions:    sessions,
		store:       store,
		accounts:    make(map[string]*account),
		codes:       make(map[string]Mail),
	}
}

// Name implements Provider.
func (p *MemoryProvider) Name() string {
	return "memory"
}

// AddAccount registers an account directly, bypassing the password policy.
// An empty uid gets a generated one. It returns the account's uid.
func (p *MemoryProvider) AddAccount(uid, email, password string, verified bool) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", WrapError(ErrInvalidCredentials, "failed to hash password", err, nil)
	}
	return p.addHashed(uid, email, hash, verified)
}

func (p *MemoryProvider) addHashed(uid, email string, hash []byte, verified bool) (string, error) {
	key := normalizeEmail(email)
	if key == "" {
		return "", NewError(ErrEmailRequired, "email is required", nil)
	}
	if uid == "" {
		uid = uuid.NewString()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.accounts[key]; exists {
		return "", NewError(ErrEmailExists, "account already exists", map[string]interface{}{"email": key})
	}
	p.accounts[key] = &account{uid: uid, email: key, passwordHash: hash, verified: verified}
	return uid, nil
}

// LoadAccounts reads accounts from a YAML seed file of the form
//
//	accounts:
//	  - uid: admin-1
//	    email: admin@example.com
//	    password_hash: $2a$10$...
//	    email_verified: true
func (p *MemoryProvider) LoadAccounts(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, WrapError(ErrProviderUnavailable, "failed to read account seed file", err, map[string]interface{}{"path": path})
	}
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return 0, WrapError(ErrProviderUnavailable, "failed to parse account seed file", err, map[string]interface{}{"path": path})
	}

	for _, a := range seed.Accounts {
		if a.PasswordHash != "" {
			_, err = p.addHashed(a.UID, a.Email, []byte(a.PasswordHash), a.EmailVerified)
		} else {
			_, err = p.AddAccount(a.UID, a.Email, a.Password, a.EmailVerified)
		}
		if err != nil {
			return 0, err
		}
	}
	return len(seed.Accounts), nil
}

// Restore publishes the persisted session if its token is still valid.
func (p *MemoryProvider) Restore(ctx context.Context) error {
	if p.store == nil {
		return nil
	}
	s, err := p.store.Load(ctx)
	if err != nil || s == nil {
		return err
	}
	claims, err := p.sessions.ValidateSessionToken(s.Token)
	if err != nil {
		return p.store.Clear(ctx)
	}
	p.activate(claims.Session(p.Name(), s.Token))
	return nil
}

// SignIn implements Provider.
func (p *MemoryProvider) SignIn(ctx context.Context, email, password string) (*Session, error) {
	p.mu.Lock()
	acct, ok := p.accounts[normalizeEmail(email)]
	p.mu.Unlock()

	if !ok || bcrypt.CompareHashAndPassword(acct.passwordHash, []byte(password)) != nil {
		return nil, NewError(ErrInvalidCredentials, "invalid email or password", nil)
	}
	if !acct.verified {
		return nil, NewError(ErrEmailNotVerified, "email address is not verified", map[string]interface{}{"email": acct.email})
	}

	s := &Session{
		UserID:        acct.uid,
		Email:         acct.email,
		EmailVerified: true,
		Provider:      p.Name(),
	}
	if _, err := p.sessions.CreateSession(s); err != nil {
		return nil, err
	}

	if p.store != nil {
		if err := p.store.Save(ctx, s); err != nil {
			return nil, err
		}
	}
	p.activate(s)
	return s.Clone(), nil
}

func (p *MemoryProvider) activate(s *Session) {
	p.mu.Lock()
	if p.expiry != nil {
		p.expiry.Stop()
	}
	uid := s.UserID
	p.expiry = time.AfterFunc(time.Until(s.ExpiresAt), func() {
		if cur := p.Current(); cur != nil && cur.UserID == uid {
			p.Publish(nil)
		}
	})
	p.mu.Unlock()

	p.Publish(s)
}

// SignUp implements Provider.
func (p *MemoryProvider) SignUp(ctx context.Context, email, password string) error {
	if normalizeEmail(email) == "" {
		return NewError(ErrEmailRequired, "email is required", nil)
	}
	if err := ValidatePassword(password); err != nil {
		return err
	}
	if _, err := p.AddAccount("", email, password, false); err != nil {
		return err
	}
	p.send(MailVerifyEmail, email)
	return nil
}

// SendPasswordReset implements Provider.
func (p *MemoryProvider) SendPasswordReset(ctx context.Context, email string) error {
	key := normalizeEmail(email)
	if key == "" {
		return NewError(ErrEmailRequired, "email is required", nil)
	}
	p.mu.Lock()
	_, ok := p.accounts[key]
	p.mu.Unlock()
	if !ok {
		return NewError(ErrUserNotFound, "no account for email", map[string]interface{}{"email": key})
	}
	p.send(MailPasswordReset, key)
	return nil
}

func (p *MemoryProvider) send(kind MailKind, email string) {
	m := Mail{Kind: kind, Email: normalizeEmail(email), Code: uuid.NewString(), At: time.Now()}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.codes[m.Code] = m
	p.outbox = append(p.outbox, m)
}

// Outbox returns the emails sent so far.
func (p *MemoryProvider) Outbox() []Mail {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Mail(nil), p.outbox...)
}

// ApplyCode redeems an out-of-band code. Verification codes mark the email
// verified; reset codes set newPassword, which must satisfy the policy.
func (p *MemoryProvider) ApplyCode(code, newPassword string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	m, ok := p.codes[code]
	if !ok {
		return NewError(ErrCodeInvalid, "unknown or used code", nil)
	}
	acct, ok := p.accounts[m.Email]
	if !ok {
		return NewError(ErrUserNotFound, "no account for email", nil)
	}

	switch m.Kind {
	case MailVerifyEmail:
		acct.verified = true
	case MailPasswordReset:
		if err := ValidatePassword(newPassword); err != nil {
			return err
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
		if err != nil {
			return WrapError(ErrInvalidCredentials, "failed to hash password", err, nil)
		}
		acct.passwordHash = hash
	}
	delete(p.codes, code)
	return nil
}

// SignOut implements IdentityProvider.
func (p *MemoryProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	if p.expiry != nil {
		p.expiry.Stop()
		p.expiry = nil
	}
	p.mu.Unlock()

	if p.store != nil {
		if err := p.store.Clear(ctx); err != nil {
			return err
		}
	}
	p.Publish(nil)
	return nil
}

// IDToken implements Provider.
func (p *MemoryProvider) IDToken(ctx context.Context) (string, error) {
	s := p.Current()
	if s == nil {
		return "", NewError(ErrNotSignedIn, "no user is signed in", nil)
	}
	if s.IsExpired() {
		return "", NewError(ErrSessionExpired, "session has expired", map[string]interface{}{"user_id": s.UserID})
	}
	return s.Token, nil
}

// Verify implements TokenVerifier.
func (p *MemoryProvider) Verify(ctx context.Context, token string) (*Session, error) {
	return p.sessions.Verify(ctx, token)
}

// Close implements Provider.
func (p *MemoryProvider) Close() error {
	p.mu.Lock()
	if p.expiry != nil {
		p.expiry.Stop()
	}
	p.mu.Unlock()
	p.Broadcaster.Close()
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
