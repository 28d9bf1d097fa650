package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"todoapp/internal/eventbus"
	"todoapp/internal/mailer"
	"todoapp/internal/storage"
	logx "todoapp/pkg/logx"
)

const (
	minPasswordLen    = 6
	defaultTokenTTL   = 7 * 24 * time.Hour
	defaultCodeTTL    = 10 * time.Minute
	defaultBcryptCost = 10
)

type Config struct {
	Secret          []byte
	TokenTTL        time.Duration
	CodeTTL         time.Duration
	BcryptCost      int
	RequireVerified bool
	LoginRatePerMin int
	LoginBurst      int
	TestUser        TestUser
}

// TestUser is the verified account seeded by CreateTestUser.
type TestUser struct {
	Name     string
	Email    string
	Password string
}

// Store is the subset of storage the auth service needs.
type Store interface {
	storage.UserRepo
	storage.CodeRepo
}

// Mailer queues outbound mail.
type Mailer interface {
	Send(ctx context.Context, m mailer.Message) error
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
	// ConfirmPassword is checked only when present.
	ConfirmPassword *string
}

// PublicUser is the client-visible part of a user.
type PublicUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func Public(u storage.User) PublicUser {
	return PublicUser{ID: u.ID, Name: u.Name, Email: u.Email}
}

// Session is returned by Verify and Login.
type Session struct {
	Token string
	User  PublicUser
}

type Service struct {
	mu       sync.RWMutex
	cfg      Config
	throttle *throttle

	store Store
	mail  Mailer
	bus   eventbus.Bus
	log   logx.Logger

	now   func() time.Time
	newID func() string
}

type Option func(*Service)

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func New(cfg Config, store Store, mail Mailer, bus eventbus.Bus, log logx.Logger, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		store: store,
		mail:  mail,
		bus:   bus,
		log:   log,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	s.Apply(cfg)
	return s
}

// Apply swaps config. An empty secret keeps the current one, or generates a
// random one on first use (tokens then do not survive a restart).
func (s *Service) Apply(cfg Config) {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultTokenTTL
	}
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = defaultCodeTTL
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = defaultBcryptCost
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(cfg.Secret) == 0 {
		if len(s.cfg.Secret) > 0 {
			cfg.Secret = s.cfg.Secret
		} else {
			cfg.Secret = randomSecret()
			s.log.Warn("no JWT secret configured; using a random one (tokens reset on restart)")
		}
	}
	if s.throttle == nil || cfg.LoginRatePerMin != s.cfg.LoginRatePerMin || cfg.LoginBurst != s.cfg.LoginBurst {
		s.throttle = newThrottle(cfg.LoginRatePerMin, cfg.LoginBurst)
	}
	s.cfg = cfg
}

func (s *Service) config() (Config, *throttle) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg, s.throttle
}

func normalizeEmail(e string) string { return strings.ToLower(strings.TrimSpace(e)) }

// Register creates an unverified user and mails a verification code.
// Mail failures are logged and never fail registration.
func (s *Service) Register(ctx context.Context, in RegisterInput) (string, error) {
	cfg, _ := s.config()
	name := strings.TrimSpace(in.Name)
	email := normalizeEmail(in.Email)
	if name == "" || email == "" || in.Password == "" {
		return "", ErrMissingFields
	}
	if utf8.RuneCountInString(in.Password) < minPasswordLen {
		return "", ErrPasswordTooShort
	}
	if in.ConfirmPassword != nil && *in.ConfirmPassword != in.Password {
		return "", ErrPasswordMismatch
	}
	if _, err := s.store.UserByEmail(ctx, email); err == nil {
		return "", ErrEmailTaken
	} else if !errors.Is(err, storage.ErrNotFound) {
		return "", fmt.Errorf("lookup user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), cfg.BcryptCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", ErrPasswordTooLong
		}
		return "", fmt.Errorf("hash password: %w", err)
	}

	u := storage.User{
		ID:           s.newID(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return "", ErrEmailTaken
		}
		return "", fmt.Errorf("create user: %w", err)
	}
	s.log.Info("user registered", logx.String("user_id", u.ID))
	eventbus.Publish(s.bus, eventbus.UserRegistered, Public(u))

	code, err := newCode()
	if err != nil {
		return "", err
	}
	if err := s.store.PutCode(ctx, storage.VerificationCode{UserID: u.ID, Code: code, Expires: s.now().Add(cfg.CodeTTL)}); err != nil {
		return "", fmt.Errorf("store verification code: %w", err)
	}
	if s.mail != nil {
		if err := s.mail.Send(ctx, mailer.VerificationMessage(email, code, cfg.CodeTTL)); err != nil {
			s.log.Warn("verification mail not queued", logx.String("user_id", u.ID), logx.Err(err))
		}
	}
	return u.ID, nil
}

// Verify checks the e-mail code and marks the user verified.
func (s *Service) Verify(ctx context.Context, email, code string) (Session, error) {
	cfg, _ := s.config()
	u, err := s.store.UserByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, storage.ErrNotFound) {
		return Session{}, ErrUserNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("lookup user: %w", err)
	}
	if u.Verified {
		return Session{}, ErrAlreadyVerified
	}

	rec, err := s.store.GetCode(ctx, u.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return Session{}, ErrInvalidCode
	}
	if err != nil {
		return Session{}, fmt.Errorf("lookup code: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(code)), []byte(rec.Code)) != 1 {
		return Session{}, ErrInvalidCode
	}
	if s.now().After(rec.Expires) {
		return Session{}, ErrCodeExpired
	}

	u.Verified = true
	if err := s.store.UpdateUser(ctx, u); err != nil {
		return Session{}, fmt.Errorf("update user: %w", err)
	}
	if err := s.store.DeleteCode(ctx, u.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.log.Warn("verification code not deleted", logx.String("user_id", u.ID), logx.Err(err))
	}
	s.log.Info("user verified", logx.String("user_id", u.ID))
	eventbus.Publish(s.bus, eventbus.UserVerified, Public(u))
	return s.session(cfg, u)
}

// Login checks credentials and issues a token.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	cfg, th := s.config()
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return Session{}, ErrMissingCredentials
	}
	if !th.allow(email, s.now()) {
		s.log.Warn("login throttled", logx.String("email", email))
		return Session{}, ErrTooManyAttempts
	}

	u, err := s.store.UserByEmail(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, fmt.Errorf("lookup user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}
	if cfg.RequireVerified && !u.Verified {
		return Session{}, ErrNotVerified
	}
	s.log.Info("user logged in", logx.String("user_id", u.ID))
	eventbus.Publish(s.bus, eventbus.UserLoggedIn, Public(u))
	return s.session(cfg, u)
}

// Authenticate resolves a bearer token to its user.
func (s *Service) Authenticate(ctx context.Context, token string) (storage.User, error) {
	cfg, _ := s.config()
	token = strings.TrimSpace(token)
	if token == "" {
		return storage.User{}, ErrTokenRequired
	}
	userID, err := parseToken(cfg.Secret, token, s.now())
	if err != nil {
		s.log.Debug("token rejected", logx.Err(err))
		return storage.User{}, ErrInvalidToken
	}
	u, err := s.store.UserByID(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.User{}, ErrTokenSubject
	}
	if err != nil {
		return storage.User{}, fmt.Errorf("lookup user: %w", err)
	}
	return u, nil
}

func (s *Service) Profile(ctx context.Context, userID string) (PublicUser, error) {
	u, err := s.store.UserByID(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return PublicUser{}, ErrTokenSubject
	}
	if err != nil {
		return PublicUser{}, fmt.Errorf("lookup user: %w", err)
	}
	return Public(u), nil
}

// CreateTestUser replaces the configured test account with a fresh verified one.
func (s *Service) CreateTestUser(ctx context.Context) (TestUser, error) {
	cfg, _ := s.config()
	tu := cfg.TestUser
	tu.Email = normalizeEmail(tu.Email)
	if tu.Email == "" || tu.Password == "" {
		return TestUser{}, errors.New("test user is not configured")
	}
	if strings.TrimSpace(tu.Name) == "" {
		tu.Name = "Test User"
	}

	if old, err := s.store.UserByEmail(ctx, tu.Email); err == nil {
		if err := s.store.DeleteUser(ctx, old.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return TestUser{}, fmt.Errorf("delete test user: %w", err)
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		return TestUser{}, fmt.Errorf("lookup test user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(tu.Password), cfg.BcryptCost)
	if err != nil {
		return TestUser{}, fmt.Errorf("hash password: %w", err)
	}
	u := storage.User{
		ID:           s.newID(),
		Name:         tu.Name,
		Email:        tu.Email,
		PasswordHash: string(hash),
		Verified:     true,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return TestUser{}, fmt.Errorf("create test user: %w", err)
	}
	s.log.Info("test user created", logx.String("user_id", u.ID))
	return tu, nil
}

func (s *Service) session(cfg Config, u storage.User) (Session, error) {
	tok, err := signToken(cfg.Secret, u.ID, s.now(), cfg.TokenTTL)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: tok, User: Public(u)}, nil
}

// newCode returns a uniformly random 6-digit code in [100000, 999999].
func newCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

func randomSecret() []byte {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand: %v", err))
	}
	return b
}
