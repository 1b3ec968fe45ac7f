// Package auth signs users up and in, issues bearer tokens and resolves
// them back to sessions.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"revenue/internal/core"
	applog "revenue/internal/log"
	"revenue/internal/storage"
)

const (
	MinPasswordLen = 6
	maxPasswordLen = 72 // bcrypt input limit
	maxNameLen     = 100
)

var (
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", MinPasswordLen)
	ErrPasswordTooLong    = fmt.Errorf("password must be at most %d bytes", maxPasswordLen)
	ErrNameTooLong        = fmt.Errorf("name must be at most %d characters", maxNameLen)
)

// Store is the persistence the service needs.
type Store interface {
	storage.UserStore
	storage.TokenStore
}

type Config struct {
	Secret []byte
	Issuer string
	TTL    time.Duration
	// BcryptCost defaults to bcrypt.DefaultCost when zero.
	BcryptCost int
}

type claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

type Service struct {
	store    Store
	cfg      Config
	validate *validator.Validate
	logger   *applog.Logger
	now      func() time.Time
}

func NewService(store Store, cfg Config, logger *applog.Logger) *Service {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &Service{
		store:    store,
		cfg:      cfg,
		validate: validator.New(),
		logger:   logger.WithComponent(applog.ComponentAuth),
		now:      time.Now,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) checkEmail(email string) error {
	if err := s.validate.Var(email, "required,email,max=254"); err != nil {
		return &core.ValidationError{Field: "email", Err: ErrInvalidEmail}
	}
	return nil
}

func checkPassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLen {
		return &core.ValidationError{Field: "password", Err: ErrWeakPassword}
	}
	if len(password) > maxPasswordLen {
		return &core.ValidationError{Field: "password", Err: ErrPasswordTooLong}
	}
	return nil
}

func checkName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) > maxNameLen {
		return "", &core.ValidationError{Field: "name", Err: ErrNameTooLong}
	}
	return name, nil
}

// SignUp registers a new user and signs them in.
func (s *Service) SignUp(ctx context.Context, email, password, name string) (Session, Token, error) {
	email = normalizeEmail(email)
	if err := s.checkEmail(email); err != nil {
		return Session{}, Token{}, err
	}
	if err := checkPassword(password); err != nil {
		return Session{}, Token{}, err
	}
	name, err := checkName(name)
	if err != nil {
		return Session{}, Token{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return Session{}, Token{}, fmt.Errorf("hash password: %w", err)
	}

	user := core.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return Session{}, Token{}, ErrEmailTaken
		}
		return Session{}, Token{}, fmt.Errorf("create user: %w", err)
	}

	s.logger.InfoContext(ctx, "User signed up", applog.FieldOperation, applog.OpSignUp, applog.FieldUserID, user.ID)
	return s.issue(user)
}

// SignIn checks the credentials. Unknown email and wrong password fail the same way.
func (s *Service) SignIn(ctx context.Context, email, password string) (Session, Token, error) {
	user, err := s.store.UserByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, storage.ErrNotFound) {
		return Session{}, Token{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, Token{}, fmt.Errorf("find user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.logger.WarnContext(ctx, "Sign in rejected", applog.FieldUserID, user.ID)
		return Session{}, Token{}, ErrInvalidCredentials
	}

	s.logger.InfoContext(ctx, "User signed in", applog.FieldOperation, applog.OpSignIn, applog.FieldUserID, user.ID)
	return s.issue(user)
}

// SignOut revokes the token until it would have expired anyway.
func (s *Service) SignOut(ctx context.Context, token string) error {
	session, err := s.Authenticate(ctx, token)
	if err != nil {
		return err
	}
	if err := s.store.RevokeToken(ctx, session.TokenID, session.ExpiresAt); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	s.logger.InfoContext(ctx, "User signed out", applog.FieldOperation, applog.OpSignOut, applog.FieldUserID, session.UserID)
	return nil
}

// Authenticate verifies signature, issuer, expiry and revocation of token.
func (s *Service) Authenticate(ctx context.Context, token string) (Session, error) {
	if token == "" {
		return Session{}, ErrNotAuthenticated
	}

	c := &claims{}
	parsed, err := jwt.ParseWithClaims(token, c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.cfg.Secret, nil
	},
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		s.logger.DebugContext(ctx, "Token rejected", applog.FieldError, err)
		return Session{}, ErrNotAuthenticated
	}
	if c.Subject == "" || c.ID == "" {
		return Session{}, ErrNotAuthenticated
	}

	revoked, err := s.store.IsRevoked(ctx, c.ID)
	if err != nil {
		return Session{}, fmt.Errorf("check token revocation: %w", err)
	}
	if revoked {
		return Session{}, ErrNotAuthenticated
	}

	return Session{
		UserID:    c.Subject,
		Email:     c.Email,
		TokenID:   c.ID,
		ExpiresAt: c.ExpiresAt.Time,
	}, nil
}

func (s *Service) Profile(ctx context.Context, session Session) (core.Profile, error) {
	if session.IsZero() {
		return core.Profile{}, ErrNotAuthenticated
	}
	user, err := s.store.UserByID(ctx, session.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		// the account vanished under a still valid token
		return core.Profile{}, ErrNotAuthenticated
	}
	if err != nil {
		return core.Profile{}, fmt.Errorf("load profile: %w", err)
	}
	return user.Profile(), nil
}

func (s *Service) UpdateProfile(ctx context.Context, session Session, name string) (core.Profile, error) {
	if session.IsZero() {
		return core.Profile{}, ErrNotAuthenticated
	}
	name, err := checkName(name)
	if err != nil {
		return core.Profile{}, err
	}
	if err := s.store.UpdateUserName(ctx, session.UserID, name); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return core.Profile{}, ErrNotAuthenticated
		}
		return core.Profile{}, fmt.Errorf("update profile: %w", err)
	}
	return s.Profile(ctx, session)
}

func (s *Service) issue(user core.User) (Session, Token, error) {
	now := s.now()
	expiresAt := now.Add(s.cfg.TTL).Truncate(time.Second)

	c := claims{
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID,
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.cfg.Secret)
	if err != nil {
		return Session{}, Token{}, fmt.Errorf("sign token: %w", err)
	}

	session := Session{UserID: user.ID, Email: user.Email, TokenID: c.ID, ExpiresAt: expiresAt}
	return session, Token{Value: signed, ExpiresAt: expiresAt}, nil
}
