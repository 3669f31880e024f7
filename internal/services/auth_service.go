package services

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"fintraka/internal/auth"
	"fintraka/internal/cache"
	"fintraka/internal/core"
	"fintraka/internal/storage"
)

const (
	MinPasswordLength = 6
	// MaxPasswordBytes is bcrypt's input limit.
	MaxPasswordBytes = 72
)

var usernamePattern = regexp.MustCompile(`^[\w.@+-]+$`)

// errBadCredentials is deliberately identical for unknown users and wrong
// passwords.
var errBadCredentials = core.Unauthorized("invalid credentials")

// AuthService registers users and exchanges credentials for tokens.
type AuthService struct {
	users     storage.UserStore
	passwords auth.Passwords
	tokens    *auth.Tokens
	dummyHash []byte

	// users by id, for Authenticate; nil disables caching
	userCache cache.Cache[core.User]
}

type AuthOption func(*AuthService)

// WithUserCache caches the user lookup behind Authenticate. Users are never
// modified after registration, so entries only need a TTL.
func WithUserCache(c cache.Cache[core.User]) AuthOption {
	return func(s *AuthService) { s.userCache = c }
}

func NewAuthService(users storage.UserStore, passwords auth.Passwords, tokens *auth.Tokens, opts ...AuthOption) *AuthService {
	// Compared against on unknown usernames so both failure paths cost a hash.
	dummy, _ := passwords.Hash("fintraka-dummy-password")
	s := &AuthService{users: users, passwords: passwords, tokens: tokens, dummyHash: dummy}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
}

func (in RegisterInput) Validate() error {
	switch {
	case in.Username == "":
		return core.Invalidf("username: this field is required")
	case utf8.RuneCountInString(in.Username) > core.MaxUsernameLength:
		return core.Invalidf("username: at most %d characters", core.MaxUsernameLength)
	case !usernamePattern.MatchString(in.Username):
		return core.Invalidf("username: letters, digits and @/./+/-/_ only")
	}
	if in.Email != "" {
		addr, err := mail.ParseAddress(in.Email)
		if err != nil || addr.Address != in.Email {
			return core.Invalidf("email: enter a valid email address")
		}
	}
	if utf8.RuneCountInString(in.Password) < MinPasswordLength {
		return core.Invalidf("password: at least %d characters", MinPasswordLength)
	}
	if len(in.Password) > MaxPasswordBytes {
		return core.Invalidf("password: at most %d bytes", MaxPasswordBytes)
	}
	return nil
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (core.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if err := in.Validate(); err != nil {
		return core.User{}, err
	}
	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return core.User{}, core.OperationFailed("register", err)
	}
	u, err := s.users.CreateUser(ctx, core.User{Username: in.Username, Email: in.Email, PasswordHash: hash})
	if err != nil {
		if errors.Is(err, core.ErrDuplicate) {
			return core.User{}, core.Invalidf("username: a user with that username already exists")
		}
		return core.User{}, core.OperationFailed("register", err)
	}
	slog.InfoContext(ctx, "User registered", "user_id", u.ID, "username", u.Username)
	return u, nil
}

// Login returns a session token for valid credentials.
func (s *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return "", core.Invalidf("username and password are required")
	}
	u, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, core.ErrNotFound) {
			return "", core.OperationFailed("login", err)
		}
		_, _ = s.passwords.Matches(s.dummyHash, password)
		slog.WarnContext(ctx, "Login failed", "username", username, "reason", "unknown user")
		return "", errBadCredentials
	}
	ok, err := s.passwords.Matches(u.PasswordHash, password)
	if err != nil {
		return "", core.OperationFailed("login", err)
	}
	if !ok {
		slog.WarnContext(ctx, "Login failed", "username", username, "reason", "wrong password")
		return "", errBadCredentials
	}
	token, err := s.tokens.Issue(u.ID)
	if err != nil {
		return "", core.OperationFailed("login", err)
	}
	return token, nil
}

// Authenticate resolves a token to a still-existing user.
func (s *AuthService) Authenticate(ctx context.Context, token string) (core.User, error) {
	id, err := s.tokens.Verify(token)
	if err != nil {
		return core.User{}, core.Unauthorized("invalid token")
	}
	key := strconv.FormatInt(id, 10)
	if s.userCache != nil {
		if u, ok := s.userCache.Get(key); ok {
			return u, nil
		}
	}
	u, err := s.users.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.User{}, core.Unauthorized("invalid token")
		}
		return core.User{}, core.OperationFailed("authenticate", err)
	}
	if s.userCache != nil {
		s.userCache.Set(key, u)
	}
	return u, nil
}
