// Package authservice authenticates users and manages opaque bearer
// session tokens.
package authservice

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/emberchat/ember/internal/id"
	"github.com/emberchat/ember/internal/store"
	"golang.org/x/crypto/bcrypt"
)

// Service authenticates users and manages their sessions.
type Service struct {
	store              *store.Store
	sessionExpiry       time.Duration
	enableRegistration  bool
	dummyHash           []byte
}

// New constructs a Service backed by st. sessionExpiry controls how
// long new sessions live; enableRegistration gates CreateUser.
func New(st *store.Store, sessionExpiry time.Duration, enableRegistration bool) *Service {
	// Pre-computed so Authenticate can run bcrypt against it when the
	// looked-up user doesn't exist, keeping the unknown-user and
	// wrong-password code paths the same shape in wall-clock time.
	dummy, _ := bcrypt.GenerateFromPassword([]byte("ember-dummy-password"), bcrypt.DefaultCost)
	return &Service{
		store:              st,
		sessionExpiry:      sessionExpiry,
		enableRegistration: enableRegistration,
		dummyHash:          dummy,
	}
}

var emailRegexp = regexp.MustCompile(`^[^@\s]+@([A-Za-z0-9-]+\.)+[A-Za-z]{2,}$`)

// Authenticate verifies an email/password pair and, on success,
// creates a new session for the user.
func (s *Service) Authenticate(ctx context.Context, email, password string) (store.Session, store.User, error) {
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if store.IsNotFound(err) {
			// Run the comparison anyway so lookup failure and password
			// mismatch take the same amount of time from the caller's
			// perspective.
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			return store.Session{}, store.User{}, newErr(KindInvalidCredentials, "invalid credentials", nil)
		}
		return store.Session{}, store.User{}, newErr(KindInternal, "look up user", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return store.Session{}, store.User{}, newErr(KindInvalidCredentials, "invalid credentials", nil)
	}

	sess, err := s.CreateSession(ctx, user.ID)
	if err != nil {
		return store.Session{}, store.User{}, err
	}
	return sess, user, nil
}

// CreateSession issues a new opaque bearer token for userID.
func (s *Service) CreateSession(ctx context.Context, userID id.UserID) (store.Session, error) {
	token, err := generateToken()
	if err != nil {
		return store.Session{}, newErr(KindInternal, "generate session token", err)
	}

	now := time.Now()
	sess := store.Session{
		Token:     token,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.sessionExpiry),
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return store.Session{}, newErr(KindInternal, "persist session", err)
	}
	return sess, nil
}

// ValidateSession resolves a bearer token to its user, failing with
// KindSessionExpired if the token is unknown or past its expiry.
func (s *Service) ValidateSession(ctx context.Context, token string) (store.User, error) {
	sess, err := s.store.GetSession(ctx, token)
	if err != nil {
		if store.IsNotFound(err) {
			return store.User{}, newErr(KindSessionExpired, "session expired or unknown", nil)
		}
		return store.User{}, newErr(KindInternal, "look up session", err)
	}

	user, err := s.store.GetUserByID(ctx, sess.UserID)
	if err != nil {
		return store.User{}, newErr(KindInternal, "look up session user", err)
	}
	return user, nil
}

// RevokeSession deletes a session token. Revoking an unknown token is
// not an error.
func (s *Service) RevokeSession(ctx context.Context, token string) error {
	if err := s.store.DeleteSession(ctx, token); err != nil {
		return newErr(KindInternal, "revoke session", err)
	}
	return nil
}

// CreateUser validates and registers a new account.
func (s *Service) CreateUser(ctx context.Context, name, email, password string) (store.User, error) {
	if !s.enableRegistration {
		return store.User{}, newErr(KindRegistrationDisabled, "registration is disabled", nil)
	}
	if err := validateName(name); err != nil {
		return store.User{}, newErr(KindValidation, err.Error(), nil)
	}
	if err := validateEmail(email); err != nil {
		return store.User{}, newErr(KindValidation, err.Error(), nil)
	}
	if err := validatePassword(password); err != nil {
		return store.User{}, newErr(KindValidation, err.Error(), nil)
	}

	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return store.User{}, newErr(KindEmailTaken, "email already registered", nil)
	} else if !store.IsNotFound(err) {
		return store.User{}, newErr(KindInternal, "check email uniqueness", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return store.User{}, newErr(KindInternal, "hash password", err)
	}

	u := store.User{
		ID:           id.NewUserID(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		if store.IsConstraintViolation(err) {
			return store.User{}, newErr(KindEmailTaken, "email already registered", err)
		}
		return store.User{}, newErr(KindInternal, "persist user", err)
	}
	return u, nil
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func validateEmail(email string) error {
	if !emailRegexp.MatchString(email) {
		return fmt.Errorf("invalid email address")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 8 || len(password) > 128 {
		return fmt.Errorf("password must be between 8 and 128 characters")
	}
	return nil
}

func validateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if len(trimmed) < 1 || len(trimmed) > 50 {
		return fmt.Errorf("name must be between 1 and 50 characters")
	}
	return nil
}
