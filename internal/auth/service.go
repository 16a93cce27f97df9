// Package auth is the authentication capability: registration, sign-in,
// token refresh and sign-out, plus a subscription for identity changes.
// Identity is carried explicitly as a CurrentUser value; nothing here keeps
// a process-wide "signed-in user".
package auth

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/iliyamo/egfr-calculator/internal/repository"
	"github.com/iliyamo/egfr-calculator/internal/utils"
)

// CurrentUser identifies the authenticated caller of an operation.
type CurrentUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Config holds token and hashing settings.
type Config struct {
	JWTSecret      string
	AccessTTLMin   int
	RefreshTTLDays int
	BcryptCost     int
}

// Session is the result of a successful sign-in, sign-up or refresh.
type Session struct {
	User             CurrentUser
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// Service implements the authentication capability over the user and
// session repositories.
type Service struct {
	users    *repository.UserRepo
	sessions *repository.SessionRepo
	cfg      Config
	log      zerolog.Logger
	now      func() time.Time
	notifier
}

func NewService(users *repository.UserRepo, sessions *repository.SessionRepo, cfg Config, log zerolog.Logger) *Service {
	return &Service{
		users:    users,
		sessions: sessions,
		cfg:      cfg,
		log:      log.With().Str("component", "auth").Logger(),
		now:      time.Now,
	}
}

// SignUp registers a new account and signs it in.
func (s *Service) SignUp(ctx context.Context, email, password string) (Session, error) {
	email = repository.NormalizeEmail(email)
	if !validEmail(email) {
		return Session{}, newError(CodeInvalidEmail)
	}
	if len(password) < utils.MinPasswordLength {
		return Session{}, newError(CodeWeakPassword)
	}
	u, err := s.users.Create(ctx, email, password, s.cfg.BcryptCost)
	if errors.Is(err, repository.ErrEmailExists) {
		return Session{}, newError(CodeEmailInUse)
	}
	if err != nil {
		return Session{}, err
	}
	s.log.Info().Str("user_id", u.ID).Msg("user registered")
	return s.open(ctx, CurrentUser{ID: u.ID, Email: u.Email})
}

// SignIn verifies the credentials and opens a session.  Unknown emails and
// wrong passwords are indistinguishable to the caller.
func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	email = repository.NormalizeEmail(email)
	if email == "" || password == "" {
		return Session{}, newError(CodeInvalidCredential)
	}
	u, cred, err := s.users.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		utils.VerifyPassword("", password)
		return Session{}, newError(CodeInvalidCredential)
	case err != nil:
		return Session{}, err
	}
	if !utils.VerifyPassword(cred.PasswordHash, password) {
		return Session{}, newError(CodeInvalidCredential)
	}
	if err := s.users.TouchLastLogin(ctx, u.ID, s.now()); err != nil {
		s.log.Warn().Err(err).Str("user_id", u.ID).Msg("update last login")
	}
	return s.open(ctx, CurrentUser{ID: u.ID, Email: u.Email})
}

// Refresh exchanges a valid refresh token for a new session.  The old
// refresh token is consumed, so a token can be exchanged only once.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	hash := utils.HashRefreshRaw(strings.TrimSpace(refreshToken))
	userID, err := s.sessions.Consume(ctx, hash)
	if errors.Is(err, repository.ErrNotFound) {
		return Session{}, newError(CodeInvalidRefresh)
	}
	if err != nil {
		return Session{}, err
	}
	u, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return Session{}, newError(CodeInvalidRefresh)
	}
	if err != nil {
		return Session{}, err
	}
	return s.issue(ctx, CurrentUser{ID: u.ID, Email: u.Email})
}

// SignOut revokes refreshToken, or every session of user when it is empty,
// and notifies listeners with nil.
func (s *Service) SignOut(ctx context.Context, user CurrentUser, refreshToken string) error {
	var err error
	if refreshToken = strings.TrimSpace(refreshToken); refreshToken != "" {
		err = s.sessions.RevokeByHash(ctx, utils.HashRefreshRaw(refreshToken))
	} else {
		err = s.sessions.RevokeAllForUser(ctx, user.ID)
	}
	if err != nil {
		return err
	}
	s.log.Info().Str("user_id", user.ID).Msg("signed out")
	s.notify(nil)
	return nil
}

// Authenticate resolves an access token to the user it was issued for.
func (s *Service) Authenticate(accessToken string) (CurrentUser, error) {
	claims, err := utils.ParseAccessToken(s.cfg.JWTSecret, accessToken)
	if err != nil {
		return CurrentUser{}, newError(CodeInvalidToken)
	}
	return CurrentUser{ID: claims.Subject, Email: claims.Email}, nil
}

// open issues tokens and announces the new identity.
func (s *Service) open(ctx context.Context, u CurrentUser) (Session, error) {
	sess, err := s.issue(ctx, u)
	if err != nil {
		return Session{}, err
	}
	s.notify(&u)
	return sess, nil
}

func (s *Service) issue(ctx context.Context, u CurrentUser) (Session, error) {
	access, err := utils.NewAccessToken(s.cfg.JWTSecret, u.ID, u.Email, s.cfg.AccessTTLMin)
	if err != nil {
		return Session{}, err
	}
	refresh, err := utils.NewRefreshToken(s.cfg.RefreshTTLDays)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.StoreRefresh(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return Session{}, err
	}
	return Session{
		User:             u,
		AccessToken:      access.Token,
		AccessExpiresAt:  access.Exp,
		RefreshToken:     refresh.Raw,
		RefreshExpiresAt: refresh.Exp,
	}, nil
}

func validEmail(s string) bool {
	if s == "" || strings.ContainsAny(s, " <>") {
		return false
	}
	a, err := mail.ParseAddress(s)
	return err == nil && a.Address == s && strings.Contains(s[strings.LastIndex(s, "@")+1:], ".")
}
