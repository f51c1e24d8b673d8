//go:generate go run go.uber.org/mock/mockgen -source=auth_service.go -destination=../mocks/mock_auth_service.go -package=mocks
package services

import (
	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/repositories"
	goerrors "errors"
	"fmt"
	"log/slog"
)

type IAuthService interface {
	Register(username, password string) (Session, error)
	Login(username, password string) (Session, error)
}

// Session is an authenticated principal and the token proving it.
type Session struct {
	Principal domain.Principal
	Token     string
}

type AuthService struct {
	log            *slog.Logger
	userRepository repositories.IUserRepository
	tokens         *auth.TokenIssuer
}

func NewAuthService(log *slog.Logger, repo repositories.IUserRepository, tokens *auth.TokenIssuer) *AuthService {
	return &AuthService{log: log, userRepository: repo, tokens: tokens}
}

func (s *AuthService) Register(username, password string) (Session, error) {
	// Rules are checked before any expensive hashing
	if err := auth.ValidateRegister(auth.RegisterRequest{Username: username, Password: password}); err != nil {
		return Session{}, err
	}

	// The repository never sees plain passwords
	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return Session{}, fmt.Errorf("hashing failed: %w", err)
	}

	user, err := s.userRepository.CreateUser(username, hashedPassword)
	if err != nil {
		return Session{}, err
	}
	s.log.Info("User registered", "user", user.ID, "username", user.Username)

	return s.issue(domain.Principal{UserID: user.ID, DisplayName: user.Username})
}

func (s *AuthService) Login(username, password string) (Session, error) {
	if err := auth.ValidateLogin(auth.LoginRequest{Username: username, Password: password}); err != nil {
		return Session{}, errors.ErrInvalidCredentials
	}

	user, err := s.userRepository.GetUserByUsername(username)
	if err != nil {
		if !goerrors.Is(err, errors.ErrInvalidCredentials) {
			return Session{}, err
		}
		// Same answer for unknown users and wrong passwords
		return Session{}, errors.ErrInvalidCredentials
	}

	match, err := auth.ComparePassword(password, user.PasswordHash)
	if err != nil {
		s.log.Error("Stored password hash unreadable", "user", user.ID, "error", err)
		return Session{}, errors.ErrInvalidCredentials
	}
	if !match {
		return Session{}, errors.ErrInvalidCredentials
	}

	return s.issue(domain.Principal{UserID: user.ID, DisplayName: user.Username})
}

func (s *AuthService) issue(principal domain.Principal) (Session, error) {
	token, err := s.tokens.GenerateToken(principal)
	if err != nil {
		return Session{}, err
	}
	return Session{Principal: principal, Token: token}, nil
}
