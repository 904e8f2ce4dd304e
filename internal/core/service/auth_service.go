package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/rl1809/timeless/internal/core/domain"
	"github.com/rl1809/timeless/internal/port"
)

var ErrInvalidLogin = errors.New("invalid login")

const maxUsernameLen = 64

type AuthService struct {
	users  port.UserRepository
	hasher port.PasswordHasher
	tokens port.TokenMaker
	log    zerolog.Logger
}

func NewAuthService(users port.UserRepository, hasher port.PasswordHasher, tokens port.TokenMaker, log zerolog.Logger) *AuthService {
	return &AuthService{
		users:  users,
		hasher: hasher,
		tokens: tokens,
		log:    log.With().Str("component", "auth").Logger(),
	}
}

// SignUp creates the user together with its cart.
func (s *AuthService) SignUp(ctx context.Context, username, password string) (domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return domain.User{}, fmt.Errorf("username and password required: %w", domain.ErrInvalidInput)
	}
	if len(username) > maxUsernameLen {
		return domain.User{}, fmt.Errorf("username longer than %d: %w", maxUsernameLen, domain.ErrInvalidInput)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.CreateUserWithCart(ctx, username, hash)
	if err != nil {
		return domain.User{}, fmt.Errorf("create user %q: %w", username, err)
	}

	s.log.Info().Int64("user_id", user.ID).Int64("cart_id", user.CartID).Msg("user signed up")
	return user, nil
}

// SignIn returns a bearer token for valid credentials. Every failure is
// reported as the same unauthorized error.
func (s *AuthService) SignIn(ctx context.Context, username, password string) (string, domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return "", domain.User{}, fmt.Errorf("%w: %w", domain.ErrUnauthorized, ErrInvalidLogin)
	}

	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", domain.User{}, fmt.Errorf("%w: %w", domain.ErrUnauthorized, ErrInvalidLogin)
		}
		return "", domain.User{}, fmt.Errorf("lookup user: %w", err)
	}
	if !s.hasher.Compare(user.PasswordHash, password) {
		return "", domain.User{}, fmt.Errorf("%w: %w", domain.ErrUnauthorized, ErrInvalidLogin)
	}

	token, err := s.tokens.CreateToken(domain.Identity{
		UserID:   user.ID,
		Username: user.Username,
		CartID:   user.CartID,
	})
	if err != nil {
		return "", domain.User{}, fmt.Errorf("create token: %w", err)
	}
	return token, user, nil
}

func (s *AuthService) Verify(token string) (domain.Identity, error) {
	identity, err := s.tokens.VerifyToken(token)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("verify token: %w", err)
	}
	return identity, nil
}
