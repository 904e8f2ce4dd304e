package port

import "github.com/rl1809/timeless/internal/core/domain"

type TokenMaker interface {
	CreateToken(identity domain.Identity) (string, error)

	// VerifyToken returns domain.ErrUnauthorized for any invalid or expired token
	VerifyToken(token string) (domain.Identity, error)
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) bool
}
