package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/rl1809/timeless/internal/core/domain"
)

const minSecretLen = 32

var ErrWeakSecret = fmt.Errorf("token secret must be at least %d bytes", minSecretLen)

type claims struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
	CartID   int64  `json:"shoppingCartId"`
	jwt.RegisteredClaims
}

// JWTMaker issues and verifies HS256 bearer tokens carrying the caller's
// user and cart ids.
type JWTMaker struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewJWTMaker(secret string, ttl time.Duration) (*JWTMaker, error) {
	if len(secret) < minSecretLen {
		return nil, ErrWeakSecret
	}
	return &JWTMaker{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

func (m *JWTMaker) CreateToken(identity domain.Identity) (string, error) {
	now := m.now()
	c := claims{
		UserID:   identity.UserID,
		Username: identity.Username,
		CartID:   identity.CartID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(identity.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (m *JWTMaker) VerifyToken(token string) (domain.Identity, error) {
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.Identity{}, fmt.Errorf("%w: token expired", domain.ErrUnauthorized)
		}
		return domain.Identity{}, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	if c.UserID <= 0 || c.CartID <= 0 {
		return domain.Identity{}, fmt.Errorf("%w: token missing identity claims", domain.ErrUnauthorized)
	}
	return domain.Identity{UserID: c.UserID, Username: c.Username, CartID: c.CartID}, nil
}

type BcryptHasher struct {
	cost int
}

// NewBcryptHasher falls back to bcrypt.DefaultCost for an out of range cost.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (h *BcryptHasher) Compare(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
