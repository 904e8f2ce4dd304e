package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rl1809/timeless/internal/core/domain"
)

// CreateUserWithCart inserts the user row and its cart row in one transaction
// so a user never exists without a cart.
func (m *MySQLAdapter) CreateUserWithCart(ctx context.Context, username, passwordHash string) (domain.User, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)`,
		username, passwordHash, now,
	)
	if err != nil {
		return domain.User{}, fmt.Errorf("insert user: %w", classify(err))
	}
	userID, err := result.LastInsertId()
	if err != nil {
		return domain.User{}, fmt.Errorf("user id: %w", err)
	}

	result, err = tx.ExecContext(ctx, `INSERT INTO carts (user_id, created_at) VALUES (?, ?)`, userID, now)
	if err != nil {
		return domain.User{}, fmt.Errorf("insert cart: %w", classify(err))
	}
	cartID, err := result.LastInsertId()
	if err != nil {
		return domain.User{}, fmt.Errorf("cart id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.User{}, fmt.Errorf("commit: %w", err)
	}

	return domain.User{
		ID:           userID,
		Username:     username,
		PasswordHash: passwordHash,
		CartID:       cartID,
		CreatedAt:    now,
	}, nil
}

func (m *MySQLAdapter) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	var u domain.User
	err := m.db.QueryRowContext(ctx, `
		SELECT u.id, u.username, u.password_hash, u.created_at, c.id
		FROM users u
		JOIN carts c ON c.user_id = u.id
		WHERE u.username = ?`, username,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt, &u.CartID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, fmt.Errorf("user %q: %w", username, domain.ErrNotFound)
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("query user: %w", err)
	}
	return u, nil
}

// SaveCheckoutSession ignores a second save of the same session id.
func (m *MySQLAdapter) SaveCheckoutSession(ctx context.Context, session domain.CheckoutSession) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO checkout_sessions (id, cart_id, user_id, url, amount_total_cents, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE id = id`,
		session.ID, session.CartID, session.UserID, session.URL, session.AmountTotal,
		string(session.Status), session.CreatedAt.UTC(), session.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert checkout session: %w", classify(err))
	}
	return nil
}

func (m *MySQLAdapter) UpdateCheckoutStatus(ctx context.Context, sessionID string, status domain.CheckoutStatus) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE checkout_sessions SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("update checkout session: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows > 0 {
		return nil
	}

	// zero rows also means "matched but unchanged"
	var one int
	err = m.db.QueryRowContext(ctx, `SELECT 1 FROM checkout_sessions WHERE id = ?`, sessionID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("checkout session %s: %w", sessionID, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("query checkout session: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) GetCheckoutSession(ctx context.Context, sessionID string) (domain.CheckoutSession, error) {
	var (
		s      domain.CheckoutSession
		status string
	)
	err := m.db.QueryRowContext(ctx, `
		SELECT id, cart_id, user_id, url, amount_total_cents, status, created_at, updated_at
		FROM checkout_sessions WHERE id = ?`, sessionID,
	).Scan(&s.ID, &s.CartID, &s.UserID, &s.URL, &s.AmountTotal, &status, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CheckoutSession{}, fmt.Errorf("checkout session %s: %w", sessionID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.CheckoutSession{}, fmt.Errorf("query checkout session: %w", err)
	}
	s.Status = domain.CheckoutStatus(status)
	return s, nil
}
