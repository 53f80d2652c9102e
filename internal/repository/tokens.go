package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/hireme/internal/model"
)

func insertToken(ctx context.Context, q querier, t *model.AuthToken) error {
	// Действует только последний выданный токен.
	_, err := q.Exec(ctx,
		`UPDATE auth_tokens SET used_at = NOW()
		 WHERE user_id = $1 AND purpose = $2 AND used_at IS NULL`,
		t.UserID, t.Purpose,
	)
	if err != nil {
		return fmt.Errorf("invalidate tokens: %w", err)
	}

	err = q.QueryRow(ctx,
		`INSERT INTO auth_tokens (user_id, purpose, token_hash, expires_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		t.UserID, t.Purpose, t.TokenHash, t.ExpiresAt,
	).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

// claimToken помечает токен использованным. Повторное использование,
// истечение срока и неверное назначение дают ErrTokenInvalid.
func claimToken(ctx context.Context, q querier, hash string, purpose model.TokenPurpose, now time.Time) (int64, error) {
	var userID int64
	err := q.QueryRow(ctx,
		`UPDATE auth_tokens SET used_at = $3
		 WHERE token_hash = $1 AND purpose = $2 AND used_at IS NULL AND expires_at > $3
		 RETURNING user_id`,
		hash, purpose, now,
	).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrTokenInvalid
		}
		return 0, fmt.Errorf("claim token: %w", err)
	}
	return userID, nil
}

// IssueToken сохраняет новый токен, отзывая ранее выданные токены того же
// назначения, и ставит письмо в очередь в той же транзакции.
func (r *PostgresRepository) IssueToken(ctx context.Context, t *model.AuthToken, n *model.Notification) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		if err := insertToken(ctx, tx, t); err != nil {
			return err
		}
		if n != nil {
			if err := insertNotification(ctx, tx, n); err != nil {
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// ConsumeVerificationToken использует токен подтверждения и отмечает почту
// пользователя подтверждённой.
func (r *PostgresRepository) ConsumeVerificationToken(ctx context.Context, hash string, now time.Time) (int64, error) {
	var userID int64

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		userID, err = claimToken(ctx, tx, hash, model.TokenPurposeEmailVerification, now)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`UPDATE users SET email_verified = TRUE, updated_at = $2 WHERE id = $1`,
			userID, now,
		)
		if err != nil {
			return fmt.Errorf("verify email: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})

	return userID, err
}

// ConsumeResetToken использует токен сброса, записывает новый хеш пароля и
// снимает блокировку входа.
func (r *PostgresRepository) ConsumeResetToken(ctx context.Context, hash, passwordHash string, now time.Time) (int64, error) {
	var userID int64

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		userID, err = claimToken(ctx, tx, hash, model.TokenPurposePasswordReset, now)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`UPDATE users
			 SET password_hash = $2, login_attempts = 0, locked_until = NULL, updated_at = $3
			 WHERE id = $1`,
			userID, passwordHash, now,
		)
		if err != nil {
			return fmt.Errorf("reset password: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})

	return userID, err
}
