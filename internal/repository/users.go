package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/hireme/internal/model"
)

const userColumns = `id, name, email, password_hash, phone, location, email_verified, login_attempts, locked_until, created_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Phone, &u.Location,
		&u.EmailVerified, &u.LoginAttempts, &u.LockedUntil, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser сохраняет пользователя вместе с токеном подтверждения почты
// и письмом в исходящей очереди в одной транзакции.
func (r *PostgresRepository) CreateUser(ctx context.Context, u *model.User, token *model.AuthToken, n *model.Notification) (int64, error) {
	var id int64

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		err = tx.QueryRow(ctx,
			`INSERT INTO users (name, email, password_hash, phone, location)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING id`,
			u.Name, u.Email, u.PasswordHash, u.Phone, u.Location,
		).Scan(&id)
		if err != nil {
			if isUniqueViolation(err, "") {
				return ErrUserExists
			}
			return fmt.Errorf("insert user: %w", err)
		}

		if token != nil {
			token.UserID = id
			if err := insertToken(ctx, tx, token); err != nil {
				return err
			}
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

	return id, err
}

// GetUserByEmail возвращает пользователя по email.
func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

// GetUserByID возвращает пользователя по идентификатору.
func (r *PostgresRepository) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return u, nil
}

// RegisterFailedLogin атомарно увеличивает счётчик неудачных входов и
// выставляет блокировку по политике. Если пользователь уже заблокирован,
// счётчик не меняется. Возвращает актуальное состояние пользователя.
func (r *PostgresRepository) RegisterFailedLogin(ctx context.Context, userID int64, policy model.LockoutPolicy, now time.Time) (*model.User, error) {
	var (
		attempts    int
		lockedUntil *time.Time
	)

	err := r.pool.QueryRow(ctx,
		`UPDATE users SET
			login_attempts = login_attempts + 1,
			locked_until = CASE
				WHEN login_attempts + 1 >= $5::int THEN $3::timestamptz
				WHEN login_attempts + 1 >= $6::int THEN $4::timestamptz
				ELSE NULL
			END,
			updated_at = $2
		 WHERE id = $1 AND (locked_until IS NULL OR locked_until <= $2)
		 RETURNING login_attempts, locked_until`,
		userID, now,
		now.Add(policy.LongDuration), now.Add(policy.ShortDuration),
		policy.LongThreshold, policy.ShortThreshold,
	).Scan(&attempts, &lockedUntil)

	if errors.Is(err, pgx.ErrNoRows) {
		return r.GetUserByID(ctx, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("register failed login: %w", err)
	}

	u, err := r.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	u.LoginAttempts = attempts
	u.LockedUntil = lockedUntil
	return u, nil
}

// ResetLoginAttempts сбрасывает счётчик неудачных входов и блокировку.
func (r *PostgresRepository) ResetLoginAttempts(ctx context.Context, userID int64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET login_attempts = 0, locked_until = NULL, updated_at = NOW()
		 WHERE id = $1 AND (login_attempts <> 0 OR locked_until IS NOT NULL)`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("reset login attempts: %w", err)
	}
	return nil
}

// UpdateProfile обновляет имя, телефон и город пользователя.
func (r *PostgresRepository) UpdateProfile(ctx context.Context, u *model.User) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET name = $2, phone = $3, location = $4, updated_at = NOW()
		 WHERE id = $1`,
		u.ID, u.Name, u.Phone, u.Location,
	)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}
