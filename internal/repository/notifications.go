package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/mmeshcher/hireme/internal/model"
)

func insertNotification(ctx context.Context, q querier, n *model.Notification) error {
	err := q.QueryRow(ctx,
		`INSERT INTO notifications (kind, recipient, subject, body)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		n.Kind, n.Recipient, n.Subject, n.Body,
	).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

// ClaimNotifications выбирает до limit писем, готовых к отправке, и продлевает
// их next_attempt_at до leaseUntil, чтобы другие экземпляры их не взяли.
func (r *PostgresRepository) ClaimNotifications(ctx context.Context, limit int, now, leaseUntil time.Time) ([]model.Notification, error) {
	rows, err := r.pool.Query(ctx,
		`UPDATE notifications SET next_attempt_at = $2, attempts = attempts + 1
		 WHERE id IN (
			SELECT id FROM notifications
			WHERE status = 'pending' AND next_attempt_at <= $1
			ORDER BY next_attempt_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, kind, recipient, subject, body, attempts, created_at`,
		now, leaseUntil, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim notifications: %w", err)
	}
	defer rows.Close()

	var result []model.Notification
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.Kind, &n.Recipient, &n.Subject, &n.Body, &n.Attempts, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		result = append(result, n)
	}

	return result, rows.Err()
}

// MarkNotificationSent отмечает письмо отправленным.
func (r *PostgresRepository) MarkNotificationSent(ctx context.Context, id int64, now time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE notifications SET status = 'sent', sent_at = $2, last_error = NULL WHERE id = $1`,
		id, now,
	)
	if err != nil {
		return fmt.Errorf("mark notification sent: %w", err)
	}
	return nil
}

// MarkNotificationFailed сохраняет ошибку отправки. Если retryAt не nil,
// письмо будет отправлено повторно, иначе оно переходит в статус failed.
func (r *PostgresRepository) MarkNotificationFailed(ctx context.Context, id int64, sendErr string, retryAt *time.Time) error {
	var err error
	if retryAt != nil {
		_, err = r.pool.Exec(ctx,
			`UPDATE notifications SET last_error = $2, next_attempt_at = $3 WHERE id = $1`,
			id, sendErr, *retryAt,
		)
	} else {
		_, err = r.pool.Exec(ctx,
			`UPDATE notifications SET status = 'failed', last_error = $2 WHERE id = $1`,
			id, sendErr,
		)
	}
	if err != nil {
		return fmt.Errorf("mark notification failed: %w", err)
	}
	return nil
}
