package repository

import (
	"context"
	"fmt"

	"github.com/mmeshcher/hireme/internal/model"
)

// CreateContact сохраняет сообщение из формы обратной связи.
func (r *PostgresRepository) CreateContact(ctx context.Context, m *model.ContactMessage) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO contacts (name, email, message) VALUES ($1, $2, $3) RETURNING id, created_at`,
		m.Name, m.Email, m.Message,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return fmt.Errorf("create contact: %w", err)
	}
	return nil
}
