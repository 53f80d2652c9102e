package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/hireme/internal/model"
)

func addCartItem(ctx context.Context, q querier, userID int64, item model.CartAddition) error {
	var available bool
	err := q.QueryRow(ctx,
		`SELECT available FROM products WHERE id = $1 FOR SHARE`, item.ProductID,
	).Scan(&available)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrProductUnavailable
		}
		return fmt.Errorf("check product: %w", err)
	}
	if !available {
		return ErrProductUnavailable
	}

	_, err = q.Exec(ctx,
		`INSERT INTO cart_items (user_id, product_id, quantity)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, product_id)
		 DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity`,
		userID, item.ProductID, item.Quantity,
	)
	if err != nil {
		return fmt.Errorf("upsert cart item: %w", err)
	}
	return nil
}

// AddCartItems добавляет товары в корзину в одной транзакции. Повторное
// добавление товара увеличивает количество.
func (r *PostgresRepository) AddCartItems(ctx context.Context, userID int64, items []model.CartAddition) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		for _, item := range items {
			if err := addCartItem(ctx, tx, userID, item); err != nil {
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

func cartLines(ctx context.Context, q querier, userID int64, lock bool) ([]model.CartLine, error) {
	query := `SELECT c.id, c.product_id, p.name, p.price, c.quantity, p.image
		 FROM cart_items c
		 JOIN products p ON p.id = c.product_id
		 WHERE c.user_id = $1
		 ORDER BY c.added_at, c.id`
	if lock {
		query += ` FOR UPDATE OF c`
	}

	rows, err := q.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	defer rows.Close()

	lines := make([]model.CartLine, 0)
	for rows.Next() {
		var l model.CartLine
		if err := rows.Scan(&l.ID, &l.ProductID, &l.ProductName, &l.Price, &l.Quantity, &l.Image); err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		lines = append(lines, l)
	}

	return lines, rows.Err()
}

// GetCart возвращает содержимое корзины пользователя с текущими ценами.
func (r *PostgresRepository) GetCart(ctx context.Context, userID int64) ([]model.CartLine, error) {
	return cartLines(ctx, r.pool, userID, false)
}

// RemoveCartItem удаляет строку корзины, принадлежащую пользователю.
func (r *PostgresRepository) RemoveCartItem(ctx context.Context, userID, itemID int64) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM cart_items WHERE id = $1 AND user_id = $2`, itemID, userID)
	if err != nil {
		return fmt.Errorf("remove cart item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
