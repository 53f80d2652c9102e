package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/hireme/internal/model"
)

const orderColumns = `id, order_number, user_id, status, total_amount, payment_method, payment_status,
	payment_reference, checkout_request_id, shipping_address, contact_phone, contact_email,
	order_notes, created_at, updated_at`

func scanOrder(row pgx.Row) (*model.Order, error) {
	var o model.Order
	err := row.Scan(&o.ID, &o.Number, &o.UserID, &o.Status, &o.TotalAmount, &o.PaymentMethod,
		&o.PaymentStatus, &o.PaymentReference, &o.CheckoutRequestID, &o.ShippingAddress,
		&o.ContactPhone, &o.ContactEmail, &o.Notes, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// NotificationComposer строит письмо по сохранённому заказу.
// Возврат nil означает, что письмо не требуется.
type NotificationComposer func(o *model.Order) *model.Notification

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// CreateOrderFromCart оформляет заказ из корзины пользователя в одной транзакции:
// снимок строк корзины, сумма заказа, очистка корзины и письмо-подтверждение.
// Если заказ с тем же ключом идемпотентности уже существует, он возвращается
// без побочных эффектов, а второй результат равен false.
func (r *PostgresRepository) CreateOrderFromCart(ctx context.Context, d model.OrderDraft, compose NotificationComposer) (*model.Order, bool, error) {
	var (
		order   *model.Order
		created bool
	)

	err := r.withRetry(ctx, func() error {
		created = false

		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		// Оформления одного пользователя выполняются последовательно.
		var userID int64
		err = tx.QueryRow(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, d.UserID).Scan(&userID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrUserNotFound
			}
			return fmt.Errorf("lock user: %w", err)
		}

		if d.IdempotencyKey != "" {
			existing, err := scanOrder(tx.QueryRow(ctx,
				`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 AND idempotency_key = $2`,
				d.UserID, d.IdempotencyKey))
			switch {
			case err == nil:
				if err := loadItems(ctx, tx, existing); err != nil {
					return err
				}
				order = existing
				return nil
			case !errors.Is(err, pgx.ErrNoRows):
				return fmt.Errorf("get order by idempotency key: %w", err)
			}
		}

		lines, err := cartLines(ctx, tx, d.UserID, true)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return ErrEmptyCart
		}

		var total int64
		for _, l := range lines {
			total += l.Subtotal()
		}

		o, err := scanOrder(tx.QueryRow(ctx,
			`INSERT INTO orders (order_number, user_id, total_amount, payment_method,
				shipping_address, contact_phone, contact_email, order_notes, idempotency_key)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 RETURNING `+orderColumns,
			d.Number, d.UserID, total, d.PaymentMethod,
			d.ShippingAddress, d.ContactPhone, d.ContactEmail, d.Notes, nullable(d.IdempotencyKey),
		))
		if err != nil {
			if isUniqueViolation(err, "orders_order_number_key") {
				return ErrOrderNumberTaken
			}
			return fmt.Errorf("insert order: %w", err)
		}

		batch := &pgx.Batch{}
		for _, l := range lines {
			batch.Queue(
				`INSERT INTO order_items (order_id, product_id, product_name, unit_price, quantity, subtotal)
				 VALUES ($1, $2, $3, $4, $5, $6)
				 RETURNING id`,
				o.ID, l.ProductID, l.ProductName, l.Price, l.Quantity, l.Subtotal(),
			)
		}
		br := tx.SendBatch(ctx, batch)
		o.Items = make([]model.OrderItem, 0, len(lines))
		for _, l := range lines {
			item := model.OrderItem{
				ProductID:   l.ProductID,
				ProductName: l.ProductName,
				UnitPrice:   l.Price,
				Quantity:    l.Quantity,
				Subtotal:    l.Subtotal(),
			}
			if err := br.QueryRow().Scan(&item.ID); err != nil {
				br.Close()
				return fmt.Errorf("insert order item: %w", err)
			}
			o.Items = append(o.Items, item)
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("close batch: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, d.UserID); err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}

		if compose != nil {
			if n := compose(o); n != nil {
				if err := insertNotification(ctx, tx, n); err != nil {
					return err
				}
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		order = o
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return order, created, nil
}

func loadItems(ctx context.Context, q querier, orders ...*model.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(orders))
	byID := make(map[int64]*model.Order, len(orders))
	for _, o := range orders {
		o.Items = make([]model.OrderItem, 0)
		ids = append(ids, o.ID)
		byID[o.ID] = o
	}

	rows, err := q.Query(ctx,
		`SELECT id, order_id, product_id, product_name, unit_price, quantity, subtotal
		 FROM order_items WHERE order_id = ANY($1) ORDER BY id`,
		ids,
	)
	if err != nil {
		return fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item    model.OrderItem
			orderID int64
		)
		if err := rows.Scan(&item.ID, &orderID, &item.ProductID, &item.ProductName,
			&item.UnitPrice, &item.Quantity, &item.Subtotal); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		if o, ok := byID[orderID]; ok {
			o.Items = append(o.Items, item)
		}
	}

	return rows.Err()
}

// GetOrdersByUser возвращает заказы пользователя, новые первыми.
func (r *PostgresRepository) GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("get orders: %w", err)
	}
	defer rows.Close()

	var ptrs []*model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		ptrs = append(ptrs, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := loadItems(ctx, r.pool, ptrs...); err != nil {
		return nil, err
	}

	orders := make([]model.Order, 0, len(ptrs))
	for _, o := range ptrs {
		orders = append(orders, *o)
	}
	return orders, nil
}

// GetOrder возвращает заказ вместе с позициями.
func (r *PostgresRepository) GetOrder(ctx context.Context, id int64) (*model.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	if err := loadItems(ctx, r.pool, o); err != nil {
		return nil, err
	}
	return o, nil
}

// TransitionOrderStatus переводит заказ из статуса from в статус to.
// Недопустимый переход даёт ErrInvalidTransition, параллельное изменение
// статуса — ErrStatusConflict.
func (r *PostgresRepository) TransitionOrderStatus(ctx context.Context, id int64, from, to model.OrderStatus) error {
	if !from.CanTransitionTo(to) {
		return ErrInvalidTransition
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE orders SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`,
		id, from, to,
	)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check order: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrStatusConflict
}
