package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/hireme/internal/model"
)

// SetPaymentReference сохраняет идентификатор STK push для заказа, ожидающего оплаты.
func (r *PostgresRepository) SetPaymentReference(ctx context.Context, orderID int64, checkoutID string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE orders
		 SET payment_reference = $2, checkout_request_id = $2, updated_at = NOW()
		 WHERE id = $1 AND payment_status = 'pending' AND status <> 'cancelled'`,
		orderID, checkoutID,
	)
	if err != nil {
		return fmt.Errorf("set payment reference: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStatusConflict
	}
	return nil
}

// GetOrderByCheckoutID возвращает заказ пользователя по идентификатору STK push.
func (r *PostgresRepository) GetOrderByCheckoutID(ctx context.Context, userID int64, checkoutID string) (*model.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE checkout_request_id = $1 AND user_id = $2`,
		checkoutID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get order by checkout id: %w", err)
	}
	return o, nil
}

// ApplyPaymentResult применяет итог платежа к заказу, ожидающему оплаты.
// Обновление условное: заказ в терминальном статусе оплаты не меняется, поэтому
// повторные и конкурирующие callback и опросы безопасны. При успешной оплате
// номер квитанции заменяет payment_reference и в той же транзакции ставится
// письмо. Возвращает true, если статус оплаты изменился; ErrNotFound, если
// заказа с таким идентификатором STK push нет.
func (r *PostgresRepository) ApplyPaymentResult(ctx context.Context, res model.PaymentResult, compose NotificationComposer) (bool, error) {
	if !model.PaymentStatusPending.CanTransitionTo(res.Status) {
		return false, ErrInvalidTransition
	}

	var applied bool

	err := r.withRetry(ctx, func() error {
		applied = false

		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		o, err := scanOrder(tx.QueryRow(ctx,
			`UPDATE orders
			 SET payment_status = $2,
			     payment_reference = COALESCE(NULLIF($3, ''), payment_reference),
			     updated_at = NOW()
			 WHERE payment_reference = $1 AND payment_status = 'pending'
			 RETURNING `+orderColumns,
			res.CheckoutRequestID, res.Status, res.Receipt,
		))
		switch {
		case err == nil:
			applied = true
			if res.Status == model.PaymentStatusCompleted && compose != nil {
				if n := compose(o); n != nil {
					if err := insertNotification(ctx, tx, n); err != nil {
						return err
					}
				}
			}
		case errors.Is(err, pgx.ErrNoRows):
			if err := backfillReceipt(ctx, tx, res); err != nil {
				return err
			}
		default:
			return fmt.Errorf("apply payment result: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})

	return applied, err
}

// backfillReceipt дописывает квитанцию к заказу, оплата которого уже
// подтверждена опросом. Статус при этом не меняется.
func backfillReceipt(ctx context.Context, q querier, res model.PaymentResult) error {
	if res.Status == model.PaymentStatusCompleted && res.Receipt != "" {
		_, err := q.Exec(ctx,
			`UPDATE orders SET payment_reference = $2, updated_at = NOW()
			 WHERE payment_reference = $1 AND payment_status = 'completed'`,
			res.CheckoutRequestID, res.Receipt,
		)
		if err != nil {
			return fmt.Errorf("backfill receipt: %w", err)
		}
	}

	var exists bool
	err := q.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM orders WHERE checkout_request_id = $1 OR payment_reference = $1)`,
		res.CheckoutRequestID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check order: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return nil
}
