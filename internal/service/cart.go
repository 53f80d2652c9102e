package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/mmeshcher/hireme/internal/model"
	"github.com/mmeshcher/hireme/internal/repository"
)

// MaxCartQuantity — предельное количество одного товара в корзине.
const MaxCartQuantity = 1000

// AddToCart добавляет товары в корзину пользователя. Количество по умолчанию — 1.
func (s *Service) AddToCart(ctx context.Context, userID int64, items []model.CartAddition) error {
	if len(items) == 0 {
		return invalid("items is required")
	}

	for i := range items {
		if items[i].ProductID <= 0 {
			return invalid("productId is required")
		}
		if items[i].Quantity == 0 {
			items[i].Quantity = 1
		}
		if items[i].Quantity < 1 {
			return invalid("quantity must be at least 1")
		}
		if items[i].Quantity > MaxCartQuantity {
			return invalid(fmt.Sprintf("quantity must be at most %d", MaxCartQuantity))
		}
	}

	lines, err := s.repo.GetCart(ctx, userID)
	if err != nil {
		return err
	}
	totals := make(map[int64]int, len(lines)+len(items))
	for _, l := range lines {
		totals[l.ProductID] = l.Quantity
	}
	for _, it := range items {
		totals[it.ProductID] += it.Quantity
		if totals[it.ProductID] > MaxCartQuantity {
			return invalid(fmt.Sprintf("quantity must be at most %d", MaxCartQuantity))
		}
	}

	if err := s.repo.AddCartItems(ctx, userID, items); err != nil {
		if errors.Is(err, repository.ErrProductUnavailable) {
			return ErrProductUnavailable
		}
		return err
	}
	return nil
}

// GetCart возвращает содержимое корзины пользователя.
func (s *Service) GetCart(ctx context.Context, userID int64) ([]model.CartLine, error) {
	return s.repo.GetCart(ctx, userID)
}

// RemoveFromCart удаляет строку корзины пользователя.
func (s *Service) RemoveFromCart(ctx context.Context, userID, itemID int64) error {
	if err := s.repo.RemoveCartItem(ctx, userID, itemID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}
