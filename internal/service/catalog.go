package service

import (
	"context"
	"errors"
	"strings"

	"github.com/mmeshcher/hireme/internal/model"
	"github.com/mmeshcher/hireme/internal/repository"
	"github.com/mmeshcher/hireme/internal/validation"
)

// ProductInput — данные нового товара каталога. Цена задаётся в шиллингах.
type ProductInput struct {
	Name        string  `json:"name" validate:"required,max=200"`
	Description string  `json:"description"`
	Price       float64 `json:"price" validate:"gte=0"`
	Category    string  `json:"category" validate:"required"`
	Image       string  `json:"image"`
	Location    string  `json:"location"`
	Available   *bool   `json:"available"`
}

// SearchInput — параметры поиска по каталогу. Цены задаются в шиллингах.
type SearchInput struct {
	Query    string
	Category string
	Location string
	MinPrice *float64
	MaxPrice *float64
}

// ListProducts возвращает все доступные товары.
func (s *Service) ListProducts(ctx context.Context) ([]model.Product, error) {
	return s.repo.ListProducts(ctx, model.ProductFilter{})
}

// ListProductsByCategory возвращает доступные товары категории.
func (s *Service) ListProductsByCategory(ctx context.Context, category string) ([]model.Product, error) {
	return s.repo.ListProducts(ctx, model.ProductFilter{Category: strings.TrimSpace(category)})
}

// SearchProducts ищет доступные товары по тексту и фильтрам.
func (s *Service) SearchProducts(ctx context.Context, in SearchInput) ([]model.Product, error) {
	f := model.ProductFilter{
		Query:    strings.TrimSpace(in.Query),
		Category: strings.TrimSpace(in.Category),
		Location: strings.TrimSpace(in.Location),
	}
	if in.MinPrice != nil {
		v := model.ToCents(*in.MinPrice)
		f.MinPrice = &v
	}
	if in.MaxPrice != nil {
		v := model.ToCents(*in.MaxPrice)
		f.MaxPrice = &v
	}
	if f.MinPrice != nil && f.MaxPrice != nil && *f.MinPrice > *f.MaxPrice {
		return nil, invalid("minPrice must not exceed maxPrice")
	}

	return s.repo.ListProducts(ctx, f)
}

// GetProduct возвращает товар по идентификатору.
func (s *Service) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	p, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// CreateProduct добавляет товар в каталог.
func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (*model.Product, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Category = strings.TrimSpace(in.Category)

	if errs := validation.Struct(in); len(errs) > 0 {
		return nil, invalid(errs...)
	}

	p := &model.Product{
		Name:        in.Name,
		Description: in.Description,
		Price:       model.ToCents(in.Price),
		Category:    in.Category,
		Image:       in.Image,
		Location:    strings.TrimSpace(in.Location),
		Available:   in.Available == nil || *in.Available,
	}
	if _, err := s.repo.CreateProduct(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// FilterOptions возвращает значения для фильтров каталога.
func (s *Service) FilterOptions(ctx context.Context) (*model.FilterOptions, error) {
	return s.repo.GetFilterOptions(ctx)
}

// SearchSuggestions возвращает подсказки поиска; для запроса короче двух символов — пустой список.
func (s *Service) SearchSuggestions(ctx context.Context, q string) ([]string, error) {
	q = strings.TrimSpace(q)
	if len([]rune(q)) < 2 {
		return []string{}, nil
	}
	return s.repo.SearchSuggestions(ctx, q, suggestionsLimit)
}

// ContactInput — сообщение формы обратной связи.
type ContactInput struct {
	Name    string `json:"name" validate:"required,max=100"`
	Email   string `json:"email" validate:"required,email"`
	Message string `json:"message" validate:"required,max=5000"`
}

// SubmitContact сохраняет сообщение формы обратной связи.
func (s *Service) SubmitContact(ctx context.Context, in ContactInput) error {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalizeEmail(in.Email)
	in.Message = strings.TrimSpace(in.Message)

	if errs := validation.Struct(in); len(errs) > 0 {
		return invalid(errs...)
	}

	return s.repo.CreateContact(ctx, &model.ContactMessage{Name: in.Name, Email: in.Email, Message: in.Message})
}
