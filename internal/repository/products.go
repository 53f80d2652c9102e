package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/hireme/internal/model"
)

const productColumns = `id, name, description, price, category, image, location, available`

func scanProduct(row pgx.Row) (model.Product, error) {
	var p model.Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Category, &p.Image, &p.Location, &p.Available)
	return p, err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

// ListProducts возвращает доступные товары, удовлетворяющие фильтру.
func (r *PostgresRepository) ListProducts(ctx context.Context, f model.ProductFilter) ([]model.Product, error) {
	var (
		conds = []string{"available"}
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if q := strings.TrimSpace(f.Query); q != "" {
		add("(name ILIKE $%[1]d OR description ILIKE $%[1]d)", containsPattern(q))
	}
	if f.Category != "" {
		add("LOWER(category) = LOWER($%d)", f.Category)
	}
	if f.Location != "" {
		add("location ILIKE $%d", containsPattern(f.Location))
	}
	if f.MinPrice != nil {
		add("price >= $%d", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		add("price <= $%d", *f.MaxPrice)
	}

	query := `SELECT ` + productColumns + ` FROM products WHERE ` + strings.Join(conds, " AND ") + ` ORDER BY id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := make([]model.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}

	return products, rows.Err()
}

// GetProduct возвращает товар по идентификатору.
func (r *PostgresRepository) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return &p, nil
}

// CreateProduct добавляет товар в каталог.
func (r *PostgresRepository) CreateProduct(ctx context.Context, p *model.Product) (int64, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO products (name, description, price, category, image, location, available)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		p.Name, p.Description, p.Price, p.Category, p.Image, p.Location, p.Available,
	).Scan(&p.ID)
	if err != nil {
		return 0, fmt.Errorf("create product: %w", err)
	}
	return p.ID, nil
}

// GetFilterOptions возвращает категории, города и диапазон цен доступных товаров.
func (r *PostgresRepository) GetFilterOptions(ctx context.Context) (*model.FilterOptions, error) {
	opts := &model.FilterOptions{Categories: []string{}, Locations: []string{}}

	err := r.pool.QueryRow(ctx,
		`SELECT
			COALESCE(ARRAY(SELECT DISTINCT category FROM products WHERE available ORDER BY category), '{}'),
			COALESCE(ARRAY(SELECT DISTINCT location FROM products WHERE available AND location <> '' ORDER BY location), '{}'),
			COALESCE(MIN(price), 0),
			COALESCE(MAX(price), 0)
		 FROM products WHERE available`,
	).Scan(&opts.Categories, &opts.Locations, &opts.MinPrice, &opts.MaxPrice)
	if err != nil {
		return nil, fmt.Errorf("get filter options: %w", err)
	}
	return opts, nil
}

// SearchSuggestions возвращает до limit названий товаров и категорий, содержащих q.
func (r *PostgresRepository) SearchSuggestions(ctx context.Context, q string, limit int) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT s FROM (
			SELECT name AS s FROM products WHERE available AND name ILIKE $1
			UNION
			SELECT category AS s FROM products WHERE available AND category ILIKE $1
		 ) t
		 ORDER BY s
		 LIMIT $2`,
		containsPattern(q), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search suggestions: %w", err)
	}
	defer rows.Close()

	suggestions := make([]string, 0, limit)
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan suggestion: %w", err)
		}
		suggestions = append(suggestions, s)
	}

	return suggestions, rows.Err()
}
