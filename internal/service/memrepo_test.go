package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mmeshcher/hireme/internal/model"
	"github.com/mmeshcher/hireme/internal/repository"
)

// memRepo — потокобезопасная реализация Repository в памяти с теми же
// условными обновлениями, что и SQL-реализация.
type memRepo struct {
	mu sync.Mutex

	users    map[int64]*model.User
	tokens   []*model.AuthToken
	products map[int64]*model.Product
	cart     map[int64][]*model.CartLine
	orders   map[int64]*model.Order
	idem     map[string]int64
	numbers  map[string]bool
	outbox   []model.Notification
	contacts []model.ContactMessage

	nextID int64

	takenNumbers int
	failWith     error
}

func newMemRepo() *memRepo {
	return &memRepo{
		users:    make(map[int64]*model.User),
		products: make(map[int64]*model.Product),
		cart:     make(map[int64][]*model.CartLine),
		orders:   make(map[int64]*model.Order),
		idem:     make(map[string]int64),
		numbers:  make(map[string]bool),
	}
}

func (m *memRepo) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memRepo) addProduct(name string, price int64, available bool) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.id()
	m.products[id] = &model.Product{ID: id, Name: name, Price: price, Category: "construction", Location: "Nairobi", Available: available}
	return id
}

func (m *memRepo) addUser(u model.User) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	u.ID = m.id()
	m.users[u.ID] = &u
	return u.ID
}

func (m *memRepo) user(id int64) model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.users[id]
}

func (m *memRepo) order(id int64) model.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.orders[id]
}

func (m *memRepo) notifications(kind string) []model.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Notification
	for _, n := range m.outbox {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

func (m *memRepo) Close() error { return nil }

func (m *memRepo) CreateUser(_ context.Context, u *model.User, token *model.AuthToken, n *model.Notification) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.users {
		if existing.Email == u.Email {
			return 0, repository.ErrUserExists
		}
	}

	cp := *u
	cp.ID = m.id()
	m.users[cp.ID] = &cp
	if token != nil {
		token.UserID = cp.ID
		m.insertToken(token)
	}
	if n != nil {
		m.outbox = append(m.outbox, *n)
	}
	return cp.ID, nil
}

func (m *memRepo) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (m *memRepo) GetUserByID(_ context.Context, id int64) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memRepo) RegisterFailedLogin(_ context.Context, userID int64, policy model.LockoutPolicy, now time.Time) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	if !u.IsLocked(now) {
		u.LoginAttempts++
		u.LockedUntil = nil
		if d := policy.LockDuration(u.LoginAttempts); d > 0 {
			until := now.Add(d)
			u.LockedUntil = &until
		}
	}
	cp := *u
	return &cp, nil
}

func (m *memRepo) ResetLoginAttempts(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		u.LoginAttempts = 0
		u.LockedUntil = nil
	}
	return nil
}

func (m *memRepo) UpdateProfile(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.users[u.ID]
	if !ok {
		return repository.ErrUserNotFound
	}
	existing.Name, existing.Phone, existing.Location = u.Name, u.Phone, u.Location
	return nil
}

func (m *memRepo) insertToken(t *model.AuthToken) {
	now := time.Now()
	for _, old := range m.tokens {
		if old.UserID == t.UserID && old.Purpose == t.Purpose && old.UsedAt == nil {
			old.UsedAt = &now
		}
	}
	cp := *t
	cp.ID = m.id()
	t.ID = cp.ID
	m.tokens = append(m.tokens, &cp)
}

func (m *memRepo) IssueToken(_ context.Context, t *model.AuthToken, n *model.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertToken(t)
	if n != nil {
		m.outbox = append(m.outbox, *n)
	}
	return nil
}

func (m *memRepo) claim(hash string, purpose model.TokenPurpose, now time.Time) (*model.User, error) {
	for _, t := range m.tokens {
		if t.TokenHash == hash && t.Purpose == purpose && t.UsedAt == nil && t.ExpiresAt.After(now) {
			used := now
			t.UsedAt = &used
			return m.users[t.UserID], nil
		}
	}
	return nil, repository.ErrTokenInvalid
}

func (m *memRepo) ConsumeVerificationToken(_ context.Context, hash string, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := m.claim(hash, model.TokenPurposeEmailVerification, now)
	if err != nil {
		return 0, err
	}
	u.EmailVerified = true
	return u.ID, nil
}

func (m *memRepo) ConsumeResetToken(_ context.Context, hash, passwordHash string, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := m.claim(hash, model.TokenPurposePasswordReset, now)
	if err != nil {
		return 0, err
	}
	u.PasswordHash = passwordHash
	u.LoginAttempts = 0
	u.LockedUntil = nil
	return u.ID, nil
}

func (m *memRepo) ListProducts(_ context.Context, f model.ProductFilter) ([]model.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.Product, 0)
	for _, p := range m.products {
		if !p.Available {
			continue
		}
		if f.Category != "" && !strings.EqualFold(p.Category, f.Category) {
			continue
		}
		if f.Query != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(f.Query)) {
			continue
		}
		if f.MinPrice != nil && p.Price < *f.MinPrice {
			continue
		}
		if f.MaxPrice != nil && p.Price > *f.MaxPrice {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepo) GetProduct(_ context.Context, id int64) (*model.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memRepo) CreateProduct(_ context.Context, p *model.Product) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = m.id()
	cp := *p
	m.products[p.ID] = &cp
	return p.ID, nil
}

func (m *memRepo) GetFilterOptions(_ context.Context) (*model.FilterOptions, error) {
	return &model.FilterOptions{Categories: []string{}, Locations: []string{}}, nil
}

func (m *memRepo) SearchSuggestions(_ context.Context, q string, limit int) ([]string, error) {
	products, _ := m.ListProducts(context.Background(), model.ProductFilter{Query: q})
	out := make([]string, 0, limit)
	for _, p := range products {
		if len(out) == limit {
			break
		}
		out = append(out, p.Name)
	}
	return out, nil
}

func (m *memRepo) AddCartItems(_ context.Context, userID int64, items []model.CartAddition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, item := range items {
		p, ok := m.products[item.ProductID]
		if !ok || !p.Available {
			return repository.ErrProductUnavailable
		}
	}

	for _, item := range items {
		p := m.products[item.ProductID]
		var found bool
		for _, l := range m.cart[userID] {
			if l.ProductID == item.ProductID {
				l.Quantity += item.Quantity
				found = true
			}
		}
		if !found {
			m.cart[userID] = append(m.cart[userID], &model.CartLine{
				ID: m.id(), ProductID: p.ID, ProductName: p.Name, Price: p.Price, Quantity: item.Quantity,
			})
		}
	}
	return nil
}

func (m *memRepo) GetCart(_ context.Context, userID int64) ([]model.CartLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.CartLine, 0, len(m.cart[userID]))
	for _, l := range m.cart[userID] {
		cp := *l
		cp.Price = m.products[l.ProductID].Price
		out = append(out, cp)
	}
	return out, nil
}

func (m *memRepo) RemoveCartItem(_ context.Context, userID, itemID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	lines := m.cart[userID]
	for i, l := range lines {
		if l.ID == itemID {
			m.cart[userID] = append(lines[:i], lines[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

func cloneOrder(o *model.Order) *model.Order {
	cp := *o
	cp.Items = append([]model.OrderItem(nil), o.Items...)
	return &cp
}

func (m *memRepo) CreateOrderFromCart(_ context.Context, d model.OrderDraft, compose repository.NotificationComposer) (*model.Order, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failWith != nil {
		return nil, false, m.failWith
	}
	if _, ok := m.users[d.UserID]; !ok {
		return nil, false, repository.ErrUserNotFound
	}

	key := ""
	if d.IdempotencyKey != "" {
		key = fmt.Sprintf("%d|%s", d.UserID, d.IdempotencyKey)
		if id, ok := m.idem[key]; ok {
			return cloneOrder(m.orders[id]), false, nil
		}
	}

	lines := m.cart[d.UserID]
	if len(lines) == 0 {
		return nil, false, repository.ErrEmptyCart
	}
	if m.takenNumbers > 0 {
		m.takenNumbers--
		return nil, false, repository.ErrOrderNumberTaken
	}
	if m.numbers[d.Number] {
		return nil, false, repository.ErrOrderNumberTaken
	}

	now := time.Now()
	o := &model.Order{
		ID:              m.id(),
		Number:          d.Number,
		UserID:          d.UserID,
		Status:          model.OrderStatusPending,
		PaymentMethod:   d.PaymentMethod,
		PaymentStatus:   model.PaymentStatusPending,
		ShippingAddress: d.ShippingAddress,
		ContactPhone:    d.ContactPhone,
		ContactEmail:    d.ContactEmail,
		Notes:           d.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for _, l := range lines {
		price := m.products[l.ProductID].Price
		sub := price * int64(l.Quantity)
		o.TotalAmount += sub
		o.Items = append(o.Items, model.OrderItem{
			ID: m.id(), ProductID: l.ProductID, ProductName: l.ProductName,
			UnitPrice: price, Quantity: l.Quantity, Subtotal: sub,
		})
	}

	m.orders[o.ID] = o
	m.numbers[o.Number] = true
	if key != "" {
		m.idem[key] = o.ID
	}
	delete(m.cart, d.UserID)
	if compose != nil {
		if n := compose(o); n != nil {
			m.outbox = append(m.outbox, *n)
		}
	}

	return cloneOrder(o), true, nil
}

func (m *memRepo) GetOrdersByUser(_ context.Context, userID int64) ([]model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Order, 0)
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, *cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memRepo) GetOrder(_ context.Context, id int64) (*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (m *memRepo) TransitionOrderStatus(_ context.Context, id int64, from, to model.OrderStatus) error {
	if !from.CanTransitionTo(to) {
		return repository.ErrInvalidTransition
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return repository.ErrNotFound
	}
	if o.Status != from {
		return repository.ErrStatusConflict
	}
	o.Status = to
	return nil
}

func (m *memRepo) SetPaymentReference(_ context.Context, orderID int64, checkoutID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || o.PaymentStatus != model.PaymentStatusPending || o.Status == model.OrderStatusCancelled {
		return repository.ErrStatusConflict
	}
	ref := checkoutID
	o.PaymentReference = &ref
	cid := checkoutID
	o.CheckoutRequestID = &cid
	return nil
}

func (m *memRepo) GetOrderByCheckoutID(_ context.Context, userID int64, checkoutID string) (*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.UserID == userID && o.CheckoutRequestID != nil && *o.CheckoutRequestID == checkoutID {
			return cloneOrder(o), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memRepo) ApplyPaymentResult(_ context.Context, res model.PaymentResult, compose repository.NotificationComposer) (bool, error) {
	if !model.PaymentStatusPending.CanTransitionTo(res.Status) {
		return false, repository.ErrInvalidTransition
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var known bool
	for _, o := range m.orders {
		if o.CheckoutRequestID != nil && *o.CheckoutRequestID == res.CheckoutRequestID {
			known = true
		}
		if o.PaymentReference == nil || *o.PaymentReference != res.CheckoutRequestID {
			continue
		}

		switch o.PaymentStatus {
		case model.PaymentStatusPending:
			o.PaymentStatus = res.Status
			if res.Receipt != "" {
				r := res.Receipt
				o.PaymentReference = &r
			}
			if res.Status == model.PaymentStatusCompleted && compose != nil {
				if n := compose(o); n != nil {
					m.outbox = append(m.outbox, *n)
				}
			}
			return true, nil
		case model.PaymentStatusCompleted:
			if res.Status == model.PaymentStatusCompleted && res.Receipt != "" {
				r := res.Receipt
				o.PaymentReference = &r
			}
		}
	}

	if !known {
		return false, repository.ErrNotFound
	}
	return false, nil
}

func (m *memRepo) CreateContact(_ context.Context, c *model.ContactMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = m.id()
	m.contacts = append(m.contacts, *c)
	return nil
}
