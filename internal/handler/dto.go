package handler

import (
	"time"

	"github.com/mmeshcher/hireme/internal/model"
)

type userResponse struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	Location      string `json:"location"`
	EmailVerified bool   `json:"emailVerified"`
	CreatedAt     string `json:"createdAt"`
}

func newUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:            u.ID,
		Name:          u.Name,
		Email:         u.Email,
		Phone:         u.Phone,
		Location:      u.Location,
		EmailVerified: u.EmailVerified,
		CreatedAt:     u.CreatedAt.Format(time.RFC3339),
	}
}

type productResponse struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Category    string  `json:"category"`
	Image       string  `json:"image"`
	Location    string  `json:"location"`
	Available   bool    `json:"available"`
}

func newProductResponse(p model.Product) productResponse {
	return productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       model.FromCents(p.Price),
		Category:    p.Category,
		Image:       p.Image,
		Location:    p.Location,
		Available:   p.Available,
	}
}

func newProductsResponse(products []model.Product) []productResponse {
	resp := make([]productResponse, 0, len(products))
	for _, p := range products {
		resp = append(resp, newProductResponse(p))
	}
	return resp
}

type cartLineResponse struct {
	ID        int64   `json:"id"`
	ProductID int64   `json:"productId"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
	Image     string  `json:"image"`
	Subtotal  float64 `json:"subtotal"`
}

type orderItemResponse struct {
	ProductID   int64   `json:"productId"`
	ProductName string  `json:"productName"`
	UnitPrice   float64 `json:"unitPrice"`
	Quantity    int     `json:"quantity"`
	Subtotal    float64 `json:"subtotal"`
}

type orderResponse struct {
	ID               int64               `json:"id"`
	OrderNumber      string              `json:"orderNumber"`
	Status           string              `json:"status"`
	TotalAmount      float64             `json:"totalAmount"`
	PaymentMethod    string              `json:"paymentMethod"`
	PaymentStatus    string              `json:"paymentStatus"`
	PaymentReference *string             `json:"paymentReference,omitempty"`
	ShippingAddress  string              `json:"shippingAddress"`
	ContactPhone     string              `json:"contactPhone"`
	ContactEmail     string              `json:"contactEmail"`
	OrderNotes       string              `json:"orderNotes,omitempty"`
	Items            []orderItemResponse `json:"items"`
	CreatedAt        string              `json:"createdAt"`
	UpdatedAt        string              `json:"updatedAt"`
}

func newOrderResponse(o *model.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemResponse{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			UnitPrice:   model.FromCents(it.UnitPrice),
			Quantity:    it.Quantity,
			Subtotal:    model.FromCents(it.Subtotal),
		})
	}

	return orderResponse{
		ID:               o.ID,
		OrderNumber:      o.Number,
		Status:           string(o.Status),
		TotalAmount:      model.FromCents(o.TotalAmount),
		PaymentMethod:    string(o.PaymentMethod),
		PaymentStatus:    string(o.PaymentStatus),
		PaymentReference: o.PaymentReference,
		ShippingAddress:  o.ShippingAddress,
		ContactPhone:     o.ContactPhone,
		ContactEmail:     o.ContactEmail,
		OrderNotes:       o.Notes,
		Items:            items,
		CreatedAt:        o.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        o.UpdatedAt.Format(time.RFC3339),
	}
}

type createdOrderResponse struct {
	OrderID     int64   `json:"orderId"`
	OrderNumber string  `json:"orderNumber"`
	TotalAmount float64 `json:"totalAmount"`
	Status      string  `json:"status"`
}
