package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mmeshcher/hireme/internal/model"
)

func TestFormatKES(t *testing.T) {
	tests := []struct {
		cents int64
		want  string
	}{
		{0, "KES 0.00"},
		{5, "KES 0.05"},
		{500000, "KES 5,000.00"},
		{123456789, "KES 1,234,567.89"},
		{-1050, "-KES 10.50"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatKES(tt.cents))
	}
}

func TestComposer_Verification(t *testing.T) {
	c := NewComposer("https://hire-me.co.ke/")

	n := c.Verification(&model.User{Name: "Amina", Email: "amina@example.com"}, "abc+def")

	assert.Equal(t, KindEmailVerification, n.Kind)
	assert.Equal(t, "amina@example.com", n.Recipient)
	assert.Contains(t, n.Body, "https://hire-me.co.ke/verify-email?token=abc%2Bdef")
	assert.Contains(t, n.Body, "Amina")
}

func TestComposer_OrderConfirmation(t *testing.T) {
	c := NewComposer("https://hire-me.co.ke")
	ref := "NLJ7RT61SV"
	o := &model.Order{
		Number:           "ORD-20260101000000-abcdefabcdef",
		ContactEmail:     "buyer@example.com",
		TotalAmount:      1100000,
		PaymentMethod:    model.PaymentMethodMpesa,
		PaymentReference: &ref,
		Items: []model.OrderItem{
			{ProductName: "Concrete Mixer 350L", UnitPrice: 500000, Quantity: 2, Subtotal: 1000000},
			{ProductName: "Water Pump 3\"", UnitPrice: 100000, Quantity: 1, Subtotal: 100000},
		},
	}

	n := c.OrderConfirmation(o)
	assert.Equal(t, "buyer@example.com", n.Recipient)
	assert.Contains(t, n.Subject, o.Number)
	assert.Contains(t, n.Body, "KES 11,000.00")
	assert.Contains(t, n.Body, "Concrete Mixer 350L")

	p := c.PaymentConfirmation(o)
	assert.Equal(t, KindPaymentConfirmation, p.Kind)
	assert.Contains(t, p.Body, "NLJ7RT61SV")
}
