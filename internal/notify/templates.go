package notify

import (
	"bytes"
	"html/template"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/hireme/internal/model"
)

// Виды писем.
const (
	KindEmailVerification   = "email_verification"
	KindPasswordReset       = "password_reset"
	KindOrderConfirmation   = "order_confirmation"
	KindPaymentConfirmation = "payment_confirmation"
)

var funcs = template.FuncMap{
	"kes": FormatKES,
}

var templates = template.Must(template.New("").Funcs(funcs).Parse(`
{{define "email_verification"}}<p>Hello {{.Name}},</p>
<p>Welcome to Hire Me. Please confirm your email address:</p>
<p><a href="{{.Link}}">{{.Link}}</a></p>
<p>The link is valid for 24 hours.</p>{{end}}

{{define "password_reset"}}<p>Hello {{.Name}},</p>
<p>We received a request to reset your password. Use the link below to choose a new one:</p>
<p><a href="{{.Link}}">{{.Link}}</a></p>
<p>The link is valid for 1 hour. If you did not request a reset, ignore this email.</p>{{end}}

{{define "order_confirmation"}}<p>Thank you for your order {{.Order.Number}}.</p>
<table>
{{range .Order.Items}}<tr><td>{{.ProductName}}</td><td>{{.Quantity}} x {{kes .UnitPrice}}</td><td>{{kes .Subtotal}}</td></tr>
{{end}}</table>
<p>Total: {{kes .Order.TotalAmount}}</p>
<p>Payment method: {{.Order.PaymentMethod}}</p>
<p>Delivery to: {{.Order.ShippingAddress}}</p>{{end}}

{{define "payment_confirmation"}}<p>We received your payment for order {{.Order.Number}}.</p>
<p>Amount: {{kes .Order.TotalAmount}}</p>
{{with .Order.PaymentReference}}<p>M-Pesa receipt: {{.}}</p>{{end}}{{end}}
`))

// FormatKES форматирует сумму в центах как "KES 5,000.00".
func FormatKES(cents int64) string {
	s := decimal.New(cents, -2).StringFixed(2)

	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}

	out := "KES " + b.String() + "." + frac
	if neg {
		out = "-" + out
	}
	return out
}

// Composer формирует письма исходящей очереди.
type Composer struct {
	baseURL string
}

// NewComposer создаёт Composer; baseURL используется для ссылок в письмах.
func NewComposer(baseURL string) *Composer {
	return &Composer{baseURL: strings.TrimRight(baseURL, "/")}
}

func render(name string, data any) string {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return ""
	}
	return buf.String()
}

func (c *Composer) link(path, token string) string {
	return c.baseURL + path + "?token=" + url.QueryEscape(token)
}

// Verification формирует письмо со ссылкой подтверждения почты.
func (c *Composer) Verification(u *model.User, token string) *model.Notification {
	return &model.Notification{
		Kind:      KindEmailVerification,
		Recipient: u.Email,
		Subject:   "Verify your Hire Me account",
		Body: render(KindEmailVerification, map[string]string{
			"Name": u.Name,
			"Link": c.link("/verify-email", token),
		}),
	}
}

// PasswordReset формирует письмо со ссылкой сброса пароля.
func (c *Composer) PasswordReset(u *model.User, token string) *model.Notification {
	return &model.Notification{
		Kind:      KindPasswordReset,
		Recipient: u.Email,
		Subject:   "Reset your Hire Me password",
		Body: render(KindPasswordReset, map[string]string{
			"Name": u.Name,
			"Link": c.link("/reset-password", token),
		}),
	}
}

// OrderConfirmation формирует подтверждение оформленного заказа.
func (c *Composer) OrderConfirmation(o *model.Order) *model.Notification {
	return &model.Notification{
		Kind:      KindOrderConfirmation,
		Recipient: o.ContactEmail,
		Subject:   "Order " + o.Number + " received",
		Body:      render(KindOrderConfirmation, map[string]any{"Order": o}),
	}
}

// PaymentConfirmation формирует уведомление об успешной оплате заказа.
func (c *Composer) PaymentConfirmation(o *model.Order) *model.Notification {
	return &model.Notification{
		Kind:      KindPaymentConfirmation,
		Recipient: o.ContactEmail,
		Subject:   "Payment received for order " + o.Number,
		Body:      render(KindPaymentConfirmation, map[string]any{"Order": o}),
	}
}
