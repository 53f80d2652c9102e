package mpesa

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mmeshcher/hireme/internal/model"
)

// Коды результата STK push.
const (
	ResultCodeSuccess       = "0"
	ResultCodeCancelledUser = "1032"
)

// CallbackEnvelope — тело webhook-запроса Daraja с результатом STK push.
type CallbackEnvelope struct {
	Body struct {
		STKCallback Callback `json:"stkCallback"`
	} `json:"Body"`
}

// Callback описывает результат платежа из webhook-запроса.
type Callback struct {
	MerchantRequestID string           `json:"MerchantRequestID"`
	CheckoutRequestID string           `json:"CheckoutRequestID"`
	ResultCode        json.Number      `json:"ResultCode"`
	ResultDesc        string           `json:"ResultDesc"`
	Metadata          CallbackMetadata `json:"CallbackMetadata"`
}

// CallbackMetadata содержит подробности успешного платежа.
type CallbackMetadata struct {
	Items []CallbackItem `json:"Item"`
}

// CallbackItem — пара имя/значение из метаданных callback.
type CallbackItem struct {
	Name  string `json:"Name"`
	Value any    `json:"Value,omitempty"`
}

// Value возвращает строковое значение элемента метаданных по имени.
func (m CallbackMetadata) Value(name string) string {
	for _, item := range m.Items {
		if item.Name != name || item.Value == nil {
			continue
		}
		switch v := item.Value.(type) {
		case string:
			return v
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		default:
			return fmt.Sprint(v)
		}
	}
	return ""
}

// Receipt возвращает номер квитанции M-Pesa.
func (c Callback) Receipt() string {
	return c.Metadata.Value("MpesaReceiptNumber")
}

// StatusFromResultCode отображает код результата Daraja в статус оплаты заказа.
func StatusFromResultCode(code string) model.PaymentStatus {
	switch code {
	case ResultCodeSuccess:
		return model.PaymentStatusCompleted
	case ResultCodeCancelledUser:
		return model.PaymentStatusCancelled
	case "", ResultCodeProcessing:
		return model.PaymentStatusPending
	default:
		return model.PaymentStatusFailed
	}
}

// Result переводит callback в доменный результат платежа.
func (c Callback) Result() model.PaymentResult {
	code := c.ResultCode.String()
	status := StatusFromResultCode(code)
	// Callback всегда финальный: пустой код означает сбой у провайдера.
	if status == model.PaymentStatusPending {
		status = model.PaymentStatusFailed
	}

	res := model.PaymentResult{
		CheckoutRequestID: c.CheckoutRequestID,
		Status:            status,
		ResultCode:        code,
		ResultDesc:        c.ResultDesc,
	}
	if status == model.PaymentStatusCompleted {
		res.Receipt = c.Receipt()
	}
	return res
}

// Result переводит ответ на запрос статуса в доменный результат платежа.
func (q QueryResponse) Result() model.PaymentResult {
	return model.PaymentResult{
		CheckoutRequestID: q.CheckoutRequestID,
		Status:            StatusFromResultCode(q.ResultCode),
		ResultCode:        q.ResultCode,
		ResultDesc:        q.ResultDesc,
	}
}
