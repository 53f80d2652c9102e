package handler

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/mmeshcher/hireme/internal/metrics"
	"github.com/mmeshcher/hireme/internal/model"
	"github.com/mmeshcher/hireme/internal/mpesa"
	"github.com/mmeshcher/hireme/internal/service"
)

type stkPushResponse struct {
	CheckoutRequestID string `json:"checkoutRequestId"`
	MerchantRequestID string `json:"merchantRequestId"`
	CustomerMessage   string `json:"customerMessage"`
}

// STKPush отправляет запрос оплаты заказа на телефон клиента.
func (h *Handler) STKPush(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req service.PaymentInput
	if !decodeOrReject(w, r, &req) {
		return
	}

	res, err := h.service.InitiatePayment(r.Context(), userID, req)
	if err != nil {
		h.writeError(w, err, "stk push", zap.Int64("userID", userID), zap.Int64("orderID", req.OrderID))
		return
	}

	h.logger.Info("stk push accepted",
		zap.Int64("orderID", req.OrderID),
		zap.String("checkoutRequestID", res.CheckoutRequestID),
	)
	writeJSON(w, http.StatusOK, stkPushResponse{
		CheckoutRequestID: res.CheckoutRequestID,
		MerchantRequestID: res.MerchantRequestID,
		CustomerMessage:   res.CustomerMessage,
	})
}

type callbackAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

var accepted = callbackAck{ResultCode: 0, ResultDesc: "Accepted"}

// MpesaCallback принимает результат платежа от Daraja. Ответ всегда 200:
// ошибки обработки логируются и не возвращаются провайдеру.
func (h *Handler) MpesaCallback(w http.ResponseWriter, r *http.Request) {
	defer writeJSON(w, http.StatusOK, accepted)

	if want := h.opts.CallbackToken; want != "" {
		got := r.URL.Query().Get("token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			metrics.CallbacksTotal.WithLabelValues("rejected").Inc()
			h.logger.Warn("mpesa callback with invalid token", zap.String("remote", r.RemoteAddr))
			return
		}
	}

	var env mpesa.CallbackEnvelope
	if err := decodeJSON(w, r, &env); err != nil {
		metrics.CallbacksTotal.WithLabelValues("malformed").Inc()
		h.logger.Warn("malformed mpesa callback", zap.Error(err))
		return
	}

	cb := env.Body.STKCallback
	res, applied, err := h.service.HandleCallback(r.Context(), cb)
	fields := []zap.Field{
		zap.String("checkoutRequestID", cb.CheckoutRequestID),
		zap.String("resultCode", res.ResultCode),
		zap.String("status", string(res.Status)),
	}

	switch {
	case errors.Is(err, service.ErrNotFound) && res.Status == model.PaymentStatusCompleted:
		// Деньги списаны, а заказа для сверки нет.
		metrics.CallbacksTotal.WithLabelValues("unknown").Inc()
		h.logger.Error("paid mpesa callback for unknown checkout request", append(fields,
			zap.String("receipt", res.Receipt),
			zap.String("amount", cb.Metadata.Value("Amount")),
			zap.String("phone", cb.Metadata.Value("PhoneNumber")),
		)...)
	case errors.Is(err, service.ErrNotFound):
		metrics.CallbacksTotal.WithLabelValues("unknown").Inc()
		h.logger.Warn("mpesa callback for unknown checkout request", fields...)
	case errors.Is(err, service.ErrValidation):
		metrics.CallbacksTotal.WithLabelValues("malformed").Inc()
		h.logger.Warn("mpesa callback without checkout request id", append(fields, zap.Error(err))...)
	case err != nil:
		metrics.CallbacksTotal.WithLabelValues("error").Inc()
		h.logger.Error("mpesa callback processing failed", append(fields, zap.Error(err))...)
	case applied:
		metrics.CallbacksTotal.WithLabelValues("applied").Inc()
		h.logger.Info("mpesa payment result applied", append(fields, zap.String("receipt", res.Receipt))...)
	default:
		metrics.CallbacksTotal.WithLabelValues("duplicate").Inc()
		h.logger.Info("mpesa callback ignored, payment already final", fields...)
	}
}

type queryRequest struct {
	CheckoutRequestID string `json:"checkoutRequestId"`
}

type queryResponse struct {
	Status            string `json:"status"`
	ResultCode        string `json:"resultCode"`
	ResultDescription string `json:"resultDescription"`
}

// QueryPayment запрашивает у провайдера статус платежа текущего пользователя.
func (h *Handler) QueryPayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req queryRequest
	if !decodeOrReject(w, r, &req) {
		return
	}

	st, err := h.service.PollPayment(r.Context(), userID, req.CheckoutRequestID)
	if err != nil {
		h.writeError(w, err, "query payment", zap.Int64("userID", userID), zap.String("checkoutRequestID", req.CheckoutRequestID))
		return
	}

	writeJSON(w, http.StatusOK, queryResponse{
		Status:            string(st.Status),
		ResultCode:        st.ResultCode,
		ResultDescription: st.ResultDesc,
	})
}
