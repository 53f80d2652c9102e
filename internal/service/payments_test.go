package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/hireme/internal/model"
	"github.com/mmeshcher/hireme/internal/mpesa"
	"github.com/mmeshcher/hireme/internal/notify"
)

func successCallback(checkoutID, receipt string) mpesa.Callback {
	return mpesa.Callback{
		MerchantRequestID: "29115-34620561-1",
		CheckoutRequestID: checkoutID,
		ResultCode:        json.Number("0"),
		ResultDesc:        "The service request is processed successfully.",
		Metadata: mpesa.CallbackMetadata{Items: []mpesa.CallbackItem{
			{Name: "Amount", Value: 5000.0},
			{Name: "MpesaReceiptNumber", Value: receipt},
			{Name: "PhoneNumber", Value: 254712345678.0},
		}},
	}
}

func failedCallback(checkoutID, code string) mpesa.Callback {
	return mpesa.Callback{
		CheckoutRequestID: checkoutID,
		ResultCode:        json.Number(code),
		ResultDesc:        "Request cancelled by user",
	}
}

// initiate создаёт заказ на 5000 KES и отправляет по нему STK push.
func (f *fixture) initiate(t *testing.T) (int64, *model.Order, *PaymentInitiation) {
	t.Helper()

	userID, o := f.placeOrder(t, "payer@example.com", model.ToCents(5000))
	push, err := f.svc.InitiatePayment(context.Background(), userID, PaymentInput{
		PhoneNumber: "0712345678",
		Amount:      5000,
		OrderID:     o.ID,
	})
	require.NoError(t, err)
	return userID, o, push
}

func TestInitiatePayment_AmountMismatch(t *testing.T) {
	f := newFixture(t)
	userID, o := f.placeOrder(t, "payer@example.com", model.ToCents(5001))

	_, err := f.svc.InitiatePayment(context.Background(), userID, PaymentInput{PhoneNumber: "0712345678", Amount: 5000, OrderID: o.ID})
	assert.ErrorIs(t, err, ErrAmountMismatch)
	assert.Zero(t, f.provider.pushCalls)
}

func TestInitiatePayment_AmountWithinTolerance(t *testing.T) {
	f := newFixture(t)
	userID, o := f.placeOrder(t, "payer@example.com", model.ToCents(5000))

	_, err := f.svc.InitiatePayment(context.Background(), userID, PaymentInput{PhoneNumber: "0712345678", Amount: 5000.005, OrderID: o.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, f.provider.pushCalls)
}

func TestInitiatePayment_InvalidPhone(t *testing.T) {
	f := newFixture(t)
	userID, o := f.placeOrder(t, "payer@example.com", model.ToCents(5000))

	_, err := f.svc.InitiatePayment(context.Background(), userID, PaymentInput{PhoneNumber: "12345", Amount: 5000, OrderID: o.ID})
	assert.ErrorIs(t, err, ErrInvalidPhone)
	assert.Zero(t, f.provider.pushCalls)
}

func TestInitiatePayment_NotOwner(t *testing.T) {
	f := newFixture(t)
	_, o := f.placeOrder(t, "payer@example.com", model.ToCents(5000))
	other := f.addVerifiedUser(t, "other@example.com", "secret123")

	_, err := f.svc.InitiatePayment(context.Background(), other, PaymentInput{PhoneNumber: "0712345678", Amount: 5000, OrderID: o.ID})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, f.provider.pushCalls)
}

func TestInitiatePayment_ProviderError(t *testing.T) {
	f := newFixture(t)
	userID, o := f.placeOrder(t, "payer@example.com", model.ToCents(5000))
	f.provider.pushErr = &mpesa.ProviderError{StatusCode: 400, Code: "400.002.02", Message: "Bad Request - Invalid PhoneNumber"}

	_, err := f.svc.InitiatePayment(context.Background(), userID, PaymentInput{PhoneNumber: "0712345678", Amount: 5000, OrderID: o.ID})

	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, ErrPaymentProvider)
	assert.Equal(t, "Bad Request - Invalid PhoneNumber", perr.Message)

	stored := f.repo.order(o.ID)
	assert.Nil(t, stored.PaymentReference)
	assert.Nil(t, stored.CheckoutRequestID)
	assert.Equal(t, model.PaymentStatusPending, stored.PaymentStatus)

	// После сбоя провайдера оплату можно повторить.
	f.provider.pushErr = nil
	_, err = f.svc.InitiatePayment(context.Background(), userID, PaymentInput{PhoneNumber: "0712345678", Amount: 5000, OrderID: o.ID})
	require.NoError(t, err)
}

func TestInitiatePayment_ProviderNotConfigured(t *testing.T) {
	f := newFixture(t)
	f.svc.payments = nil
	userID, o := f.placeOrder(t, "payer@example.com", model.ToCents(5000))

	_, err := f.svc.InitiatePayment(context.Background(), userID, PaymentInput{PhoneNumber: "0712345678", Amount: 5000, OrderID: o.ID})
	assert.ErrorIs(t, err, ErrPaymentProvider)
}

func TestInitiatePayment_Success(t *testing.T) {
	f := newFixture(t)
	_, o, push := f.initiate(t)

	assert.Equal(t, "ws_CO_"+o.Number, push.CheckoutRequestID)
	assert.Equal(t, "254712345678", f.provider.lastPhone)
	assert.Equal(t, int64(5000), f.provider.lastAmt)

	stored := f.repo.order(o.ID)
	require.NotNil(t, stored.PaymentReference)
	assert.Equal(t, push.CheckoutRequestID, *stored.PaymentReference)
	require.NotNil(t, stored.CheckoutRequestID)
	assert.Equal(t, push.CheckoutRequestID, *stored.CheckoutRequestID)
	assert.Equal(t, model.PaymentStatusPending, stored.PaymentStatus)
}

func TestHandleCallback_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, o, push := f.initiate(t)

	res, applied, err := f.svc.HandleCallback(ctx, successCallback(push.CheckoutRequestID, "NLJ7RT61SV"))
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, model.PaymentStatusCompleted, res.Status)

	stored := f.repo.order(o.ID)
	assert.Equal(t, model.PaymentStatusCompleted, stored.PaymentStatus)
	require.NotNil(t, stored.PaymentReference)
	assert.Equal(t, "NLJ7RT61SV", *stored.PaymentReference)
	assert.Len(t, f.repo.notifications(notify.KindPaymentConfirmation), 1)

	// Повторная доставка того же callback ничего не меняет.
	_, applied, err = f.svc.HandleCallback(ctx, successCallback(push.CheckoutRequestID, "NLJ7RT61SV"))
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Len(t, f.repo.notifications(notify.KindPaymentConfirmation), 1)

	// Поздний неуспешный результат не откатывает оплату.
	_, applied, err = f.svc.HandleCallback(ctx, failedCallback(push.CheckoutRequestID, "1"))
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, model.PaymentStatusCompleted, f.repo.order(o.ID).PaymentStatus)
}

func TestHandleCallback_UnknownReference(t *testing.T) {
	f := newFixture(t)

	_, applied, err := f.svc.HandleCallback(context.Background(), successCallback("ws_CO_unknown", "NLJ7RT61SV"))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, applied)

	_, _, err = f.svc.HandleCallback(context.Background(), successCallback(" ", "NLJ7RT61SV"))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestHandleCallback_CancelledByUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID, o, push := f.initiate(t)

	res, applied, err := f.svc.HandleCallback(ctx, failedCallback(push.CheckoutRequestID, mpesa.ResultCodeCancelledUser))
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, model.PaymentStatusCancelled, res.Status)
	assert.Equal(t, model.PaymentStatusCancelled, f.repo.order(o.ID).PaymentStatus)
	assert.Empty(t, f.repo.notifications(notify.KindPaymentConfirmation))

	calls := f.provider.pushCalls
	_, err = f.svc.InitiatePayment(ctx, userID, PaymentInput{PhoneNumber: "0712345678", Amount: 5000, OrderID: o.ID})
	assert.ErrorIs(t, err, ErrPaymentNotPending)
	assert.Equal(t, calls, f.provider.pushCalls)
}

func TestHandleCallback_SupersededCheckoutIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.provider.checkout = "ws_CO_A"
	userID, o, first := f.initiate(t)
	require.Equal(t, "ws_CO_A", first.CheckoutRequestID)

	// Клиент не ответил на первый запрос и запросил оплату повторно.
	f.provider.checkout = "ws_CO_B"
	second, err := f.svc.InitiatePayment(ctx, userID, PaymentInput{PhoneNumber: "0712345678", Amount: 5000, OrderID: o.ID})
	require.NoError(t, err)
	require.Equal(t, "ws_CO_B", second.CheckoutRequestID)

	_, applied, err := f.svc.HandleCallback(ctx, failedCallback("ws_CO_A", "1"))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, applied)
	assert.Equal(t, model.PaymentStatusPending, f.repo.order(o.ID).PaymentStatus)

	_, err = f.svc.PollPayment(ctx, userID, "ws_CO_A")
	assert.ErrorIs(t, err, ErrNotFound)

	_, applied, err = f.svc.HandleCallback(ctx, successCallback("ws_CO_B", "NLJ7RT61SV"))
	require.NoError(t, err)
	assert.True(t, applied)
	stored := f.repo.order(o.ID)
	assert.Equal(t, model.PaymentStatusCompleted, stored.PaymentStatus)
	require.NotNil(t, stored.PaymentReference)
	assert.Equal(t, "NLJ7RT61SV", *stored.PaymentReference)
}

func TestPollPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID, o, push := f.initiate(t)

	f.provider.queryCode = mpesa.ResultCodeProcessing
	st, err := f.svc.PollPayment(ctx, userID, push.CheckoutRequestID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPending, st.Status)
	assert.Equal(t, model.PaymentStatusPending, f.repo.order(o.ID).PaymentStatus)

	// Неуспешный результат опроса не сохраняется: решает callback.
	f.provider.queryCode = "1037"
	st, err = f.svc.PollPayment(ctx, userID, push.CheckoutRequestID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusFailed, st.Status)
	assert.Equal(t, model.PaymentStatusPending, f.repo.order(o.ID).PaymentStatus)

	f.provider.queryCode = mpesa.ResultCodeSuccess
	st, err = f.svc.PollPayment(ctx, userID, push.CheckoutRequestID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusCompleted, st.Status)
	assert.Equal(t, model.PaymentStatusCompleted, f.repo.order(o.ID).PaymentStatus)
	assert.Len(t, f.repo.notifications(notify.KindPaymentConfirmation), 1)

	// Callback после опроса дописывает номер квитанции.
	_, applied, err := f.svc.HandleCallback(ctx, successCallback(push.CheckoutRequestID, "NLJ7RT61SV"))
	require.NoError(t, err)
	assert.False(t, applied)
	stored := f.repo.order(o.ID)
	require.NotNil(t, stored.PaymentReference)
	assert.Equal(t, "NLJ7RT61SV", *stored.PaymentReference)
	assert.Len(t, f.repo.notifications(notify.KindPaymentConfirmation), 1)

	// Для завершённой оплаты провайдер больше не опрашивается.
	f.provider.queryErr = errors.New("must not be called")
	st, err = f.svc.PollPayment(ctx, userID, push.CheckoutRequestID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusCompleted, st.Status)
}

func TestPollPayment_OtherUser(t *testing.T) {
	f := newFixture(t)
	_, _, push := f.initiate(t)
	other := f.addVerifiedUser(t, "other@example.com", "secret123")

	_, err := f.svc.PollPayment(context.Background(), other, push.CheckoutRequestID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.PollPayment(context.Background(), other, "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestPollPayment_ProviderError(t *testing.T) {
	f := newFixture(t)
	userID, o, push := f.initiate(t)
	f.provider.queryErr = context.DeadlineExceeded

	_, err := f.svc.PollPayment(context.Background(), userID, push.CheckoutRequestID)
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Message, "timed out")
	assert.Equal(t, model.PaymentStatusPending, f.repo.order(o.ID).PaymentStatus)
}

func TestPollAndCallback_Converge(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t)
		ctx := context.Background()
		userID, o, push := f.initiate(t)
		f.provider.queryCode = mpesa.ResultCodeSuccess

		var (
			wg     sync.WaitGroup
			polled *PaymentStatusResult
			perr   error
			cbErr  error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			polled, perr = f.svc.PollPayment(ctx, userID, push.CheckoutRequestID)
		}()
		go func() {
			defer wg.Done()
			_, _, cbErr = f.svc.HandleCallback(ctx, successCallback(push.CheckoutRequestID, "NLJ7RT61SV"))
		}()
		wg.Wait()

		require.NoError(t, perr)
		require.NoError(t, cbErr)
		assert.Equal(t, model.PaymentStatusCompleted, polled.Status)

		stored := f.repo.order(o.ID)
		assert.Equal(t, model.PaymentStatusCompleted, stored.PaymentStatus)
		require.NotNil(t, stored.PaymentReference)
		assert.Equal(t, "NLJ7RT61SV", *stored.PaymentReference)
		assert.Len(t, f.repo.notifications(notify.KindPaymentConfirmation), 1)
	}
}
