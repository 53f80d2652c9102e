package mpesa

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	stkPushPath  = "/mpesa/stkpush/v1/processrequest"
	stkQueryPath = "/mpesa/stkpushquery/v1/query"

	// ResultCodeProcessing — код ошибки запроса статуса, пока клиент не подтвердил платёж.
	ResultCodeProcessing = "500.001.1001"
)

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

// STKPushResponse описывает ответ Daraja на инициацию STK push.
type STKPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// RequestPayment инициирует запрос оплаты на телефон клиента.
// amount передаётся в целых шиллингах, phone — в формате 2547XXXXXXXX.
func (c *Client) RequestPayment(ctx context.Context, phone string, amount int64, reference, description string) (*STKPushResponse, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	ts := c.timestamp()
	payload := stkPushRequest{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          c.password(ts),
		Timestamp:         ts,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            amount,
		PartyA:            phone,
		PartyB:            c.cfg.ShortCode,
		PhoneNumber:       phone,
		CallBackURL:       c.cfg.CallbackURL,
		AccountReference:  reference,
		TransactionDesc:   description,
	}

	req, err := c.newJSONRequest(ctx, stkPushPath, token, payload)
	if err != nil {
		return nil, err
	}

	resp, err := c.plain.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do stk push request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	var result STKPushResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode stk push response: %w", err)
	}

	if result.ResponseCode != "0" || result.CheckoutRequestID == "" {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Code: result.ResponseCode, Message: result.ResponseDescription}
	}

	return &result, nil
}

type stkQueryRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

// QueryResponse описывает ответ Daraja на запрос статуса STK push.
type QueryResponse struct {
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResultCode          string `json:"ResultCode"`
	ResultDesc          string `json:"ResultDesc"`
}

// QueryPayment запрашивает текущий статус ранее инициированного платежа.
// Пока клиент не ответил на запрос, Daraja возвращает ошибку 500.001.1001;
// она преобразуется в ответ с ResultCode = ResultCodeProcessing.
func (c *Client) QueryPayment(ctx context.Context, checkoutRequestID string) (*QueryResponse, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	ts := c.timestamp()
	payload := stkQueryRequest{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          c.password(ts),
		Timestamp:         ts,
		CheckoutRequestID: checkoutRequestID,
	}

	httpReq, err := c.newJSONRequest(ctx, stkQueryPath, token, payload)
	if err != nil {
		return nil, err
	}
	req, err := retryablehttp.FromRequest(httpReq)
	if err != nil {
		return nil, fmt.Errorf("wrap query request: %w", err)
	}

	resp, err := c.retrying.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do stk query request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := decodeError(resp)
		if pe, ok := err.(*ProviderError); ok && pe.Code == ResultCodeProcessing {
			return &QueryResponse{
				CheckoutRequestID: checkoutRequestID,
				ResultCode:        ResultCodeProcessing,
				ResultDesc:        pe.Message,
			}, nil
		}
		return nil, err
	}

	var result QueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode stk query response: %w", err)
	}

	return &result, nil
}
