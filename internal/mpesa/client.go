// Package mpesa предоставляет клиент Safaricom Daraja API для STK push платежей.
package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// ErrNotConfigured возвращается, если клиент M-Pesa не настроен.
var ErrNotConfigured = errors.New("mpesa client not configured")

// Config содержит учётные данные и параметры магазина в Daraja.
type Config struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	Passkey        string
	CallbackURL    string
	Timeout        time.Duration
}

// Client инкапсулирует HTTP-взаимодействие с Daraja API.
type Client struct {
	cfg Config
	// retrying используется для идемпотентных запросов: токен и статус платежа.
	retrying *retryablehttp.Client
	// plain используется для STK push, повтор которого может выставить клиенту второй счёт.
	plain *http.Client
	now   func() time.Time
}

// ProviderError описывает ошибку, которую вернул Daraja.
type ProviderError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("mpesa error %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("mpesa error (status %d): %s", e.StatusCode, e.Message)
}

// NewClient создаёт клиент Daraja API с указанными параметрами.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = nil
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.CheckRetry = checkRetry
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		cfg:      cfg,
		retrying: rc,
		plain:    &http.Client{Timeout: cfg.Timeout},
		now:      time.Now,
	}
}

// checkRetry не повторяет ответы 500: так Daraja сообщает о незавершённом платеже.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if err == nil && resp != nil && resp.StatusCode == http.StatusInternalServerError {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

type errorResponse struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// accessToken получает токен доступа по схеме client credentials.
// Токен не кешируется: каждый платёж проходит авторизацию заново.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	if c == nil || c.cfg.BaseURL == "" || c.cfg.ConsumerKey == "" {
		return "", ErrNotConfigured
	}

	url := c.cfg.BaseURL + "/oauth/v1/generate?grant_type=client_credentials"
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}

	credentials := base64.StdEncoding.EncodeToString([]byte(c.cfg.ConsumerKey + ":" + c.cfg.ConsumerSecret))
	req.Header.Set("Authorization", "Basic "+credentials)

	resp, err := c.retrying.Do(req)
	if err != nil {
		return "", fmt.Errorf("do token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", decodeError(resp)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", &ProviderError{StatusCode: resp.StatusCode, Message: "empty access token"}
	}

	return tr.AccessToken, nil
}

// password формирует пароль запроса: base64(shortcode + passkey + timestamp).
func (c *Client) password(timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(c.cfg.ShortCode + c.cfg.Passkey + timestamp))
}

func (c *Client) timestamp() string {
	return c.now().Format("20060102150405")
}

func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.ErrorMessage != "" {
		return &ProviderError{StatusCode: resp.StatusCode, Code: er.ErrorCode, Message: er.ErrorMessage}
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &ProviderError{StatusCode: resp.StatusCode, Message: msg}
}

func (c *Client) newJSONRequest(ctx context.Context, path, token string, payload any) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	return req, nil
}
