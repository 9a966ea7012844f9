package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// TossService calls the Toss Payments REST API. Confirmation and cancellation
// use a bounded timeout; a timeout is surfaced as a *GatewayError like any
// other gateway failure, never retried here.
type TossService struct {
	baseURL   string
	secretKey string
	client    *http.Client
}

func NewTossService() *TossService {
	url := os.Getenv("TOSS_BASE_URL")
	if url == "" {
		url = "https://api.tosspayments.com"
	}

	timeout := 10 * time.Second
	if v := os.Getenv("TOSS_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			timeout = time.Duration(n) * time.Second
		}
	}

	return &TossService{
		baseURL:   url,
		secretKey: os.Getenv("TOSS_SECRET_KEY"),
		client:    &http.Client{Timeout: timeout},
	}
}

func (s *TossService) Name() string {
	return "toss"
}

// authorization builds the Basic auth header; Toss uses the secret key as
// username with an empty password.
func (s *TossService) authorization() string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(s.secretKey+":"))
}

func (s *TossService) makeRequest(ctx context.Context, method, endpoint string, payload interface{}) (json.RawMessage, error) {
	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
		bodyReader = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, fmt.Sprintf("%s%s", s.baseURL, endpoint), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", s.authorization())

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &GatewayError{Gateway: s.Name(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &GatewayError{Gateway: s.Name(), StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode >= 400 {
		return nil, &GatewayError{Gateway: s.Name(), StatusCode: resp.StatusCode, Body: body}
	}

	return body, nil
}

type tossConfirmRequest struct {
	PaymentKey string      `json:"paymentKey"`
	OrderID    string      `json:"orderId"`
	Amount     json.Number `json:"amount"`
}

type tossCancelRequest struct {
	CancelReason string      `json:"cancelReason"`
	CancelAmount json.Number `json:"cancelAmount"`
}

// tossPayment is the subset of the payment object we validate; the full body
// is stored raw.
type tossPayment struct {
	PaymentKey  string      `json:"paymentKey"`
	OrderID     string      `json:"orderId"`
	Status      string      `json:"status"`
	TotalAmount json.Number `json:"totalAmount"`
	Method      string      `json:"method"`
	ApprovedAt  string      `json:"approvedAt"`
}

// Confirm calls POST /v1/payments/confirm and validates the response: the
// payment must be DONE and the settled amount must equal what we sent.
func (s *TossService) Confirm(ctx context.Context, paymentKey, orderID string, amount decimal.Decimal) (*GatewayConfirmation, error) {
	body, err := s.makeRequest(ctx, http.MethodPost, "/v1/payments/confirm", tossConfirmRequest{
		PaymentKey: paymentKey,
		OrderID:    orderID,
		Amount:     json.Number(amount.String()),
	})
	if err != nil {
		return nil, err
	}

	var payment tossPayment
	if err := json.Unmarshal(body, &payment); err != nil {
		return nil, &GatewayError{Gateway: s.Name(), Body: body, Err: fmt.Errorf("failed to decode confirm response: %w", err)}
	}

	if payment.Status != "DONE" {
		return nil, &GatewayError{Gateway: s.Name(), Body: body, Err: fmt.Errorf("unexpected payment status %q", payment.Status)}
	}

	// Re-verify the settled amount against what we requested
	if payment.TotalAmount != "" {
		settled, err := decimal.NewFromString(payment.TotalAmount.String())
		if err != nil || !settled.Equal(amount) {
			return nil, &GatewayError{Gateway: s.Name(), Body: body, Err: fmt.Errorf("settled amount %s does not match requested %s", payment.TotalAmount, amount)}
		}
	}

	approvedAt, err := time.Parse(time.RFC3339, payment.ApprovedAt)
	if err != nil {
		approvedAt = time.Now()
	}

	return &GatewayConfirmation{
		PaymentKey: payment.PaymentKey,
		Method:     payment.Method,
		ApprovedAt: approvedAt,
		Raw:        body,
	}, nil
}

// Cancel calls POST /v1/payments/{paymentKey}/cancel with the refund amount
// and reason. Partial refunds pass the partial amount.
func (s *TossService) Cancel(ctx context.Context, paymentKey string, amount decimal.Decimal, reason string) (*GatewayCancellation, error) {
	body, err := s.makeRequest(ctx, http.MethodPost, fmt.Sprintf("/v1/payments/%s/cancel", paymentKey), tossCancelRequest{
		CancelReason: reason,
		CancelAmount: json.Number(amount.String()),
	})
	if err != nil {
		return nil, err
	}

	var payment tossPayment
	if err := json.Unmarshal(body, &payment); err != nil {
		return nil, &GatewayError{Gateway: s.Name(), Body: body, Err: fmt.Errorf("failed to decode cancel response: %w", err)}
	}

	return &GatewayCancellation{Status: payment.Status, Raw: body}, nil
}
