package handlers

import "github.com/shopspring/decimal"

// ApiResponse is the envelope every JSON endpoint returns
type ApiResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Message   string      `json:"message,omitempty"`
	ErrorCode string      `json:"errorCode,omitempty"`
}

// OK wraps data in a success envelope
func OK(data interface{}) ApiResponse {
	return ApiResponse{Success: true, Data: data}
}

// OKWithMessage wraps data in a success envelope with a message
func OKWithMessage(data interface{}, message string) ApiResponse {
	return ApiResponse{Success: true, Data: data, Message: message}
}

// CreatePaymentRequest is the body of POST /api/payments/request. OrderID is
// optional; one is generated when absent.
type CreatePaymentRequest struct {
	OrderID       string          `json:"orderId"`
	UserID        uint            `json:"userId"`
	Amount        decimal.Decimal `json:"amount"`
	OrderName     string          `json:"orderName"`
	CustomerName  string          `json:"customerName"`
	CustomerEmail string          `json:"customerEmail"`
	CustomerPhone string          `json:"customerPhone"`
}

// ConfirmPaymentRequest is the body of POST /api/payments/confirm
type ConfirmPaymentRequest struct {
	PaymentKey string          `json:"paymentKey"`
	OrderID    string          `json:"orderId"`
	Amount     decimal.Decimal `json:"amount"`
}

// CancelPaymentRequest is the body of POST /admin/payments/:orderId/cancel.
// A nil CancelAmount means a full cancellation.
type CancelPaymentRequest struct {
	CancelReason string           `json:"cancelReason"`
	CancelAmount *decimal.Decimal `json:"cancelAmount"`
}
