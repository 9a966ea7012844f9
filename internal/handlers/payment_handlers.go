package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"payment_app_echo/internal/services"
)

type PaymentHandler struct {
	payments *services.PaymentService
	logger   *zap.Logger
}

func NewPaymentHandler(payments *services.PaymentService, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{payments: payments, logger: logger}
}

// RegisterRoutes mounts the payment endpoints on the Echo instance
func (h *PaymentHandler) RegisterRoutes(e *echo.Echo) {
	api := e.Group("/api/payments")
	api.POST("/request", h.RequestPayment)
	api.POST("/confirm", h.ConfirmPayment)
	api.GET("", h.ListPayments)
	api.GET("/:orderId", h.GetPayment)

	admin := e.Group("/admin/payments")
	admin.POST("/:orderId/cancel", h.CancelPayment)
}

// RequestPayment registers a new payment in PENDING state
func (h *PaymentHandler) RequestPayment(c echo.Context) error {
	var req CreatePaymentRequest
	if err := c.Bind(&req); err != nil {
		return services.NewPaymentError(services.CodeInvalidRequest, "invalid request body")
	}

	summary, err := h.payments.CreatePayment(c.Request().Context(), services.CreatePaymentInput{
		OrderID:       req.OrderID,
		UserID:        req.UserID,
		Amount:        req.Amount,
		OrderName:     req.OrderName,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		CustomerPhone: req.CustomerPhone,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, OKWithMessage(summary, "payment request created"))
}

// ConfirmPayment settles a PENDING payment with the gateway
func (h *PaymentHandler) ConfirmPayment(c echo.Context) error {
	var req ConfirmPaymentRequest
	if err := c.Bind(&req); err != nil {
		return services.NewPaymentError(services.CodeInvalidRequest, "invalid request body")
	}
	if strings.TrimSpace(req.PaymentKey) == "" || strings.TrimSpace(req.OrderID) == "" {
		return services.NewPaymentError(services.CodeInvalidRequest, "paymentKey and orderId are required")
	}

	result, err := h.payments.ConfirmPayment(c.Request().Context(), req.OrderID, req.PaymentKey, req.Amount)
	if err != nil {
		return err
	}
	if !result.Success {
		return c.JSON(http.StatusBadGateway, ApiResponse{
			Success:   false,
			Data:      result,
			Message:   result.Message,
			ErrorCode: services.CodeGatewayError,
		})
	}

	return c.JSON(http.StatusOK, OKWithMessage(result, result.Message))
}

// ListPayments returns the payment history of one user, newest first
func (h *PaymentHandler) ListPayments(c echo.Context) error {
	userIDStr := c.QueryParam("user_id")
	userID, err := strconv.ParseUint(userIDStr, 10, 32)
	if err != nil || userID == 0 {
		return services.NewPaymentError(services.CodeInvalidRequest, "a valid user_id query parameter is required")
	}

	list, err := h.payments.GetHistory(c.Request().Context(), uint(userID))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, OK(list))
}

// GetPayment returns the full record for one order
func (h *PaymentHandler) GetPayment(c echo.Context) error {
	orderID := c.Param("orderId")

	detail, err := h.payments.GetDetail(c.Request().Context(), orderID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, OK(detail))
}

// CancelPayment refunds a COMPLETED payment, fully or partially
func (h *PaymentHandler) CancelPayment(c echo.Context) error {
	orderID := c.Param("orderId")

	var req CancelPaymentRequest
	if err := c.Bind(&req); err != nil {
		return services.NewPaymentError(services.CodeInvalidRequest, "invalid request body")
	}
	if strings.TrimSpace(req.CancelReason) == "" {
		return services.NewPaymentError(services.CodeInvalidRequest, "cancelReason is required")
	}

	result, err := h.payments.CancelPayment(c.Request().Context(), orderID, req.CancelReason, req.CancelAmount)
	if err != nil {
		return err
	}
	if !result.Success {
		return c.JSON(http.StatusBadGateway, ApiResponse{
			Success:   false,
			Data:      result,
			Message:   result.Message,
			ErrorCode: services.CodeGatewayError,
		})
	}

	return c.JSON(http.StatusOK, OKWithMessage(result, result.Message))
}
