package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/shopspring/decimal"
)

// MidtransGateway implements PaymentGateway on top of the Midtrans Core API.
// Midtrans settles transactions server-side, so confirm is a status check
// (settlement/capture means approved) and cancel maps to a refund.
type MidtransGateway struct {
	core coreapi.Client
}

func NewMidtransGateway() *MidtransGateway {
	serverKey := os.Getenv("MIDTRANS_SERVER_KEY")
	envStr := os.Getenv("MIDTRANS_IS_PRODUCTION")

	env := midtrans.Sandbox
	if envStr == "true" {
		env = midtrans.Production
	}

	var c coreapi.Client
	c.New(serverKey, env)

	return &MidtransGateway{core: c}
}

func (g *MidtransGateway) Name() string {
	return "midtrans"
}

func (g *MidtransGateway) Confirm(ctx context.Context, paymentKey, orderID string, amount decimal.Decimal) (*GatewayConfirmation, error) {
	resp, err := g.core.CheckTransaction(orderID)
	if err != nil {
		return nil, &GatewayError{Gateway: g.Name(), Err: err}
	}

	raw, _ := json.Marshal(resp)

	if resp.TransactionStatus != "settlement" && resp.TransactionStatus != "capture" {
		return nil, &GatewayError{Gateway: g.Name(), Body: raw, Err: fmt.Errorf("transaction not settled, status %q", resp.TransactionStatus)}
	}

	// Re-verify the settled amount against what we expect
	if resp.GrossAmount != "" {
		settled, perr := decimal.NewFromString(resp.GrossAmount)
		if perr != nil || !settled.Equal(amount) {
			return nil, &GatewayError{Gateway: g.Name(), Body: raw, Err: fmt.Errorf("settled amount %s does not match requested %s", resp.GrossAmount, amount)}
		}
	}

	approvedAt, perr := time.Parse("2006-01-02 15:04:05", resp.TransactionTime)
	if perr != nil {
		approvedAt = time.Now()
	}

	key := resp.TransactionID
	if key == "" {
		key = paymentKey
	}

	return &GatewayConfirmation{
		PaymentKey: key,
		Method:     resp.PaymentType,
		ApprovedAt: approvedAt,
		Raw:        raw,
	}, nil
}

func (g *MidtransGateway) Cancel(ctx context.Context, paymentKey string, amount decimal.Decimal, reason string) (*GatewayCancellation, error) {
	resp, err := g.core.RefundTransaction(paymentKey, &coreapi.RefundReq{
		Amount: amount.IntPart(),
		Reason: reason,
	})
	if err != nil {
		return nil, &GatewayError{Gateway: g.Name(), Err: err}
	}

	raw, _ := json.Marshal(resp)
	return &GatewayCancellation{Status: resp.TransactionStatus, Raw: raw}, nil
}
