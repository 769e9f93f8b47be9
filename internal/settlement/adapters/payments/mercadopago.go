package payments

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/payment"
	"github.com/shopspring/decimal"

	"marketplace-settlement/internal/kernel"
	settlement "marketplace-settlement/internal/settlement/domain"
)

// ErrMissingAccessToken is returned when live mode has no access token.
var ErrMissingAccessToken = errors.New("payments: missing mercado pago access token")

const statusApproved = "approved"

// PaymentGetter is the part of the Mercado Pago payment client used here.
type PaymentGetter interface {
	Get(ctx context.Context, id int) (*payment.Response, error)
}

// MercadoPagoVerifier checks webhook payments against Mercado Pago.
type MercadoPagoVerifier struct {
	client   PaymentGetter
	mockMode bool
	logger   *log.Logger
}

// NewMercadoPagoVerifier constructs a verifier. Mock mode accepts every
// payment without calling the gateway.
func NewMercadoPagoVerifier(accessToken string, mockMode bool, logger *log.Logger) (*MercadoPagoVerifier, error) {
	if logger == nil {
		logger = log.Default()
	}
	if mockMode {
		logger.Printf("payment verifier: mock mode enabled")
		return &MercadoPagoVerifier{mockMode: true, logger: logger}, nil
	}
	if strings.TrimSpace(accessToken) == "" {
		return nil, ErrMissingAccessToken
	}
	cfg, err := config.New(accessToken)
	if err != nil {
		return nil, err
	}
	return &MercadoPagoVerifier{client: payment.NewClient(cfg), logger: logger}, nil
}

// NewVerifierWithClient wraps an existing payment client.
func NewVerifierWithClient(client PaymentGetter, logger *log.Logger) *MercadoPagoVerifier {
	if logger == nil {
		logger = log.Default()
	}
	return &MercadoPagoVerifier{client: client, logger: logger}
}

// Verify confirms the gateway payment is approved and, when amount is
// positive, that it charged exactly amount.
func (v *MercadoPagoVerifier) Verify(ctx context.Context, gatewayTxnID string, amount decimal.Decimal) error {
	if v == nil {
		return errors.New("payments: nil verifier")
	}
	if v.mockMode {
		return nil
	}
	if v.client == nil {
		return errors.New("payments: gateway not configured")
	}
	id, err := strconv.Atoi(strings.TrimSpace(gatewayTxnID))
	if err != nil {
		return fmt.Errorf("payments: gateway id %q: %w", gatewayTxnID, settlement.ErrPaymentMismatch)
	}
	resp, err := v.client.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("payments: fetch %d: %w", id, err)
	}
	if resp == nil {
		return fmt.Errorf("payments: payment %d: %w", id, kernel.ErrNotFound)
	}
	if resp.Status != statusApproved {
		return fmt.Errorf("payments: payment %d is %s: %w", id, resp.Status, settlement.ErrPaymentMismatch)
	}
	charged := kernel.Cents(decimal.NewFromFloat(resp.TransactionAmount))
	if amount.IsPositive() && !charged.Equal(kernel.Cents(amount)) {
		return fmt.Errorf("payments: payment %d charged %s, webhook says %s: %w", id, charged, amount, settlement.ErrPaymentMismatch)
	}
	v.logger.Printf("payment verified: gateway_id=%d amount=%s", id, charged)
	return nil
}
