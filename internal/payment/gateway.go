// Package payment talks to the external payment gateway: it opens gateway
// orders at checkout and authenticates the gateway's payment callbacks.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// Gateway opens a payable order with the payment processor.
type Gateway interface {
	CreateOrder(ctx context.Context, receipt string, amount decimal.Decimal, currency string) (string, error)
}

// NewGateway picks an implementation by name.
func NewGateway(kind, baseURL, keyID, keySecret string) (Gateway, error) {
	switch strings.ToLower(kind) {
	case "razorpay":
		if keyID == "" || keySecret == "" {
			return nil, errors.New("razorpay gateway needs PAYMENT_KEY_ID and PAYMENT_KEY_SECRET")
		}
		return NewRazorpay(baseURL, keyID, keySecret), nil
	case "", "sandbox":
		return NewSandbox(keySecret), nil
	default:
		return nil, errors.Errorf("unknown payment gateway %q", kind)
	}
}

// Razorpay is a minimal client for the Razorpay orders API.
type Razorpay struct {
	baseURL   string
	keyID     string
	keySecret string
	client    *http.Client
}

func NewRazorpay(baseURL, keyID, keySecret string) *Razorpay {
	if baseURL == "" {
		baseURL = "https://api.razorpay.com"
	}
	return &Razorpay{
		baseURL:   strings.TrimRight(baseURL, "/"),
		keyID:     keyID,
		keySecret: keySecret,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

type razorpayOrderRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

type razorpayOrderResponse struct {
	ID    string `json:"id"`
	Error *struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error,omitempty"`
}

// CreateOrder posts to /v1/orders. The amount is sent in minor units.
func (r *Razorpay) CreateOrder(ctx context.Context, receipt string, amount decimal.Decimal, currency string) (string, error) {
	body, err := json.Marshal(razorpayOrderRequest{
		Amount:   MinorUnits(amount),
		Currency: currency,
		Receipt:  receipt,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(r.keyID, r.keySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "razorpay: create order")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", errors.Wrap(err, "razorpay: read response")
	}

	var out razorpayOrderResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", errors.Wrapf(err, "razorpay: decode response (status %d)", resp.StatusCode)
	}
	if resp.StatusCode >= 300 || out.ID == "" {
		if out.Error != nil {
			return "", errors.Errorf("razorpay: %s: %s", out.Error.Code, out.Error.Description)
		}
		return "", errors.Errorf("razorpay: unexpected status %d", resp.StatusCode)
	}

	log.WithFields(log.Fields{"receipt": receipt, "gateway_order_id": out.ID}).Debug("gateway order created")
	return out.ID, nil
}

// Sandbox is an offline gateway for local runs and tests. It signs payments
// with the same scheme the verifier checks.
type Sandbox struct {
	secret []byte
}

func NewSandbox(secret string) *Sandbox {
	return &Sandbox{secret: []byte(secret)}
}

func (s *Sandbox) CreateOrder(_ context.Context, receipt string, amount decimal.Decimal, _ string) (string, error) {
	if amount.IsNegative() {
		return "", errors.Errorf("sandbox: negative amount for %s", receipt)
	}
	return fmt.Sprintf("order_%s", uuid.NewString()), nil
}

// Pay simulates a successful payment and returns the payment id and signature
// the gateway would post back.
func (s *Sandbox) Pay(gatewayOrderID string) (paymentID, signature string) {
	paymentID = fmt.Sprintf("pay_%s", uuid.NewString())
	return paymentID, Sign(s.secret, gatewayOrderID, paymentID)
}

// Decline simulates a declined attempt and returns the payment id and
// signature the gateway posts with its failure report.
func (s *Sandbox) Decline(gatewayOrderID string) (paymentID, signature string) {
	paymentID = fmt.Sprintf("pay_%s", uuid.NewString())
	return paymentID, Sign(s.secret, gatewayOrderID, paymentID)
}

// MinorUnits converts an amount to the smallest currency unit.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
