// Package payment integrates the Midtrans Snap checkout and its payment notifications.
package payment

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	midtrans "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/snap"

	"github.com/aimd54/sistema-donaciones/internal/apperr"
	"github.com/aimd54/sistema-donaciones/internal/config"
	"github.com/aimd54/sistema-donaciones/internal/models"
	"github.com/aimd54/sistema-donaciones/pkg/logger"
)

const (
	orderPrefix = "DON-"
	maxItemName = 50
)

// Checkout is the Snap session a donor is redirected to.
type Checkout struct {
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
	OrderID     string `json:"order_id"`
}

// Customer identifies the payer in the checkout page.
type Customer struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
}

// Notification is the HTTP notification Midtrans posts after a status change.
type Notification struct {
	TransactionTime   string `json:"transaction_time"`
	TransactionStatus string `json:"transaction_status"`
	TransactionID     string `json:"transaction_id"`
	StatusCode        string `json:"status_code"`
	SignatureKey      string `json:"signature_key"`
	OrderID           string `json:"order_id"`
	GrossAmount       string `json:"gross_amount"`
	PaymentType       string `json:"payment_type"`
	FraudStatus       string `json:"fraud_status"`
}

// SnapClient is the subset of snap.Client used by the gateway.
type SnapClient interface {
	CreateTransaction(req *snap.Request) (*snap.Response, *midtrans.Error)
}

// Gateway creates checkout sessions and validates notifications.
type Gateway struct {
	enabled   bool
	serverKey string
	client    SnapClient
	log       *logger.Logger
}

// NewGateway creates a Gateway backed by the Snap API.
func NewGateway(cfg *config.PaymentsConfig, log *logger.Logger) *Gateway {
	var client snap.Client
	env := midtrans.Sandbox
	if cfg.Production {
		env = midtrans.Production
	}
	client.New(cfg.MidtransServerKey, env)

	return NewGatewayWithClient(cfg, &client, log)
}

// NewGatewayWithClient creates a Gateway with a custom Snap client (useful for testing).
func NewGatewayWithClient(cfg *config.PaymentsConfig, client SnapClient, log *logger.Logger) *Gateway {
	return &Gateway{
		enabled:   cfg.Enabled,
		serverKey: cfg.MidtransServerKey,
		client:    client,
		log:       log,
	}
}

// Enabled reports whether online payments are configured.
func (g *Gateway) Enabled() bool {
	return g.enabled
}

// OrderID returns the gateway order id of a donation.
func OrderID(donationID uint) string {
	return orderPrefix + strconv.FormatUint(uint64(donationID), 10)
}

// ParseOrderID extracts the donation id from a gateway order id.
func ParseOrderID(orderID string) (uint, error) {
	raw, ok := strings.CutPrefix(orderID, orderPrefix)
	if !ok {
		return 0, fmt.Errorf("unknown order id %q", orderID)
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("unknown order id %q", orderID)
	}
	return uint(id), nil
}

// CreateCheckout opens a Snap session for a pending donation.
func (g *Gateway) CreateCheckout(_ context.Context, donation *models.Donation, customer Customer) (*Checkout, error) {
	if !g.enabled {
		return nil, apperr.BadRequest("online payments are disabled")
	}
	if donation.State != models.DonationPending {
		return nil, apperr.BadRequest("donation is not pending")
	}

	// Snap amounts carry no decimals; charging a rounded figure would
	// disagree with the ledger, points and campaign totals.
	if !donation.Amount.IsInteger() {
		return nil, apperr.BadRequest("online payments require a whole amount, got %s", donation.Amount.String())
	}

	orderID := OrderID(donation.ID)
	gross := donation.Amount.IntPart()
	name := "Donación"
	if donation.Campaign != nil {
		name = donation.Campaign.Name
	}
	name = truncateRunes(name, maxItemName)

	req := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  orderID,
			GrossAmt: gross,
		},
		CreditCard: &snap.CreditCardDetails{Secure: true},
		Items: &[]midtrans.ItemDetails{
			{ID: orderID, Price: gross, Qty: 1, Name: name, Category: "Donacion"},
		},
	}
	if customer.Email != "" {
		req.CustomerDetail = &midtrans.CustomerDetails{
			FName: customer.FirstName,
			LName: customer.LastName,
			Email: customer.Email,
			Phone: customer.Phone,
		}
	}

	resp, mErr := g.client.CreateTransaction(req)
	if mErr != nil {
		g.log.Error().
			Str("order_id", orderID).
			Str("error", mErr.Message).
			Msg("Failed to create Snap transaction")
		return nil, fmt.Errorf("failed to create checkout for %s: %s", orderID, mErr.Message)
	}

	g.log.Info().
		Str("order_id", orderID).
		Int64("gross_amount", gross).
		Msg("Checkout created")

	return &Checkout{Token: resp.Token, RedirectURL: resp.RedirectURL, OrderID: orderID}, nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// VerifySignature checks SHA512(order_id + status_code + gross_amount + server_key).
func (g *Gateway) VerifySignature(n *Notification) bool {
	if n.SignatureKey == "" || g.serverKey == "" {
		return false
	}
	return strings.EqualFold(Signature(n.OrderID, n.StatusCode, n.GrossAmount, g.serverKey), n.SignatureKey)
}

// Signature computes the notification signature key.
func Signature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

// MapStatus maps a Midtrans transaction status to a donation state.
// ok is false when the notification does not change the donation. A capture
// only completes when the fraud check accepted it.
func MapStatus(transactionStatus, fraudStatus string) (state models.DonationState, ok bool) {
	switch strings.ToLower(transactionStatus) {
	case "settlement":
		return models.DonationCompleted, true
	case "capture":
		switch strings.ToLower(fraudStatus) {
		case "accept":
			return models.DonationCompleted, true
		case "challenge":
			return "", false
		}
		return models.DonationFailed, true
	case "deny", "cancel", "expire", "failure":
		return models.DonationFailed, true
	case "refund", "partial_refund":
		return models.DonationRefunded, true
	}
	return "", false
}
