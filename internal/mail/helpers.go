package mail

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aimd54/sistema-donaciones/internal/models"
)

func formatAmount(amount decimal.Decimal, currency string) string {
	if currency == "" {
		currency = models.DefaultCurrency
	}
	return "$" + amount.StringFixed(2) + " " + currency
}

// Welcome greets a newly registered user.
func (d *Dispatcher) Welcome(ctx context.Context, user *models.User) bool {
	return d.deliver(ctx, "welcome", user.Email,
		"Bienvenido a "+d.organization,
		map[string]any{"Name": user.FirstName},
	)
}

// DonationConfirmation confirms a completed donation.
func (d *Dispatcher) DonationConfirmation(ctx context.Context, to, name string, donation *models.Donation, campaign string) bool {
	if name == "" {
		name = "donante"
	}
	return d.deliver(ctx, "donation_confirmation", to,
		"Gracias por tu donación",
		map[string]any{
			"Name":      name,
			"Amount":    formatAmount(donation.Amount, donation.Currency),
			"Campaign":  campaign,
			"Points":    donation.PointsAwarded,
			"Reference": donation.PaymentReference,
		},
	)
}

// PasswordReset sends the password reset link.
func (d *Dispatcher) PasswordReset(ctx context.Context, user *models.User, token string, ttl time.Duration) bool {
	link := strings.TrimRight(d.frontendURL, "/") + "/reset-password?token=" + token
	return d.deliver(ctx, "password_reset", user.Email,
		"Restablecer contraseña",
		map[string]any{"Name": user.FirstName, "Link": link, "ExpiresIn": ttl.String()},
	)
}

// SubscriptionReminder announces an upcoming recurring charge.
func (d *Dispatcher) SubscriptionReminder(ctx context.Context, user *models.User, sub *models.Subscription, campaign string) bool {
	return d.deliver(ctx, "subscription_reminder", user.Email,
		"Recordatorio de tu donación recurrente",
		map[string]any{
			"Name":      user.FirstName,
			"Date":      sub.NextChargeDate.Format("02/01/2006"),
			"Frequency": strings.ToLower(string(sub.Frequency)),
			"Amount":    formatAmount(sub.Amount, models.DefaultCurrency),
			"Campaign":  campaign,
		},
	)
}

type summaryLine struct {
	Date     string
	Campaign string
	Amount   string
}

// MonthlySummary lists the donations a user made in a period.
func (d *Dispatcher) MonthlySummary(ctx context.Context, user *models.User, period string, donations []models.Donation) bool {
	lines := make([]summaryLine, 0, len(donations))
	total := decimal.Zero
	for _, dn := range donations {
		campaign := "Donación general"
		if dn.Campaign != nil {
			campaign = dn.Campaign.Name
		}
		lines = append(lines, summaryLine{
			Date:     dn.DonatedAt.Format("02/01/2006"),
			Campaign: campaign,
			Amount:   formatAmount(dn.Amount, dn.Currency),
		})
		total = total.Add(dn.Amount)
	}

	return d.deliver(ctx, "monthly_summary", user.Email,
		"Resumen de donaciones de "+period,
		map[string]any{
			"Name":   user.FirstName,
			"Period": period,
			"Lines":  lines,
			"Total":  formatAmount(total, models.DefaultCurrency),
		},
	)
}

// CampaignUpdate tells a follower about news in a campaign.
func (d *Dispatcher) CampaignUpdate(ctx context.Context, user *models.User, campaign *models.Campaign, title, message string) bool {
	return d.deliver(ctx, "campaign_update", user.Email,
		fmt.Sprintf("Novedades de %s", campaign.Name),
		map[string]any{
			"Name":     user.FirstName,
			"Campaign": campaign.Name,
			"Title":    title,
			"Message":  message,
		},
	)
}

// ReceiptDelivery sends a receipt with its PDF attached.
func (d *Dispatcher) ReceiptDelivery(ctx context.Context, to string, receipt *models.Receipt, pdf []byte) bool {
	amount := ""
	if receipt.Donation != nil {
		amount = formatAmount(receipt.Donation.Amount, receipt.Donation.Currency)
	}
	return d.deliver(ctx, "receipt_delivery", to,
		"Comprobante de donación "+receipt.Code,
		map[string]any{"Code": receipt.Code, "Amount": amount},
		Attachment{Filename: receipt.Code + ".pdf", ContentType: "application/pdf", Data: pdf},
	)
}

// InvoiceDelivery sends an invoice with its PDF attached.
func (d *Dispatcher) InvoiceDelivery(ctx context.Context, to string, invoice *models.Invoice, pdf []byte) bool {
	return d.deliver(ctx, "invoice_delivery", to,
		"Factura "+invoice.Number,
		map[string]any{"Number": invoice.Number, "Total": formatAmount(invoice.Total, models.DefaultCurrency)},
		Attachment{Filename: invoice.Number + ".pdf", ContentType: "application/pdf", Data: pdf},
	)
}

// RewardAssigned tells a user about a newly assigned reward.
func (d *Dispatcher) RewardAssigned(ctx context.Context, user *models.User, reward *models.Reward, code string) bool {
	return d.deliver(ctx, "reward_assigned", user.Email,
		"¡Obtuviste una recompensa!",
		map[string]any{"Name": user.FirstName, "Reward": reward.Name, "Code": code},
	)
}
