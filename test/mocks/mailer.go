package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/aimd54/sistema-donaciones/internal/models"
)

// SentMail records one templated mail.
type SentMail struct {
	Template string
	To       string
	Token    string
	Data     any
}

// MockMailer records templated mails instead of sending them.
// Fail makes every helper report a delivery failure.
type MockMailer struct {
	mu   sync.Mutex
	Sent []SentMail
	Fail bool
}

func (m *MockMailer) record(template, to string, data any) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail {
		return false
	}
	m.Sent = append(m.Sent, SentMail{Template: template, To: to, Data: data})
	return true
}

// Count returns how many mails of a template were sent.
func (m *MockMailer) Count(template string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.Sent {
		if s.Template == template {
			n++
		}
	}
	return n
}

// Last returns the last mail of a template.
func (m *MockMailer) Last(template string) (SentMail, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.Sent) - 1; i >= 0; i-- {
		if m.Sent[i].Template == template {
			return m.Sent[i], true
		}
	}
	return SentMail{}, false
}

func (m *MockMailer) Welcome(_ context.Context, user *models.User) bool {
	return m.record("welcome", user.Email, user)
}

func (m *MockMailer) DonationConfirmation(_ context.Context, to, _ string, donation *models.Donation, _ string) bool {
	return m.record("donation_confirmation", to, donation)
}

func (m *MockMailer) PasswordReset(_ context.Context, user *models.User, token string, _ time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail {
		return false
	}
	m.Sent = append(m.Sent, SentMail{Template: "password_reset", To: user.Email, Token: token})
	return true
}

func (m *MockMailer) SubscriptionReminder(_ context.Context, user *models.User, sub *models.Subscription, _ string) bool {
	return m.record("subscription_reminder", user.Email, sub)
}

func (m *MockMailer) MonthlySummary(_ context.Context, user *models.User, _ string, donations []models.Donation) bool {
	return m.record("monthly_summary", user.Email, donations)
}

func (m *MockMailer) CampaignUpdate(_ context.Context, user *models.User, campaign *models.Campaign, _, _ string) bool {
	return m.record("campaign_update", user.Email, campaign)
}

func (m *MockMailer) ReceiptDelivery(_ context.Context, to string, receipt *models.Receipt, _ []byte) bool {
	return m.record("receipt_delivery", to, receipt)
}

func (m *MockMailer) InvoiceDelivery(_ context.Context, to string, invoice *models.Invoice, _ []byte) bool {
	return m.record("invoice_delivery", to, invoice)
}

func (m *MockMailer) RewardAssigned(_ context.Context, user *models.User, reward *models.Reward, code string) bool {
	return m.record("reward_assigned", user.Email, code)
}
