// Package mattermost provides webhook client for sending operations notifications to Mattermost.
package mattermost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/aimd54/sistema-donaciones/internal/config"
	"github.com/aimd54/sistema-donaciones/internal/models"
	"github.com/aimd54/sistema-donaciones/pkg/logger"
)

const botUsername = "Donaciones Bot"

// Client handles Mattermost webhook notifications.
type Client struct {
	webhookURL string
	channel    string
	enabled    bool
	httpClient *http.Client
	log        *logger.Logger
}

// NewClient creates a new Mattermost client.
func NewClient(cfg *config.MattermostConfig, log *logger.Logger) *Client {
	return &Client{
		webhookURL: cfg.WebhookURL,
		channel:    cfg.Channel,
		enabled:    cfg.Enabled,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        log,
	}
}

// Message represents a Mattermost message payload.
type Message struct {
	Channel     string       `json:"channel,omitempty"`
	Username    string       `json:"username,omitempty"`
	Text        string       `json:"text,omitempty"`
	IconURL     string       `json:"icon_url,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment represents a message attachment.
type Attachment struct {
	Fallback string  `json:"fallback,omitempty"`
	Color    string  `json:"color,omitempty"`
	Pretext  string  `json:"pretext,omitempty"`
	Title    string  `json:"title,omitempty"`
	Text     string  `json:"text,omitempty"`
	Fields   []Field `json:"fields,omitempty"`
	Footer   string  `json:"footer,omitempty"`
}

// Field represents a message field.
type Field struct {
	Short bool   `json:"short"`
	Title string `json:"title"`
	Value string `json:"value"`
}

// SendMessage sends a message to Mattermost.
func (c *Client) SendMessage(msg *Message) error {
	if !c.enabled {
		c.log.Debug().Msg("Mattermost is disabled, skipping message")
		return nil
	}

	if msg.Channel == "" {
		msg.Channel = c.channel
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message to Mattermost: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("mattermost returned status %d", resp.StatusCode)
	}

	c.log.Debug().
		Str("channel", msg.Channel).
		Msg("Sent message to Mattermost")

	return nil
}

// SendSimpleMessage sends a simple text message.
func (c *Client) SendSimpleMessage(text string) error {
	return c.SendMessage(&Message{
		Username: botUsername,
		Text:     text,
	})
}

// BillingSummary is the outcome of one billing run.
type BillingSummary struct {
	RunAt     time.Time
	Processed int
	Charged   int
	Skipped   int
	Failed    int
}

// SendBillingSummary posts the result of the daily billing job.
func (c *Client) SendBillingSummary(s BillingSummary) error {
	if s.Processed == 0 {
		c.log.Debug().Msg("No subscriptions were due, skipping billing summary")
		return nil
	}

	color := "#2e7d32"
	if s.Failed > 0 {
		color = "#c62828"
	} else if s.Skipped > 0 {
		color = "#f9a825"
	}

	return c.SendMessage(&Message{
		Username: botUsername,
		Text:     fmt.Sprintf("### Cobro de suscripciones %s", s.RunAt.Format("2006-01-02")),
		Attachments: []Attachment{{
			Fallback: fmt.Sprintf("%d procesadas, %d cobradas, %d omitidas, %d fallidas", s.Processed, s.Charged, s.Skipped, s.Failed),
			Color:    color,
			Fields: []Field{
				{Short: true, Title: "Procesadas", Value: fmt.Sprintf("%d", s.Processed)},
				{Short: true, Title: "Cobradas", Value: fmt.Sprintf("%d", s.Charged)},
				{Short: true, Title: "Omitidas", Value: fmt.Sprintf("%d", s.Skipped)},
				{Short: true, Title: "Fallidas", Value: fmt.Sprintf("%d", s.Failed)},
			},
		}},
	})
}

// SendMonthlyStatistics posts a generated monthly snapshot.
func (c *Client) SendMonthlyStatistics(stat *models.MonthlyStatistic, topCampaign string) error {
	if topCampaign == "" {
		topCampaign = "-"
	}

	return c.SendMessage(&Message{
		Username: botUsername,
		Text:     fmt.Sprintf("### Estadísticas de %02d/%d", stat.Month, stat.Year),
		Attachments: []Attachment{{
			Color: "#1565c0",
			Fields: []Field{
				{Short: true, Title: "Total recaudado", Value: "$" + stat.TotalAmount.StringFixed(2)},
				{Short: true, Title: "Donaciones", Value: fmt.Sprintf("%d", stat.DonationCount)},
				{Short: true, Title: "Donantes únicos", Value: fmt.Sprintf("%d", stat.UniqueDonors)},
				{Short: true, Title: "Nuevos donantes", Value: fmt.Sprintf("%d", stat.NewDonors)},
				{Short: true, Title: "Suscripciones nuevas", Value: fmt.Sprintf("%d", stat.NewSubscriptions)},
				{Short: true, Title: "Suscripciones canceladas", Value: fmt.Sprintf("%d", stat.CancelledSubscriptions)},
				{Short: true, Title: "Monto promedio", Value: "$" + stat.AverageAmount.StringFixed(2)},
				{Short: true, Title: "Campaña principal", Value: topCampaign},
			},
		}},
	})
}
