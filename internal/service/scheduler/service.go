// Package scheduler runs the recurring billing and statistics jobs.
package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/aimd54/sistema-donaciones/internal/config"
	"github.com/aimd54/sistema-donaciones/internal/mattermost"
	prommetrics "github.com/aimd54/sistema-donaciones/internal/metrics"
	"github.com/aimd54/sistema-donaciones/internal/models"
	"github.com/aimd54/sistema-donaciones/internal/service/subscriptions"
	"github.com/aimd54/sistema-donaciones/pkg/logger"
)

// Job names reported in metrics.
const (
	JobBilling    = "billing"
	JobReminders  = "reminders"
	JobMonthStats = "monthly_statistics"
)

const defaultMonthlyStatsCron = "0 1 1 * *"

// Billing is the subscription engine.
type Billing interface {
	ProcessDueCharges(ctx context.Context, now time.Time) (*subscriptions.BillingReport, error)
	SendReminders(ctx context.Context, now time.Time, daysAhead int) (int, error)
}

// Statistics generates monthly snapshots.
type Statistics interface {
	GeneratePreviousMonth(ctx context.Context, now time.Time) (*models.MonthlyStatistic, error)
}

// CampaignLookup resolves campaign names for summaries.
type CampaignLookup interface {
	GetByID(id uint) (*models.Campaign, error)
}

// Notifier posts job summaries to the operations channel.
type Notifier interface {
	SendBillingSummary(s mattermost.BillingSummary) error
	SendMonthlyStatistics(stat *models.MonthlyStatistic, topCampaign string) error
}

// Settings reads configuration values.
type Settings interface {
	GetNumber(ctx context.Context, key string, def float64) float64
}

// Service handles job scheduling.
type Service struct {
	config    *config.SchedulerConfig
	billing   Billing
	stats     Statistics
	campaigns CampaignLookup
	notifier  Notifier
	settings  Settings
	now       func() time.Time
	log       *logger.Logger
	cron      *cron.Cron
}

// NewService creates a new scheduler service.
func NewService(
	cfg *config.SchedulerConfig,
	billing Billing,
	stats Statistics,
	campaigns CampaignLookup,
	notifier Notifier,
	settings Settings,
	log *logger.Logger,
) *Service {
	return &Service{
		config:    cfg,
		billing:   billing,
		stats:     stats,
		campaigns: campaigns,
		notifier:  notifier,
		settings:  settings,
		now:       time.Now,
		log:       log,
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Service) Start() error {
	if !s.config.Enabled {
		s.log.Info().Msg("Scheduler is disabled in configuration")
		return nil
	}

	location, err := time.LoadLocation(s.config.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", s.config.Timezone, err)
	}

	billingExpr, err := buildDailyExpression(s.config.BillingTime)
	if err != nil {
		return fmt.Errorf("failed to build billing schedule: %w", err)
	}
	statsExpr := s.config.MonthlyStatsCron
	if statsExpr == "" {
		statsExpr = defaultMonthlyStatsCron
	}

	s.cron = cron.New(cron.WithLocation(location))

	if _, err := s.cron.AddFunc(billingExpr, func() {
		ctx := context.Background()
		if _, err := s.RunBilling(ctx); err == nil {
			s.RunReminders(ctx)
		}
	}); err != nil {
		return fmt.Errorf("failed to register billing job: %w", err)
	}

	if _, err := s.cron.AddFunc(statsExpr, func() {
		_, _ = s.RunMonthlyStatistics(context.Background())
	}); err != nil {
		return fmt.Errorf("failed to register monthly statistics job: %w", err)
	}

	s.cron.Start()

	nextRun := ""
	if entries := s.cron.Entries(); len(entries) > 0 {
		nextRun = entries[0].Next.Format(time.RFC3339)
	}

	s.log.Info().
		Str("billing_schedule", billingExpr).
		Str("statistics_schedule", statsExpr).
		Str("timezone", s.config.Timezone).
		Str("next_run", nextRun).
		Msg("Scheduler started successfully")

	return nil
}

// Stop waits for running jobs and shuts the scheduler down.
func (s *Service) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.log.Info().Msg("Scheduler stopped")
	}
}

// buildDailyExpression turns an HH:MM time into a daily cron expression.
func buildDailyExpression(hhmm string) (string, error) {
	parts := strings.Split(hhmm, ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid time format %q, expected HH:MM", hhmm)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("invalid hour %q", parts[0])
	}

	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid minute %q", parts[1])
	}

	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}

// RunBilling charges every due subscription and posts the summary.
func (s *Service) RunBilling(ctx context.Context) (*subscriptions.BillingReport, error) {
	start := time.Now()
	defer observe(JobBilling, start)

	s.log.Info().Msg("Running daily billing job")

	report, err := s.billing.ProcessDueCharges(ctx, s.now())
	if err != nil {
		s.log.Error().Err(err).Dur("duration", time.Since(start)).Msg("Billing job failed")
		prommetrics.RecordSchedulerJobRun(JobBilling, "error")
		return nil, err
	}
	prommetrics.RecordSchedulerJobRun(JobBilling, "success")

	if err := s.notifier.SendBillingSummary(billingSummary(report)); err != nil {
		s.log.Warn().Err(err).Msg("Failed to post billing summary")
	}

	s.log.Info().
		Int("processed", report.Processed).
		Int("charged", report.Charged).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Dur("duration", time.Since(start)).
		Msg("Billing job completed")

	return report, nil
}

// RunReminders mails owners whose subscriptions are charged in the configured number of days.
func (s *Service) RunReminders(ctx context.Context) int {
	start := time.Now()
	defer observe(JobReminders, start)

	days := int(s.settings.GetNumber(ctx, models.ConfigKeyReminderDays, float64(s.config.ReminderDays)))
	sent, err := s.billing.SendReminders(ctx, s.now(), days)
	if err != nil {
		s.log.Error().Err(err).Int("days_ahead", days).Msg("Reminder job failed")
		prommetrics.RecordSchedulerJobRun(JobReminders, "error")
		return 0
	}
	prommetrics.RecordSchedulerJobRun(JobReminders, "success")

	s.log.Info().Int("sent", sent).Int("days_ahead", days).Msg("Reminder job completed")
	return sent
}

// RunMonthlyStatistics stores the snapshot of the previous month and posts it.
func (s *Service) RunMonthlyStatistics(ctx context.Context) (*models.MonthlyStatistic, error) {
	start := time.Now()
	defer observe(JobMonthStats, start)

	s.log.Info().Msg("Running monthly statistics job")

	stat, err := s.stats.GeneratePreviousMonth(ctx, s.now())
	if err != nil {
		s.log.Error().Err(err).Msg("Monthly statistics job failed")
		prommetrics.RecordSchedulerJobRun(JobMonthStats, "error")
		return nil, err
	}
	prommetrics.RecordSchedulerJobRun(JobMonthStats, "success")

	if err := s.notifier.SendMonthlyStatistics(stat, s.campaignName(stat.TopCampaignID)); err != nil {
		s.log.Warn().Err(err).Msg("Failed to post monthly statistics")
	}
	return stat, nil
}

func observe(job string, start time.Time) {
	prommetrics.ObserveSchedulerJobDuration(job, time.Since(start).Seconds())
	prommetrics.SetSchedulerLastRun(job)
}
