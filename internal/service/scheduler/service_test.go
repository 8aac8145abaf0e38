package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/aimd54/sistema-donaciones/internal/apperr"
	"github.com/aimd54/sistema-donaciones/internal/config"
	"github.com/aimd54/sistema-donaciones/internal/mattermost"
	prommetrics "github.com/aimd54/sistema-donaciones/internal/metrics"
	"github.com/aimd54/sistema-donaciones/internal/models"
	"github.com/aimd54/sistema-donaciones/internal/service/subscriptions"
	"github.com/aimd54/sistema-donaciones/pkg/logger"
	"github.com/aimd54/sistema-donaciones/test/mocks"
)

type fakeBilling struct {
	report      *subscriptions.BillingReport
	err         error
	reminderDay int
	reminderAt  time.Time
}

func (f *fakeBilling) ProcessDueCharges(_ context.Context, now time.Time) (*subscriptions.BillingReport, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.report.RunAt = now
	return f.report, nil
}

func (f *fakeBilling) SendReminders(_ context.Context, now time.Time, daysAhead int) (int, error) {
	f.reminderAt = now
	f.reminderDay = daysAhead
	return 2, nil
}

type fakeStats struct {
	stat *models.MonthlyStatistic
	err  error
}

func (f *fakeStats) GeneratePreviousMonth(context.Context, time.Time) (*models.MonthlyStatistic, error) {
	return f.stat, f.err
}

type fakeCampaigns struct{}

func (fakeCampaigns) GetByID(id uint) (*models.Campaign, error) {
	if id == 7 {
		return &models.Campaign{ID: 7, Name: "Agua limpia"}, nil
	}
	return nil, apperr.NotFound("campaign %d not found", id)
}

type recordingNotifier struct {
	billing []mattermost.BillingSummary
	stats   []string
	err     error
}

func (r *recordingNotifier) SendBillingSummary(s mattermost.BillingSummary) error {
	r.billing = append(r.billing, s)
	return r.err
}

func (r *recordingNotifier) SendMonthlyStatistics(_ *models.MonthlyStatistic, topCampaign string) error {
	r.stats = append(r.stats, topCampaign)
	return r.err
}

func newTestService(billing *fakeBilling, stats *fakeStats, notifier *recordingNotifier, settings *mocks.MockSettings) *Service {
	cfg := &config.SchedulerConfig{Enabled: true, BillingTime: "06:00", ReminderDays: 3, Timezone: "UTC"}
	s := NewService(cfg, billing, stats, fakeCampaigns{}, notifier, settings, logger.Nop())
	s.now = func() time.Time { return time.Date(2024, 3, 10, 6, 0, 0, 0, time.UTC) }
	return s
}

func TestBuildDailyExpression(t *testing.T) {
	tests := []struct {
		name    string
		time    string
		want    string
		wantErr bool
	}{
		{name: "daily at 6am", time: "06:00", want: "0 6 * * *"},
		{name: "daily at 14:30", time: "14:30", want: "30 14 * * *"},
		{name: "invalid format no colon", time: "0600", wantErr: true},
		{name: "invalid hour", time: "25:00", wantErr: true},
		{name: "invalid minute", time: "09:60", wantErr: true},
		{name: "empty", time: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildDailyExpression(tt.time)

			if (err != nil) != tt.wantErr {
				t.Errorf("buildDailyExpression() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if got != tt.want {
				t.Errorf("buildDailyExpression() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRunBilling(t *testing.T) {
	billing := &fakeBilling{report: &subscriptions.BillingReport{Processed: 3, Charged: 2, Skipped: 1}}
	notifier := &recordingNotifier{}
	s := newTestService(billing, &fakeStats{}, notifier, &mocks.MockSettings{})

	before := testutil.ToFloat64(prommetrics.SchedulerJobRunsTotal.WithLabelValues(JobBilling, "success"))

	report, err := s.RunBilling(context.Background())
	if err != nil {
		t.Fatalf("RunBilling() failed: %v", err)
	}
	if report.Charged != 2 {
		t.Errorf("Expected 2 charged, got %d", report.Charged)
	}
	if len(notifier.billing) != 1 {
		t.Fatalf("Expected one billing summary, got %d", len(notifier.billing))
	}
	if notifier.billing[0].Skipped != 1 || !notifier.billing[0].RunAt.Equal(s.now()) {
		t.Errorf("Unexpected billing summary %+v", notifier.billing[0])
	}

	after := testutil.ToFloat64(prommetrics.SchedulerJobRunsTotal.WithLabelValues(JobBilling, "success"))
	if after-before != 1 {
		t.Errorf("Expected success run to be recorded once, got %v", after-before)
	}
}

func TestRunBilling_FailureSkipsSummary(t *testing.T) {
	billing := &fakeBilling{err: errors.New("database down")}
	notifier := &recordingNotifier{}
	s := newTestService(billing, &fakeStats{}, notifier, &mocks.MockSettings{})

	if _, err := s.RunBilling(context.Background()); err == nil {
		t.Fatal("Expected RunBilling() to fail")
	}
	if len(notifier.billing) != 0 {
		t.Errorf("Expected no summary on failure, got %d", len(notifier.billing))
	}
}

func TestRunBilling_SummaryFailureIsTolerated(t *testing.T) {
	billing := &fakeBilling{report: &subscriptions.BillingReport{Processed: 1, Charged: 1}}
	notifier := &recordingNotifier{err: errors.New("webhook down")}
	s := newTestService(billing, &fakeStats{}, notifier, &mocks.MockSettings{})

	if _, err := s.RunBilling(context.Background()); err != nil {
		t.Fatalf("Expected webhook failure to be ignored, got %v", err)
	}
}

func TestRunReminders_UsesConfiguredDays(t *testing.T) {
	billing := &fakeBilling{report: &subscriptions.BillingReport{}}

	s := newTestService(billing, &fakeStats{}, &recordingNotifier{}, &mocks.MockSettings{})
	if sent := s.RunReminders(context.Background()); sent != 2 {
		t.Errorf("Expected 2 reminders, got %d", sent)
	}
	if billing.reminderDay != 3 {
		t.Errorf("Expected default of 3 days, got %d", billing.reminderDay)
	}

	settings := &mocks.MockSettings{Values: map[string]string{models.ConfigKeyReminderDays: "5"}}
	s = newTestService(billing, &fakeStats{}, &recordingNotifier{}, settings)
	s.RunReminders(context.Background())
	if billing.reminderDay != 5 {
		t.Errorf("Expected configuration value of 5 days, got %d", billing.reminderDay)
	}
}

func TestRunMonthlyStatistics(t *testing.T) {
	top := uint(7)
	stats := &fakeStats{stat: &models.MonthlyStatistic{Year: 2024, Month: 2, TopCampaignID: &top}}
	notifier := &recordingNotifier{}
	s := newTestService(&fakeBilling{}, stats, notifier, &mocks.MockSettings{})

	stat, err := s.RunMonthlyStatistics(context.Background())
	if err != nil {
		t.Fatalf("RunMonthlyStatistics() failed: %v", err)
	}
	if stat.Month != 2 {
		t.Errorf("Expected February snapshot, got month %d", stat.Month)
	}
	if len(notifier.stats) != 1 || notifier.stats[0] != "Agua limpia" {
		t.Errorf("Expected principal campaign name to be posted, got %v", notifier.stats)
	}

	missing := uint(99)
	stats.stat = &models.MonthlyStatistic{Year: 2024, Month: 3, TopCampaignID: &missing}
	if _, err := s.RunMonthlyStatistics(context.Background()); err != nil {
		t.Fatalf("RunMonthlyStatistics() failed: %v", err)
	}
	if notifier.stats[1] != "" {
		t.Errorf("Expected empty name for unknown campaign, got %q", notifier.stats[1])
	}
}

func TestRunMonthlyStatistics_Failure(t *testing.T) {
	notifier := &recordingNotifier{}
	s := newTestService(&fakeBilling{}, &fakeStats{err: errors.New("boom")}, notifier, &mocks.MockSettings{})

	if _, err := s.RunMonthlyStatistics(context.Background()); err == nil {
		t.Fatal("Expected RunMonthlyStatistics() to fail")
	}
	if len(notifier.stats) != 0 {
		t.Errorf("Expected nothing to be posted, got %v", notifier.stats)
	}
}

func TestStartStop(t *testing.T) {
	s := newTestService(&fakeBilling{}, &fakeStats{}, &recordingNotifier{}, &mocks.MockSettings{})

	if err := s.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if got := len(s.cron.Entries()); got != 2 {
		t.Errorf("Expected 2 jobs, got %d", got)
	}
	s.Stop()

	s.config.Timezone = "Mars/Olympus"
	if err := s.Start(); err == nil {
		t.Error("Expected invalid timezone to fail")
	}

	disabled := newTestService(&fakeBilling{}, &fakeStats{}, &recordingNotifier{}, &mocks.MockSettings{})
	disabled.config.Enabled = false
	if err := disabled.Start(); err != nil {
		t.Errorf("Expected disabled scheduler to be a no-op, got %v", err)
	}
	if disabled.cron != nil {
		t.Error("Expected no cron for a disabled scheduler")
	}
}
