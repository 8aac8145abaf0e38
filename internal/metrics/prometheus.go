// Package metrics provides Prometheus exporters for application metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the donation platform.
var (
	// Donation ledger.
	DonationsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "donations_created_total",
			Help: "Total number of donations created",
		},
		[]string{"method"},
	)

	DonationsCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "donations_completed_total",
			Help: "Total number of donations that reached the completed state",
		},
		[]string{"source"}, // api, webhook, subscription
	)

	DonationSideEffectFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "donation_side_effect_failures_total",
			Help: "Total number of failed steps after a donation completed",
		},
		[]string{"step"},
	)

	DonationAmount = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "donation_amount",
			Help:    "Amount of completed donations",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		},
	)

	// Subscriptions.
	SubscriptionChargesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_charges_total",
			Help: "Total subscription charge attempts by the billing job",
		},
		[]string{"status"}, // charged, skipped, failed
	)

	ActiveSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_subscriptions",
			Help: "Current number of active subscriptions",
		},
	)

	// Rewards.
	RewardsAssignedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rewards_assigned_total",
			Help: "Total reward assignment attempts",
		},
		[]string{"type", "status"},
	)

	// Mail.
	MailSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mail_sent_total",
			Help: "Total outbound emails by template",
		},
		[]string{"template", "status"},
	)

	// HTTP.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests handled",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Scheduler metrics.
	SchedulerJobRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_job_runs_total",
			Help: "Total scheduler job executions",
		},
		[]string{"job", "status"},
	)

	SchedulerLastRunTimestamp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scheduler_last_run_timestamp",
			Help: "Unix timestamp of the last run of each job",
		},
		[]string{"job"},
	)

	SchedulerJobDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scheduler_job_duration_seconds",
			Help:    "Time taken to execute a scheduler job",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~256s
		},
		[]string{"job"},
	)
)

// RecordDonationCreated records a newly created donation.
func RecordDonationCreated(method string) {
	DonationsCreatedTotal.WithLabelValues(method).Inc()
}

// RecordDonationCompleted records a completed donation and its amount.
func RecordDonationCompleted(source string, amount float64) {
	DonationsCompletedTotal.WithLabelValues(source).Inc()
	DonationAmount.Observe(amount)
}

// RecordSideEffectFailure records a failed completion step.
func RecordSideEffectFailure(step string) {
	DonationSideEffectFailuresTotal.WithLabelValues(step).Inc()
}

// RecordSubscriptionCharge records the outcome of one billing attempt.
func RecordSubscriptionCharge(status string) {
	SubscriptionChargesTotal.WithLabelValues(status).Inc()
}

// SetActiveSubscriptions sets the number of active subscriptions.
func SetActiveSubscriptions(count int) {
	ActiveSubscriptions.Set(float64(count))
}

// RecordRewardAssigned records a reward assignment attempt.
func RecordRewardAssigned(rewardType, status string) {
	RewardsAssignedTotal.WithLabelValues(rewardType, status).Inc()
}

// RecordMailSent records an outbound email.
func RecordMailSent(template, status string) {
	MailSentTotal.WithLabelValues(template, status).Inc()
}

// ObserveHTTPRequest records one handled request.
func ObserveHTTPRequest(method, route, status string, seconds float64) {
	HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	HTTPRequestDurationSeconds.WithLabelValues(method, route).Observe(seconds)
}

// RecordSchedulerJobRun records a scheduler job execution.
func RecordSchedulerJobRun(job, status string) {
	SchedulerJobRunsTotal.WithLabelValues(job, status).Inc()
}

// SetSchedulerLastRun sets the timestamp of the last run of a job.
func SetSchedulerLastRun(job string) {
	SchedulerLastRunTimestamp.WithLabelValues(job).SetToCurrentTime()
}

// ObserveSchedulerJobDuration observes the duration of a scheduler job.
func ObserveSchedulerJobDuration(job string, seconds float64) {
	SchedulerJobDurationSeconds.WithLabelValues(job).Observe(seconds)
}
