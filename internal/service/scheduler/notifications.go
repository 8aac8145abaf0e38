package scheduler

import (
	"github.com/aimd54/sistema-donaciones/internal/mattermost"
	"github.com/aimd54/sistema-donaciones/internal/service/subscriptions"
)

// billingSummary transforms a billing report into the Mattermost summary format.
func billingSummary(r *subscriptions.BillingReport) mattermost.BillingSummary {
	return mattermost.BillingSummary{
		RunAt:     r.RunAt,
		Processed: r.Processed,
		Charged:   r.Charged,
		Skipped:   r.Skipped,
		Failed:    r.Failed,
	}
}

// campaignName resolves the principal campaign of a snapshot, empty when unknown.
func (s *Service) campaignName(id *uint) string {
	if id == nil || s.campaigns == nil {
		return ""
	}
	c, err := s.campaigns.GetByID(*id)
	if err != nil {
		s.log.Warn().Err(err).Uint("campaign_id", *id).Msg("Failed to resolve principal campaign")
		return ""
	}
	return c.Name
}
