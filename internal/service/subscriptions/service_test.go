package subscriptions

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimd54/sistema-donaciones/internal/apperr"
	"github.com/aimd54/sistema-donaciones/internal/models"
	"github.com/aimd54/sistema-donaciones/internal/repository"
	"github.com/aimd54/sistema-donaciones/internal/service/campaigns"
	"github.com/aimd54/sistema-donaciones/internal/service/donations"
	"github.com/aimd54/sistema-donaciones/internal/service/paymentmethods"
	"github.com/aimd54/sistema-donaciones/internal/service/rewards"
	"github.com/aimd54/sistema-donaciones/pkg/logger"
	"github.com/aimd54/sistema-donaciones/test/mocks"
	"github.com/aimd54/sistema-donaciones/test/testdb"
)

// ledger stores completed donations directly, without the completion fan-out.
type ledger struct {
	mu     sync.Mutex
	repo   *repository.DonationRepository
	inputs []donations.CreateInput
	failOn map[uint]bool
}

func (l *ledger) CreateCompleted(_ context.Context, in donations.CreateInput) (*models.Donation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if in.SubscriptionID != nil && l.failOn[*in.SubscriptionID] {
		return nil, errors.New("ledger unavailable")
	}
	l.inputs = append(l.inputs, in)

	d := &models.Donation{
		UserID:           in.UserID,
		CampaignID:       in.CampaignID,
		SubscriptionID:   in.SubscriptionID,
		Amount:           in.Amount,
		Currency:         models.DefaultCurrency,
		DonatedAt:        time.Now(),
		PaymentMethod:    in.PaymentMethod,
		PaymentReference: in.PaymentReference,
		State:            models.DonationCompleted,
	}
	if err := l.repo.Create(d); err != nil {
		return nil, err
	}
	return d, nil
}

func (l *ledger) charges() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.inputs)
}

type fixture struct {
	svc    *Service
	db     *repository.DB
	repo   *repository.SubscriptionRepository
	ledger *ledger
	mailer *mocks.MockMailer
	now    time.Time
	user   *models.User
	pm     *models.PaymentMethod
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := testdb.New(t)
	log := logger.Nop()

	f := &fixture{
		db:     db,
		repo:   repository.NewSubscriptionRepository(db),
		ledger: &ledger{repo: repository.NewDonationRepository(db), failOn: map[uint]bool{}},
		mailer: &mocks.MockMailer{},
		now:    time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC),
	}
	methods := paymentmethods.NewService(repository.NewPaymentMethodRepository(db), log)
	f.svc = NewServiceWithInterfaces(f.repo, methods, repository.NewCampaignRepository(db), f.ledger, f.mailer, log)
	f.svc.now = func() time.Time { return f.now }

	f.user = testdb.User(t, db, "ana@example.com", 0)
	f.pm = testdb.PaymentMethod(t, db, f.user.ID)
	return f
}

func (f *fixture) insert(t *testing.T, amount int64, freq models.Frequency, next time.Time, state models.SubscriptionState) *models.Subscription {
	t.Helper()
	sub := &models.Subscription{
		UserID:          f.user.ID,
		Amount:          decimal.NewFromInt(amount),
		Frequency:       freq,
		StartDate:       next.AddDate(0, -freq.Months(), 0),
		NextChargeDate:  next,
		State:           state,
		PaymentMethodID: f.pm.ID,
		TotalDonated:    decimal.Zero,
	}
	if err := f.db.Create(sub).Error; err != nil {
		t.Fatalf("Failed to create subscription: %v", err)
	}
	return sub
}

func TestNextChargeDate(t *testing.T) {
	at := func(y int, m time.Month, d int) time.Time {
		return time.Date(y, m, d, 9, 30, 0, 0, time.UTC)
	}

	tests := []struct {
		name string
		from time.Time
		freq models.Frequency
		want time.Time
	}{
		{"monthly", at(2024, time.January, 15), models.FrequencyMonthly, at(2024, time.February, 15)},
		{"monthly clamps in leap year", at(2024, time.January, 31), models.FrequencyMonthly, at(2024, time.February, 29)},
		{"monthly clamps", at(2023, time.January, 31), models.FrequencyMonthly, at(2023, time.February, 28)},
		{"monthly across year", at(2023, time.December, 31), models.FrequencyMonthly, at(2024, time.January, 31)},
		{"monthly to 30 day month", at(2024, time.March, 31), models.FrequencyMonthly, at(2024, time.April, 30)},
		{"quarterly", at(2024, time.August, 31), models.FrequencyQuarterly, at(2024, time.November, 30)},
		{"quarterly clamps", at(2022, time.November, 30), models.FrequencyQuarterly, at(2023, time.February, 28)},
		{"yearly", at(2024, time.June, 1), models.FrequencyYearly, at(2025, time.June, 1)},
		{"yearly from leap day", at(2024, time.February, 29), models.FrequencyYearly, at(2025, time.February, 28)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextChargeDate(tt.from, tt.freq))
		})
	}
}

func TestCreate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	campaign := testdb.Campaign(t, f.db, "Agua limpia", 1000)

	sub, err := f.svc.Create(ctx, f.user.ID, CreateInput{
		CampaignID:      &campaign.ID,
		Amount:          decimal.NewFromInt(20),
		Frequency:       models.FrequencyMonthly,
		PaymentMethodID: f.pm.ID,
	})
	require.NoError(t, err)

	assert.Equal(t, models.SubscriptionActive, sub.State)
	assert.True(t, sub.NextChargeDate.Equal(time.Date(2024, 4, 10, 10, 0, 0, 0, time.UTC)), "next %s", sub.NextChargeDate)
	assert.True(t, decimal.NewFromInt(20).Equal(sub.TotalDonated))
	assert.Equal(t, 1, sub.TotalDonations)

	require.Equal(t, 1, f.ledger.charges())
	first := f.ledger.inputs[0]
	assert.Equal(t, sub.ID, *first.SubscriptionID)
	assert.Equal(t, campaign.ID, *first.CampaignID)
	assert.Equal(t, models.PaymentCard, first.PaymentMethod)
	assert.True(t, strings.HasPrefix(first.PaymentReference, "suscripcion_"), first.PaymentReference)

	list, total, err := repository.NewDonationRepository(f.db).List(repository.DonationFilter{UserID: &f.user.ID}, repository.Pagination{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, models.DonationCompleted, list[0].State)
}

func TestCreateRejections(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	other := testdb.User(t, f.db, "otro@example.com", 0)
	foreign := testdb.PaymentMethod(t, f.db, other.ID)
	inactive := testdb.PaymentMethod(t, f.db, f.user.ID)
	require.NoError(t, repository.NewPaymentMethodRepository(f.db).Deactivate(inactive.ID))
	finished := testdb.Campaign(t, f.db, "Cerrada", 100)
	finished.State = models.CampaignFinished
	require.NoError(t, repository.NewCampaignRepository(f.db).Update(finished))

	cases := []CreateInput{
		{Amount: decimal.Zero, Frequency: models.FrequencyMonthly, PaymentMethodID: f.pm.ID},
		{Amount: decimal.NewFromInt(10), Frequency: "Semanal", PaymentMethodID: f.pm.ID},
		{Amount: decimal.NewFromInt(10), Frequency: models.FrequencyMonthly, PaymentMethodID: foreign.ID},
		{Amount: decimal.NewFromInt(10), Frequency: models.FrequencyMonthly, PaymentMethodID: inactive.ID},
		{Amount: decimal.NewFromInt(10), Frequency: models.FrequencyMonthly, PaymentMethodID: 999},
		{Amount: decimal.NewFromInt(10), Frequency: models.FrequencyMonthly, PaymentMethodID: f.pm.ID, CampaignID: &finished.ID},
	}
	for i, in := range cases {
		_, err := f.svc.Create(ctx, f.user.ID, in)
		assert.True(t, apperr.Is(err, apperr.KindBadRequest), "case %d: %v", i, err)
	}
	assert.Zero(t, f.ledger.charges())
}

func TestCreateCancelsWhenFirstChargeFails(t *testing.T) {
	f := setup(t)
	f.ledger.failOn[1] = true

	_, err := f.svc.Create(context.Background(), f.user.ID, CreateInput{
		Amount:          decimal.NewFromInt(10),
		Frequency:       models.FrequencyMonthly,
		PaymentMethodID: f.pm.ID,
	})
	require.Error(t, err)

	sub, err := f.repo.GetByID(1)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionCancelled, sub.State)
}

func TestProcessDueCharges(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	due := f.insert(t, 10, models.FrequencyMonthly, f.now.Add(-time.Hour), models.SubscriptionActive)
	later := f.insert(t, 10, models.FrequencyMonthly, f.now.AddDate(0, 0, 5), models.SubscriptionActive)
	paused := f.insert(t, 10, models.FrequencyMonthly, f.now.AddDate(0, 0, -1), models.SubscriptionPaused)

	inactive := testdb.PaymentMethod(t, f.db, f.user.ID)
	require.NoError(t, repository.NewPaymentMethodRepository(f.db).Deactivate(inactive.ID))
	orphan := f.insert(t, 10, models.FrequencyMonthly, f.now.AddDate(0, 0, -2), models.SubscriptionActive)
	require.NoError(t, f.db.Model(orphan).Update("id_metodo_pago", inactive.ID).Error)

	report, err := f.svc.ProcessDueCharges(ctx, f.now)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 1, report.Charged)
	assert.Equal(t, 1, report.Skipped)
	assert.Zero(t, report.Failed)

	charged, err := f.repo.GetByID(due.ID)
	require.NoError(t, err)
	assert.True(t, charged.NextChargeDate.Equal(time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)), "next %s", charged.NextChargeDate)
	assert.True(t, charged.NextChargeDate.After(f.now))
	assert.Equal(t, 1, charged.TotalDonations)

	for _, id := range []uint{later.ID, paused.ID} {
		s, err := f.repo.GetByID(id)
		require.NoError(t, err)
		assert.Zero(t, s.TotalDonations)
	}

	again, err := f.svc.ProcessDueCharges(ctx, f.now)
	require.NoError(t, err)
	assert.Zero(t, again.Charged)
	assert.Equal(t, 1, f.ledger.charges())
}

func TestProcessDueChargesDoesNotCatchUp(t *testing.T) {
	f := setup(t)
	sub := f.insert(t, 10, models.FrequencyMonthly, f.now.AddDate(0, -3, 0), models.SubscriptionActive)

	report, err := f.svc.ProcessDueCharges(context.Background(), f.now)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Charged)
	assert.Equal(t, 1, f.ledger.charges())

	got, err := f.repo.GetByID(sub.ID)
	require.NoError(t, err)
	assert.True(t, got.NextChargeDate.Equal(time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)))
}

func TestProcessDueChargesIsolatesFailures(t *testing.T) {
	f := setup(t)
	broken := f.insert(t, 10, models.FrequencyMonthly, f.now.Add(-2*time.Hour), models.SubscriptionActive)
	healthy := f.insert(t, 30, models.FrequencyQuarterly, f.now.Add(-time.Hour), models.SubscriptionActive)
	f.ledger.failOn[broken.ID] = true

	report, err := f.svc.ProcessDueCharges(context.Background(), f.now)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 1, report.Charged)
	assert.Equal(t, 1, report.Failed)

	restored, err := f.repo.GetByID(broken.ID)
	require.NoError(t, err)
	assert.True(t, restored.NextChargeDate.Equal(broken.NextChargeDate))
	assert.Zero(t, restored.TotalDonations)

	ok, err := f.repo.GetByID(healthy.ID)
	require.NoError(t, err)
	assert.True(t, ok.NextChargeDate.Equal(time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)))
	assert.True(t, decimal.NewFromInt(30).Equal(ok.TotalDonated))
}

func TestUpdate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	sub := f.insert(t, 10, models.FrequencyMonthly, f.now.AddDate(0, 0, 12), models.SubscriptionActive)

	amount := decimal.NewFromInt(15)
	quarterly := models.FrequencyQuarterly
	updated, err := f.svc.Update(ctx, f.user.ID, sub.ID, UpdateInput{Amount: &amount, Frequency: &quarterly})
	require.NoError(t, err)
	assert.True(t, amount.Equal(updated.Amount))
	assert.Equal(t, models.FrequencyQuarterly, updated.Frequency)
	assert.True(t, updated.NextChargeDate.Equal(time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)))

	paused := models.SubscriptionPaused
	updated, err = f.svc.Update(ctx, f.user.ID, sub.ID, UpdateInput{State: &paused})
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionPaused, updated.State)

	f.now = f.now.AddDate(0, 4, 0)
	active := models.SubscriptionActive
	updated, err = f.svc.Update(ctx, f.user.ID, sub.ID, UpdateInput{State: &active})
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionActive, updated.State)
	assert.True(t, updated.NextChargeDate.Equal(time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC)))

	zero := decimal.Zero
	_, err = f.svc.Update(ctx, f.user.ID, sub.ID, UpdateInput{Amount: &zero})
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))

	other := testdb.User(t, f.db, "otro@example.com", 0)
	_, err = f.svc.Update(ctx, other.ID, sub.ID, UpdateInput{Amount: &amount})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	foreign := testdb.PaymentMethod(t, f.db, other.ID)
	_, err = f.svc.Update(ctx, f.user.ID, sub.ID, UpdateInput{PaymentMethodID: &foreign.ID})
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))

	cancelled := models.SubscriptionCancelled
	_, err = f.svc.Update(ctx, f.user.ID, sub.ID, UpdateInput{State: &cancelled})
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))
}

func TestCancel(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	sub := f.insert(t, 10, models.FrequencyMonthly, f.now.AddDate(0, 0, 3), models.SubscriptionActive)

	other := testdb.User(t, f.db, "otro@example.com", 0)
	_, err := f.svc.Cancel(ctx, other.ID, sub.ID, "")
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	cancelled, err := f.svc.Cancel(ctx, f.user.ID, sub.ID, " mudanza ")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionCancelled, cancelled.State)
	assert.Equal(t, "mudanza", cancelled.CancellationReason)
	require.NotNil(t, cancelled.EndDate)

	_, err = f.svc.Cancel(ctx, f.user.ID, sub.ID, "")
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))

	_, err = f.svc.Update(ctx, f.user.ID, sub.ID, UpdateInput{})
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))

	report, err := f.svc.ProcessDueCharges(ctx, f.now.AddDate(0, 1, 0))
	require.NoError(t, err)
	assert.Zero(t, report.Processed)
}

func TestSendReminders(t *testing.T) {
	f := setup(t)
	f.insert(t, 10, models.FrequencyMonthly, time.Date(2024, 3, 13, 18, 0, 0, 0, time.UTC), models.SubscriptionActive)
	f.insert(t, 10, models.FrequencyMonthly, time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC), models.SubscriptionActive)
	f.insert(t, 10, models.FrequencyMonthly, time.Date(2024, 3, 13, 9, 0, 0, 0, time.UTC), models.SubscriptionPaused)

	sent, err := f.svc.SendReminders(context.Background(), f.now, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, 1, f.mailer.Count("subscription_reminder"))

	_, err = f.svc.SendReminders(context.Background(), f.now, -1)
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))
}

func TestStats(t *testing.T) {
	f := setup(t)
	f.insert(t, 30, models.FrequencyMonthly, f.now.AddDate(0, 0, 5), models.SubscriptionActive)
	f.insert(t, 30, models.FrequencyQuarterly, f.now.AddDate(0, 0, 5), models.SubscriptionActive)
	f.insert(t, 120, models.FrequencyYearly, f.now.AddDate(0, 0, 5), models.SubscriptionActive)
	f.insert(t, 500, models.FrequencyMonthly, f.now.AddDate(0, 0, 5), models.SubscriptionCancelled)

	stats, err := f.svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.Total)
	assert.Equal(t, int64(3), stats.Active)
	assert.Equal(t, int64(1), stats.ByFrequency[models.FrequencyYearly])
	assert.True(t, decimal.NewFromInt(50).Equal(stats.EstimatedMonthlyIncome), "income %s", stats.EstimatedMonthlyIncome)
}

func TestGetAndList(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	sub := f.insert(t, 10, models.FrequencyMonthly, f.now.AddDate(0, 0, 5), models.SubscriptionActive)
	other := testdb.User(t, f.db, "otro@example.com", 0)

	_, err := f.svc.Get(ctx, other.ID, false, sub.ID)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
	_, err = f.svc.Get(ctx, other.ID, true, sub.ID)
	require.NoError(t, err)

	mine, total, err := f.svc.ListForUser(ctx, f.user.ID, repository.Pagination{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, sub.ID, mine[0].ID)

	_, total, err = f.svc.ListForUser(ctx, other.ID, repository.Pagination{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

// paperwork stands in for receipt and invoice issuance.
type paperwork struct{ receipts int }

func (p *paperwork) Generate(_ context.Context, donationID uint) (*models.Receipt, error) {
	p.receipts++
	return &models.Receipt{DonationID: donationID}, nil
}

func (p *paperwork) GenerateAutomatic(_ context.Context, donationID uint) (*models.Invoice, error) {
	return &models.Invoice{DonationID: donationID}, nil
}

// withLedger rebuilds the service over the real donation ledger so charges
// run the whole completion fan-out.
func (f *fixture) withLedger(t *testing.T) *paperwork {
	t.Helper()
	log := logger.Nop()
	camps := repository.NewCampaignRepository(f.db)
	docs := &paperwork{}
	notifier := &mocks.MockNotifier{}
	settings := &mocks.MockSettings{Values: map[string]string{models.ConfigKeyPointsPerDollar: "1"}}

	ledger := donations.NewServiceWithInterfaces(repository.NewDonationRepository(f.db), camps, donations.Completion{
		Receipts:  docs,
		Invoices:  docs,
		Campaigns: campaigns.NewService(camps, f.mailer, notifier, log),
		Points:    rewards.NewService(repository.NewRewardRepository(f.db), repository.NewUserRepository(f.db), f.mailer, notifier, log),
		Mailer:    f.mailer,
		Notifier:  notifier,
	}, settings, nil, 1, log)

	methods := paymentmethods.NewService(repository.NewPaymentMethodRepository(f.db), log)
	f.svc = NewServiceWithInterfaces(f.repo, methods, camps, ledger, f.mailer, log)
	f.svc.now = func() time.Time { return f.now }
	return docs
}

func TestBillingThroughLedger(t *testing.T) {
	f := setup(t)
	docs := f.withLedger(t)
	ctx := context.Background()
	camps := repository.NewCampaignRepository(f.db)
	users := repository.NewUserRepository(f.db)
	campaign := testdb.Campaign(t, f.db, "Agua limpia", 1000)

	sub, err := f.svc.Create(ctx, f.user.ID, CreateInput{
		CampaignID:      &campaign.ID,
		Amount:          decimal.NewFromInt(20),
		Frequency:       models.FrequencyMonthly,
		PaymentMethodID: f.pm.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, docs.receipts)

	u, err := users.GetByID(f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, u.Points)

	c, err := camps.GetByID(campaign.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(20).Equal(c.RaisedAmount), "raised %s", c.RaisedAmount)
	assert.Equal(t, 1, c.DonationCount)

	// The campaign closes; the subscription keeps charging it.
	c.State = models.CampaignFinished
	require.NoError(t, camps.Update(c))
	require.NoError(t, f.db.Model(&models.Subscription{}).
		Where("id_suscripcion = ?", sub.ID).
		Update("proxima_donacion", f.now.Add(-time.Hour)).Error)

	report, err := f.svc.ProcessDueCharges(ctx, f.now)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Charged)
	assert.Zero(t, report.Failed)

	list, total, err := repository.NewDonationRepository(f.db).List(repository.DonationFilter{UserID: &f.user.ID}, repository.Pagination{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	for _, d := range list {
		assert.Equal(t, models.DonationCompleted, d.State)
		require.NotNil(t, d.SubscriptionID)
		assert.Equal(t, sub.ID, *d.SubscriptionID)
		require.NotNil(t, d.CampaignID)
		assert.Equal(t, campaign.ID, *d.CampaignID)
	}

	c, err = camps.GetByID(campaign.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(40).Equal(c.RaisedAmount), "raised %s", c.RaisedAmount)
	assert.Equal(t, models.CampaignFinished, c.State)

	u, err = users.GetByID(f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, u.Points)

	charged, err := f.repo.GetByID(sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, charged.TotalDonations)
	assert.Equal(t, 2, docs.receipts)
}
