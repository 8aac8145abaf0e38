package donations

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimd54/sistema-donaciones/internal/apperr"
	prommetrics "github.com/aimd54/sistema-donaciones/internal/metrics"
	"github.com/aimd54/sistema-donaciones/internal/models"
	"github.com/aimd54/sistema-donaciones/internal/payment"
	"github.com/aimd54/sistema-donaciones/internal/repository"
	"github.com/aimd54/sistema-donaciones/internal/service/campaigns"
	"github.com/aimd54/sistema-donaciones/internal/service/rewards"
	"github.com/aimd54/sistema-donaciones/pkg/logger"
	"github.com/aimd54/sistema-donaciones/test/mocks"
	"github.com/aimd54/sistema-donaciones/test/testdb"
)

// issuer records receipt and invoice generation and the order of calls.
type issuer struct {
	mu          sync.Mutex
	calls       []string
	receiptErr  error
	invoiceErr  error
	panicOnCall bool
}

func (f *issuer) record(step string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, step)
}

func (f *issuer) count(step string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == step {
			n++
		}
	}
	return n
}

func (f *issuer) Generate(_ context.Context, donationID uint) (*models.Receipt, error) {
	f.record(StepReceipt)
	if f.panicOnCall {
		panic("renderer exploded")
	}
	if f.receiptErr != nil {
		return nil, f.receiptErr
	}
	return &models.Receipt{DonationID: donationID, Code: "COMP-2024-00001"}, nil
}

func (f *issuer) GenerateAutomatic(_ context.Context, donationID uint) (*models.Invoice, error) {
	f.record(StepInvoice)
	if f.invoiceErr != nil {
		return nil, f.invoiceErr
	}
	return &models.Invoice{DonationID: donationID}, nil
}

type fakeGateway struct {
	valid     bool
	customers []payment.Customer
}

func (g *fakeGateway) CreateCheckout(_ context.Context, d *models.Donation, c payment.Customer) (*payment.Checkout, error) {
	g.customers = append(g.customers, c)
	return &payment.Checkout{Token: "snap-token", OrderID: payment.OrderID(d.ID)}, nil
}

func (g *fakeGateway) VerifySignature(*payment.Notification) bool {
	return g.valid
}

type fixture struct {
	svc      *Service
	db       *repository.DB
	issuer   *issuer
	mailer   *mocks.MockMailer
	notifier *mocks.MockNotifier
	settings *mocks.MockSettings
	gateway  *fakeGateway
	users    *repository.UserRepository
	camps    *repository.CampaignRepository
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := testdb.New(t)
	log := logger.Nop()

	f := &fixture{
		db:       db,
		issuer:   &issuer{},
		mailer:   &mocks.MockMailer{},
		notifier: &mocks.MockNotifier{},
		settings: &mocks.MockSettings{Values: map[string]string{models.ConfigKeyPointsPerDollar: "1"}},
		gateway:  &fakeGateway{valid: true},
		users:    repository.NewUserRepository(db),
		camps:    repository.NewCampaignRepository(db),
	}

	completion := Completion{
		Receipts:  f.issuer,
		Invoices:  f.issuer,
		Campaigns: campaigns.NewService(f.camps, f.mailer, f.notifier, log),
		Points:    rewards.NewService(repository.NewRewardRepository(db), f.users, f.mailer, f.notifier, log),
		Mailer:    f.mailer,
		Notifier:  f.notifier,
	}
	f.svc = NewServiceWithInterfaces(repository.NewDonationRepository(db), f.camps, completion, f.settings, f.gateway, 1, log)
	return f
}

func (f *fixture) reload(t *testing.T, id uint) *models.Donation {
	t.Helper()
	d, err := repository.NewDonationRepository(f.db).GetByID(id)
	require.NoError(t, err)
	return d
}

func TestPoints(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	tests := []struct {
		ratio  string
		amount string
		want   int
	}{
		{"1", "25", 25},
		{"1", "25.99", 25},
		{"1.5", "25.50", 38},
		{"0", "100", 0},
		{"-2", "10", 0},
	}
	for _, tt := range tests {
		f.settings.Values[models.ConfigKeyPointsPerDollar] = tt.ratio
		assert.Equal(t, tt.want, f.svc.Points(ctx, decimal.RequireFromString(tt.amount)), "ratio %s amount %s", tt.ratio, tt.amount)
	}
}

func TestCreate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	user := testdb.User(t, f.db, "ana@example.com", 0)
	campaign := testdb.Campaign(t, f.db, "Agua limpia", 1000)

	d, err := f.svc.Create(ctx, CreateInput{
		UserID:        &user.ID,
		CampaignID:    &campaign.ID,
		Amount:        decimal.RequireFromString("40.00"),
		PaymentMethod: models.PaymentCard,
		AcceptedTerms: true,
	})
	require.NoError(t, err)
	assert.Equal(t, models.DonationPending, d.State)
	assert.Equal(t, models.DefaultCurrency, d.Currency)
	assert.Equal(t, 40, d.PointsAwarded)
	assert.Zero(t, f.issuer.count(StepReceipt))

	_, err = f.svc.Create(ctx, CreateInput{Amount: decimal.Zero, PaymentMethod: models.PaymentCard})
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))

	_, err = f.svc.Create(ctx, CreateInput{Amount: decimal.NewFromInt(5), PaymentMethod: "Efectivo"})
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))

	missing := uint(999)
	_, err = f.svc.Create(ctx, CreateInput{CampaignID: &missing, Amount: decimal.NewFromInt(5), PaymentMethod: models.PaymentCard})
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))

	campaign.State = models.CampaignFinished
	require.NoError(t, f.camps.Update(campaign))
	_, err = f.svc.Create(ctx, CreateInput{CampaignID: &campaign.ID, Amount: decimal.NewFromInt(5), PaymentMethod: models.PaymentCard})
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))
}

func TestCompletionFanOut(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	user := testdb.User(t, f.db, "ana@example.com", 180)
	campaign := testdb.Campaign(t, f.db, "Agua limpia", 1000)
	testdb.Donation(t, f.db, nil, &campaign.ID, "10.00", models.DonationCompleted, time.Now())

	d, err := f.svc.Create(ctx, CreateInput{
		UserID:           &user.ID,
		CampaignID:       &campaign.ID,
		Amount:           decimal.NewFromInt(25),
		PaymentMethod:    models.PaymentCard,
		InvoiceRequested: true,
	})
	require.NoError(t, err)

	completed, err := f.svc.UpdateState(ctx, d.ID, models.DonationCompleted, "txn-123")
	require.NoError(t, err)
	assert.Equal(t, models.DonationCompleted, completed.State)
	assert.Equal(t, "txn-123", completed.PaymentReference)

	assert.Equal(t, []string{StepReceipt, StepInvoice}, f.issuer.calls)

	c, err := f.camps.GetByID(campaign.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(35).Equal(c.RaisedAmount), "raised %s", c.RaisedAmount)
	assert.Equal(t, 2, c.DonationCount)

	u, err := f.users.GetByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 205, u.Points)
	assert.Equal(t, models.TierSilver, u.Tier)

	last, ok := f.mailer.Last("donation_confirmation")
	require.True(t, ok)
	assert.Equal(t, "ana@example.com", last.To)
	notices := f.notifier.For(user.ID)
	require.Len(t, notices, 1)
	assert.Equal(t, models.NotificationDonation, notices[0].Type)

	again, err := f.svc.UpdateState(ctx, d.ID, models.DonationCompleted, "")
	require.NoError(t, err)
	assert.Equal(t, models.DonationCompleted, again.State)
	assert.Equal(t, 1, f.issuer.count(StepReceipt))
}

func TestCompletionSkipsInvoiceWithoutRequestOrOwner(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	d, err := f.svc.Create(ctx, CreateInput{
		Amount:           decimal.NewFromInt(15),
		PaymentMethod:    models.PaymentPayPal,
		InvoiceRequested: true,
		ReceiptEmail:     "anon@example.com",
	})
	require.NoError(t, err)

	_, err = f.svc.UpdateState(ctx, d.ID, models.DonationCompleted, "")
	require.NoError(t, err)
	assert.Equal(t, []string{StepReceipt}, f.issuer.calls)
	last, ok := f.mailer.Last("donation_confirmation")
	require.True(t, ok)
	assert.Equal(t, "anon@example.com", last.To)
	assert.Empty(t, f.notifier.Notices)
}

func TestCompletionFailuresDoNotRevertState(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	user := testdb.User(t, f.db, "ana@example.com", 0)
	f.issuer.receiptErr = errors.New("storage unavailable")
	f.issuer.invoiceErr = errors.New("renderer unavailable")
	f.notifier.Fail = true
	f.mailer.Fail = true

	receiptFailures := testutil.ToFloat64(prommetrics.DonationSideEffectFailuresTotal.WithLabelValues(StepReceipt))
	pointFailures := testutil.ToFloat64(prommetrics.DonationSideEffectFailuresTotal.WithLabelValues(StepPoints))

	d, err := f.svc.Create(ctx, CreateInput{UserID: &user.ID, Amount: decimal.NewFromInt(50), PaymentMethod: models.PaymentCard, InvoiceRequested: true})
	require.NoError(t, err)

	_, err = f.svc.UpdateState(ctx, d.ID, models.DonationCompleted, "")
	require.NoError(t, err)
	assert.Equal(t, models.DonationCompleted, f.reload(t, d.ID).State)
	assert.Equal(t, []string{StepReceipt, StepInvoice}, f.issuer.calls)

	assert.Equal(t, receiptFailures+1, testutil.ToFloat64(prommetrics.DonationSideEffectFailuresTotal.WithLabelValues(StepReceipt)))
	assert.Equal(t, pointFailures, testutil.ToFloat64(prommetrics.DonationSideEffectFailuresTotal.WithLabelValues(StepPoints)))

	u, err := f.users.GetByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, u.Points)
}

func TestCompletionRecoversFromPanickingStep(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	user := testdb.User(t, f.db, "ana@example.com", 0)
	f.issuer.panicOnCall = true

	d, err := f.svc.Create(ctx, CreateInput{UserID: &user.ID, Amount: decimal.NewFromInt(30), PaymentMethod: models.PaymentCard})
	require.NoError(t, err)

	_, err = f.svc.UpdateState(ctx, d.ID, models.DonationCompleted, "")
	require.NoError(t, err)

	u, err := f.users.GetByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 30, u.Points)
}

func TestPointsFrozenAtCreation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	user := testdb.User(t, f.db, "ana@example.com", 0)

	d, err := f.svc.Create(ctx, CreateInput{UserID: &user.ID, Amount: decimal.NewFromInt(20), PaymentMethod: models.PaymentCard})
	require.NoError(t, err)
	assert.Equal(t, 20, d.PointsAwarded)

	f.settings.Values[models.ConfigKeyPointsPerDollar] = "10"
	_, err = f.svc.UpdateState(ctx, d.ID, models.DonationCompleted, "")
	require.NoError(t, err)

	assert.Equal(t, 20, f.reload(t, d.ID).PointsAwarded)
	u, err := f.users.GetByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, u.Points)
}

func TestTransitionRules(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	campaign := testdb.Campaign(t, f.db, "Agua limpia", 1000)

	failed := testdb.Donation(t, f.db, nil, nil, "10", models.DonationFailed, time.Now())
	_, err := f.svc.UpdateState(ctx, failed.ID, models.DonationCompleted, "")
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))

	_, err = f.svc.UpdateState(ctx, failed.ID, "Desconocido", "")
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))

	d, err := f.svc.Create(ctx, CreateInput{CampaignID: &campaign.ID, Amount: decimal.NewFromInt(60), PaymentMethod: models.PaymentCard})
	require.NoError(t, err)
	_, err = f.svc.UpdateState(ctx, d.ID, models.DonationCompleted, "")
	require.NoError(t, err)

	_, err = f.svc.UpdateState(ctx, d.ID, models.DonationPending, "")
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))

	refunded, err := f.svc.UpdateState(ctx, d.ID, models.DonationRefunded, "")
	require.NoError(t, err)
	assert.Equal(t, models.DonationRefunded, refunded.State)

	c, err := f.camps.GetByID(campaign.ID)
	require.NoError(t, err)
	assert.True(t, c.RaisedAmount.IsZero())
	assert.Equal(t, 0, c.DonationCount)
	assert.Equal(t, 1, f.issuer.count(StepReceipt))
}

func TestCreateCompleted(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	user := testdb.User(t, f.db, "ana@example.com", 0)
	campaign := testdb.Campaign(t, f.db, "Agua limpia", 1000)

	d, err := f.svc.CreateCompleted(ctx, CreateInput{
		UserID:           &user.ID,
		CampaignID:       &campaign.ID,
		Amount:           decimal.NewFromInt(12),
		PaymentMethod:    models.PaymentCard,
		PaymentReference: "suscripcion_1_1700000000000",
	})
	require.NoError(t, err)
	assert.Equal(t, models.DonationCompleted, d.State)
	require.NotNil(t, d.Campaign)
	assert.Equal(t, 1, f.issuer.count(StepReceipt))

	c, err := f.camps.GetByID(campaign.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(12).Equal(c.RaisedAmount))
}

func TestCreateCompletedAcceptsClosedCampaign(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	user := testdb.User(t, f.db, "ana@example.com", 0)
	campaign := testdb.Campaign(t, f.db, "Cerrada", 1000)
	campaign.State = models.CampaignFinished
	require.NoError(t, f.camps.Update(campaign))

	d, err := f.svc.CreateCompleted(ctx, CreateInput{
		UserID:        &user.ID,
		CampaignID:    &campaign.ID,
		Amount:        decimal.NewFromInt(8),
		PaymentMethod: models.PaymentCard,
	})
	require.NoError(t, err)
	assert.Equal(t, models.DonationCompleted, d.State)

	c, err := f.camps.GetByID(campaign.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(8).Equal(c.RaisedAmount))

	missing := uint(999)
	_, err = f.svc.CreateCompleted(ctx, CreateInput{CampaignID: &missing, Amount: decimal.NewFromInt(8), PaymentMethod: models.PaymentCard})
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))
}

// staleReads serves an outdated copy of a donation once, the way a second
// request that read before the first one committed would see it.
type staleReads struct {
	*repository.DonationRepository
	stale map[uint]models.Donation
}

func (r *staleReads) GetByID(id uint) (*models.Donation, error) {
	if d, ok := r.stale[id]; ok {
		delete(r.stale, id)
		return &d, nil
	}
	return r.DonationRepository.GetByID(id)
}

func TestConcurrentCompletionRunsSideEffectsOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	user := testdb.User(t, f.db, "ana@example.com", 0)

	repo := &staleReads{DonationRepository: repository.NewDonationRepository(f.db), stale: map[uint]models.Donation{}}
	svc := NewServiceWithInterfaces(repo, f.camps, f.svc.completion, f.settings, f.gateway, 1, logger.Nop())

	d, err := svc.Create(ctx, CreateInput{UserID: &user.ID, Amount: decimal.NewFromInt(40), PaymentMethod: models.PaymentCard})
	require.NoError(t, err)
	pending := *f.reload(t, d.ID)

	_, err = svc.UpdateState(ctx, d.ID, models.DonationCompleted, "txn-1")
	require.NoError(t, err)

	repo.stale[d.ID] = pending
	again, err := svc.UpdateState(ctx, d.ID, models.DonationCompleted, "txn-1")
	require.NoError(t, err)
	assert.Equal(t, models.DonationCompleted, again.State)

	assert.Equal(t, 1, f.issuer.count(StepReceipt))
	u, err := f.users.GetByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, u.Points)

	repo.stale[d.ID] = pending
	_, err = svc.UpdateState(ctx, d.ID, models.DonationFailed, "")
	assert.True(t, apperr.Is(err, apperr.KindConflict), "got %v", err)
}

func TestGetAndList(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	owner := testdb.User(t, f.db, "ana@example.com", 0)
	other := testdb.User(t, f.db, "otro@example.com", 0)
	d := testdb.Donation(t, f.db, &owner.ID, nil, "10", models.DonationPending, time.Now())
	testdb.Donation(t, f.db, &other.ID, nil, "20", models.DonationCompleted, time.Now())

	_, err := f.svc.Get(ctx, owner.ID, false, d.ID)
	require.NoError(t, err)
	_, err = f.svc.Get(ctx, other.ID, false, d.ID)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
	_, err = f.svc.Get(ctx, other.ID, true, d.ID)
	require.NoError(t, err)

	mine, total, err := f.svc.ListForUser(ctx, owner.ID, repository.Pagination{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, d.ID, mine[0].ID)

	completed := models.DonationCompleted
	_, total, err = f.svc.List(ctx, &completed, repository.Pagination{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	bogus := models.DonationState("Otro")
	_, _, err = f.svc.List(ctx, &bogus, repository.Pagination{})
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))
}

func TestDashboard(t *testing.T) {
	f := setup(t)
	now := time.Date(2024, 5, 31, 18, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return now }

	testdb.Donation(t, f.db, nil, nil, "10", models.DonationCompleted, now.Add(-2*time.Hour))
	testdb.Donation(t, f.db, nil, nil, "15", models.DonationCompleted, now.Add(-3*time.Hour))
	testdb.Donation(t, f.db, nil, nil, "7", models.DonationCompleted, now.AddDate(0, 0, -29))
	testdb.Donation(t, f.db, nil, nil, "99", models.DonationCompleted, now.AddDate(0, 0, -45))
	testdb.Donation(t, f.db, nil, nil, "5", models.DonationPending, now)

	dash, err := f.svc.Dashboard(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(4), dash.ByState[models.DonationCompleted])
	assert.Equal(t, int64(1), dash.ByState[models.DonationPending])
	assert.Equal(t, int64(4), dash.CompletedCount)
	assert.True(t, decimal.NewFromInt(131).Equal(dash.TotalCompleted))
	require.Len(t, dash.ByPaymentMethod, 1)
	assert.Equal(t, string(models.PaymentCard), dash.ByPaymentMethod[0].Label)

	require.Len(t, dash.LastDays, dashboardDays)
	assert.Equal(t, "2024-05-02", dash.LastDays[0].Date)
	assert.Equal(t, int64(1), dash.LastDays[0].Count)
	today := dash.LastDays[dashboardDays-1]
	assert.Equal(t, "2024-05-31", today.Date)
	assert.Equal(t, int64(2), today.Count)
	assert.True(t, decimal.NewFromInt(25).Equal(today.Total))
}

func TestCheckout(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	owner := testdb.User(t, f.db, "ana@example.com", 0)
	d := testdb.Donation(t, f.db, &owner.ID, nil, "10", models.DonationPending, time.Now())
	anon := testdb.Donation(t, f.db, nil, nil, "10", models.DonationPending, time.Now())

	_, err := f.svc.Checkout(ctx, 0, d.ID)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	checkout, err := f.svc.Checkout(ctx, owner.ID, d.ID)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("DON-%d", d.ID), checkout.OrderID)
	require.Len(t, f.gateway.customers, 1)
	assert.Equal(t, "ana@example.com", f.gateway.customers[0].Email)
	assert.Equal(t, "Ana", f.gateway.customers[0].FirstName)

	_, err = f.svc.Checkout(ctx, 0, anon.ID)
	require.NoError(t, err)
}

func TestHandleNotification(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	user := testdb.User(t, f.db, "ana@example.com", 0)
	d, err := f.svc.Create(ctx, CreateInput{UserID: &user.ID, Amount: decimal.NewFromInt(10), PaymentMethod: models.PaymentCard})
	require.NoError(t, err)

	n := &payment.Notification{OrderID: payment.OrderID(d.ID), TransactionStatus: "pending", TransactionID: "tx-1"}

	f.gateway.valid = false
	_, err = f.svc.HandleNotification(ctx, n)
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
	f.gateway.valid = true

	got, err := f.svc.HandleNotification(ctx, n)
	require.NoError(t, err)
	assert.Equal(t, models.DonationPending, got.State)

	n.TransactionStatus = "settlement"
	got, err = f.svc.HandleNotification(ctx, n)
	require.NoError(t, err)
	assert.Equal(t, models.DonationCompleted, got.State)
	assert.Equal(t, "tx-1", f.reload(t, d.ID).PaymentReference)

	n.TransactionStatus = "expire"
	got, err = f.svc.HandleNotification(ctx, n)
	require.NoError(t, err)
	assert.Equal(t, models.DonationCompleted, got.State)

	_, err = f.svc.HandleNotification(ctx, &payment.Notification{OrderID: "ORDER-7", TransactionStatus: "settlement"})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = f.svc.HandleNotification(ctx, &payment.Notification{OrderID: payment.OrderID(9999), TransactionStatus: "settlement"})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}
