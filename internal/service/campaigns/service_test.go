package campaigns

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimd54/sistema-donaciones/internal/apperr"
	"github.com/aimd54/sistema-donaciones/internal/models"
	"github.com/aimd54/sistema-donaciones/internal/repository"
	"github.com/aimd54/sistema-donaciones/pkg/logger"
	"github.com/aimd54/sistema-donaciones/test/mocks"
	"github.com/aimd54/sistema-donaciones/test/testdb"
)

type fixture struct {
	svc      *Service
	db       *repository.DB
	mailer   *mocks.MockMailer
	notifier *mocks.MockNotifier
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := testdb.New(t)
	mailer := &mocks.MockMailer{}
	notifier := &mocks.MockNotifier{}
	svc := NewService(repository.NewCampaignRepository(db), mailer, notifier, logger.Nop())
	return &fixture{svc: svc, db: db, mailer: mailer, notifier: notifier}
}

func TestCreate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	c, err := f.svc.Create(ctx, CreateInput{Name: " Agua limpia ", GoalAmount: decimal.NewFromInt(5000), Emergency: true})
	require.NoError(t, err)
	assert.Equal(t, "Agua limpia", c.Name)
	assert.Equal(t, models.CampaignActive, c.State)
	assert.True(t, c.RaisedAmount.IsZero())
	assert.Equal(t, 0, c.DonationCount)

	_, err = f.svc.Create(ctx, CreateInput{Name: "Sin meta"})
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))

	start := time.Now()
	end := start.AddDate(0, 0, -1)
	_, err = f.svc.Create(ctx, CreateInput{Name: "Fechas", GoalAmount: decimal.NewFromInt(1), StartDate: &start, EndDate: &end})
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))
}

func TestUpdate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c := testdb.Campaign(t, f.db, "Agua", 1000)

	goal := decimal.NewFromInt(2000)
	updated, err := f.svc.Update(ctx, c.ID, UpdateInput{GoalAmount: &goal, Emergency: testdb.Ptr(true)})
	require.NoError(t, err)
	assert.True(t, goal.Equal(updated.GoalAmount))
	assert.True(t, updated.Emergency)
	assert.Equal(t, "Agua", updated.Name)

	zero := decimal.Zero
	_, err = f.svc.Update(ctx, c.ID, UpdateInput{GoalAmount: &zero})
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))

	_, err = f.svc.Update(ctx, 999, UpdateInput{})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestChangeState(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c := testdb.Campaign(t, f.db, "Agua", 1000)

	finished, err := f.svc.ChangeState(ctx, c.ID, models.CampaignFinished, false)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignFinished, finished.State)
	assert.NotNil(t, finished.EndDate)

	_, err = f.svc.ChangeState(ctx, c.ID, models.CampaignActive, false)
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))

	reopened, err := f.svc.ChangeState(ctx, c.ID, models.CampaignActive, true)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignActive, reopened.State)

	_, err = f.svc.ChangeState(ctx, c.ID, models.CampaignState("Borrador"), true)
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))
}

func TestRecalculateTotals(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c := testdb.Campaign(t, f.db, "Agua", 1000)
	now := time.Now()
	testdb.Donation(t, f.db, nil, &c.ID, "100", models.DonationCompleted, now)
	testdb.Donation(t, f.db, nil, &c.ID, "50.25", models.DonationCompleted, now)
	testdb.Donation(t, f.db, nil, &c.ID, "70", models.DonationPending, now)
	testdb.Donation(t, f.db, nil, &c.ID, "30", models.DonationRefunded, now)

	updated, err := f.svc.RecalculateTotals(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("150.25").Equal(updated.RaisedAmount))
	assert.Equal(t, 2, updated.DonationCount)

	again, err := f.svc.RecalculateTotals(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, updated.RaisedAmount.Equal(again.RaisedAmount))
	assert.Equal(t, updated.DonationCount, again.DonationCount)
}

func TestFeaturedAndStats(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	regular := testdb.Campaign(t, f.db, "Regular", 1000)
	urgent := testdb.Campaign(t, f.db, "Urgente", 1000)
	_, err := f.svc.Update(ctx, urgent.ID, UpdateInput{Emergency: testdb.Ptr(true)})
	require.NoError(t, err)
	closed := testdb.Campaign(t, f.db, "Cerrada", 1000)
	_, err = f.svc.ChangeState(ctx, closed.ID, models.CampaignCancelled, false)
	require.NoError(t, err)

	testdb.Donation(t, f.db, nil, &regular.ID, "300", models.DonationCompleted, time.Now())
	_, err = f.svc.RecalculateTotals(ctx, regular.ID)
	require.NoError(t, err)

	featured, err := f.svc.Featured(ctx)
	require.NoError(t, err)
	require.Len(t, featured, 2)
	assert.Equal(t, urgent.ID, featured[0].ID)
	assert.Equal(t, regular.ID, featured[1].ID)

	stats, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(2), stats.Active)
	assert.Equal(t, int64(1), stats.ActiveEmergencies)
	assert.True(t, decimal.NewFromInt(300).Equal(stats.TotalRaised))
	require.NotNil(t, stats.MostSuccessful)
	assert.Equal(t, regular.ID, stats.MostSuccessful.ID)
}

func TestFollowAndNotify(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c := testdb.Campaign(t, f.db, "Agua", 1000)
	a := testdb.User(t, f.db, "a@example.com", 0)
	b := testdb.User(t, f.db, "b@example.com", 0)

	require.NoError(t, f.svc.Follow(ctx, a.ID, c.ID))
	require.NoError(t, f.svc.Follow(ctx, a.ID, c.ID))
	require.NoError(t, f.svc.Follow(ctx, b.ID, c.ID))
	assert.True(t, apperr.Is(f.svc.Follow(ctx, a.ID, 999), apperr.KindNotFound))

	following, err := f.svc.IsFollowing(ctx, a.ID, c.ID)
	require.NoError(t, err)
	assert.True(t, following)

	require.NoError(t, f.svc.Unfollow(ctx, b.ID, c.ID))

	sent, err := f.svc.NotifyFollowers(ctx, c.ID, "Avance", "Llegamos al 50%")
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, 1, f.mailer.Count("campaign_update"))
	require.Len(t, f.notifier.For(a.ID), 1)
	assert.Equal(t, models.NotificationCampaign, f.notifier.For(a.ID)[0].Type)
	assert.Empty(t, f.notifier.For(b.ID))

	_, err = f.svc.NotifyFollowers(ctx, c.ID, "", "x")
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))
}
