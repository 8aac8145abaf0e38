package configuration

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimd54/sistema-donaciones/internal/apperr"
	"github.com/aimd54/sistema-donaciones/internal/cache"
	"github.com/aimd54/sistema-donaciones/internal/models"
	"github.com/aimd54/sistema-donaciones/pkg/logger"
)

// mockRepository keeps configurations in memory and counts database reads.
type mockRepository struct {
	items map[string]*models.Configuration
	reads int
}

func newMockRepository(items ...models.Configuration) *mockRepository {
	m := &mockRepository{items: make(map[string]*models.Configuration)}
	for i := range items {
		c := items[i]
		m.items[c.Key] = &c
	}
	return m
}

func (m *mockRepository) Create(c *models.Configuration) error {
	m.items[c.Key] = c
	return nil
}

func (m *mockRepository) GetByKey(key string) (*models.Configuration, error) {
	m.reads++
	c, ok := m.items[key]
	if !ok {
		return nil, apperr.NotFound("configuration %s not found", key)
	}
	cp := *c
	return &cp, nil
}

func (m *mockRepository) GetByKeys(keys []string) ([]models.Configuration, error) {
	var out []models.Configuration
	for _, k := range keys {
		if c, ok := m.items[k]; ok {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *mockRepository) List() ([]models.Configuration, error) {
	out := make([]models.Configuration, 0, len(m.items))
	for _, c := range m.items {
		out = append(out, *c)
	}
	return out, nil
}

func (m *mockRepository) Update(c *models.Configuration) error {
	cp := *c
	m.items[c.Key] = &cp
	return nil
}

func (m *mockRepository) Delete(key string) error {
	delete(m.items, key)
	return nil
}

func setup(t *testing.T, items ...models.Configuration) (*Service, *mockRepository, *miniredis.Miniredis) {
	t.Helper()
	repo := newMockRepository(items...)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	c := cache.NewRedisCacheFromClient(client)
	return NewServiceWithInterfaces(repo, c, 30*time.Minute, logger.Nop()), repo, mr
}

var pointsPerDollar = models.Configuration{
	Key: models.ConfigKeyPointsPerDollar, Value: "1.5", Type: models.ConfigNumber, Editable: true,
}

func TestGetNumber_CachedUntilTTL(t *testing.T) {
	svc, repo, mr := setup(t, pointsPerDollar)
	ctx := context.Background()

	assert.InDelta(t, 1.5, svc.GetNumber(ctx, models.ConfigKeyPointsPerDollar, 1), 0.0001)
	assert.Equal(t, 1, repo.reads)

	// A write that bypasses the service stays invisible until the entry expires.
	repo.items[models.ConfigKeyPointsPerDollar].Value = "3"
	assert.InDelta(t, 1.5, svc.GetNumber(ctx, models.ConfigKeyPointsPerDollar, 1), 0.0001)
	assert.Equal(t, 1, repo.reads)

	mr.FastForward(31 * time.Minute)
	assert.InDelta(t, 3.0, svc.GetNumber(ctx, models.ConfigKeyPointsPerDollar, 1), 0.0001)
	assert.Equal(t, 2, repo.reads)
}

func TestTypedReads_Defaults(t *testing.T) {
	svc, _, _ := setup(t,
		models.Configuration{Key: "broken", Value: "abc", Type: models.ConfigText},
		models.Configuration{Key: "flag", Value: "true", Type: models.ConfigBoolean},
	)
	ctx := context.Background()

	assert.Equal(t, 7.0, svc.GetNumber(ctx, "missing", 7))
	assert.Equal(t, 7.0, svc.GetNumber(ctx, "broken", 7))
	assert.Equal(t, "def", svc.GetString(ctx, "missing", "def"))
	assert.True(t, svc.GetBool(ctx, "flag", false))
	assert.False(t, svc.GetBool(ctx, "missing", false))
}

func TestCreate(t *testing.T) {
	svc, repo, _ := setup(t, pointsPerDollar)
	ctx := context.Background()

	c, err := svc.Create(ctx, CreateInput{Key: "meta_mensual", Value: "5000", Type: models.ConfigNumber})
	require.NoError(t, err)
	assert.True(t, c.Editable)

	reads := repo.reads
	assert.Equal(t, 5000.0, svc.GetNumber(ctx, "meta_mensual", 0))
	assert.Equal(t, reads, repo.reads, "value should be served from cache")

	_, err = svc.Create(ctx, CreateInput{Key: models.ConfigKeyPointsPerDollar, Value: "2", Type: models.ConfigNumber})
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	_, err = svc.Create(ctx, CreateInput{Key: "x", Value: "yes", Type: models.ConfigBoolean})
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))

	_, err = svc.Create(ctx, CreateInput{Key: "y", Value: "{bad", Type: models.ConfigJSON})
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))
}

func TestUpdate_RefreshesCacheAndRespectsEditable(t *testing.T) {
	locked := models.Configuration{Key: models.ConfigKeyOrganizationName, Value: "Fundación", Type: models.ConfigText}
	svc, _, _ := setup(t, pointsPerDollar, locked)
	ctx := context.Background()

	_ = svc.GetNumber(ctx, models.ConfigKeyPointsPerDollar, 1)

	v := "2"
	_, err := svc.Update(ctx, models.ConfigKeyPointsPerDollar, UpdateInput{Value: &v})
	require.NoError(t, err)
	assert.Equal(t, 2.0, svc.GetNumber(ctx, models.ConfigKeyPointsPerDollar, 1))

	bad := "two"
	_, err = svc.Update(ctx, models.ConfigKeyPointsPerDollar, UpdateInput{Value: &bad})
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))

	_, err = svc.Update(ctx, models.ConfigKeyOrganizationName, UpdateInput{Value: &v})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	assert.True(t, apperr.Is(svc.Delete(ctx, models.ConfigKeyOrganizationName), apperr.KindForbidden))
}

func TestDelete_EvictsCache(t *testing.T) {
	svc, _, _ := setup(t, pointsPerDollar)
	ctx := context.Background()

	_ = svc.GetNumber(ctx, models.ConfigKeyPointsPerDollar, 1)
	require.NoError(t, svc.Delete(ctx, models.ConfigKeyPointsPerDollar))
	assert.Equal(t, 1.0, svc.GetNumber(ctx, models.ConfigKeyPointsPerDollar, 1))
}

func TestGetMany(t *testing.T) {
	svc, _, _ := setup(t,
		pointsPerDollar,
		models.Configuration{Key: "colores", Value: `{"primario":"#2e7d32"}`, Type: models.ConfigJSON},
	)

	values, err := svc.GetMany(context.Background(), []string{models.ConfigKeyPointsPerDollar, "colores", "missing"})
	require.NoError(t, err)

	assert.Len(t, values, 2)
	assert.Equal(t, 1.5, values[models.ConfigKeyPointsPerDollar])
	assert.Equal(t, map[string]any{"primario": "#2e7d32"}, values["colores"])

	var colors map[string]string
	require.NoError(t, svc.GetJSON(context.Background(), "colores", &colors))
	assert.Equal(t, "#2e7d32", colors["primario"])
}

func TestWarm(t *testing.T) {
	svc, repo, _ := setup(t, pointsPerDollar)
	ctx := context.Background()

	require.NoError(t, svc.Warm(ctx))
	reads := repo.reads
	_ = svc.GetNumber(ctx, models.ConfigKeyPointsPerDollar, 1)
	assert.Equal(t, reads, repo.reads)
}
