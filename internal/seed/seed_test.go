package seed

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimd54/sistema-donaciones/internal/models"
	"github.com/aimd54/sistema-donaciones/pkg/logger"
)

const testSeed = `
configuraciones:
  - clave: puntos_por_dolar
    valor: "1"
    tipo: numero
    descripcion: Puntos otorgados por cada dólar donado
  - clave: nombre_organizacion
    valor: Fundación Esperanza
    tipo: texto
    editable: false
recompensas:
  - nombre: Insignia Bronce
    puntos_requeridos: 100
    tipo: Insignia
  - nombre: Visita a proyecto
    puntos_requeridos: 1000
    tipo: Experiencia
    cantidad_disponible: 5
`

var errMissing = errors.New("missing")

func isMissing(err error) bool { return errors.Is(err, errMissing) }

type memConfigs map[string]*models.Configuration

func (m memConfigs) GetByKey(key string) (*models.Configuration, error) {
	if c, ok := m[key]; ok {
		return c, nil
	}
	return nil, errMissing
}

func (m memConfigs) Create(c *models.Configuration) error {
	m[c.Key] = c
	return nil
}

type memRewards map[string]*models.Reward

func (m memRewards) GetByName(name string) (*models.Reward, error) {
	if r, ok := m[name]; ok {
		return r, nil
	}
	return nil, errMissing
}

func (m memRewards) Create(r *models.Reward) error {
	m[r.Name] = r
	return nil
}

func TestParse(t *testing.T) {
	f, err := Parse([]byte(testSeed))
	require.NoError(t, err)

	require.Len(t, f.Configurations, 2)
	require.Len(t, f.Rewards, 2)
	assert.Equal(t, "Fundación Esperanza", f.Configurations[1].Value)
	require.NotNil(t, f.Rewards[1].Stock)
	assert.Equal(t, 5, *f.Rewards[1].Stock)
}

func TestParse_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad type":      "configuraciones:\n  - clave: x\n    tipo: fecha\n",
		"missing key":   "configuraciones:\n  - valor: x\n    tipo: texto\n",
		"duplicate key": "configuraciones:\n  - clave: x\n    tipo: texto\n  - clave: x\n    tipo: texto\n",
		"reward type":   "recompensas:\n  - nombre: x\n    tipo: Viaje\n",
		"negative cost": "recompensas:\n  - nombre: x\n    tipo: Insignia\n    puntos_requeridos: -1\n",
		"not yaml":      "configuraciones: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestApply_Idempotent(t *testing.T) {
	f, err := Parse([]byte(testSeed))
	require.NoError(t, err)

	configs := memConfigs{}
	rewards := memRewards{}

	res, err := f.Apply(configs, rewards, isMissing, logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, Result{ConfigurationsCreated: 2, RewardsCreated: 2}, res)
	assert.False(t, configs["nombre_organizacion"].Editable)
	assert.True(t, configs["puntos_por_dolar"].Editable)
	assert.True(t, rewards["Insignia Bronce"].Active)

	res, err = f.Apply(configs, rewards, isMissing, logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, Result{ConfigurationsSkipped: 2, RewardsSkipped: 2}, res)
}
