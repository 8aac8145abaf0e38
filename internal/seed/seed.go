// Package seed loads the default configuration keys and reward catalog from YAML.
package seed

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/aimd54/sistema-donaciones/internal/models"
	"github.com/aimd54/sistema-donaciones/pkg/logger"
)

// File is the seed document.
type File struct {
	Configurations []Configuration `yaml:"configuraciones"`
	Rewards        []Reward        `yaml:"recompensas"`
}

// Configuration is one seeded configuration key.
type Configuration struct {
	Key         string `yaml:"clave"`
	Value       string `yaml:"valor"`
	Type        string `yaml:"tipo"`
	Description string `yaml:"descripcion"`
	Editable    *bool  `yaml:"editable"`
}

// Reward is one seeded catalog entry.
type Reward struct {
	Name           string `yaml:"nombre"`
	Description    string `yaml:"descripcion"`
	PointsRequired int    `yaml:"puntos_requeridos"`
	Type           string `yaml:"tipo"`
	ImageURL       string `yaml:"imagen_url"`
	Stock          *int   `yaml:"cantidad_disponible"`
	Active         *bool  `yaml:"activa"`
}

// ConfigurationStore is the persistence used for configuration keys.
type ConfigurationStore interface {
	GetByKey(key string) (*models.Configuration, error)
	Create(c *models.Configuration) error
}

// RewardStore is the persistence used for the reward catalog.
type RewardStore interface {
	GetByName(name string) (*models.Reward, error)
	Create(r *models.Reward) error
}

// IsNotFoundFunc classifies lookup errors as missing records.
type IsNotFoundFunc func(error) bool

// Result counts what Apply created and skipped.
type Result struct {
	ConfigurationsCreated int
	ConfigurationsSkipped int
	RewardsCreated        int
	RewardsSkipped        int
}

// Load reads and validates a seed file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a seed document.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks keys, types and point costs.
func (f *File) Validate() error {
	seen := make(map[string]bool)
	for i, c := range f.Configurations {
		if c.Key == "" {
			return fmt.Errorf("configuraciones[%d]: clave is required", i)
		}
		if seen[c.Key] {
			return fmt.Errorf("configuraciones[%d]: duplicate clave %q", i, c.Key)
		}
		seen[c.Key] = true
		if !models.ConfigType(c.Type).Valid() {
			return fmt.Errorf("configuraciones[%d]: invalid tipo %q", i, c.Type)
		}
	}

	names := make(map[string]bool)
	for i, r := range f.Rewards {
		if r.Name == "" {
			return fmt.Errorf("recompensas[%d]: nombre is required", i)
		}
		if names[r.Name] {
			return fmt.Errorf("recompensas[%d]: duplicate nombre %q", i, r.Name)
		}
		names[r.Name] = true
		if r.PointsRequired < 0 {
			return fmt.Errorf("recompensas[%d]: puntos_requeridos must be >= 0", i)
		}
		if !models.RewardType(r.Type).Valid() {
			return fmt.Errorf("recompensas[%d]: invalid tipo %q", i, r.Type)
		}
		if r.Stock != nil && *r.Stock < 0 {
			return fmt.Errorf("recompensas[%d]: cantidad_disponible must be >= 0", i)
		}
	}
	return nil
}

// Apply creates the seeded rows that do not exist yet. Existing keys and names are left untouched.
func (f *File) Apply(configs ConfigurationStore, rewards RewardStore, isNotFound IsNotFoundFunc, log *logger.Logger) (Result, error) {
	var res Result

	for _, c := range f.Configurations {
		_, err := configs.GetByKey(c.Key)
		if err == nil {
			res.ConfigurationsSkipped++
			continue
		}
		if !isNotFound(err) {
			return res, err
		}

		editable := true
		if c.Editable != nil {
			editable = *c.Editable
		}
		if err := configs.Create(&models.Configuration{
			Key:         c.Key,
			Value:       c.Value,
			Type:        models.ConfigType(c.Type),
			Description: c.Description,
			Editable:    editable,
		}); err != nil {
			return res, err
		}
		res.ConfigurationsCreated++
		log.Info().Str("clave", c.Key).Msg("Seeded configuration")
	}

	for _, r := range f.Rewards {
		_, err := rewards.GetByName(r.Name)
		if err == nil {
			res.RewardsSkipped++
			continue
		}
		if !isNotFound(err) {
			return res, err
		}

		active := true
		if r.Active != nil {
			active = *r.Active
		}
		if err := rewards.Create(&models.Reward{
			Name:           r.Name,
			Description:    r.Description,
			PointsRequired: r.PointsRequired,
			Type:           models.RewardType(r.Type),
			ImageURL:       r.ImageURL,
			Stock:          r.Stock,
			Active:         active,
		}); err != nil {
			return res, err
		}
		res.RewardsCreated++
		log.Info().Str("nombre", r.Name).Msg("Seeded reward")
	}

	return res, nil
}
