package repository

import (
	"fmt"

	"github.com/aimd54/sistema-donaciones/internal/models"
)

// ConfigurationRepository handles typed key/value settings.
type ConfigurationRepository struct {
	db *DB
}

// NewConfigurationRepository creates a new configuration repository.
func NewConfigurationRepository(db *DB) *ConfigurationRepository {
	return &ConfigurationRepository{db: db}
}

// Create stores a new setting.
func (r *ConfigurationRepository) Create(c *models.Configuration) error {
	if err := r.db.Create(c).Error; err != nil {
		return fmt.Errorf("failed to create configuration %s: %w", c.Key, err)
	}
	return nil
}

// GetByKey retrieves a setting by key.
func (r *ConfigurationRepository) GetByKey(key string) (*models.Configuration, error) {
	var c models.Configuration
	if err := r.db.Where("clave = ?", key).First(&c).Error; err != nil {
		return nil, lookupErr(err, "configuration %s", key)
	}
	return &c, nil
}

// GetByKeys retrieves the settings present among keys.
func (r *ConfigurationRepository) GetByKeys(keys []string) ([]models.Configuration, error) {
	var items []models.Configuration
	if len(keys) == 0 {
		return items, nil
	}
	err := r.db.Where("clave IN ?", keys).Order("clave ASC").Find(&items).Error
	return items, err
}

// List returns every setting ordered by key.
func (r *ConfigurationRepository) List() ([]models.Configuration, error) {
	var items []models.Configuration
	err := r.db.Order("clave ASC").Find(&items).Error
	return items, err
}

// Update saves the setting.
func (r *ConfigurationRepository) Update(c *models.Configuration) error {
	if err := r.db.Save(c).Error; err != nil {
		return fmt.Errorf("failed to update configuration %s: %w", c.Key, err)
	}
	return nil
}

// Delete removes a setting by key.
func (r *ConfigurationRepository) Delete(key string) error {
	res := r.db.Where("clave = ?", key).Delete(&models.Configuration{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete configuration %s: %w", key, res.Error)
	}
	if res.RowsAffected == 0 {
		return lookupErr(errNotFound, "configuration %s", key)
	}
	return nil
}
