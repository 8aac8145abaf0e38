// Package configuration provides typed, cached access to the key/value settings.
package configuration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aimd54/sistema-donaciones/internal/apperr"
	"github.com/aimd54/sistema-donaciones/internal/cache"
	"github.com/aimd54/sistema-donaciones/internal/models"
	"github.com/aimd54/sistema-donaciones/internal/repository"
	"github.com/aimd54/sistema-donaciones/pkg/logger"
)

const keyPrefix = "config:"

// Repository interface for configuration persistence.
type Repository interface {
	Create(c *models.Configuration) error
	GetByKey(key string) (*models.Configuration, error)
	GetByKeys(keys []string) ([]models.Configuration, error)
	List() ([]models.Configuration, error)
	Update(c *models.Configuration) error
	Delete(key string) error
}

// CreateInput holds the fields of a new configuration key.
type CreateInput struct {
	Key         string            `json:"clave" binding:"required,max=100"`
	Value       string            `json:"valor"`
	Description string            `json:"descripcion" binding:"max=255"`
	Type        models.ConfigType `json:"tipo" binding:"required,oneof=texto numero booleano json"`
	Editable    *bool             `json:"editable"`
}

// UpdateInput holds the mutable fields of a configuration key.
type UpdateInput struct {
	Value       *string `json:"valor"`
	Description *string `json:"descripcion" binding:"omitempty,max=255"`
}

type cachedEntry struct {
	Value string            `json:"v"`
	Type  models.ConfigType `json:"t"`
}

// Service handles configuration reads and admin mutations.
type Service struct {
	repo  Repository
	cache cache.Cache
	ttl   time.Duration
	log   *logger.Logger
}

// NewService creates a new configuration service.
func NewService(repo *repository.ConfigurationRepository, c cache.Cache, ttl time.Duration, log *logger.Logger) *Service {
	return NewServiceWithInterfaces(repo, c, ttl, log)
}

// NewServiceWithInterfaces creates a new configuration service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(repo Repository, c cache.Cache, ttl time.Duration, log *logger.Logger) *Service {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Service{repo: repo, cache: c, ttl: ttl, log: log}
}

// List returns every configuration key.
func (s *Service) List(_ context.Context) ([]models.Configuration, error) {
	return s.repo.List()
}

// Get returns one configuration key.
func (s *Service) Get(_ context.Context, key string) (*models.Configuration, error) {
	return s.repo.GetByKey(key)
}

// Create adds a configuration key.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Configuration, error) {
	in.Key = strings.TrimSpace(in.Key)
	if in.Key == "" {
		return nil, apperr.BadRequest("clave is required")
	}
	if !in.Type.Valid() {
		return nil, apperr.BadRequest("invalid tipo %q", in.Type)
	}
	if err := ValidateValue(in.Type, in.Value); err != nil {
		return nil, err
	}

	if _, err := s.repo.GetByKey(in.Key); err == nil {
		return nil, apperr.Conflict("configuration %q already exists", in.Key)
	} else if !repository.IsNotFound(err) {
		return nil, err
	}

	editable := true
	if in.Editable != nil {
		editable = *in.Editable
	}
	c := &models.Configuration{
		Key:         in.Key,
		Value:       in.Value,
		Description: in.Description,
		Type:        in.Type,
		Editable:    editable,
	}
	if err := s.repo.Create(c); err != nil {
		if repository.IsDuplicate(err) {
			return nil, apperr.Conflict("configuration %q already exists", in.Key)
		}
		return nil, err
	}

	s.store(ctx, c)
	s.log.Info().Str("clave", c.Key).Str("tipo", string(c.Type)).Msg("Configuration created")
	return c, nil
}

// Update changes the value or description of an editable key.
func (s *Service) Update(ctx context.Context, key string, in UpdateInput) (*models.Configuration, error) {
	c, err := s.repo.GetByKey(key)
	if err != nil {
		return nil, err
	}
	if !c.Editable {
		return nil, apperr.Forbidden("configuration %q is not editable", key)
	}

	if in.Value != nil {
		if err := ValidateValue(c.Type, *in.Value); err != nil {
			return nil, err
		}
		c.Value = *in.Value
	}
	if in.Description != nil {
		c.Description = *in.Description
	}

	if err := s.repo.Update(c); err != nil {
		return nil, err
	}

	s.store(ctx, c)
	s.log.Info().Str("clave", c.Key).Msg("Configuration updated")
	return c, nil
}

// Delete removes an editable key.
func (s *Service) Delete(ctx context.Context, key string) error {
	c, err := s.repo.GetByKey(key)
	if err != nil {
		return err
	}
	if !c.Editable {
		return apperr.Forbidden("configuration %q is not editable", key)
	}
	if err := s.repo.Delete(key); err != nil {
		return err
	}
	if err := s.cache.Del(ctx, keyPrefix+key); err != nil {
		s.log.Warn().Err(err).Str("clave", key).Msg("Failed to evict configuration from cache")
	}
	s.log.Info().Str("clave", key).Msg("Configuration deleted")
	return nil
}

// Warm loads every key into the cache.
func (s *Service) Warm(ctx context.Context) error {
	items, err := s.repo.List()
	if err != nil {
		return fmt.Errorf("failed to warm configuration cache: %w", err)
	}
	for i := range items {
		s.store(ctx, &items[i])
	}
	s.log.Info().Int("keys", len(items)).Msg("Configuration cache warmed")
	return nil
}

// lookup returns the raw value of key from the cache or the database.
func (s *Service) lookup(ctx context.Context, key string) (*cachedEntry, error) {
	raw, err := s.cache.Get(ctx, keyPrefix+key)
	if err == nil {
		var e cachedEntry
		if json.Unmarshal([]byte(raw), &e) == nil {
			return &e, nil
		}
	} else if !errors.Is(err, cache.ErrMiss) {
		s.log.Warn().Err(err).Str("clave", key).Msg("Configuration cache read failed")
	}

	c, err := s.repo.GetByKey(key)
	if err != nil {
		return nil, err
	}
	s.store(ctx, c)
	return &cachedEntry{Value: c.Value, Type: c.Type}, nil
}

func (s *Service) store(ctx context.Context, c *models.Configuration) {
	payload, err := json.Marshal(cachedEntry{Value: c.Value, Type: c.Type})
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, keyPrefix+c.Key, string(payload), s.ttl); err != nil {
		s.log.Warn().Err(err).Str("clave", c.Key).Msg("Configuration cache write failed")
	}
}

// GetString returns the value of key, or def when the key is missing.
func (s *Service) GetString(ctx context.Context, key, def string) string {
	e, err := s.lookup(ctx, key)
	if err != nil {
		s.logMissing(key, err)
		return def
	}
	return e.Value
}

// GetNumber returns the numeric value of key, or def when missing or not a number.
func (s *Service) GetNumber(ctx context.Context, key string, def float64) float64 {
	e, err := s.lookup(ctx, key)
	if err != nil {
		s.logMissing(key, err)
		return def
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(e.Value), 64)
	if err != nil {
		s.log.Warn().Str("clave", key).Str("valor", e.Value).Msg("Configuration value is not a number")
		return def
	}
	return n
}

// GetBool returns the boolean value of key, or def when missing or not a boolean.
func (s *Service) GetBool(ctx context.Context, key string, def bool) bool {
	e, err := s.lookup(ctx, key)
	if err != nil {
		s.logMissing(key, err)
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(e.Value))
	if err != nil {
		return def
	}
	return b
}

// GetJSON decodes the JSON value of key into out.
func (s *Service) GetJSON(ctx context.Context, key string, out any) error {
	e, err := s.lookup(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(e.Value), out); err != nil {
		return fmt.Errorf("configuration %q is not valid json: %w", key, err)
	}
	return nil
}

// GetValue returns the typed value of key.
func (s *Service) GetValue(ctx context.Context, key string) (any, error) {
	e, err := s.lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	return ParseValue(e.Type, e.Value)
}

// GetMany returns the typed values of the keys that exist. Missing keys are omitted.
func (s *Service) GetMany(ctx context.Context, keys []string) (map[string]any, error) {
	out := make(map[string]any, len(keys))
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		v, err := s.GetValue(ctx, key)
		if err != nil {
			if repository.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		out[key] = v
	}
	return out, nil
}

func (s *Service) logMissing(key string, err error) {
	if repository.IsNotFound(err) {
		s.log.Debug().Str("clave", key).Msg("Configuration key not found, using default")
		return
	}
	s.log.Error().Err(err).Str("clave", key).Msg("Failed to read configuration")
}

// ValidateValue checks that value matches the declared type.
func ValidateValue(t models.ConfigType, value string) error {
	if _, err := ParseValue(t, value); err != nil {
		return apperr.BadRequest("valor is not a valid %s: %v", t, err)
	}
	return nil
}

// ParseValue converts a stored value to its Go representation.
func ParseValue(t models.ConfigType, value string) (any, error) {
	switch t {
	case models.ConfigNumber:
		return strconv.ParseFloat(strings.TrimSpace(value), 64)
	case models.ConfigBoolean:
		switch strings.TrimSpace(value) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return nil, fmt.Errorf("expected true or false")
	case models.ConfigJSON:
		var v any
		if err := json.Unmarshal([]byte(value), &v); err != nil {
			return nil, err
		}
		return v, nil
	default:
		return value, nil
	}
}
